package rcc

// Family is the fixed clock data of one chip family. The values are not
// discovered at run time.
type Family struct {
	Name string

	HSI uint32 // internal oscillator, Hz

	SysclkMax uint32
	PCLK1Max  uint32
	ADCMax    uint32

	PLLMulMin uint8
	PLLMulMax uint8

	// HSEReadyPolls bounds the HSERDY wait.
	HSEReadyPolls int
	// PLLReadyPolls bounds the PLLRDY wait; 0 waits forever.
	PLLReadyPolls int

	// LatencyBands are the inclusive upper SYSCLK bounds of wait-state
	// classes 0, 1, ...; anything above the last uses len(LatencyBands).
	LatencyBands []uint32
}

// F103 is the STM32F103 medium-density family (RM0008).
var F103 = Family{
	Name:          "stm32f103",
	HSI:           8_000_000,
	SysclkMax:     72_000_000,
	PCLK1Max:      36_000_000,
	ADCMax:        14_000_000,
	PLLMulMin:     2,
	PLLMulMax:     16,
	HSEReadyPolls: 1000,
	PLLReadyPolls: 0,
	LatencyBands:  []uint32{24_000_000, 48_000_000},
}
