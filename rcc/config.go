package rcc

// Config accumulates clock tree intent. It is a value: each setter returns
// an updated copy and nothing touches hardware until Synthesize.
type Config struct {
	hse    uint32
	bypass bool
	pllMul uint8
	apb1   uint8
	apb2   uint8
	adc    uint8
}

// NewConfig returns a configuration that runs from HSI with no division.
func NewConfig() Config { return Config{} }

// HSE selects an external crystal of hz.
func (c Config) HSE(hz uint32) Config {
	c.hse = hz
	c.bypass = false
	return c
}

// HSEBypass selects an external clean digital clock of hz; the oscillator
// amplifier is bypassed.
func (c Config) HSEBypass(hz uint32) Config {
	c.hse = hz
	c.bypass = true
	return c
}

// PLL requests the multiplier stage with factor mul.
func (c Config) PLL(mul uint8) Config {
	c.pllMul = mul
	return c
}

// APB1 sets the low-speed bus divisor (1, 2, 4, 8, 16).
func (c Config) APB1(div uint8) Config {
	c.apb1 = div
	return c
}

// APB2 sets the high-speed bus divisor (1, 2, 4, 8, 16).
func (c Config) APB2(div uint8) Config {
	c.apb2 = div
	return c
}

// ADC sets the ADC clock divisor applied to PCLK2 (2, 4, 6, 8).
func (c Config) ADC(div uint8) Config {
	c.adc = div
	return c
}

// Source identifies the oscillator driving SYSCLK.
type Source uint8

const (
	SourceHSI Source = iota
	SourceHSE
	SourcePLL
)

func (s Source) String() string {
	switch s {
	case SourceHSE:
		return "hse"
	case SourcePLL:
		return "pll"
	default:
		return "hsi"
	}
}

// Clocks are realized frequencies in Hz. PCLK1 and PCLK2 are SYSCLK over
// their divisors; ADCCLK is PCLK2 over its divisor.
type Clocks struct {
	Source Source
	SYSCLK uint32
	PCLK1  uint32
	PCLK2  uint32
	ADCCLK uint32
}
