// Package periph is the fixed register contract of the STM32F103 family:
// the peripheral register blocks this module drives and their bit layout.
// Addresses live in the MMIO file; everything else works against Reg32.
package periph

import "bluepill-core/regs"

// GPIO is one port's register block (RM0008 §9.2).
type GPIO struct {
	CRL  regs.Reg32 // mode/config, pins 0..7
	CRH  regs.Reg32 // mode/config, pins 8..15
	IDR  regs.Reg32
	ODR  regs.Reg32
	BSRR regs.Reg32 // write-only: bit n sets, bit n+16 resets
	BRR  regs.Reg32
}

// AFIO holds the external interrupt line selectors.
type AFIO struct {
	EXTICR [4]regs.Reg32
}

// EXTI is the external interrupt/event controller.
type EXTI struct {
	IMR   regs.Reg32
	EMR   regs.Reg32
	RTSR  regs.Reg32
	FTSR  regs.Reg32
	SWIER regs.Reg32
	PR    regs.Reg32 // write 1 to clear
}

// RCC is the reset and clock control block.
type RCC struct {
	CR      regs.Reg32
	CFGR    regs.Reg32
	APB2ENR regs.Reg32
	APB1ENR regs.Reg32
}

// FLASH carries the access control register only.
type FLASH struct {
	ACR regs.Reg32
}

// File is the register file: one handle per peripheral instance.
type File struct {
	GPIO  [NumPorts]*GPIO
	AFIO  *AFIO
	EXTI  *EXTI
	RCC   *RCC
	FLASH *FLASH
}

// NumPorts is the number of GPIO ports this family exposes (A, B, C).
const NumPorts = 3

// NumLines is the number of GPIO-driven EXTI lines.
const NumLines = 16

// RCC_CR bits.
const (
	RCC_CR_HSION  = 1 << 0
	RCC_CR_HSIRDY = 1 << 1
	RCC_CR_HSEON  = 1 << 16
	RCC_CR_HSERDY = 1 << 17
	RCC_CR_HSEBYP = 1 << 18
	RCC_CR_PLLON  = 1 << 24
	RCC_CR_PLLRDY = 1 << 25
)

// RCC_CFGR fields.
var (
	RCC_CFGR_SW     = regs.Field{Pos: 0, Width: 2}
	RCC_CFGR_SWS    = regs.Field{Pos: 2, Width: 2}
	RCC_CFGR_PPRE1  = regs.Field{Pos: 8, Width: 3}
	RCC_CFGR_PPRE2  = regs.Field{Pos: 11, Width: 3}
	RCC_CFGR_ADCPRE = regs.Field{Pos: 14, Width: 2}
	RCC_CFGR_PLLMUL = regs.Field{Pos: 18, Width: 4}
)

const RCC_CFGR_PLLSRC = 1 << 16

// System clock switch values.
const (
	RCC_CFGR_SW_HSI = 0b00
	RCC_CFGR_SW_HSE = 0b01
	RCC_CFGR_SW_PLL = 0b10
)

// RCC_APB2ENR bits.
const (
	RCC_APB2ENR_AFIOEN = 1 << 0
	RCC_APB2ENR_IOPAEN = 1 << 2
	RCC_APB2ENR_IOPBEN = 1 << 3
	RCC_APB2ENR_IOPCEN = 1 << 4
)

// FLASH_ACR fields.
var FLASH_ACR_LATENCY = regs.Field{Pos: 0, Width: 3}

const FLASH_ACR_PRFTBE = 1 << 4
