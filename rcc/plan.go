package rcc

import (
	"bluepill-core/errcode"
	"bluepill-core/periph"
	"bluepill-core/x/conv"
	"bluepill-core/x/mathx"
)

// Plan is a fully validated clock tree: the frequencies it yields and the
// register values that produce them.
type Plan struct {
	Clocks Clocks

	HSE       uint32
	Bypass    bool
	PLLMul    uint8
	PLLSrcHSE bool

	SW      uint32
	PPRE1   uint32
	PPRE2   uint32
	ADCPRE  uint32
	ADCDiv  uint32
	Latency uint32
}

// ConstraintError reports a derived value outside what the hardware allows.
type ConstraintError struct {
	Domain    string // "sysclk", "pclk1", "adcclk", "pllmul"
	Requested uint32
	Ceiling   uint32
}

func (e *ConstraintError) Error() string {
	var a, b [20]byte
	return string(errcode.ConstraintViolation) + ": " + e.Domain + " " +
		string(conv.Utoa(a[:], uint64(e.Requested))) + " exceeds " +
		string(conv.Utoa(b[:], uint64(e.Ceiling)))
}

func (e *ConstraintError) Code() errcode.Code { return errcode.ConstraintViolation }

func (e *ConstraintError) Is(target error) bool {
	return target == errcode.ConstraintViolation
}

// APB divisor -> PPREx selector. Unknown divisors run undivided.
var apbSelectors = map[uint8]uint32{2: 0b100, 4: 0b101, 8: 0b110, 16: 0b111}

// ADC divisor -> ADCPRE selector.
var adcSelectors = map[uint8]uint32{2: 0b00, 4: 0b01, 6: 0b10, 8: 0b11}

const adcFallbackDiv = 6

func apbPrescaler(div uint8) (sel, divisor uint32) {
	if s, ok := apbSelectors[div]; ok {
		return s, uint32(div)
	}
	return 0, 1
}

// adcPrescaler has no undivided setting, so unknown divisors fall back to 6.
func adcPrescaler(div uint8) (sel, divisor uint32) {
	if s, ok := adcSelectors[div]; ok {
		return s, uint32(div)
	}
	return adcSelectors[adcFallbackDiv], adcFallbackDiv
}

// Plan derives and validates every frequency without touching registers.
func (c Config) Plan(fam Family) (Plan, error) {
	p := Plan{HSE: c.hse, Bypass: c.bypass && c.hse != 0}

	src := fam.HSI
	p.Clocks.Source = SourceHSI
	p.SW = periph.RCC_CFGR_SW_HSI
	switch {
	case c.hse != 0:
		src = c.hse
		p.Clocks.Source = SourceHSE
		p.SW = periph.RCC_CFGR_SW_HSE
	case c.pllMul != 0:
		// Without HSE the PLL input is HSI/2.
		src = fam.HSI / 2
	}

	sys := src
	if c.pllMul != 0 {
		if !mathx.Between(c.pllMul, fam.PLLMulMin, fam.PLLMulMax) {
			ceil := fam.PLLMulMax
			if c.pllMul < fam.PLLMulMin {
				ceil = fam.PLLMulMin
			}
			return Plan{}, &ConstraintError{Domain: "pllmul", Requested: uint32(c.pllMul), Ceiling: uint32(ceil)}
		}
		f := uint64(c.pllMul) * uint64(src)
		if f > uint64(fam.SysclkMax) {
			return Plan{}, &ConstraintError{Domain: "sysclk", Requested: clampU32(f), Ceiling: fam.SysclkMax}
		}
		sys = uint32(f)
		p.PLLMul = c.pllMul
		p.PLLSrcHSE = c.hse != 0
		p.Clocks.Source = SourcePLL
		p.SW = periph.RCC_CFGR_SW_PLL
	}
	// A bypassed HSE can exceed the ceiling without the PLL.
	if sys > fam.SysclkMax {
		return Plan{}, &ConstraintError{Domain: "sysclk", Requested: sys, Ceiling: fam.SysclkMax}
	}
	p.Clocks.SYSCLK = sys

	var d1, d2 uint32
	p.PPRE1, d1 = apbPrescaler(c.apb1)
	p.PPRE2, d2 = apbPrescaler(c.apb2)
	p.Clocks.PCLK1 = sys / d1
	p.Clocks.PCLK2 = sys / d2
	if p.Clocks.PCLK1 > fam.PCLK1Max {
		return Plan{}, &ConstraintError{Domain: "pclk1", Requested: p.Clocks.PCLK1, Ceiling: fam.PCLK1Max}
	}

	p.ADCPRE, p.ADCDiv = adcPrescaler(c.adc)
	p.Clocks.ADCCLK = p.Clocks.PCLK2 / p.ADCDiv
	if p.Clocks.ADCCLK > fam.ADCMax {
		return Plan{}, &ConstraintError{Domain: "adcclk", Requested: p.Clocks.ADCCLK, Ceiling: fam.ADCMax}
	}

	p.Latency = uint32(mathx.Band(sys, fam.LatencyBands...))
	return p, nil
}

func clampU32(v uint64) uint32 {
	return uint32(mathx.Min(v, uint64(^uint32(0))))
}
