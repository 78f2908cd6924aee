// Package rcc derives and sequences the clock tree: oscillator start-up,
// PLL, bus prescalers, ADC prescaler and flash wait states.
//
// Synthesize validates the whole tree before it writes a register, so a
// configuration that breaks a ceiling leaves the hardware untouched. The
// only waits are busy polls of ready flags; HSE is bounded by
// Family.HSEReadyPolls and the PLL by Family.PLLReadyPolls (0 = forever).
package rcc

import (
	"errors"
	"sync"

	"bluepill-core/errcode"
	"bluepill-core/periph"
	"bluepill-core/regs"
	"bluepill-core/x/logx"
)

var (
	// ErrHSETimeout is returned when the external oscillator never reports ready.
	ErrHSETimeout = &errcode.E{C: errcode.Timeout, Op: "rcc.hse", Msg: "oscillator not ready"}
	// ErrPLLTimeout is returned when a bounded PLL wait expires.
	ErrPLLTimeout = &errcode.E{C: errcode.Timeout, Op: "rcc.pll", Msg: "pll not locked"}
	// ErrPLLRunning is returned when a PLL configuration is requested while the
	// PLL is on; PLLMUL and PLLSRC are locked until it stops.
	ErrPLLRunning = &errcode.E{C: errcode.Busy, Op: "rcc.pll", Msg: "pll already running"}
)

// Controller is the process-wide handle on RCC and FLASH.
type Controller struct {
	rcc   *periph.RCC
	flash *periph.FLASH
	fam   Family

	mu       sync.Mutex
	clocks   Clocks
	realized bool
}

// New wraps the clock registers of fam.
func New(r *periph.RCC, f *periph.FLASH, fam Family) *Controller {
	return &Controller{
		rcc:   r,
		flash: f,
		fam:   fam,
		clocks: Clocks{
			Source: SourceHSI,
			SYSCLK: fam.HSI,
			PCLK1:  fam.HSI,
			PCLK2:  fam.HSI,
			ADCCLK: fam.HSI / 2,
		},
	}
}

// EnableAPB2 sets peripheral clock enable bits on the APB2 bus. Setting an
// already-set bit is harmless.
func (c *Controller) EnableAPB2(mask uint32) {
	regs.SetBits(c.rcc.APB2ENR, mask)
}

// Clocks returns the frequencies in force and whether Synthesize has run.
// Before synthesis the chip runs from HSI at reset prescalers.
func (c *Controller) Clocks() (Clocks, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clocks, c.realized
}

// Synthesize brings the clock tree to cfg and returns the realized clocks.
//
// Errors: a *ConstraintError (errcode.ConstraintViolation) before any
// register is written; ErrHSETimeout if the oscillator never starts, with
// HSEON cleared again; ErrPLLRunning if the PLL would need reprogramming
// while it is on.
func (c *Controller) Synthesize(cfg Config) (Clocks, error) {
	p, err := cfg.Plan(c.fam)
	if err != nil {
		logx.Warn("clock tree rejected", "err", err)
		return Clocks{}, err
	}
	return c.Apply(p)
}

// Apply sequences a validated plan onto the hardware.
func (c *Controller) Apply(p Plan) (Clocks, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p.PLLMul != 0 && c.rcc.CR.HasBits(periph.RCC_CR_PLLON) {
		return Clocks{}, ErrPLLRunning
	}

	if p.HSE != 0 {
		if err := c.startHSE(p.Bypass); err != nil {
			return Clocks{}, err
		}
	}

	if p.PLLMul != 0 {
		if err := c.startPLL(p.PLLMul, p.PLLSrcHSE); err != nil {
			return Clocks{}, err
		}
	}

	c.switchTo(p)

	c.clocks = p.Clocks
	c.realized = true
	logx.Info("clock tree realized",
		"source", p.Clocks.Source.String(),
		"sysclk", p.Clocks.SYSCLK,
		"pclk1", p.Clocks.PCLK1,
		"pclk2", p.Clocks.PCLK2,
		"adcclk", p.Clocks.ADCCLK,
		"latency", p.Latency)
	return p.Clocks, nil
}

func (c *Controller) startHSE(bypass bool) error {
	cr := c.rcc.CR
	if bypass {
		regs.SetBits(cr, periph.RCC_CR_HSEBYP)
	}
	regs.SetBits(cr, periph.RCC_CR_HSEON)

	polls, ok := pollBits(cr, periph.RCC_CR_HSERDY, c.fam.HSEReadyPolls)
	if !ok {
		regs.ClearBits(cr, periph.RCC_CR_HSEON)
		logx.Error("hse start-up failed", "polls", polls)
		return ErrHSETimeout
	}
	logx.Debug("hse ready", "polls", polls, "bypass", bypass)
	return nil
}

func (c *Controller) startPLL(mul uint8, srcHSE bool) error {
	var src uint32
	if srcHSE {
		src = periph.RCC_CFGR_PLLSRC
	}
	mulField := periph.RCC_CFGR_PLLMUL
	regs.Modify(c.rcc.CFGR,
		mulField.In(mulField.Mask())|periph.RCC_CFGR_PLLSRC,
		mulField.In(uint32(mul-2))|src)
	regs.SetBits(c.rcc.CR, periph.RCC_CR_PLLON)

	polls, ok := pollBits(c.rcc.CR, periph.RCC_CR_PLLRDY, c.fam.PLLReadyPolls)
	if !ok {
		regs.ClearBits(c.rcc.CR, periph.RCC_CR_PLLON)
		logx.Error("pll lock failed", "polls", polls)
		return ErrPLLTimeout
	}
	logx.Debug("pll locked", "polls", polls, "mul", int(mul))
	return nil
}

// switchTo programs the prescalers and SYSCLK source in one CFGR write.
// Flash latency is raised before a switch and lowered only after SWS shows
// the new source, so the core never outruns its wait states.
func (c *Controller) switchTo(p Plan) {
	lat := periph.FLASH_ACR_LATENCY
	cur := lat.Read(c.flash.ACR)
	if p.Latency > cur {
		lat.Write(c.flash.ACR, p.Latency)
	}

	cfgr := c.rcc.CFGR
	clear := periph.RCC_CFGR_ADCPRE.In(periph.RCC_CFGR_ADCPRE.Mask()) |
		periph.RCC_CFGR_PPRE2.In(periph.RCC_CFGR_PPRE2.Mask()) |
		periph.RCC_CFGR_PPRE1.In(periph.RCC_CFGR_PPRE1.Mask()) |
		periph.RCC_CFGR_SW.In(periph.RCC_CFGR_SW.Mask())
	set := periph.RCC_CFGR_ADCPRE.In(p.ADCPRE) |
		periph.RCC_CFGR_PPRE2.In(p.PPRE2) |
		periph.RCC_CFGR_PPRE1.In(p.PPRE1) |
		periph.RCC_CFGR_SW.In(p.SW)
	regs.Modify(cfgr, clear, set)
	for periph.RCC_CFGR_SWS.Read(cfgr) != p.SW {
	}

	if p.Latency < cur {
		lat.Write(c.flash.ACR, p.Latency)
	}
}

// pollBits waits for bits in r. limit <= 0 waits forever.
func pollBits(r regs.Reg32, bits uint32, limit int) (int, bool) {
	for n := 0; ; n++ {
		if r.HasBits(bits) {
			return n, true
		}
		if limit > 0 && n+1 >= limit {
			return n + 1, false
		}
	}
}

// IsTimeout reports whether err is a start-up timeout.
func IsTimeout(err error) bool { return errors.Is(err, errcode.Timeout) }
