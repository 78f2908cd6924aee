// Package exti drives the external interrupt lines that GPIO pins feed:
// line routing through the AFIO selectors, edge selection, mask, pending
// and software trigger.
package exti

import (
	"sync"

	"bluepill-core/periph"
	"bluepill-core/regs"
)

// Edge selects which transitions latch a line.
type Edge uint8

const (
	Rising Edge = iota + 1
	Falling
	RisingFalling
)

func (e Edge) String() string {
	switch e {
	case Rising:
		return "rising"
	case Falling:
		return "falling"
	case RisingFalling:
		return "both"
	default:
		return "none"
	}
}

// ParseEdge maps "rising", "falling" and "both"; anything else is 0.
func ParseEdge(s string) Edge {
	switch s {
	case "rising":
		return Rising
	case "falling":
		return Falling
	case "both":
		return RisingFalling
	default:
		return 0
	}
}

// ClockGate enables peripheral clocks on APB2.
type ClockGate interface {
	EnableAPB2(mask uint32)
}

// Controller owns the EXTI block and the AFIO line selectors.
type Controller struct {
	exti *periph.EXTI
	afio *periph.AFIO
	gate ClockGate

	afioOnce sync.Once
}

// New wraps the EXTI and AFIO registers.
func New(e *periph.EXTI, a *periph.AFIO, gate ClockGate) *Controller {
	return &Controller{exti: e, afio: a, gate: gate}
}

func bit(line uint8) uint32 { return 1 << (line & 0xF) }

// Route selects the port driving line. The selector is shared by four
// lines; only this line's nibble changes, and the last write wins.
func (c *Controller) Route(line, portCode uint8) {
	c.afioOnce.Do(func() { c.gate.EnableAPB2(periph.RCC_APB2ENR_AFIOEN) })
	f := regs.Field{Pos: 4 * (line % 4), Width: 4}
	f.Write(c.afio.EXTICR[(line&0xF)/4], uint32(portCode))
}

// Routed returns the port code currently selected for line.
func (c *Controller) Routed(line uint8) uint8 {
	f := regs.Field{Pos: 4 * (line % 4), Width: 4}
	return uint8(f.Read(c.afio.EXTICR[(line&0xF)/4]))
}

// SetEdge programs the rising and falling trigger selection of line.
func (c *Controller) SetEdge(line uint8, e Edge) {
	b := bit(line)
	switch e {
	case Rising:
		regs.SetBits(c.exti.RTSR, b)
		regs.ClearBits(c.exti.FTSR, b)
	case Falling:
		regs.ClearBits(c.exti.RTSR, b)
		regs.SetBits(c.exti.FTSR, b)
	case RisingFalling:
		regs.SetBits(c.exti.RTSR, b)
		regs.SetBits(c.exti.FTSR, b)
	}
}

// Edge reads back the trigger selection of line; 0 if none.
func (c *Controller) Edge(line uint8) Edge {
	b := bit(line)
	r, f := c.exti.RTSR.HasBits(b), c.exti.FTSR.HasBits(b)
	switch {
	case r && f:
		return RisingFalling
	case r:
		return Rising
	case f:
		return Falling
	}
	return 0
}

func (c *Controller) Enable(line uint8)  { regs.SetBits(c.exti.IMR, bit(line)) }
func (c *Controller) Disable(line uint8) { regs.ClearBits(c.exti.IMR, bit(line)) }

// Enabled reports whether line is unmasked.
func (c *Controller) Enabled(line uint8) bool { return c.exti.IMR.HasBits(bit(line)) }

// EnabledMask returns every unmasked GPIO line.
func (c *Controller) EnabledMask() uint32 { return c.exti.IMR.Get() & 0xFFFF }

// Pending reports the pending bit of line.
func (c *Controller) Pending(line uint8) bool { return c.exti.PR.HasBits(bit(line)) }

// PendingMask returns every pending GPIO line.
func (c *Controller) PendingMask() uint32 { return c.exti.PR.Get() & 0xFFFF }

// ClearPending clears line's pending bit. PR is write-1-to-clear, so this
// is a plain write: a read-modify-write would clear every pending line.
func (c *Controller) ClearPending(line uint8) { c.exti.PR.Set(bit(line)) }

// Generate raises a software event on line.
func (c *Controller) Generate(line uint8) { regs.SetBits(c.exti.SWIER, bit(line)) }
