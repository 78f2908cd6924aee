package gpio

import (
	"bluepill-core/errcode"
	"bluepill-core/exti"
	"bluepill-core/regs"
)

// Mode is the live state of a pin.
type Mode uint8

const (
	ModeReset Mode = iota
	ModeInput
	ModeOutput
	ModeAlternate
	ModeAnalog
)

func (m Mode) String() string {
	switch m {
	case ModeInput:
		return "input"
	case ModeOutput:
		return "output"
	case ModeAlternate:
		return "alternate"
	case ModeAnalog:
		return "analog"
	default:
		return "reset"
	}
}

// Speed is the output slew class, encoded as the MODE bits.
type Speed uint8

const (
	Speed10MHz Speed = 0b01
	Speed2MHz  Speed = 0b10
	Speed50MHz Speed = 0b11
)

// CNF drive bits for output and alternate modes.
const (
	drivePushPull     = 0b00
	driveOpenDrain    = 0b01
	driveAltPushPull  = 0b10
	driveAltOpenDrain = 0b11
)

// Input mode field values (MODE = 00).
const (
	fieldAnalog   = 0b0000
	fieldFloating = 0b0100
	fieldPull     = 0b1000
)

func outputField(drive uint32, s Speed) uint32 { return drive<<2 | uint32(s&0b11) }

// handle identifies one pin in one generation.
type handle struct {
	port *Port
	idx  uint8
	gen  uint32
}

// live panics unless h is the current handle of its pin.
func (h handle) live() {
	if h.port == nil {
		panic(&errcode.E{C: errcode.StalePin, Op: "gpio", Msg: "zero pin handle"})
	}
	h.port.mu.Lock()
	ok := h.port.pins[h.idx].gen == h.gen
	h.port.mu.Unlock()
	if !ok {
		panic(&errcode.E{C: errcode.StalePin, Op: "gpio", Msg: h.String()})
	}
}

// advance consumes h and returns the handle of the next generation in mode
// m. The check and the bump happen under one lock, so of two copies of a
// handle exactly one advances and the other panics before touching hardware.
func (h handle) advance(m Mode) handle {
	p := h.port
	if p == nil {
		panic(&errcode.E{C: errcode.StalePin, Op: "gpio", Msg: "zero pin handle"})
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	st := &p.pins[h.idx]
	if st.gen != h.gen {
		panic(&errcode.E{C: errcode.StalePin, Op: "gpio", Msg: h.String()})
	}
	st.gen++
	st.mode = m
	return handle{port: p, idx: h.idx, gen: st.gen}
}

func (h handle) String() string {
	if h.port == nil {
		return "P??"
	}
	return pinName(h.port.info.letter, h.idx)
}

func (h handle) bit() uint32 { return 1 << h.idx }

// configure writes the pin's 4-bit CRL/CRH field, leaving the other seven
// pins of the register as they were.
func (h handle) configure(field uint32) {
	r := h.port.regs.CRL
	if h.idx >= 8 {
		r = h.port.regs.CRH
	}
	regs.Field{Pos: (4 * h.idx) % 32, Width: 4}.Write(r, field)
}

// transition consumes h, then writes field through the successor.
func (h handle) transition(field uint32, m Mode) handle {
	next := h.advance(m)
	next.configure(field)
	return next
}

// set/reset through BSRR: bit n drives high, bit n+16 drives low.
func (h handle) bsrrSet()   { h.port.regs.BSRR.Set(h.bit()) }
func (h handle) bsrrReset() { h.port.regs.BSRR.Set(h.bit() << 16) }

// Port returns the pin's port.
func (h handle) Port() PortID {
	if h.port == nil {
		return 0
	}
	return h.port.id
}

// Index returns the pin number within its port.
func (h handle) Index() uint8 { return h.idx }

// ---------------------------------------------------------------------------
// Reset
// ---------------------------------------------------------------------------

// ResetPin is an unconfigured pin. Its transitions choose the mode.
type ResetPin struct{ handle }

// PushPull drives the pin as a push-pull output.
func (p ResetPin) PushPull(s Speed) OutputPin {
	return OutputPin{p.transition(outputField(drivePushPull, s), ModeOutput)}
}

// OpenDrain drives the pin as an open-drain output.
func (p ResetPin) OpenDrain(s Speed) OutputPin {
	return OutputPin{p.transition(outputField(driveOpenDrain, s), ModeOutput)}
}

// AlternatePushPull hands the pin to a peripheral, push-pull.
func (p ResetPin) AlternatePushPull(s Speed) AlternatePin {
	return AlternatePin{p.transition(outputField(driveAltPushPull, s), ModeAlternate)}
}

// AlternateOpenDrain hands the pin to a peripheral, open-drain.
func (p ResetPin) AlternateOpenDrain(s Speed) AlternatePin {
	return AlternatePin{p.transition(outputField(driveAltOpenDrain, s), ModeAlternate)}
}

// PullUp makes the pin an input pulled high. The pull direction comes from
// the ODR bit, which is seeded before the mode changes.
func (p ResetPin) PullUp() InputPin {
	next := p.advance(ModeInput)
	next.bsrrSet()
	next.configure(fieldPull)
	return InputPin{next}
}

// PullDown makes the pin an input pulled low.
func (p ResetPin) PullDown() InputPin {
	next := p.advance(ModeInput)
	next.bsrrReset()
	next.configure(fieldPull)
	return InputPin{next}
}

// Floating makes the pin a high-impedance input.
func (p ResetPin) Floating() InputPin {
	return InputPin{p.transition(fieldFloating, ModeInput)}
}

// Analog disconnects the digital input stage.
func (p ResetPin) Analog() AnalogPin {
	return AnalogPin{p.transition(fieldAnalog, ModeAnalog)}
}

// Preset loads the output latch while the pin is still unconfigured, so a
// following output transition starts driving at level.
func (p ResetPin) Preset(level bool) ResetPin {
	p.live()
	if level {
		p.bsrrSet()
	} else {
		p.bsrrReset()
	}
	return p
}

// ---------------------------------------------------------------------------
// Input
// ---------------------------------------------------------------------------

// InputPin is a digital input. It also feeds EXTI line Index().
type InputPin struct{ handle }

func (p InputPin) IsLow() bool {
	p.live()
	return p.port.regs.IDR.Get()&p.bit() == 0
}

func (p InputPin) IsHigh() bool { return !p.IsLow() }

// ChangePullUp switches a pulled input to pull-up without a mode change.
func (p InputPin) ChangePullUp() {
	p.live()
	p.bsrrSet()
}

// ChangePullDown switches a pulled input to pull-down without a mode change.
func (p InputPin) ChangePullDown() {
	p.live()
	p.bsrrReset()
}

// Reset returns the pin to Reset mode. The hardware field is left as is.
func (p InputPin) Reset() ResetPin { return ResetPin{p.advance(ModeReset)} }

// Line is the EXTI line this pin drives.
func (p InputPin) Line() uint8 { return p.idx }

// InterruptInit routes EXTI line Index() to this pin's port and selects
// the triggering edge. Routing another port to the same line later takes
// the line over.
func (p InputPin) InterruptInit(edge exti.Edge) {
	p.live()
	p.port.lines.Route(p.idx, p.port.info.exticode)
	p.port.lines.SetEdge(p.idx, edge)
}

func (p InputPin) InterruptEnable() {
	p.live()
	p.port.lines.Enable(p.idx)
}

func (p InputPin) InterruptDisable() {
	p.live()
	p.port.lines.Disable(p.idx)
}

// InterruptCheck reports whether the line is pending.
func (p InputPin) InterruptCheck() bool {
	p.live()
	return p.port.lines.Pending(p.idx)
}

// InterruptClearPendingBit acknowledges the line with a single write.
func (p InputPin) InterruptClearPendingBit() {
	p.live()
	p.port.lines.ClearPending(p.idx)
}

// InterruptGenerate raises a software event on the line.
func (p InputPin) InterruptGenerate() {
	p.live()
	p.port.lines.Generate(p.idx)
}

// ---------------------------------------------------------------------------
// Output
// ---------------------------------------------------------------------------

// OutputPin is a driven output.
type OutputPin struct{ handle }

func (p OutputPin) SetHigh() {
	p.live()
	p.bsrrSet()
}

func (p OutputPin) SetLow() {
	p.live()
	p.bsrrReset()
}

// Set drives the pin to level.
func (p OutputPin) Set(level bool) {
	if level {
		p.SetHigh()
	} else {
		p.SetLow()
	}
}

// IsSetLow reads back the output latch.
func (p OutputPin) IsSetLow() bool {
	p.live()
	return p.port.regs.ODR.Get()&p.bit() == 0
}

func (p OutputPin) IsSetHigh() bool { return !p.IsSetLow() }

// Toggle inverts the output. It reads ODR and then writes BSRR, so it races
// with another writer of the same pin.
func (p OutputPin) Toggle() {
	if p.IsSetLow() {
		p.SetHigh()
	} else {
		p.SetLow()
	}
}

func (p OutputPin) Reset() ResetPin { return ResetPin{p.advance(ModeReset)} }

// ---------------------------------------------------------------------------
// Alternate, Analog
// ---------------------------------------------------------------------------

// AlternatePin is owned by a peripheral; it only leaves the mode.
type AlternatePin struct{ handle }

func (p AlternatePin) Reset() ResetPin { return ResetPin{p.advance(ModeReset)} }

// AnalogPin feeds an analog peripheral; it only leaves the mode.
type AnalogPin struct{ handle }

func (p AnalogPin) Reset() ResetPin { return ResetPin{p.advance(ModeReset)} }

var _ exti.Source = InputPin{}
