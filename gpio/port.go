// Package gpio is the pin state machine of the STM32F1 GPIO ports.
//
// A pin is held through a handle typed by its mode: ResetPin, InputPin,
// OutputPin, AlternatePin or AnalogPin. Only the operations valid in a mode
// exist on its type. A transition consumes the handle it is called on and
// returns a handle of the new mode; the consumed handle is stale from then
// on and any use of it panics with errcode.StalePin.
//
// Mode changes rewrite the pin's 4-bit field in CRL (pins 0..7) or CRH
// (pins 8..15) as one critical section. Output and pull changes go through
// BSRR, which sets or resets single bits without a read.
package gpio

import (
	"sync"

	"bluepill-core/errcode"
	"bluepill-core/exti"
	"bluepill-core/periph"
	"bluepill-core/x/conv"
	"bluepill-core/x/logx"
)

// PortID names a port.
type PortID uint8

const (
	PortA PortID = iota
	PortB
	PortC
)

// PinsPerPort is the number of pins in a port.
const PinsPerPort = 16

// portSpec is one row of the port table.
type portSpec struct {
	letter   byte
	enable   uint32 // RCC_APB2ENR bit
	exticode uint8  // AFIO EXTICR selector value
}

var ports = [periph.NumPorts]portSpec{
	PortA: {letter: 'A', enable: periph.RCC_APB2ENR_IOPAEN, exticode: 0},
	PortB: {letter: 'B', enable: periph.RCC_APB2ENR_IOPBEN, exticode: 1},
	PortC: {letter: 'C', enable: periph.RCC_APB2ENR_IOPCEN, exticode: 2},
}

func (id PortID) String() string {
	if int(id) < len(ports) {
		return "P" + string(ports[id].letter)
	}
	return "P?"
}

// ParsePin maps "PA5", "PC13" and similar to a port and index.
func ParsePin(name string) (PortID, uint8, error) {
	bad := &errcode.E{C: errcode.UnknownPin, Op: "gpio.parse", Msg: name}
	if len(name) < 3 || len(name) > 4 || name[0] != 'P' {
		return 0, 0, bad
	}
	id := -1
	for i, p := range ports {
		if p.letter == name[1] {
			id = i
		}
	}
	if id < 0 {
		return 0, 0, bad
	}
	n := 0
	for _, c := range name[2:] {
		if c < '0' || c > '9' {
			return 0, 0, bad
		}
		n = n*10 + int(c-'0')
	}
	if n >= PinsPerPort || (len(name) == 4 && name[2] == '0') {
		return 0, 0, bad
	}
	return PortID(id), uint8(n), nil
}

// ClockGate enables peripheral clocks on APB2.
type ClockGate interface {
	EnableAPB2(mask uint32)
}

// Bank is the process-wide handle on the GPIO ports.
type Bank struct {
	regs  [periph.NumPorts]*periph.GPIO
	gate  ClockGate
	lines *exti.Controller

	mu    sync.Mutex
	ports [periph.NumPorts]*Port
}

// NewBank wraps the port registers of f. lines backs the interrupt
// operations of input pins.
func NewBank(f *periph.File, gate ClockGate, lines *exti.Controller) *Bank {
	return &Bank{regs: f.GPIO, gate: gate, lines: lines}
}

// Enable clocks port id and returns it. Calling it again returns the same
// *Port without touching hardware.
func (b *Bank) Enable(id PortID) (*Port, error) {
	if int(id) >= len(ports) {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "gpio.enable", Msg: "no such port"}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if p := b.ports[id]; p != nil {
		return p, nil
	}
	b.gate.EnableAPB2(ports[id].enable)
	p := &Port{id: id, info: ports[id], regs: b.regs[id], lines: b.lines}
	for i := range p.pins {
		p.pins[i].mode = ModeReset
	}
	b.ports[id] = p
	logx.Debug("gpio port enabled", "port", id.String())
	return p, nil
}

// Port is an enabled GPIO port.
type Port struct {
	id    PortID
	info  portSpec
	regs  *periph.GPIO
	lines *exti.Controller

	mu   sync.Mutex
	pins [PinsPerPort]pinState
}

type pinState struct {
	gen   uint32
	mode  Mode
	taken bool
}

func (p *Port) ID() PortID { return p.id }

// Pin hands out pin i in Reset mode. Each pin is handed out once; later
// handles come from transitions.
func (p *Port) Pin(i uint8) (ResetPin, error) {
	if i >= PinsPerPort {
		return ResetPin{}, &errcode.E{C: errcode.UnknownPin, Op: "gpio.pin", Msg: pinName(p.info.letter, i)}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	st := &p.pins[i]
	if st.taken {
		return ResetPin{}, &errcode.E{C: errcode.PinInUse, Op: "gpio.pin", Msg: pinName(p.info.letter, i)}
	}
	st.taken = true
	return ResetPin{handle{port: p, idx: i, gen: st.gen}}, nil
}

// Mode reports the live mode of pin i.
func (p *Port) Mode(i uint8) (Mode, error) {
	if i >= PinsPerPort {
		return ModeReset, &errcode.E{C: errcode.UnknownPin, Op: "gpio.mode", Msg: pinName(p.info.letter, i)}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pins[i].mode, nil
}

func pinName(letter byte, i uint8) string {
	var buf [3]byte
	return "P" + string(letter) + string(conv.Utoa(buf[:], uint64(i)))
}
