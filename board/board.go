// Package board brings a chip up from a config.Board: clock tree first,
// then the ports the pins live on, then each pin's transition and line.
package board

import (
	"bluepill-core/config"
	"bluepill-core/errcode"
	"bluepill-core/exti"
	"bluepill-core/gpio"
	"bluepill-core/periph"
	"bluepill-core/rcc"
	"bluepill-core/x/logx"
)

// Board holds the controllers and the configured pins by name.
type Board struct {
	Clock  *rcc.Controller
	Lines  *exti.Controller
	GPIO   *gpio.Bank
	Clocks rcc.Clocks

	Output    map[string]gpio.OutputPin
	Input     map[string]gpio.InputPin
	Alternate map[string]gpio.AlternatePin
	Analog    map[string]gpio.AnalogPin
}

// Bring configures f as cfg describes. The configuration is validated and
// every pin name resolved before the clock tree is touched; a failure after
// that point leaves the pins configured so far in place.
func Bring(f *periph.File, cfg config.Board) (*Board, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	type target struct {
		pin  config.Pin
		port gpio.PortID
		idx  uint8
	}
	targets := make([]target, 0, len(cfg.Pins))
	for _, p := range cfg.Pins {
		id, i, err := gpio.ParsePin(p.Name)
		if err != nil {
			return nil, pinErr(p.Name, err)
		}
		targets = append(targets, target{pin: p, port: id, idx: i})
	}

	clk := rcc.New(f.RCC, f.FLASH, rcc.F103)
	lines := exti.New(f.EXTI, f.AFIO, clk)
	b := &Board{
		Clock:     clk,
		Lines:     lines,
		GPIO:      gpio.NewBank(f, clk, lines),
		Output:    map[string]gpio.OutputPin{},
		Input:     map[string]gpio.InputPin{},
		Alternate: map[string]gpio.AlternatePin{},
		Analog:    map[string]gpio.AnalogPin{},
	}

	clocks, err := clk.Synthesize(cfg.Clock.Builder())
	if err != nil {
		return nil, err
	}
	b.Clocks = clocks

	for _, t := range targets {
		port, err := b.GPIO.Enable(t.port)
		if err != nil {
			return nil, pinErr(t.pin.Name, err)
		}
		rp, err := port.Pin(t.idx)
		if err != nil {
			return nil, pinErr(t.pin.Name, err)
		}
		b.apply(rp, t.pin)
	}
	logx.Info("board up", "pins", len(targets), "sysclk", clocks.SYSCLK)
	return b, nil
}

func (b *Board) apply(rp gpio.ResetPin, p config.Pin) {
	switch p.Mode {
	case "output":
		rp = rp.Preset(p.Initial)
		if p.Drive == "open_drain" {
			b.Output[p.Name] = rp.OpenDrain(speed(p.Speed))
		} else {
			b.Output[p.Name] = rp.PushPull(speed(p.Speed))
		}
	case "alternate":
		if p.Drive == "open_drain" {
			b.Alternate[p.Name] = rp.AlternateOpenDrain(speed(p.Speed))
		} else {
			b.Alternate[p.Name] = rp.AlternatePushPull(speed(p.Speed))
		}
	case "input":
		var in gpio.InputPin
		switch p.Pull {
		case "up":
			in = rp.PullUp()
		case "down":
			in = rp.PullDown()
		default:
			in = rp.Floating()
		}
		if p.IRQ != nil {
			in.InterruptInit(exti.ParseEdge(p.IRQ.Edge))
			in.InterruptClearPendingBit()
			if p.IRQ.Enable {
				in.InterruptEnable()
			}
		}
		b.Input[p.Name] = in
	case "analog":
		b.Analog[p.Name] = rp.Analog()
	}
	logx.Debug("pin configured", "pin", p.Name, "mode", p.Mode)
}

func pinErr(name string, err error) error {
	return &errcode.E{C: errcode.Of(err), Op: "board." + name, Err: err}
}

// speed defaults to the slowest slew class.
func speed(s string) gpio.Speed {
	switch s {
	case "10mhz":
		return gpio.Speed10MHz
	case "50mhz":
		return gpio.Speed50MHz
	default:
		return gpio.Speed2MHz
	}
}

// Pin looks up a configured pin of any mode by name and reports its mode.
func (b *Board) Pin(name string) (gpio.Mode, error) {
	switch {
	case has(b.Output, name):
		return gpio.ModeOutput, nil
	case has(b.Input, name):
		return gpio.ModeInput, nil
	case has(b.Alternate, name):
		return gpio.ModeAlternate, nil
	case has(b.Analog, name):
		return gpio.ModeAnalog, nil
	}
	return gpio.ModeReset, &errcode.E{C: errcode.UnknownPin, Op: "board.pin", Msg: name}
}

func has[V any](m map[string]V, k string) bool {
	_, ok := m[k]
	return ok
}
