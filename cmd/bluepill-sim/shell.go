//go:build !baremetal

package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/google/shlex"

	"bluepill-core/board"
	"bluepill-core/config"
	"bluepill-core/errcode"
	"bluepill-core/exti"
	"bluepill-core/periph"
	"bluepill-core/regs"
)

// eventWait bounds how long a drive command waits for the worker.
const eventWait = time.Second

var commands = []string{"clocks", "pins", "high", "low", "toggle", "read", "drive", "regs", "help", "exit"}

type shell struct {
	sim     *periph.Sim
	b       *board.Board
	d       *exti.Dispatcher
	cfg     config.Board
	watched map[string]bool
	out     io.Writer
	cancel  context.CancelFunc
}

// errExit ends the loop.
var errExit = &errcode.E{C: errcode.OK, Op: "shell", Msg: "exit"}

func newShell(cfg config.Board, out io.Writer) (*shell, error) {
	sim := periph.NewSim()
	b, err := board.Bring(sim.File, cfg)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &shell{sim: sim, b: b, d: exti.NewDispatcher(b.Lines, 0, 0), cfg: cfg, watched: map[string]bool{}, out: out, cancel: cancel}
	s.d.Start(ctx)
	for _, p := range cfg.Pins {
		if p.IRQ == nil || !p.IRQ.Enable {
			continue
		}
		if _, err := s.d.Watch(b.Input[p.Name], exti.ParseEdge(p.IRQ.Edge), 0); err != nil {
			cancel()
			return nil, err
		}
		s.watched[p.Name] = true
	}
	return s, nil
}

func (s *shell) close() {
	s.cancel()
	<-s.d.Done()
}

func (s *shell) exec(line string) error {
	args, err := shlex.Split(line)
	if err != nil {
		return &errcode.E{C: errcode.InvalidParams, Op: "shell", Err: err}
	}
	if len(args) == 0 {
		return nil
	}
	switch cmd, rest := args[0], args[1:]; cmd {
	case "clocks":
		c, realized := s.b.Clock.Clocks()
		fmt.Fprintf(s.out, "source=%s sysclk=%d pclk1=%d pclk2=%d adcclk=%d realized=%v\n",
			c.Source, c.SYSCLK, c.PCLK1, c.PCLK2, c.ADCCLK, realized)
	case "pins":
		names := make([]string, 0, len(s.cfg.Pins))
		for _, p := range s.cfg.Pins {
			names = append(names, p.Name)
		}
		sort.Strings(names)
		for _, n := range names {
			m, _ := s.b.Pin(n)
			fmt.Fprintf(s.out, "%-5s %s\n", n, m)
		}
	case "high", "low", "toggle":
		if len(rest) != 1 {
			return usage(cmd + " PIN")
		}
		out, ok := s.b.Output[rest[0]]
		if !ok {
			return notA(rest[0], "output")
		}
		switch cmd {
		case "high":
			out.SetHigh()
		case "low":
			out.SetLow()
		default:
			out.Toggle()
		}
		fmt.Fprintf(s.out, "%s=%d\n", rest[0], level(out.IsSetHigh()))
	case "read":
		if len(rest) != 1 {
			return usage("read PIN")
		}
		if in, ok := s.b.Input[rest[0]]; ok {
			fmt.Fprintf(s.out, "%s=%d\n", rest[0], level(in.IsHigh()))
		} else if out, ok := s.b.Output[rest[0]]; ok {
			fmt.Fprintf(s.out, "%s=%d (latch)\n", rest[0], level(out.IsSetHigh()))
		} else {
			return notA(rest[0], "input or output")
		}
	case "drive":
		if len(rest) != 2 || (rest[1] != "0" && rest[1] != "1") {
			return usage("drive PIN 0|1")
		}
		return s.drive(rest[0], rest[1] == "1")
	case "regs":
		s.dump()
	case "help":
		fmt.Fprintln(s.out, "commands:", commands)
	case "exit", "quit":
		return errExit
	default:
		return &errcode.E{C: errcode.Unsupported, Op: "shell", Msg: cmd}
	}
	return nil
}

// drive changes the external level of an input pin. A change is presented
// to the line's edge detector and, if latched, serviced as the interrupt
// handler would.
func (s *shell) drive(name string, high bool) error {
	in, ok := s.b.Input[name]
	if !ok {
		return notA(name, "input")
	}
	was := in.IsHigh()
	s.sim.SetInput(int(in.Port()), int(in.Index()), high)
	if was == high {
		return nil
	}
	s.sim.Edge(int(in.Line()), high)
	if !in.InterruptCheck() {
		return nil
	}
	s.d.Service()
	if !s.watched[name] {
		fmt.Fprintf(s.out, "line %d masked, not watched\n", in.Line())
		return nil
	}
	select {
	case ev := <-s.d.Events():
		fmt.Fprintf(s.out, "event %s line=%d %s level=%d\n", ev.Pin, ev.Line, ev.Edge, level(ev.Level))
	case <-time.After(eventWait):
		fmt.Fprintf(s.out, "line %d: no event\n", in.Line())
	}
	return nil
}

func (s *shell) dump() {
	row := func(name string, r *regs.Sim) {
		fmt.Fprintf(s.out, "%-8s %-8s 0x%08X\n", name, r.Name, r.Peek())
	}
	for i, g := range s.sim.GPIO {
		port := "GPIO" + string(rune('A'+i))
		for _, r := range []*regs.Sim{g.CRL, g.CRH, g.IDR, g.ODR} {
			row(port, r)
		}
	}
	for _, r := range s.sim.AFIO {
		row("AFIO", r)
	}
	e := s.sim.EXTI
	for _, r := range []*regs.Sim{e.IMR, e.RTSR, e.FTSR, e.PR} {
		row("EXTI", r)
	}
	c := s.sim.RCC
	for _, r := range []*regs.Sim{c.CR, c.CFGR, c.APB2ENR} {
		row("RCC", r)
	}
	row("FLASH", s.sim.FLASH)
}

func level(b bool) int {
	if b {
		return 1
	}
	return 0
}

func usage(u string) error {
	return &errcode.E{C: errcode.InvalidParams, Op: "shell", Msg: "usage: " + u}
}

func notA(name, what string) error {
	return &errcode.E{C: errcode.UnknownPin, Op: "shell", Msg: name + " is not a configured " + what}
}
