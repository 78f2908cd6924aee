package exti

import (
	"context"
	"sync/atomic"
	"time"

	"bluepill-core/errcode"
	"bluepill-core/periph"
	"bluepill-core/x/logx"
)

// Source is an input pin able to feed a line.
type Source interface {
	Line() uint8
	IsHigh() bool
	InterruptInit(edge Edge)
	InterruptEnable()
	InterruptDisable()
	String() string
}

// Event is delivered from the worker to consumers.
type Event struct {
	Pin   string
	Line  uint8
	Level bool // sampled in the handler
	Edge  Edge // Rising or Falling
	TS    time.Time
}

// Dispatcher moves line interrupts out of handler context. Service runs in
// the handler and must not block; Start runs the worker that debounces and
// publishes Events.
//
// The watch table is a set of atomic pointers: the handler reads it without
// a lock, and main-line Watch and cancel swap entries with compare-and-swap.
type Dispatcher struct {
	ctl *Controller

	isrQ    chan isrEvent
	outQ    chan Event
	stopped chan struct{}

	watches [periph.NumLines]atomic.Pointer[watch]

	drops   uint32 // handler-side drops
	orphans uint32 // unwatched lines masked by the handler
}

type isrEvent struct {
	line   uint8
	level  bool
	orphan bool // unwatched line masked by the handler
}

type watch struct {
	src       Source
	name      string
	edge      Edge
	debounce  time.Duration
	lastLevel bool
	lastEvent time.Time
}

// NewDispatcher sizes the handler and output queues (64 each when <= 0).
func NewDispatcher(ctl *Controller, isrBuf, outBuf int) *Dispatcher {
	if isrBuf <= 0 {
		isrBuf = 64
	}
	if outBuf <= 0 {
		outBuf = 64
	}
	return &Dispatcher{
		ctl:     ctl,
		isrQ:    make(chan isrEvent, isrBuf),
		outQ:    make(chan Event, outBuf),
		stopped: make(chan struct{}),
	}
}

// Start runs the worker until ctx ends.
func (d *Dispatcher) Start(ctx context.Context) {
	go func() {
		defer close(d.stopped)
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-d.isrQ:
				d.handle(ev)
			}
		}
	}()
}

// Done is closed once the worker has exited.
func (d *Dispatcher) Done() <-chan struct{} { return d.stopped }

func (d *Dispatcher) Events() <-chan Event { return d.outQ }

// Watch routes src's line with edge, unmasks it and delivers its events.
// A line carries one watch; the returned func masks the line and drops it.
func (d *Dispatcher) Watch(src Source, edge Edge, debounce time.Duration) (func(), error) {
	if edge == 0 {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "exti.watch", Msg: "no edge"}
	}
	line := src.Line()
	w := &watch{
		src:       src,
		name:      src.String(),
		edge:      edge,
		debounce:  debounce,
		lastLevel: src.IsHigh(),
	}

	if !d.watches[line].CompareAndSwap(nil, w) {
		held := "another pin"
		if cur := d.watches[line].Load(); cur != nil {
			held = cur.name
		}
		return nil, &errcode.E{C: errcode.Busy, Op: "exti.watch", Msg: "line held by " + held}
	}

	src.InterruptInit(edge)
	d.ctl.ClearPending(line)
	src.InterruptEnable()

	return func() {
		if d.watches[line].Load() == w {
			src.InterruptDisable()
			d.watches[line].CompareAndSwap(w, nil)
		}
	}, nil
}

// Service is the interrupt handler body for any GPIO line vector. It
// acknowledges each watched pending line with a single write and queues a
// level sample. A pending line that is unmasked but unwatched would re-enter
// the handler forever, so it is masked and acknowledged. Pending lines that
// are masked are left for polling.
func (d *Dispatcher) Service() {
	pending := d.ctl.PendingMask() & d.ctl.EnabledMask()
	if pending == 0 {
		return
	}
	for line := uint8(0); line < periph.NumLines; line++ {
		if pending&(1<<line) == 0 {
			continue
		}
		w := d.watches[line].Load()
		if w == nil {
			d.ctl.Disable(line)
			d.ctl.ClearPending(line)
			atomic.AddUint32(&d.orphans, 1)
			select {
			case d.isrQ <- isrEvent{line: line, orphan: true}:
			default:
			}
			continue
		}
		d.ctl.ClearPending(line)
		select {
		case d.isrQ <- isrEvent{line: line, level: w.src.IsHigh()}:
		default:
			atomic.AddUint32(&d.drops, 1)
		}
	}
}

func (d *Dispatcher) handle(ev isrEvent) {
	if ev.orphan {
		logx.Warn("exti line masked: pending without a watch", "line", int(ev.line))
		return
	}
	w := d.watches[ev.line].Load()
	if w == nil {
		return
	}
	now := time.Now()

	if !w.lastEvent.IsZero() && now.Sub(w.lastEvent) < w.debounce {
		return
	}

	var e Edge
	switch w.edge {
	case RisingFalling:
		switch {
		case !w.lastLevel && ev.level:
			e = Rising
		case w.lastLevel && !ev.level:
			e = Falling
		}
	default:
		// Single-edge lines only latch on their edge.
		e = w.edge
	}

	if e != 0 {
		select {
		case d.outQ <- Event{Pin: w.name, Line: ev.line, Level: ev.level, Edge: e, TS: now}:
		default:
			logx.Warn("exti event dropped", "pin", w.name)
		}
	}

	w.lastLevel = ev.level
	w.lastEvent = now
}

// Drops counts handler-side queue overflows.
func (d *Dispatcher) Drops() uint32 { return atomic.LoadUint32(&d.drops) }

// Orphans counts unwatched lines the handler found unmasked and masked.
func (d *Dispatcher) Orphans() uint32 { return atomic.LoadUint32(&d.orphans) }
