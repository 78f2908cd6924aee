package exti

import (
	"context"
	"sync"
	"testing"
	"time"

	"bluepill-core/errcode"
	"bluepill-core/periph"
)

// fakeSource feeds a line from port code 1 through a real Controller.
type fakeSource struct {
	mu   sync.Mutex
	ctl  *Controller
	line uint8
	high bool
}

func (f *fakeSource) Line() uint8          { return f.line }
func (f *fakeSource) IsHigh() bool         { f.mu.Lock(); defer f.mu.Unlock(); return f.high }
func (f *fakeSource) set(v bool)           { f.mu.Lock(); f.high = v; f.mu.Unlock() }
func (f *fakeSource) InterruptInit(e Edge) { f.ctl.Route(f.line, 1); f.ctl.SetEdge(f.line, e) }
func (f *fakeSource) InterruptEnable()     { f.ctl.Enable(f.line) }
func (f *fakeSource) InterruptDisable()    { f.ctl.Disable(f.line) }
func (f *fakeSource) String() string       { return "PB" + string(rune('0'+f.line)) }

func expectEvent(t *testing.T, d *Dispatcher, edge Edge, level bool) Event {
	t.Helper()
	select {
	case ev := <-d.Events():
		if ev.Edge != edge || ev.Level != level {
			t.Fatalf("event = %+v, want edge %v level %v", ev, edge, level)
		}
		return ev
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("timeout waiting for %v event", edge)
	}
	return Event{}
}

func expectNone(t *testing.T, d *Dispatcher) {
	t.Helper()
	select {
	case ev := <-d.Events():
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(30 * time.Millisecond):
	}
}

func TestDispatcherBothEdges(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := periph.NewSim()
	ctl := New(s.File.EXTI, s.File.AFIO, &gateRecorder{})
	d := NewDispatcher(ctl, 8, 8)
	d.Start(ctx)

	src := &fakeSource{ctl: ctl, line: 5}
	stop, err := d.Watch(src, RisingFalling, 0)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if ctl.Routed(5) != 1 || ctl.Edge(5) != RisingFalling || !ctl.Enabled(5) {
		t.Fatal("line not prepared by Watch")
	}

	src.set(true)
	s.Edge(5, true)
	d.Service()
	ev := expectEvent(t, d, Rising, true)
	if ev.Pin != "PB5" || ev.Line != 5 {
		t.Fatalf("event = %+v", ev)
	}
	if ctl.Pending(5) {
		t.Fatal("Service left line pending")
	}

	src.set(false)
	s.Edge(5, false)
	d.Service()
	expectEvent(t, d, Falling, false)

	stop()
	if ctl.Enabled(5) {
		t.Fatal("cancel left line unmasked")
	}
	s.EXTI.PR.Update(func(v uint32) uint32 { return v | 1<<5 })
	d.Service()
	expectNone(t, d)
	if !ctl.Pending(5) {
		t.Fatal("unwatched line was acknowledged")
	}
}

func TestDispatcherDebounce(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := periph.NewSim()
	ctl := New(s.File.EXTI, s.File.AFIO, &gateRecorder{})
	d := NewDispatcher(ctl, 8, 8)
	d.Start(ctx)

	src := &fakeSource{ctl: ctl, line: 2}
	stop, err := d.Watch(src, Falling, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer stop()

	s.Edge(2, false)
	d.Service()
	expectEvent(t, d, Falling, false)

	// Bounce inside the window is suppressed.
	s.Edge(2, false)
	d.Service()
	expectNone(t, d)

	time.Sleep(60 * time.Millisecond)
	s.Edge(2, false)
	d.Service()
	expectEvent(t, d, Falling, false)
}

func TestDispatcherSoftwareTrigger(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := periph.NewSim()
	ctl := New(s.File.EXTI, s.File.AFIO, &gateRecorder{})
	d := NewDispatcher(ctl, 8, 8)
	d.Start(ctx)

	src := &fakeSource{ctl: ctl, line: 11}
	stop, err := d.Watch(src, Rising, 0)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer stop()

	ctl.Generate(11)
	d.Service()
	expectEvent(t, d, Rising, false)
	if s.EXTI.SWIER.Peek() != 0 {
		t.Fatal("acknowledge did not clear the software event")
	}
}

func TestDispatcherLineOwnership(t *testing.T) {
	s := periph.NewSim()
	ctl := New(s.File.EXTI, s.File.AFIO, &gateRecorder{})
	d := NewDispatcher(ctl, 1, 1)

	a := &fakeSource{ctl: ctl, line: 4}
	stop, err := d.Watch(a, Rising, 0)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if _, err := d.Watch(&fakeSource{ctl: ctl, line: 4}, Rising, 0); errcode.Of(err) != errcode.Busy {
		t.Fatalf("second watch err = %v, want busy", err)
	}
	stop()
	stop() // idempotent
	stop2, err := d.Watch(&fakeSource{ctl: ctl, line: 4}, Falling, 0)
	if err != nil {
		t.Fatalf("re-watch: %v", err)
	}
	stop2()

	if _, err := d.Watch(a, 0, 0); errcode.Of(err) != errcode.InvalidParams {
		t.Fatalf("no-edge err = %v", err)
	}
}

func TestDispatcherCountsDrops(t *testing.T) {
	s := periph.NewSim()
	ctl := New(s.File.EXTI, s.File.AFIO, &gateRecorder{})
	d := NewDispatcher(ctl, 1, 1) // worker not started: queue fills

	src := &fakeSource{ctl: ctl, line: 0}
	stop, err := d.Watch(src, Rising, 0)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer stop()

	for i := 0; i < 3; i++ {
		s.Edge(0, true)
		d.Service()
	}
	if d.Drops() != 2 {
		t.Fatalf("drops = %d, want 2", d.Drops())
	}
}

func TestDispatcherStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := periph.NewSim()
	d := NewDispatcher(New(s.File.EXTI, s.File.AFIO, &gateRecorder{}), 0, 0)
	d.Start(ctx)
	cancel()
	select {
	case <-d.Done():
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestServiceMasksUnwatchedLines(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := periph.NewSim()
	ctl := New(s.File.EXTI, s.File.AFIO, &gateRecorder{})
	d := NewDispatcher(ctl, 8, 8)
	d.Start(ctx)

	// Line 7 shares a vector with watched line 5; line 3 is only polled.
	src := &fakeSource{ctl: ctl, line: 5}
	stop, err := d.Watch(src, Rising, 0)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer stop()
	ctl.SetEdge(7, Rising)
	ctl.Enable(7)
	s.EXTI.PR.Update(func(v uint32) uint32 { return v | 1<<3 })

	s.Edge(7, true)
	d.Service()
	if ctl.Pending(7) || ctl.Enabled(7) {
		t.Fatalf("unwatched line left pending=%v enabled=%v", ctl.Pending(7), ctl.Enabled(7))
	}
	if d.Orphans() != 1 {
		t.Fatalf("orphans = %d", d.Orphans())
	}
	if !ctl.Pending(3) {
		t.Fatal("masked pending line was acknowledged")
	}
	expectNone(t, d)

	// A second pass finds nothing to do on line 7.
	d.Service()
	if d.Orphans() != 1 {
		t.Fatalf("orphans after second pass = %d", d.Orphans())
	}

	src.set(true)
	s.Edge(5, true)
	d.Service()
	expectEvent(t, d, Rising, true)
}

func TestServiceRunsAlongsideWatchChanges(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := periph.NewSim()
	ctl := New(s.File.EXTI, s.File.AFIO, &gateRecorder{})
	d := NewDispatcher(ctl, 64, 64)
	d.Start(ctx)
	go func() {
		for {
			select {
			case <-d.Events():
			case <-ctx.Done():
				return
			}
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			stop, err := d.Watch(&fakeSource{ctl: ctl, line: 1}, Rising, 0)
			if err != nil {
				t.Errorf("Watch: %v", err)
				return
			}
			stop()
		}
	}()
	for {
		select {
		case <-done:
			return
		default:
			s.EXTI.PR.Update(func(v uint32) uint32 { return v | 1<<1 })
			d.Service()
		}
	}
}
