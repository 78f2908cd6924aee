package regs

import (
	"sync"

	"bluepill-core/x/conv"
)

// OpKind distinguishes logged register accesses.
type OpKind uint8

const (
	OpRead OpKind = iota
	OpWrite
)

// Op is one logged access. For writes Value is what the caller wrote, before
// any OnWrite hook transformed it.
type Op struct {
	Kind  OpKind
	Value uint32
}

func (o Op) String() string {
	var buf [8]byte
	k := "R "
	if o.Kind == OpWrite {
		k = "W "
	}
	return k + "0x" + string(conv.U32Hex(buf[:], o.Value))
}

// Sim is a memory-backed Reg32 for host builds and tests.
//
// OnRead may rewrite the value observed by a read (status bits that follow
// hardware state). OnWrite receives the stored and written values and
// returns what is stored (write-1-to-clear and similar semantics).
type Sim struct {
	Name    string
	OnRead  func(stored uint32) uint32
	OnWrite func(stored, written uint32) uint32

	mu    sync.Mutex
	value uint32
	ops   []Op
}

// NewSim returns a register holding reset.
func NewSim(name string, reset uint32) *Sim {
	return &Sim{Name: name, value: reset}
}

func (s *Sim) Get() uint32 {
	s.mu.Lock()
	v := s.value
	s.ops = append(s.ops, Op{Kind: OpRead, Value: v})
	hook := s.OnRead
	s.mu.Unlock()
	if hook != nil {
		v = hook(v)
	}
	return v
}

func (s *Sim) Set(value uint32) {
	s.mu.Lock()
	s.ops = append(s.ops, Op{Kind: OpWrite, Value: value})
	hook := s.OnWrite
	old := s.value
	s.mu.Unlock()
	next := value
	if hook != nil {
		next = hook(old, value)
	}
	s.mu.Lock()
	s.value = next
	s.mu.Unlock()
}

func (s *Sim) SetBits(value uint32)      { s.Set(s.Get() | value) }
func (s *Sim) ClearBits(value uint32)    { s.Set(s.Get() &^ value) }
func (s *Sim) HasBits(value uint32) bool { return s.Get()&value != 0 }

func (s *Sim) ReplaceBits(value uint32, mask uint32, pos uint8) {
	s.Set(s.Get()&^(mask<<pos) | value<<pos)
}

// Peek returns the stored value without logging or hooks.
func (s *Sim) Peek() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Poke stores v without logging or hooks (test and model side).
func (s *Sim) Poke(v uint32) {
	s.mu.Lock()
	s.value = v
	s.mu.Unlock()
}

// Update applies fn to the stored value without logging or hooks.
func (s *Sim) Update(fn func(uint32) uint32) {
	s.mu.Lock()
	s.value = fn(s.value)
	s.mu.Unlock()
}

// Ops returns a copy of the access log.
func (s *Sim) Ops() []Op {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Op(nil), s.ops...)
}

// Writes returns the values written, in order.
func (s *Sim) Writes() []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var w []uint32
	for _, op := range s.ops {
		if op.Kind == OpWrite {
			w = append(w, op.Value)
		}
	}
	return w
}

// ResetLog discards the access log.
func (s *Sim) ResetLog() {
	s.mu.Lock()
	s.ops = s.ops[:0]
	s.mu.Unlock()
}
