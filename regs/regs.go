// Package regs is the register file abstraction every peripheral driver in
// this module goes through.
//
// Reg32 is exactly the method set of TinyGo's *volatile.Register32, so on
// hardware the memory-mapped registers are used directly; on the host Sim
// stands in for them.
package regs

import "bluepill-core/x/mathx"

// Reg32 is one 32-bit hardware register.
type Reg32 interface {
	Get() uint32
	Set(value uint32)
	SetBits(value uint32)
	ClearBits(value uint32)
	HasBits(value uint32) bool
	ReplaceBits(value uint32, mask uint32, pos uint8)
}

// Field is a bit-field inside a register: Width bits starting at Pos.
type Field struct {
	Pos   uint8
	Width uint8
}

// Mask returns the right-aligned mask of the field.
func (f Field) Mask() uint32 { return mathx.Mask[uint32](f.Width) }

// Read extracts the field from r.
func (f Field) Read(r Reg32) uint32 { return (r.Get() >> f.Pos) & f.Mask() }

// Write replaces the field in r with v as one critical section.
func (f Field) Write(r Reg32, v uint32) {
	Atomic(func() { r.ReplaceBits(v&f.Mask(), f.Mask(), f.Pos) })
}

// In places v at the field position (for composing multi-field writes).
func (f Field) In(v uint32) uint32 { return (v & f.Mask()) << f.Pos }

// Modify clears then sets bits of r as one critical section.
func Modify(r Reg32, clear, set uint32) {
	Atomic(func() { r.Set(r.Get()&^clear | set) })
}

// SetBits sets bits of r as one critical section.
func SetBits(r Reg32, bits uint32) { Atomic(func() { r.SetBits(bits) }) }

// ClearBits clears bits of r as one critical section.
func ClearBits(r Reg32, bits uint32) { Atomic(func() { r.ClearBits(bits) }) }
