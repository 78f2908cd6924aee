//go:build baremetal

package regs

import "runtime/interrupt"

// Atomic runs fn with interrupts masked, so a read-modify-write cannot be
// torn by a handler touching the same register. fn must be short.
func Atomic(fn func()) {
	state := interrupt.Disable()
	fn()
	interrupt.Restore(state)
}
