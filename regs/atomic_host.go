//go:build !baremetal

package regs

import "sync"

var critical sync.Mutex

// Atomic runs fn with every other Atomic section excluded. fn must not
// call Atomic again.
func Atomic(fn func()) {
	critical.Lock()
	defer critical.Unlock()
	fn()
}
