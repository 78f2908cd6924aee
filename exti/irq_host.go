//go:build !stm32f103

package exti

// Install is a no-op off-target; call Service directly.
func (d *Dispatcher) Install() {}
