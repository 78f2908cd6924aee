//go:build stm32f103

package exti

import (
	"device/stm32"
	"runtime/interrupt"
)

var active *Dispatcher

func handleLine(interrupt.Interrupt) {
	if d := active; d != nil {
		d.Service()
	}
}

// Install binds Service to every GPIO line vector and enables them.
func (d *Dispatcher) Install() {
	active = d
	interrupt.New(stm32.IRQ_EXTI0, handleLine).Enable()
	interrupt.New(stm32.IRQ_EXTI1, handleLine).Enable()
	interrupt.New(stm32.IRQ_EXTI2, handleLine).Enable()
	interrupt.New(stm32.IRQ_EXTI3, handleLine).Enable()
	interrupt.New(stm32.IRQ_EXTI4, handleLine).Enable()
	interrupt.New(stm32.IRQ_EXTI9_5, handleLine).Enable()
	interrupt.New(stm32.IRQ_EXTI15_10, handleLine).Enable()
}
