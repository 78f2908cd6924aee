//go:build stm32f103

// bluepill-demo brings a Blue Pill up at 72 MHz, blinks the PC13 LED as a
// heartbeat and logs edges on the PA0 button.
package main

import (
	"context"
	"time"

	"bluepill-core/board"
	"bluepill-core/config"
	"bluepill-core/exti"
	"bluepill-core/periph"
	"bluepill-core/x/logx"
)

const boardJSON = `{
  "clock": {"hse_hz": 8000000, "pll_mul": 9, "apb1_div": 2, "adc_div": 6},
  "pins": [
    {"name": "PC13", "mode": "output", "drive": "open_drain", "initial": true},
    {"name": "PA0", "mode": "input", "pull": "up"}
  ]
}`

const heartbeat = 500 * time.Millisecond

func main() {
	cfg, err := config.Decode(boardJSON)
	if err != nil {
		logx.Error("config", "err", err)
		return
	}
	b, err := board.Bring(periph.Device(), cfg)
	if err != nil {
		logx.Error("bring-up failed", "err", err)
		return
	}

	d := exti.NewDispatcher(b.Lines, 16, 16)
	d.Start(context.Background())
	d.Install()
	if _, err := d.Watch(b.Input["PA0"], exti.RisingFalling, 20*time.Millisecond); err != nil {
		logx.Error("watch", "err", err)
	}

	led := b.Output["PC13"]
	tick := time.NewTicker(heartbeat)
	defer tick.Stop()

	for {
		select {
		case <-tick.C:
			led.Toggle()
		case ev := <-d.Events():
			logx.Info("button", "pin", ev.Pin, "edge", ev.Edge.String(), "drops", d.Drops())
		}
	}
}
