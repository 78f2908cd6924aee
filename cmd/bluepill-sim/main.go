//go:build !baremetal

// bluepill-sim runs a board configuration against the simulated register
// file and offers a shell to drive its pins.
package main

import (
	"errors"
	"flag"
	"io"
	"os"

	"github.com/chzyer/readline"

	"bluepill-core/config"
	"bluepill-core/x/logx"
)

const defaultBoard = `{
  "clock": {"hse_hz": 8000000, "pll_mul": 9, "apb1_div": 2, "adc_div": 6},
  "pins": [
    {"name": "PC13", "mode": "output", "drive": "open_drain", "initial": true},
    {"name": "PA0", "mode": "input", "pull": "up", "irq": {"edge": "both", "enable": true}},
    {"name": "PA9", "mode": "alternate", "speed": "50mhz"},
    {"name": "PA1", "mode": "analog"}
  ]
}`

func main() {
	path := flag.String("config", "", "board JSON file (default: Blue Pill at 72 MHz)")
	flag.Parse()

	var src any = defaultBoard
	if *path != "" {
		raw, err := os.ReadFile(*path)
		if err != nil {
			logx.Error("read config", "err", err)
			os.Exit(1)
		}
		src = raw
	}
	cfg, err := config.Decode(src)
	if err != nil {
		logx.Error("decode config", "err", err)
		os.Exit(1)
	}
	sh, err := newShell(cfg, os.Stdout)
	if err != nil {
		logx.Error("bring-up", "err", err)
		os.Exit(1)
	}
	defer sh.close()

	items := make([]readline.PrefixCompleterInterface, 0, len(commands))
	for _, c := range commands {
		items = append(items, readline.PcItem(c))
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "bluepill> ",
		EOFPrompt:       "exit",
		InterruptPrompt: "^C",
		AutoComplete:    readline.NewPrefixCompleter(items...),
	})
	if err != nil {
		logx.Error("readline", "err", err)
		os.Exit(1)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if len(line) == 0 {
				return
			}
			continue
		} else if errors.Is(err, io.EOF) {
			return
		}
		if err := sh.exec(line); err != nil {
			if err == errExit {
				return
			}
			logx.Warn("command failed", "err", err)
		}
	}
}
