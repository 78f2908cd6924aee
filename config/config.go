// Package config describes a board bring-up in JSON: the clock tree and the
// pins to configure.
package config

import (
	"encoding/json"

	"bluepill-core/errcode"
	"bluepill-core/rcc"
)

// Board is the top-level bring-up document.
type Board struct {
	Clock Clock `json:"clock"`
	Pins  []Pin `json:"pins"`
}

// Clock mirrors the rcc.Config builder. Zero fields keep the builder's
// defaults (HSI, no PLL, undivided buses).
type Clock struct {
	HSEHz     uint32 `json:"hse_hz,omitempty"`
	HSEBypass bool   `json:"hse_bypass,omitempty"`
	PLLMul    uint8  `json:"pll_mul,omitempty"`
	APB1Div   uint8  `json:"apb1_div,omitempty"`
	APB2Div   uint8  `json:"apb2_div,omitempty"`
	ADCDiv    uint8  `json:"adc_div,omitempty"`
}

// Pin is one pin transition.
type Pin struct {
	Name    string `json:"name"`            // "PA5", "PC13"
	Mode    string `json:"mode"`            // output | alternate | input | analog
	Drive   string `json:"drive,omitempty"` // push_pull | open_drain
	Speed   string `json:"speed,omitempty"` // 2mhz | 10mhz | 50mhz
	Pull    string `json:"pull,omitempty"`  // up | down | none
	Initial bool   `json:"initial,omitempty"`
	IRQ     *IRQ   `json:"irq,omitempty"`
}

// IRQ selects the line trigger of an input pin.
type IRQ struct {
	Edge   string `json:"edge"` // rising | falling | both
	Enable bool   `json:"enable,omitempty"`
}

// Decode accepts raw JSON as []byte or string, or an already decoded value
// (map[string]any, a Board) that is round-tripped through JSON.
func Decode(src any) (Board, error) {
	var b Board
	var err error
	switch v := src.(type) {
	case Board:
		return v, nil
	case *Board:
		return *v, nil
	case []byte:
		err = json.Unmarshal(v, &b)
	case string:
		err = json.Unmarshal([]byte(v), &b)
	default:
		var raw []byte
		raw, err = json.Marshal(v)
		if err == nil {
			err = json.Unmarshal(raw, &b)
		}
	}
	if err != nil {
		return Board{}, &errcode.E{C: errcode.InvalidParams, Op: "config.decode", Err: err}
	}
	return b, nil
}

// Builder translates the clock section into an rcc.Config.
func (c Clock) Builder() rcc.Config {
	cfg := rcc.NewConfig()
	switch {
	case c.HSEHz != 0 && c.HSEBypass:
		cfg = cfg.HSEBypass(c.HSEHz)
	case c.HSEHz != 0:
		cfg = cfg.HSE(c.HSEHz)
	}
	if c.PLLMul != 0 {
		cfg = cfg.PLL(c.PLLMul)
	}
	if c.APB1Div != 0 {
		cfg = cfg.APB1(c.APB1Div)
	}
	if c.APB2Div != 0 {
		cfg = cfg.APB2(c.APB2Div)
	}
	if c.ADCDiv != 0 {
		cfg = cfg.ADC(c.ADCDiv)
	}
	return cfg
}

// Validate checks the enumerated string fields of every pin. Pin names and
// electrical limits are checked by the drivers.
func (b Board) Validate() error {
	seen := make(map[string]bool, len(b.Pins))
	for _, p := range b.Pins {
		bad := func(msg string) error {
			return &errcode.E{C: errcode.InvalidParams, Op: "config." + p.Name, Msg: msg}
		}
		if seen[p.Name] {
			return &errcode.E{C: errcode.PinInUse, Op: "config." + p.Name, Msg: "listed twice"}
		}
		seen[p.Name] = true
		switch p.Mode {
		case "output", "alternate":
			if !oneOf(p.Drive, "", "push_pull", "open_drain") {
				return bad("drive " + p.Drive)
			}
			if !oneOf(p.Speed, "", "2mhz", "10mhz", "50mhz") {
				return bad("speed " + p.Speed)
			}
		case "input":
			if !oneOf(p.Pull, "", "none", "up", "down") {
				return bad("pull " + p.Pull)
			}
			if p.IRQ != nil && !oneOf(p.IRQ.Edge, "rising", "falling", "both") {
				return bad("edge " + p.IRQ.Edge)
			}
		case "analog":
		default:
			return bad("mode " + p.Mode)
		}
		if p.IRQ != nil && p.Mode != "input" {
			return bad("irq on a non-input pin")
		}
	}
	return nil
}

func oneOf(s string, set ...string) bool {
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}
