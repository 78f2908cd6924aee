package rcc

import (
	"errors"
	"testing"

	"bluepill-core/errcode"
	"bluepill-core/periph"
)

func newController(t *testing.T) (*Controller, *periph.Sim) {
	t.Helper()
	s := periph.NewSim()
	return New(s.File.RCC, s.File.FLASH, F103), s
}

func TestDefaultRunsFromHSIUndivided(t *testing.T) {
	c, s := newController(t)
	got, err := c.Synthesize(NewConfig())
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if got.Source != SourceHSI || got.SYSCLK != 8_000_000 || got.PCLK1 != 8_000_000 || got.PCLK2 != 8_000_000 {
		t.Fatalf("clocks = %+v", got)
	}
	if s.RCC.CR.Peek()&periph.RCC_CR_HSEON != 0 || s.RCC.CR.Peek()&periph.RCC_CR_PLLON != 0 {
		t.Fatal("HSI-only config started HSE or PLL")
	}
	if periph.RCC_CFGR_SW.Read(s.RCC.CFGR) != periph.RCC_CFGR_SW_HSI {
		t.Fatal("SW not HSI")
	}
	if rc, ok := c.Clocks(); !ok || rc != got {
		t.Fatalf("Clocks() = %+v, %v", rc, ok)
	}
}

func TestHSETimesNinePLLReachesCeiling(t *testing.T) {
	c, s := newController(t)
	got, err := c.Synthesize(NewConfig().HSE(8_000_000).PLL(9).APB1(2))
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	want := Clocks{Source: SourcePLL, SYSCLK: 72_000_000, PCLK1: 36_000_000, PCLK2: 72_000_000, ADCCLK: 12_000_000}
	if got != want {
		t.Fatalf("clocks = %+v, want %+v", got, want)
	}

	cfgr := s.RCC.CFGR.Peek()
	if m := (cfgr >> 18) & 0xF; m != 7 {
		t.Fatalf("PLLMUL bits = %d, want 7", m)
	}
	if cfgr&periph.RCC_CFGR_PLLSRC == 0 {
		t.Fatal("PLLSRC should select HSE")
	}
	if sw := cfgr & 0b11; sw != periph.RCC_CFGR_SW_PLL {
		t.Fatalf("SW = %b", sw)
	}
	if ppre1 := (cfgr >> 8) & 0b111; ppre1 != 0b100 {
		t.Fatalf("PPRE1 = %03b", ppre1)
	}
	if ppre2 := (cfgr >> 11) & 0b111; ppre2 != 0 {
		t.Fatalf("PPRE2 = %03b", ppre2)
	}
	if adc := (cfgr >> 14) & 0b11; adc != 0b10 {
		t.Fatalf("ADCPRE = %02b", adc)
	}
	if lat := s.FLASH.Peek() & 0b111; lat != 2 {
		t.Fatalf("latency = %d", lat)
	}
	if s.RCC.CR.Peek()&periph.RCC_CR_HSEBYP != 0 {
		t.Fatal("crystal config set HSEBYP")
	}
}

func TestMultiplierTenFailsBeforeAnyRegisterWrite(t *testing.T) {
	c, s := newController(t)
	s.ResetLogs()
	_, err := c.Synthesize(NewConfig().HSE(8_000_000).PLL(10).APB1(2))
	if !errors.Is(err, errcode.ConstraintViolation) {
		t.Fatalf("err = %v, want constraint violation", err)
	}
	var ce *ConstraintError
	if !errors.As(err, &ce) || ce.Domain != "sysclk" || ce.Requested != 80_000_000 || ce.Ceiling != 72_000_000 {
		t.Fatalf("constraint = %+v", ce)
	}
	if s.Touched() {
		t.Fatal("a register was written for a rejected configuration")
	}
	if _, ok := c.Clocks(); ok {
		t.Fatal("rejected configuration marked as realized")
	}
}

func TestDirectSourceCeiling(t *testing.T) {
	c, s := newController(t)
	s.ResetLogs()
	_, err := c.Synthesize(NewConfig().HSEBypass(100_000_000).APB1(4).ADC(8))
	var ce *ConstraintError
	if !errors.As(err, &ce) || ce.Domain != "sysclk" || ce.Requested != 100_000_000 {
		t.Fatalf("err = %v, want sysclk constraint", err)
	}
	if s.Touched() {
		t.Fatal("a register was written for a rejected configuration")
	}
	if _, err := NewConfig().HSEBypass(72_000_000).APB1(2).Plan(F103); err != nil {
		t.Fatalf("72 MHz bypass: %v", err)
	}
}

func TestAPB1Ceiling(t *testing.T) {
	cases := []struct {
		name string
		div  uint8
		want uint32
		ok   bool
	}{
		{"div2 at ceiling", 2, 36_000_000, true},
		{"div4", 4, 18_000_000, true},
		{"unset", 0, 0, false},
		{"div1", 1, 0, false},
		{"unrecognized runs undivided", 3, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := NewConfig().HSE(8_000_000).PLL(9).APB1(tc.div).Plan(F103)
			if !tc.ok {
				var ce *ConstraintError
				if !errors.As(err, &ce) || ce.Domain != "pclk1" || ce.Requested != 72_000_000 || ce.Ceiling != 36_000_000 {
					t.Fatalf("err = %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Plan: %v", err)
			}
			if p.Clocks.PCLK1 != tc.want {
				t.Fatalf("PCLK1 = %d, want %d", p.Clocks.PCLK1, tc.want)
			}
		})
	}
}

func TestPrescalerFallbackAsymmetry(t *testing.T) {
	// HSI 8 MHz, no PLL.
	p, err := NewConfig().APB2(3).ADC(3).Plan(F103)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if p.PPRE2 != 0 || p.Clocks.PCLK2 != 8_000_000 {
		t.Fatalf("APB2 fallback: sel=%b pclk2=%d, want undivided", p.PPRE2, p.Clocks.PCLK2)
	}
	if p.ADCDiv != 6 || p.ADCPRE != 0b10 || p.Clocks.ADCCLK != 8_000_000/6 {
		t.Fatalf("ADC fallback: div=%d sel=%b adc=%d, want /6", p.ADCDiv, p.ADCPRE, p.Clocks.ADCCLK)
	}

	for div, sel := range map[uint8]uint32{2: 0b00, 4: 0b01, 6: 0b10, 8: 0b11} {
		p, err := NewConfig().ADC(div).Plan(F103)
		if err != nil {
			t.Fatalf("ADC(%d): %v", div, err)
		}
		if p.ADCPRE != sel || p.Clocks.ADCCLK != 8_000_000/uint32(div) {
			t.Fatalf("ADC(%d) sel=%b clk=%d", div, p.ADCPRE, p.Clocks.ADCCLK)
		}
	}
}

func TestADCCeiling(t *testing.T) {
	_, err := NewConfig().HSE(8_000_000).PLL(9).APB1(2).ADC(4).Plan(F103)
	var ce *ConstraintError
	if !errors.As(err, &ce) || ce.Domain != "adcclk" || ce.Requested != 18_000_000 || ce.Ceiling != 14_000_000 {
		t.Fatalf("err = %v", err)
	}
}

func TestPLLFromHSIHalves(t *testing.T) {
	c, s := newController(t)
	got, err := c.Synthesize(NewConfig().PLL(16).APB1(2))
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if got.SYSCLK != 64_000_000 || got.PCLK1 != 32_000_000 {
		t.Fatalf("clocks = %+v", got)
	}
	if s.RCC.CFGR.Peek()&periph.RCC_CFGR_PLLSRC != 0 {
		t.Fatal("PLLSRC should select HSI/2")
	}
	if s.RCC.CR.Peek()&periph.RCC_CR_HSEON != 0 {
		t.Fatal("HSE started without being requested")
	}
}

func TestPLLMultiplierRange(t *testing.T) {
	for _, mul := range []uint8{1, 17} {
		_, err := NewConfig().PLL(mul).Plan(F103)
		var ce *ConstraintError
		if !errors.As(err, &ce) || ce.Domain != "pllmul" {
			t.Fatalf("PLL(%d) err = %v", mul, err)
		}
	}
}

func TestHSEOnlyAndBypass(t *testing.T) {
	c, s := newController(t)
	got, err := c.Synthesize(NewConfig().HSEBypass(12_000_000))
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if got.Source != SourceHSE || got.SYSCLK != 12_000_000 {
		t.Fatalf("clocks = %+v", got)
	}
	cr := s.RCC.CR.Peek()
	if cr&periph.RCC_CR_HSEBYP == 0 || cr&periph.RCC_CR_HSEON == 0 {
		t.Fatalf("CR = 0x%08X", cr)
	}
	if sw := s.RCC.CFGR.Peek() & 0b11; sw != periph.RCC_CFGR_SW_HSE {
		t.Fatalf("SW = %b", sw)
	}
}

func TestHSETimeoutClearsRequest(t *testing.T) {
	c, s := newController(t)
	s.HSEReadyAfter(-1)
	_, err := c.Synthesize(NewConfig().HSE(8_000_000).PLL(9).APB1(2))
	if !errors.Is(err, ErrHSETimeout) || !IsTimeout(err) {
		t.Fatalf("err = %v", err)
	}
	if errors.Is(err, ErrPLLTimeout) {
		t.Fatal("HSE timeout matched the PLL sentinel")
	}
	if s.RCC.CR.Peek()&periph.RCC_CR_HSEON != 0 {
		t.Fatal("HSEON left set after timeout")
	}
	if s.RCC.CR.Peek()&periph.RCC_CR_PLLON != 0 {
		t.Fatal("PLL started after HSE failure")
	}
	if sw := s.RCC.CFGR.Peek() & 0b11; sw != periph.RCC_CFGR_SW_HSI {
		t.Fatal("source switched after failure")
	}
}

func TestHSEReadyWithinBound(t *testing.T) {
	c, s := newController(t)
	s.HSEReadyAfter(F103.HSEReadyPolls - 1)
	if _, err := c.Synthesize(NewConfig().HSE(8_000_000)); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
}

func TestBoundedPLLWait(t *testing.T) {
	s := periph.NewSim()
	s.PLLNeverReady()
	fam := F103
	fam.PLLReadyPolls = 10
	c := New(s.File.RCC, s.File.FLASH, fam)
	_, err := c.Synthesize(NewConfig().PLL(9).APB1(2))
	if !errors.Is(err, ErrPLLTimeout) {
		t.Fatalf("err = %v", err)
	}
	if s.RCC.CR.Peek()&periph.RCC_CR_PLLON != 0 {
		t.Fatal("PLLON left set after timeout")
	}
}

func TestPLLRunningIsBusy(t *testing.T) {
	c, _ := newController(t)
	if _, err := c.Synthesize(NewConfig().HSE(8_000_000).PLL(9).APB1(2)); err != nil {
		t.Fatalf("first: %v", err)
	}
	_, err := c.Synthesize(NewConfig().HSE(8_000_000).PLL(6).APB1(2))
	if errcode.Of(err) != errcode.Busy {
		t.Fatalf("err = %v, want busy", err)
	}
}

func TestLatencyOrdering(t *testing.T) {
	// Going up: latency is written before CFGR selects the PLL.
	c, s := newController(t)
	s.ResetLogs()
	if _, err := c.Synthesize(NewConfig().HSE(8_000_000).PLL(6).APB1(2)); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	acr := s.FLASH.Writes()
	if len(acr) != 1 || acr[0]&0b111 != 1 {
		t.Fatalf("ACR writes = %v, want one write of latency 1", acr)
	}

	// Going down from 72 MHz on a fresh chip state: latency drops after the switch.
	s2 := periph.NewSim()
	s2.FLASH.Poke(0x32) // latency 2 from an earlier boot stage
	c2 := New(s2.File.RCC, s2.File.FLASH, F103)
	var sawSwitch bool
	s2.FLASH.OnWrite = func(_, w uint32) uint32 {
		sawSwitch = s2.RCC.CFGR.Peek()&0b11 == periph.RCC_CFGR_SW_HSE
		return w
	}
	if _, err := c2.Synthesize(NewConfig().HSE(8_000_000)); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if !sawSwitch {
		t.Fatal("latency lowered before the source switch")
	}
	if s2.FLASH.Peek()&0b111 != 0 {
		t.Fatalf("latency = %d, want 0", s2.FLASH.Peek()&0b111)
	}
	if s2.FLASH.Peek()&periph.FLASH_ACR_PRFTBE == 0 {
		t.Fatal("prefetch bit disturbed")
	}
}

func TestWaitStateBands(t *testing.T) {
	cases := []struct {
		cfg  Config
		want uint32
	}{
		{NewConfig(), 0},
		{NewConfig().HSE(8_000_000).PLL(3), 0},
		{NewConfig().HSE(8_000_000).PLL(4), 1},
		{NewConfig().HSE(8_000_000).PLL(6).APB1(2), 1},
		{NewConfig().HSE(8_000_000).PLL(7).APB1(2), 2},
	}
	for _, tc := range cases {
		p, err := tc.cfg.Plan(F103)
		if err != nil {
			t.Fatalf("Plan: %v", err)
		}
		if p.Latency != tc.want {
			t.Fatalf("sysclk %d latency %d, want %d", p.Clocks.SYSCLK, p.Latency, tc.want)
		}
	}
}

func TestConfigIsAValue(t *testing.T) {
	base := NewConfig().HSE(8_000_000)
	_ = base.PLL(9)
	p, err := base.Plan(F103)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if p.PLLMul != 0 {
		t.Fatal("derived config mutated its parent")
	}
}

func TestEnableAPB2Idempotent(t *testing.T) {
	c, s := newController(t)
	c.EnableAPB2(periph.RCC_APB2ENR_IOPAEN)
	c.EnableAPB2(periph.RCC_APB2ENR_IOPAEN | periph.RCC_APB2ENR_AFIOEN)
	if got := s.RCC.APB2ENR.Peek(); got != periph.RCC_APB2ENR_IOPAEN|periph.RCC_APB2ENR_AFIOEN {
		t.Fatalf("APB2ENR = 0x%X", got)
	}
}

func TestConstraintErrorText(t *testing.T) {
	e := &ConstraintError{Domain: "pclk1", Requested: 72_000_000, Ceiling: 36_000_000}
	if e.Error() != "constraint_violation: pclk1 72000000 exceeds 36000000" {
		t.Fatalf("Error() = %q", e.Error())
	}
	if errcode.Of(e) != errcode.ConstraintViolation {
		t.Fatal("code mismatch")
	}
}
