package periph

import (
	"sync"

	"bluepill-core/regs"
)

// Sim is a simulated register file with the hardware behaviour the drivers
// depend on. Tests reach the underlying *regs.Sim registers through it.
type Sim struct {
	File *File

	GPIO  [NumPorts]SimGPIO
	AFIO  [4]*regs.Sim
	EXTI  SimEXTI
	RCC   SimRCC
	FLASH *regs.Sim

	mu         sync.Mutex
	hseAfter   int // polls of CR before HSERDY rises; <0 never
	hsePolls   int
	pllNoReady bool
}

type SimGPIO struct {
	CRL, CRH, IDR, ODR, BSRR, BRR *regs.Sim
}

type SimEXTI struct {
	IMR, EMR, RTSR, FTSR, SWIER, PR *regs.Sim
}

type SimRCC struct {
	CR, CFGR, APB2ENR, APB1ENR *regs.Sim
}

// Reset values (RM0008).
const (
	resetCR  = RCC_CR_HSION | RCC_CR_HSIRDY | 0x80
	resetCRx = 0x44444444 // every pin floating input
	resetACR = 0x30       // prefetch enabled and active
)

// NewSim builds a simulated file in its reset state. HSE becomes ready on
// the first poll after it is switched on.
func NewSim() *Sim {
	s := &Sim{File: &File{}}
	for i := range s.GPIO {
		g := SimGPIO{
			CRL:  regs.NewSim("CRL", resetCRx),
			CRH:  regs.NewSim("CRH", resetCRx),
			IDR:  regs.NewSim("IDR", 0),
			ODR:  regs.NewSim("ODR", 0),
			BSRR: regs.NewSim("BSRR", 0),
			BRR:  regs.NewSim("BRR", 0),
		}
		odr := g.ODR
		g.BSRR.OnWrite = func(_, w uint32) uint32 {
			// Set takes priority over reset for the same pin.
			odr.Update(func(v uint32) uint32 { return (v &^ (w >> 16)) | (w & 0xFFFF) })
			return 0
		}
		g.BRR.OnWrite = func(_, w uint32) uint32 {
			odr.Update(func(v uint32) uint32 { return v &^ (w & 0xFFFF) })
			return 0
		}
		s.GPIO[i] = g
		s.File.GPIO[i] = &GPIO{CRL: g.CRL, CRH: g.CRH, IDR: g.IDR, ODR: g.ODR, BSRR: g.BSRR, BRR: g.BRR}
	}

	afio := &AFIO{}
	for i := range s.AFIO {
		s.AFIO[i] = regs.NewSim("EXTICR", 0)
		afio.EXTICR[i] = s.AFIO[i]
	}
	s.File.AFIO = afio

	e := SimEXTI{
		IMR:   regs.NewSim("IMR", 0),
		EMR:   regs.NewSim("EMR", 0),
		RTSR:  regs.NewSim("RTSR", 0),
		FTSR:  regs.NewSim("FTSR", 0),
		SWIER: regs.NewSim("SWIER", 0),
		PR:    regs.NewSim("PR", 0),
	}
	e.PR.OnWrite = func(stored, w uint32) uint32 {
		e.SWIER.Update(func(v uint32) uint32 { return v &^ w })
		return stored &^ w
	}
	e.SWIER.OnWrite = func(stored, w uint32) uint32 {
		rose := w &^ stored
		// EMR only raises events; PR latches lines unmasked in IMR.
		e.PR.Update(func(v uint32) uint32 { return v | rose&e.IMR.Peek() })
		return w
	}
	s.EXTI = e
	s.File.EXTI = &EXTI{IMR: e.IMR, EMR: e.EMR, RTSR: e.RTSR, FTSR: e.FTSR, SWIER: e.SWIER, PR: e.PR}

	r := SimRCC{
		CR:      regs.NewSim("CR", resetCR),
		CFGR:    regs.NewSim("CFGR", 0),
		APB2ENR: regs.NewSim("APB2ENR", 0),
		APB1ENR: regs.NewSim("APB1ENR", 0),
	}
	r.CR.OnRead = s.crStatus
	r.CR.OnWrite = func(_, w uint32) uint32 {
		// Ready flags are read-only; drop a falling HSEON/PLLON's ready bit.
		w &^= RCC_CR_HSERDY | RCC_CR_PLLRDY | RCC_CR_HSIRDY
		s.mu.Lock()
		if w&RCC_CR_HSEON == 0 {
			s.hsePolls = 0
		}
		s.mu.Unlock()
		return w | RCC_CR_HSIRDY
	}
	r.CFGR.OnRead = func(v uint32) uint32 {
		sw := RCC_CFGR_SW.Mask() & v
		return v&^(RCC_CFGR_SWS.Mask()<<RCC_CFGR_SWS.Pos) | sw<<RCC_CFGR_SWS.Pos
	}
	s.RCC = r
	s.File.RCC = &RCC{CR: r.CR, CFGR: r.CFGR, APB2ENR: r.APB2ENR, APB1ENR: r.APB1ENR}

	s.FLASH = regs.NewSim("ACR", resetACR)
	s.File.FLASH = &FLASH{ACR: s.FLASH}
	return s
}

func (s *Sim) crStatus(v uint32) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v&RCC_CR_HSEON != 0 && s.hseAfter >= 0 {
		if s.hsePolls >= s.hseAfter {
			v |= RCC_CR_HSERDY
		}
		s.hsePolls++
	}
	if v&RCC_CR_PLLON != 0 && !s.pllNoReady {
		v |= RCC_CR_PLLRDY
	}
	return v
}

// HSEReadyAfter makes HSERDY rise after n polls of CR; n < 0 never.
func (s *Sim) HSEReadyAfter(n int) {
	s.mu.Lock()
	s.hseAfter = n
	s.hsePolls = 0
	s.mu.Unlock()
}

// PLLNeverReady keeps PLLRDY low regardless of PLLON.
func (s *Sim) PLLNeverReady() {
	s.mu.Lock()
	s.pllNoReady = true
	s.mu.Unlock()
}

// SetInput drives the input level of one pin.
func (s *Sim) SetInput(port, pin int, high bool) {
	bit := uint32(1) << pin
	s.GPIO[port].IDR.Update(func(v uint32) uint32 {
		if high {
			return v | bit
		}
		return v &^ bit
	})
}

// Edge latches a pending bit on line as the edge detector would, honouring
// the interrupt mask and trigger selection.
func (s *Sim) Edge(line int, rising bool) {
	bit := uint32(1) << line
	trig := s.EXTI.FTSR.Peek()
	if rising {
		trig = s.EXTI.RTSR.Peek()
	}
	if trig&bit == 0 || s.EXTI.IMR.Peek()&bit == 0 {
		return
	}
	s.EXTI.PR.Update(func(v uint32) uint32 { return v | bit })
}

// ResetLogs clears the access log of every register.
func (s *Sim) ResetLogs() {
	for _, r := range s.all() {
		r.ResetLog()
	}
}

// Touched reports whether any register saw a write since the last ResetLogs.
func (s *Sim) Touched() bool {
	for _, r := range s.all() {
		if len(r.Writes()) != 0 {
			return true
		}
	}
	return false
}

func (s *Sim) all() []*regs.Sim {
	var out []*regs.Sim
	for _, g := range s.GPIO {
		out = append(out, g.CRL, g.CRH, g.IDR, g.ODR, g.BSRR, g.BRR)
	}
	out = append(out, s.AFIO[:]...)
	e := s.EXTI
	out = append(out, e.IMR, e.EMR, e.RTSR, e.FTSR, e.SWIER, e.PR)
	r := s.RCC
	out = append(out, r.CR, r.CFGR, r.APB2ENR, r.APB1ENR, s.FLASH)
	return out
}
