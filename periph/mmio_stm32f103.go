//go:build stm32f103

package periph

import (
	"device/stm32"

	"bluepill-core/regs"
)

// Device returns the memory-mapped register file of the running chip.
func Device() *File {
	f := &File{
		AFIO: &AFIO{EXTICR: [4]regs.Reg32{
			&stm32.AFIO.EXTICR1, &stm32.AFIO.EXTICR2, &stm32.AFIO.EXTICR3, &stm32.AFIO.EXTICR4,
		}},
		EXTI: &EXTI{
			IMR:   &stm32.EXTI.IMR,
			EMR:   &stm32.EXTI.EMR,
			RTSR:  &stm32.EXTI.RTSR,
			FTSR:  &stm32.EXTI.FTSR,
			SWIER: &stm32.EXTI.SWIER,
			PR:    &stm32.EXTI.PR,
		},
		RCC: &RCC{
			CR:      &stm32.RCC.CR,
			CFGR:    &stm32.RCC.CFGR,
			APB2ENR: &stm32.RCC.APB2ENR,
			APB1ENR: &stm32.RCC.APB1ENR,
		},
		FLASH: &FLASH{ACR: &stm32.FLASH.ACR},
	}
	for i, g := range []*stm32.GPIO_Type{stm32.GPIOA, stm32.GPIOB, stm32.GPIOC} {
		f.GPIO[i] = &GPIO{CRL: &g.CRL, CRH: &g.CRH, IDR: &g.IDR, ODR: &g.ODR, BSRR: &g.BSRR, BRR: &g.BRR}
	}
	return f
}
