//go:build rp2040 || rp2350

package main

import (
	"machine"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"
)

// The current-limit reference is a PWM output low-pass filtered into the
// motor driver's VREF input. It runs on a PIO state machine so the
// H-bridge keeps both channels of its hardware slice.

// biasPIOProgram is the classic PIO PWM: the period lives in ISR, the level
// is pulled without blocking so the last value repeats forever.
//
//	.side_set 1 opt
//	    pull noblock    side 0
//	    mov x, osr
//	    mov y, isr
//	countloop:
//	    jmp x!=y noset
//	    jmp skip        side 1
//	noset:
//	    nop
//	skip:
//	    jmp y-- countloop
var biasPIOProgram = []uint16{
	0x9080, // 0: pull noblock side 0
	0xa027, // 1: mov x, osr
	0xa046, // 2: mov y, isr
	0x00a5, // 3: jmp x!=y, 5
	0x1806, // 4: jmp 6 side 1
	0xa042, // 5: nop
	0x0083, // 6: jmp y--, 3
}

const (
	biasPIOOrigin = -1 // relocatable

	pioPullBlock = 0x80a0 // pull block
	pioOutISR32  = 0x60c0 // out isr, 32
)

// pioBiasChannel implements core.PWMChannel on a PIO state machine
type pioBiasChannel struct {
	pin     machine.Pin
	pio     *rp2pio.PIO
	sm      rp2pio.StateMachine
	period  uint16
	enabled bool
}

// newPIOBiasChannel loads the PWM program and sets the period in PIO
// cycles. Each count takes two cycles, so the output frequency is
// clk_sys / (2 * (period + 1)).
func newPIOBiasChannel(pioNum, smNum uint8, pin machine.Pin, period uint16) (*pioBiasChannel, error) {
	var pioHW *rp2pio.PIO
	if pioNum == 0 {
		pioHW = rp2pio.PIO0
	} else {
		pioHW = rp2pio.PIO1
	}
	c := &pioBiasChannel{
		pin:    pin,
		pio:    pioHW,
		sm:     pioHW.StateMachine(smNum),
		period: period,
	}
	c.sm.TryClaim()

	offset, err := c.pio.AddProgram(biasPIOProgram, biasPIOOrigin)
	if err != nil {
		return nil, err
	}

	c.pin.Configure(machine.PinConfig{Mode: c.pio.PinMode()})

	cfg := rp2pio.DefaultStateMachineConfig()
	cfg.SetSidesetParams(2, true, false) // 1 pin plus the enable bit
	cfg.SetSidesetPins(c.pin)
	cfg.SetWrap(offset+uint8(len(biasPIOProgram))-1, offset)

	c.sm.Init(offset, cfg)
	c.sm.SetPindirsConsecutive(c.pin, 1, true)
	c.sm.SetPinsConsecutive(c.pin, 1, false)

	// Load the period into ISR while the state machine is stopped
	c.sm.TxPut(uint32(period))
	c.sm.Exec(pioPullBlock)
	c.sm.Exec(pioOutISR32)

	return c, nil
}

// SetDuty queues a new level. The FIFO is cleared first so the newest
// level is applied on the next period instead of after stale ones.
func (c *pioBiasChannel) SetDuty(duty uint16) {
	if duty > c.period {
		duty = c.period
	}
	if c.sm.IsTxFIFOFull() {
		c.sm.ClearFIFOs()
	}
	c.sm.TxPut(uint32(duty))
}

func (c *pioBiasChannel) MaxDuty() uint16 {
	return c.period
}

func (c *pioBiasChannel) Enable() {
	if c.enabled {
		return
	}
	c.enabled = true
	c.sm.SetEnabled(true)
}
