//go:build rp2040 || rp2350

package main

import (
	"errors"
	"machine"
)

// pwmPeripheral is an interface for PWM hardware peripherals
// This abstracts over TinyGo's unexported *pwmGroup type
type pwmPeripheral interface {
	Configure(config machine.PWMConfig) error
	Channel(pin machine.Pin) (uint8, error)
	Top() uint32
	Set(channel uint8, value uint32)
}

var errPWMTop = errors.New("pwm top exceeds 16 bits")

// pwmChannel drives one output of an RP2040 PWM slice. The H-bridge
// forward and reverse inputs share a slice so they always run at the same
// period.
type pwmChannel struct {
	pin     machine.Pin
	pwm     pwmPeripheral
	channel uint8
	max     uint16
	enabled bool
}

// newPWMChannel configures the slice that owns pin for the given period.
// Both channels of a slice must be created with the same period.
func newPWMChannel(pin machine.Pin, periodNs uint64) (*pwmChannel, error) {
	// GPIO N maps to slice (N >> 1) & 7, channel N & 1
	slice := uint8((uint32(pin) >> 1) & 0x7)
	pwm := getPWMPeripheral(slice)

	if err := pwm.Configure(machine.PWMConfig{Period: periodNs}); err != nil {
		return nil, err
	}
	ch, err := pwm.Channel(pin)
	if err != nil {
		return nil, err
	}
	top := pwm.Top()
	if top > 0xFFFF {
		return nil, errPWMTop
	}
	c := &pwmChannel{pin: pin, pwm: pwm, channel: ch, max: uint16(top)}
	// Channel() leaves the pin in PWM mode; hold it low until enabled
	pwm.Set(ch, 0)
	return c, nil
}

// SetDuty sets the compare value, clamped to MaxDuty. Writes before Enable
// are remembered by the hardware but the output stays low.
func (c *pwmChannel) SetDuty(duty uint16) {
	if duty > c.max {
		duty = c.max
	}
	if !c.enabled {
		return
	}
	c.pwm.Set(c.channel, uint32(duty))
}

func (c *pwmChannel) MaxDuty() uint16 {
	return c.max
}

func (c *pwmChannel) Enable() {
	c.enabled = true
}

// getPWMPeripheral returns the PWM peripheral for a given slice number
// RP2040 has 8 PWM slices: PWM0-PWM7
func getPWMPeripheral(sliceNum uint8) pwmPeripheral {
	switch sliceNum {
	case 0:
		return machine.PWM0
	case 1:
		return machine.PWM1
	case 2:
		return machine.PWM2
	case 3:
		return machine.PWM3
	case 4:
		return machine.PWM4
	case 5:
		return machine.PWM5
	case 6:
		return machine.PWM6
	case 7:
		return machine.PWM7
	default:
		// Should never happen with proper masking
		return machine.PWM0
	}
}
