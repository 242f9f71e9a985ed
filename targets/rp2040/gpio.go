//go:build rp2040 || rp2350

package main

import (
	"machine"
	"sync/atomic"
)

// outputPin implements core.OutputPin
type outputPin struct {
	pin machine.Pin
}

func newOutputPin(pin machine.Pin, initial bool) outputPin {
	pin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	pin.Set(initial)
	return outputPin{pin: pin}
}

func (p outputPin) Set(high bool) {
	p.pin.Set(high)
}

// inputPin implements core.InputPin
type inputPin struct {
	pin machine.Pin
}

func newInputPin(pin machine.Pin, mode machine.PinMode) inputPin {
	pin.Configure(machine.PinConfig{Mode: mode})
	return inputPin{pin: pin}
}

func (p inputPin) Get() bool {
	return p.pin.Get()
}

// edgeInput latches an edge in the pin interrupt and reports it to the
// fault task through Pending
type edgeInput struct {
	pin     machine.Pin
	pending atomic.Bool
}

// newEdgeInput arms the pin interrupt. onEdge runs in interrupt context
// after the edge is latched.
func newEdgeInput(pin machine.Pin, change machine.PinChange, onEdge func()) (*edgeInput, error) {
	e := &edgeInput{pin: pin}
	pin.Configure(machine.PinConfig{Mode: machine.PinInput})
	err := pin.SetInterrupt(change, func(machine.Pin) {
		e.pending.Store(true)
		if onEdge != nil {
			onEdge()
		}
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (e *edgeInput) Pending() bool {
	return e.pending.Load()
}

func (e *edgeInput) ClearPending() {
	e.pending.Store(false)
}
