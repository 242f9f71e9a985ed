// Package sim provides an in-memory board for running the firmware core on
// a host: PWM channels, pins, a manual clock and a CAN controller model.
package sim

import (
	"canmotor/core"
)

// PWM records the duty written to a channel
type PWM struct {
	max     uint16
	duty    uint16
	enabled bool
	writes  int
}

// NewPWM creates a channel with the given max duty
func NewPWM(maxDuty uint16) *PWM {
	return &PWM{max: maxDuty}
}

func (p *PWM) SetDuty(duty uint16) {
	if duty > p.max {
		duty = p.max
	}
	p.duty = duty
	p.writes++
}

func (p *PWM) MaxDuty() uint16 { return p.max }

func (p *PWM) Enable() { p.enabled = true }

// Duty returns the last duty written
func (p *PWM) Duty() uint16 { return p.duty }

// Enabled reports whether Enable was called
func (p *PWM) Enabled() bool { return p.enabled }

// Writes returns the number of SetDuty calls
func (p *PWM) Writes() int { return p.writes }

// Pin is a digital pin usable as input or output
type Pin struct {
	high bool
}

func (p *Pin) Set(high bool) { p.high = high }

func (p *Pin) Get() bool { return p.high }

// Edge is an input with a latched edge flag
type Edge struct {
	pending bool
}

// Trigger latches an edge
func (e *Edge) Trigger() { e.pending = true }

func (e *Edge) Pending() bool { return e.pending }

func (e *Edge) ClearPending() { e.pending = false }

// Clock is a manually advanced tick counter
type Clock struct {
	now core.Instant
}

// NewClock creates a clock starting at start
func NewClock(start core.Instant) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() core.Instant { return c.now }

// Advance moves the clock forward by ticks
func (c *Clock) Advance(ticks uint32) {
	c.now = c.now.Add(ticks)
}

// Set moves the clock to t
func (c *Clock) Set(t core.Instant) {
	c.now = t
}

// FillHalf writes value into every sample of half i
func FillHalf(b *core.ADCBuffer, half int, value uint16) {
	s := b.Half(half)
	for i := range s {
		s[i] = value
	}
}

// Board bundles a complete simulated node
type Board struct {
	Forward     *PWM
	Reverse     *PWM
	Limit       *PWM
	Sleep       *Pin
	Overcurrent *Edge
	DriverFault *Edge
	CAN         *Transceiver
	ADC         *core.ADCBuffer
	Clock       *Clock
	NodeSwitch  []*Pin
}

// NewBoard creates a board with drive channels of maxDuty and an ADC
// buffer of samples per half
func NewBoard(maxDuty uint16, samples int) *Board {
	b := &Board{
		Forward:     NewPWM(maxDuty),
		Reverse:     NewPWM(maxDuty),
		Limit:       NewPWM(maxDuty),
		Sleep:       &Pin{},
		Overcurrent: &Edge{},
		DriverFault: &Edge{},
		CAN:         NewTransceiver(),
		ADC:         core.NewADCBuffer(samples),
		Clock:       NewClock(0),
	}
	for i := 0; i < 8; i++ {
		b.NodeSwitch = append(b.NodeSwitch, &Pin{})
	}
	return b
}

// SetNodeID sets the switch bank to id
func (b *Board) SetNodeID(id uint8) {
	for i, p := range b.NodeSwitch {
		p.Set(id&(1<<i) != 0)
	}
}

// NodePins returns the switch bank as core input pins
func (b *Board) NodePins() []core.InputPin {
	pins := make([]core.InputPin, len(b.NodeSwitch))
	for i, p := range b.NodeSwitch {
		pins[i] = p
	}
	return pins
}

// Hardware returns the board as the firmware sees it
func (b *Board) Hardware() core.Hardware {
	return core.Hardware{
		Forward:     b.Forward,
		Reverse:     b.Reverse,
		Limit:       b.Limit,
		Sleep:       b.Sleep,
		Overcurrent: b.Overcurrent,
		DriverFault: b.DriverFault,
		CAN:         b.CAN,
		ADC:         b.ADC,
		Clock:       b.Clock,
	}
}
