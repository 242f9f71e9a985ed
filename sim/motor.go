package sim

import (
	"canmotor/config"
)

// Motor is a first order model of a brushed motor behind the H-bridge. The
// winding current follows the applied duty and feeds the current sense
// amplifier; a comparator against the filtered bias output raises the
// overcurrent line.
type Motor struct {
	Board  *Board
	Analog config.Analog

	// StallAmps is the current at full duty
	StallAmps float32

	// Extra adds load current on top of the duty model
	Extra float32

	amps float32
	over bool
}

// Amps returns the last modelled current
func (m *Motor) Amps() float32 {
	return m.amps
}

// Step updates the current from the present duties, fills ADC half with the
// matching samples and raises the overcurrent edge when the sense voltage
// crosses the bias reference. It returns true on a new overcurrent edge.
func (m *Motor) Step(half int) bool {
	b := m.Board
	var duty uint16
	if b.Sleep.Get() {
		fwd, rev := b.Forward.Duty(), b.Reverse.Duty()
		// both high is a brake, not a drive
		if fwd != rev {
			if fwd > rev {
				duty = fwd - rev
			} else {
				duty = rev - fwd
			}
		}
	}
	m.amps = m.StallAmps*float32(duty)/float32(b.Forward.MaxDuty()) + m.Extra

	FillHalf(b.ADC, half, Counts(m.amps, m.Analog))

	over := m.SenseVolts() > m.BiasVolts()
	edge := over && !m.over
	m.over = over
	if edge {
		b.Overcurrent.Trigger()
	}
	return edge
}

// SenseVolts is the sense amplifier output seen at the comparator, on the
// same scale as the bias reference
func (m *Motor) SenseVolts() float32 {
	a := m.Analog
	return (m.amps*a.RSense*a.AmpGain + a.VOffset) * a.DividerRatio
}

// BiasVolts is the filtered current-limit reference
func (m *Motor) BiasVolts() float32 {
	l := m.Board.Limit
	return float32(l.Duty()) / float32(l.MaxDuty()) * m.Analog.SupplyVolts
}

// Counts converts a motor current to the ADC reading the firmware converts
// back to amps
func Counts(amps float32, a config.Analog) uint16 {
	v := (amps*a.RSense*a.AmpGain*a.DividerRatio+a.VOffset)*a.CountsPerVolt + 0.5
	if v <= 0 {
		return 0
	}
	if v >= 4095 {
		return 4095
	}
	return uint16(v)
}
