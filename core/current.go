package core

import "canmotor/config"

// ADCBuffer is the double buffer filled by the sampler. The producer
// (DMA or sampling interrupt) fills one half while the ADC task consumes
// the other.
type ADCBuffer struct {
	samples []uint16
	n       int
	ready   [2]bool
	overrun [2]bool
}

// NewADCBuffer creates a double buffer of 2*n samples
func NewADCBuffer(n int) *ADCBuffer {
	return &ADCBuffer{samples: make([]uint16, 2*n), n: n}
}

// Half returns the storage of half i for the producer to fill
func (b *ADCBuffer) Half(i int) []uint16 {
	return b.samples[i*b.n : (i+1)*b.n]
}

// Complete marks half i as filled. If the previous fill of that half was
// never consumed it reports an overrun; the half is then discarded by the
// consumer instead of averaged.
func (b *ADCBuffer) Complete(i int) (overrun bool) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	if b.ready[i] {
		b.overrun[i] = true
		return true
	}
	b.ready[i] = true
	return false
}

// Take claims a complete half. ok is false when nothing is ready;
// stale is set when the half was overwritten before it was consumed.
func (b *ADCBuffer) Take() (half []uint16, stale, ok bool) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	for i := 0; i < 2; i++ {
		if !b.ready[i] {
			continue
		}
		b.ready[i] = false
		stale = b.overrun[i]
		b.overrun[i] = false
		return b.Half(i), stale, true
	}
	return nil, false, false
}

// CurrentSensor converts raw sample averages to amps
type CurrentSensor struct {
	Analog config.Analog
}

// Volts converts an averaged ADC reading to volts
func (s CurrentSensor) Volts(avg float32) float32 {
	return avg / s.Analog.CountsPerVolt
}

// Amps converts a sense voltage to motor current
func (s CurrentSensor) Amps(volts float32) float32 {
	a := s.Analog
	return (volts - a.VOffset) / (a.RSense * a.AmpGain) / a.DividerRatio
}

// Convert averages samples and returns the motor current
func (s CurrentSensor) Convert(samples []uint16) float32 {
	if len(samples) == 0 {
		return 0
	}
	var sum uint32
	for _, v := range samples {
		sum += uint32(v)
	}
	avg := float32(sum) / float32(len(samples))
	return s.Amps(s.Volts(avg))
}

// runADC consumes completed halves and publishes the current reading
func (a *App) runADC() {
	for {
		half, stale, ok := a.hw.ADC.Take()
		if !ok {
			return
		}
		if stale {
			continue
		}
		amps := a.sensor.Convert(half)
		a.telemetry.Lock(func(t *Telemetry) { t.CurrentNow = amps })
	}
}
