//go:build rp2040 || rp2350

package main

import (
	"canmotor/core"
	"device/rp"
	"errors"
	"machine"
)

const (
	adcClockHz = 48000000

	// SampleRateHz is the free-running conversion rate of the current
	// sense channel
	SampleRateHz = 10000
)

var errADCPin = errors.New("pin is not an ADC input")

// adcSampler runs the ADC in free-running mode into its hardware FIFO and
// moves samples into the core double buffer. Drain is called from the
// main loop often enough that the four entry FIFO does not overflow.
type adcSampler struct {
	buf    *core.ADCBuffer
	half   int
	fill   int
	n      int
	onDone func(half int)

	overflows uint32
}

// newADCSampler configures pin and starts continuous conversions
func newADCSampler(pin machine.Pin, buf *core.ADCBuffer, samples int, onDone func(half int)) (*adcSampler, error) {
	var channel uint32
	switch pin {
	case machine.ADC0:
		channel = 0
	case machine.ADC1:
		channel = 1
	case machine.ADC2:
		channel = 2
	case machine.ADC3:
		channel = 3
	default:
		return nil, errADCPin
	}

	machine.InitADC()
	adc := machine.ADC{Pin: pin}
	if err := adc.Configure(machine.ADCConfig{}); err != nil {
		return nil, err
	}

	rp.ADC.CS.ReplaceBits(channel<<rp.ADC_CS_AINSEL_Pos, rp.ADC_CS_AINSEL_Msk, 0)

	// Sample period is 1 + DIV.INT ADC clocks
	rp.ADC.DIV.Set(uint32(adcClockHz/SampleRateHz-1) << rp.ADC_DIV_INT_Pos)

	// Write results into the FIFO, clear stale entries and error flags
	rp.ADC.FCS.Set(rp.ADC_FCS_EN | rp.ADC_FCS_OVER | rp.ADC_FCS_UNDER)
	for rp.ADC.FCS.Get()&rp.ADC_FCS_LEVEL_Msk != 0 {
		rp.ADC.FIFO.Get()
	}

	rp.ADC.CS.SetBits(rp.ADC_CS_START_MANY)

	return &adcSampler{buf: buf, n: samples, onDone: onDone}, nil
}

// Drain moves converted samples into the current half and reports every
// completed half
func (s *adcSampler) Drain() {
	if rp.ADC.FCS.HasBits(rp.ADC_FCS_OVER) {
		// write 1 to clear
		rp.ADC.FCS.SetBits(rp.ADC_FCS_OVER)
		s.overflows++
	}

	dst := s.buf.Half(s.half)
	for rp.ADC.FCS.Get()&rp.ADC_FCS_LEVEL_Msk != 0 {
		dst[s.fill] = uint16(rp.ADC.FIFO.Get() & rp.ADC_FIFO_VAL_Msk)
		s.fill++
		if s.fill < s.n {
			continue
		}
		done := s.half
		s.fill = 0
		s.half ^= 1
		dst = s.buf.Half(s.half)
		s.onDone(done)
	}
}

// Overflows returns the number of times the hardware FIFO overflowed
func (s *adcSampler) Overflows() uint32 {
	return s.overflows
}
