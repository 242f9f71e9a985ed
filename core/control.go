package core

import (
	"canmotor/config"
	"canmotor/protocol"
)

// DriveState is the commanded drive, written by the dispatcher
type DriveState struct {
	Setpoint     int16
	Inverted     bool
	CurrentLimit uint8 // amps
	IdleMode     protocol.IdleMode
}

// LinkState holds receive timestamps used for supervision
type LinkState struct {
	LastRx        Stamp
	LastHeartbeat Stamp
}

// Telemetry is the measured and applied state reported to the host
type Telemetry struct {
	CurrentNow float32 // amps
	DutyNow    int16   // effective setpoint, reported even when the output idles
}

// DriveParams are the fixed inputs of ComputeDrive
type DriveParams struct {
	Deadband     int16
	MaxDuty      uint16 // drive channel max duty
	LimitMaxDuty uint16 // current-limit channel max duty
	Analog       config.Analog
}

// DriveOutput is the duty applied to each PWM channel
type DriveOutput struct {
	Forward uint16
	Reverse uint16
	Limit   uint16
	DutyNow int16
	Stopped bool
}

// EffectiveSetpoint applies inversion. int16 min inverted saturates at
// int16 max.
func EffectiveSetpoint(setpoint int16, inverted bool) int32 {
	eff := int32(setpoint)
	if inverted {
		eff = -eff
	}
	if eff > 32767 {
		eff = 32767
	}
	return eff
}

// ComputeDrive maps the commanded state to channel duties. supervised is
// false when host supervision (heartbeat or bus link) has lapsed, which
// forces the idle output.
func ComputeDrive(d DriveState, supervised bool, p DriveParams) DriveOutput {
	out := DriveOutput{Limit: LimitDuty(d.CurrentLimit, p.Analog, p.LimitMaxDuty)}

	eff := EffectiveSetpoint(d.Setpoint, d.Inverted)
	out.DutyNow = int16(eff)
	mag := eff
	if mag < 0 {
		mag = -mag
	}

	// a zero setpoint stops even with no deadband configured
	if !supervised || mag == 0 || mag < int32(p.Deadband) {
		out.Stopped = true
		if d.IdleMode == protocol.Brake {
			out.Forward = p.MaxDuty
			out.Reverse = p.MaxDuty
		}
		return out
	}

	if mag > int32(p.MaxDuty) {
		mag = int32(p.MaxDuty)
	}
	if eff > 0 {
		out.Forward = uint16(mag)
	} else {
		out.Reverse = uint16(mag)
	}
	return out
}

// LimitDuty converts a current limit in amps to the bias channel duty. The
// driver compares the filtered bias voltage against the sense amplifier
// output, so the reference follows the same transfer function as the
// current measurement.
func LimitDuty(amps uint8, a config.Analog, maxDuty uint16) uint16 {
	vref := (float32(amps)*a.AmpGain*a.RSense + a.VOffset) * a.DividerRatio
	duty := float32(maxDuty) * vref / a.SupplyVolts
	if duty <= 0 {
		return 0
	}
	if duty >= float32(maxDuty) {
		return maxDuty
	}
	return uint16(duty)
}

// runControl is the periodic control task
func (a *App) runControl() {
	now := a.clock.Now()

	var d DriveState
	a.drive.Lock(func(s *DriveState) { d = *s })
	var l LinkState
	a.link.Lock(func(s *LinkState) { l = *s })

	supervised := true
	if a.cfg.Heartbeat.Enabled && !l.LastHeartbeat.Within(now, a.cfg.HeartbeatTimeout()) {
		supervised = false
	}
	if !a.cfg.KeepDrivingOnLinkLoss && !a.linkMon.OK(l.LastRx, now) {
		supervised = false
	}

	out := ComputeDrive(d, supervised, a.params)
	a.hw.Forward.SetDuty(out.Forward)
	a.hw.Reverse.SetDuty(out.Reverse)
	a.hw.Limit.SetDuty(out.Limit)

	a.telemetry.Lock(func(t *Telemetry) { t.DutyNow = out.DutyNow })

	if err := a.reschedule(a.controlTask, &a.nextControl, a.cfg.ControlPeriod(), now); err != nil {
		a.Halt("control loop reschedule failed: " + err.Error())
	}
}
