package core

import "canmotor/protocol"

// runStatus is the periodic telemetry report
func (a *App) runStatus() {
	now := a.clock.Now()

	var t Telemetry
	a.telemetry.Lock(func(s *Telemetry) { t = *s })
	a.spawnEvent(protocol.StatusUpdate{CurrentNow: t.CurrentNow, DutyNow: t.DutyNow})

	if err := a.reschedule(a.statusTask, &a.nextStatus, a.cfg.StatusPeriod(), now); err != nil {
		// Losing telemetry does not endanger the drive.
		logError("status reschedule failed: " + err.Error())
	}
}
