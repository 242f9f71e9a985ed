package core

import "canmotor/protocol"

// runFaults services the overcurrent and driver fault edge inputs. Each
// pending edge produces exactly one event.
func (a *App) runFaults() {
	if a.hw.Overcurrent.Pending() {
		a.hw.Overcurrent.ClearPending()

		var current float32
		a.telemetry.Lock(func(t *Telemetry) { current = t.CurrentNow })
		var limit uint8
		a.drive.Lock(func(d *DriveState) { limit = d.CurrentLimit })

		logWarn("overcurrent: " + ftoa(current) + "A, limit " + itoa(int(limit)) + "A")
		a.spawnEvent(protocol.Overcurrent{CurrentNow: current, CurrentLimit: float32(limit)})
	}

	if a.hw.DriverFault.Pending() {
		a.hw.DriverFault.ClearPending()

		logError("motor driver fault")
		a.spawnEvent(protocol.Fault{Code: protocol.CodeMotorDriverFault})
	}
}

// spawnEvent hands an event to the emit task. A full mailbox drops the event.
func (a *App) spawnEvent(ev protocol.Event) {
	if err := a.emit.Spawn(ev); err != nil {
		a.stats.EventsDropped.Add(1)
		logWarn("event dropped: " + err.Error())
		RecordTrace(TraceDropped, uint32(a.clock.Now()), 0, 3)
	}
}

// runEmit encodes an event and queues it for transmission
func (a *App) runEmit(ev protocol.Event) {
	f := protocol.EncodeEvent(ev, a.node)

	var err error
	a.outbox.Lock(func(o *Outbox) { err = o.Enqueue(f) })
	if err != nil {
		a.stats.EventsDropped.Add(1)
		logWarn("event " + hex(f.ID, 3) + " dropped: " + err.Error())
		RecordTrace(TraceDropped, uint32(a.clock.Now()), f.ID, 4)
		return
	}
	a.k.Pend(a.canTxTask)
}
