package core

import (
	"errors"

	"go.einride.tech/can"

	"canmotor/protocol"
)

// runCANRx empties the receive FIFO and hands each frame to the dispatcher
func (a *App) runCANRx() {
	for {
		f, err := a.hw.CAN.Receive()
		if errors.Is(err, ErrWouldBlock) {
			return
		}
		if err != nil {
			a.stats.RxErrors.Add(1)
			logWarn("can receive: " + err.Error())
			return
		}
		a.stats.RxFrames.Add(1)
		RecordTrace(TraceRx, uint32(a.clock.Now()), f.ID, uint32(f.Length))

		if err := a.dispatcher.Spawn(f); err != nil {
			a.stats.RxDropped.Add(1)
			logWarn("rx " + hex(f.ID, 3) + " dropped: " + err.Error())
			RecordTrace(TraceDropped, uint32(a.clock.Now()), f.ID, 5)
		}
	}
}

// runCANTx drains the transmit queue while the bus link is up
func (a *App) runCANTx() {
	now := a.clock.Now()

	var lastRx Stamp
	a.link.Lock(func(l *LinkState) { lastRx = l.LastRx })
	if !a.linkMon.Update(lastRx, now) {
		return
	}

	var res DrainResult
	a.outbox.Lock(func(o *Outbox) { res = o.Drain(a.hw.CAN) })
	a.stats.TxFrames.Add(uint32(res.Sent))
	a.stats.TxBumped.Add(uint32(res.Bumped))
	a.stats.TxDropped.Add(uint32(res.Dropped))
}

// dispatch applies one received frame to the drive state
func (a *App) dispatch(f can.Frame) {
	now := a.clock.Now()

	cmd, err := protocol.DecodeCommand(f)
	if err != nil {
		a.stats.DecodeErrors.Add(1)
		RecordTrace(TraceDecodeError, uint32(now), f.ID, uint32(f.Length))
		if a.cfg.DropMalformedFrames {
			logWarn("dropping frame " + hex(f.ID, 3) + ": " + err.Error())
			return
		}
		a.Halt("undecodable frame " + hex(f.ID, 3) + ": " + err.Error())
		return
	}

	switch c := cmd.(type) {
	case protocol.Setpoint:
		logDebug("setpoint " + itoa(int(c.Value)))
		a.drive.Lock(func(d *DriveState) { d.Setpoint = c.Value })
	case protocol.SetCurrentLimit:
		logInfo("current limit " + itoa(int(c.Amps)) + "A")
		a.drive.Lock(func(d *DriveState) { d.CurrentLimit = c.Amps })
	case protocol.Invert:
		if c.Inverted {
			logInfo("motor inverted")
		} else {
			logInfo("motor not inverted")
		}
		a.drive.Lock(func(d *DriveState) { d.Inverted = c.Inverted })
	case protocol.SetIdleMode:
		logInfo("idle mode " + c.Mode.String())
		a.drive.Lock(func(d *DriveState) { d.IdleMode = c.Mode })
	case protocol.Stop:
		logInfo("stop")
		a.drive.Lock(func(d *DriveState) { d.Setpoint = 0 })
	case protocol.HeartBeat:
		if a.cfg.Heartbeat.Enabled {
			a.link.Lock(func(l *LinkState) { l.LastHeartbeat = StampAt(now) })
		}
	}

	a.link.Lock(func(l *LinkState) { l.LastRx = StampAt(now) })
	a.k.Pend(a.canTxTask)
}
