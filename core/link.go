package core

import "sync/atomic"

// LinkMonitor decides whether the bus connection is alive. A link is up
// when a frame was received no more than Timeout ticks ago. The state seen
// by the transmit task can be read from any context.
type LinkMonitor struct {
	Timeout uint32
	up      atomic.Bool
}

// OK reports whether the link is up at now, without side effects
func (m *LinkMonitor) OK(lastRx Stamp, now Instant) bool {
	return lastRx.Within(now, m.Timeout)
}

// Update evaluates the link and logs transitions. Returns the link state.
func (m *LinkMonitor) Update(lastRx Stamp, now Instant) bool {
	ok := m.OK(lastRx, now)
	if m.up.Swap(ok) != ok {
		if ok {
			logInfo("can link up")
			RecordTrace(TraceLink, uint32(now), 1, 0)
		} else {
			logWarn("can link down, holding transmit queue")
			RecordTrace(TraceLink, uint32(now), 0, 0)
		}
	}
	return ok
}

// Up returns the state seen by the last Update
func (m *LinkMonitor) Up() bool {
	return m.up.Load()
}
