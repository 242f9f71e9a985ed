package core

// Instant is a point in time measured in clock ticks. The counter wraps, so
// instants are only comparable when they are less than 2^31 ticks apart.
type Instant uint32

// Add returns the instant d ticks after t
func (t Instant) Add(d uint32) Instant {
	return t + Instant(d)
}

// Sub returns the number of ticks from u to t
func (t Instant) Sub(u Instant) uint32 {
	return uint32(t - u)
}

// Before reports whether t is earlier than u
func (t Instant) Before(u Instant) bool {
	return int32(t-u) < 0
}

// Stamp is an optional Instant
type Stamp struct {
	At  Instant
	Set bool
}

// StampAt returns a stamp holding t
func StampAt(t Instant) Stamp {
	return Stamp{At: t, Set: true}
}

// Within reports whether the stamp is set and no more than timeout ticks old
func (s Stamp) Within(now Instant, timeout uint32) bool {
	return s.Set && now.Sub(s.At) <= timeout
}

// Clock provides the current time
type Clock interface {
	Now() Instant
}

// SystemClock reads the tick counter maintained by the platform
type SystemClock struct{}

// Now returns the last tick count published with SetTime
func (SystemClock) Now() Instant {
	return Instant(getSystemTicks())
}

// GetTime returns the current system time in timer ticks
func GetTime() uint32 {
	return getSystemTicks()
}

// SetTime publishes the hardware tick count (called from the target main loop)
func SetTime(ticks uint32) {
	setSystemTicks(ticks)
}
