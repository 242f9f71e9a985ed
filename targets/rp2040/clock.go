//go:build rp2040 || rp2350

package main

import (
	"canmotor/core"
	"runtime/volatile"
	"unsafe"
)

// RP2040/RP2350 Timer peripheral memory map
const (
	timerBase     = 0x40054000
	timerTIMERAWH = timerBase + 0x08 // Raw timer high word
	timerTIMERAWL = timerBase + 0x0C // Raw timer low word

	// ClockHz is the rate of the free-running timer
	ClockHz = 1000000
)

var (
	timerRAWH = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWH)))
	timerRAWL = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWL)))
)

// InitClock makes the kernel read the 1 MHz hardware timer directly, so
// interrupt handlers and tasks always see current time
func InitClock() {
	core.SetTickSource(GetHardwareTime)
}

// GetHardwareTime returns the low 32 bits of the microsecond counter.
// The kernel compares instants with wrapping arithmetic, so the 71 minute
// rollover is harmless.
func GetHardwareTime() uint32 {
	return timerRAWL.Get()
}

// GetHardwareUptime reads the full 64-bit hardware timer
func GetHardwareUptime() uint64 {
	// Read high, low, high again to detect a rollover between the reads
	for {
		high1 := timerRAWH.Get()
		low := timerRAWL.Get()
		high2 := timerRAWH.Get()
		if high1 == high2 {
			return (uint64(high1) << 32) | uint64(low)
		}
	}
}

// UpdateSystemTime copies the hardware time into the core clock. Only
// needed when no tick source is registered.
func UpdateSystemTime() {
	core.SetTime(GetHardwareTime())
}
