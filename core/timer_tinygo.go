//go:build tinygo

package core

import "sync/atomic"

var (
	systemTicksValue uint32

	// hardwareTicks reads the free-running timer directly when the target
	// registers one, so ISR code sees fresh time without the main loop.
	hardwareTicks func() uint32
)

// SetTickSource registers the hardware timer reader
func SetTickSource(read func() uint32) {
	hardwareTicks = read
}

// getSystemTicks returns the current system ticks
func getSystemTicks() uint32 {
	if hardwareTicks != nil {
		return hardwareTicks()
	}
	return atomic.LoadUint32(&systemTicksValue)
}

// setSystemTicks sets the system ticks
func setSystemTicks(ticks uint32) {
	atomic.StoreUint32(&systemTicksValue, ticks)
}
