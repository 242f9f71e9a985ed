//go:build tinygo

package core

import "runtime/interrupt"

// State is the saved interrupt mask
type State = interrupt.State

// disableInterrupts masks interrupts around kernel bookkeeping and returns
// the previous state
func disableInterrupts() State {
	return interrupt.Disable()
}

// restoreInterrupts restores the interrupt state
func restoreInterrupts(state State) {
	interrupt.Restore(state)
}

// InInterrupt reports whether the caller runs in an interrupt handler
func InInterrupt() bool {
	return interrupt.In()
}
