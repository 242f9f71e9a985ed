package core

import (
	"errors"

	"go.einride.tech/can"
)

// ErrWouldBlock is returned by a Transceiver that cannot accept or deliver a
// frame right now
var ErrWouldBlock = errors.New("would block")

// PWMChannel is one hardware PWM output
type PWMChannel interface {
	SetDuty(duty uint16)
	MaxDuty() uint16
	Enable()
}

// Transceiver is the CAN controller. Transmit hands a frame to a hardware
// mailbox; when all mailboxes are busy the controller may evict a pending
// frame of lower priority, returned as bumped with ok set. Receive returns
// ErrWouldBlock when the receive FIFO is empty.
type Transceiver interface {
	Transmit(f can.Frame) (bumped can.Frame, ok bool, err error)
	Receive() (can.Frame, error)
}

// EdgeInput is a digital input with a latched edge flag
type EdgeInput interface {
	Pending() bool
	ClearPending()
}

// OutputPin is a digital output
type OutputPin interface {
	Set(high bool)
}

// InputPin is a digital input
type InputPin interface {
	Get() bool
}
