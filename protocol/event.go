package protocol

import (
	"encoding/binary"
	"math"

	"go.einride.tech/can"
)

// Event is an outgoing node -> host message
type Event interface {
	event()
}

// StatusUpdate is the periodic telemetry report
type StatusUpdate struct {
	CurrentNow float32 // amps
	DutyNow    int16
}

// Overcurrent is raised by the overcurrent comparator line
type Overcurrent struct {
	CurrentNow   float32
	CurrentLimit float32
}

// Fault carries an error code from the driver fault line
type Fault struct {
	Code ErrorCode
}

func (StatusUpdate) event() {}
func (Overcurrent) event()  {}
func (Fault) event()        {}

// EncodeEvent converts an event into a data frame addressed from node.
// Multi-byte fields are little-endian, the node's native order.
func EncodeEvent(e Event, node uint8) can.Frame {
	var f can.Frame
	switch e := e.(type) {
	case StatusUpdate:
		f.ID = ComposeID(node, EvtStatusUpdate)
		f.Length = 6
		binary.LittleEndian.PutUint16(f.Data[0:2], uint16(e.DutyNow))
		binary.LittleEndian.PutUint32(f.Data[2:6], math.Float32bits(e.CurrentNow))
	case Overcurrent:
		f.ID = ComposeID(node, EvtOvercurrent)
		f.Length = 8
		binary.LittleEndian.PutUint32(f.Data[0:4], math.Float32bits(e.CurrentNow))
		binary.LittleEndian.PutUint32(f.Data[4:8], math.Float32bits(e.CurrentLimit))
	case Fault:
		f.ID = ComposeID(node, EvtFault)
		f.Length = 1
		f.Data[0] = byte(e.Code)
	}
	return f
}

// DecodeEvent is the host-side inverse of EncodeEvent
func DecodeEvent(f can.Frame) (uint8, Event, error) {
	if f.IsExtended {
		return 0, nil, ErrInvalidIDFormat
	}
	if f.IsRemote {
		return 0, nil, ErrFrameType
	}

	node, cmd := SplitID(f.ID)
	switch cmd {
	case EvtFault:
		if err := checkLength(f, 1); err != nil {
			return node, nil, err
		}
		return node, Fault{Code: ErrorCode(f.Data[0])}, nil
	case EvtStatusUpdate:
		if err := checkLength(f, 6); err != nil {
			return node, nil, err
		}
		return node, StatusUpdate{
			DutyNow:    int16(binary.LittleEndian.Uint16(f.Data[0:2])),
			CurrentNow: math.Float32frombits(binary.LittleEndian.Uint32(f.Data[2:6])),
		}, nil
	case EvtOvercurrent:
		if err := checkLength(f, 8); err != nil {
			return node, nil, err
		}
		return node, Overcurrent{
			CurrentNow:   math.Float32frombits(binary.LittleEndian.Uint32(f.Data[0:4])),
			CurrentLimit: math.Float32frombits(binary.LittleEndian.Uint32(f.Data[4:8])),
		}, nil
	}
	return node, nil, ErrUnknownEvent
}
