package protocol

import (
	"encoding/binary"

	"go.einride.tech/can"
)

// Command is a decoded host -> node frame. The concrete types below are the
// only implementations; callers match them with a type switch.
type Command interface {
	command()
}

// Setpoint sets the signed drive duty (0 = stop)
type Setpoint struct {
	Value int16
}

// SetCurrentLimit sets the current limit in amps
type SetCurrentLimit struct {
	Amps uint8
}

// Invert flips the drive direction
type Invert struct {
	Inverted bool
}

// SetIdleMode selects coast or brake when the motor is not driven
type SetIdleMode struct {
	Mode IdleMode
}

// HeartBeat keeps host supervision alive
type HeartBeat struct{}

// Stop forces the setpoint to zero
type Stop struct{}

func (Setpoint) command()        {}
func (SetCurrentLimit) command() {}
func (Invert) command()          {}
func (SetIdleMode) command()     {}
func (HeartBeat) command()       {}
func (Stop) command()            {}

// checkLength enforces the minimum payload length of a data command
func checkLength(f can.Frame, minimum uint8) error {
	if f.Length < minimum {
		return &TooShortError{Minimum: minimum, Actual: f.Length}
	}
	return nil
}

// DecodeCommand converts a received frame into a Command.
// The node id is not checked here; the receive filter already did that.
func DecodeCommand(f can.Frame) (Command, error) {
	if f.IsExtended {
		return nil, ErrInvalidIDFormat
	}

	_, cmd := SplitID(f.ID)

	if f.IsRemote {
		switch cmd {
		case CmdHeartBeat:
			return HeartBeat{}, nil
		case CmdStop:
			return Stop{}, nil
		default:
			return nil, ErrFrameType
		}
	}

	switch cmd {
	case CmdHeartBeat, CmdStop:
		return nil, &InvalidFrameError{Reason: "should be a remote frame"}

	case CmdSetpoint:
		if err := checkLength(f, 2); err != nil {
			return nil, err
		}
		return Setpoint{Value: int16(binary.LittleEndian.Uint16(f.Data[0:2]))}, nil

	case CmdInvert:
		if err := checkLength(f, 1); err != nil {
			return nil, err
		}
		return Invert{Inverted: f.Data[0] > 0}, nil

	case CmdSetCurrentLimit:
		if err := checkLength(f, 1); err != nil {
			return nil, err
		}
		return SetCurrentLimit{Amps: f.Data[0]}, nil

	case CmdSetIdleMode:
		if err := checkLength(f, 1); err != nil {
			return nil, err
		}
		mode, ok := ParseIdleMode(f.Data[0])
		if !ok {
			return nil, &InvalidFrameError{Reason: "idle mode out of range"}
		}
		return SetIdleMode{Mode: mode}, nil

	default:
		return nil, &InvalidCommandError{Cmd: cmd}
	}
}

// EncodeCommand builds the frame a host sends to a node
func EncodeCommand(c Command, node uint8) can.Frame {
	var f can.Frame
	switch c := c.(type) {
	case HeartBeat:
		f.ID = ComposeID(node, CmdHeartBeat)
		f.IsRemote = true
	case Stop:
		f.ID = ComposeID(node, CmdStop)
		f.IsRemote = true
	case Setpoint:
		f.ID = ComposeID(node, CmdSetpoint)
		f.Length = 2
		binary.LittleEndian.PutUint16(f.Data[0:2], uint16(c.Value))
	case Invert:
		f.ID = ComposeID(node, CmdInvert)
		f.Length = 1
		if c.Inverted {
			f.Data[0] = 1
		}
	case SetCurrentLimit:
		f.ID = ComposeID(node, CmdSetCurrentLimit)
		f.Length = 1
		f.Data[0] = c.Amps
	case SetIdleMode:
		f.ID = ComposeID(node, CmdSetIdleMode)
		f.Length = 1
		f.Data[0] = byte(c.Mode)
	}
	return f
}
