// Package protocol implements the canmotor CAN wire protocol
package protocol

// Version represents the canmotor firmware version
const Version = "0.1.0"

// Identifier layout (standard 11-bit frames)
const (
	NodeMask     = 0xFF // Low byte carries the node id
	CommandShift = 8    // Command field starts at bit 8
	CommandMask  = 0xFF // Only the low 3 bits survive in an 11-bit identifier

	MaxStandardID = 0x7FF
	MaxPayload    = 8
)

// Incoming command numbers (host -> node)
const (
	CmdHeartBeat       = 0x0 // remote frame
	CmdStop            = 0x1 // remote frame
	CmdSetpoint        = 0x2
	CmdInvert          = 0x3
	CmdSetCurrentLimit = 0x4
	CmdSetIdleMode     = 0x5
)

// Outgoing event numbers (node -> host)
const (
	EvtFault        = 0x0
	EvtStatusUpdate = 0x1
	EvtOvercurrent  = 0x2
)

// ComposeID builds the standard identifier for a node and command
func ComposeID(node uint8, cmd uint8) uint32 {
	return (uint32(node) | uint32(cmd)<<CommandShift) & MaxStandardID
}

// SplitID returns the node and command fields of an identifier
func SplitID(id uint32) (node uint8, cmd uint16) {
	return uint8(id & NodeMask), uint16((id >> CommandShift) & CommandMask)
}

// IdleMode selects the drive output when no drive is commanded
type IdleMode uint8

const (
	// Coast leaves both bridge channels at zero duty (free-wheel)
	Coast IdleMode = 0
	// Brake drives both bridge channels at max duty (dynamic braking)
	Brake IdleMode = 1
)

func (m IdleMode) String() string {
	switch m {
	case Coast:
		return "coast"
	case Brake:
		return "brake"
	default:
		return "invalid"
	}
}

// ParseIdleMode maps a wire byte to an IdleMode
func ParseIdleMode(b byte) (IdleMode, bool) {
	switch IdleMode(b) {
	case Coast, Brake:
		return IdleMode(b), true
	}
	return 0, false
}

// ErrorCode is the payload of a Fault event
type ErrorCode uint8

const (
	CodeNone             ErrorCode = 0
	CodeMotorDriverFault ErrorCode = 1
	CodeCanError         ErrorCode = 2
	CodeOther            ErrorCode = 3
)

func (c ErrorCode) String() string {
	switch c {
	case CodeNone:
		return "none"
	case CodeMotorDriverFault:
		return "motor driver fault"
	case CodeCanError:
		return "can error"
	case CodeOther:
		return "other"
	default:
		return "unknown"
	}
}
