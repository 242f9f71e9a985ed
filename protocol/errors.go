package protocol

import (
	"errors"
	"strconv"
)

var (
	// ErrFrameType is returned when a command arrives as a remote frame but
	// needs a data frame, or the other way around.
	ErrFrameType = errors.New("frame type is incorrect (remote vs data frames)")

	// ErrInvalidIDFormat is returned for extended identifiers
	ErrInvalidIDFormat = errors.New("invalid id format")

	// ErrUnknownEvent is returned by DecodeEvent for unknown event numbers
	ErrUnknownEvent = errors.New("unknown event")
)

// TooShortError reports a data frame shorter than its command requires
type TooShortError struct {
	Minimum uint8
	Actual  uint8
}

func (e *TooShortError) Error() string {
	return "data frame too short: received dlc = " + strconv.Itoa(int(e.Actual)) +
		", requires length " + strconv.Itoa(int(e.Minimum))
}

// InvalidCommandError reports a command number outside the command table
type InvalidCommandError struct {
	Cmd uint16
}

func (e *InvalidCommandError) Error() string {
	return "invalid command " + strconv.Itoa(int(e.Cmd))
}

// InvalidFrameError reports a frame whose payload cannot be interpreted
type InvalidFrameError struct {
	Reason string
}

func (e *InvalidFrameError) Error() string {
	return "invalid frame: " + e.Reason
}

// IsDecodeError reports whether err came out of DecodeCommand
func IsDecodeError(err error) bool {
	var (
		short *TooShortError
		cmd   *InvalidCommandError
		frame *InvalidFrameError
	)
	switch {
	case errors.Is(err, ErrFrameType), errors.Is(err, ErrInvalidIDFormat):
		return true
	case errors.As(err, &short), errors.As(err, &cmd), errors.As(err, &frame):
		return true
	}
	return false
}
