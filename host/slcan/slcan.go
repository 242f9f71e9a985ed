// Package slcan speaks the Lawicel ASCII protocol used by serial CAN
// adapters.
//
// A standard data frame is "tIIIL" followed by 2*L hex digits, a remote
// frame "rIIIL". Extended frames use "T"/"R" and 8 identifier digits.
// Every message ends with a carriage return; the adapter answers commands
// with "\r" on success or BEL on error.
package slcan

import (
	"errors"
	"fmt"

	"go.einride.tech/can"
)

const (
	cr  = '\r'
	bel = '\a'

	maxStandardID = 0x7FF
	maxExtendedID = 0x1FFFFFFF
)

var (
	ErrEmpty      = errors.New("slcan: empty message")
	ErrNotFrame   = errors.New("slcan: not a frame message")
	ErrAdapter    = errors.New("slcan: adapter reported error")
	ErrBadLength  = errors.New("slcan: bad data length")
	ErrBadHex     = errors.New("slcan: bad hex digit")
	ErrIDTooLarge = errors.New("slcan: identifier out of range")
)

const hexDigits = "0123456789ABCDEF"

// Bit rate commands, "S0" .. "S8"
var bitrates = map[int]byte{
	10000:   '0',
	20000:   '1',
	50000:   '2',
	100000:  '3',
	125000:  '4',
	250000:  '5',
	500000:  '6',
	800000:  '7',
	1000000: '8',
}

// BitrateCommand returns the "Sn\r" command for a bit rate
func BitrateCommand(bitrate int) ([]byte, error) {
	c, ok := bitrates[bitrate]
	if !ok {
		return nil, fmt.Errorf("slcan: unsupported bitrate %d", bitrate)
	}
	return []byte{'S', c, cr}, nil
}

// Encode formats a frame as an SLCAN message including the trailing CR
func Encode(f can.Frame) ([]byte, error) {
	if f.Length > 8 {
		return nil, ErrBadLength
	}
	var kind byte
	var idDigits int
	switch {
	case f.IsExtended && f.IsRemote:
		kind, idDigits = 'R', 8
	case f.IsExtended:
		kind, idDigits = 'T', 8
	case f.IsRemote:
		kind, idDigits = 'r', 3
	default:
		kind, idDigits = 't', 3
	}
	if f.IsExtended && f.ID > maxExtendedID || !f.IsExtended && f.ID > maxStandardID {
		return nil, ErrIDTooLarge
	}

	out := make([]byte, 0, 1+idDigits+1+16+1)
	out = append(out, kind)
	out = appendHex(out, f.ID, idDigits)
	out = append(out, hexDigits[f.Length])
	if !f.IsRemote {
		for _, b := range f.Data[:f.Length] {
			out = append(out, hexDigits[b>>4], hexDigits[b&0xF])
		}
	}
	return append(out, cr), nil
}

// Decode parses one SLCAN frame message. The trailing CR is optional.
// A trailing 4 digit timestamp, appended by adapters with timestamps
// enabled, is ignored.
func Decode(msg []byte) (can.Frame, error) {
	if n := len(msg); n > 0 && msg[n-1] == cr {
		msg = msg[:n-1]
	}
	if len(msg) == 0 {
		return can.Frame{}, ErrEmpty
	}

	var f can.Frame
	idDigits := 3
	switch msg[0] {
	case 't':
	case 'r':
		f.IsRemote = true
	case 'T':
		f.IsExtended = true
		idDigits = 8
	case 'R':
		f.IsExtended, f.IsRemote = true, true
		idDigits = 8
	case bel:
		return can.Frame{}, ErrAdapter
	default:
		return can.Frame{}, ErrNotFrame
	}
	msg = msg[1:]

	if len(msg) < idDigits+1 {
		return can.Frame{}, ErrBadLength
	}
	id, err := parseHex(msg[:idDigits])
	if err != nil {
		return can.Frame{}, err
	}
	if f.IsExtended && id > maxExtendedID || !f.IsExtended && id > maxStandardID {
		return can.Frame{}, ErrIDTooLarge
	}
	f.ID = id

	dlc, err := parseHex(msg[idDigits : idDigits+1])
	if err != nil {
		return can.Frame{}, err
	}
	if dlc > 8 {
		return can.Frame{}, ErrBadLength
	}
	f.Length = uint8(dlc)
	msg = msg[idDigits+1:]

	if f.IsRemote {
		return f, nil
	}
	if len(msg) < 2*int(f.Length) {
		return can.Frame{}, ErrBadLength
	}
	for i := 0; i < int(f.Length); i++ {
		b, err := parseHex(msg[2*i : 2*i+2])
		if err != nil {
			return can.Frame{}, err
		}
		f.Data[i] = byte(b)
	}
	rest := msg[2*f.Length:]
	if len(rest) != 0 && len(rest) != 4 {
		return can.Frame{}, ErrBadLength
	}
	return f, nil
}

func appendHex(out []byte, v uint32, digits int) []byte {
	for i := digits - 1; i >= 0; i-- {
		out = append(out, hexDigits[(v>>(4*uint(i)))&0xF])
	}
	return out
}

func parseHex(s []byte) (uint32, error) {
	var v uint32
	for _, c := range s {
		var d byte
		switch {
		case c >= '0' && c <= '9':
			d = c - '0'
		case c >= 'A' && c <= 'F':
			d = c - 'A' + 10
		case c >= 'a' && c <= 'f':
			d = c - 'a' + 10
		default:
			return 0, ErrBadHex
		}
		v = v<<4 | uint32(d)
	}
	return v, nil
}
