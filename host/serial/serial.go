// Package serial opens the serial link to an SLCAN adapter
package serial

import (
	"errors"
	"io"
	"time"
)

// Port is the byte stream to an adapter. Reads return (0, nil) when the
// read timeout expires with nothing received.
type Port interface {
	io.ReadWriteCloser

	// Flush discards bytes received but not yet read
	Flush() error
}

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyACM0", "COM3")
	Device string

	// Baud rate (USB CDC adapters ignore this)
	Baud int

	// ReadTimeout bounds each Read so a reader can notice shutdown
	ReadTimeout time.Duration
}

// DefaultConfig returns the configuration used by common SLCAN adapters
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        115200,
		ReadTimeout: 100 * time.Millisecond,
	}
}

// Validate checks the configuration before a port is opened
func (c *Config) Validate() error {
	switch {
	case c.Device == "":
		return errors.New("serial: device path is empty")
	case c.Baud <= 0:
		return errors.New("serial: baud rate must be positive")
	case c.ReadTimeout <= 0:
		// tarm/serial blocks forever without a timeout and Close would
		// never unblock the reader on some platforms
		return errors.New("serial: read timeout must be positive")
	}
	return nil
}
