package slcan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.einride.tech/can"
)

// ErrClosed is returned after Close
var ErrClosed = errors.New("slcan: bus closed")

// Bus is a CAN bus reached through an SLCAN adapter on a serial port
type Bus struct {
	port io.ReadWriteCloser

	lines  *lineBuffer
	frames chan can.Frame

	writeMutex sync.Mutex

	adapterErrors atomic.Uint32
	decodeErrors  atomic.Uint32

	closeOnce sync.Once
	stopChan  chan struct{}
	doneChan  chan struct{}
}

// Open closes any open channel on the adapter, sets the bit rate, opens
// the channel and starts the background reader
func Open(port io.ReadWriteCloser, bitrate int) (*Bus, error) {
	rate, err := BitrateCommand(bitrate)
	if err != nil {
		return nil, err
	}

	b := &Bus{
		port:     port,
		lines:    newLineBuffer(512),
		frames:   make(chan can.Frame, 64),
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}

	for _, cmd := range [][]byte{[]byte("C\r"), rate, []byte("O\r")} {
		if err := b.write(cmd); err != nil {
			return nil, fmt.Errorf("slcan setup: %w", err)
		}
	}

	go b.readLoop()
	return b, nil
}

// Send transmits one frame
func (b *Bus) Send(ctx context.Context, f can.Frame) error {
	msg, err := Encode(f)
	if err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-b.stopChan:
		return ErrClosed
	default:
	}
	return b.write(msg)
}

// Receive waits for the next frame
func (b *Bus) Receive(ctx context.Context) (can.Frame, error) {
	select {
	case f := <-b.frames:
		return f, nil
	case <-ctx.Done():
		return can.Frame{}, ctx.Err()
	case <-b.doneChan:
		return can.Frame{}, ErrClosed
	}
}

// Errors returns the number of BEL replies and undecodable messages
func (b *Bus) Errors() (adapter, decode uint32) {
	return b.adapterErrors.Load(), b.decodeErrors.Load()
}

// Close closes the adapter channel and the serial port
func (b *Bus) Close() error {
	var err error
	b.closeOnce.Do(func() {
		// Best effort, the adapter may already be gone
		_ = b.write([]byte("C\r"))
		close(b.stopChan)
		err = b.port.Close()
		<-b.doneChan
	})
	return err
}

func (b *Bus) write(msg []byte) error {
	b.writeMutex.Lock()
	defer b.writeMutex.Unlock()

	for len(msg) > 0 {
		n, err := b.port.Write(msg)
		if err != nil {
			return err
		}
		msg = msg[n:]
	}
	return nil
}

// readLoop continuously reads from the serial port and decodes messages
func (b *Bus) readLoop() {
	defer close(b.doneChan)

	buffer := make([]byte, 256)
	for {
		select {
		case <-b.stopChan:
			return
		default:
		}

		n, err := b.port.Read(buffer)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return
			}
			select {
			case <-b.stopChan:
				return
			case <-time.After(10 * time.Millisecond):
			}
			continue
		}

		data := buffer[:n]
		for len(data) > 0 {
			w := b.lines.Write(data)
			data = data[w:]
			if !b.process() {
				return
			}
			if b.lines.Full() {
				b.decodeErrors.Add(1)
				b.lines.Reset()
			}
		}
	}
}

// process drains complete messages. It returns false once the bus is
// closing.
func (b *Bus) process() bool {
	for {
		msg, ok := b.lines.Next()
		if !ok {
			return true
		}
		if len(msg) == 1 && msg[0] == cr {
			// command acknowledged
			continue
		}
		f, err := Decode(msg)
		switch {
		case errors.Is(err, ErrAdapter):
			b.adapterErrors.Add(1)
			continue
		case errors.Is(err, ErrNotFrame):
			// version, status and "z" transmit acks
			continue
		case err != nil:
			b.decodeErrors.Add(1)
			continue
		}
		select {
		case b.frames <- f:
		case <-b.stopChan:
			return false
		}
	}
}
