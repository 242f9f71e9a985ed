//go:build linux

package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"go.einride.tech/can"
	"go.einride.tech/can/pkg/socketcan"
)

var errSocketClosed = errors.New("socketcan: bus closed")

// SocketCANBus is a Bus on a Linux SocketCAN interface (can0, vcan0)
type SocketCANBus struct {
	conn net.Conn
	tx   *socketcan.Transmitter
	rx   *socketcan.Receiver

	frames chan can.Frame
	err    error

	closeOnce sync.Once
	stopChan  chan struct{}
	doneChan  chan struct{}
}

// DialSocketCAN opens iface and starts the background receiver
func DialSocketCAN(ctx context.Context, iface string) (*SocketCANBus, error) {
	conn, err := socketcan.DialContext(ctx, "can", iface)
	if err != nil {
		return nil, fmt.Errorf("socketcan dial %s: %w", iface, err)
	}
	b := &SocketCANBus{
		conn:     conn,
		tx:       socketcan.NewTransmitter(conn),
		rx:       socketcan.NewReceiver(conn),
		frames:   make(chan can.Frame, 64),
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
	go b.readLoop()
	return b, nil
}

func (b *SocketCANBus) readLoop() {
	defer close(b.doneChan)
	for b.rx.Receive() {
		if b.rx.HasErrorFrame() {
			continue
		}
		select {
		case b.frames <- b.rx.Frame():
		case <-b.stopChan:
			return
		}
	}
	b.err = b.rx.Err()
}

// Send transmits one frame
func (b *SocketCANBus) Send(ctx context.Context, f can.Frame) error {
	return b.tx.TransmitFrame(ctx, f)
}

// Receive waits for the next frame
func (b *SocketCANBus) Receive(ctx context.Context) (can.Frame, error) {
	select {
	case f := <-b.frames:
		return f, nil
	case <-ctx.Done():
		return can.Frame{}, ctx.Err()
	case <-b.doneChan:
		if b.err != nil {
			return can.Frame{}, b.err
		}
		return can.Frame{}, errSocketClosed
	}
}

// Close closes the socket and stops the receiver
func (b *SocketCANBus) Close() error {
	var err error
	b.closeOnce.Do(func() {
		close(b.stopChan)
		err = b.conn.Close()
		<-b.doneChan
	})
	return err
}
