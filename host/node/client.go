package node

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.einride.tech/can"

	"canmotor/host/serial"
	"canmotor/host/slcan"
	"canmotor/protocol"
)

// Client commands a single node
type Client struct {
	bus  Bus
	node uint8
}

// NewClient returns a client for node on bus
func NewClient(bus Bus, node uint8) *Client {
	return &Client{bus: bus, node: node}
}

// Node returns the node id the client talks to
func (c *Client) Node() uint8 {
	return c.node
}

// Send encodes and transmits one command
func (c *Client) Send(ctx context.Context, cmd protocol.Command) error {
	f := protocol.EncodeCommand(cmd, c.node)
	if err := c.bus.Send(ctx, f); err != nil {
		return fmt.Errorf("node %d: %w", c.node, err)
	}
	return nil
}

func (c *Client) Setpoint(ctx context.Context, value int16) error {
	return c.Send(ctx, protocol.Setpoint{Value: value})
}

func (c *Client) SetCurrentLimit(ctx context.Context, amps uint8) error {
	return c.Send(ctx, protocol.SetCurrentLimit{Amps: amps})
}

func (c *Client) Invert(ctx context.Context, inverted bool) error {
	return c.Send(ctx, protocol.Invert{Inverted: inverted})
}

func (c *Client) SetIdleMode(ctx context.Context, mode protocol.IdleMode) error {
	return c.Send(ctx, protocol.SetIdleMode{Mode: mode})
}

func (c *Client) HeartBeat(ctx context.Context) error {
	return c.Send(ctx, protocol.HeartBeat{})
}

func (c *Client) Stop(ctx context.Context) error {
	return c.Send(ctx, protocol.Stop{})
}

// KeepAlive sends a heartbeat every interval until ctx is done. The node
// also treats any received command as bus activity, so a heartbeat period
// below the node's CAN timeout keeps its transmitter enabled.
func (c *Client) KeepAlive(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := c.HeartBeat(ctx); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := c.HeartBeat(ctx); err != nil {
				return err
			}
		}
	}
}

// Report is one decoded node event
type Report struct {
	Node  uint8
	Event protocol.Event
	At    time.Time
}

// Listen decodes node events from bus until ctx is done or the bus fails.
// Frames that are not events, such as commands from other hosts sharing
// the identifier space, are skipped.
func Listen(ctx context.Context, bus Bus, handle func(Report)) error {
	for {
		f, err := bus.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		r, ok := DecodeReport(f)
		if !ok {
			continue
		}
		r.At = time.Now()
		handle(r)
	}
}

// DecodeReport converts a frame into a report. ok is false for frames that
// do not decode as an event.
func DecodeReport(f can.Frame) (Report, bool) {
	node, ev, err := protocol.DecodeEvent(f)
	if err != nil {
		return Report{}, false
	}
	return Report{Node: node, Event: ev}, true
}

// OpenSLCAN opens an SLCAN adapter on a serial device
func OpenSLCAN(device string, bitrate int) (Bus, error) {
	port, err := serial.Open(serial.DefaultConfig(device))
	if err != nil {
		return nil, err
	}
	bus, err := slcan.Open(port, bitrate)
	if err != nil {
		port.Close()
		return nil, err
	}
	return bus, nil
}
