package node

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.einride.tech/can"

	"canmotor/protocol"
)

// fakeBus records sent frames and replays queued ones
type fakeBus struct {
	mu   sync.Mutex
	sent []can.Frame
	rx   chan can.Frame
	err  error
}

func newFakeBus() *fakeBus {
	return &fakeBus{rx: make(chan can.Frame, 16)}
}

func (b *fakeBus) Send(ctx context.Context, f can.Frame) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.sent = append(b.sent, f)
	return nil
}

func (b *fakeBus) Receive(ctx context.Context) (can.Frame, error) {
	select {
	case f := <-b.rx:
		return f, nil
	case <-ctx.Done():
		return can.Frame{}, ctx.Err()
	}
}

func (b *fakeBus) Close() error { return nil }

func (b *fakeBus) frames() []can.Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]can.Frame(nil), b.sent...)
}

func TestClientCommands(t *testing.T) {
	bus := newFakeBus()
	c := NewClient(bus, 3)
	ctx := context.Background()

	steps := []func() error{
		func() error { return c.HeartBeat(ctx) },
		func() error { return c.Setpoint(ctx, 100) },
		func() error { return c.Invert(ctx, true) },
		func() error { return c.SetCurrentLimit(ctx, 12) },
		func() error { return c.SetIdleMode(ctx, protocol.Brake) },
		func() error { return c.Stop(ctx) },
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("Step %d: unexpected error %v", i, err)
		}
	}

	want := []can.Frame{
		{ID: 0x003, IsRemote: true},
		{ID: 0x203, Length: 2, Data: can.Data{100, 0}},
		{ID: 0x303, Length: 1, Data: can.Data{1}},
		{ID: 0x403, Length: 1, Data: can.Data{12}},
		{ID: 0x503, Length: 1, Data: can.Data{1}},
		{ID: 0x103, IsRemote: true},
	}
	got := bus.frames()
	if len(got) != len(want) {
		t.Fatalf("Expected %d frames, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Frame %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestClientSendError(t *testing.T) {
	bus := newFakeBus()
	bus.err = errors.New("bus off")
	c := NewClient(bus, 7)

	err := c.Stop(context.Background())
	if !errors.Is(err, bus.err) {
		t.Errorf("Expected wrapped bus error, got %v", err)
	}
}

func TestKeepAlive(t *testing.T) {
	bus := newFakeBus()
	c := NewClient(bus, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 55*time.Millisecond)
	defer cancel()

	err := c.KeepAlive(ctx, 10*time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}

	frames := bus.frames()
	if len(frames) < 2 {
		t.Fatalf("Expected at least 2 heartbeats, got %d", len(frames))
	}
	for _, f := range frames {
		if f.ID != 0x001 || !f.IsRemote {
			t.Errorf("Expected heartbeat frame, got %v", f)
		}
	}
}

func TestListenDecodesEvents(t *testing.T) {
	bus := newFakeBus()

	status := protocol.StatusUpdate{CurrentNow: 1.5, DutyNow: -100}
	bus.rx <- protocol.EncodeEvent(status, 3)
	// a setpoint command from another host shares the overcurrent id
	bus.rx <- protocol.EncodeCommand(protocol.Setpoint{Value: 5}, 3)
	bus.rx <- protocol.EncodeEvent(protocol.Fault{Code: protocol.CodeMotorDriverFault}, 4)

	ctx, cancel := context.WithCancel(context.Background())
	var reports []Report
	err := Listen(ctx, bus, func(r Report) {
		reports = append(reports, r)
		if len(reports) == 2 {
			cancel()
		}
	})
	if err != nil {
		t.Fatalf("Expected nil on cancel, got %v", err)
	}

	if len(reports) != 2 {
		t.Fatalf("Expected 2 reports, got %d", len(reports))
	}
	if reports[0].Node != 3 || reports[0].Event != status {
		t.Errorf("Unexpected first report %+v", reports[0])
	}
	if reports[1].Node != 4 {
		t.Errorf("Expected node 4, got %d", reports[1].Node)
	}
	if f, ok := reports[1].Event.(protocol.Fault); !ok || f.Code != protocol.CodeMotorDriverFault {
		t.Errorf("Expected driver fault, got %+v", reports[1].Event)
	}
	if reports[0].At.IsZero() {
		t.Error("Expected receive time to be set")
	}
}

func TestDecodeReportRejectsCommands(t *testing.T) {
	if _, ok := DecodeReport(protocol.EncodeCommand(protocol.HeartBeat{}, 1)); ok {
		t.Error("Expected heartbeat to be rejected")
	}
	if _, ok := DecodeReport(protocol.EncodeCommand(protocol.Invert{Inverted: true}, 1)); ok {
		t.Error("Expected invert to be rejected")
	}
}
