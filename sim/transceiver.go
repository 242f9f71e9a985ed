package sim

import (
	"sync"

	"go.einride.tech/can"

	"canmotor/core"
	"canmotor/protocol"
)

// Mailboxes is the number of hardware transmit mailboxes
const Mailboxes = 3

// RxFIFODepth is the default receive FIFO depth
const RxFIFODepth = 6

// Transceiver models a CAN controller with three transmit mailboxes and a
// receive FIFO. When every mailbox is occupied a frame that outranks the
// lowest priority occupant evicts it and the evicted frame is returned as
// bumped.
type Transceiver struct {
	mu sync.Mutex

	mailbox [Mailboxes]can.Frame
	busy    [Mailboxes]bool
	sent    []can.Frame

	rx       []can.Frame
	overflow int

	// RxDepth is the receive FIFO depth
	RxDepth int

	// Accept is the acceptance filter applied by Inject; nil accepts all
	Accept func(can.Frame) bool

	// TxErr, when set, is returned by the next Transmit
	TxErr error
}

// NewTransceiver creates an idle controller
func NewTransceiver() *Transceiver {
	return &Transceiver{RxDepth: RxFIFODepth}
}

// AcceptNode installs an acceptance filter for frames addressed to node
func (t *Transceiver) AcceptNode(node uint8) {
	t.Accept = func(f can.Frame) bool {
		n, _ := protocol.SplitID(f.ID)
		return !f.IsExtended && n == node
	}
}

func (t *Transceiver) Transmit(f can.Frame) (can.Frame, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.TxErr; err != nil {
		t.TxErr = nil
		return can.Frame{}, false, err
	}

	for i := range t.mailbox {
		if !t.busy[i] {
			t.mailbox[i] = f
			t.busy[i] = true
			return can.Frame{}, false, nil
		}
	}

	worst := 0
	for i := 1; i < Mailboxes; i++ {
		if protocol.Outranks(t.mailbox[worst], t.mailbox[i]) {
			worst = i
		}
	}
	if !protocol.Outranks(f, t.mailbox[worst]) {
		return can.Frame{}, false, core.ErrWouldBlock
	}
	bumped := t.mailbox[worst]
	t.mailbox[worst] = f
	return bumped, true, nil
}

func (t *Transceiver) Receive() (can.Frame, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.rx) == 0 {
		return can.Frame{}, core.ErrWouldBlock
	}
	f := t.rx[0]
	t.rx = t.rx[1:]
	return f, nil
}

// Inject places frames in the receive FIFO. Frames rejected by the
// acceptance filter are ignored; frames beyond the FIFO depth are lost.
// Returns the number of frames accepted.
func (t *Transceiver) Inject(frames ...can.Frame) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, f := range frames {
		if t.Accept != nil && !t.Accept(f) {
			continue
		}
		if len(t.rx) >= t.RxDepth {
			t.overflow++
			continue
		}
		t.rx = append(t.rx, f)
		n++
	}
	return n
}

// Complete puts up to n pending mailbox frames on the bus, highest
// priority first, freeing their mailboxes. Returns the frames sent.
func (t *Transceiver) Complete(n int) []can.Frame {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []can.Frame
	for ; n > 0; n-- {
		best := -1
		for i := range t.mailbox {
			if t.busy[i] && (best < 0 || protocol.Outranks(t.mailbox[i], t.mailbox[best])) {
				best = i
			}
		}
		if best < 0 {
			break
		}
		out = append(out, t.mailbox[best])
		t.busy[best] = false
		t.mailbox[best] = can.Frame{}
	}
	t.sent = append(t.sent, out...)
	return out
}

// Pending returns the frames occupying mailboxes
func (t *Transceiver) Pending() []can.Frame {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []can.Frame
	for i := range t.mailbox {
		if t.busy[i] {
			out = append(out, t.mailbox[i])
		}
	}
	return out
}

// Sent returns every frame completed so far
func (t *Transceiver) Sent() []can.Frame {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]can.Frame(nil), t.sent...)
}

// TakeSent returns and clears the completed frames
func (t *Transceiver) TakeSent() []can.Frame {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.sent
	t.sent = nil
	return out
}

// Overflows returns the number of frames lost to a full receive FIFO
func (t *Transceiver) Overflows() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.overflow
}
