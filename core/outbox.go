package core

import (
	"errors"

	"go.einride.tech/can"
)

// Outbox is the transmit side of the node: frame storage plus the priority
// queue. Both live behind one resource so a frame is never in the queue
// without its slot.
type Outbox struct {
	Pool  *FramePool
	Queue *TxQueue
}

// NewOutbox creates an outbox with the given pool and queue capacities
func NewOutbox(poolSize, queueSize int) Outbox {
	return Outbox{Pool: NewFramePool(poolSize), Queue: NewTxQueue(queueSize)}
}

// Enqueue copies f into the pool and queues it for transmission. On a full
// queue the slot is released again; the frame is not queued.
func (o *Outbox) Enqueue(f can.Frame) error {
	h, err := o.Pool.Alloc(f)
	if err != nil {
		return err
	}
	if err := o.Queue.Push(h); err != nil {
		_ = h.Release()
		return err
	}
	return nil
}

// DrainResult counts what happened during one Drain
type DrainResult struct {
	Sent    int
	Bumped  int // evicted frames put back on the queue
	Dropped int // frames lost to errors or exhaustion
	Blocked bool
}

// Drain hands queued frames to tx in priority order until the queue is
// empty or every mailbox is busy.
//
// A frame is popped only once the transceiver accepted it. If the
// transceiver evicted a lower priority frame to make room, that frame goes
// back on the queue so it is retried in order.
func (o *Outbox) Drain(tx Transceiver) DrainResult {
	var res DrainResult
	for {
		h, ok := o.Queue.Peek()
		if !ok {
			return res
		}
		f := h.Frame()

		bumped, didBump, err := tx.Transmit(f)
		if errors.Is(err, ErrWouldBlock) {
			res.Blocked = true
			return res
		}

		o.Queue.Pop()
		_ = h.Release()
		if err != nil {
			res.Dropped++
			logWarn("tx " + hex(f.ID, 3) + " failed: " + err.Error())
			RecordTrace(TraceDropped, GetTime(), f.ID, 1)
			continue
		}
		res.Sent++
		RecordTrace(TraceTx, GetTime(), f.ID, uint32(f.Length))

		if didBump {
			RecordTrace(TraceBumped, GetTime(), bumped.ID, 0)
			if err := o.Enqueue(bumped); err != nil {
				res.Dropped++
				logWarn("bumped frame " + hex(bumped.ID, 3) + " dropped: " + err.Error())
				RecordTrace(TraceDropped, GetTime(), bumped.ID, 2)
				continue
			}
			res.Bumped++
		}
	}
}
