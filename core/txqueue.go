package core

import (
	"errors"

	"canmotor/protocol"
)

// TxQueueSize is the transmit queue capacity
const TxQueueSize = 16

var ErrQueueFull = errors.New("transmit queue full")

type txEntry struct {
	key uint32 // arbitration key, lower wins
	seq uint32 // insertion order among equal keys
	h   Handle
}

// TxQueue orders pending frames by CAN arbitration priority so the frame
// that would win the bus is always transmitted first. It is a binary heap
// over a fixed array.
type TxQueue struct {
	heap []txEntry
	seq  uint32
}

// NewTxQueue creates a queue holding up to size frames
func NewTxQueue(size int) *TxQueue {
	return &TxQueue{heap: make([]txEntry, 0, size)}
}

func (e txEntry) before(o txEntry) bool {
	if e.key != o.key {
		return e.key < o.key
	}
	return int32(e.seq-o.seq) < 0
}

// Push inserts a frame. When the queue is full ErrQueueFull is returned and
// the queue is unchanged; the caller keeps ownership of h.
func (q *TxQueue) Push(h Handle) error {
	if len(q.heap) == cap(q.heap) {
		return ErrQueueFull
	}
	q.heap = append(q.heap, txEntry{key: protocol.Priority(h.Frame()), seq: q.seq, h: h})
	q.seq++
	q.up(len(q.heap) - 1)
	return nil
}

// Peek returns the highest priority frame without removing it
func (q *TxQueue) Peek() (Handle, bool) {
	if len(q.heap) == 0 {
		return Handle{}, false
	}
	return q.heap[0].h, true
}

// Pop removes and returns the highest priority frame
func (q *TxQueue) Pop() (Handle, bool) {
	n := len(q.heap)
	if n == 0 {
		return Handle{}, false
	}
	top := q.heap[0].h
	q.heap[0] = q.heap[n-1]
	q.heap[n-1] = txEntry{}
	q.heap = q.heap[:n-1]
	if len(q.heap) > 0 {
		q.down(0)
	}
	return top, true
}

func (q *TxQueue) Len() int {
	return len(q.heap)
}

func (q *TxQueue) Cap() int {
	return cap(q.heap)
}

func (q *TxQueue) up(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !q.heap[i].before(q.heap[parent]) {
			return
		}
		q.heap[i], q.heap[parent] = q.heap[parent], q.heap[i]
		i = parent
	}
}

func (q *TxQueue) down(i int) {
	n := len(q.heap)
	for {
		best := i
		if l := 2*i + 1; l < n && q.heap[l].before(q.heap[best]) {
			best = l
		}
		if r := 2*i + 2; r < n && q.heap[r].before(q.heap[best]) {
			best = r
		}
		if best == i {
			return
		}
		q.heap[i], q.heap[best] = q.heap[best], q.heap[i]
		i = best
	}
}
