package core

import (
	"errors"

	"go.einride.tech/can"
)

// PoolSize is the number of frame slots available to the firmware
const PoolSize = 128

var (
	ErrPoolExhausted = errors.New("frame pool exhausted")
	ErrStaleHandle   = errors.New("stale frame handle")
)

// FramePool is a fixed set of frame slots. Slots are handed out as Handles
// and must be released exactly once.
type FramePool struct {
	frames []can.Frame
	gens   []uint16
	inUse  []bool
	free   []uint16 // stack of free slot indices
}

// Handle is exclusive ownership of one pool slot
type Handle struct {
	pool *FramePool
	idx  uint16
	gen  uint16
}

// NewFramePool creates a pool with size slots
func NewFramePool(size int) *FramePool {
	p := &FramePool{
		frames: make([]can.Frame, size),
		gens:   make([]uint16, size),
		inUse:  make([]bool, size),
		free:   make([]uint16, size),
	}
	for i := range p.free {
		p.free[i] = uint16(size - 1 - i)
	}
	return p
}

// Alloc stores f in a free slot. Never blocks; returns ErrPoolExhausted when
// every slot is taken.
func (p *FramePool) Alloc(f can.Frame) (Handle, error) {
	n := len(p.free)
	if n == 0 {
		return Handle{}, ErrPoolExhausted
	}
	idx := p.free[n-1]
	p.free = p.free[:n-1]
	p.frames[idx] = f
	p.inUse[idx] = true
	return Handle{pool: p, idx: idx, gen: p.gens[idx]}, nil
}

// Available returns the number of free slots
func (p *FramePool) Available() int {
	return len(p.free)
}

// Cap returns the total number of slots
func (p *FramePool) Cap() int {
	return len(p.frames)
}

func (h Handle) valid() bool {
	return h.pool != nil && h.pool.inUse[h.idx] && h.pool.gens[h.idx] == h.gen
}

// Valid reports whether the handle still owns its slot
func (h Handle) Valid() bool {
	return h.valid()
}

// Frame returns the pooled frame. A stale handle yields the zero frame.
func (h Handle) Frame() can.Frame {
	if !h.valid() {
		return can.Frame{}
	}
	return h.pool.frames[h.idx]
}

// Release returns the slot to its pool. Releasing twice, or releasing a
// handle whose slot was reused, fails with ErrStaleHandle.
func (h Handle) Release() error {
	if !h.valid() {
		return ErrStaleHandle
	}
	p := h.pool
	p.inUse[h.idx] = false
	p.gens[h.idx]++
	p.frames[h.idx] = can.Frame{}
	p.free = append(p.free, h.idx)
	return nil
}
