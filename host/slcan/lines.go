package slcan

// lineBuffer is a circular buffer that collects serial input and hands out
// complete CR or BEL terminated messages
type lineBuffer struct {
	buf   []byte
	read  int
	write int
	size  int
}

func newLineBuffer(capacity int) *lineBuffer {
	return &lineBuffer{
		buf:  make([]byte, capacity),
		size: capacity,
	}
}

// Write appends data and returns the number of bytes stored. Bytes that do
// not fit are dropped.
func (l *lineBuffer) Write(data []byte) int {
	written := 0
	for _, b := range data {
		next := (l.write + 1) % l.size
		if next == l.read {
			break
		}
		l.buf[l.write] = b
		l.write = next
		written++
	}
	return written
}

// Available returns the number of buffered bytes
func (l *lineBuffer) Available() int {
	if l.write >= l.read {
		return l.write - l.read
	}
	return l.size - l.read + l.write
}

// Next removes and returns the next complete message including its
// terminator. ok is false when no terminator has arrived yet.
func (l *lineBuffer) Next() (msg []byte, ok bool) {
	for i, n := l.read, 0; i != l.write; i, n = (i+1)%l.size, n+1 {
		c := l.buf[i]
		if c != cr && c != bel {
			continue
		}
		msg = make([]byte, n+1)
		for j := range msg {
			msg[j] = l.buf[(l.read+j)%l.size]
		}
		l.read = (i + 1) % l.size
		return msg, true
	}
	return nil, false
}

// Full reports whether the buffer holds no complete message and cannot
// accept more input. The caller discards the garbage with Reset.
func (l *lineBuffer) Full() bool {
	return l.Available() == l.size-1
}

// Reset clears the buffer
func (l *lineBuffer) Reset() {
	l.read = 0
	l.write = 0
}
