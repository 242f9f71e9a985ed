package core

// Mailbox is a software task fed with messages. Each Spawn queues one
// message and owes the task one dispatch; messages are handled in order.
type Mailbox[T any] struct {
	k       *Kernel
	id      TaskID
	queue   *Ring[T]
	handler func(T)
}

// NewMailbox registers a software task that runs handler once per message.
// capacity bounds the number of queued messages.
func NewMailbox[T any](k *Kernel, name string, prio Priority, capacity int, handler func(T)) (*Mailbox[T], error) {
	m := &Mailbox[T]{
		k:       k,
		queue:   NewRing[T](capacity),
		handler: handler,
	}
	id, err := k.Register(TaskSpec{Name: name, Priority: prio, Run: m.run})
	if err != nil {
		return nil, err
	}
	m.id = id
	return m, nil
}

// Spawn queues msg for the task. Returns ErrSpawnQueueFull when the
// mailbox is at capacity; the message is not queued.
func (m *Mailbox[T]) Spawn(msg T) error {
	state := disableInterrupts()
	if !m.queue.Push(msg) {
		restoreInterrupts(state)
		return ErrSpawnQueueFull
	}
	m.k.post(m.id)
	restoreInterrupts(state)

	if !InInterrupt() {
		m.k.dispatch()
	}
	return nil
}

// ID returns the task id backing the mailbox
func (m *Mailbox[T]) ID() TaskID {
	return m.id
}

// Len returns the number of queued messages
func (m *Mailbox[T]) Len() int {
	return m.queue.Len()
}

func (m *Mailbox[T]) run() {
	state := disableInterrupts()
	msg, ok := m.queue.Pop()
	restoreInterrupts(state)

	if ok {
		m.handler(msg)
	}
}
