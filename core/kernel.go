package core

import "errors"

// Priority is a task priority. Higher values preempt lower ones; 0 is idle.
type Priority uint8

// MaxPriority is the highest task priority the kernel supports
const MaxPriority Priority = 7

// TaskID identifies a registered task
type TaskID uint8

const (
	MaxTasks          = 16
	TimerQueueSize    = 16
	noTimer        int8 = -1
)

var (
	ErrTooManyTasks    = errors.New("task table full")
	ErrInvalidPriority = errors.New("invalid task priority")
	ErrKernelStarted   = errors.New("kernel already started")
	ErrTimerQueueFull  = errors.New("timer queue full")
	ErrSpawnQueueFull  = errors.New("spawn queue full")
	ErrUnknownTask     = errors.New("unknown task")
)

// TaskSpec describes a statically registered task
type TaskSpec struct {
	Name     string
	Priority Priority
	Run      func()
}

type task struct {
	spec    TaskSpec
	pending int  // dispatches owed to the task
	queued  bool // present in its level's ready ring
}

// timerEntry is a node of the sorted timer list
type timerEntry struct {
	at   Instant
	task TaskID
	next int8
}

// Kernel runs tasks under stack-based priority-ceiling scheduling. A task
// runs to completion unless a task of strictly higher priority than the
// current system priority becomes ready, in which case the newcomer runs
// nested on the same stack. Locking a resource raises the system priority
// to the resource ceiling for the duration of the critical section.
type Kernel struct {
	tasks   []task
	ready   [MaxPriority + 1]*Ring[TaskID]
	system  Priority // current system priority (running task or ceiling)
	running Priority // priority of the innermost running task
	started bool
	halted  bool

	timers    [TimerQueueSize]timerEntry
	timerHead int8
	timerFree int8
}

// NewKernel creates an empty kernel
func NewKernel() *Kernel {
	k := &Kernel{timerHead: noTimer}
	for p := range k.ready {
		k.ready[p] = NewRing[TaskID](MaxTasks)
	}
	for i := range k.timers {
		k.timers[i].next = int8(i + 1)
	}
	k.timers[TimerQueueSize-1].next = noTimer
	return k
}

// Register adds a task to the static task table. Tasks can only be
// registered before Start.
func (k *Kernel) Register(spec TaskSpec) (TaskID, error) {
	if k.started {
		return 0, ErrKernelStarted
	}
	if spec.Priority == 0 || spec.Priority > MaxPriority || spec.Run == nil {
		return 0, ErrInvalidPriority
	}
	if len(k.tasks) >= MaxTasks {
		return 0, ErrTooManyTasks
	}
	k.tasks = append(k.tasks, task{spec: spec})
	return TaskID(len(k.tasks) - 1), nil
}

// Name returns the registered name of a task
func (k *Kernel) Name(id TaskID) string {
	if int(id) >= len(k.tasks) {
		return "?"
	}
	return k.tasks[id].spec.Name
}

// Start enables dispatching and runs anything pended during setup
func (k *Kernel) Start() {
	k.started = true
	k.dispatch()
}

// Pend marks a task ready. Pending an already pending task is a no-op.
// From interrupt context the task is only latched; it runs on the next
// dispatch from thread context.
func (k *Kernel) Pend(id TaskID) {
	state := disableInterrupts()
	if int(id) < len(k.tasks) && k.tasks[id].pending == 0 {
		k.tasks[id].pending = 1
		k.enqueue(id)
	}
	restoreInterrupts(state)

	if !InInterrupt() {
		k.dispatch()
	}
}

// post adds one owed dispatch to a task. Callers hold interrupts masked.
func (k *Kernel) post(id TaskID) {
	k.tasks[id].pending++
	k.enqueue(id)
}

func (k *Kernel) enqueue(id TaskID) {
	t := &k.tasks[id]
	if t.queued {
		return
	}
	t.queued = true
	k.ready[t.spec.Priority].Push(id)
}

// next pops the highest ready task above the system priority
func (k *Kernel) next() (TaskID, bool) {
	for p := MaxPriority; p > k.system; p-- {
		id, ok := k.ready[p].Pop()
		if !ok {
			continue
		}
		t := &k.tasks[id]
		t.pending--
		if t.pending > 0 {
			// Back of the ring so equal-priority tasks take turns.
			k.ready[p].Push(id)
		} else {
			t.queued = false
		}
		return id, true
	}
	return 0, false
}

// dispatch runs every ready task whose priority is above the current
// system priority, highest first
func (k *Kernel) dispatch() {
	for {
		state := disableInterrupts()
		if !k.started || k.halted {
			restoreInterrupts(state)
			return
		}
		id, ok := k.next()
		if !ok {
			restoreInterrupts(state)
			return
		}
		prevSystem, prevRunning := k.system, k.running
		k.system = k.tasks[id].spec.Priority
		k.running = k.system
		restoreInterrupts(state)

		k.tasks[id].spec.Run()

		state = disableInterrupts()
		k.system, k.running = prevSystem, prevRunning
		restoreInterrupts(state)
	}
}

// raise lifts the system priority to ceiling and returns the previous value
func (k *Kernel) raise(ceiling Priority) Priority {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	if ceiling < k.running {
		panic("resource ceiling below running task priority")
	}
	prev := k.system
	if ceiling > prev {
		k.system = ceiling
	}
	return prev
}

// lower restores the system priority and runs anything that became ready
// while it was raised
func (k *Kernel) lower(prev Priority) {
	state := disableInterrupts()
	k.system = prev
	restoreInterrupts(state)

	if !InInterrupt() {
		k.dispatch()
	}
}

// SystemPriority returns the current system priority
func (k *Kernel) SystemPriority() Priority {
	return k.system
}

// Schedule pends task id once the clock reaches at. The timer queue has a
// fixed capacity; when it is full ErrTimerQueueFull is returned.
func (k *Kernel) Schedule(id TaskID, at Instant) error {
	if int(id) >= len(k.tasks) {
		return ErrUnknownTask
	}

	state := disableInterrupts()
	defer restoreInterrupts(state)

	slot := k.timerFree
	if slot == noTimer {
		return ErrTimerQueueFull
	}
	k.timerFree = k.timers[slot].next
	k.timers[slot] = timerEntry{at: at, task: id, next: noTimer}
	k.insertTimer(slot)
	return nil
}

// insertTimer links slot into the list sorted by wake time. Entries with
// equal wake times keep insertion order.
func (k *Kernel) insertTimer(slot int8) {
	e := &k.timers[slot]
	if k.timerHead == noTimer || e.at.Before(k.timers[k.timerHead].at) {
		e.next = k.timerHead
		k.timerHead = slot
		return
	}

	cur := k.timerHead
	for k.timers[cur].next != noTimer && !e.at.Before(k.timers[k.timers[cur].next].at) {
		cur = k.timers[cur].next
	}
	e.next = k.timers[cur].next
	k.timers[cur].next = slot
}

// Tick pends every task whose wake time has been reached
func (k *Kernel) Tick(now Instant) {
	state := disableInterrupts()
	for k.timerHead != noTimer && !now.Before(k.timers[k.timerHead].at) {
		slot := k.timerHead
		e := &k.timers[slot]
		k.timerHead = e.next

		if k.tasks[e.task].pending == 0 {
			k.tasks[e.task].pending = 1
			k.enqueue(e.task)
		}

		e.next = k.timerFree
		k.timerFree = slot
	}
	restoreInterrupts(state)

	if !InInterrupt() {
		k.dispatch()
	}
}

// NextWake returns the earliest scheduled wake time
func (k *Kernel) NextWake() (Instant, bool) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	if k.timerHead == noTimer {
		return 0, false
	}
	return k.timers[k.timerHead].at, true
}

// Halt stops all further dispatching. Pending work is abandoned.
func (k *Kernel) Halt() {
	state := disableInterrupts()
	k.halted = true
	restoreInterrupts(state)
}

// Halted reports whether Halt was called
func (k *Kernel) Halted() bool {
	return k.halted
}
