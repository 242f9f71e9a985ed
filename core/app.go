package core

import (
	"errors"
	"sync/atomic"

	"go.einride.tech/can"

	"canmotor/config"
	"canmotor/protocol"
)

// Task priorities
const (
	PrioControl Priority = 1 // control loop, status reporter, command dispatcher
	PrioEvents  Priority = 2 // fault edges, ADC completion, event emission
	PrioBus     Priority = 3 // CAN receive and transmit
)

// Software task capacities
const (
	DispatchCapacity = 16
	EmitCapacity     = 8
)

// Hardware is the board as seen by the firmware
type Hardware struct {
	Forward PWMChannel // H-bridge high side, positive setpoints
	Reverse PWMChannel // H-bridge low side, negative setpoints
	Limit   PWMChannel // current-limit bias

	Sleep OutputPin // motor driver enable, high = awake

	Overcurrent EdgeInput
	DriverFault EdgeInput

	CAN   Transceiver
	ADC   *ADCBuffer
	Clock Clock
}

func (hw Hardware) validate() error {
	switch {
	case hw.Forward == nil || hw.Reverse == nil || hw.Limit == nil:
		return errors.New("missing pwm channel")
	case hw.Sleep == nil:
		return errors.New("missing sleep pin")
	case hw.Overcurrent == nil || hw.DriverFault == nil:
		return errors.New("missing fault input")
	case hw.CAN == nil:
		return errors.New("missing can transceiver")
	case hw.ADC == nil:
		return errors.New("missing adc buffer")
	case hw.Clock == nil:
		return errors.New("missing clock")
	}
	return nil
}

// Stats counts non-fatal events. Counters are updated from tasks and read
// from anywhere.
type Stats struct {
	RxFrames      atomic.Uint32
	RxDropped     atomic.Uint32 // dispatcher mailbox full
	RxErrors      atomic.Uint32
	DecodeErrors  atomic.Uint32
	TxFrames      atomic.Uint32
	TxBumped      atomic.Uint32
	TxDropped     atomic.Uint32
	EventsDropped atomic.Uint32 // emit mailbox, pool or queue full
	ADCOverruns   atomic.Uint32
}

// StatsSnapshot is a copy of Stats
type StatsSnapshot struct {
	RxFrames      uint32
	RxDropped     uint32
	RxErrors      uint32
	DecodeErrors  uint32
	TxFrames      uint32
	TxBumped      uint32
	TxDropped     uint32
	EventsDropped uint32
	ADCOverruns   uint32
}

// App is the motor node firmware: shared state, tasks and hardware
type App struct {
	cfg  config.Config
	node uint8
	hw   Hardware
	k    *Kernel

	clock Clock

	drive     *Resource[DriveState]
	link      *Resource[LinkState]
	telemetry *Resource[Telemetry]
	outbox    *Resource[Outbox]

	linkMon LinkMonitor
	sensor  CurrentSensor
	params  DriveParams

	canRxTask   TaskID
	canTxTask   TaskID
	controlTask TaskID
	statusTask  TaskID
	faultTask   TaskID
	adcTask     TaskID
	dispatcher  *Mailbox[can.Frame]
	emit        *Mailbox[protocol.Event]

	nextControl Instant
	nextStatus  Instant

	halted     atomic.Bool
	haltReason string

	stats Stats
}

// New wires the firmware for one node. Nothing runs until Start.
func New(cfg config.Config, node uint8, hw Hardware) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := hw.validate(); err != nil {
		return nil, err
	}
	idle, err := cfg.IdleMode()
	if err != nil {
		return nil, err
	}

	k := NewKernel()
	a := &App{
		cfg:     cfg,
		node:    node,
		hw:      hw,
		k:       k,
		clock:   hw.Clock,
		linkMon: LinkMonitor{Timeout: cfg.CANTimeout()},
		sensor:  CurrentSensor{Analog: cfg.Analog},
		params: DriveParams{
			Deadband:     cfg.Deadband,
			MaxDuty:      hw.Forward.MaxDuty(),
			LimitMaxDuty: hw.Limit.MaxDuty(),
			Analog:       cfg.Analog,
		},
	}
	if m := hw.Reverse.MaxDuty(); m < a.params.MaxDuty {
		a.params.MaxDuty = m
	}

	// Ceilings are the highest priority of any task touching the resource.
	a.drive = NewResource(k, PrioEvents, DriveState{
		CurrentLimit: cfg.DefaultCurrentLimit,
		IdleMode:     idle,
	})
	a.link = NewResource(k, PrioBus, LinkState{})
	a.telemetry = NewResource(k, PrioEvents, Telemetry{})
	a.outbox = NewResource(k, PrioBus, NewOutbox(PoolSize, TxQueueSize))

	tasks := []struct {
		id   *TaskID
		spec TaskSpec
	}{
		{&a.canRxTask, TaskSpec{Name: "can_rx", Priority: PrioBus, Run: a.runCANRx}},
		{&a.canTxTask, TaskSpec{Name: "can_tx", Priority: PrioBus, Run: a.runCANTx}},
		{&a.faultTask, TaskSpec{Name: "faults", Priority: PrioEvents, Run: a.runFaults}},
		{&a.adcTask, TaskSpec{Name: "adc", Priority: PrioEvents, Run: a.runADC}},
		{&a.controlTask, TaskSpec{Name: "control", Priority: PrioControl, Run: a.runControl}},
		{&a.statusTask, TaskSpec{Name: "status", Priority: PrioControl, Run: a.runStatus}},
	}
	for _, t := range tasks {
		id, err := k.Register(t.spec)
		if err != nil {
			return nil, err
		}
		*t.id = id
	}

	if a.dispatcher, err = NewMailbox(k, "dispatch", PrioControl, DispatchCapacity, a.dispatch); err != nil {
		return nil, err
	}
	if a.emit, err = NewMailbox(k, "emit", PrioEvents, EmitCapacity, a.runEmit); err != nil {
		return nil, err
	}
	return a, nil
}

// Start enables the outputs, arms the periodic tasks and starts dispatching
func (a *App) Start() error {
	a.hw.Forward.SetDuty(0)
	a.hw.Reverse.SetDuty(0)
	a.hw.Limit.SetDuty(0)
	a.hw.Forward.Enable()
	a.hw.Reverse.Enable()
	a.hw.Limit.Enable()

	// take motor driver out of sleep mode
	a.hw.Sleep.Set(true)

	now := a.clock.Now()
	a.nextControl = now.Add(a.cfg.ControlPeriod())
	a.nextStatus = now.Add(a.cfg.StatusPeriod())
	if err := a.k.Schedule(a.controlTask, a.nextControl); err != nil {
		return err
	}
	if err := a.k.Schedule(a.statusTask, a.nextStatus); err != nil {
		return err
	}

	logInfo("canmotor " + protocol.Version + " node " + itoa(int(a.node)) + " started")
	a.k.Start()
	return nil
}

// reschedule arms a periodic task for its next deadline. Deadlines advance
// by whole periods; a task that fell behind by more than a period restarts
// from now instead of firing back to back.
func (a *App) reschedule(id TaskID, next *Instant, period uint32, now Instant) error {
	*next = next.Add(period)
	if next.Before(now) {
		*next = now.Add(period)
	}
	return a.k.Schedule(id, *next)
}

// OnCANReceive is called from the receive interrupt
func (a *App) OnCANReceive() {
	a.k.Pend(a.canRxTask)
}

// OnCANTransmit is called when a transmit mailbox frees up
func (a *App) OnCANTransmit() {
	a.k.Pend(a.canTxTask)
}

// OnEdge is called from the overcurrent and fault pin interrupts
func (a *App) OnEdge() {
	a.k.Pend(a.faultTask)
}

// OnADCComplete is called by the sampler when half of the buffer is full
func (a *App) OnADCComplete(half int) {
	if a.hw.ADC.Complete(half) {
		a.stats.ADCOverruns.Add(1)
		RecordTrace(TraceOverrun, uint32(a.clock.Now()), uint32(half), 0)
		logWarn("adc overrun on half " + itoa(half))
	}
	a.k.Pend(a.adcTask)
}

// Poll runs the timer queue. Called from the main loop or a timer interrupt.
func (a *App) Poll() {
	a.k.Tick(a.clock.Now())
}

// Halt drives every output to its safe state and stops the scheduler. The
// motor is left unpowered; only a reset recovers.
func (a *App) Halt(reason string) {
	if !a.halted.CompareAndSwap(false, true) {
		return
	}
	a.k.Halt()
	a.haltReason = reason

	a.hw.Forward.SetDuty(0)
	a.hw.Reverse.SetDuty(0)
	a.hw.Limit.SetDuty(0)
	a.hw.Sleep.Set(false)

	RecordTrace(TraceHalt, uint32(a.clock.Now()), 0, 0)
	if debugChan == nil {
		logError("halt: " + reason)
	} else if debugPrintln != nil {
		// The async worker may never run again.
		debugPrintln(LevelError.prefix() + "halt: " + reason)
	}
	DumpTrace()
}

// Halted reports whether the node halted and why
func (a *App) Halted() (bool, string) {
	if !a.halted.Load() {
		return false, ""
	}
	return true, a.haltReason
}

// Node returns the node id
func (a *App) Node() uint8 {
	return a.node
}

// Kernel exposes the scheduler
func (a *App) Kernel() *Kernel {
	return a.k
}

// Drive returns a copy of the commanded drive state
func (a *App) Drive() DriveState {
	var d DriveState
	a.drive.Lock(func(s *DriveState) { d = *s })
	return d
}

// Link returns a copy of the supervision timestamps
func (a *App) Link() LinkState {
	var l LinkState
	a.link.Lock(func(s *LinkState) { l = *s })
	return l
}

// Telemetry returns a copy of the reported state
func (a *App) Telemetry() Telemetry {
	var t Telemetry
	a.telemetry.Lock(func(s *Telemetry) { t = *s })
	return t
}

// Pending returns the number of queued frames and free pool slots
func (a *App) Pending() (queued, free int) {
	a.outbox.Lock(func(o *Outbox) {
		queued = o.Queue.Len()
		free = o.Pool.Available()
	})
	return queued, free
}

// LinkUp reports the link state seen by the transmit task
func (a *App) LinkUp() bool {
	return a.linkMon.Up()
}

// Stats returns a copy of the counters
func (a *App) Stats() StatsSnapshot {
	s := &a.stats
	return StatsSnapshot{
		RxFrames:      s.RxFrames.Load(),
		RxDropped:     s.RxDropped.Load(),
		RxErrors:      s.RxErrors.Load(),
		DecodeErrors:  s.DecodeErrors.Load(),
		TxFrames:      s.TxFrames.Load(),
		TxBumped:      s.TxBumped.Load(),
		TxDropped:     s.TxDropped.Load(),
		EventsDropped: s.EventsDropped.Load(),
		ADCOverruns:   s.ADCOverruns.Load(),
	}
}
