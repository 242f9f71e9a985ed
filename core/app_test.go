package core_test

import (
	"testing"

	"go.einride.tech/can"

	"canmotor/config"
	"canmotor/core"
	"canmotor/protocol"
	"canmotor/sim"
)

const testNode = 3

func newNode(t *testing.T, cfg config.Config) (*core.App, *sim.Board) {
	t.Helper()
	b := sim.NewBoard(1000, cfg.Analog.SamplesPerHalf)
	b.SetNodeID(testNode)
	b.CAN.AcceptNode(testNode)

	app, err := core.New(cfg, core.ReadNodeID(b.NodePins()), b.Hardware())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := app.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return app, b
}

// receive delivers frames as the receive interrupt would
func receive(app *core.App, b *sim.Board, frames ...can.Frame) {
	b.CAN.Inject(frames...)
	app.OnCANReceive()
}

// step advances the clock and runs due timers
func step(app *core.App, b *sim.Board, ticks uint32) {
	b.Clock.Advance(ticks)
	app.Poll()
}

func command(c protocol.Command) can.Frame {
	return protocol.EncodeCommand(c, testNode)
}

func TestStartEnablesOutputs(t *testing.T) {
	app, b := newNode(t, config.Default())

	if app.Node() != testNode {
		t.Errorf("Expected node %d, got %d", testNode, app.Node())
	}
	if !b.Sleep.Get() {
		t.Errorf("Expected driver awake after Start")
	}
	for name, p := range map[string]*sim.PWM{"forward": b.Forward, "reverse": b.Reverse, "limit": b.Limit} {
		if !p.Enabled() {
			t.Errorf("Expected %s channel enabled", name)
		}
	}
	d := app.Drive()
	if d.CurrentLimit != 10 || d.IdleMode != protocol.Coast {
		t.Errorf("Expected default drive state, got %+v", d)
	}
}

func TestScenarioInvertedSetpoint(t *testing.T) {
	cfg := config.Default()
	app, b := newNode(t, cfg)

	hb := can.Frame{ID: 3 | 0<<8, IsRemote: true}
	sp := can.Frame{ID: 3 | 2<<8, Length: 2, Data: can.Data{0x64, 0x00}}
	receive(app, b, hb, command(protocol.Invert{Inverted: true}), sp)

	d := app.Drive()
	if d.Setpoint != 100 || !d.Inverted {
		t.Fatalf("Expected setpoint 100 inverted, got %+v", d)
	}
	if !app.Link().LastRx.Set {
		t.Errorf("Expected last rx recorded")
	}

	step(app, b, cfg.ControlPeriod())

	if b.Reverse.Duty() != 100 || b.Forward.Duty() != 0 {
		t.Errorf("Expected reverse 100 forward 0, got reverse %d forward %d", b.Reverse.Duty(), b.Forward.Duty())
	}
	if got := app.Telemetry().DutyNow; got != -100 {
		t.Errorf("Expected duty_now -100, got %d", got)
	}
	want := core.LimitDuty(10, cfg.Analog, b.Limit.MaxDuty())
	if b.Limit.Duty() != want {
		t.Errorf("Expected limit duty %d, got %d", want, b.Limit.Duty())
	}
}

func TestControlLoopRunsPeriodically(t *testing.T) {
	cfg := config.Default()
	app, b := newNode(t, cfg)

	for i := 0; i < 5; i++ {
		step(app, b, cfg.ControlPeriod())
	}
	if w := b.Forward.Writes(); w != 5+1 {
		t.Errorf("Expected 5 control updates after start, got %d", w-1)
	}
}

func TestStopAndIdleModes(t *testing.T) {
	cfg := config.Default()
	app, b := newNode(t, cfg)

	receive(app, b, command(protocol.SetIdleMode{Mode: protocol.Brake}), command(protocol.Setpoint{Value: 5}))
	step(app, b, cfg.ControlPeriod())
	if b.Forward.Duty() != 1000 || b.Reverse.Duty() != 1000 {
		t.Errorf("Expected brake inside deadband, got forward %d reverse %d", b.Forward.Duty(), b.Reverse.Duty())
	}

	receive(app, b, command(protocol.Setpoint{Value: 400}))
	step(app, b, cfg.ControlPeriod())
	if b.Forward.Duty() != 400 || b.Reverse.Duty() != 0 {
		t.Errorf("Expected forward 400, got forward %d reverse %d", b.Forward.Duty(), b.Reverse.Duty())
	}

	receive(app, b, command(protocol.Stop{}), command(protocol.SetIdleMode{Mode: protocol.Coast}))
	step(app, b, cfg.ControlPeriod())
	if b.Forward.Duty() != 0 || b.Reverse.Duty() != 0 || app.Drive().Setpoint != 0 {
		t.Errorf("Expected coast after stop, got forward %d reverse %d", b.Forward.Duty(), b.Reverse.Duty())
	}
}

func TestStopBrakesWithoutDeadband(t *testing.T) {
	cfg, err := config.Load([]byte(`{"deadband": 0, "default_idle_mode": "brake"}`))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	app, b := newNode(t, cfg)

	receive(app, b, command(protocol.Setpoint{Value: 300}))
	step(app, b, cfg.ControlPeriod())
	if b.Forward.Duty() != 300 || b.Reverse.Duty() != 0 {
		t.Fatalf("Expected forward 300, got forward %d reverse %d", b.Forward.Duty(), b.Reverse.Duty())
	}

	receive(app, b, command(protocol.Stop{}))
	step(app, b, cfg.ControlPeriod())
	if b.Forward.Duty() != 1000 || b.Reverse.Duty() != 1000 {
		t.Errorf("Expected brake after stop, got forward %d reverse %d", b.Forward.Duty(), b.Reverse.Duty())
	}
}

func TestLinkLossIdlesDrive(t *testing.T) {
	cfg := config.Default()
	app, b := newNode(t, cfg)

	receive(app, b, command(protocol.Setpoint{Value: 300}))
	step(app, b, cfg.ControlPeriod())
	if b.Forward.Duty() != 300 {
		t.Fatalf("Expected forward 300, got %d", b.Forward.Duty())
	}

	step(app, b, cfg.CANTimeout()+cfg.ControlPeriod())
	if b.Forward.Duty() != 0 {
		t.Errorf("Expected idle after link timeout, got forward %d", b.Forward.Duty())
	}

	receive(app, b, command(protocol.HeartBeat{}))
	step(app, b, cfg.ControlPeriod())
	if b.Forward.Duty() != 300 {
		t.Errorf("Expected drive restored after receive, got forward %d", b.Forward.Duty())
	}
}

func TestKeepDrivingOnLinkLoss(t *testing.T) {
	cfg := config.Default()
	cfg.KeepDrivingOnLinkLoss = true
	app, b := newNode(t, cfg)

	receive(app, b, command(protocol.Setpoint{Value: 300}))
	step(app, b, cfg.CANTimeout()+cfg.ControlPeriod())
	if b.Forward.Duty() != 300 {
		t.Errorf("Expected drive kept without link, got forward %d", b.Forward.Duty())
	}
}

func TestHeartbeatSupervision(t *testing.T) {
	cfg := config.Default()
	cfg.Heartbeat.Enabled = true
	app, b := newNode(t, cfg)

	receive(app, b, command(protocol.Setpoint{Value: 500}))
	step(app, b, cfg.ControlPeriod())
	if b.Forward.Duty() != 0 {
		t.Errorf("Expected idle without heartbeat, got forward %d", b.Forward.Duty())
	}

	receive(app, b, command(protocol.HeartBeat{}))
	step(app, b, cfg.ControlPeriod())
	if b.Forward.Duty() != 500 {
		t.Errorf("Expected forward 500 with fresh heartbeat, got %d", b.Forward.Duty())
	}

	// Keep the link alive with setpoints but let the heartbeat go stale.
	for i := 0; i < 3; i++ {
		b.Clock.Advance(cfg.HeartbeatTimeout() / 2)
		receive(app, b, command(protocol.Setpoint{Value: 500}))
	}
	step(app, b, cfg.ControlPeriod())
	if b.Forward.Duty() != 0 {
		t.Errorf("Expected idle with stale heartbeat, got forward %d", b.Forward.Duty())
	}
}

func TestTransmitGatedByLink(t *testing.T) {
	cfg := config.Default()
	app, b := newNode(t, cfg)

	step(app, b, cfg.StatusPeriod())
	if n := len(b.CAN.Pending()); n != 0 {
		t.Errorf("Expected no transmission before any receive, got %d frames", n)
	}
	if queued, _ := app.Pending(); queued != 1 {
		t.Errorf("Expected status frame held in queue, got %d", queued)
	}

	receive(app, b, command(protocol.HeartBeat{}))
	sent := b.CAN.Complete(sim.Mailboxes)
	if len(sent) != 1 || sent[0].ID != protocol.ComposeID(testNode, protocol.EvtStatusUpdate) {
		t.Fatalf("Expected the held status frame after receive, got %+v", sent)
	}
	if queued, free := app.Pending(); queued != 0 || free != core.PoolSize {
		t.Errorf("Expected empty queue and full pool, got queued=%d free=%d", queued, free)
	}

	// Silence past the timeout holds the queue again.
	b.Clock.Advance(cfg.CANTimeout())
	step(app, b, cfg.StatusPeriod())
	if n := len(b.CAN.Pending()); n != 0 {
		t.Errorf("Expected no transmission after link timeout, got %d", n)
	}
	if app.LinkUp() {
		t.Errorf("Expected link reported down")
	}
}

func TestStatusReportContents(t *testing.T) {
	cfg := config.Default()
	app, b := newNode(t, cfg)

	receive(app, b, command(protocol.Setpoint{Value: -250}))
	step(app, b, cfg.StatusPeriod())
	sent := b.CAN.Complete(sim.Mailboxes)
	if len(sent) != 1 {
		t.Fatalf("Expected 1 status frame, got %d", len(sent))
	}
	node, ev, err := protocol.DecodeEvent(sent[0])
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}
	st, ok := ev.(protocol.StatusUpdate)
	if node != testNode || !ok {
		t.Fatalf("Expected status from node %d, got node %d %#v", testNode, node, ev)
	}
	if st.DutyNow != -250 {
		t.Errorf("Expected duty_now -250, got %d", st.DutyNow)
	}
}

func TestFaultEdgesEmitEvents(t *testing.T) {
	cfg := config.Default()
	app, b := newNode(t, cfg)
	receive(app, b, command(protocol.SetCurrentLimit{Amps: 20}))

	b.Overcurrent.Trigger()
	b.DriverFault.Trigger()
	app.OnEdge()

	if b.Overcurrent.Pending() || b.DriverFault.Pending() {
		t.Errorf("Expected edge flags cleared")
	}
	sent := b.CAN.Complete(sim.Mailboxes)
	if len(sent) != 2 {
		t.Fatalf("Expected 2 event frames, got %d", len(sent))
	}
	// Fault (event 0) outranks Overcurrent (event 2) on the bus.
	_, ev, _ := protocol.DecodeEvent(sent[0])
	if ev != (protocol.Fault{Code: protocol.CodeMotorDriverFault}) {
		t.Errorf("Expected driver fault first, got %#v", ev)
	}
	_, ev, _ = protocol.DecodeEvent(sent[1])
	if oc, ok := ev.(protocol.Overcurrent); !ok || oc.CurrentLimit != 20 {
		t.Errorf("Expected overcurrent with limit 20, got %#v", ev)
	}
}

func TestHigherPriorityFrameBumpsMailbox(t *testing.T) {
	cfg := config.Default()
	app, b := newNode(t, cfg)
	receive(app, b, command(protocol.HeartBeat{}))

	for i := 0; i < sim.Mailboxes; i++ {
		step(app, b, cfg.StatusPeriod())
	}
	if n := len(b.CAN.Pending()); n != sim.Mailboxes {
		t.Fatalf("Expected %d mailboxes busy, got %d", sim.Mailboxes, n)
	}

	b.DriverFault.Trigger()
	app.OnEdge()

	if got := app.Stats().TxBumped; got != 1 {
		t.Errorf("Expected 1 bumped frame, got %d", got)
	}
	if queued, _ := app.Pending(); queued != 1 {
		t.Errorf("Expected bumped status frame re-queued, got %d", queued)
	}

	sent := b.CAN.Complete(1)
	if sent[0].ID != protocol.ComposeID(testNode, protocol.EvtFault) {
		t.Errorf("Expected fault frame first on the bus, got 0x%03X", sent[0].ID)
	}
	app.OnCANTransmit()
	sent = b.CAN.Complete(sim.Mailboxes)
	if len(sent) != sim.Mailboxes {
		t.Errorf("Expected bumped frame transmitted after mailbox freed, got %d frames", len(sent))
	}
	if s := app.Stats(); s.TxFrames != sim.Mailboxes+2 {
		t.Errorf("Expected %d frames handed to mailboxes, got %d", sim.Mailboxes+2, s.TxFrames)
	}
}

func TestDecodeErrorHalts(t *testing.T) {
	cfg := config.Default()
	app, b := newNode(t, cfg)

	receive(app, b, command(protocol.Setpoint{Value: 600}))
	step(app, b, cfg.ControlPeriod())

	receive(app, b, can.Frame{ID: protocol.ComposeID(testNode, 6), Length: 1})

	halted, reason := app.Halted()
	if !halted || reason == "" {
		t.Fatalf("Expected halt with a reason, got %v %q", halted, reason)
	}
	if b.Forward.Duty() != 0 || b.Reverse.Duty() != 0 || b.Limit.Duty() != 0 {
		t.Errorf("Expected all channels zero after halt")
	}
	if b.Sleep.Get() {
		t.Errorf("Expected driver asleep after halt")
	}

	// Nothing runs once halted.
	receive(app, b, command(protocol.Setpoint{Value: 600}))
	step(app, b, cfg.ControlPeriod())
	if b.Forward.Duty() != 0 {
		t.Errorf("Expected no drive after halt, got %d", b.Forward.Duty())
	}
}

func TestDecodeErrorDroppedWhenConfigured(t *testing.T) {
	cfg := config.Default()
	cfg.DropMalformedFrames = true
	app, b := newNode(t, cfg)

	receive(app, b,
		can.Frame{ID: protocol.ComposeID(testNode, protocol.CmdSetpoint), Length: 1},
		can.Frame{ID: protocol.ComposeID(testNode, protocol.CmdSetIdleMode), Length: 1, Data: can.Data{9}},
		command(protocol.Setpoint{Value: 50}),
	)

	if halted, _ := app.Halted(); halted {
		t.Fatalf("Expected no halt with DropMalformedFrames")
	}
	if got := app.Stats().DecodeErrors; got != 2 {
		t.Errorf("Expected 2 decode errors, got %d", got)
	}
	if app.Drive().Setpoint != 50 {
		t.Errorf("Expected later frame applied, got %d", app.Drive().Setpoint)
	}
}

func TestDispatcherOverflowDrops(t *testing.T) {
	cfg := config.Default()
	app, b := newNode(t, cfg)
	b.CAN.RxDepth = 64

	var frames []can.Frame
	for i := 0; i < core.DispatchCapacity+4; i++ {
		frames = append(frames, command(protocol.Setpoint{Value: int16(100 + i)}))
	}
	receive(app, b, frames...)

	s := app.Stats()
	if s.RxFrames != uint32(len(frames)) || s.RxDropped != 4 {
		t.Errorf("Expected %d received and 4 dropped, got %+v", len(frames), s)
	}
	if got := app.Drive().Setpoint; got != int16(100+core.DispatchCapacity-1) {
		t.Errorf("Expected last dispatched setpoint %d, got %d", 100+core.DispatchCapacity-1, got)
	}
}

func TestAcceptanceFilterIgnoresOtherNodes(t *testing.T) {
	cfg := config.Default()
	app, b := newNode(t, cfg)

	receive(app, b, protocol.EncodeCommand(protocol.Setpoint{Value: 700}, testNode+1))
	if app.Drive().Setpoint != 0 || app.Stats().RxFrames != 0 {
		t.Errorf("Expected frame for another node filtered")
	}
}

func TestADCUpdatesCurrent(t *testing.T) {
	cfg := config.Default()
	app, b := newNode(t, cfg)

	sim.FillHalf(b.ADC, 0, 400)
	app.OnADCComplete(0)

	want := core.CurrentSensor{Analog: cfg.Analog}.Convert(b.ADC.Half(0))
	if got := app.Telemetry().CurrentNow; got != want {
		t.Errorf("Expected current %v, got %v", want, got)
	}

	// A half completed twice before the task ran is discarded.
	sim.FillHalf(b.ADC, 1, 4000)
	b.ADC.Complete(1)
	app.OnADCComplete(1)
	if got := app.Telemetry().CurrentNow; got != want {
		t.Errorf("Expected stale current %v after overrun, got %v", want, got)
	}
	if got := app.Stats().ADCOverruns; got != 1 {
		t.Errorf("Expected 1 overrun, got %d", got)
	}
}
