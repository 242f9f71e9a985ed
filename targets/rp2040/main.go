//go:build rp2040 || rp2350

package main

import (
	"canmotor/config"
	"canmotor/core"
	"machine"
	"time"

	"tinygo.org/x/drivers/mcp2515"
)

// Board wiring
const (
	pinForward  = machine.GPIO2 // PWM1 A
	pinReverse  = machine.GPIO3 // PWM1 B
	pinBias     = machine.GPIO4 // PIO current-limit reference
	pinSleep    = machine.GPIO5
	pinFault    = machine.GPIO6 // active low
	pinOverCurr = machine.GPIO7 // active low
	pinCANCS    = machine.GPIO17
	pinCurrent  = machine.ADC0 // GPIO26

	canBus     = "spi0c"
	canCrystal = mcp2515.Clock8MHz

	// 20 kHz keeps the bridge switching above audible range
	drivePeriodNs = 50000
	biasPeriod    = 1000
)

// node id switch bank, bit 0 first
var nodePins = [8]machine.Pin{
	machine.GPIO8, machine.GPIO9, machine.GPIO10, machine.GPIO11,
	machine.GPIO12, machine.GPIO13, machine.GPIO14, machine.GPIO15,
}

var (
	app     *core.App
	sampler *adcSampler
	canDev  *mcpTransceiver

	loopPanics uint32
)

func main() {
	// Disable watchdog on boot to clear any previous state
	err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0})
	if err != nil {
		return
	}

	InitDebugUART()
	core.SetDebugWriter(DebugPrintln)
	core.InitAsyncDebug()

	InitClock()

	cfg := config.Default()
	cfg.ClockHz = ClockHz

	// Sleep low until Start so the bridge stays off while wiring up
	sleep := newOutputPin(pinSleep, false)

	pins := make([]core.InputPin, len(nodePins))
	for i, p := range nodePins {
		pins[i] = newInputPin(p, machine.PinInputPulldown)
	}
	node := core.ReadNodeID(pins)

	hw, err := initHardware(cfg, node)
	if err != nil {
		fatal("hardware init: " + err.Error())
	}
	hw.Sleep = sleep

	app, err = core.New(cfg, node, hw)
	if err != nil {
		fatal("firmware init: " + err.Error())
	}
	if err := app.Start(); err != nil {
		fatal("start: " + err.Error())
	}

	for {
		// Recover from panics in the main loop to prevent a firmware crash
		func() {
			defer func() {
				if r := recover(); r != nil {
					loopPanics++
					app.Halt("panic in main loop")
				}
			}()

			if halted, _ := app.Halted(); halted {
				return
			}

			sampler.Drain()

			// The MCP2515 interrupt line is not wired; poll the receive
			// status and let the transmit task retry busy mailboxes
			app.OnCANReceive()
			app.OnCANTransmit()

			app.Poll()

			reportStats(GetHardwareTime())
		}()

		// Yield to other goroutines
		time.Sleep(10 * time.Microsecond)
	}
}

// initHardware brings up every peripheral except the sleep pin
func initHardware(cfg config.Config, node uint8) (core.Hardware, error) {
	var hw core.Hardware

	fwd, err := newPWMChannel(pinForward, drivePeriodNs)
	if err != nil {
		return hw, err
	}
	rev, err := newPWMChannel(pinReverse, drivePeriodNs)
	if err != nil {
		return hw, err
	}
	bias, err := newPIOBiasChannel(0, 0, pinBias, biasPeriod)
	if err != nil {
		return hw, err
	}

	onEdge := func() {
		if app != nil {
			app.OnEdge()
		}
	}
	oc, err := newEdgeInput(pinOverCurr, machine.PinFalling, onEdge)
	if err != nil {
		return hw, err
	}
	fault, err := newEdgeInput(pinFault, machine.PinFalling, onEdge)
	if err != nil {
		return hw, err
	}

	canDev, err = newMCPTransceiver(canBus, pinCANCS, canCrystal, node)
	if err != nil {
		return hw, err
	}

	n := cfg.Analog.SamplesPerHalf
	buf := core.NewADCBuffer(n)
	sampler, err = newADCSampler(pinCurrent, buf, n, func(half int) {
		if app != nil {
			app.OnADCComplete(half)
		}
	})
	if err != nil {
		return hw, err
	}

	hw.Forward = fwd
	hw.Reverse = rev
	hw.Limit = bias
	hw.Overcurrent = oc
	hw.DriverFault = fault
	hw.CAN = canDev
	hw.ADC = buf
	hw.Clock = core.SystemClock{}
	return hw, nil
}

// canFiltered returns the number of frames for other nodes seen by the
// transceiver
func canFiltered() uint32 {
	if canDev == nil {
		return 0
	}
	return canDev.filtered
}

// fatal logs and parks the core with the bridge asleep
func fatal(msg string) {
	DebugPrintln("[ERR] " + msg)
	for {
		time.Sleep(time.Second)
	}
}

// itoa converts int to string without importing strconv (for embedded)
func itoa(i int) string {
	if i == 0 {
		return "0"
	}

	negative := i < 0
	if negative {
		i = -i
	}

	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}

	if negative {
		pos--
		buf[pos] = '-'
	}

	return string(buf[pos:])
}
