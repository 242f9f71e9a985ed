//go:build rp2040 || rp2350

package main

import "machine"

var (
	debugUART    *machine.UART
	debugEnabled bool

	lastReport uint32
)

// statsInterval is the period of the counter report in timer ticks
const statsInterval = 5 * ClockHz

// InitDebugUART initializes UART0 on GPIO0 (TX) and GPIO1 (RX)
// Baud rate: 115200
func InitDebugUART() {
	debugUART = machine.UART0

	err := debugUART.Configure(machine.UARTConfig{
		BaudRate: 115200,
		TX:       machine.GPIO0,
		RX:       machine.GPIO1,
	})
	if err != nil {
		debugEnabled = false
		return
	}
	debugEnabled = true
	DebugPrintln("=== canmotor debug UART ===")
}

// DebugPrintln writes a string to the debug UART with newline
func DebugPrintln(s string) {
	if !debugEnabled || debugUART == nil {
		return
	}
	debugUART.Write([]byte(s))
	debugUART.Write([]byte("\r\n"))
}

// reportStats prints the firmware counters every statsInterval
func reportStats(now uint32) {
	if now-lastReport < statsInterval {
		return
	}
	lastReport = now

	s := app.Stats()
	queued, free := app.Pending()
	DebugPrintln("rx " + itoa(int(s.RxFrames)) +
		" rxdrop " + itoa(int(s.RxDropped)) +
		" decode " + itoa(int(s.DecodeErrors)) +
		" tx " + itoa(int(s.TxFrames)) +
		" txdrop " + itoa(int(s.TxDropped)) +
		" evdrop " + itoa(int(s.EventsDropped)) +
		" adcovr " + itoa(int(s.ADCOverruns)) +
		" fifoovr " + itoa(int(sampler.Overflows())) +
		" filtered " + itoa(int(canFiltered())) +
		" queued " + itoa(queued) + "/" + itoa(queued+free) +
		" panics " + itoa(int(loopPanics)))
	if !app.LinkUp() {
		DebugPrintln("link down")
	}
}
