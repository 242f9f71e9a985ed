// canmotor-sim runs the node firmware on the host against a simulated
// board and motor, bridged to a real CAN bus (vcan0 or an SLCAN adapter)
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"time"

	"go.einride.tech/can"

	"canmotor/config"
	"canmotor/core"
	"canmotor/host/node"
	"canmotor/sim"
)

var (
	busType    = flag.String("bus", "socketcan", "Bus backend: socketcan or slcan")
	iface      = flag.String("iface", "vcan0", "SocketCAN interface")
	device     = flag.String("device", "/dev/ttyACM0", "SLCAN serial device path")
	bitrate    = flag.Int("bitrate", 500000, "SLCAN bit rate")
	nodeID     = flag.Int("node", 1, "Simulated node id")
	configPath = flag.String("config", "", "Firmware config JSON, defaults when empty")
	maxDuty    = flag.Int("max-duty", 1000, "PWM max duty")
	stallAmps  = flag.Float64("stall-amps", 20, "Motor current at full duty")
	step       = flag.Duration("step", 500*time.Microsecond, "Simulation step")
	verbose    = flag.Bool("verbose", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	if *nodeID < 0 || *nodeID > 255 || *maxDuty <= 0 || *maxDuty > 0xFFFF {
		log.Fatal("Error: node or max-duty out of range")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var bus node.Bus
	switch *busType {
	case "socketcan":
		bus, err = node.DialSocketCAN(ctx, *iface)
	case "slcan":
		bus, err = node.OpenSLCAN(*device, *bitrate)
	default:
		log.Fatalf("Error: unknown bus %q", *busType)
	}
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	defer bus.Close()

	core.SetDebugWriter(func(s string) { log.Println(s) })
	if *verbose {
		core.SetLogLevel(core.LevelDebug)
	}

	board := sim.NewBoard(uint16(*maxDuty), cfg.Analog.SamplesPerHalf)
	board.SetNodeID(uint8(*nodeID))
	id := core.ReadNodeID(board.NodePins())
	board.CAN.AcceptNode(id)

	app, err := core.New(cfg, id, board.Hardware())
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	motor := &sim.Motor{Board: board, Analog: cfg.Analog, StallAmps: float32(*stallAmps)}

	// The bus reader is the only other goroutine; everything that touches
	// the firmware runs on this one.
	rx := make(chan can.Frame, 64)
	go func() {
		defer close(rx)
		for {
			f, err := bus.Receive(ctx)
			if err != nil {
				if ctx.Err() == nil {
					log.Printf("receive: %v", err)
					stop()
				}
				return
			}
			rx <- f
		}
	}()

	start := time.Now()
	clockTicks := func() core.Instant {
		return core.Instant(uint64(time.Since(start)) * uint64(cfg.ClockHz) / uint64(time.Second))
	}
	board.Clock.Set(clockTicks())
	if err := app.Start(); err != nil {
		log.Fatalf("Error: %v", err)
	}
	log.Printf("Simulating node %d on %s", id, *busType)

	ticker := time.NewTicker(*step)
	defer ticker.Stop()

	half := 0
	for {
		select {
		case <-ctx.Done():
			log.Printf("stats: %+v", app.Stats())
			return
		case f, ok := <-rx:
			if !ok {
				return
			}
			board.Clock.Set(clockTicks())
			if board.CAN.Inject(f) > 0 {
				app.OnCANReceive()
			}
		case <-ticker.C:
			board.Clock.Set(clockTicks())
			app.Poll()

			if motor.Step(half) {
				app.OnEdge()
			}
			app.OnADCComplete(half)
			half ^= 1

			// every pending mailbox wins arbitration within a step
			for _, f := range board.CAN.Complete(sim.Mailboxes) {
				if err := bus.Send(ctx, f); err != nil {
					log.Printf("send: %v", err)
				}
			}
			board.CAN.TakeSent()
			app.OnCANTransmit()
		}

		if halted, reason := app.Halted(); halted {
			log.Printf("node halted: %s", reason)
			return
		}
	}
}

func loadConfig() (config.Config, error) {
	if *configPath == "" {
		return config.Default(), nil
	}
	data, err := os.ReadFile(*configPath)
	if err != nil {
		return config.Config{}, err
	}
	return config.Load(data)
}
