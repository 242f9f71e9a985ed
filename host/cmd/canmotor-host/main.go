package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"canmotor/host/node"
	"canmotor/host/telemetry"
	"canmotor/protocol"
)

var (
	busType   = flag.String("bus", "socketcan", "Bus backend: socketcan or slcan")
	iface     = flag.String("iface", "can0", "SocketCAN interface")
	device    = flag.String("device", "/dev/ttyACM0", "SLCAN serial device path")
	bitrate   = flag.Int("bitrate", 500000, "SLCAN bit rate")
	nodeID    = flag.Int("node", 1, "Node id to command")
	heartbeat = flag.Duration("heartbeat", 100*time.Millisecond, "Heartbeat period, 0 to disable")
	broker    = flag.String("mqtt", "", "MQTT broker, e.g. tcp://localhost:1883")
	prefix    = flag.String("prefix", telemetry.DefaultPrefix, "MQTT topic prefix")
	httpAddr  = flag.String("http", "", "Serve the websocket event stream on this address, e.g. :8080")
	verbose   = flag.Bool("verbose", false, "Print status updates")
)

func main() {
	flag.Parse()

	if *nodeID < 0 || *nodeID > 255 {
		log.Fatalf("node id %d out of range", *nodeID)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	bus, err := openBus(ctx)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	defer bus.Close()

	fmt.Println("canmotor host " + protocol.Version)
	fmt.Println("==================")

	var publisher *telemetry.Publisher
	if *broker != "" {
		client, err := telemetry.DialMQTT(*broker, "canmotor-host", 3)
		if err != nil {
			log.Fatalf("Error: %v", err)
		}
		defer client.Disconnect(250)
		publisher = telemetry.NewPublisher(client, *prefix)

		// MQTT commands go straight to the bus
		err = publisher.SubscribeCommands(func(n uint8, cmd protocol.Command) {
			if err := node.NewClient(bus, n).Send(ctx, cmd); err != nil {
				log.Printf("mqtt command: %v", err)
			}
		})
		if err != nil {
			log.Fatalf("Error: %v", err)
		}
	}

	hub := telemetry.NewHub()
	if *httpAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/ws", hub)
		go func() {
			log.Printf("Serving websocket on %s/ws", *httpAddr)
			if err := http.ListenAndServe(*httpAddr, mux); err != nil {
				log.Printf("http: %v", err)
			}
		}()
	}

	go func() {
		err := node.Listen(ctx, bus, func(r node.Report) {
			printReport(r)
			m := telemetry.FromReport(r)
			hub.Broadcast(m)
			if publisher != nil {
				if err := publisher.Publish(m); err != nil {
					log.Printf("mqtt publish: %v", err)
				}
			}
		})
		if err != nil {
			log.Printf("listen: %v", err)
			stop()
		}
	}()

	client := node.NewClient(bus, uint8(*nodeID))
	if *heartbeat > 0 {
		go func() {
			if err := client.KeepAlive(ctx, *heartbeat); err != nil && ctx.Err() == nil {
				log.Printf("heartbeat: %v", err)
			}
		}()
	}

	repl(ctx, bus, client)
}

func openBus(ctx context.Context) (node.Bus, error) {
	switch *busType {
	case "socketcan":
		return node.DialSocketCAN(ctx, *iface)
	case "slcan":
		return node.OpenSLCAN(*device, *bitrate)
	}
	return nil, fmt.Errorf("unknown bus %q", *busType)
}

func printReport(r node.Report) {
	switch e := r.Event.(type) {
	case protocol.StatusUpdate:
		if *verbose {
			fmt.Printf("[node %d] status: %.3f A, duty %d\n", r.Node, e.CurrentNow, e.DutyNow)
		}
	case protocol.Overcurrent:
		fmt.Printf("[node %d] OVERCURRENT: %.3f A (limit %.0f A)\n", r.Node, e.CurrentNow, e.CurrentLimit)
	case protocol.Fault:
		fmt.Printf("[node %d] FAULT: %s\n", r.Node, e.Code)
	}
}

func repl(ctx context.Context, bus node.Bus, client *node.Client) {
	fmt.Println("Enter commands (type 'help' for available commands, 'quit' to exit):")

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		if err := scanner.Err(); err != nil {
			log.Printf("Error reading input: %v", err)
		}
		close(lines)
	}()

	for {
		fmt.Print("> ")
		var line string
		select {
		case <-ctx.Done():
			fmt.Println()
			return
		case l, ok := <-lines:
			if !ok {
				return
			}
			line = strings.TrimSpace(l)
		}
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		switch parts[0] {
		case "quit", "exit", "q":
			// leave the motor stopped
			if err := client.Stop(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}
			fmt.Println("Goodbye!")
			return
		case "help", "?":
			printHelp()
		case "node":
			n, err := argInt(parts, 0, 255)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				continue
			}
			client = node.NewClient(bus, uint8(n))
			fmt.Printf("Commanding node %d (heartbeat stays on node %d)\n", n, *nodeID)
		default:
			if err := runCommand(ctx, client, parts); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}
		}
	}
}

func runCommand(ctx context.Context, c *node.Client, parts []string) error {
	switch parts[0] {
	case "set", "setpoint":
		v, err := argInt(parts, -32768, 32767)
		if err != nil {
			return err
		}
		return c.Setpoint(ctx, int16(v))
	case "limit":
		v, err := argInt(parts, 0, 255)
		if err != nil {
			return err
		}
		return c.SetCurrentLimit(ctx, uint8(v))
	case "invert":
		if len(parts) < 2 {
			return fmt.Errorf("usage: invert on|off")
		}
		return c.Invert(ctx, parts[1] == "on" || parts[1] == "1" || parts[1] == "true")
	case "idle":
		if len(parts) < 2 {
			return fmt.Errorf("usage: idle coast|brake")
		}
		switch parts[1] {
		case "coast":
			return c.SetIdleMode(ctx, protocol.Coast)
		case "brake":
			return c.SetIdleMode(ctx, protocol.Brake)
		}
		return fmt.Errorf("unknown idle mode %q", parts[1])
	case "stop":
		return c.Stop(ctx)
	case "hb", "heartbeat":
		return c.HeartBeat(ctx)
	}
	return fmt.Errorf("unknown command: %s (type 'help' for available commands)", parts[0])
}

func argInt(parts []string, lo, hi int) (int, error) {
	if len(parts) < 2 {
		return 0, fmt.Errorf("usage: %s <%d..%d>", parts[0], lo, hi)
	}
	v, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", parts[1])
	}
	if v < lo || v > hi {
		return 0, fmt.Errorf("%d out of range %d..%d", v, lo, hi)
	}
	return v, nil
}

func printHelp() {
	fmt.Println("\nAvailable commands:")
	fmt.Println("  set <n>          - Setpoint, -32768..32767")
	fmt.Println("  limit <amps>     - Current limit")
	fmt.Println("  invert on|off    - Invert motor direction")
	fmt.Println("  idle coast|brake - Output when stopped")
	fmt.Println("  stop             - Zero the setpoint")
	fmt.Println("  hb               - Send one heartbeat")
	fmt.Println("  node <id>        - Command another node")
	fmt.Println("  quit/exit/q      - Stop the motor and exit")
	fmt.Println()
}
