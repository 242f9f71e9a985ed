// Package telemetry republishes decoded node events to MQTT and to
// websocket clients, and turns MQTT command messages back into node
// commands
package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"canmotor/host/node"
	"canmotor/protocol"
)

// DefaultPrefix is the root of every topic
const DefaultPrefix = "canmotor"

// Message is the JSON form of one node event
type Message struct {
	Node      uint8   `json:"node"`
	Event     string  `json:"event"`
	Timestamp float64 `json:"timestamp"` // unix seconds

	CurrentNow   *float32 `json:"current_now,omitempty"`
	DutyNow      *int16   `json:"duty_now,omitempty"`
	CurrentLimit *float32 `json:"current_limit,omitempty"`
	Code         *uint8   `json:"code,omitempty"`
	Fault        string   `json:"fault,omitempty"`
}

// Event names used in topics and messages
const (
	EventStatus      = "status"
	EventOvercurrent = "overcurrent"
	EventFault       = "fault"
)

// FromReport converts a decoded report into a message
func FromReport(r node.Report) Message {
	m := Message{Node: r.Node}
	if !r.At.IsZero() {
		m.Timestamp = float64(r.At.UnixNano()) / 1e9
	}
	switch e := r.Event.(type) {
	case protocol.StatusUpdate:
		m.Event = EventStatus
		m.CurrentNow = &e.CurrentNow
		m.DutyNow = &e.DutyNow
	case protocol.Overcurrent:
		m.Event = EventOvercurrent
		m.CurrentNow = &e.CurrentNow
		m.CurrentLimit = &e.CurrentLimit
	case protocol.Fault:
		m.Event = EventFault
		code := uint8(e.Code)
		m.Code = &code
		m.Fault = e.Code.String()
	}
	return m
}

// Topic returns "<prefix>/<node>/<event>"
func Topic(prefix string, m Message) string {
	return fmt.Sprintf("%s/%d/%s", prefix, m.Node, m.Event)
}

// CommandTopic is the subscription for command messages of every node
func CommandTopic(prefix string) string {
	return prefix + "/+/cmd"
}

// CommandMessage is the JSON accepted on "<prefix>/<node>/cmd"
type CommandMessage struct {
	Command string `json:"command"`
	Value   int    `json:"value,omitempty"`
	Mode    string `json:"mode,omitempty"`
}

var errCommandValue = errors.New("command value out of range")

// ParseCommand decodes a command message payload
func ParseCommand(payload []byte) (protocol.Command, error) {
	var m CommandMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, fmt.Errorf("invalid command message: %w", err)
	}

	switch strings.ToLower(m.Command) {
	case "setpoint":
		if m.Value < -32768 || m.Value > 32767 {
			return nil, errCommandValue
		}
		return protocol.Setpoint{Value: int16(m.Value)}, nil
	case "current_limit":
		if m.Value < 0 || m.Value > 255 {
			return nil, errCommandValue
		}
		return protocol.SetCurrentLimit{Amps: uint8(m.Value)}, nil
	case "invert":
		return protocol.Invert{Inverted: m.Value != 0}, nil
	case "idle_mode":
		switch strings.ToLower(m.Mode) {
		case "coast":
			return protocol.SetIdleMode{Mode: protocol.Coast}, nil
		case "brake":
			return protocol.SetIdleMode{Mode: protocol.Brake}, nil
		}
		return nil, fmt.Errorf("unknown idle mode %q", m.Mode)
	case "heartbeat":
		return protocol.HeartBeat{}, nil
	case "stop":
		return protocol.Stop{}, nil
	}
	return nil, fmt.Errorf("unknown command %q", m.Command)
}

// NodeFromTopic extracts the node id from "<prefix>/<node>/cmd"
func NodeFromTopic(topic string) (uint8, error) {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 {
		return 0, fmt.Errorf("unexpected topic %q", topic)
	}
	n, err := strconv.Atoi(parts[len(parts)-2])
	if err != nil || n < 0 || n > 255 {
		return 0, fmt.Errorf("bad node in topic %q", topic)
	}
	return uint8(n), nil
}
