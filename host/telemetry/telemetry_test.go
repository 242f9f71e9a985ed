package telemetry

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"

	"canmotor/host/node"
	"canmotor/protocol"
)

func TestFromReport(t *testing.T) {
	at := time.Unix(1700000000, 500000000)

	m := FromReport(node.Report{Node: 3, At: at, Event: protocol.StatusUpdate{CurrentNow: 2.5, DutyNow: -100}})
	if m.Event != EventStatus || m.Node != 3 {
		t.Errorf("Unexpected message %+v", m)
	}
	if m.CurrentNow == nil || *m.CurrentNow != 2.5 {
		t.Errorf("Expected current 2.5, got %v", m.CurrentNow)
	}
	if m.DutyNow == nil || *m.DutyNow != -100 {
		t.Errorf("Expected duty -100, got %v", m.DutyNow)
	}
	if m.Timestamp != 1700000000.5 {
		t.Errorf("Expected timestamp 1700000000.5, got %f", m.Timestamp)
	}

	m = FromReport(node.Report{Node: 1, Event: protocol.Fault{Code: protocol.CodeMotorDriverFault}})
	if m.Event != EventFault || m.Code == nil || *m.Code != 1 || m.Fault != "motor driver fault" {
		t.Errorf("Unexpected fault message %+v", m)
	}

	m = FromReport(node.Report{Node: 1, Event: protocol.Overcurrent{CurrentNow: 11, CurrentLimit: 10}})
	if m.Event != EventOvercurrent || *m.CurrentLimit != 10 || m.DutyNow != nil {
		t.Errorf("Unexpected overcurrent message %+v", m)
	}
}

func TestMessageJSON(t *testing.T) {
	m := FromReport(node.Report{Node: 4, Event: protocol.Fault{Code: protocol.CodeOther}})
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	s := string(data)
	if !strings.Contains(s, `"event":"fault"`) || !strings.Contains(s, `"code":3`) {
		t.Errorf("Unexpected JSON %s", s)
	}
	if strings.Contains(s, "current_now") {
		t.Errorf("Expected current_now to be omitted, got %s", s)
	}
}

func TestTopic(t *testing.T) {
	got := Topic(DefaultPrefix, Message{Node: 12, Event: EventStatus})
	if got != "canmotor/12/status" {
		t.Errorf("Expected canmotor/12/status, got %s", got)
	}
	if CommandTopic("x") != "x/+/cmd" {
		t.Errorf("Unexpected command topic %s", CommandTopic("x"))
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		payload string
		want    protocol.Command
	}{
		{`{"command":"setpoint","value":-200}`, protocol.Setpoint{Value: -200}},
		{`{"command":"current_limit","value":15}`, protocol.SetCurrentLimit{Amps: 15}},
		{`{"command":"invert","value":1}`, protocol.Invert{Inverted: true}},
		{`{"command":"idle_mode","mode":"brake"}`, protocol.SetIdleMode{Mode: protocol.Brake}},
		{`{"command":"heartbeat"}`, protocol.HeartBeat{}},
		{`{"command":"STOP"}`, protocol.Stop{}},
	}
	for _, tt := range tests {
		got, err := ParseCommand([]byte(tt.payload))
		if err != nil {
			t.Errorf("ParseCommand(%s): unexpected error %v", tt.payload, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseCommand(%s): expected %#v, got %#v", tt.payload, tt.want, got)
		}
	}

	bad := []string{
		`not json`,
		`{"command":"setpoint","value":40000}`,
		`{"command":"current_limit","value":-1}`,
		`{"command":"idle_mode","mode":"float"}`,
		`{"command":"reboot"}`,
	}
	for _, p := range bad {
		if _, err := ParseCommand([]byte(p)); err == nil {
			t.Errorf("ParseCommand(%s): expected error", p)
		}
	}
}

func TestNodeFromTopic(t *testing.T) {
	n, err := NodeFromTopic("canmotor/42/cmd")
	if err != nil || n != 42 {
		t.Errorf("Expected node 42, got %d (%v)", n, err)
	}
	for _, topic := range []string{"cmd", "canmotor/x/cmd", "canmotor/300/cmd", "canmotor/3x/cmd"} {
		if _, err := NodeFromTopic(topic); err == nil {
			t.Errorf("Expected error for %q", topic)
		}
	}
}

func TestHubBroadcast(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer ws.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if hub.Clients() != 1 {
		t.Fatalf("Expected 1 client, got %d", hub.Clients())
	}

	hub.Broadcast(Message{Node: 3, Event: EventStatus})

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got Message
	if err := ws.ReadJSON(&got); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if got.Node != 3 || got.Event != EventStatus {
		t.Errorf("Unexpected message %+v", got)
	}
}

// fakeToken completes immediately
type fakeToken struct {
	err error
}

func (t fakeToken) Wait() bool                     { return true }
func (t fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t fakeToken) Error() error { return t.err }

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 0 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

// fakeClient records publications; other client methods are not used
type fakeClient struct {
	mqtt.Client

	topics   []string
	payloads [][]byte
	handler  mqtt.MessageHandler
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.topics = append(c.topics, topic)
	c.payloads = append(c.payloads, payload.([]byte))
	return fakeToken{}
}

func (c *fakeClient) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	c.handler = callback
	return fakeToken{}
}

func TestPublisher(t *testing.T) {
	client := &fakeClient{}
	p := NewPublisher(client, DefaultPrefix)

	m := FromReport(node.Report{Node: 2, Event: protocol.StatusUpdate{CurrentNow: 1, DutyNow: 50}})
	if err := p.Publish(m); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(client.topics) != 1 || client.topics[0] != "canmotor/2/status" {
		t.Fatalf("Unexpected topics %v", client.topics)
	}
	var got Message
	if err := json.Unmarshal(client.payloads[0], &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.DutyNow == nil || *got.DutyNow != 50 {
		t.Errorf("Expected duty 50, got %v", got.DutyNow)
	}
}

func TestSubscribeCommands(t *testing.T) {
	client := &fakeClient{}
	p := NewPublisher(client, DefaultPrefix)

	var nodes []uint8
	var cmds []protocol.Command
	err := p.SubscribeCommands(func(n uint8, c protocol.Command) {
		nodes = append(nodes, n)
		cmds = append(cmds, c)
	})
	if err != nil {
		t.Fatalf("SubscribeCommands: %v", err)
	}

	client.handler(client, fakeMessage{topic: "canmotor/5/cmd", payload: []byte(`{"command":"setpoint","value":10}`)})
	client.handler(client, fakeMessage{topic: "canmotor/5/cmd", payload: []byte(`{"command":"bogus"}`)})
	client.handler(client, fakeMessage{topic: "canmotor/x/cmd", payload: []byte(`{"command":"stop"}`)})

	if len(cmds) != 1 {
		t.Fatalf("Expected 1 command, got %d", len(cmds))
	}
	if nodes[0] != 5 || cmds[0] != (protocol.Setpoint{Value: 10}) {
		t.Errorf("Unexpected command %d %#v", nodes[0], cmds[0])
	}
}
