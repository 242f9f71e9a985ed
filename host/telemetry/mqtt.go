package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"canmotor/protocol"
)

const publishTimeout = 2 * time.Second

var errPublishTimeout = errors.New("mqtt publish timed out")

var connectHandler mqtt.OnConnectHandler = func(client mqtt.Client) {
	log.Println("Connected to MQTT broker")
}

var connectLostHandler mqtt.ConnectionLostHandler = func(client mqtt.Client, err error) {
	log.Printf("MQTT connection lost: %v\n", err)
}

// DialMQTT connects to broker ("tcp://host:1883"), retrying up to attempts
// times
func DialMQTT(broker, clientID string, attempts int) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.OnConnect = connectHandler
	opts.OnConnectionLost = connectLostHandler
	opts.SetAutoReconnect(true)
	opts.SetConnectRetryInterval(5 * time.Second)

	client := mqtt.NewClient(opts)
	var err error
	for i := 0; i < attempts; i++ {
		token := client.Connect()
		if token.Wait() && token.Error() == nil {
			return client, nil
		}
		err = token.Error()
		log.Printf("Failed to connect to MQTT broker: %v. Retrying in 5 seconds...\n", err)
		time.Sleep(5 * time.Second)
	}
	return nil, fmt.Errorf("mqtt connect %s: %w", broker, err)
}

// Publisher publishes node event messages
type Publisher struct {
	client mqtt.Client
	prefix string
	qos    byte
}

// NewPublisher publishes under prefix with QoS 0
func NewPublisher(client mqtt.Client, prefix string) *Publisher {
	return &Publisher{client: client, prefix: prefix}
}

// Publish sends m to "<prefix>/<node>/<event>"
func (p *Publisher) Publish(m Message) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return err
	}
	token := p.client.Publish(Topic(p.prefix, m), p.qos, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return errPublishTimeout
	}
	return token.Error()
}

// CommandHandler receives a command addressed to node
type CommandHandler func(node uint8, cmd protocol.Command)

// SubscribeCommands delivers every valid message on "<prefix>/+/cmd" to
// handle. Invalid messages are logged and dropped.
func (p *Publisher) SubscribeCommands(handle CommandHandler) error {
	token := p.client.Subscribe(CommandTopic(p.prefix), p.qos, func(_ mqtt.Client, msg mqtt.Message) {
		node, err := NodeFromTopic(msg.Topic())
		if err != nil {
			log.Printf("mqtt command: %v\n", err)
			return
		}
		cmd, err := ParseCommand(msg.Payload())
		if err != nil {
			log.Printf("mqtt command for node %d: %v\n", node, err)
			return
		}
		handle(node, cmd)
	})
	if !token.WaitTimeout(publishTimeout) {
		return errPublishTimeout
	}
	if err := token.Error(); err != nil {
		return err
	}
	log.Printf("Subscribed to topic: %s\n", CommandTopic(p.prefix))
	return nil
}
