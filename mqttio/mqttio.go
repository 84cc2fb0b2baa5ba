// Package mqttio publishes orchestrator telemetry and listens for manual
// override commands over MQTT, following the connect/publish/subscribe
// worker pattern of ryansname-powerctl's mqtt_worker.go and mqtt_sender.go:
// a single paho client, a queued outgoing channel that drains once
// connected, and a topic subscription that forwards decoded payloads to a
// channel rather than calling back into application code directly.
package mqttio

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/devskill-org/ems/orchestrator"
)

// Message is a single outgoing MQTT publish.
type Message struct {
	Topic   string
	Payload []byte
	QoS     byte
	Retain  bool
}

// OverrideCommand is the decoded payload of a command topic publish,
// matching httpapi's override request shape so the two control surfaces
// stay interchangeable.
type OverrideCommand struct {
	Mode         int     `json:"mode"`
	DurationSec  int     `json:"duration_sec"`
	GridChargeKW float64 `json:"grid_charge_kw"`
}

// Topics names every MQTT topic the client uses (component design §6).
type Topics struct {
	Root string // e.g. "ems"
}

func (t Topics) state() string        { return t.Root + "/state" }
func (t Topics) nextRun() string      { return t.Root + "/next_run" }
func (t Topics) controlState() string { return t.Root + "/control_state" }
func (t Topics) override() string     { return t.Root + "/controls/override" }

// Client wraps a paho MQTT client with a queued publisher and an override
// command subscriber wired to an Orchestrator.
type Client struct {
	broker   string
	username string
	password string
	clientID string
	topics   Topics

	orch *orchestrator.Orchestrator

	outgoing chan Message
	client   mqtt.Client
}

// New builds a Client; Connect must be called to start it.
func New(broker, username, password, clientID, topicRoot string, orch *orchestrator.Orchestrator) *Client {
	return &Client{
		broker:   broker,
		username: username,
		password: password,
		clientID: clientID,
		topics:   Topics{Root: topicRoot},
		orch:     orch,
		outgoing: make(chan Message, 256),
	}
}

// Connect dials the broker, subscribes to the override command topic, and
// starts the queued publisher. It returns immediately; the connection
// retries in the background per paho's AutoReconnect.
func (c *Client) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(c.broker)
	opts.SetClientID(c.clientID)
	opts.SetUsername(c.username)
	opts.SetPassword(c.password)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetryInterval(5 * time.Second)

	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Printf("mqtt connection lost: %v\n", err)
	})

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Printf("connected to mqtt broker at %s\n", c.broker)
		token := client.Subscribe(c.topics.override(), 1, c.handleOverride)
		if token.Wait() && token.Error() != nil {
			log.Printf("failed to subscribe to %s: %v\n", c.topics.override(), token.Error())
		}
	})

	c.client = mqtt.NewClient(opts)
	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt connect: %w", token.Error())
	}

	go c.publishWorker(ctx)
	go c.statusLoop(ctx)

	return nil
}

// Disconnect closes the connection gracefully.
func (c *Client) Disconnect() {
	if c.client != nil && c.client.IsConnected() {
		c.client.Disconnect(250)
	}
}

func (c *Client) handleOverride(client mqtt.Client, msg mqtt.Message) {
	var cmd OverrideCommand
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		log.Printf("mqtt: invalid override payload: %v\n", err)
		return
	}
	if cmd.Mode > 2 {
		log.Printf("mqtt: rejected override mode %d (must be -1 or 0..2)\n", cmd.Mode)
		return
	}
	c.orch.SetOverride(cmd.Mode, time.Duration(cmd.DurationSec)*time.Second, cmd.GridChargeKW, time.Now())
}

// publishWorker drains the outgoing queue, publishing once connected and
// queuing while disconnected — mirroring mqttSenderWorker's behavior.
func (c *Client) publishWorker(ctx context.Context) {
	var queue []Message
	for {
		select {
		case msg := <-c.outgoing:
			if c.client != nil && c.client.IsConnected() {
				c.flush(append(queue, msg))
				queue = nil
			} else {
				queue = append(queue, msg)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) flush(queue []Message) {
	for _, msg := range queue {
		token := c.client.Publish(msg.Topic, msg.QoS, msg.Retain, msg.Payload)
		token.Wait()
		if token.Error() != nil {
			log.Printf("mqtt: failed to publish to %s: %v\n", msg.Topic, token.Error())
		}
	}
}

// statusLoop publishes the orchestrator's observable state every 15
// seconds, independent of the outer optimization loop's cadence.
func (c *Client) statusLoop(ctx context.Context) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.publishSnapshot()
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) publishSnapshot() {
	snap := c.orch.Snapshot()

	c.outgoing <- Message{
		Topic:   c.topics.state(),
		Payload: []byte(string(snap.RequestState)),
		QoS:     0,
		Retain:  true,
	}
	c.outgoing <- Message{
		Topic:   c.topics.controlState(),
		Payload: []byte(c.orch.CurrentState().String()),
		QoS:     0,
		Retain:  true,
	}
	if !snap.NextRun.IsZero() {
		c.outgoing <- Message{
			Topic:   c.topics.nextRun(),
			Payload: []byte(snap.NextRun.Format(time.RFC3339)),
			QoS:     0,
			Retain:  true,
		}
	}
}
