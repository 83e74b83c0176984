// SPDX-License-Identifier: MIT
package transport

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	applog "streampump/internal/log"
	"streampump/internal/metrics"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
)

// ErrNotConnected is returned by MQTTTransport.Send while the broker is
// unreachable.
var ErrNotConnected = errors.New("mqtt not connected")

// MQTTOptions configures an MQTTTransport.
type MQTTOptions struct {
	Broker   string // e.g. "tcp://localhost:1883"
	ClientID string
	Topic    string
	QoS      byte
	Username string
	Password string
}

// MQTTTransport publishes every payload as JSON to a single topic. Publishing
// is fire-and-forget so Send never waits on the broker.
type MQTTTransport struct {
	client mqtt.Client
	topic  string
	qos    byte

	connected atomic.Bool
	published atomic.Uint64
	failed    atomic.Uint64
}

// NewMQTTTransport connects to opts.Broker, retrying in the background after
// a lost connection.
func NewMQTTTransport(opts MQTTOptions) (*MQTTTransport, error) {
	if opts.Broker == "" || opts.Topic == "" {
		return nil, errors.New("mqtt broker and topic are required")
	}

	t := &MQTTTransport{topic: opts.Topic, qos: opts.QoS}

	co := mqtt.NewClientOptions()
	co.AddBroker(opts.Broker)
	co.SetClientID(opts.ClientID)
	co.SetUsername(opts.Username)
	co.SetPassword(opts.Password)
	co.SetAutoReconnect(true)
	co.SetMaxReconnectInterval(30 * time.Second)
	co.OnConnect = func(mqtt.Client) {
		t.connected.Store(true)
		applog.Infof("MQTTTransport: Connected to %s", opts.Broker)
	}
	co.OnConnectionLost = func(_ mqtt.Client, err error) {
		t.connected.Store(false)
		applog.Warnf("MQTTTransport: Connection lost, will auto-reconnect: %v", err)
	}

	t.client = mqtt.NewClient(co)

	token := t.client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return nil, fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connection failed: %w", err)
	}
	t.connected.Store(true)

	return t, nil
}

// Send marshals data and publishes it.
func (t *MQTTTransport) Send(data any) error {
	if !t.connected.Load() {
		t.fail()
		return ErrNotConnected
	}

	payload, err := json.Marshal(data)
	if err != nil {
		t.fail()
		return errors.Wrapf(err, "marshal %T", data)
	}

	t.client.Publish(t.topic, t.qos, false, payload)
	t.published.Add(1)
	metrics.TransportSendsTotal.WithLabelValues("mqtt", "ok").Inc()
	return nil
}

func (t *MQTTTransport) fail() {
	t.failed.Add(1)
	metrics.TransportSendsTotal.WithLabelValues("mqtt", "error").Inc()
}

// Counts returns payloads handed to the client and payloads rejected.
func (t *MQTTTransport) Counts() (published, failed uint64) {
	return t.published.Load(), t.failed.Load()
}

// Close disconnects with a short grace period for in-flight messages.
func (t *MQTTTransport) Close() error {
	if t.client != nil && t.client.IsConnected() {
		t.client.Disconnect(250)
		applog.Infof("MQTTTransport: Disconnected")
	}
	t.connected.Store(false)
	return nil
}

var _ Transport = (*MQTTTransport)(nil)
