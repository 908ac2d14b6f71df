package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/jonasfh/picobell/internal/doorbell"
	"github.com/jonasfh/picobell/internal/logging"
)

// DefaultPrefix is the topic root used when Config.Prefix is empty.
const DefaultPrefix = "picobell"

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
	queueSize      = 64
)

// Publisher is the part of an MQTT client the sink needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// Config selects the broker and topic layout.
type Config struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Prefix   string
	QoS      byte
}

// Client wraps a paho client with blocking, timeout-bounded calls.
type Client struct {
	client mqtt.Client
	broker string
}

// Connect dials the broker. The client reconnects on its own afterwards.
func Connect(cfg Config) (*Client, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt broker is required")
	}
	broker := cfg.Broker
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetCleanSession(true)

	opts.OnConnect = func(mqtt.Client) {
		logging.Info("MQTT connected", zap.String("broker", broker))
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logging.Warn("MQTT connection lost", zap.String("broker", broker), zap.Error(err))
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		client.Disconnect(0)
		return nil, fmt.Errorf("mqtt connection to %s timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connection failed: %w", err)
	}
	return &Client{client: client, broker: broker}, nil
}

func (c *Client) Publish(topic string, qos byte, retained bool, payload []byte) error {
	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, err)
	}
	return nil
}

// Disconnect closes the connection with a short grace period.
func (c *Client) Disconnect() {
	if c.client.IsConnected() {
		c.client.Disconnect(250)
		logging.Info("MQTT disconnected", zap.String("broker", c.broker))
	}
}

// Sink mirrors controller events to MQTT. Every event goes to
// <prefix>/<device>/events; mode changes are also retained on
// <prefix>/<device>/mode so late subscribers see the current mode.
//
// Publish never blocks the control loop: events are queued and a full
// queue drops the event.
type Sink struct {
	pub    Publisher
	prefix string
	qos    byte

	queue chan doorbell.Event
	done  chan struct{}

	mu      sync.Mutex
	closed  bool
	sent    int
	dropped int
	failed  int
}

// NewSink starts the publishing goroutine. Close stops it.
func NewSink(pub Publisher, cfg Config) *Sink {
	prefix := strings.Trim(cfg.Prefix, "/")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	s := &Sink{
		pub:    pub,
		prefix: prefix,
		qos:    cfg.QoS,
		queue:  make(chan doorbell.Event, queueSize),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

// EventsTopic is the topic events for deviceID are published on.
func (s *Sink) EventsTopic(deviceID string) string {
	return s.prefix + "/" + deviceID + "/events"
}

// ModeTopic is the retained mode topic for deviceID.
func (s *Sink) ModeTopic(deviceID string) string {
	return s.prefix + "/" + deviceID + "/mode"
}

func (s *Sink) Publish(e doorbell.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.queue <- e:
	default:
		s.dropped++
		logging.Debug("Telemetry queue full, event dropped", zap.String("kind", string(e.Kind)))
	}
}

// Close publishes what is queued and stops the sink.
func (s *Sink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()
	<-s.done
}

// Stats returns sent, dropped and failed counts.
func (s *Sink) Stats() (sent, dropped, failed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent, s.dropped, s.failed
}

func (s *Sink) run() {
	defer close(s.done)
	for e := range s.queue {
		s.send(e)
	}
}

func (s *Sink) send(e doorbell.Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		s.record(err)
		return
	}
	if err := s.pub.Publish(s.EventsTopic(e.DeviceID), s.qos, false, payload); err != nil {
		logging.Warn("Telemetry publish failed", zap.String("kind", string(e.Kind)), zap.Error(err))
		s.record(err)
		return
	}
	if e.Kind == doorbell.EventMode {
		if err := s.pub.Publish(s.ModeTopic(e.DeviceID), s.qos, true, []byte(e.Mode)); err != nil {
			logging.Warn("Telemetry mode publish failed", zap.Error(err))
			s.record(err)
			return
		}
	}
	s.record(nil)
}

func (s *Sink) record(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.failed++
		return
	}
	s.sent++
}
