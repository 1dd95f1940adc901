package homeassistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/rickgao/airvpn-bridge/internal/sensor"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Config holds MQTT connection and topic settings.
type Config struct {
	Broker          string        // e.g. tcp://localhost:1883
	Username        string
	Password        string
	ClientID        string        // default: airvpn-bridge-<random>
	DiscoveryPrefix string        // default: homeassistant
	BaseTopic       string        // default: airvpn
	QoS             byte          // 0, 1 or 2; zero is at-most-once
	ConnectTimeout  time.Duration // default: 10s
}

func (c *Config) applyDefaults() {
	if c.ClientID == "" {
		c.ClientID = "airvpn-bridge-" + uuid.NewString()[:8]
	}
	if c.DiscoveryPrefix == "" {
		c.DiscoveryPrefix = "homeassistant"
	}
	if c.BaseTopic == "" {
		c.BaseTopic = "airvpn"
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
}

// Publisher is the subset of mqtt.Client the sink publishes through.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Sink publishes entity states to Home Assistant. It implements sensor.Sink.
type Sink struct {
	pub    Publisher
	client mqtt.Client // nil when built with NewSink
	topics Topics
	qos    byte
	logger *slog.Logger

	mu         sync.Mutex
	discovered map[string]bool
	last       []sensor.State

	// availMu serializes availability publishes so a rediscovery never
	// overwrites a newer value.
	availMu   sync.Mutex
	available bool
	availSet  bool
}

// NewSink creates a Sink on an existing publisher.
func NewSink(pub Publisher, cfg Config, logger *slog.Logger) *Sink {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{
		pub:        pub,
		topics:     Topics{DiscoveryPrefix: cfg.DiscoveryPrefix, Base: cfg.BaseTopic},
		qos:        cfg.QoS,
		logger:     logger.With("sink", "mqtt"),
		discovered: make(map[string]bool),
	}
}

// Connect dials the broker and returns a Sink using the connection.
// The availability topic is registered as the last will so the broker marks
// every entity offline if the bridge disappears.
func Connect(ctx context.Context, cfg Config, logger *slog.Logger) (*Sink, error) {
	cfg.applyDefaults()
	if cfg.Broker == "" {
		return nil, errors.New("mqtt broker is required")
	}
	if cfg.QoS > 2 {
		return nil, fmt.Errorf("mqtt qos must be 0, 1 or 2, got %d", cfg.QoS)
	}

	s := NewSink(nil, cfg, logger)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectTimeout(cfg.ConnectTimeout)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(1 * time.Minute)
	opts.SetWill(s.topics.Availability(), payloadOffline, cfg.QoS, true)
	opts.SetOnConnectHandler(s.onConnect)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.logger.Warn("mqtt connection lost", "error", err)
	})

	client := mqtt.NewClient(opts)
	s.pub = client
	s.client = client

	s.logger.Info("connecting to mqtt broker", "broker", cfg.Broker, "client_id", cfg.ClientID)

	if err := wait(ctx, client.Connect()); err != nil {
		return nil, fmt.Errorf("connect mqtt broker: %w", err)
	}
	return s, nil
}

// Name implements sensor.Sink.
func (s *Sink) Name() string {
	return "mqtt"
}

// Topics returns the topic layout.
func (s *Sink) Topics() Topics {
	return s.topics
}

// PublishStates announces unseen entities and publishes every state.
func (s *Sink) PublishStates(ctx context.Context, states []sensor.State) error {
	s.mu.Lock()
	s.last = states
	s.mu.Unlock()

	var errs []error
	for _, st := range states {
		if err := s.publishState(ctx, st); err != nil {
			errs = append(errs, err)
			if ctx.Err() != nil {
				break
			}
		}
	}
	return errors.Join(errs...)
}

// PublishAvailability publishes online or offline on the shared topic.
func (s *Sink) PublishAvailability(ctx context.Context, available bool) error {
	s.availMu.Lock()
	defer s.availMu.Unlock()

	s.available = available
	s.availSet = true
	return s.publishAvailability(ctx, available)
}

func (s *Sink) publishAvailability(ctx context.Context, available bool) error {
	payload := payloadOffline
	if available {
		payload = payloadOnline
	}
	if err := s.publish(ctx, s.topics.Availability(), true, payload); err != nil {
		return fmt.Errorf("publish availability: %w", err)
	}
	return nil
}

// Rediscover forgets which entities were announced and republishes the last
// states, which re-sends every discovery config.
func (s *Sink) Rediscover(ctx context.Context) error {
	s.mu.Lock()
	s.discovered = make(map[string]bool)
	last := s.last
	s.mu.Unlock()

	s.availMu.Lock()
	var err error
	if s.availSet {
		err = s.publishAvailability(ctx, s.available)
	}
	s.availMu.Unlock()
	if err != nil {
		return err
	}

	if len(last) == 0 {
		return nil
	}
	return s.PublishStates(ctx, last)
}

// Close marks entities offline and disconnects.
func (s *Sink) Close(ctx context.Context) error {
	err := s.publish(ctx, s.topics.Availability(), true, payloadOffline)
	if s.client != nil {
		s.client.Disconnect(250)
	}
	return err
}

func (s *Sink) publishState(ctx context.Context, st sensor.State) error {
	e := st.Entity

	s.mu.Lock()
	seen := s.discovered[e.UniqueID]
	s.mu.Unlock()

	if !seen {
		payload, err := json.Marshal(s.topics.discovery(e))
		if err != nil {
			return fmt.Errorf("marshal discovery %s: %w", e.UniqueID, err)
		}
		if err := s.publish(ctx, s.topics.Config(e), true, payload); err != nil {
			return fmt.Errorf("publish discovery %s: %w", e.UniqueID, err)
		}
		s.mu.Lock()
		s.discovered[e.UniqueID] = true
		s.mu.Unlock()
	}

	if err := s.publish(ctx, s.topics.State(e), true, statePayload(st)); err != nil {
		return fmt.Errorf("publish state %s: %w", e.UniqueID, err)
	}

	if len(st.Attributes) > 0 {
		payload, err := json.Marshal(st.Attributes)
		if err != nil {
			return fmt.Errorf("marshal attributes %s: %w", e.UniqueID, err)
		}
		if err := s.publish(ctx, s.topics.Attributes(e), true, payload); err != nil {
			return fmt.Errorf("publish attributes %s: %w", e.UniqueID, err)
		}
	}
	return nil
}

func (s *Sink) publish(ctx context.Context, topic string, retained bool, payload interface{}) error {
	return wait(ctx, s.pub.Publish(topic, s.qos, retained, payload))
}

// onConnect subscribes to Home Assistant's status topic and republishes
// everything, since a reconnect may follow a broker restart.
func (s *Sink) onConnect(client mqtt.Client) {
	s.logger.Info("mqtt connected")

	tok := client.Subscribe(s.topics.HAStatus(), s.qos, s.onHAStatus)
	if tok.Wait() && tok.Error() != nil {
		s.logger.Warn("subscribe failed", "topic", s.topics.HAStatus(), "error", tok.Error())
	}

	go s.rediscover("reconnect")
}

// onHAStatus handles Home Assistant's birth message.
func (s *Sink) onHAStatus(_ mqtt.Client, msg mqtt.Message) {
	if string(msg.Payload()) != payloadOnline {
		return
	}
	go s.rediscover("home assistant online")
}

func (s *Sink) rediscover(reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.Rediscover(ctx); err != nil {
		s.logger.Warn("rediscovery failed", "reason", reason, "error", err)
		return
	}
	s.logger.Debug("rediscovery complete", "reason", reason)
}

func wait(ctx context.Context, tok mqtt.Token) error {
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
