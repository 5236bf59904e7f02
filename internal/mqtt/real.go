package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// DefaultBufferSize is how many outgoing events are held while disconnected.
const DefaultBufferSize = 100

// Config configures a RealClient.
type Config struct {
	Broker     string
	ClientID   string
	Prefix     string
	BufferSize int
}

// RealClient subscribes to the command topic and publishes bridge events
// to an actual MQTT broker. Events published while disconnected are buffered
// and replayed in order on reconnect.
type RealClient struct {
	client  paho.Client
	prefix  string
	handler Handler
	logger  *zap.SugaredLogger

	mu  sync.Mutex
	buf *eventBuffer
}

// NewRealClient connects to the broker and subscribes handler to the
// command topic. The subscription is renewed on every reconnect.
func NewRealClient(cfg Config, handler Handler, logger *zap.SugaredLogger) (*RealClient, error) {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	c := &RealClient{
		prefix:  cfg.Prefix,
		handler: handler,
		logger:  logger,
		buf:     newEventBuffer(cfg.BufferSize),
	}

	will, err := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "OFFLINE", Reason: "LWT"})
	if err != nil {
		return nil, fmt.Errorf("format will: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(SystemTopic(cfg.Prefix), string(will), 1, true).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost)

	c.client = paho.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return c, nil
}

func (c *RealClient) onConnect(client paho.Client) {
	topic := CommandTopic(c.prefix)
	token := client.Subscribe(topic, 1, func(_ paho.Client, msg paho.Message) {
		c.handler(msg.Payload())
	})
	if !token.WaitTimeout(5 * time.Second) {
		c.logger.Warnw("subscribe timeout", "topic", topic)
	} else if err := token.Error(); err != nil {
		c.logger.Errorw("subscribe failed", "topic", topic, "error", err)
	} else {
		c.logger.Infow("subscribed", "topic", topic)
	}

	c.mu.Lock()
	states := c.buf.states()
	pending := c.buf.drainAll()
	c.mu.Unlock()
	if len(pending) > 0 {
		c.logger.Infow("replaying buffered events", "count", len(pending), "states", states)
	}
	for _, o := range pending {
		if err := c.send(o); err != nil {
			c.logger.Warnw("replay failed", "error", err)
		}
	}
}

func (c *RealClient) onConnectionLost(_ paho.Client, err error) {
	c.logger.Warnw("mqtt connection lost", "error", err)
}

// IsConnected reports whether the client currently has a broker connection.
func (c *RealClient) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

// PublishState sends a channel state event to the broker.
func (c *RealClient) PublishState(event StateEvent) error {
	return c.publish(stateOut(event))
}

// PublishSystem sends a system lifecycle event to the broker.
func (c *RealClient) PublishSystem(event SystemEvent) error {
	return c.publish(systemOut(event))
}

func (c *RealClient) publish(o outgoing) error {
	if !c.client.IsConnectionOpen() {
		c.mu.Lock()
		dropped := c.buf.push(o)
		c.mu.Unlock()
		if dropped {
			c.logger.Warnw("mqtt buffer full, dropping oldest", "capacity", c.buf.capacity)
		}
		return nil
	}
	return c.send(o)
}

func (c *RealClient) send(o outgoing) error {
	var (
		topic    string
		qos      byte
		retained bool
		payload  []byte
		err      error
	)
	switch {
	case o.state != nil:
		// QoS 0, retained so late subscribers see current state
		topic, qos, retained = StateTopic(c.prefix), 0, true
		if payload, err = FormatStatePayload(*o.state); err != nil {
			return fmt.Errorf("format state payload: %w", err)
		}
	case o.system != nil:
		// QoS 1 (at-least-once) for lifecycle events
		topic, qos, retained = SystemTopic(c.prefix), 1, o.system.Retained
		if payload, err = FormatSystemPayload(*o.system); err != nil {
			return fmt.Errorf("format system payload: %w", err)
		}
	default:
		return nil
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Close disconnects from the broker.
func (c *RealClient) Close() error {
	c.client.Disconnect(1000) // 1 second timeout
	return nil
}
