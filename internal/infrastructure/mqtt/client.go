package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-miio/internal/infrastructure/config"
)

var (
	ErrNotConnected     = errors.New("mqtt: not connected")
	ErrConnectionFailed = errors.New("mqtt: connection failed")
)

// Logger receives handler errors, handler panics and connection loss.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Client is a paho connection to the site broker. Safe for concurrent use.
// Subscriptions survive reconnects.
type Client struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig

	connected atomic.Bool

	subMu         sync.RWMutex
	subscriptions map[string]subscription

	onConnect    atomic.Pointer[func()]
	onDisconnect atomic.Pointer[func(error)]
	logger       atomic.Pointer[Logger]
}

func newClient(cfg config.MQTTConfig) *Client {
	return &Client{cfg: cfg, subscriptions: make(map[string]subscription)}
}

// Connect dials the broker and blocks until the session is up, ctx ends or
// defaultConnectTimeout passes. The broker publishes an offline health
// message on our behalf if the connection later drops uncleanly.
func Connect(ctx context.Context, cfg config.MQTTConfig) (*Client, error) {
	c := newClient(cfg)

	opts := buildClientOptions(cfg)
	configureLWT(opts, cfg.Broker.ClientID)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.connectionUp() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.connectionLost(err) })

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()

	ctx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return nil, fmt.Errorf("%w: %s:%d: %w", ErrConnectionFailed, cfg.Broker.Host, cfg.Broker.Port, err)
		}
	case <-ctx.Done():
		c.client.Disconnect(0)
		return nil, fmt.Errorf("%w: %s:%d: %w", ErrConnectionFailed, cfg.Broker.Host, cfg.Broker.Port, ctx.Err())
	}

	// OnConnect fires asynchronously; callers may publish right away.
	c.connected.Store(true)
	return c, nil
}

func (c *Client) connectionUp() {
	c.connected.Store(true)

	c.subMu.RLock()
	for _, sub := range c.subscriptions {
		c.client.Subscribe(sub.topic, sub.qos, c.wrapHandler(sub.handler))
	}
	c.subMu.RUnlock()

	if fn := c.onConnect.Load(); fn != nil {
		(*fn)()
	}
}

func (c *Client) connectionLost(err error) {
	c.connected.Store(false)
	if l := c.log(); l != nil {
		l.Warn("MQTT connection lost", "error", err)
	}
	if fn := c.onDisconnect.Load(); fn != nil {
		(*fn)(err)
	}
}

// Close publishes a retained "offline" health message and disconnects.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	if c.IsConnected() {
		if payload, err := json.Marshal(NewHealthMessage("offline", c.cfg.Broker.ClientID, "graceful_shutdown")); err == nil {
			c.client.Publish(Topics{}.Health(), c.QoS(), true, payload).WaitTimeout(defaultPublishTimeout)
		}
	}
	c.client.Disconnect(defaultDisconnectQuiesce)
	c.connected.Store(false)
	return nil
}

// HealthCheck returns ErrNotConnected while the broker is unreachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports the connection state as last seen.
func (c *Client) IsConnected() bool {
	return c.connected.Load() && c.client != nil && c.client.IsConnected()
}

// SetOnConnect runs fn after every connect and reconnect.
func (c *Client) SetOnConnect(fn func()) {
	c.onConnect.Store(&fn)
}

// SetOnDisconnect runs fn when the connection drops.
func (c *Client) SetOnDisconnect(fn func(err error)) {
	c.onDisconnect.Store(&fn)
}

// SetLogger sets the logger.
func (c *Client) SetLogger(l Logger) {
	c.logger.Store(&l)
}

func (c *Client) log() Logger {
	if l := c.logger.Load(); l != nil {
		return *l
	}
	return nil
}

// QoS returns the configured default QoS.
func (c *Client) QoS() byte {
	return byte(c.cfg.QoS)
}

// await waits for a paho token, wrapping a timeout or failure in kind.
func await(token pahomqtt.Token, kind error) error {
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: no response within %v", kind, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", kind, err)
	}
	return nil
}
