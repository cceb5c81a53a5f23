package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/nerrad567/gray-logic-miio/internal/infrastructure/config"
)

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "graylogic-miio-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// disconnectedClient returns a Client that never dialled a broker.
func disconnectedClient() *Client {
	return newClient(testConfig())
}

func TestTopics(t *testing.T) {
	topics := Topics{}
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"command", topics.Command("mio-1a2b3c4d"), "graylogic/command/miio/mio-1a2b3c4d"},
		{"all commands", topics.AllCommands(), "graylogic/command/miio/+"},
		{"ack", topics.Ack("mio-1a2b3c4d"), "graylogic/ack/miio/mio-1a2b3c4d"},
		{"health", topics.Health(), "graylogic/health/miio"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestDeviceIDFromTopic(t *testing.T) {
	tests := []struct {
		topic  string
		wantID string
		wantOK bool
	}{
		{"graylogic/command/miio/mio-1a2b3c4d", "mio-1a2b3c4d", true},
		{"graylogic/ack/miio/mio-1a2b3c4d", "mio-1a2b3c4d", true},
		{"graylogic/command/knx/1-2-3", "", false},
		{"graylogic/command/miio/", "", false},
		{"graylogic/command/miio", "", false},
		{"other/command/miio/x", "", false},
		{"graylogic/command/miio/a/b", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			id, ok := DeviceIDFromTopic(tt.topic)
			if id != tt.wantID || ok != tt.wantOK {
				t.Errorf("DeviceIDFromTopic(%q) = (%q, %v), want (%q, %v)", tt.topic, id, ok, tt.wantID, tt.wantOK)
			}
		})
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Username = "miio"
	cfg.Auth.Password = "secret"

	opts := buildClientOptions(cfg)
	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v", opts.Servers)
	}
	if opts.ClientID != "graylogic-miio-test" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "miio" || opts.Password != "secret" {
		t.Error("credentials not applied")
	}
	if !opts.CleanSession || !opts.AutoReconnect {
		t.Error("expected clean session with auto-reconnect")
	}

	cfg.Broker.TLS = true
	opts = buildClientOptions(cfg)
	if opts.Servers[0].Scheme != "ssl" {
		t.Errorf("scheme = %q, want ssl", opts.Servers[0].Scheme)
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Error("TLS minimum version not set")
	}
}

func TestConfigureLWT(t *testing.T) {
	opts := buildClientOptions(testConfig())
	configureLWT(opts, "graylogic-miio-test")

	if !opts.WillEnabled || !opts.WillRetained {
		t.Error("will should be enabled and retained")
	}
	if opts.WillTopic != "graylogic/health/miio" {
		t.Errorf("WillTopic = %q", opts.WillTopic)
	}

	var msg HealthMessage
	if err := json.Unmarshal(opts.WillPayload, &msg); err != nil {
		t.Fatalf("will payload is not JSON: %v", err)
	}
	if msg.Status != "offline" || msg.Reason != "unexpected_disconnect" || msg.ClientID != "graylogic-miio-test" {
		t.Errorf("will payload = %+v", msg)
	}
}

func TestPublishValidation(t *testing.T) {
	c := disconnectedClient()

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		want    error
	}{
		{"empty topic", "", []byte("x"), 1, ErrInvalidTopic},
		{"bad qos", "graylogic/health/miio", []byte("x"), 3, ErrInvalidQoS},
		{"too large", "graylogic/health/miio", make([]byte, maxPayloadSize+1), 1, ErrPublishFailed},
		{"not connected", "graylogic/health/miio", []byte("x"), 1, ErrNotConnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Publish(tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.want) {
				t.Errorf("Publish() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSubscribeValidation(t *testing.T) {
	c := disconnectedClient()
	noop := func(string, []byte) error { return nil }

	if err := c.Subscribe("", 1, noop); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Subscribe(empty) error = %v", err)
	}
	if err := c.Subscribe("a/b", 5, noop); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Subscribe(qos 5) error = %v", err)
	}
	if err := c.Subscribe("a/b", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("Subscribe(nil handler) error = %v", err)
	}
	if err := c.Subscribe("a/b", 1, noop); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe(disconnected) error = %v", err)
	}
	if err := c.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Unsubscribe(empty) error = %v", err)
	}
	if c.SubscriptionCount() != 0 || c.HasSubscription("a/b") {
		t.Error("failed subscriptions should not be tracked")
	}
}

func TestDisconnectedClientState(t *testing.T) {
	c := disconnectedClient()
	if c.IsConnected() {
		t.Error("IsConnected() = true for a client that never connected")
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck(cancelled) error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestConnectRefused(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.Port = 1

	_, err := Connect(context.Background(), cfg)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

type recordingLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

func TestDispatch(t *testing.T) {
	c := disconnectedClient()
	logger := &recordingLogger{}
	c.SetLogger(logger)

	var got string
	c.dispatch(func(topic string, payload []byte) error {
		got = topic + "=" + string(payload)
		return nil
	}, "graylogic/command/miio/x", []byte("{}"))
	if got != "graylogic/command/miio/x={}" {
		t.Errorf("handler received %q", got)
	}

	c.dispatch(func(string, []byte) error { return errors.New("bad payload") }, "t", nil)
	c.dispatch(func(string, []byte) error { panic("boom") }, "t", nil)

	if len(logger.warns) != 1 || !strings.Contains(logger.warns[0], "error") {
		t.Errorf("warns = %v", logger.warns)
	}
	if len(logger.errors) != 1 || !strings.Contains(logger.errors[0], "panic") {
		t.Errorf("errors = %v", logger.errors)
	}
}
