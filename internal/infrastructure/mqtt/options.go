package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"net"
	"strconv"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-miio/internal/infrastructure/config"
)

const (
	defaultConnectTimeout    = 10 * time.Second
	defaultPublishTimeout    = 5 * time.Second
	defaultKeepAlive         = 60 * time.Second
	defaultDisconnectQuiesce = 1000 // ms

	maxQoS        = 2
	tlsMinVersion = tls.VersionTLS12
)

// brokerURL is tcp://host:port, or ssl:// with TLS.
func brokerURL(b config.MQTTBrokerConfig) string {
	scheme := "tcp://"
	if b.TLS {
		scheme = "ssl://"
	}
	return scheme + net.JoinHostPort(b.Host, strconv.Itoa(b.Port))
}

// buildClientOptions maps the mqtt config section onto paho options.
// Sessions are clean; Client re-subscribes itself after a reconnect.
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions().
		AddBroker(brokerURL(cfg.Broker)).
		SetClientID(cfg.Broker.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(false).
		SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second).
		SetConnectTimeout(defaultConnectTimeout).
		SetKeepAlive(defaultKeepAlive)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username).SetPassword(cfg.Auth.Password)
	}
	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tlsMinVersion})
	}
	return opts
}

// HealthMessage is the connection-level health payload: the Last Will and
// the message Close publishes. The bridge publishes a richer one while up.
type HealthMessage struct {
	Status    string `json:"status"`
	ClientID  string `json:"client_id"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

// NewHealthMessage stamps a HealthMessage with the current UTC time.
func NewHealthMessage(status, clientID, reason string) HealthMessage {
	return HealthMessage{
		Status:    status,
		ClientID:  clientID,
		Reason:    reason,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// configureLWT registers a retained "offline" will on the health topic.
func configureLWT(opts *pahomqtt.ClientOptions, clientID string) {
	payload, _ := json.Marshal(NewHealthMessage("offline", clientID, "unexpected_disconnect")) //nolint:errchkjson // plain struct
	opts.SetBinaryWill(Topics{}.Health(), payload, 1, true)
}
