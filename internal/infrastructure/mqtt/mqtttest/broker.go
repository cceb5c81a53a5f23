// Package mqtttest runs an in-process MQTT broker for tests.
package mqtttest

import (
	"log/slog"
	"net"
	"strconv"
	"testing"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"

	"github.com/nerrad567/gray-logic-miio/internal/infrastructure/config"
)

// StartBroker starts an anonymous broker on a free loopback port and
// returns an mqtt config section pointing at it. The broker stops when the
// test ends.
func StartBroker(t testing.TB, clientID string) config.MQTTConfig {
	t.Helper()

	port := freePort(t)
	server := mochi.New(&mochi.Options{
		InlineClient: true,
		Logger:       slog.New(slog.DiscardHandler),
	})
	if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		t.Fatalf("broker auth hook: %v", err)
	}
	tcp := listeners.NewTCP(listeners.Config{
		ID:      "test",
		Address: net.JoinHostPort("127.0.0.1", strconv.Itoa(port)),
	})
	if err := server.AddListener(tcp); err != nil {
		t.Fatalf("broker listener: %v", err)
	}
	if err := server.Serve(); err != nil {
		t.Fatalf("broker serve: %v", err)
	}
	t.Cleanup(func() { _ = server.Close() })

	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     port,
			ClientID: clientID,
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     2,
		},
	}
}

func freePort(t testing.TB) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("finding free port: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}
