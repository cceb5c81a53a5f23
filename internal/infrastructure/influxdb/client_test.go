package influxdb_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-miio/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-miio/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-miio/internal/process"
)

// testConfig returns a configuration for a local dev InfluxDB.
func testConfig() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           "http://127.0.0.1:8086",
		Token:         "graylogic-dev-token",
		Org:           "graylogic",
		Bucket:        "metrics",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

// connectOrSkip skips the test if InfluxDB is not running.
func connectOrSkip(t *testing.T) *influxdb.Client {
	t.Helper()
	if testing.Short() && os.Getenv("RUN_INTEGRATION") == "" {
		t.Skip("skipping InfluxDB integration test in short mode")
	}
	client, err := influxdb.Connect(context.Background(), testConfig())
	if err != nil {
		t.Skip("InfluxDB not available, skipping integration test")
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	client, err := influxdb.Connect(context.Background(), cfg)
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
	if client != nil {
		t.Error("Connect() should return nil client when disabled")
	}
}

func TestConnect_InvalidURL(t *testing.T) {
	cfg := testConfig()
	cfg.URL = "http://127.0.0.1:1"

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := influxdb.Connect(ctx, cfg)
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect(t *testing.T) {
	client := connectOrSkip(t)
	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestRecordInvocation(t *testing.T) {
	client := connectOrSkip(t)

	var writeErr error
	client.SetOnError(func(err error) { writeErr = err })

	client.RecordInvocation("mio-test0001", "Yeelight", "toggle", 15*time.Millisecond, true)
	client.RecordInvocation("mio-test0001", "Yeelight", "get_prop", 3*time.Second, false)
	client.WriteBridgeStats(process.Stats{Name: "miio-host", Status: process.StatusRunning, PID: 1, Uptime: time.Minute})
	client.Flush()

	if writeErr != nil {
		t.Errorf("async write error: %v", writeErr)
	}
}

func TestClose(t *testing.T) {
	client := connectOrSkip(t)

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() after Close() error = %v, want ErrNotConnected", err)
	}

	// Writes and flushes after close are dropped
	client.RecordInvocation("mio-test0001", "Yeelight", "toggle", time.Millisecond, true)
	client.Flush()
}

func TestClose_ZeroClient(t *testing.T) {
	var client influxdb.Client
	if err := client.Close(); err != nil {
		t.Errorf("Close() on zero client error = %v", err)
	}
	client.RecordInvocation("mio-test0001", "Yeelight", "toggle", time.Millisecond, true)
	client.Flush()
}
