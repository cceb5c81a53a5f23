package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-miio/internal/process"
)

const (
	measurementInvocation = "miio_invocation"
	measurementBridge     = "miio_bridge"
)

// RecordInvocation writes one device method call.
// It satisfies device.MetricsRecorder.
//
// Example:
//
//	client.RecordInvocation("mio-1a2b3c4d", "Yeelight", "toggle", 42*time.Millisecond, true)
func (c *Client) RecordInvocation(deviceID, deviceType, method string, duration time.Duration, success bool) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(invocationPoint(deviceID, deviceType, method, duration, success, time.Now()))
}

// WriteBridgeStats writes a snapshot of the interpreter host's process state.
func (c *Client) WriteBridgeStats(stats process.Stats) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(bridgePoint(stats, time.Now()))
}

func invocationPoint(deviceID, deviceType, method string, duration time.Duration, success bool, ts time.Time) *write.Point {
	return write.NewPoint(
		measurementInvocation,
		map[string]string{
			"device_id":   deviceID,
			"device_type": deviceType,
			"method":      method,
		},
		map[string]interface{}{
			"duration_ms": float64(duration.Microseconds()) / 1000,
			"success":     success,
		},
		ts,
	)
}

func bridgePoint(stats process.Stats, ts time.Time) *write.Point {
	running := stats.Status == process.StatusRunning
	fields := map[string]interface{}{
		"running":  running,
		"restarts": stats.RestartCount,
		"pid":      stats.PID,
	}
	if running {
		fields["uptime_s"] = stats.Uptime.Seconds()
	}
	return write.NewPoint(
		measurementBridge,
		map[string]string{"process": stats.Name},
		fields,
		ts,
	)
}
