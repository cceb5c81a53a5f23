package miio

import (
	"time"
)

// Protocol identifies this bridge in messages and topics.
const Protocol = "miio"

// CommandMessage asks the bridge to call a method on a registered device.
// Topic: graylogic/command/miio/{device_id}
type CommandMessage struct {
	// ID correlates the command with its acknowledgement.
	ID string `json:"id"`

	Timestamp time.Time `json:"timestamp"`

	// DeviceID is the registry ID. If empty, the topic's last segment is used.
	DeviceID string `json:"device_id"`

	// Method is the device method name, e.g. "toggle" or "set_rgb".
	Method string `json:"method"`

	// Args are passed to the method unchanged, all as strings.
	Args []string `json:"args,omitempty"`

	// Source indicates where the command originated ("api", "automation", ...).
	Source string `json:"source,omitempty"`
}

// AckStatus represents the outcome of a command.
type AckStatus string

const (
	// AckAccepted means the device method ran and returned a result.
	AckAccepted AckStatus = "accepted"

	// AckFailed means the command could not be executed.
	AckFailed AckStatus = "failed"
)

// AckMessage reports the outcome of a command.
// Topic: graylogic/ack/miio/{device_id}
type AckMessage struct {
	CommandID string    `json:"command_id"`
	Timestamp time.Time `json:"timestamp"`
	DeviceID  string    `json:"device_id"`
	Status    AckStatus `json:"status"`
	Protocol  string    `json:"protocol"`

	// Result is the library's rendered return value, e.g. "['ok']".
	Result string `json:"result,omitempty"`

	Error *AckError `json:"error,omitempty"`
}

// AckError contains error details for failed commands.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes for command failures.
const (
	ErrCodeInvalidCommand = "INVALID_COMMAND"
	ErrCodeNotFound       = "DEVICE_NOT_FOUND"
	ErrCodeDeviceError    = "DEVICE_ERROR"
	ErrCodeBridgeError    = "BRIDGE_ERROR"
	ErrCodeTimeout        = "TIMEOUT"
)

// NewAckMessage builds a successful acknowledgement.
func NewAckMessage(cmd CommandMessage, result string) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		DeviceID:  cmd.DeviceID,
		Status:    AckAccepted,
		Protocol:  Protocol,
		Result:    result,
	}
}

// NewAckError builds a failed acknowledgement.
func NewAckError(cmd CommandMessage, code, message string) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		DeviceID:  cmd.DeviceID,
		Status:    AckFailed,
		Protocol:  Protocol,
		Error: &AckError{
			Code:    code,
			Message: message,
		},
	}
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthStarting HealthStatus = "starting"
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports bridge status.
// Topic: graylogic/health/miio (QoS 1, retained)
type HealthMessage struct {
	Bridge        string       `json:"bridge"`
	Timestamp     time.Time    `json:"timestamp"`
	Status        HealthStatus `json:"status"`
	Version       string       `json:"version"`
	UptimeSeconds int64        `json:"uptime_seconds"`

	// Interpreter describes the python host process, when known.
	Interpreter *InterpreterStatus `json:"interpreter,omitempty"`

	Statistics *BridgeStatistics `json:"statistics,omitempty"`

	DevicesManaged int    `json:"devices_managed"`
	Reason         string `json:"reason,omitempty"`
}

// InterpreterStatus is the python host part of a health message.
type InterpreterStatus struct {
	Status   string `json:"status"`
	PID      int    `json:"pid,omitempty"`
	Restarts int    `json:"restarts"`
}

// BridgeStatistics counts commands handled since start.
type BridgeStatistics struct {
	CommandsReceived uint64 `json:"commands_received"`
	CommandsFailed   uint64 `json:"commands_failed"`
}
