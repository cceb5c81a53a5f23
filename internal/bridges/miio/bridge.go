package miio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-miio/internal/audit"
	"github.com/nerrad567/gray-logic-miio/internal/bridge"
	"github.com/nerrad567/gray-logic-miio/internal/device"
	"github.com/nerrad567/gray-logic-miio/internal/infrastructure/mqtt"
)

const (
	// defaultCommandTimeout bounds a single device call made for a command.
	defaultCommandTimeout = 30 * time.Second

	// defaultWorkers is how many commands may execute at once.
	defaultWorkers = 4

	auditWriteTimeout = 2 * time.Second
)

// MQTTClient is the subset of *mqtt.Client the bridge uses.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	IsConnected() bool
}

// Devices executes commands. *device.Registry implements it.
type Devices interface {
	Invoke(ctx context.Context, id, method string, args []string) (string, error)
	ListDevices(ctx context.Context) ([]device.Record, error)
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Bridge.
type Options struct {
	MQTT    MQTTClient
	Devices Devices

	// Version is reported in health messages.
	Version string

	// CommandTimeout bounds each device call. Default: 30 seconds.
	CommandTimeout time.Duration

	// Workers bounds concurrently executing commands. When all are busy the
	// MQTT callback waits for one to free up. Default: 4.
	Workers int

	// HealthInterval is how often health is republished. Default: 30 seconds.
	HealthInterval time.Duration

	// InterpreterStats, if set, adds python host details to health messages.
	InterpreterStats func() (InterpreterStatus, bool)

	// Audit, if set, records every executed command.
	Audit audit.Repository
}

// Bridge receives device commands over MQTT and acknowledges them.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	mqtt           MQTTClient
	devices        Devices
	health         *HealthReporter
	audit          audit.Repository
	commandTimeout time.Duration

	// slots holds one token per executing command.
	slots    chan struct{}
	inflight sync.WaitGroup
	runMu    sync.Mutex
	stopping bool

	received atomic.Uint64
	failed   atomic.Uint64

	ctx       context.Context
	ctxCancel context.CancelFunc
	stopOnce  sync.Once

	logger Logger
}

// NewBridge creates a bridge. Call Start to subscribe.
func NewBridge(opts Options) (*Bridge, error) {
	if opts.MQTT == nil {
		return nil, errors.New("miio bridge: MQTT client is required")
	}
	if opts.Devices == nil {
		return nil, errors.New("miio bridge: device registry is required")
	}

	timeout := opts.CommandTimeout
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}

	b := &Bridge{
		mqtt:           opts.MQTT,
		devices:        opts.Devices,
		audit:          opts.Audit,
		commandTimeout: timeout,
		slots:          make(chan struct{}, workers),
		logger:         noopLogger{},
	}
	b.health = NewHealthReporter(HealthReporterConfig{
		Version:          opts.Version,
		Interval:         opts.HealthInterval,
		Publisher:        opts.MQTT,
		Devices:          opts.Devices,
		InterpreterStats: opts.InterpreterStats,
		Statistics:       b.statistics,
	})
	return b, nil
}

// SetLogger sets the logger for the bridge and its health reporter.
func (b *Bridge) SetLogger(logger Logger) {
	b.logger = logger
	b.health.SetLogger(logger)
}

// Start subscribes to device commands and begins health reporting.
func (b *Bridge) Start(ctx context.Context) error {
	b.ctx, b.ctxCancel = context.WithCancel(ctx)

	if err := b.health.PublishStarting(); err != nil {
		b.logger.Warn("failed to publish starting health", "error", err)
	}

	if err := b.mqtt.Subscribe(mqtt.Topics{}.AllCommands(), 1, b.handleMQTTMessage); err != nil {
		b.ctxCancel()
		return fmt.Errorf("subscribing to commands: %w", err)
	}

	b.health.Start(b.ctx)
	b.logger.Info("miio bridge started", "topic", mqtt.Topics{}.AllCommands())
	return nil
}

// Stop unsubscribes, publishes a final "stopping" health message and
// cancels in-flight commands, waiting for them to finish. Safe to call multiple times.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		if err := b.mqtt.Unsubscribe(mqtt.Topics{}.AllCommands()); err != nil {
			b.logger.Debug("unsubscribe on stop failed", "error", err)
		}
		b.runMu.Lock()
		b.stopping = true
		b.runMu.Unlock()

		if b.ctxCancel != nil {
			b.ctxCancel()
		}
		b.inflight.Wait()
		b.health.Stop()
		b.logger.Info("miio bridge stopped")
	})
}

// handleMQTTMessage validates one command and hands it to a worker.
// Failures are reported on the ack topic; the returned error is only for the
// MQTT client's log.
func (b *Bridge) handleMQTTMessage(topic string, payload []byte) error {
	topicID, ok := mqtt.DeviceIDFromTopic(topic)
	if !ok {
		return fmt.Errorf("unexpected topic %q", topic)
	}
	b.received.Add(1)

	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		cmd.DeviceID = topicID
		b.publishAck(NewAckError(cmd, ErrCodeInvalidCommand, "malformed command: "+err.Error()))
		return fmt.Errorf("parsing command: %w", err)
	}
	if cmd.DeviceID == "" {
		cmd.DeviceID = topicID
	}

	b.logger.Info("received command",
		"command_id", cmd.ID,
		"device_id", cmd.DeviceID,
		"method", cmd.Method,
		"source", cmd.Source,
	)

	switch {
	case cmd.DeviceID != topicID:
		msg := fmt.Sprintf("device_id %q does not match topic device %q", cmd.DeviceID, topicID)
		cmd.DeviceID = topicID
		b.publishAck(NewAckError(cmd, ErrCodeInvalidCommand, msg))
		return nil
	case cmd.Method == "":
		b.publishAck(NewAckError(cmd, ErrCodeInvalidCommand, "method is required"))
		return nil
	}

	base := b.baseContext()
	select {
	case b.slots <- struct{}{}:
	case <-base.Done():
		b.publishAck(NewAckError(cmd, ErrCodeBridgeError, "bridge stopping"))
		return nil
	}

	b.runMu.Lock()
	if b.stopping {
		b.runMu.Unlock()
		<-b.slots
		b.publishAck(NewAckError(cmd, ErrCodeBridgeError, "bridge stopping"))
		return nil
	}
	b.inflight.Add(1)
	b.runMu.Unlock()

	go func() {
		defer b.inflight.Done()
		defer func() { <-b.slots }()
		b.execute(base, cmd)
	}()
	return nil
}

// execute invokes cmd on its device and publishes the ack.
func (b *Bridge) execute(base context.Context, cmd CommandMessage) {
	ctx, cancel := context.WithTimeout(base, b.commandTimeout)
	defer cancel()

	result, err := b.devices.Invoke(ctx, cmd.DeviceID, cmd.Method, cmd.Args)
	b.recordCommand(cmd, err)
	if err != nil {
		b.publishAck(NewAckError(cmd, errorCode(err), err.Error()))
		return
	}
	b.publishAck(NewAckMessage(cmd, result))
}

// recordCommand writes cmd to the audit trail. Failures are only logged.
func (b *Bridge) recordCommand(cmd CommandMessage, invokeErr error) {
	if b.audit == nil {
		return
	}
	details := map[string]any{"method": cmd.Method, "command_id": cmd.ID}
	if invokeErr != nil {
		details["error"] = invokeErr.Error()
	}

	ctx, cancel := context.WithTimeout(context.Background(), auditWriteTimeout)
	defer cancel()
	err := b.audit.Create(ctx, &audit.Entry{
		Action:   audit.ActionInvoke,
		DeviceID: cmd.DeviceID,
		Source:   audit.SourceMQTT,
		Success:  invokeErr == nil,
		Details:  details,
	})
	if err != nil {
		b.logger.Warn("audit write failed", "command_id", cmd.ID, "error", err)
	}
}

func (b *Bridge) baseContext() context.Context {
	if b.ctx != nil {
		return b.ctx
	}
	return context.Background()
}

// errorCode maps an invocation error to an ack error code.
func errorCode(err error) string {
	switch {
	case errors.Is(err, device.ErrDeviceNotFound):
		return ErrCodeNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return ErrCodeTimeout
	case errors.Is(err, bridge.ErrBridge):
		return ErrCodeBridgeError
	case errors.Is(err, device.ErrInvocation):
		return ErrCodeDeviceError
	default:
		return ErrCodeBridgeError
	}
}

func (b *Bridge) publishAck(ack AckMessage) {
	if ack.Status == AckFailed {
		b.failed.Add(1)
		b.logger.Warn("command failed",
			"command_id", ack.CommandID,
			"device_id", ack.DeviceID,
			"code", ack.Error.Code,
			"message", ack.Error.Message,
		)
	}

	payload, err := json.Marshal(ack)
	if err != nil {
		b.logger.Error("failed to marshal ack", "error", err)
		return
	}
	if err := b.mqtt.Publish(mqtt.Topics{}.Ack(ack.DeviceID), payload, 1, false); err != nil {
		b.logger.Error("failed to publish ack", "device_id", ack.DeviceID, "error", err)
	}
}

func (b *Bridge) statistics() BridgeStatistics {
	return BridgeStatistics{
		CommandsReceived: b.received.Load(),
		CommandsFailed:   b.failed.Load(),
	}
}
