package miio

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-miio/internal/infrastructure/mqtt"
)

const (
	defaultHealthInterval = 30 * time.Second
	deviceCountTimeout    = 5 * time.Second
)

// HealthPublisher is the MQTT side of health reporting.
type HealthPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	Version   string
	Interval  time.Duration
	Publisher HealthPublisher

	// Devices supplies the managed device count. Optional.
	Devices Devices

	// InterpreterStats reports the python host, if known. Optional.
	InterpreterStats func() (InterpreterStatus, bool)

	// Statistics returns command counters. Optional.
	Statistics func() BridgeStatistics
}

// HealthReporter publishes retained health messages at a fixed interval.
type HealthReporter struct {
	cfg       HealthReporterConfig
	startTime time.Time

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// NewHealthReporter creates a reporter. Call Start to begin reporting.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultHealthInterval
	}
	return &HealthReporter{
		cfg:       cfg,
		startTime: time.Now(),
		done:      make(chan struct{}),
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for this reporter.
func (h *HealthReporter) SetLogger(logger Logger) {
	h.loggerMu.Lock()
	h.logger = logger
	h.loggerMu.Unlock()
}

// Start begins periodic reporting until ctx is done or Stop is called.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop ends reporting and publishes a final "stopping" status.
// Safe to call multiple times.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()
		//nolint:errcheck // Best-effort during shutdown
		h.publishStatus(context.Background(), HealthStopping, "")
	})
}

// PublishStarting publishes a "starting" status.
func (h *HealthReporter) PublishStarting() error {
	return h.publishStatus(context.Background(), HealthStarting, "bridge starting")
}

// PublishNow publishes the current status immediately.
func (h *HealthReporter) PublishNow(ctx context.Context) error {
	status, reason := h.determineStatus()
	return h.publishStatus(ctx, status, reason)
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.cfg.Interval)
	defer ticker.Stop()

	if err := h.PublishNow(ctx); err != nil {
		h.logError("failed to publish initial health", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(ctx); err != nil {
				h.logError("failed to publish health", err)
			}
		}
	}
}

// determineStatus is degraded while MQTT is down or the python host has
// stopped running.
func (h *HealthReporter) determineStatus() (HealthStatus, string) {
	if h.cfg.Publisher == nil || !h.cfg.Publisher.IsConnected() {
		return HealthDegraded, "MQTT disconnected"
	}
	if h.cfg.InterpreterStats != nil {
		if st, ok := h.cfg.InterpreterStats(); ok && st.Status != "running" && st.Status != "stopped" {
			return HealthDegraded, "interpreter " + st.Status
		}
	}
	return HealthHealthy, ""
}

func (h *HealthReporter) buildMessage(ctx context.Context, status HealthStatus, reason string) HealthMessage {
	msg := HealthMessage{
		Bridge:        Protocol,
		Timestamp:     time.Now().UTC(),
		Status:        status,
		Version:       h.cfg.Version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Reason:        reason,
	}

	if h.cfg.InterpreterStats != nil {
		if st, ok := h.cfg.InterpreterStats(); ok {
			msg.Interpreter = &st
		}
	}
	if h.cfg.Statistics != nil {
		stats := h.cfg.Statistics()
		msg.Statistics = &stats
	}
	if h.cfg.Devices != nil {
		countCtx, cancel := context.WithTimeout(ctx, deviceCountTimeout)
		records, err := h.cfg.Devices.ListDevices(countCtx)
		cancel()
		if err == nil {
			msg.DevicesManaged = len(records)
		}
	}
	return msg
}

func (h *HealthReporter) publishStatus(ctx context.Context, status HealthStatus, reason string) error {
	if h.cfg.Publisher == nil {
		return nil
	}
	payload, err := json.Marshal(h.buildMessage(ctx, status, reason))
	if err != nil {
		return err
	}
	return h.cfg.Publisher.Publish(mqtt.Topics{}.Health(), payload, 1, true)
}

func (h *HealthReporter) logError(msg string, err error) {
	h.loggerMu.RLock()
	logger := h.logger
	h.loggerMu.RUnlock()
	logger.Error(msg, "error", err)
}
