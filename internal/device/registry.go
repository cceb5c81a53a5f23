package device

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// MetricsRecorder receives one sample per device invocation.
// The InfluxDB client implements it.
type MetricsRecorder interface {
	RecordInvocation(deviceID, deviceType, method string, duration time.Duration, success bool)
}

// Registry keeps named device sessions, backed by a Repository, and invokes
// them through a Library.
//
// The cache is populated on startup via RefreshCache() and kept in sync by
// the mutating operations. All public methods are thread-safe.
type Registry struct {
	repo    Repository
	lib     Library
	cache   map[string]*Record
	loaded  bool
	cacheMu sync.RWMutex
	logger  Logger
	metrics MetricsRecorder
}

// NewRegistry creates a registry over repo, reaching devices through lib.
func NewRegistry(repo Repository, lib Library) *Registry {
	return &Registry{
		repo:   repo,
		lib:    lib,
		cache:  make(map[string]*Record),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// SetMetrics sets the recorder that receives invocation samples.
func (r *Registry) SetMetrics(m MetricsRecorder) {
	r.metrics = m
}

// RefreshCache reloads all records from the repository.
func (r *Registry) RefreshCache(ctx context.Context) error {
	records, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	r.cache = make(map[string]*Record, len(records))
	for i := range records {
		r.cache[records[i].ID] = records[i].DeepCopy()
	}
	r.loaded = true

	r.logger.Info("device cache refreshed", "count", len(records))
	return nil
}

// ListDeviceTypes returns the device types the library supports.
func (r *Registry) ListDeviceTypes(ctx context.Context) ([]string, error) {
	return ListTypes(ctx, r.lib)
}

// CreateDevice instantiates a device through the library and stores it under name.
// Nothing is stored if the library refuses the device.
func (r *Registry) CreateDevice(ctx context.Context, name, ip, token, deviceType string) (*Record, error) {
	name = strings.TrimSpace(name)
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	session, err := Create(ctx, r.lib, ip, token, deviceType)
	if err != nil {
		r.logger.Warn("device creation failed", "name", name, "device_type", deviceType, "error", err)
		return nil, err
	}

	rec, err := r.store(ctx, name, session)
	if err != nil {
		return nil, err
	}

	r.logger.Info("device created",
		"id", rec.ID,
		"name", rec.Name,
		"device_type", deviceType,
		"methods", len(session.methods),
	)
	return rec, nil
}

// Import reads a persisted session file and stores it under name.
// The library is not consulted.
func (r *Registry) Import(ctx context.Context, name, path string) (*Record, error) {
	name = strings.TrimSpace(name)
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	session, err := ReadFile(path)
	if err != nil {
		return nil, err
	}

	rec, err := r.store(ctx, name, session)
	if err != nil {
		return nil, err
	}

	r.logger.Info("device imported", "id", rec.ID, "name", rec.Name, "path", path)
	return rec, nil
}

func (r *Registry) store(ctx context.Context, name string, session *Session) (*Record, error) {
	rec := &Record{
		ID:      GenerateID(),
		Name:    name,
		Session: session,
	}
	if err := r.repo.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("storing device %q: %w", name, err)
	}

	r.cacheMu.Lock()
	r.cache[rec.ID] = rec.DeepCopy()
	r.cacheMu.Unlock()

	return rec, nil
}

// GetDevice returns the record with the given ID.
// Returns ErrDeviceNotFound if there is none.
func (r *Registry) GetDevice(ctx context.Context, id string) (*Record, error) {
	r.cacheMu.RLock()
	cached, ok := r.cache[id]
	r.cacheMu.RUnlock()
	if ok {
		return cached.DeepCopy(), nil
	}

	rec, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.cache[id] = rec.DeepCopy()
	r.cacheMu.Unlock()

	return rec, nil
}

// ListDevices returns every record ordered by name.
func (r *Registry) ListDevices(ctx context.Context) ([]Record, error) {
	r.cacheMu.RLock()
	if !r.loaded {
		r.cacheMu.RUnlock()
		return r.repo.List(ctx)
	}
	records := make([]Record, 0, len(r.cache))
	for _, rec := range r.cache {
		records = append(records, *rec.DeepCopy())
	}
	r.cacheMu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		return records[i].Name < records[j].Name
	})
	return records, nil
}

// RenameDevice changes a record's name.
func (r *Registry) RenameDevice(ctx context.Context, id, name string) error {
	name = strings.TrimSpace(name)
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := r.repo.Rename(ctx, id, name); err != nil {
		return err
	}

	r.cacheMu.Lock()
	delete(r.cache, id)
	r.cacheMu.Unlock()

	r.logger.Info("device renamed", "id", id, "name", name)
	return nil
}

// DeleteDevice removes a record. The device itself is not contacted.
func (r *Registry) DeleteDevice(ctx context.Context, id string) error {
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}

	r.cacheMu.Lock()
	delete(r.cache, id)
	r.cacheMu.Unlock()

	r.logger.Info("device deleted", "id", id)
	return nil
}

// Invoke calls method on the device with the given ID and returns the
// library's rendered result.
func (r *Registry) Invoke(ctx context.Context, id, method string, args []string) (string, error) {
	rec, err := r.GetDevice(ctx, id)
	if err != nil {
		return "", err
	}

	if !rec.Session.HasMethod(method) {
		r.logger.Debug("invoking method not listed at creation", "id", id, "method", method)
	}

	start := time.Now()
	result, err := rec.Session.Invoke(ctx, r.lib, method, args)
	elapsed := time.Since(start)

	if r.metrics != nil {
		r.metrics.RecordInvocation(id, rec.Session.DeviceType(), method, elapsed, err == nil)
	}
	if err != nil {
		r.logger.Warn("device invocation failed", "id", id, "method", method, "error", err)
		return "", err
	}

	r.logger.Debug("device invoked", "id", id, "method", method, "duration", elapsed)
	return result, nil
}

// Export writes the record's session to path in the persisted file format.
func (r *Registry) Export(ctx context.Context, id, path string) error {
	rec, err := r.GetDevice(ctx, id)
	if err != nil {
		return err
	}
	return WriteFile(rec.Session, path)
}
