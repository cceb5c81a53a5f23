package process

import (
	"context"
	"errors"
	"io"
	"time"
)

// Status is the lifecycle state of a supervised process.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusFailed   Status = "failed"
)

// ErrAlreadyRunning is returned by Start while a process is supervised.
var ErrAlreadyRunning = errors.New("process already running")

// Config describes the command to run and how to supervise it.
type Config struct {
	Name   string
	Binary string
	Args   []string

	// Env is appended to the parent environment. Nil inherits it unchanged.
	Env []string

	// Attach receives stdin and stdout on every (re)start and must not
	// block. Without it stdout is logged like stderr.
	Attach func(stdin io.WriteCloser, stdout io.Reader)

	RestartOnFailure bool

	// RestartDelay doubles after each consecutive failure, up to
	// MaxRestartDelay.
	RestartDelay    time.Duration
	MaxRestartDelay time.Duration

	// StableThreshold is how long a run must last for the restart counter
	// to reset.
	StableThreshold time.Duration

	// MaxRestartAttempts of 0 means unlimited.
	MaxRestartAttempts int

	// GracefulTimeout is the wait between SIGTERM and SIGKILL on Stop.
	GracefulTimeout time.Duration

	// HealthCheckFunc, when set, runs every HealthCheckInterval. Three
	// failures in a row kill the process.
	HealthCheckFunc     func(ctx context.Context) error
	HealthCheckInterval time.Duration

	OnStart   func()
	OnStop    func(err error)
	OnRestart func(attempt int)
}

// DefaultConfig returns a restarting Config with the usual timings.
func DefaultConfig(name, binary string, args []string) Config {
	cfg := Config{
		Name:               name,
		Binary:             binary,
		Args:               args,
		RestartOnFailure:   true,
		MaxRestartAttempts: 10,
	}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	setDefault(&c.RestartDelay, 5*time.Second)
	setDefault(&c.MaxRestartDelay, 5*time.Minute)
	setDefault(&c.StableThreshold, 2*time.Minute)
	setDefault(&c.GracefulTimeout, 10*time.Second)
	setDefault(&c.HealthCheckInterval, 30*time.Second)
}

func setDefault(d *time.Duration, v time.Duration) {
	if *d <= 0 {
		*d = v
	}
}

// backoff is base doubled per attempt after the first, capped at ceiling.
func backoff(base, ceiling time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt && d < ceiling; i++ {
		d *= 2
	}
	return min(d, ceiling)
}

// Stats is a point-in-time view of a supervised process.
type Stats struct {
	Name         string        `json:"name"`
	Status       Status        `json:"status"`
	PID          int           `json:"pid,omitempty"`
	Uptime       time.Duration `json:"uptime,omitempty"`
	RestartCount int           `json:"restart_count"`
	LastError    string        `json:"last_error,omitempty"`
}

// Logger is the logging surface the supervisor needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
