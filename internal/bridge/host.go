package bridge

import (
	"time"

	"github.com/nerrad567/gray-logic-miio/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-miio/internal/process"
)

// HostConfig describes how to run the Python host process.
type HostConfig struct {
	Python             string
	Env                []string
	RestartOnFailure   bool
	RestartDelay       time.Duration
	MaxRestartAttempts int

	// HealthCheckInterval enables periodic pings of the host. 0 disables them.
	HealthCheckInterval time.Duration
}

// HostConfigFromConfig maps the bridge configuration section.
func HostConfigFromConfig(cfg *config.Config) HostConfig {
	return HostConfig{
		Python:              cfg.Bridge.Python,
		Env:                 cfg.Bridge.Env,
		RestartOnFailure:    cfg.Bridge.RestartOnFailure,
		RestartDelay:        cfg.GetRestartDelay(),
		MaxRestartAttempts:  cfg.Bridge.MaxRestartAttempts,
		HealthCheckInterval: time.Minute,
	}
}

// NewHost creates an Interpreter backed by a supervised Python process.
// The process is started on the first call.
func NewHost(cfg HostConfig, source ModuleSource, logger Logger) *Interpreter {
	python := cfg.Python
	if python == "" {
		python = "python3"
	}

	pcfg := process.DefaultConfig("python-host", python, []string{"-u", "-c", hostSource})
	pcfg.Env = cfg.Env
	pcfg.RestartOnFailure = cfg.RestartOnFailure
	pcfg.MaxRestartAttempts = cfg.MaxRestartAttempts
	pcfg.GracefulTimeout = 3 * time.Second
	if cfg.RestartDelay > 0 {
		pcfg.RestartDelay = cfg.RestartDelay
	}

	interp := New(nil, source)
	pcfg.Attach = interp.Attach
	if cfg.HealthCheckInterval > 0 {
		pcfg.HealthCheckFunc = interp.Ping
		pcfg.HealthCheckInterval = cfg.HealthCheckInterval
	}

	sup := process.NewSupervisor(pcfg)
	interp.rt = sup

	if logger != nil {
		sup.SetLogger(logger)
		interp.SetLogger(logger)
	}
	return interp
}

// HostStats reports the host process state. ok is false when the
// Interpreter does not run on a supervised process.
func (i *Interpreter) HostStats() (stats process.Stats, ok bool) {
	sup, ok := i.rt.(*process.Supervisor)
	if !ok {
		return process.Stats{}, false
	}
	return sup.Stats(), true
}
