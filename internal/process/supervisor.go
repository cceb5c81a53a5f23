package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

const (
	maxOutputLine      = 64 * 1024
	maxHealthFailures  = 3
	healthCheckTimeout = 5 * time.Second
	killWait           = 5 * time.Second
)

// Supervisor runs one subprocess at a time and restarts it on failure.
type Supervisor struct {
	cfg Config
	log Logger

	mu         sync.Mutex
	status     Status
	cmd        *exec.Cmd
	startedAt  time.Time
	restarts   int
	lastErr    error
	stderrTail string

	// Non-nil while a supervision loop is active.
	stopCh   chan struct{}
	stopping bool
	done     chan struct{}
}

// NewSupervisor fills unset durations in cfg with defaults.
func NewSupervisor(cfg Config) *Supervisor {
	cfg.applyDefaults()
	return &Supervisor{cfg: cfg, log: noopLogger{}, status: StatusStopped}
}

// SetLogger sets the logger. Call before Start.
func (s *Supervisor) SetLogger(l Logger) {
	s.log = l
}

// Start launches the process and supervises it in the background until
// Stop is called or ctx ends. Cancelling ctx kills the process.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.stopCh != nil || s.status == StatusStarting {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, s.cfg.Name)
	}
	s.status = StatusStarting
	s.restarts = 0
	s.mu.Unlock()

	run, err := s.launch(ctx)
	if err != nil {
		s.fail(err)
		return err
	}

	s.mu.Lock()
	s.stopCh = make(chan struct{})
	s.stopping = false
	s.done = make(chan struct{})
	stopCh, done := s.stopCh, s.done
	s.mu.Unlock()

	go s.supervise(ctx, run, stopCh, done)
	return nil
}

// run is one started process and its exit notification.
type run struct {
	cmd    *exec.Cmd
	exited chan error
}

func (s *Supervisor) launch(ctx context.Context) (*run, error) {
	cmd := exec.CommandContext(ctx, s.cfg.Binary, s.cfg.Args...) //nolint:gosec // binary comes from validated configuration
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error { return killGroup(cmd, syscall.SIGKILL) }
	if s.cfg.Env != nil {
		cmd.Env = append(os.Environ(), s.cfg.Env...)
	}

	var (
		stdin io.WriteCloser
		err   error
	)
	if s.cfg.Attach != nil {
		if stdin, err = cmd.StdinPipe(); err != nil {
			return nil, fmt.Errorf("stdin pipe: %w", err)
		}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", s.cfg.Name, err)
	}

	s.mu.Lock()
	s.cmd = cmd
	s.status = StatusRunning
	s.startedAt = time.Now()
	s.stderrTail = ""
	s.mu.Unlock()

	s.log.Info("process started", "name", s.cfg.Name, "pid", cmd.Process.Pid)

	if s.cfg.Attach != nil {
		s.cfg.Attach(stdin, stdout)
	} else {
		go s.drain("stdout", stdout)
	}

	// Wait closes the pipes, so stderr is read to EOF first.
	r := &run{cmd: cmd, exited: make(chan error, 1)}
	stderrDone := make(chan struct{})
	go func() {
		s.drain("stderr", stderr)
		close(stderrDone)
	}()
	go func() {
		<-stderrDone
		r.exited <- cmd.Wait()
	}()

	if s.cfg.OnStart != nil {
		s.cfg.OnStart()
	}
	return r, nil
}

// drain logs each output line. The last stderr line is kept for LastError.
func (s *Supervisor) drain(stream string, r io.Reader) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), maxOutputLine)
	for sc.Scan() {
		line := sc.Text()
		s.log.Debug("process output", "name", s.cfg.Name, "stream", stream, "line", line)
		if stream == "stderr" && strings.TrimSpace(line) != "" {
			s.mu.Lock()
			s.stderrTail = strings.TrimSpace(line)
			s.mu.Unlock()
		}
	}
	if err := sc.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		s.log.Debug("output stream closed", "name", s.cfg.Name, "stream", stream, "error", err)
	}
}

func (s *Supervisor) supervise(ctx context.Context, r *run, stopCh, done chan struct{}) {
	defer func() {
		s.mu.Lock()
		s.stopCh = nil
		s.mu.Unlock()
		close(done)
	}()

	for {
		err := s.watch(ctx, r)

		s.mu.Lock()
		requested := s.stopping
		s.mu.Unlock()
		if requested || ctx.Err() != nil {
			s.log.Info("process stopped", "name", s.cfg.Name)
			s.setStatus(StatusStopped)
			if s.cfg.OnStop != nil {
				s.cfg.OnStop(nil)
			}
			return
		}

		err = s.exitError(err)
		s.log.Warn("process exited unexpectedly", "name", s.cfg.Name, "error", err)
		attempt := s.recordExit(err)
		if s.cfg.OnStop != nil {
			s.cfg.OnStop(err)
		}

		if !s.cfg.RestartOnFailure {
			return
		}
		if s.cfg.MaxRestartAttempts > 0 && attempt > s.cfg.MaxRestartAttempts {
			s.log.Error("giving up after repeated failures", "name", s.cfg.Name, "attempts", attempt-1)
			return
		}

		delay := backoff(s.cfg.RestartDelay, s.cfg.MaxRestartDelay, attempt)
		s.log.Info("restarting process", "name", s.cfg.Name, "attempt", attempt, "delay", delay)
		if s.cfg.OnRestart != nil {
			s.cfg.OnRestart(attempt)
		}

		select {
		case <-ctx.Done():
			s.setStatus(StatusStopped)
			return
		case <-stopCh:
			s.setStatus(StatusStopped)
			return
		case <-time.After(delay):
		}

		if r, err = s.launch(ctx); err != nil {
			s.log.Error("restart failed", "name", s.cfg.Name, "error", err)
			s.fail(err)
			return
		}
	}
}

// watch returns when the process exits. With a health check configured,
// repeated failures kill the process group first.
func (s *Supervisor) watch(ctx context.Context, r *run) error {
	if s.cfg.HealthCheckFunc == nil {
		return <-r.exited
	}

	ticker := time.NewTicker(s.cfg.HealthCheckInterval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case err := <-r.exited:
			return err
		case <-ctx.Done():
			return <-r.exited
		case <-ticker.C:
		}

		checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
		err := s.cfg.HealthCheckFunc(checkCtx)
		cancel()
		if err == nil {
			if failures > 0 {
				s.log.Info("health check recovered", "name", s.cfg.Name, "after_failures", failures)
			}
			failures = 0
			continue
		}

		failures++
		s.log.Warn("health check failed", "name", s.cfg.Name, "error", err, "failures", failures)
		if failures < maxHealthFailures {
			continue
		}

		s.log.Error("killing unresponsive process", "name", s.cfg.Name, "failures", failures)
		_ = killGroup(r.cmd, syscall.SIGKILL)
		select {
		case <-r.exited:
			return fmt.Errorf("killed after %d failed health checks: %w", failures, err)
		case <-time.After(killWait):
			return errors.New("process did not exit after SIGKILL")
		}
	}
}

// exitError adds the last stderr line, which for an interpreter is usually
// the exception that ended it.
func (s *Supervisor) exitError(err error) error {
	if err == nil {
		err = errors.New("exited with status 0")
	}
	s.mu.Lock()
	tail := s.stderrTail
	s.mu.Unlock()
	if tail == "" {
		return err
	}
	return fmt.Errorf("%w: %s", err, tail)
}

// recordExit marks the process failed and returns the next attempt number.
func (s *Supervisor) recordExit(err error) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusFailed
	s.lastErr = err
	if time.Since(s.startedAt) >= s.cfg.StableThreshold {
		s.restarts = 0
	}
	s.restarts++
	return s.restarts
}

func (s *Supervisor) fail(err error) {
	s.mu.Lock()
	s.status = StatusFailed
	s.lastErr = err
	s.cmd = nil
	s.mu.Unlock()
}

func (s *Supervisor) setStatus(st Status) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

// Stop ends supervision. A running process gets SIGTERM, then SIGKILL
// after GracefulTimeout. Stop on an idle Supervisor is a no-op.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return nil
	}
	if !s.stopping {
		s.stopping = true
		close(s.stopCh)
	}
	cmd, running, done := s.cmd, s.status == StatusRunning, s.done
	s.mu.Unlock()

	if !running || cmd == nil || cmd.Process == nil {
		<-done
		return nil
	}

	s.log.Info("stopping process", "name", s.cfg.Name, "pid", cmd.Process.Pid)
	if err := killGroup(cmd, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		s.log.Warn("SIGTERM failed", "name", s.cfg.Name, "error", err)
	}

	select {
	case <-done:
		return nil
	case <-time.After(s.cfg.GracefulTimeout):
		s.log.Warn("graceful stop timed out, sending SIGKILL", "name", s.cfg.Name, "timeout", s.cfg.GracefulTimeout)
	}

	if err := killGroup(cmd, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("killing %s: %w", s.cfg.Name, err)
	}
	<-done
	return nil
}

// killGroup signals the process group created through Setpgid.
func killGroup(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd.Process == nil {
		return nil
	}
	return syscall.Kill(-cmd.Process.Pid, sig)
}

// Status returns the current state.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// IsRunning reports whether the process is up.
func (s *Supervisor) IsRunning() bool {
	return s.Status() == StatusRunning
}

// LastError is the most recent start failure or unexpected exit.
func (s *Supervisor) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// RestartCount counts restarts since the process last ran stably.
func (s *Supervisor) RestartCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restarts
}

// PID is 0 unless running.
func (s *Supervisor) PID() int {
	return s.Stats().PID
}

// Uptime is 0 unless running.
func (s *Supervisor) Uptime() time.Duration {
	return s.Stats().Uptime
}

// Stats snapshots the supervisor state.
func (s *Supervisor) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{Name: s.cfg.Name, Status: s.status, RestartCount: s.restarts}
	if s.status == StatusRunning && s.cmd != nil && s.cmd.Process != nil {
		st.PID = s.cmd.Process.Pid
		st.Uptime = time.Since(s.startedAt)
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}
