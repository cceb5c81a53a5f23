package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Runtime is the lifecycle of the host process. *process.Supervisor satisfies it.
//
// Start must hand the new process's stdin/stdout to Interpreter.Attach before
// returning.
type Runtime interface {
	Start(ctx context.Context) error
	Stop() error
	IsRunning() bool
}

// Logger defines the logging interface for the bridge.
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

// Interpreter is the process-wide handle to the device library.
//
// All calls are serialised by one mutex: at most one foreign call is in
// flight at a time. Create one Interpreter per process and share it.
type Interpreter struct {
	// mu is the foreign-call lock. Held for the whole of every call,
	// including module resolution.
	mu     sync.Mutex
	rt     Runtime
	source ModuleSource
	logger Logger
	nextID uint64

	// Protects conn, which Attach replaces from the supervisor goroutine.
	connMu sync.Mutex
	conn   *conn

	lifeCtx context.Context
	cancel  context.CancelFunc
}

// New creates an Interpreter driving rt. The host is started lazily on the
// first call.
func New(rt Runtime, source ModuleSource) *Interpreter {
	ctx, cancel := context.WithCancel(context.Background())
	return &Interpreter{
		rt:      rt,
		source:  source,
		logger:  noopLogger{},
		lifeCtx: ctx,
		cancel:  cancel,
	}
}

// SetLogger sets the logger for the interpreter.
func (i *Interpreter) SetLogger(logger Logger) {
	i.logger = logger
}

// Source returns the configured module source.
func (i *Interpreter) Source() ModuleSource {
	return i.source
}

// Attach wires a freshly started host process. Any previous connection is
// discarded and the module must be resolved again.
func (i *Interpreter) Attach(stdin io.WriteCloser, stdout io.Reader) {
	c := newConn(stdin, stdout)

	i.connMu.Lock()
	old := i.conn
	i.conn = c
	i.connMu.Unlock()

	if old != nil {
		old.close()
	}
}

// Call invokes fn in the capability module with args and decodes the result
// into out (which may be nil to discard it).
//
// Library exceptions are returned as *CallError. Boundary failures wrap
// ErrBridge. If ctx ends while the call is in flight the host is stopped and
// the next call starts a new one.
func (i *Interpreter) Call(ctx context.Context, fn string, args []any, out any) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if err := i.resolveLocked(ctx); err != nil {
		return err
	}

	result, err := i.roundTrip(ctx, &request{Op: opCall, Func: fn, Args: args})
	if err != nil {
		i.dropBrokenLocked()
		var remote *remoteError
		if errors.As(err, &remote) {
			return &CallError{Func: fn, Type: remote.Type, Message: remote.Message}
		}
		return fmt.Errorf("calling %s: %w", fn, err)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(result, out); err != nil {
		return fmt.Errorf("%w: decoding %s result: %v", ErrBridge, fn, err)
	}
	return nil
}

// Resolve makes sure the host is running and the capability module is
// loaded. It is idempotent and cheap once resolved.
func (i *Interpreter) Resolve(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.resolveLocked(ctx)
}

// Ping checks the host answers. It never waits for the call lock: if a call
// is in flight the host is busy, not hung, and Ping reports healthy.
func (i *Interpreter) Ping(ctx context.Context) error {
	if !i.mu.TryLock() {
		return nil
	}
	defer i.mu.Unlock()

	c := i.currentConn()
	if c == nil || c.isDead() {
		return fmt.Errorf("%w: interpreter not running", ErrBridge)
	}
	_, err := i.roundTrip(ctx, &request{Op: opPing})
	return err
}

// Close stops the host. The Interpreter can not be used afterwards.
func (i *Interpreter) Close() error {
	i.cancel()

	i.mu.Lock()
	defer i.mu.Unlock()

	err := i.rt.Stop()
	if c := i.currentConn(); c != nil {
		c.close()
	}
	return err
}

// resolveLocked requires i.mu.
func (i *Interpreter) resolveLocked(ctx context.Context) error {
	if err := i.lifeCtx.Err(); err != nil {
		return fmt.Errorf("%w: interpreter closed", ErrBridge)
	}

	c := i.currentConn()
	if c != nil && c.resolved && !c.broken && !c.isDead() && i.rt.IsRunning() {
		return nil
	}

	if c == nil || c.broken || c.isDead() || !i.rt.IsRunning() {
		if err := i.restartLocked(); err != nil {
			return err
		}
	}

	c = i.currentConn()
	result, err := i.roundTrip(ctx, &request{
		Op:      opLoad,
		Module:  i.source.ref(),
		Require: capabilities,
	})
	if err != nil {
		i.dropBrokenLocked()
		var remote *remoteError
		if errors.As(err, &remote) {
			return fmt.Errorf("%w: loading %s: %s: %s", ErrBridge, i.source.Describe(), remote.Type, remote.Message)
		}
		return fmt.Errorf("loading %s: %w", i.source.Describe(), err)
	}

	var loaded loadResult
	if err := json.Unmarshal(result, &loaded); err != nil {
		return fmt.Errorf("%w: decoding load result: %v", ErrBridge, err)
	}
	if len(loaded.Missing) > 0 {
		return fmt.Errorf("%w: %s lacks capability functions: %s",
			ErrBridge, i.source.Describe(), strings.Join(loaded.Missing, ", "))
	}

	c.resolved = true
	i.logger.Info("capability module resolved", "source", i.source.Describe())
	return nil
}

// dropBrokenLocked stops a host whose stream is no longer in a known
// state. Requires i.mu.
func (i *Interpreter) dropBrokenLocked() {
	c := i.currentConn()
	if c == nil || !c.broken {
		return
	}
	i.logger.Warn("stopping interpreter after abandoned call")
	if err := i.rt.Stop(); err != nil {
		i.logger.Warn("stopping interpreter", "error", err)
	}
	c.close()
}

// restartLocked replaces the host process. Requires i.mu.
func (i *Interpreter) restartLocked() error {
	if err := i.rt.Stop(); err != nil {
		i.logger.Warn("stopping interpreter", "error", err)
	}
	if err := i.rt.Start(i.lifeCtx); err != nil {
		return fmt.Errorf("%w: starting interpreter: %v", ErrBridge, err)
	}
	if i.currentConn() == nil {
		return fmt.Errorf("%w: interpreter started without attaching", ErrBridge)
	}
	return nil
}

// roundTrip sends req and waits for the matching response. Requires i.mu.
//
// A *remoteError is returned when the host answered ok=false. If ctx ends
// first the connection is marked broken: its stream position is unknown.
func (i *Interpreter) roundTrip(ctx context.Context, req *request) (json.RawMessage, error) {
	c := i.currentConn()
	if c == nil {
		return nil, fmt.Errorf("%w: interpreter not attached", ErrBridge)
	}

	i.nextID++
	req.ID = i.nextID

	line, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding %s request: %v", ErrBridge, req.Op, err)
	}
	if err := c.send(ctx, append(line, '\n')); err != nil {
		c.broken = true
		return nil, err
	}

	for {
		select {
		case <-ctx.Done():
			c.broken = true
			i.logger.Warn("abandoning interpreter call", "op", req.Op, "func", req.Func, "error", ctx.Err())
			return nil, fmt.Errorf("%w: %s abandoned: %w", ErrBridge, req.Op, ctx.Err())

		case <-c.dead:
			return nil, fmt.Errorf("%w: interpreter exited during %s", ErrBridge, req.Op)

		case raw := <-c.lines:
			var resp response
			if err := json.Unmarshal(raw, &resp); err != nil {
				c.broken = true
				return nil, fmt.Errorf("%w: malformed response: %v", ErrBridge, err)
			}
			if resp.ID != req.ID {
				i.logger.Debug("discarding stale response", "id", resp.ID, "want", req.ID)
				continue
			}
			if !resp.OK {
				if resp.Error == nil {
					return nil, &remoteError{Type: "Error", Message: "unknown error"}
				}
				return nil, resp.Error
			}
			return resp.Result, nil
		}
	}
}

func (i *Interpreter) currentConn() *conn {
	i.connMu.Lock()
	defer i.connMu.Unlock()
	return i.conn
}

func (e *remoteError) Error() string {
	return e.Type + ": " + e.Message
}

// conn is one host process's stdin/stdout pair.
type conn struct {
	w     io.WriteCloser
	lines chan []byte
	dead  chan struct{}
	quit  chan struct{}
	once  sync.Once

	// Only touched under the foreign-call lock.
	resolved bool
	broken   bool
}

func newConn(w io.WriteCloser, r io.Reader) *conn {
	c := &conn{
		w:     w,
		lines: make(chan []byte, 1),
		dead:  make(chan struct{}),
		quit:  make(chan struct{}),
	}
	go c.readLoop(r)
	return c
}

func (c *conn) readLoop(r io.Reader) {
	defer close(c.dead)

	br := bufio.NewReader(r)
	for {
		line, err := br.ReadBytes('\n')
		if len(line) > 0 {
			select {
			case c.lines <- line:
			case <-c.quit:
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// send writes line, giving up when ctx ends or the host dies.
func (c *conn) send(ctx context.Context, line []byte) error {
	errCh := make(chan error, 1)
	go func() {
		_, err := c.w.Write(line)
		errCh <- err
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("%w: writing request: %v", ErrBridge, err)
		}
		return nil
	case <-c.dead:
		return fmt.Errorf("%w: interpreter exited", ErrBridge)
	case <-ctx.Done():
		return fmt.Errorf("%w: request abandoned: %w", ErrBridge, ctx.Err())
	}
}

func (c *conn) isDead() bool {
	select {
	case <-c.dead:
		return true
	default:
		return false
	}
}

func (c *conn) close() {
	c.once.Do(func() {
		close(c.quit)
		_ = c.w.Close()
	})
}
