package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"sync"
)

// hostFunc is a capability function served by fakeRuntime.
type hostFunc func(args []json.RawMessage) (any, error)

// hostException is returned by a hostFunc to simulate a Python exception.
type hostException struct {
	typ string
	msg string
}

func (e *hostException) Error() string { return e.typ + ": " + e.msg }

// fakeRuntime runs an in-process host speaking the line protocol over pipes.
type fakeRuntime struct {
	mu      sync.Mutex
	interp  *Interpreter
	funcs   map[string]hostFunc
	loadErr *hostException
	running bool
	starts  int
	loads   int
	stops   int
	closers []io.Closer
}

func newFakeRuntime(funcs map[string]hostFunc) *fakeRuntime {
	return &fakeRuntime{funcs: funcs}
}

func (r *fakeRuntime) Start(ctx context.Context) error {
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()

	r.mu.Lock()
	r.running = true
	r.starts++
	r.closers = []io.Closer{inR, outW}
	r.mu.Unlock()

	go r.serve(inR, outW)
	r.interp.Attach(inW, outR)
	return nil
}

func (r *fakeRuntime) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return nil
	}
	r.running = false
	r.stops++
	for _, c := range r.closers {
		_ = c.Close()
	}
	return nil
}

func (r *fakeRuntime) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// crash simulates the host process exiting on its own.
func (r *fakeRuntime) crash() {
	r.mu.Lock()
	r.running = false
	closers := r.closers
	r.mu.Unlock()
	for _, c := range closers {
		_ = c.Close()
	}
}

func (r *fakeRuntime) counts() (starts, loads, stops int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.starts, r.loads, r.stops
}

type fakeRequest struct {
	ID      uint64            `json:"id"`
	Op      string            `json:"op"`
	Module  *moduleRef        `json:"module"`
	Require []string          `json:"require"`
	Func    string            `json:"func"`
	Args    []json.RawMessage `json:"args"`
}

func (r *fakeRuntime) serve(in io.Reader, out io.WriteCloser) {
	defer out.Close()

	br := bufio.NewReader(in)
	for {
		line, err := br.ReadBytes('\n')
		if err != nil {
			return
		}
		var req fakeRequest
		if err := json.Unmarshal(line, &req); err != nil {
			return
		}

		resp := map[string]any{"id": req.ID}
		result, exc := r.handle(&req)
		if exc != nil {
			resp["ok"] = false
			resp["error"] = map[string]string{"type": exc.typ, "message": exc.msg}
		} else {
			resp["ok"] = true
			resp["result"] = result
		}

		data, _ := json.Marshal(resp)
		if _, err := out.Write(append(data, '\n')); err != nil {
			return
		}
	}
}

func (r *fakeRuntime) handle(req *fakeRequest) (any, *hostException) {
	switch req.Op {
	case opPing:
		return "pong", nil
	case opLoad:
		r.mu.Lock()
		r.loads++
		loadErr := r.loadErr
		r.mu.Unlock()
		if loadErr != nil {
			return nil, loadErr
		}
		missing := []string{}
		for _, name := range req.Require {
			if _, ok := r.funcs[name]; !ok {
				missing = append(missing, name)
			}
		}
		return map[string]any{"module": req.Module.Name, "missing": missing}, nil
	case opCall:
		fn, ok := r.funcs[req.Func]
		if !ok {
			return nil, &hostException{typ: "AttributeError", msg: "no function " + req.Func}
		}
		result, err := fn(req.Args)
		if err != nil {
			if exc, ok := err.(*hostException); ok {
				return nil, exc
			}
			return nil, &hostException{typ: "Exception", msg: err.Error()}
		}
		return result, nil
	default:
		return nil, &hostException{typ: "ValueError", msg: "unknown op"}
	}
}

// decodeArg unmarshals one call argument, unwrapping $bytes values.
func decodeArg[T any](raw json.RawMessage) T {
	var v T
	_ = json.Unmarshal(raw, &v)
	return v
}

// miioFuncs is a small stand-in for the capability module.
func miioFuncs() map[string]hostFunc {
	return map[string]hostFunc{
		"get_device_types": func([]json.RawMessage) (any, error) {
			return []string{"Yeelight", "FanMiot", "RoborockVacuum"}, nil
		},
		"get_device": func(args []json.RawMessage) (any, error) {
			ip := decodeArg[string](args[0])
			token := decodeArg[string](args[1])
			kind := decodeArg[string](args[2])
			if kind != "Yeelight" && kind != "FanMiot" {
				return nil, &hostException{typ: "ValueError", msg: "Device type '" + kind + "' not found"}
			}
			return Bytes(kind + "|" + ip + "|" + token + "\x00\xff"), nil
		},
		"get_device_methods": func(args []json.RawMessage) (any, error) {
			handle := decodeArg[Bytes](args[0])
			if len(handle) == 0 {
				return nil, &hostException{typ: "UnpicklingError", msg: "empty handle"}
			}
			return map[string]string{"toggle": "()", "set_brightness": "(level)"}, nil
		},
		"call_method": func(args []json.RawMessage) (any, error) {
			method := decodeArg[string](args[1])
			params := decodeArg[[]string](args[2])
			switch method {
			case "toggle":
				return "['ok']", nil
			case "echo":
				out, _ := json.Marshal(params)
				return string(out), nil
			}
			return nil, &hostException{typ: "ValueError", msg: "Method '" + method + "' not found"}
		},
	}
}

func newTestInterpreter(funcs map[string]hostFunc) (*Interpreter, *fakeRuntime) {
	rt := newFakeRuntime(funcs)
	interp := New(rt, EmbeddedSource{Module: EmbeddedModuleName, Source: "# test"})
	rt.interp = interp
	return interp, rt
}
