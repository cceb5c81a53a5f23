package bridge

import (
	"errors"
	"fmt"
)

// ErrBridge indicates a failure at the interpreter boundary: the host could
// not be started, the capability module could not be resolved, or the
// connection broke mid-call.
var ErrBridge = errors.New("interpreter bridge error")

// CallError is an exception raised by the device library during a call.
// The message is the library's own and is treated as opaque.
type CallError struct {
	Func    string
	Type    string
	Message string
}

func (e *CallError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("%s: %s", e.Func, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Func, e.Type, e.Message)
}
