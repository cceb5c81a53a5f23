package device

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
)

var errLibrary = errors.New("library failure")

// fakeLibrary mimics the capability module for two device types.
type fakeLibrary struct {
	mu            sync.Mutex
	types         []string
	failMethods   bool
	failTypes     bool
	calls         []string
	lastArgs      []string
	getDeviceHits int
}

func newFakeLibrary() *fakeLibrary {
	return &fakeLibrary{types: []string{"Yeelight", "Vacuum", "AirPurifier"}}
}

func (f *fakeLibrary) DeviceTypes(context.Context) ([]string, error) {
	if f.failTypes {
		return nil, errLibrary
	}
	return slices.Clone(f.types), nil
}

func (f *fakeLibrary) GetDevice(_ context.Context, ip, token, deviceType string) ([]byte, error) {
	f.mu.Lock()
	f.getDeviceHits++
	f.mu.Unlock()
	if !slices.Contains(f.types, deviceType) {
		return nil, fmt.Errorf("%w: Device type '%s' not found", errLibrary, deviceType)
	}
	return []byte("handle:" + deviceType + ":" + ip + ":" + token), nil
}

func (f *fakeLibrary) GetDeviceMethods(_ context.Context, handle []byte) (map[string]string, error) {
	if f.failMethods {
		return nil, errLibrary
	}
	return map[string]string{
		"toggle":  "toggle()",
		"on":      "on()",
		"set_rgb": "set_rgb(rgb)",
	}, nil
}

func (f *fakeLibrary) CallMethod(_ context.Context, handle []byte, method string, args []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, method)
	f.lastArgs = args
	switch method {
	case "toggle", "on":
		return "['ok']", nil
	case "set_rgb":
		return fmt.Sprintf("['ok', %q]", args), nil
	}
	return "", fmt.Errorf("%w: no method %s", errLibrary, method)
}
