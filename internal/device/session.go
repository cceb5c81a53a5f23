package device

import (
	"context"
	"fmt"
	"maps"
	"slices"
)

// Library is the device library reached through the interpreter bridge.
// *bridge.Interpreter implements it.
type Library interface {
	DeviceTypes(ctx context.Context) ([]string, error)
	GetDevice(ctx context.Context, ip, token, deviceType string) ([]byte, error)
	GetDeviceMethods(ctx context.Context, handle []byte) (map[string]string, error)
	CallMethod(ctx context.Context, handle []byte, method string, args []string) (string, error)
}

// Session is one instantiated Miio device: its identity, the opaque handle
// the library produced for it and the method table reported at creation.
//
// A Session never changes after it is created. Accessors return copies.
type Session struct {
	deviceType string
	ip         string
	token      string
	handle     []byte
	methods    map[string]string
}

// newSession copies its inputs so the caller cannot alias session state.
func newSession(deviceType, ip, token string, handle []byte, methods map[string]string) *Session {
	if methods == nil {
		methods = map[string]string{}
	}
	return &Session{
		deviceType: deviceType,
		ip:         ip,
		token:      token,
		handle:     slices.Clone(handle),
		methods:    maps.Clone(methods),
	}
}

// Create instantiates a device through the library.
//
// No local validation is done on ip, token or deviceType: the library is the
// authority. On any failure nothing is returned and nothing is kept.
func Create(ctx context.Context, lib Library, ip, token, deviceType string) (*Session, error) {
	handle, err := lib.GetDevice(ctx, ip, token, deviceType)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCreation, err)
	}

	methods, err := lib.GetDeviceMethods(ctx, handle)
	if err != nil {
		return nil, fmt.Errorf("%w: listing methods: %w", ErrCreation, err)
	}

	return newSession(deviceType, ip, token, handle, methods), nil
}

// ListTypes returns the device type names the library supports, in the
// library's own order.
func ListTypes(ctx context.Context, lib Library) ([]string, error) {
	types, err := lib.DeviceTypes(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing device types: %w", err)
	}
	return types, nil
}

// Invoke calls method on the device with args passed through unchanged and
// returns the library's rendered result, for example "['ok']".
//
// Methods missing from Methods() are not rejected here; the library decides.
func (s *Session) Invoke(ctx context.Context, lib Library, method string, args []string) (string, error) {
	result, err := lib.CallMethod(ctx, s.Handle(), method, slices.Clone(args))
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrInvocation, method, err)
	}
	return result, nil
}

// DeviceType returns the library type name, e.g. "Yeelight".
func (s *Session) DeviceType() string { return s.deviceType }

// IP returns the device address as given at creation.
func (s *Session) IP() string { return s.ip }

// Token returns the device token as given at creation.
func (s *Session) Token() string { return s.token }

// Handle returns a copy of the serialized device handle.
func (s *Session) Handle() []byte { return slices.Clone(s.handle) }

// Methods returns a copy of the method table: name to signature.
func (s *Session) Methods() map[string]string { return maps.Clone(s.methods) }

// MethodNames returns the method names in sorted order.
func (s *Session) MethodNames() []string {
	return slices.Sorted(maps.Keys(s.methods))
}

// HasMethod reports whether the library listed name at creation.
func (s *Session) HasMethod(name string) bool {
	_, ok := s.methods[name]
	return ok
}

// Equal reports whether two sessions hold identical data.
func (s *Session) Equal(other *Session) bool {
	if s == nil || other == nil {
		return s == other
	}
	return s.deviceType == other.deviceType &&
		s.ip == other.ip &&
		s.token == other.token &&
		slices.Equal(s.handle, other.handle) &&
		maps.Equal(s.methods, other.methods)
}
