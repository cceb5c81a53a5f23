package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrCreation) {
//	    // the library refused the ip/token/type
//	}
//
// Errors from the device library wrap one of ErrCreation or ErrInvocation
// together with the underlying bridge error, so errors.Is(err,
// bridge.ErrBridge) still distinguishes a broken interpreter from a
// library-side failure.
var (
	// ErrCreation is returned when the library cannot instantiate a device.
	ErrCreation = errors.New("device: creation failed")

	// ErrInvocation is returned when a device method call fails.
	ErrInvocation = errors.New("device: invocation failed")

	// ErrParse is returned when persisted session state is malformed.
	ErrParse = errors.New("device: malformed session data")

	// ErrIO is returned when reading or writing a session file fails.
	ErrIO = errors.New("device: session file i/o failed")

	// ErrDeviceNotFound is returned when a registry ID does not exist.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when a registry ID or name is already taken.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrInvalidName is returned when a device name is empty or too long.
	ErrInvalidName = errors.New("device: invalid name")
)
