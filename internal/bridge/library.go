package bridge

import (
	"context"
	"fmt"
)

// DeviceTypes calls get_device_types.
func (i *Interpreter) DeviceTypes(ctx context.Context) ([]string, error) {
	var types []string
	if err := i.Call(ctx, "get_device_types", nil, &types); err != nil {
		return nil, err
	}
	return types, nil
}

// GetDevice calls get_device and returns the serialized device handle.
func (i *Interpreter) GetDevice(ctx context.Context, ip, token, deviceType string) ([]byte, error) {
	var handle Bytes
	if err := i.Call(ctx, "get_device", []any{ip, token, deviceType}, &handle); err != nil {
		return nil, err
	}
	if handle == nil {
		return nil, fmt.Errorf("%w: get_device returned no handle", ErrBridge)
	}
	return handle, nil
}

// GetDeviceMethods calls get_device_methods with a device handle.
func (i *Interpreter) GetDeviceMethods(ctx context.Context, handle []byte) (map[string]string, error) {
	var methods map[string]string
	if err := i.Call(ctx, "get_device_methods", []any{Bytes(handle)}, &methods); err != nil {
		return nil, err
	}
	if methods == nil {
		methods = map[string]string{}
	}
	return methods, nil
}

// CallMethod calls call_method and returns the library's rendered result.
func (i *Interpreter) CallMethod(ctx context.Context, handle []byte, method string, args []string) (string, error) {
	if args == nil {
		args = []string{}
	}
	var result string
	if err := i.Call(ctx, "call_method", []any{Bytes(handle), method, args}, &result); err != nil {
		return "", err
	}
	return result, nil
}
