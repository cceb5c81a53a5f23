package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/gray-logic-miio/internal/bridge"
	"github.com/nerrad567/gray-logic-miio/internal/device"
)

// Error is the body of every non-2xx response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`

	// Exception is the library exception class when python-miio raised.
	Exception string `json:"exception,omitempty"`
}

const (
	ErrCodeBadRequest  = "bad_request"
	ErrCodeNotFound    = "not_found"
	ErrCodeConflict    = "conflict"
	ErrCodeInternal    = "internal_error"
	ErrCodeValidation  = "validation_error"
	ErrCodeDevice      = "device_error"
	ErrCodeBridge      = "bridge_error"
	ErrCodeTimeout     = "timeout"
	ErrCodeUnavailable = "unavailable"
)

// deviceErrors is checked in order; the first match decides the response.
// Library and interpreter failures are upstream failures.
var deviceErrors = []struct {
	target  error
	status  int
	code    string
	message string // fixed message; empty uses err.Error()
}{
	{device.ErrDeviceNotFound, http.StatusNotFound, ErrCodeNotFound, "device not found"},
	{device.ErrDeviceExists, http.StatusConflict, ErrCodeConflict, "a device with this name already exists"},
	{device.ErrInvalidName, http.StatusBadRequest, ErrCodeValidation, ""},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, ErrCodeTimeout, ""},
	{bridge.ErrBridge, http.StatusBadGateway, ErrCodeBridge, ""},
	{device.ErrCreation, http.StatusBadGateway, ErrCodeDevice, ""},
	{device.ErrInvocation, http.StatusBadGateway, ErrCodeDevice, ""},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // client may be gone
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{Status: status, Code: code, Message: message})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeDeviceError maps registry, device and bridge errors to a response.
// Anything unrecognised is a 500 with no detail.
func writeDeviceError(w http.ResponseWriter, err error) {
	for _, m := range deviceErrors {
		if !errors.Is(err, m.target) {
			continue
		}
		body := Error{Status: m.status, Code: m.code, Message: m.message}
		if body.Message == "" {
			body.Message = err.Error()
		}
		var callErr *bridge.CallError
		if errors.As(err, &callErr) {
			body.Exception = callErr.Type
		}
		writeJSON(w, m.status, body)
		return
	}
	writeInternalError(w, "internal server error")
}
