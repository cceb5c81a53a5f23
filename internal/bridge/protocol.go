package bridge

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// Host protocol operations.
const (
	opLoad = "load"
	opCall = "call"
	opPing = "ping"
)

// bytesKey marks a JSON object carrying base64-encoded bytes.
const bytesKey = "$bytes"

// request is one line sent to the host.
type request struct {
	ID      uint64     `json:"id"`
	Op      string     `json:"op"`
	Module  *moduleRef `json:"module,omitempty"`
	Require []string   `json:"require,omitempty"`
	Func    string     `json:"func,omitempty"`
	Args    []any      `json:"args,omitempty"`
}

// response is one line read back from the host.
type response struct {
	ID     uint64          `json:"id"`
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *remoteError    `json:"error,omitempty"`
}

type remoteError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// loadResult is the host's answer to a load request.
type loadResult struct {
	Module  string   `json:"module"`
	Missing []string `json:"missing"`
}

// Bytes is a byte string that crosses the host boundary as
// {"$bytes": "<base64>"} and arrives in Python as a bytes object.
type Bytes []byte

// MarshalJSON implements json.Marshaler.
func (b Bytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{bytesKey: base64.StdEncoding.EncodeToString(b)})
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *Bytes) UnmarshalJSON(data []byte) error {
	var wrapped map[string]string
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return fmt.Errorf("decoding bytes value: %w", err)
	}
	encoded, ok := wrapped[bytesKey]
	if !ok || len(wrapped) != 1 {
		return errors.New("decoding bytes value: expected a single $bytes key")
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("decoding bytes value: %w", err)
	}
	*b = raw
	return nil
}
