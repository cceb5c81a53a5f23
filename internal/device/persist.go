package device

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// sessionFile is the on-disk layout of a Session. Field names are part of
// the file format; changing them breaks existing files.
type sessionFile struct {
	DeviceType      *string            `json:"device_type"`
	IP              *string            `json:"ip"`
	Token           *string            `json:"token"`
	Handle          *handleJSON        `json:"serialized_py_object"`
	CallableMethods *map[string]string `json:"callable_methods"`
}

// handleJSON encodes as an array of byte values. Decoding also accepts a
// base64 string.
type handleJSON []byte

// MarshalJSON implements json.Marshaler.
func (h handleJSON) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(len(h)*4 + 2)
	buf.WriteByte('[')
	for i, b := range h {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Itoa(int(b)))
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (h *handleJSON) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return errors.New("serialized_py_object is null")
	}

	var encoded string
	if err := json.Unmarshal(data, &encoded); err == nil {
		raw, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return fmt.Errorf("serialized_py_object: %w", err)
		}
		*h = raw
		return nil
	}

	var values []int
	if err := json.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("serialized_py_object must be a byte array: %w", err)
	}
	raw := make([]byte, len(values))
	for i, v := range values {
		if v < 0 || v > 255 {
			return fmt.Errorf("serialized_py_object[%d] = %d is not a byte", i, v)
		}
		raw[i] = byte(v)
	}
	*h = raw
	return nil
}

// Marshal renders s as pretty-printed JSON.
func Marshal(s *Session) ([]byte, error) {
	handle := handleJSON(s.handle)
	methods := s.methods
	file := sessionFile{
		DeviceType:      &s.deviceType,
		IP:              &s.ip,
		Token:           &s.token,
		Handle:          &handle,
		CallableMethods: &methods,
	}
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding session: %w", err)
	}
	return data, nil
}

// Unmarshal parses data produced by Marshal. Every field must be present
// and of the right type; unknown fields are ignored.
func Unmarshal(data []byte) (*Session, error) {
	var file sessionFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}

	var missing []string
	if file.DeviceType == nil {
		missing = append(missing, "device_type")
	}
	if file.IP == nil {
		missing = append(missing, "ip")
	}
	if file.Token == nil {
		missing = append(missing, "token")
	}
	if file.Handle == nil {
		missing = append(missing, "serialized_py_object")
	}
	if file.CallableMethods == nil || *file.CallableMethods == nil {
		missing = append(missing, "callable_methods")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing fields %v", ErrParse, missing)
	}

	return newSession(*file.DeviceType, *file.IP, *file.Token, *file.Handle, *file.CallableMethods), nil
}

// WriteFile stores s at path. The file is replaced atomically and is only
// readable by the owner since it contains the device token.
func WriteFile(s *Session, path string) error {
	data, err := Marshal(s)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: writing %s: %w", ErrIO, path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: syncing %s: %w", ErrIO, path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: closing %s: %w", ErrIO, path, err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	return nil
}

// ReadFile loads a session stored by WriteFile.
func ReadFile(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	s, err := Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// SaveToDir writes s as dir/name, creating dir if needed.
func SaveToDir(s *Session, dir, name string) error {
	if err := checkFileName(name); err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	return WriteFile(s, filepath.Join(dir, name))
}

// LoadFromDir reads dir/name.
func LoadFromDir(dir, name string) (*Session, error) {
	if err := checkFileName(name); err != nil {
		return nil, err
	}
	return ReadFile(filepath.Join(dir, name))
}

func checkFileName(name string) error {
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name {
		return fmt.Errorf("%w: invalid file name %q", ErrIO, name)
	}
	return nil
}
