package device

import "time"

// Record is a named Session kept in the registry.
type Record struct {
	// ID is the unique identifier, e.g. "mio-1a2b3c4d".
	ID string `json:"id"`

	// Name is a human-readable label, unique across the registry.
	Name string `json:"name"`

	// Session is the instantiated device. Sessions are immutable, so
	// copies of a Record may share it.
	Session *Session `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeepCopy returns a copy of the record that can be modified freely.
func (r *Record) DeepCopy() *Record {
	if r == nil {
		return nil
	}
	cp := *r
	return &cp
}

// Summary is the token-free view of a Record used by outer surfaces.
type Summary struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	DeviceType  string    `json:"device_type"`
	IP          string    `json:"ip"`
	MethodCount int       `json:"method_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Summary returns the record without its token or handle.
func (r *Record) Summary() Summary {
	sum := Summary{
		ID:        r.ID,
		Name:      r.Name,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.Session != nil {
		sum.DeviceType = r.Session.DeviceType()
		sum.IP = r.Session.IP()
		sum.MethodCount = len(r.Session.methods)
	}
	return sum
}
