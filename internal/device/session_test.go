package device

import (
	"context"
	"errors"
	"slices"
	"testing"
)

func TestCreate(t *testing.T) {
	lib := newFakeLibrary()
	ctx := context.Background()

	s, err := Create(ctx, lib, "192.168.1.20", "ffffffffffffffffffffffffffffffff", "Yeelight")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if s.DeviceType() != "Yeelight" {
		t.Errorf("DeviceType() = %q", s.DeviceType())
	}
	if s.IP() != "192.168.1.20" {
		t.Errorf("IP() = %q", s.IP())
	}
	if s.Token() != "ffffffffffffffffffffffffffffffff" {
		t.Errorf("Token() = %q", s.Token())
	}
	if string(s.Handle()) != "handle:Yeelight:192.168.1.20:ffffffffffffffffffffffffffffffff" {
		t.Errorf("Handle() = %q", s.Handle())
	}
	if got := s.MethodNames(); len(got) != 3 || got[0] != "on" || got[1] != "set_rgb" || got[2] != "toggle" {
		t.Errorf("MethodNames() = %v", got)
	}
	if !s.HasMethod("toggle") || s.HasMethod("off") {
		t.Error("HasMethod() mismatch")
	}
}

func TestCreateUnknownType(t *testing.T) {
	lib := newFakeLibrary()

	for _, deviceType := range []string{"yeelight", "Yeelight ", "Lamp", ""} {
		t.Run(deviceType, func(t *testing.T) {
			s, err := Create(context.Background(), lib, "10.0.0.1", "tok", deviceType)
			if !errors.Is(err, ErrCreation) {
				t.Fatalf("Create(%q) error = %v, want ErrCreation", deviceType, err)
			}
			if !errors.Is(err, errLibrary) {
				t.Errorf("error should carry the library failure: %v", err)
			}
			if s != nil {
				t.Error("no session should be returned on failure")
			}
		})
	}
}

func TestCreateMethodsFailure(t *testing.T) {
	lib := newFakeLibrary()
	lib.failMethods = true

	s, err := Create(context.Background(), lib, "10.0.0.1", "tok", "Vacuum")
	if !errors.Is(err, ErrCreation) {
		t.Fatalf("Create() error = %v, want ErrCreation", err)
	}
	if s != nil {
		t.Error("partial creation must not return a session")
	}
}

func TestListTypes(t *testing.T) {
	lib := newFakeLibrary()

	types, err := ListTypes(context.Background(), lib)
	if err != nil {
		t.Fatalf("ListTypes() error = %v", err)
	}
	want := []string{"Yeelight", "Vacuum", "AirPurifier"}
	if len(types) != len(want) {
		t.Fatalf("ListTypes() = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("ListTypes()[%d] = %q, want %q (library order)", i, types[i], want[i])
		}
	}
	for _, near := range []string{"Yeeli", "Vacum", "Air Purifier"} {
		if slices.Contains(types, near) {
			t.Errorf("ListTypes() contains near-miss %q", near)
		}
	}

	lib.failTypes = true
	if _, err := ListTypes(context.Background(), lib); !errors.Is(err, errLibrary) {
		t.Errorf("ListTypes() error = %v, want library failure", err)
	}
}

func TestInvoke(t *testing.T) {
	lib := newFakeLibrary()
	ctx := context.Background()
	s, err := Create(ctx, lib, "10.0.0.1", "tok", "Yeelight")
	if err != nil {
		t.Fatal(err)
	}

	t.Run("listed method", func(t *testing.T) {
		got, err := s.Invoke(ctx, lib, "toggle", nil)
		if err != nil {
			t.Fatalf("Invoke() error = %v", err)
		}
		if got != "['ok']" {
			t.Errorf("Invoke() = %q, want ['ok']", got)
		}
	})

	t.Run("args passed through", func(t *testing.T) {
		args := []string{"255", "0", "0"}
		if _, err := s.Invoke(ctx, lib, "set_rgb", args); err != nil {
			t.Fatal(err)
		}
		if len(lib.lastArgs) != 3 || lib.lastArgs[0] != "255" {
			t.Errorf("library received args %v", lib.lastArgs)
		}
		lib.lastArgs[0] = "changed"
		if args[0] != "255" {
			t.Error("caller's args were aliased")
		}
	})

	t.Run("failure wraps ErrInvocation", func(t *testing.T) {
		_, err := s.Invoke(ctx, lib, "self_destruct", nil)
		if !errors.Is(err, ErrInvocation) {
			t.Fatalf("Invoke() error = %v, want ErrInvocation", err)
		}
	})

	t.Run("session unchanged after invoke", func(t *testing.T) {
		before := s.Handle()
		_, _ = s.Invoke(ctx, lib, "on", nil)
		if string(s.Handle()) != string(before) {
			t.Error("handle changed after Invoke()")
		}
	})
}

func TestSessionAccessorsReturnCopies(t *testing.T) {
	lib := newFakeLibrary()
	s, err := Create(context.Background(), lib, "10.0.0.1", "tok", "Yeelight")
	if err != nil {
		t.Fatal(err)
	}

	h := s.Handle()
	h[0] = 'X'
	if s.Handle()[0] == 'X' {
		t.Error("Handle() exposes internal state")
	}

	m := s.Methods()
	delete(m, "toggle")
	m["evil"] = "evil()"
	if !s.HasMethod("toggle") || s.HasMethod("evil") {
		t.Error("Methods() exposes internal state")
	}
}

func TestNewSessionCopiesInputs(t *testing.T) {
	handle := []byte{1, 2, 3}
	methods := map[string]string{"a": "a()"}
	s := newSession("T", "ip", "tok", handle, methods)

	handle[0] = 9
	methods["b"] = "b()"
	if s.Handle()[0] != 1 || s.HasMethod("b") {
		t.Error("newSession() aliases its inputs")
	}

	empty := newSession("T", "ip", "tok", nil, nil)
	if empty.Methods() == nil {
		t.Error("Methods() should never be nil")
	}
}

func TestSessionEqual(t *testing.T) {
	a := newSession("T", "ip", "tok", []byte{1}, map[string]string{"x": "x()"})
	b := newSession("T", "ip", "tok", []byte{1}, map[string]string{"x": "x()"})
	c := newSession("T", "ip", "tok", []byte{2}, map[string]string{"x": "x()"})

	if !a.Equal(b) {
		t.Error("identical sessions should be equal")
	}
	if a.Equal(c) {
		t.Error("sessions with different handles should differ")
	}
	if a.Equal(nil) {
		t.Error("session should not equal nil")
	}
	var n *Session
	if !n.Equal(nil) {
		t.Error("nil should equal nil")
	}
}
