package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nerrad567/gray-logic-miio/internal/device"
	"github.com/nerrad567/gray-logic-miio/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-miio/internal/infrastructure/logging"
)

// fakeLibrary stands in for the python host.
type fakeLibrary struct {
	closed   int
	lastArgs []string
}

func (f *fakeLibrary) DeviceTypes(context.Context) ([]string, error) {
	return []string{"Yeelight", "Vacuum"}, nil
}

func (f *fakeLibrary) GetDevice(_ context.Context, ip, _, deviceType string) ([]byte, error) {
	if deviceType != "Yeelight" {
		return nil, errors.New("Device type '" + deviceType + "' not found")
	}
	return []byte("handle:" + ip), nil
}

func (f *fakeLibrary) GetDeviceMethods(context.Context, []byte) (map[string]string, error) {
	return map[string]string{"toggle": "toggle()", "set_rgb": "set_rgb(rgb)"}, nil
}

func (f *fakeLibrary) CallMethod(_ context.Context, _ []byte, method string, args []string) (string, error) {
	f.lastArgs = args
	if method == "explode" {
		return "", errors.New("boom")
	}
	return "['ok']", nil
}

func (f *fakeLibrary) Close() error {
	f.closed++
	return nil
}

// execute runs miioctl with args against lib.
func execute(t *testing.T, lib *fakeLibrary, args ...string) (string, error) {
	t.Helper()
	t.Setenv("GRAYLOGIC_MIIO_MODE", "")
	t.Setenv("GRAYLOGIC_MIIO_SOURCE_PATH", "")

	opened, closedBefore := 0, lib.closed
	root := newRootCmd(func(*config.Config, *logging.Logger) (library, error) {
		opened++
		return lib, nil
	})
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)

	err := root.ExecuteContext(context.Background())
	if closed := lib.closed - closedBefore; closed != opened {
		t.Errorf("library opened %d times, closed %d times", opened, closed)
	}
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, &fakeLibrary{}, "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if !strings.HasPrefix(out, "miioctl dev") {
		t.Errorf("output = %q", out)
	}
}

func TestTypes(t *testing.T) {
	out, err := execute(t, &fakeLibrary{}, "types")
	if err != nil {
		t.Fatalf("types error = %v", err)
	}
	if out != "Yeelight\nVacuum\n" {
		t.Errorf("output = %q", out)
	}
}

func TestCreateShowMethodsCall(t *testing.T) {
	lib := &fakeLibrary{}
	file := filepath.Join(t.TempDir(), "lamp.json")

	out, err := execute(t, lib, "create", "--ip", "192.168.1.20", "--token", "0123456789abcdef", "--type", "Yeelight", "-o", file)
	if err != nil {
		t.Fatalf("create error = %v", err)
	}
	if !strings.Contains(out, "2 methods") {
		t.Errorf("create output = %q", out)
	}

	out, err = execute(t, lib, "show", "-f", file)
	if err != nil {
		t.Fatalf("show error = %v", err)
	}
	if strings.Contains(out, "0123456789abcdef") {
		t.Error("show printed the full token")
	}
	if !strings.Contains(out, "192.168.1.20") || !strings.Contains(out, "cdef") {
		t.Errorf("show output = %q", out)
	}

	out, err = execute(t, lib, "methods", "-f", file)
	if err != nil {
		t.Fatalf("methods error = %v", err)
	}
	if out != "set_rgb  set_rgb(rgb)\ntoggle   toggle()\n" {
		t.Errorf("methods output = %q", out)
	}

	out, err = execute(t, lib, "call", "-f", file, "set_rgb", "255", "0", "0")
	if err != nil {
		t.Fatalf("call error = %v", err)
	}
	if out != "['ok']\n" {
		t.Errorf("call output = %q", out)
	}
	if strings.Join(lib.lastArgs, ",") != "255,0,0" {
		t.Errorf("args = %v", lib.lastArgs)
	}
}

func TestCreateToStorageDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("GRAYLOGIC_STORAGE_DIR", dir)

	if _, err := execute(t, &fakeLibrary{}, "create", "--ip", "10.0.0.5", "--token", "tok", "--type", "Yeelight"); err != nil {
		t.Fatalf("create error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "yeelight-10-0-0-5.json")); err != nil {
		t.Fatalf("session not saved in storage dir: %v", err)
	}

	// A bare name falls back to the storage directory.
	if _, err := execute(t, &fakeLibrary{}, "show", "-f", "yeelight-10-0-0-5.json"); err != nil {
		t.Errorf("show by bare name error = %v", err)
	}
}

func TestCommandErrors(t *testing.T) {
	file := filepath.Join(t.TempDir(), "lamp.json")
	if _, err := execute(t, &fakeLibrary{}, "create", "--ip", "1.2.3.4", "--token", "t", "--type", "Yeelight", "-o", file); err != nil {
		t.Fatalf("create error = %v", err)
	}

	tests := []struct {
		name    string
		args    []string
		wantErr error
	}{
		{"create missing flags", []string{"create", "--ip", "1.2.3.4"}, nil},
		{"create unknown type", []string{"create", "--ip", "1.2.3.4", "--token", "t", "--type", "Toaster", "-o", file + ".new"}, device.ErrCreation},
		{"call without method", []string{"call", "-f", file}, nil},
		{"call library error", []string{"call", "-f", file, "explode"}, device.ErrInvocation},
		{"missing file", []string{"show", "-f", filepath.Join(t.TempDir(), "absent.json")}, device.ErrIO},
		{"invalid config", []string{"--config", "/nonexistent/config.yaml", "types"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, &fakeLibrary{}, tt.args...)
			if err == nil {
				t.Fatal("expected an error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSourcePathSwitchesToPathMode(t *testing.T) {
	t.Setenv("GRAYLOGIC_MIIO_MODE", "")
	dir := t.TempDir()

	var got *config.Config
	root := newRootCmd(func(cfg *config.Config, _ *logging.Logger) (library, error) {
		got = cfg
		return &fakeLibrary{}, nil
	})
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"--source-path", dir, "--python", "/opt/py/bin/python3", "types"})
	if err := root.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if got.Bridge.Mode != config.ModePath || got.Bridge.SourcePath != dir {
		t.Errorf("bridge = %+v, want path mode from %s", got.Bridge, dir)
	}
	if got.Bridge.Python != "/opt/py/bin/python3" {
		t.Errorf("python = %q", got.Bridge.Python)
	}
	if got.Bridge.RestartOnFailure {
		t.Error("one-shot commands should not restart the host")
	}
}

func TestMaskToken(t *testing.T) {
	tests := map[string]string{
		"":         "",
		"abc":      "***",
		"abcdefgh": "****efgh",
	}
	for in, want := range tests {
		if got := maskToken(in); got != want {
			t.Errorf("maskToken(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestShellExec(t *testing.T) {
	lib := &fakeLibrary{}
	s, err := device.Create(context.Background(), lib, "192.168.1.20", "tok", "Yeelight")
	if err != nil {
		t.Fatalf("device.Create() error = %v", err)
	}
	sh := &shell{session: s, lib: lib, name: "lamp.json"}

	tests := []struct {
		line     string
		wantQuit bool
		wantOut  string
	}{
		{"", false, ""},
		{"toggle", false, "['ok']\n"},
		{"explode", false, "error: "},
		{"call set_rgb 1 2 3", false, "['ok']\n"},
		{"methods", false, "set_rgb  set_rgb(rgb)\n"},
		{"show", false, "Yeelight at 192.168.1.20, 2 methods\n"},
		{"help", false, "miio shell for lamp.json"},
		{"quit", true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			var out bytes.Buffer
			if quit := sh.exec(context.Background(), tt.line, &out); quit != tt.wantQuit {
				t.Errorf("exec(%q) quit = %v, want %v", tt.line, quit, tt.wantQuit)
			}
			if !strings.HasPrefix(out.String(), tt.wantOut) {
				t.Errorf("exec(%q) output = %q, want prefix %q", tt.line, out.String(), tt.wantOut)
			}
		})
	}
	if strings.Join(lib.lastArgs, ",") != "1,2,3" {
		t.Errorf("call args = %v", lib.lastArgs)
	}
}
