package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-miio/internal/bridge"
	"github.com/nerrad567/gray-logic-miio/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-miio/internal/infrastructure/logging"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("GRAYLOGIC_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_PathModeWithoutSourcePath verifies config validation stops startup.
func TestRun_PathModeWithoutSourcePath(t *testing.T) {
	t.Setenv("GRAYLOGIC_MIIO_SOURCE_PATH", "")
	t.Setenv("GRAYLOGIC_CONFIG", writeConfig(t, `
site:
  id: test-site
bridge:
  mode: path
database:
  path: "`+filepath.Join(t.TempDir(), "miio.db")+`"
api:
  enabled: false
`))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail when path mode has no source path")
	}
}

// TestRun_MissingPythonIsNotFatal verifies the daemon starts and shuts down
// cleanly when the interpreter cannot be launched.
func TestRun_MissingPythonIsNotFatal(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "miio.db")
	t.Setenv("GRAYLOGIC_MIIO_PYTHON", "")
	t.Setenv("GRAYLOGIC_CONFIG", writeConfig(t, `
site:
  id: test-site
bridge:
  python: /nonexistent/python3
  restart_on_failure: false
database:
  path: "`+dbPath+`"
mqtt:
  enabled: false
influxdb:
  enabled: false
api:
  enabled: false
logging:
  level: error
  format: text
  output: stdout
`))

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	if err := run(ctx); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("database not created: %v", err)
	}
}

// TestGetConfigPath_Default verifies default config path.
func TestGetConfigPath_Default(t *testing.T) {
	t.Setenv("GRAYLOGIC_CONFIG", "")

	if path := getConfigPath(); path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

// TestGetConfigPath_EnvOverride verifies environment variable override.
func TestGetConfigPath_EnvOverride(t *testing.T) {
	expected := "/custom/path/config.yaml"
	t.Setenv("GRAYLOGIC_CONFIG", expected)

	if path := getConfigPath(); path != expected {
		t.Errorf("getConfigPath() = %q, want %q", path, expected)
	}
}

func TestResolveTimeout(t *testing.T) {
	cfg := &config.Config{}
	if got := resolveTimeout(cfg); got != 30*time.Second {
		t.Errorf("resolveTimeout() = %v, want 30s", got)
	}
	cfg.Bridge.CallTimeout = 5 * time.Second
	if got := resolveTimeout(cfg); got != 5*time.Second {
		t.Errorf("resolveTimeout() = %v, want 5s", got)
	}
}

func TestInterpreterStatus(t *testing.T) {
	cfg := config.Default()
	cfg.Bridge.Python = "/nonexistent/python3"
	interp := bridge.NewHost(bridge.HostConfigFromConfig(cfg), bridge.DefaultEmbeddedSource(), logging.Discard())
	defer interp.Close()

	status, ok := interpreterStatus(interp)()
	if !ok {
		t.Fatal("supervised host should report stats")
	}
	if status.Status != "stopped" || status.PID != 0 {
		t.Errorf("status = %+v, want stopped host", status)
	}
}
