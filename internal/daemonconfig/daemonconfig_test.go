package daemonconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultValues(t *testing.T) {
	cfg := Default()
	if cfg.Input.Device != "" {
		t.Errorf("expected empty device (auto-detect), got %s", cfg.Input.Device)
	}
	if cfg.IPC.SocketPath != "" {
		t.Errorf("expected empty socket path (use spec default), got %s", cfg.IPC.SocketPath)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("expected log level info, got %s", cfg.Log.Level)
	}
	if !cfg.Session.Enabled {
		t.Error("expected session persistence enabled by default")
	}
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load("/nonexistent/path/yamyd.toml")
	if err != nil {
		t.Fatalf("expected no error for missing file, got %v", err)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("expected default log level, got %s", cfg.Log.Level)
	}
}

func TestLoadOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "yamyd.toml")

	content := `
keymap_config_path = "/etc/yamy/keymap.json"

[input]
device = "/dev/input/event3"

[ipc]
socket_path = "/tmp/yamy-custom"

[log]
level = "debug"
path = "/var/log/yamyd.log"

[session]
enabled = false
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.KeymapConfigPath != "/etc/yamy/keymap.json" {
		t.Errorf("expected overridden keymap path, got %s", cfg.KeymapConfigPath)
	}
	if cfg.Input.Device != "/dev/input/event3" {
		t.Errorf("expected overridden device, got %s", cfg.Input.Device)
	}
	if cfg.IPC.SocketPath != "/tmp/yamy-custom" {
		t.Errorf("expected overridden socket path, got %s", cfg.IPC.SocketPath)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected debug level, got %s", cfg.Log.Level)
	}
	if cfg.Session.Enabled {
		t.Error("expected session persistence disabled")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "yamyd.toml")

	cfg := Default()
	cfg.Log.Level = "warn"
	cfg.Input.Device = "/dev/input/event1"

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load after Save failed: %v", err)
	}
	if loaded.Log.Level != "warn" {
		t.Errorf("expected warn, got %s", loaded.Log.Level)
	}
	if loaded.Input.Device != "/dev/input/event1" {
		t.Errorf("expected overridden device to round-trip, got %s", loaded.Input.Device)
	}
}

func TestSaveCreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "dir", "yamyd.toml")

	if err := Save(path, Default()); err != nil {
		t.Fatalf("Save failed to create nested dirs: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected file to exist at %s: %v", path, err)
	}
}
