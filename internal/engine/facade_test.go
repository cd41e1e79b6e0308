package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Danondso/yamy-go/internal/notify"
)

func writeConfig(t *testing.T, dir, name, doc string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestEngineStartStopLifecycle(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "work.json", `{
		"version": "2.0",
		"keyboard": { "keys": { "A": "0x1E", "Tab": "0x0F" } },
		"mappings": [ { "from": "A", "to": "Tab" } ]
	}`)

	e := New(nil, nil, nil, nil)
	if e.State() != Stopped {
		t.Fatalf("expected initial state Stopped, got %s", e.State())
	}

	if err := e.Start(path); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if e.State() != Running {
		t.Fatalf("expected Running after start, got %s", e.State())
	}

	status := e.Status()
	if !status.Running || status.KeyCount != 2 {
		t.Fatalf("unexpected status: %+v", status)
	}

	if err := e.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if e.State() != Stopped {
		t.Fatalf("expected Stopped after stop, got %s", e.State())
	}
}

func TestEngineStartWithMissingKeyboardKeysGoesToError(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "bad.json", `{ "version": "2.0", "keyboard": {} }`)

	e := New(nil, nil, nil, nil)
	if err := e.Start(path); err == nil {
		t.Fatal("expected start to fail on invalid config")
	}
	if e.State() != Error {
		t.Fatalf("expected Error state, got %s", e.State())
	}
}

func TestSwitchConfigurationFailureKeepsRunning(t *testing.T) {
	dir := t.TempDir()
	good := writeConfig(t, dir, "good.json", `{
		"version": "2.0",
		"keyboard": { "keys": { "A": "0x1E" } }
	}`)
	bad := writeConfig(t, dir, "bad.json", `{ "version": "2.0", "keyboard": {} }`)

	e := New(nil, nil, nil, nil)
	if err := e.Start(good); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	var configErrors int
	e.bus.Subscribe([]notify.Kind{notify.ConfigError}, func(notify.Event) { configErrors++ })

	if err := e.SwitchConfiguration(bad); err == nil {
		t.Fatal("expected switch_configuration to fail")
	}
	if e.State() != Running {
		t.Fatalf("expected engine to remain Running on reload failure, got %s", e.State())
	}
	if configErrors != 1 {
		t.Fatalf("expected exactly one ConfigError notification, got %d", configErrors)
	}
	if e.Status().KeyCount != 1 {
		t.Fatalf("expected previous config (1 key) to remain active, got %+v", e.Status())
	}
}

func TestSetEnabledGatesProcessingWithoutChangingLifecycle(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "work.json", `{
		"version": "2.0",
		"keyboard": { "keys": { "A": "0x1E", "Tab": "0x0F" } },
		"mappings": [ { "from": "A", "to": "Tab" } ]
	}`)
	e := New(nil, nil, nil, nil)
	if err := e.Start(path); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	e.SetEnabled(false)
	if e.State() != Running {
		t.Fatalf("expected state to remain Running after SetEnabled, got %s", e.State())
	}
	if e.Status().Enabled {
		t.Fatal("expected Enabled to be false")
	}
}

func TestStopRequiresRunningOrError(t *testing.T) {
	e := New(nil, nil, nil, nil)
	if err := e.Stop(); err == nil {
		t.Fatal("expected stop from Stopped to fail")
	}
}
