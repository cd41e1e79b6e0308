// Package daemonconfig is the ambient daemon-level settings layer: where to
// find the keymap config, the IPC socket path, and device/log preferences.
// It is deliberately separate from internal/compiler's JSON keymap
// configuration (spec.md §4.F) — this is the yamyd process's own TOML
// settings, adapted from the teacher's internal/config/config.go.
package daemonconfig

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// InputConfig selects which evdev device to read from.
type InputConfig struct {
	Device string `toml:"device"` // "" means auto-detect (internal/platform/evdevhook.FindKeyboard)
}

// IPCConfig controls the control-plane socket.
type IPCConfig struct {
	SocketPath string `toml:"socket_path"` // "" means the spec.md §6 default: /tmp/yamy-<name>-<uid>
}

// LogConfig controls daemon logging verbosity.
type LogConfig struct {
	Level string `toml:"level"` // "debug", "info", "warn", "error"
	Path  string `toml:"path"`  // "" keeps yamyd's default sink: stderr with -debug, otherwise discarded
}

// SessionConfig controls session-state persistence (spec.md §6).
type SessionConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"` // "" means $XDG_CONFIG_HOME/yamy/session.json
}

// Config is the top-level yamyd daemon configuration.
type Config struct {
	KeymapConfigPath string        `toml:"keymap_config_path"`
	Input            InputConfig   `toml:"input"`
	IPC              IPCConfig     `toml:"ipc"`
	Log              LogConfig     `toml:"log"`
	Session          SessionConfig `toml:"session"`
}

// Default returns a Config populated with every default value.
func Default() *Config {
	return &Config{
		KeymapConfigPath: DefaultKeymapPath(),
		Input:            InputConfig{Device: ""},
		IPC:              IPCConfig{SocketPath: ""},
		Log:              LogConfig{Level: "info", Path: ""},
		Session:          SessionConfig{Enabled: true, Path: ""},
	}
}

// DefaultPath returns the daemon settings file path
// (~/.config/yamy/yamyd.toml).
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "yamy", "yamyd.toml")
}

// DefaultKeymapPath returns the default keymap JSON configuration path
// (~/.config/yamy/keymap.json).
func DefaultKeymapPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "yamy", "keymap.json")
}

// Save writes cfg as TOML to path, creating parent directories as needed.
// The write is atomic: data lands in a temp file that is fsync'd and
// renamed into place, so a crash mid-write can never corrupt the existing
// settings file.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".yamyd-config-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if err := toml.NewEncoder(tmp).Encode(cfg); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}

// Load reads the TOML settings file at path, returning defaults if it
// doesn't exist.
func Load(path string) (*Config, error) {
	cfg := Default()

	_, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
