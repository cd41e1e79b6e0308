// Package session implements the read and validation half of spec.md §6's
// session-state contract. Writing session state is session-state
// persistence proper, which spec.md §1 lists among the platform
// collaborators this core treats as external — so this package never
// writes $XDG_CONFIG_HOME/yamy/session.json itself; it only loads and
// validates a file some other component produced (cmd/yamyd writes it on
// exit), so yamyd can restore the previously active config path at startup.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const maxAge = 365 * 24 * time.Hour

// State mirrors spec.md §6's session-state JSON shape exactly.
type State struct {
	ActiveConfigPath string         `json:"activeConfigPath"`
	EngineWasRunning bool           `json:"engineWasRunning"`
	SavedTimestamp   int64          `json:"savedTimestamp"`
	WindowPositions  map[string]any `json:"windowPositions"`
}

// DefaultPath returns $XDG_CONFIG_HOME/yamy/session.json, falling back to
// ~/.config when XDG_CONFIG_HOME is unset.
func DefaultPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "yamy", "session.json")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "yamy", "session.json")
}

// Load reads and validates the session file at path. A missing file returns
// (nil, nil) — there is simply no prior session to resume from.
func Load(path string, now time.Time) (*State, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: read %s: %w", path, err)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("session: parse %s: %w", path, err)
	}
	if err := Validate(&st, now); err != nil {
		return nil, err
	}
	return &st, nil
}

// Validate enforces spec.md §6's rejection rules: the saved timestamp must
// not be in the future, must not be older than one year, and the config
// path must be either absolute or tilde-prefixed.
func Validate(st *State, now time.Time) error {
	saved := time.Unix(st.SavedTimestamp, 0)
	if saved.After(now) {
		return fmt.Errorf("session: saved timestamp %d is in the future", st.SavedTimestamp)
	}
	if now.Sub(saved) > maxAge {
		return fmt.Errorf("session: saved timestamp %d is older than one year", st.SavedTimestamp)
	}
	if st.ActiveConfigPath != "" && !isAbsoluteOrTilde(st.ActiveConfigPath) {
		return fmt.Errorf("session: activeConfigPath %q is neither absolute nor tilde-prefixed", st.ActiveConfigPath)
	}
	return nil
}

func isAbsoluteOrTilde(path string) bool {
	return filepath.IsAbs(path) || strings.HasPrefix(path, "~/") || path == "~"
}
