//go:build darwin

package main

import (
	"fmt"
	"log"

	"github.com/Danondso/yamy-go/internal/daemonconfig"
	"github.com/Danondso/yamy-go/internal/platform"
)

// newPlatformHook has no macOS backend yet: evdev/uinput are Linux-only and
// spec.md's keyboard remapping daemon was built against an X11/evdev stack.
// yamyd still runs on darwin with the IPC control plane and engine lifecycle
// available, just without live key interception.
func newPlatformHook(cfg *daemonconfig.Config, logger *log.Logger) (platform.InputHook, platform.InputInjector, error) {
	return nil, nil, fmt.Errorf("yamyd: no input hook implementation for darwin")
}

// newWindowSystem has no macOS backend: window-context keymap resolution is
// grounded on the X11 EWMH/ICCCM stack, which doesn't exist on darwin.
func newWindowSystem() (platform.WindowSystem, error) {
	return nil, fmt.Errorf("yamyd: no window system implementation for darwin")
}
