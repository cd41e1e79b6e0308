//go:build linux

package main

import (
	"fmt"
	"log"

	evdev "github.com/holoplot/go-evdev"

	"github.com/Danondso/yamy-go/internal/daemonconfig"
	"github.com/Danondso/yamy-go/internal/platform"
	"github.com/Danondso/yamy-go/internal/platform/evdevhook"
	"github.com/Danondso/yamy-go/internal/platform/x11window"
)

// newWindowSystem builds the X11-backed WindowSystem. Implemented as an
// explicit nil check, not a bare `return x11window.New()`, because a failed
// *x11window.System wrapped directly into the platform.WindowSystem
// interface would be a non-nil interface holding a nil pointer.
func newWindowSystem() (platform.WindowSystem, error) {
	win, err := x11window.New()
	if err != nil {
		return nil, err
	}
	return win, nil
}

// uinputPath is where /dev/uinput conventionally lives; yamyd needs write
// access to it (typically via the "input" group or a udev rule).
const uinputPath = "/dev/uinput"

// newPlatformHook opens (or auto-detects) the source keyboard, creates a
// virtual uinput device for injected output. The Hook reads the source
// keyboard, which never carries the events injected into the virtual
// device, so it is built without the Injector and reports every event as
// User.
func newPlatformHook(cfg *daemonconfig.Config, logger *log.Logger) (platform.InputHook, platform.InputInjector, error) {
	srcDev, err := evdevhook.FindKeyboard(cfg.Input.Device)
	if err != nil {
		return nil, nil, fmt.Errorf("find keyboard: %w", err)
	}
	logger.Printf("source keyboard: %s", srcDev.Path())

	if err := srcDev.Grab(); err != nil {
		logger.Printf("grab exclusive access to %s failed (continuing ungrabbed): %v", srcDev.Path(), err)
	}

	virtDev, err := evdev.CreateDevice(
		uinputPath,
		evdev.InputID{BusType: evdev.BUS_USB, Vendor: 0x0001, Product: 0x0001, Version: 1},
		map[evdev.EvType][]evdev.EvCode{
			evdev.EV_KEY: allKeyCodes(),
		},
	)
	if err != nil {
		return nil, nil, fmt.Errorf("create uinput device: %w", err)
	}

	inj := evdevhook.NewInjector(virtDev)
	hook := evdevhook.NewHook(srcDev, nil)
	return hook, inj, nil
}

// allKeyCodes enumerates the uinput capability set yamyd's virtual device
// advertises: every EV_KEY code in evdev's valid range, so any remapped
// output key can be synthesized regardless of what the source keyboard
// itself has.
func allKeyCodes() []evdev.EvCode {
	const maxKeyCode = 0x2ff // KEY_MAX per linux/input-event-codes.h
	codes := make([]evdev.EvCode, 0, maxKeyCode)
	for i := 0; i <= maxKeyCode; i++ {
		codes = append(codes, evdev.EvCode(i))
	}
	return codes
}
