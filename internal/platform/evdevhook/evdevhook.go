//go:build linux

// Package evdevhook is the Linux InputHook/InputInjector implementation,
// adapted from the teacher's internal/hotkey/hotkey_linux.go single-key
// listener into a full every-key hook over an evdev device, plus a
// /dev/uinput-backed injector whose synthesized events the hook tags Self.
package evdevhook

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	evdev "github.com/holoplot/go-evdev"

	"github.com/Danondso/yamy-go/internal/platform"
)

// Extended mirrors the E0-prefix convention spec.md §3 describes; evdev does
// not carry it natively (Linux scancodes are already flat), so Hook treats
// every evdev code in the upper keypad/navigation range as non-extended and
// leaves the flag false — internal/compiler's key table is the source of
// truth for which declared key names are "extended".
const Extended = false

// FindKeyboard opens a specific device path, or auto-detects a keyboard by
// scanning /dev/input/event* for a device with full letter-key capability
// that isn't also a pointer device.
func FindKeyboard(devicePath string) (*evdev.InputDevice, error) {
	if devicePath != "" {
		dev, err := evdev.Open(devicePath)
		if err != nil {
			return nil, fmt.Errorf("open device %s: %w", devicePath, err)
		}
		return dev, nil
	}

	matches, err := filepath.Glob("/dev/input/event*")
	if err != nil {
		return nil, fmt.Errorf("glob /dev/input/event*: %w", err)
	}
	sort.Slice(matches, func(i, j int) bool {
		ni, _ := strconv.Atoi(strings.TrimPrefix(matches[i], "/dev/input/event"))
		nj, _ := strconv.Atoi(strings.TrimPrefix(matches[j], "/dev/input/event"))
		return ni < nj
	})

	for _, path := range matches {
		dev, err := evdev.Open(path)
		if err != nil {
			continue
		}
		if isKeyboard(dev) {
			return dev, nil
		}
		_ = dev.Close()
	}
	return nil, fmt.Errorf("no keyboard device found in /dev/input/event*")
}

func isKeyboard(dev *evdev.InputDevice) bool {
	for _, evType := range dev.CapableTypes() {
		if evType == evdev.EV_REL {
			return false
		}
	}
	keys := dev.CapableEvents(evdev.EV_KEY)
	hasA, hasZ := false, false
	for _, code := range keys {
		if code == 30 {
			hasA = true
		}
		if code == 44 {
			hasZ = true
		}
	}
	return hasA && hasZ
}

// Hook implements platform.InputHook by reading every EV_KEY event off one
// evdev device. Self-injected events are identified by Injector marking the
// code in a shared pending set before writing to uinput; the hook consults
// that set so the platform.SourceTag it reports matches spec.md §9's
// "ExtraInformation" re-entrancy contract.
type Hook struct {
	dev      *evdev.InputDevice
	injector *Injector

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// NewHook builds a Hook over dev, consulting injector (may be nil, meaning
// every event is reported as User) to classify self-injected events.
func NewHook(dev *evdev.InputDevice, injector *Injector) *Hook {
	return &Hook{dev: dev, injector: injector}
}

// Install starts the read loop in a background goroutine. It returns once
// reading has begun; onKeyEvent is invoked synchronously per event on the
// hook goroutine and must not block (spec.md §5).
func (h *Hook) Install(onKeyEvent platform.KeyEventFunc) error {
	h.mu.Lock()
	if h.done != nil {
		h.mu.Unlock()
		return fmt.Errorf("evdevhook: already installed")
	}
	h.done = make(chan struct{})
	h.mu.Unlock()

	go h.loop(onKeyEvent)
	return nil
}

func (h *Hook) loop(onKeyEvent platform.KeyEventFunc) {
	defer close(h.done)
	for {
		ev, err := h.dev.ReadOne()
		if err != nil {
			h.mu.Lock()
			closed := h.closed
			h.mu.Unlock()
			if closed || os.IsNotExist(err) || strings.Contains(err.Error(), "closed") {
				return
			}
			return
		}
		if ev.Type != evdev.EV_KEY || ev.Value == 2 {
			continue // ignore non-key events and autorepeat
		}
		code := uint16(ev.Code)
		isPress := ev.Value == 1
		source := platform.User
		if h.injector != nil && h.injector.takePending(code, isPress) {
			source = platform.Self
		}
		onKeyEvent(code, Extended, isPress, time.Now(), source)
	}
}

// Uninstall closes the underlying device, terminating the read loop.
func (h *Hook) Uninstall() error {
	h.mu.Lock()
	h.closed = true
	done := h.done
	h.mu.Unlock()
	err := h.dev.Close()
	if done != nil {
		<-done
	}
	return err
}

// Injector implements platform.InputInjector over a /dev/uinput virtual
// device. Events it writes are recorded in a short-lived pending set so a
// paired Hook reading the same virtual device reports them with
// platform.Self.
type Injector struct {
	dev *evdev.InputDevice // the uinput device events are written to

	mu      sync.Mutex
	pending map[uint16]int
}

// NewInjector wraps an already-opened uinput device (construction of the
// device itself is a platform-specific ioctl sequence left to cmd/yamyd's
// startup wiring).
func NewInjector(dev *evdev.InputDevice) *Injector {
	return &Injector{dev: dev, pending: make(map[uint16]int)}
}

// Inject writes a synthetic key event and marks it pending for the
// re-entrancy guard.
func (inj *Injector) Inject(scancode uint16, extended, isPress bool) error {
	inj.markPending(scancode, isPress)
	value := int32(0)
	if isPress {
		value = 1
	}
	return inj.dev.WriteOne(&evdev.InputEvent{
		Type:  evdev.EV_KEY,
		Code:  evdev.EvCode(scancode),
		Value: value,
	})
}

func (inj *Injector) markPending(code uint16, isPress bool) {
	inj.mu.Lock()
	defer inj.mu.Unlock()
	inj.pending[pendingKey(code, isPress)]++
}

func (inj *Injector) takePending(code uint16, isPress bool) bool {
	inj.mu.Lock()
	defer inj.mu.Unlock()
	key := pendingKey(code, isPress)
	if inj.pending[key] > 0 {
		inj.pending[key]--
		if inj.pending[key] == 0 {
			delete(inj.pending, key)
		}
		return true
	}
	return false
}

func pendingKey(code uint16, isPress bool) uint16 {
	if isPress {
		return code | 0x8000
	}
	return code
}
