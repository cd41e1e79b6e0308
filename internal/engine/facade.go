package engine

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/Danondso/yamy-go/internal/compiler"
	"github.com/Danondso/yamy-go/internal/lookup"
	"github.com/Danondso/yamy-go/internal/notify"
	"github.com/Danondso/yamy-go/internal/platform"
)

// State is the Engine Facade's lifecycle state (spec.md §3 "Engine state").
type State int

const (
	Stopped State = iota
	Loading
	Running
	Error
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Loading:
		return "loading"
	case Running:
		return "running"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Status is the plain snapshot struct status() returns (spec.md §4.I).
type Status struct {
	Running       bool
	Enabled       bool
	ConfigPath    string
	Uptime        time.Duration
	KeyCount      int
	CurrentKeymap string
}

// Engine composes components A-H and owns the single mutation point for
// lifecycle and configuration (spec.md §4.I). Its exported methods are safe
// for concurrent use from the IPC layer; start/stop/set_enabled/
// switch_configuration are serialized by mu, the lifecycle mutex.
type Engine struct {
	mu sync.Mutex

	state      State
	enabled    bool
	configPath string
	startedAt  time.Time
	lastErr    error

	proc *Processor
	hook platform.InputHook
	inj  platform.InputInjector
	win  platform.WindowSystem
	bus  *notify.Bus

	lastInvariantErr time.Time // rate-limits InternalInvariant (spec.md §7: once per second)
}

// New builds a Stopped Engine. hook/injector/window may be nil in tests that
// never call Start; bus may be nil, in which case New creates the engine's
// own bus.
func New(hook platform.InputHook, inj platform.InputInjector, win platform.WindowSystem, bus *notify.Bus) *Engine {
	if bus == nil {
		bus = notify.New(nil)
	}
	return &Engine{
		state:   Stopped,
		enabled: true,
		hook:    hook,
		inj:     inj,
		win:     win,
		bus:     bus,
	}
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Start performs Stopped -> Loading -> Running|Error: compiles configPath,
// installs the input hook, and begins processing. On compile failure the
// engine transitions to Error and returns the compile errors.
func (e *Engine) Start(configPath string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != Stopped {
		return fmt.Errorf("engine: start requires Stopped, got %s", e.state)
	}
	e.state = Loading
	e.bus.Publish(notify.Event{Kind: notify.EngineStarted, Message: "loading " + configPath})

	cfg, err := e.compile(configPath)
	if err != nil {
		e.state = Error
		e.lastErr = err
		e.bus.Publish(notify.Event{Kind: notify.EngineError, Message: err.Error()})
		return err
	}

	e.proc = NewProcessor(cfg, e.win, e.bus)
	e.configPath = configPath

	if e.hook != nil {
		if err := e.hook.Install(e.onKeyEvent); err != nil {
			e.state = Error
			e.lastErr = err
			e.bus.Publish(notify.Event{Kind: notify.EngineError, Message: err.Error()})
			return err
		}
	}

	e.startedAt = time.Now()
	e.state = Running
	e.bus.Publish(notify.Event{Kind: notify.ConfigLoaded, Message: configPath})
	return nil
}

// Stop performs Running -> Stopped: emits synthetic releases for every held
// key, uninstalls the hook, and resets state.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != Running && e.state != Error {
		return fmt.Errorf("engine: stop requires Running or Error, got %s", e.state)
	}

	if e.proc != nil {
		for _, emit := range e.proc.ReleaseAllHeld() {
			e.inject(emit)
		}
	}
	if e.hook != nil {
		_ = e.hook.Uninstall()
	}
	e.state = Stopped
	e.bus.Publish(notify.Event{Kind: notify.EngineStopped, Message: "stopped"})
	return nil
}

// SetEnabled gates event transformation without changing lifecycle state.
func (e *Engine) SetEnabled(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enabled = enabled
	if e.proc != nil {
		e.proc.SetEnabled(enabled)
	}
	kind := notify.EngineDisabled
	if enabled {
		kind = notify.EngineEnabled
	}
	e.bus.Publish(notify.Event{Kind: kind})
}

// SwitchConfiguration recompiles path and, on success, atomically swaps it
// into the running processor (spec.md §4.I: "read, compile, swap"). On
// failure the engine keeps its previous configuration and this method
// returns the compile error; the caller (IPC layer) surfaces it as an Error
// response and a ConfigError notification is already published here.
func (e *Engine) SwitchConfiguration(path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != Running {
		return fmt.Errorf("engine: switch_configuration requires Running, got %s", e.state)
	}

	cfg, err := e.compile(path)
	if err != nil {
		e.bus.Publish(notify.Event{Kind: notify.ConfigError, Message: err.Error()})
		return err
	}

	e.proc.SwapConfig(cfg)
	e.configPath = path
	e.bus.Publish(notify.Event{Kind: notify.ConfigLoaded, Message: path})
	return nil
}

func (e *Engine) compile(path string) (*compiler.CompiledConfig, error) {
	doc, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, errs := compiler.Compile(doc)
	if errs.HasErrors() {
		return nil, errs
	}
	return cfg, nil
}

// Status returns a point-in-time snapshot for GetStatus (spec.md §6).
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := Status{
		Running:    e.state == Running,
		Enabled:    e.enabled,
		ConfigPath: e.configPath,
	}
	if e.state == Running && e.proc != nil {
		st.Uptime = time.Since(e.startedAt)
		st.CurrentKeymap = e.proc.ActiveKeymapName()
	}
	if e.proc != nil && e.proc.cfg != nil {
		st.KeyCount = e.proc.cfg.KeyCount
	}
	return st
}

// Metrics returns the current latency/throughput snapshot for GetMetrics
// (spec.md §6), or a zero Snapshot if the engine has never started
// successfully. After Stop it still reports the last processor's samples.
func (e *Engine) Metrics() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.proc == nil {
		return Snapshot{}
	}
	return e.proc.Metrics().Snapshot()
}

// KeymapInfo is one entry of the GetKeymaps reply (spec.md §6).
type KeymapInfo struct {
	Name        string
	WindowClass string
	WindowTitle string
}

// ListKeymaps returns every compiled keymap in declaration order, for the
// IPC GetKeymaps handler. Empty if the engine has never started
// successfully; after Stop it still lists the last compiled keymaps.
func (e *Engine) ListKeymaps() []KeymapInfo {
	e.mu.Lock()
	proc := e.proc
	e.mu.Unlock()
	if proc == nil || proc.cfg == nil || proc.cfg.Resolver == nil {
		return nil
	}
	all := proc.cfg.Resolver.All()
	out := make([]KeymapInfo, 0, len(all))
	for _, km := range all {
		out = append(out, KeymapInfo{
			Name:        km.Name,
			WindowClass: km.WindowClassSource(),
			WindowTitle: km.WindowTitleSource(),
		})
	}
	return out
}

// Investigate exposes Processor.Investigate for the IPC InvestigateWindow
// handler, resolving class/title via the window system for the given hwnd.
func (e *Engine) Investigate(hwnd uint64) (InvestigateSnapshot, error) {
	e.mu.Lock()
	proc := e.proc
	win := e.win
	e.mu.Unlock()

	if proc == nil {
		return InvestigateSnapshot{}, fmt.Errorf("engine: not running")
	}
	if win == nil {
		return proc.Investigate("", ""), nil
	}
	class, err := win.Class(hwnd)
	if err != nil {
		return InvestigateSnapshot{}, err
	}
	title, err := win.Title(hwnd)
	if err != nil {
		return InvestigateSnapshot{}, err
	}
	return proc.Investigate(class, title), nil
}

// onKeyEvent is the callback registered with the InputHook. It runs on the
// hook thread; per spec.md §5 it must not block. Injection happens
// synchronously here, which is acceptable because Inject itself must not
// block (platform contract).
func (e *Engine) onKeyEvent(scancode uint16, extended, isPress bool, ts time.Time, source platform.SourceTag) bool {
	e.mu.Lock()
	proc := e.proc
	e.mu.Unlock()
	if proc == nil {
		return false
	}

	sc := lookup.ScanCode{Code: scancode, Extended: extended}
	emits := proc.HandleEvent(sc, isPress, ts, source)

	for _, emit := range emits {
		// Passthrough of the identical original event still goes through the
		// injector per spec.md §9 rather than letting the OS's own event
		// continue, so suppression is unconditional and uniform.
		e.inject(Emit{ScanCode: emit.ScanCode, Press: emit.Press})
	}
	return true // always suppress the raw event; the processor's emits are authoritative
}

func (e *Engine) inject(emit Emit) {
	if e.inj == nil {
		return
	}
	if err := e.inj.Inject(emit.ScanCode.Code, emit.ScanCode.Extended, emit.Press); err != nil {
		e.raiseInvariant(err)
	}
}

// raiseInvariant implements the InternalInvariant error kind (spec.md §7):
// rate-limited to once per second, service continues regardless.
func (e *Engine) raiseInvariant(err error) {
	now := time.Now()
	if now.Sub(e.lastInvariantErr) < time.Second {
		return
	}
	e.lastInvariantErr = now
	e.bus.Publish(notify.Event{Kind: notify.EngineError, Message: "internal invariant: " + err.Error()})
}
