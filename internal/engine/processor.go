// Package engine implements the Event Processor hot path (spec.md §4.D) and
// the Engine Facade (spec.md §4.I) composing every other component.
package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/Danondso/yamy-go/internal/compiler"
	"github.com/Danondso/yamy-go/internal/lookup"
	"github.com/Danondso/yamy-go/internal/modifier"
	"github.com/Danondso/yamy-go/internal/notify"
	"github.com/Danondso/yamy-go/internal/platform"
	"github.com/Danondso/yamy-go/internal/taphold"
)

// Emit is a single output key event the processor wants injected.
type Emit struct {
	ScanCode lookup.ScanCode
	Press    bool
}

// pressRecord remembers, per physical scan code currently held down, exactly
// what was emitted for its press — so its eventual release replays the same
// output rather than recomputing against (possibly different) modifiers held
// at release time. This is the "release-matches-press-time-mapping"
// stuck-key prevention spec.md §8 property 2 and §3's Rule section require.
type pressRecord struct {
	suppressed bool
	emitted    []lookup.ScanCode // scan codes whose release must be emitted on this physical key's release
}

// Processor is the hot-path event processor. One Processor instance is
// owned by the Engine Facade; HandleEvent does no I/O and never waits on
// anything but mu (spec.md §5's "hot path never suspends"). It does
// allocate per event: the returned Emit slice and the KeyEvent message text.
type Processor struct {
	mu       sync.Mutex // protects state, cfg, detector, pressed and enabled; taken by HandleEvent and every other exported method
	cfg      *compiler.CompiledConfig
	state    modifier.State
	detector *taphold.Detector
	pressed  map[lookup.ScanCode]*pressRecord
	window   platform.WindowSystem
	bus      *notify.Bus
	enabled  bool
	metrics  *Metrics
}

// NewProcessor builds a Processor bound to cfg. window may be nil (window
// context then never matches a class/title-scoped keymap, only the global
// fallback); bus may be nil to discard notifications.
func NewProcessor(cfg *compiler.CompiledConfig, window platform.WindowSystem, bus *notify.Bus) *Processor {
	p := &Processor{
		cfg:     cfg,
		pressed: make(map[lookup.ScanCode]*pressRecord),
		window:  window,
		bus:     bus,
		enabled: true,
		metrics: newMetrics(),
	}
	p.detector = taphold.NewDetector(triggerList(cfg), p.onTriggerDeadline)
	return p
}

func triggerList(cfg *compiler.CompiledConfig) []taphold.Trigger {
	if cfg == nil {
		return nil
	}
	out := make([]taphold.Trigger, 0, len(cfg.VirtualModifiers))
	for _, t := range cfg.VirtualModifiers {
		out = append(out, t)
	}
	return out
}

// SwapConfig atomically replaces the compiled config and rebuilds the
// tap/hold detector from its trigger list. Must only be called by the Engine
// Facade under its lifecycle mutex, between two events (spec.md §4.I
// atomicity contract).
func (p *Processor) SwapConfig(cfg *compiler.CompiledConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.detector != nil {
		p.detector.Stop()
	}
	p.cfg = cfg
	p.detector = taphold.NewDetector(triggerList(cfg), p.onTriggerDeadline)
}

// SetEnabled gates whether HandleEvent transforms events or passes every one
// through unchanged. Does not affect lifecycle state (spec.md §4.I).
func (p *Processor) SetEnabled(enabled bool) {
	p.mu.Lock()
	p.enabled = enabled
	p.mu.Unlock()
}

// HandleEvent is the hot path entry point. It returns the ordered list of
// output events to inject; an empty slice means suppress.
func (p *Processor) HandleEvent(sc lookup.ScanCode, isPress bool, ts time.Time, source platform.SourceTag) []Emit {
	if source == platform.Self {
		// Self-injected events are never re-processed (spec.md §9's
		// re-entrancy guard); they are already the processor's own output.
		return nil
	}
	start := time.Now()
	defer func() { p.metrics.Record(time.Since(start), time.Now()) }()

	p.mu.Lock()
	defer p.mu.Unlock()

	emits := p.dispatch(sc, isPress, ts)
	p.publishKeyEvent(sc, isPress)
	return emits
}

// dispatch runs the actual spec.md §4.D step sequence; split out of
// HandleEvent so every processed event, regardless of which step handled it,
// publishes exactly one notify.KeyEvent (spec.md §4.H's investigate-mode
// notification feed).
func (p *Processor) dispatch(sc lookup.ScanCode, isPress bool, ts time.Time) []Emit {
	if !p.enabled {
		return []Emit{{ScanCode: sc, Press: isPress}}
	}

	if p.detector != nil && p.detector.IsTrigger(sc) {
		return p.handleTriggerEvent(sc, isPress, ts)
	}

	if p.detector != nil {
		for _, activated := range p.detector.ObserveOtherEvent() {
			p.state.SetVirtual(activated.Slot, true)
			p.publishModifierChanged()
		}
	}

	if kind, ok := p.modifierKind(sc); ok {
		return p.handleModifierKey(kind, isPress, sc)
	}

	if isPress {
		return p.handlePress(sc)
	}
	return p.handleRelease(sc)
}

// publishKeyEvent emits the investigate-mode KeyEvent notification (spec.md
// §4.H, §6's 0x1005) for every user-originated event the hot path processes.
// Cheap when nothing is subscribed: Bus.Publish's only cost without
// listeners is one mutex lock and an empty scan.
func (p *Processor) publishKeyEvent(sc lookup.ScanCode, isPress bool) {
	if p.bus == nil {
		return
	}
	dir := "release"
	if isPress {
		dir = "press"
	}
	p.bus.Publish(notify.Event{
		Kind:    notify.KeyEvent,
		Message: fmt.Sprintf("%s scan=0x%04X extended=%t", dir, sc.Code, sc.Extended),
	})
}

// modifierKind reports the physical-modifier or lock-key kind sc is
// registered as (spec.md §4.D steps 2-3), via the compiler's keyboard.keys
// registry (internal/compiler.CompiledConfig.ModifierKeys).
func (p *Processor) modifierKind(sc lookup.ScanCode) (modifier.Kind, bool) {
	if p.cfg == nil || p.cfg.ModifierKeys == nil {
		return 0, false
	}
	k, ok := p.cfg.ModifierKeys[sc]
	return k, ok
}

// handleModifierKey implements spec.md §4.D steps 2 and 3: a registered
// physical modifier updates A and passes through unchanged (observing
// applications still need the native modifier); a registered lock key
// toggles A's lock bit on press only and always passes through.
func (p *Processor) handleModifierKey(kind modifier.Kind, isPress bool, sc lookup.ScanCode) []Emit {
	switch {
	case kind.IsPhysical():
		if isPress {
			p.state.Press(kind)
		} else {
			p.state.Release(kind)
		}
		p.publishModifierChanged()
	case kind.IsLock():
		if isPress {
			p.state.Toggle(kind)
			p.publishModifierChanged()
		}
	}
	return []Emit{{ScanCode: sc, Press: isPress}}
}

func (p *Processor) handleTriggerEvent(sc lookup.ScanCode, isPress bool, ts time.Time) []Emit {
	var outcome taphold.Outcome
	if isPress {
		outcome = p.detector.HandlePress(sc, ts)
	} else {
		outcome = p.detector.HandleRelease(sc, ts)
	}
	if outcome.ModifierChanged {
		// Only HandleRelease's activated->idle transition reports
		// ModifierChanged, and only to clear the bit set when the hold
		// activated (by onTriggerDeadline, or by dispatch after
		// ObserveOtherEvent).
		if trig, ok := p.triggerFor(sc); ok {
			p.state.SetVirtual(trig.Slot, false)
			p.publishModifierChanged()
		}
	}
	emits := make([]Emit, 0, len(outcome.Emits))
	for _, e := range outcome.Emits {
		emits = append(emits, Emit{ScanCode: e.Code, Press: e.Press})
	}
	if outcome.Suppress && len(emits) == 0 {
		return []Emit{}
	}
	return emits
}

func (p *Processor) triggerFor(sc lookup.ScanCode) (taphold.Trigger, bool) {
	if p.cfg == nil {
		return taphold.Trigger{}, false
	}
	for _, t := range p.cfg.VirtualModifiers {
		if t.ScanCode == sc {
			return t, true
		}
	}
	return taphold.Trigger{}, false
}

func (p *Processor) handlePress(sc lookup.ScanCode) []Emit {
	action := p.resolve(sc)
	rec := &pressRecord{}
	var emits []Emit

	switch action.Kind {
	case lookup.Suppress:
		rec.suppressed = true
	case lookup.Replace:
		rec.emitted = []lookup.ScanCode{action.Output}
		emits = append(emits, Emit{ScanCode: action.Output, Press: true})
	case lookup.Sequence:
		for _, out := range action.Sequence {
			emits = append(emits, Emit{ScanCode: out, Press: true}, Emit{ScanCode: out, Press: false})
		}
	default: // Passthrough
		rec.emitted = []lookup.ScanCode{sc}
		emits = append(emits, Emit{ScanCode: sc, Press: true})
	}

	p.pressed[sc] = rec
	return emits
}

func (p *Processor) handleRelease(sc lookup.ScanCode) []Emit {
	rec, ok := p.pressed[sc]
	delete(p.pressed, sc)
	if !ok {
		// Release with no matching press on record (e.g. delivered before the
		// processor started): pass it through rather than guess.
		return []Emit{{ScanCode: sc, Press: false}}
	}
	if rec.suppressed {
		return nil
	}
	if len(rec.emitted) == 1 {
		return []Emit{{ScanCode: rec.emitted[0], Press: false}}
	}
	// A Sequence press records nothing in emitted: its releases were already
	// synthesized at press time (spec.md §9 open question: this
	// implementation's resolved choice — see DESIGN.md).
	return nil
}

// resolve walks the active keymap chain for the current foreground window in
// declaration order, returning the first keymap's non-passthrough result
// (spec.md §3: "the active chain is every keymap whose regexes both
// match... when searching a rule").
func (p *Processor) resolve(sc lookup.ScanCode) lookup.Action {
	if p.cfg == nil || p.cfg.Resolver == nil {
		return lookup.PassthroughAction()
	}
	class, title := p.foreground()
	for _, km := range p.cfg.Resolver.Select(class, title) {
		act := km.Table.Query(sc, p.state)
		if act.Kind != lookup.Passthrough {
			return act
		}
	}
	return lookup.PassthroughAction()
}

func (p *Processor) foreground() (class, title string) {
	if p.window == nil {
		return "", ""
	}
	class, title, err := p.window.Foreground()
	if err != nil {
		return "", ""
	}
	return class, title
}

func (p *Processor) onTriggerDeadline(trig taphold.Trigger) {
	p.mu.Lock()
	p.state.SetVirtual(trig.Slot, true)
	p.mu.Unlock()
	p.publishModifierChanged()
}

func (p *Processor) publishModifierChanged() {
	if p.bus == nil {
		return
	}
	p.bus.Publish(notify.Event{Kind: notify.ModifierChanged, Message: "modifier state changed"})
}

// Metrics returns the processor's latency/throughput accumulator, for
// GetMetrics (spec.md §6).
func (p *Processor) Metrics() *Metrics {
	return p.metrics
}

// ActiveKeymapName returns the first keymap in the current foreground
// window's active chain, for status() (spec.md §4.I).
func (p *Processor) ActiveKeymapName() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cfg == nil || p.cfg.Resolver == nil {
		return ""
	}
	class, title := p.foreground()
	chain := p.cfg.Resolver.Select(class, title)
	if len(chain) == 0 {
		return ""
	}
	return chain[0].Name
}

// ReleaseAllHeld synthesizes a release for every physical key the processor
// currently believes is held, for stop() (spec.md §4.I: "emits synthetic
// releases").
func (p *Processor) ReleaseAllHeld() []Emit {
	p.mu.Lock()
	defer p.mu.Unlock()
	var emits []Emit
	for sc, rec := range p.pressed {
		if rec.suppressed {
			continue
		}
		for _, out := range rec.emitted {
			emits = append(emits, Emit{ScanCode: out, Press: false})
		}
		_ = sc
	}
	p.pressed = make(map[lookup.ScanCode]*pressRecord)
	p.state.Clear()
	return emits
}

// InvestigateSnapshot is the reply payload for InvestigateWindow (spec.md
// §6): the keymap currently active plus a compact rendering of the modifier
// state, computed without mutating processor state.
type InvestigateSnapshot struct {
	KeymapName        string
	MatchedClassRegex string
	MatchedTitleRegex string
	ActiveModifiers   string
	IsDefault         bool
}

// Investigate resolves the active chain for (class, title) without touching
// live modifier/press state, for the IPC InvestigateWindow handler.
func (p *Processor) Investigate(class, title string) InvestigateSnapshot {
	p.mu.Lock()
	state := p.state
	cfg := p.cfg
	p.mu.Unlock()

	if cfg == nil || cfg.Resolver == nil {
		return InvestigateSnapshot{IsDefault: true}
	}
	chain := cfg.Resolver.Select(class, title)
	if len(chain) == 0 {
		return InvestigateSnapshot{IsDefault: true}
	}
	km := chain[0]
	return InvestigateSnapshot{
		KeymapName:        km.Name,
		MatchedClassRegex: km.WindowClassSource(),
		MatchedTitleRegex: km.WindowTitleSource(),
		ActiveModifiers:   describeModifiers(state),
		IsDefault:         km.WindowClassSource() == "" && km.WindowTitleSource() == "",
	}
}

func describeModifiers(state modifier.State) string {
	mask := state.Mask()
	if mask.IsZero() {
		return ""
	}
	names := make([]string, 0, 4)
	for _, k := range []modifier.Kind{modifier.Shift, modifier.Control, modifier.Alt, modifier.Meta} {
		if mask.Physical&bitFor(k) != 0 {
			names = append(names, k.String())
		}
	}
	return joinComma(names)
}

func bitFor(k modifier.Kind) uint8 {
	return modifier.Mask{}.SetPhysical(k).Physical
}

func joinComma(ss []string) string {
	out := ""
	for i, s := range ss {
		if i > 0 {
			out += ","
		}
		out += s
	}
	return out
}
