// Package taphold implements the per-trigger-key tap/hold detector
// (spec.md §4.C): it distinguishes a short tap of a dual-role key from a
// hold, emitting a tap output or activating a virtual modifier slot.
package taphold

import (
	"sync"
	"time"

	"github.com/Danondso/yamy-go/internal/lookup"
	"github.com/Danondso/yamy-go/internal/modifier"
)

// DefaultHoldThreshold is used when a Trigger doesn't set its own.
const DefaultHoldThreshold = 200 * time.Millisecond

// Trigger is a virtual-modifier trigger key definition (spec.md §3).
type Trigger struct {
	ScanCode            lookup.ScanCode
	Slot                modifier.VirtualSlot
	TapOutput           *lookup.ScanCode // nil means "never emit a tap"
	HoldThreshold       time.Duration
	RetainTapOnSequence bool
}

func (t Trigger) threshold() time.Duration {
	if t.HoldThreshold <= 0 {
		return DefaultHoldThreshold
	}
	return t.HoldThreshold
}

// state is the trigger's own small state machine: Idle, Pressed, Activated.
// "SentAsTap" from spec.md's table is the Pressed->Idle transition itself,
// not a resting state — it never outlives the HandleRelease call that
// produces it.
type state int

const (
	idle state = iota
	pressed
	activated
)

// Emit is a single synthetic press or release the caller (the Event
// Processor) must forward to the platform injector.
type Emit struct {
	Code  lookup.ScanCode
	Press bool
}

// Outcome is what the caller should do in response to a trigger event.
type Outcome struct {
	Suppress        bool // drop the raw event, nothing further to emit
	Emits           []Emit
	ModifierChanged bool // the live modifier.State's virtual bit changed; caller should re-derive the Mask
}

type triggerState struct {
	cfg       Trigger
	mu        sync.Mutex
	st        state
	pressedAt time.Time
	timer     *time.Timer
}

// Detector tracks every registered trigger's state. One Detector instance
// covers an entire compiled configuration; it is rebuilt on reload alongside
// the rest of the CompiledConfig.
type Detector struct {
	triggers map[lookup.ScanCode]*triggerState

	// onDeadline fires from the timer thread when a trigger's hold threshold
	// elapses without a release — the eager path in spec.md §4.C. It must
	// mutate the live modifier.State and is expected to serialize itself
	// against the hot path (the Event Processor supplies a callback that does
	// this under its own lock).
	onDeadline func(Trigger)
}

// NewDetector builds a Detector for the given triggers. onDeadline is called
// (from a timer goroutine, not the hook thread) when a Pressed trigger's
// hold threshold elapses before release.
func NewDetector(triggers []Trigger, onDeadline func(Trigger)) *Detector {
	d := &Detector{
		triggers:   make(map[lookup.ScanCode]*triggerState, len(triggers)),
		onDeadline: onDeadline,
	}
	for _, t := range triggers {
		d.triggers[t.ScanCode] = &triggerState{cfg: t}
	}
	return d
}

// IsTrigger reports whether sc is a registered virtual-modifier trigger.
func (d *Detector) IsTrigger(sc lookup.ScanCode) bool {
	if d == nil {
		return false
	}
	_, ok := d.triggers[sc]
	return ok
}

// Stop cancels every pending deadline timer. Called when the engine stops or
// reloads, so an old Detector's timers never fire against a new config.
func (d *Detector) Stop() {
	if d == nil {
		return
	}
	for _, ts := range d.triggers {
		ts.mu.Lock()
		if ts.timer != nil {
			ts.timer.Stop()
			ts.timer = nil
		}
		ts.mu.Unlock()
	}
}

// HandlePress processes a press of a registered trigger key: Idle -> Pressed.
// Per spec.md §4.C the raw event is always suppressed here; the queued
// decision (tap vs. hold) resolves on release or on timer deadline.
func (d *Detector) HandlePress(sc lookup.ScanCode, now time.Time) Outcome {
	ts := d.triggers[sc]
	if ts == nil {
		return Outcome{}
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()

	ts.st = pressed
	ts.pressedAt = now
	if ts.timer != nil {
		ts.timer.Stop()
	}
	cfg := ts.cfg
	ts.timer = time.AfterFunc(cfg.threshold(), func() { d.fireDeadline(ts) })

	return Outcome{Suppress: true}
}

// HandleRelease processes a release of a registered trigger key.
func (d *Detector) HandleRelease(sc lookup.ScanCode, now time.Time) Outcome {
	ts := d.triggers[sc]
	if ts == nil {
		return Outcome{}
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.timer != nil {
		ts.timer.Stop()
		ts.timer = nil
	}

	switch ts.st {
	case pressed:
		ts.st = idle
		if now.Sub(ts.pressedAt) < ts.cfg.threshold() && ts.cfg.TapOutput != nil {
			tap := *ts.cfg.TapOutput
			return Outcome{Emits: []Emit{{Code: tap, Press: true}, {Code: tap, Press: false}}}
		}
		// Threshold already elapsed (lazy detection caught what the timer
		// would have), or no tap output configured: nothing to emit, trigger
		// simply returns to Idle without ever having activated.
		return Outcome{Suppress: true}
	case activated:
		ts.st = idle
		return Outcome{ModifierChanged: true, Suppress: true}
	default:
		return Outcome{Suppress: true}
	}
}

// ObserveOtherEvent is called by the Event Processor before it handles any
// non-trigger key event, for every trigger currently Pressed. Per spec.md
// §4.C, an interleaved key cancels the tap possibility (unless
// RetainTapOnSequence) and transitions the trigger to Activated.
//
// Returns the set of triggers that activated as a result, so the caller can
// set the corresponding virtual modifier bits before consulting the lookup
// table for the event that triggered this call.
func (d *Detector) ObserveOtherEvent() []Trigger {
	var activations []Trigger
	for _, ts := range d.triggers {
		ts.mu.Lock()
		if ts.st == pressed && !ts.cfg.RetainTapOnSequence {
			ts.st = activated
			if ts.timer != nil {
				ts.timer.Stop()
				ts.timer = nil
			}
			activations = append(activations, ts.cfg)
		}
		ts.mu.Unlock()
	}
	return activations
}

// fireDeadline runs on the timer goroutine when a Pressed trigger's hold
// threshold elapses without any intervening event (the eager path).
func (d *Detector) fireDeadline(ts *triggerState) {
	ts.mu.Lock()
	if ts.st != pressed {
		ts.mu.Unlock()
		return
	}
	ts.st = activated
	ts.timer = nil
	cfg := ts.cfg
	ts.mu.Unlock()

	if d.onDeadline != nil {
		d.onDeadline(cfg)
	}
}
