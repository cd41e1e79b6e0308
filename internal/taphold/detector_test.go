package taphold

import (
	"testing"
	"time"

	"github.com/Danondso/yamy-go/internal/lookup"
)

func capsTrigger(tap *lookup.ScanCode) Trigger {
	return Trigger{
		ScanCode:      lookup.ScanCode{Code: 0x3A},
		Slot:          0,
		TapOutput:     tap,
		HoldThreshold: 200 * time.Millisecond,
	}
}

func TestTapPath(t *testing.T) {
	esc := lookup.ScanCode{Code: 0x01}
	trig := capsTrigger(&esc)
	d := NewDetector([]Trigger{trig}, nil)

	t0 := time.Unix(0, 0)
	out := d.HandlePress(trig.ScanCode, t0)
	if !out.Suppress {
		t.Fatal("expected press to be suppressed")
	}

	out = d.HandleRelease(trig.ScanCode, t0.Add(50*time.Millisecond))
	if len(out.Emits) != 2 {
		t.Fatalf("expected tap press+release emitted, got %+v", out.Emits)
	}
	if out.Emits[0].Code != esc || !out.Emits[0].Press {
		t.Errorf("expected first emit to be Escape press, got %+v", out.Emits[0])
	}
	if out.Emits[1].Code != esc || out.Emits[1].Press {
		t.Errorf("expected second emit to be Escape release, got %+v", out.Emits[1])
	}
}

func TestHoldPathViaOtherEvent(t *testing.T) {
	trig := capsTrigger(nil)
	var activatedTrigger *Trigger
	d := NewDetector([]Trigger{trig}, func(tr Trigger) { activatedTrigger = &tr })

	t0 := time.Unix(0, 0)
	d.HandlePress(trig.ScanCode, t0)

	activations := d.ObserveOtherEvent()
	if len(activations) != 1 {
		t.Fatalf("expected the pressed trigger to activate, got %d activations", len(activations))
	}

	// Release after activation: expect ModifierChanged (deactivate), no tap.
	out := d.HandleRelease(trig.ScanCode, t0.Add(350*time.Millisecond))
	if !out.ModifierChanged {
		t.Error("expected ModifierChanged on release after activation")
	}
	if len(out.Emits) != 0 {
		t.Errorf("expected no emits on deactivation, got %+v", out.Emits)
	}
	_ = activatedTrigger
}

func TestNoTapOutputNeverEmitsOnQuickRelease(t *testing.T) {
	trig := capsTrigger(nil)
	d := NewDetector([]Trigger{trig}, nil)

	t0 := time.Unix(0, 0)
	d.HandlePress(trig.ScanCode, t0)
	out := d.HandleRelease(trig.ScanCode, t0.Add(10*time.Millisecond))
	if len(out.Emits) != 0 {
		t.Errorf("trigger with no tap_output must never emit a tap, got %+v", out.Emits)
	}
}

func TestRetainTapOnSequenceSkipsActivation(t *testing.T) {
	esc := lookup.ScanCode{Code: 0x01}
	trig := capsTrigger(&esc)
	trig.RetainTapOnSequence = true
	d := NewDetector([]Trigger{trig}, nil)

	d.HandlePress(trig.ScanCode, time.Unix(0, 0))
	activations := d.ObserveOtherEvent()
	if len(activations) != 0 {
		t.Errorf("RetainTapOnSequence should prevent activation on interleaved key, got %d activations", len(activations))
	}
}

func TestDeadlineActivatesEagerly(t *testing.T) {
	trig := Trigger{
		ScanCode:      lookup.ScanCode{Code: 0x3A},
		Slot:          0,
		HoldThreshold: 10 * time.Millisecond,
	}
	activated := make(chan Trigger, 1)
	d := NewDetector([]Trigger{trig}, func(tr Trigger) { activated <- tr })

	d.HandlePress(trig.ScanCode, time.Now())

	select {
	case tr := <-activated:
		if tr.Slot != trig.Slot {
			t.Errorf("expected activation for slot %d, got %d", trig.Slot, tr.Slot)
		}
	case <-time.After(time.Second):
		t.Fatal("expected eager deadline activation within 1s")
	}
}

func TestIsTrigger(t *testing.T) {
	trig := capsTrigger(nil)
	d := NewDetector([]Trigger{trig}, nil)
	if !d.IsTrigger(trig.ScanCode) {
		t.Error("expected registered scancode to be recognized as a trigger")
	}
	if d.IsTrigger(lookup.ScanCode{Code: 0x99}) {
		t.Error("unregistered scancode should not be a trigger")
	}
}
