package compiler

import (
	"strings"
	"testing"

	"github.com/Danondso/yamy-go/internal/lookup"
	"github.com/Danondso/yamy-go/internal/modifier"
)

func TestCompileSimpleRemap(t *testing.T) {
	doc := []byte(`{
		"version": "2.0",
		"keyboard": { "keys": { "A": "0x1E", "Tab": "0x0F" } },
		"mappings": [ { "from": "A", "to": "Tab" } ]
	}`)
	cfg, errs := Compile(doc)
	if errs.HasErrors() {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if cfg.KeyCount != 2 {
		t.Errorf("expected key_count 2, got %d", cfg.KeyCount)
	}

	chain := cfg.Resolver.Select("anything", "anything")
	if len(chain) == 0 {
		t.Fatal("expected at least the global fallback keymap")
	}
	var state modifier.State
	act := chain[0].Table.Query(lookup.ScanCode{Code: 0x1E}, state)
	if act.Kind != lookup.Replace || act.Output.Code != 0x0F {
		t.Errorf("expected A -> Tab replace, got %+v", act)
	}
}

func TestCompileRecognizesReservedModifierAndLockKeyNames(t *testing.T) {
	doc := []byte(`{
		"version": "2.0",
		"keyboard": { "keys": {
			"Shift": "0x2A", "Control": "0x1D", "CapsLock": "0x3A", "A": "0x1E"
		} }
	}`)
	cfg, errs := Compile(doc)
	if errs.HasErrors() {
		t.Fatalf("unexpected errors: %v", errs)
	}
	cases := []struct {
		sc   lookup.ScanCode
		kind modifier.Kind
	}{
		{lookup.ScanCode{Code: 0x2A}, modifier.Shift},
		{lookup.ScanCode{Code: 0x1D}, modifier.Control},
		{lookup.ScanCode{Code: 0x3A}, modifier.CapsLock},
	}
	for _, c := range cases {
		got, ok := cfg.ModifierKeys[c.sc]
		if !ok || got != c.kind {
			t.Errorf("ModifierKeys[%+v] = (%v, %v), want (%v, true)", c.sc, got, ok, c.kind)
		}
	}
	if _, ok := cfg.ModifierKeys[lookup.ScanCode{Code: 0x1E}]; ok {
		t.Error("plain key A should not be registered as a modifier/lock key")
	}
}

func TestCompileMissingKeyboardKeys(t *testing.T) {
	doc := []byte(`{ "version": "2.0", "keyboard": {} }`)
	_, errs := Compile(doc)
	if !errs.HasErrors() {
		t.Fatal("expected error for missing keyboard.keys")
	}
	found := false
	for _, e := range errs {
		if strings.Contains(e.Path, "keyboard") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected an error mentioning keyboard, got %v", errs)
	}
}

func TestCompileRejectsUnknownTopLevelKey(t *testing.T) {
	doc := []byte(`{
		"version": "2.0",
		"keyboard": { "keys": { "A": "0x1E" } },
		"bogus": true
	}`)
	_, errs := Compile(doc)
	if !errs.HasErrors() {
		t.Fatal("expected error for unknown top-level key")
	}
}

func TestCompileRejectsBadVersion(t *testing.T) {
	doc := []byte(`{ "version": "1.0", "keyboard": { "keys": { "A": "0x1E" } } }`)
	_, errs := Compile(doc)
	if !errs.HasErrors() {
		t.Fatal("expected error for wrong version")
	}
}

func TestCompileDuplicateKeyName(t *testing.T) {
	doc := []byte(`{
		"version": "2.0",
		"keyboard": { "keys": { "A": "0x1E", "a": "0x1F" } }
	}`)
	_, errs := Compile(doc)
	if !errs.HasErrors() {
		t.Fatal("expected duplicate key name error (case-insensitive)")
	}
}

func TestCompileScanCodeMustStartWith0x(t *testing.T) {
	doc := []byte(`{ "version": "2.0", "keyboard": { "keys": { "A": "1E" } } }`)
	_, errs := Compile(doc)
	if !errs.HasErrors() {
		t.Fatal("expected error for scan code missing 0x prefix")
	}
}

func TestCompileVirtualModifierTapAndHold(t *testing.T) {
	doc := []byte(`{
		"version": "2.0",
		"keyboard": { "keys": { "CapsLock": "0x3A", "Escape": "0x01", "H": "0x23", "Left": "0xE04B" } },
		"virtualModifiers": { "M00": { "trigger": "CapsLock", "tap": "Escape", "holdThresholdMs": 200 } },
		"mappings": [ { "from": "M00-H", "to": "Left" } ]
	}`)
	cfg, errs := Compile(doc)
	if errs.HasErrors() {
		t.Fatalf("unexpected errors: %v", errs)
	}
	trig, ok := cfg.VirtualModifiers[0]
	if !ok {
		t.Fatal("expected M00 trigger to be compiled")
	}
	if trig.TapOutput == nil || trig.TapOutput.Code != 0x01 {
		t.Errorf("expected tap output Escape, got %+v", trig.TapOutput)
	}

	chain := cfg.Resolver.Select("x", "y")
	var state modifier.State
	state.SetVirtual(0, true)
	act := chain[0].Table.Query(lookup.ScanCode{Code: 0x23}, state)
	if act.Kind != lookup.Replace || act.Output.Code != 0xE04B || !act.Output.Extended {
		t.Errorf("expected M00-H -> extended Left, got %+v", act)
	}

	// Without M00 asserted, H should pass through.
	var idle modifier.State
	act = chain[0].Table.Query(lookup.ScanCode{Code: 0x23}, idle)
	if act.Kind != lookup.Passthrough {
		t.Errorf("expected passthrough without M00, got %+v", act)
	}
}

func TestCompileImplicitRequiredOffPreventsShiftLeak(t *testing.T) {
	// M00-H and Shift-M00-H both declared: bare M00-H must NOT fire when
	// Shift is also held, per spec.md §4.F's worked example.
	doc := []byte(`{
		"version": "2.0",
		"keyboard": { "keys": { "CapsLock": "0x3A", "H": "0x23", "Left": "0xE04B", "Up": "0xE048" } },
		"virtualModifiers": { "M00": { "trigger": "CapsLock" } },
		"mappings": [
			{ "from": "M00-H", "to": "Left" },
			{ "from": "Shift-M00-H", "to": "Up" }
		]
	}`)
	cfg, errs := Compile(doc)
	if errs.HasErrors() {
		t.Fatalf("unexpected errors: %v", errs)
	}
	chain := cfg.Resolver.Select("x", "y")

	var state modifier.State
	state.SetVirtual(0, true)
	state.Press(modifier.Shift)
	act := chain[0].Table.Query(lookup.ScanCode{Code: 0x23}, state)
	if act.Kind != lookup.Replace || act.Output.Code != 0xE048 {
		t.Errorf("expected Shift-M00-H -> Up (the more specific rule), got %+v", act)
	}
}

func TestCompileWindowContextSwitch(t *testing.T) {
	doc := []byte(`{
		"version": "2.0",
		"keyboard": { "keys": { "F1": "0x3B", "Back": "0xE06A" } },
		"mappings": [
			{ "keymap": "firefox", "windowClass": "^Firefox$", "from": "F1", "to": "Back" },
			{ "from": "F1", "to": "F1" }
		]
	}`)
	cfg, errs := Compile(doc)
	if errs.HasErrors() {
		t.Fatalf("unexpected errors: %v", errs)
	}

	var state modifier.State
	chain := cfg.Resolver.Select("Firefox", "Mozilla Firefox")
	act := chain[0].Table.Query(lookup.ScanCode{Code: 0x3B}, state)
	if act.Kind != lookup.Replace || act.Output.Code != 0xE06A {
		t.Errorf("expected F1 -> Back in Firefox, got %+v", act)
	}

	chain = cfg.Resolver.Select("Terminal", "bash")
	act = chain[0].Table.Query(lookup.ScanCode{Code: 0x3B}, state)
	if act.Kind != lookup.Replace || act.Output.Code != 0x3B {
		t.Errorf("expected F1 -> F1 outside Firefox, got %+v", act)
	}
}

func TestCompileInheritanceOverridesParentRule(t *testing.T) {
	doc := []byte(`{
		"version": "2.0",
		"keyboard": { "keys": { "A": "0x1E", "B": "0x30", "C": "0x2E" } },
		"mappings": [
			{ "keymap": "base", "from": "A", "to": "B" },
			{ "keymap": "child", "parent": "base", "from": "A", "to": "C" }
		]
	}`)
	cfg, errs := Compile(doc)
	if errs.HasErrors() {
		t.Fatalf("unexpected errors: %v", errs)
	}
	all := cfg.Resolver.All()
	var child *lookup.Table
	for _, km := range all {
		if km.Name == "child" {
			child = km.Table
		}
	}
	if child == nil {
		t.Fatal("expected child keymap to be present")
	}
	var state modifier.State
	act := child.Query(lookup.ScanCode{Code: 0x1E}, state)
	if act.Kind != lookup.Replace || act.Output.Code != 0x2E {
		t.Errorf("expected child's override to win, got %+v", act)
	}
}

func TestCompileCyclicInheritanceIsError(t *testing.T) {
	doc := []byte(`{
		"version": "2.0",
		"keyboard": { "keys": { "A": "0x1E" } },
		"mappings": [
			{ "keymap": "x", "parent": "y", "from": "A", "to": "A" },
			{ "keymap": "y", "parent": "x", "from": "A", "to": "A" }
		]
	}`)
	_, errs := Compile(doc)
	if !errs.HasErrors() {
		t.Fatal("expected cyclic inheritance to be rejected")
	}
}

func TestCompileSequenceAction(t *testing.T) {
	doc := []byte(`{
		"version": "2.0",
		"keyboard": { "keys": { "B": "0x30", "Escape": "0x01", "H": "0x23" } },
		"mappings": [ { "from": "B", "to": ["Escape", "H"] } ]
	}`)
	cfg, errs := Compile(doc)
	if errs.HasErrors() {
		t.Fatalf("unexpected errors: %v", errs)
	}
	chain := cfg.Resolver.Select("x", "y")
	var state modifier.State
	act := chain[0].Table.Query(lookup.ScanCode{Code: 0x30}, state)
	if act.Kind != lookup.Sequence || len(act.Sequence) != 2 {
		t.Fatalf("expected a 2-element sequence, got %+v", act)
	}
}

func TestCompileSuppressAction(t *testing.T) {
	doc := []byte(`{
		"version": "2.0",
		"keyboard": { "keys": { "CapsLock": "0x3A" } },
		"mappings": [ { "from": "CapsLock", "to": "Suppress" } ]
	}`)
	cfg, errs := Compile(doc)
	if errs.HasErrors() {
		t.Fatalf("unexpected errors: %v", errs)
	}
	chain := cfg.Resolver.Select("x", "y")
	var state modifier.State
	act := chain[0].Table.Query(lookup.ScanCode{Code: 0x3A}, state)
	if act.Kind != lookup.Suppress {
		t.Errorf("expected Suppress action, got %+v", act)
	}
}

func TestCompileUnknownKeyInFrom(t *testing.T) {
	doc := []byte(`{
		"version": "2.0",
		"keyboard": { "keys": { "A": "0x1E" } },
		"mappings": [ { "from": "NoSuchKey", "to": "A" } ]
	}`)
	_, errs := Compile(doc)
	if !errs.HasErrors() {
		t.Fatal("expected error for unknown key in from")
	}
}
