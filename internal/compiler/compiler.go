// Package compiler implements the Config Compiler (spec.md §4.F): parsing
// a declarative JSON keymap configuration into the compact tables
// internal/lookup, internal/taphold and internal/keymap consume at runtime.
package compiler

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Danondso/yamy-go/internal/keymap"
	"github.com/Danondso/yamy-go/internal/lookup"
	"github.com/Danondso/yamy-go/internal/modifier"
	"github.com/Danondso/yamy-go/internal/taphold"
)

// defaultKeymapName is the internal name for mapping entries that don't set
// "keymap" — the implicit root keymap.
const defaultKeymapName = "$default"

// globalFallbackName is the synthesized catch-all keymap spec.md §4.E
// requires be present as "a single global fallback" after every declared
// keymap's chain.
const globalFallbackName = "$global-fallback"

// CompiledConfig is everything the Event Processor, Tap/Hold Detector and
// Keymap Resolver need at runtime — the output of the compile pipeline.
type CompiledConfig struct {
	Keys             map[string]lookup.ScanCode
	VirtualModifiers map[modifier.VirtualSlot]taphold.Trigger
	Resolver         *keymap.Resolver
	KeyCount         int

	// ModifierKeys maps a scan code to the physical-modifier or lock-key
	// kind it drives (spec.md §4.D steps 2-3), so the Event Processor can
	// recognize "a registered physical modifier"/"a registered lock key"
	// without re-deriving it from key names on every event.
	ModifierKeys map[lookup.ScanCode]modifier.Kind
}

// Compile runs the full pipeline: parse, schema-validate, resolve keys,
// resolve virtual modifiers, compile rules, flatten inheritance, and build
// per-keymap lookup tables. Errors are collected within each stage so a
// caller can report every problem that stage found; once a stage (schema,
// then keys/virtual modifiers/mappings together, then flattening) reports
// errors, the later stages are not run.
func Compile(jsonDoc []byte) (*CompiledConfig, Errors) {
	var errs Errors

	var generic map[string]json.RawMessage
	if err := json.Unmarshal(jsonDoc, &generic); err != nil {
		return nil, Errors{{Message: "invalid JSON: " + err.Error()}}
	}
	for key := range generic {
		if !topLevelKeys[key] {
			errs = append(errs, CompileError{Path: key, Message: "unknown top-level key"})
		}
	}

	var raw rawConfig
	if err := json.Unmarshal(jsonDoc, &raw); err != nil {
		return nil, Errors{{Message: "invalid JSON: " + err.Error()}}
	}

	if raw.Version != schemaVersion {
		errs = append(errs, CompileError{Path: "version", Message: fmt.Sprintf("expected %q, got %q", schemaVersion, raw.Version)})
	}
	if _, present := generic["keyboard"]; !present {
		errs = append(errs, CompileError{Path: "keyboard", Message: "missing required section"})
	}
	if raw.Keyboard.Keys == nil {
		errs = append(errs, CompileError{Path: "keyboard.keys", Message: "missing required section"})
	}
	if errs.HasErrors() {
		return nil, errs
	}

	registry := newKeyRegistry()
	names := make([]string, 0, len(raw.Keyboard.Keys))
	for name := range raw.Keyboard.Keys {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		registry.define("keyboard.keys."+name, name, raw.Keyboard.Keys[name], &errs)
	}

	vmods, vmodErrs := compileVirtualModifiers(raw.VirtualModifiers, registry)
	errs = append(errs, vmodErrs...)

	builders, ruleErrs := compileMappings(raw.Mappings, registry)
	errs = append(errs, ruleErrs...)

	if errs.HasErrors() {
		return nil, errs
	}

	keymaps, flattenErrs := flattenAndBuild(builders)
	errs = append(errs, flattenErrs...)
	if errs.HasErrors() {
		return nil, errs
	}

	triggerList := make([]taphold.Trigger, 0, len(vmods))
	for _, t := range vmods {
		triggerList = append(triggerList, t)
	}
	for _, km := range keymaps {
		km.LocalTriggers = triggerList
	}
	keymaps = append(keymaps, &keymap.Keymap{Name: globalFallbackName, Table: lookup.NewTable(nil)})

	cfg := &CompiledConfig{
		Keys:             registry.byName,
		VirtualModifiers: vmods,
		Resolver:         keymap.NewResolver(keymaps),
		KeyCount:         registry.count(),
		ModifierKeys:     registry.modifiers,
	}
	return cfg, nil
}

func compileVirtualModifiers(raw map[string]rawVirtualMod, registry *keyRegistry) (map[modifier.VirtualSlot]taphold.Trigger, Errors) {
	var errs Errors
	out := make(map[modifier.VirtualSlot]taphold.Trigger, len(raw))

	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		path := "virtualModifiers." + name
		slot, ok := parseVirtualSlotName(name)
		if !ok || !strings.HasPrefix(strings.ToUpper(name), "M") || len(name) != 3 {
			errs = append(errs, CompileError{Path: path, Message: "virtual modifier name must match M[0-9A-Fa-f]{2}"})
			continue
		}
		v := raw[name]
		triggerSC, found := registry.resolve(v.Trigger)
		if !found {
			errs = append(errs, CompileError{Path: path + ".trigger", Message: "unknown key: " + v.Trigger})
			continue
		}
		threshold := taphold.DefaultHoldThreshold
		if v.HoldThresholdMs != nil {
			threshold = msToDuration(*v.HoldThresholdMs)
		}
		trig := taphold.Trigger{
			ScanCode:      triggerSC,
			Slot:          slot,
			HoldThreshold: threshold,
		}
		if v.Tap != "" {
			tapSC, found := registry.resolve(v.Tap)
			if !found {
				errs = append(errs, CompileError{Path: path + ".tap", Message: "unknown key: " + v.Tap})
				continue
			}
			trig.TapOutput = &tapSC
		}
		out[slot] = trig
	}
	return out, errs
}

type ruleSpec struct {
	input             lookup.ScanCode
	requiredOn        modifier.Mask
	mentionedPhysical uint8
	mentionedVirtual  [4]uint64
	action            lookup.Action
	seq               int
}

type keymapBuilder struct {
	name          string
	parent        string
	classRegexSrc string
	titleRegexSrc string
	rules         []ruleSpec
	firstSeenAt   int
}

func compileMappings(raw []rawMapping, registry *keyRegistry) (map[string]*keymapBuilder, Errors) {
	var errs Errors
	builders := make(map[string]*keymapBuilder)
	order := 0

	getBuilder := func(name string) *keymapBuilder {
		if b, ok := builders[name]; ok {
			return b
		}
		b := &keymapBuilder{name: name, firstSeenAt: len(builders)}
		builders[name] = b
		return b
	}

	for i, m := range raw {
		path := fmt.Sprintf("mappings[%d]", i)
		name := m.Keymap
		if name == "" {
			name = defaultKeymapName
		}
		b := getBuilder(name)
		if m.Parent != "" {
			b.parent = m.Parent
		}
		if m.WindowClass != "" {
			b.classRegexSrc = m.WindowClass
		}
		if m.WindowTitle != "" {
			b.titleRegexSrc = m.WindowTitle
		}

		pf, err := parseFromExpr(m.From)
		if err != nil {
			errs = append(errs, CompileError{Path: path + ".from", Message: err.Error()})
			continue
		}
		sc, found := registry.resolve(pf.input.name)
		if !found {
			errs = append(errs, CompileError{Path: path + ".from", Message: "unknown key: " + pf.input.name})
			continue
		}

		toNames, err := m.resolveTo()
		if err != nil {
			errs = append(errs, CompileError{Path: path + ".to", Message: err.Error()})
			continue
		}
		action, err := resolveAction(toNames, registry)
		if err != nil {
			errs = append(errs, CompileError{Path: path + ".to", Message: err.Error()})
			continue
		}

		order++
		b.rules = append(b.rules, ruleSpec{
			input:             sc,
			requiredOn:        pf.requiredOn,
			mentionedPhysical: pf.mentionedPhysical,
			mentionedVirtual:  pf.mentionedVirtual,
			action:            action,
			seq:               order,
		})
	}
	return builders, errs
}

func resolveAction(names []string, registry *keyRegistry) (lookup.Action, error) {
	if len(names) == 0 {
		return lookup.Action{}, fmt.Errorf(`"to" must name at least one key`)
	}
	if len(names) == 1 && strings.EqualFold(names[0], "suppress") {
		return lookup.SuppressAction(), nil
	}
	if len(names) == 1 {
		sc, ok := registry.resolve(names[0])
		if !ok {
			return lookup.Action{}, fmt.Errorf("unknown key: %s", names[0])
		}
		return lookup.ReplaceAction(sc), nil
	}
	seq := make([]lookup.ScanCode, 0, len(names))
	for _, n := range names {
		sc, ok := registry.resolve(n)
		if !ok {
			return lookup.Action{}, fmt.Errorf("unknown key: %s", n)
		}
		seq = append(seq, sc)
	}
	return lookup.SequenceAction(seq), nil
}

func msToDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
