package compiler

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/Danondso/yamy-go/internal/keymap"
	"github.com/Danondso/yamy-go/internal/lookup"
	"github.com/Danondso/yamy-go/internal/modifier"
)

// resolvedRule pairs a flattened lookup.Rule with the scan code it applies
// to, and is the unit inheritance override-matching operates on.
type resolvedRule struct {
	input lookup.ScanCode
	rule  lookup.Rule
}

type flattener struct {
	builders map[string]*keymapBuilder
	resolved map[string][]resolvedRule
	visiting map[string]bool
	errs     Errors
}

// flattenAndBuild computes each keymap's implicit required_off masks
// (spec.md §4.F step 4), flattens parent chains depth-first with cycle
// detection (spec.md §4.E), and builds the final ordered Keymap list plus
// per-keymap lookup.Table.
func flattenAndBuild(builders map[string]*keymapBuilder) ([]*keymap.Keymap, Errors) {
	fl := &flattener{
		builders: builders,
		resolved: make(map[string][]resolvedRule),
		visiting: make(map[string]bool),
	}

	names := make([]string, 0, len(builders))
	for name := range builders {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return builders[names[i]].firstSeenAt < builders[names[j]].firstSeenAt
	})

	for _, name := range names {
		fl.flatten(name)
	}
	if fl.errs.HasErrors() {
		return nil, fl.errs
	}

	keymaps := make([]*keymap.Keymap, 0, len(names))
	for _, name := range names {
		b := builders[name]
		km, err := fl.buildKeymap(b)
		if err != nil {
			fl.errs = append(fl.errs, CompileError{Path: "mappings (keymap " + name + ")", Message: err.Error()})
			continue
		}
		keymaps = append(keymaps, km)
	}
	if fl.errs.HasErrors() {
		return nil, fl.errs
	}
	return keymaps, nil
}

// ownRulesWithImplicitOff computes the per-keymap "mentioned somewhere but
// not here => forbidden" mask from the keymap's own rules only (not its
// ancestors'), and returns the resulting resolvedRules.
func ownRulesWithImplicitOff(b *keymapBuilder) []resolvedRule {
	var universePhysical uint8
	var universeVirtual [4]uint64
	for _, r := range b.rules {
		universePhysical |= r.mentionedPhysical
		for i := range universeVirtual {
			universeVirtual[i] |= r.mentionedVirtual[i]
		}
	}

	out := make([]resolvedRule, 0, len(b.rules))
	for _, r := range b.rules {
		off := modifier.Mask{
			Physical: universePhysical &^ r.requiredOn.Physical,
		}
		for i := range off.Virtual {
			off.Virtual[i] = universeVirtual[i] &^ r.requiredOn.Virtual[i]
		}
		out = append(out, resolvedRule{
			input: r.input,
			rule: lookup.Rule{
				RequiredOn:  r.requiredOn,
				RequiredOff: off,
				Output:      r.action,
				Seq:         r.seq,
			},
		})
	}
	return out
}

// flatten resolves keymap name's full rule set, depth-first over its parent
// chain, detecting cycles.
func (fl *flattener) flatten(name string) []resolvedRule {
	if rules, ok := fl.resolved[name]; ok {
		return rules
	}
	b, ok := fl.builders[name]
	if !ok {
		return nil
	}
	if fl.visiting[name] {
		fl.errs = append(fl.errs, CompileError{Path: "mappings (keymap " + name + ")", Message: "cyclic parent inheritance"})
		return nil
	}
	fl.visiting[name] = true

	var parentRules []resolvedRule
	if b.parent != "" {
		if _, exists := fl.builders[b.parent]; !exists {
			fl.errs = append(fl.errs, CompileError{Path: "mappings (keymap " + name + ")", Message: "unknown parent keymap: " + b.parent})
		} else {
			parentRules = fl.flatten(b.parent)
		}
	}

	own := ownRulesWithImplicitOff(b)
	combined := overrideMerge(parentRules, own)

	fl.visiting[name] = false
	fl.resolved[name] = combined
	return combined
}

// overrideMerge combines a parent's flattened rules with a child's own
// rules: a child rule with an identical (input, RequiredOn, RequiredOff)
// replaces the parent's rule in place, preserving the parent's declaration
// position for tie-breaking; every other child rule is appended.
func overrideMerge(parentRules, childRules []resolvedRule) []resolvedRule {
	type key struct {
		input       lookup.ScanCode
		onPhysical  uint8
		onVirtual   [4]uint64
		offPhysical uint8
		offVirtual  [4]uint64
	}
	keyOf := func(rr resolvedRule) key {
		return key{
			input:       rr.input,
			onPhysical:  rr.rule.RequiredOn.Physical,
			onVirtual:   rr.rule.RequiredOn.Virtual,
			offPhysical: rr.rule.RequiredOff.Physical,
			offVirtual:  rr.rule.RequiredOff.Virtual,
		}
	}

	out := make([]resolvedRule, len(parentRules))
	copy(out, parentRules)
	index := make(map[key]int, len(parentRules))
	for i, rr := range out {
		index[keyOf(rr)] = i
	}

	for _, rr := range childRules {
		k := keyOf(rr)
		if i, exists := index[k]; exists {
			out[i] = rr
			continue
		}
		index[k] = len(out)
		out = append(out, rr)
	}
	return out
}

func (fl *flattener) buildKeymap(b *keymapBuilder) (*keymap.Keymap, error) {
	var classRe, titleRe *regexp.Regexp
	if b.classRegexSrc != "" {
		re, err := regexp.Compile(b.classRegexSrc)
		if err != nil {
			return nil, fmt.Errorf("windowClass: %w", err)
		}
		classRe = re
	}
	if b.titleRegexSrc != "" {
		re, err := regexp.Compile(b.titleRegexSrc)
		if err != nil {
			return nil, fmt.Errorf("windowTitle: %w", err)
		}
		titleRe = re
	}

	byScanCode := make(map[lookup.ScanCode][]lookup.Rule)
	for _, rr := range fl.resolved[b.name] {
		byScanCode[rr.input] = append(byScanCode[rr.input], rr.rule)
	}

	return &keymap.Keymap{
		Name:       b.name,
		ClassRegex: classRe,
		TitleRegex: titleRe,
		Table:      lookup.NewTable(byScanCode),
	}, nil
}
