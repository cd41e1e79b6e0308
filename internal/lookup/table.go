// Package lookup implements the compact per-input-scancode rule table the
// Event Processor consults on every key event (spec.md §4.B).
package lookup

import (
	"sort"

	"github.com/Danondso/yamy-go/internal/modifier"
)

// ScanCode is a 16-bit hardware key identifier tagged with the "extended"
// (E0-prefixed) flag. Extended participates in input matching: an E0 arrow
// key is a distinct input from its non-extended numeric-keypad twin.
type ScanCode struct {
	Code     uint16
	Extended bool
}

// ActionKind discriminates the variants of Action.
type ActionKind int

const (
	// Passthrough forwards the event unchanged. It is the implicit default
	// when no rule in the table matches.
	Passthrough ActionKind = iota
	// Replace substitutes a single output scan code for the input.
	Replace
	// Sequence emits a list of scan codes, each synthesized as a full
	// press+release, in order.
	Sequence
	// Suppress drops the event: nothing is emitted.
	Suppress
)

// Action is the tagged-variant output of a matched Rule.
type Action struct {
	Kind     ActionKind
	Output   ScanCode   // valid when Kind == Replace
	Sequence []ScanCode // valid when Kind == Sequence
}

// ReplaceAction builds a Replace action.
func ReplaceAction(out ScanCode) Action { return Action{Kind: Replace, Output: out} }

// SequenceAction builds a Sequence action.
func SequenceAction(seq []ScanCode) Action { return Action{Kind: Sequence, Sequence: seq} }

// SuppressAction builds a Suppress action.
func SuppressAction() Action { return Action{Kind: Suppress} }

// PassthroughAction builds the implicit default action.
func PassthroughAction() Action { return Action{Kind: Passthrough} }

// Rule is a single compiled mapping entry: fire Output when the live
// modifier state matches (RequiredOn, RequiredOff). Seq records declaration
// order for tie-breaking between rules of identical specificity.
type Rule struct {
	RequiredOn  modifier.Mask
	RequiredOff modifier.Mask
	Output      Action
	Seq         int
}

// Table is the compiled, read-only, per-keymap lookup table: ScanCode ->
// rules ordered by decreasing specificity. It is built once by
// internal/compiler and never mutated afterward; concurrent Query calls from
// multiple hook-thread goroutines are safe.
type Table struct {
	entries map[ScanCode][]Rule
}

// NewTable builds a Table from an unordered set of rules per scan code,
// sorting each scan code's rule list by decreasing popcount(RequiredOn) and
// then by declaration order, per spec.md §4.B.
func NewTable(byScanCode map[ScanCode][]Rule) *Table {
	t := &Table{entries: make(map[ScanCode][]Rule, len(byScanCode))}
	for sc, rules := range byScanCode {
		cp := make([]Rule, len(rules))
		copy(cp, rules)
		sort.SliceStable(cp, func(i, j int) bool {
			pi, pj := cp[i].RequiredOn.Popcount(), cp[j].RequiredOn.Popcount()
			if pi != pj {
				return pi > pj
			}
			return cp[i].Seq < cp[j].Seq
		})
		t.entries[sc] = cp
	}
	return t
}

// Query returns the first rule's output whose (RequiredOn, RequiredOff) the
// given state matches, or Passthrough if none do or the scan code is absent.
func (t *Table) Query(sc ScanCode, state modifier.State) Action {
	if t == nil {
		return PassthroughAction()
	}
	for _, rule := range t.entries[sc] {
		if state.Matches(rule.RequiredOn, rule.RequiredOff) {
			return rule.Output
		}
	}
	return PassthroughAction()
}

// Rules returns a copy of the rule list registered for sc, for
// introspection (GetKeymaps, InvestigateWindow).
func (t *Table) Rules(sc ScanCode) []Rule {
	if t == nil {
		return nil
	}
	src := t.entries[sc]
	out := make([]Rule, len(src))
	copy(out, src)
	return out
}

// ScanCodes returns every scan code this table has rules for, for
// introspection and tests.
func (t *Table) ScanCodes() []ScanCode {
	if t == nil {
		return nil
	}
	out := make([]ScanCode, 0, len(t.entries))
	for sc := range t.entries {
		out = append(out, sc)
	}
	return out
}
