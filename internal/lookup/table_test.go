package lookup

import (
	"testing"

	"github.com/Danondso/yamy-go/internal/modifier"
)

func TestQueryPassthroughWhenNoRules(t *testing.T) {
	tbl := NewTable(nil)
	var state modifier.State
	act := tbl.Query(ScanCode{Code: 0x1E}, state)
	if act.Kind != Passthrough {
		t.Errorf("expected Passthrough, got %v", act.Kind)
	}
}

func TestQuerySpecificityOrdering(t *testing.T) {
	sc := ScanCode{Code: 0x23} // H
	m00 := modifier.Mask{}.SetVirtual(0)
	m00Shift := m00.SetPhysical(modifier.Shift)

	rules := map[ScanCode][]Rule{
		sc: {
			{RequiredOn: m00, Output: ReplaceAction(ScanCode{Code: 0x4B, Extended: true}), Seq: 0},
			{RequiredOn: m00Shift, Output: ReplaceAction(ScanCode{Code: 0x48, Extended: true}), Seq: 1},
		},
	}
	tbl := NewTable(rules)

	var state modifier.State
	state.SetVirtual(0, true)
	state.Press(modifier.Shift)

	act := tbl.Query(sc, state)
	if act.Kind != Replace || act.Output.Code != 0x48 {
		t.Errorf("expected the more specific Shift+M00 rule to win, got %+v", act)
	}
}

func TestQueryTieBreaksByDeclarationOrder(t *testing.T) {
	sc := ScanCode{Code: 0x1E}
	on := modifier.Mask{}.SetVirtual(0)

	rules := map[ScanCode][]Rule{
		sc: {
			{RequiredOn: on, Output: ReplaceAction(ScanCode{Code: 1}), Seq: 1},
			{RequiredOn: on, Output: ReplaceAction(ScanCode{Code: 2}), Seq: 0},
		},
	}
	tbl := NewTable(rules)

	var state modifier.State
	state.SetVirtual(0, true)

	act := tbl.Query(sc, state)
	if act.Output.Code != 2 {
		t.Errorf("expected the earlier-declared rule (Seq 0) to win a tie, got output %d", act.Output.Code)
	}
}

func TestQueryRequiredOffExcludesRule(t *testing.T) {
	sc := ScanCode{Code: 0x23}
	on := modifier.Mask{}.SetVirtual(0)
	off := modifier.Mask{}.SetPhysical(modifier.Shift)

	rules := map[ScanCode][]Rule{
		sc: {{RequiredOn: on, RequiredOff: off, Output: ReplaceAction(ScanCode{Code: 0x4B}), Seq: 0}},
	}
	tbl := NewTable(rules)

	var state modifier.State
	state.SetVirtual(0, true)
	state.Press(modifier.Shift)

	act := tbl.Query(sc, state)
	if act.Kind != Passthrough {
		t.Errorf("expected Passthrough when forbidden modifier held, got %v", act.Kind)
	}
}

func TestNilTableQueryIsPassthrough(t *testing.T) {
	var tbl *Table
	var state modifier.State
	if act := tbl.Query(ScanCode{Code: 1}, state); act.Kind != Passthrough {
		t.Errorf("nil table should behave as passthrough, got %v", act.Kind)
	}
}
