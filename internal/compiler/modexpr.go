package compiler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Danondso/yamy-go/internal/modifier"
)

// modToken is a parsed single token from a hyphen-separated modified-key-expr
// (spec.md §4.F): either a physical modifier or a virtual-modifier slot.
type modToken struct {
	physical  modifier.Kind
	slot      modifier.VirtualSlot
	isVirtual bool
}

func parseModToken(tok string) (modToken, bool) {
	switch strings.ToLower(tok) {
	case "shift":
		return modToken{physical: modifier.Shift}, true
	case "ctrl", "control":
		return modToken{physical: modifier.Control}, true
	case "alt":
		return modToken{physical: modifier.Alt}, true
	case "win", "windows", "meta":
		return modToken{physical: modifier.Meta}, true
	}
	if slot, ok := parseVirtualSlotName(tok); ok {
		return modToken{slot: slot, isVirtual: true}, true
	}
	return modToken{}, false
}

// parseVirtualSlotName parses an "M<hh>" token (M00..MFF, case-insensitive)
// into its slot number.
func parseVirtualSlotName(tok string) (modifier.VirtualSlot, bool) {
	if len(tok) != 3 {
		return 0, false
	}
	if tok[0] != 'M' && tok[0] != 'm' {
		return 0, false
	}
	v, err := strconv.ParseUint(tok[1:], 16, 8)
	if err != nil {
		return 0, false
	}
	return modifier.VirtualSlot(v), true
}

// parsedFrom is the result of parsing a "from" modified-key-expr: the input
// scan code plus the set of modifiers explicitly required on.
type parsedFrom struct {
	input     scanCodeOrKeyName
	requiredOn modifier.Mask
	// mentioned records exactly which physical kinds and virtual slots were
	// named in this expression, so the caller can compute the per-keymap
	// "mentioned somewhere but not here => forbidden" mask (spec.md §4.F
	// step 4).
	mentionedPhysical uint8
	mentionedVirtual  [4]uint64
}

type scanCodeOrKeyName struct {
	name string
}

// parseFromExpr splits a hyphen-separated "<modifiers>-<key>" expression.
// The last token is always the key name; every preceding token must resolve
// to a known modifier.
func parseFromExpr(expr string) (parsedFrom, error) {
	tokens := strings.Split(expr, "-")
	if len(tokens) == 0 || tokens[len(tokens)-1] == "" {
		return parsedFrom{}, fmt.Errorf("empty key expression: %q", expr)
	}
	keyTok := tokens[len(tokens)-1]
	modTokens := tokens[:len(tokens)-1]

	pf := parsedFrom{input: scanCodeOrKeyName{name: keyTok}}
	for _, t := range modTokens {
		mt, ok := parseModToken(t)
		if !ok {
			return parsedFrom{}, fmt.Errorf("unknown modifier %q in expression %q", t, expr)
		}
		if mt.isVirtual {
			word, bit := mt.slot/64, mt.slot%64
			pf.requiredOn = pf.requiredOn.SetVirtual(mt.slot)
			pf.mentionedVirtual[word] |= 1 << uint(bit)
		} else {
			pf.requiredOn = pf.requiredOn.SetPhysical(mt.physical)
			pf.mentionedPhysical |= physicalBit(mt.physical)
		}
	}
	return pf, nil
}

func physicalBit(k modifier.Kind) uint8 {
	return modifier.Mask{}.SetPhysical(k).Physical
}
