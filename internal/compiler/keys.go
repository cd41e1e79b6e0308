package compiler

import (
	"strconv"
	"strings"

	"github.com/Danondso/yamy-go/internal/lookup"
	"github.com/Danondso/yamy-go/internal/modifier"
)

// keyRegistry is the compiler's name -> scancode table, built from the
// "keyboard.keys" section. Lookups are case-insensitive for ASCII names and
// byte-identical for non-ASCII ones, per spec.md §3's Key definition.
//
// modifiers records, for every defined key whose name is one of the reserved
// modifier/lock names, which modifier.Kind it drives — this is how the
// Event Processor recognizes "a registered physical modifier" / "a
// registered lock key" (spec.md §4.D steps 2-3): a key earns that status by
// being named Shift/Control/Alt/Meta/CapsLock/NumLock/ScrollLock in
// keyboard.keys, the same section that names every other key.
type keyRegistry struct {
	byName    map[string]lookup.ScanCode
	modifiers map[lookup.ScanCode]modifier.Kind
}

func newKeyRegistry() *keyRegistry {
	return &keyRegistry{
		byName:    make(map[string]lookup.ScanCode),
		modifiers: make(map[lookup.ScanCode]modifier.Kind),
	}
}

// reservedModifierKind reports the modifier.Kind a reserved keyboard.keys
// name denotes, if any. Names match parseModToken's modifier vocabulary
// (spec.md §4.F's modifier-name list) plus the three lock keys.
func reservedModifierKind(name string) (modifier.Kind, bool) {
	switch strings.ToLower(name) {
	case "shift":
		return modifier.Shift, true
	case "ctrl", "control":
		return modifier.Control, true
	case "alt":
		return modifier.Alt, true
	case "win", "windows", "meta":
		return modifier.Meta, true
	case "capslock":
		return modifier.CapsLock, true
	case "numlock":
		return modifier.NumLock, true
	case "scrolllock":
		return modifier.ScrollLock, true
	}
	return 0, false
}

func canonicalKeyName(name string) string {
	// Only ASCII A-Z are folded; every other byte, including each byte of a
	// non-ASCII rune, is kept as-is.
	b := []byte(name)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func (r *keyRegistry) define(path, name, hex string, errs *Errors) {
	key := canonicalKeyName(name)
	if _, exists := r.byName[key]; exists {
		*errs = append(*errs, CompileError{Path: path, Message: "duplicate key name: " + name})
		return
	}
	sc, err := parseScanCodeHex(hex)
	if err != nil {
		*errs = append(*errs, CompileError{Path: path, Message: "invalid scan code for key " + name + ": " + err.Error()})
		return
	}
	r.byName[key] = sc
	if kind, ok := reservedModifierKind(name); ok {
		r.modifiers[sc] = kind
	}
}

func (r *keyRegistry) resolve(name string) (lookup.ScanCode, bool) {
	sc, ok := r.byName[canonicalKeyName(name)]
	return sc, ok
}

func (r *keyRegistry) count() int { return len(r.byName) }

// parseScanCodeHex parses spec.md §4.F's required "0x"-prefixed hex scan
// code. A scan code whose top byte is 0xE0 is an E0-prefixed ("extended")
// key per spec.md §3.
func parseScanCodeHex(hex string) (lookup.ScanCode, error) {
	if !strings.HasPrefix(hex, "0x") && !strings.HasPrefix(hex, "0X") {
		return lookup.ScanCode{}, errMustStartWith0x
	}
	v, err := strconv.ParseUint(hex[2:], 16, 32)
	if err != nil {
		return lookup.ScanCode{}, err
	}
	code := uint16(v)
	extended := (v>>8)&0xFF == 0xE0
	return lookup.ScanCode{Code: code, Extended: extended}, nil
}

var errMustStartWith0x = &scanCodeFormatError{"hex scan code must start with 0x"}

type scanCodeFormatError struct{ msg string }

func (e *scanCodeFormatError) Error() string { return e.msg }
