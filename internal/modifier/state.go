// Package modifier implements the event-processing pipeline's modifier-state
// model: the bit-set of currently asserted physical and virtual modifiers,
// plus the lock-key flags, consulted on every hot-path event.
package modifier

import "fmt"

// Kind discriminates a physical modifier or lock key. Virtual modifiers are
// addressed separately by VirtualSlot since there are 256 of them.
type Kind int

const (
	Shift Kind = iota
	Control
	Alt
	Meta
	CapsLock
	NumLock
	ScrollLock
)

func (k Kind) String() string {
	switch k {
	case Shift:
		return "Shift"
	case Control:
		return "Control"
	case Alt:
		return "Alt"
	case Meta:
		return "Meta"
	case CapsLock:
		return "CapsLock"
	case NumLock:
		return "NumLock"
	case ScrollLock:
		return "ScrollLock"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// IsPhysical reports whether k is one of the four physical modifiers driven
// directly by keyboard modifier keys (Shift, Control, Alt, Meta).
func (k Kind) IsPhysical() bool {
	return k == Shift || k == Control || k == Alt || k == Meta
}

// IsLock reports whether k is one of the three toggled lock keys.
func (k Kind) IsLock() bool {
	return k == CapsLock || k == NumLock || k == ScrollLock
}

func (k Kind) physicalBit() uint8 {
	return 1 << uint(k)
}

func (k Kind) lockBit() uint8 {
	return 1 << uint(k-CapsLock)
}

// VirtualSlot identifies one of the 256 user-defined virtual modifier slots
// M00..MFF.
type VirtualSlot uint8

// virtualWords is the number of uint64 words needed to hold 256 virtual bits.
const virtualWords = 4

// Mask is the (required-on / required-off) shape a Rule matches against: the
// physical-modifier bits plus the virtual-modifier bits. Lock bits are
// intentionally excluded — spec.md's modified-key-expr grammar never
// references CapsLock/NumLock/ScrollLock, only {Shift,Ctrl,Alt,Win,Mxx}.
type Mask struct {
	Physical uint8
	Virtual  [virtualWords]uint64
}

// SetPhysical returns a copy of m with the given physical/meta modifier bit set.
func (m Mask) SetPhysical(k Kind) Mask {
	m.Physical |= k.physicalBit()
	return m
}

// SetVirtual returns a copy of m with the given virtual slot bit set.
func (m Mask) SetVirtual(slot VirtualSlot) Mask {
	word, bit := slot/64, slot%64
	m.Virtual[word] |= 1 << uint(bit)
	return m
}

// IsZero reports whether no bit in the mask is set.
func (m Mask) IsZero() bool {
	if m.Physical != 0 {
		return false
	}
	for _, w := range m.Virtual {
		if w != 0 {
			return false
		}
	}
	return true
}

// Overlaps reports whether m and other share any set bit, i.e. whether a
// rule with these required_on/required_off masks is ill-formed. The compiler
// does not call it: it builds each required_off as the keymap's mentioned
// modifiers minus that rule's required_on, so its masks never overlap.
func (m Mask) Overlaps(other Mask) bool {
	if m.Physical&other.Physical != 0 {
		return true
	}
	for i := range m.Virtual {
		if m.Virtual[i]&other.Virtual[i] != 0 {
			return true
		}
	}
	return false
}

// Popcount returns the number of set bits, used by the lookup table to order
// rules by decreasing specificity (spec.md §4.B).
func (m Mask) Popcount() int {
	n := popcount8(m.Physical)
	for _, w := range m.Virtual {
		n += popcountWord(w)
	}
	return n
}

func popcount8(b uint8) int {
	n := 0
	for b != 0 {
		n += int(b & 1)
		b >>= 1
	}
	return n
}

func popcountWord(w uint64) int {
	n := 0
	for w != 0 {
		n += int(w & 1)
		w >>= 1
	}
	return n
}

// State is the live, mutable modifier-state value the Event Processor
// consults and updates on every event. Per spec.md §4.A it is a value type;
// callers that need sharing across goroutines copy it under their own lock
// (the Event Processor's Investigate does this under the processor's lock).
type State struct {
	physical uint8
	locks    uint8
	virtual  [virtualWords]uint64
}

// Press asserts a physical modifier's held bit. No-op for lock kinds — use
// Toggle for those.
func (s *State) Press(k Kind) {
	if !k.IsPhysical() {
		return
	}
	s.physical |= k.physicalBit()
}

// Release clears a physical modifier's held bit.
func (s *State) Release(k Kind) {
	if !k.IsPhysical() {
		return
	}
	s.physical &^= k.physicalBit()
}

// Toggle flips a lock key's bit. Per spec.md §4 invariants this happens on
// the trigger's press, never its release.
func (s *State) Toggle(k Kind) {
	if !k.IsLock() {
		return
	}
	s.locks ^= k.lockBit()
}

// Locked reports whether a lock key is currently engaged.
func (s *State) Locked(k Kind) bool {
	if !k.IsLock() {
		return false
	}
	return s.locks&k.lockBit() != 0
}

// SetVirtual asserts or clears a virtual modifier slot. Per spec.md §4.A,
// virtual bits follow the tap/hold detector, never a raw key press directly:
// on the live engine state, internal/engine calls this only in response to
// internal/taphold's activations and releases.
func (s *State) SetVirtual(slot VirtualSlot, on bool) {
	word, bit := slot/64, slot%64
	if on {
		s.virtual[word] |= 1 << uint(bit)
	} else {
		s.virtual[word] &^= 1 << uint(bit)
	}
}

// VirtualSet reports whether a virtual modifier slot is currently asserted.
func (s *State) VirtualSet(slot VirtualSlot) bool {
	word, bit := slot/64, slot%64
	return s.virtual[word]&(1<<uint(bit)) != 0
}

// Mask returns the current physical+virtual bits as a Mask, for comparison
// against Rule.RequiredOn/RequiredOff or for publishing in a ModifierChanged
// notification.
func (s State) Mask() Mask {
	return Mask{Physical: s.physical, Virtual: s.virtual}
}

// Matches implements spec.md §4.A's contract exactly:
//
//	matches(required_on, required_off) ==
//	    (state & required_on) == required_on && (state & required_off) == 0
//
// matches(zero, zero) is always true. internal/compiler never produces a
// rule whose requiredOn and requiredOff overlap (see Overlaps); Matches does
// not itself special-case such a rule, it
// would simply always be false for such a rule since both clauses cannot
// hold when a bit is in both masks and set.
func (s State) Matches(requiredOn, requiredOff Mask) bool {
	m := s.Mask()
	if m.Physical&requiredOn.Physical != requiredOn.Physical {
		return false
	}
	for i := range requiredOn.Virtual {
		if m.Virtual[i]&requiredOn.Virtual[i] != requiredOn.Virtual[i] {
			return false
		}
	}
	if m.Physical&requiredOff.Physical != 0 {
		return false
	}
	for i := range requiredOff.Virtual {
		if m.Virtual[i]&requiredOff.Virtual[i] != 0 {
			return false
		}
	}
	return true
}

// Clear resets all physical, lock, and virtual bits. Called on engine
// disable per spec.md §4.D's edge cases.
func (s *State) Clear() {
	s.physical = 0
	s.locks = 0
	s.virtual = [virtualWords]uint64{}
}
