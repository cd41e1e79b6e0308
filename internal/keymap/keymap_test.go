package keymap

import (
	"regexp"
	"testing"

	"github.com/Danondso/yamy-go/internal/lookup"
)

func TestSelectMatchesClassAndGlobalFallback(t *testing.T) {
	firefox := &Keymap{Name: "firefox", ClassRegex: regexp.MustCompile("^Firefox$")}
	global := &Keymap{Name: "global"}
	r := NewResolver([]*Keymap{firefox, global})

	chain := r.Select("Firefox", "Mozilla Firefox")
	if len(chain) != 2 || chain[0].Name != "firefox" || chain[1].Name != "global" {
		t.Fatalf("expected [firefox global], got %+v", chain)
	}

	chain = r.Select("Terminal", "bash")
	if len(chain) != 1 || chain[0].Name != "global" {
		t.Fatalf("expected only [global] for non-matching class, got %+v", chain)
	}
}

func TestMatchesRequiresBothRegexes(t *testing.T) {
	k := &Keymap{
		Name:       "specific",
		ClassRegex: regexp.MustCompile("^Code$"),
		TitleRegex: regexp.MustCompile("main.go"),
	}
	if !k.Matches("Code", "main.go - editor") {
		t.Error("expected match when both class and title match")
	}
	if k.Matches("Code", "other.go - editor") {
		t.Error("expected no match when title does not match despite class matching")
	}
	if k.Matches("Other", "main.go - editor") {
		t.Error("expected no match when class does not match despite title matching")
	}
}

func TestRebuildInvalidatesCache(t *testing.T) {
	a := &Keymap{Name: "a"}
	r := NewResolver([]*Keymap{a})

	first := r.Select("X", "Y")
	if len(first) != 1 || first[0].Name != "a" {
		t.Fatalf("unexpected initial chain: %+v", first)
	}

	b := &Keymap{Name: "b"}
	r.Rebuild([]*Keymap{b})

	second := r.Select("X", "Y")
	if len(second) != 1 || second[0].Name != "b" {
		t.Fatalf("expected rebuild to invalidate the cache, got %+v", second)
	}
}

func TestAllReturnsDeclarationOrder(t *testing.T) {
	a := &Keymap{Name: "a"}
	b := &Keymap{Name: "b"}
	r := NewResolver([]*Keymap{a, b})
	all := r.All()
	if len(all) != 2 || all[0].Name != "a" || all[1].Name != "b" {
		t.Fatalf("unexpected order: %+v", all)
	}
}

func TestWindowRegexSources(t *testing.T) {
	k := &Keymap{Table: &lookup.Table{}}
	if k.WindowClassSource() != "" || k.WindowTitleSource() != "" {
		t.Error("expected empty regex sources when unset")
	}
	k.ClassRegex = regexp.MustCompile("^Firefox$")
	if k.WindowClassSource() != "^Firefox$" {
		t.Errorf("unexpected class regex source: %q", k.WindowClassSource())
	}
}
