// Package keymap implements the Keymap Resolver (spec.md §4.E): selecting
// the ordered chain of active keymaps for a foreground window's class and
// title, with a small LRU memoization cache read from the hot path.
package keymap

import (
	"regexp"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Danondso/yamy-go/internal/lookup"
	"github.com/Danondso/yamy-go/internal/taphold"
)

// cacheSize is the resolver's memoization capacity, per spec.md §4.E.
const cacheSize = 64

// Keymap is one compiled, read-only keymap. Inheritance has already been
// flattened into Table by internal/compiler — the resolver itself is
// oblivious to parent chains, per spec.md §4.E.
type Keymap struct {
	Name          string
	ClassRegex    *regexp.Regexp // nil means "always matches"
	TitleRegex    *regexp.Regexp // nil means "always matches"
	Table         *lookup.Table
	LocalTriggers []taphold.Trigger
}

// Matches reports whether this keymap applies to a foreground window with
// the given class and title. Both regexes, if present, must match
// (logical AND); a keymap with neither regex always matches.
func (k *Keymap) Matches(class, title string) bool {
	if k.ClassRegex != nil && !k.ClassRegex.MatchString(class) {
		return false
	}
	if k.TitleRegex != nil && !k.TitleRegex.MatchString(title) {
		return false
	}
	return true
}

// WindowClassSource returns the regex source text for introspection
// (GetKeymaps, InvestigateWindow), or "" if unset.
func (k *Keymap) WindowClassSource() string {
	if k.ClassRegex == nil {
		return ""
	}
	return k.ClassRegex.String()
}

// WindowTitleSource returns the regex source text for introspection, or ""
// if unset.
func (k *Keymap) WindowTitleSource() string {
	if k.TitleRegex == nil {
		return ""
	}
	return k.TitleRegex.String()
}

type cacheKey struct {
	class, title string
}

// Resolver selects the active keymap chain for a foreground-window context.
// One Resolver instance lives in the CompiledConfig and is rebuilt wholesale
// on every reload.
type Resolver struct {
	mu      sync.RWMutex
	keymaps []*Keymap // declaration order; the global fallback is last
	cache   *lru.Cache[cacheKey, []*Keymap]
}

// NewResolver builds a Resolver over an already-ordered keymap list. The
// caller (internal/compiler) is responsible for appending the single global
// "always-match" keymap last.
func NewResolver(keymaps []*Keymap) *Resolver {
	cache, _ := lru.New[cacheKey, []*Keymap](cacheSize)
	return &Resolver{keymaps: keymaps, cache: cache}
}

// Rebuild atomically replaces the keymap list and invalidates the cache.
// Called on reload (spec.md §4.E).
func (r *Resolver) Rebuild(keymaps []*Keymap) {
	cache, _ := lru.New[cacheKey, []*Keymap](cacheSize)
	r.mu.Lock()
	r.keymaps = keymaps
	r.cache = cache
	r.mu.Unlock()
}

// Select returns the ordered active chain for (class, title): every keymap
// whose regexes both match, in declaration order, followed by the global
// fallback. Results are memoized; the cache is read directly from the hot
// path and is safe for concurrent use.
func (r *Resolver) Select(class, title string) []*Keymap {
	r.mu.RLock()
	cache := r.cache
	keymaps := r.keymaps
	r.mu.RUnlock()

	key := cacheKey{class: class, title: title}
	if cache != nil {
		if cached, ok := cache.Get(key); ok {
			return cached
		}
	}

	var chain []*Keymap
	for _, k := range keymaps {
		if k.Matches(class, title) {
			chain = append(chain, k)
		}
	}

	if cache != nil {
		cache.Add(key, chain)
	}
	return chain
}

// All returns every registered keymap, in declaration order, for GetKeymaps
// introspection.
func (r *Resolver) All() []*Keymap {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Keymap, len(r.keymaps))
	copy(out, r.keymaps)
	return out
}
