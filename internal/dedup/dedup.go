// Package dedup suppresses entity instances repeated by join fan-out within a
// single migration run.
//
// A Tracker belongs to exactly one run. It is not safe for concurrent use and
// must never be shared between runs: sharing it would silently drop rows of
// the second run that the first one already saw.
package dedup

import (
	"strings"

	"github.com/zeebo/xxh3"
)

// keySep joins key parts before hashing. Source text may contain it, but
// every part is a quoted literal and an entity's key arity is fixed, so
// distinct keys never join to the same string.
const keySep = "\x1f"

// Tracker remembers the keys emitted per entity.
type Tracker struct {
	seen       map[string]map[xxh3.Uint128]struct{}
	suppressed map[string]int
}

// New returns an empty Tracker.
func New() *Tracker {
	return &Tracker{
		seen:       make(map[string]map[xxh3.Uint128]struct{}),
		suppressed: make(map[string]int),
	}
}

// ShouldEmit reports whether the (entity, key) pair is new in this run and
// records it. A nil key marks a fan-out entity and is always emitted.
func (t *Tracker) ShouldEmit(entity string, key []string) bool {
	if key == nil {
		return true
	}
	h := xxh3.HashString128(strings.Join(key, keySep))
	set, ok := t.seen[entity]
	if !ok {
		set = make(map[xxh3.Uint128]struct{})
		t.seen[entity] = set
	}
	if _, dup := set[h]; dup {
		t.suppressed[entity]++
		return false
	}
	set[h] = struct{}{}
	return true
}

// Suppressed is how many instances of entity were dropped as duplicates.
func (t *Tracker) Suppressed(entity string) int { return t.suppressed[entity] }

// Distinct is the number of distinct keys seen for entity.
func (t *Tracker) Distinct(entity string) int { return len(t.seen[entity]) }
