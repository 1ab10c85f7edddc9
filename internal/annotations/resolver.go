package annotations

import (
	"sort"

	"github.com/readwell/concord/internal/ref"
	"github.com/readwell/concord/internal/versemap"
)

// MatcherFunc supplies the current verse matcher. It returns nil while the
// rule tables are still loading; resolution then degrades to
// per-translation lookup instead of failing.
type MatcherFunc func() *versemap.Matcher

// Resolver computes the effective highlight and note for a verse.
//
// Resolution precedence, first hit wins:
//  1. shared entry for the verse's own cluster
//  2. shared entry for any cross-translation counterpart's cluster
//  3. per-translation entry for the verse itself
//  4. per-translation entry for any same-translation sibling
//
// Without a matcher only steps 3 and 4 apply, and siblings are unknown,
// so the lookup is per-translation only. That is degraded accuracy, not
// an error.
type Resolver struct {
	store   *Store
	matcher MatcherFunc
}

// NewResolver creates a resolver over a store. matcher may return nil
// until rule tables have loaded.
func NewResolver(store *Store, matcher MatcherFunc) *Resolver {
	return &Resolver{store: store, matcher: matcher}
}

// ColorFor resolves the effective highlight for a verse as displayed in tx.
func (r *Resolver) ColorFor(k ref.VerseKey, tx ref.Translation) ref.HighlightColor {
	canonical := ref.Canonical(string(tx))

	if m := r.matcher(); m != nil {
		if c, ok := r.store.SharedColor(m.ClusterID(canonical, k)); ok {
			return c
		}
		other := canonical.Other()
		for _, cp := range m.Counterparts(canonical, k) {
			if c, ok := r.store.SharedColor(m.ClusterID(other, cp)); ok {
				return c
			}
		}
	}

	if c, ok := r.store.PerTxColor(canonical, k.Key()); ok {
		return c
	}
	for _, sib := range r.Siblings(k, tx) {
		if c, ok := r.store.PerTxColor(canonical, sib.Key()); ok {
			return c
		}
	}
	return ref.ColorNone
}

// NoteFor resolves the effective note for a verse as displayed in tx.
// The second return is false when no note exists anywhere.
func (r *Resolver) NoteFor(k ref.VerseKey, tx ref.Translation) (string, bool) {
	canonical := ref.Canonical(string(tx))

	if m := r.matcher(); m != nil {
		if n, ok := r.store.SharedNote(m.ClusterID(canonical, k)); ok {
			return n, true
		}
		other := canonical.Other()
		for _, cp := range m.Counterparts(canonical, k) {
			if n, ok := r.store.SharedNote(m.ClusterID(other, cp)); ok {
				return n, true
			}
		}
	}

	if n, ok := r.store.PerTxNote(canonical, k.Key()); ok {
		return n, true
	}
	for _, sib := range r.Siblings(k, tx) {
		if n, ok := r.store.PerTxNote(canonical, sib.Key()); ok {
			return n, true
		}
	}
	return "", false
}

// Counterparts returns the cross-translation counterparts of a verse, or
// nil while no matcher is loaded.
func (r *Resolver) Counterparts(k ref.VerseKey, tx ref.Translation) []ref.VerseKey {
	m := r.matcher()
	if m == nil {
		return nil
	}
	return m.Counterparts(ref.Canonical(string(tx)), k)
}

// Siblings returns the verses in the same translation that indirectly
// co-map with k through the other numbering scheme: k's counterparts,
// mapped back. A split or merge makes one source verse correspond to
// several verses on its own side; those must display the same annotation
// even though they are distinct clusters.
//
// k itself is never a sibling, results stay within k's book, and the list
// is deduplicated and ordered by coordinates.
func (r *Resolver) Siblings(k ref.VerseKey, tx ref.Translation) []ref.VerseKey {
	m := r.matcher()
	if m == nil {
		return nil
	}

	canonical := ref.Canonical(string(tx))
	other := canonical.Other()

	seen := make(map[string]struct{})
	var out []ref.VerseKey
	for _, cp := range m.Counterparts(canonical, k) {
		for _, back := range m.Counterparts(other, cp) {
			if back.Book != k.Book || back == k {
				continue
			}
			if _, dup := seen[back.Key()]; dup {
				continue
			}
			seen[back.Key()] = struct{}{}
			out = append(out, back)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Chapter != out[j].Chapter {
			return out[i].Chapter < out[j].Chapter
		}
		return out[i].Verse < out[j].Verse
	})
	return out
}

// PromoteLocalToShared moves every per-translation entry whose verse now
// has a known cross-translation counterpart into the shared tier under
// its cluster id, deleting the fallback entry. A verse may lack a
// counterpart at write time simply because the matcher had not loaded
// yet; this sweep runs after matcher load and after every chapter load,
// and is idempotent.
func (r *Resolver) PromoteLocalToShared() {
	m := r.matcher()
	if m == nil {
		return
	}

	for _, tx := range r.store.PerTxTranslations() {
		for key, color := range r.store.PerTxColors(tx) {
			k, err := ref.ParseKey(key)
			if err != nil {
				continue
			}
			if !m.ExistsInOther(tx, k) {
				continue
			}
			r.store.SetSharedColor(m.ClusterID(tx, k), color)
			r.store.SetPerTxColor(tx, key, ref.ColorNone)
		}
		for key, note := range r.store.PerTxNotes(tx) {
			k, err := ref.ParseKey(key)
			if err != nil {
				continue
			}
			if !m.ExistsInOther(tx, k) {
				continue
			}
			r.store.SetSharedNote(m.ClusterID(tx, k), note)
			r.store.SetPerTxNote(tx, key, "")
		}
	}
}
