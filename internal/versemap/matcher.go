package versemap

import (
	"fmt"
	"sort"

	"github.com/readwell/concord/internal/ref"
)

// Matcher answers cross-translation correspondence queries over a set of
// compiled rule tables. A Matcher is immutable after construction and safe
// for concurrent use.
type Matcher struct {
	sets map[string]*RuleSet // keyed by book
}

// NewMatcher builds a Matcher from compiled rule sets.
// At most one rule set per book is allowed.
func NewMatcher(sets []*RuleSet) (*Matcher, error) {
	m := &Matcher{sets: make(map[string]*RuleSet, len(sets))}
	for _, rs := range sets {
		if err := rs.Validate(); err != nil {
			return nil, err
		}
		if _, dup := m.sets[rs.Book]; dup {
			return nil, fmt.Errorf("duplicate rule table for book %s", rs.Book)
		}
		m.sets[rs.Book] = rs
	}
	return m, nil
}

// Books returns the books that carry explicit rule tables, sorted.
func (m *Matcher) Books() []string {
	books := make([]string, 0, len(m.sets))
	for b := range m.sets {
		books = append(books, b)
	}
	sort.Strings(books)
	return books
}

// AltNumbered reports whether a book's chapter numbering diverges
// structurally between the two schemes.
func (m *Matcher) AltNumbered(book string) bool {
	rs, ok := m.sets[book]
	return ok && rs.AltNumbering
}

// MatchToOtherRuleOnly returns the raw rule matches for a verse, including
// same-chapter entries. Callers resolving counterparts for alt-numbered
// books must filter the noise themselves; Counterparts does exactly that.
func (m *Matcher) MatchToOtherRuleOnly(from ref.Translation, k ref.VerseKey) []ref.VerseKey {
	rs, ok := m.sets[k.Book]
	if !ok {
		return nil
	}

	var out []ref.VerseKey
	switch ref.Canonical(string(from)) {
	case rs.From:
		out = rs.matchForward(k)
	case rs.From.Other():
		out = rs.matchReverse(k)
	default:
		return nil
	}
	return dedupeSorted(out)
}

// MatchToOther returns the verses corresponding to k in the other
// numbering scheme. Verses with no explicit rule fall back to identity:
// most books number identically in both schemes.
func (m *Matcher) MatchToOther(from ref.Translation, k ref.VerseKey) []ref.VerseKey {
	if matches := m.MatchToOtherRuleOnly(from, k); len(matches) > 0 {
		return matches
	}
	return []ref.VerseKey{k}
}

// Counterparts resolves the effective cross-translation counterparts of a
// verse. For ordinary books this is MatchToOther. For alt-numbered books
// only rule matches whose chapter differs from the source chapter count;
// same-chapter rule matches are numbering noise, and a verse with no
// cross-chapter match is treated as unmapped.
//
// Every component that needs counterpart resolution goes through this one
// method, so the alt-numbered branch lives in exactly one place.
func (m *Matcher) Counterparts(from ref.Translation, k ref.VerseKey) []ref.VerseKey {
	if !m.AltNumbered(k.Book) {
		return m.MatchToOther(from, k)
	}

	var out []ref.VerseKey
	for _, match := range m.MatchToOtherRuleOnly(from, k) {
		if match.Chapter != k.Chapter {
			out = append(out, match)
		}
	}
	return out
}

// ExistsInOther reports whether a verse has any effective counterpart in
// the other scheme.
func (m *Matcher) ExistsInOther(from ref.Translation, k ref.VerseKey) bool {
	return len(m.Counterparts(from, k)) > 0
}

// ClusterID returns the canonical cluster id for a verse: its coordinates
// under the server base numbering. Verses in the alternate scheme with no
// base-scheme counterpart get a scheme-prefixed id instead, keeping them
// stable and distinct.
//
// When a verse corresponds to several base verses (a merge), the lowest
// base coordinate wins; the tie-break only has to be deterministic.
func (m *Matcher) ClusterID(tx ref.Translation, k ref.VerseKey) ref.ClusterID {
	canonical := ref.Canonical(string(tx))
	if canonical == ref.ServerBase {
		return ref.BaseCluster(k)
	}
	counterparts := m.Counterparts(canonical, k)
	if len(counterparts) == 0 {
		return ref.UnmappedCluster(canonical, k)
	}
	return ref.BaseCluster(counterparts[0])
}

// matchForward applies the rule spans in their written direction.
func (rs *RuleSet) matchForward(k ref.VerseKey) []ref.VerseKey {
	var out []ref.VerseKey

	for _, cs := range rs.ChapterShifts {
		if k.Chapter >= cs.FromStart && k.Chapter <= cs.FromEnd {
			out = append(out, ref.VerseKey{Book: k.Book, Chapter: k.Chapter + cs.Delta, Verse: k.Verse})
		}
	}

	for _, vm := range rs.VerseMaps {
		if vm.FromChapter != k.Chapter {
			continue
		}
		if k.Verse < vm.FromStart || (vm.FromEnd != 0 && k.Verse > vm.FromEnd) {
			continue
		}
		out = append(out, vm.targets(k)...)
	}

	return out
}

// matchReverse applies the rule spans inverted.
func (rs *RuleSet) matchReverse(k ref.VerseKey) []ref.VerseKey {
	var out []ref.VerseKey

	for _, cs := range rs.ChapterShifts {
		src := k.Chapter - cs.Delta
		if src >= cs.FromStart && src <= cs.FromEnd {
			out = append(out, ref.VerseKey{Book: k.Book, Chapter: src, Verse: k.Verse})
		}
	}

	for _, vm := range rs.VerseMaps {
		if vm.ToChapter != k.Chapter {
			continue
		}
		if k.Verse < vm.ToStart || (vm.ToEnd != 0 && k.Verse > vm.ToEnd) {
			continue
		}
		out = append(out, vm.sources(k)...)
	}

	return out
}

// targets expands a verse map for a source verse inside its span.
func (vm VerseMap) targets(k ref.VerseKey) []ref.VerseKey {
	// Open target span, or bounded spans of equal length: constant offset.
	if vm.ToEnd == 0 || vm.spanLensEqual() {
		v := vm.ToStart + (k.Verse - vm.FromStart)
		if vm.ToEnd != 0 && v > vm.ToEnd {
			return nil
		}
		return []ref.VerseKey{{Book: k.Book, Chapter: vm.ToChapter, Verse: v}}
	}

	// Differing lengths: genuine merge/split, every target verse counts.
	out := make([]ref.VerseKey, 0, vm.ToEnd-vm.ToStart+1)
	for v := vm.ToStart; v <= vm.ToEnd; v++ {
		out = append(out, ref.VerseKey{Book: k.Book, Chapter: vm.ToChapter, Verse: v})
	}
	return out
}

// sources expands an inverted verse map for a target verse inside its span.
func (vm VerseMap) sources(k ref.VerseKey) []ref.VerseKey {
	if vm.ToEnd == 0 || vm.spanLensEqual() {
		v := vm.FromStart + (k.Verse - vm.ToStart)
		if vm.FromEnd != 0 && v > vm.FromEnd {
			return nil
		}
		return []ref.VerseKey{{Book: k.Book, Chapter: vm.FromChapter, Verse: v}}
	}

	out := make([]ref.VerseKey, 0, vm.FromEnd-vm.FromStart+1)
	for v := vm.FromStart; v <= vm.FromEnd; v++ {
		out = append(out, ref.VerseKey{Book: k.Book, Chapter: vm.FromChapter, Verse: v})
	}
	return out
}

func (vm VerseMap) spanLensEqual() bool {
	if vm.FromEnd == 0 || vm.ToEnd == 0 {
		return false
	}
	return vm.FromEnd-vm.FromStart == vm.ToEnd-vm.ToStart
}

// dedupeSorted removes duplicate keys and orders matches by coordinates so
// results are deterministic regardless of rule declaration order.
func dedupeSorted(keys []ref.VerseKey) []ref.VerseKey {
	if len(keys) < 2 {
		return keys
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Chapter != keys[j].Chapter {
			return keys[i].Chapter < keys[j].Chapter
		}
		return keys[i].Verse < keys[j].Verse
	})
	out := keys[:1]
	for _, k := range keys[1:] {
		if k != out[len(out)-1] {
			out = append(out, k)
		}
	}
	return out
}
