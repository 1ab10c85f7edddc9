package versemap

import (
	"fmt"

	"github.com/readwell/concord/internal/ref"
)

// RuleSet holds the correspondence rules for one book. Spans are expressed
// in the From scheme; the Matcher derives the reverse direction by
// inverting them.
type RuleSet struct {
	// Book is the catalog book id the rules apply to.
	Book string

	// From is the canonical scheme the rule spans are written in.
	From ref.Translation

	// AltNumbering marks a book whose chapter numbering itself diverges
	// between schemes. For such books only cross-chapter rule matches count
	// as counterparts; same-chapter matches are numbering noise.
	AltNumbering bool

	// ChapterShifts map whole chapter ranges verse-for-verse with a
	// constant chapter delta.
	ChapterShifts []ChapterShift

	// VerseMaps map verse spans between chapters, covering merges, splits
	// and title-verse offsets that a plain chapter shift cannot express.
	VerseMaps []VerseMap
}

// ChapterShift maps chapters [FromStart, FromEnd] onto chapter+Delta with
// identical verse numbers.
type ChapterShift struct {
	FromStart int
	FromEnd   int
	Delta     int
}

// VerseMap maps the verse span [FromStart, FromEnd] of FromChapter onto
// the span [ToStart, ToEnd] of ToChapter.
//
// A zero FromEnd or ToEnd leaves that side open-ended: verses map by
// constant offset from the span starts. When both sides are bounded and
// the spans have equal length, verses map pairwise by offset; when the
// lengths differ, every source verse corresponds to every target verse in
// the span (a genuine merge/split, many-to-many).
type VerseMap struct {
	FromChapter int
	FromStart   int
	FromEnd     int
	ToChapter   int
	ToStart     int
	ToEnd       int
}

// Validate checks structural sanity of a rule set. It does not try to
// judge the mapping data itself; that is what golden tests are for.
func (rs *RuleSet) Validate() error {
	if rs.Book == "" {
		return fmt.Errorf("rule set: book is required")
	}
	from := ref.Canonical(string(rs.From))
	if from != ref.KJV && from != ref.RST {
		return fmt.Errorf("rule set %s: from must be a known scheme root, got %q", rs.Book, rs.From)
	}
	for i, cs := range rs.ChapterShifts {
		if cs.FromStart < 1 || cs.FromEnd < cs.FromStart {
			return fmt.Errorf("rule set %s: chapterShifts[%d]: bad range [%d, %d]", rs.Book, i, cs.FromStart, cs.FromEnd)
		}
		if cs.Delta == 0 {
			return fmt.Errorf("rule set %s: chapterShifts[%d]: delta must be nonzero", rs.Book, i)
		}
	}
	for i, vm := range rs.VerseMaps {
		if vm.FromChapter < 1 || vm.ToChapter < 1 {
			return fmt.Errorf("rule set %s: verseMaps[%d]: chapters must be positive", rs.Book, i)
		}
		if vm.FromStart < 1 || vm.ToStart < 1 {
			return fmt.Errorf("rule set %s: verseMaps[%d]: span starts must be positive", rs.Book, i)
		}
		if vm.FromEnd != 0 && vm.FromEnd < vm.FromStart {
			return fmt.Errorf("rule set %s: verseMaps[%d]: bad source span [%d, %d]", rs.Book, i, vm.FromStart, vm.FromEnd)
		}
		if vm.ToEnd != 0 && vm.ToEnd < vm.ToStart {
			return fmt.Errorf("rule set %s: verseMaps[%d]: bad target span [%d, %d]", rs.Book, i, vm.ToStart, vm.ToEnd)
		}
		if vm.FromEnd == 0 && vm.ToEnd != 0 {
			return fmt.Errorf("rule set %s: verseMaps[%d]: open source span cannot map to bounded target", rs.Book, i)
		}
	}
	return nil
}
