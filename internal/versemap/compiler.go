package versemap

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/readwell/concord/internal/ref"
)

// CompileTable parses a CUE value into a RuleSet.
// Uses the CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the table struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`table: psalms: { ... }`)
//	rs, err := CompileTable(v.LookupPath(cue.ParsePath("table.psalms")))
func CompileTable(v cue.Value) (*RuleSet, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	rs := &RuleSet{}

	bookVal := v.LookupPath(cue.ParsePath("book"))
	if !bookVal.Exists() {
		return nil, &CompileError{Field: "book", Message: "book is required", Pos: v.Pos()}
	}
	book, err := bookVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	rs.Book = book

	fromVal := v.LookupPath(cue.ParsePath("from"))
	if !fromVal.Exists() {
		return nil, &CompileError{Field: "from", Message: "from scheme is required", Pos: v.Pos()}
	}
	from, err := fromVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	rs.From = ref.Canonical(from)

	altVal := v.LookupPath(cue.ParsePath("altNumbering"))
	if altVal.Exists() {
		alt, err := altVal.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		rs.AltNumbering = alt
	}

	rs.ChapterShifts, err = parseChapterShifts(v)
	if err != nil {
		return nil, err
	}

	rs.VerseMaps, err = parseVerseMaps(v)
	if err != nil {
		return nil, err
	}

	if err := rs.Validate(); err != nil {
		return nil, &CompileError{Field: "table", Message: err.Error(), Pos: v.Pos()}
	}

	return rs, nil
}

// parseChapterShifts extracts the chapterShifts list, if present.
func parseChapterShifts(v cue.Value) ([]ChapterShift, error) {
	var shifts []ChapterShift

	listVal := v.LookupPath(cue.ParsePath("chapterShifts"))
	if !listVal.Exists() {
		return shifts, nil
	}

	iter, err := listVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	for iter.Next() {
		item := iter.Value()
		var cs ChapterShift
		if cs.FromStart, err = intField(item, "fromStart", 0); err != nil {
			return nil, err
		}
		if cs.FromEnd, err = intField(item, "fromEnd", 0); err != nil {
			return nil, err
		}
		if cs.Delta, err = intField(item, "delta", 0); err != nil {
			return nil, err
		}
		shifts = append(shifts, cs)
	}

	return shifts, nil
}

// parseVerseMaps extracts the verseMaps list, if present.
// Span starts default to 1; span ends default to 0 (open-ended).
func parseVerseMaps(v cue.Value) ([]VerseMap, error) {
	var maps []VerseMap

	listVal := v.LookupPath(cue.ParsePath("verseMaps"))
	if !listVal.Exists() {
		return maps, nil
	}

	iter, err := listVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	for iter.Next() {
		item := iter.Value()
		var vm VerseMap
		if vm.FromChapter, err = intField(item, "fromChapter", 0); err != nil {
			return nil, err
		}
		if vm.FromStart, err = intField(item, "fromStart", 1); err != nil {
			return nil, err
		}
		if vm.FromEnd, err = intField(item, "fromEnd", 0); err != nil {
			return nil, err
		}
		if vm.ToChapter, err = intField(item, "toChapter", 0); err != nil {
			return nil, err
		}
		if vm.ToStart, err = intField(item, "toStart", 1); err != nil {
			return nil, err
		}
		if vm.ToEnd, err = intField(item, "toEnd", 0); err != nil {
			return nil, err
		}
		maps = append(maps, vm)
	}

	return maps, nil
}

// intField reads an optional int field, returning def when absent.
func intField(v cue.Value, name string, def int) (int, error) {
	fieldVal := v.LookupPath(cue.ParsePath(name))
	if !fieldVal.Exists() {
		return def, nil
	}
	n, err := fieldVal.Int64()
	if err != nil {
		return 0, formatCUEError(err)
	}
	return int(n), nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
