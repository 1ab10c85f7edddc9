package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/readwell/concord/internal/annotations"
	"github.com/readwell/concord/internal/books"
	"github.com/readwell/concord/internal/notes"
	"github.com/readwell/concord/internal/ref"
)

// ActionResult describes one edit coming out of the annotation UI: which
// of the two fields changed and their new values. Color ColorNone or an
// empty Note mean "cleared".
type ActionResult struct {
	ColorChanged bool
	Color        ref.HighlightColor
	NoteChanged  bool
	Note         string
}

// Coordinator owns the traffic between the backend and the session
// store. All entry points are safe for concurrent use, but the intended
// shape is a single caller: the reader session.
type Coordinator struct {
	logger   *slog.Logger
	store    *annotations.Store
	resolver *annotations.Resolver
	api      notes.API
	matcher  annotations.MatcherFunc
	catalog  *books.Catalog

	generation atomic.Uint64

	mu       sync.Mutex
	lastReq  *hydrateReq
	lastSync time.Time
}

type hydrateReq struct {
	tx      ref.Translation
	book    string
	chapter int
}

// NewCoordinator wires the session store, resolver, backend API, and
// book catalog together. matcher may return nil until rule tables load.
func NewCoordinator(logger *slog.Logger, store *annotations.Store, resolver *annotations.Resolver, api notes.API, matcher annotations.MatcherFunc, catalog *books.Catalog) *Coordinator {
	return &Coordinator{
		logger:   logger,
		store:    store,
		resolver: resolver,
		api:      api,
		matcher:  matcher,
		catalog:  catalog,
	}
}

// Bump advances the generation, invalidating any in-flight hydration.
// Called on translation or user switches.
func (c *Coordinator) Bump() {
	c.generation.Add(1)
}

// LastSync returns when the outbox last drained successfully, or the
// zero time if it never has.
func (c *Coordinator) LastSync() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSync
}

// HydrateWindow loads backend rows for the chapter window around the
// given position into the session store and commits the window, evicting
// shared entries for clusters that fell out of it.
//
// Rows are fetched before any state is touched; if the generation moves
// during the fetch the results are thrown away and ErrStaleGeneration
// returned.
func (c *Coordinator) HydrateWindow(ctx context.Context, tx ref.Translation, book string, chapter int) error {
	canonical := ref.Canonical(string(tx))
	chapters, ok := c.catalog.ChapterCount(book)
	if !ok {
		return fmt.Errorf("hydrate %s: %w", book, ErrUnknownBook)
	}

	from := chapter - 1
	if from < 1 {
		from = 1
	}
	to := chapter + 1
	if to > chapters {
		to = chapters
	}

	gen := c.generation.Load()

	rows, err := c.api.GetNotesForChapterRange(ctx, string(canonical), book, from, to)
	if err != nil {
		return &SyncError{
			Code: ErrCodeHydration,
			Err:  fmt.Errorf("hydrate %s %s %d: %w", canonical, book, chapter, err),
		}
	}

	// Rows saved under the other numbering scheme converge on the same
	// clusters, so the counterpart translation's window is fetched too.
	// Chapter numbers differ by at most one between the schemes, so the
	// window widens by one on each side to be sure of coverage.
	var otherRows []notes.RemoteNote
	m := c.matcher()
	if m != nil {
		other := canonical.Other()
		oFrom := from - 1
		if oFrom < 1 {
			oFrom = 1
		}
		oTo := to + 1
		if oTo > chapters {
			oTo = chapters
		}
		otherRows, err = c.api.GetNotesForChapterRange(ctx, string(other), book, oFrom, oTo)
		if err != nil {
			// Half a window beats none; the active translation's rows
			// are already in hand.
			c.logger.Warn("counterpart window fetch failed", "translation", other, "error", err)
			otherRows = nil
		}
	}

	if c.generation.Load() != gen {
		return ErrStaleGeneration
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation.Load() != gen {
		return ErrStaleGeneration
	}

	tagged := make([]taggedRow, 0, len(rows)+len(otherRows))
	for _, row := range rows {
		tagged = append(tagged, taggedRow{tx: canonical, row: row})
	}
	if m != nil {
		for _, row := range otherRows {
			tagged = append(tagged, taggedRow{tx: canonical.Other(), row: row})
		}
	}

	next := make(map[ref.ClusterID]struct{})
	c.applyRows(tagged, next)
	c.store.CommitWindow(next)
	c.lastReq = &hydrateReq{tx: canonical, book: book, chapter: chapter}

	c.logger.Debug("window hydrated",
		"translation", canonical, "book", book, "chapters", fmt.Sprintf("%d-%d", from, to),
		"rows", len(rows)+len(otherRows), "clusters", len(next))
	return nil
}

type taggedRow struct {
	tx  ref.Translation
	row notes.RemoteNote
}

// applyRows writes backend rows into the store, last-write-wins across
// both translations. Caller holds c.mu.
func (c *Coordinator) applyRows(rows []taggedRow, next map[ref.ClusterID]struct{}) {
	m := c.matcher()

	// Ascending by timestamp so the newest row overwrites on collision.
	// Untimestamped rows sort as zero time and lose to anything dated.
	sorted := make([]taggedRow, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].row.LastTouched().Before(sorted[j].row.LastTouched())
	})

	for _, tr := range sorted {
		row := tr.row
		start, end := row.Verses()
		for v := start; v <= end; v++ {
			k := ref.VerseKey{Book: row.Book, Chapter: row.Chapter, Verse: v}

			var cid ref.ClusterID
			switch {
			case m != nil:
				cid = m.ClusterID(tr.tx, k)
			case tr.tx == ref.ServerBase:
				// Base-scheme cluster ids need no rule tables.
				cid = ref.BaseCluster(k)
			default:
				cid = ref.UnmappedCluster(tr.tx, k)
			}
			next[cid] = struct{}{}

			if color, err := ref.ParseColor(row.Color); err == nil && color != ref.ColorNone {
				c.store.SetSharedColor(cid, color)
			}
			if row.Note != "" {
				c.store.SetSharedNote(cid, row.Note)
			}
			c.store.SetNoteID(cid, k.Key(), row.ID)
			// Backend truth covers this verse now; a stale local
			// fallback must not shadow it.
			c.store.ClearPerTx(tr.tx, k.Key())
		}
	}
}

// Rehydrate re-runs the last hydration, if any. Used after an outbox
// drain or a connectivity flip to pick up backend-side changes.
func (c *Coordinator) Rehydrate(ctx context.Context) error {
	c.mu.Lock()
	req := c.lastReq
	c.mu.Unlock()
	if req == nil {
		return nil
	}
	return c.HydrateWindow(ctx, req.tx, req.book, req.chapter)
}

// ApplyAction records one edit. The in-memory store updates
// synchronously and unconditionally; the backend write-through is
// fail-soft, so a reachability problem queues the write instead of
// surfacing.
func (c *Coordinator) ApplyAction(ctx context.Context, tx ref.Translation, k ref.VerseKey, action ActionResult) {
	if !action.ColorChanged && !action.NoteChanged {
		return
	}
	canonical := ref.Canonical(string(tx))

	c.mu.Lock()
	cid, shared := c.placement(canonical, k)
	if action.ColorChanged {
		if shared {
			c.store.SetSharedColor(cid, action.Color)
		} else {
			c.store.SetPerTxColor(canonical, k.Key(), action.Color)
		}
	}
	if action.NoteChanged {
		if shared {
			c.store.SetSharedNote(cid, action.Note)
		} else {
			c.store.SetPerTxNote(canonical, k.Key(), action.Note)
		}
	}
	c.mu.Unlock()

	if err := c.writeThrough(ctx, canonical, k, cid, action); err != nil {
		werr := &SyncError{Code: ErrCodeWriteThrough, Verse: k.String(), Err: err}
		c.logger.Warn("write-through failed", "error", werr)
	}
}

// placement decides where an edit lands: a shared cluster when the verse
// has a known cross-translation counterpart, the per-translation tier
// otherwise. Caller holds c.mu.
func (c *Coordinator) placement(tx ref.Translation, k ref.VerseKey) (ref.ClusterID, bool) {
	if m := c.matcher(); m != nil && m.ExistsInOther(tx, k) {
		return m.ClusterID(tx, k), true
	}
	return ref.UnmappedCluster(tx, k), false
}

// writeThrough pushes one edit to the backend, creating, updating, or
// deleting the underlying row as needed.
func (c *Coordinator) writeThrough(ctx context.Context, tx ref.Translation, k ref.VerseKey, cid ref.ClusterID, action ActionResult) error {
	id, ok := c.store.NoteID(cid, k.Key())

	// A provisional id means the row only exists in the outbox. Try to
	// drain so the edit lands on the real row; if the drain fails the
	// edit queues against the provisional id, which the eventual drain
	// rewrites.
	if ok && notes.IsPendingID(id) {
		if idMap, err := c.api.DrainOutbox(ctx); err == nil {
			c.adoptIDs(idMap)
			if newID, remapped := idMap[id]; remapped {
				id = newID
			}
		} else {
			perr := &SyncError{Code: ErrCodePendingID, Verse: k.String(), Err: err}
			c.logger.Debug("outbox drain deferred", "error", perr)
		}
	}

	// The row's effective content after this edit.
	color := c.resolver.ColorFor(k, tx)
	note, _ := c.resolver.NoteFor(k, tx)

	if !ok {
		if color == ref.ColorNone && note == "" {
			return nil
		}
		created, err := c.api.Create(ctx, notes.RemoteNote{
			Translation: string(tx),
			Book:        k.Book,
			Chapter:     k.Chapter,
			VerseStart:  k.Verse,
			Color:       color.String(),
			Note:        note,
		})
		if err != nil {
			return err
		}
		c.store.SetNoteID(cid, k.Key(), created.ID)
		return nil
	}

	if color == ref.ColorNone && note == "" {
		if err := c.api.Delete(ctx, id); err != nil {
			return err
		}
		c.store.DeleteNoteID(cid, k.Key())
		return nil
	}

	_, err := c.api.Update(ctx, notes.RemoteNote{
		ID:          id,
		Translation: string(tx),
		Book:        k.Book,
		Chapter:     k.Chapter,
		VerseStart:  k.Verse,
		Color:       color.String(),
		Note:        note,
	})
	return err
}

// DrainAndRefresh drains the outbox, adopts any new row ids, re-primes
// the offline cache, re-runs the last hydration, and stamps the sync
// time. Called when connectivity returns, on explicit refresh, and on
// user switches.
func (c *Coordinator) DrainAndRefresh(ctx context.Context) error {
	idMap, err := c.api.DrainOutbox(ctx)
	if err != nil {
		return fmt.Errorf("drain outbox: %w", err)
	}
	c.adoptIDs(idMap)

	if err := c.api.PrimeAllCache(ctx); err != nil {
		// Priming is best-effort; the windowed fetch below is what the
		// reader actually sees.
		c.logger.Warn("cache prime failed", "error", err)
	}

	if err := c.Rehydrate(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	c.lastSync = time.Now().UTC()
	c.mu.Unlock()
	return nil
}

func (c *Coordinator) adoptIDs(idMap map[string]string) {
	for oldID, newID := range idMap {
		c.store.ReplaceNoteID(oldID, newID)
	}
}
