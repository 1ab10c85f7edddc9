package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/readwell/concord/internal/annotations"
	"github.com/readwell/concord/internal/books"
	"github.com/readwell/concord/internal/notes"
	"github.com/readwell/concord/internal/ref"
	"github.com/readwell/concord/internal/versemap"
)

// fakeAPI implements notes.API over an in-memory row set, with an
// optional offline mode that queues creates under provisional ids.
type fakeAPI struct {
	mu        sync.Mutex
	rows      map[string]notes.RemoteNote
	nextID    int
	offline   bool
	queued    []notes.RemoteNote
	fetchHook func()
	fetchErr  error

	creates int
	updates int
	deletes int
	drains  int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{rows: make(map[string]notes.RemoteNote)}
}

func (f *fakeAPI) seed(n notes.RemoteNote) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[n.ID] = n
}

func (f *fakeAPI) GetNotesForChapterRange(ctx context.Context, translation, book string, fromChapter, toChapter int) ([]notes.RemoteNote, error) {
	if f.fetchHook != nil {
		f.fetchHook()
	}
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []notes.RemoteNote
	for _, n := range f.rows {
		if n.Translation == translation && n.Book == book && n.Chapter >= fromChapter && n.Chapter <= toChapter {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeAPI) Create(ctx context.Context, n notes.RemoteNote) (notes.RemoteNote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	now := time.Now().UTC()
	n.CreatedAt = &now
	n.UpdatedAt = &now
	if f.offline {
		n.ID = notes.PendingID()
		f.queued = append(f.queued, n)
		return n, nil
	}
	f.nextID++
	n.ID = fmt.Sprintf("srv-%d", f.nextID)
	f.rows[n.ID] = n
	return n, nil
}

func (f *fakeAPI) Update(ctx context.Context, n notes.RemoteNote) (notes.RemoteNote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	now := time.Now().UTC()
	n.UpdatedAt = &now
	f.rows[n.ID] = n
	return n, nil
}

func (f *fakeAPI) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	delete(f.rows, id)
	return nil
}

func (f *fakeAPI) DrainOutbox(ctx context.Context) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drains++
	idMap := make(map[string]string)
	if f.offline {
		return idMap, nil
	}
	for _, n := range f.queued {
		pendingID := n.ID
		f.nextID++
		n.ID = fmt.Sprintf("srv-%d", f.nextID)
		f.rows[n.ID] = n
		idMap[pendingID] = n.ID
	}
	f.queued = nil
	return idMap, nil
}

func (f *fakeAPI) PrimeAllCache(ctx context.Context) error { return nil }

func (f *fakeAPI) GetAllNotesFromCache(ctx context.Context) ([]notes.RemoteNote, error) {
	return nil, nil
}

func (f *fakeAPI) OnSynced(fn func()) {}

type fixture struct {
	coord    *Coordinator
	store    *annotations.Store
	resolver *annotations.Resolver
	api      *fakeAPI
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	m, err := versemap.Load()
	require.NoError(t, err)
	catalog, err := books.Load()
	require.NoError(t, err)

	store := annotations.NewStore()
	matcher := func() *versemap.Matcher { return m }
	resolver := annotations.NewResolver(store, matcher)
	api := newFakeAPI()
	coord := NewCoordinator(slog.New(slog.DiscardHandler), store, resolver, api, matcher, catalog)
	return &fixture{coord: coord, store: store, resolver: resolver, api: api}
}

func serverRow(id, translation string, chapter, verse int, color, note string, touched time.Time) notes.RemoteNote {
	return notes.RemoteNote{
		ID:          id,
		UserID:      "u1",
		Translation: translation,
		Book:        "Psalms",
		Chapter:     chapter,
		VerseStart:  verse,
		Color:       color,
		Note:        note,
		UpdatedAt:   &touched,
	}
}

func TestHydrateWindow_SharedAcrossTranslations(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	fx.api.seed(serverRow("r1", "kjv", 10, 4, "yellow", "merged", now))

	require.NoError(t, fx.coord.HydrateWindow(ctx, ref.KJV, "Psalms", 10))

	k := ref.VerseKey{Book: "Psalms", Chapter: 10, Verse: 4}
	assert.Equal(t, ref.ColorYellow, fx.resolver.ColorFor(k, ref.KJV))

	// The same row answers for the rst counterpart verse.
	rk := ref.VerseKey{Book: "Psalms", Chapter: 9, Verse: 25}
	assert.Equal(t, ref.ColorYellow, fx.resolver.ColorFor(rk, ref.RST))
	n, ok := fx.resolver.NoteFor(rk, ref.RST)
	assert.True(t, ok)
	assert.Equal(t, "merged", n)

	id, ok := fx.store.NoteID("Psalms|10|4", k.Key())
	assert.True(t, ok)
	assert.Equal(t, "r1", id)
}

func TestHydrateWindow_CounterpartTranslationRowsIncluded(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	// Saved while reading rst; must surface while reading kjv.
	fx.api.seed(serverRow("r2", "rst", 9, 25, "blue", "", now))

	require.NoError(t, fx.coord.HydrateWindow(ctx, ref.KJV, "Psalms", 10))

	k := ref.VerseKey{Book: "Psalms", Chapter: 10, Verse: 4}
	assert.Equal(t, ref.ColorBlue, fx.resolver.ColorFor(k, ref.KJV))
}

func TestHydrateWindow_LastWriteWins(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	older := time.Now().UTC().Add(-time.Hour)
	newer := time.Now().UTC()

	fx.api.seed(serverRow("r-old", "kjv", 10, 4, "green", "", older))
	fx.api.seed(serverRow("r-new", "kjv", 10, 4, "pink", "", newer))

	require.NoError(t, fx.coord.HydrateWindow(ctx, ref.KJV, "Psalms", 10))

	k := ref.VerseKey{Book: "Psalms", Chapter: 10, Verse: 4}
	assert.Equal(t, ref.ColorPink, fx.resolver.ColorFor(k, ref.KJV))
}

func TestHydrateWindow_UntimestampedRowLoses(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	undated := serverRow("r-undated", "kjv", 10, 4, "orange", "", time.Time{})
	undated.UpdatedAt = nil
	fx.api.seed(undated)
	fx.api.seed(serverRow("r-dated", "kjv", 10, 4, "yellow", "", time.Now().UTC()))

	require.NoError(t, fx.coord.HydrateWindow(ctx, ref.KJV, "Psalms", 10))

	k := ref.VerseKey{Book: "Psalms", Chapter: 10, Verse: 4}
	assert.Equal(t, ref.ColorYellow, fx.resolver.ColorFor(k, ref.KJV))
}

func TestHydrateWindow_VerseRangeExpands(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	end := 6
	row := serverRow("r1", "kjv", 10, 4, "yellow", "", now)
	row.VerseEnd = &end
	fx.api.seed(row)

	require.NoError(t, fx.coord.HydrateWindow(ctx, ref.KJV, "Psalms", 10))

	for v := 4; v <= 6; v++ {
		k := ref.VerseKey{Book: "Psalms", Chapter: 10, Verse: v}
		assert.Equal(t, ref.ColorYellow, fx.resolver.ColorFor(k, ref.KJV), "verse %d", v)
	}
	k := ref.VerseKey{Book: "Psalms", Chapter: 10, Verse: 7}
	assert.Equal(t, ref.ColorNone, fx.resolver.ColorFor(k, ref.KJV))
}

func TestHydrateWindow_EvictsStaleClusters(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	fx.api.seed(serverRow("r1", "kjv", 9, 1, "yellow", "", now))
	fx.api.seed(serverRow("r2", "kjv", 10, 1, "green", "", now))
	require.NoError(t, fx.coord.HydrateWindow(ctx, ref.KJV, "Psalms", 10))

	// r1 disappears server-side (deleted from another device).
	fx.api.mu.Lock()
	delete(fx.api.rows, "r1")
	fx.api.mu.Unlock()

	require.NoError(t, fx.coord.HydrateWindow(ctx, ref.KJV, "Psalms", 10))

	gone := ref.VerseKey{Book: "Psalms", Chapter: 9, Verse: 1}
	kept := ref.VerseKey{Book: "Psalms", Chapter: 10, Verse: 1}
	assert.Equal(t, ref.ColorNone, fx.resolver.ColorFor(gone, ref.KJV))
	assert.Equal(t, ref.ColorGreen, fx.resolver.ColorFor(kept, ref.KJV))
}

func TestHydrateWindow_GenerationGuard(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	fx.api.seed(serverRow("r1", "kjv", 10, 4, "yellow", "", now))
	// The user switches translation mid-fetch.
	fx.api.fetchHook = func() { fx.coord.Bump() }

	err := fx.coord.HydrateWindow(ctx, ref.KJV, "Psalms", 10)
	require.ErrorIs(t, err, ErrStaleGeneration)

	k := ref.VerseKey{Book: "Psalms", Chapter: 10, Verse: 4}
	assert.Equal(t, ref.ColorNone, fx.resolver.ColorFor(k, ref.KJV), "stale results must be discarded")
	assert.Empty(t, fx.store.WindowClusters())
}

func TestHydrateWindow_UnknownBook(t *testing.T) {
	fx := newFixture(t)
	err := fx.coord.HydrateWindow(context.Background(), ref.KJV, "Enoch", 1)
	require.ErrorIs(t, err, ErrUnknownBook)
}

func TestHydrateWindow_FetchFailureKeepsPriorState(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	now := time.Now().UTC()
	fx.api.seed(serverRow("r1", "kjv", 10, 4, "yellow", "", now))
	require.NoError(t, fx.coord.HydrateWindow(ctx, ref.KJV, "Psalms", 10))

	fx.api.fetchErr = errors.New("backend unreachable")
	err := fx.coord.HydrateWindow(ctx, ref.KJV, "Psalms", 10)
	require.Error(t, err)
	assert.True(t, IsHydrationError(err))

	var se *SyncError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, ErrCodeHydration, se.Code)

	// Prior state survives the failed fetch.
	k := ref.VerseKey{Book: "Psalms", Chapter: 10, Verse: 4}
	assert.Equal(t, ref.ColorYellow, fx.resolver.ColorFor(k, ref.KJV))
}

func TestApplyAction_CreateThenClearDeletesRow(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	k := ref.VerseKey{Book: "John", Chapter: 3, Verse: 16}

	fx.coord.ApplyAction(ctx, ref.KJV, k, ActionResult{ColorChanged: true, Color: ref.ColorYellow})
	assert.Equal(t, 1, fx.api.creates)
	assert.Equal(t, ref.ColorYellow, fx.resolver.ColorFor(k, ref.KJV))
	_, ok := fx.store.NoteID("John|3|16", k.Key())
	require.True(t, ok)

	// Clearing the color with no note left removes the backend row.
	fx.coord.ApplyAction(ctx, ref.KJV, k, ActionResult{ColorChanged: true, Color: ref.ColorNone})
	assert.Equal(t, 1, fx.api.deletes)
	assert.Equal(t, ref.ColorNone, fx.resolver.ColorFor(k, ref.KJV))
	_, ok = fx.store.NoteID("John|3|16", k.Key())
	assert.False(t, ok)
	assert.Empty(t, fx.api.rows)
}

func TestApplyAction_ClearColorKeepsRowWithNote(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	k := ref.VerseKey{Book: "John", Chapter: 3, Verse: 16}

	fx.coord.ApplyAction(ctx, ref.KJV, k, ActionResult{
		ColorChanged: true, Color: ref.ColorYellow,
		NoteChanged: true, Note: "so loved",
	})
	fx.coord.ApplyAction(ctx, ref.KJV, k, ActionResult{ColorChanged: true, Color: ref.ColorNone})

	assert.Equal(t, 0, fx.api.deletes)
	assert.Equal(t, 1, fx.api.updates)
	n, ok := fx.resolver.NoteFor(k, ref.KJV)
	assert.True(t, ok)
	assert.Equal(t, "so loved", n)

	id, _ := fx.store.NoteID("John|3|16", k.Key())
	fx.api.mu.Lock()
	row := fx.api.rows[id]
	fx.api.mu.Unlock()
	assert.Equal(t, "", row.Color)
	assert.Equal(t, "so loved", row.Note)
}

func TestApplyAction_MappedVerseGoesShared(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	k := ref.VerseKey{Book: "Psalms", Chapter: 10, Verse: 4}

	fx.coord.ApplyAction(ctx, ref.KJV, k, ActionResult{NoteChanged: true, Note: "before hydration"})

	// Visible from the counterpart translation immediately.
	rk := ref.VerseKey{Book: "Psalms", Chapter: 9, Verse: 25}
	n, ok := fx.resolver.NoteFor(rk, ref.RST)
	assert.True(t, ok)
	assert.Equal(t, "before hydration", n)
}

func TestApplyAction_UnmappedVerseStaysPerTranslation(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	k := ref.VerseKey{Book: "Psalms", Chapter: 3, Verse: 1}

	fx.coord.ApplyAction(ctx, ref.RST, k, ActionResult{ColorChanged: true, Color: ref.ColorBlue})

	assert.Equal(t, ref.ColorBlue, fx.resolver.ColorFor(k, ref.RST))
	// The kjv verse at the same coordinates is untouched.
	assert.Equal(t, ref.ColorNone, fx.resolver.ColorFor(k, ref.KJV))
	// The backend row is still written, under the rst translation.
	assert.Equal(t, 1, fx.api.creates)
}

func TestApplyAction_PendingIDDrainsBeforeEdit(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	k := ref.VerseKey{Book: "John", Chapter: 3, Verse: 16}

	// First edit happens offline: the row gets a provisional id.
	fx.api.offline = true
	fx.coord.ApplyAction(ctx, ref.KJV, k, ActionResult{ColorChanged: true, Color: ref.ColorYellow})
	id, ok := fx.store.NoteID("John|3|16", k.Key())
	require.True(t, ok)
	require.True(t, notes.IsPendingID(id))

	// Second edit happens online: the outbox drains first and the edit
	// lands on the real row.
	fx.api.offline = false
	fx.coord.ApplyAction(ctx, ref.KJV, k, ActionResult{NoteChanged: true, Note: "now online"})

	assert.GreaterOrEqual(t, fx.api.drains, 1)
	id, ok = fx.store.NoteID("John|3|16", k.Key())
	require.True(t, ok)
	assert.False(t, notes.IsPendingID(id))

	fx.api.mu.Lock()
	row := fx.api.rows[id]
	fx.api.mu.Unlock()
	assert.Equal(t, "now online", row.Note)
	assert.Equal(t, "yellow", row.Color)
}

func TestApplyAction_NoopWithoutChanges(t *testing.T) {
	fx := newFixture(t)
	fx.coord.ApplyAction(context.Background(), ref.KJV, ref.VerseKey{Book: "John", Chapter: 3, Verse: 16}, ActionResult{})
	assert.Equal(t, 0, fx.api.creates)
}

func TestDrainAndRefresh(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	fx.api.seed(serverRow("r1", "kjv", 10, 4, "yellow", "", now))
	require.NoError(t, fx.coord.HydrateWindow(ctx, ref.KJV, "Psalms", 10))

	require.True(t, fx.coord.LastSync().IsZero())
	require.NoError(t, fx.coord.DrainAndRefresh(ctx))
	assert.False(t, fx.coord.LastSync().IsZero())

	// A refresh with no prior hydration is a no-op, not an error.
	fx2 := newFixture(t)
	require.NoError(t, fx2.coord.DrainAndRefresh(ctx))
}

func TestHydrateWindow_DegradedWithoutMatcher(t *testing.T) {
	catalog, err := books.Load()
	require.NoError(t, err)

	store := annotations.NewStore()
	matcher := func() *versemap.Matcher { return nil }
	resolver := annotations.NewResolver(store, matcher)
	api := newFakeAPI()
	coord := NewCoordinator(slog.New(slog.DiscardHandler), store, resolver, api, matcher, catalog)

	now := time.Now().UTC()
	api.seed(serverRow("r1", "kjv", 10, 4, "yellow", "", now))

	require.NoError(t, coord.HydrateWindow(context.Background(), ref.KJV, "Psalms", 10))

	// Base-scheme rows cluster without rule tables.
	c, ok := store.SharedColor("Psalms|10|4")
	assert.True(t, ok)
	assert.Equal(t, ref.ColorYellow, c)
}
