package reader

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/text/unicode/norm"

	"github.com/readwell/concord/internal/annotations"
	"github.com/readwell/concord/internal/books"
	"github.com/readwell/concord/internal/connectivity"
	"github.com/readwell/concord/internal/notes"
	"github.com/readwell/concord/internal/ref"
	"github.com/readwell/concord/internal/syncer"
	"github.com/readwell/concord/internal/versemap"
)

// userSetter is implemented by backends that scope rows to a user.
type userSetter interface {
	SetUser(userID string)
}

// Session is one reader's annotation session. All methods are safe for
// concurrent use; mutations serialize internally.
type Session struct {
	logger   *slog.Logger
	store    *annotations.Store
	resolver *annotations.Resolver
	coord    *syncer.Coordinator
	api      notes.API
	monitor  *connectivity.Monitor

	matcher atomic.Pointer[versemap.Matcher]

	mu          sync.Mutex
	translation ref.Translation

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSession assembles a session over the given backend API, catalog,
// and connectivity monitor. Rule tables load asynchronously; until they
// finish, resolution runs per-translation only and recovers via a
// promotion sweep once they arrive.
func NewSession(logger *slog.Logger, api notes.API, catalog *books.Catalog, monitor *connectivity.Monitor) *Session {
	s := &Session{
		logger:      logger,
		api:         api,
		monitor:     monitor,
		translation: ref.ServerBase,
	}
	matcherFn := func() *versemap.Matcher { return s.matcher.Load() }
	s.store = annotations.NewStore()
	s.resolver = annotations.NewResolver(s.store, matcherFn)
	s.coord = syncer.NewCoordinator(logger, s.store, s.resolver, api, matcherFn, catalog)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go s.loadMatcher()

	// Values written before the matcher loaded get another chance at a
	// shared home whenever a drain completes.
	api.OnSynced(func() { s.resolver.PromoteLocalToShared() })

	if monitor != nil {
		sub := monitor.Subscribe()
		s.wg.Add(1)
		go s.watchConnectivity(ctx, sub)
	}
	return s
}

func (s *Session) loadMatcher() {
	defer s.wg.Done()
	m, err := versemap.Load()
	if err != nil {
		// The session stays usable: per-translation resolution only.
		s.logger.Error("rule tables failed to load", "error", err)
		return
	}
	s.matcher.Store(m)
	s.resolver.PromoteLocalToShared()
	s.logger.Debug("rule tables loaded", "books", len(m.Books()))
}

func (s *Session) watchConnectivity(ctx context.Context, sub <-chan bool) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case online := <-sub:
			if !online {
				continue
			}
			if err := s.coord.DrainAndRefresh(ctx); err != nil {
				s.logger.Warn("post-reconnect sync failed", "error", err)
			}
		}
	}
}

// SetTranslation switches the displayed translation. Any in-flight
// hydration for the previous translation is invalidated.
func (s *Session) SetTranslation(tx ref.Translation) {
	s.mu.Lock()
	s.translation = ref.Canonical(string(tx))
	s.mu.Unlock()
	s.coord.Bump()
}

// Translation returns the active canonical translation.
func (s *Session) Translation() ref.Translation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.translation
}

// SetUser scopes the session to a user, invalidates in-flight work, and
// kicks off a drain-and-refresh so the previous user's queued writes
// land before the new user's state loads.
func (s *Session) SetUser(ctx context.Context, userID string) {
	if us, ok := s.api.(userSetter); ok {
		us.SetUser(userID)
	}
	s.coord.Bump()
	if err := s.coord.DrainAndRefresh(ctx); err != nil {
		s.logger.Warn("post-switch sync failed", "error", err)
	}
}

// ColorFor resolves the effective highlight for a verse in the active
// translation.
func (s *Session) ColorFor(k ref.VerseKey) ref.HighlightColor {
	return s.resolver.ColorFor(k, s.Translation())
}

// NoteFor resolves the effective note for a verse in the active
// translation.
func (s *Session) NoteFor(k ref.VerseKey) (string, bool) {
	return s.resolver.NoteFor(k, s.Translation())
}

// Counterparts returns a verse's cross-translation counterparts, or nil
// while the rule tables are loading.
func (s *Session) Counterparts(k ref.VerseKey) []ref.VerseKey {
	return s.resolver.Counterparts(k, s.Translation())
}

// ApplyAction records one edit against the active translation. Note
// text normalizes to NFC so the same characters typed on different
// platforms compare equal.
func (s *Session) ApplyAction(ctx context.Context, k ref.VerseKey, action syncer.ActionResult) {
	if action.NoteChanged {
		action.Note = norm.NFC.String(action.Note)
	}
	s.coord.ApplyAction(ctx, s.Translation(), k, action)
}

// HydrateWindow loads annotations for the chapter window around the
// given position and sweeps newly mappable local values into the shared
// tier.
func (s *Session) HydrateWindow(ctx context.Context, book string, chapter int) error {
	if err := s.coord.HydrateWindow(ctx, s.Translation(), book, chapter); err != nil {
		return err
	}
	s.resolver.PromoteLocalToShared()
	return nil
}

// Refresh drains the outbox and re-runs the last hydration.
func (s *Session) Refresh(ctx context.Context) error {
	return s.coord.DrainAndRefresh(ctx)
}

// Close stops the session's background work. The in-memory state is
// discarded; durable state lives in the backend and the outbox.
func (s *Session) Close() {
	s.cancel()
	s.wg.Wait()
}
