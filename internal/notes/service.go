package notes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// API is the surface the sync layer programs against. A Service
// implements it; tests substitute fakes.
type API interface {
	GetNotesForChapterRange(ctx context.Context, translation, book string, fromChapter, toChapter int) ([]RemoteNote, error)
	Create(ctx context.Context, n RemoteNote) (RemoteNote, error)
	Update(ctx context.Context, n RemoteNote) (RemoteNote, error)
	Delete(ctx context.Context, id string) error
	DrainOutbox(ctx context.Context) (map[string]string, error)
	PrimeAllCache(ctx context.Context) error
	GetAllNotesFromCache(ctx context.Context) ([]RemoteNote, error)
	OnSynced(fn func())
}

// Service is the offline-first annotation API: reads come from the
// backend when reachable and from the cache otherwise; writes go
// straight to the backend when reachable and into the outbox otherwise.
type Service struct {
	logger *slog.Logger
	client *Client
	store  *Store
	online func() bool

	mu       sync.Mutex
	userID   string
	onSynced []func()
}

// NewService wires the client, replica store, and connectivity check.
// online must answer cheaply; it is consulted on every operation.
func NewService(logger *slog.Logger, client *Client, store *Store, online func() bool) *Service {
	return &Service{
		logger: logger,
		client: client,
		store:  store,
		online: online,
	}
}

// SetUser scopes subsequent operations to a user id.
func (s *Service) SetUser(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = userID
}

func (s *Service) user() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// OnSynced registers a callback fired after the outbox drains
// successfully. Callbacks run on the draining goroutine.
func (s *Service) OnSynced(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onSynced = append(s.onSynced, fn)
}

func (s *Service) notifySynced() {
	s.mu.Lock()
	fns := append([]func(){}, s.onSynced...)
	s.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// GetNotesForChapterRange returns the rows covering an inclusive chapter
// range. Online it fetches from the backend and refreshes the cache; a
// fetch failure falls back to the cache rather than surfacing an error,
// since stale annotations beat no annotations.
func (s *Service) GetNotesForChapterRange(ctx context.Context, translation, book string, fromChapter, toChapter int) ([]RemoteNote, error) {
	userID := s.user()
	if s.online() {
		rows, err := s.client.ListRange(ctx, userID, translation, book, fromChapter, toChapter)
		if err == nil {
			if cacheErr := s.store.UpsertCached(ctx, rows...); cacheErr != nil {
				s.logger.Warn("cache refresh failed", "error", cacheErr)
			}
			return rows, nil
		}
		s.logger.Warn("backend fetch failed, serving cache", "error", err)
	}
	return s.store.CachedRange(ctx, userID, translation, book, fromChapter, toChapter)
}

// Create inserts a row. Offline, the row gets a provisional id and a
// queued outbox entry; the caller can use the returned row immediately.
func (s *Service) Create(ctx context.Context, n RemoteNote) (RemoteNote, error) {
	n.UserID = s.user()
	if s.online() {
		created, err := s.client.Create(ctx, n)
		if err == nil {
			if cacheErr := s.store.UpsertCached(ctx, created); cacheErr != nil {
				s.logger.Warn("cache write failed", "error", cacheErr)
			}
			return created, nil
		}
		s.logger.Warn("backend create failed, queueing", "error", err)
	}

	now := time.Now().UTC()
	n.ID = PendingID()
	n.CreatedAt = &now
	n.UpdatedAt = &now
	if err := s.store.Enqueue(ctx, OpCreate, n); err != nil {
		return RemoteNote{}, err
	}
	if err := s.store.UpsertCached(ctx, n); err != nil {
		s.logger.Warn("cache write failed", "error", err)
	}
	return n, nil
}

// Update rewrites a row. Offline writes queue behind any earlier queued
// operation on the same row.
func (s *Service) Update(ctx context.Context, n RemoteNote) (RemoteNote, error) {
	n.UserID = s.user()
	if s.online() && !IsPendingID(n.ID) {
		updated, err := s.client.Update(ctx, n)
		if err == nil {
			if cacheErr := s.store.UpsertCached(ctx, updated); cacheErr != nil {
				s.logger.Warn("cache write failed", "error", cacheErr)
			}
			return updated, nil
		}
		s.logger.Warn("backend update failed, queueing", "error", err)
	}

	now := time.Now().UTC()
	n.UpdatedAt = &now
	if err := s.store.Enqueue(ctx, OpUpdate, n); err != nil {
		return RemoteNote{}, err
	}
	if err := s.store.UpsertCached(ctx, n); err != nil {
		s.logger.Warn("cache write failed", "error", err)
	}
	return n, nil
}

// Delete removes a row everywhere: backend (or outbox), and cache.
func (s *Service) Delete(ctx context.Context, id string) error {
	if s.online() && !IsPendingID(id) {
		if err := s.client.Delete(ctx, id); err != nil {
			s.logger.Warn("backend delete failed, queueing", "error", err)
			if qErr := s.store.Enqueue(ctx, OpDelete, RemoteNote{ID: id}); qErr != nil {
				return qErr
			}
		}
	} else {
		if err := s.store.Enqueue(ctx, OpDelete, RemoteNote{ID: id}); err != nil {
			return err
		}
	}
	return s.store.DeleteCached(ctx, id)
}

// DrainOutbox replays queued writes in order against the backend and
// returns the provisional-to-real id mapping for rows created during the
// drain. A transient failure stops the drain; the remaining entries stay
// queued and the mapping accumulated so far is still returned. An op the
// backend rejects outright is dropped instead, so it cannot starve the
// writes queued behind it.
func (s *Service) DrainOutbox(ctx context.Context) (map[string]string, error) {
	ops, err := s.store.Outbox(ctx)
	if err != nil {
		return nil, err
	}
	idMap := make(map[string]string)
	if len(ops) == 0 {
		return idMap, nil
	}

	for _, op := range ops {
		if err := s.replay(ctx, op, idMap); err != nil {
			if replayable(err) {
				return idMap, fmt.Errorf("drain outbox at seq %d: %w", op.Seq, err)
			}
			s.logger.Warn("dropping rejected outbox op",
				"seq", op.Seq, "kind", op.Kind, "note", op.NoteID, "error", err)
		}
		if err := s.store.Dequeue(ctx, op.Seq); err != nil {
			return idMap, err
		}
	}

	s.logger.Info("outbox drained", "ops", len(ops), "created", len(idMap))
	s.notifySynced()
	return idMap, nil
}

func (s *Service) replay(ctx context.Context, op PendingOp, idMap map[string]string) error {
	switch op.Kind {
	case OpCreate:
		pendingID := op.Note.ID
		n := op.Note
		n.ID = ""
		created, err := s.client.Create(ctx, n)
		if err != nil {
			return err
		}
		idMap[pendingID] = created.ID
		if err := s.store.ReplaceCachedID(ctx, pendingID, created.ID); err != nil {
			return err
		}
		if err := s.store.UpsertCached(ctx, created); err != nil {
			return err
		}
		// Later queued ops may still reference the provisional id.
		return s.store.RewriteOutboxID(ctx, pendingID, created.ID)

	case OpUpdate:
		updated, err := s.client.Update(ctx, op.Note)
		if err != nil {
			var se *StatusError
			if errors.As(err, &se) && se.Code == http.StatusNotFound {
				// The row was deleted server-side while this edit sat in
				// the queue. The deletion wins; drop the stale cache copy.
				return s.store.DeleteCached(ctx, op.Note.ID)
			}
			return err
		}
		return s.store.UpsertCached(ctx, updated)

	case OpDelete:
		if err := s.client.Delete(ctx, op.NoteID); err != nil {
			return err
		}
		return s.store.DeleteCached(ctx, op.NoteID)

	default:
		return fmt.Errorf("unknown outbox kind %q", op.Kind)
	}
}

// replayable reports whether a failed replay may succeed on a later
// drain. Network errors and server-side trouble are worth retrying; a
// 4xx rejection is the backend refusing the op itself, and retrying it
// forever would only block everything queued behind it. Timeouts and
// rate limits are the 4xx exceptions.
func replayable(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return true
	}
	switch se.Code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	}
	return se.Code < 400 || se.Code > 499
}

// PrimeAllCache fetches every row for the user and stores it, so a later
// offline session has the full annotation set available.
func (s *Service) PrimeAllCache(ctx context.Context) error {
	if !s.online() {
		return nil
	}
	rows, err := s.client.ListAll(ctx, s.user())
	if err != nil {
		return err
	}
	return s.store.UpsertCached(ctx, rows...)
}

// GetAllNotesFromCache reads the full cached annotation set.
func (s *Service) GetAllNotesFromCache(ctx context.Context) ([]RemoteNote, error) {
	return s.store.AllCached(ctx, s.user())
}
