package annotations

import (
	"sort"
	"sync"

	"github.com/readwell/concord/internal/ref"
)

// Store owns the annotation state of one reader session. It is created
// empty when a session starts and discarded when the session ends;
// durability belongs to the notes backend and the outbox, never to this
// process.
type Store struct {
	mu sync.RWMutex

	hlShared    map[ref.ClusterID]ref.HighlightColor
	notesShared map[ref.ClusterID]string

	// Fallback tiers, keyed by canonical translation then verse key.
	hlPerTx    map[ref.Translation]map[string]ref.HighlightColor
	notesPerTx map[ref.Translation]map[string]string

	noteIDByKey     map[string]string
	noteIDByCluster map[ref.ClusterID]string

	// Cluster ids populated by the most recent successful hydration.
	lastWindow map[ref.ClusterID]struct{}
}

// NewStore creates an empty annotation store.
func NewStore() *Store {
	return &Store{
		hlShared:        make(map[ref.ClusterID]ref.HighlightColor),
		notesShared:     make(map[ref.ClusterID]string),
		hlPerTx:         make(map[ref.Translation]map[string]ref.HighlightColor),
		notesPerTx:      make(map[ref.Translation]map[string]string),
		noteIDByKey:     make(map[string]string),
		noteIDByCluster: make(map[ref.ClusterID]string),
		lastWindow:      make(map[ref.ClusterID]struct{}),
	}
}

// SharedColor returns the cluster-keyed highlight, if set.
func (s *Store) SharedColor(cid ref.ClusterID) (ref.HighlightColor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.hlShared[cid]
	return c, ok
}

// SharedNote returns the cluster-keyed note text, if set.
func (s *Store) SharedNote(cid ref.ClusterID) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.notesShared[cid]
	return n, ok
}

// SetSharedColor records a cluster-keyed highlight. ColorNone clears it.
func (s *Store) SetSharedColor(cid ref.ClusterID, c ref.HighlightColor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c == ref.ColorNone {
		delete(s.hlShared, cid)
		return
	}
	s.hlShared[cid] = c
}

// SetSharedNote records a cluster-keyed note. Empty text clears it.
func (s *Store) SetSharedNote(cid ref.ClusterID, note string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if note == "" {
		delete(s.notesShared, cid)
		return
	}
	s.notesShared[cid] = note
}

// PerTxColor returns the per-translation fallback highlight for a verse key.
func (s *Store) PerTxColor(tx ref.Translation, key string) (ref.HighlightColor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.hlPerTx[tx][key]
	return c, ok
}

// PerTxNote returns the per-translation fallback note for a verse key.
func (s *Store) PerTxNote(tx ref.Translation, key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.notesPerTx[tx][key]
	return n, ok
}

// SetPerTxColor records a fallback highlight. ColorNone clears it.
func (s *Store) SetPerTxColor(tx ref.Translation, key string, c ref.HighlightColor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c == ref.ColorNone {
		delete(s.hlPerTx[tx], key)
		return
	}
	if s.hlPerTx[tx] == nil {
		s.hlPerTx[tx] = make(map[string]ref.HighlightColor)
	}
	s.hlPerTx[tx][key] = c
}

// SetPerTxNote records a fallback note. Empty text clears it.
func (s *Store) SetPerTxNote(tx ref.Translation, key string, note string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if note == "" {
		delete(s.notesPerTx[tx], key)
		return
	}
	if s.notesPerTx[tx] == nil {
		s.notesPerTx[tx] = make(map[string]string)
	}
	s.notesPerTx[tx][key] = note
}

// ClearPerTx drops both fallback entries for a verse key. Hydration calls
// this once a server row covers the verse, so stale fallbacks cannot shadow
// backend truth.
func (s *Store) ClearPerTx(tx ref.Translation, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.hlPerTx[tx], key)
	delete(s.notesPerTx[tx], key)
}

// PerTxColors returns a snapshot of one translation's fallback highlights.
func (s *Store) PerTxColors(tx ref.Translation) map[string]ref.HighlightColor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]ref.HighlightColor, len(s.hlPerTx[tx]))
	for k, v := range s.hlPerTx[tx] {
		out[k] = v
	}
	return out
}

// PerTxNotes returns a snapshot of one translation's fallback notes.
func (s *Store) PerTxNotes(tx ref.Translation) map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.notesPerTx[tx]))
	for k, v := range s.notesPerTx[tx] {
		out[k] = v
	}
	return out
}

// PerTxTranslations returns the translations holding fallback entries.
func (s *Store) PerTxTranslations() []ref.Translation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[ref.Translation]struct{})
	for tx := range s.hlPerTx {
		seen[tx] = struct{}{}
	}
	for tx := range s.notesPerTx {
		seen[tx] = struct{}{}
	}
	out := make([]ref.Translation, 0, len(seen))
	for tx := range seen {
		out = append(out, tx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// NoteID resolves the backend row id for a verse, preferring the
// cluster-keyed index over the verse-keyed one.
func (s *Store) NoteID(cid ref.ClusterID, key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id, ok := s.noteIDByCluster[cid]; ok {
		return id, true
	}
	id, ok := s.noteIDByKey[key]
	return id, ok
}

// SetNoteID records a backend row id under both indexes. Keeping the two
// in lockstep here is what maintains the "same logical row, same remote
// id" invariant.
func (s *Store) SetNoteID(cid ref.ClusterID, key string, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.noteIDByCluster[cid] = id
	s.noteIDByKey[key] = id
}

// DeleteNoteID drops both index entries for a verse.
func (s *Store) DeleteNoteID(cid ref.ClusterID, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.noteIDByCluster, cid)
	delete(s.noteIDByKey, key)
}

// ReplaceNoteID rewrites every index entry holding oldID with newID.
// Used when a pending local id is confirmed by the server after an outbox
// drain.
func (s *Store) ReplaceNoteID(oldID, newID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for cid, id := range s.noteIDByCluster {
		if id == oldID {
			s.noteIDByCluster[cid] = newID
		}
	}
	for key, id := range s.noteIDByKey {
		if id == oldID {
			s.noteIDByKey[key] = newID
		}
	}
}

// CommitWindow installs the cluster set of a freshly hydrated window.
// Clusters present in the previous window but absent from the new one are
// stale (the verses scrolled out of the window or were deleted
// server-side) and their shared entries are purged so they cannot ghost.
func (s *Store) CommitWindow(next map[ref.ClusterID]struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for cid := range s.lastWindow {
		if _, ok := next[cid]; !ok {
			delete(s.hlShared, cid)
			delete(s.notesShared, cid)
			// The row id is as stale as the values; both indexes drop it
			// so a later edit cannot write through against a dead id.
			if id, ok := s.noteIDByCluster[cid]; ok {
				delete(s.noteIDByCluster, cid)
				for key, kid := range s.noteIDByKey {
					if kid == id {
						delete(s.noteIDByKey, key)
					}
				}
			}
		}
	}
	s.lastWindow = next
}

// WindowClusters returns the cluster ids of the last committed window,
// sorted. Mostly useful to tests and the CLI.
func (s *Store) WindowClusters() []ref.ClusterID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ref.ClusterID, 0, len(s.lastWindow))
	for cid := range s.lastWindow {
		out = append(out, cid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
