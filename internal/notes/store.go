package notes

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added range index on cached_notes
const currentSchemaVersion = 1

// Store is the on-disk offline replica: a read cache of backend rows
// plus a durable outbox of writes queued while offline.
//
// SQLite in WAL mode; a single connection avoids SQLITE_BUSY since the
// session is the only writer anyway.
type Store struct {
	db *sql.DB
}

// OpenStore creates or opens the replica database at path.
// Idempotent; pragmas and migrations apply on every open.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version >= currentSchemaVersion {
		return nil
	}
	// v0 -> v1 added the range index on cached_notes; it ships in
	// schema.sql with IF NOT EXISTS, so the exec above created it.
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

const timeLayout = time.RFC3339Nano

func timePtrToString(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

func stringToTimePtr(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(timeLayout, s.String)
	if err != nil {
		return nil
	}
	return &t
}

// UpsertCached writes backend rows into the read cache, replacing any
// prior version of the same row.
func (s *Store) UpsertCached(ctx context.Context, rows ...RemoteNote) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("upsert cache: %w", err)
	}
	defer tx.Rollback()

	for _, n := range rows {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO cached_notes
			(id, user_id, translation, book, chapter, verse_start, verse_end, color, note, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				user_id = excluded.user_id,
				translation = excluded.translation,
				book = excluded.book,
				chapter = excluded.chapter,
				verse_start = excluded.verse_start,
				verse_end = excluded.verse_end,
				color = excluded.color,
				note = excluded.note,
				created_at = excluded.created_at,
				updated_at = excluded.updated_at
		`,
			n.ID, n.UserID, n.Translation, n.Book, n.Chapter,
			n.VerseStart, n.VerseEnd, n.Color, n.Note,
			timePtrToString(n.CreatedAt), timePtrToString(n.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("upsert cache row %s: %w", n.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("upsert cache: %w", err)
	}
	return nil
}

// DeleteCached removes one row from the read cache.
func (s *Store) DeleteCached(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cached_notes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete cache row %s: %w", id, err)
	}
	return nil
}

// ReplaceCachedID rewrites a provisional row id with the
// backend-assigned one after an outbox drain.
func (s *Store) ReplaceCachedID(ctx context.Context, oldID, newID string) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE cached_notes SET id = ? WHERE id = ?`, newID, oldID); err != nil {
		return fmt.Errorf("replace cache id %s: %w", oldID, err)
	}
	return nil
}

// CachedRange reads cached rows for one user, translation, and book over
// an inclusive chapter range, ordered by chapter then verse.
func (s *Store) CachedRange(ctx context.Context, userID, translation, book string, fromChapter, toChapter int) ([]RemoteNote, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, translation, book, chapter, verse_start, verse_end, color, note, created_at, updated_at
		FROM cached_notes
		WHERE user_id = ? AND translation = ? AND book = ? AND chapter BETWEEN ? AND ?
		ORDER BY chapter, verse_start
	`, userID, translation, book, fromChapter, toChapter)
	if err != nil {
		return nil, fmt.Errorf("read cache range: %w", err)
	}
	defer rows.Close()
	return scanNotes(rows)
}

// AllCached reads every cached row for one user.
func (s *Store) AllCached(ctx context.Context, userID string) ([]RemoteNote, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, translation, book, chapter, verse_start, verse_end, color, note, created_at, updated_at
		FROM cached_notes
		WHERE user_id = ?
		ORDER BY book, chapter, verse_start
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("read cache: %w", err)
	}
	defer rows.Close()
	return scanNotes(rows)
}

func scanNotes(rows *sql.Rows) ([]RemoteNote, error) {
	var out []RemoteNote
	for rows.Next() {
		var (
			n        RemoteNote
			verseEnd sql.NullInt64
			created  sql.NullString
			updated  sql.NullString
		)
		if err := rows.Scan(&n.ID, &n.UserID, &n.Translation, &n.Book, &n.Chapter,
			&n.VerseStart, &verseEnd, &n.Color, &n.Note, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan cache row: %w", err)
		}
		if verseEnd.Valid {
			v := int(verseEnd.Int64)
			n.VerseEnd = &v
		}
		n.CreatedAt = stringToTimePtr(created)
		n.UpdatedAt = stringToTimePtr(updated)
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan cache rows: %w", err)
	}
	return out, nil
}

// OpKind classifies an outbox entry.
type OpKind string

const (
	OpCreate OpKind = "create"
	OpUpdate OpKind = "update"
	OpDelete OpKind = "delete"
)

// PendingOp is one queued offline write.
type PendingOp struct {
	Seq      int64
	Kind     OpKind
	NoteID   string
	Note     RemoteNote
	QueuedAt time.Time
}

// Enqueue appends a write to the outbox. For deletes the note payload
// only needs the id.
func (s *Store) Enqueue(ctx context.Context, kind OpKind, n RemoteNote) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", kind, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO outbox (kind, note_id, payload, queued_at)
		VALUES (?, ?, ?, ?)
	`, string(kind), n.ID, string(payload), time.Now().UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("enqueue %s for %s: %w", kind, n.ID, err)
	}
	return nil
}

// Outbox returns all queued writes in insertion order.
func (s *Store) Outbox(ctx context.Context) ([]PendingOp, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, kind, note_id, payload, queued_at
		FROM outbox
		ORDER BY seq
	`)
	if err != nil {
		return nil, fmt.Errorf("read outbox: %w", err)
	}
	defer rows.Close()

	var out []PendingOp
	for rows.Next() {
		var (
			op       PendingOp
			kind     string
			payload  string
			queuedAt string
		)
		if err := rows.Scan(&op.Seq, &kind, &op.NoteID, &payload, &queuedAt); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		op.Kind = OpKind(kind)
		if err := json.Unmarshal([]byte(payload), &op.Note); err != nil {
			return nil, fmt.Errorf("decode outbox row %d: %w", op.Seq, err)
		}
		if t, err := time.Parse(timeLayout, queuedAt); err == nil {
			op.QueuedAt = t
		}
		out = append(out, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan outbox rows: %w", err)
	}
	return out, nil
}

// Dequeue removes one replayed entry.
func (s *Store) Dequeue(ctx context.Context, seq int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM outbox WHERE seq = ?`, seq); err != nil {
		return fmt.Errorf("dequeue %d: %w", seq, err)
	}
	return nil
}

// RewriteOutboxID substitutes a backend-assigned id for a provisional
// one in every remaining outbox entry. Later updates or deletes queued
// against the provisional id then replay against the real row.
func (s *Store) RewriteOutboxID(ctx context.Context, oldID, newID string) error {
	rows, err := s.db.QueryContext(ctx, `SELECT seq, payload FROM outbox WHERE note_id = ?`, oldID)
	if err != nil {
		return fmt.Errorf("rewrite outbox id: %w", err)
	}
	type entry struct {
		seq     int64
		payload string
	}
	var entries []entry
	for rows.Next() {
		var e entry
		if err := rows.Scan(&e.seq, &e.payload); err != nil {
			rows.Close()
			return fmt.Errorf("rewrite outbox id: %w", err)
		}
		entries = append(entries, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("rewrite outbox id: %w", err)
	}

	for _, e := range entries {
		var n RemoteNote
		if err := json.Unmarshal([]byte(e.payload), &n); err != nil {
			return fmt.Errorf("rewrite outbox id %d: %w", e.seq, err)
		}
		n.ID = newID
		payload, err := json.Marshal(n)
		if err != nil {
			return fmt.Errorf("rewrite outbox id %d: %w", e.seq, err)
		}
		if _, err := s.db.ExecContext(ctx, `UPDATE outbox SET note_id = ?, payload = ? WHERE seq = ?`, newID, string(payload), e.seq); err != nil {
			return fmt.Errorf("rewrite outbox id %d: %w", e.seq, err)
		}
	}
	return nil
}

// OutboxLen returns the number of queued writes.
func (s *Store) OutboxLen(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count outbox: %w", err)
	}
	return n, nil
}
