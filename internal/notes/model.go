package notes

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// RemoteNote is one annotation row as the backend stores it. A row
// carries a highlight color, note text, or both; Color is the wire name
// of the color and empty means no highlight. VerseEnd is nil for
// single-verse rows.
type RemoteNote struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Translation string     `json:"translation"`
	Book        string     `json:"book"`
	Chapter     int        `json:"chapter"`
	VerseStart  int        `json:"verse_start"`
	VerseEnd    *int       `json:"verse_end,omitempty"`
	Color       string     `json:"color,omitempty"`
	Note        string     `json:"note,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

// Verses returns the inclusive verse span of the row.
func (n RemoteNote) Verses() (int, int) {
	if n.VerseEnd == nil || *n.VerseEnd < n.VerseStart {
		return n.VerseStart, n.VerseStart
	}
	return n.VerseStart, *n.VerseEnd
}

// LastTouched returns the row's ordering timestamp for conflict
// resolution: updated-at when present, else created-at, else the zero
// time so untimestamped rows sort first and lose to anything dated.
func (n RemoteNote) LastTouched() time.Time {
	if n.UpdatedAt != nil {
		return *n.UpdatedAt
	}
	if n.CreatedAt != nil {
		return *n.CreatedAt
	}
	return time.Time{}
}

const pendingPrefix = "pending-"

// PendingID mints a provisional row id for a write made while offline.
func PendingID() string {
	return pendingPrefix + uuid.Must(uuid.NewV7()).String()
}

// IsPendingID reports whether an id is provisional rather than
// backend-assigned.
func IsPendingID(id string) bool {
	return strings.HasPrefix(id, pendingPrefix)
}
