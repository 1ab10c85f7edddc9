package ref

import (
	"fmt"
	"strconv"
	"strings"
)

// VerseKey identifies a single verse in a given translation's numbering
// scheme. Equality is by value; the zero value is not a valid key.
type VerseKey struct {
	Book    string
	Chapter int
	Verse   int
}

// Key returns the canonical "Book|chapter|verse" string form used as a map
// key throughout the annotation state.
func (k VerseKey) Key() string {
	return k.Book + "|" + strconv.Itoa(k.Chapter) + "|" + strconv.Itoa(k.Verse)
}

// String renders the key for logs and CLI output ("Psalms 9:22").
func (k VerseKey) String() string {
	return fmt.Sprintf("%s %d:%d", k.Book, k.Chapter, k.Verse)
}

// ParseKey parses the "Book|chapter|verse" form produced by Key.
func ParseKey(s string) (VerseKey, error) {
	parts := strings.Split(s, "|")
	if len(parts) != 3 {
		return VerseKey{}, fmt.Errorf("parse verse key %q: want Book|chapter|verse", s)
	}
	chapter, err := strconv.Atoi(parts[1])
	if err != nil {
		return VerseKey{}, fmt.Errorf("parse verse key %q: chapter: %w", s, err)
	}
	verse, err := strconv.Atoi(parts[2])
	if err != nil {
		return VerseKey{}, fmt.Errorf("parse verse key %q: verse: %w", s, err)
	}
	if parts[0] == "" || chapter < 1 || verse < 1 {
		return VerseKey{}, fmt.Errorf("parse verse key %q: out of range", s)
	}
	return VerseKey{Book: parts[0], Chapter: chapter, Verse: verse}, nil
}

// ClusterID names the canonical cross-translation group a verse belongs to.
// For verses reachable in the server base numbering it is the base-scheme
// "Book|chapter|verse" key; verses with no base-scheme counterpart get a
// scheme-prefixed id so they remain distinct and stable.
type ClusterID string

// BaseCluster returns the cluster id for a verse already expressed in the
// server base numbering. No rule data is needed for this direction, which
// is what lets hydration run before the verse matcher has loaded.
func BaseCluster(k VerseKey) ClusterID {
	return ClusterID(k.Key())
}

// UnmappedCluster returns a stable cluster id for a verse in an alternate
// scheme that has no base-scheme counterpart.
func UnmappedCluster(tx Translation, k VerseKey) ClusterID {
	return ClusterID(string(tx) + ":" + k.Key())
}
