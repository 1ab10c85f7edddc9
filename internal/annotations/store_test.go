package annotations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/readwell/concord/internal/ref"
)

func TestStore_SharedRoundTrip(t *testing.T) {
	s := NewStore()
	cid := ref.ClusterID("Psalms|10|4")

	s.SetSharedColor(cid, ref.ColorYellow)
	s.SetSharedNote(cid, "selah")

	c, ok := s.SharedColor(cid)
	assert.True(t, ok)
	assert.Equal(t, ref.ColorYellow, c)

	n, ok := s.SharedNote(cid)
	assert.True(t, ok)
	assert.Equal(t, "selah", n)
}

func TestStore_SentinelsClear(t *testing.T) {
	s := NewStore()
	cid := ref.ClusterID("John|3|16")

	s.SetSharedColor(cid, ref.ColorGreen)
	s.SetSharedColor(cid, ref.ColorNone)
	_, ok := s.SharedColor(cid)
	assert.False(t, ok)

	s.SetSharedNote(cid, "note")
	s.SetSharedNote(cid, "")
	_, ok = s.SharedNote(cid)
	assert.False(t, ok)

	s.SetPerTxColor(ref.KJV, "John|3|16", ref.ColorBlue)
	s.SetPerTxColor(ref.KJV, "John|3|16", ref.ColorNone)
	_, ok = s.PerTxColor(ref.KJV, "John|3|16")
	assert.False(t, ok)
}

func TestStore_NoteID_ClusterWinsOverKey(t *testing.T) {
	s := NewStore()
	cid := ref.ClusterID("Psalms|10|4")

	s.mu.Lock()
	s.noteIDByKey["Psalms|10|4"] = "key-id"
	s.noteIDByCluster[cid] = "cluster-id"
	s.mu.Unlock()

	id, ok := s.NoteID(cid, "Psalms|10|4")
	assert.True(t, ok)
	assert.Equal(t, "cluster-id", id)
}

func TestStore_SetNoteID_KeepsIndexesInLockstep(t *testing.T) {
	s := NewStore()
	cid := ref.ClusterID("Psalms|10|4")

	s.SetNoteID(cid, "Psalms|10|4", "r1")

	id, ok := s.NoteID(cid, "irrelevant")
	assert.True(t, ok)
	assert.Equal(t, "r1", id)

	id, ok = s.NoteID("other-cluster", "Psalms|10|4")
	assert.True(t, ok)
	assert.Equal(t, "r1", id)

	s.DeleteNoteID(cid, "Psalms|10|4")
	_, ok = s.NoteID(cid, "Psalms|10|4")
	assert.False(t, ok)
}

func TestStore_ReplaceNoteID(t *testing.T) {
	s := NewStore()
	s.SetNoteID("c1", "k1", "pending-abc")
	s.SetNoteID("c2", "k2", "r2")

	s.ReplaceNoteID("pending-abc", "r9")

	id, _ := s.NoteID("c1", "k1")
	assert.Equal(t, "r9", id)
	id, _ = s.NoteID("c2", "k2")
	assert.Equal(t, "r2", id)
}

func TestStore_CommitWindow_EvictsStaleClusters(t *testing.T) {
	s := NewStore()
	for _, cid := range []ref.ClusterID{"A", "B", "C"} {
		s.SetSharedColor(cid, ref.ColorYellow)
		s.SetSharedNote(cid, "note "+string(cid))
	}
	s.CommitWindow(map[ref.ClusterID]struct{}{"A": {}, "B": {}, "C": {}})

	s.SetSharedColor("D", ref.ColorGreen)
	s.CommitWindow(map[ref.ClusterID]struct{}{"B": {}, "C": {}, "D": {}})

	_, ok := s.SharedColor("A")
	assert.False(t, ok, "stale cluster A must be purged")
	_, ok = s.SharedNote("A")
	assert.False(t, ok)

	for _, cid := range []ref.ClusterID{"B", "C", "D"} {
		_, ok := s.SharedColor(cid)
		assert.True(t, ok, "cluster %s must survive", cid)
	}

	assert.Equal(t, []ref.ClusterID{"B", "C", "D"}, s.WindowClusters())
}

func TestStore_CommitWindow_EvictsStaleNoteIDs(t *testing.T) {
	s := NewStore()
	s.SetNoteID("A", "Psalms|10|4", "srv-1")
	s.SetNoteID("B", "Psalms|10|5", "srv-2")
	s.CommitWindow(map[ref.ClusterID]struct{}{"A": {}, "B": {}})

	s.CommitWindow(map[ref.ClusterID]struct{}{"B": {}})

	_, ok := s.NoteID("A", "Psalms|10|4")
	assert.False(t, ok, "evicted cluster must not keep handing out its row id")

	id, ok := s.NoteID("B", "Psalms|10|5")
	require.True(t, ok)
	assert.Equal(t, "srv-2", id)
}

func TestStore_ClearPerTx(t *testing.T) {
	s := NewStore()
	s.SetPerTxColor(ref.KJV, "John|3|16", ref.ColorPink)
	s.SetPerTxNote(ref.KJV, "John|3|16", "note")

	s.ClearPerTx(ref.KJV, "John|3|16")

	_, ok := s.PerTxColor(ref.KJV, "John|3|16")
	assert.False(t, ok)
	_, ok = s.PerTxNote(ref.KJV, "John|3|16")
	assert.False(t, ok)
}

func TestStore_PerTxTranslations(t *testing.T) {
	s := NewStore()
	s.SetPerTxColor(ref.RST, "Psalms|5|1", ref.ColorBlue)
	s.SetPerTxNote(ref.KJV, "John|3|16", "note")

	assert.Equal(t, []ref.Translation{ref.KJV, ref.RST}, s.PerTxTranslations())
}
