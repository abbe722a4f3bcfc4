package store_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pairdb/hintmgr/internal/model"
	"github.com/pairdb/hintmgr/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hints.db")
	s, err := store.Open(path, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newHint(targetID uuid.UUID) model.Hint {
	hintID, _ := uuid.NewUUID()
	return model.Hint{
		HintKey: model.HintKey{
			TargetID:       targetID,
			HintID:         hintID,
			MessageVersion: 1,
		},
		MutationBytes: []byte("payload"),
		WritetimeMS:   time.Now().UnixMilli(),
		TTLSeconds:    3600,
	}
}

func TestStore_InsertAndScan(t *testing.T) {
	s := openTestStore(t)
	target := uuid.New()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Insert(newHint(target)))
	}

	page, err := s.Scan(target, 2, nil)
	require.NoError(t, err)
	assert.Len(t, page.Rows, 2)
	assert.False(t, page.EndOfScan)

	page2, err := s.Scan(target, 10, page.NextCursor)
	require.NoError(t, err)
	assert.Len(t, page2.Rows, 3)
	assert.True(t, page2.EndOfScan)
}

func TestStore_ScanIsolatesByTarget(t *testing.T) {
	s := openTestStore(t)
	targetA := uuid.New()
	targetB := uuid.New()

	require.NoError(t, s.Insert(newHint(targetA)))
	require.NoError(t, s.Insert(newHint(targetB)))

	page, err := s.Scan(targetA, 10, nil)
	require.NoError(t, err)
	require.Len(t, page.Rows, 1)
	assert.Equal(t, targetA, page.Rows[0].TargetID)
}

func TestStore_DeleteIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	target := uuid.New()
	h := newHint(target)
	require.NoError(t, s.Insert(h))

	require.NoError(t, s.Delete(h.HintKey))
	require.NoError(t, s.Delete(h.HintKey), "deleting an already-deleted key must not error")

	empty, err := s.IsEmptyForTarget(target)
	require.NoError(t, err)
	assert.True(t, empty)
}

func TestStore_DeleteForEndpoint(t *testing.T) {
	s := openTestStore(t)
	target := uuid.New()
	other := uuid.New()

	require.NoError(t, s.Insert(newHint(target)))
	require.NoError(t, s.Insert(newHint(target)))
	require.NoError(t, s.Insert(newHint(other)))

	require.NoError(t, s.DeleteForEndpoint(target))

	empty, err := s.IsEmptyForTarget(target)
	require.NoError(t, err)
	assert.True(t, empty)

	empty, err = s.IsEmptyForTarget(other)
	require.NoError(t, err)
	assert.False(t, empty)
}

func TestStore_TruncateAll(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Insert(newHint(uuid.New())))
	require.NoError(t, s.Insert(newHint(uuid.New())))

	require.NoError(t, s.TruncateAll())

	targets, err := s.DistinctTargets()
	require.NoError(t, err)
	assert.Empty(t, targets)
}

func TestStore_DistinctTargets(t *testing.T) {
	s := openTestStore(t)
	targetA := uuid.New()
	targetB := uuid.New()

	require.NoError(t, s.Insert(newHint(targetA)))
	require.NoError(t, s.Insert(newHint(targetA)))
	require.NoError(t, s.Insert(newHint(targetB)))

	targets, err := s.DistinctTargets()
	require.NoError(t, err)
	assert.Len(t, targets, 2)
}

func TestStore_CompactRemovesOnlyOldTombstones(t *testing.T) {
	s := openTestStore(t)
	target := uuid.New()

	old := newHint(target)
	old.Tombstone = true
	old.WritetimeMS = time.Now().Add(-time.Hour).UnixMilli()
	require.NoError(t, s.Insert(old))

	fresh := newHint(target)
	fresh.Tombstone = true
	fresh.WritetimeMS = time.Now().UnixMilli()
	require.NoError(t, s.Insert(fresh))

	removed, err := s.Compact(time.Now().Add(-time.Minute).UnixMilli())
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	page, err := s.Scan(target, 10, nil)
	require.NoError(t, err)
	assert.Len(t, page.Rows, 1)
	assert.Equal(t, fresh.HintID, page.Rows[0].HintID)
}
