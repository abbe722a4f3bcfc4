package handoff_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pairdb/hintmgr/internal/codec"
	"github.com/pairdb/hintmgr/internal/handoff"
	"github.com/pairdb/hintmgr/internal/metrics"
	"github.com/pairdb/hintmgr/internal/model"
	"github.com/pairdb/hintmgr/internal/ratelimiter"
	"github.com/pairdb/hintmgr/internal/store"
	"github.com/pairdb/hintmgr/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeFailureDetector struct {
	alive map[string]bool
}

func (f *fakeFailureDetector) IsAlive(nodeID string) bool { return f.alive[nodeID] }
func (f *fakeFailureDetector) OnAlive(cb func(nodeID string)) {}

type fakeSchemaGossip struct {
	local  string
	remote map[string]string
}

func (f *fakeSchemaGossip) SchemaVersionOf(nodeID string) (string, bool) {
	v, ok := f.remote[nodeID]
	return v, ok
}
func (f *fakeSchemaGossip) LocalSchemaVersion() string { return f.local }

type fakeAddresses struct {
	addrs map[string]string
}

func (f *fakeAddresses) AddrOf(nodeID string) (string, bool) {
	a, ok := f.addrs[nodeID]
	return a, ok
}

type fakeMessenger struct {
	accept   bool
	sent     []model.HintKey
	payloads [][]byte
}

func (f *fakeMessenger) Send(ctx context.Context, addr string, key model.HintKey, mutationBytes []byte) <-chan transport.AckResult {
	f.sent = append(f.sent, key)
	f.payloads = append(f.payloads, mutationBytes)
	out := make(chan transport.AckResult, 1)
	out <- transport.AckResult{Ack: &transport.Ack{Key: key, Accepted: f.accept, Reason: "rejected by test"}}
	close(out)
	return out
}
func (f *fakeMessenger) Close() error { return nil }

type fakeColumnFamilyCatalog struct {
	known map[uuid.UUID]bool
}

func (f *fakeColumnFamilyCatalog) HasColumnFamily(id uuid.UUID) bool { return f.known[id] }

type fakeTruncationTracker struct {
	truncatedAtMS map[uuid.UUID]int64
}

func (f *fakeTruncationTracker) TruncatedAt(cfID uuid.UUID) (int64, bool) {
	ts, ok := f.truncatedAtMS[cfID]
	return ts, ok
}

func newTestDeps(t *testing.T, nodeID string) (*handoff.Deps, *fakeMessenger, *store.Store) {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "hints.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	messenger := &fakeMessenger{accept: true}

	deps := &handoff.Deps{
		Store:           s,
		Messenger:       messenger,
		Limiter:         ratelimiter.New(0, 1),
		FailureDetector: &fakeFailureDetector{alive: map[string]bool{nodeID: true}},
		SchemaGossip:    &fakeSchemaGossip{local: "v1", remote: map[string]string{nodeID: "v1"}},
		Addresses:       &fakeAddresses{addrs: map[string]string{nodeID: "127.0.0.1:0"}},
		Metrics:         metrics.NewMetrics("test-node-" + uuid.NewString()),
		Logger:          zap.NewNop(),

		CompactionLimitBytes: 64 * 1024,
		RingDelay:            time.Millisecond,
	}

	return deps, messenger, s
}

func insertHint(t *testing.T, s *store.Store, targetID uuid.UUID) model.HintKey {
	t.Helper()
	mutation := &model.Mutation{
		Keyspace: "ks",
		Key:      "pk",
		ColumnFamilies: []model.ColumnFamily{
			{ID: uuid.New(), Name: "cf1", GraceWindow: time.Hour},
		},
	}
	data, err := codec.SerializeMutation(mutation)
	require.NoError(t, err)

	hintID, err := uuid.NewUUID()
	require.NoError(t, err)

	key := model.HintKey{TargetID: targetID, HintID: hintID, MessageVersion: 1}
	require.NoError(t, s.Insert(model.Hint{
		HintKey:       key,
		MutationBytes: data,
		WritetimeMS:   time.Now().UnixMilli(),
		TTLSeconds:    3600,
	}))
	return key
}

func TestSession_DeliversAndDeletesAcknowledgedHint(t *testing.T) {
	targetID := uuid.New()
	deps, messenger, s := newTestDeps(t, targetID.String())

	key := insertHint(t, s, targetID)

	outcome := handoff.NewSession(deps, targetID).Run(context.Background())
	require.False(t, outcome.Aborted)
	assert.Equal(t, 1, outcome.RowsReplayed)
	assert.Len(t, messenger.sent, 1)
	assert.Equal(t, key, messenger.sent[0])

	empty, err := s.IsEmptyForTarget(targetID)
	require.NoError(t, err)
	assert.True(t, empty)
}

func TestSession_AbortsWhenTargetNotAlive(t *testing.T) {
	targetID := uuid.New()
	deps, _, s := newTestDeps(t, targetID.String())
	deps.FailureDetector = &fakeFailureDetector{} // nobody alive

	insertHint(t, s, targetID)

	outcome := handoff.NewSession(deps, targetID).Run(context.Background())
	assert.True(t, outcome.Aborted)
	assert.Equal(t, 0, outcome.RowsReplayed)
}

func TestSession_AbortsOnRejectedHint(t *testing.T) {
	targetID := uuid.New()
	deps, messenger, s := newTestDeps(t, targetID.String())
	messenger.accept = false

	insertHint(t, s, targetID)

	outcome := handoff.NewSession(deps, targetID).Run(context.Background())
	assert.True(t, outcome.Aborted)

	empty, err := s.IsEmptyForTarget(targetID)
	require.NoError(t, err)
	assert.False(t, empty, "a rejected hint must not be deleted")
}

func TestSession_ExpiredHintIsDeletedWithoutSending(t *testing.T) {
	targetID := uuid.New()
	deps, messenger, s := newTestDeps(t, targetID.String())

	mutation := &model.Mutation{Keyspace: "ks", Key: "pk", ColumnFamilies: []model.ColumnFamily{{ID: uuid.New()}}}
	data, err := codec.SerializeMutation(mutation)
	require.NoError(t, err)
	hintID, err := uuid.NewUUID()
	require.NoError(t, err)

	require.NoError(t, s.Insert(model.Hint{
		HintKey:       model.HintKey{TargetID: targetID, HintID: hintID, MessageVersion: 1},
		MutationBytes: data,
		WritetimeMS:   time.Now().Add(-time.Hour).UnixMilli(),
		TTLSeconds:    10,
	}))

	outcome := handoff.NewSession(deps, targetID).Run(context.Background())
	require.False(t, outcome.Aborted)
	assert.Equal(t, 0, outcome.RowsReplayed)
	assert.Empty(t, messenger.sent)

	empty, err := s.IsEmptyForTarget(targetID)
	require.NoError(t, err)
	assert.True(t, empty)
}

func TestSession_AbortsOnSchemaDisagreement(t *testing.T) {
	targetID := uuid.New()
	deps, _, s := newTestDeps(t, targetID.String())
	deps.SchemaGossip = &fakeSchemaGossip{local: "v1", remote: map[string]string{targetID.String(): "v2"}}

	insertHint(t, s, targetID)

	outcome := handoff.NewSession(deps, targetID).Run(context.Background())
	assert.True(t, outcome.Aborted)
}

func TestSession_UnknownColumnFamilyIsDeletedWithoutSending(t *testing.T) {
	targetID := uuid.New()
	deps, messenger, s := newTestDeps(t, targetID.String())

	known := model.ColumnFamily{ID: uuid.New(), Name: "known", GraceWindow: time.Hour}
	dropped := model.ColumnFamily{ID: uuid.New(), Name: "dropped", GraceWindow: time.Hour}
	mutation := &model.Mutation{Keyspace: "ks", Key: "pk", ColumnFamilies: []model.ColumnFamily{dropped}}
	deps.ColumnFamilies = &fakeColumnFamilyCatalog{known: map[uuid.UUID]bool{known.ID: true}}

	data, err := codec.SerializeMutation(mutation)
	require.NoError(t, err)
	hintID, err := uuid.NewUUID()
	require.NoError(t, err)
	require.NoError(t, s.Insert(model.Hint{
		HintKey:       model.HintKey{TargetID: targetID, HintID: hintID, MessageVersion: 1},
		MutationBytes: data,
		WritetimeMS:   time.Now().UnixMilli(),
		TTLSeconds:    3600,
	}))

	outcome := handoff.NewSession(deps, targetID).Run(context.Background())
	require.False(t, outcome.Aborted)
	assert.Equal(t, 0, outcome.RowsReplayed)
	assert.Empty(t, messenger.sent, "a hint with an unknown column family must never be dispatched")

	empty, err := s.IsEmptyForTarget(targetID)
	require.NoError(t, err)
	assert.True(t, empty, "a hint with an unknown column family must still be deleted")
}

func TestSession_StripsFamiliesTruncatedAfterWritetime(t *testing.T) {
	targetID := uuid.New()
	deps, messenger, s := newTestDeps(t, targetID.String())

	writetime := time.Now().Add(-time.Minute).UnixMilli()
	cfA := model.ColumnFamily{ID: uuid.New(), Name: "a", GraceWindow: time.Hour}
	cfB := model.ColumnFamily{ID: uuid.New(), Name: "b", GraceWindow: time.Hour}
	mutation := &model.Mutation{Keyspace: "ks", Key: "pk", ColumnFamilies: []model.ColumnFamily{cfA, cfB}}
	deps.Truncations = &fakeTruncationTracker{truncatedAtMS: map[uuid.UUID]int64{
		cfA.ID: writetime + 1000, // truncated after writetime: stripped
	}}

	data, err := codec.SerializeMutation(mutation)
	require.NoError(t, err)
	hintID, err := uuid.NewUUID()
	require.NoError(t, err)
	require.NoError(t, s.Insert(model.Hint{
		HintKey:       model.HintKey{TargetID: targetID, HintID: hintID, MessageVersion: 1},
		MutationBytes: data,
		WritetimeMS:   writetime,
		TTLSeconds:    3600,
	}))

	outcome := handoff.NewSession(deps, targetID).Run(context.Background())
	require.False(t, outcome.Aborted)
	assert.Equal(t, 1, outcome.RowsReplayed)
	require.Len(t, messenger.payloads, 1)

	sent, err := codec.DeserializeMutation(messenger.payloads[0])
	require.NoError(t, err)
	require.Len(t, sent.ColumnFamilies, 1)
	assert.Equal(t, cfB.ID, sent.ColumnFamilies[0].ID)
}

func TestSession_DeletesWithoutDispatchWhenAllFamiliesTruncated(t *testing.T) {
	targetID := uuid.New()
	deps, messenger, s := newTestDeps(t, targetID.String())

	writetime := time.Now().Add(-time.Minute).UnixMilli()
	cfA := model.ColumnFamily{ID: uuid.New(), Name: "a", GraceWindow: time.Hour}
	cfB := model.ColumnFamily{ID: uuid.New(), Name: "b", GraceWindow: time.Hour}
	mutation := &model.Mutation{Keyspace: "ks", Key: "pk", ColumnFamilies: []model.ColumnFamily{cfA, cfB}}
	deps.Truncations = &fakeTruncationTracker{truncatedAtMS: map[uuid.UUID]int64{
		cfA.ID: writetime + 1000,
		cfB.ID: writetime + 2000,
	}}

	data, err := codec.SerializeMutation(mutation)
	require.NoError(t, err)
	hintID, err := uuid.NewUUID()
	require.NoError(t, err)
	require.NoError(t, s.Insert(model.Hint{
		HintKey:       model.HintKey{TargetID: targetID, HintID: hintID, MessageVersion: 1},
		MutationBytes: data,
		WritetimeMS:   writetime,
		TTLSeconds:    3600,
	}))

	outcome := handoff.NewSession(deps, targetID).Run(context.Background())
	require.False(t, outcome.Aborted)
	assert.Equal(t, 0, outcome.RowsReplayed)
	assert.Empty(t, messenger.sent, "a hint emptied by truncation must never be dispatched")

	empty, err := s.IsEmptyForTarget(targetID)
	require.NoError(t, err)
	assert.True(t, empty)
}

func TestSession_PauseIsObservedBeforeEveryRowNotJustEveryPage(t *testing.T) {
	targetID := uuid.New()
	deps, messenger, s := newTestDeps(t, targetID.String())

	insertHint(t, s, targetID)
	insertHint(t, s, targetID)
	insertHint(t, s, targetID)

	// drainPage runs single-threaded within one session, so reading
	// messenger.sent directly (rather than through a lock) is safe here.
	deps.IsPaused = func() bool { return len(messenger.sent) >= 1 }

	outcome := handoff.NewSession(deps, targetID).Run(context.Background())
	assert.True(t, outcome.Aborted)
	assert.LessOrEqual(t, outcome.RowsReplayed, 1,
		"pausing after the first row must stop the session before a second row of the same page is sent")
}

func TestSession_FinalizeCompactsStaleTombstonesOnCompletion(t *testing.T) {
	targetID := uuid.New()
	otherTarget := uuid.New()
	deps, _, s := newTestDeps(t, targetID.String())
	deps.TombstoneWarnThreshold = 1000

	insertHint(t, s, targetID)

	staleHintID, err := uuid.NewUUID()
	require.NoError(t, err)
	require.NoError(t, s.Insert(model.Hint{
		HintKey:     model.HintKey{TargetID: otherTarget, HintID: staleHintID, MessageVersion: 1},
		WritetimeMS: time.Now().Add(-time.Hour).UnixMilli(),
		Tombstone:   true,
	}))

	outcome := handoff.NewSession(deps, targetID).Run(context.Background())
	require.False(t, outcome.Aborted)

	empty, err := s.IsEmptyForTarget(otherTarget)
	require.NoError(t, err)
	assert.True(t, empty, "a session that runs to completion must trigger a finalize compaction over the whole store")
}
