package handoff_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pairdb/hintmgr/internal/handoff"
	"github.com/pairdb/hintmgr/internal/model"
	"github.com/pairdb/hintmgr/internal/workerpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*handoff.Manager, uuid.UUID) {
	t.Helper()
	nodeID := uuid.New()
	deps, _, _ := newTestDeps(t, nodeID.String())
	manager := handoff.New(deps, &handoff.Config{
		MaxHintThreads:          2,
		InMemoryCompactionLimit: 64 * 1024,
		RingDelay:               time.Millisecond,
	}, nil)
	t.Cleanup(func() { manager.Shutdown(time.Second) })
	return manager, nodeID
}

func TestManager_CreateHint_RejectsEmptyMutation(t *testing.T) {
	manager, target := newTestManager(t)
	err := manager.CreateHint(target, &model.Mutation{Keyspace: "ks", Key: "k"})
	assert.Error(t, err)
}

func TestManager_CreateHint_RejectsNonPositiveTTL(t *testing.T) {
	manager, target := newTestManager(t)
	mutation := &model.Mutation{
		Keyspace:       "ks",
		Key:            "k",
		ColumnFamilies: []model.ColumnFamily{{ID: uuid.New(), GraceWindow: 0}},
	}
	err := manager.CreateHint(target, mutation)
	assert.Error(t, err)
}

func TestManager_CreateHint_PersistsRetrievableHint(t *testing.T) {
	manager, target := newTestManager(t)
	mutation := &model.Mutation{
		Keyspace:       "ks",
		Key:            "k",
		ColumnFamilies: []model.ColumnFamily{{ID: uuid.New(), GraceWindow: time.Hour}},
	}
	require.NoError(t, manager.CreateHint(target, mutation))

	targets, err := manager.ListPendingTargets()
	require.NoError(t, err)
	assert.Contains(t, targets, target)
}

func TestManager_PauseBlocksDeliverNow(t *testing.T) {
	manager, target := newTestManager(t)
	manager.Pause()
	t.Cleanup(manager.Resume)

	err := manager.DeliverNow(target)
	assert.Error(t, err)
}

func TestManager_DeliverNow_SecondCallForSameTargetFailsOnlyAsBusy(t *testing.T) {
	manager, target := newTestManager(t)

	// No hints stored: the session still occupies the target's admission
	// slot until it observes an empty page and returns. The second call is
	// either rejected with ErrTargetBusy or, if that session has already
	// returned, admitted as a fresh session.
	err1 := manager.DeliverNow(target)
	require.NoError(t, err1)

	err2 := manager.DeliverNow(target)
	if err2 != nil {
		assert.ErrorIs(t, err2, workerpool.ErrTargetBusy)
	}
}
