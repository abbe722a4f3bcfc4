package handoff

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pairdb/hintmgr/internal/codec"
	"github.com/pairdb/hintmgr/internal/errors"
	"github.com/pairdb/hintmgr/internal/model"
	"github.com/pairdb/hintmgr/internal/workerpool"
	"go.uber.org/zap"
)

// Manager is the explicit handle onto the hinted handoff subsystem: it owns
// the hint store, the bounded delivery worker pool, and the pause flag, and
// exposes the control-surface operations a management client (or a local
// scheduler) drives.
type Manager struct {
	deps       *Deps
	pool       *workerpool.Pool
	paused     atomic.Bool
	maxHintTTL int64 // seconds; 0 means unbounded
	logger     *zap.Logger
}

// Config configures a Manager.
type Config struct {
	MaxHintThreads          int
	MaxHintTTL              time.Duration
	InMemoryCompactionLimit int64
	RingDelay               time.Duration
	TombstoneWarnThreshold  int
}

// New creates a Manager. deps must be fully populated.
func New(deps *Deps, cfg *Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Manager{deps: deps, logger: logger, maxHintTTL: int64(cfg.MaxHintTTL.Seconds())}
	deps.IsPaused = m.Paused
	deps.CompactionLimitBytes = cfg.InMemoryCompactionLimit
	deps.RingDelay = cfg.RingDelay
	deps.TombstoneWarnThreshold = cfg.TombstoneWarnThreshold

	m.pool = workerpool.New(&workerpool.Config{
		Name:       "hint-delivery",
		MaxWorkers: cfg.MaxHintThreads,
		QueueSize:  cfg.MaxHintThreads * 4,
		Logger:     logger,
	})

	return m
}

// CreateHint persists mutation as a hint for targetID, to be replayed once
// the target recovers. It returns an *errors.HandoffError with
// ErrCodeInvalidTTL if the mutation's column families yield a non-positive
// TTL.
func (m *Manager) CreateHint(targetID uuid.UUID, mutation *model.Mutation) error {
	if mutation.IsEmpty() {
		m.deps.Metrics.RecordHintNotStored("empty_mutation")
		return errors.InvalidArgument("mutation has no column families", nil)
	}

	ttl := codec.TTLFor(mutation)
	if ttl <= 0 {
		m.deps.Metrics.RecordHintNotStored("non_positive_ttl")
		return errors.InvalidTTL(ttl)
	}
	if m.maxHintTTL > 0 && ttl > m.maxHintTTL {
		ttl = m.maxHintTTL
	}

	data, err := codec.SerializeMutation(mutation)
	if err != nil {
		m.deps.Metrics.RecordHintNotStored("serialize_failed")
		return errors.CorruptMutation("failed to serialize mutation", err)
	}

	hintID, err := uuid.NewV7()
	if err != nil {
		return errors.Internal("failed to generate hint id", err)
	}

	hint := model.Hint{
		HintKey: model.HintKey{
			TargetID:       targetID,
			HintID:         hintID,
			MessageVersion: 1,
		},
		MutationBytes: data,
		WritetimeMS:   time.Now().UnixMilli(),
		TTLSeconds:    ttl,
	}

	if err := m.deps.Store.Insert(hint); err != nil {
		m.deps.Metrics.RecordHintNotStored("store_error")
		return errors.StorageExecution("failed to persist hint", err)
	}

	m.deps.Metrics.RecordHintCreated(targetID.String())
	return nil
}

// Paused reports whether hint delivery is currently paused.
func (m *Manager) Paused() bool {
	return m.paused.Load()
}

// Pause stops new delivery sessions from starting. Sessions already in
// flight observe the pause flag between pages and abort.
func (m *Manager) Pause() {
	m.paused.Store(true)
	m.deps.Metrics.SetPaused(true)
	m.logger.Info("hint delivery paused")
}

// Resume allows delivery sessions to start again.
func (m *Manager) Resume() {
	m.paused.Store(false)
	m.deps.Metrics.SetPaused(false)
	m.logger.Info("hint delivery resumed")
}

// DeliverNow submits a delivery session for targetID to the worker pool. It
// returns workerpool.ErrTargetBusy if a session for targetID is already
// queued or running, satisfying the at-most-one-session-per-target
// invariant.
func (m *Manager) DeliverNow(targetID uuid.UUID) error {
	if m.Paused() {
		return errors.New(errors.ErrCodePaused, "hint delivery is paused", nil)
	}

	return m.pool.Submit(workerpool.Task{
		TargetID: targetID.String(),
		Fn: func(ctx context.Context) error {
			outcome := NewSession(m.deps, targetID).Run(ctx)
			if outcome.Aborted {
				return errors.New(errors.ErrCodeInternal, "session aborted: "+outcome.Reason, nil)
			}
			return nil
		},
	})
}

// ListPendingTargets returns every target with at least one stored hint.
func (m *Manager) ListPendingTargets() ([]uuid.UUID, error) {
	return m.deps.Store.DistinctTargets()
}

// PurgeEndpoint discards every stored hint for targetID without delivering
// them, for use when an operator has decided a peer's data should be
// rebuilt by some other repair mechanism instead. The bulk delete is
// followed by an asynchronous compaction pass so the tombstone space it
// creates is reclaimed without waiting on some later session's finalize.
func (m *Manager) PurgeEndpoint(targetID uuid.UUID) error {
	if err := m.deps.Store.DeleteForEndpoint(targetID); err != nil {
		return err
	}
	m.deps.Store.CompactAsync(time.Now().UnixMilli(), nil)
	return nil
}

// TruncateAll discards every stored hint for every target.
func (m *Manager) TruncateAll() error {
	return m.deps.Store.TruncateAll()
}

// Compact runs a blocking tombstone garbage-collection pass, discarding
// tombstone rows older than maxAge.
func (m *Manager) Compact(maxAge time.Duration) (int, error) {
	return m.deps.Store.Compact(time.Now().Add(-maxAge).UnixMilli())
}

// PoolStats exposes the delivery worker pool's current statistics.
func (m *Manager) PoolStats() workerpool.Stats {
	return m.pool.Stats()
}

// Shutdown stops the worker pool, waiting up to timeout for in-flight
// sessions to finish.
func (m *Manager) Shutdown(timeout time.Duration) error {
	return m.pool.Stop(timeout)
}

// Ready implements server.ReadinessChecker: the manager is ready once its
// store is open, which it is for the lifetime of a constructed Manager.
func (m *Manager) Ready() (bool, string) {
	if m.Paused() {
		return true, "paused"
	}
	return true, ""
}
