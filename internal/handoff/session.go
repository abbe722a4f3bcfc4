// Package handoff implements the core of the hinted handoff manager: the
// per-target delivery session that pages hints out of the store and replays
// them to a recovered peer, the scheduler that discovers targets with
// pending hints, and the Manager control surface that wires both together.
package handoff

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pairdb/hintmgr/internal/cluster"
	"github.com/pairdb/hintmgr/internal/codec"
	hmerrors "github.com/pairdb/hintmgr/internal/errors"
	"github.com/pairdb/hintmgr/internal/metrics"
	"github.com/pairdb/hintmgr/internal/model"
	"github.com/pairdb/hintmgr/internal/ratelimiter"
	"github.com/pairdb/hintmgr/internal/store"
	"github.com/pairdb/hintmgr/internal/transport"
	"go.uber.org/zap"
)

// Deps are the dependencies a delivery Session needs, shared across every
// session the Manager starts.
type Deps struct {
	Store           *store.Store
	Messenger       transport.Messenger
	Limiter         *ratelimiter.Limiter
	FailureDetector cluster.FailureDetector
	SchemaGossip    cluster.SchemaGossip
	Addresses       cluster.AddressResolver
	Metrics         *metrics.Metrics
	Logger          *zap.Logger

	// ColumnFamilies and Truncations are optional: a nil catalog accepts
	// every column family, and a nil tracker reports no truncations, so a
	// deployment that hasn't wired a schema layer still delivers hints
	// unmodified.
	ColumnFamilies codec.ColumnFamilyCatalog
	Truncations    codec.TruncationTracker

	CompactionLimitBytes   int64
	RingDelay              time.Duration
	TombstoneWarnThreshold int
	IsPaused               func() bool
}

// Outcome describes how a delivery session ended.
type Outcome struct {
	TargetID     uuid.UUID
	RowsReplayed int
	Aborted      bool
	Reason       string
}

// Session drains every pending hint for a single target. The
// single-session-per-target invariant is enforced by the caller (the worker
// pool's admission gate), not by Session itself.
type Session struct {
	deps     *Deps
	targetID uuid.UUID
}

// NewSession creates a session for targetID.
func NewSession(deps *Deps, targetID uuid.UUID) *Session {
	return &Session{deps: deps, targetID: targetID}
}

// Run executes the session to completion or abort.
func (s *Session) Run(ctx context.Context) Outcome {
	start := time.Now()
	s.deps.Metrics.RecordSessionStart()

	outcome, err := s.run(ctx)
	if err != nil {
		reason := hmerrors.GetCode(err)
		outcome.Aborted = true
		outcome.Reason = fmt.Sprintf("%v", reason)
		s.deps.Metrics.RecordSessionAbort(outcome.Reason, time.Since(start).Seconds())
		s.deps.Logger.Warn("delivery session aborted",
			zap.String("target_id", s.targetID.String()),
			zap.Int("rows_replayed", outcome.RowsReplayed),
			zap.Error(err))
	} else {
		s.deps.Metrics.RecordSessionComplete(time.Since(start).Seconds())
		s.deps.Logger.Info("delivery session complete",
			zap.String("target_id", s.targetID.String()),
			zap.Int("rows_replayed", outcome.RowsReplayed))
	}

	s.finalize(outcome)
	return outcome
}

// finalize synchronously flushes and compacts the hint store once this
// session either ran to completion or replayed enough rows to be worth
// reclaiming tombstone space for immediately. The scheduler's sweep does not
// compact, so this is the only compaction a delivery triggers.
func (s *Session) finalize(outcome Outcome) {
	ranToCompletion := !outcome.Aborted
	overThreshold := s.deps.TombstoneWarnThreshold > 0 && outcome.RowsReplayed > s.deps.TombstoneWarnThreshold
	if !ranToCompletion && !overThreshold {
		return
	}

	if err := s.deps.Store.Flush(); err != nil {
		s.deps.Logger.Warn("finalize flush failed",
			zap.String("target_id", s.targetID.String()), zap.Error(err))
		return
	}

	removed, err := s.deps.Store.Compact(time.Now().UnixMilli())
	if err != nil {
		s.deps.Logger.Warn("finalize compaction failed",
			zap.String("target_id", s.targetID.String()), zap.Error(err))
		return
	}
	s.deps.Logger.Info("delivery session finalize compaction",
		zap.String("target_id", s.targetID.String()),
		zap.Bool("ran_to_completion", ranToCompletion),
		zap.Int("rows_replayed", outcome.RowsReplayed),
		zap.Int("tombstones_removed", removed))
}

func (s *Session) run(ctx context.Context) (Outcome, error) {
	outcome := Outcome{TargetID: s.targetID}

	if s.deps.IsPaused != nil && s.deps.IsPaused() {
		return outcome, hmerrors.New(hmerrors.ErrCodePaused, "hint delivery is paused", nil)
	}

	nodeID := s.targetID.String()

	if s.deps.FailureDetector == nil || s.deps.Addresses == nil || s.deps.SchemaGossip == nil {
		return outcome, hmerrors.New(hmerrors.ErrCodePeerMissingInGossip, "no membership wired: cannot resolve target address", nil)
	}

	if !s.deps.FailureDetector.IsAlive(nodeID) {
		return outcome, hmerrors.New(hmerrors.ErrCodePeerDead, "target is not currently a live cluster member", nil)
	}

	addr, ok := s.deps.Addresses.AddrOf(nodeID)
	if !ok || addr == "" {
		return outcome, hmerrors.New(hmerrors.ErrCodePeerMissingInGossip, "no advertised address for target", nil)
	}

	if err := waitForSchemaAgreement(ctx, s.deps.SchemaGossip, s.deps.Metrics, nodeID, s.deps.RingDelay); err != nil {
		return outcome, err
	}

	pageSize := calculatePageSize(s.deps.CompactionLimitBytes, defaultAvgRowSize)

	var cursor []byte
	for {
		if s.deps.IsPaused != nil && s.deps.IsPaused() {
			return outcome, hmerrors.New(hmerrors.ErrCodePaused, "hint delivery was paused mid-session", nil)
		}
		if !s.deps.FailureDetector.IsAlive(nodeID) {
			return outcome, hmerrors.New(hmerrors.ErrCodePeerDead, "target went down mid-session", nil)
		}

		page, err := s.deps.Store.Scan(s.targetID, pageSize, cursor)
		if err != nil {
			return outcome, hmerrors.StorageExecution("failed to scan hint store", err)
		}
		if len(page.Rows) == 0 {
			return outcome, nil
		}

		s.deps.Metrics.RecordPage(len(page.Rows), len(page.Rows))

		replayed, err := s.drainPage(ctx, addr, page.Rows)
		outcome.RowsReplayed += replayed
		if err != nil {
			return outcome, err
		}

		cursor = page.NextCursor
		if page.EndOfScan {
			return outcome, nil
		}
	}
}

// drainPage sends every row in a page and waits for each ack, deleting
// acknowledged rows as they resolve. It returns the number of rows
// successfully replayed and, if the target rejects a row, a write times
// out, or a mutation is genuinely corrupt, the error that should abort the
// whole session. The pause flag and target liveness are re-checked before
// every row, not just at the page boundary, so a pause or a target going
// down is observed within one row instead of up to a full page.
func (s *Session) drainPage(ctx context.Context, addr string, rows []model.Hint) (int, error) {
	nowMS := time.Now().UnixMilli()
	nodeID := s.targetID.String()
	replayed := 0
	truncations := newTruncationCache(s.deps.Truncations)

	for _, row := range rows {
		if s.deps.IsPaused != nil && s.deps.IsPaused() {
			return replayed, hmerrors.New(hmerrors.ErrCodePaused, "hint delivery was paused mid-page", nil)
		}
		if !s.deps.FailureDetector.IsAlive(nodeID) {
			return replayed, hmerrors.New(hmerrors.ErrCodePeerDead, "target went down mid-page", nil)
		}

		if row.Tombstone {
			if err := s.deps.Store.Delete(row.HintKey); err != nil {
				return replayed, hmerrors.StorageExecution("failed to delete tombstone row", err)
			}
			continue
		}

		if row.Expired(nowMS) {
			if err := s.deps.Store.Delete(row.HintKey); err != nil {
				return replayed, hmerrors.StorageExecution("failed to delete expired hint", err)
			}
			s.deps.Metrics.RecordHintNotStored("ttl_expired")
			continue
		}

		mutation, err := codec.DeserializeMutation(row.MutationBytes)
		if err != nil {
			return replayed, hmerrors.CorruptMutation("hint mutation bytes failed to decode", err)
		}

		if err := codec.ValidateColumnFamilies(mutation, s.deps.ColumnFamilies); err != nil {
			hmErr := hmerrors.UnknownColumnFamily("hint references a column family dropped by schema evolution", err)
			s.deps.Logger.Debug("discarding hint with unknown column family",
				zap.String("target_id", nodeID), zap.Error(hmErr))
			if err := s.deps.Store.Delete(row.HintKey); err != nil {
				return replayed, hmerrors.StorageExecution("failed to delete hint with unknown column family", err)
			}
			s.deps.Metrics.RecordHintNotStored("unknown_column_family")
			continue
		}

		mutation = codec.StripTruncated(mutation, row.WritetimeMS, truncations.snapshot(mutation))
		if mutation.IsEmpty() {
			if err := s.deps.Store.Delete(row.HintKey); err != nil {
				return replayed, hmerrors.StorageExecution("failed to delete hint emptied by truncation", err)
			}
			s.deps.Metrics.RecordHintNotStored("truncated_empty")
			continue
		}

		payload, err := codec.SerializeMutation(mutation)
		if err != nil {
			return replayed, hmerrors.CorruptMutation("failed to re-serialize stripped mutation", err)
		}

		waitStart := time.Now()
		if err := s.deps.Limiter.WaitN(ctx, len(payload)); err != nil {
			return replayed, hmerrors.New(hmerrors.ErrCodeWriteTimeout, "rate limiter wait cancelled", err)
		}
		s.deps.Metrics.RecordRateLimiterWait(time.Since(waitStart).Seconds())
		s.deps.Metrics.UpdateRateLimiterStats(s.deps.Limiter.Tokens())

		ackCh := s.deps.Messenger.Send(ctx, addr, row.HintKey, payload)

		select {
		case <-ctx.Done():
			return replayed, ctx.Err()
		case result := <-ackCh:
			if result.Err != nil {
				s.deps.Metrics.RecordWriteTimeout(nodeID)
				return replayed, hmerrors.New(hmerrors.ErrCodeWriteTimeout, "delivery rpc failed", result.Err)
			}
			if !result.Ack.Accepted {
				return replayed, hmerrors.New(hmerrors.ErrCodeStorageValidation, "target rejected hint: "+result.Ack.Reason, nil)
			}

			// Ack received; the row is now safe to delete. Delete is
			// unconditional on the (target_id, hint_id, message_version)
			// key, so a concurrent insert of the same mutation under a new
			// hint_id is unaffected.
			if err := s.deps.Store.Delete(row.HintKey); err != nil {
				return replayed, hmerrors.StorageExecution("failed to delete acknowledged hint", err)
			}
			replayed++
			s.deps.Metrics.RecordRowsReplayed(nodeID, 1)
		}
	}

	return replayed, nil
}
