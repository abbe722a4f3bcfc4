package handoff

import (
	"context"
	"time"

	"github.com/pairdb/hintmgr/internal/cluster"
	"github.com/pairdb/hintmgr/internal/errors"
	"github.com/pairdb/hintmgr/internal/metrics"
)

// waitForSchemaAgreement blocks until targetID's gossiped schema version is
// known (phase one) and then equals the local node's version (phase two).
// Each phase gets its own independent ringDelay*2 budget, polled every
// second — phase two does not inherit whatever time phase one left over.
func waitForSchemaAgreement(ctx context.Context, gossip cluster.SchemaGossip, m *metrics.Metrics, targetID string, ringDelay time.Duration) error {
	overallStart := time.Now()
	poll := time.NewTicker(time.Second)
	defer poll.Stop()

	// Phase one: target has published some schema version at all. Its own
	// 2*ringDelay budget, independent of phase two's.
	phaseOneStart := time.Now()
	phaseOneDeadline := phaseOneStart.Add(2 * ringDelay)
	for {
		if _, ok := gossip.SchemaVersionOf(targetID); ok {
			break
		}
		if time.Now().After(phaseOneDeadline) {
			m.RecordSchemaAgreementTimeout(time.Since(overallStart).Seconds())
			return errors.New(errors.ErrCodePeerMissingInGossip, "target has not published a schema version", nil)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-poll.C:
		}
	}

	// Phase two: target's version matches ours. Its own 2*ringDelay budget,
	// reset from where phase one left off rather than sharing phase one's.
	phaseTwoStart := time.Now()
	phaseTwoDeadline := phaseTwoStart.Add(2 * ringDelay)
	for {
		v, _ := gossip.SchemaVersionOf(targetID)
		if v == gossip.LocalSchemaVersion() {
			m.RecordSchemaAgreementWait(time.Since(overallStart).Seconds())
			return nil
		}
		if time.Now().After(phaseTwoDeadline) {
			m.RecordSchemaAgreementTimeout(time.Since(overallStart).Seconds())
			return errors.New(errors.ErrCodeSchemaDisagreement, "target schema version disagrees with local version", nil).
				WithDetail("local_version", gossip.LocalSchemaVersion()).
				WithDetail("target_version", v)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-poll.C:
		}
	}
}
