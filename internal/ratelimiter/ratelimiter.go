// Package ratelimiter implements a cluster-size-scaling token bucket: the
// configured global throughput budget is divided across the other live
// members of the cluster, so that as the cluster grows each node's share of
// the handoff bandwidth shrinks proportionally.
package ratelimiter

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter wraps a token-bucket rate limiter denominated in bytes per second,
// whose burst/limit is recomputed whenever the observed cluster size changes.
type Limiter struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	throttleKB  int
	clusterSize int
	minBurst    int // raised to the largest n ever reserved via WaitN
}

// New creates a Limiter configured with a global throughput budget of
// throttleKB KiB/sec, initially scaled for a cluster of clusterSize nodes.
func New(throttleKB int, clusterSize int) *Limiter {
	l := &Limiter{throttleKB: throttleKB}
	l.limiter = rate.NewLimiter(perNodeRate(throttleKB, clusterSize), burstFor(throttleKB, clusterSize))
	l.clusterSize = clusterSize
	return l
}

// perNodeRate computes the per-node byte rate: an unlimited throttleKB (<=0)
// maps to rate.Inf, and a cluster of one node (no peers to hand off to)
// degenerates to the full budget rather than dividing by zero.
func perNodeRate(throttleKB, clusterSize int) rate.Limit {
	if throttleKB <= 0 {
		return rate.Inf
	}
	peers := clusterSize - 1
	if peers < 1 {
		peers = 1
	}
	bytesPerSec := float64(throttleKB) * 1024.0 / float64(peers)
	return rate.Limit(bytesPerSec)
}

// burstFor computes the limiter's starting burst, roughly one second's
// worth of the per-node byte rate. WaitN raises it further for any single
// reservation larger than this.
func burstFor(throttleKB, clusterSize int) int {
	if throttleKB <= 0 {
		return int(1 << 30)
	}
	r := perNodeRate(throttleKB, clusterSize)
	burst := int(float64(r))
	if burst < 1 {
		burst = 1
	}
	return burst
}

// SetClusterSize recomputes the per-node rate for a new observed cluster
// size, called whenever the membership view changes size.
func (l *Limiter) SetClusterSize(clusterSize int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if clusterSize == l.clusterSize {
		return
	}
	l.clusterSize = clusterSize
	l.limiter.SetLimit(perNodeRate(l.throttleKB, clusterSize))
	l.limiter.SetBurst(l.burstWithFloorLocked(burstFor(l.throttleKB, clusterSize)))
}

// burstWithFloorLocked raises burst to minBurst if a larger reservation has
// already been made, so a cluster-size change never shrinks the burst back
// below a mutation size WaitN has already had to accommodate. Callers must
// hold l.mu.
func (l *Limiter) burstWithFloorLocked(burst int) int {
	if burst < l.minBurst {
		return l.minBurst
	}
	return burst
}

// WaitN blocks until n bytes' worth of tokens are available or ctx is done.
// rate.Limiter.WaitN errors immediately if n exceeds the limiter's burst,
// which would otherwise turn any mutation larger than one second's
// throttle budget into a permanent delivery failure. Instead, the burst is
// raised to n first, so WaitN only ever waits longer for a large n, mirroring
// the original RateLimiter.acquire, which never rejects a request for being
// too large.
func (l *Limiter) WaitN(ctx context.Context, n int) error {
	if n < 1 {
		n = 1
	}

	l.mu.Lock()
	if n > l.minBurst {
		l.minBurst = n
	}
	if l.limiter.Burst() < n {
		l.limiter.SetBurst(n)
	}
	lim := l.limiter
	l.mu.Unlock()

	return lim.WaitN(ctx, n)
}

// Tokens reports the limiter's current estimate of available tokens.
func (l *Limiter) Tokens() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limiter.TokensAt(time.Now())
}
