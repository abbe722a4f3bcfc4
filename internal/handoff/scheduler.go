package handoff

import (
	"time"

	"go.uber.org/zap"
)

// Scheduler periodically sweeps the hint store for targets with pending
// hints and submits a delivery session for each, mirroring the original
// scheduleAllDeliveries sweep this manager is modeled on. Event-driven
// delivery (triggered the moment a target rejoins the cluster) is expected
// to call Manager.DeliverNow directly from the membership event handler;
// the sweep exists to catch hints for targets that were already alive when
// the hint was written, or whose join event was missed.
type Scheduler struct {
	manager  *Manager
	interval time.Duration
	logger   *zap.Logger
	stopCh   chan struct{}
}

// NewScheduler creates a Scheduler that sweeps every interval.
func NewScheduler(manager *Manager, interval time.Duration, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Scheduler{
		manager:  manager,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start runs the sweep loop in a background goroutine until Stop is called.
func (s *Scheduler) Start() {
	go s.loop()
}

func (s *Scheduler) loop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Scheduler) sweep() {
	if s.manager.Paused() {
		return
	}

	targets, err := s.manager.ListPendingTargets()
	if err != nil {
		s.logger.Error("scheduler sweep failed to list pending targets", zap.Error(err))
		return
	}

	s.manager.deps.Metrics.RecordSweep(len(targets))

	for _, target := range targets {
		if err := s.manager.DeliverNow(target); err != nil {
			s.logger.Debug("scheduler skipped target",
				zap.String("target_id", target.String()),
				zap.Error(err))
		}
	}
}

// Stop halts the sweep loop.
func (s *Scheduler) Stop() {
	close(s.stopCh)
}
