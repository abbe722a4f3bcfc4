// Package workerpool implements a bounded, target-gated delivery worker
// pool enforcing a single-session-per-target invariant: at most
// max_hint_threads delivery sessions run concurrently, and a target already
// being drained is rejected rather than queued twice.
package workerpool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Task is a unit of delivery work addressed at a single target.
type Task struct {
	TargetID string
	Fn       func(context.Context) error
	Context  context.Context
}

// ErrTargetBusy is returned by Submit when target already has a task
// in flight or queued.
var ErrTargetBusy = fmt.Errorf("target already has a delivery session in flight")

// Pool is a bounded worker pool with per-target admission control.
type Pool struct {
	name       string
	maxWorkers int
	taskQueue  chan Task
	queueSize  int
	logger     *zap.Logger
	wg         sync.WaitGroup
	stopOnce   sync.Once
	stopChan   chan struct{}

	mu         sync.Mutex
	inFlight   map[string]struct{}

	activeWorkers  int32
	totalTasks     uint64
	completedTasks uint64
	failedTasks    uint64
	rejectedTasks  uint64
}

// Config configures a Pool.
type Config struct {
	Name       string
	MaxWorkers int
	QueueSize  int
	Logger     *zap.Logger
}

// New creates a Pool and starts its workers.
func New(cfg *Config) *Pool {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 8
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	p := &Pool{
		name:       cfg.Name,
		maxWorkers: cfg.MaxWorkers,
		queueSize:  cfg.QueueSize,
		taskQueue:  make(chan Task, cfg.QueueSize),
		logger:     cfg.Logger,
		stopChan:   make(chan struct{}),
		inFlight:   make(map[string]struct{}),
	}

	for i := 0; i < p.maxWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	p.logger.Info("delivery worker pool started",
		zap.String("name", p.name),
		zap.Int("max_workers", p.maxWorkers),
		zap.Int("queue_size", p.queueSize))

	return p
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopChan:
			return
		case task := <-p.taskQueue:
			p.executeTask(id, task)
		}
	}
}

func (p *Pool) executeTask(workerID int, task Task) {
	atomic.AddInt32(&p.activeWorkers, 1)
	defer func() {
		atomic.AddInt32(&p.activeWorkers, -1)
		p.mu.Lock()
		delete(p.inFlight, task.TargetID)
		p.mu.Unlock()
	}()

	start := time.Now()
	err := p.safeExecute(task)
	duration := time.Since(start)

	if err != nil {
		atomic.AddUint64(&p.failedTasks, 1)
		p.logger.Error("delivery task failed",
			zap.String("pool", p.name),
			zap.Int("worker_id", workerID),
			zap.String("target_id", task.TargetID),
			zap.Duration("duration", duration),
			zap.Error(err))
	} else {
		atomic.AddUint64(&p.completedTasks, 1)
		p.logger.Debug("delivery task completed",
			zap.String("pool", p.name),
			zap.Int("worker_id", workerID),
			zap.String("target_id", task.TargetID),
			zap.Duration("duration", duration))
	}
}

func (p *Pool) safeExecute(task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("delivery task panicked: %v", r)
			p.logger.Error("delivery task panic recovered",
				zap.String("pool", p.name),
				zap.String("target_id", task.TargetID),
				zap.Any("panic", r))
		}
	}()

	if task.Context == nil {
		task.Context = context.Background()
	}
	return task.Fn(task.Context)
}

// Submit submits task to the pool. It returns ErrTargetBusy if target
// already has a session queued or running, and an error if the pool is
// stopped or its queue is full.
func (p *Pool) Submit(task Task) error {
	select {
	case <-p.stopChan:
		atomic.AddUint64(&p.rejectedTasks, 1)
		return fmt.Errorf("worker pool '%s' is stopped", p.name)
	default:
	}

	p.mu.Lock()
	if _, busy := p.inFlight[task.TargetID]; busy {
		p.mu.Unlock()
		atomic.AddUint64(&p.rejectedTasks, 1)
		return ErrTargetBusy
	}
	p.inFlight[task.TargetID] = struct{}{}
	p.mu.Unlock()

	select {
	case p.taskQueue <- task:
		atomic.AddUint64(&p.totalTasks, 1)
		return nil
	default:
		p.mu.Lock()
		delete(p.inFlight, task.TargetID)
		p.mu.Unlock()
		atomic.AddUint64(&p.rejectedTasks, 1)
		return fmt.Errorf("worker pool '%s' queue is full", p.name)
	}
}

// IsInFlight reports whether target currently has a queued or running
// session.
func (p *Pool) IsInFlight(targetID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.inFlight[targetID]
	return ok
}

// Stop gracefully stops the pool, waiting up to timeout for in-flight tasks
// to finish.
func (p *Pool) Stop(timeout time.Duration) error {
	var err error
	p.stopOnce.Do(func() {
		p.logger.Info("stopping delivery worker pool", zap.String("name", p.name))
		close(p.stopChan)

		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			p.logger.Info("delivery worker pool stopped gracefully", zap.String("name", p.name))
		case <-time.After(timeout):
			err = fmt.Errorf("worker pool '%s' stop timeout after %v", p.name, timeout)
			p.logger.Warn("delivery worker pool stop timeout", zap.String("name", p.name))
		}
	})
	return err
}

// Stats returns current pool statistics.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	inFlight := len(p.inFlight)
	p.mu.Unlock()

	return Stats{
		Name:           p.name,
		MaxWorkers:     p.maxWorkers,
		ActiveWorkers:  int(atomic.LoadInt32(&p.activeWorkers)),
		QueueSize:      p.queueSize,
		QueuedTasks:    len(p.taskQueue),
		InFlightTargets: inFlight,
		TotalTasks:     atomic.LoadUint64(&p.totalTasks),
		CompletedTasks: atomic.LoadUint64(&p.completedTasks),
		FailedTasks:    atomic.LoadUint64(&p.failedTasks),
		RejectedTasks:  atomic.LoadUint64(&p.rejectedTasks),
	}
}

// Stats represents worker pool statistics.
type Stats struct {
	Name            string
	MaxWorkers      int
	ActiveWorkers   int
	QueueSize       int
	QueuedTasks     int
	InFlightTargets int
	TotalTasks      uint64
	CompletedTasks  uint64
	FailedTasks     uint64
	RejectedTasks   uint64
}

// QueueUtilization returns the queue utilization as a percentage.
func (s Stats) QueueUtilization() float64 {
	if s.QueueSize == 0 {
		return 0
	}
	return float64(s.QueuedTasks) / float64(s.QueueSize) * 100
}

// WorkerUtilization returns the worker utilization as a percentage.
func (s Stats) WorkerUtilization() float64 {
	if s.MaxWorkers == 0 {
		return 0
	}
	return float64(s.ActiveWorkers) / float64(s.MaxWorkers) * 100
}

// SuccessRate returns the percentage of completed (vs failed) tasks.
func (s Stats) SuccessRate() float64 {
	total := s.CompletedTasks + s.FailedTasks
	if total == 0 {
		return 0
	}
	return float64(s.CompletedTasks) / float64(total) * 100
}
