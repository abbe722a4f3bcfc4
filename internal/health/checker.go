// Package health samples local resource pressure and feeds it into the
// cluster's gossiped health status, the same disk/data-dir checks the
// storage node this was adapted from used for its Kubernetes probes, now
// driving peer-visible NodeStatus instead of a standalone HTTP endpoint.
package health

import (
	"context"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/pairdb/hintmgr/internal/model"
	"go.uber.org/zap"
)

// StatusReporter receives periodic local health metrics, typically
// *cluster.Gossip.
type StatusReporter interface {
	UpdateHealthStatus(model.HealthMetrics)
}

// Checker periodically samples the hint store's data directory and reports
// the result to a StatusReporter.
type Checker struct {
	dataDir  string
	interval time.Duration
	reporter StatusReporter
	logger   *zap.Logger
}

// Config configures a Checker.
type Config struct {
	DataDir  string
	Interval time.Duration
}

// New creates a Checker. interval defaults to 10 seconds if unset.
func New(cfg Config, reporter StatusReporter, logger *zap.Logger) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Checker{dataDir: cfg.DataDir, interval: interval, reporter: reporter, logger: logger}
}

// Run samples health metrics on a ticker until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.sample()
	for {
		select {
		case <-ticker.C:
			c.sample()
		case <-ctx.Done():
			c.logger.Info("health checker stopped")
			return
		}
	}
}

func (c *Checker) sample() {
	metrics := model.HealthMetrics{
		DiskUsage: c.diskUsagePercent(),
	}
	if err := c.checkDataDirWritable(); err != nil {
		c.logger.Warn("data directory not writable", zap.Error(err))
		metrics.ErrorRate = 1.0
	}
	c.reporter.UpdateHealthStatus(metrics)
	c.logger.Debug("health sample recorded", zap.Float64("disk_usage_pct", metrics.DiskUsage))
}

func (c *Checker) diskUsagePercent() float64 {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(c.dataDir, &stat); err != nil {
		c.logger.Warn("failed to stat data directory filesystem", zap.Error(err))
		return 0
	}
	total := stat.Blocks * uint64(stat.Bsize)
	if total == 0 {
		return 0
	}
	used := total - (stat.Bfree * uint64(stat.Bsize))
	return float64(used) / float64(total) * 100
}

func (c *Checker) checkDataDirWritable() error {
	info, err := os.Stat(c.dataDir)
	if err != nil {
		return fmt.Errorf("data directory not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("data path is not a directory")
	}

	probe := fmt.Sprintf("%s/.health_check_%d", c.dataDir, time.Now().UnixNano())
	f, err := os.Create(probe)
	if err != nil {
		return fmt.Errorf("cannot write to data directory: %w", err)
	}
	f.Close()
	return os.Remove(probe)
}
