package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/pairdb/hintmgr/internal/cluster"
	"github.com/pairdb/hintmgr/internal/config"
	"github.com/pairdb/hintmgr/internal/handoff"
	"github.com/pairdb/hintmgr/internal/health"
	"github.com/pairdb/hintmgr/internal/management"
	"github.com/pairdb/hintmgr/internal/metrics"
	"github.com/pairdb/hintmgr/internal/model"
	"github.com/pairdb/hintmgr/internal/ratelimiter"
	"github.com/pairdb/hintmgr/internal/server"
	"github.com/pairdb/hintmgr/internal/store"
	"github.com/pairdb/hintmgr/internal/transport"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

func main() {
	logger, err := initLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config.yaml"
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	logger.Info("configuration loaded",
		zap.String("node_id", cfg.Server.NodeID),
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port))

	if err := os.MkdirAll(cfg.Store.DataDir, 0755); err != nil {
		logger.Fatal("failed to create hint store directory", zap.Error(err))
	}

	m := metrics.NewMetrics(cfg.Server.NodeID)

	hintStore, err := store.Open(cfg.Store.DBFile, logger)
	if err != nil {
		logger.Fatal("failed to open hint store", zap.Error(err))
	}
	defer hintStore.Close()

	messenger := transport.NewGRPCMessenger(cfg.Transport.SendTimeout, logger)
	defer messenger.Close()

	rateLimiter := ratelimiter.New(cfg.Handoff.HintedHandoffThrottleKB, 1)

	var gossip *cluster.Gossip
	if cfg.Gossip.Enabled {
		gossip, err = cluster.New(&cluster.Config{
			NodeID:         cfg.Server.NodeID,
			Addr:           fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			SchemaVersion:  "1",
			BindPort:       cfg.Gossip.BindPort,
			SeedNodes:      cfg.Gossip.SeedNodes,
			GossipInterval: cfg.Gossip.GossipInterval,
			ProbeTimeout:   cfg.Gossip.ProbeTimeout,
			ProbeInterval:  cfg.Gossip.ProbeInterval,
		}, logger)
		if err != nil {
			logger.Fatal("failed to initialize gossip", zap.Error(err))
		}
		defer gossip.Shutdown()
	}

	deps := &handoff.Deps{
		Store:     hintStore,
		Messenger: messenger,
		Limiter:   rateLimiter,
		Metrics:   m,
		Logger:    logger,
	}
	if gossip != nil {
		deps.FailureDetector = gossip
		deps.SchemaGossip = gossip
		deps.Addresses = gossip
	} else {
		logger.Warn("gossip disabled: hint delivery will not be able to resolve or reach targets")
	}

	manager := handoff.New(deps, &handoff.Config{
		MaxHintThreads:          cfg.Handoff.MaxHintThreads,
		MaxHintTTL:              cfg.Handoff.MaxHintTTL,
		InMemoryCompactionLimit: cfg.Handoff.InMemoryCompactionLimit,
		RingDelay:               cfg.Handoff.RingDelay,
		TombstoneWarnThreshold:  cfg.Handoff.TombstoneWarnThreshold,
	}, logger)

	if gossip != nil {
		gossip.OnAlive(func(nodeID string) {
			targetID, err := uuid.Parse(nodeID)
			if err != nil {
				logger.Debug("ignoring alive event for non-uuid node id", zap.String("node_id", nodeID))
				return
			}
			if err := manager.DeliverNow(targetID); err != nil {
				logger.Debug("event-driven delivery skipped",
					zap.String("target_id", nodeID), zap.Error(err))
			}
		})
	}

	scheduler := handoff.NewScheduler(manager, cfg.Handoff.SweepInterval, logger)
	scheduler.Start()
	defer scheduler.Stop()

	healthCtx, cancelHealth := context.WithCancel(context.Background())
	if gossip != nil {
		go periodicallyRescaleLimiter(rateLimiter, gossip, m)
		checker := health.New(health.Config{DataDir: cfg.Store.DataDir}, gossip, logger)
		go checker.Run(healthCtx)
	}

	applyServer := handoff.NewApplyServer(&noopApplier{logger: logger}, logger)

	grpcServer := grpc.NewServer(
		grpc.MaxConcurrentStreams(uint32(cfg.Server.MaxConnections)),
	)
	transport.RegisterHandoffServer(grpcServer, applyServer)
	management.RegisterService(grpcServer, management.NewService(manager))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Fatal("failed to listen", zap.Error(err))
	}

	var metricsServer *server.MetricsServer
	if cfg.Metrics.Enabled {
		metricsServer = server.NewMetricsServer(&server.MetricsServerConfig{
			Port: cfg.Metrics.Port,
			Path: cfg.Metrics.Path,
		}, manager, logger)
		if err := metricsServer.Start(); err != nil {
			logger.Error("failed to start metrics server", zap.Error(err))
		}
	}

	logger.Info("hinted handoff manager starting",
		zap.String("node_id", cfg.Server.NodeID),
		zap.String("address", addr))

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down gracefully...")
		cancelHealth()

		if err := manager.Shutdown(cfg.Server.ShutdownTimeout); err != nil {
			logger.Error("failed to shut down delivery worker pool", zap.Error(err))
		}
		if metricsServer != nil {
			if err := metricsServer.Stop(); err != nil {
				logger.Error("failed to stop metrics server", zap.Error(err))
			}
		}
		grpcServer.GracefulStop()
	}()

	if err := grpcServer.Serve(listener); err != nil {
		logger.Fatal("failed to serve", zap.Error(err))
	}
}

// periodicallyRescaleLimiter keeps the rate limiter's per-node budget in
// step with the observed cluster size, since the global throttle is divided
// across the cluster rather than fixed at startup.
func periodicallyRescaleLimiter(limiter *ratelimiter.Limiter, membership cluster.Membership, m *metrics.Metrics) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		size := membership.ClusterSize()
		limiter.SetClusterSize(size)
		m.UpdateRateLimiterStats(limiter.Tokens())
	}
}

// noopApplier is the default StorageApplier used when this process is run
// standalone, without an embedding storage engine: it accepts every
// replayed mutation, logs it, and acks. A real deployment wires a
// StorageApplier backed by its actual storage layer.
type noopApplier struct {
	logger *zap.Logger
}

func (a *noopApplier) Apply(ctx context.Context, mutation *model.Mutation) error {
	a.logger.Debug("applied replayed mutation",
		zap.String("keyspace", mutation.Keyspace),
		zap.String("key", mutation.Key),
		zap.Int("column_families", len(mutation.ColumnFamilies)))
	return nil
}

func initLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	return cfg.Build()
}
