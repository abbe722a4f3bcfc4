// Package cluster adapts hashicorp/memberlist into the Membership,
// FailureDetector and SchemaGossip contracts consumed by the handoff
// manager, piggybacking each node's schema version, RPC address, and health
// status onto the same gossiped node-metadata delegate pattern.
package cluster

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/memberlist"
	"github.com/pairdb/hintmgr/internal/model"
	"go.uber.org/zap"
)

// Member describes a peer as seen through gossip.
type Member struct {
	NodeID        string
	Addr          string
	SchemaVersion string
	Status        model.NodeStatus
	Alive         bool
}

// Membership reports the set of peers currently known to the cluster.
type Membership interface {
	Members() []Member
	ClusterSize() int
}

// FailureDetector reports whether a given peer is currently considered
// reachable, and lets a caller subscribe to be notified the instant a peer
// transitions to alive, so hint delivery can be retried event-driven instead
// of waiting for the next scheduled sweep.
type FailureDetector interface {
	IsAlive(nodeID string) bool
	OnAlive(cb func(nodeID string))
}

// SchemaGossip reports the schema version a peer last advertised, used to
// gate delivery until the sender and target agree on schema.
type SchemaGossip interface {
	SchemaVersionOf(nodeID string) (string, bool)
	LocalSchemaVersion() string
}

// AddressResolver resolves a gossiped node ID to the transport address the
// handoff manager should dial to reach it.
type AddressResolver interface {
	AddrOf(nodeID string) (string, bool)
}

// Config configures a Gossip instance.
type Config struct {
	NodeID         string
	Addr           string // host:port of this node's transport listener
	SchemaVersion  string
	BindPort       int
	SeedNodes      []string
	GossipInterval time.Duration
	ProbeTimeout   time.Duration
	ProbeInterval  time.Duration
}

// nodeMeta is the payload gossiped via memberlist.Delegate.
type nodeMeta struct {
	NodeID        string
	Addr          string
	SchemaVersion string
	Status        model.NodeStatus
	Metrics       model.HealthMetrics
}

// Gossip implements Membership, FailureDetector, and SchemaGossip on top of
// a single memberlist.Memberlist instance.
type Gossip struct {
	mu             sync.RWMutex
	ml             *memberlist.Memberlist
	local          nodeMeta
	logger         *zap.Logger
	schemaByID     map[string]string
	addrByID       map[string]string
	statusByID     map[string]model.NodeStatus
	aliveCallbacks []func(nodeID string)
}

// New creates and joins a gossip cluster.
func New(cfg *Config, logger *zap.Logger) (*Gossip, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	g := &Gossip{
		local: nodeMeta{
			NodeID:        cfg.NodeID,
			Addr:          cfg.Addr,
			SchemaVersion: cfg.SchemaVersion,
			Status:        model.NodeStatusHealthy,
		},
		logger:     logger,
		schemaByID: make(map[string]string),
		addrByID:   make(map[string]string),
		statusByID: make(map[string]model.NodeStatus),
	}

	mlConfig := memberlist.DefaultLocalConfig()
	mlConfig.Name = cfg.NodeID
	mlConfig.BindPort = cfg.BindPort
	if cfg.GossipInterval > 0 {
		mlConfig.GossipInterval = cfg.GossipInterval
	}
	if cfg.ProbeTimeout > 0 {
		mlConfig.ProbeTimeout = cfg.ProbeTimeout
	}
	if cfg.ProbeInterval > 0 {
		mlConfig.ProbeInterval = cfg.ProbeInterval
	}
	mlConfig.Delegate = g
	mlConfig.Events = &eventDelegate{gossip: g}

	ml, err := memberlist.Create(mlConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create memberlist: %w", err)
	}
	g.ml = ml

	if len(cfg.SeedNodes) > 0 {
		if _, err := ml.Join(cfg.SeedNodes); err != nil {
			logger.Warn("failed to join some seed nodes", zap.Error(err))
		}
	}

	g.mu.Lock()
	g.schemaByID[cfg.NodeID] = cfg.SchemaVersion
	g.addrByID[cfg.NodeID] = cfg.Addr
	g.mu.Unlock()

	return g, nil
}

// Members implements Membership.
func (g *Gossip) Members() []Member {
	nodes := g.ml.Members()
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]Member, 0, len(nodes))
	for _, n := range nodes {
		status := g.statusByID[n.Name]
		if status == "" {
			status = model.NodeStatusHealthy
		}
		out = append(out, Member{
			NodeID:        n.Name,
			Addr:          g.addrByID[n.Name],
			SchemaVersion: g.schemaByID[n.Name],
			Status:        status,
			Alive:         true,
		})
	}
	return out
}

// ClusterSize implements Membership.
func (g *Gossip) ClusterSize() int {
	return g.ml.NumMembers()
}

// IsAlive implements FailureDetector.
func (g *Gossip) IsAlive(nodeID string) bool {
	for _, n := range g.ml.Members() {
		if n.Name == nodeID {
			return true
		}
	}
	return false
}

// OnAlive implements FailureDetector, registering cb to be called with a
// peer's node ID every time memberlist reports it joining the cluster.
func (g *Gossip) OnAlive(cb func(nodeID string)) {
	g.mu.Lock()
	g.aliveCallbacks = append(g.aliveCallbacks, cb)
	g.mu.Unlock()
}

func (g *Gossip) notifyAlive(nodeID string) {
	g.mu.RLock()
	cbs := append([]func(string){}, g.aliveCallbacks...)
	g.mu.RUnlock()
	for _, cb := range cbs {
		cb(nodeID)
	}
}

// SchemaVersionOf implements SchemaGossip.
func (g *Gossip) SchemaVersionOf(nodeID string) (string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	v, ok := g.schemaByID[nodeID]
	return v, ok
}

// LocalSchemaVersion implements SchemaGossip.
func (g *Gossip) LocalSchemaVersion() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.local.SchemaVersion
}

// SetLocalSchemaVersion updates the version advertised on the next gossip
// round, used after a local schema migration completes.
func (g *Gossip) SetLocalSchemaVersion(v string) {
	g.mu.Lock()
	g.local.SchemaVersion = v
	g.schemaByID[g.local.NodeID] = v
	g.mu.Unlock()
}

// UpdateHealthStatus records the local node's latest resource metrics and
// derives its advertised NodeStatus from them, gossiped to peers on the next
// round via NodeMeta/LocalState. A node reporting resource exhaustion is
// marked degraded; one with a high error rate and no resource exhaustion is
// marked unhealthy. Resource exhaustion takes precedence, so a node with both
// is reported degraded.
func (g *Gossip) UpdateHealthStatus(metrics model.HealthMetrics) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.local.Metrics = metrics
	switch {
	case metrics.CPUUsage > 90 || metrics.MemoryUsage > 90 || metrics.DiskUsage > 90:
		g.local.Status = model.NodeStatusDegraded
	case metrics.ErrorRate > 0.1:
		g.local.Status = model.NodeStatusUnhealthy
	default:
		g.local.Status = model.NodeStatusHealthy
	}
	g.statusByID[g.local.NodeID] = g.local.Status
}

// StatusOf returns the last-gossiped NodeStatus for nodeID.
func (g *Gossip) StatusOf(nodeID string) (model.NodeStatus, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s, ok := g.statusByID[nodeID]
	return s, ok
}

// AddrOf returns the advertised transport address for nodeID.
func (g *Gossip) AddrOf(nodeID string) (string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	addr, ok := g.addrByID[nodeID]
	return addr, ok
}

// Shutdown leaves the cluster and releases gossip resources.
func (g *Gossip) Shutdown() error {
	if err := g.ml.Leave(5 * time.Second); err != nil {
		g.logger.Warn("error leaving cluster", zap.Error(err))
	}
	return g.ml.Shutdown()
}

// NodeMeta implements memberlist.Delegate.
func (g *Gossip) NodeMeta(limit int) []byte {
	g.mu.RLock()
	data, _ := json.Marshal(g.local)
	g.mu.RUnlock()
	if len(data) > limit {
		return data[:limit]
	}
	return data
}

// NotifyMsg implements memberlist.Delegate.
func (g *Gossip) NotifyMsg(data []byte) {
	var meta nodeMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		g.logger.Warn("failed to unmarshal gossip message", zap.Error(err))
		return
	}
	g.recordMeta(meta)
}

// GetBroadcasts implements memberlist.Delegate.
func (g *Gossip) GetBroadcasts(overhead, limit int) [][]byte {
	return nil
}

// LocalState implements memberlist.Delegate.
func (g *Gossip) LocalState(join bool) []byte {
	g.mu.RLock()
	data, _ := json.Marshal(g.local)
	g.mu.RUnlock()
	return data
}

// MergeRemoteState implements memberlist.Delegate.
func (g *Gossip) MergeRemoteState(buf []byte, join bool) {
	var meta nodeMeta
	if err := json.Unmarshal(buf, &meta); err != nil {
		g.logger.Warn("failed to unmarshal remote state", zap.Error(err))
		return
	}
	g.recordMeta(meta)
}

func (g *Gossip) recordMeta(meta nodeMeta) {
	if meta.NodeID == "" {
		return
	}
	g.mu.Lock()
	g.schemaByID[meta.NodeID] = meta.SchemaVersion
	g.addrByID[meta.NodeID] = meta.Addr
	g.statusByID[meta.NodeID] = meta.Status
	g.mu.Unlock()
}

type eventDelegate struct {
	gossip *Gossip
}

func (d *eventDelegate) NotifyJoin(node *memberlist.Node) {
	d.gossip.logger.Info("node joined", zap.String("node_id", node.Name), zap.String("addr", node.Addr.String()))
	d.gossip.notifyAlive(node.Name)
}

func (d *eventDelegate) NotifyLeave(node *memberlist.Node) {
	d.gossip.logger.Info("node left", zap.String("node_id", node.Name))
	d.gossip.mu.Lock()
	delete(d.gossip.schemaByID, node.Name)
	delete(d.gossip.addrByID, node.Name)
	delete(d.gossip.statusByID, node.Name)
	d.gossip.mu.Unlock()
}

func (d *eventDelegate) NotifyUpdate(node *memberlist.Node) {
	d.gossip.logger.Debug("node updated", zap.String("node_id", node.Name))
}
