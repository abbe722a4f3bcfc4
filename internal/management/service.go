// Package management exposes the hinted handoff manager's control surface
// (the JMX-equivalent operations an operator drives: pause, resume, force
// delivery, purge, truncate) as a small gRPC service, thin enough that it is
// mostly a marshaling layer over a *handoff.Manager.
package management

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pairdb/hintmgr/internal/handoff"
	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

const codecName = "hintmgr-msgpack"

// Service implements the management RPC surface over a *handoff.Manager.
type Service struct {
	manager *handoff.Manager
}

// NewService creates a management Service bound to manager.
func NewService(manager *handoff.Manager) *Service {
	return &Service{manager: manager}
}

// Pause pauses hint delivery on this node only.
func (s *Service) Pause(ctx context.Context, _ *Empty) (*StatusResponse, error) {
	s.manager.Pause()
	return &StatusResponse{OK: true}, nil
}

// Resume resumes hint delivery on this node.
func (s *Service) Resume(ctx context.Context, _ *Empty) (*StatusResponse, error) {
	s.manager.Resume()
	return &StatusResponse{OK: true}, nil
}

// ListPendingTargets lists targets with at least one stored hint.
func (s *Service) ListPendingTargets(ctx context.Context, _ *Empty) (*PendingTargetsResponse, error) {
	targets, err := s.manager.ListPendingTargets()
	if err != nil {
		return nil, err
	}
	resp := &PendingTargetsResponse{}
	for _, t := range targets {
		resp.TargetIDs = append(resp.TargetIDs, t.String())
	}
	return resp, nil
}

// DeliverNow requests an immediate delivery session for req.TargetID.
func (s *Service) DeliverNow(ctx context.Context, req *TargetRequest) (*StatusResponse, error) {
	id, err := uuid.Parse(req.TargetID)
	if err != nil {
		return nil, fmt.Errorf("invalid target_id: %w", err)
	}
	if err := s.manager.DeliverNow(id); err != nil {
		return &StatusResponse{OK: false, Error: err.Error()}, nil
	}
	return &StatusResponse{OK: true}, nil
}

// PurgeEndpoint discards every pending hint for req.TargetID.
func (s *Service) PurgeEndpoint(ctx context.Context, req *PurgeRequest) (*StatusResponse, error) {
	id, err := uuid.Parse(req.TargetID)
	if err != nil {
		return nil, fmt.Errorf("invalid target_id: %w", err)
	}
	if err := s.manager.PurgeEndpoint(id); err != nil {
		return &StatusResponse{OK: false, Error: err.Error()}, nil
	}
	return &StatusResponse{OK: true}, nil
}

// TruncateAllHints discards every pending hint for every target.
func (s *Service) TruncateAllHints(ctx context.Context, _ *Empty) (*StatusResponse, error) {
	if err := s.manager.TruncateAll(); err != nil {
		return &StatusResponse{OK: false, Error: err.Error()}, nil
	}
	return &StatusResponse{OK: true}, nil
}

// PoolStats reports the delivery worker pool's current statistics.
func (s *Service) PoolStats(ctx context.Context, _ *Empty) (*PoolStatsResponse, error) {
	stats := s.manager.PoolStats()
	return &PoolStatsResponse{
		MaxWorkers:      stats.MaxWorkers,
		ActiveWorkers:   stats.ActiveWorkers,
		QueuedTasks:     stats.QueuedTasks,
		InFlightTargets: stats.InFlightTargets,
		TotalTasks:      stats.TotalTasks,
		CompletedTasks:  stats.CompletedTasks,
		FailedTasks:     stats.FailedTasks,
		RejectedTasks:   stats.RejectedTasks,
	}, nil
}

func init() {
	// Registration is idempotent-by-name at the grpc/encoding layer; the
	// transport package registers the same codec, but management may be
	// wired into a process that never imports transport directly.
	encoding.RegisterCodec(passthroughCodec{})
}

// passthroughCodec mirrors transport's msgpack codec so the management
// service can be registered on a gRPC server independently of the transport
// package.
type passthroughCodec struct{}

func (passthroughCodec) Marshal(v interface{}) ([]byte, error) {
	return marshal(v)
}

func (passthroughCodec) Unmarshal(data []byte, v interface{}) error {
	return unmarshal(data, v)
}

func (passthroughCodec) Name() string {
	return codecName
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: "hintmgr.Management",
	HandlerType: (*managementServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("Pause", func(s interface{}, ctx context.Context, in *Empty) (interface{}, error) {
			return s.(managementServer).Pause(ctx, in)
		}, func() interface{} { return new(Empty) }),
		unaryMethod("Resume", func(s interface{}, ctx context.Context, in *Empty) (interface{}, error) {
			return s.(managementServer).Resume(ctx, in)
		}, func() interface{} { return new(Empty) }),
		unaryMethod("ListPendingTargets", func(s interface{}, ctx context.Context, in *Empty) (interface{}, error) {
			return s.(managementServer).ListPendingTargets(ctx, in)
		}, func() interface{} { return new(Empty) }),
		unaryMethod("DeliverNow", func(s interface{}, ctx context.Context, in *TargetRequest) (interface{}, error) {
			return s.(managementServer).DeliverNow(ctx, in)
		}, func() interface{} { return new(TargetRequest) }),
		unaryMethod("PurgeEndpoint", func(s interface{}, ctx context.Context, in *PurgeRequest) (interface{}, error) {
			return s.(managementServer).PurgeEndpoint(ctx, in)
		}, func() interface{} { return new(PurgeRequest) }),
		unaryMethod("TruncateAllHints", func(s interface{}, ctx context.Context, in *Empty) (interface{}, error) {
			return s.(managementServer).TruncateAllHints(ctx, in)
		}, func() interface{} { return new(Empty) }),
		unaryMethod("PoolStats", func(s interface{}, ctx context.Context, in *Empty) (interface{}, error) {
			return s.(managementServer).PoolStats(ctx, in)
		}, func() interface{} { return new(Empty) }),
	},
	Metadata: "hintmgr/management.proto",
}

// RegisterService registers svc on grpcServer.
func RegisterService(grpcServer *grpc.Server, svc *Service) {
	grpcServer.RegisterService(&serviceDesc, svc)
}
