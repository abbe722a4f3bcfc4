package management

import (
	"context"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	"google.golang.org/grpc"
)

func marshal(v interface{}) ([]byte, error) {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("msgpack codec: marshal failed: %w", err)
	}
	return data, nil
}

func unmarshal(data []byte, v interface{}) error {
	if err := msgpack.Unmarshal(data, v); err != nil {
		return fmt.Errorf("msgpack codec: unmarshal failed: %w", err)
	}
	return nil
}

// managementServer is the full method set Service implements; the
// hand-written ServiceDesc below dispatches through this interface instead
// of a protoc-generated one.
type managementServer interface {
	Pause(context.Context, *Empty) (*StatusResponse, error)
	Resume(context.Context, *Empty) (*StatusResponse, error)
	ListPendingTargets(context.Context, *Empty) (*PendingTargetsResponse, error)
	DeliverNow(context.Context, *TargetRequest) (*StatusResponse, error)
	PurgeEndpoint(context.Context, *PurgeRequest) (*StatusResponse, error)
	TruncateAllHints(context.Context, *Empty) (*StatusResponse, error)
	PoolStats(context.Context, *Empty) (*PoolStatsResponse, error)
}

// unaryMethod builds a grpc.MethodDesc for a unary RPC whose request type is
// In, decoding via newIn and dispatching through call.
func unaryMethod[In any](name string, call func(srv interface{}, ctx context.Context, in *In) (interface{}, error), newIn func() interface{}) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := newIn().(*In)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/hintmgr.Management/" + name}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv, ctx, req.(*In))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}
