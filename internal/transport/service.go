package transport

import (
	"context"

	"google.golang.org/grpc"
)

// HandoffServer is implemented by anything that can accept a hint delivered
// over the wire and apply it locally.
type HandoffServer interface {
	Deliver(ctx context.Context, in *HintEnvelope) (*Ack, error)
}

// serviceDesc is hand-written rather than generated by protoc-gen-go-grpc:
// its method handlers only need a decode function, not a compiled
// descriptor, so it can be authored directly against the stable grpc.ServiceDesc
// shape without running the protobuf toolchain.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: "hintmgr.Handoff",
	HandlerType: (*HandoffServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Deliver",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(HintEnvelope)
				if err := dec(in); err != nil {
					return nil, err
				}
				if interceptor == nil {
					return srv.(HandoffServer).Deliver(ctx, in)
				}
				info := &grpc.UnaryServerInfo{
					Server:     srv,
					FullMethod: "/hintmgr.Handoff/Deliver",
				}
				handler := func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(HandoffServer).Deliver(ctx, req.(*HintEnvelope))
				}
				return interceptor(ctx, in, info, handler)
			},
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "hintmgr/handoff.proto",
}

// RegisterHandoffServer registers srv as the handler for the Handoff service
// on s.
func RegisterHandoffServer(s *grpc.Server, srv HandoffServer) {
	s.RegisterService(&serviceDesc, srv)
}

// HandoffClient is the client-side stub for the Handoff service.
type HandoffClient interface {
	Deliver(ctx context.Context, in *HintEnvelope, opts ...grpc.CallOption) (*Ack, error)
}

type handoffClient struct {
	cc grpc.ClientConnInterface
}

// NewHandoffClient creates a client stub bound to cc.
func NewHandoffClient(cc grpc.ClientConnInterface) HandoffClient {
	return &handoffClient{cc: cc}
}

func (c *handoffClient) Deliver(ctx context.Context, in *HintEnvelope, opts ...grpc.CallOption) (*Ack, error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(codecName)}, opts...)
	out := new(Ack)
	if err := c.cc.Invoke(ctx, "/hintmgr.Handoff/Deliver", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
