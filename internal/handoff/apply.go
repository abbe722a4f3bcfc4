package handoff

import (
	"context"

	"github.com/pairdb/hintmgr/internal/codec"
	hmerrors "github.com/pairdb/hintmgr/internal/errors"
	"github.com/pairdb/hintmgr/internal/model"
	"github.com/pairdb/hintmgr/internal/transport"
	"go.uber.org/zap"
)

// StorageApplier applies a replayed mutation to local storage. The handoff
// manager does not implement a storage engine itself; it depends on one
// being supplied by the process embedding it.
type StorageApplier interface {
	Apply(ctx context.Context, mutation *model.Mutation) error
}

// ApplyServer implements transport.HandoffServer by deserializing the
// incoming hint's mutation and handing it to a StorageApplier, acking only
// once the local apply succeeds.
type ApplyServer struct {
	applier StorageApplier
	logger  *zap.Logger
}

// NewApplyServer creates an ApplyServer bound to applier.
func NewApplyServer(applier StorageApplier, logger *zap.Logger) *ApplyServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApplyServer{applier: applier, logger: logger}
}

var _ transport.HandoffServer = (*ApplyServer)(nil)

// Deliver implements transport.HandoffServer.
func (a *ApplyServer) Deliver(ctx context.Context, in *transport.HintEnvelope) (*transport.Ack, error) {
	mutation, err := deserializeOrReject(in.MutationBytes)
	if err != nil {
		return &transport.Ack{Key: in.Key, Accepted: false, Reason: err.Error()}, nil
	}

	if err := a.applier.Apply(ctx, mutation); err != nil {
		a.logger.Warn("failed to apply replayed mutation",
			zap.String("hint_id", in.Key.HintID.String()),
			zap.Error(err))
		return &transport.Ack{Key: in.Key, Accepted: false, Reason: err.Error()}, nil
	}

	return &transport.Ack{Key: in.Key, Accepted: true}, nil
}

func deserializeOrReject(data []byte) (*model.Mutation, error) {
	mutation, err := codec.DeserializeMutation(data)
	if err != nil {
		return nil, hmerrors.CorruptMutation("failed to deserialize replayed mutation", err)
	}
	return mutation, nil
}
