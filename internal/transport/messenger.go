package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pairdb/hintmgr/internal/model"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Messenger is the RPC contract consumed by the delivery session: send one
// hint row to a target and learn, asynchronously, whether it was accepted.
type Messenger interface {
	// Send delivers a hint row to target's address and returns a future
	// that resolves once the target acknowledges, the context is
	// cancelled, or the send times out.
	Send(ctx context.Context, addr string, key model.HintKey, mutationBytes []byte) <-chan AckResult
	Close() error
}

// AckResult is the resolved value of the future returned by Send.
type AckResult struct {
	Ack *Ack
	Err error
}

// GRPCMessenger is a Messenger backed by pooled gRPC client connections,
// one per target address, reusing the connection across sends the same way
// a coordinator client reuses a single dialed connection across calls.
type GRPCMessenger struct {
	mu      sync.Mutex
	conns   map[string]*grpc.ClientConn
	timeout time.Duration
	logger  *zap.Logger
}

// NewGRPCMessenger creates a Messenger whose individual sends are bounded by
// timeout.
func NewGRPCMessenger(timeout time.Duration, logger *zap.Logger) *GRPCMessenger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GRPCMessenger{
		conns:   make(map[string]*grpc.ClientConn),
		timeout: timeout,
		logger:  logger,
	}
}

func (m *GRPCMessenger) clientFor(addr string) (HandoffClient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.conns[addr]
	if !ok {
		var err error
		conn, err = grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
		}
		m.conns[addr] = conn
	}
	return NewHandoffClient(conn), nil
}

// Send implements Messenger.
func (m *GRPCMessenger) Send(ctx context.Context, addr string, key model.HintKey, mutationBytes []byte) <-chan AckResult {
	out := make(chan AckResult, 1)

	client, err := m.clientFor(addr)
	if err != nil {
		out <- AckResult{Err: err}
		close(out)
		return out
	}

	go func() {
		defer close(out)

		sendCtx, cancel := context.WithTimeout(ctx, m.timeout)
		defer cancel()

		ack, err := client.Deliver(sendCtx, &HintEnvelope{Key: key, MutationBytes: mutationBytes})
		if err != nil {
			out <- AckResult{Err: err}
			return
		}
		out <- AckResult{Ack: ack}
	}()

	return out
}

// Close tears down every pooled connection.
func (m *GRPCMessenger) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var lastErr error
	for addr, conn := range m.conns {
		if err := conn.Close(); err != nil {
			m.logger.Warn("failed to close connection", zap.String("addr", addr), zap.Error(err))
			lastErr = err
		}
	}
	m.conns = make(map[string]*grpc.ClientConn)
	return lastErr
}
