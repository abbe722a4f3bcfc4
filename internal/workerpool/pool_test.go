package workerpool_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pairdb/hintmgr/internal/workerpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestPool(t *testing.T, maxWorkers int) *workerpool.Pool {
	t.Helper()
	p := workerpool.New(&workerpool.Config{
		Name:       "test",
		MaxWorkers: maxWorkers,
		QueueSize:  10,
		Logger:     zap.NewNop(),
	})
	t.Cleanup(func() { p.Stop(time.Second) })
	return p
}

func TestPool_RejectsSecondTaskForSameTarget(t *testing.T) {
	p := newTestPool(t, 1)

	release := make(chan struct{})
	started := make(chan struct{})

	err := p.Submit(workerpool.Task{
		TargetID: "target-a",
		Fn: func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		},
	})
	require.NoError(t, err)

	<-started

	err = p.Submit(workerpool.Task{TargetID: "target-a", Fn: func(ctx context.Context) error { return nil }})
	assert.ErrorIs(t, err, workerpool.ErrTargetBusy)

	close(release)
}

func TestPool_AllowsDifferentTargetsConcurrently(t *testing.T) {
	p := newTestPool(t, 2)

	var wg sync.WaitGroup
	wg.Add(2)

	for _, target := range []string{"a", "b"} {
		target := target
		err := p.Submit(workerpool.Task{
			TargetID: target,
			Fn: func(ctx context.Context) error {
				defer wg.Done()
				return nil
			},
		})
		require.NoError(t, err)
	}

	wg.Wait()
}

func TestPool_ReadmitsTargetAfterCompletion(t *testing.T) {
	p := newTestPool(t, 1)

	done := make(chan struct{})
	require.NoError(t, p.Submit(workerpool.Task{
		TargetID: "target-a",
		Fn: func(ctx context.Context) error {
			close(done)
			return nil
		},
	}))
	<-done

	assert.Eventually(t, func() bool {
		return !p.IsInFlight("target-a")
	}, time.Second, 10*time.Millisecond)

	err := p.Submit(workerpool.Task{TargetID: "target-a", Fn: func(ctx context.Context) error { return nil }})
	assert.NoError(t, err)
}
