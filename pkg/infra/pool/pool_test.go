package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	options "github.com/kart-io/okr-assistant/pkg/options/pool"
)

func newTestPool(t *testing.T, capacity int) *Pool {
	t.Helper()
	opts := options.NewOptions()
	opts.Capacity = capacity
	p, err := NewPool("test", opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.ReleaseTimeout(time.Second) })
	return p
}

func TestPoolSubmit(t *testing.T) {
	p := newTestPool(t, 10)

	var counter atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		err := p.Submit(func() {
			defer wg.Done()
			counter.Add(1)
		})
		require.NoError(t, err)
	}
	wg.Wait()

	assert.Equal(t, int32(100), counter.Load())
	assert.Equal(t, "test", p.Name())
	assert.Equal(t, 10, p.Cap())
}

func TestPoolSubmitWithContext_Cancelled(t *testing.T) {
	p := newTestPool(t, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.SubmitWithContext(ctx, func() { t.Error("任务不应执行") })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPoolPanicIsRecovered(t *testing.T) {
	p := newTestPool(t, 2)

	done := make(chan struct{})
	require.NoError(t, p.Submit(func() {
		defer close(done)
		panic("boom")
	}))
	<-done

	assert.Eventually(t, func() bool { return p.Stats().PanicRecovered == 1 }, time.Second, 10*time.Millisecond)

	// 池在 panic 后仍可用
	var ran atomic.Bool
	var wg sync.WaitGroup
	wg.Add(1)
	require.NoError(t, p.Submit(func() { defer wg.Done(); ran.Store(true) }))
	wg.Wait()
	assert.True(t, ran.Load())
}

func TestPoolSubmitAfterRelease(t *testing.T) {
	opts := options.NewOptions()
	p, err := NewPool("closed", opts)
	require.NoError(t, err)
	require.NoError(t, p.ReleaseTimeout(time.Second))

	assert.ErrorIs(t, p.Submit(func() {}), ErrPoolClosed)
}
