package biz

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/okr-assistant/pkg/infra/pool"
	"github.com/kart-io/okr-assistant/pkg/observability/metrics"
	poolopts "github.com/kart-io/okr-assistant/pkg/options/pool"
)

func TestNotifier_InlineDispatchIsolatesFailures(t *testing.T) {
	var got []ChangeEvent
	var mu sync.Mutex
	record := ListenerFunc(func(_ context.Context, ev ChangeEvent) error {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
		return nil
	})
	failing := ListenerFunc(func(context.Context, ChangeEvent) error {
		return stderrors.New("embedding provider down")
	})
	panicking := ListenerFunc(func(context.Context, ChangeEvent) error {
		panic("boom")
	})

	n := NewNotifier(nil, time.Second, failing, panicking, record)
	assert.NotPanics(t, func() {
		n.Publish(ChangeEvent{Kind: EventChanged, ObjectiveID: "a"})
		n.Publish(DeletedEvent("a"))
	})
	n.Wait()

	require.Len(t, got, 2)
	assert.Equal(t, uint64(1), got[0].Seq)
	assert.Equal(t, uint64(2), got[1].Seq)
	assert.Equal(t, EventDeleted, got[1].Kind)
}

func TestNotifier_PoolDispatchDoesNotBlockPublisher(t *testing.T) {
	p, err := pool.NewPool("test-notifier", poolopts.NewOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.ReleaseTimeout(time.Second) })

	release := make(chan struct{})
	var handled atomic.Int32
	slow := ListenerFunc(func(ctx context.Context, _ ChangeEvent) error {
		<-release
		handled.Add(1)
		return nil
	})

	n := NewNotifier(p, time.Second, slow)
	done := make(chan struct{})
	go func() {
		n.Publish(ChangeEvent{Kind: EventChanged, ObjectiveID: "a"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on listener")
	}
	assert.Zero(t, handled.Load())

	close(release)
	n.Wait()
	assert.EqualValues(t, 1, handled.Load())
}

func TestNotifier_SubscribeAfterCreate(t *testing.T) {
	n := NewNotifier(nil, 0)
	var calls atomic.Int32
	n.Subscribe(ListenerFunc(func(context.Context, ChangeEvent) error {
		calls.Add(1)
		return nil
	}))
	n.Publish(DeletedEvent("x"))
	assert.EqualValues(t, 1, calls.Load())
}

func TestNotifier_CountsDeliveries(t *testing.T) {
	events := metrics.Default().ObjectiveEvents
	count := func(status string) float64 {
		return testutil.ToFloat64(events.WithLabelValues(string(EventDeleted), status))
	}
	ok, failed, panicked := count(metrics.StatusOK), count(metrics.StatusError), count(metrics.StatusPanic)

	n := NewNotifier(nil, 0,
		ListenerFunc(func(context.Context, ChangeEvent) error { return nil }),
		ListenerFunc(func(context.Context, ChangeEvent) error { return stderrors.New("down") }),
		ListenerFunc(func(context.Context, ChangeEvent) error { panic("boom") }),
	)
	n.Publish(DeletedEvent("obj-1"))
	n.Wait()

	assert.Equal(t, ok+1, count(metrics.StatusOK))
	assert.Equal(t, failed+1, count(metrics.StatusError))
	assert.Equal(t, panicked+1, count(metrics.StatusPanic))
}
