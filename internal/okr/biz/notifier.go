package biz

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/okr-assistant/internal/model"
	"github.com/kart-io/okr-assistant/pkg/infra/pool"
	"github.com/kart-io/okr-assistant/pkg/observability/metrics"
)

// EventKind 目标变更类型。
type EventKind string

const (
	EventChanged EventKind = "okr.changed"
	EventDeleted EventKind = "okr.deleted"
)

// ChangeEvent 描述一次目标变更。Seq 由 Notifier 分配，单调递增。
type ChangeEvent struct {
	Kind        EventKind
	ObjectiveID string
	Title       string
	KeyResults  []string
	Seq         uint64
}

// ChangedEvent builds the event published after an objective is written.
func ChangedEvent(obj *model.Objective) ChangeEvent {
	descs := make([]string, len(obj.KeyResults))
	for i, kr := range obj.KeyResults {
		descs[i] = kr.Description
	}
	return ChangeEvent{
		Kind:        EventChanged,
		ObjectiveID: obj.ID,
		Title:       obj.Title,
		KeyResults:  descs,
	}
}

// DeletedEvent builds the event published after an objective is removed.
func DeletedEvent(objectiveID string) ChangeEvent {
	return ChangeEvent{Kind: EventDeleted, ObjectiveID: objectiveID}
}

// Listener consumes change events.
type Listener interface {
	HandleObjectiveEvent(ctx context.Context, ev ChangeEvent) error
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context, ev ChangeEvent) error

// HandleObjectiveEvent calls f.
func (f ListenerFunc) HandleObjectiveEvent(ctx context.Context, ev ChangeEvent) error {
	return f(ctx, ev)
}

// Publisher is the write-path side of the notifier.
type Publisher interface {
	Publish(ev ChangeEvent)
}

// Notifier dispatches change events to listeners on a worker pool. Publish
// never blocks on a listener and never reports a listener failure to the
// caller; failures and panics are logged here.
type Notifier struct {
	pool      *pool.Pool
	timeout   time.Duration
	seq       atomic.Uint64
	wg        sync.WaitGroup
	mu        sync.RWMutex
	listeners []Listener
}

var _ Publisher = (*Notifier)(nil)

// NewNotifier creates a notifier. With a nil pool, listeners run inline on
// the publishing goroutine. timeout bounds each listener call.
func NewNotifier(p *pool.Pool, timeout time.Duration, listeners ...Listener) *Notifier {
	return &Notifier{pool: p, timeout: timeout, listeners: listeners}
}

// Subscribe registers l for subsequent events.
func (n *Notifier) Subscribe(l Listener) {
	n.mu.Lock()
	n.listeners = append(n.listeners, l)
	n.mu.Unlock()
}

// Publish 异步分发事件。
func (n *Notifier) Publish(ev ChangeEvent) {
	ev.Seq = n.seq.Add(1)

	n.mu.RLock()
	listeners := append([]Listener(nil), n.listeners...)
	n.mu.RUnlock()

	for _, l := range listeners {
		n.wg.Add(1)
		task := func() {
			defer n.wg.Done()
			n.dispatch(l, ev)
		}
		if n.pool == nil {
			task()
			continue
		}
		if err := n.pool.Submit(task); err != nil {
			n.wg.Done()
			metrics.Default().ObjectiveEvents.WithLabelValues(string(ev.Kind), metrics.StatusDropped).Inc()
			logger.Errorw("Failed to schedule objective event",
				"kind", ev.Kind, "objective_id", ev.ObjectiveID, "error", err.Error())
		}
	}
}

func (n *Notifier) dispatch(l Listener, ev ChangeEvent) {
	ctx := context.Background()
	if n.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}

	events := metrics.Default().ObjectiveEvents
	defer func() {
		if r := recover(); r != nil {
			events.WithLabelValues(string(ev.Kind), metrics.StatusPanic).Inc()
			logger.Errorw("Objective listener panic recovered",
				"kind", ev.Kind, "objective_id", ev.ObjectiveID, "panic", fmt.Sprint(r))
		}
	}()

	err := l.HandleObjectiveEvent(ctx, ev)
	events.WithLabelValues(string(ev.Kind), metrics.Status(err)).Inc()
	if err != nil {
		logger.Errorw("Objective listener failed",
			"kind", ev.Kind, "objective_id", ev.ObjectiveID, "seq", ev.Seq, "error", err.Error())
	}
}

// Wait blocks until every dispatched event has been handled.
func (n *Notifier) Wait() {
	n.wg.Wait()
}
