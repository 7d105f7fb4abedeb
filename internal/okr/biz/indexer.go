package biz

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/kart-io/logger"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"github.com/kart-io/okr-assistant/internal/model"
	"github.com/kart-io/okr-assistant/internal/okr/store"
	"github.com/kart-io/okr-assistant/pkg/errors"
	"github.com/kart-io/okr-assistant/pkg/llm"
	"github.com/kart-io/okr-assistant/pkg/observability/metrics"
)

// VectorMirror is a secondary vector index kept in step with the document
// table, e.g. a Milvus collection.
type VectorMirror interface {
	Upsert(ctx context.Context, doc *model.Document) error
	Delete(ctx context.Context, objectiveID string) error
}

// Indexer 监听目标变更事件，维护每个目标对应的检索文档。
type Indexer struct {
	store    store.Factory
	embedder llm.EmbeddingProvider
	mirror   VectorMirror

	locks   *keyedMutex
	mu      sync.Mutex
	applied map[string]uint64
}

var _ Listener = (*Indexer)(nil)

// NewIndexer 创建索引器。mirror 可以为 nil。
func NewIndexer(s store.Factory, embedder llm.EmbeddingProvider, mirror VectorMirror) *Indexer {
	return &Indexer{
		store:    s,
		embedder: embedder,
		mirror:   mirror,
		locks:    newKeyedMutex(),
		applied:  make(map[string]uint64),
	}
}

// BuildContent renders the retrievable text of an objective.
func BuildContent(title string, keyResults []string) string {
	return strings.TrimSpace(fmt.Sprintf("Objective: %s\nKey Results:\n%s", title, strings.Join(keyResults, "\n")))
}

// HandleObjectiveEvent applies ev unless a newer event for the same
// objective was already applied.
func (i *Indexer) HandleObjectiveEvent(ctx context.Context, ev ChangeEvent) error {
	unlock := i.locks.Lock(ev.ObjectiveID)
	defer unlock()

	if ev.Seq != 0 && i.stale(ev) {
		logger.Debugw("Skipping stale objective event", "objective_id", ev.ObjectiveID, "seq", ev.Seq)
		return nil
	}

	var err error
	switch ev.Kind {
	case EventDeleted:
		err = i.Purge(ctx, ev.ObjectiveID)
	default:
		err = i.Index(ctx, ev)
	}
	if err != nil {
		return err
	}
	if ev.Seq != 0 {
		i.mark(ev)
	}
	return nil
}

func (i *Indexer) stale(ev ChangeEvent) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.applied[ev.ObjectiveID] > ev.Seq
}

func (i *Indexer) mark(ev ChangeEvent) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if ev.Kind == EventDeleted {
		// 保留序号，防止删除前发布的变更事件晚到后重建文档
		i.applied[ev.ObjectiveID] = ev.Seq
		return
	}
	if ev.Seq > i.applied[ev.ObjectiveID] {
		i.applied[ev.ObjectiveID] = ev.Seq
	}
}

// Index re-embeds the objective and replaces its document.
func (i *Indexer) Index(ctx context.Context, ev ChangeEvent) error {
	content := BuildContent(ev.Title, ev.KeyResults)
	vec, err := i.embedder.EmbedSingle(ctx, content)
	if err != nil {
		return errors.ErrIndexFailed.WithCause(llm.Classify(ctx, err))
	}

	krs := ev.KeyResults
	if krs == nil {
		krs = []string{}
	}
	doc := &model.Document{
		Content:     content,
		Embedding:   vec,
		ObjectiveID: ev.ObjectiveID,
		Metadata: datatypes.NewJSONType(model.DocumentMetadata{
			ObjectiveID: ev.ObjectiveID,
			Title:       ev.Title,
			KeyResults:  krs,
		}),
	}
	if err := i.store.Documents().Replace(ctx, doc); err != nil {
		return err
	}

	if i.mirror != nil {
		if err := i.mirror.Upsert(ctx, doc); err != nil {
			return errors.ErrIndexFailed.WithCause(err)
		}
	}

	logger.Debugw("Objective document indexed", "objective_id", ev.ObjectiveID, "document_id", doc.ID)
	return nil
}

// Purge removes every document of an objective.
func (i *Indexer) Purge(ctx context.Context, objectiveID string) error {
	n, err := i.store.Documents().DeleteByObjective(ctx, objectiveID)
	if err != nil {
		return err
	}
	if i.mirror != nil {
		if err := i.mirror.Delete(ctx, objectiveID); err != nil {
			return errors.ErrIndexFailed.WithCause(err)
		}
	}
	logger.Debugw("Objective documents purged", "objective_id", objectiveID, "count", n)
	return nil
}

// rebuildOne indexes the objective as it is once the key lock is held, so a
// write that landed after List is not overwritten by the listed copy. It
// reports false when the objective has been deleted meanwhile.
func (i *Indexer) rebuildOne(ctx context.Context, id string) (bool, error) {
	unlock := i.locks.Lock(id)
	defer unlock()

	obj, err := i.store.Objectives().Get(ctx, id)
	if stderrors.Is(err, errors.ErrObjectiveNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, i.Index(ctx, ChangedEvent(obj))
}

// Rebuild indexes every objective with at most concurrency workers and
// returns the number indexed. Individual failures are logged and skipped.
func (i *Indexer) Rebuild(ctx context.Context, concurrency int) (int, error) {
	objs, err := i.store.Objectives().List(ctx)
	if err != nil {
		return 0, err
	}
	if concurrency <= 0 {
		concurrency = 4
	}

	var indexed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, obj := range objs {
		id := obj.ID
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ok, err := i.rebuildOne(gctx, id)
			if err != nil {
				logger.Warnw("Failed to rebuild objective document", "objective_id", id, "error", err.Error())
				return nil
			}
			if ok {
				indexed.Add(1)
				metrics.Default().RebuiltDocs.Inc()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(indexed.Load()), err
	}

	logger.Infow("Objective documents rebuilt", "total", len(objs), "indexed", indexed.Load())
	return int(indexed.Load()), nil
}
