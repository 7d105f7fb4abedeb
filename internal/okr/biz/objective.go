package biz

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"github.com/kart-io/logger"

	"github.com/kart-io/okr-assistant/internal/model"
	"github.com/kart-io/okr-assistant/internal/okr/store"
	"github.com/kart-io/okr-assistant/pkg/errors"
)

// KeyResultInput 创建或替换关键结果时的输入。
type KeyResultInput struct {
	Description string
	Progress    int
}

// ObjectiveInput 创建或更新目标时的输入。
type ObjectiveInput struct {
	Title      string
	KeyResults []KeyResultInput
}

func (in ObjectiveInput) toModel(id string) (*model.Objective, error) {
	obj := &model.Objective{ID: id, Title: in.Title, KeyResults: make([]model.KeyResult, 0, len(in.KeyResults))}
	for _, kr := range in.KeyResults {
		k := model.KeyResult{Description: kr.Description}
		if err := SetProgress(&k, kr.Progress); err != nil {
			return nil, err
		}
		obj.KeyResults = append(obj.KeyResults, k)
	}
	return obj, nil
}

// ObjectiveService handles objective business logic. Every successful write
// publishes a change event; indexing never affects the write result.
type ObjectiveService struct {
	store     store.Factory
	publisher Publisher
	drafter   Drafter
}

// NewObjectiveService creates a new ObjectiveService.
func NewObjectiveService(s store.Factory, publisher Publisher, drafter Drafter) *ObjectiveService {
	return &ObjectiveService{store: s, publisher: publisher, drafter: drafter}
}

// List lists objectives with their key results.
func (s *ObjectiveService) List(ctx context.Context) ([]*model.Objective, error) {
	return s.store.Objectives().List(ctx)
}

// Get retrieves an objective.
func (s *ObjectiveService) Get(ctx context.Context, id string) (*model.Objective, error) {
	return s.store.Objectives().Get(ctx, id)
}

// Create creates an objective with its key results.
func (s *ObjectiveService) Create(ctx context.Context, in ObjectiveInput) (*model.Objective, error) {
	obj, err := in.toModel("")
	if err != nil {
		return nil, err
	}
	if err := s.store.Objectives().Create(ctx, obj); err != nil {
		return nil, err
	}
	s.publisher.Publish(ChangedEvent(obj))
	return obj, nil
}

// Update replaces the title and the key-result set. An update that changes
// nothing is rejected as a duplicate.
func (s *ObjectiveService) Update(ctx context.Context, id string, in ObjectiveInput) (*model.Objective, error) {
	current, err := s.store.Objectives().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	obj, err := in.toModel(id)
	if err != nil {
		return nil, err
	}
	if sameObjective(current, obj) {
		return nil, errors.ErrObjectiveDuplicate.WithMessagef(
			"Objective with id %s already has the same objective value: %s", id, obj.Title)
	}

	if err := s.store.Objectives().Replace(ctx, obj); err != nil {
		return nil, err
	}
	s.publisher.Publish(ChangedEvent(obj))
	return obj, nil
}

type krKey struct {
	description string
	progress    int
}

func keyResultSet(krs []model.KeyResult) []krKey {
	out := make([]krKey, len(krs))
	for i, kr := range krs {
		out[i] = krKey{kr.Description, kr.Progress}
	}
	slices.SortFunc(out, func(a, b krKey) int {
		return cmp.Or(strings.Compare(a.description, b.description), cmp.Compare(a.progress, b.progress))
	})
	return out
}

// sameObjective compares title and key results, ignoring order and ids.
func sameObjective(a, b *model.Objective) bool {
	return a.Title == b.Title && slices.Equal(keyResultSet(a.KeyResults), keyResultSet(b.KeyResults))
}

// Delete removes an objective and returns it as it was.
func (s *ObjectiveService) Delete(ctx context.Context, id string) (*model.Objective, error) {
	obj, err := s.store.Objectives().Delete(ctx, id)
	if err != nil {
		return nil, err
	}
	s.publisher.Publish(DeletedEvent(id))
	return obj, nil
}

// Completion reports how far an objective is.
func (s *ObjectiveService) Completion(ctx context.Context, id string) (Completion, error) {
	obj, err := s.store.Objectives().Get(ctx, id)
	if err != nil {
		return Completion{}, err
	}
	return ComputeObjectiveCompletion(obj.KeyResults), nil
}

// Suggest drafts an objective from a free-form request without saving it.
func (s *ObjectiveService) Suggest(ctx context.Context, query string) (*Suggestion, error) {
	return s.drafter.Suggest(ctx, query)
}

// ListKeyResults lists the key results of an objective.
func (s *ObjectiveService) ListKeyResults(ctx context.Context, objectiveID string) ([]*model.KeyResult, error) {
	if _, err := s.store.Objectives().Get(ctx, objectiveID); err != nil {
		return nil, err
	}
	return s.store.KeyResults().ListByObjective(ctx, objectiveID)
}

// AddKeyResult appends a key result to an objective.
func (s *ObjectiveService) AddKeyResult(ctx context.Context, objectiveID string, in KeyResultInput) (*model.KeyResult, error) {
	if _, err := s.store.Objectives().Get(ctx, objectiveID); err != nil {
		return nil, err
	}
	kr := &model.KeyResult{Description: in.Description, ObjectiveID: objectiveID}
	if err := SetProgress(kr, in.Progress); err != nil {
		return nil, err
	}
	if err := s.store.KeyResults().Create(ctx, kr); err != nil {
		return nil, err
	}
	s.republish(ctx, objectiveID)
	return kr, nil
}

// ClearKeyResults removes every key result of an objective and returns how
// many were removed together with the removed key results.
func (s *ObjectiveService) ClearKeyResults(ctx context.Context, objectiveID string) (int64, []model.KeyResult, error) {
	obj, err := s.store.Objectives().Get(ctx, objectiveID)
	if err != nil {
		return 0, nil, err
	}
	n, err := s.store.KeyResults().DeleteByObjective(ctx, objectiveID)
	if err != nil {
		return 0, nil, err
	}
	s.republish(ctx, objectiveID)
	return n, obj.KeyResults, nil
}

// republish reloads the objective and publishes its current state. The
// write already succeeded, so a reload failure only skips the event.
func (s *ObjectiveService) republish(ctx context.Context, objectiveID string) {
	republish(ctx, s.store, s.publisher, objectiveID)
}

func republish(ctx context.Context, f store.Factory, p Publisher, objectiveID string) {
	obj, err := f.Objectives().Get(ctx, objectiveID)
	if err != nil {
		logger.Warnw("Skipping objective event after reload failure", "objective_id", objectiveID, "error", err.Error())
		return
	}
	p.Publish(ChangedEvent(obj))
}
