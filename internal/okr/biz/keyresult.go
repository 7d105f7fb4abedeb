package biz

import (
	"context"

	"github.com/kart-io/okr-assistant/internal/model"
	"github.com/kart-io/okr-assistant/internal/okr/store"
)

// KeyResultService handles key-result business logic.
type KeyResultService struct {
	store     store.Factory
	publisher Publisher
}

// NewKeyResultService creates a new KeyResultService.
func NewKeyResultService(s store.Factory, publisher Publisher) *KeyResultService {
	return &KeyResultService{store: s, publisher: publisher}
}

// Get retrieves a key result.
func (s *KeyResultService) Get(ctx context.Context, id string) (*model.KeyResult, error) {
	return s.store.KeyResults().Get(ctx, id)
}

// Delete removes a key result and returns it. The parent objective's
// document changes, so its current state is republished.
func (s *KeyResultService) Delete(ctx context.Context, id string) (*model.KeyResult, error) {
	kr, err := s.store.KeyResults().Delete(ctx, id)
	if err != nil {
		return nil, err
	}
	republish(ctx, s.store, s.publisher, kr.ObjectiveID)
	return kr, nil
}

// UpdateProgress sets progress and keeps completion in step with it.
func (s *KeyResultService) UpdateProgress(ctx context.Context, id string, progress int) (*model.KeyResult, error) {
	if err := ValidateProgress(progress); err != nil {
		return nil, err
	}
	kr, err := s.store.KeyResults().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := SetProgress(kr, progress); err != nil {
		return nil, err
	}
	if err := s.store.KeyResults().UpdateProgress(ctx, kr); err != nil {
		return nil, err
	}
	return kr, nil
}

// ToggleComplete flips completion; see ToggleComplete for the progress rule.
func (s *KeyResultService) ToggleComplete(ctx context.Context, id string) (*model.KeyResult, error) {
	kr, err := s.store.KeyResults().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	ToggleComplete(kr)
	if err := s.store.KeyResults().UpdateProgress(ctx, kr); err != nil {
		return nil, err
	}
	return kr, nil
}
