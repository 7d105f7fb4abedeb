package store

import (
	"context"
	stderrors "errors"

	"gorm.io/gorm"

	"github.com/kart-io/okr-assistant/internal/model"
	"github.com/kart-io/okr-assistant/pkg/errors"
)

type keyResults struct {
	db *gorm.DB
}

func newKeyResults(db *gorm.DB) *keyResults {
	return &keyResults{db: db}
}

func keyResultNotFound(id string) error {
	return errors.ErrKeyResultNotFound.WithMessagef("KeyResult with id %s not found", id)
}

// Get retrieves a key result by id.
func (s *keyResults) Get(ctx context.Context, id string) (*model.KeyResult, error) {
	var kr model.KeyResult
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&kr).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, keyResultNotFound(id)
		}
		return nil, errors.ErrDatabase.WithCause(err)
	}
	return &kr, nil
}

// ListByObjective lists the key results of one objective.
func (s *keyResults) ListByObjective(ctx context.Context, objectiveID string) ([]*model.KeyResult, error) {
	var krs []*model.KeyResult
	err := s.db.WithContext(ctx).
		Where("objective_id = ?", objectiveID).
		Order("created_at, id").
		Find(&krs).Error
	if err != nil {
		return nil, errors.ErrDatabase.WithCause(err)
	}
	return krs, nil
}

// Create inserts a key result.
func (s *keyResults) Create(ctx context.Context, kr *model.KeyResult) error {
	if err := s.db.WithContext(ctx).Create(kr).Error; err != nil {
		return errors.ErrDatabase.WithCause(err)
	}
	return nil
}

// UpdateProgress writes progress and is_completed in a single statement.
// Callers load the key result first, so a missing row is not rechecked here.
func (s *keyResults) UpdateProgress(ctx context.Context, kr *model.KeyResult) error {
	err := s.db.WithContext(ctx).
		Model(&model.KeyResult{}).
		Where("id = ?", kr.ID).
		Updates(map[string]any{
			"progress":     kr.Progress,
			"is_completed": kr.IsCompleted,
		}).Error
	if err != nil {
		return errors.ErrDatabase.WithCause(err)
	}
	return nil
}

// Delete removes a key result and returns it as it was.
func (s *keyResults) Delete(ctx context.Context, id string) (*model.KeyResult, error) {
	kr, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Delete(&model.KeyResult{}, "id = ?", id).Error; err != nil {
		return nil, errors.ErrDatabase.WithCause(err)
	}
	return kr, nil
}

// DeleteByObjective removes every key result of an objective.
func (s *keyResults) DeleteByObjective(ctx context.Context, objectiveID string) (int64, error) {
	result := s.db.WithContext(ctx).Where("objective_id = ?", objectiveID).Delete(&model.KeyResult{})
	if result.Error != nil {
		return 0, errors.ErrDatabase.WithCause(result.Error)
	}
	return result.RowsAffected, nil
}
