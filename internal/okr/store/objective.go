package store

import (
	"context"
	stderrors "errors"

	"gorm.io/gorm"

	"github.com/kart-io/okr-assistant/internal/model"
	"github.com/kart-io/okr-assistant/pkg/errors"
)

type objectives struct {
	db *gorm.DB
}

func newObjectives(db *gorm.DB) *objectives {
	return &objectives{db: db}
}

func objectiveNotFound(id string) error {
	return errors.ErrObjectiveNotFound.WithMessagef("Objective with id %s not found", id)
}

// List returns every objective, oldest first.
func (s *objectives) List(ctx context.Context) ([]*model.Objective, error) {
	var objs []*model.Objective
	err := s.db.WithContext(ctx).
		Preload("KeyResults", func(db *gorm.DB) *gorm.DB { return db.Order("created_at, id") }).
		Order("created_at, id").
		Find(&objs).Error
	if err != nil {
		return nil, errors.ErrDatabase.WithCause(err)
	}
	return objs, nil
}

// Get retrieves an objective by id.
func (s *objectives) Get(ctx context.Context, id string) (*model.Objective, error) {
	return s.get(s.db.WithContext(ctx), id)
}

func (s *objectives) get(db *gorm.DB, id string) (*model.Objective, error) {
	var obj model.Objective
	err := db.Preload("KeyResults", func(db *gorm.DB) *gorm.DB { return db.Order("created_at, id") }).
		Where("id = ?", id).
		First(&obj).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, objectiveNotFound(id)
		}
		return nil, errors.ErrDatabase.WithCause(err)
	}
	return &obj, nil
}

// Create inserts the objective together with its key results.
func (s *objectives) Create(ctx context.Context, obj *model.Objective) error {
	if err := s.db.WithContext(ctx).Create(obj).Error; err != nil {
		return errors.ErrDatabase.WithCause(err)
	}
	return nil
}

// Replace updates the title and swaps the key-result set in one transaction.
func (s *objectives) Replace(ctx context.Context, obj *model.Objective) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.get(tx, obj.ID); err != nil {
			return err
		}
		if err := tx.Model(&model.Objective{}).Where("id = ?", obj.ID).Update("title", obj.Title).Error; err != nil {
			return errors.ErrDatabase.WithCause(err)
		}

		if err := tx.Where("objective_id = ?", obj.ID).Delete(&model.KeyResult{}).Error; err != nil {
			return errors.ErrDatabase.WithCause(err)
		}

		for i := range obj.KeyResults {
			obj.KeyResults[i].ID = ""
			obj.KeyResults[i].ObjectiveID = obj.ID
		}
		if len(obj.KeyResults) > 0 {
			if err := tx.Create(&obj.KeyResults).Error; err != nil {
				return errors.ErrDatabase.WithCause(err)
			}
		}

		fresh, err := s.get(tx, obj.ID)
		if err != nil {
			return err
		}
		*obj = *fresh
		return nil
	})
}

// Delete removes the objective and its key results.
func (s *objectives) Delete(ctx context.Context, id string) (*model.Objective, error) {
	var deleted *model.Objective
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		obj, err := s.get(tx, id)
		if err != nil {
			return err
		}
		if err := tx.Where("objective_id = ?", id).Delete(&model.KeyResult{}).Error; err != nil {
			return errors.ErrDatabase.WithCause(err)
		}
		if err := tx.Delete(&model.Objective{}, "id = ?", id).Error; err != nil {
			return errors.ErrDatabase.WithCause(err)
		}
		deleted = obj
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}
