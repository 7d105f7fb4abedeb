package store

import (
	"context"
	"math"
	"sort"

	"gorm.io/gorm"

	"github.com/kart-io/okr-assistant/internal/model"
	"github.com/kart-io/okr-assistant/pkg/errors"
)

type documents struct {
	db *gorm.DB
}

func newDocuments(db *gorm.DB) *documents {
	return &documents{db: db}
}

// Replace deletes the objective's documents and inserts doc in one transaction,
// so at most one document per objective is visible at any time.
func (s *documents) Replace(ctx context.Context, doc *model.Document) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("objective_id = ?", doc.ObjectiveID).Delete(&model.Document{}).Error; err != nil {
			return errors.ErrDatabase.WithCause(err)
		}
		if err := tx.Create(doc).Error; err != nil {
			return errors.ErrDatabase.WithCause(err)
		}
		return nil
	})
}

// DeleteByObjective removes every document of an objective.
func (s *documents) DeleteByObjective(ctx context.Context, objectiveID string) (int64, error) {
	result := s.db.WithContext(ctx).Where("objective_id = ?", objectiveID).Delete(&model.Document{})
	if result.Error != nil {
		return 0, errors.ErrDatabase.WithCause(result.Error)
	}
	return result.RowsAffected, nil
}

// ListByObjective lists the documents of an objective.
func (s *documents) ListByObjective(ctx context.Context, objectiveID string) ([]*model.Document, error) {
	var docs []*model.Document
	if err := s.db.WithContext(ctx).Where("objective_id = ?", objectiveID).Find(&docs).Error; err != nil {
		return nil, errors.ErrDatabase.WithCause(err)
	}
	return docs, nil
}

// Count returns the number of documents.
func (s *documents) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&model.Document{}).Count(&n).Error; err != nil {
		return 0, errors.ErrDatabase.WithCause(err)
	}
	return n, nil
}

// Search ranks every stored document by cosine similarity to vector and
// returns at most k, nearest first. An empty table yields an empty result.
func (s *documents) Search(ctx context.Context, vector []float32, k int) ([]ScoredDocument, error) {
	if k <= 0 {
		return []ScoredDocument{}, nil
	}

	var docs []*model.Document
	if err := s.db.WithContext(ctx).Find(&docs).Error; err != nil {
		return nil, errors.ErrDatabase.WithCause(err)
	}

	hits := make([]ScoredDocument, 0, len(docs))
	for _, d := range docs {
		if len(d.Embedding) != len(vector) {
			continue
		}
		hits = append(hits, ScoredDocument{Document: d, Score: CosineSimilarity(vector, d.Embedding)})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0 when
// either is a zero vector or the lengths differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
