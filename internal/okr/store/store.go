// Package store is the persistence boundary for objectives, key results and
// their derived retrieval documents.
package store

import (
	"context"

	"gorm.io/gorm"

	"github.com/kart-io/okr-assistant/internal/model"
)

// Factory defines the factory interface for creating stores.
type Factory interface {
	Objectives() ObjectiveStore
	KeyResults() KeyResultStore
	Documents() DocumentStore
	// DB 返回底层连接，用于健康检查。
	DB() *gorm.DB
	AutoMigrate() error
}

// ObjectiveStore defines the objective storage interface. Objectives are
// always returned with their key results.
type ObjectiveStore interface {
	List(ctx context.Context) ([]*model.Objective, error)
	Get(ctx context.Context, id string) (*model.Objective, error)
	Create(ctx context.Context, obj *model.Objective) error
	// Replace overwrites the title and the whole key-result set.
	Replace(ctx context.Context, obj *model.Objective) error
	// Delete removes the objective and returns it as it was.
	Delete(ctx context.Context, id string) (*model.Objective, error)
}

// KeyResultStore defines the key-result storage interface.
type KeyResultStore interface {
	Get(ctx context.Context, id string) (*model.KeyResult, error)
	ListByObjective(ctx context.Context, objectiveID string) ([]*model.KeyResult, error)
	Create(ctx context.Context, kr *model.KeyResult) error
	// UpdateProgress persists progress and completion together.
	UpdateProgress(ctx context.Context, kr *model.KeyResult) error
	Delete(ctx context.Context, id string) (*model.KeyResult, error)
	DeleteByObjective(ctx context.Context, objectiveID string) (int64, error)
}

// ScoredDocument is a similarity search hit.
type ScoredDocument struct {
	Document *model.Document
	Score    float64
}

// Searcher finds the documents nearest to a query vector, nearest first.
type Searcher interface {
	Search(ctx context.Context, vector []float32, k int) ([]ScoredDocument, error)
}

// DocumentStore defines the document storage interface.
type DocumentStore interface {
	Searcher
	// Replace deletes every document of doc.ObjectiveID and inserts doc in one transaction.
	Replace(ctx context.Context, doc *model.Document) error
	DeleteByObjective(ctx context.Context, objectiveID string) (int64, error)
	ListByObjective(ctx context.Context, objectiveID string) ([]*model.Document, error)
	Count(ctx context.Context) (int64, error)
}

type datastore struct {
	db *gorm.DB
}

var _ Factory = (*datastore)(nil)

// NewStore creates a store factory backed by db.
func NewStore(db *gorm.DB) Factory {
	return &datastore{db: db}
}

func (ds *datastore) Objectives() ObjectiveStore {
	return newObjectives(ds.db)
}

func (ds *datastore) KeyResults() KeyResultStore {
	return newKeyResults(ds.db)
}

func (ds *datastore) Documents() DocumentStore {
	return newDocuments(ds.db)
}

func (ds *datastore) DB() *gorm.DB {
	return ds.db
}

// AutoMigrate migrates the database schema.
func (ds *datastore) AutoMigrate() error {
	return ds.db.AutoMigrate(model.AllModels()...)
}
