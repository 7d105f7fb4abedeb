package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DocumentMetadata is the structured copy of the source objective.
type DocumentMetadata struct {
	ObjectiveID string   `json:"objectiveId"`
	Title       string   `json:"title"`
	KeyResults  []string `json:"keyResults"`
}

// Document is the retrieval index entry derived from one objective. It can
// be rebuilt from objective state at any time.
type Document struct {
	ID          string                               `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Content     string                               `json:"content" gorm:"type:text;not null"`
	Embedding   datatypes.JSONSlice[float32]         `json:"-" gorm:"not null"`
	Metadata    datatypes.JSONType[DocumentMetadata] `json:"metadata"`
	ObjectiveID string                               `json:"objectiveId" gorm:"type:varchar(36);not null;index:idx_documents_objective"`
	Objective   *Objective                           `json:"-" gorm:"foreignKey:ObjectiveID;constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time                            `json:"createdAt" gorm:"autoCreateTime"`
}

// TableName returns the table name for GORM.
func (Document) TableName() string {
	return "documents"
}

// BeforeCreate assigns a UUID when none was set.
func (d *Document) BeforeCreate(_ *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return nil
}

// AllModels lists every model for AutoMigrate, parents first.
func AllModels() []any {
	return []any{&Objective{}, &KeyResult{}, &Document{}}
}
