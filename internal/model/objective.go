// Package model provides the persisted data models of the OKR service.
package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Objective is a goal owned together with its key results.
type Objective struct {
	ID         string      `json:"id" gorm:"primaryKey;type:varchar(36);comment:目标ID"`
	Title      string      `json:"title" gorm:"type:varchar(512);not null;comment:标题"`
	KeyResults []KeyResult `json:"keyResults" gorm:"foreignKey:ObjectiveID;constraint:OnDelete:CASCADE"`
	CreatedAt  time.Time   `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt  time.Time   `json:"updatedAt" gorm:"autoUpdateTime"`
}

// TableName returns the table name for GORM.
func (Objective) TableName() string {
	return "objectives"
}

// BeforeCreate assigns a UUID when none was set.
func (o *Objective) BeforeCreate(_ *gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	return nil
}

// KeyResult is a measurable outcome of an objective. Progress is 0..100 and
// IsCompleted is true exactly when Progress is 100.
type KeyResult struct {
	ID          string    `json:"id" gorm:"primaryKey;type:varchar(36);comment:关键结果ID"`
	Description string    `json:"description" gorm:"type:text;not null;comment:描述"`
	Progress    int       `json:"progress" gorm:"not null;default:0;comment:进度 0-100"`
	IsCompleted bool      `json:"isCompleted" gorm:"not null;default:false;comment:是否完成"`
	ObjectiveID string    `json:"objectiveId" gorm:"type:varchar(36);not null;index:idx_key_results_objective"`
	CreatedAt   time.Time `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt   time.Time `json:"updatedAt" gorm:"autoUpdateTime"`
}

// TableName returns the table name for GORM.
func (KeyResult) TableName() string {
	return "key_results"
}

// BeforeCreate assigns a UUID when none was set.
func (k *KeyResult) BeforeCreate(_ *gorm.DB) error {
	if k.ID == "" {
		k.ID = uuid.NewString()
	}
	return nil
}
