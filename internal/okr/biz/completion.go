package biz

import (
	"github.com/kart-io/okr-assistant/internal/model"
	"github.com/kart-io/okr-assistant/pkg/errors"
)

const fullProgress = 100

// Completion 目标完成度。
type Completion struct {
	IsCompleted     bool    `json:"isCompleted"`
	AverageProgress float64 `json:"average_progress"`
}

// IsKeyResultCompleted reports whether progress marks a key result as done.
func IsKeyResultCompleted(progress int) bool {
	return progress == fullProgress
}

// ComputeObjectiveCompletion averages the progress of krs. An objective
// without key results is never complete.
func ComputeObjectiveCompletion(krs []model.KeyResult) Completion {
	if len(krs) == 0 {
		return Completion{}
	}
	sum := 0
	for _, kr := range krs {
		sum += kr.Progress
	}
	avg := float64(sum) / float64(len(krs))
	return Completion{
		IsCompleted:     avg == fullProgress,
		AverageProgress: avg,
	}
}

// ValidateProgress rejects values outside [0,100].
func ValidateProgress(progress int) error {
	if progress < 0 || progress > fullProgress {
		return errors.ErrProgressOutOfRange.WithMessagef("progress must be between 0 and 100, got %d", progress)
	}
	return nil
}

// SetProgress 设置进度并同步完成状态。
func SetProgress(kr *model.KeyResult, progress int) error {
	if err := ValidateProgress(progress); err != nil {
		return err
	}
	kr.Progress = progress
	kr.IsCompleted = IsKeyResultCompleted(progress)
	return nil
}

// ToggleComplete flips the completion flag. Completing forces progress to
// 100 and reopening resets it to 0; earlier partial progress is not kept.
func ToggleComplete(kr *model.KeyResult) {
	kr.IsCompleted = !kr.IsCompleted
	if kr.IsCompleted {
		kr.Progress = fullProgress
	} else {
		kr.Progress = 0
	}
}
