package repository

import (
	"detectview/internal/model"
)

// FrameRepository defines the interface for journaled frames.
type FrameRepository interface {
	// Create operations
	Insert(frame *model.FrameRecord) (int64, error)

	// Read operations
	GetByRunID(runID string) (*model.FrameRecord, error)
	GetRecent(filter *model.FrameFilter) ([]model.FrameRecord, error)
	GetTotalCount(filter *model.FrameFilter) (int, error)

	// Delete operations
	DeleteAll() error
}

// DetectionRepository defines the interface for the boxes of journaled frames.
type DetectionRepository interface {
	// Read operations
	GetByFrameID(frameID int64) ([]model.DetectionRecord, error)
	GetAllLabels() ([]string, error)
}
