package sqlite

import (
	"database/sql"
	"fmt"

	"detectview/internal/model"
)

// DetectionRepository implements repository.DetectionRepository for SQLite.
type DetectionRepository struct {
	db *DB
}

// NewDetectionRepository creates a new SQLite detection repository.
func NewDetectionRepository(db *DB) *DetectionRepository {
	return &DetectionRepository{db: db}
}

// GetByFrameID retrieves all detections of a frame in insertion order.
func (r *DetectionRepository) GetByFrameID(frameID int64) ([]model.DetectionRecord, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	return queryDetections(r.db.Conn(), frameID)
}

// GetAllLabels returns a sorted list of every label ever journaled.
func (r *DetectionRepository) GetAllLabels() ([]string, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(`SELECT DISTINCT label FROM detections ORDER BY label`)
	if err != nil {
		return nil, fmt.Errorf("failed to query labels: %w", err)
	}
	defer rows.Close()

	var labels []string
	for rows.Next() {
		var label string
		if err := rows.Scan(&label); err != nil {
			return nil, fmt.Errorf("failed to scan label: %w", err)
		}
		labels = append(labels, label)
	}

	return labels, rows.Err()
}

func queryDetections(conn *sql.DB, frameID int64) ([]model.DetectionRecord, error) {
	rows, err := conn.Query(`
		SELECT id, frame_id, kind, label, score, x, y, width, height
		FROM detections WHERE frame_id = ? ORDER BY id
	`, frameID)
	if err != nil {
		return nil, fmt.Errorf("failed to query detections: %w", err)
	}
	defer rows.Close()

	var detections []model.DetectionRecord
	for rows.Next() {
		var det model.DetectionRecord
		var kind string
		if err := rows.Scan(&det.ID, &det.FrameID, &kind, &det.Label, &det.Score, &det.X, &det.Y, &det.Width, &det.Height); err != nil {
			return nil, fmt.Errorf("failed to scan detection: %w", err)
		}
		det.Kind = model.Kind(kind)
		detections = append(detections, det)
	}

	return detections, rows.Err()
}
