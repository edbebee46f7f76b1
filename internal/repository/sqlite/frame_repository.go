package sqlite

import (
	"database/sql"
	"fmt"

	"detectview/internal/model"
)

// FrameRepository implements repository.FrameRepository for SQLite.
type FrameRepository struct {
	db *DB
}

// NewFrameRepository creates a new SQLite frame repository.
func NewFrameRepository(db *DB) *FrameRepository {
	return &FrameRepository{db: db}
}

// Insert adds a frame and all of its detections in a single transaction.
func (r *FrameRepository) Insert(frame *model.FrameRecord) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(`
		INSERT INTO frames (run_id, natural_width, natural_height, display_width, display_height,
			object_status, face_status, error, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, frame.RunID, frame.NaturalWidth, frame.NaturalHeight, frame.DisplayWidth, frame.DisplayHeight,
		frame.ObjectStatus, frame.FaceStatus, frame.Error, frame.StartedAt, frame.CompletedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert frame: %w", err)
	}

	frameID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read frame id: %w", err)
	}

	if len(frame.Detections) > 0 {
		stmt, err := tx.Prepare(`
			INSERT INTO detections (frame_id, kind, label, score, x, y, width, height)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return 0, fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, det := range frame.Detections {
			if _, err := stmt.Exec(frameID, string(det.Kind), det.Label, det.Score, det.X, det.Y, det.Width, det.Height); err != nil {
				return 0, fmt.Errorf("failed to insert detection: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit frame: %w", err)
	}
	return frameID, nil
}

// GetByRunID retrieves a frame and its detections. Returns nil when absent.
func (r *FrameRepository) GetByRunID(runID string) (*model.FrameRecord, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	row := r.db.Conn().QueryRow(`
		SELECT id, run_id, natural_width, natural_height, display_width, display_height,
			object_status, face_status, error, started_at, completed_at
		FROM frames WHERE run_id = ?
	`, runID)

	frame, err := scanFrame(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get frame: %w", err)
	}

	if frame.Detections, err = queryDetections(r.db.Conn(), frame.ID); err != nil {
		return nil, err
	}
	return &frame, nil
}

// GetRecent retrieves frames matching filter, newest first, with their detections.
func (r *FrameRepository) GetRecent(filter *model.FrameFilter) ([]model.FrameRecord, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	query, args := filteredQuery(`
		SELECT f.id, f.run_id, f.natural_width, f.natural_height, f.display_width, f.display_height,
			f.object_status, f.face_status, f.error, f.started_at, f.completed_at
		FROM frames f
		WHERE 1=1
	`, filter)

	query += " ORDER BY f.completed_at DESC, f.id DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := r.db.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query frames: %w", err)
	}

	var frames []model.FrameRecord
	for rows.Next() {
		frame, err := scanFrame(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan frame: %w", err)
		}
		frames = append(frames, frame)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to iterate frames: %w", err)
	}
	// The single connection must be free before the detection queries run.
	rows.Close()

	for i := range frames {
		if frames[i].Detections, err = queryDetections(r.db.Conn(), frames[i].ID); err != nil {
			return nil, err
		}
	}
	return frames, nil
}

// GetTotalCount returns the number of frames matching filter, ignoring paging.
func (r *FrameRepository) GetTotalCount(filter *model.FrameFilter) (int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	query, args := filteredQuery(`
		SELECT COUNT(*)
		FROM frames f
		WHERE 1=1
	`, filter)

	var count int
	if err := r.db.Conn().QueryRow(query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count frames: %w", err)
	}
	return count, nil
}

// DeleteAll removes every frame and detection.
func (r *FrameRepository) DeleteAll() error {
	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().Exec(`DELETE FROM detections`); err != nil {
		return fmt.Errorf("failed to delete detections: %w", err)
	}
	if _, err := r.db.Conn().Exec(`DELETE FROM frames`); err != nil {
		return fmt.Errorf("failed to delete frames: %w", err)
	}
	return nil
}

func filteredQuery(query string, filter *model.FrameFilter) (string, []interface{}) {
	args := []interface{}{}
	if filter.Label != "" {
		query += " AND EXISTS (SELECT 1 FROM detections d WHERE d.frame_id = f.id AND d.label = ?)"
		args = append(args, filter.Label)
	}
	return query, args
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanFrame(row rowScanner) (model.FrameRecord, error) {
	var f model.FrameRecord
	err := row.Scan(&f.ID, &f.RunID, &f.NaturalWidth, &f.NaturalHeight, &f.DisplayWidth, &f.DisplayHeight,
		&f.ObjectStatus, &f.FaceStatus, &f.Error, &f.StartedAt, &f.CompletedAt)
	return f, err
}
