package dto

import (
	"time"

	"detectview/internal/geometry"
	"detectview/internal/model"
)

type HistoryDetection struct {
	Kind  model.Kind           `json:"kind"`
	Label string               `json:"label"`
	Score float64              `json:"score"`
	Box   geometry.BoundingBox `json:"box"`
}

type HistoryFrame struct {
	RunID        string             `json:"runId"`
	Natural      geometry.Size      `json:"natural"`
	Display      geometry.Size      `json:"display"`
	ObjectStatus string             `json:"objectStatus"`
	FaceStatus   string             `json:"faceStatus"`
	Error        string             `json:"error,omitempty"`
	StartedAt    time.Time          `json:"startedAt"`
	CompletedAt  time.Time          `json:"completedAt"`
	Detections   []HistoryDetection `json:"detections"`
}

// HistoryData is a paginated response payload for the frame journal.
type HistoryData struct {
	Frames []HistoryFrame `json:"frames"`
	Labels []string       `json:"labels"`
	Total  int            `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

func NewHistoryFrame(r model.FrameRecord) HistoryFrame {
	frame := HistoryFrame{
		RunID:        r.RunID,
		Natural:      geometry.Size{Width: r.NaturalWidth, Height: r.NaturalHeight},
		Display:      geometry.Size{Width: r.DisplayWidth, Height: r.DisplayHeight},
		ObjectStatus: r.ObjectStatus,
		FaceStatus:   r.FaceStatus,
		Error:        r.Error,
		StartedAt:    r.StartedAt,
		CompletedAt:  r.CompletedAt,
		Detections:   make([]HistoryDetection, 0, len(r.Detections)),
	}
	for _, d := range r.Detections {
		frame.Detections = append(frame.Detections, HistoryDetection{
			Kind:  d.Kind,
			Label: d.Label,
			Score: d.Score,
			Box:   geometry.BoundingBox{X: d.X, Y: d.Y, Width: d.Width, Height: d.Height},
		})
	}
	return frame
}
