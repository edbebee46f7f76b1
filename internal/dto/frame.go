package dto

import (
	"time"

	"detectview/internal/geometry"
	"detectview/internal/model"
	"detectview/internal/pipeline"

	"github.com/google/uuid"
)

type ObjectData struct {
	Label string               `json:"label"`
	Score float64              `json:"score"`
	Box   geometry.BoundingBox `json:"box"`
}

type FaceData struct {
	Score float64          `json:"score"`
	Box   geometry.FaceBox `json:"box"`
}

// SlotData is one detector's state. Items is never null.
type SlotData[T any] struct {
	Status    pipeline.Status `json:"status"`
	ModelSize geometry.Size   `json:"modelSize"`
	Items     []T             `json:"items"`
	Error     string          `json:"error,omitempty"`
}

type OverlayData struct {
	Kind  model.Kind           `json:"kind"`
	Label string               `json:"label"`
	Score float64              `json:"score"`
	Box   geometry.BoundingBox `json:"box"`
}

// FrameData is the wire form of a pipeline frame. All boxes are in display space.
type FrameData struct {
	RunID       string               `json:"runId"`
	Loading     bool                 `json:"loading"`
	Natural     geometry.Size        `json:"natural"`
	Display     geometry.Size        `json:"display"`
	Objects     SlotData[ObjectData] `json:"objects"`
	Faces       SlotData[FaceData]   `json:"faces"`
	Overlays    []OverlayData        `json:"overlays"`
	Error       string               `json:"error,omitempty"`
	StartedAt   *time.Time           `json:"startedAt,omitempty"`
	CompletedAt *time.Time           `json:"completedAt,omitempty"`
}

// NewFrameData converts a frame snapshot for the HTTP and websocket surfaces.
func NewFrameData(f pipeline.Frame) FrameData {
	data := FrameData{
		Loading:     f.Loading,
		Natural:     f.Natural,
		Display:     f.Display,
		Objects:     SlotData[ObjectData]{Status: f.Objects.Status, ModelSize: f.Objects.ModelSize, Items: []ObjectData{}},
		Faces:       SlotData[FaceData]{Status: f.Faces.Status, ModelSize: f.Faces.ModelSize, Items: []FaceData{}},
		Overlays:    []OverlayData{},
		StartedAt:   optionalTime(f.StartedAt),
		CompletedAt: optionalTime(f.CompletedAt),
	}
	if f.RunID != uuid.Nil {
		data.RunID = f.RunID.String()
	}

	for _, d := range f.Objects.Items {
		data.Objects.Items = append(data.Objects.Items, ObjectData{Label: d.Label, Score: d.Score, Box: d.Box})
	}
	for _, d := range f.Faces.Items {
		data.Faces.Items = append(data.Faces.Items, FaceData{Score: d.Score, Box: d.Box})
	}
	for _, o := range f.Overlays() {
		data.Overlays = append(data.Overlays, OverlayData{Kind: o.Kind, Label: o.Label, Score: o.Score, Box: o.Box})
	}

	if f.Objects.Err != nil {
		data.Objects.Error = f.Objects.Err.Error()
	}
	if f.Faces.Err != nil {
		data.Faces.Error = f.Faces.Err.Error()
	}
	if f.DecodeErr != nil {
		data.Error = f.DecodeErr.Error()
	}
	return data
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
