package pipeline

import (
	"fmt"
	"time"

	"detectview/internal/geometry"
	"detectview/internal/model"

	"github.com/google/uuid"
	"go.uber.org/multierr"
)

// Status is the state of one detector's slot in a frame.
type Status int

const (
	StatusLoading Status = iota
	// StatusReady means the detector ran and found at least one hit.
	StatusReady
	// StatusEmpty means the detector ran and found nothing.
	StatusEmpty
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusEmpty:
		return "empty"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText lets Status serialize as its name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a name written by MarshalText.
func (s *Status) UnmarshalText(text []byte) error {
	for _, candidate := range []Status{StatusLoading, StatusReady, StatusEmpty, StatusFailed} {
		if candidate.String() == string(text) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown detector status %q", text)
}

// Slot holds one detector's normalized results for a frame.
type Slot[T model.Detection] struct {
	Status Status
	// ModelSize is the frame the detector reported its raw boxes in.
	ModelSize geometry.Size
	// Items are in display space, in the order the detector returned them.
	Items []T
	Err   error
}

// Done reports whether the detector has resolved, successfully or not.
func (s Slot[T]) Done() bool {
	return s.Status != StatusLoading
}

// Failed reports whether the detector failed to run.
func (s Slot[T]) Failed() bool {
	return s.Status == StatusFailed
}

func (s Slot[T]) clone() Slot[T] {
	if s.Items != nil {
		items := make([]T, len(s.Items))
		copy(items, s.Items)
		s.Items = items
	}
	return s
}

func readySlot[T model.Detection](modelSize geometry.Size, items []T) Slot[T] {
	status := StatusReady
	if len(items) == 0 {
		status = StatusEmpty
		items = []T{}
	}
	return Slot[T]{Status: status, ModelSize: modelSize, Items: items}
}

func failedSlot[T model.Detection](modelSize geometry.Size, err error) Slot[T] {
	return Slot[T]{Status: StatusFailed, ModelSize: modelSize, Err: err}
}

// Frame is one detection pass over one selected image.
type Frame struct {
	RunID uuid.UUID
	// Natural is the decoded image's own pixel size.
	Natural geometry.Size
	// Display is the size the image is rendered at; every box in the slots is in this frame.
	Display geometry.Size
	Loading bool
	Objects Slot[model.ObjectDetection]
	Faces   Slot[model.FaceDetection]
	// DecodeErr is set when the input could not be decoded; both slots are then failed.
	DecodeErr   error
	StartedAt   time.Time
	CompletedAt time.Time
}

func newFrame(id uuid.UUID, started time.Time) Frame {
	return Frame{RunID: id, Loading: true, StartedAt: started}
}

// Err combines every failure recorded in the frame.
func (f Frame) Err() error {
	return multierr.Combine(f.DecodeErr, f.Objects.Err, f.Faces.Err)
}

// Overlay is a drawable rectangle in display space.
type Overlay struct {
	Kind  model.Kind
	Label string
	Score float64
	Box   geometry.BoundingBox
}

// Overlays merges both slots into draw order: objects first, then faces.
func (f Frame) Overlays() []Overlay {
	overlays := make([]Overlay, 0, len(f.Objects.Items)+len(f.Faces.Items))
	for _, d := range f.Objects.Items {
		overlays = append(overlays, Overlay{Kind: d.Kind(), Label: d.Label, Score: d.Score, Box: d.Bounds()})
	}
	for _, d := range f.Faces.Items {
		overlays = append(overlays, Overlay{Kind: d.Kind(), Label: string(model.KindFace), Score: d.Score, Box: d.Bounds()})
	}
	return overlays
}

func (f Frame) clone() Frame {
	f.Objects = f.Objects.clone()
	f.Faces = f.Faces.clone()
	return f
}
