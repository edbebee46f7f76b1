package model

import "time"

// FrameRecord is a completed detection run as stored in the journal.
type FrameRecord struct {
	ID            int64
	RunID         string
	NaturalWidth  float64
	NaturalHeight float64
	DisplayWidth  float64
	DisplayHeight float64
	ObjectStatus  string
	FaceStatus    string
	Error         string
	StartedAt     time.Time
	CompletedAt   time.Time
	Detections    []DetectionRecord
}

// DetectionRecord is one display-space box of a journaled frame.
type DetectionRecord struct {
	ID      int64
	FrameID int64
	Kind    Kind
	Label   string
	Score   float64
	X       float64
	Y       float64
	Width   float64
	Height  float64
}

// FrameFilter selects journaled frames, newest first.
type FrameFilter struct {
	Label  string // Only frames with at least one detection carrying this label
	Limit  int
	Offset int
}
