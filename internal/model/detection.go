package model

import "detectview/internal/geometry"

// Kind tags which detector produced a detection.
type Kind string

const (
	KindObject Kind = "object"
	KindFace   Kind = "face"
)

// Detection is implemented by ObjectDetection and FaceDetection only.
type Detection interface {
	Kind() Kind
	Confidence() float64
	// Bounds returns the rectangle a renderer draws, in the frame the detection is expressed in.
	Bounds() geometry.BoundingBox

	sealed()
}

// ObjectDetection is a generic-object hit with its class label.
type ObjectDetection struct {
	Box   geometry.BoundingBox `json:"box"`
	Label string               `json:"label"`
	Score float64              `json:"score"`
}

func (ObjectDetection) Kind() Kind { return KindObject }
func (d ObjectDetection) Confidence() float64 { return d.Score }
func (d ObjectDetection) Bounds() geometry.BoundingBox { return d.Box }
func (ObjectDetection) sealed() {}

// FaceDetection is a face hit in min/max-extent form.
type FaceDetection struct {
	Box   geometry.FaceBox `json:"box"`
	Score float64          `json:"score"`
}

func (FaceDetection) Kind() Kind { return KindFace }
func (d FaceDetection) Confidence() float64 { return d.Score }
func (d FaceDetection) Bounds() geometry.BoundingBox { return d.Box.Bounds() }
func (FaceDetection) sealed() {}
