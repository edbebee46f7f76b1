package pipeline

import (
	"context"
	"errors"

	"detectview/internal/geometry"
	"detectview/internal/model"
)

var (
	// ErrDecodeFailed marks an input that could not be turned into an image. No detector runs.
	ErrDecodeFailed = errors.New("decode failed")
	// ErrDetectionFailed marks a detector that errored, timed out or returned malformed data.
	ErrDetectionFailed = errors.New("detection failed")
	// ErrSuperseded is returned by Run when a newer run took over the store before this one finished.
	ErrSuperseded = errors.New("run superseded")
)

// Image is a decoded still image shared read-only by both detectors.
type Image interface {
	// Size is the natural pixel size of the decoded image.
	Size() geometry.Size
	// Bytes returns the encoded input the image was decoded from.
	Bytes() []byte
	Close() error
}

// Decoder turns raw file bytes into an Image.
type Decoder interface {
	Decode(ctx context.Context, data []byte) (Image, error)
}

// ObjectResult is an object detector's raw output in its own model space.
type ObjectResult struct {
	ModelSize  geometry.Size
	Detections []model.ObjectDetection
}

// FaceResult is a face detector's raw output in its own model space.
type FaceResult struct {
	ModelSize  geometry.Size
	Detections []model.FaceDetection
}

// FaceOptions are passed through to the face detector on every call.
type FaceOptions struct {
	FlipHorizontal bool
}

// ObjectDetector finds generic objects, returning at most maxResults boxes.
type ObjectDetector interface {
	DetectObjects(ctx context.Context, img Image, maxResults int) (ObjectResult, error)
}

// FaceDetector finds human faces.
type FaceDetector interface {
	DetectFaces(ctx context.Context, img Image, opts FaceOptions) (FaceResult, error)
}
