package ai

import (
	"context"
	"image"

	"detectview/internal/config"
	"detectview/internal/geometry"
	"detectview/internal/logger"
	"detectview/internal/model"
	"detectview/internal/pipeline"

	"gocv.io/x/gocv"
)

// objectInputSize is the square input of SSD MobileNet COCO.
const objectInputSize = 300

// ObjectDetector runs an SSD MobileNet COCO network. Boxes are reported in its 300x300 input space.
type ObjectDetector struct {
	net       *ssdNet
	threshold float32
	logger    *logger.Logger
}

// NewObjectDetector creates the detector. The network is loaded on the first call.
func NewObjectDetector(cfg *config.Config, logger *logger.Logger) *ObjectDetector {
	return &ObjectDetector{
		net: &ssdNet{
			name:       "Object detection",
			modelPath:  cfg.ObjectModelPath,
			configPath: cfg.ObjectConfigPath,
			logger:     logger,
		},
		threshold: float32(cfg.ObjectThreshold),
		logger:    logger,
	}
}

func (d *ObjectDetector) ModelSize() geometry.Size {
	return geometry.Size{Width: objectInputSize, Height: objectInputSize}
}

// DetectObjects returns up to maxResults objects above the confidence threshold, in network output order.
func (d *ObjectDetector) DetectObjects(ctx context.Context, img pipeline.Image, maxResults int) (pipeline.ObjectResult, error) {
	res := pipeline.ObjectResult{ModelSize: d.ModelSize()}

	mat, release, err := matOf(img)
	if err != nil {
		return res, err
	}
	defer release()

	if err := ctx.Err(); err != nil {
		return res, err
	}

	// Parameters that fit the ssd coco net input
	blob := gocv.BlobFromImage(mat, 1.0/127.5, image.Pt(objectInputSize, objectInputSize), gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	defer blob.Close()

	rows, err := d.net.forward(blob, d.threshold)
	if err != nil {
		return res, err
	}

	res.Detections = make([]model.ObjectDetection, 0, len(rows))
	for _, row := range rows {
		if maxResults > 0 && len(res.Detections) == maxResults {
			break
		}
		x := float64(row.x1) * objectInputSize
		y := float64(row.y1) * objectInputSize
		res.Detections = append(res.Detections, model.ObjectDetection{
			Box: geometry.BoundingBox{
				X:      x,
				Y:      y,
				Width:  float64(row.x2)*objectInputSize - x,
				Height: float64(row.y2)*objectInputSize - y,
			},
			Label: ClassLabel(row.classID),
			Score: float64(row.confidence),
		})
	}

	for _, object := range res.Detections {
		d.logger.Info("Detected %s (%.2f)", object.Label, object.Score)
	}
	return res, nil
}

func (d *ObjectDetector) Close() error {
	return d.net.Close()
}
