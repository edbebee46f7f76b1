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

const defaultFaceInputSize = 300

// FaceDetector runs the res10 SSD face network. Boxes are reported in its square input space.
type FaceDetector struct {
	net       *ssdNet
	threshold float32
	inputSize int
	logger    *logger.Logger
}

// NewFaceDetector creates the detector. The network is loaded on the first call.
func NewFaceDetector(cfg *config.Config, logger *logger.Logger) *FaceDetector {
	inputSize := cfg.FaceInputSize
	if inputSize <= 0 {
		inputSize = defaultFaceInputSize
	}

	return &FaceDetector{
		net: &ssdNet{
			name:       "Face detection",
			modelPath:  cfg.FaceModelPath,
			configPath: cfg.FaceConfigPath,
			logger:     logger,
		},
		threshold: float32(cfg.FaceThreshold),
		inputSize: inputSize,
		logger:    logger,
	}
}

func (d *FaceDetector) ModelSize() geometry.Size {
	side := float64(d.inputSize)
	return geometry.Size{Width: side, Height: side}
}

// DetectFaces returns every face above the confidence threshold.
// With FlipHorizontal the boxes are mirrored across the vertical centre line.
func (d *FaceDetector) DetectFaces(ctx context.Context, img pipeline.Image, opts pipeline.FaceOptions) (pipeline.FaceResult, error) {
	res := pipeline.FaceResult{ModelSize: d.ModelSize()}

	mat, release, err := matOf(img)
	if err != nil {
		return res, err
	}
	defer release()

	if err := ctx.Err(); err != nil {
		return res, err
	}

	blob := gocv.BlobFromImage(mat, 1.0, image.Pt(d.inputSize, d.inputSize), gocv.NewScalar(104, 177, 123, 0), false, false)
	defer blob.Close()

	rows, err := d.net.forward(blob, d.threshold)
	if err != nil {
		return res, err
	}

	side := float64(d.inputSize)
	res.Detections = make([]model.FaceDetection, 0, len(rows))
	for _, row := range rows {
		xMin, xMax := float64(row.x1)*side, float64(row.x2)*side
		if opts.FlipHorizontal {
			xMin, xMax = mirrorExtents(xMin, xMax, side)
		}
		res.Detections = append(res.Detections, model.FaceDetection{
			Box:   geometry.FaceBoxFromExtents(xMin, float64(row.y1)*side, xMax, float64(row.y2)*side),
			Score: float64(row.confidence),
		})
	}

	if len(res.Detections) > 0 {
		d.logger.Info("Detected %d face(s)", len(res.Detections))
	}
	return res, nil
}

// mirrorExtents reflects [xMin, xMax] across the centre of a frame width wide.
func mirrorExtents(xMin, xMax, width float64) (float64, float64) {
	return width - xMax, width - xMin
}

func (d *FaceDetector) Close() error {
	return d.net.Close()
}
