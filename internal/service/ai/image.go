package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"detectview/internal/geometry"
	"detectview/internal/logger"
	"detectview/internal/pipeline"

	"gocv.io/x/gocv"
)

// ErrUnsupportedFormat is returned for input that is neither JPEG nor PNG.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// MatImage is a decoded image held as an OpenCV matrix together with its encoded source.
type MatImage struct {
	mat  gocv.Mat
	data []byte
	size geometry.Size
}

func (m *MatImage) Size() geometry.Size { return m.size }
func (m *MatImage) Bytes() []byte       { return m.data }
func (m *MatImage) Mat() gocv.Mat       { return m.mat }
func (m *MatImage) Close() error        { return m.mat.Close() }

type Decoder struct {
	logger *logger.Logger
}

// NewDecoder creates a JPEG/PNG decoder backed by OpenCV.
func NewDecoder(logger *logger.Logger) *Decoder {
	return &Decoder{logger: logger}
}

// Decode sniffs the container format and decodes data into a colour matrix.
func (d *Decoder) Decode(ctx context.Context, data []byte) (pipeline.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch contentType := http.DetectContentType(data); contentType {
	case "image/jpeg", "image/png":
	default:
		return nil, fmt.Errorf("%w %q", ErrUnsupportedFormat, contentType)
	}

	mat, err := decodeMat(data)
	if err != nil {
		return nil, err
	}

	img := &MatImage{
		mat:  mat,
		data: data,
		size: geometry.Size{Width: float64(mat.Cols()), Height: float64(mat.Rows())},
	}
	d.logger.Info("Decoded %d bytes into a %s image", len(data), img.size)
	return img, nil
}

func decodeMat(data []byte) (gocv.Mat, error) {
	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("failed to decode image: %w", err)
	}
	if mat.Empty() {
		mat.Close()
		return gocv.Mat{}, fmt.Errorf("decoded image is empty")
	}
	return mat, nil
}

// matOf returns the matrix behind img, decoding its bytes when img came from another decoder.
// release must be called once the matrix is no longer needed.
func matOf(img pipeline.Image) (mat gocv.Mat, release func(), err error) {
	if m, ok := img.(*MatImage); ok {
		return m.mat, func() {}, nil
	}

	mat, err = decodeMat(img.Bytes())
	if err != nil {
		return gocv.Mat{}, nil, err
	}
	return mat, func() { mat.Close() }, nil
}
