package ai

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"detectview/internal/geometry"
	"detectview/internal/model"
	"detectview/internal/pipeline"

	"gocv.io/x/gocv"
)

var (
	objectColor = color.RGBA{R: 255, G: 0, B: 0, A: 0}
	faceColor   = color.RGBA{R: 0, G: 255, B: 0, A: 0}
)

// Annotate renders img at display size and draws every overlay onto it.
// Overlays are expected in display space, as published in a Frame. Returns a JPEG buffer.
func Annotate(img []byte, display geometry.Size, overlays []pipeline.Overlay) ([]byte, error) {
	mat, err := decodeMat(img)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	canvas := mat
	if display.Valid() {
		target := image.Pt(int(math.Round(display.Width)), int(math.Round(display.Height)))
		if target.X != mat.Cols() || target.Y != mat.Rows() {
			resized := gocv.NewMat()
			defer resized.Close()
			if err := gocv.Resize(mat, &resized, target, 0, 0, gocv.InterpolationLinear); err != nil {
				return nil, fmt.Errorf("failed to resize image: %w", err)
			}
			canvas = resized
		}
	}

	for _, overlay := range overlays {
		c := objectColor
		if overlay.Kind == model.KindFace {
			c = faceColor
		}

		box := overlay.Box
		rect := image.Rect(
			int(math.Round(box.X)), int(math.Round(box.Y)),
			int(math.Round(box.X+box.Width)), int(math.Round(box.Y+box.Height)),
		)
		if err := gocv.Rectangle(&canvas, rect, c, 2); err != nil {
			return nil, fmt.Errorf("failed to draw rectangle: %w", err)
		}

		label := fmt.Sprintf("%s (%.2f)", overlay.Label, overlay.Score)
		pt := image.Pt(rect.Min.X, rect.Min.Y-5)
		if err := gocv.PutText(&canvas, label, pt, gocv.FontHersheySimplex, 0.5, c, 1); err != nil {
			return nil, fmt.Errorf("failed to draw text: %w", err)
		}
	}

	buf, err := gocv.IMEncode(".jpg", canvas)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	defer buf.Close()

	annotated := make([]byte, len(buf.GetBytes()))
	copy(annotated, buf.GetBytes())
	return annotated, nil
}
