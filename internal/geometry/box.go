package geometry

import (
	"errors"
	"fmt"
)

// ErrMalformedBox is returned for boxes with non-finite coordinates or negative extents.
var ErrMalformedBox = errors.New("malformed box")

// BoundingBox is a top-left-origin rectangle.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Validate rejects boxes a renderer could not draw.
func (b BoundingBox) Validate() error {
	if !finite(b.X) || !finite(b.Y) || !finite(b.Width) || !finite(b.Height) {
		return fmt.Errorf("%w: non-finite coordinate in %+v", ErrMalformedBox, b)
	}
	if b.Width < 0 || b.Height < 0 {
		return fmt.Errorf("%w: negative extent in %+v", ErrMalformedBox, b)
	}
	return nil
}

// FaceBox is a min/max-extent rectangle as face detectors report it.
// Field order is fixed: XMin, YMin, XMax, YMax, Width, Height.
type FaceBox struct {
	XMin   float64 `json:"x_min"`
	YMin   float64 `json:"y_min"`
	XMax   float64 `json:"x_max"`
	YMax   float64 `json:"y_max"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// FaceBoxFromExtents builds a FaceBox from its corners, deriving width and height.
func FaceBoxFromExtents(xMin, yMin, xMax, yMax float64) FaceBox {
	return FaceBox{
		XMin:   xMin,
		YMin:   yMin,
		XMax:   xMax,
		YMax:   yMax,
		Width:  xMax - xMin,
		Height: yMax - yMin,
	}
}

// Bounds returns the drawable rectangle anchored at (XMin, YMin).
func (f FaceBox) Bounds() BoundingBox {
	return BoundingBox{X: f.XMin, Y: f.YMin, Width: f.Width, Height: f.Height}
}

// Validate rejects non-finite fields and inverted extents.
func (f FaceBox) Validate() error {
	for _, v := range []float64{f.XMin, f.YMin, f.XMax, f.YMax, f.Width, f.Height} {
		if !finite(v) {
			return fmt.Errorf("%w: non-finite coordinate in %+v", ErrMalformedBox, f)
		}
	}
	if f.XMax < f.XMin || f.YMax < f.YMin || f.Width < 0 || f.Height < 0 {
		return fmt.Errorf("%w: inverted extent in %+v", ErrMalformedBox, f)
	}
	return nil
}
