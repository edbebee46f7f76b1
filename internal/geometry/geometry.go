package geometry

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidSize is returned when a reference frame has a zero, negative or non-finite dimension.
var ErrInvalidSize = errors.New("invalid size")

// Size holds the pixel dimensions of an image in some reference frame.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Valid reports whether both dimensions are finite and positive.
func (s Size) Valid() bool {
	return finite(s.Width) && finite(s.Height) && s.Width > 0 && s.Height > 0
}

// IsZero reports whether the size was never set.
func (s Size) IsZero() bool {
	return s.Width == 0 && s.Height == 0
}

func (s Size) String() string {
	return fmt.Sprintf("%gx%g", s.Width, s.Height)
}

// Scale holds per-axis ratios from one reference frame to another.
type Scale struct {
	X float64
	Y float64
}

// NewScale returns the ratios mapping the from frame onto the to frame.
// The source frame must be Valid; the destination may be degenerate but not negative or non-finite.
func NewScale(from, to Size) (Scale, error) {
	if !from.Valid() {
		return Scale{}, fmt.Errorf("%w: source frame %s", ErrInvalidSize, from)
	}
	if !finite(to.Width) || !finite(to.Height) || to.Width < 0 || to.Height < 0 {
		return Scale{}, fmt.Errorf("%w: destination frame %s", ErrInvalidSize, to)
	}

	return Scale{X: to.Width / from.Width, Y: to.Height / from.Height}, nil
}

// Box rescales a bounding box.
func (s Scale) Box(b BoundingBox) BoundingBox {
	return BoundingBox{
		X:      b.X * s.X,
		Y:      b.Y * s.Y,
		Width:  b.Width * s.X,
		Height: b.Height * s.Y,
	}
}

// FaceBox rescales a face box, keeping every named field.
func (s Scale) FaceBox(f FaceBox) FaceBox {
	return FaceBox{
		XMin:   f.XMin * s.X,
		YMin:   f.YMin * s.Y,
		XMax:   f.XMax * s.X,
		YMax:   f.YMax * s.Y,
		Width:  f.Width * s.X,
		Height: f.Height * s.Y,
	}
}

// ScaleBox maps box from the from frame into the to frame.
func ScaleBox(box BoundingBox, from, to Size) (BoundingBox, error) {
	scale, err := NewScale(from, to)
	if err != nil {
		return BoundingBox{}, err
	}
	return scale.Box(box), nil
}

// ScaleFaceBox maps face from the from frame into the to frame.
func ScaleFaceBox(face FaceBox, from, to Size) (FaceBox, error) {
	scale, err := NewScale(from, to)
	if err != nil {
		return FaceBox{}, err
	}
	return scale.FaceBox(face), nil
}

// Fit shrinks natural to fit inside bounds while keeping its aspect ratio.
// A zero bound on an axis leaves that axis unconstrained; sizes are never enlarged.
func Fit(natural, bounds Size) Size {
	if !natural.Valid() {
		return natural
	}

	ratio := 1.0
	if bounds.Width > 0 && natural.Width > bounds.Width {
		ratio = math.Min(ratio, bounds.Width/natural.Width)
	}
	if bounds.Height > 0 && natural.Height > bounds.Height {
		ratio = math.Min(ratio, bounds.Height/natural.Height)
	}
	if ratio == 1 {
		return natural
	}

	return Size{Width: natural.Width * ratio, Height: natural.Height * ratio}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
