// Package frame holds the 2-D sensor frame types and the dark/white frame
// corrector that turns raw captures into normalized intensities.
package frame

import (
	"errors"
	"fmt"
)

// ErrShapeMismatch is returned when raw, dark and white frames do not share
// the same dimensions.
var ErrShapeMismatch = errors.New("frame: shape mismatch")

// Frame is a 2-D grid of non-negative intensity samples in row-major order.
// Ceiling is the sensor's maximum representable value; samples at or above
// it are saturated.
type Frame struct {
	Width   int
	Height  int
	Ceiling float64
	Pix     []float64
}

// New allocates a zero frame of the given shape.
func New(width, height int, ceiling float64) *Frame {
	return &Frame{
		Width:   width,
		Height:  height,
		Ceiling: ceiling,
		Pix:     make([]float64, width*height),
	}
}

// At returns the sample at column x, row y.
func (f *Frame) At(x, y int) float64 { return f.Pix[y*f.Width+x] }

// Set stores a sample at column x, row y.
func (f *Frame) Set(x, y int, v float64) { f.Pix[y*f.Width+x] = v }

// SameShape reports whether both frames have identical dimensions.
func (f *Frame) SameShape(o *Frame) bool {
	return o != nil && f.Width == o.Width && f.Height == o.Height
}

func (f *Frame) validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("frame: invalid shape %dx%d", f.Width, f.Height)
	}
	if len(f.Pix) != f.Width*f.Height {
		return fmt.Errorf("frame: pixel buffer length %d does not match shape %dx%d",
			len(f.Pix), f.Width, f.Height)
	}
	if f.Ceiling <= 0 {
		return fmt.Errorf("frame: ceiling must be positive, got %g", f.Ceiling)
	}
	return nil
}
