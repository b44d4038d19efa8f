package frame

import (
	"fmt"

	"github.com/magicallyoffline/DesertSignals/pkg/models"
)

// CorrectorOptions tunes dark/white normalization.
type CorrectorOptions struct {
	// Epsilon is the minimum usable white-minus-dark response. Pixels below
	// it are dead in the white frame and cannot be normalized.
	Epsilon float64
	// ReferenceGain scales the normalized [0,1] response into a displayable
	// intensity range.
	ReferenceGain float64
}

// DefaultCorrectorOptions mirror the reference device: 8-bit display scale,
// epsilon of one count.
func DefaultCorrectorOptions() CorrectorOptions {
	return CorrectorOptions{Epsilon: 1.0, ReferenceGain: 255.0}
}

// CorrectedFrame is a dark/white-normalized frame with per-column quality
// flags. Column flags propagate to the extracted spectrum samples.
type CorrectedFrame struct {
	Width       int
	Height      int
	Pix         []float64
	ColumnFlags []models.SampleFlag
}

// At returns the corrected sample at column x, row y.
func (f *CorrectedFrame) At(x, y int) float64 { return f.Pix[y*f.Width+x] }

// Correct normalizes a raw frame: per pixel (raw-dark)/max(white-dark, eps),
// scaled by the reference gain. Saturated raw samples flag their column
// rather than being clipped to a plausible-looking value. Pixels that are
// dead in the white frame are interpolated from their nearest valid
// horizontal neighbors and flag their column.
func Correct(raw, dark, white *Frame, opts CorrectorOptions) (*CorrectedFrame, error) {
	if err := raw.validate(); err != nil {
		return nil, err
	}
	if !raw.SameShape(dark) || !raw.SameShape(white) {
		return nil, fmt.Errorf("%w: raw %dx%d, dark/white must match", ErrShapeMismatch, raw.Width, raw.Height)
	}
	if opts.Epsilon <= 0 {
		opts.Epsilon = DefaultCorrectorOptions().Epsilon
	}
	if opts.ReferenceGain <= 0 {
		opts.ReferenceGain = DefaultCorrectorOptions().ReferenceGain
	}

	out := &CorrectedFrame{
		Width:       raw.Width,
		Height:      raw.Height,
		Pix:         make([]float64, len(raw.Pix)),
		ColumnFlags: make([]models.SampleFlag, raw.Width),
	}
	valid := make([]bool, len(raw.Pix))

	for y := 0; y < raw.Height; y++ {
		row := y * raw.Width
		for x := 0; x < raw.Width; x++ {
			i := row + x
			if raw.Pix[i] >= raw.Ceiling {
				out.ColumnFlags[x] |= models.FlagSaturated
			}
			denom := white.Pix[i] - dark.Pix[i]
			if denom <= opts.Epsilon {
				out.ColumnFlags[x] |= models.FlagDeadPixel
				continue
			}
			v := (raw.Pix[i] - dark.Pix[i]) / denom * opts.ReferenceGain
			if v < 0 {
				v = 0
			}
			out.Pix[i] = v
			valid[i] = true
		}
	}

	interpolateDead(out, valid)
	return out, nil
}

// interpolateDead fills invalid pixels from the nearest valid neighbors in
// the same row. Rows with no valid pixel at all stay zero; the dead-pixel
// column flags already mark those samples as untrustworthy.
func interpolateDead(f *CorrectedFrame, valid []bool) {
	for y := 0; y < f.Height; y++ {
		row := y * f.Width
		for x := 0; x < f.Width; x++ {
			if valid[row+x] {
				continue
			}
			lx := x - 1
			for lx >= 0 && !valid[row+lx] {
				lx--
			}
			rx := x + 1
			for rx < f.Width && !valid[row+rx] {
				rx++
			}
			switch {
			case lx >= 0 && rx < f.Width:
				t := float64(x-lx) / float64(rx-lx)
				f.Pix[row+x] = f.Pix[row+lx] + t*(f.Pix[row+rx]-f.Pix[row+lx])
			case lx >= 0:
				f.Pix[row+x] = f.Pix[row+lx]
			case rx < f.Width:
				f.Pix[row+x] = f.Pix[row+rx]
			}
		}
	}
}
