// Package spectrum collapses corrected frames into calibrated 1-D spectra
// and finds peaks in them.
package spectrum

import (
	"errors"
	"fmt"
	"math"

	"github.com/magicallyoffline/DesertSignals/internal/frame"
	"github.com/magicallyoffline/DesertSignals/pkg/models"
)

// Aggregation selects how the rows of the dispersion band are collapsed.
type Aggregation string

const (
	// AggregationMean averages band rows per column. This is the default and
	// matches the reference device; it keeps intensities independent of band
	// height.
	AggregationMean Aggregation = "mean"
	// AggregationSum sums band rows per column. Changes absolute but not
	// relative scale.
	AggregationSum Aggregation = "sum"
)

// ErrEmptyBand is returned when the row band does not intersect the frame.
var ErrEmptyBand = errors.New("spectrum: row band does not intersect frame")

// RowBand is the half-open row range [Top, Bottom) where the dispersed line
// falls on the sensor.
type RowBand struct {
	Top    int
	Bottom int
}

// ExtractorOptions tunes band collapse and smoothing.
type ExtractorOptions struct {
	Aggregation Aggregation
	// SmoothingSigma is the Gaussian smoothing width in samples; 0 disables
	// smoothing.
	SmoothingSigma float64
}

// Profile is a raw 1-D intensity profile indexed by pixel column, before the
// wavelength axis is applied.
type Profile struct {
	Intensity []float64
	Flags     []models.SampleFlag
}

// Extract collapses the band rows of a corrected frame into one intensity
// value per column. The band is clamped to the frame, so a band wider than
// the frame degrades to the full height rather than failing.
func Extract(f *frame.CorrectedFrame, band RowBand, opts ExtractorOptions) (*Profile, error) {
	top, bottom := band.Top, band.Bottom
	if top < 0 {
		top = 0
	}
	if bottom > f.Height {
		bottom = f.Height
	}
	if top >= bottom {
		return nil, fmt.Errorf("%w: rows [%d,%d) in height %d", ErrEmptyBand, band.Top, band.Bottom, f.Height)
	}

	intensity := make([]float64, f.Width)
	for x := 0; x < f.Width; x++ {
		sum := 0.0
		for y := top; y < bottom; y++ {
			sum += f.At(x, y)
		}
		if opts.Aggregation == AggregationSum {
			intensity[x] = sum
		} else {
			intensity[x] = sum / float64(bottom-top)
		}
	}

	if opts.SmoothingSigma > 0 {
		intensity = smoothGaussian(intensity, opts.SmoothingSigma)
	}

	return &Profile{
		Intensity: intensity,
		Flags:     append([]models.SampleFlag(nil), f.ColumnFlags...),
	}, nil
}

// smoothGaussian convolves the profile with a normalized Gaussian kernel.
// The kernel is renormalized at the edges so border samples are not damped.
func smoothGaussian(in []float64, sigma float64) []float64 {
	radius := int(4*sigma + 0.5)
	if radius < 1 {
		return in
	}
	kernel := make([]float64, 2*radius+1)
	for i := range kernel {
		d := float64(i - radius)
		kernel[i] = math.Exp(-d * d / (2 * sigma * sigma))
	}

	out := make([]float64, len(in))
	for i := range in {
		sum, weight := 0.0, 0.0
		for k, w := range kernel {
			j := i + k - radius
			if j < 0 || j >= len(in) {
				continue
			}
			sum += in[j] * w
			weight += w
		}
		out[i] = sum / weight
	}
	return out
}

// WavelengthModel maps a pixel column index to a wavelength. Satisfied by
// the calibration model.
type WavelengthModel interface {
	WavelengthAt(pixel float64) float64
}

// ErrAxisNotMonotonic is returned when the produced wavelength axis is not
// strictly increasing even after orientation correction.
var ErrAxisNotMonotonic = errors.New("spectrum: wavelength axis not strictly increasing")

// Calibrate pairs a pixel profile with the wavelength axis from the
// calibration model and applies the optional spectral response compensation.
// If the grating orientation ever reverses the axis the arrays are reversed,
// not rejected; the result always has a strictly increasing wavelength axis.
func Calibrate(p *Profile, model WavelengthModel, curve *ResponseCurve) (models.Spectrum, error) {
	n := len(p.Intensity)
	s := models.Spectrum{
		WavelengthNm: make([]float64, n),
		Intensity:    make([]float64, n),
	}
	for i := 0; i < n; i++ {
		s.WavelengthNm[i] = model.WavelengthAt(float64(i))
		s.Intensity[i] = p.Intensity[i]
	}
	if hasFlags(p.Flags) {
		s.Flags = append([]models.SampleFlag(nil), p.Flags...)
	}

	if n > 1 && s.WavelengthNm[0] > s.WavelengthNm[n-1] {
		reverse(s.WavelengthNm)
		reverse(s.Intensity)
		reverseFlags(s.Flags)
	}
	for i := 1; i < n; i++ {
		if s.WavelengthNm[i] <= s.WavelengthNm[i-1] {
			return models.Spectrum{}, fmt.Errorf("%w at sample %d", ErrAxisNotMonotonic, i)
		}
	}

	if curve != nil {
		for i := 0; i < n; i++ {
			s.Intensity[i] /= curve.GainAt(s.WavelengthNm[i])
		}
	}
	return s, nil
}

// Normalize scales intensities so the maximum is 1 (relative radiance).
// All-zero spectra are left untouched.
func Normalize(s models.Spectrum) {
	max := 0.0
	for _, v := range s.Intensity {
		if v > max {
			max = v
		}
	}
	if max <= 0 {
		return
	}
	for i := range s.Intensity {
		s.Intensity[i] /= max
	}
}

func hasFlags(flags []models.SampleFlag) bool {
	for _, f := range flags {
		if f != 0 {
			return true
		}
	}
	return false
}

func reverse(v []float64) {
	for i, j := 0, len(v)-1; i < j; i, j = i+1, j-1 {
		v[i], v[j] = v[j], v[i]
	}
}

func reverseFlags(v []models.SampleFlag) {
	for i, j := 0, len(v)-1; i < j; i, j = i+1, j-1 {
		v[i], v[j] = v[j], v[i]
	}
}
