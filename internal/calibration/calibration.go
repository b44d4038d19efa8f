// Package calibration fits and evaluates the polynomial mapping from sensor
// column index to wavelength. A model is fitted once per calibration session
// from reference lamp lines and is read-only afterwards.
package calibration

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/magicallyoffline/DesertSignals/pkg/models"
)

var (
	// ErrInsufficientData is returned when fewer than degree+1 distinct
	// reference points are supplied.
	ErrInsufficientData = errors.New("calibration: insufficient reference points")
	// ErrNonMonotonicFit is returned when the fitted polynomial is not
	// strictly increasing over the pixel domain. The dispersion axis is
	// physically monotonic, so such a fit is always wrong.
	ErrNonMonotonicFit = errors.New("calibration: fitted mapping is not monotonically increasing")
)

// MercuryLines are the reference emission lines of a mercury/CFL lamp in
// nanometers, used as the default for lamp calibration.
var MercuryLines = []float64{404.7, 435.8, 546.1, 577.0}

// Model maps a pixel column index to a wavelength in nanometers via a fitted
// polynomial. Coefficients are stored lowest degree first.
type Model struct {
	coeffs      []float64
	domainWidth int
}

// Fit performs a least-squares polynomial regression of wavelength on pixel
// index and validates that the fitted mapping is strictly increasing at every
// integer pixel in [0, domainWidth).
func Fit(points []models.ReferencePoint, degree, domainWidth int) (*Model, error) {
	if degree < 1 {
		return nil, fmt.Errorf("calibration: degree must be >= 1, got %d", degree)
	}
	if domainWidth < 2 {
		return nil, fmt.Errorf("calibration: domain width must be >= 2, got %d", domainWidth)
	}

	distinct := map[int]struct{}{}
	for _, p := range points {
		distinct[p.PixelIndex] = struct{}{}
	}
	if len(distinct) < degree+1 {
		return nil, fmt.Errorf("%w: need %d distinct pixels for degree %d, got %d",
			ErrInsufficientData, degree+1, degree, len(distinct))
	}

	// Vandermonde system: one row per reference point, columns are pixel^j.
	rows, cols := len(points), degree+1
	a := mat.NewDense(rows, cols, nil)
	b := mat.NewVecDense(rows, nil)
	for i, p := range points {
		x := 1.0
		for j := 0; j < cols; j++ {
			a.Set(i, j, x)
			x *= float64(p.PixelIndex)
		}
		b.SetVec(i, p.WavelengthNm)
	}

	var qr mat.QR
	qr.Factorize(a)
	coeffs := mat.NewVecDense(cols, nil)
	if err := qr.SolveVecTo(coeffs, false, b); err != nil {
		return nil, fmt.Errorf("calibration: least-squares solve failed: %w", err)
	}

	m := &Model{coeffs: coeffs.RawVector().Data, domainWidth: domainWidth}
	if err := m.checkMonotonic(); err != nil {
		return nil, err
	}
	return m, nil
}

// New builds a model from stored coefficients, re-validating the monotonicity
// invariant so a corrupted record cannot reintroduce a bad mapping.
func New(coeffs []float64, domainWidth int) (*Model, error) {
	if len(coeffs) < 2 {
		return nil, fmt.Errorf("calibration: need at least 2 coefficients, got %d", len(coeffs))
	}
	if domainWidth < 2 {
		return nil, fmt.Errorf("calibration: domain width must be >= 2, got %d", domainWidth)
	}
	m := &Model{coeffs: append([]float64(nil), coeffs...), domainWidth: domainWidth}
	if err := m.checkMonotonic(); err != nil {
		return nil, err
	}
	return m, nil
}

// FitFromLamp matches detected peak pixels, ascending, against known lamp
// lines in order and fits a model from the resulting pairs. Extra peaks or
// extra lines beyond the shorter list are ignored, matching how an operator
// reads a lamp spectrum left to right.
func FitFromLamp(peakPixels []float64, knownLinesNm []float64, degree, domainWidth int) (*Model, []models.ReferencePoint, error) {
	n := len(peakPixels)
	if len(knownLinesNm) < n {
		n = len(knownLinesNm)
	}
	points := make([]models.ReferencePoint, 0, n)
	for i := 0; i < n; i++ {
		points = append(points, models.ReferencePoint{
			PixelIndex:   int(math.Round(peakPixels[i])),
			WavelengthNm: knownLinesNm[i],
		})
	}
	m, err := Fit(points, degree, domainWidth)
	if err != nil {
		return nil, nil, err
	}
	return m, points, nil
}

// WavelengthAt evaluates the fitted polynomial at a (possibly fractional)
// pixel index. Pure; defined for any index in [0, DomainWidth).
func (m *Model) WavelengthAt(pixel float64) float64 {
	// Horner, highest degree first.
	v := 0.0
	for i := len(m.coeffs) - 1; i >= 0; i-- {
		v = v*pixel + m.coeffs[i]
	}
	return v
}

// Coefficients returns a copy of the polynomial coefficients, lowest degree
// first.
func (m *Model) Coefficients() []float64 {
	return append([]float64(nil), m.coeffs...)
}

// Degree returns the polynomial degree.
func (m *Model) Degree() int { return len(m.coeffs) - 1 }

// DomainWidth returns the exclusive upper bound of the valid pixel domain.
func (m *Model) DomainWidth() int { return m.domainWidth }

// checkMonotonic evaluates the polynomial at every integer pixel of the
// domain and rejects any mapping that is not strictly increasing.
func (m *Model) checkMonotonic() error {
	prev := m.WavelengthAt(0)
	for px := 1; px < m.domainWidth; px++ {
		next := m.WavelengthAt(float64(px))
		if next <= prev {
			return fmt.Errorf("%w: wavelength does not increase between pixels %d and %d (%.4f -> %.4f)",
				ErrNonMonotonicFit, px-1, px, prev, next)
		}
		prev = next
	}
	return nil
}
