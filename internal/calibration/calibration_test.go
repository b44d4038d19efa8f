package calibration

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magicallyoffline/DesertSignals/pkg/models"
)

func TestFitLinearMapping(t *testing.T) {
	points := []models.ReferencePoint{
		{PixelIndex: 0, WavelengthNm: 400},
		{PixelIndex: 100, WavelengthNm: 600},
	}

	m, err := Fit(points, 1, 200)
	require.NoError(t, err)

	assert.InDelta(t, 400, m.WavelengthAt(0), 1e-9)
	assert.InDelta(t, 500, m.WavelengthAt(50), 1e-9)
	assert.InDelta(t, 600, m.WavelengthAt(100), 1e-9)
	assert.Equal(t, 1, m.Degree())
	assert.Equal(t, 200, m.DomainWidth())
}

func TestFitReproducesReferencePoints(t *testing.T) {
	// Exact quadratic data: the fit must pass through every point.
	truth := func(p float64) float64 { return 400 + 0.5*p + 0.0002*p*p }
	pixels := []int{0, 100, 250, 400, 600}

	points := make([]models.ReferencePoint, 0, len(pixels))
	for _, px := range pixels {
		points = append(points, models.ReferencePoint{
			PixelIndex:   px,
			WavelengthNm: truth(float64(px)),
		})
	}

	m, err := Fit(points, 2, 700)
	require.NoError(t, err)

	for _, p := range points {
		assert.InDelta(t, p.WavelengthNm, m.WavelengthAt(float64(p.PixelIndex)), 1e-6)
	}
}

func TestFitInsufficientData(t *testing.T) {
	points := []models.ReferencePoint{
		{PixelIndex: 0, WavelengthNm: 400},
		{PixelIndex: 100, WavelengthNm: 500},
	}

	_, err := Fit(points, 2, 200)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestFitCountsDistinctPixelsOnly(t *testing.T) {
	// Three points but only two distinct pixel indices.
	points := []models.ReferencePoint{
		{PixelIndex: 10, WavelengthNm: 400},
		{PixelIndex: 10, WavelengthNm: 401},
		{PixelIndex: 20, WavelengthNm: 450},
	}

	_, err := Fit(points, 2, 100)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestFitRejectsNonMonotonicMapping(t *testing.T) {
	points := []models.ReferencePoint{
		{PixelIndex: 0, WavelengthNm: 700},
		{PixelIndex: 100, WavelengthNm: 600},
		{PixelIndex: 200, WavelengthNm: 500},
	}

	_, err := Fit(points, 1, 300)
	assert.ErrorIs(t, err, ErrNonMonotonicFit)
}

func TestFitValidatesArguments(t *testing.T) {
	points := []models.ReferencePoint{
		{PixelIndex: 0, WavelengthNm: 400},
		{PixelIndex: 100, WavelengthNm: 600},
	}

	_, err := Fit(points, 0, 200)
	assert.Error(t, err)

	_, err = Fit(points, 1, 1)
	assert.Error(t, err)
}

func TestFitNeverYieldsNonMonotonicModel(t *testing.T) {
	// Any model the fit hands back must be strictly increasing at every
	// integer pixel, regardless of how noisy the reference points were.
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 100; trial++ {
		points := make([]models.ReferencePoint, 0, 6)
		wl := 350.0
		for i := 0; i < 6; i++ {
			wl += 10 + 80*rng.Float64()
			points = append(points, models.ReferencePoint{
				PixelIndex:   rng.Intn(640),
				WavelengthNm: wl,
			})
		}

		m, err := Fit(points, 2, 640)
		if err != nil {
			assert.True(t,
				errors.Is(err, ErrNonMonotonicFit) || errors.Is(err, ErrInsufficientData),
				"trial %d: unexpected error %v", trial, err)
			continue
		}
		prev := m.WavelengthAt(0)
		for px := 1; px < 640; px++ {
			next := m.WavelengthAt(float64(px))
			require.Greater(t, next, prev, "trial %d: not increasing at pixel %d", trial, px)
			prev = next
		}
	}
}

func TestNewRevalidatesStoredCoefficients(t *testing.T) {
	// A decreasing mapping must be rejected even when it comes from a
	// stored record rather than a fresh fit.
	_, err := New([]float64{700, -1}, 200)
	assert.ErrorIs(t, err, ErrNonMonotonicFit)

	_, err = New([]float64{400}, 200)
	assert.Error(t, err)

	m, err := New([]float64{400, 2}, 200)
	require.NoError(t, err)
	assert.InDelta(t, 480, m.WavelengthAt(40), 1e-9)
}

func TestCoefficientsReturnsCopy(t *testing.T) {
	m, err := New([]float64{400, 2}, 200)
	require.NoError(t, err)

	coeffs := m.Coefficients()
	coeffs[0] = -1000
	assert.InDelta(t, 400, m.WavelengthAt(0), 1e-9)
}

func TestFitFromLampPairsPeaksWithLines(t *testing.T) {
	m, points, err := FitFromLamp([]float64{100.4, 299.6}, []float64{430, 550}, 1, 640)
	require.NoError(t, err)

	require.Len(t, points, 2)
	assert.Equal(t, 100, points[0].PixelIndex)
	assert.Equal(t, 300, points[1].PixelIndex)

	assert.InDelta(t, 430, m.WavelengthAt(100), 1e-9)
	assert.InDelta(t, 550, m.WavelengthAt(300), 1e-9)
}

func TestFitFromLampIgnoresExtraLines(t *testing.T) {
	// Two detected peaks against the four mercury lines uses only the
	// first two lines.
	_, points, err := FitFromLamp([]float64{100, 300}, MercuryLines, 1, 640)
	require.NoError(t, err)

	require.Len(t, points, 2)
	assert.Equal(t, MercuryLines[0], points[0].WavelengthNm)
	assert.Equal(t, MercuryLines[1], points[1].WavelengthNm)
}

func TestFitFromLampInsufficientPeaks(t *testing.T) {
	_, _, err := FitFromLamp([]float64{100}, MercuryLines, 1, 640)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestWavelengthAtFractionalPixel(t *testing.T) {
	m, err := New([]float64{400, 2}, 200)
	require.NoError(t, err)

	got := m.WavelengthAt(50.5)
	assert.False(t, math.IsNaN(got))
	assert.InDelta(t, 501, got, 1e-9)
}
