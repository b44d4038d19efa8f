package spectrum

import (
	"sort"

	"github.com/magicallyoffline/DesertSignals/pkg/models"
)

// PeakParams tunes peak detection. Both thresholds are configuration inputs;
// the reference device never fixed them in hardware.
type PeakParams struct {
	// MinProminence is the intensity drop required between a peak and its
	// surrounding local minima, in the same units as the spectrum.
	MinProminence float64
	// MinSeparationNm suppresses the weaker of two peaks closer than this.
	MinSeparationNm float64
}

// DetectPeaks finds local intensity maxima in a calibrated spectrum.
//
// A candidate is a sample strictly greater than both neighbors, or the
// midpoint of a maximal plateau. Candidates must clear MinProminence against
// their surrounding minima. Among candidates closer than MinSeparationNm the
// highest-intensity one wins, ties going to the lower wavelength so output is
// deterministic. Retained peaks are refined by three-point parabolic
// interpolation and get an FWHM from the half-prominence crossings.
//
// Degenerate inputs (fewer than 3 samples, flat or all-zero spectra) yield an
// empty list, never an error.
func DetectPeaks(s models.Spectrum, p PeakParams) []models.Peak {
	y := s.Intensity
	if len(y) < 3 || len(s.WavelengthNm) != len(y) {
		return nil
	}

	candidates := findLocalMaxima(y)
	if len(candidates) == 0 {
		return nil
	}

	type scored struct {
		idx        int
		prominence float64
	}
	var kept []scored
	for _, idx := range candidates {
		prom := prominenceAt(y, idx)
		if prom >= p.MinProminence && prom > 0 {
			kept = append(kept, scored{idx: idx, prominence: prom})
		}
	}
	if len(kept) == 0 {
		return nil
	}

	// Highest intensity first; equal intensities resolve to the lower
	// wavelength so suppression is deterministic.
	sort.Slice(kept, func(i, j int) bool {
		yi, yj := y[kept[i].idx], y[kept[j].idx]
		if yi != yj {
			return yi > yj
		}
		return kept[i].idx < kept[j].idx
	})

	var accepted []scored
	for _, c := range kept {
		ok := true
		for _, a := range accepted {
			d := s.WavelengthNm[c.idx] - s.WavelengthNm[a.idx]
			if d < 0 {
				d = -d
			}
			if d < p.MinSeparationNm {
				ok = false
				break
			}
		}
		if ok {
			accepted = append(accepted, c)
		}
	}

	peaks := make([]models.Peak, 0, len(accepted))
	for _, c := range accepted {
		wl, intensity := refineParabolic(s.WavelengthNm, y, c.idx)
		peaks = append(peaks, models.Peak{
			WavelengthNm: wl,
			Intensity:    intensity,
			FWHM:         widthAtHalfProminence(s.WavelengthNm, y, c.idx, c.prominence),
		})
	}
	sort.Slice(peaks, func(i, j int) bool { return peaks[i].WavelengthNm < peaks[j].WavelengthNm })
	return peaks
}

// TopK returns the k most intense peaks, ranked by intensity descending.
// The input slice is left untouched.
func TopK(peaks []models.Peak, k int) []models.Peak {
	if k <= 0 || len(peaks) == 0 {
		return nil
	}
	out := append([]models.Peak(nil), peaks...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Intensity != out[j].Intensity {
			return out[i].Intensity > out[j].Intensity
		}
		return out[i].WavelengthNm < out[j].WavelengthNm
	})
	if k < len(out) {
		out = out[:k]
	}
	return out
}

// findLocalMaxima returns indices of strict local maxima, with maximal
// plateaus contributing their midpoint.
func findLocalMaxima(y []float64) []int {
	var out []int
	for i := 1; i < len(y)-1; {
		if y[i] <= y[i-1] {
			i++
			continue
		}
		if y[i] > y[i+1] {
			out = append(out, i)
			i++
			continue
		}
		if y[i] == y[i+1] {
			j := i
			for j+1 < len(y) && y[j+1] == y[i] {
				j++
			}
			if j+1 < len(y) && y[j+1] < y[i] {
				out = append(out, (i+j)/2)
			}
			i = j + 1
			continue
		}
		i++
	}
	return out
}

// prominenceAt measures how far the peak at idx rises above the higher of
// the two minima separating it from taller terrain (or the spectrum edge).
func prominenceAt(y []float64, idx int) float64 {
	peak := y[idx]

	leftMin := peak
	for i := idx - 1; i >= 0; i-- {
		if y[i] > peak {
			break
		}
		if y[i] < leftMin {
			leftMin = y[i]
		}
	}

	rightMin := peak
	for i := idx + 1; i < len(y); i++ {
		if y[i] > peak {
			break
		}
		if y[i] < rightMin {
			rightMin = y[i]
		}
	}

	base := leftMin
	if rightMin > base {
		base = rightMin
	}
	return peak - base
}

// refineParabolic fits a parabola through the discrete maximum and its
// neighbors for sub-sample wavelength and intensity.
func refineParabolic(wl, y []float64, idx int) (float64, float64) {
	ym1, y0, yp1 := y[idx-1], y[idx], y[idx+1]
	denom := ym1 - 2*y0 + yp1
	if denom >= 0 {
		// Flat top or degenerate curvature: keep the discrete sample.
		return wl[idx], y0
	}
	delta := 0.5 * (ym1 - yp1) / denom
	if delta > 0.5 {
		delta = 0.5
	}
	if delta < -0.5 {
		delta = -0.5
	}

	var refinedWl float64
	if delta >= 0 {
		refinedWl = wl[idx] + delta*(wl[idx+1]-wl[idx])
	} else {
		refinedWl = wl[idx] + delta*(wl[idx]-wl[idx-1])
	}
	refinedY := y0 - 0.25*(ym1-yp1)*delta
	return refinedWl, refinedY
}

// widthAtHalfProminence measures the peak width where intensity crosses half
// the prominence-adjusted height, interpolating linearly between samples.
// Sides that never cross before the spectrum edge clamp at the edge.
func widthAtHalfProminence(wl, y []float64, idx int, prominence float64) float64 {
	half := y[idx] - prominence/2

	left := wl[0]
	for i := idx - 1; i >= 0; i-- {
		if y[i] <= half {
			t := (y[i+1] - half) / (y[i+1] - y[i])
			left = wl[i+1] + t*(wl[i]-wl[i+1])
			break
		}
	}

	right := wl[len(wl)-1]
	for i := idx + 1; i < len(y); i++ {
		if y[i] <= half {
			t := (y[i-1] - half) / (y[i-1] - y[i])
			right = wl[i-1] + t*(wl[i]-wl[i-1])
			break
		}
	}
	return right - left
}
