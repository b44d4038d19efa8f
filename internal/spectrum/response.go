package spectrum

import (
	"encoding/json"
	"fmt"
	"os"
)

// ResponseCurve is the sensor's spectral sensitivity as sampled gain points,
// used to compensate the extracted spectrum so intensities approximate
// relative radiance.
type ResponseCurve struct {
	WavelengthNm []float64 `json:"wavelength_nm"`
	Response     []float64 `json:"response"`
}

// LoadResponseCurve reads a response curve JSON file. A missing file is not
// an error to the caller deciding whether compensation applies; pass the
// os.ErrNotExist through.
func LoadResponseCurve(path string) (*ResponseCurve, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c ResponseCurve
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("spectrum: parse response curve %s: %w", path, err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *ResponseCurve) validate() error {
	if len(c.WavelengthNm) != len(c.Response) {
		return fmt.Errorf("spectrum: response curve arrays differ in length: %d vs %d",
			len(c.WavelengthNm), len(c.Response))
	}
	if len(c.WavelengthNm) < 2 {
		return fmt.Errorf("spectrum: response curve needs at least 2 points, got %d", len(c.WavelengthNm))
	}
	for i := 1; i < len(c.WavelengthNm); i++ {
		if c.WavelengthNm[i] <= c.WavelengthNm[i-1] {
			return fmt.Errorf("spectrum: response curve wavelengths not increasing at index %d", i)
		}
	}
	return nil
}

// GainAt linearly interpolates the response gain at a wavelength, clamping
// outside the sampled range. Non-positive gains are treated as unity so a
// bad curve point cannot blow up the division.
func (c *ResponseCurve) GainAt(wavelengthNm float64) float64 {
	wl, resp := c.WavelengthNm, c.Response
	var g float64
	switch {
	case wavelengthNm <= wl[0]:
		g = resp[0]
	case wavelengthNm >= wl[len(wl)-1]:
		g = resp[len(resp)-1]
	default:
		hi := 1
		for wl[hi] < wavelengthNm {
			hi++
		}
		t := (wavelengthNm - wl[hi-1]) / (wl[hi] - wl[hi-1])
		g = resp[hi-1] + t*(resp[hi]-resp[hi-1])
	}
	if g <= 0 {
		return 1
	}
	return g
}
