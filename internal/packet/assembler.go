// Package packet assembles calibrated spectra, peaks and cycle metadata into
// immutable output records for transmission.
package packet

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/magicallyoffline/DesertSignals/pkg/models"
)

var (
	// ErrClockRegression is returned when a cycle's timestamp is earlier
	// than the previously assembled packet's. The condition is surfaced,
	// never silently fixed; the caller drops the packet and logs.
	ErrClockRegression = errors.New("packet: timestamp earlier than previous packet")
	// ErrInvalidSpectrum is returned when the spectrum axes are mismatched
	// or the wavelength axis is not strictly increasing.
	ErrInvalidSpectrum = errors.New("packet: invalid spectrum")
)

// Assembler builds DataPackets and enforces monotonically increasing
// timestamps across consecutive packets.
type Assembler struct {
	mu     sync.Mutex
	lastTs time.Time
}

// NewAssembler returns an assembler with no timestamp history.
func NewAssembler() *Assembler {
	return &Assembler{}
}

// Assemble validates and combines one cycle's outputs. Missing sensor
// readings or GPS fix are omitted, not errors. Equal timestamps from
// back-to-back cycles are accepted; only a strictly earlier timestamp fails.
func (a *Assembler) Assemble(spec models.Spectrum, peaks []models.Peak, sensors models.SensorReadings, geo *models.GeoFix, ts time.Time) (*models.DataPacket, error) {
	if len(spec.WavelengthNm) != len(spec.Intensity) {
		return nil, fmt.Errorf("%w: wavelength/intensity length mismatch %d vs %d",
			ErrInvalidSpectrum, len(spec.WavelengthNm), len(spec.Intensity))
	}
	if len(spec.Flags) != 0 && len(spec.Flags) != len(spec.WavelengthNm) {
		return nil, fmt.Errorf("%w: flags length mismatch %d vs %d",
			ErrInvalidSpectrum, len(spec.Flags), len(spec.WavelengthNm))
	}
	for i := 1; i < len(spec.WavelengthNm); i++ {
		if spec.WavelengthNm[i] <= spec.WavelengthNm[i-1] {
			return nil, fmt.Errorf("%w: wavelength axis not strictly increasing at sample %d", ErrInvalidSpectrum, i)
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if ts.Before(a.lastTs) {
		return nil, fmt.Errorf("%w: %s < %s", ErrClockRegression,
			ts.UTC().Format(time.RFC3339Nano), a.lastTs.UTC().Format(time.RFC3339Nano))
	}
	a.lastTs = ts

	pkt := &models.DataPacket{
		ID:        uuid.New().String(),
		Spectrum:  spec,
		Peaks:     append([]models.Peak(nil), peaks...),
		GPS:       geo,
		Saturated: spec.Saturated(),
		Timestamp: ts.UTC().Format(time.RFC3339Nano),
	}
	if len(sensors) > 0 {
		pkt.Sensors = sensors
	}
	if pkt.Peaks == nil {
		pkt.Peaks = []models.Peak{}
	}
	return pkt, nil
}
