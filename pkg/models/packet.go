package models

import "time"

// SampleFlag marks data-quality conditions on a single spectrum sample.
// Flags are carried through the pipeline instead of silently clipping or
// fabricating intensity values.
type SampleFlag uint8

const (
	// FlagSaturated marks a sample whose raw column contained at least one
	// value at or above the sensor ceiling.
	FlagSaturated SampleFlag = 1 << iota
	// FlagDeadPixel marks a sample whose white-frame response was too close
	// to the dark level to normalize; its value was interpolated from
	// neighboring columns.
	FlagDeadPixel
)

// Has reports whether all bits of other are set.
func (f SampleFlag) Has(other SampleFlag) bool { return f&other == other }

// Spectrum is a calibrated 1-D spectrum: parallel wavelength and intensity
// arrays of equal length, wavelengths strictly increasing. Intensity is
// relative radiance, not absolute.
type Spectrum struct {
	WavelengthNm []float64 `json:"wavelength_nm" doc:"Wavelength axis in nanometers, strictly increasing"`
	Intensity    []float64 `json:"intensity" doc:"Relative radiance per wavelength sample"`
	// Flags holds per-sample quality flags. Empty when every sample is clean;
	// otherwise the same length as the axes.
	Flags []SampleFlag `json:"flags,omitempty" doc:"Per-sample quality flags (1=saturated, 2=dead pixel)"`
}

// Len returns the number of samples.
func (s Spectrum) Len() int { return len(s.WavelengthNm) }

// FlagAt returns the flags for sample i, tolerating an empty flag slice.
func (s Spectrum) FlagAt(i int) SampleFlag {
	if i < 0 || i >= len(s.Flags) {
		return 0
	}
	return s.Flags[i]
}

// Saturated reports whether any sample carries the saturation flag.
func (s Spectrum) Saturated() bool {
	for _, f := range s.Flags {
		if f.Has(FlagSaturated) {
			return true
		}
	}
	return false
}

// Peak is a detected emission or absorption feature, refined to sub-sample
// accuracy.
type Peak struct {
	WavelengthNm float64 `json:"wavelength_nm" doc:"Refined peak center in nanometers"`
	Intensity    float64 `json:"intensity" doc:"Refined peak intensity, relative units"`
	FWHM         float64 `json:"fwhm" doc:"Full width at half maximum in nanometers"`
}

// GeoFix is a GPS position. Absent entirely when the receiver has no lock.
type GeoFix struct {
	Lat float64 `json:"lat" doc:"Latitude in decimal degrees"`
	Lon float64 `json:"lon" doc:"Longitude in decimal degrees"`
}

// SensorReadings maps pollutant sensor names to concentration values.
// Sensors that produced no reading this cycle are simply absent.
type SensorReadings map[string]float64

// DataPacket is one assembled acquisition cycle, handed to the transmitter.
// Packets are immutable once assembled and carry non-decreasing timestamps.
type DataPacket struct {
	ID string `json:"id" doc:"Packet unique identifier"`
	Spectrum
	Peaks     []Peak         `json:"peaks_nm" doc:"Detected peaks, ascending by wavelength"`
	GPS       *GeoFix        `json:"gps" doc:"GPS fix, null without a lock"`
	Sensors   SensorReadings `json:"sensors,omitempty" doc:"Pollutant sensor readings"`
	Saturated bool           `json:"saturated,omitempty" doc:"True when any sample was saturated"`
	Timestamp string         `json:"timestamp" doc:"Assembly time, ISO-8601 UTC"`
}

// Time parses the packet timestamp.
func (p *DataPacket) Time() (time.Time, error) {
	return time.Parse(time.RFC3339Nano, p.Timestamp)
}
