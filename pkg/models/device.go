package models

import "time"

// HealthResponse represents the health check response
type HealthResponse struct {
	Body struct {
		Status  string    `json:"status" example:"healthy" doc:"Service health status"`
		Version string    `json:"version" example:"1.0.0" doc:"API version"`
		Time    time.Time `json:"time" doc:"Current server time"`
	}
}

// CalibrationRecordBody describes the persisted wavelength calibration.
type CalibrationRecordBody struct {
	Coefficients    []float64        `json:"coefficients" doc:"Polynomial coefficients, lowest degree first"`
	Degree          int              `json:"degree" doc:"Polynomial degree"`
	DomainWidth     int              `json:"domain_width" doc:"Valid pixel domain [0, width)"`
	ReferencePoints []ReferencePoint `json:"reference_points,omitempty" doc:"Reference points used for the fit"`
	FittedAt        time.Time        `json:"fitted_at" doc:"When the calibration was fitted"`
}

// ReferencePoint pairs a pixel column with a known reference wavelength.
type ReferencePoint struct {
	PixelIndex   int     `json:"pixel_index" minimum:"0" doc:"Sensor column index"`
	WavelengthNm float64 `json:"wavelength_nm" minimum:"0" doc:"Known wavelength in nanometers"`
}

// GetCalibrationResponse returns the calibration currently in effect.
type GetCalibrationResponse struct {
	Body CalibrationRecordBody
}

// CalibrateRequest represents a request to refit the wavelength calibration
// from operator-supplied reference points.
type CalibrateRequest struct {
	Body struct {
		ReferencePoints []ReferencePoint `json:"reference_points" minItems:"2" required:"true" doc:"Pixel/wavelength reference pairs"`
		Degree          int              `json:"degree,omitempty" minimum:"1" maximum:"6" doc:"Polynomial degree, defaults to the configured degree"`
	}
}

// CalibrateResponse returns the newly fitted calibration.
type CalibrateResponse struct {
	Body CalibrationRecordBody
}

// LampCalibrateRequest triggers a reference-lamp calibration: a frame is
// captured, its peaks detected in pixel space and matched in order against
// the known lamp lines.
type LampCalibrateRequest struct {
	Body struct {
		KnownLinesNm []float64 `json:"known_lines_nm,omitempty" doc:"Known emission lines in nanometers; defaults to the mercury lamp set"`
		Degree       int       `json:"degree,omitempty" minimum:"1" maximum:"6" doc:"Polynomial degree, defaults to the configured degree"`
	}
}

// LampCalibrateResponse returns the fit produced from the lamp capture.
type LampCalibrateResponse struct {
	Body CalibrationRecordBody
}

// GetLatestSpectrumResponse returns the most recently assembled packet.
type GetLatestSpectrumResponse struct {
	Body *DataPacket
}

// CaptureReferenceRequest asks the device to capture a dark or white
// reference frame and install it in the active session.
type CaptureReferenceRequest struct {
	Body struct {
		Kind string `json:"kind" enum:"dark,white" required:"true" doc:"Reference frame kind"`
	}
}

// CaptureReferenceResponse confirms a reference frame capture.
type CaptureReferenceResponse struct {
	Body struct {
		Kind       string    `json:"kind" doc:"Reference frame kind"`
		CapturedAt time.Time `json:"captured_at" doc:"When the frame was captured"`
	}
}
