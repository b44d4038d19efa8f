package api

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/magicallyoffline/DesertSignals/internal/api/handlers"
	"github.com/magicallyoffline/DesertSignals/internal/calibration"
)

// RegisterRoutes sets up the device control API routes
func RegisterRoutes(api huma.API, p handlers.PipelineControl, store calibration.Store, dataDir string, defaultDegree, domainWidth int) {
	deviceHandler := handlers.NewDeviceHandler(p, store, dataDir, defaultDegree, domainWidth)

	huma.Register(api, huma.Operation{
		OperationID: "getCalibration",
		Method:      http.MethodGet,
		Path:        "/api/calibration",
		Summary:     "Get current calibration",
		Description: "Returns the wavelength calibration currently in effect",
		Tags:        []string{"Calibration"},
	}, deviceHandler.GetCalibration)

	huma.Register(api, huma.Operation{
		OperationID: "calibrate",
		Method:      http.MethodPost,
		Path:        "/api/calibration",
		Summary:     "Refit calibration",
		Description: "Fits a new wavelength calibration from reference points and installs it",
		Tags:        []string{"Calibration"},
	}, deviceHandler.Calibrate)

	huma.Register(api, huma.Operation{
		OperationID: "calibrateLamp",
		Method:      http.MethodPost,
		Path:        "/api/calibration/lamp",
		Summary:     "Calibrate from reference lamp",
		Description: "Captures a reference lamp frame, matches detected peaks against known lines and fits",
		Tags:        []string{"Calibration"},
	}, deviceHandler.CalibrateLamp)

	huma.Register(api, huma.Operation{
		OperationID: "getLatestSpectrum",
		Method:      http.MethodGet,
		Path:        "/api/spectrum/latest",
		Summary:     "Get latest spectrum",
		Description: "Returns the most recently assembled data packet",
		Tags:        []string{"Spectrum"},
	}, deviceHandler.GetLatestSpectrum)

	huma.Register(api, huma.Operation{
		OperationID: "captureReference",
		Method:      http.MethodPost,
		Path:        "/api/reference-frames",
		Summary:     "Capture reference frame",
		Description: "Captures a dark or white reference frame and installs it in the active session",
		Tags:        []string{"Calibration"},
	}, deviceHandler.CaptureReference)
}
