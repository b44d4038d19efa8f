package handlers

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/rs/zerolog/log"

	"github.com/magicallyoffline/DesertSignals/internal/calibration"
	"github.com/magicallyoffline/DesertSignals/internal/frame"
	"github.com/magicallyoffline/DesertSignals/internal/pipeline"
	"github.com/magicallyoffline/DesertSignals/pkg/models"
)

// PipelineControl is the slice of the pipeline the control API needs.
type PipelineControl interface {
	Latest() *models.DataPacket
	SetModel(m *calibration.Model)
	CaptureReference(ctx context.Context, kind string) (*frame.Frame, error)
	CalibrateFromLamp(ctx context.Context, knownLinesNm []float64, degree int) (*calibration.Model, []models.ReferencePoint, error)
}

// DeviceHandler handles the device control HTTP requests
type DeviceHandler struct {
	pipeline      PipelineControl
	store         calibration.Store
	dataDir       string
	defaultDegree int
	domainWidth   int
}

// NewDeviceHandler creates a new device handler
func NewDeviceHandler(p PipelineControl, store calibration.Store, dataDir string, defaultDegree, domainWidth int) *DeviceHandler {
	return &DeviceHandler{
		pipeline:      p,
		store:         store,
		dataDir:       dataDir,
		defaultDegree: defaultDegree,
		domainWidth:   domainWidth,
	}
}

// GetCalibration returns the calibration currently in effect
func (h *DeviceHandler) GetCalibration(ctx context.Context, _ *struct{}) (*models.GetCalibrationResponse, error) {
	rec, err := h.store.Load()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, huma.Error404NotFound("No calibration stored yet", err)
		}
		return nil, huma.Error500InternalServerError("Failed to load calibration", err)
	}
	return &models.GetCalibrationResponse{Body: recordBody(rec)}, nil
}

// Calibrate refits the wavelength calibration from reference points. A
// rejected fit leaves the prior calibration in effect.
func (h *DeviceHandler) Calibrate(ctx context.Context, req *models.CalibrateRequest) (*models.CalibrateResponse, error) {
	degree := req.Body.Degree
	if degree == 0 {
		degree = h.defaultDegree
	}
	log.Info().Int("points", len(req.Body.ReferencePoints)).Int("degree", degree).Msg("Recalibration requested")

	model, err := calibration.Fit(req.Body.ReferencePoints, degree, h.domainWidth)
	if err != nil {
		switch {
		case errors.Is(err, calibration.ErrInsufficientData):
			return nil, huma.Error422UnprocessableEntity("Not enough distinct reference points for the requested degree", err)
		case errors.Is(err, calibration.ErrNonMonotonicFit):
			return nil, huma.Error422UnprocessableEntity("Fit rejected: wavelength mapping must increase across the sensor", err)
		default:
			return nil, huma.Error400BadRequest("Calibration fit failed", err)
		}
	}

	rec := calibration.NewRecord(model, req.Body.ReferencePoints)
	if err := h.store.Save(rec); err != nil {
		return nil, huma.Error500InternalServerError("Failed to persist calibration", err)
	}
	h.pipeline.SetModel(model)
	log.Info().Floats64("coefficients", rec.Coefficients).Msg("Calibration installed")

	return &models.CalibrateResponse{Body: recordBody(rec)}, nil
}

// CalibrateLamp runs the reference-lamp calibration routine
func (h *DeviceHandler) CalibrateLamp(ctx context.Context, req *models.LampCalibrateRequest) (*models.LampCalibrateResponse, error) {
	degree := req.Body.Degree
	if degree == 0 {
		degree = h.defaultDegree
	}

	model, points, err := h.pipeline.CalibrateFromLamp(ctx, req.Body.KnownLinesNm, degree)
	if err != nil {
		switch {
		case errors.Is(err, pipeline.ErrSessionIncomplete):
			return nil, huma.Error409Conflict("Capture dark and white reference frames before lamp calibration", err)
		case errors.Is(err, calibration.ErrInsufficientData):
			return nil, huma.Error422UnprocessableEntity("Too few lamp peaks detected for the requested degree", err)
		case errors.Is(err, calibration.ErrNonMonotonicFit):
			return nil, huma.Error422UnprocessableEntity("Fit rejected: wavelength mapping must increase across the sensor", err)
		default:
			return nil, huma.Error500InternalServerError("Lamp calibration failed", err)
		}
	}

	rec := calibration.NewRecord(model, points)
	if err := h.store.Save(rec); err != nil {
		return nil, huma.Error500InternalServerError("Failed to persist calibration", err)
	}
	log.Info().Int("points", len(points)).Msg("Lamp calibration installed")

	return &models.LampCalibrateResponse{Body: recordBody(rec)}, nil
}

// GetLatestSpectrum returns the most recently assembled packet
func (h *DeviceHandler) GetLatestSpectrum(ctx context.Context, _ *struct{}) (*models.GetLatestSpectrumResponse, error) {
	pkt := h.pipeline.Latest()
	if pkt == nil {
		return nil, huma.Error404NotFound("No spectrum assembled yet", nil)
	}
	return &models.GetLatestSpectrumResponse{Body: pkt}, nil
}

// CaptureReference captures a dark or white reference frame and persists it
func (h *DeviceHandler) CaptureReference(ctx context.Context, req *models.CaptureReferenceRequest) (*models.CaptureReferenceResponse, error) {
	kind := req.Body.Kind
	if kind != "dark" && kind != "white" {
		return nil, huma.Error400BadRequest("Reference kind must be dark or white", nil)
	}

	f, err := h.pipeline.CaptureReference(ctx, kind)
	if err != nil {
		return nil, huma.Error500InternalServerError("Reference capture failed", err)
	}
	if err := frame.WriteFile(filepath.Join(h.dataDir, kind+".png"), f); err != nil {
		return nil, huma.Error500InternalServerError("Failed to persist reference frame", err)
	}
	log.Info().Str("kind", kind).Msg("Reference frame captured")

	resp := &models.CaptureReferenceResponse{}
	resp.Body.Kind = kind
	resp.Body.CapturedAt = time.Now().UTC()
	return resp, nil
}

func recordBody(rec *calibration.Record) models.CalibrationRecordBody {
	return models.CalibrationRecordBody{
		Coefficients:    rec.Coefficients,
		Degree:          rec.Degree,
		DomainWidth:     rec.DomainWidth,
		ReferencePoints: rec.ReferencePoints,
		FittedAt:        rec.FittedAt,
	}
}
