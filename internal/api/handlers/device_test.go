package handlers

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magicallyoffline/DesertSignals/internal/calibration"
	"github.com/magicallyoffline/DesertSignals/internal/frame"
	"github.com/magicallyoffline/DesertSignals/internal/pipeline"
	"github.com/magicallyoffline/DesertSignals/pkg/models"
)

// MockPipeline implements PipelineControl for testing
type MockPipeline struct {
	mock.Mock
}

func (m *MockPipeline) Latest() *models.DataPacket {
	args := m.Called()
	if v := args.Get(0); v != nil {
		return v.(*models.DataPacket)
	}
	return nil
}

func (m *MockPipeline) SetModel(model *calibration.Model) {
	m.Called(model)
}

func (m *MockPipeline) CaptureReference(ctx context.Context, kind string) (*frame.Frame, error) {
	args := m.Called(ctx, kind)
	if v := args.Get(0); v != nil {
		return v.(*frame.Frame), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockPipeline) CalibrateFromLamp(ctx context.Context, knownLinesNm []float64, degree int) (*calibration.Model, []models.ReferencePoint, error) {
	args := m.Called(ctx, knownLinesNm, degree)
	if v := args.Get(0); v != nil {
		return v.(*calibration.Model), args.Get(1).([]models.ReferencePoint), args.Error(2)
	}
	return nil, nil, args.Error(2)
}

func newTestHandler(t *testing.T, p PipelineControl) (*DeviceHandler, calibration.Store, string) {
	t.Helper()
	dataDir := t.TempDir()
	store := calibration.NewFileStore(filepath.Join(dataDir, "calibration.json"))
	return NewDeviceHandler(p, store, dataDir, 3, 640), store, dataDir
}

func statusOf(t *testing.T, err error) int {
	t.Helper()
	var se huma.StatusError
	require.ErrorAs(t, err, &se)
	return se.GetStatus()
}

func TestGetCalibrationNotFound(t *testing.T) {
	h, _, _ := newTestHandler(t, &MockPipeline{})

	_, err := h.GetCalibration(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, 404, statusOf(t, err))
}

func TestCalibrateFitsPersistsAndInstalls(t *testing.T) {
	mockPipeline := &MockPipeline{}
	mockPipeline.On("SetModel", mock.Anything).Return()
	h, store, _ := newTestHandler(t, mockPipeline)

	req := &models.CalibrateRequest{}
	req.Body.ReferencePoints = []models.ReferencePoint{
		{PixelIndex: 0, WavelengthNm: 400},
		{PixelIndex: 100, WavelengthNm: 500},
		{PixelIndex: 200, WavelengthNm: 620},
		{PixelIndex: 300, WavelengthNm: 760},
	}

	resp, err := h.Calibrate(context.Background(), req)
	require.NoError(t, err)

	// Degree 0 falls back to the configured default of 3.
	assert.Equal(t, 3, resp.Body.Degree)
	assert.Len(t, resp.Body.Coefficients, 4)
	mockPipeline.AssertCalled(t, "SetModel", mock.Anything)

	// The fitted calibration is persisted and survives a reload.
	rec, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, resp.Body.Coefficients, rec.Coefficients)

	// A subsequent GET returns what was just installed.
	got, err := h.GetCalibration(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, resp.Body.Coefficients, got.Body.Coefficients)
}

func TestCalibrateRejectsInsufficientPoints(t *testing.T) {
	mockPipeline := &MockPipeline{}
	h, _, _ := newTestHandler(t, mockPipeline)

	req := &models.CalibrateRequest{}
	req.Body.ReferencePoints = []models.ReferencePoint{
		{PixelIndex: 0, WavelengthNm: 400},
		{PixelIndex: 100, WavelengthNm: 500},
	}

	_, err := h.Calibrate(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, 422, statusOf(t, err))
	mockPipeline.AssertNotCalled(t, "SetModel", mock.Anything)
}

func TestCalibrateRejectsNonMonotonicFit(t *testing.T) {
	mockPipeline := &MockPipeline{}
	h, _, _ := newTestHandler(t, mockPipeline)

	req := &models.CalibrateRequest{}
	req.Body.Degree = 1
	req.Body.ReferencePoints = []models.ReferencePoint{
		{PixelIndex: 0, WavelengthNm: 700},
		{PixelIndex: 100, WavelengthNm: 600},
		{PixelIndex: 200, WavelengthNm: 500},
	}

	_, err := h.Calibrate(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, 422, statusOf(t, err))
	mockPipeline.AssertNotCalled(t, "SetModel", mock.Anything)
}

func TestCalibrateLampSessionIncomplete(t *testing.T) {
	mockPipeline := &MockPipeline{}
	mockPipeline.On("CalibrateFromLamp", mock.Anything, mock.Anything, 3).
		Return(nil, nil, pipeline.ErrSessionIncomplete)
	h, _, _ := newTestHandler(t, mockPipeline)

	_, err := h.CalibrateLamp(context.Background(), &models.LampCalibrateRequest{})
	require.Error(t, err)
	assert.Equal(t, 409, statusOf(t, err))
}

func TestCalibrateLampPersistsFit(t *testing.T) {
	model, err := calibration.New([]float64{400, 0.6}, 640)
	require.NoError(t, err)
	points := []models.ReferencePoint{
		{PixelIndex: 100, WavelengthNm: 460},
		{PixelIndex: 300, WavelengthNm: 580},
	}

	mockPipeline := &MockPipeline{}
	mockPipeline.On("CalibrateFromLamp", mock.Anything, mock.Anything, 3).
		Return(model, points, nil)
	h, store, _ := newTestHandler(t, mockPipeline)

	resp, err := h.CalibrateLamp(context.Background(), &models.LampCalibrateRequest{})
	require.NoError(t, err)
	assert.Equal(t, points, resp.Body.ReferencePoints)

	rec, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, []float64{400, 0.6}, rec.Coefficients)
}

func TestGetLatestSpectrum(t *testing.T) {
	pkt := &models.DataPacket{ID: "pkt-1"}
	mockPipeline := &MockPipeline{}
	mockPipeline.On("Latest").Return(pkt)
	h, _, _ := newTestHandler(t, mockPipeline)

	resp, err := h.GetLatestSpectrum(context.Background(), nil)
	require.NoError(t, err)
	assert.Same(t, pkt, resp.Body)
}

func TestGetLatestSpectrumBeforeFirstCycle(t *testing.T) {
	mockPipeline := &MockPipeline{}
	mockPipeline.On("Latest").Return(nil)
	h, _, _ := newTestHandler(t, mockPipeline)

	_, err := h.GetLatestSpectrum(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, 404, statusOf(t, err))
}

func TestCaptureReferencePersistsFrame(t *testing.T) {
	f := frame.New(4, 2, 255)
	f.Set(1, 1, 100)
	mockPipeline := &MockPipeline{}
	mockPipeline.On("CaptureReference", mock.Anything, "dark").Return(f, nil)
	h, _, dataDir := newTestHandler(t, mockPipeline)

	req := &models.CaptureReferenceRequest{}
	req.Body.Kind = "dark"

	resp, err := h.CaptureReference(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "dark", resp.Body.Kind)

	_, err = os.Stat(filepath.Join(dataDir, "dark.png"))
	assert.NoError(t, err)
}

func TestCaptureReferenceRejectsUnknownKind(t *testing.T) {
	mockPipeline := &MockPipeline{}
	h, _, _ := newTestHandler(t, mockPipeline)

	req := &models.CaptureReferenceRequest{}
	req.Body.Kind = "gray"

	_, err := h.CaptureReference(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, 400, statusOf(t, err))
	mockPipeline.AssertNotCalled(t, "CaptureReference", mock.Anything, mock.Anything)
}
