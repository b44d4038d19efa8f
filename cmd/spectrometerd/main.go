package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/magicallyoffline/DesertSignals/internal/api"
	"github.com/magicallyoffline/DesertSignals/internal/calibration"
	"github.com/magicallyoffline/DesertSignals/internal/config"
	"github.com/magicallyoffline/DesertSignals/internal/frame"
	"github.com/magicallyoffline/DesertSignals/internal/pipeline"
	"github.com/magicallyoffline/DesertSignals/internal/spectrum"
	"github.com/magicallyoffline/DesertSignals/internal/storage"
	"github.com/magicallyoffline/DesertSignals/internal/transmit"
	"github.com/magicallyoffline/DesertSignals/pkg/models"
)

func main() {
	// Configure zerolog for structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	source, err := frame.NewFileSource(cfg.Acquire.FrameDir, cfg.Acquire.Ceiling)
	if err != nil {
		log.Fatal().Err(err).Str("dir", cfg.Acquire.FrameDir).Msg("Failed to open frame source")
	}

	store := calibration.NewFileStore(filepath.Join(cfg.Data.Dir, "calibration.json"))
	session := buildSession(cfg, store)

	transmitter := transmit.New(cfg.Ingest.URL, transmit.Options{
		QueueCapacity: cfg.Ingest.QueueCapacity,
		SpoolCapacity: cfg.Ingest.SpoolCapacity,
		MaxElapsed:    cfg.Ingest.MaxElapsed,
	})

	deps := pipeline.Deps{
		Source: source,
		Sink:   transmitter,
	}
	if cfg.S3.Bucket != "" {
		snapshots, err := storage.NewSnapshotService(storage.S3Config{
			Bucket:    cfg.S3.Bucket,
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			KeyPrefix: cfg.S3.KeyPrefix,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize snapshot archive")
		}
		deps.Snapshots = snapshots
		log.Info().Str("bucket", cfg.S3.Bucket).Msg("Snapshot archive enabled")
	}

	pl := pipeline.New(deps, session, pipeline.Options{
		Band: spectrum.RowBand{Top: cfg.Processing.BandTop, Bottom: cfg.Processing.BandBottom},
		Extractor: spectrum.ExtractorOptions{
			Aggregation:    spectrum.Aggregation(cfg.Processing.Aggregation),
			SmoothingSigma: cfg.Processing.SmoothingSigma,
		},
		Peaks: spectrum.PeakParams{
			MinProminence:   cfg.Processing.MinProminence,
			MinSeparationNm: cfg.Processing.MinSeparationNm,
		},
		Corrector: frame.CorrectorOptions{
			Epsilon:       cfg.Processing.Epsilon,
			ReferenceGain: cfg.Processing.ReferenceGain,
		},
		Period:        cfg.Acquire.Period,
		QueueCapacity: cfg.Acquire.QueueCapacity,
	})

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := pl.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Pipeline stopped")
		}
	}()
	go func() {
		if err := transmitter.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Transmitter stopped")
		}
	}()

	// Create Chi router
	router := chi.NewRouter()

	// Middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(zerologLogger())
	router.Use(middleware.Recoverer)
	router.Use(middleware.Compress(5))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	// Create Huma API
	humaConfig := huma.DefaultConfig("Desert Signals Spectrometer", "1.0.0")
	humaConfig.DocsPath = "/api/docs"
	humaAPI := humachi.New(router, humaConfig)

	// Register health endpoint
	huma.Register(humaAPI, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns the health status of the device",
	}, func(ctx context.Context, input *struct{}) (*models.HealthResponse, error) {
		resp := &models.HealthResponse{}
		resp.Body.Status = "healthy"
		resp.Body.Version = "1.0.0"
		resp.Body.Time = time.Now()
		return resp, nil
	})

	api.RegisterRoutes(humaAPI, pl, store, cfg.Data.Dir, cfg.Processing.PolyDegree, cfg.Acquire.Width)

	// Start server
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("Starting spectrometer control API")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down...")
	cancel()

	ctx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Uint64("droppedFrames", pl.DroppedFrames()).Msg("Spectrometer exited")
}

// buildSession assembles the initial processing session from persisted state.
// Missing pieces leave the session incomplete; cycles are skipped until the
// operator captures references and calibrates through the API.
func buildSession(cfg *config.Config, store *calibration.FileStore) *pipeline.Session {
	session := &pipeline.Session{}

	rec, err := store.Load()
	switch {
	case err == nil:
		model, merr := rec.Model()
		if merr != nil {
			log.Warn().Err(merr).Msg("Stored calibration invalid, falling back to rough calibration")
			model = roughCalibration(cfg.Acquire.Width)
		}
		session.Model = model
	case errors.Is(err, os.ErrNotExist):
		log.Warn().Msg("No stored calibration, using rough two-point fallback; recalibrate before trusting wavelengths")
		session.Model = roughCalibration(cfg.Acquire.Width)
	default:
		log.Fatal().Err(err).Msg("Failed to load calibration store")
	}

	if dark, err := frame.ReadFile(filepath.Join(cfg.Data.Dir, "dark.png"), cfg.Acquire.Ceiling); err == nil {
		session.Dark = dark
	} else if !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("Failed to load dark reference frame")
	}
	if white, err := frame.ReadFile(filepath.Join(cfg.Data.Dir, "white.png"), cfg.Acquire.Ceiling); err == nil {
		session.White = white
	} else if !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("Failed to load white reference frame")
	}

	curve, err := spectrum.LoadResponseCurve(filepath.Join(cfg.Data.Dir, "spectral_response.json"))
	switch {
	case err == nil:
		session.Response = curve
		log.Info().Msg("Spectral response compensation enabled")
	case errors.Is(err, os.ErrNotExist):
		log.Info().Msg("No spectral response curve, compensation disabled")
	default:
		log.Warn().Err(err).Msg("Failed to load spectral response curve")
	}

	if !session.Complete() {
		log.Warn().Msg("Session incomplete: capture dark/white reference frames to start processing")
	}
	return session
}

// roughCalibration is the two-point fallback the reference device ships
// with: pixels 100 and 300 mapped to 430 and 550 nm.
func roughCalibration(width int) *calibration.Model {
	model, _, err := calibration.FitFromLamp([]float64{100, 300}, []float64{430, 550}, 1, width)
	if err != nil {
		log.Fatal().Err(err).Msg("Rough fallback calibration failed")
	}
	return model
}

// zerologLogger returns a Chi middleware that logs HTTP requests using zerolog
func zerologLogger() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				log.Info().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Str("remote_ip", r.RemoteAddr).
					Int("status", ww.Status()).
					Dur("latency", time.Since(start)).
					Str("user_agent", r.UserAgent()).
					Msg("HTTP request")
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
