// Package pipeline runs the per-cycle transform: acquire frame, correct,
// extract, detect peaks, assemble packet, hand off for transmission.
// Acquisition and processing are decoupled by a small bounded queue with a
// drop-oldest policy, so slow peak detection never blocks frame capture.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/magicallyoffline/DesertSignals/internal/calibration"
	"github.com/magicallyoffline/DesertSignals/internal/frame"
	"github.com/magicallyoffline/DesertSignals/internal/packet"
	"github.com/magicallyoffline/DesertSignals/internal/spectrum"
	"github.com/magicallyoffline/DesertSignals/pkg/models"
)

// Sink receives assembled packets. Enqueue must not block the caller.
type Sink interface {
	Enqueue(pkt *models.DataPacket)
}

// GeoSource supplies an optional GPS fix per cycle. A nil fix with nil error
// means no lock; the packet simply carries no position.
type GeoSource interface {
	Fix(ctx context.Context) (*models.GeoFix, error)
}

// SensorSource supplies optional pollutant readings per cycle.
type SensorSource interface {
	Readings(ctx context.Context) (models.SensorReadings, error)
}

// SnapshotArchive stores per-cycle raw frame captures for later validation.
type SnapshotArchive interface {
	StoreSnapshot(ctx context.Context, pngData []byte, ts time.Time) error
}

// Deps are the pipeline's collaborators. Source and Sink are required; the
// rest are optional.
type Deps struct {
	Source    frame.Source
	Sink      Sink
	Geo       GeoSource
	Sensors   SensorSource
	Snapshots SnapshotArchive
}

// Options tune the processing loop.
type Options struct {
	Band      spectrum.RowBand
	Extractor spectrum.ExtractorOptions
	Peaks     spectrum.PeakParams
	Corrector frame.CorrectorOptions
	// Period is the acquisition interval.
	Period time.Duration
	// QueueCapacity bounds the frame queue between acquisition and
	// processing. Overflow drops the oldest queued frame.
	QueueCapacity int
}

// Pipeline owns the acquire/process loop and the active session.
type Pipeline struct {
	deps      Deps
	opts      Options
	session   atomic.Pointer[Session]
	assembler *packet.Assembler
	latest    atomic.Pointer[models.DataPacket]
	dropped   atomic.Uint64
}

// New builds a pipeline with an initial session. The session may be
// incomplete (no calibration yet); cycles are skipped until it is completed
// through SetModel / CaptureReference.
func New(deps Deps, session *Session, opts Options) *Pipeline {
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = 4
	}
	if opts.Period <= 0 {
		opts.Period = 15 * time.Second
	}
	p := &Pipeline{
		deps:      deps,
		opts:      opts,
		assembler: packet.NewAssembler(),
	}
	if session == nil {
		session = &Session{}
	}
	p.session.Store(session)
	return p
}

// Session returns the session currently in effect.
func (p *Pipeline) Session() *Session { return p.session.Load() }

// SetModel atomically installs a new calibration model. In-flight cycles
// keep the session they started with.
func (p *Pipeline) SetModel(m *calibration.Model) {
	for {
		cur := p.session.Load()
		if p.session.CompareAndSwap(cur, cur.withModel(m)) {
			return
		}
	}
}

// Latest returns the most recently assembled packet, or nil before the
// first complete cycle.
func (p *Pipeline) Latest() *models.DataPacket { return p.latest.Load() }

// DroppedFrames returns how many frames were discarded by the drop-oldest
// queue policy.
func (p *Pipeline) DroppedFrames() uint64 { return p.dropped.Load() }

// Run drives acquisition and processing until ctx is cancelled. The
// in-flight cycle completes before Run returns.
func (p *Pipeline) Run(ctx context.Context) error {
	frames := make(chan *frame.Frame, p.opts.QueueCapacity)

	go p.acquireLoop(ctx, frames)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f := <-frames:
			p.Cycle(ctx, f)
		}
	}
}

// acquireLoop reads the frame source on the configured period and pushes
// into the bounded queue, dropping the oldest queued frame on overflow.
func (p *Pipeline) acquireLoop(ctx context.Context, frames chan *frame.Frame) {
	ticker := time.NewTicker(p.opts.Period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		f, err := p.deps.Source.Acquire(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Warn().Err(err).Msg("Frame acquisition failed")
			continue
		}
		p.push(frames, f)
	}
}

// push enqueues a frame, evicting the oldest queued frame when full.
// Processing may race us for the front of the queue, so after evicting we
// retry the send once and at worst drop the new frame instead of blocking.
func (p *Pipeline) push(frames chan *frame.Frame, f *frame.Frame) {
	for i := 0; i < 2; i++ {
		select {
		case frames <- f:
			return
		default:
		}
		select {
		case <-frames:
			p.dropped.Add(1)
			log.Warn().Msg("Frame queue full, dropped oldest frame")
		default:
		}
	}
	p.dropped.Add(1)
	log.Warn().Msg("Frame queue still full, dropping new frame")
}

// Cycle processes a single raw frame end to end. Exported so tests and the
// lamp calibration path can drive the transform synchronously.
func (p *Pipeline) Cycle(ctx context.Context, raw *frame.Frame) {
	sess := p.session.Load()
	if !sess.Complete() {
		log.Debug().Msg("Skipping cycle: session incomplete")
		return
	}
	start := time.Now()

	corrected, err := frame.Correct(raw, sess.Dark, sess.White, p.opts.Corrector)
	if err != nil {
		log.Error().Err(err).Msg("Frame correction failed")
		return
	}

	profile, err := spectrum.Extract(corrected, p.opts.Band, p.opts.Extractor)
	if err != nil {
		log.Error().Err(err).Msg("Spectrum extraction failed")
		return
	}

	spec, err := spectrum.Calibrate(profile, sess.Model, sess.Response)
	if err != nil {
		log.Error().Err(err).Msg("Spectrum calibration failed")
		return
	}
	spectrum.Normalize(spec)

	peaks := spectrum.DetectPeaks(spec, p.opts.Peaks)

	var geo *models.GeoFix
	if p.deps.Geo != nil {
		geo, err = p.deps.Geo.Fix(ctx)
		if err != nil {
			log.Debug().Err(err).Msg("No GPS fix this cycle")
			geo = nil
		}
	}
	var sensors models.SensorReadings
	if p.deps.Sensors != nil {
		sensors, err = p.deps.Sensors.Readings(ctx)
		if err != nil {
			log.Debug().Err(err).Msg("No sensor readings this cycle")
			sensors = nil
		}
	}

	pkt, err := p.assembler.Assemble(spec, peaks, sensors, geo, time.Now())
	if err != nil {
		// Clock regression drops the packet and the loop continues; a wrong
		// timestamp must never be shipped as a plausible-looking one.
		log.Error().Err(err).Msg("Packet assembly failed, dropping cycle")
		return
	}

	p.latest.Store(pkt)
	p.deps.Sink.Enqueue(pkt)
	p.archiveSnapshot(ctx, raw, pkt)

	log.Info().
		Int("samples", pkt.Len()).
		Int("peaks", len(pkt.Peaks)).
		Bool("saturated", pkt.Saturated).
		Dur("elapsed", time.Since(start)).
		Msg("Cycle complete")
}

func (p *Pipeline) archiveSnapshot(ctx context.Context, raw *frame.Frame, pkt *models.DataPacket) {
	if p.deps.Snapshots == nil {
		return
	}
	var buf bytes.Buffer
	if err := frame.EncodePNG(&buf, raw); err != nil {
		log.Warn().Err(err).Msg("Snapshot encode failed")
		return
	}
	ts, _ := pkt.Time()
	if err := p.deps.Snapshots.StoreSnapshot(ctx, buf.Bytes(), ts); err != nil {
		log.Warn().Err(err).Msg("Snapshot archive failed")
	}
}

// CaptureReference acquires one frame and installs it as the dark or white
// reference in a fresh session copy.
func (p *Pipeline) CaptureReference(ctx context.Context, kind string) (*frame.Frame, error) {
	f, err := p.deps.Source.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	for {
		cur := p.session.Load()
		var next *Session
		switch kind {
		case "dark":
			next = cur.withDark(f)
		case "white":
			next = cur.withWhite(f)
		default:
			return nil, errors.New("pipeline: reference kind must be dark or white")
		}
		if p.session.CompareAndSwap(cur, next) {
			return f, nil
		}
	}
}

// CalibrateFromLamp captures a frame of a reference lamp, finds its peaks in
// pixel space and fits a calibration from the known line wavelengths. The
// fitted model is installed on success; a failed fit leaves the prior
// calibration in effect.
func (p *Pipeline) CalibrateFromLamp(ctx context.Context, knownLinesNm []float64, degree int) (*calibration.Model, []models.ReferencePoint, error) {
	sess := p.session.Load()
	if sess.Dark == nil || sess.White == nil {
		return nil, nil, ErrSessionIncomplete
	}
	raw, err := p.deps.Source.Acquire(ctx)
	if err != nil {
		return nil, nil, err
	}
	corrected, err := frame.Correct(raw, sess.Dark, sess.White, p.opts.Corrector)
	if err != nil {
		return nil, nil, err
	}
	profile, err := spectrum.Extract(corrected, p.opts.Band, p.opts.Extractor)
	if err != nil {
		return nil, nil, err
	}

	// Peak detection in pixel space: the axis is the column index itself,
	// separation threshold in pixels.
	pixelAxis := make([]float64, len(profile.Intensity))
	for i := range pixelAxis {
		pixelAxis[i] = float64(i)
	}
	max := 0.0
	for _, v := range profile.Intensity {
		if v > max {
			max = v
		}
	}
	peaks := spectrum.DetectPeaks(
		models.Spectrum{WavelengthNm: pixelAxis, Intensity: profile.Intensity},
		spectrum.PeakParams{MinProminence: 0.1 * max, MinSeparationNm: 5},
	)
	if len(knownLinesNm) == 0 {
		knownLinesNm = calibration.MercuryLines
	}
	pixels := make([]float64, len(peaks))
	for i, pk := range peaks {
		pixels[i] = pk.WavelengthNm
	}

	model, points, err := calibration.FitFromLamp(pixels, knownLinesNm, degree, raw.Width)
	if err != nil {
		return nil, nil, err
	}
	p.SetModel(model)
	return model, points, nil
}
