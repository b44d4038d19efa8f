package pipeline

import (
	"errors"

	"github.com/magicallyoffline/DesertSignals/internal/calibration"
	"github.com/magicallyoffline/DesertSignals/internal/frame"
	"github.com/magicallyoffline/DesertSignals/internal/spectrum"
)

// ErrSessionIncomplete is returned when a cycle runs before the calibration
// model and both reference frames are in place.
var ErrSessionIncomplete = errors.New("pipeline: session is missing calibration or reference frames")

// Session is the read-only state a processing cycle depends on: the
// calibration model, the dark and white reference frames and the optional
// spectral response curve. Sessions are immutable; recalibration installs a
// fresh copy atomically, so an in-flight cycle keeps the set it started with
// and never mixes old and new state.
type Session struct {
	Model    *calibration.Model
	Dark     *frame.Frame
	White    *frame.Frame
	Response *spectrum.ResponseCurve
}

// Complete reports whether the session can process frames.
func (s *Session) Complete() bool {
	return s != nil && s.Model != nil && s.Dark != nil && s.White != nil
}

// withModel returns a copy of the session with a new calibration model.
func (s *Session) withModel(m *calibration.Model) *Session {
	next := *s
	next.Model = m
	return &next
}

// withDark returns a copy of the session with a new dark frame.
func (s *Session) withDark(f *frame.Frame) *Session {
	next := *s
	next.Dark = f
	return &next
}

// withWhite returns a copy of the session with a new white frame.
func (s *Session) withWhite(f *frame.Frame) *Session {
	next := *s
	next.White = f
	return &next
}
