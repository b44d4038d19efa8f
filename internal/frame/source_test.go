package frame

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	f := New(8, 4, 255)
	for y := 0; y < 4; y++ {
		for x := 0; x < 8; x++ {
			f.Set(x, y, float64(x*30+y))
		}
	}

	var buf bytes.Buffer
	require.NoError(t, EncodePNG(&buf, f))

	got, err := Decode(&buf, 255)
	require.NoError(t, err)

	require.Equal(t, f.Width, got.Width)
	require.Equal(t, f.Height, got.Height)
	for i := range f.Pix {
		// 16-bit quantization over a 255 ceiling costs at most ~0.002.
		assert.InDelta(t, f.Pix[i], got.Pix[i], 0.01)
	}
}

func TestEncodeClampsOutOfRange(t *testing.T) {
	f := New(2, 1, 255)
	f.Set(0, 0, -10)
	f.Set(1, 0, 300)

	var buf bytes.Buffer
	require.NoError(t, EncodePNG(&buf, f))

	got, err := Decode(&buf, 255)
	require.NoError(t, err)
	assert.Equal(t, 0.0, got.At(0, 0))
	assert.InDelta(t, 255, got.At(1, 0), 1e-9)
}

func TestWriteReadFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "refs", "dark.png")
	f := New(4, 2, 255)
	f.Set(2, 1, 100)

	require.NoError(t, WriteFile(path, f))

	got, err := ReadFile(path, 255)
	require.NoError(t, err)
	assert.InDelta(t, 100, got.At(2, 1), 0.01)
	assert.InDelta(t, 0, got.At(0, 0), 0.01)
}

func TestFileSourceReplaysSortedAndWraps(t *testing.T) {
	dir := t.TempDir()

	a := New(2, 1, 255)
	a.Set(0, 0, 10)
	b := New(2, 1, 255)
	b.Set(0, 0, 200)
	// Written out of order; replay must be name-sorted.
	require.NoError(t, WriteFile(filepath.Join(dir, "frame_02.png"), b))
	require.NoError(t, WriteFile(filepath.Join(dir, "frame_01.png"), a))

	src, err := NewFileSource(dir, 255)
	require.NoError(t, err)

	ctx := context.Background()
	for _, want := range []float64{10, 200, 10} {
		f, err := src.Acquire(ctx)
		require.NoError(t, err)
		assert.InDelta(t, want, f.At(0, 0), 0.01)
	}
}

func TestFileSourceEmptyDir(t *testing.T) {
	_, err := NewFileSource(t.TempDir(), 255)
	assert.Error(t, err)
}

func TestFileSourceHonorsCancelledContext(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteFile(filepath.Join(dir, "frame.png"), New(2, 1, 255)))

	src, err := NewFileSource(dir, 255)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = src.Acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
