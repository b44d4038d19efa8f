package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magicallyoffline/DesertSignals/pkg/models"
)

func filled(width, height int, ceiling, v float64) *Frame {
	f := New(width, height, ceiling)
	for i := range f.Pix {
		f.Pix[i] = v
	}
	return f
}

func TestCorrectNormalizes(t *testing.T) {
	raw := filled(4, 2, 255, 60)
	dark := filled(4, 2, 255, 10)
	white := filled(4, 2, 255, 110)

	out, err := Correct(raw, dark, white, CorrectorOptions{Epsilon: 1, ReferenceGain: 255})
	require.NoError(t, err)

	// (60-10)/(110-10) * 255 = 127.5 everywhere.
	for y := 0; y < 2; y++ {
		for x := 0; x < 4; x++ {
			assert.InDelta(t, 127.5, out.At(x, y), 1e-9)
		}
	}
	for _, flag := range out.ColumnFlags {
		assert.Equal(t, models.SampleFlag(0), flag)
	}
}

func TestCorrectClampsNegativeToZero(t *testing.T) {
	raw := filled(3, 1, 255, 5)
	dark := filled(3, 1, 255, 10)
	white := filled(3, 1, 255, 110)

	out, err := Correct(raw, dark, white, CorrectorOptions{Epsilon: 1, ReferenceGain: 255})
	require.NoError(t, err)

	for x := 0; x < 3; x++ {
		assert.Equal(t, 0.0, out.At(x, 0))
	}
}

func TestCorrectFlagsSaturatedColumn(t *testing.T) {
	raw := filled(4, 2, 255, 60)
	raw.Set(2, 1, 255)
	dark := filled(4, 2, 255, 0)
	white := filled(4, 2, 255, 100)

	out, err := Correct(raw, dark, white, CorrectorOptions{Epsilon: 1, ReferenceGain: 255})
	require.NoError(t, err)

	assert.True(t, out.ColumnFlags[2].Has(models.FlagSaturated))
	for _, x := range []int{0, 1, 3} {
		assert.False(t, out.ColumnFlags[x].Has(models.FlagSaturated), "column %d", x)
	}
}

func TestCorrectInterpolatesDeadPixels(t *testing.T) {
	raw := filled(3, 1, 255, 0)
	raw.Set(0, 0, 20)
	raw.Set(1, 0, 200)
	raw.Set(2, 0, 40)
	dark := filled(3, 1, 255, 10)
	white := filled(3, 1, 255, 110)
	// Column 1 is dead in the white frame.
	white.Set(1, 0, 10)

	out, err := Correct(raw, dark, white, CorrectorOptions{Epsilon: 1, ReferenceGain: 255})
	require.NoError(t, err)

	assert.True(t, out.ColumnFlags[1].Has(models.FlagDeadPixel))
	assert.False(t, out.ColumnFlags[0].Has(models.FlagDeadPixel))

	// Neighbors normalize to 25.5 and 76.5; the dead pixel is their midpoint,
	// not the garbage its own raw value would produce.
	assert.InDelta(t, 25.5, out.At(0, 0), 1e-9)
	assert.InDelta(t, 76.5, out.At(2, 0), 1e-9)
	assert.InDelta(t, 51.0, out.At(1, 0), 1e-9)
}

func TestCorrectDeadEdgeColumnCopiesNeighbor(t *testing.T) {
	raw := filled(3, 1, 255, 50)
	dark := filled(3, 1, 255, 0)
	white := filled(3, 1, 255, 100)
	white.Set(0, 0, 0)

	out, err := Correct(raw, dark, white, CorrectorOptions{Epsilon: 1, ReferenceGain: 255})
	require.NoError(t, err)

	assert.True(t, out.ColumnFlags[0].Has(models.FlagDeadPixel))
	assert.InDelta(t, out.At(1, 0), out.At(0, 0), 1e-9)
}

func TestCorrectShapeMismatch(t *testing.T) {
	raw := New(4, 2, 255)
	dark := New(4, 3, 255)
	white := New(4, 2, 255)

	_, err := Correct(raw, dark, white, CorrectorOptions{})
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestCorrectFlagsIdempotent(t *testing.T) {
	// With dark=0 and white=ceiling the correction is the identity, so
	// feeding the output back in as a raw frame must reproduce the flags.
	raw := filled(5, 2, 255, 60)
	raw.Set(4, 0, 255)
	raw.Set(4, 1, 255)
	dark := filled(5, 2, 255, 0)
	white := filled(5, 2, 255, 255)
	opts := CorrectorOptions{Epsilon: 1, ReferenceGain: 255}

	first, err := Correct(raw, dark, white, opts)
	require.NoError(t, err)

	again := &Frame{Width: 5, Height: 2, Ceiling: 255, Pix: append([]float64(nil), first.Pix...)}
	second, err := Correct(again, dark, white, opts)
	require.NoError(t, err)

	assert.Equal(t, first.ColumnFlags, second.ColumnFlags)
}

func TestCorrectDefaultsApplied(t *testing.T) {
	raw := filled(2, 1, 255, 128)
	dark := filled(2, 1, 255, 0)
	white := filled(2, 1, 255, 255)

	out, err := Correct(raw, dark, white, CorrectorOptions{})
	require.NoError(t, err)
	assert.InDelta(t, 128, out.At(0, 0), 1e-9)
}
