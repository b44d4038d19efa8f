package frame

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "golang.org/x/image/tiff" // register TIFF decoding for 16-bit captures
)

// Source supplies raw frames. The camera driver behind it is an external
// collaborator; the pipeline only depends on this contract.
type Source interface {
	Acquire(ctx context.Context) (*Frame, error)
}

// FileSource replays captured frames from a directory of PNG or TIFF images,
// sorted by name. It wraps around at the end, which makes it usable both for
// bench replay and for soak testing the pipeline.
type FileSource struct {
	ceiling float64
	paths   []string
	next    int
}

// NewFileSource scans dir for .png/.tif/.tiff captures.
func NewFileSource(dir string, ceiling float64) (*FileSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("frame: scan %s: %w", dir, err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".png", ".tif", ".tiff":
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("frame: no captures in %s", dir)
	}
	sort.Strings(paths)
	return &FileSource{ceiling: ceiling, paths: paths}, nil
}

// Acquire decodes the next capture in sequence.
func (s *FileSource) Acquire(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := s.paths[s.next]
	s.next = (s.next + 1) % len(s.paths)

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	fr, err := Decode(f, s.ceiling)
	if err != nil {
		return nil, fmt.Errorf("frame: decode %s: %w", path, err)
	}
	return fr, nil
}

// Decode reads a PNG or TIFF image into a grayscale frame. Sample values are
// scaled so a fully lit pixel lands on the declared ceiling, which preserves
// saturation detection for both 8-bit and 16-bit captures.
func Decode(r io.Reader, ceiling float64) (*Frame, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, err
	}
	bounds := img.Bounds()
	fr := New(bounds.Dx(), bounds.Dy(), ceiling)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			g := color.Gray16Model.Convert(img.At(x, y)).(color.Gray16)
			fr.Set(x-bounds.Min.X, y-bounds.Min.Y, float64(g.Y)/65535.0*ceiling)
		}
	}
	return fr, nil
}

// EncodePNG writes a frame as a 16-bit grayscale PNG, inverse of Decode.
func EncodePNG(w io.Writer, f *Frame) error {
	if err := f.validate(); err != nil {
		return err
	}
	img := image.NewGray16(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			v := f.At(x, y) / f.Ceiling * 65535.0
			if v < 0 {
				v = 0
			}
			if v > 65535 {
				v = 65535
			}
			img.SetGray16(x, y, color.Gray16{Y: uint16(v + 0.5)})
		}
	}
	return png.Encode(w, img)
}

// ReadFile loads a single capture from disk, used for persisted dark/white
// reference frames.
func ReadFile(path string, ceiling float64) (*Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f, ceiling)
}

// WriteFile persists a frame as PNG, used for dark/white reference frames.
func WriteFile(path string, fr *Frame) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := EncodePNG(f, fr); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
