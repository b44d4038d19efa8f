package calibration

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/magicallyoffline/DesertSignals/pkg/models"
)

// Record is the complete serializable state of a calibration session:
// the fitted polynomial plus the reference points that produced it, kept
// for auditability and re-fitting.
type Record struct {
	Coefficients    []float64               `json:"coefficients"`
	Degree          int                     `json:"degree"`
	DomainWidth     int                     `json:"domain_width"`
	ReferencePoints []models.ReferencePoint `json:"reference_points,omitempty"`
	FittedAt        time.Time               `json:"fitted_at"`
}

// NewRecord captures a fitted model and its reference points.
func NewRecord(m *Model, points []models.ReferencePoint) *Record {
	return &Record{
		Coefficients:    m.Coefficients(),
		Degree:          m.Degree(),
		DomainWidth:     m.DomainWidth(),
		ReferencePoints: append([]models.ReferencePoint(nil), points...),
		FittedAt:        time.Now().UTC(),
	}
}

// Model rebuilds the calibration model from the record, re-validating it.
func (r *Record) Model() (*Model, error) {
	return New(r.Coefficients, r.DomainWidth)
}

// Store persists calibration records.
type Store interface {
	Load() (*Record, error)
	Save(rec *Record) error
}

// FileStore keeps the calibration record in a single JSON file.
type FileStore struct {
	path string
}

// NewFileStore creates a file-backed calibration store at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the stored calibration record. Returns os.ErrNotExist when no
// calibration has been saved yet.
func (s *FileStore) Load() (*Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("calibration: parse %s: %w", s.path, err)
	}
	return &rec, nil
}

// Save writes the record atomically via a temp file and rename, so a crash
// mid-write never leaves a truncated calibration behind.
func (s *FileStore) Save(rec *Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("calibration: encode record: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("calibration: create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".calibration-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}
