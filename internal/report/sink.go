package report

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rewired-gh/pulsereport/internal/atomicfile"
	"github.com/rewired-gh/pulsereport/internal/logger"
	"github.com/rewired-gh/pulsereport/internal/models"
)

// FileSink renders reports into an output directory, one file per report.
type FileSink struct {
	dir string
}

// NewFileSink creates dir if needed and clears temp files left by an
// interrupted run.
func NewFileSink(dir string) (*FileSink, error) {
	if dir == "" {
		return nil, fmt.Errorf("output directory must not be empty")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := atomicfile.CleanStale(dir); err != nil {
		logger.Warn("Failed to clean stale temp files in %s: %v", dir, err)
	}
	return &FileSink{dir: dir}, nil
}

// Dir returns the output directory.
func (s *FileSink) Dir() string {
	return s.dir
}

// Path returns the absolute location of an artifact filename.
func (s *FileSink) Path(filename string) string {
	return filepath.Join(s.dir, filename)
}

// WriteReport renders r and atomically replaces its artifact.
func (s *FileSink) WriteReport(ctx context.Context, r *models.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := Render(&buf, r); err != nil {
		return fmt.Errorf("render %s: %w", r.Filename, err)
	}
	return atomicfile.WriteFile(s.Path(r.Filename), buf.Bytes(), 0644)
}
