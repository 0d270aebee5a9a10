package process

import (
	"encoding/csv"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/banshee-data/nmrbrew/internal/config"
	"github.com/banshee-data/nmrbrew/internal/fsutil"
	"github.com/banshee-data/nmrbrew/internal/spectra"
)

// ExportOptions configure delimited text export.
type ExportOptions struct {
	config.Common
	Filename   string `json:"filename"`
	Format     string `json:"format"`
	IncludePPM bool   `json:"include_ppm"`
}

// DefaultExportOptions writes csv with the ppm row. No file is written until
// a filename is set.
func DefaultExportOptions() *ExportOptions {
	return &ExportOptions{Common: config.DefaultCommon(), Format: "csv", IncludePPM: true}
}

// Validate checks the format name.
func (o *ExportOptions) Validate() error {
	return oneOf("format", o.Format, "csv", "tsv", "txt")
}

// ErrNoFilename is returned when an export is run without a target file.
var ErrNoFilename = errors.New("export filename not set")

// exportPath appends the format as extension when the filename has none.
func exportPath(o ExportOptions) string {
	if filepath.Ext(o.Filename) == "" {
		return o.Filename + "." + o.Format
	}
	return o.Filename
}

// Delimiter returns tab for .tsv and .txt targets and comma otherwise.
func Delimiter(path string) rune {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tsv", ".txt":
		return '\t'
	}
	return ','
}

// Export writes the ppm axis as the first row, then one row per sample. The
// dataset passes through unchanged.
func Export(fsys fsutil.FileSystem, ds *spectra.Dataset, o ExportOptions, progress spectra.ProgressFunc) (*spectra.Result, error) {
	if o.Filename == "" {
		return nil, ErrNoFilename
	}
	path := exportPath(o)
	if dir := filepath.Dir(path); dir != "." {
		if err := fsys.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create export directory: %w", err)
		}
	}
	f, err := fsys.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create export file: %w", err)
	}

	w := csv.NewWriter(f)
	w.Comma = Delimiter(path)
	record := make([]string, ds.Points())
	if o.IncludePPM {
		formatRow(record, ds.PPM)
		if err := w.Write(record); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write ppm row: %w", err)
		}
	}
	n := ds.Samples()
	for i := 0; i < n; i++ {
		formatRow(record, ds.Row(i))
		if err := w.Write(record); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write sample %d: %w", i, err)
		}
		report(progress, i+1, n)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to flush export: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close export file: %w", err)
	}
	diagf("export: wrote %d samples to %s", n, path)
	return spectra.NewResult(ds).With("path", path), nil
}

func formatRow(dst []string, vals []float64) {
	for j, v := range vals {
		dst[j] = strconv.FormatFloat(v, 'g', -1, 64)
	}
}
