package importer

import (
	"context"
	"fmt"

	"github.com/banshee-data/nmrbrew/internal/config"
	"github.com/banshee-data/nmrbrew/internal/fsutil"
	"github.com/banshee-data/nmrbrew/internal/pipeline"
	"github.com/banshee-data/nmrbrew/internal/spectra"
)

// Key is the import stage identity.
const Key = "ImportSpectra"

// Tool is the source stage of the pipeline.
type Tool struct {
	fsys fsutil.FileSystem
}

// NewTool returns an import stage reading from fsys.
func NewTool(fsys fsutil.FileSystem) *Tool {
	return &Tool{fsys: fsys}
}

// Key implements pipeline.Algorithm.
func (*Tool) Key() string { return Key }

// Name implements pipeline.Algorithm.
func (*Tool) Name() string { return "Import spectra" }

// Capabilities implements pipeline.Algorithm. Import runs only on request
// and cannot be disabled.
func (*Tool) Capabilities() pipeline.Capabilities {
	return pipeline.Capabilities{ManualRunnable: true, Source: true}
}

// DefaultOptions implements pipeline.Algorithm.
func (*Tool) DefaultOptions() config.Options { return DefaultOptions() }

// NewOptions implements pipeline.Algorithm.
func (*Tool) NewOptions() config.Options { return &Options{} }

// Run implements pipeline.Algorithm. Any input dataset is ignored.
func (t *Tool) Run(ctx context.Context, _ *spectra.Dataset, opts config.Options, progress spectra.ProgressFunc) (*spectra.Result, error) {
	o, ok := opts.(*Options)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected options type %T", Key, opts)
	}
	return Import(ctx, t.fsys, *o, progress)
}
