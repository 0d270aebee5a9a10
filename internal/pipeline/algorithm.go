package pipeline

import (
	"context"

	"github.com/banshee-data/nmrbrew/internal/config"
	"github.com/banshee-data/nmrbrew/internal/spectra"
)

// Capabilities describe how a stage may be triggered.
type Capabilities struct {
	// ManualRunnable stages may be run on request.
	ManualRunnable bool
	// AutoRunnable stages re-run when their own options change.
	AutoRunnable bool
	// AutoRerunnable stages re-run when an upstream stage completes.
	AutoRerunnable bool
	// Disableable stages may be switched to inactive.
	Disableable bool
	// Source stages produce data without an upstream input.
	Source bool
}

// StandardCapabilities is what every processing stage between import and
// export supports.
var StandardCapabilities = Capabilities{
	ManualRunnable: true,
	AutoRunnable:   true,
	AutoRerunnable: true,
	Disableable:    true,
}

// Algorithm is a pure processing capability. Implementations must not keep
// state between runs: everything a run needs arrives through its arguments.
type Algorithm interface {
	// Key is the stable identity used in configuration documents.
	Key() string
	// Name is a human-readable label.
	Name() string
	Capabilities() Capabilities
	// DefaultOptions returns a new options record holding declared defaults.
	DefaultOptions() config.Options
	// NewOptions returns a new zero options record of the same type, used
	// as a decode target.
	NewOptions() config.Options
	// Run transforms in according to opts. in is nil for source stages and
	// is owned exclusively by the call.
	Run(ctx context.Context, in *spectra.Dataset, opts config.Options, progress spectra.ProgressFunc) (*spectra.Result, error)
}
