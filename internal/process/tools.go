package process

import (
	"context"
	"errors"
	"fmt"

	"github.com/banshee-data/nmrbrew/internal/config"
	"github.com/banshee-data/nmrbrew/internal/fsutil"
	"github.com/banshee-data/nmrbrew/internal/importer"
	"github.com/banshee-data/nmrbrew/internal/pipeline"
	"github.com/banshee-data/nmrbrew/internal/spectra"
)

// Stage identity keys. They are the keys of the tools block in a
// configuration document.
const (
	KeyRemoveSolvent         = "RemoveSolvent"
	KeyPhaseCorrect          = "PhaseCorrect"
	KeyPeakAlignment         = "PeakAlignment"
	KeyBaselineCorrection    = "BaselineCorrection"
	KeyPeakScaling           = "PeakScaling"
	KeyExcludeRegions        = "ExcludeRegions"
	KeyIcoshift              = "Icoshift"
	KeyFilterNoise           = "FilterNoise"
	KeyBinning               = "Binning"
	KeyCompressBins          = "CompressBins"
	KeyNormalisation         = "Normalisation"
	KeyVarianceStabilisation = "VarianceStabilisation"
	KeyPCA                   = "PCA"
	KeyExportSpectra         = "ExportSpectra"
)

// ErrNoDataset is returned when a processing tool runs without input.
var ErrNoDataset = errors.New("no input dataset")

// Tool adapts one algorithm function to the pipeline.Algorithm interface.
type Tool struct {
	key      string
	name     string
	caps     pipeline.Capabilities
	defaults func() config.Options
	fresh    func() config.Options
	run      func(ds *spectra.Dataset, opts config.Options, progress spectra.ProgressFunc) (*spectra.Result, error)
}

// newTool binds an algorithm taking options record O, whose pointer P
// implements config.Options.
func newTool[O any, P interface {
	*O
	config.Options
}](key, name string, defaults func() P, run func(*spectra.Dataset, O, spectra.ProgressFunc) (*spectra.Result, error)) *Tool {
	return &Tool{
		key:      key,
		name:     name,
		caps:     pipeline.StandardCapabilities,
		defaults: func() config.Options { return defaults() },
		fresh:    func() config.Options { return P(new(O)) },
		run: func(ds *spectra.Dataset, opts config.Options, progress spectra.ProgressFunc) (*spectra.Result, error) {
			p, ok := opts.(P)
			if !ok {
				return nil, fmt.Errorf("%s: unexpected options type %T", key, opts)
			}
			return run(ds, *p, progress)
		},
	}
}

// Key implements pipeline.Algorithm.
func (t *Tool) Key() string { return t.key }

// Name implements pipeline.Algorithm.
func (t *Tool) Name() string { return t.name }

// Capabilities implements pipeline.Algorithm.
func (t *Tool) Capabilities() pipeline.Capabilities { return t.caps }

// DefaultOptions implements pipeline.Algorithm.
func (t *Tool) DefaultOptions() config.Options { return t.defaults() }

// NewOptions implements pipeline.Algorithm.
func (t *Tool) NewOptions() config.Options { return t.fresh() }

// Run implements pipeline.Algorithm.
func (t *Tool) Run(_ context.Context, in *spectra.Dataset, opts config.Options, progress spectra.ProgressFunc) (*spectra.Result, error) {
	if in == nil {
		return nil, ErrNoDataset
	}
	return t.run(in, opts, progress)
}

// Processing returns the processing tools in pipeline order, from solvent
// removal to PCA.
func Processing() []*Tool {
	return []*Tool{
		newTool(KeyRemoveSolvent, "Remove solvent", DefaultSolventOptions, RemoveSolvent),
		newTool(KeyPhaseCorrect, "Phase correction", DefaultPhaseOptions, CorrectPhase),
		newTool(KeyPeakAlignment, "Align to reference peak", DefaultPeakOptions, AlignPeaks),
		newTool(KeyBaselineCorrection, "Baseline correction", DefaultBaselineOptions, CorrectBaseline),
		newTool(KeyPeakScaling, "Scale to reference peak", DefaultPeakOptions, ScalePeaks),
		newTool(KeyExcludeRegions, "Exclude regions", DefaultExcludeOptions, ExcludeRegions),
		newTool(KeyIcoshift, "Icoshift", DefaultIcoshiftOptions, Icoshift),
		newTool(KeyFilterNoise, "Filter noise", DefaultNoiseOptions, FilterNoise),
		newTool(KeyBinning, "Binning", DefaultBinningOptions, Bin),
		newTool(KeyCompressBins, "Compress bins", DefaultCompressOptions, CompressBins),
		newTool(KeyNormalisation, "Normalisation", DefaultNormaliseOptions, Normalise),
		newTool(KeyVarianceStabilisation, "Variance stabilisation", DefaultVarianceOptions, StabiliseVariance),
		newTool(KeyPCA, "PCA", DefaultPCAOptions, ProjectPCA),
	}
}

// ExportTool writes its input to fsys. It runs only on request and cannot be
// disabled.
func ExportTool(fsys fsutil.FileSystem) *Tool {
	t := newTool(KeyExportSpectra, "Export spectra", DefaultExportOptions,
		func(ds *spectra.Dataset, o ExportOptions, progress spectra.ProgressFunc) (*spectra.Result, error) {
			return Export(fsys, ds, o, progress)
		})
	t.caps = pipeline.Capabilities{ManualRunnable: true}
	return t
}

// Default returns the full pipeline: import, processing, export.
func Default(fsys fsutil.FileSystem) []pipeline.Algorithm {
	algs := []pipeline.Algorithm{importer.NewTool(fsys)}
	for _, t := range Processing() {
		algs = append(algs, t)
	}
	return append(algs, ExportTool(fsys))
}
