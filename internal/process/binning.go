package process

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/nmrbrew/internal/config"
	"github.com/banshee-data/nmrbrew/internal/spectra"
)

// BinningOptions configure fixed-width ppm binning.
type BinningOptions struct {
	config.Common
	BinSize   float64 `json:"bin_size"`
	BinOffset float64 `json:"bin_offset"`
}

// DefaultBinningOptions uses 0.01 ppm bins.
func DefaultBinningOptions() *BinningOptions {
	return &BinningOptions{Common: config.DefaultCommon(), BinSize: 0.01}
}

// Bin width limits in ppm.
const (
	MinBinSize = 0.001
	MaxBinSize = 0.5
)

// Validate checks the bin width.
func (o *BinningOptions) Validate() error {
	if !(o.BinSize >= MinBinSize && o.BinSize <= MaxBinSize) {
		return fmt.Errorf("bin_size must be within [%v, %v], got %v", MinBinSize, MaxBinSize, o.BinSize)
	}
	if math.IsNaN(o.BinOffset) || math.IsInf(o.BinOffset, 0) {
		return fmt.Errorf("bin_offset must be finite, got %v", o.BinOffset)
	}
	return nil
}

// binEdges returns start, start+size, ... strictly below stop.
func binEdges(start, stop, size float64) []float64 {
	n := int(math.Ceil((stop - start) / size))
	if n <= 0 {
		return nil
	}
	edges := make([]float64, n)
	for k := range edges {
		edges[k] = start + float64(k)*size
	}
	return edges
}

// binIndex returns the bin holding x, or -1. Bins are half open except the
// last, which includes its right edge.
func binIndex(edges []float64, x float64) int {
	nbins := len(edges) - 1
	if x < edges[0] || x > edges[nbins] || math.IsNaN(x) {
		return -1
	}
	k := sort.SearchFloat64s(edges, x)
	if k < len(edges) && edges[k] == x {
		return min(k, nbins-1)
	}
	return k - 1
}

// Bin sums intensities into fixed-width ppm bins. Edges run from the axis
// minimum plus the offset in steps of the bin size; the output axis holds
// the left edges in ascending order. When the bin count would not reduce
// the resolution, the input passes through unchanged. NaN intensities
// count as zero.
func Bin(ds *spectra.Dataset, o BinningOptions, progress spectra.ProgressFunc) (*spectra.Result, error) {
	ds.DiscardImaginary()
	start := floats.Min(ds.PPM) + o.BinOffset
	stop := floats.Max(ds.PPM) + o.BinOffset
	n := ds.Samples()
	// Counted in float first so an absurd width never reaches an allocation.
	if nbins := math.Ceil((stop-start)/o.BinSize) - 1; !(nbins >= 1 && nbins < float64(ds.Points())) {
		diagf("binning: %v bins for %d points, passing through", nbins, ds.Points())
		report(progress, n, n)
		return spectra.NewResult(ds), nil
	}
	edges := binEdges(start, stop, o.BinSize)
	nbins := len(edges) - 1

	target := make([]int, ds.Points())
	for j, x := range ds.PPM {
		target[j] = binIndex(edges, x)
	}
	out := mat.NewDense(n, nbins, nil)
	for i := 0; i < n; i++ {
		src, dst := ds.Row(i), out.RawRowView(i)
		for j, k := range target {
			if k >= 0 && !math.IsNaN(src[j]) {
				dst[k] += src[j]
			}
		}
		report(progress, i+1, n)
	}
	if err := ds.Replace(edges[:nbins], out); err != nil {
		return nil, err
	}
	return spectra.NewResult(ds).With("bin_edges", edges), nil
}

// CompressOptions configure bin compression.
type CompressOptions struct {
	config.Common
	Factor int `json:"factor"`
}

// DefaultCompressOptions merges pairs of neighbouring bins.
func DefaultCompressOptions() *CompressOptions {
	return &CompressOptions{Common: config.DefaultCommon(), Factor: 2}
}

// Validate checks the compression factor.
func (o *CompressOptions) Validate() error {
	if o.Factor < 1 {
		return fmt.Errorf("factor must be at least 1, got %d", o.Factor)
	}
	return nil
}

// CompressBins sums each run of factor neighbouring columns into one; a
// final partial run forms its own column. Each output column takes the ppm
// value of the first column in its run. A factor of 1 passes through.
func CompressBins(ds *spectra.Dataset, o CompressOptions, progress spectra.ProgressFunc) (*spectra.Result, error) {
	ds.DiscardImaginary()
	n, pts := ds.Samples(), ds.Points()
	if o.Factor <= 1 {
		report(progress, n, n)
		return spectra.NewResult(ds), nil
	}

	cols := (pts + o.Factor - 1) / o.Factor
	ppm := make([]float64, cols)
	for k := range ppm {
		ppm[k] = ds.PPM[k*o.Factor]
	}
	out := mat.NewDense(n, cols, nil)
	for i := 0; i < n; i++ {
		src, dst := ds.Row(i), out.RawRowView(i)
		for j, v := range src {
			if !math.IsNaN(v) {
				dst[j/o.Factor] += v
			}
		}
		report(progress, i+1, n)
	}
	if err := ds.Replace(ppm, out); err != nil {
		return nil, err
	}
	return spectra.NewResult(ds), nil
}
