package process

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/nmrbrew/internal/config"
	"github.com/banshee-data/nmrbrew/internal/spectra"
)

// Solvent filter shapes.
const (
	SolventBoxcar   = "boxcar"
	SolventSine     = "sine"
	SolventSine2    = "sine2"
	SolventGaussian = "gaussian"
)

// SolventOptions configure solvent removal.
type SolventOptions struct {
	config.Common
	Algorithm string  `json:"algorithm"`
	Width     int     `json:"width"`
	PPMStart  float64 `json:"ppm_start"`
	PPMEnd    float64 `json:"ppm_end"`
}

// DefaultSolventOptions targets the residual water line.
func DefaultSolventOptions() *SolventOptions {
	return &SolventOptions{
		Common:    config.DefaultCommon(),
		Algorithm: SolventSine2,
		Width:     16,
		PPMStart:  4.65,
		PPMEnd:    4.75,
	}
}

// Validate checks the filter shape and half-width.
func (o *SolventOptions) Validate() error {
	if err := oneOf("algorithm", o.Algorithm, SolventBoxcar, SolventSine, SolventSine2, SolventGaussian); err != nil {
		return err
	}
	if o.Width < 1 {
		return fmt.Errorf("width must be at least 1, got %d", o.Width)
	}
	return nil
}

// solventFilter returns the 2w+1 point low-pass kernel for algorithm.
func solventFilter(algorithm string, w int) []float64 {
	n := 2*w + 1
	k := make([]float64, n)
	switch algorithm {
	case SolventBoxcar:
		for i := range k {
			k[i] = 1
		}
	case SolventSine, SolventSine2:
		floats.Span(k, -0.5, 0.5)
		for i, x := range k {
			k[i] = math.Cos(math.Pi * x)
			if algorithm == SolventSine2 {
				k[i] *= k[i]
			}
		}
	case SolventGaussian:
		sigma := float64(w) / 2
		for i := range k {
			x := float64(i) - float64(n-1)/2
			k[i] = math.Exp(-x * x / (2 * sigma * sigma))
		}
	}
	return k
}

// RemoveSolvent subtracts a low-pass filtered copy of the configured ppm band
// from itself, flattening the broad solvent line while leaving narrow
// features. The band runs from the nearest index of one bound up to, but not
// including, the nearest index of the other. An empty band is a no-op.
// Complex spectra stay complex: the imaginary rows get the same filter.
func RemoveSolvent(ds *spectra.Dataset, o SolventOptions, progress spectra.ProgressFunc) (*spectra.Result, error) {
	lo, hi := indexBand(ds.PPM, o.PPMStart, o.PPMEnd)
	n := ds.Samples()
	if hi <= lo {
		report(progress, n, n)
		return spectra.NewResult(ds), nil
	}

	k := solventFilter(o.Algorithm, o.Width)
	norm := floats.Sum(k)
	for i := 0; i < n; i++ {
		suppressBand(ds.Row(i)[lo:hi], k, norm)
		if ds.Imag != nil {
			suppressBand(ds.Imag.RawRowView(i)[lo:hi], k, norm)
		}
		report(progress, i+1, n)
	}
	return spectra.NewResult(ds).With("solvent_band", [2]int{lo, hi}), nil
}

func suppressBand(band, k []float64, norm float64) {
	smooth := convolveSame(band, k)
	floats.AddScaled(band, -1/norm, smooth)
}
