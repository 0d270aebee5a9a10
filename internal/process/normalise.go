package process

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/nmrbrew/internal/config"
	"github.com/banshee-data/nmrbrew/internal/spectra"
)

// Normalisation methods.
const (
	NormaliseTSA = "TSA"
	NormalisePQN = "PQN"
)

// NormaliseOptions configure normalisation.
type NormaliseOptions struct {
	config.Common
	Algorithm string `json:"algorithm"`
}

// DefaultNormaliseOptions selects probabilistic quotient normalisation.
func DefaultNormaliseOptions() *NormaliseOptions {
	return &NormaliseOptions{Common: config.DefaultCommon(), Algorithm: NormalisePQN}
}

// Validate checks the method name.
func (o *NormaliseOptions) Validate() error {
	return oneOf("algorithm", o.Algorithm, NormaliseTSA, NormalisePQN)
}

// Normalise scales every sample to the median total absolute intensity
// (TSA). With PQN, the TSA result only supplies the reference spectrum: the
// per-variable medians of the TSA data are divided by the magnitudes of the
// unscaled input, and each unscaled sample is multiplied by the median of
// its finite quotients. NaN and infinite results are zeroed.
func Normalise(ds *spectra.Dataset, o NormaliseOptions, progress spectra.ProgressFunc) (*spectra.Result, error) {
	ds.DiscardImaginary()
	n, pts := ds.Samples(), ds.Points()

	totals := make([]float64, n)
	for i := range totals {
		for _, v := range ds.Row(i) {
			totals[i] += math.Abs(v)
		}
	}
	ref := median(totals)
	tsa := mat.NewDense(n, pts, nil)
	tsaFactors := make([]float64, n)
	for i := 0; i < n; i++ {
		tsaFactors[i] = ref / totals[i]
		floats.ScaleTo(tsa.RawRowView(i), tsaFactors[i], ds.Row(i))
	}

	if o.Algorithm == NormaliseTSA {
		spectra.CleanNonFinite(tsa)
		ds.Data = tsa
		report(progress, n, n)
		return spectra.NewResult(ds).With("scaling", tsaFactors), nil
	}

	// Quotients divide by the unscaled magnitudes, not the TSA data.
	refSpectrum := make([]float64, pts)
	col := make([]float64, n)
	for j := range refSpectrum {
		mat.Col(col, j, tsa)
		refSpectrum[j] = median(col)
	}
	pqnFactors := make([]float64, n)
	quotients := make([]float64, pts)
	for i := 0; i < n; i++ {
		row := ds.Row(i)
		for j, v := range row {
			quotients[j] = refSpectrum[j] / math.Abs(v)
		}
		q := finite(quotients)
		pqnFactors[i] = 1
		if len(q) > 0 {
			pqnFactors[i] = median(q)
		}
		floats.Scale(pqnFactors[i], row)
		report(progress, i+1, n)
	}
	spectra.CleanNonFinite(ds.Data)
	return spectra.NewResult(ds).With("scaling", pqnFactors), nil
}
