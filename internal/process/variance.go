package process

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/nmrbrew/internal/config"
	"github.com/banshee-data/nmrbrew/internal/spectra"
)

// Variance stabilisation transforms.
const (
	VarianceGlog      = "glog"
	VarianceAutoscale = "autoscale"
	VariancePareto    = "pareto"
)

// glogLambda is the offset inside the generalised log.
const glogLambda = 1e-13

// VarianceOptions configure variance stabilisation.
type VarianceOptions struct {
	config.Common
	Algorithm string `json:"algorithm"`
}

// DefaultVarianceOptions selects the generalised log.
func DefaultVarianceOptions() *VarianceOptions {
	return &VarianceOptions{Common: config.DefaultCommon(), Algorithm: VarianceGlog}
}

// Validate checks the transform name.
func (o *VarianceOptions) Validate() error {
	return oneOf("algorithm", o.Algorithm, VarianceGlog, VarianceAutoscale, VariancePareto)
}

// StabiliseVariance applies glog, log(x + sqrt(x² + λ)), or divides every
// value by the population standard deviation of the whole matrix
// (autoscale) or by its square root (pareto). NaN and infinite results are
// zeroed.
func StabiliseVariance(ds *spectra.Dataset, o VarianceOptions, progress spectra.ProgressFunc) (*spectra.Result, error) {
	ds.DiscardImaginary()
	n := ds.Samples()

	var divisor float64
	if o.Algorithm != VarianceGlog {
		_, std := stat.PopMeanStdDev(ds.Data.RawMatrix().Data, nil)
		divisor = std
		if o.Algorithm == VariancePareto {
			divisor = math.Sqrt(std)
		}
		diagf("variance: %s divisor %.6g", o.Algorithm, divisor)
	}

	for i := 0; i < n; i++ {
		row := ds.Row(i)
		for j, x := range row {
			if o.Algorithm == VarianceGlog {
				row[j] = math.Log(x + math.Sqrt(x*x+glogLambda))
			} else {
				row[j] = x / divisor
			}
		}
		report(progress, i+1, n)
	}
	spectra.CleanNonFinite(ds.Data)
	return spectra.NewResult(ds), nil
}
