package process

import (
	"math"

	"github.com/banshee-data/nmrbrew/internal/config"
	"github.com/banshee-data/nmrbrew/internal/spectra"
)

// NoiseOptions configure the noise filter. It has no parameters of its own.
type NoiseOptions struct {
	config.Common
}

// DefaultNoiseOptions returns the shared defaults.
func DefaultNoiseOptions() *NoiseOptions {
	return &NoiseOptions{Common: config.DefaultCommon()}
}

// Validate always succeeds.
func (o *NoiseOptions) Validate() error { return nil }

var laplacian = [3][3]float64{
	{1, -2, 1},
	{-2, 4, -2},
	{1, -2, 1},
}

// EstimateNoise returns the global noise sigma of the samples × points
// matrix from the summed magnitude of its full 2D convolution with a
// Laplacian-style kernel (Immerkær's fast estimator).
func EstimateNoise(ds *spectra.Dataset) float64 {
	h, w := ds.Samples(), ds.Points()
	var total float64
	for a := 0; a < h+2; a++ {
		for b := 0; b < w+2; b++ {
			var v float64
			for p := 0; p < 3; p++ {
				i := a - p
				if i < 0 || i >= h {
					continue
				}
				row := ds.Row(i)
				for q := 0; q < 3; q++ {
					if j := b - q; j >= 0 && j < w {
						v += laplacian[p][q] * row[j]
					}
				}
			}
			total += math.Abs(v)
		}
	}
	return total * math.Sqrt(0.5*math.Pi) / (6 * float64(max(w-2, 1)) * float64(max(h-2, 1)))
}

// FilterNoise zeroes every value whose magnitude is below the estimated
// noise floor.
func FilterNoise(ds *spectra.Dataset, _ NoiseOptions, progress spectra.ProgressFunc) (*spectra.Result, error) {
	ds.DiscardImaginary()
	sigma := EstimateNoise(ds)
	diagf("noise: estimated sigma %.6g", sigma)

	zeroed := 0
	n := ds.Samples()
	for i := 0; i < n; i++ {
		row := ds.Row(i)
		for j, v := range row {
			if math.Abs(v) < sigma {
				row[j] = 0
				zeroed++
			}
		}
		report(progress, i+1, n)
	}
	return spectra.NewResult(ds).With("noise", sigma).With("zeroed", zeroed), nil
}
