package process

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/interp"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/nmrbrew/internal/config"
	"github.com/banshee-data/nmrbrew/internal/spectra"
)

// Baseline estimators.
const (
	BaselineALS         = "als"
	BaselineMedian      = "median"
	BaselineCBFPercent  = "cbf_pc"
	BaselineCBFExplicit = "cbf_explicit"
)

// BaselineOptions configure baseline correction. Only the fields of the
// selected algorithm are read.
type BaselineOptions struct {
	config.Common
	Algorithm string `json:"algorithm"`

	ALSLambda     float64 `json:"als_lambda"`
	ALSP          float64 `json:"als_p"`
	ALSIterations int     `json:"als_iterations"`
	ALSStride     int     `json:"als_stride"`
	ALSSkipStart  float64 `json:"als_skip_start"`
	ALSSkipEnd    float64 `json:"als_skip_end"`

	MedMW    int     `json:"med_mw"`
	MedSF    int     `json:"med_sf"`
	MedSigma float64 `json:"med_sigma"`

	CBFLastPC int `json:"cbf_last_pc"`

	CBFExplicitStart int `json:"cbf_explicit_start"`
	CBFExplicitEnd   int `json:"cbf_explicit_end"`
}

// DefaultBaselineOptions selects asymmetric least squares.
func DefaultBaselineOptions() *BaselineOptions {
	return &BaselineOptions{
		Common:           config.DefaultCommon(),
		Algorithm:        BaselineALS,
		ALSLambda:        1e5,
		ALSP:             0.01,
		ALSIterations:    10,
		ALSStride:        256,
		ALSSkipStart:     4.5,
		ALSSkipEnd:       5.0,
		MedMW:            24,
		MedSF:            16,
		MedSigma:         5.0,
		CBFLastPC:        10,
		CBFExplicitStart: 0,
		CBFExplicitEnd:   100,
	}
}

// Validate checks ranges for every estimator's parameters.
func (o *BaselineOptions) Validate() error {
	if err := oneOf("algorithm", o.Algorithm, BaselineALS, BaselineMedian, BaselineCBFPercent, BaselineCBFExplicit); err != nil {
		return err
	}
	switch {
	case o.ALSLambda <= 0:
		return fmt.Errorf("als_lambda must be positive, got %v", o.ALSLambda)
	case o.ALSP <= 0 || o.ALSP >= 1:
		return fmt.Errorf("als_p must be in (0, 1), got %v", o.ALSP)
	case o.ALSIterations < 1:
		return fmt.Errorf("als_iterations must be at least 1, got %d", o.ALSIterations)
	case o.ALSStride < 1:
		return fmt.Errorf("als_stride must be at least 1, got %d", o.ALSStride)
	case o.MedMW < 1 || o.MedSF < 1:
		return fmt.Errorf("med_mw and med_sf must be at least 1, got %d and %d", o.MedMW, o.MedSF)
	case o.MedSigma <= 0:
		return fmt.Errorf("med_sigma must be positive, got %v", o.MedSigma)
	case o.CBFLastPC < 1 || o.CBFLastPC > 100:
		return fmt.Errorf("cbf_last_pc must be in [1, 100], got %d", o.CBFLastPC)
	case o.CBFExplicitStart < 0 || o.CBFExplicitEnd <= o.CBFExplicitStart:
		return fmt.Errorf("cbf_explicit range [%d, %d) is empty", o.CBFExplicitStart, o.CBFExplicitEnd)
	}
	return nil
}

// alsKnots returns the stride-sampled indices outside the skip band.
func alsKnots(ppm []float64, o BaselineOptions) []int {
	lo, hi := indexBand(ppm, o.ALSSkipStart, o.ALSSkipEnd)
	var idx []int
	for i := 0; i < len(ppm); i += o.ALSStride {
		if i < lo || i > hi {
			idx = append(idx, i)
		}
	}
	return idx
}

// fitALS fits an asymmetric least squares baseline to y: it repeatedly
// solves (W + lam·D·Dᵀ) z = W y with D the second-difference operator,
// weighting points above the fit by p and below by 1-p.
func fitALS(y []float64, lam, p float64, iterations int) []float64 {
	n := len(y)
	z := append([]float64(nil), y...)
	if n < 3 {
		return z
	}

	// lam·D·Dᵀ is pentadiagonal: accumulate [1 -2 1]ᵀ[1 -2 1] per column of D.
	penalty := mat.NewSymBandDense(n, 2, nil)
	d := [3]float64{1, -2, 1}
	for j := 0; j+2 < n; j++ {
		for a := 0; a < 3; a++ {
			for b := a; b < 3; b++ {
				penalty.SetSymBand(j+a, j+b, penalty.At(j+a, j+b)+lam*d[a]*d[b])
			}
		}
	}

	w := make([]float64, n)
	for i := range w {
		w[i] = 1
	}
	zv := mat.NewVecDense(n, nil)
	rhs := mat.NewVecDense(n, nil)
	sys := mat.NewSymBandDense(n, 2, nil)
	var chol mat.BandCholesky
	for it := 0; it < iterations; it++ {
		for i := 0; i < n; i++ {
			for j := i; j <= min(n-1, i+2); j++ {
				v := penalty.At(i, j)
				if i == j {
					v += w[i]
				}
				sys.SetSymBand(i, j, v)
			}
			rhs.SetVec(i, w[i]*y[i])
		}
		if ok := chol.Factorize(sys); !ok {
			break
		}
		if err := chol.SolveVecTo(zv, rhs); err != nil {
			break
		}
		for i := range z {
			z[i] = zv.AtVec(i)
			switch {
			case y[i] > z[i]:
				w[i] = p
			case y[i] < z[i]:
				w[i] = 1 - p
			default:
				w[i] = 0
			}
		}
	}
	return z
}

// resample interpolates knot values back onto the full ppm axis. Outside the
// knot range the end values are held.
func resample(ppm []float64, knots []int, values []float64) []float64 {
	out := make([]float64, len(ppm))
	switch len(knots) {
	case 0:
		return out
	case 1:
		for i := range out {
			out[i] = values[0]
		}
		return out
	}

	xs := make([]float64, len(knots))
	ys := make([]float64, len(knots))
	for i, k := range knots {
		xs[i], ys[i] = ppm[k], values[i]
	}
	if xs[0] > xs[len(xs)-1] {
		floats.Reverse(xs)
		floats.Reverse(ys)
	}

	var pred interp.FittablePredictor = &interp.PiecewiseLinear{}
	if len(xs) >= 4 {
		pred = &interp.NotAKnotCubic{}
	}
	if err := pred.Fit(xs, ys); err != nil {
		opsf("baseline: spline fit failed, holding mean: %v", err)
		m := floats.Sum(ys) / float64(len(ys))
		for i := range out {
			out[i] = m
		}
		return out
	}
	for i, x := range ppm {
		out[i] = pred.Predict(math.Min(math.Max(x, xs[0]), xs[len(xs)-1]))
	}
	return out
}

// medianBaseline estimates a baseline from the running median of local
// extrema, smoothed by a normalised gaussian.
func medianBaseline(y []float64, mw, sf int, sigma float64) []float64 {
	n := len(y)
	extrema := make([]bool, n)
	for i := range y {
		if i == 0 || i == n-1 {
			extrema[i] = true
			continue
		}
		extrema[i] = y[i] != median(y[i-1:i+2])
	}

	half := mw / 2
	m := make([]float64, n)
	window := make([]float64, 0, mw+1)
	for i := range y {
		window = window[:0]
		lo, hi := max(0, i-half), min(n-1, i+half)
		for j := lo; j <= hi; j++ {
			if extrema[j] {
				window = append(window, y[j])
			}
		}
		if len(window) == 0 {
			window = append(window, y[lo:hi+1]...)
		}
		m[i] = median(window)
	}

	g := make([]float64, sf)
	for i := range g {
		x := float64(i) - float64(sf-1)/2
		g[i] = math.Exp(-x * x / (2 * sigma * sigma))
	}
	floats.Scale(1/floats.Sum(g), g)
	return convolveSame(m, g)
}

// constantBaseline is the mean of y[lo:hi], clamped to the row; zero when
// the clamped range is empty.
func constantBaseline(y []float64, lo, hi int) []float64 {
	lo, hi = max(0, lo), min(len(y), hi)
	out := make([]float64, len(y))
	if hi <= lo {
		return out
	}
	mean := floats.Sum(y[lo:hi]) / float64(hi-lo)
	for i := range out {
		out[i] = mean
	}
	return out
}

// CorrectBaseline subtracts a per-sample baseline estimate. The ALS estimator
// fits only every stride-th point outside the skip band and spline
// interpolates the fit back to full resolution.
func CorrectBaseline(ds *spectra.Dataset, o BaselineOptions, progress spectra.ProgressFunc) (*spectra.Result, error) {
	ds.DiscardImaginary()
	n, pts := ds.Samples(), ds.Points()
	baselines := mat.NewDense(n, pts, nil)

	var knots []int
	var knotMean []float64
	if o.Algorithm == BaselineALS {
		knots = alsKnots(ds.PPM, o)
		knotMean = make([]float64, len(knots))
		diagf("baseline: ALS on %d knots (stride %d)", len(knots), o.ALSStride)
	}

	for i := 0; i < n; i++ {
		row := ds.Row(i)
		var bl []float64
		switch o.Algorithm {
		case BaselineALS:
			y := make([]float64, len(knots))
			for k, idx := range knots {
				y[k] = row[idx]
			}
			fit := fitALS(y, o.ALSLambda, o.ALSP, o.ALSIterations)
			floats.AddScaled(knotMean, 1/float64(n), fit)
			bl = resample(ds.PPM, knots, fit)
		case BaselineMedian:
			bl = medianBaseline(row, o.MedMW, o.MedSF, o.MedSigma)
		case BaselineCBFPercent:
			last := pts*o.CBFLastPC/100 + 1
			bl = constantBaseline(row, pts-last, pts)
		case BaselineCBFExplicit:
			bl = constantBaseline(row, o.CBFExplicitStart, o.CBFExplicitEnd)
		}
		floats.Sub(row, bl)
		baselines.SetRow(i, bl)
		report(progress, i+1, n)
	}

	res := spectra.NewResult(ds).With("baseline", baselines)
	if o.Algorithm == BaselineALS {
		res.With("baseline_point_idx", knots).With("baseline_point_y", knotMean)
	}
	return res, nil
}
