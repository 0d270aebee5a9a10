package process

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"

	"github.com/banshee-data/nmrbrew/internal/config"
	"github.com/banshee-data/nmrbrew/internal/spectra"
)

// Phase correction objectives.
const (
	PhaseACME       = "acme"
	PhasePeakMinima = "peak_minima"
)

// peakMinimaWindow is how far either side of the tallest point the
// peak_minima objective looks for the baseline minimum.
const peakMinimaWindow = 100

// phaseEvaluations bounds objective evaluations per sample.
const phaseEvaluations = 400

// PhaseOptions configure automatic phase correction.
type PhaseOptions struct {
	config.Common
	Algorithm string `json:"algorithm"`
}

// DefaultPhaseOptions uses the peak_minima objective.
func DefaultPhaseOptions() *PhaseOptions {
	return &PhaseOptions{Common: config.DefaultCommon(), Algorithm: PhasePeakMinima}
}

// Validate checks the objective name.
func (o *PhaseOptions) Validate() error {
	return oneOf("algorithm", o.Algorithm, PhaseACME, PhasePeakMinima)
}

// phaseShift applies zero-order p0 and first-order p1 phase (degrees) to the
// complex spectrum (re, im), writing the result to (dre, dim).
func phaseShift(dre, dim, re, im []float64, p0, p1 float64) {
	size := float64(len(re))
	for k := range re {
		a := (p0 + p1*float64(k)/size) * math.Pi / 180
		s, c := math.Sincos(a)
		r, i := re[k], im[k]
		dre[k] = r*c - i*s
		dim[k] = r*s + i*c
	}
}

// acmeObjective is the derivative entropy of the real spectrum plus a
// penalty on negative intensity.
func acmeObjective(s []float64) float64 {
	n := len(s)
	if n < 2 {
		return 0
	}
	d := make([]float64, n-1)
	for j := range d {
		d[j] = math.Abs(s[j+1] - s[j])
	}
	var h float64
	if total := floats.Sum(d); total > 0 {
		for _, v := range d {
			if p := v / total; p > 0 {
				h -= p * math.Log(p)
			}
		}
	}
	var neg, pen float64
	for _, v := range s {
		as := v - math.Abs(v)
		neg += as
		pen += (as / 2) * (as / 2)
	}
	if neg < 0 {
		return h + 1000*pen
	}
	return h
}

// peakMinimaObjective compares the minima either side of the tallest point;
// a well phased peak has symmetric feet.
func peakMinimaObjective(s []float64) float64 {
	if len(s) == 0 {
		return 0
	}
	i := floats.MaxIdx(s)
	left := s[max(0, i-peakMinimaWindow):i]
	right := s[i:min(len(s), i+peakMinimaWindow)]
	mina, minb := s[i], s[i]
	if len(left) > 0 {
		mina = floats.Min(left)
	}
	if len(right) > 0 {
		minb = floats.Min(right)
	}
	return math.Abs(mina - minb)
}

// CorrectPhase searches zero- and first-order phase per sample with
// Nelder-Mead, warm starting each sample from the previous solution. It
// never fails on flat or non-converging spectra: the best point found is
// applied. The complex spectrum is kept. Real-only input has nothing to
// rotate and passes through unchanged.
func CorrectPhase(ds *spectra.Dataset, o PhaseOptions, progress spectra.ProgressFunc) (*spectra.Result, error) {
	n, pts := ds.Samples(), ds.Points()
	if ds.Imag == nil {
		opsf("phase: no imaginary part, %d samples left unphased", n)
		report(progress, n, n)
		return spectra.NewResult(ds), nil
	}
	objective := peakMinimaObjective
	if o.Algorithm == PhaseACME {
		objective = acmeObjective
	}

	params := make([][2]float64, n)
	x0 := []float64{0, 0}
	tmpRe, tmpIm := make([]float64, pts), make([]float64, pts)
	for i := 0; i < n; i++ {
		re, im := ds.Data.RawRowView(i), ds.Imag.RawRowView(i)
		problem := optimize.Problem{
			Func: func(x []float64) float64 {
				phaseShift(tmpRe, tmpIm, re, im, x[0], x[1])
				return objective(tmpRe)
			},
		}
		best := append([]float64(nil), x0...)
		res, err := optimize.Minimize(problem, x0, &optimize.Settings{FuncEvaluations: phaseEvaluations}, &optimize.NelderMead{})
		if res != nil && len(res.X) == 2 && !math.IsNaN(res.F) {
			best = res.X
		}
		if err != nil {
			diagf("phase: sample %d did not converge: %v", i, err)
		}
		phaseShift(re, im, append([]float64(nil), re...), append([]float64(nil), im...), best[0], best[1])
		params[i] = [2]float64{best[0], best[1]}
		x0 = append([]float64(nil), best...)
		tracef("phase: sample %d p0=%.3f p1=%.3f", i, best[0], best[1])
		report(progress, i+1, n)
	}
	return spectra.NewResult(ds).With("phase", params), nil
}
