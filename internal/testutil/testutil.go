// Package testutil provides shared test fixtures: synthetic spectra with
// known peak positions and assertions over intensity matrices.
package testutil

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/nmrbrew/internal/spectra"
)

// Peak is a Lorentzian line in a synthetic spectrum.
type Peak struct {
	Centre float64 // ppm
	Width  float64 // half width at half maximum, ppm
	Height float64
}

// StandardPeaks mimics a urine-like profile: reference at 0 ppm, a lactate
// doublet region, creatinine at 3.03 and 4.05, and a residual water line.
var StandardPeaks = []Peak{
	{Centre: 0.0, Width: 0.004, Height: 100},
	{Centre: 1.33, Width: 0.006, Height: 40},
	{Centre: 3.03, Width: 0.005, Height: 60},
	{Centre: 4.05, Width: 0.005, Height: 30},
	{Centre: 4.70, Width: 0.03, Height: 200},
	{Centre: 7.50, Width: 0.008, Height: 15},
}

// Axis returns n descending ppm values from hi to lo inclusive.
func Axis(n int, hi, lo float64) []float64 {
	out := make([]float64, n)
	floats.Span(out, hi, lo)
	return out
}

// Lorentzian evaluates the sum of peaks at every ppm value.
func Lorentzian(ppm []float64, peaks ...Peak) []float64 {
	out := make([]float64, len(ppm))
	for _, p := range peaks {
		w2 := p.Width * p.Width
		for i, x := range ppm {
			d := x - p.Centre
			out[i] += p.Height * w2 / (d*d + w2)
		}
	}
	return out
}

// Options tune SyntheticDataset.
type Options struct {
	Samples int
	Points  int
	Hi, Lo  float64
	Peaks   []Peak
	// Shift moves sample i's peaks by i*Shift ppm.
	Shift float64
	// Scale multiplies sample i's intensities by 1 + i*Scale.
	Scale float64
	// Baseline adds a linear slope of this height across the axis.
	Baseline float64
}

// SyntheticDataset builds a deterministic dataset of shifted and scaled
// copies of the same Lorentzian profile.
func SyntheticDataset(tb testing.TB, o Options) *spectra.Dataset {
	tb.Helper()
	if o.Samples == 0 {
		o.Samples = 5
	}
	if o.Points == 0 {
		o.Points = 1000
	}
	if o.Hi == o.Lo {
		o.Hi, o.Lo = 10, 0
	}
	if o.Peaks == nil {
		o.Peaks = StandardPeaks
	}
	ppm := Axis(o.Points, o.Hi, o.Lo)
	rows := make([][]float64, o.Samples)
	labels := make([]string, o.Samples)
	classes := make([]string, o.Samples)
	for i := range rows {
		shifted := make([]Peak, len(o.Peaks))
		for k, p := range o.Peaks {
			p.Centre += float64(i) * o.Shift
			shifted[k] = p
		}
		row := Lorentzian(ppm, shifted...)
		floats.Scale(1+float64(i)*o.Scale, row)
		if o.Baseline != 0 {
			for j := range row {
				row[j] += o.Baseline * float64(j) / float64(o.Points-1)
			}
		}
		rows[i] = row
		labels[i] = string(rune('A' + i%26))
		if i%2 == 0 {
			classes[i] = "control"
		} else {
			classes[i] = "treated"
		}
	}
	ds, err := spectra.New(ppm, rows, labels, classes)
	if err != nil {
		tb.Fatalf("building synthetic dataset: %v", err)
	}
	return ds
}

// AssertFinite fails the test if m holds any NaN or infinite value.
func AssertFinite(tb testing.TB, m mat.Matrix) {
	tb.Helper()
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if v := m.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				tb.Fatalf("non-finite value %v at (%d, %d)", v, i, j)
			}
		}
	}
}

// ArgMax returns the index of the largest value in row.
func ArgMax(row []float64) int {
	return floats.MaxIdx(row)
}
