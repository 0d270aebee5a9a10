// Package spectra defines the Dataset value that flows between pipeline
// stages: a chemical-shift axis, a samples × points intensity matrix and the
// per-sample annotations that travel with it.
package spectra

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ErrShape is returned when a dataset violates its dimensional invariant.
var ErrShape = errors.New("spectra: inconsistent dataset shape")

// Dataset holds a set of 1D spectra sharing a ppm axis.
//
// Invariant: len(PPM) == columns of Data, and Labels, Classes and Outliers
// all have one entry per row of Data. Imag, when present, has the same
// shape as Data.
type Dataset struct {
	PPM  []float64
	Data *mat.Dense
	// Imag is the imaginary part of complex spectra. It is nil for real data
	// and is discarded by every stage that works on real intensities.
	Imag *mat.Dense

	Labels   []string
	Classes  []string
	Outliers []float64
	Metadata map[string]string
}

// New builds a dataset from row-major intensities. Labels and classes may be
// nil, in which case they are filled with empty strings.
func New(ppm []float64, rows [][]float64, labels, classes []string) (*Dataset, error) {
	if len(rows) == 0 || len(ppm) == 0 {
		return nil, fmt.Errorf("%w: dataset needs at least one sample and one point", ErrShape)
	}
	data := mat.NewDense(len(rows), len(ppm), nil)
	for i, r := range rows {
		if len(r) != len(ppm) {
			return nil, fmt.Errorf("%w: row %d has %d points, ppm axis has %d", ErrShape, i, len(r), len(ppm))
		}
		data.SetRow(i, r)
	}
	ds := &Dataset{
		PPM:      append([]float64(nil), ppm...),
		Data:     data,
		Labels:   fill(labels, len(rows)),
		Classes:  fill(classes, len(rows)),
		Outliers: make([]float64, len(rows)),
		Metadata: map[string]string{},
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	return ds, nil
}

func fill(vals []string, n int) []string {
	out := make([]string, n)
	copy(out, vals)
	return out
}

// Samples returns the number of spectra (rows).
func (d *Dataset) Samples() int {
	r, _ := d.Data.Dims()
	return r
}

// Points returns the number of frequency points (columns).
func (d *Dataset) Points() int {
	_, c := d.Data.Dims()
	return c
}

// Row returns a view of sample i. Writes through the slice modify the dataset.
func (d *Dataset) Row(i int) []float64 {
	return d.Data.RawRowView(i)
}

// Validate checks the dimensional invariant.
func (d *Dataset) Validate() error {
	if d == nil || d.Data == nil {
		return fmt.Errorf("%w: no data", ErrShape)
	}
	r, c := d.Data.Dims()
	if len(d.PPM) != c {
		return fmt.Errorf("%w: %d ppm values for %d points", ErrShape, len(d.PPM), c)
	}
	if len(d.Labels) != r || len(d.Classes) != r || len(d.Outliers) != r {
		return fmt.Errorf("%w: %d samples but %d labels, %d classes, %d outlier scores",
			ErrShape, r, len(d.Labels), len(d.Classes), len(d.Outliers))
	}
	if d.Imag != nil {
		ir, ic := d.Imag.Dims()
		if ir != r || ic != c {
			return fmt.Errorf("%w: imaginary part is %dx%d, real part %dx%d", ErrShape, ir, ic, r, c)
		}
	}
	return nil
}

// Clone returns a deep, independent copy.
func (d *Dataset) Clone() *Dataset {
	if d == nil {
		return nil
	}
	out := &Dataset{
		PPM:      append([]float64(nil), d.PPM...),
		Data:     mat.DenseCopyOf(d.Data),
		Labels:   append([]string(nil), d.Labels...),
		Classes:  append([]string(nil), d.Classes...),
		Outliers: append([]float64(nil), d.Outliers...),
		Metadata: make(map[string]string, len(d.Metadata)),
	}
	if d.Imag != nil {
		out.Imag = mat.DenseCopyOf(d.Imag)
	}
	for k, v := range d.Metadata {
		out.Metadata[k] = v
	}
	return out
}

// DiscardImaginary drops the imaginary part, keeping real intensities.
func (d *Dataset) DiscardImaginary() {
	d.Imag = nil
}

// Replace swaps in a new ppm axis and intensity matrix with a different
// number of points. Sample annotations are untouched; the imaginary part is
// discarded.
func (d *Dataset) Replace(ppm []float64, data *mat.Dense) error {
	r, c := data.Dims()
	if r != d.Samples() || c != len(ppm) {
		return fmt.Errorf("%w: replacement is %dx%d with %d ppm values, want %d rows",
			ErrShape, r, c, len(ppm), d.Samples())
	}
	d.PPM = ppm
	d.Data = data
	d.Imag = nil
	return nil
}

// Mean returns the mean spectrum across samples.
func (d *Dataset) Mean() []float64 {
	r, c := d.Data.Dims()
	mean := make([]float64, c)
	for i := 0; i < r; i++ {
		floats.Add(mean, d.Data.RawRowView(i))
	}
	floats.Scale(1/float64(r), mean)
	return mean
}

// XLim returns the ppm extent padded by 10% of its largest magnitude.
func (d *Dataset) XLim() (lo, hi float64) {
	return fuzz(floats.Min(d.PPM), floats.Max(d.PPM))
}

// YLim returns the intensity extent padded by 10% of its largest magnitude.
func (d *Dataset) YLim() (lo, hi float64) {
	return fuzz(mat.Min(d.Data), mat.Max(d.Data))
}

func fuzz(lo, hi float64) (float64, float64) {
	f := math.Max(math.Abs(lo), math.Abs(hi)) * 0.1
	return lo - f, hi + f
}

// Descending reports whether the ppm axis runs high to low.
func (d *Dataset) Descending() bool {
	return len(d.PPM) > 1 && d.PPM[0] > d.PPM[len(d.PPM)-1]
}

// LocateNearest returns the index of the axis value closest to v. Ties
// resolve to the lowest index.
func LocateNearest(axis []float64, v float64) int {
	best, bestDist := 0, math.Inf(1)
	for i, x := range axis {
		if dist := math.Abs(x - v); dist < bestDist {
			best, bestDist = i, dist
		}
	}
	return best
}

// CleanNonFinite zeroes NaN and ±Inf entries in m.
func CleanNonFinite(m *mat.Dense) {
	r, _ := m.Dims()
	for i := 0; i < r; i++ {
		row := m.RawRowView(i)
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				row[j] = 0
			}
		}
	}
}
