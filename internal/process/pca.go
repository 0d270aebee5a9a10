package process

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/nmrbrew/internal/config"
	"github.com/banshee-data/nmrbrew/internal/spectra"
)

// pcaComponents is fixed for 2D score plots.
const pcaComponents = 2

// PCAOptions configure the projection. It has no parameters of its own.
type PCAOptions struct {
	config.Common
}

// DefaultPCAOptions returns the shared defaults.
func DefaultPCAOptions() *PCAOptions {
	return &PCAOptions{Common: config.DefaultCommon()}
}

// Validate always succeeds.
func (o *PCAOptions) Validate() error { return nil }

// PCAResult holds the two-component projection.
type PCAResult struct {
	// Scores is samples × 2.
	Scores *mat.Dense
	// Weights is 2 × variables.
	Weights *mat.Dense
	// Variances are the variances along each component.
	Variances []float64
}

// ProjectPCA fits two principal components to the samples × variables
// matrix and projects the same matrix onto them. The dataset passes
// through unchanged. Degenerate input yields zero scores.
func ProjectPCA(ds *spectra.Dataset, _ PCAOptions, progress spectra.ProgressFunc) (*spectra.Result, error) {
	ds.DiscardImaginary()
	n, p := ds.Samples(), ds.Points()
	out := PCAResult{
		Scores:    mat.NewDense(n, pcaComponents, nil),
		Weights:   mat.NewDense(pcaComponents, p, nil),
		Variances: make([]float64, pcaComponents),
	}

	var pc stat.PC
	if n < 2 || !pc.PrincipalComponents(ds.Data, nil) {
		opsf("pca: decomposition failed for %dx%d matrix, scores left at zero", n, p)
		report(progress, 1, 1)
		return spectra.NewResult(ds).With("pca", out), nil
	}
	report(progress, 1, 2)

	var vecs mat.Dense
	pc.VectorsTo(&vecs)
	vars := pc.VarsTo(nil)
	_, k := vecs.Dims()
	k = min(k, pcaComponents)
	copy(out.Variances, vars[:k])

	centred := mat.DenseCopyOf(ds.Data)
	col := make([]float64, n)
	for j := 0; j < p; j++ {
		mat.Col(col, j, centred)
		mean := stat.Mean(col, nil)
		for i := range col {
			col[i] -= mean
		}
		centred.SetCol(j, col)
	}
	for c := 0; c < k; c++ {
		w := mat.Col(nil, c, &vecs)
		out.Weights.SetRow(c, w)
		var scores mat.VecDense
		scores.MulVec(centred, mat.NewVecDense(p, w))
		out.Scores.SetCol(c, scores.RawVector().Data)
	}
	report(progress, 2, 2)
	return spectra.NewResult(ds).
		With("pca", out).
		With("scores", out.Scores).
		With("weights", out.Weights).
		With("variances", out.Variances), nil
}
