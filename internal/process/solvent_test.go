package process

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/nmrbrew/internal/spectra"
	"github.com/banshee-data/nmrbrew/internal/testutil"
)

func TestSolventFilterShapes(t *testing.T) {
	for _, alg := range []string{SolventBoxcar, SolventSine, SolventSine2, SolventGaussian} {
		t.Run(alg, func(t *testing.T) {
			k := solventFilter(alg, 8)
			require.Len(t, k, 17)
			for i := range k {
				assert.InDelta(t, k[i], k[len(k)-1-i], 1e-12, "kernel must be symmetric")
			}
			assert.Equal(t, floats.Max(k), k[8], "centre carries the most weight")
			assert.Greater(t, floats.Sum(k), 0.0)
		})
	}
	assert.InDelta(t, 0, solventFilter(SolventSine2, 4)[0], 1e-12)
}

func TestRemoveSolvent(t *testing.T) {
	water := []testutil.Peak{{Centre: 4.70, Width: 0.5, Height: 200}}
	ds := testutil.SyntheticDataset(t, testutil.Options{Samples: 2, Points: 2000, Peaks: water})
	before := ds.Clone()
	o := SolventOptions{Common: *DefaultSolventOptions().Base(), Algorithm: SolventBoxcar, Width: 4, PPMStart: 4.4, PPMEnd: 5.0}

	res, err := RemoveSolvent(ds, o, nil)
	require.NoError(t, err)
	band := res.Artifacts["solvent_band"].([2]int)
	lo, hi := band[0], band[1]
	require.Less(t, lo, hi)

	centre := spectra.LocateNearest(res.Dataset.PPM, 4.70)
	assert.Less(t, math.Abs(res.Dataset.Row(0)[centre]), 1.0, "broad line is flattened at its apex")
	for _, v := range res.Dataset.Row(0)[lo:hi] {
		assert.Less(t, math.Abs(v), 100.0)
	}
	assert.Equal(t, before.Row(1)[:lo], res.Dataset.Row(1)[:lo], "points outside the band are untouched")
	assert.Equal(t, before.Row(1)[hi:], res.Dataset.Row(1)[hi:])
}

func TestRemoveSolventFiltersImaginaryRows(t *testing.T) {
	water := []testutil.Peak{{Centre: 4.70, Width: 0.5, Height: 200}}
	ds := testutil.SyntheticDataset(t, testutil.Options{Samples: 2, Points: 2000, Peaks: water})
	ds.Imag = mat.DenseCopyOf(ds.Data)
	o := SolventOptions{Algorithm: SolventBoxcar, Width: 4, PPMStart: 4.4, PPMEnd: 5.0}

	res, err := RemoveSolvent(ds, o, nil)
	require.NoError(t, err)
	require.NotNil(t, res.Dataset.Imag, "complex spectra stay complex")
	assert.True(t, mat.Equal(res.Dataset.Data, res.Dataset.Imag), "both parts share the band filter")
}

func TestRemoveSolventBoundsEitherOrder(t *testing.T) {
	ds := testutil.SyntheticDataset(t, testutil.Options{Samples: 1, Points: 500})
	a, err := RemoveSolvent(ds.Clone(), SolventOptions{Algorithm: SolventBoxcar, Width: 4, PPMStart: 4.5, PPMEnd: 5}, nil)
	require.NoError(t, err)
	b, err := RemoveSolvent(ds.Clone(), SolventOptions{Algorithm: SolventBoxcar, Width: 4, PPMStart: 5, PPMEnd: 4.5}, nil)
	require.NoError(t, err)
	assert.Equal(t, a.Dataset.Row(0), b.Dataset.Row(0))
}

func TestRemoveSolventEmptyBand(t *testing.T) {
	ds := testutil.SyntheticDataset(t, testutil.Options{Samples: 1, Points: 100})
	before := ds.Clone()
	res, err := RemoveSolvent(ds, SolventOptions{Algorithm: SolventSine, Width: 4, PPMStart: 4.7, PPMEnd: 4.7}, nil)
	require.NoError(t, err)
	assert.Equal(t, before.Row(0), res.Dataset.Row(0))
	assert.Nil(t, res.Artifacts["solvent_band"])
}

func TestSolventValidate(t *testing.T) {
	assert.NoError(t, DefaultSolventOptions().Validate())
	assert.Error(t, (&SolventOptions{Algorithm: "median", Width: 4}).Validate())
	assert.Error(t, (&SolventOptions{Algorithm: SolventBoxcar, Width: 0}).Validate())
}
