package spectra

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func smallDataset(t *testing.T) *Dataset {
	t.Helper()
	ds, err := New(
		[]float64{4, 3, 2, 1},
		[][]float64{
			{1, 2, 3, 4},
			{2, 3, 4, 5},
			{3, 4, 5, 6},
		},
		[]string{"s1", "s2", "s3"},
		nil,
	)
	require.NoError(t, err)
	return ds
}

func TestNew(t *testing.T) {
	t.Parallel()

	ds := smallDataset(t)
	assert.Equal(t, 3, ds.Samples())
	assert.Equal(t, 4, ds.Points())
	assert.Equal(t, []string{"", "", ""}, ds.Classes)
	assert.Equal(t, []float64{0, 0, 0}, ds.Outliers)

	t.Run("ragged rows", func(t *testing.T) {
		_, err := New([]float64{1, 2}, [][]float64{{1, 2}, {1}}, nil, nil)
		assert.ErrorIs(t, err, ErrShape)
	})
	t.Run("empty", func(t *testing.T) {
		_, err := New(nil, nil, nil, nil)
		assert.ErrorIs(t, err, ErrShape)
	})
}

func TestValidate(t *testing.T) {
	t.Parallel()

	ds := smallDataset(t)
	ds.Labels = ds.Labels[:2]
	assert.ErrorIs(t, ds.Validate(), ErrShape)

	ds = smallDataset(t)
	ds.Imag = mat.NewDense(2, 4, nil)
	assert.ErrorIs(t, ds.Validate(), ErrShape)

	var nilDS *Dataset
	assert.ErrorIs(t, nilDS.Validate(), ErrShape)
}

func TestClone_Independent(t *testing.T) {
	t.Parallel()

	ds := smallDataset(t)
	ds.Metadata["sample"] = "urine"
	ds.Imag = mat.NewDense(3, 4, nil)
	cp := ds.Clone()

	if diff := cmp.Diff(ds.PPM, cp.PPM); diff != "" {
		t.Fatalf("ppm mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, mat.Equal(ds.Data, cp.Data))

	cp.Data.Set(0, 0, 99)
	cp.PPM[0] = 99
	cp.Labels[0] = "changed"
	cp.Metadata["sample"] = "plasma"
	cp.Imag.Set(0, 0, 1)

	assert.Equal(t, 1.0, ds.Data.At(0, 0))
	assert.Equal(t, 4.0, ds.PPM[0])
	assert.Equal(t, "s1", ds.Labels[0])
	assert.Equal(t, "urine", ds.Metadata["sample"])
	assert.Equal(t, 0.0, ds.Imag.At(0, 0))
}

func TestReplace(t *testing.T) {
	t.Parallel()

	ds := smallDataset(t)
	ds.Imag = mat.NewDense(3, 4, nil)
	require.NoError(t, ds.Replace([]float64{3, 1}, mat.NewDense(3, 2, nil)))
	assert.Equal(t, 2, ds.Points())
	assert.Nil(t, ds.Imag)
	require.NoError(t, ds.Validate())

	assert.ErrorIs(t, ds.Replace([]float64{1}, mat.NewDense(2, 1, nil)), ErrShape)
}

func TestMeanAndLimits(t *testing.T) {
	t.Parallel()

	ds := smallDataset(t)
	assert.Equal(t, []float64{2, 3, 4, 5}, ds.Mean())

	lo, hi := ds.XLim()
	assert.InDelta(t, 0.6, lo, 1e-12)
	assert.InDelta(t, 4.4, hi, 1e-12)

	lo, hi = ds.YLim()
	assert.InDelta(t, 0.4, lo, 1e-12)
	assert.InDelta(t, 6.6, hi, 1e-12)

	assert.True(t, ds.Descending())
}

func TestLocateNearest(t *testing.T) {
	t.Parallel()

	axis := []float64{4, 3, 2, 1}
	assert.Equal(t, 0, LocateNearest(axis, 10))
	assert.Equal(t, 3, LocateNearest(axis, -10))
	assert.Equal(t, 1, LocateNearest(axis, 2.9))
	// Equidistant values resolve to the lowest index.
	assert.Equal(t, 1, LocateNearest(axis, 2.5))
}

func TestCleanNonFinite(t *testing.T) {
	t.Parallel()

	m := mat.NewDense(2, 2, []float64{math.NaN(), 1, math.Inf(1), math.Inf(-1)})
	CleanNonFinite(m)
	assert.Equal(t, []float64{0, 1, 0, 0}, m.RawMatrix().Data)
}
