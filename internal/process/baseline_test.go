package process

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/nmrbrew/internal/spectra"
	"github.com/banshee-data/nmrbrew/internal/testutil"
)

func TestFitALSKeepsLinearData(t *testing.T) {
	y := make([]float64, 40)
	for i := range y {
		y[i] = 3 + 0.5*float64(i)
	}
	z := fitALS(y, 1e5, 0.01, 10)
	assert.InDeltaSlice(t, y, z, 1e-4)
}

func TestFitALSStaysBelowPeaks(t *testing.T) {
	y := make([]float64, 60)
	for i := range y {
		y[i] = 1
	}
	y[30] = 50
	z := fitALS(y, 1e3, 0.01, 10)
	assert.Less(t, z[30], 5.0)
	assert.InDelta(t, 1.0, z[5], 0.5)
}

func TestAlsKnotsSkipWater(t *testing.T) {
	ppm := testutil.Axis(1001, 10, 0)
	o := *DefaultBaselineOptions()
	o.ALSStride = 50
	knots := alsKnots(ppm, o)
	for _, k := range knots {
		assert.Zero(t, k%50)
		if ppm[k] >= 4.5-1e-9 && ppm[k] <= 5+1e-9 {
			t.Errorf("knot %d at %.3f ppm lies in the water band", k, ppm[k])
		}
	}
	// 21 stride points less the two bounding the band.
	assert.Len(t, knots, 19)
}

func TestCorrectBaselineALS(t *testing.T) {
	ds := testutil.SyntheticDataset(t, testutil.Options{
		Samples:  3,
		Points:   2048,
		Peaks:    []testutil.Peak{{Centre: 2, Width: 0.01, Height: 100}},
		Baseline: 50,
	})
	o := *DefaultBaselineOptions()
	// Move the skip band to the axis edge so the knots are evenly spaced.
	o.ALSSkipStart, o.ALSSkipEnd = 20, 21

	res, err := CorrectBaseline(ds, o, nil)
	require.NoError(t, err)

	assert.Equal(t, []int{256, 512, 768, 1024, 1280, 1536, 1792}, res.Artifacts["baseline_point_idx"])
	for i := 0; i < res.Dataset.Samples(); i++ {
		row := res.Dataset.Row(i)
		for j := 400; j < 1400; j++ {
			require.InDelta(t, 0, row[j], 0.2, "sample %d point %d", i, j)
		}
	}
	bl := res.Artifacts["baseline"].(*mat.Dense)
	r, c := bl.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 2048, c)
	assert.Len(t, res.Artifacts["baseline_point_y"], 7)
}

func TestCorrectBaselineConstant(t *testing.T) {
	ppm := testutil.Axis(200, 10, 0)
	row := testutil.Lorentzian(ppm, testutil.Peak{Centre: 2, Width: 0.05, Height: 80})
	for j := range row {
		row[j] += 3
	}

	t.Run("explicit", func(t *testing.T) {
		ds, err := spectra.New(ppm, [][]float64{row}, nil, nil)
		require.NoError(t, err)
		o := *DefaultBaselineOptions()
		o.Algorithm = BaselineCBFExplicit
		o.CBFExplicitStart, o.CBFExplicitEnd = 10, 60
		want := 0.0
		for _, v := range row[10:60] {
			want += v / 50
		}

		res, err := CorrectBaseline(ds, o, nil)
		require.NoError(t, err)
		bl := res.Artifacts["baseline"].(*mat.Dense)
		assert.InDelta(t, want, bl.At(0, 0), 1e-12)
		assert.InDelta(t, row[100]-want, res.Dataset.Row(0)[100], 1e-12)
		assert.Nil(t, res.Artifacts["baseline_point_idx"])
	})

	t.Run("last percent", func(t *testing.T) {
		ds, err := spectra.New(ppm, [][]float64{row}, nil, nil)
		require.NoError(t, err)
		o := *DefaultBaselineOptions()
		o.Algorithm = BaselineCBFPercent

		res, err := CorrectBaseline(ds, o, nil)
		require.NoError(t, err)
		// The last 21 points lie 1 to 2 ppm from the peak, on its tail.
		assert.InDelta(t, 3, res.Artifacts["baseline"].(*mat.Dense).At(0, 0), 0.25)
	})
}

func TestCorrectBaselineMedian(t *testing.T) {
	ppm := testutil.Axis(300, 10, 0)
	row := make([]float64, len(ppm))
	for j := range row {
		row[j] = 7
	}
	ds, err := spectra.New(ppm, [][]float64{row}, nil, nil)
	require.NoError(t, err)
	o := *DefaultBaselineOptions()
	o.Algorithm = BaselineMedian

	res, err := CorrectBaseline(ds, o, nil)
	require.NoError(t, err)
	out := res.Dataset.Row(0)
	for j := 20; j < 280; j++ {
		require.InDelta(t, 0, out[j], 1e-9, "point %d", j)
	}
	testutil.AssertFinite(t, res.Dataset.Data)
}

func TestResample(t *testing.T) {
	ppm := []float64{5, 4, 3, 2, 1, 0}
	assert.Equal(t, make([]float64, 6), resample(ppm, nil, nil))
	assert.Equal(t, []float64{2, 2, 2, 2, 2, 2}, resample(ppm, []int{3}, []float64{2}))

	got := resample(ppm, []int{1, 4}, []float64{10, 40})
	// Linear between the knots, held beyond them.
	assert.InDeltaSlice(t, []float64{10, 10, 20, 30, 40, 40}, got, 1e-12)
	for _, v := range got {
		assert.False(t, math.IsNaN(v))
	}
}

func TestBaselineValidate(t *testing.T) {
	require.NoError(t, DefaultBaselineOptions().Validate())
	tests := map[string]func(*BaselineOptions){
		"algorithm": func(o *BaselineOptions) { o.Algorithm = "polynomial" },
		"als_p":     func(o *BaselineOptions) { o.ALSP = 1 },
		"stride":    func(o *BaselineOptions) { o.ALSStride = 0 },
		"cbf_pc":    func(o *BaselineOptions) { o.CBFLastPC = 101 },
		"explicit":  func(o *BaselineOptions) { o.CBFExplicitEnd = o.CBFExplicitStart },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			o := DefaultBaselineOptions()
			mutate(o)
			assert.Error(t, o.Validate())
		})
	}
}
