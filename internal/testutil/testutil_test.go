package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAxis(t *testing.T) {
	t.Parallel()

	ppm := Axis(11, 10, 0)
	require.Len(t, ppm, 11)
	assert.Equal(t, 10.0, ppm[0])
	assert.Equal(t, 0.0, ppm[10])
	assert.InDelta(t, 5.0, ppm[5], 1e-12)
}

func TestLorentzian_PeakAtCentre(t *testing.T) {
	t.Parallel()

	ppm := Axis(1001, 10, 0)
	row := Lorentzian(ppm, Peak{Centre: 3.0, Width: 0.01, Height: 7})
	idx := ArgMax(row)
	assert.InDelta(t, 3.0, ppm[idx], 1e-9)
	assert.InDelta(t, 7.0, row[idx], 1e-9)
}

func TestSyntheticDataset(t *testing.T) {
	t.Parallel()

	ds := SyntheticDataset(t, Options{Samples: 4, Points: 2001, Shift: 0.01, Scale: 0.5})
	require.NoError(t, ds.Validate())
	assert.Equal(t, 4, ds.Samples())
	assert.Equal(t, 2001, ds.Points())
	assert.Equal(t, []string{"A", "B", "C", "D"}, ds.Labels)
	assert.Equal(t, []string{"control", "treated", "control", "treated"}, ds.Classes)
	AssertFinite(t, ds.Data)

	// Water dominates; sample i carries it at 4.70 + i*0.01 ppm.
	for i := 0; i < 4; i++ {
		idx := ArgMax(ds.Row(i))
		assert.InDelta(t, 4.70+float64(i)*0.01, ds.PPM[idx], 0.006)
	}
	assert.Greater(t, ds.Data.At(3, ArgMax(ds.Row(3))), ds.Data.At(0, ArgMax(ds.Row(0))))
}
