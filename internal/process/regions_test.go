package process

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/nmrbrew/internal/testutil"
)

// tenPPM has a 0.01 ppm step from 10 down to 0.
var tenPPM = testutil.Options{Samples: 3, Points: 1001, Hi: 10, Lo: 0}

func TestExcludeWater(t *testing.T) {
	ds := testutil.SyntheticDataset(t, tenPPM)
	res, err := ExcludeRegions(ds, ExcludeOptions{Regions: []Region{{Label: "Water", Start: 4.5, End: 5.0}}}, nil)
	require.NoError(t, err)

	out := res.Dataset
	require.NoError(t, out.Validate())
	assert.Equal(t, 51, res.Artifacts["removed"])
	assert.Equal(t, 950, out.Points())
	for _, x := range out.PPM {
		if x >= 4.5-1e-9 && x <= 5.0+1e-9 {
			t.Fatalf("ppm %v inside the excluded region survived", x)
		}
	}
	assert.Equal(t, []string{"A", "B", "C"}, out.Labels)
}

func TestExcludeOutsideExtentIsNoop(t *testing.T) {
	ds := testutil.SyntheticDataset(t, tenPPM)
	before := ds.Clone()
	res, err := ExcludeRegions(ds, ExcludeOptions{Regions: []Region{{Label: "Far", Start: 20, End: 30}}}, nil)
	require.NoError(t, err)
	assert.Equal(t, before.PPM, res.Dataset.PPM)
	assert.Equal(t, 0, res.Artifacts["removed"])
	assert.Empty(t, res.Artifacts["regions"])
}

func TestExcludeClampsPartialOverlap(t *testing.T) {
	ds := testutil.SyntheticDataset(t, tenPPM)
	res, err := ExcludeRegions(ds, ExcludeOptions{Regions: []Region{{Label: "Top", Start: 12, End: 9.5}}}, nil)
	require.NoError(t, err)
	assert.Equal(t, 51, res.Artifacts["removed"])
	resolved := res.Artifacts["regions"].([]Region)
	require.Len(t, resolved, 1)
	assert.Equal(t, Region{Label: "Top", Start: 9.5, End: 10}, resolved[0])
}

func TestExcludeDefaults(t *testing.T) {
	ds := testutil.SyntheticDataset(t, tenPPM)
	res, err := ExcludeRegions(ds, *DefaultExcludeOptions(), nil)
	require.NoError(t, err)
	// TMSP clamps to [0, 0.2], water spans 51 points and Far touches 10.
	assert.Equal(t, 21+51+1, res.Artifacts["removed"])
	assert.Equal(t, 1001-73, res.Dataset.Points())
}

func TestExcludeEverything(t *testing.T) {
	ds := testutil.SyntheticDataset(t, tenPPM)
	_, err := ExcludeRegions(ds, ExcludeOptions{Regions: []Region{{Label: "All", Start: -1, End: 11}}}, nil)
	assert.ErrorIs(t, err, ErrEverythingExcluded)
}

func TestRegionJSON(t *testing.T) {
	raw, err := json.Marshal(DefaultExcludeOptions())
	require.NoError(t, err)
	assert.Contains(t, string(raw), `["Water",4.5,5]`)

	var o ExcludeOptions
	require.NoError(t, json.Unmarshal([]byte(`{"selected_data_regions": [["Citrate", 2.5, 2.7]]}`), &o))
	assert.Equal(t, []Region{{Label: "Citrate", Start: 2.5, End: 2.7}}, o.Regions)

	assert.Error(t, json.Unmarshal([]byte(`{"selected_data_regions": [["Citrate", 2.5]]}`), &o))
	assert.Error(t, json.Unmarshal([]byte(`{"selected_data_regions": [[1, 2.5, 2.7]]}`), &o))
}
