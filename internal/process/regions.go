package process

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/nmrbrew/internal/config"
	"github.com/banshee-data/nmrbrew/internal/spectra"
)

// Region is a labelled ppm range. It is persisted as a [label, start, end]
// triple.
type Region struct {
	Label string
	Start float64
	End   float64
}

// MarshalJSON writes the triple form.
func (r Region) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{r.Label, r.Start, r.End})
}

// UnmarshalJSON reads the triple form.
func (r *Region) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 3 {
		return fmt.Errorf("region must be [label, start, end], got %d elements", len(raw))
	}
	if err := json.Unmarshal(raw[0], &r.Label); err != nil {
		return fmt.Errorf("region label: %w", err)
	}
	if err := json.Unmarshal(raw[1], &r.Start); err != nil {
		return fmt.Errorf("region start: %w", err)
	}
	if err := json.Unmarshal(raw[2], &r.End); err != nil {
		return fmt.Errorf("region end: %w", err)
	}
	return nil
}

// ExcludeOptions configure region exclusion.
type ExcludeOptions struct {
	config.Common
	Regions []Region `json:"selected_data_regions"`
}

// DefaultExcludeOptions removes the reference, water and far-field regions.
func DefaultExcludeOptions() *ExcludeOptions {
	return &ExcludeOptions{
		Common: config.DefaultCommon(),
		Regions: []Region{
			{Label: "TMSP", Start: -2, End: 0.2},
			{Label: "Water", Start: 4.5, End: 5},
			{Label: "Far", Start: 10, End: 12},
		},
	}
}

// Validate checks every region has finite bounds.
func (o *ExcludeOptions) Validate() error {
	for _, r := range o.Regions {
		if math.IsNaN(r.Start) || math.IsNaN(r.End) || math.IsInf(r.Start, 0) || math.IsInf(r.End, 0) {
			return fmt.Errorf("region %q has non-finite bounds", r.Label)
		}
	}
	return nil
}

// ErrEverythingExcluded is returned when the configured regions cover the
// whole ppm axis.
var ErrEverythingExcluded = errors.New("region exclusion would remove every point")

// ExcludeRegions removes the columns covered by each region, together with
// their ppm values. Each region is resolved independently: it is clamped to
// the ppm extent, skipped when it lies wholly outside, and masks every index
// from the nearest index of its lower bound to that of its upper bound.
func ExcludeRegions(ds *spectra.Dataset, o ExcludeOptions, progress spectra.ProgressFunc) (*spectra.Result, error) {
	ds.DiscardImaginary()
	minPPM, maxPPM := floats.Min(ds.PPM), floats.Max(ds.PPM)
	mask := make([]bool, ds.Points())
	var resolved []Region

	for i, r := range o.Regions {
		lo, hi := math.Min(r.Start, r.End), math.Max(r.Start, r.End)
		if hi < minPPM || lo > maxPPM {
			diagf("exclude: region %q (%.3f, %.3f) outside data, skipped", r.Label, lo, hi)
			report(progress, i+1, len(o.Regions))
			continue
		}
		lo, hi = math.Max(lo, minPPM), math.Min(hi, maxPPM)
		a, b := indexBand(ds.PPM, lo, hi)
		for j := a; j <= b; j++ {
			mask[j] = true
		}
		resolved = append(resolved, Region{Label: r.Label, Start: lo, End: hi})
		report(progress, i+1, len(o.Regions))
	}

	var keep []int
	for j, m := range mask {
		if !m {
			keep = append(keep, j)
		}
	}
	if len(keep) == 0 {
		return nil, ErrEverythingExcluded
	}
	if len(keep) < len(mask) {
		ppm := make([]float64, len(keep))
		data := mat.NewDense(ds.Samples(), len(keep), nil)
		for k, j := range keep {
			ppm[k] = ds.PPM[j]
			data.SetCol(k, mat.Col(nil, j, ds.Data))
		}
		if err := ds.Replace(ppm, data); err != nil {
			return nil, err
		}
	}
	report(progress, 1, 1)
	return spectra.NewResult(ds).
		With("regions", resolved).
		With("removed", len(mask)-len(keep)), nil
}
