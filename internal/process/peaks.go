package process

import (
	"fmt"
	"math"

	"github.com/banshee-data/nmrbrew/internal/config"
	"github.com/banshee-data/nmrbrew/internal/spectra"
)

// CustomPeakTarget marks options whose ppm and tolerance were set by hand.
const CustomPeakTarget = "Custom"

// PeakTarget is a reference peak position with a search tolerance, in ppm.
type PeakTarget struct {
	PPM       float64
	Tolerance float64
}

// PeakTargets are the named reference peaks offered for alignment and
// scaling.
var PeakTargets = map[string]PeakTarget{
	"TMSP":            {PPM: 0.0, Tolerance: 0.25},
	"Creatinine @4.0": {PPM: 4.045, Tolerance: 0.25},
	"Creatinine @3.0": {PPM: 3.030, Tolerance: 0.25},
}

// peakThreshold is the fraction of the in-window maximum a point must exceed
// to belong to the reference peak.
const peakThreshold = 0.9

// PeakOptions configure reference-peak alignment and scaling. PeakTarget is
// a label; PPM and Tolerance are authoritative.
type PeakOptions struct {
	config.Common
	PeakTarget string  `json:"peak_target"`
	PPM        float64 `json:"peak_target_ppm"`
	Tolerance  float64 `json:"peak_target_ppm_tolerance"`
}

// DefaultPeakOptions searches for TMSP at 0 ± 0.5 ppm.
func DefaultPeakOptions() *PeakOptions {
	return &PeakOptions{
		Common:     config.DefaultCommon(),
		PeakTarget: "TMSP",
		PPM:        0.0,
		Tolerance:  0.5,
	}
}

// ApplyPreset copies a named target's position and tolerance into o.
func (o *PeakOptions) ApplyPreset(name string) error {
	t, ok := PeakTargets[name]
	if !ok {
		return fmt.Errorf("unknown peak target %q", name)
	}
	o.PeakTarget = name
	o.PPM, o.Tolerance = t.PPM, t.Tolerance
	return nil
}

// Validate checks the label and tolerance.
func (o *PeakOptions) Validate() error {
	if _, ok := PeakTargets[o.PeakTarget]; !ok && o.PeakTarget != CustomPeakTarget {
		return fmt.Errorf("unknown peak target %q", o.PeakTarget)
	}
	if o.Tolerance < 0 || math.IsNaN(o.Tolerance) {
		return fmt.Errorf("peak_target_ppm_tolerance must be non-negative, got %v", o.Tolerance)
	}
	return nil
}

// PeakLocation is the reference peak found in one sample. Index is into the
// full ppm axis; Found is false when the window held no positive peak.
type PeakLocation struct {
	Found     bool    `json:"found"`
	Index     int     `json:"index"`
	PPM       float64 `json:"ppm"`
	Amplitude float64 `json:"amplitude"`
}

// peakWindow is the search window: indices start, start+dir, ... up to but
// excluding end, plus the window position nearest the target.
type peakWindow struct {
	start, dir, length int
	centre             int
}

func (w peakWindow) index(pos int) int { return w.start + pos*w.dir }

func resolveWindow(ppm []float64, o PeakOptions) peakWindow {
	start := spectra.LocateNearest(ppm, o.PPM-o.Tolerance)
	end := spectra.LocateNearest(ppm, o.PPM+o.Tolerance)
	w := peakWindow{start: start, dir: 1}
	if end < start {
		w.dir = -1
	}
	w.length = (end - start) * w.dir
	best := math.Inf(1)
	for pos := 0; pos < w.length; pos++ {
		if d := math.Abs(ppm[w.index(pos)] - o.PPM); d < best {
			best, w.centre = d, pos
		}
	}
	return w
}

// locatePeaks finds, per sample, the first connected run of window points
// above 90% of the window maximum, and takes its tallest point.
func locatePeaks(ds *spectra.Dataset, w peakWindow) []PeakLocation {
	out := make([]PeakLocation, ds.Samples())
	for i := range out {
		row := ds.Row(i)
		top := math.Inf(-1)
		for pos := 0; pos < w.length; pos++ {
			top = math.Max(top, row[w.index(pos)])
		}
		if w.length == 0 || !(top > 0) {
			continue
		}
		limit := top * peakThreshold
		bestPos, inRun := -1, false
		for pos := 0; pos < w.length; pos++ {
			v := row[w.index(pos)]
			if v > limit {
				inRun = true
				if bestPos < 0 || v > row[w.index(bestPos)] {
					bestPos = pos
				}
			} else if inRun {
				break
			}
		}
		idx := w.index(bestPos)
		out[i] = PeakLocation{Found: true, Index: idx, PPM: ds.PPM[idx], Amplitude: row[idx]}
	}
	return out
}

// shiftRow moves row by shift points (positive moves toward higher indices),
// filling vacated points with zero.
func shiftRow(row []float64, shift int) {
	n := len(row)
	switch {
	case shift == 0:
		return
	case shift >= n || -shift >= n:
		clear(row)
	case shift > 0:
		copy(row[shift:], row[:n-shift])
		clear(row[:shift])
	default:
		copy(row, row[-shift:])
		clear(row[n+shift:])
	}
}

// AlignPeaks shifts each sample so its reference peak sits at the window
// position nearest the target ppm. Samples without a peak are unshifted.
func AlignPeaks(ds *spectra.Dataset, o PeakOptions, progress spectra.ProgressFunc) (*spectra.Result, error) {
	ds.DiscardImaginary()
	w := resolveWindow(ds.PPM, o)
	peaks := locatePeaks(ds, w)
	shifts := make([]int, len(peaks))
	for i, p := range peaks {
		if p.Found {
			shifts[i] = w.index(w.centre) - p.Index
			shiftRow(ds.Row(i), shifts[i])
		} else {
			opsf("peak alignment: no peak near %.3f ppm in sample %q, left unshifted", o.PPM, ds.Labels[i])
		}
		report(progress, i+1, len(peaks))
	}
	return spectra.NewResult(ds).With("peaks", peaks).With("shifts", shifts), nil
}

// ScalePeaks rescales each sample so its reference peak amplitude equals the
// mean amplitude across samples where a peak was found. Samples without a
// peak are unscaled.
func ScalePeaks(ds *spectra.Dataset, o PeakOptions, progress spectra.ProgressFunc) (*spectra.Result, error) {
	ds.DiscardImaginary()
	peaks := locatePeaks(ds, resolveWindow(ds.PPM, o))

	var sum float64
	var found int
	for _, p := range peaks {
		if p.Found {
			sum += p.Amplitude
			found++
		}
	}
	factors := make([]float64, len(peaks))
	for i := range factors {
		factors[i] = 1
	}
	if found == 0 {
		opsf("peak scaling: no peak near %.3f ppm in any sample", o.PPM)
		report(progress, len(peaks), len(peaks))
		return spectra.NewResult(ds).With("peaks", peaks).With("scaling", factors), nil
	}
	mean := sum / float64(found)
	for i, p := range peaks {
		if p.Found {
			factors[i] = mean / p.Amplitude
			row := ds.Row(i)
			for j := range row {
				row[j] *= factors[i]
			}
		}
		report(progress, i+1, len(peaks))
	}
	return spectra.NewResult(ds).With("peaks", peaks).With("scaling", factors), nil
}
