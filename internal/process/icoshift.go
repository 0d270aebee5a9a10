package process

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/nmrbrew/internal/config"
	"github.com/banshee-data/nmrbrew/internal/spectra"
)

// Correlation shifting targets.
const (
	TargetAverage       = "average"
	TargetMedian        = "median"
	TargetMax           = "max"
	TargetAverage2      = "average2"
	TargetSpectraNumber = "spectra_number"
)

// Interval modes.
const (
	IntervalsWhole    = "whole"
	IntervalsNumber   = "number_of_intervals"
	IntervalsLength   = "length_of_intervals"
	IntervalsSelected = "selected_intervals"
)

// Maximum shift modes: a fixed number of points, the best of a range of
// allowances, or a fast fraction of the interval length.
const (
	MaxShiftFixed = "n"
	MaxShiftBest  = "b"
	MaxShiftFast  = "f"
)

// IcoshiftOptions configure interval correlation shifting.
type IcoshiftOptions struct {
	config.Common
	Target                       string   `json:"target"`
	Intervals                    string   `json:"intervals"`
	MaximumShift                 string   `json:"maximum_shift"`
	MaximumShiftN                int      `json:"maximum_shift_n"`
	CoshiftPreprocessing         bool     `json:"coshift_preprocessing"`
	CoshiftPreprocessingMaxShift *int     `json:"coshift_preprocessing_max_shift"`
	Average2Multiplier           int      `json:"average2_multiplier"`
	NumberOfIntervals            int      `json:"number_of_intervals"`
	LengthOfIntervals            int      `json:"length_of_intervals"`
	FillWithPrevious             bool     `json:"fill_with_previous"`
	SpectraNumber                int      `json:"spectra_number"`
	SelectedDataRegions          []Region `json:"selected_data_regions"`
}

// DefaultIcoshiftOptions aligns whole spectra to the average.
func DefaultIcoshiftOptions() *IcoshiftOptions {
	return &IcoshiftOptions{
		Common:             config.DefaultCommon(),
		Target:             TargetAverage,
		Intervals:          IntervalsWhole,
		MaximumShift:       MaxShiftFast,
		MaximumShiftN:      50,
		Average2Multiplier: 3,
		NumberOfIntervals:  50,
		LengthOfIntervals:  100,
		FillWithPrevious:   true,
	}
}

// Validate checks modes and counts.
func (o *IcoshiftOptions) Validate() error {
	if err := oneOf("target", o.Target, TargetAverage, TargetMedian, TargetMax, TargetAverage2, TargetSpectraNumber); err != nil {
		return err
	}
	if err := oneOf("intervals", o.Intervals, IntervalsWhole, IntervalsNumber, IntervalsLength, IntervalsSelected); err != nil {
		return err
	}
	if err := oneOf("maximum_shift", o.MaximumShift, MaxShiftFixed, MaxShiftBest, MaxShiftFast); err != nil {
		return err
	}
	switch {
	case o.MaximumShiftN < 0:
		return fmt.Errorf("maximum_shift_n must be non-negative, got %d", o.MaximumShiftN)
	case o.NumberOfIntervals < 1:
		return fmt.Errorf("number_of_intervals must be at least 1, got %d", o.NumberOfIntervals)
	case o.LengthOfIntervals < 1:
		return fmt.Errorf("length_of_intervals must be at least 1, got %d", o.LengthOfIntervals)
	case o.Average2Multiplier < 1:
		return fmt.Errorf("average2_multiplier must be at least 1, got %d", o.Average2Multiplier)
	case o.SpectraNumber < 0:
		return fmt.Errorf("spectra_number must be non-negative, got %d", o.SpectraNumber)
	case o.CoshiftPreprocessingMaxShift != nil && *o.CoshiftPreprocessingMaxShift < 0:
		return fmt.Errorf("coshift_preprocessing_max_shift must be non-negative, got %d", *o.CoshiftPreprocessingMaxShift)
	}
	return nil
}

// Interval is a half-open column range [Start, End).
type Interval struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

func (iv Interval) len() int { return iv.End - iv.Start }

func resolveIntervals(ppm []float64, o IcoshiftOptions) []Interval {
	pts := len(ppm)
	switch o.Intervals {
	case IntervalsNumber:
		k := min(o.NumberOfIntervals, pts)
		out := make([]Interval, k)
		for i := range out {
			out[i] = Interval{Start: i * pts / k, End: (i + 1) * pts / k}
		}
		return out
	case IntervalsLength:
		var out []Interval
		for a := 0; a < pts; a += o.LengthOfIntervals {
			out = append(out, Interval{Start: a, End: min(pts, a+o.LengthOfIntervals)})
		}
		return out
	case IntervalsSelected:
		var out []Interval
		for _, r := range o.SelectedDataRegions {
			lo, hi := indexBand(ppm, r.Start, r.End)
			out = append(out, Interval{Start: lo, End: hi + 1})
		}
		if len(out) > 0 {
			return out
		}
	}
	return []Interval{{Start: 0, End: pts}}
}

// fastShift is the 'f' allowance: 5% of the interval, at least one point.
func fastShift(length int) int {
	return max(1, length*5/100)
}

// buildTarget derives the reference spectrum from the current data.
func buildTarget(data *mat.Dense, target string, number int) ([]float64, error) {
	n, pts := data.Dims()
	out := make([]float64, pts)
	col := make([]float64, n)
	switch target {
	case TargetSpectraNumber:
		if number >= n {
			return nil, fmt.Errorf("spectra_number %d out of range for %d samples", number, n)
		}
		copy(out, data.RawRowView(number))
		return out, nil
	case TargetMedian:
		for j := range out {
			mat.Col(col, j, data)
			out[j] = median(col)
		}
	case TargetMax:
		for j := range out {
			mat.Col(col, j, data)
			out[j] = floats.Max(col)
		}
	default:
		for j := range out {
			mat.Col(col, j, data)
			out[j] = stat.Mean(col, nil)
		}
	}
	return out, nil
}

// correlator finds the lag maximising the cross-correlation of a segment
// with a target segment using zero-padded real FFTs.
type correlator struct {
	fft       *fourier.FFT
	size      int
	buf       []float64
	targetFFT []complex128
	segFFT    []complex128
	prod      []complex128
	corr      []float64
}

func newCorrelator(target []float64) *correlator {
	size := 1
	for size < 2*len(target) {
		size <<= 1
	}
	c := &correlator{fft: fourier.NewFFT(size), size: size, buf: make([]float64, size)}
	copy(c.buf, target)
	c.targetFFT = c.fft.Coefficients(nil, c.buf)
	c.segFFT = make([]complex128, len(c.targetFFT))
	c.prod = make([]complex128, len(c.targetFFT))
	c.corr = make([]float64, size)
	return c
}

// bestLag returns k in [-limit, limit] maximising Σ target[i]·seg[i-k].
// Ties go to the smallest |k|, preferring positive.
func (c *correlator) bestLag(seg []float64, limit int) int {
	clear(c.buf)
	copy(c.buf, seg)
	c.fft.Coefficients(c.segFFT, c.buf)
	for k := range c.prod {
		c.prod[k] = c.targetFFT[k] * cmplx.Conj(c.segFFT[k])
	}
	c.fft.Sequence(c.corr, c.prod)

	best, bestVal := 0, c.corr[0]
	for k := 1; k <= limit; k++ {
		if v := c.corr[k]; v > bestVal {
			best, bestVal = k, v
		}
		if v := c.corr[c.size-k]; v > bestVal {
			best, bestVal = -k, v
		}
	}
	return best
}

// shiftSegment writes seg moved by k points into dst. Vacated points take
// the nearest edge value when fill is set, zero otherwise.
func shiftSegment(dst, seg []float64, k int, fill bool) {
	n := len(seg)
	for i := range dst {
		src := i - k
		switch {
		case src >= 0 && src < n:
			dst[i] = seg[src]
		case !fill:
			dst[i] = 0
		case src < 0:
			dst[i] = seg[0]
		default:
			dst[i] = seg[n-1]
		}
	}
}

// alignInterval shifts every row's segment within iv towards target,
// bounded by limit, and returns the applied shifts and the mean correlation
// of the aligned segments with the target.
func alignInterval(data *mat.Dense, target []float64, iv Interval, limit int, fill bool) ([]int, float64) {
	n, _ := data.Dims()
	shifts := make([]int, n)
	if iv.len() < 2 {
		return shifts, 0
	}
	limit = min(limit, iv.len()-1)
	tseg := target[iv.Start:iv.End]
	c := newCorrelator(tseg)
	seg := make([]float64, iv.len())
	var corrSum float64
	for i := 0; i < n; i++ {
		row := data.RawRowView(i)[iv.Start:iv.End]
		copy(seg, row)
		shifts[i] = c.bestLag(seg, max(limit, 0))
		shiftSegment(row, seg, shifts[i], fill)
		if r := stat.Correlation(row, tseg, nil); !math.IsNaN(r) {
			corrSum += r
		}
	}
	return shifts, corrSum / float64(n)
}

// alignIntervalBest tries allowances of 5% to 50% of the interval and keeps
// the one giving the highest mean correlation.
func alignIntervalBest(data *mat.Dense, target []float64, iv Interval, fill bool) []int {
	var bestShifts []int
	var bestData *mat.Dense
	bestCorr := -2.0
	for pc := 5; pc <= 50; pc += 5 {
		trial := mat.DenseCopyOf(data)
		shifts, corr := alignInterval(trial, target, iv, max(1, iv.len()*pc/100), fill)
		if corr > bestCorr {
			bestCorr, bestShifts, bestData = corr, shifts, trial
		}
	}
	data.Copy(bestData)
	return bestShifts
}

func icoshiftPass(data *mat.Dense, target []float64, ivs []Interval, o IcoshiftOptions, progress func(done int)) [][]int {
	n, _ := data.Dims()
	shifts := make([][]int, n)
	for i := range shifts {
		shifts[i] = make([]int, len(ivs))
	}
	for v, iv := range ivs {
		var s []int
		switch o.MaximumShift {
		case MaxShiftBest:
			s = alignIntervalBest(data, target, iv, o.FillWithPrevious)
		case MaxShiftFixed:
			s, _ = alignInterval(data, target, iv, o.MaximumShiftN, o.FillWithPrevious)
		default:
			s, _ = alignInterval(data, target, iv, fastShift(iv.len()), o.FillWithPrevious)
		}
		for i := range s {
			shifts[i][v] = s[i]
		}
		if progress != nil {
			progress(v + 1)
		}
	}
	return shifts
}

// Icoshift aligns samples to a target spectrum interval by interval, moving
// each interval by the lag of maximum cross-correlation within the allowed
// shift. With co-shift preprocessing the whole spectra are first aligned to
// the target. The average2 target is the mean of a first alignment to the
// average made with Average2Multiplier times the shift allowance.
func Icoshift(ds *spectra.Dataset, o IcoshiftOptions, progress spectra.ProgressFunc) (*spectra.Result, error) {
	ds.DiscardImaginary()
	ivs := resolveIntervals(ds.PPM, o)
	whole := Interval{Start: 0, End: ds.Points()}

	if o.CoshiftPreprocessing {
		target, err := buildTarget(ds.Data, o.Target, o.SpectraNumber)
		if err != nil {
			return nil, err
		}
		limit := fastShift(whole.len())
		if o.CoshiftPreprocessingMaxShift != nil {
			limit = *o.CoshiftPreprocessingMaxShift
		}
		alignInterval(ds.Data, target, whole, limit, o.FillWithPrevious)
	}

	var target []float64
	if o.Target == TargetAverage2 {
		avg, _ := buildTarget(ds.Data, TargetAverage, 0)
		first := mat.DenseCopyOf(ds.Data)
		wide := o
		wide.MaximumShift = MaxShiftFixed
		wide.MaximumShiftN = o.Average2Multiplier * max(o.MaximumShiftN, fastShift(whole.len()))
		icoshiftPass(first, avg, ivs, wide, nil)
		target, _ = buildTarget(first, TargetAverage, 0)
	} else {
		var err error
		if target, err = buildTarget(ds.Data, o.Target, o.SpectraNumber); err != nil {
			return nil, err
		}
	}

	shifts := icoshiftPass(ds.Data, target, ivs, o, func(done int) {
		report(progress, done, len(ivs))
	})
	diagf("icoshift: aligned %d samples over %d intervals", ds.Samples(), len(ivs))
	return spectra.NewResult(ds).
		With("target", target).
		With("intervals", ivs).
		With("shifts", shifts), nil
}
