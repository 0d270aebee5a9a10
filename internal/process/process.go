// Package process implements the numeric stage algorithms. Each algorithm is
// a plain function taking a dataset it may modify, a typed options record and
// a progress callback. The Tool adapters in tools.go expose them to the
// pipeline under stable identity keys.
package process

import (
	"fmt"
	"math"
	"sort"

	"github.com/banshee-data/nmrbrew/internal/spectra"
)

// report forwards progress as done/total, tolerating a nil callback.
func report(progress spectra.ProgressFunc, done, total int) {
	if progress == nil {
		return
	}
	if total <= 0 {
		progress(1)
		return
	}
	progress(math.Min(1, float64(done)/float64(total)))
}

// median returns the median of xs, averaging the middle pair for even
// lengths. xs is not modified. NaN for an empty slice.
func median(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	s := append([]float64(nil), xs...)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return (s[mid-1] + s[mid]) / 2
}

// finite returns the finite values of xs.
func finite(xs []float64) []float64 {
	out := make([]float64, 0, len(xs))
	for _, v := range xs {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}

// convolveSame returns the central len(x) points of the full discrete
// convolution of x and k.
func convolveSame(x, k []float64) []float64 {
	n, m := len(x), len(k)
	out := make([]float64, n)
	off := (m - 1) / 2
	for i := range out {
		full := i + off
		var sum float64
		lo := max(0, full-m+1)
		hi := min(n-1, full)
		for j := lo; j <= hi; j++ {
			sum += x[j] * k[full-j]
		}
		out[i] = sum
	}
	return out
}

// indexBand locates the nearest indices of two ppm bounds and returns them
// ordered.
func indexBand(ppm []float64, a, b float64) (lo, hi int) {
	lo, hi = spectra.LocateNearest(ppm, a), spectra.LocateNearest(ppm, b)
	if lo > hi {
		lo, hi = hi, lo
	}
	return lo, hi
}

func oneOf(field, got string, allowed ...string) error {
	for _, a := range allowed {
		if got == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %q, got %q", field, allowed, got)
}
