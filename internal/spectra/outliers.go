package spectra

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// DefaultOutlierThreshold is the number of standard deviations a point may
// sit from the cross-sample mean before it counts as an outlier point.
const DefaultOutlierThreshold = 2.0

// OutlierScores returns, for each sample, the fraction of its points lying
// more than m population standard deviations from the cross-sample mean at
// that point. A point exactly m deviations away is an inlier, so constant
// columns never count against any sample.
func OutlierScores(d *Dataset, m float64) []float64 {
	r, c := d.Data.Dims()
	counts := make([]int, r)
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		columnInto(d, j, col)
		mean, std := stat.PopMeanStdDev(col, nil)
		// Rounding in the mean must not turn a constant column into outliers.
		limit := m*std + 1e-12*math.Max(1, math.Abs(mean))
		for i, v := range col {
			if math.Abs(v-mean) > limit || math.IsNaN(v) {
				counts[i]++
			}
		}
	}
	scores := make([]float64, r)
	for i, n := range counts {
		scores[i] = float64(n) / float64(c)
	}
	return scores
}

func columnInto(d *Dataset, j int, dst []float64) {
	for i := range dst {
		dst[i] = d.Data.At(i, j)
	}
}

// AnnotateOutliers recomputes the per-sample outlier scores in place. It is
// applied to every stage result before it is cached; the scores depend only
// on the intensities, so repeated application is idempotent.
func AnnotateOutliers(d *Dataset, m float64) *Dataset {
	if d == nil || d.Data == nil {
		return d
	}
	if m <= 0 {
		m = DefaultOutlierThreshold
	}
	d.Outliers = OutlierScores(d, m)
	return d
}
