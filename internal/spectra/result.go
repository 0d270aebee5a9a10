package spectra

// ProgressFunc receives the fraction of work completed, in [0, 1].
type ProgressFunc func(fraction float64)

// Result is what a stage algorithm returns: the transformed dataset plus
// any auxiliary artifacts (baselines, scores, resolved regions).
type Result struct {
	Dataset   *Dataset
	Artifacts map[string]any
}

// NewResult wraps a dataset with an empty artifact map.
func NewResult(d *Dataset) *Result {
	return &Result{Dataset: d, Artifacts: map[string]any{}}
}

// With records an artifact and returns the result for chaining.
func (r *Result) With(key string, v any) *Result {
	r.Artifacts[key] = v
	return r
}
