package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/nmrbrew/internal/config"
	"github.com/banshee-data/nmrbrew/internal/spectra"
)

type fakeOptions struct {
	config.Common
	Gain  float64 `json:"gain"`
	Fail  bool    `json:"fail"`
	Panic bool    `json:"panic"`
}

func (o *fakeOptions) Validate() error {
	if o.Gain < 0 {
		return errors.New("gain must not be negative")
	}
	return nil
}

// fakeAlg multiplies its input by gain. As a source it emits a fixed
// 3 × 4 dataset.
type fakeAlg struct {
	key  string
	caps Capabilities
	gate chan struct{}
	runs atomic.Int32
}

func source(key string) *fakeAlg {
	return &fakeAlg{key: key, caps: Capabilities{ManualRunnable: true, Source: true}}
}

func processor(key string) *fakeAlg {
	return &fakeAlg{key: key, caps: StandardCapabilities}
}

func (f *fakeAlg) Key() string                { return f.key }
func (f *fakeAlg) Name() string               { return "fake " + f.key }
func (f *fakeAlg) Capabilities() Capabilities { return f.caps }
func (f *fakeAlg) NewOptions() config.Options { return &fakeOptions{} }
func (f *fakeAlg) DefaultOptions() config.Options {
	return &fakeOptions{Common: config.DefaultCommon(), Gain: 2}
}

func (f *fakeAlg) Run(_ context.Context, in *spectra.Dataset, opts config.Options, progress spectra.ProgressFunc) (*spectra.Result, error) {
	f.runs.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	o := opts.(*fakeOptions)
	progress(0.5)
	if o.Fail {
		return nil, errors.New("configured to fail")
	}
	if o.Panic {
		panic("configured to panic")
	}
	if in == nil {
		var err error
		in, err = spectra.New([]float64{3, 2, 1, 0}, [][]float64{
			{1, 2, 3, 4},
			{1, 2, 3, 5},
			{1, 2, 3, 40},
		}, []string{"a", "b", "c"}, nil)
		if err != nil {
			return nil, err
		}
	}
	in.Data.Scale(o.Gain, in.Data)
	return spectra.NewResult(in), nil
}

type recorder struct {
	mu       sync.Mutex
	events   []Event
	progress map[string][]float64
}

func newRecorder() *recorder {
	return &recorder{progress: map[string][]float64{}}
}

func (r *recorder) StageStatusChanged(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) StageProgress(stage string, p float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress[stage] = append(r.progress[stage], p)
}

func (r *recorder) transitions(stage string) []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Status
	for _, e := range r.events {
		if e.Stage == stage {
			out = append(out, e.To)
		}
	}
	return out
}
