package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"runtime/debug"
	"sync"

	"github.com/banshee-data/nmrbrew/internal/config"
	"github.com/banshee-data/nmrbrew/internal/spectra"
)

var (
	// ErrStageBusy is returned when a run is requested while one is in flight.
	ErrStageBusy = errors.New("stage is already running")
	// ErrStageInactive is returned when a disabled stage is asked to run.
	ErrStageInactive = errors.New("stage is inactive")
	// ErrNoInput is returned when no active predecessor has an output.
	ErrNoInput = errors.New("no input from previous stages")
	// ErrNotDisableable is returned when disabling a stage that must stay on.
	ErrNotDisableable = errors.New("stage cannot be disabled")
	// ErrNotRunnable is returned when a stage does not accept run requests.
	ErrNotRunnable = errors.New("stage cannot be run manually")
)

// Stage wraps one Algorithm with its options, lifecycle status, output
// cache and single-flight guard.
type Stage struct {
	alg   Algorithm
	owner *Pipeline
	pool  *Pool
	index int

	mu       sync.Mutex
	status   Status
	progress float64
	running  bool
	opts     config.Options
	backup   config.Options
	output   *spectra.Result
	lastErr  error
}

func newStage(owner *Pipeline, pool *Pool, index int, alg Algorithm) *Stage {
	s := &Stage{
		alg:    alg,
		owner:  owner,
		pool:   pool,
		index:  index,
		status: StatusReady,
		opts:   alg.DefaultOptions(),
	}
	s.backup = s.snapshot(s.opts)
	return s
}

// Key returns the stage identity.
func (s *Stage) Key() string { return s.alg.Key() }

// Name returns the display name.
func (s *Stage) Name() string { return s.alg.Name() }

// Capabilities returns how the stage may be triggered.
func (s *Stage) Capabilities() Capabilities { return s.alg.Capabilities() }

// Index returns the stage position in the pipeline.
func (s *Stage) Index() int { return s.index }

// Status returns the lifecycle status.
func (s *Stage) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Enabled reports whether the stage is visible to downstream lookups.
func (s *Stage) Enabled() bool { return s.Status() != StatusInactive }

// Running reports whether a run is in flight.
func (s *Stage) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Progress returns the progress of the current or last run.
func (s *Stage) Progress() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

// Output returns the cached result of the last successful run, or nil.
// The result is shared and must not be modified.
func (s *Stage) Output() *spectra.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.output
}

// LastError returns the error of the last failed run, cleared on success.
func (s *Stage) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Options returns a copy of the current options.
func (s *Stage) Options() config.Options {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(s.opts)
}

// snapshot deep-copies o. Options records are plain JSON values, so a
// failure here is a programming error.
func (s *Stage) snapshot(o config.Options) config.Options {
	c, err := config.Clone(o, s.alg.NewOptions)
	if err != nil {
		panic(fmt.Sprintf("%s: options are not serialisable: %v", s.Key(), err))
	}
	return c
}

// Run starts a run on the shared pool and returns immediately. It fails
// with ErrStageBusy while a run is in flight and with ErrNoInput when a
// non-source stage has nothing upstream. The run itself is not cancelled
// by ctx once started.
func (s *Stage) Run(ctx context.Context) (*Task, error) {
	var in *spectra.Dataset
	if !s.Capabilities().Source {
		prev := s.owner.PreviousOutput(s)
		if prev == nil || prev.Dataset == nil {
			return nil, fmt.Errorf("%s: %w", s.Key(), ErrNoInput)
		}
		in = prev.Dataset.Clone()
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", s.Key(), ErrStageBusy)
	}
	if s.status == StatusInactive {
		s.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", s.Key(), ErrStageInactive)
	}
	snap := s.snapshot(s.opts)
	from := s.status
	s.running = true
	s.progress = 0
	s.status = StatusActive
	task := newTask(s.Key())
	s.mu.Unlock()

	s.owner.notify(Event{Stage: s.Key(), TaskID: task.ID, From: from, To: StatusActive})
	diagf("%s: submitted run %s", s.Key(), task.ID)

	runCtx := context.WithoutCancel(ctx)
	s.pool.Submit(ctx, func() {
		res, err := s.invoke(runCtx, in, snap)
		s.finish(task, res, err)
	}, func(err error) {
		s.finish(task, nil, fmt.Errorf("run abandoned before start: %w", err))
	})
	return task, nil
}

// invoke calls the algorithm, converting panics into errors.
func (s *Stage) invoke(ctx context.Context, in *spectra.Dataset, opts config.Options) (res *spectra.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			opsf("%s: recovered panic: %v\n%s", s.Key(), r, debug.Stack())
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	res, err = s.alg.Run(ctx, in, opts, s.setProgress)
	if err == nil && (res == nil || res.Dataset == nil) {
		err = errors.New("algorithm returned no dataset")
	}
	if err == nil {
		err = res.Dataset.Validate()
	}
	return res, err
}

func (s *Stage) setProgress(p float64) {
	p = min(max(p, 0), 1)
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.progress = p
	s.mu.Unlock()
	tracef("%s: progress %.2f", s.Key(), p)
	s.owner.progress(s.Key(), p)
}

// finish applies the outcome of a run. A failed run leaves the cached
// output untouched. A stage disabled while running keeps its result but
// stays inactive.
func (s *Stage) finish(task *Task, res *spectra.Result, err error) {
	if err == nil {
		spectra.AnnotateOutliers(res.Dataset, s.owner.cfg.GetOutlierThreshold())
	}

	s.mu.Lock()
	from := s.status
	to := from
	s.running = false
	s.progress = 1
	if err != nil {
		s.lastErr = err
		if from != StatusInactive {
			to = StatusError
		}
	} else {
		s.lastErr = nil
		s.output = res
		if from != StatusInactive {
			to = StatusComplete
		}
	}
	s.status = to
	s.mu.Unlock()

	if err != nil {
		opsf("%s: run %s failed: %v", s.Key(), task.ID, err)
		res = nil
	} else {
		diagf("%s: run %s complete (%d samples x %d points)", s.Key(), task.ID,
			res.Dataset.Samples(), res.Dataset.Points())
	}
	s.owner.notify(Event{Stage: s.Key(), TaskID: task.ID, From: from, To: to, Err: err})
	task.finish(res, err)
	if err == nil && to == StatusComplete {
		s.owner.cascade(s)
	}
}

// Enable makes an inactive stage ready again and marks it active in its
// options. Its cached output, if any, becomes visible downstream.
func (s *Stage) Enable() {
	s.mu.Lock()
	from := s.status
	if s.status == StatusInactive {
		s.status = StatusReady
	}
	s.opts.Base().IsActive = true
	to := s.status
	s.mu.Unlock()
	if from != to {
		s.owner.notify(Event{Stage: s.Key(), From: from, To: to})
	}
}

// Disable splices the stage out of downstream lookups without discarding
// its output. An in-flight run is not stopped.
func (s *Stage) Disable() error {
	if !s.Capabilities().Disableable {
		return fmt.Errorf("%s: %w", s.Key(), ErrNotDisableable)
	}
	s.mu.Lock()
	from := s.status
	s.status = StatusInactive
	s.opts.Base().IsActive = false
	s.mu.Unlock()
	if from != StatusInactive {
		s.owner.notify(Event{Stage: s.Key(), From: from, To: StatusInactive})
	}
	return nil
}

// SetMany merges raw JSON options onto the current ones. Keys absent from
// raw keep their values; unknown keys are rejected. A change to is_active
// enables or disables the stage. With auto-run on, an auto-runnable stage
// re-runs after the change.
func (s *Stage) SetMany(ctx context.Context, raw json.RawMessage) error {
	s.mu.Lock()
	next, err := config.Merge(s.opts, raw, s.alg.NewOptions)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("%s: %w", s.Key(), err)
	}
	return s.apply(ctx, next)
}

// SetOptions replaces the options with a copy of o, which must be the
// stage's own options type.
func (s *Stage) SetOptions(ctx context.Context, o config.Options) error {
	if fresh := s.alg.NewOptions(); reflect.TypeOf(fresh) != reflect.TypeOf(o) {
		return fmt.Errorf("%s: %w: options type %T, want %T", s.Key(), config.ErrInvalidConfig, o, fresh)
	}
	if err := o.Validate(); err != nil {
		return fmt.Errorf("%s: %w: %v", s.Key(), config.ErrInvalidConfig, err)
	}
	return s.apply(ctx, s.snapshot(o))
}

func (s *Stage) apply(ctx context.Context, next config.Options) error {
	active := next.Base().IsActive
	if !active && !s.Capabilities().Disableable {
		return fmt.Errorf("%s: %w", s.Key(), ErrNotDisableable)
	}
	s.mu.Lock()
	s.opts = next
	s.mu.Unlock()

	if active {
		s.Enable()
	} else if err := s.Disable(); err != nil {
		return err
	}
	s.owner.optionsChanged(ctx, s)
	return nil
}

// Select records the current options as the undo point.
func (s *Stage) Select() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backup = s.snapshot(s.opts)
}

// Undo restores the options captured by the last Select.
func (s *Stage) Undo(ctx context.Context) error {
	s.mu.Lock()
	backup := s.snapshot(s.backup)
	s.mu.Unlock()
	return s.apply(ctx, backup)
}

// Reset restores the declared defaults. The enabled state is kept.
func (s *Stage) Reset(ctx context.Context) error {
	defaults := s.alg.DefaultOptions()
	defaults.Base().IsActive = s.Enabled()
	return s.apply(ctx, defaults)
}
