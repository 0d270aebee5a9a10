// Package pipeline runs an ordered sequence of spectral processing stages.
//
// Each Stage wraps a stateless Algorithm. Runs are submitted to a bounded
// pool shared by the whole Pipeline; a stage reads the cached output of its
// nearest enabled predecessor, works on a deep copy of it, and caches its
// own result for the stages after it. Stages never block on each other:
// a downstream run uses whatever is cached upstream at submission time.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/nmrbrew/internal/config"
	"github.com/banshee-data/nmrbrew/internal/spectra"
)

// ErrUnknownStage is returned when looking up a key the pipeline lacks.
var ErrUnknownStage = errors.New("unknown stage")

// Pipeline owns the stages, the worker pool and the observers.
type Pipeline struct {
	cfg    *config.Context
	stages []*Stage
	byKey  map[string]*Stage
	pool   *Pool

	obsMu     sync.RWMutex
	observers []Observer

	selMu    sync.Mutex
	selected int

	// quiet suppresses auto-run while positive: during configuration
	// loads and RunAll, which drive the stages themselves.
	quiet atomic.Int32
}

// New builds a pipeline running algs in the given order. Keys must be
// unique.
func New(cfg *config.Context, algs ...Algorithm) (*Pipeline, error) {
	if cfg == nil {
		cfg = config.NewContext()
	}
	p := &Pipeline{
		cfg:   cfg,
		byKey: make(map[string]*Stage, len(algs)),
		pool:  NewPool(cfg.GetWorkers()),
	}
	for i, alg := range algs {
		if _, dup := p.byKey[alg.Key()]; dup {
			return nil, fmt.Errorf("duplicate stage key %q", alg.Key())
		}
		s := newStage(p, p.pool, i, alg)
		p.stages = append(p.stages, s)
		p.byKey[alg.Key()] = s
	}
	return p, nil
}

// Context returns the configuration context the pipeline was built with.
func (p *Pipeline) Context() *config.Context { return p.cfg }

// Stages returns the stages in order.
func (p *Pipeline) Stages() []*Stage {
	return append([]*Stage(nil), p.stages...)
}

// Stage looks up a stage by key.
func (p *Pipeline) Stage(key string) (*Stage, error) {
	s, ok := p.byKey[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStage, key)
	}
	return s, nil
}

// PreviousOutput returns the cached output of the nearest stage before s
// that is not inactive. It is nil when there is no such stage or when that
// stage has not produced output yet.
func (p *Pipeline) PreviousOutput(s *Stage) *spectra.Result {
	for i := s.index - 1; i >= 0; i-- {
		if prev := p.stages[i]; prev.Enabled() {
			return prev.Output()
		}
	}
	return nil
}

// Select marks the stage as the current one and records its options as
// the undo point.
func (p *Pipeline) Select(key string) (*Stage, error) {
	s, err := p.Stage(key)
	if err != nil {
		return nil, err
	}
	p.selMu.Lock()
	p.selected = s.index
	p.selMu.Unlock()
	s.Select()
	return s, nil
}

// Selected returns the current stage.
func (p *Pipeline) Selected() *Stage {
	p.selMu.Lock()
	defer p.selMu.Unlock()
	return p.stages[p.selected]
}

// Run starts the named stage.
func (p *Pipeline) Run(ctx context.Context, key string) (*Task, error) {
	s, err := p.Stage(key)
	if err != nil {
		return nil, err
	}
	if !s.Capabilities().ManualRunnable {
		return nil, fmt.Errorf("%s: %w", key, ErrNotRunnable)
	}
	return s.Run(ctx)
}

// RunAll runs every enabled, manually runnable stage in order, waiting for
// each before starting the next. A failing stage does not stop the stages
// after it; they run on the last good upstream output. The failures are
// returned joined.
func (p *Pipeline) RunAll(ctx context.Context) error {
	p.quiet.Add(1)
	defer p.quiet.Add(-1)
	var errs []error
	for _, s := range p.stages {
		if !s.Enabled() || !s.Capabilities().ManualRunnable {
			continue
		}
		task, err := s.Run(ctx)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, err := task.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			errs = append(errs, fmt.Errorf("%s: %w", s.Key(), err))
		}
	}
	return errors.Join(errs...)
}

// Wait blocks until every submitted run has finished, including runs
// started by auto-run.
func (p *Pipeline) Wait() {
	p.pool.Wait()
}

// AddObserver registers o for stage events.
func (p *Pipeline) AddObserver(o Observer) {
	p.obsMu.Lock()
	defer p.obsMu.Unlock()
	p.observers = append(p.observers, o)
}

func (p *Pipeline) notify(e Event) {
	if e.At.IsZero() {
		e.At = p.cfg.GetClock().Now()
	}
	p.obsMu.RLock()
	defer p.obsMu.RUnlock()
	for _, o := range p.observers {
		o.StageStatusChanged(e)
	}
}

func (p *Pipeline) progress(key string, v float64) {
	p.obsMu.RLock()
	defer p.obsMu.RUnlock()
	for _, o := range p.observers {
		o.StageProgress(key, v)
	}
}

// optionsChanged re-runs s after an options change when auto-run applies.
func (p *Pipeline) optionsChanged(ctx context.Context, s *Stage) {
	if !p.cfg.AutoRun || p.quiet.Load() > 0 {
		return
	}
	if !s.Capabilities().AutoRunnable || !s.Enabled() || !s.Options().Base().AutoRunOnConfigChange {
		return
	}
	p.autoRun(ctx, s, "options changed")
}

// cascade re-runs the next enabled stage after a completed one when
// auto-run applies. That run's completion continues the cascade.
func (p *Pipeline) cascade(s *Stage) {
	if !p.cfg.AutoRun || p.quiet.Load() > 0 {
		return
	}
	for _, next := range p.stages[s.index+1:] {
		if !next.Enabled() {
			continue
		}
		if next.Capabilities().AutoRerunnable {
			p.autoRun(context.Background(), next, "upstream "+s.Key()+" completed")
		}
		return
	}
}

func (p *Pipeline) autoRun(ctx context.Context, s *Stage, reason string) {
	if _, err := s.Run(ctx); err != nil {
		diagf("%s: auto-run skipped (%s): %v", s.Key(), reason, err)
		return
	}
	diagf("%s: auto-run (%s)", s.Key(), reason)
}
