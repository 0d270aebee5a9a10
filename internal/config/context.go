package config

import (
	"runtime"
	"sync"

	"github.com/banshee-data/nmrbrew/internal/timeutil"
)

// Context carries application-wide settings into the pipeline. It replaces
// process-global state: everything a stage needs beyond its own options is
// reached through the Context it was constructed with.
type Context struct {
	// OutlierThreshold is m in the outlier post-processor; zero means 2.
	OutlierThreshold float64
	// Workers bounds the shared execution pool; zero means runtime.NumCPU().
	Workers int
	// AutoRun enables re-running stages on option changes and cascading
	// completed results to downstream stages.
	AutoRun bool
	// HighlightOutliers and HighlightClasses are display preferences carried
	// for front ends; the engine never reads them.
	HighlightOutliers bool
	HighlightClasses  bool

	Clock timeutil.Clock

	mu   sync.RWMutex
	core Core
}

// NewContext returns a Context with defaults filled in.
func NewContext() *Context {
	return &Context{
		OutlierThreshold:  2,
		Workers:           runtime.NumCPU(),
		HighlightOutliers: true,
		Clock:             timeutil.RealClock{},
		core:              EmptyCore(),
	}
}

// GetWorkers returns the pool size, defaulting to the CPU count.
func (c *Context) GetWorkers() int {
	if c.Workers <= 0 {
		return runtime.NumCPU()
	}
	return c.Workers
}

// GetOutlierThreshold returns m, defaulting to 2.
func (c *Context) GetOutlierThreshold() float64 {
	if c.OutlierThreshold <= 0 {
		return 2
	}
	return c.OutlierThreshold
}

// GetClock returns the configured clock or the real one.
func (c *Context) GetClock() timeutil.Clock {
	if c.Clock == nil {
		return timeutil.RealClock{}
	}
	return c.Clock
}

// Core returns a copy of the annotation block.
func (c *Context) Core() Core {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.core.Clone()
}

// SetCore replaces the annotation block.
func (c *Context) SetCore(core Core) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.core = core.Clone()
}
