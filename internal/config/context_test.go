package config

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/banshee-data/nmrbrew/internal/timeutil"
)

func TestContextDefaults(t *testing.T) {
	t.Parallel()

	ctx := NewContext()
	assert.Equal(t, runtime.NumCPU(), ctx.GetWorkers())
	assert.Equal(t, 2.0, ctx.GetOutlierThreshold())
	assert.False(t, ctx.AutoRun)
	assert.IsType(t, timeutil.RealClock{}, ctx.GetClock())

	var zero Context
	assert.Equal(t, runtime.NumCPU(), zero.GetWorkers())
	assert.Equal(t, 2.0, zero.GetOutlierThreshold())
	assert.NotNil(t, zero.GetClock())
}

func TestContextOverrides(t *testing.T) {
	t.Parallel()

	clock := timeutil.NewMockClock(time.Unix(0, 0))
	ctx := &Context{Workers: 3, OutlierThreshold: 2.5, Clock: clock}
	assert.Equal(t, 3, ctx.GetWorkers())
	assert.Equal(t, 2.5, ctx.GetOutlierThreshold())
	assert.Same(t, clock, ctx.GetClock())
}

func TestContextCore(t *testing.T) {
	t.Parallel()

	ctx := NewContext()
	core := EmptyCore()
	core.SampleClasses["S1"] = "control"
	ctx.SetCore(core)

	core.SampleClasses["S1"] = "mutated"
	got := ctx.Core()
	assert.Equal(t, "control", got.SampleClasses["S1"])

	got.SampleClasses["S1"] = "again"
	assert.Equal(t, "control", ctx.Core().SampleClasses["S1"])
}
