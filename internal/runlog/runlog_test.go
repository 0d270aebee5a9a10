package runlog

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/nmrbrew/internal/config"
	"github.com/banshee-data/nmrbrew/internal/monitoring"
	"github.com/banshee-data/nmrbrew/internal/pipeline"
	"github.com/banshee-data/nmrbrew/internal/spectra"
	"github.com/banshee-data/nmrbrew/internal/timeutil"
)

var epoch = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func openTestLog(t *testing.T) (*Log, string) {
	t.Helper()
	prev := monitoring.Logf
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.SetLogger(prev) })

	path := filepath.Join(t.TempDir(), "runs.db")
	l, err := Open(context.Background(), path, timeutil.NewMockClock(epoch))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l, path
}

func TestOpenMigrates(t *testing.T) {
	l, _ := openTestLog(t)
	v, dirty, err := l.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), v)
	assert.False(t, dirty)
	assert.NotEmpty(t, l.Session())

	require.NoError(t, l.MigrateUp(), "second migration is a no-op")

	require.NoError(t, l.MigrateDown())
	v, _, err = l.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)
}

func TestRecordsRuns(t *testing.T) {
	l, _ := openTestLog(t)
	ctx := context.Background()

	l.StageStatusChanged(pipeline.Event{Stage: "Binning", TaskID: "t1",
		From: pipeline.StatusReady, To: pipeline.StatusActive, At: epoch})
	l.StageStatusChanged(pipeline.Event{Stage: "Binning", TaskID: "t1",
		From: pipeline.StatusActive, To: pipeline.StatusComplete, At: epoch.Add(2 * time.Second)})
	l.StageStatusChanged(pipeline.Event{Stage: "Binning", TaskID: "t2",
		From: pipeline.StatusComplete, To: pipeline.StatusActive, At: epoch.Add(time.Minute)})
	l.StageStatusChanged(pipeline.Event{Stage: "Binning", TaskID: "t2",
		From: pipeline.StatusActive, To: pipeline.StatusError, Err: errors.New("boom"),
		At: epoch.Add(time.Minute + 4*time.Second)})
	l.StageStatusChanged(pipeline.Event{Stage: "PCA", TaskID: "t3",
		From: pipeline.StatusReady, To: pipeline.StatusActive, At: epoch.Add(2 * time.Minute)})
	// Enable and disable carry no task and are not runs.
	l.StageStatusChanged(pipeline.Event{Stage: "PCA", From: pipeline.StatusReady, To: pipeline.StatusInactive})

	runs, err := l.Runs(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, []string{"t1", "t2", "t3"}, []string{runs[0].TaskID, runs[1].TaskID, runs[2].TaskID})

	assert.Equal(t, "complete", runs[0].Status)
	assert.Equal(t, 2*time.Second, runs[0].Duration())
	assert.Empty(t, runs[0].Error)
	assert.Equal(t, l.Session(), runs[0].Session)

	assert.Equal(t, "error", runs[1].Status)
	assert.Equal(t, "boom", runs[1].Error)

	assert.Equal(t, "active", runs[2].Status)
	assert.True(t, runs[2].FinishedAt.IsZero())
	assert.Zero(t, runs[2].Duration())

	binning, err := l.Runs(ctx, "Binning", 1)
	require.NoError(t, err)
	require.Len(t, binning, 1)
	assert.Equal(t, "t2", binning[0].TaskID, "limit keeps the most recent")

	sums, err := l.Summarise(ctx)
	require.NoError(t, err)
	require.Len(t, sums, 1, "in-flight runs are not summarised")
	assert.Equal(t, Summary{Stage: "Binning", Runs: 2, Failures: 1, Mean: 3 * time.Second}, sums[0])
}

func TestObserverCallsDoNotWaitOnDatabase(t *testing.T) {
	l, _ := openTestLog(t)
	ctx := context.Background()

	// Hold the only connection so any synchronous write would stall.
	tx, err := l.db.BeginTx(ctx, nil)
	require.NoError(t, err)

	returned := make(chan struct{})
	go func() {
		defer close(returned)
		l.StageStatusChanged(pipeline.Event{Stage: "PCA", TaskID: "t1", To: pipeline.StatusActive, At: epoch})
		l.StageStatusChanged(pipeline.Event{Stage: "PCA", TaskID: "t1", To: pipeline.StatusComplete, At: epoch.Add(time.Second)})
	}()
	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("observer call blocked on the database")
	}

	require.NoError(t, tx.Rollback())
	runs, err := l.Runs(ctx, "PCA", 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "complete", runs[0].Status)
	assert.Equal(t, time.Second, runs[0].Duration())
}

func TestFlushAfterClose(t *testing.T) {
	l, _ := openTestLog(t)
	require.NoError(t, l.Close())
	assert.ErrorIs(t, l.Flush(context.Background()), ErrClosed)
	// Late events are dropped rather than queued forever.
	l.StageStatusChanged(pipeline.Event{Stage: "PCA", TaskID: "t9", To: pipeline.StatusActive})
	assert.NoError(t, l.Close(), "close is idempotent")
}

func TestReopenKeepsHistory(t *testing.T) {
	l, path := openTestLog(t)
	l.StageStatusChanged(pipeline.Event{Stage: "PCA", TaskID: "t1", To: pipeline.StatusActive, At: epoch})
	first := l.Session()
	require.NoError(t, l.Close())

	again, err := Open(context.Background(), path, nil)
	require.NoError(t, err)
	defer again.Close()
	assert.NotEqual(t, first, again.Session())

	runs, err := again.Runs(context.Background(), "PCA", 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, first, runs[0].Session)
}

type sourceOptions struct {
	config.Common
}

func (*sourceOptions) Validate() error { return nil }

type source struct{}

func (source) Key() string  { return "Source" }
func (source) Name() string { return "Source" }
func (source) Capabilities() pipeline.Capabilities {
	return pipeline.Capabilities{ManualRunnable: true, Source: true}
}
func (source) DefaultOptions() config.Options {
	return &sourceOptions{Common: config.DefaultCommon()}
}
func (source) NewOptions() config.Options { return &sourceOptions{} }
func (source) Run(context.Context, *spectra.Dataset, config.Options, spectra.ProgressFunc) (*spectra.Result, error) {
	ds, err := spectra.New([]float64{2, 1}, [][]float64{{1, 2}, {3, 4}}, nil, nil)
	if err != nil {
		return nil, err
	}
	return spectra.NewResult(ds), nil
}

func TestObservesPipeline(t *testing.T) {
	l, _ := openTestLog(t)
	cfg := config.NewContext()
	clock := timeutil.NewMockClock(epoch)
	clock.SetStep(time.Second)
	cfg.Clock = clock
	p, err := pipeline.New(cfg, source{})
	require.NoError(t, err)
	p.AddObserver(l)

	require.NoError(t, p.RunAll(context.Background()))
	p.Wait()

	runs, err := l.Runs(context.Background(), "Source", 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "complete", runs[0].Status)
	assert.Equal(t, time.Second, runs[0].Duration())
}
