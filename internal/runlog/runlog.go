// Package runlog keeps a SQLite history of stage runs. A Log observes a
// pipeline and records one row per run: when it started, when it ended and
// how.
package runlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/nmrbrew/internal/monitoring"
	"github.com/banshee-data/nmrbrew/internal/pipeline"
	"github.com/banshee-data/nmrbrew/internal/timeutil"
	"github.com/banshee-data/nmrbrew/internal/version"
)

var logf = monitoring.Prefixed("[runlog] ")

// ErrClosed is returned by Flush once the log has been closed.
var ErrClosed = errors.New("run log closed")

// Log is a run history database. It implements pipeline.Observer: events
// are queued and written by a single background goroutine, so observer
// calls never wait on the database.
type Log struct {
	db      *sql.DB
	session string
	clock   timeutil.Clock

	mu    sync.Mutex
	queue []request
	wake  chan struct{}
	quit  chan struct{}
	done  chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// request is a queued event, or a flush marker when flushed is set.
type request struct {
	event   pipeline.Event
	flushed chan struct{}
}

// Run is one recorded stage run.
type Run struct {
	TaskID     string
	Session    string
	Stage      string
	Status     string
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time // zero while the run is in flight
}

// Duration is the wall time of a finished run, zero otherwise.
func (r Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Open opens or creates the database at path, migrates it and starts a new
// session. A nil clock uses the wall clock.
func Open(ctx context.Context, path string, clock timeutil.Clock) (*Log, error) {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// The writer goroutine and queries share one connection.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON; PRAGMA busy_timeout = 5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set pragmas: %w", err)
	}

	l := &Log{
		db:      db,
		session: uuid.NewString(),
		clock:   clock,
		wake:    make(chan struct{}, 1),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	if err := l.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, app_version, started_at_ns) VALUES (?, ?, ?)`,
		l.session, version.Version, clock.Now().UnixNano())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to start session: %w", err)
	}
	logf("session %s opened at %s", l.session, path)
	go l.writer()
	return l, nil
}

// Session returns the identifier of this process's session.
func (l *Log) Session() string { return l.session }

// Close writes any queued events, stops the writer and closes the
// database.
func (l *Log) Close() error {
	l.closeOnce.Do(func() {
		close(l.quit)
		<-l.done
		l.closeErr = l.db.Close()
	})
	return l.closeErr
}

// Flush waits until every event delivered before the call is written.
func (l *Log) Flush(ctx context.Context) error {
	flushed := make(chan struct{})
	select {
	case <-l.quit:
		return ErrClosed
	default:
	}
	l.enqueue(request{flushed: flushed})
	select {
	case <-flushed:
		return nil
	case <-l.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Log) enqueue(r request) {
	l.mu.Lock()
	l.queue = append(l.queue, r)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// drain handles everything queued so far and reports how much it took.
func (l *Log) drain() int {
	l.mu.Lock()
	batch := l.queue
	l.queue = nil
	l.mu.Unlock()
	for _, r := range batch {
		if r.flushed != nil {
			close(r.flushed)
			continue
		}
		l.record(r.event)
	}
	return len(batch)
}

func (l *Log) writer() {
	defer close(l.done)
	for {
		if l.drain() > 0 {
			continue
		}
		select {
		case <-l.wake:
		case <-l.quit:
			for l.drain() > 0 {
			}
			return
		}
	}
}

// StageStatusChanged queues run starts and outcomes. Transitions without a
// task, such as enable and disable, are not runs and are ignored.
func (l *Log) StageStatusChanged(e pipeline.Event) {
	if e.TaskID == "" {
		return
	}
	if e.At.IsZero() {
		e.At = l.clock.Now()
	}
	select {
	case <-l.quit:
		logf("closed, dropping %s run %s (%s)", e.Stage, e.TaskID, e.To)
		return
	default:
	}
	l.enqueue(request{event: e})
}

func (l *Log) record(e pipeline.Event) {
	var err error
	if e.To == pipeline.StatusActive {
		_, err = l.db.Exec(
			`INSERT INTO runs (task_id, session_id, stage, status, started_at_ns) VALUES (?, ?, ?, ?, ?)`,
			e.TaskID, l.session, e.Stage, e.To.String(), e.At.UnixNano())
	} else {
		var msg sql.NullString
		if e.Err != nil {
			msg = sql.NullString{String: e.Err.Error(), Valid: true}
		}
		_, err = l.db.Exec(
			`UPDATE runs SET status = ?, error = ?, finished_at_ns = ? WHERE task_id = ?`,
			e.To.String(), msg, e.At.UnixNano(), e.TaskID)
	}
	if err != nil {
		logf("failed to record %s run %s: %v", e.Stage, e.TaskID, err)
	}
}

// StageProgress is not recorded.
func (l *Log) StageProgress(string, float64) {}

// Runs returns recorded runs oldest first, restricted to stage unless it is
// empty. A positive limit keeps only the most recent runs. Queued events
// are written first.
func (l *Log) Runs(ctx context.Context, stage string, limit int) ([]Run, error) {
	if err := l.Flush(ctx); err != nil {
		return nil, err
	}
	query := `SELECT task_id, session_id, stage, status, error, started_at_ns, finished_at_ns
		FROM runs WHERE (? = '' OR stage = ?) ORDER BY started_at_ns DESC, rowid DESC`
	args := []any{stage, stage}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			r        Run
			msg      sql.NullString
			started  int64
			finished sql.NullInt64
		)
		if err := rows.Scan(&r.TaskID, &r.Session, &r.Stage, &r.Status, &msg, &started, &finished); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.Error = msg.String
		r.StartedAt = time.Unix(0, started).UTC()
		if finished.Valid {
			r.FinishedAt = time.Unix(0, finished.Int64).UTC()
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Summary aggregates finished runs per stage.
type Summary struct {
	Stage    string
	Runs     int
	Failures int
	Mean     time.Duration
}

// Summarise returns per-stage counts and mean durations of finished runs,
// ordered by stage name.
func (l *Log) Summarise(ctx context.Context) ([]Summary, error) {
	if err := l.Flush(ctx); err != nil {
		return nil, err
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT stage,
		       COUNT(*),
		       SUM(CASE WHEN status = ? THEN 1 ELSE 0 END),
		       AVG(finished_at_ns - started_at_ns)
		FROM runs
		WHERE finished_at_ns IS NOT NULL
		GROUP BY stage
		ORDER BY stage`, pipeline.StatusError.String())
	if err != nil {
		return nil, fmt.Errorf("failed to summarise runs: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			s    Summary
			mean float64
		)
		if err := rows.Scan(&s.Stage, &s.Runs, &s.Failures, &mean); err != nil {
			return nil, fmt.Errorf("failed to scan summary: %w", err)
		}
		s.Mean = time.Duration(mean)
		out = append(out, s)
	}
	return out, rows.Err()
}
