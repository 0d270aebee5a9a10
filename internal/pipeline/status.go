package pipeline

import (
	"time"
)

// Status is a stage lifecycle state.
type Status int

const (
	StatusReady Status = iota
	StatusActive
	StatusComplete
	StatusError
	StatusInactive
)

var statusNames = [...]string{
	StatusReady:    "ready",
	StatusActive:   "active",
	StatusComplete: "complete",
	StatusError:    "error",
	StatusInactive: "inactive",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "unknown"
	}
	return statusNames[s]
}

// Event describes one stage status transition.
type Event struct {
	Stage string
	// TaskID identifies the run that caused the transition; empty for
	// enable and disable.
	TaskID string
	From   Status
	To     Status
	// Err is set when To is StatusError.
	Err error
	At  time.Time
}

// Observer learns of stage transitions. Calls arrive from worker goroutines
// and must not block.
type Observer interface {
	StageStatusChanged(e Event)
	StageProgress(stage string, progress float64)
}
