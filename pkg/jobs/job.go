// Package jobs owns the job lifecycle: the in-memory registry, the FIFO
// queue, and the single worker loop that drives each job through the
// external pipeline.
//
// The registry is deliberately not durable. It is rebuilt empty on restart;
// only on-disk artifacts (checkpoints, logs, job.json snapshots, learned
// stats) survive.
package jobs

import (
	"math"
	"time"

	"github.com/inematds/inemavox/pkg/pipeline"
	"github.com/inematds/inemavox/pkg/runner"
)

// Status is the lifecycle state of a job.
//
// Transitions: queued -> running -> {completed | failed | cancelled};
// queued -> cancelled via explicit cancellation. Terminal states are never
// left.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// LogFileName is the combined pipeline output log inside a job's workdir,
// truncated fresh on every run.
const LogFileName = "output.log"

// ConfigFileName is the persisted submission config inside a job's workdir.
const ConfigFileName = "config.json"

// Job is one unit of requested work. All fields are guarded by the
// manager's mutex; external callers only ever see Snapshots.
type Job struct {
	ID         string
	Config     Config
	Status     Status
	CreatedAt  time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
	Workdir    string
	Error      string

	// proc is the owned pipeline process, present only while running.
	proc *runner.Process

	// cancelRequested marks that a cancellation was asked for, so the
	// worker classifies the exit as cancelled no matter which signal
	// path ended the process.
	cancelRequested bool
}

// durationSeconds is the elapsed run time, rounded to one decimal.
func (j *Job) durationSeconds(now time.Time) float64 {
	if j.StartedAt == nil {
		return 0
	}
	end := now
	if j.FinishedAt != nil {
		end = *j.FinishedAt
	}
	return math.Round(end.Sub(*j.StartedAt).Seconds()*10) / 10
}

// Snapshot is the externally visible, immutable view of a job, carried on
// every notification event and API response.
type Snapshot struct {
	ID         string              `json:"id"`
	Status     Status              `json:"status"`
	Config     Config              `json:"config"`
	CreatedAt  time.Time           `json:"created_at"`
	StartedAt  *time.Time          `json:"started_at,omitempty"`
	FinishedAt *time.Time          `json:"finished_at,omitempty"`
	DurationS  float64             `json:"duration_s"`
	Error      string              `json:"error,omitempty"`
	Checkpoint pipeline.Checkpoint `json:"checkpoint"`
	Progress   pipeline.Progress   `json:"progress"`
}
