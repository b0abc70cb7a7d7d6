package jobs

import (
	"context"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/inematds/inemavox/pkg/notify"
	"github.com/inematds/inemavox/pkg/pipeline"
	"github.com/inematds/inemavox/pkg/runner"
)

// Run is the worker loop. It drains the queue strictly in submission order
// and executes at most one job at a time, blocking on each pipeline until it
// exits. Run returns when ctx ends; a pipeline in flight at shutdown is
// stopped gracefully first.
func (m *Manager) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-m.queue:
			m.mu.Lock()
			j, ok := m.jobs[id]
			if !ok || j.Status != StatusQueued {
				// Cancelled or deleted while queued; the entry is stale.
				m.mu.Unlock()
				continue
			}
			m.mu.Unlock()
			m.runJob(ctx, j)
		}
	}
}

// runJob drives one job from queued to a terminal state.
func (m *Manager) runJob(ctx context.Context, j *Job) {
	args := m.opts.Command(j.Config, j.Workdir)

	// Claim the job before anything is spawned. A cancel can land after
	// the worker's dequeue check; once the status is terminal it must
	// stay terminal, and the pipeline must never start.
	started := time.Now().UTC()
	m.mu.Lock()
	if j.Status != StatusQueued {
		m.mu.Unlock()
		return
	}
	j.Status = StatusRunning
	j.StartedAt = &started
	m.mu.Unlock()

	proc, err := runner.Start(runner.Spec{
		Args:    args,
		Dir:     j.Workdir,
		LogPath: filepath.Join(j.Workdir, LogFileName),
	})
	if err != nil {
		now := time.Now().UTC()
		m.mu.Lock()
		j.Status = StatusFailed
		j.FinishedAt = &now
		j.Error = err.Error()
		m.persistLocked(j)
		snap := m.snapshotLocked(j)
		m.mu.Unlock()
		m.log.Error("pipeline spawn failed", zap.String("job_id", j.ID), zap.Error(err))
		m.hub.Publish(j.ID, notify.Event{Event: notify.EventFinished, Job: snap})
		return
	}

	m.mu.Lock()
	j.proc = proc
	// Cancel seen between the claim and the spawn could not signal the
	// process yet; honor it here.
	stopNow := j.cancelRequested
	m.persistLocked(j)
	snap := m.snapshotLocked(j)
	m.mu.Unlock()

	m.log.Info("pipeline started",
		zap.String("job_id", j.ID),
		zap.Int("pid", proc.PID()),
		zap.Strings("argv", args))
	m.hub.Publish(j.ID, notify.Event{Event: notify.EventStarted, Job: snap})
	if stopNow {
		proc.Stop(m.opts.StopGrace)
	}

	clock := newStageClock(started)
	err = proc.Monitor(ctx, m.opts.PollInterval, func() {
		cp := pipeline.ReadCheckpoint(j.Workdir)
		clock.observe(time.Now().UTC(), cp.LastStepNum)
		m.mu.Lock()
		tick := m.snapshotLocked(j)
		m.mu.Unlock()
		m.hub.Publish(j.ID, notify.Event{Event: notify.EventProgress, Job: tick})
	})
	if err != nil {
		// Shutdown while the pipeline runs: stop it and finish the job
		// as cancelled so the record on disk is coherent.
		m.log.Info("shutdown while job running; stopping pipeline", zap.String("job_id", j.ID))
		m.mu.Lock()
		j.cancelRequested = true
		m.mu.Unlock()
		proc.Stop(m.opts.StopGrace)
	}

	m.finishJob(j, clock)
}

// finishJob classifies the exit, records learned durations on success, and
// publishes the single terminal event.
func (m *Manager) finishJob(j *Job, clock *stageClock) {
	finished := time.Now().UTC()
	cp := pipeline.ReadCheckpoint(j.Workdir)
	durations := clock.finish(finished, cp.LastStepNum)

	m.mu.Lock()
	proc := j.proc
	j.proc = nil
	j.FinishedAt = &finished

	event := notify.EventFinished
	switch {
	case j.cancelRequested || proc.TermSignaled():
		j.Status = StatusCancelled
		event = notify.EventCancelled
	case proc.ExitCode() == 0:
		j.Status = StatusCompleted
	default:
		j.Status = StatusFailed
		j.Error = exitError(proc.ExitCode())
	}
	m.persistLocked(j)
	snap := m.snapshotLocked(j)
	status := j.Status
	total := finished.Sub(*j.StartedAt).Seconds()
	profile := j.Config.Profile(m.opts.Device)
	m.mu.Unlock()

	switch status {
	case StatusCompleted:
		m.log.Info("job completed",
			zap.String("job_id", j.ID),
			zap.Float64("duration_s", total))
		if err := m.stats.Record(profile.Key(), durations, total); err != nil {
			m.log.Warn("record stats", zap.String("job_id", j.ID), zap.Error(err))
		}
		m.archive(j.ID, j.Workdir)
	case StatusCancelled:
		m.log.Info("job cancelled", zap.String("job_id", j.ID))
	default:
		m.log.Warn("job failed",
			zap.String("job_id", j.ID),
			zap.String("error", snap.Error))
	}

	m.hub.Publish(j.ID, notify.Event{Event: event, Job: snap})
}

// archive hands the finished artifact to the configured archiver, if any.
func (m *Manager) archive(jobID, workdir string) {
	if m.opts.Archiver == nil {
		return
	}
	path, err := FindArtifact(workdir)
	if err != nil {
		m.log.Warn("archive skipped", zap.String("job_id", jobID), zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	key, err := m.opts.Archiver.ArchiveArtifact(ctx, jobID, path)
	if err != nil {
		m.log.Warn("archive failed", zap.String("job_id", jobID), zap.Error(err))
		return
	}
	m.log.Info("artifact archived", zap.String("job_id", jobID), zap.String("key", key))
}

func exitError(code int) string {
	return "Exit code: " + strconv.Itoa(code)
}
