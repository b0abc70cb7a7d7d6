package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/inematds/inemavox/pkg/notify"
	"github.com/inematds/inemavox/pkg/pipeline"
	"github.com/inematds/inemavox/pkg/runner"
	"github.com/inematds/inemavox/pkg/stats"
)

// ErrNotFound is returned for lookups of unknown job ids.
var ErrNotFound = errors.New("job not found")

// ErrQueueFull is returned when a submission cannot be accepted because the
// pending queue is at capacity.
var ErrQueueFull = errors.New("job queue is full")

const (
	// DefaultQueueSize bounds how many jobs may sit queued at once.
	DefaultQueueSize = 256

	jobIDLength = 8
)

// Archiver uploads a finished job's artifact to long-term storage. A nil
// Archiver disables archiving.
type Archiver interface {
	ArchiveArtifact(ctx context.Context, jobID, path string) (string, error)
}

// Options configures a Manager.
type Options struct {
	// RootDir is the jobs directory; each job gets a workdir beneath it.
	RootDir string

	// Device identifies the compute device for stats profiling ("cuda" or
	// "cpu").
	Device string

	// Command maps a job config to the pipeline argv. Required.
	Command CommandFunc

	// PollInterval is the liveness/progress poll cadence. Zero means
	// runner.DefaultPollInterval.
	PollInterval time.Duration

	// StopGrace is how long cancellation waits between SIGTERM and SIGKILL.
	// Zero means runner.DefaultStopGrace.
	StopGrace time.Duration

	// QueueSize bounds the pending queue. Zero means DefaultQueueSize.
	QueueSize int

	// Archiver, when set, receives completed artifacts.
	Archiver Archiver

	Logger *zap.Logger
}

// Manager owns the job registry and the FIFO queue, and exposes every
// lifecycle operation. One worker goroutine (see Run) executes jobs strictly
// one at a time.
type Manager struct {
	mu   sync.Mutex
	jobs map[string]*Job

	queue chan string
	hub   *notify.Hub
	stats *stats.Store
	store *Store
	opts  Options
	log   *zap.Logger
}

// NewManager creates a manager rooted at opts.RootDir. The jobs directory is
// created eagerly so submission failures surface at startup, not per job.
func NewManager(hub *notify.Hub, statsStore *stats.Store, opts Options) (*Manager, error) {
	if strings.TrimSpace(opts.RootDir) == "" {
		return nil, fmt.Errorf("jobs root dir is required")
	}
	if opts.Command == nil {
		return nil, fmt.Errorf("pipeline command mapping is required")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = runner.DefaultPollInterval
	}
	if opts.StopGrace <= 0 {
		opts.StopGrace = runner.DefaultStopGrace
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if err := os.MkdirAll(opts.RootDir, 0755); err != nil {
		return nil, fmt.Errorf("create jobs root: %w", err)
	}
	return &Manager{
		jobs:  map[string]*Job{},
		queue: make(chan string, opts.QueueSize),
		hub:   hub,
		stats: statsStore,
		store: NewStore(opts.RootDir),
		opts:  opts,
		log:   opts.Logger,
	}, nil
}

// Hub exposes the notification hub so transports can subscribe observers.
func (m *Manager) Hub() *notify.Hub { return m.hub }

// Stats exposes the learned-duration store.
func (m *Manager) Stats() *stats.Store { return m.stats }

// Store exposes the on-disk record store.
func (m *Manager) Store() *Store { return m.store }

// Submit validates cfg, creates a workdir, registers the job as queued, and
// enqueues it. The returned snapshot reflects the queued state.
func (m *Manager) Submit(cfg Config) (Snapshot, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return Snapshot{}, err
	}

	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:jobIDLength]
	workdir := m.store.JobDir(id)

	for _, dir := range []string{
		filepath.Join(workdir, pipeline.WorkSubdir),
		filepath.Join(workdir, pipeline.OutputSubdir),
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return Snapshot{}, fmt.Errorf("create workdir: %w", err)
		}
	}
	if err := writeConfigFile(workdir, cfg); err != nil {
		return Snapshot{}, err
	}

	j := &Job{
		ID:        id,
		Config:    cfg,
		Status:    StatusQueued,
		CreatedAt: time.Now().UTC(),
		Workdir:   workdir,
	}

	m.mu.Lock()
	select {
	case m.queue <- id:
	default:
		m.mu.Unlock()
		_ = os.RemoveAll(workdir)
		return Snapshot{}, ErrQueueFull
	}
	m.jobs[id] = j
	m.persistLocked(j)
	snap := m.snapshotLocked(j)
	m.mu.Unlock()

	m.log.Info("job submitted",
		zap.String("job_id", id),
		zap.String("input", cfg.Input),
		zap.String("target_lang", cfg.TargetLang))
	m.hub.Publish(id, notify.Event{Event: notify.EventCreated, Job: snap})
	return snap, nil
}

// Get returns the current snapshot of one job.
func (m *Manager) Get(id string) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return m.snapshotLocked(j), nil
}

// List returns snapshots of every registered job, newest first.
func (m *Manager) List() []Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Snapshot, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, m.snapshotLocked(j))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Cancel requests cancellation of a job.
//
// A queued job is cancelled immediately. A running job receives SIGTERM and,
// after the grace period, SIGKILL; Cancel blocks until the process is gone
// and the worker then finalizes the status. Cancel reports false when the
// job is already terminal or its process already exited.
func (m *Manager) Cancel(id string) (bool, error) {
	m.mu.Lock()
	j, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return false, ErrNotFound
	}

	switch j.Status {
	case StatusQueued:
		now := time.Now().UTC()
		j.Status = StatusCancelled
		j.StartedAt = &now
		j.FinishedAt = &now
		j.cancelRequested = true
		m.persistLocked(j)
		snap := m.snapshotLocked(j)
		m.mu.Unlock()
		m.log.Info("queued job cancelled", zap.String("job_id", id))
		m.hub.Publish(id, notify.Event{Event: notify.EventCancelled, Job: snap})
		return true, nil

	case StatusRunning:
		j.cancelRequested = true
		proc := j.proc
		m.mu.Unlock()
		if proc == nil {
			// The worker claimed the job but has not spawned yet; it
			// checks cancelRequested right after and stops the process.
			return true, nil
		}
		return proc.Stop(m.opts.StopGrace), nil

	default:
		m.mu.Unlock()
		return false, nil
	}
}

// Delete removes a terminal job from the registry together with its workdir.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	j, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	if !j.Status.Terminal() {
		m.mu.Unlock()
		return fmt.Errorf("job %s is %s; cancel it first", id, j.Status)
	}
	delete(m.jobs, id)
	m.mu.Unlock()

	if err := os.RemoveAll(j.Workdir); err != nil {
		return fmt.Errorf("remove workdir: %w", err)
	}
	m.log.Info("job deleted", zap.String("job_id", id))
	return nil
}

// Resubmit creates a fresh job from an existing job's config. The source job
// may be in any state; falling back to the on-disk record lets finished work
// from a previous server run be resubmitted too.
func (m *Manager) Resubmit(id string) (Snapshot, error) {
	m.mu.Lock()
	j, ok := m.jobs[id]
	var cfg Config
	if ok {
		cfg = j.Config
	}
	m.mu.Unlock()

	if !ok {
		rec, err := m.store.Get(id)
		if err != nil {
			return Snapshot{}, ErrNotFound
		}
		cfg = rec.Config
	}
	return m.Submit(cfg)
}

// ReadLogs returns the job's combined pipeline output. When tail is
// positive, only the last tail lines are returned.
func (m *Manager) ReadLogs(id string, tail int) (string, error) {
	m.mu.Lock()
	j, ok := m.jobs[id]
	m.mu.Unlock()

	var workdir string
	if ok {
		workdir = j.Workdir
	} else {
		if _, err := m.store.Get(id); err != nil {
			return "", ErrNotFound
		}
		workdir = m.store.JobDir(id)
	}

	b, err := os.ReadFile(filepath.Join(workdir, LogFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read log: %w", err)
	}
	if tail <= 0 {
		return string(b), nil
	}
	content := strings.TrimRight(string(b), "\n")
	if content == "" {
		return "", nil
	}
	lines := strings.Split(content, "\n")
	if len(lines) > tail {
		lines = lines[len(lines)-tail:]
	}
	return strings.Join(lines, "\n") + "\n", nil
}

// ArtifactPath resolves the finished artifact of a completed job.
func (m *Manager) ArtifactPath(id string) (string, error) {
	m.mu.Lock()
	j, ok := m.jobs[id]
	m.mu.Unlock()
	if !ok {
		return "", ErrNotFound
	}
	if j.Status != StatusCompleted {
		return "", fmt.Errorf("job %s is %s; no artifact available", id, j.Status)
	}
	return FindArtifact(j.Workdir)
}

// Estimate predicts remaining time for a job from its checkpoint and the
// learned stage averages for its engine profile.
func (m *Manager) Estimate(id string) (stats.Estimate, error) {
	m.mu.Lock()
	j, ok := m.jobs[id]
	m.mu.Unlock()
	if !ok {
		return stats.Estimate{}, ErrNotFound
	}
	cp := pipeline.ReadCheckpoint(j.Workdir)
	return m.stats.Estimate(j.Config.Profile(m.opts.Device), cp.LastStepNum), nil
}

// snapshotLocked builds the external view. Caller holds m.mu.
func (m *Manager) snapshotLocked(j *Job) Snapshot {
	cp := pipeline.ReadCheckpoint(j.Workdir)
	return Snapshot{
		ID:         j.ID,
		Status:     j.Status,
		Config:     j.Config,
		CreatedAt:  j.CreatedAt,
		StartedAt:  j.StartedAt,
		FinishedAt: j.FinishedAt,
		DurationS:  j.durationSeconds(time.Now().UTC()),
		Error:      j.Error,
		Checkpoint: cp,
		Progress:   pipeline.ComputeProgress(cp),
	}
}

// persistLocked mirrors the job to its on-disk record. Persistence is best
// effort; the in-memory registry stays authoritative.
func (m *Manager) persistLocked(j *Job) {
	rec := &Record{
		ID:         j.ID,
		Status:     j.Status,
		Config:     j.Config,
		CreatedAt:  j.CreatedAt,
		StartedAt:  j.StartedAt,
		FinishedAt: j.FinishedAt,
		Error:      j.Error,
	}
	if j.proc != nil && j.Status == StatusRunning {
		rec.PID = j.proc.PID()
	}
	if err := m.store.Write(rec); err != nil {
		m.log.Warn("persist job record", zap.String("job_id", j.ID), zap.Error(err))
	}
}

func writeConfigFile(workdir string, cfg Config) error {
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	b = append(b, '\n')
	if err := os.WriteFile(filepath.Join(workdir, ConfigFileName), b, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
