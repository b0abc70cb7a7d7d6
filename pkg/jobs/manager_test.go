package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inematds/inemavox/pkg/notify"
	"github.com/inematds/inemavox/pkg/stats"
)

// shCommand runs the given shell script in place of the real pipeline.
func shCommand(script string) CommandFunc {
	return func(cfg Config, workdir string) []string {
		return []string{"/bin/sh", "-c", script}
	}
}

func newTestManager(t *testing.T, cmd CommandFunc) *Manager {
	t.Helper()
	dir := t.TempDir()
	st := stats.NewStore(filepath.Join(dir, "stats.json"))
	m, err := NewManager(notify.NewHub(), st, Options{
		RootDir:      filepath.Join(dir, "jobs"),
		Device:       "cpu",
		Command:      cmd,
		PollInterval: 20 * time.Millisecond,
		StopGrace:    500 * time.Millisecond,
	})
	require.NoError(t, err)
	return m
}

func startWorker(t *testing.T, m *Manager) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func waitStatus(t *testing.T, m *Manager, id string, want Status) Snapshot {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		snap, err := m.Get(id)
		require.NoError(t, err)
		if snap.Status == want {
			return snap
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s never reached status %s", id, want)
	return Snapshot{}
}

// memSink collects delivered events for assertions.
type memSink struct {
	mu     sync.Mutex
	events []notify.Event
}

func (s *memSink) Send(ev notify.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *memSink) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Event
	}
	return out
}

func TestSubmitValidation(t *testing.T) {
	m := newTestManager(t, shCommand("true"))

	_, err := m.Submit(Config{TargetLang: "pt"})
	require.Error(t, err)

	// target_lang is required and never defaulted in.
	_, err = m.Submit(Config{Input: "movie.mp4"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "target_lang")

	assert.Empty(t, m.List())
}

func TestSubmitCreatesWorkdir(t *testing.T) {
	m := newTestManager(t, shCommand("true"))
	snap, err := m.Submit(Config{Input: "movie.mp4", TargetLang: "pt"})
	require.NoError(t, err)

	assert.Equal(t, StatusQueued, snap.Status)
	assert.Len(t, snap.ID, 8)
	assert.Nil(t, snap.StartedAt)

	workdir := m.Store().JobDir(snap.ID)
	assert.DirExists(t, filepath.Join(workdir, "dub_work"))
	assert.DirExists(t, filepath.Join(workdir, "out"))
	assert.FileExists(t, filepath.Join(workdir, "config.json"))
	assert.FileExists(t, filepath.Join(workdir, "job.json"))
}

func TestJobCompletes(t *testing.T) {
	m := newTestManager(t, shCommand("echo hello pipeline; exit 0"))
	snap, err := m.Submit(Config{Input: "movie.mp4", TargetLang: "pt"})
	require.NoError(t, err)

	sink := &memSink{}
	m.Hub().Subscribe(snap.ID, sink)
	startWorker(t, m)

	final := waitStatus(t, m, snap.ID, StatusCompleted)
	require.NotNil(t, final.StartedAt)
	require.NotNil(t, final.FinishedAt)
	assert.False(t, final.StartedAt.Before(final.CreatedAt))
	assert.False(t, final.FinishedAt.Before(*final.StartedAt))
	assert.Empty(t, final.Error)

	log, err := m.ReadLogs(snap.ID, 0)
	require.NoError(t, err)
	assert.Contains(t, log, "hello pipeline")

	names := sink.names()
	require.NotEmpty(t, names)
	assert.Equal(t, notify.EventStarted, names[0])
	assert.Equal(t, notify.EventFinished, names[len(names)-1])
}

func TestJobFailsWithExitCode(t *testing.T) {
	m := newTestManager(t, shCommand("exit 3"))
	snap, err := m.Submit(Config{Input: "movie.mp4", TargetLang: "pt"})
	require.NoError(t, err)

	startWorker(t, m)

	final := waitStatus(t, m, snap.ID, StatusFailed)
	assert.Equal(t, "Exit code: 3", final.Error)
	require.NotNil(t, final.FinishedAt)
}

func TestJobKilledBySignalReportsSignalNumber(t *testing.T) {
	m := newTestManager(t, shCommand("kill -USR1 $$"))
	snap, err := m.Submit(Config{Input: "movie.mp4", TargetLang: "pt"})
	require.NoError(t, err)

	startWorker(t, m)

	final := waitStatus(t, m, snap.ID, StatusFailed)
	assert.Equal(t, "Exit code: "+strconv.Itoa(-int(syscall.SIGUSR1)), final.Error)
}

func TestJobSpawnFailure(t *testing.T) {
	m := newTestManager(t, func(cfg Config, workdir string) []string {
		return []string{"/no/such/binary"}
	})
	snap, err := m.Submit(Config{Input: "movie.mp4", TargetLang: "pt"})
	require.NoError(t, err)

	startWorker(t, m)

	final := waitStatus(t, m, snap.ID, StatusFailed)
	assert.NotEmpty(t, final.Error)
	assert.NotContains(t, final.Error, "Exit code")
}

func TestSingleRunningInvariant(t *testing.T) {
	dir := t.TempDir()
	trace := filepath.Join(dir, "trace")
	script := fmt.Sprintf("echo start >> %s; sleep 0.2; echo end >> %s", trace, trace)

	m := newTestManager(t, shCommand(script))
	first, err := m.Submit(Config{Input: "a.mp4", TargetLang: "pt"})
	require.NoError(t, err)
	second, err := m.Submit(Config{Input: "b.mp4", TargetLang: "pt"})
	require.NoError(t, err)

	startWorker(t, m)

	s1 := waitStatus(t, m, first.ID, StatusCompleted)
	s2 := waitStatus(t, m, second.ID, StatusCompleted)

	// FIFO execution: the second job starts only after the first finishes.
	require.NotNil(t, s1.FinishedAt)
	require.NotNil(t, s2.StartedAt)
	assert.False(t, s2.StartedAt.Before(*s1.FinishedAt))

	b, err := os.ReadFile(trace)
	require.NoError(t, err)
	lines := strings.Fields(string(b))
	assert.Equal(t, []string{"start", "end", "start", "end"}, lines)
}

func TestCancelQueued(t *testing.T) {
	m := newTestManager(t, shCommand("true"))
	snap, err := m.Submit(Config{Input: "movie.mp4", TargetLang: "pt"})
	require.NoError(t, err)

	ok, err := m.Cancel(snap.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := m.Get(snap.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
	require.NotNil(t, got.StartedAt)
	require.NotNil(t, got.FinishedAt)

	// Already terminal: cancel reports false.
	ok, err = m.Cancel(snap.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCancelledQueuedJobNeverRuns(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "ran")
	m := newTestManager(t, shCommand("touch "+marker))

	snap, err := m.Submit(Config{Input: "movie.mp4", TargetLang: "pt"})
	require.NoError(t, err)
	ok, err := m.Cancel(snap.ID)
	require.NoError(t, err)
	require.True(t, ok)

	startWorker(t, m)

	// Give the worker a chance to (wrongly) pick the stale entry up.
	time.Sleep(200 * time.Millisecond)
	assert.NoFileExists(t, marker)
}

func TestCancelledDuringDispatchStaysTerminal(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "ran")
	m := newTestManager(t, shCommand("touch "+marker))

	snap, err := m.Submit(Config{Input: "movie.mp4", TargetLang: "pt"})
	require.NoError(t, err)

	// Cancel lands after the worker's dequeue check but before the job is
	// claimed; drive the dispatch path directly to hit that window.
	ok, err := m.Cancel(snap.ID)
	require.NoError(t, err)
	require.True(t, ok)

	m.mu.Lock()
	j := m.jobs[snap.ID]
	m.mu.Unlock()
	m.runJob(context.Background(), j)

	got, err := m.Get(snap.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
	assert.NoFileExists(t, marker)
}

func TestCancelRunning(t *testing.T) {
	m := newTestManager(t, shCommand("sleep 30"))
	snap, err := m.Submit(Config{Input: "movie.mp4", TargetLang: "pt"})
	require.NoError(t, err)

	startWorker(t, m)
	waitStatus(t, m, snap.ID, StatusRunning)

	ok, err := m.Cancel(snap.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	final := waitStatus(t, m, snap.ID, StatusCancelled)
	assert.Empty(t, final.Error)
	require.NotNil(t, final.FinishedAt)
}

func TestCancelUnknown(t *testing.T) {
	m := newTestManager(t, shCommand("true"))
	_, err := m.Cancel("missing1")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestQueueFull(t *testing.T) {
	dir := t.TempDir()
	st := stats.NewStore(filepath.Join(dir, "stats.json"))
	m, err := NewManager(notify.NewHub(), st, Options{
		RootDir:   filepath.Join(dir, "jobs"),
		Command:   shCommand("true"),
		QueueSize: 1,
	})
	require.NoError(t, err)

	_, err = m.Submit(Config{Input: "a.mp4", TargetLang: "pt"})
	require.NoError(t, err)
	_, err = m.Submit(Config{Input: "b.mp4", TargetLang: "pt"})
	assert.True(t, errors.Is(err, ErrQueueFull))
	assert.Len(t, m.List(), 1)
}

func TestResubmit(t *testing.T) {
	m := newTestManager(t, shCommand("true"))
	orig, err := m.Submit(Config{Input: "movie.mp4", TargetLang: "es", Voice: "anna"})
	require.NoError(t, err)

	again, err := m.Resubmit(orig.ID)
	require.NoError(t, err)

	assert.NotEqual(t, orig.ID, again.ID)
	assert.Equal(t, StatusQueued, again.Status)
	assert.Equal(t, orig.Config, again.Config)
}

func TestResubmitUnknown(t *testing.T) {
	m := newTestManager(t, shCommand("true"))
	_, err := m.Resubmit("missing1")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestDelete(t *testing.T) {
	m := newTestManager(t, shCommand("true"))
	snap, err := m.Submit(Config{Input: "movie.mp4", TargetLang: "pt"})
	require.NoError(t, err)

	// Non-terminal jobs cannot be deleted.
	require.Error(t, m.Delete(snap.ID))

	ok, err := m.Cancel(snap.ID)
	require.NoError(t, err)
	require.True(t, ok)

	workdir := m.Store().JobDir(snap.ID)
	require.NoError(t, m.Delete(snap.ID))
	assert.NoDirExists(t, workdir)

	_, err = m.Get(snap.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestListNewestFirst(t *testing.T) {
	m := newTestManager(t, shCommand("true"))
	first, err := m.Submit(Config{Input: "a.mp4", TargetLang: "pt"})
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	second, err := m.Submit(Config{Input: "b.mp4", TargetLang: "pt"})
	require.NoError(t, err)

	list := m.List()
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)
}

func TestReadLogsTail(t *testing.T) {
	m := newTestManager(t, shCommand("true"))
	snap, err := m.Submit(Config{Input: "movie.mp4", TargetLang: "pt"})
	require.NoError(t, err)

	logPath := filepath.Join(m.Store().JobDir(snap.ID), LogFileName)
	require.NoError(t, os.WriteFile(logPath, []byte("one\ntwo\nthree\nfour\n"), 0644))

	out, err := m.ReadLogs(snap.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, "three\nfour\n", out)

	full, err := m.ReadLogs(snap.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\nthree\nfour\n", full)
}

func TestReadLogsEmptyFileWithTail(t *testing.T) {
	m := newTestManager(t, shCommand("true"))
	snap, err := m.Submit(Config{Input: "movie.mp4", TargetLang: "pt"})
	require.NoError(t, err)

	logPath := filepath.Join(m.Store().JobDir(snap.ID), LogFileName)
	require.NoError(t, os.WriteFile(logPath, nil, 0644))

	out, err := m.ReadLogs(snap.ID, 5)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestReadLogsMissingFile(t *testing.T) {
	m := newTestManager(t, shCommand("true"))
	snap, err := m.Submit(Config{Input: "movie.mp4", TargetLang: "pt"})
	require.NoError(t, err)

	out, err := m.ReadLogs(snap.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestCompletedJobRecordsStats(t *testing.T) {
	m := newTestManager(t, shCommand("sleep 0.1"))
	snap, err := m.Submit(Config{Input: "movie.mp4", TargetLang: "pt"})
	require.NoError(t, err)

	startWorker(t, m)
	waitStatus(t, m, snap.ID, StatusCompleted)

	sum := m.Stats().Summarize()
	assert.Equal(t, 1, sum.JobsCompleted)
}

func TestFailedJobRecordsNoStats(t *testing.T) {
	m := newTestManager(t, shCommand("exit 1"))
	snap, err := m.Submit(Config{Input: "movie.mp4", TargetLang: "pt"})
	require.NoError(t, err)

	startWorker(t, m)
	waitStatus(t, m, snap.ID, StatusFailed)

	sum := m.Stats().Summarize()
	assert.Equal(t, 0, sum.JobsCompleted)
}

func TestProgressFromCheckpoint(t *testing.T) {
	// The fake pipeline writes a checkpoint claiming four completed stages
	// then waits, so the running snapshot must reflect it.
	script := `cat > dub_work/checkpoint.json <<'EOF'
{"last_step_num": 4, "last_step": "translation", "last_step_name": "Translation"}
EOF
sleep 30`
	m := newTestManager(t, shCommand(script))
	snap, err := m.Submit(Config{Input: "movie.mp4", TargetLang: "pt"})
	require.NoError(t, err)

	startWorker(t, m)
	waitStatus(t, m, snap.ID, StatusRunning)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		got, err := m.Get(snap.ID)
		require.NoError(t, err)
		if got.Checkpoint.LastStepNum == 4 {
			assert.Equal(t, 40, got.Progress.Percent)
			assert.Equal(t, "split", got.Progress.StageName)
			ok, err := m.Cancel(snap.ID)
			require.NoError(t, err)
			require.True(t, ok)
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("checkpoint never observed")
}
