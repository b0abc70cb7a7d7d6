package runner

import (
	"context"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shSpec(t *testing.T, script string) Spec {
	t.Helper()
	dir := t.TempDir()
	return Spec{
		Args:    []string{"/bin/sh", "-c", script},
		Dir:     dir,
		LogPath: filepath.Join(dir, "output.log"),
	}
}

func TestStart_CleanExit(t *testing.T) {
	p, err := Start(shSpec(t, "echo hello; exit 0"))
	require.NoError(t, err)

	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit")
	}

	assert.Equal(t, 0, p.ExitCode())
	assert.False(t, p.TermSignaled())
	assert.False(t, p.Alive())
}

func TestStart_NonZeroExit(t *testing.T) {
	p, err := Start(shSpec(t, "exit 3"))
	require.NoError(t, err)
	<-p.Done()

	assert.Equal(t, 3, p.ExitCode())
	assert.False(t, p.TermSignaled())
}

func TestStart_SignalDeathReportsSignalNumber(t *testing.T) {
	p, err := Start(shSpec(t, "kill -USR1 $$"))
	require.NoError(t, err)
	<-p.Done()

	assert.Equal(t, -int(syscall.SIGUSR1), p.ExitCode())
	assert.False(t, p.TermSignaled())
}

func TestStart_SpawnFailure(t *testing.T) {
	spec := shSpec(t, "")
	spec.Args = []string{"/no/such/binary"}

	_, err := Start(spec)
	require.Error(t, err)
}

func TestStart_EmptyCommand(t *testing.T) {
	_, err := Start(Spec{LogPath: filepath.Join(t.TempDir(), "out.log")})
	require.Error(t, err)
}

func TestStart_LogCapturesCombinedOutput(t *testing.T) {
	spec := shSpec(t, "echo out; echo err 1>&2")
	p, err := Start(spec)
	require.NoError(t, err)
	<-p.Done()

	b, err := os.ReadFile(spec.LogPath)
	require.NoError(t, err)
	assert.Contains(t, string(b), "out")
	assert.Contains(t, string(b), "err")
}

func TestStart_LogTruncatedEachRun(t *testing.T) {
	spec := shSpec(t, "echo fresh")
	require.NoError(t, os.WriteFile(spec.LogPath, []byte("stale stale stale\n"), 0644))

	p, err := Start(spec)
	require.NoError(t, err)
	<-p.Done()

	b, err := os.ReadFile(spec.LogPath)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "stale")
}

func TestStop_GracefulTermination(t *testing.T) {
	p, err := Start(shSpec(t, "sleep 30"))
	require.NoError(t, err)

	stopped := p.Stop(5 * time.Second)
	assert.True(t, stopped)
	assert.False(t, p.Alive())
	assert.True(t, p.TermSignaled())
}

func TestStop_AlreadyExited(t *testing.T) {
	p, err := Start(shSpec(t, "exit 0"))
	require.NoError(t, err)
	<-p.Done()

	// Nothing left to cancel.
	assert.False(t, p.Stop(time.Second))
}

func TestStop_EscalatesToKill(t *testing.T) {
	// Trap TERM so only SIGKILL can end the process.
	p, err := Start(shSpec(t, "trap '' TERM; while true; do sleep 0.1; done"))
	require.NoError(t, err)

	start := time.Now()
	stopped := p.Stop(500 * time.Millisecond)
	assert.True(t, stopped)
	assert.True(t, p.TermSignaled())
	assert.GreaterOrEqual(t, time.Since(start), 500*time.Millisecond)
}

func TestMonitor_TicksWhileRunning(t *testing.T) {
	p, err := Start(shSpec(t, "sleep 1"))
	require.NoError(t, err)

	ticks := 0
	err = p.Monitor(context.Background(), 100*time.Millisecond, func() { ticks++ })
	require.NoError(t, err)
	assert.Greater(t, ticks, 2)
	assert.False(t, p.Alive())
}

func TestMonitor_ContextCancel(t *testing.T) {
	p, err := Start(shSpec(t, "sleep 30"))
	require.NoError(t, err)
	defer p.Stop(time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err = p.Monitor(ctx, 50*time.Millisecond, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	// The process itself keeps running.
	assert.True(t, p.Alive())
}
