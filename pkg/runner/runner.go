// Package runner spawns and supervises one external pipeline process per
// job.
//
// The runner knows nothing about job semantics: it takes an argv, a working
// directory, and a log path, and reports how the process ended. Command
// construction from a job's configuration belongs to the caller.
package runner

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// DefaultPollInterval is the liveness poll cadence while a process runs.
const DefaultPollInterval = 2 * time.Second

// DefaultStopGrace is how long Stop waits after the graceful signal before
// escalating to a hard kill.
const DefaultStopGrace = 10 * time.Second

// Spec describes one external process invocation.
type Spec struct {
	// Args is the full argv; Args[0] is the executable.
	Args []string

	// Dir is the process working directory (the job's workdir).
	Dir string

	// LogPath receives combined stdout and stderr, truncated fresh on
	// every run.
	LogPath string

	// Env holds extra environment entries appended to the parent
	// environment.
	Env []string
}

// Process is a handle to a spawned pipeline process.
type Process struct {
	cmd  *exec.Cmd
	done chan struct{}

	mu       sync.Mutex
	exitCode int
	signaled bool
}

// Start spawns the process described by spec. The log file is created (or
// truncated) before the process starts; a spawn failure is returned to the
// caller and leaves no running process behind.
func Start(spec Spec) (*Process, error) {
	if len(spec.Args) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	logFile, err := os.Create(spec.LogPath)
	if err != nil {
		return nil, fmt.Errorf("create log file: %w", err)
	}

	cmd := exec.Command(spec.Args[0], spec.Args[1:]...)
	cmd.Dir = spec.Dir
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Env = append(os.Environ(), spec.Env...)

	if err := cmd.Start(); err != nil {
		_ = logFile.Close()
		return nil, fmt.Errorf("start pipeline: %w", err)
	}

	p := &Process{
		cmd:      cmd,
		done:     make(chan struct{}),
		exitCode: -1,
	}

	go func() {
		defer close(p.done)
		err := cmd.Wait()
		_ = logFile.Close()

		p.mu.Lock()
		defer p.mu.Unlock()
		if state := cmd.ProcessState; state != nil {
			p.exitCode = state.ExitCode()
			if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
				sig := ws.Signal()
				p.signaled = sig == syscall.SIGTERM || sig == syscall.SIGKILL
				// Signal deaths report as the negative signal number so
				// e.g. a SIGSEGV surfaces as exit code -11.
				p.exitCode = -int(sig)
			}
		}
		_ = err
	}()

	return p, nil
}

// PID returns the process id.
func (p *Process) PID() int {
	return p.cmd.Process.Pid
}

// Done is closed once the process has exited and its state is recorded.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Alive reports whether the process is still running.
func (p *Process) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// ExitCode returns the recorded exit code. Only meaningful after Done is
// closed; -1 while running. A process ended by a signal reports the
// negative signal number.
func (p *Process) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode
}

// TermSignaled reports whether the process was ended by the supervisor's
// cancellation signals (SIGTERM or SIGKILL).
func (p *Process) TermSignaled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.signaled
}

// Stop requests graceful termination and escalates to SIGKILL after the
// grace period. It returns false when the process had already exited, true
// once the process is down.
//
// Stop blocks for at most grace plus the (short) time SIGKILL needs to take
// effect.
func (p *Process) Stop(grace time.Duration) bool {
	if !p.Alive() {
		return false
	}
	if grace <= 0 {
		grace = DefaultStopGrace
	}

	_ = p.cmd.Process.Signal(syscall.SIGTERM)

	select {
	case <-p.done:
		return true
	case <-time.After(grace):
	}

	_ = p.cmd.Process.Kill()
	<-p.done
	return true
}

// Monitor blocks until the process exits, invoking onTick on every poll
// interval while the process is alive. It returns ctx.Err() if the context
// ends first; the process itself is not affected by context cancellation.
func (p *Process) Monitor(ctx context.Context, interval time.Duration, onTick func()) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if onTick != nil {
				onTick()
			}
		}
	}
}
