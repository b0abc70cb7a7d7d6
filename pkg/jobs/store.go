package jobs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"
)

// Record is the on-disk mirror of a job, written to <workdir>/job.json on
// every status transition. It exists so the CLI can inspect jobs without a
// live server and so finished work survives restarts.
type Record struct {
	ID         string     `json:"id"`
	Status     Status     `json:"status"`
	Config     Config     `json:"config"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	PID        int        `json:"pid,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Store persists and loads Records from an on-disk jobs directory.
//
// Directory layout:
//
//	<root>/<job_id>/job.json
//	<root>/<job_id>/config.json
//	<root>/<job_id>/output.log
//	<root>/<job_id>/dub_work/checkpoint.json
//	<root>/<job_id>/out/...
type Store struct {
	root string
}

func NewStore(root string) *Store {
	return &Store{root: strings.TrimSpace(root)}
}

func (s *Store) RootDir() string {
	return s.root
}

func (s *Store) JobDir(jobID string) string {
	return filepath.Join(s.root, jobID)
}

func (s *Store) JobPath(jobID string) string {
	return filepath.Join(s.JobDir(jobID), "job.json")
}

func (s *Store) ensureRoot() error {
	if strings.TrimSpace(s.root) == "" {
		return fmt.Errorf("jobs root dir is empty")
	}
	return os.MkdirAll(s.root, 0755)
}

func (s *Store) Write(record *Record) error {
	if record == nil {
		return fmt.Errorf("job record is nil")
	}
	jobID := strings.TrimSpace(record.ID)
	if jobID == "" {
		return fmt.Errorf("job id is required")
	}
	if err := s.ensureRoot(); err != nil {
		return err
	}

	jobDir := s.JobDir(jobID)
	if err := os.MkdirAll(jobDir, 0755); err != nil {
		return fmt.Errorf("create job dir: %w", err)
	}

	b, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal job record: %w", err)
	}
	b = append(b, '\n')

	tmp, err := os.CreateTemp(jobDir, "job.json.tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp job file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp job file: %w", err)
	}

	finalPath := s.JobPath(jobID)
	if err := os.Rename(tmpName, finalPath); err != nil {
		return fmt.Errorf("rename job file: %w", err)
	}
	return nil
}

func (s *Store) Get(jobID string) (*Record, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, fmt.Errorf("job id is required")
	}
	path := s.JobPath(jobID)
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(string(b))
	if trimmed == "" {
		return nil, fmt.Errorf("job.json is empty")
	}

	var record Record
	if err := json.Unmarshal([]byte(trimmed), &record); err != nil {
		return nil, fmt.Errorf("parse job.json: %w", err)
	}

	// Zombie detection: a record still claiming running whose pid is gone
	// belongs to a dead server. Mark it failed so CLI output is honest.
	if record.Status == StatusRunning && record.PID > 0 {
		if !isProcessAlive(record.PID) {
			record.Status = StatusFailed
			record.Error = "process disappeared"
			now := time.Now().UTC()
			record.FinishedAt = &now
			_ = s.Write(&record)
		}
	}

	return &record, nil
}

func (s *Store) List() ([]Record, error) {
	if err := s.ensureRoot(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read jobs root: %w", err)
	}

	out := make([]Record, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		r, err := s.Get(entry.Name())
		if err != nil {
			continue
		}
		out = append(out, *r)
	}

	sort.Slice(out, func(i, j int) bool {
		return recordSortTime(out[i]).After(recordSortTime(out[j]))
	})

	return out, nil
}

func recordSortTime(r Record) time.Time {
	if r.StartedAt != nil {
		return r.StartedAt.UTC()
	}
	return r.CreatedAt.UTC()
}

func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// signal 0 checks for existence without delivering anything.
	if err := p.Signal(os.Signal(syscall.Signal(0))); err != nil {
		return false
	}
	return true
}
