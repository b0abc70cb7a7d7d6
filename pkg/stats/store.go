// Package stats learns per-stage pipeline durations from completed jobs and
// estimates remaining time for in-flight ones.
//
// Durations are keyed by an engine/model/device profile rather than globally:
// stage cost is dominated by which synthesis and translation engines run on
// which device, so a single global average would be meaningless. Each
// profile/stage pair keeps a bounded window of the most recent samples,
// privileging current hardware and load conditions over stale history.
package stats

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	// maxStageSamples bounds the per-stage sample window.
	maxStageSamples = 10

	// maxTotalTimes bounds the total-duration history kept for reporting.
	maxTotalTimes = 50
)

// StageTimes holds the learning state for one stage under one profile.
type StageTimes struct {
	Samples []float64 `json:"samples"`
	Avg     float64   `json:"avg"`
}

// TotalTime is one completed-job duration, kept for reporting only.
type TotalTime struct {
	Profile   string  `json:"profile"`
	Total     float64 `json:"total"`
	Timestamp float64 `json:"timestamp"`
}

// Data is the on-disk shape of the stats store.
type Data struct {
	JobsCompleted int                               `json:"jobs_completed"`
	StageTimes    map[string]map[string]*StageTimes `json:"stage_times"`
	TotalTimes    []TotalTime                       `json:"total_times"`
}

func emptyData() *Data {
	return &Data{
		StageTimes: map[string]map[string]*StageTimes{},
		TotalTimes: []TotalTime{},
	}
}

// Store persists learned durations to a single JSON file.
//
// The file is read fresh on every operation and fully rewritten on every
// update; there is no long-lived cache. A missing or corrupt file reads as
// an empty store, never an error.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore creates a store backed by the given file path. The file is
// created on first Record.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) load() *Data {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return emptyData()
	}
	var d Data
	if err := json.Unmarshal(b, &d); err != nil {
		return emptyData()
	}
	if d.StageTimes == nil {
		d.StageTimes = map[string]map[string]*StageTimes{}
	}
	return &d
}

// save rewrites the whole store atomically (temp file + rename), so a
// concurrent reader never observes a torn write.
func (s *Store) save(d *Data) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create stats dir: %w", err)
	}

	b, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}
	b = append(b, '\n')

	tmp, err := os.CreateTemp(dir, "stats.json.tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp stats file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp stats file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("rename stats file: %w", err)
	}
	return nil
}

// Record learns from one completed job: each supplied stage duration is
// appended to that stage's bounded sample window (oldest evicted first) and
// the running average is recomputed. The total duration goes into the capped
// reporting history. The whole store is persisted before returning.
func (s *Store) Record(profileKey string, stageDurations map[string]float64, totalDuration float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.load()
	d.JobsCompleted++

	profile := d.StageTimes[profileKey]
	if profile == nil {
		profile = map[string]*StageTimes{}
		d.StageTimes[profileKey] = profile
	}

	for stageID, duration := range stageDurations {
		st := profile[stageID]
		if st == nil {
			st = &StageTimes{}
			profile[stageID] = st
		}
		st.Samples = append(st.Samples, round1(duration))
		if len(st.Samples) > maxStageSamples {
			st.Samples = st.Samples[len(st.Samples)-maxStageSamples:]
		}
		st.Avg = round1(mean(st.Samples))
	}

	d.TotalTimes = append(d.TotalTimes, TotalTime{
		Profile:   profileKey,
		Total:     round1(totalDuration),
		Timestamp: float64(time.Now().UnixNano()) / 1e9,
	})
	if len(d.TotalTimes) > maxTotalTimes {
		d.TotalTimes = d.TotalTimes[len(d.TotalTimes)-maxTotalTimes:]
	}

	return s.save(d)
}

// Summary is the reporting view of the store.
type Summary struct {
	JobsCompleted int                             `json:"jobs_completed"`
	Profiles      map[string]map[string]StageStat `json:"profiles"`
}

// StageStat is one stage's learned timing within a profile.
type StageStat struct {
	Samples int     `json:"samples"`
	Avg     float64 `json:"avg_seconds"`
}

// Summarize returns the reporting summary.
func (s *Store) Summarize() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.load()
	profiles := make(map[string]map[string]StageStat, len(d.StageTimes))
	for profile, stages := range d.StageTimes {
		out := make(map[string]StageStat, len(stages))
		for stage, st := range stages {
			out[stage] = StageStat{Samples: len(st.Samples), Avg: st.Avg}
		}
		profiles[profile] = out
	}
	return Summary{
		JobsCompleted: d.JobsCompleted,
		Profiles:      profiles,
	}
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func round1(x float64) float64 {
	return math.Round(x*10) / 10
}
