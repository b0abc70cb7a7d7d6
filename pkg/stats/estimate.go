package stats

import (
	"fmt"

	"github.com/inematds/inemavox/pkg/pipeline"
)

// DeviceGPU is the device string reported for CUDA-capable hosts; anything
// else is treated as CPU.
const DeviceGPU = "cuda"

// EngineProfile identifies the engine/model/device combination that governs
// expected stage durations.
type EngineProfile struct {
	TTSEngine         string
	TranslationEngine string
	WhisperModel      string
	Device            string
}

// Key derives the composite profile key used in the stats store.
func (p EngineProfile) Key() string {
	return fmt.Sprintf("%s_%s_%s_%s", p.TTSEngine, p.TranslationEngine, p.WhisperModel, p.Device)
}

// IsGPU reports whether the profile runs on a GPU device.
func (p EngineProfile) IsGPU() bool {
	return p.Device == DeviceGPU
}

// Confidence grades how much learned data backs an estimate.
type Confidence string

const (
	// ConfidenceLow means no profile exists; the estimate is pure defaults.
	ConfidenceLow Confidence = "low"
	// ConfidenceMedium means a profile exists with fewer than five learned stages.
	ConfidenceMedium Confidence = "medium"
	// ConfidenceHigh means the profile has learned data for five or more stages.
	ConfidenceHigh Confidence = "high"
)

// StageEstimate is the per-stage component of an Estimate.
type StageEstimate struct {
	Status     string  `json:"status"`
	EstSeconds float64 `json:"est_seconds,omitempty"`
}

// Estimate is a remaining-time prediction for an in-flight job.
type Estimate struct {
	ETASeconds int                      `json:"eta_seconds"`
	Confidence Confidence               `json:"confidence"`
	Stages     map[string]StageEstimate `json:"stage_estimates"`
}

// Estimate predicts remaining duration for a job whose checkpoint reports
// currentStage completed stages (catalog Num <= currentStage counts as done).
//
// Pending stages use the profile's learned average when samples exist and
// fall back to the static defaults table otherwise. The ETA is the sum over
// pending stages, so it is non-increasing as stages complete.
func (s *Store) Estimate(profile EngineProfile, currentStage int) Estimate {
	s.mu.Lock()
	learned := s.load().StageTimes[profile.Key()]
	s.mu.Unlock()

	est := Estimate{Stages: make(map[string]StageEstimate, len(pipeline.Stages))}

	var remaining float64
	for _, stage := range pipeline.Stages {
		if stage.Num <= currentStage {
			est.Stages[stage.ID] = StageEstimate{Status: "done"}
			continue
		}
		seconds := 0.0
		if st := learned[stage.ID]; st != nil && st.Avg > 0 {
			seconds = st.Avg
		} else {
			seconds = defaultStageSeconds(stage.ID, profile)
		}
		est.Stages[stage.ID] = StageEstimate{Status: "pending", EstSeconds: seconds}
		remaining += seconds
	}

	est.ETASeconds = int(remaining + 0.5)
	est.Confidence = confidence(learned)
	return est
}

func confidence(learned map[string]*StageTimes) Confidence {
	if learned == nil {
		return ConfidenceLow
	}
	stagesWithData := 0
	for _, st := range learned {
		if len(st.Samples) > 0 {
			stagesWithData++
		}
	}
	if stagesWithData >= 5 {
		return ConfidenceHigh
	}
	return ConfidenceMedium
}
