package pipeline

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// CheckpointRelPath is the fixed location of the checkpoint file inside a
// job's working directory. The external pipeline overwrites it as stages
// complete; the orchestrator only ever reads it.
const CheckpointRelPath = "dub_work/checkpoint.json"

// WorkSubdir is the pipeline scratch directory inside a job's working
// directory. It holds the checkpoint and intermediate files.
const WorkSubdir = "dub_work"

// OutputSubdir is where the pipeline places finished artifacts.
const OutputSubdir = "out"

// Checkpoint is the progress marker written by the external pipeline.
//
// LastStepNum counts completed stages (0 = nothing done yet). The zero value
// means "no progress known" and is what readers get for a missing or
// unparseable file.
type Checkpoint struct {
	LastStepNum  int     `json:"last_step_num"`
	LastStepID   string  `json:"last_step,omitempty"`
	LastStepName string  `json:"last_step_name,omitempty"`
	Timestamp    float64 `json:"timestamp,omitempty"`
}

// ReadCheckpoint reads the checkpoint file under workdir.
//
// The file is written concurrently by the pipeline process, so a partial or
// corrupt read is expected and degrades to the zero Checkpoint. This is
// never an error: absence of progress data is a representable result.
func ReadCheckpoint(workdir string) Checkpoint {
	b, err := os.ReadFile(filepath.Join(workdir, CheckpointRelPath))
	if err != nil {
		return Checkpoint{}
	}
	var cp Checkpoint
	if err := json.Unmarshal(b, &cp); err != nil {
		return Checkpoint{}
	}
	return cp
}

// Progress is the catalog-relative progress view of a checkpoint.
type Progress struct {
	CurrentStage int    `json:"current_stage"`
	TotalStages  int    `json:"total_stages"`
	Percent      int    `json:"percent"`
	StageName    string `json:"stage_name"`
}

// ComputeProgress maps a checkpoint onto the stage catalog.
//
// Out-of-range step numbers are clamped: negative values (malformed
// checkpoints) clamp to 0, values at or beyond the catalog length report
// "completed". StageName names the next pending stage.
func ComputeProgress(cp Checkpoint) Progress {
	total := TotalStages()
	step := cp.LastStepNum
	if step < 0 {
		step = 0
	}
	if step > total {
		step = total
	}

	name := "completed"
	if step < total {
		name = Stages[step].ID
	}

	return Progress{
		CurrentStage: step,
		TotalStages:  total,
		Percent:      int(float64(step)/float64(total)*100 + 0.5),
		StageName:    name,
	}
}
