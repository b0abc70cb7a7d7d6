// Package pipeline describes the fixed dubbing pipeline from the
// orchestrator's point of view: the ordered stage catalog, the checkpoint
// file the external pipeline process writes, and the progress math derived
// from both.
//
// The orchestrator never interprets pipeline semantics beyond a stage index
// and a duration; everything else here is naming.
package pipeline

// Stage is one phase of the external dubbing pipeline.
//
// Num is 1-based and matches the checkpoint convention: a checkpoint with
// last_step_num == N means stages 1..N are complete and stage N+1 is next.
type Stage struct {
	Num  int    `json:"num"`
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Stages is the canonical ordered stage catalog.
//
// NOTE: The order and ids are part of the stable contract shared with the
// external pipeline, the progress view, and the ETA estimator. Do not
// reorder or rename without coordinating all three.
var Stages = []Stage{
	{Num: 1, ID: "download", Name: "Download"},
	{Num: 2, ID: "extraction", Name: "Audio Extraction"},
	{Num: 3, ID: "transcription", Name: "Transcription"},
	{Num: 4, ID: "translation", Name: "Translation"},
	{Num: 5, ID: "split", Name: "Split"},
	{Num: 6, ID: "tts", Name: "Speech Synthesis"},
	{Num: 7, ID: "sync", Name: "Synchronization"},
	{Num: 8, ID: "concat", Name: "Concatenation"},
	{Num: 9, ID: "postprocess", Name: "Post-Processing"},
	{Num: 10, ID: "mux", Name: "Final Mux"},
}

// TotalStages is the catalog length, the denominator for percent-complete.
func TotalStages() int {
	return len(Stages)
}

// StageByID returns the stage with the given id, or false when unknown.
func StageByID(id string) (Stage, bool) {
	for _, s := range Stages {
		if s.ID == id {
			return s, true
		}
	}
	return Stage{}, false
}
