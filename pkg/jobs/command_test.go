package jobs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineCommandMinimal(t *testing.T) {
	cmd := PipelineCommand("python3", "/opt/dub/pipeline.py")
	cfg := Config{Input: "movie.mp4"}
	cfg.ApplyDefaults()

	args := cmd(cfg, "/jobs/abc123")
	assert.Equal(t, []string{
		"python3", "/opt/dub/pipeline.py",
		"--input", "movie.mp4",
		"--target-lang", "pt",
		"--outdir", "/jobs/abc123/out",
		"--asr", "whisper",
		"--whisper-model", "large-v3",
		"--translator", "m2m100",
		"--tts", "edge",
	}, args)
}

func TestPipelineCommandDeterministic(t *testing.T) {
	cmd := PipelineCommand("python3", "pipeline.py")
	cfg := Config{Input: "movie.mp4", TargetLang: "es", Diarize: true, NumSpeakers: 2}
	cfg.ApplyDefaults()

	first := cmd(cfg, "/jobs/x")
	second := cmd(cfg, "/jobs/x")
	assert.Equal(t, first, second)
}

func TestPipelineCommandOptionalFlags(t *testing.T) {
	cmd := PipelineCommand("python3", "pipeline.py")
	rb := false
	cfg := Config{
		Input:             "movie.mp4",
		SourceLang:        "en",
		TargetLang:        "fr",
		TranslationEngine: "ollama",
		OllamaModel:       "qwen2.5:14b",
		TTSEngine:         "xtts",
		Voice:             "anna",
		TTSRate:           "+10%",
		SyncMode:          "stretch",
		MaxStretch:        1.5,
		Tolerance:         0.25,
		NoTruncate:        true,
		UseRubberband:     &rb,
		Diarize:           true,
		NumSpeakers:       3,
		CloneVoice:        true,
		MaxDuration:       120,
		Seed:              7,
	}
	cfg.ApplyDefaults()

	args := cmd(cfg, "/jobs/x")
	joined := args

	require.Contains(t, joined, "--source-lang")
	require.Contains(t, joined, "--model")
	require.Contains(t, joined, "qwen2.5:14b")
	require.Contains(t, joined, "--voice")
	require.Contains(t, joined, "--rate")
	require.Contains(t, joined, "--sync")
	require.Contains(t, joined, "--max-stretch")
	require.Contains(t, joined, "1.5")
	require.Contains(t, joined, "--tolerance")
	require.Contains(t, joined, "0.25")
	require.Contains(t, joined, "--no-truncate")
	require.Contains(t, joined, "--no-rubberband")
	require.Contains(t, joined, "--diarize")
	require.Contains(t, joined, "--num-speakers")
	require.Contains(t, joined, "--clone-voice")
	require.Contains(t, joined, "--max-duration")
	require.Contains(t, joined, "--seed")
}

func TestPipelineCommandOmitsAbsentFlags(t *testing.T) {
	cmd := PipelineCommand("python3", "pipeline.py")
	cfg := Config{Input: "movie.mp4"}
	cfg.ApplyDefaults()

	args := cmd(cfg, "/jobs/x")
	assert.NotContains(t, args, "--source-lang")
	assert.NotContains(t, args, "--model")
	assert.NotContains(t, args, "--no-rubberband")
	assert.NotContains(t, args, "--diarize")
	assert.NotContains(t, args, "--seed")
}

func TestPipelineCommandOllamaModelOnlyForOllama(t *testing.T) {
	cmd := PipelineCommand("python3", "pipeline.py")
	cfg := Config{Input: "movie.mp4", OllamaModel: "qwen2.5:14b"}
	cfg.ApplyDefaults() // translator defaults to m2m100

	args := cmd(cfg, "/jobs/x")
	assert.NotContains(t, args, "--model")
}
