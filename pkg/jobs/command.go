package jobs

import (
	"path/filepath"
	"strconv"

	"github.com/inematds/inemavox/pkg/pipeline"
)

// CommandFunc maps a job configuration and working directory to the argv of
// the external pipeline process. The mapping must be deterministic and must
// omit flags for absent optional fields.
type CommandFunc func(cfg Config, workdir string) []string

// PipelineCommand returns the standard mapping onto the Python dubbing
// pipeline: python runs script with flags derived from cfg, writing
// artifacts under the job's output directory.
func PipelineCommand(python, script string) CommandFunc {
	return func(cfg Config, workdir string) []string {
		args := []string{python, script}

		args = append(args, "--input", cfg.Input)
		if cfg.SourceLang != "" {
			args = append(args, "--source-lang", cfg.SourceLang)
		}
		args = append(args, "--target-lang", cfg.TargetLang)
		args = append(args, "--outdir", filepath.Join(workdir, pipeline.OutputSubdir))

		args = append(args, "--asr", cfg.ASREngine)
		if cfg.WhisperModel != "" {
			args = append(args, "--whisper-model", cfg.WhisperModel)
		}

		args = append(args, "--translator", cfg.TranslationEngine)
		if cfg.TranslationEngine == "ollama" && cfg.OllamaModel != "" {
			args = append(args, "--model", cfg.OllamaModel)
		}
		if cfg.LargeModel {
			args = append(args, "--large-model")
		}

		args = append(args, "--tts", cfg.TTSEngine)
		if cfg.Voice != "" {
			args = append(args, "--voice", cfg.Voice)
		}
		if cfg.TTSRate != "" {
			args = append(args, "--rate", cfg.TTSRate)
		}

		if cfg.SyncMode != "" {
			args = append(args, "--sync", cfg.SyncMode)
		}
		if cfg.MaxStretch > 0 {
			args = append(args, "--max-stretch", formatFloat(cfg.MaxStretch))
		}
		if cfg.Tolerance > 0 {
			args = append(args, "--tolerance", formatFloat(cfg.Tolerance))
		}
		if cfg.NoTruncate {
			args = append(args, "--no-truncate")
		}
		if cfg.UseRubberband != nil && !*cfg.UseRubberband {
			args = append(args, "--no-rubberband")
		}

		if cfg.Diarize {
			args = append(args, "--diarize")
			if cfg.NumSpeakers > 0 {
				args = append(args, "--num-speakers", strconv.Itoa(cfg.NumSpeakers))
			}
		}
		if cfg.CloneVoice {
			args = append(args, "--clone-voice")
		}

		if cfg.MaxDuration > 0 {
			args = append(args, "--max-duration", formatFloat(cfg.MaxDuration))
		}
		if cfg.Seed != 0 {
			args = append(args, "--seed", strconv.Itoa(cfg.Seed))
		}

		return args
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
