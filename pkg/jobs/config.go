package jobs

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"

	"github.com/inematds/inemavox/pkg/stats"
)

// Config is the validated dubbing request configuration.
//
// Input and TargetLang are required; everything else is optional with
// engine defaults applied at submission time. The zero value of an optional
// field means "let the pipeline decide" and is omitted from the generated
// command line.
type Config struct {
	// Input is a source video URL or local file path (required).
	Input string `json:"input" yaml:"input" mapstructure:"input"`

	// SourceLang is the spoken language of the input; empty means
	// auto-detect.
	SourceLang string `json:"source_lang,omitempty" yaml:"source_lang" mapstructure:"source_lang"`

	// TargetLang is the dubbing target language (required).
	TargetLang string `json:"target_lang" yaml:"target_lang" mapstructure:"target_lang"`

	// ASREngine selects the transcription engine.
	ASREngine    string `json:"asr_engine,omitempty" yaml:"asr_engine" mapstructure:"asr_engine"`
	WhisperModel string `json:"whisper_model,omitempty" yaml:"whisper_model" mapstructure:"whisper_model"`

	// TranslationEngine selects the translator; OllamaModel applies only
	// when the engine is "ollama".
	TranslationEngine string `json:"translation_engine,omitempty" yaml:"translation_engine" mapstructure:"translation_engine"`
	OllamaModel       string `json:"ollama_model,omitempty" yaml:"ollama_model" mapstructure:"ollama_model"`
	LargeModel        bool   `json:"large_model,omitempty" yaml:"large_model" mapstructure:"large_model"`

	// TTSEngine selects the synthesis engine.
	TTSEngine string `json:"tts_engine,omitempty" yaml:"tts_engine" mapstructure:"tts_engine"`
	Voice     string `json:"voice,omitempty" yaml:"voice" mapstructure:"voice"`
	TTSRate   string `json:"tts_rate,omitempty" yaml:"tts_rate" mapstructure:"tts_rate"`

	// Synchronization tuning.
	SyncMode      string  `json:"sync_mode,omitempty" yaml:"sync_mode" mapstructure:"sync_mode"`
	MaxStretch    float64 `json:"max_stretch,omitempty" yaml:"max_stretch" mapstructure:"max_stretch"`
	Tolerance     float64 `json:"tolerance,omitempty" yaml:"tolerance" mapstructure:"tolerance"`
	NoTruncate    bool    `json:"no_truncate,omitempty" yaml:"no_truncate" mapstructure:"no_truncate"`
	UseRubberband *bool   `json:"use_rubberband,omitempty" yaml:"use_rubberband" mapstructure:"use_rubberband"`

	// Speaker diarization.
	Diarize     bool `json:"diarize,omitempty" yaml:"diarize" mapstructure:"diarize"`
	NumSpeakers int  `json:"num_speakers,omitempty" yaml:"num_speakers" mapstructure:"num_speakers"`

	// CloneVoice enables voice cloning from the source audio.
	CloneVoice bool `json:"clone_voice,omitempty" yaml:"clone_voice" mapstructure:"clone_voice"`

	MaxDuration float64 `json:"max_duration,omitempty" yaml:"max_duration" mapstructure:"max_duration"`
	Seed        int     `json:"seed,omitempty" yaml:"seed" mapstructure:"seed"`
}

// Engine defaults applied at submission time.
const (
	DefaultASREngine         = "whisper"
	DefaultWhisperModel      = "large-v3"
	DefaultTranslationEngine = "m2m100"
	DefaultTTSEngine         = "edge"
)

// ApplyDefaults fills engine selections left empty by the caller. Required
// fields (input, target_lang) are never defaulted; Validate rejects their
// absence.
func (c *Config) ApplyDefaults() {
	if c.ASREngine == "" {
		c.ASREngine = DefaultASREngine
	}
	if c.WhisperModel == "" {
		c.WhisperModel = DefaultWhisperModel
	}
	if c.TranslationEngine == "" {
		c.TranslationEngine = DefaultTranslationEngine
	}
	if c.TTSEngine == "" {
		c.TTSEngine = DefaultTTSEngine
	}
}

// Validate checks the required fields. Configuration errors surface
// synchronously to submission callers; no job is created for an invalid
// config.
func (c *Config) Validate() error {
	if c.Input == "" {
		return fmt.Errorf("config field %q is required", "input")
	}
	if c.TargetLang == "" {
		return fmt.Errorf("config field %q is required", "target_lang")
	}
	if c.NumSpeakers < 0 {
		return fmt.Errorf("num_speakers must not be negative")
	}
	return nil
}

// Profile derives the stats engine profile for this configuration on the
// given execution device.
func (c Config) Profile(device string) stats.EngineProfile {
	return stats.EngineProfile{
		TTSEngine:         c.TTSEngine,
		TranslationEngine: c.TranslationEngine,
		WhisperModel:      c.WhisperModel,
		Device:            device,
	}
}

// DecodeConfig decodes an untyped key/value map (as received in a JSON
// submission body) into a Config. Unknown keys are ignored; type mismatches
// are errors.
func DecodeConfig(raw map[string]any) (Config, error) {
	var cfg Config
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return Config{}, fmt.Errorf("build config decoder: %w", err)
	}
	if err := dec.Decode(raw); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}
