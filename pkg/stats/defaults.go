package stats

// defaultStageSeconds is the static fallback table for stages without
// learned samples, calibrated for a ~10 minute source video.
//
// Speech synthesis dominates the variance: a network-bound engine has a
// roughly fixed latency regardless of device, while local neural engines
// run 5-10x slower on CPU than GPU.
func defaultStageSeconds(stageID string, profile EngineProfile) float64 {
	gpu := profile.IsGPU()

	switch stageID {
	case "download":
		return 30
	case "extraction":
		return 5
	case "transcription":
		if gpu {
			return 30
		}
		return 120
	case "translation":
		if profile.TranslationEngine == "ollama" {
			return 180
		}
		return 60
	case "split":
		return 5
	case "tts":
		return defaultTTSSeconds(profile.TTSEngine, gpu)
	case "sync":
		return 15
	case "concat":
		return 10
	case "postprocess":
		return 10
	case "mux":
		return 10
	default:
		return 30
	}
}

func defaultTTSSeconds(engine string, gpu bool) float64 {
	switch engine {
	case "edge":
		// Network bound; the device does not matter.
		return 120
	case "bark":
		if gpu {
			return 60
		}
		return 600
	case "xtts":
		if gpu {
			return 120
		}
		return 900
	case "piper":
		return 30
	default:
		return 120
	}
}
