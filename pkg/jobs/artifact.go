package jobs

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/inematds/inemavox/pkg/pipeline"
)

// artifactPattern matches finished media anywhere under the output dir.
const artifactPattern = "**/*.mp4"

// FindArtifact locates the final dubbed video inside a job's workdir. When
// the pipeline produced several candidates the newest one wins.
func FindArtifact(workdir string) (string, error) {
	outDir := filepath.Join(workdir, pipeline.OutputSubdir)
	matches, err := doublestar.Glob(os.DirFS(outDir), artifactPattern)
	if err != nil {
		return "", fmt.Errorf("glob artifacts: %w", err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no output artifact under %s", outDir)
	}

	sort.Slice(matches, func(i, j int) bool {
		return artifactModTime(outDir, matches[i]).After(artifactModTime(outDir, matches[j]))
	})
	return filepath.Join(outDir, matches[0]), nil
}

func artifactModTime(outDir, rel string) time.Time {
	info, err := os.Stat(filepath.Join(outDir, rel))
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}
