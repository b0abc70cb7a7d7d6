package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/inematds/inemavox/internal/observability"
	"github.com/inematds/inemavox/pkg/jobs"
)

var (
	submitManifest string
	submitInput    string
	submitTarget   string
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a dubbing job to a running server",
	Long: `Submit a job either from a YAML manifest or from flags.

Examples:
  inemavox submit --manifest job.yaml
  inemavox submit --input movie.mp4 --target-lang es`,
	RunE: runSubmit,
}

func init() {
	rootCmd.AddCommand(submitCmd)
	submitCmd.Flags().StringVar(&submitManifest, "manifest", "", "YAML manifest describing the job")
	submitCmd.Flags().StringVar(&submitInput, "input", "", "Source video URL or path")
	submitCmd.Flags().StringVar(&submitTarget, "target-lang", "", "Dubbing target language")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	var cfg jobs.Config

	if submitManifest != "" {
		b, err := os.ReadFile(submitManifest)
		if err != nil {
			return exitError(foundry.ExitFileNotFound, "Failed to read manifest", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return exitError(foundry.ExitInvalidArgument, "Invalid manifest", err)
		}
	}
	if submitInput != "" {
		cfg.Input = submitInput
	}
	if submitTarget != "" {
		cfg.TargetLang = submitTarget
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid job config", err)
	}

	body, err := json.Marshal(cfg)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Failed to encode job config", err)
	}

	snap, err := postJSON(serverURL()+"/jobs", body)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Submission failed", err)
	}

	observability.CLILogger.Info("job submitted",
		zap.String("job_id", snap.ID),
		zap.String("status", string(snap.Status)))
	_, _ = fmt.Fprintln(os.Stdout, snap.ID)
	return nil
}

func serverURL() string {
	return strings.TrimRight(flagServerURL, "/")
}

var httpClient = &http.Client{Timeout: 30 * time.Second}

func postJSON(url string, body []byte) (*jobs.Snapshot, error) {
	resp, err := httpClient.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, apiError(resp.StatusCode, payload)
	}

	var snap jobs.Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return &snap, nil
}

// apiError surfaces the server's error envelope as a readable message.
func apiError(status int, payload []byte) error {
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(payload, &envelope); err == nil && envelope.Error.Code != "" {
		return fmt.Errorf("%s: %s", envelope.Error.Code, envelope.Error.Message)
	}
	return fmt.Errorf("server returned status %d", status)
}
