package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/inematds/inemavox/internal/config"
	"github.com/inematds/inemavox/pkg/jobs"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and manage dubbing jobs",
	Long: `Inspect and manage dubbing jobs.

list, status, and logs read the on-disk job records directly, so they work
without a running server. cancel talks to the live server.`,
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs",
	RunE:  runJobsList,
}

var jobsStatusCmd = &cobra.Command{
	Use:   "status <job_id>",
	Short: "Show status for a job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsStatus,
}

var jobsLogsCmd = &cobra.Command{
	Use:   "logs <job_id>",
	Short: "Show pipeline output for a job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsLogs,
}

var jobsCancelCmd = &cobra.Command{
	Use:   "cancel <job_id>",
	Short: "Cancel a queued or running job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsCancel,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsStatusCmd)
	jobsCmd.AddCommand(jobsLogsCmd)
	jobsCmd.AddCommand(jobsCancelCmd)

	jobsListCmd.Flags().Bool("json", false, "Output as JSON")
	jobsStatusCmd.Flags().Bool("json", false, "Output as JSON")
	jobsLogsCmd.Flags().Int("tail", 200, "Show last N lines (0 = full log)")
}

func jobsStore() (*jobs.Store, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	return jobs.NewStore(cfg.Jobs.Dir), nil
}

// resolveJobID expands an id prefix against the store, so short prefixes
// work the way they do for container tools.
func resolveJobID(store *jobs.Store, id string) (string, error) {
	if _, err := store.Get(id); err == nil {
		return id, nil
	}

	records, err := store.List()
	if err != nil {
		return "", err
	}
	var matches []string
	for _, r := range records {
		if strings.HasPrefix(r.ID, id) {
			matches = append(matches, r.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no job matches %q", id)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("ambiguous job id %q (%d matches)", id, len(matches))
	}
}

func runJobsList(cmd *cobra.Command, _ []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	store, err := jobsStore()
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}

	records, err := store.List()
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to read job records", err)
	}
	if len(records) == 0 {
		_, _ = fmt.Fprintln(os.Stdout, "No jobs found")
		return nil
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer func() { _ = w.Flush() }()

	_, _ = fmt.Fprintln(w, "JOB ID\tSTATUS\tINPUT\tTARGET\tCREATED\tSTARTED\tFINISHED")
	for _, r := range records {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID,
			r.Status,
			truncateMiddle(r.Config.Input, 40),
			r.Config.TargetLang,
			r.CreatedAt.Local().Format(time.DateTime),
			formatOptionalTime(r.StartedAt),
			formatOptionalTime(r.FinishedAt),
		)
	}
	return nil
}

func runJobsStatus(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	store, err := jobsStore()
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}

	id, err := resolveJobID(store, strings.TrimSpace(args[0]))
	if err != nil {
		return exitError(foundry.ExitFileNotFound, "Job not found", err)
	}
	rec, err := store.Get(id)
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to read job record", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	}

	_, _ = fmt.Fprintf(os.Stdout, "id:       %s\n", rec.ID)
	_, _ = fmt.Fprintf(os.Stdout, "status:   %s\n", rec.Status)
	_, _ = fmt.Fprintf(os.Stdout, "input:    %s\n", rec.Config.Input)
	_, _ = fmt.Fprintf(os.Stdout, "target:   %s\n", rec.Config.TargetLang)
	_, _ = fmt.Fprintf(os.Stdout, "created:  %s\n", rec.CreatedAt.Local().Format(time.DateTime))
	_, _ = fmt.Fprintf(os.Stdout, "started:  %s\n", formatOptionalTime(rec.StartedAt))
	_, _ = fmt.Fprintf(os.Stdout, "finished: %s\n", formatOptionalTime(rec.FinishedAt))
	if rec.Error != "" {
		_, _ = fmt.Fprintf(os.Stdout, "error:    %s\n", rec.Error)
	}
	return nil
}

func runJobsLogs(cmd *cobra.Command, args []string) error {
	tailN, _ := cmd.Flags().GetInt("tail")
	if tailN < 0 {
		tailN = 0
	}

	store, err := jobsStore()
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}

	id, err := resolveJobID(store, strings.TrimSpace(args[0]))
	if err != nil {
		return exitError(foundry.ExitFileNotFound, "Job not found", err)
	}

	f, err := os.Open(store.JobDir(id) + "/" + jobs.LogFileName)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return exitError(foundry.ExitFileReadError, "Failed to read log", err)
	}
	defer func() { _ = f.Close() }()

	if tailN <= 0 {
		_, err := io.Copy(os.Stdout, f)
		return err
	}

	b, err := io.ReadAll(f)
	if err != nil {
		return err
	}
	lines := strings.Split(strings.TrimRight(string(b), "\n"), "\n")
	if len(lines) > tailN {
		lines = lines[len(lines)-tailN:]
	}
	for _, line := range lines {
		_, _ = fmt.Fprintln(os.Stdout, line)
	}
	return nil
}

func runJobsCancel(cmd *cobra.Command, args []string) error {
	id := strings.TrimSpace(args[0])
	if id == "" {
		return exitError(foundry.ExitInvalidArgument, "job_id is required", nil)
	}

	resp, err := httpClient.Post(serverURL()+"/jobs/"+id+"/cancel", "application/json", nil)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to reach server", err)
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to read response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return exitError(foundry.ExitExternalServiceUnavailable, "Cancel failed", apiError(resp.StatusCode, payload))
	}

	var body struct {
		Cancelled bool `json:"cancelled"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Invalid response", err)
	}
	if body.Cancelled {
		_, _ = fmt.Fprintln(os.Stdout, "cancelled")
	} else {
		_, _ = fmt.Fprintln(os.Stdout, "not running")
	}
	return nil
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}

func truncateMiddle(s string, max int) string {
	if len(s) <= max || max < 5 {
		return s
	}
	half := (max - 3) / 2
	return s[:half] + "..." + s[len(s)-half:]
}
