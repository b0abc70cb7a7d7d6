package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/inematds/inemavox/internal/config"
	"github.com/inematds/inemavox/pkg/stats"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show learned pipeline timing statistics",
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().Bool("json", false, "Output as JSON")
}

func runStats(cmd *cobra.Command, _ []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg, err := config.Load(flagConfig)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}

	summary := stats.NewStore(cfg.Stats.Path).Summarize()

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}

	_, _ = fmt.Fprintf(os.Stdout, "jobs completed: %d\n", summary.JobsCompleted)
	if len(summary.Profiles) == 0 {
		_, _ = fmt.Fprintln(os.Stdout, "no learned profiles yet")
		return nil
	}

	profiles := make([]string, 0, len(summary.Profiles))
	for p := range summary.Profiles {
		profiles = append(profiles, p)
	}
	sort.Strings(profiles)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer func() { _ = w.Flush() }()
	_, _ = fmt.Fprintln(w, "PROFILE\tSTAGE\tSAMPLES\tAVG")
	for _, p := range profiles {
		stages := summary.Profiles[p]
		names := make([]string, 0, len(stages))
		for s := range stages {
			names = append(names, s)
		}
		sort.Strings(names)
		for _, s := range names {
			st := stages[s]
			_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", p, s, st.Samples, stats.FormatETA(int(st.Avg+0.5)))
		}
	}
	return nil
}
