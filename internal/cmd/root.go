// Package cmd implements the inemavox CLI.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/inematds/inemavox/internal/observability"
)

// VersionInfo carries build identification injected at link time.
type VersionInfo struct {
	Version   string
	Commit    string
	BuildDate string
}

var versionInfo = VersionInfo{
	Version:   "dev",
	Commit:    "HEAD",
	BuildDate: "unknown",
}

// SetVersionInfo records build metadata before Execute runs.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

var (
	flagConfig    string
	flagLogLevel  string
	flagLogFormat string
	flagServerURL string
)

var rootCmd = &cobra.Command{
	Use:   "inemavox",
	Short: "Video dubbing job server and CLI",
	Long: `inemavox runs the dubbing pipeline as managed jobs.

The serve command starts the HTTP API and the job worker; the remaining
commands submit and inspect jobs, either over the API or straight from the
on-disk job records.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_, err := observability.InitLogging(flagLogLevel, flagLogFormat)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "console", "Log encoding: console or json")
	rootCmd.PersistentFlags().StringVar(&flagServerURL, "server", "http://localhost:8080", "Server base URL for remote commands")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		_, _ = fmt.Fprintf(os.Stdout, "inemavox %s (commit %s, built %s)\n",
			versionInfo.Version, versionInfo.Commit, versionInfo.BuildDate)
	},
}

// exitCodeError carries a specific process exit code up to Execute.
type exitCodeError struct {
	code int
	msg  string
	err  error
}

func (e *exitCodeError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

func (e *exitCodeError) Unwrap() error { return e.err }

func exitError(code int, msg string, err error) error {
	return &exitCodeError{code: code, msg: msg, err: err}
}

// Execute runs the CLI and exits the process with the command's code.
func Execute() {
	err := rootCmd.Execute()
	if err == nil {
		observability.Sync()
		return
	}

	code := 1
	if ee, ok := err.(*exitCodeError); ok {
		code = ee.code
		observability.CLILogger.Error(ee.msg, zap.Error(ee.err))
	} else {
		observability.CLILogger.Error("command failed", zap.Error(err))
	}
	observability.Sync()
	os.Exit(code)
}
