package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/stewardlabs/meeting-steward/internal/config"
	"github.com/stewardlabs/meeting-steward/pkg/steward"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "steward",
		Short: "Meeting transcription and analysis",
		Long: "Meeting Steward runs recordings and transcripts through a fixed agent\n" +
			"pipeline (transcribe, diarize, summarize, extract decisions, extract\n" +
			"action items) backed by a local LLM endpoint and a speech engine.",
		SilenceUsage: true,
	}

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newAnalyzeCmd())
	cmd.AddCommand(newTranscribeCmd())
	cmd.AddCommand(newMeetingsCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newKeygenCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "steward %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}

// cliLogger logs human-readable lines to stderr so reports on stdout stay
// clean. Warnings and up only, unless STEWARD_DEBUG is set.
func cliLogger() *slog.Logger {
	level := slog.LevelWarn
	if os.Getenv("STEWARD_DEBUG") != "" {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// openSteward loads config and assembles the pipeline for the one-shot
// commands (analyze, transcribe, meetings, doctor).
func openSteward(configPath string, logger *slog.Logger) (*steward.Steward, *config.Config, error) {
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	st, err := steward.New(cfg, steward.WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	return st, cfg, nil
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
