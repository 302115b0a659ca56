package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/stewardlabs/meeting-steward/internal/config"
)

func newDoctorCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check collaborator health",
		Long:  "Verifies the configuration, the LLM endpoint and its model, the speech engine, and the meeting store.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to config file")
	return cmd
}

type checkResult struct {
	name   string
	err    error
	detail string
}

func runDoctor(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Meeting Steward Doctor")
	fmt.Fprintln(out, "======================")

	var results []checkResult

	st, cfg, err := openSteward(configPath, cliLogger())
	if err != nil {
		results = append(results, checkResult{name: "Config", err: err})
		return report(out, results)
	}
	defer st.Close()
	results = append(results, checkResult{name: "Config", detail: configPath})

	ctx := cmd.Context()

	if err := st.CheckOllama(ctx); err != nil {
		results = append(results, checkResult{name: "Ollama", err: err})
	} else {
		results = append(results, checkResult{
			name:   "Ollama",
			detail: fmt.Sprintf("%s serving %s", cfg.Ollama.Host, cfg.Ollama.Model),
		})
	}

	if err := st.CheckSpeech(ctx); err != nil {
		results = append(results, checkResult{name: "Speech engine", err: err})
	} else {
		results = append(results, checkResult{name: "Speech engine", detail: cfg.Speech.BaseURL})
	}

	if err := st.CheckStorage(ctx); err != nil {
		results = append(results, checkResult{name: "Storage", err: err})
	} else {
		results = append(results, checkResult{
			name:   "Storage",
			detail: fmt.Sprintf("%s (%s)", cfg.Storage.Driver, cfg.Storage.DSN),
		})
	}

	return report(out, results)
}

func report(out io.Writer, results []checkResult) error {
	failures := 0
	for _, r := range results {
		if r.err != nil {
			failures++
			fmt.Fprintf(out, "FAIL  %-14s %v\n", r.name, r.err)
		} else {
			fmt.Fprintf(out, "PASS  %-14s %s\n", r.name, r.detail)
		}
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d checks failed", failures, len(results))
	}
	fmt.Fprintln(out, "\nAll checks passed.")
	return nil
}
