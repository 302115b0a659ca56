package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/stewardlabs/meeting-steward/internal/config"
	"github.com/stewardlabs/meeting-steward/pkg/steward"
)

func newAnalyzeCmd() *cobra.Command {
	var (
		configPath string
		label      string
		model      string
	)

	cmd := &cobra.Command{
		Use:   "analyze [transcript.txt]",
		Short: "Analyze a meeting transcript",
		Long:  "Runs the text pipeline over a transcript file, or stdin when no file is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, configPath, args, label, model)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to config file")
	cmd.Flags().StringVarP(&label, "label", "l", "", "meeting label for listings")
	cmd.Flags().StringVarP(&model, "model", "m", "", "override the configured chat model")
	return cmd
}

func runAnalyze(cmd *cobra.Command, configPath string, args []string, label, model string) error {
	transcript, name, err := readTranscript(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}
	if label == "" {
		label = name
	}

	st, _, err := openSteward(configPath, cliLogger())
	if err != nil {
		return err
	}
	defer st.Close()

	var opts []steward.RunOption
	if model != "" {
		opts = append(opts, steward.WithModel(model))
	}

	state, err := st.AnalyzeText(cmd.Context(), transcript, label, opts...)
	if err != nil {
		return err
	}

	writeReport(cmd.OutOrStdout(), state, false)
	return nil
}

// readTranscript reads the transcript from the named file, or from stdin
// when no file (or "-") is given.
func readTranscript(stdin io.Reader, args []string) (transcript, name string, err error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), "stdin", nil
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", "", err
	}
	return string(data), filepath.Base(args[0]), nil
}
