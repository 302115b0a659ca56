package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/stewardlabs/meeting-steward/internal/config"
	"github.com/stewardlabs/meeting-steward/pkg/steward"
)

func newTranscribeCmd() *cobra.Command {
	var (
		configPath string
		model      string
	)

	cmd := &cobra.Command{
		Use:   "transcribe <audio-file>",
		Short: "Transcribe and analyze a meeting recording",
		Long:  "Runs the audio pipeline: probe, transcribe, diarize (when enabled), then the analysis stages.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTranscribe(cmd, configPath, args[0], model)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to config file")
	cmd.Flags().StringVarP(&model, "model", "m", "", "override the configured chat model")
	return cmd
}

func runTranscribe(cmd *cobra.Command, configPath, path, model string) error {
	audio, err := os.ReadFile(path)
	if err != nil {
		return err
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

	state, err := st.AnalyzeAudio(cmd.Context(), audio, filepath.Base(path), opts...)
	if err != nil {
		return err
	}

	writeReport(cmd.OutOrStdout(), state, true)
	return nil
}
