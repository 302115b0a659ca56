package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"
)

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate an API key for server.api_keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			buf := make([]byte, 32)
			if _, err := rand.Read(buf); err != nil {
				return fmt.Errorf("generate key: %w", err)
			}
			key := "sk-steward-" + hex.EncodeToString(buf)

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, key)
			fmt.Fprintln(out, "\nAdd it to config.yaml:")
			fmt.Fprintf(out, "  server:\n    api_keys:\n      - %q\n", key)
			return nil
		},
	}
}
