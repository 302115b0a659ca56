package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stewardlabs/meeting-steward/internal/config"
	"github.com/stewardlabs/meeting-steward/internal/core/domain"
)

func newMeetingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "meetings",
		Short: "Browse stored meetings",
	}

	cmd.AddCommand(newMeetingsListCmd())
	cmd.AddCommand(newMeetingsShowCmd())
	return cmd
}

func newMeetingsListCmd() *cobra.Command {
	var (
		configPath string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored meetings, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, _, err := openSteward(configPath, cliLogger())
			if err != nil {
				return err
			}
			defer st.Close()

			previews, err := st.ListMeetings(cmd.Context(), limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(previews) == 0 {
				fmt.Fprintln(out, "No meetings stored yet.")
				return nil
			}
			for _, p := range previews {
				name := p.SourceName
				if name == "" {
					name = "(unnamed)"
				}
				fmt.Fprintf(out, "%s  %s  %-5s  %-24s  %s\n",
					p.ID, p.CreatedAt.Format("2006-01-02 15:04"), p.SourceType, name,
					domain.Preview(p.TranscriptPreview, 60))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to config file")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum meetings to list")
	return cmd
}

func newMeetingsShowCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "show <meeting-id>",
		Short: "Show a stored meeting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, _, err := openSteward(configPath, cliLogger())
			if err != nil {
				return err
			}
			defer st.Close()

			record, err := st.GetMeeting(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			writeReport(cmd.OutOrStdout(), recordToState(record), true)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to config file")
	return cmd
}

// recordToState reshapes a stored record for the report writer. The message
// log is not persisted, so the Messages section of a stored meeting is empty.
func recordToState(r *domain.MeetingRecord) domain.MeetingState {
	return domain.MeetingState{
		MeetingID:     r.ID,
		SourceType:    r.SourceType,
		SourceName:    r.SourceName,
		RawTranscript: r.RawTranscript,
		Summary:       r.Summary,
		Decisions:     r.Decisions,
		ActionItems:   r.ActionItems,
		Run:           r.Run,
		CreatedAt:     r.CreatedAt,
	}
}
