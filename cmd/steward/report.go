package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/stewardlabs/meeting-steward/internal/core/domain"
)

// timePrecision keeps reported durations readable.
const timePrecision = 10 * time.Millisecond

// writeReport prints the sectioned analysis report for a completed run.
// withTranscript adds the raw transcript, which the transcribe command
// wants and the analyze command (whose input IS the transcript) does not.
func writeReport(w io.Writer, state domain.MeetingState, withTranscript bool) {
	fmt.Fprintf(w, "Meeting %s (%s)\n", state.MeetingID, state.SourceType)
	if state.SourceName != "" {
		fmt.Fprintf(w, "Source: %s\n", state.SourceName)
	}
	fmt.Fprintf(w, "Model: %s   Stages: %d   Took: %s\n",
		state.Run.Model, len(state.Run.Stages), state.Run.Total().Round(timePrecision))

	if withTranscript && state.RawTranscript != "" {
		section(w, "Transcript")
		if len(state.Segments) > 0 {
			for _, seg := range state.Segments {
				fmt.Fprintf(w, "  [%7.1fs] %s: %s\n", seg.Start, seg.Speaker, seg.Text)
			}
		} else {
			fmt.Fprintf(w, "  %s\n", strings.ReplaceAll(state.RawTranscript, "\n", "\n  "))
		}
	}

	section(w, "Summary")
	if state.Summary == nil || len(state.Summary.Bullets) == 0 {
		fmt.Fprintln(w, "  (none)")
	} else {
		for _, b := range state.Summary.Bullets {
			fmt.Fprintf(w, "  - %s\n", b)
		}
	}

	section(w, "Decisions")
	if len(state.Decisions) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for i, d := range state.Decisions {
		fmt.Fprintf(w, "  %d. %s\n", i+1, d.Description)
		if d.Owner != "" {
			fmt.Fprintf(w, "     owner: %s\n", d.Owner)
		}
		if d.Rationale != "" {
			fmt.Fprintf(w, "     rationale: %s\n", d.Rationale)
		}
	}

	section(w, "Action Items")
	if len(state.ActionItems) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for i, item := range state.ActionItems {
		fmt.Fprintf(w, "  %d. [%s] %s\n", i+1, item.Priority, item.Description)
		var details []string
		if item.Owner != "" {
			details = append(details, "owner: "+item.Owner)
		}
		if item.DueDate != "" {
			details = append(details, "due: "+item.DueDate)
		}
		if len(details) > 0 {
			fmt.Fprintf(w, "     %s\n", strings.Join(details, ", "))
		}
	}

	section(w, "Messages")
	for i, m := range state.Messages {
		recipient := string(m.Recipient)
		if m.IsBroadcast() {
			recipient = "broadcast"
		}
		fmt.Fprintf(w, "  %d. %s -> %s [%s] %s\n", i+1, m.Sender, recipient, m.Kind, m.Content)
	}
}

func section(w io.Writer, title string) {
	fmt.Fprintf(w, "\n%s\n%s\n", title, strings.Repeat("-", len(title)))
}
