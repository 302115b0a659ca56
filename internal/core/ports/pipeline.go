// Package ports defines the interfaces the pipeline is assembled from.
package ports

import (
	"context"

	"github.com/stewardlabs/meeting-steward/internal/core/domain"
)

// Stage is one step of the meeting pipeline. A stage receives a snapshot of
// the meeting state, makes at most one external call, writes the one content
// field it owns, appends exactly one message, and returns the new snapshot.
// Stages never mutate the snapshot they were given.
type Stage interface {
	// Name returns the stage's identifier, used in timings, traces and
	// error reporting.
	Name() domain.StageName

	// Run executes the stage against a private copy of the state.
	Run(ctx context.Context, state domain.MeetingState) (domain.MeetingState, error)
}
