// Package storage defines the persistence boundary for processed meetings.
package storage

import (
	"context"
	"errors"

	"github.com/stewardlabs/meeting-steward/internal/core/domain"
)

// ErrNotFound reports a meeting id with no stored record.
var ErrNotFound = errors.New("meeting not found")

// MeetingStore persists processed meetings. SaveMeeting is atomic: either
// the meeting with all its decisions and action items lands, or nothing
// does.
type MeetingStore interface {
	SaveMeeting(ctx context.Context, state domain.MeetingState) (string, error)
	GetMeeting(ctx context.Context, id string) (*domain.MeetingRecord, error)
	ListMeetings(ctx context.Context, limit int) ([]domain.MeetingPreview, error)
	Stats(ctx context.Context) (domain.StoreStats, error)
	Close() error
}
