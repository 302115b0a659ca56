// Package memory is an in-process meeting store for tests and
// ephemeral runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/stewardlabs/meeting-steward/internal/core/domain"
	"github.com/stewardlabs/meeting-steward/internal/storage"
)

// Store keeps meeting records in a mutex-guarded map.
type Store struct {
	mu       sync.RWMutex
	meetings map[string]domain.MeetingRecord
}

var _ storage.MeetingStore = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{meetings: make(map[string]domain.MeetingRecord)}
}

func (s *Store) SaveMeeting(ctx context.Context, state domain.MeetingState) (string, error) {
	if state.MeetingID == "" {
		return "", fmt.Errorf("meeting has no id")
	}

	now := time.Now().UTC()
	createdAt := state.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	rec := domain.MeetingRecord{
		ID:            state.MeetingID,
		SourceType:    state.SourceType,
		SourceName:    state.SourceName,
		RawTranscript: state.RawTranscript,
		Decisions:     append([]domain.Decision{}, state.Decisions...),
		ActionItems:   append([]domain.ActionItem{}, state.ActionItems...),
		Run:           state.Run,
		CreatedAt:     createdAt,
		UpdatedAt:     now,
	}
	if state.Summary != nil {
		sum := *state.Summary
		sum.Bullets = append([]string(nil), state.Summary.Bullets...)
		rec.Summary = &sum
	}

	s.mu.Lock()
	s.meetings[rec.ID] = rec
	s.mu.Unlock()

	return rec.ID, nil
}

func (s *Store) GetMeeting(ctx context.Context, id string) (*domain.MeetingRecord, error) {
	s.mu.RLock()
	rec, ok := s.meetings[id]
	s.mu.RUnlock()

	if !ok {
		return nil, storage.ErrNotFound
	}

	out := rec
	out.Decisions = append([]domain.Decision{}, rec.Decisions...)
	out.ActionItems = append([]domain.ActionItem{}, rec.ActionItems...)
	if rec.Summary != nil {
		sum := *rec.Summary
		sum.Bullets = append([]string(nil), rec.Summary.Bullets...)
		out.Summary = &sum
	}
	return &out, nil
}

func (s *Store) ListMeetings(ctx context.Context, limit int) ([]domain.MeetingPreview, error) {
	if limit <= 0 {
		limit = 20
	}

	s.mu.RLock()
	records := make([]domain.MeetingRecord, 0, len(s.meetings))
	for _, rec := range s.meetings {
		records = append(records, rec)
	}
	s.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].ID < records[j].ID
		}
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	if len(records) > limit {
		records = records[:limit]
	}

	previews := make([]domain.MeetingPreview, 0, len(records))
	for _, rec := range records {
		previews = append(previews, domain.MeetingPreview{
			ID:                rec.ID,
			SourceType:        rec.SourceType,
			SourceName:        rec.SourceName,
			TranscriptPreview: domain.Preview(rec.RawTranscript, 100),
			CreatedAt:         rec.CreatedAt,
		})
	}
	return previews, nil
}

func (s *Store) Stats(ctx context.Context) (domain.StoreStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats domain.StoreStats
	stats.Meetings = int64(len(s.meetings))
	for _, rec := range s.meetings {
		stats.Decisions += int64(len(rec.Decisions))
		stats.ActionItems += int64(len(rec.ActionItems))
	}
	return stats, nil
}

func (s *Store) Close() error {
	return nil
}
