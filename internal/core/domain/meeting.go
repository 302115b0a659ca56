// Package domain holds the meeting record and the types the pipeline
// stages read and write.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// SourceType identifies how a meeting entered the pipeline.
type SourceType string

const (
	SourceText  SourceType = "text"
	SourceAudio SourceType = "audio"
)

// StageName identifies a pipeline stage.
type StageName string

const (
	StageIngestAudio      StageName = "ingest_audio"
	StageTranscribe       StageName = "transcribe"
	StageDiarize          StageName = "diarize"
	StageSummarize        StageName = "summarize"
	StageExtractDecisions StageName = "extract_decisions"
	StageExtractActions   StageName = "extract_actions"
	StagePersist          StageName = "persist"
)

// Priority ranks an action item.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Normalize maps unknown or empty priorities to medium.
func (p Priority) Normalize() Priority {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return p
	default:
		return PriorityMedium
	}
}

// ActionStatus tracks the lifecycle of an action item.
type ActionStatus string

const (
	ActionPending    ActionStatus = "pending"
	ActionInProgress ActionStatus = "in_progress"
	ActionDone       ActionStatus = "done"
)

// Utterance is a single diarized span of the transcript.
type Utterance struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker,omitempty"`
	Text    string  `json:"text"`
}

// ExecutiveSummary is the condensed account of the meeting.
type ExecutiveSummary struct {
	Bullets   []string `json:"bullets"`
	ModelUsed string   `json:"model_used,omitempty"`
}

// Decision is a commitment the meeting arrived at.
type Decision struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Owner       string `json:"owner,omitempty"`
	Rationale   string `json:"rationale,omitempty"`
	DecidedAt   string `json:"decided_at,omitempty"`
}

// ActionItem is a follow-up task assigned during the meeting.
type ActionItem struct {
	ID          string       `json:"id"`
	Description string       `json:"description"`
	Owner       string       `json:"owner,omitempty"`
	DueDate     string       `json:"due_date,omitempty"`
	Priority    Priority     `json:"priority"`
	Status      ActionStatus `json:"status"`
}

// AudioInfo describes the uploaded recording on the audio path.
type AudioInfo struct {
	Format          string  `json:"format"`
	SampleRate      int     `json:"sample_rate,omitempty"`
	Channels        int     `json:"channels,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	SizeBytes       int64   `json:"size_bytes"`
}

// MeetingState is the record threaded through the pipeline. Stages receive
// a copy, write the one field they own, append their message, and return
// the copy. Content fields are write-once.
type MeetingState struct {
	MeetingID  string     `json:"meeting_id"`
	SourceType SourceType `json:"source_type"`
	SourceName string     `json:"source_name,omitempty"`

	RawTranscript string            `json:"raw_transcript,omitempty"`
	Segments      []Utterance       `json:"segments,omitempty"`
	Summary       *ExecutiveSummary `json:"summary,omitempty"`
	Decisions     []Decision        `json:"decisions"`
	ActionItems   []ActionItem      `json:"action_items"`
	Audio         *AudioInfo        `json:"audio,omitempty"`

	// Messages is the append-only log of agent messages, in execution order.
	Messages []AgentMessage `json:"messages"`

	Run       RunInfo   `json:"run"`
	CreatedAt time.Time `json:"created_at"`
}

// NewState mints a meeting state with a fresh id. Two states created from
// identical input never share an id.
func NewState(source SourceType, sourceName string) MeetingState {
	return MeetingState{
		MeetingID:  uuid.NewString(),
		SourceType: source,
		SourceName: sourceName,
		CreatedAt:  time.Now().UTC(),
	}
}

// Clone returns a deep copy. Slices and maps are copied so a stage can
// never reach back into the snapshot a previous stage returned.
func (s MeetingState) Clone() MeetingState {
	out := s

	if s.Segments != nil {
		out.Segments = make([]Utterance, len(s.Segments))
		copy(out.Segments, s.Segments)
	}
	if s.Summary != nil {
		sum := *s.Summary
		sum.Bullets = append([]string(nil), s.Summary.Bullets...)
		out.Summary = &sum
	}
	if s.Decisions != nil {
		out.Decisions = make([]Decision, len(s.Decisions))
		copy(out.Decisions, s.Decisions)
	}
	if s.ActionItems != nil {
		out.ActionItems = make([]ActionItem, len(s.ActionItems))
		copy(out.ActionItems, s.ActionItems)
	}
	if s.Audio != nil {
		audio := *s.Audio
		out.Audio = &audio
	}
	if s.Messages != nil {
		out.Messages = make([]AgentMessage, len(s.Messages))
		for i, m := range s.Messages {
			out.Messages[i] = m.clone()
		}
	}
	out.Run = s.Run.clone()

	return out
}

// AppendMessage adds a message to the log. The log is append-only; nothing
// in the pipeline removes or rewrites an entry.
func (s *MeetingState) AppendMessage(m AgentMessage) {
	s.Messages = append(s.Messages, m)
}

// TranscriptPreview returns the first n characters of the raw transcript,
// used by meeting listings.
func (s MeetingState) TranscriptPreview(n int) string {
	return Preview(s.RawTranscript, n)
}

// Preview truncates text to n characters, respecting rune boundaries.
func Preview(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n])
}

// MeetingRecord is the persisted form of a processed meeting.
type MeetingRecord struct {
	ID            string            `json:"id"`
	SourceType    SourceType        `json:"source_type"`
	SourceName    string            `json:"source_name,omitempty"`
	RawTranscript string            `json:"raw_transcript"`
	Summary       *ExecutiveSummary `json:"summary,omitempty"`
	Decisions     []Decision        `json:"decisions"`
	ActionItems   []ActionItem      `json:"action_items"`
	Run           RunInfo           `json:"run"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// MeetingPreview is one row of a meeting listing.
type MeetingPreview struct {
	ID                string     `json:"id"`
	SourceType        SourceType `json:"source_type"`
	SourceName        string     `json:"source_name,omitempty"`
	TranscriptPreview string     `json:"transcript_preview"`
	CreatedAt         time.Time  `json:"created_at"`
}

// StoreStats are aggregate storage counts.
type StoreStats struct {
	Meetings    int64 `json:"meetings"`
	Decisions   int64 `json:"decisions"`
	ActionItems int64 `json:"action_items"`
}
