package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/stewardlabs/meeting-steward/internal/core/domain"
	"github.com/stewardlabs/meeting-steward/internal/core/ports"
)

// fallbackSpeaker labels every segment when diarization cannot serve.
const fallbackSpeaker = "SPEAKER_00"

// Diarize attributes speakers to the transcript segments. Diarization
// is best-effort: when the engine cannot serve it the stage degrades to
// a single speaker instead of failing the run.
type Diarize struct {
	speech   ports.SpeechClient
	audio    []byte
	fileName string
	logger   *slog.Logger
}

var _ ports.Stage = (*Diarize)(nil)

// NewDiarize builds the diarization stage bound to one recording.
func NewDiarize(speech ports.SpeechClient, audio []byte, fileName string, logger *slog.Logger) *Diarize {
	if logger == nil {
		logger = slog.Default()
	}
	return &Diarize{speech: speech, audio: audio, fileName: fileName, logger: logger}
}

func (s *Diarize) Name() domain.StageName { return domain.StageDiarize }

func (s *Diarize) Run(ctx context.Context, state domain.MeetingState) (domain.MeetingState, error) {
	resp, err := s.speech.Diarize(ctx, &domain.DiarizeRequest{
		Audio:    s.audio,
		FileName: s.fileName,
	})
	if err != nil {
		s.logger.Warn("diarization failed, labeling a single speaker",
			"meeting_id", state.MeetingID,
			"error", err)

		for i := range state.Segments {
			state.Segments[i].Speaker = fallbackSpeaker
		}
		state.AppendMessage(domain.NewMessage(domain.RoleTranscriber, domain.RoleSummarizer, domain.KindDegraded,
			"diarization unavailable, attributed every segment to a single speaker").
			WithPayload(map[string]any{
				"speakers": 1,
				"reason":   err.Error(),
			}))
		return state, nil
	}

	speakers := mergeSpeakers(state.Segments, resp.Segments)
	if resp.Speakers > 0 {
		speakers = resp.Speakers
	}

	state.AppendMessage(domain.NewMessage(domain.RoleTranscriber, domain.RoleSummarizer, domain.KindCompletion,
		fmt.Sprintf("attributed %d speakers across %d segments", speakers, len(state.Segments))).
		WithPayload(map[string]any{
			"speakers": speakers,
			"segments": len(state.Segments),
		}))

	return state, nil
}

// mergeSpeakers labels each transcript segment with the speaker turn
// covering its midpoint and returns the distinct speaker count.
func mergeSpeakers(segments []domain.Utterance, turns []domain.Utterance) int {
	seen := make(map[string]bool)
	for i := range segments {
		mid := (segments[i].Start + segments[i].End) / 2
		speaker := speakerAt(turns, mid)
		segments[i].Speaker = speaker
		seen[speaker] = true
	}
	return len(seen)
}

// speakerAt finds the turn covering t, falling back to the latest turn
// started before t. Turns arrive in time order.
func speakerAt(turns []domain.Utterance, t float64) string {
	current := fallbackSpeaker
	for _, turn := range turns {
		if turn.Speaker == "" {
			continue
		}
		if t >= turn.Start && t < turn.End {
			return turn.Speaker
		}
		if turn.Start <= t {
			current = turn.Speaker
		}
	}
	return current
}
