package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/stewardlabs/meeting-steward/internal/core/domain"
	"github.com/stewardlabs/meeting-steward/internal/core/ports"
)

// Transcribe turns the recording into a transcript via the speech
// engine and hands it to the summarizer.
type Transcribe struct {
	speech   ports.SpeechClient
	audio    []byte
	fileName string
	model    string
	logger   *slog.Logger
}

var _ ports.Stage = (*Transcribe)(nil)

// NewTranscribe builds the transcription stage bound to one recording.
func NewTranscribe(speech ports.SpeechClient, audio []byte, fileName, model string, logger *slog.Logger) *Transcribe {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transcribe{speech: speech, audio: audio, fileName: fileName, model: model, logger: logger}
}

func (s *Transcribe) Name() domain.StageName { return domain.StageTranscribe }

func (s *Transcribe) Run(ctx context.Context, state domain.MeetingState) (domain.MeetingState, error) {
	resp, err := s.speech.Transcribe(ctx, &domain.TranscribeRequest{
		Audio:    s.audio,
		FileName: s.fileName,
		Model:    s.model,
	})
	if err != nil {
		return state, &domain.CollaboratorError{
			Stage:        domain.StageTranscribe,
			Collaborator: "speech engine",
			Err:          err,
		}
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return state, &domain.StageError{
			Stage: domain.StageTranscribe,
			Err:   errors.New("engine returned an empty transcript"),
		}
	}

	state.RawTranscript = text
	if len(resp.Segments) > 0 {
		state.Segments = resp.Segments
	} else {
		// Some models answer with plain text; keep one segment so the
		// diarizer has something to label.
		state.Segments = []domain.Utterance{{Text: text}}
	}

	payload := map[string]any{
		"segments":   len(state.Segments),
		"characters": len(text),
	}
	if resp.Language != "" {
		payload["language"] = resp.Language
	}
	state.AppendMessage(domain.NewMessage(domain.RoleTranscriber, domain.RoleSummarizer, domain.KindCompletion,
		fmt.Sprintf("transcribed %s into %d segments", s.fileName, len(state.Segments))).
		WithPayload(payload))

	return state, nil
}
