package ports

import (
	"context"

	"github.com/stewardlabs/meeting-steward/internal/core/domain"
)

// ChatClient talks to the LLM endpoint.
type ChatClient interface {
	// Chat sends one conversation and returns the model's answer.
	Chat(ctx context.Context, req *domain.ChatRequest) (*domain.ChatResponse, error)

	// HasModel reports whether the endpoint serves the named model.
	// "name" and "name:latest" refer to the same model.
	HasModel(ctx context.Context, model string) (bool, error)
}

// SpeechClient talks to the speech engine.
type SpeechClient interface {
	// Transcribe turns a recording into text with timed segments.
	Transcribe(ctx context.Context, req *domain.TranscribeRequest) (*domain.Transcription, error)

	// Diarize returns speaker-attributed segments for a recording.
	Diarize(ctx context.Context, req *domain.DiarizeRequest) (*domain.Diarization, error)
}
