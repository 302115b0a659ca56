// Package steward is the embeddable meeting analysis service: the agent
// pipeline, its collaborator clients and the meeting store behind one
// constructor. The HTTP server and the CLI are both thin shells over
// this package.
package steward

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/stewardlabs/meeting-steward/internal/config"
	"github.com/stewardlabs/meeting-steward/internal/core/domain"
	"github.com/stewardlabs/meeting-steward/internal/core/ports"
	"github.com/stewardlabs/meeting-steward/internal/ollama"
	"github.com/stewardlabs/meeting-steward/internal/pipeline"
	"github.com/stewardlabs/meeting-steward/internal/speech"
	"github.com/stewardlabs/meeting-steward/internal/storage"
	"github.com/stewardlabs/meeting-steward/internal/storage/memory"
	"github.com/stewardlabs/meeting-steward/internal/storage/sqldb"
	"github.com/stewardlabs/meeting-steward/internal/tokens"
)

// RunOption adjusts a single analysis run.
type RunOption = pipeline.RunOption

// WithModel overrides the chat model for a single analysis.
var WithModel = pipeline.WithModel

// Steward owns the pipeline and its collaborators.
type Steward struct {
	cfg    *config.Config
	logger *slog.Logger

	chat   ports.ChatClient
	speech ports.SpeechClient
	store  storage.MeetingStore
	tokens *tokens.Registry
	runner *pipeline.Runner
}

// Option configures a Steward.
type Option func(*Steward)

// WithLogger sets the logger used across the pipeline and clients.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Steward) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithChatClient swaps the LLM client, mainly for tests and embeddings
// that bring their own.
func WithChatClient(chat ports.ChatClient) Option {
	return func(s *Steward) { s.chat = chat }
}

// WithSpeechClient swaps the speech engine client.
func WithSpeechClient(sc ports.SpeechClient) Option {
	return func(s *Steward) { s.speech = sc }
}

// WithStore swaps the meeting store, bypassing the configured driver.
func WithStore(store storage.MeetingStore) Option {
	return func(s *Steward) { s.store = store }
}

// New assembles a Steward from configuration. Collaborators not injected
// through options are built from the config sections.
func New(cfg *config.Config, opts ...Option) (*Steward, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}

	s := &Steward{cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	if s.chat == nil {
		if cfg.Ollama.Host == "" {
			return nil, errors.New("ollama.host is required")
		}
		ollamaOpts := []ollama.ClientOption{
			ollama.WithTimeout(cfg.Ollama.Timeout()),
			ollama.WithMaxRetries(cfg.Ollama.MaxRetries),
			ollama.WithLogger(s.logger),
		}
		if cfg.Ollama.CacheSize > 0 {
			ollamaOpts = append(ollamaOpts, ollama.WithCache(cfg.Ollama.CacheSize))
		}
		s.chat = ollama.New(cfg.Ollama.Host, ollamaOpts...)
	}

	if s.speech == nil {
		if cfg.Speech.BaseURL == "" {
			return nil, errors.New("speech.base_url is required")
		}
		s.speech = speech.New(cfg.Speech.BaseURL,
			speech.WithTimeout(cfg.Speech.Timeout()),
			speech.WithLogger(s.logger),
		)
	}

	if s.store == nil {
		store, err := openStore(cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		s.store = store
	}

	s.tokens = tokens.NewRegistry()
	s.runner = pipeline.New(
		pipeline.Config{
			Model:           cfg.Ollama.Model,
			Temperature:     cfg.Ollama.Temperature,
			MaxPromptTokens: cfg.Pipeline.MaxPromptTokens,
			SpeechModel:     cfg.Speech.Model,
			Diarization:     cfg.Speech.Diarization,
		},
		s.chat, s.speech, s.store,
		pipeline.WithLogger(s.logger),
		pipeline.WithTokenCounter(s.tokens),
	)

	return s, nil
}

func openStore(cfg config.StorageConfig) (storage.MeetingStore, error) {
	switch cfg.Driver {
	case "memory":
		return memory.New(), nil
	case "sqlite":
		return sqldb.NewSQLite(cfg.DSN)
	case "postgres":
		return sqldb.New(sqldb.Config{Driver: "postgres", DSN: cfg.DSN})
	default:
		return nil, fmt.Errorf("storage driver %q not supported", cfg.Driver)
	}
}

// AnalyzeText runs the text pipeline over a transcript.
func (s *Steward) AnalyzeText(ctx context.Context, transcript, label string, opts ...RunOption) (domain.MeetingState, error) {
	return s.runner.RunText(ctx, transcript, label, opts...)
}

// AnalyzeAudio runs the audio pipeline over a recording.
func (s *Steward) AnalyzeAudio(ctx context.Context, audio []byte, name string, opts ...RunOption) (domain.MeetingState, error) {
	return s.runner.RunAudio(ctx, audio, name, opts...)
}

// GetMeeting returns a stored meeting.
func (s *Steward) GetMeeting(ctx context.Context, id string) (*domain.MeetingRecord, error) {
	return s.store.GetMeeting(ctx, id)
}

// ListMeetings returns stored meetings, newest first.
func (s *Steward) ListMeetings(ctx context.Context, limit int) ([]domain.MeetingPreview, error) {
	return s.store.ListMeetings(ctx, limit)
}

// Stats returns aggregate store counts.
func (s *Steward) Stats(ctx context.Context) (domain.StoreStats, error) {
	return s.store.Stats(ctx)
}

// Runner exposes the pipeline runner for the HTTP server.
func (s *Steward) Runner() *pipeline.Runner { return s.runner }

// Store exposes the meeting store for the HTTP server.
func (s *Steward) Store() storage.MeetingStore { return s.store }

// CheckOllama verifies the LLM endpoint answers and serves the
// configured model.
func (s *Steward) CheckOllama(ctx context.Context) error {
	ok, err := s.chat.HasModel(ctx, s.cfg.Ollama.Model)
	if err != nil {
		return fmt.Errorf("ollama unreachable: %w", err)
	}
	if !ok {
		return fmt.Errorf("model %q is not served, pull it with: ollama pull %s", s.cfg.Ollama.Model, s.cfg.Ollama.Model)
	}
	return nil
}

type healthChecker interface {
	Health(ctx context.Context) error
}

// CheckSpeech verifies the speech engine answers its health endpoint.
// Injected clients without a health check pass vacuously.
func (s *Steward) CheckSpeech(ctx context.Context) error {
	if hc, ok := s.speech.(healthChecker); ok {
		return hc.Health(ctx)
	}
	return nil
}

// CheckStorage verifies the meeting store answers queries.
func (s *Steward) CheckStorage(ctx context.Context) error {
	if _, err := s.store.Stats(ctx); err != nil {
		return fmt.Errorf("storage not readable: %w", err)
	}
	return nil
}

// Close releases the store.
func (s *Steward) Close() error {
	return s.store.Close()
}
