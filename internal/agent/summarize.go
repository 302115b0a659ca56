package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/stewardlabs/meeting-steward/internal/core/domain"
	"github.com/stewardlabs/meeting-steward/internal/core/ports"
	"github.com/stewardlabs/meeting-steward/internal/prompt"
	"github.com/stewardlabs/meeting-steward/internal/tokens"
)

// Summarizer condenses the transcript into the executive summary.
type Summarizer struct {
	chat   ports.ChatClient
	tokens *tokens.Registry
	cfg    LLMConfig
	logger *slog.Logger
}

var _ ports.Stage = (*Summarizer)(nil)

// NewSummarizer builds the summarization stage.
func NewSummarizer(chat ports.ChatClient, reg *tokens.Registry, cfg LLMConfig, logger *slog.Logger) *Summarizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Summarizer{chat: chat, tokens: reg, cfg: cfg, logger: logger}
}

func (s *Summarizer) Name() domain.StageName { return domain.StageSummarize }

func (s *Summarizer) Run(ctx context.Context, state domain.MeetingState) (domain.MeetingState, error) {
	model := effectiveModel(state, s.cfg.Model)
	msgs := []domain.ChatMessage{
		{Role: "system", Content: prompt.SummarizerSystem},
		{Role: "user", Content: prompt.FormatTranscript(state)},
	}

	estimate, err := checkBudget(s.tokens, domain.StageSummarize, model, msgs, s.cfg.MaxPromptTokens, s.logger)
	if err != nil {
		return state, err
	}

	resp, err := s.chat.Chat(ctx, &domain.ChatRequest{
		Model:       model,
		Temperature: s.cfg.Temperature,
		Messages:    msgs,
	})
	if err != nil {
		return state, &domain.CollaboratorError{
			Stage:        domain.StageSummarize,
			Collaborator: "ollama",
			Err:          err,
		}
	}

	bullets, err := prompt.ParseSummary(resp.Content)
	if err != nil {
		return state, &domain.StageError{Stage: domain.StageSummarize, Err: err}
	}

	state.Summary = &domain.ExecutiveSummary{
		Bullets:   bullets,
		ModelUsed: servedModel(resp, model),
	}
	state.AppendMessage(domain.NewMessage(domain.RoleSummarizer, domain.RoleDecisionAgent, domain.KindCompletion,
		fmt.Sprintf("summarized the meeting in %d bullets", len(bullets))).
		WithPayload(map[string]any{
			"bullets":       len(bullets),
			"model":         servedModel(resp, model),
			"prompt_tokens": promptTokens(resp, estimate),
		}))

	return state, nil
}
