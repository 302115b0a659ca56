package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/stewardlabs/meeting-steward/internal/core/domain"
	"github.com/stewardlabs/meeting-steward/internal/core/ports"
	"github.com/stewardlabs/meeting-steward/internal/prompt"
	"github.com/stewardlabs/meeting-steward/internal/tokens"
)

// DecisionExtractor pulls the concrete decisions out of the transcript.
// An empty result is a legitimate answer; a reply that does not decode
// is not.
type DecisionExtractor struct {
	chat   ports.ChatClient
	tokens *tokens.Registry
	cfg    LLMConfig
	logger *slog.Logger
}

var _ ports.Stage = (*DecisionExtractor)(nil)

// NewDecisionExtractor builds the decision extraction stage.
func NewDecisionExtractor(chat ports.ChatClient, reg *tokens.Registry, cfg LLMConfig, logger *slog.Logger) *DecisionExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &DecisionExtractor{chat: chat, tokens: reg, cfg: cfg, logger: logger}
}

func (s *DecisionExtractor) Name() domain.StageName { return domain.StageExtractDecisions }

func (s *DecisionExtractor) Run(ctx context.Context, state domain.MeetingState) (domain.MeetingState, error) {
	model := effectiveModel(state, s.cfg.Model)
	msgs := []domain.ChatMessage{
		{Role: "system", Content: prompt.DecisionSystem},
		{Role: "user", Content: prompt.FormatTranscript(state)},
	}

	estimate, err := checkBudget(s.tokens, domain.StageExtractDecisions, model, msgs, s.cfg.MaxPromptTokens, s.logger)
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
			Stage:        domain.StageExtractDecisions,
			Collaborator: "ollama",
			Err:          err,
		}
	}

	decisions, err := prompt.ParseDecisions(resp.Content)
	if err != nil {
		return state, &domain.StageError{Stage: domain.StageExtractDecisions, Err: err}
	}
	for i := range decisions {
		decisions[i].ID = uuid.NewString()
	}

	state.Decisions = decisions
	state.AppendMessage(domain.NewMessage(domain.RoleDecisionAgent, domain.RoleActionItemAgent, domain.KindCompletion,
		fmt.Sprintf("extracted %d decisions", len(decisions))).
		WithPayload(map[string]any{
			"decisions":     len(decisions),
			"prompt_tokens": promptTokens(resp, estimate),
		}))

	return state, nil
}
