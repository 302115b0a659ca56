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

// ActionItemExtractor pulls the committed tasks out of the transcript
// and reports the finished analysis back to the steward.
type ActionItemExtractor struct {
	chat   ports.ChatClient
	tokens *tokens.Registry
	cfg    LLMConfig
	logger *slog.Logger
}

var _ ports.Stage = (*ActionItemExtractor)(nil)

// NewActionItemExtractor builds the action item extraction stage.
func NewActionItemExtractor(chat ports.ChatClient, reg *tokens.Registry, cfg LLMConfig, logger *slog.Logger) *ActionItemExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &ActionItemExtractor{chat: chat, tokens: reg, cfg: cfg, logger: logger}
}

func (s *ActionItemExtractor) Name() domain.StageName { return domain.StageExtractActions }

func (s *ActionItemExtractor) Run(ctx context.Context, state domain.MeetingState) (domain.MeetingState, error) {
	model := effectiveModel(state, s.cfg.Model)
	msgs := []domain.ChatMessage{
		{Role: "system", Content: prompt.ActionItemSystem},
		{Role: "user", Content: prompt.FormatTranscript(state)},
	}

	estimate, err := checkBudget(s.tokens, domain.StageExtractActions, model, msgs, s.cfg.MaxPromptTokens, s.logger)
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
			Stage:        domain.StageExtractActions,
			Collaborator: "ollama",
			Err:          err,
		}
	}

	items, err := prompt.ParseActionItems(resp.Content)
	if err != nil {
		return state, &domain.StageError{Stage: domain.StageExtractActions, Err: err}
	}
	for i := range items {
		items[i].ID = uuid.NewString()
	}

	state.ActionItems = items
	state.AppendMessage(domain.NewMessage(domain.RoleActionItemAgent, domain.RoleSteward, domain.KindCompletion,
		fmt.Sprintf("extracted %d action items", len(items))).
		WithPayload(map[string]any{
			"action_items":  len(items),
			"prompt_tokens": promptTokens(resp, estimate),
		}))

	return state, nil
}
