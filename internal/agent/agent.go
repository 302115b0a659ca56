// Package agent holds the pipeline stages. Each stage makes at most one
// external call, writes the one content field it owns, and appends one
// message to the meeting log before handing the record to the next stage.
package agent

import (
	"fmt"
	"log/slog"

	"github.com/stewardlabs/meeting-steward/internal/core/domain"
	"github.com/stewardlabs/meeting-steward/internal/tokens"
)

// LLMConfig carries what every model-backed stage needs.
type LLMConfig struct {
	// Model is the default chat model; a per-run model on the meeting
	// state takes precedence.
	Model       string
	Temperature float32
	// MaxPromptTokens fails a stage whose prompt would exceed the
	// ceiling. Zero disables the check.
	MaxPromptTokens int
}

func effectiveModel(state domain.MeetingState, fallback string) string {
	if state.Run.Model != "" {
		return state.Run.Model
	}
	return fallback
}

// checkBudget enforces the prompt token ceiling before a chat call.
// A counting failure skips enforcement with a warning; it is not worth
// failing a run over.
func checkBudget(reg *tokens.Registry, stage domain.StageName, model string, msgs []domain.ChatMessage, limit int, logger *slog.Logger) (int, error) {
	if reg == nil {
		return 0, nil
	}
	count, err := reg.Count(model, msgs)
	if err != nil {
		logger.Warn("token counting failed", "stage", string(stage), "error", err)
		return 0, nil
	}
	if limit > 0 && count > limit {
		return count, &domain.StageError{
			Stage: stage,
			Err:   fmt.Errorf("prompt needs %d tokens, limit is %d", count, limit),
		}
	}
	return count, nil
}

// promptTokens prefers the engine's own count over the local estimate.
func promptTokens(resp *domain.ChatResponse, estimate int) int {
	if resp.PromptTokens > 0 {
		return resp.PromptTokens
	}
	return estimate
}

func servedModel(resp *domain.ChatResponse, requested string) string {
	if resp.Model != "" {
		return resp.Model
	}
	return requested
}
