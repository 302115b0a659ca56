package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stewardlabs/meeting-steward/internal/core/domain"
)

// ParseSummary decodes a summarizer reply into its bullets. A reply
// with no usable bullets is an error.
func ParseSummary(reply string) ([]string, error) {
	raw, err := ExtractJSON(reply)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Bullets []string `json:"bullets"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("summary reply is not valid JSON: %w", err)
	}

	bullets := make([]string, 0, len(payload.Bullets))
	for _, b := range payload.Bullets {
		if b = strings.TrimSpace(b); b != "" {
			bullets = append(bullets, b)
		}
	}
	if len(bullets) == 0 {
		return nil, fmt.Errorf("summary reply contained no bullets")
	}
	return bullets, nil
}

// ParseDecisions decodes a decision-extractor reply. Entries without a
// description are dropped; an empty list is a legitimate answer. IDs
// are left blank for the caller to assign.
func ParseDecisions(reply string) ([]domain.Decision, error) {
	raw, err := ExtractJSON(reply)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Decisions []struct {
			Description string `json:"description"`
			Owner       string `json:"owner"`
			Rationale   string `json:"rationale"`
			Timestamp   string `json:"timestamp"`
		} `json:"decisions"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("decisions reply is not valid JSON: %w", err)
	}

	out := make([]domain.Decision, 0, len(payload.Decisions))
	for _, d := range payload.Decisions {
		desc := strings.TrimSpace(d.Description)
		if desc == "" {
			continue
		}
		out = append(out, domain.Decision{
			Description: desc,
			Owner:       strings.TrimSpace(d.Owner),
			Rationale:   strings.TrimSpace(d.Rationale),
			DecidedAt:   strings.TrimSpace(d.Timestamp),
		})
	}
	return out, nil
}

// ParseActionItems decodes an action-item-extractor reply. Unknown
// priorities normalize to medium and every item starts out pending.
// IDs are left blank for the caller to assign.
func ParseActionItems(reply string) ([]domain.ActionItem, error) {
	raw, err := ExtractJSON(reply)
	if err != nil {
		return nil, err
	}

	var payload struct {
		ActionItems []struct {
			Description string `json:"description"`
			Owner       string `json:"owner"`
			DueDate     string `json:"due_date"`
			Priority    string `json:"priority"`
		} `json:"action_items"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("action items reply is not valid JSON: %w", err)
	}

	out := make([]domain.ActionItem, 0, len(payload.ActionItems))
	for _, a := range payload.ActionItems {
		desc := strings.TrimSpace(a.Description)
		if desc == "" {
			continue
		}
		out = append(out, domain.ActionItem{
			Description: desc,
			Owner:       strings.TrimSpace(a.Owner),
			DueDate:     strings.TrimSpace(a.DueDate),
			Priority:    domain.Priority(strings.ToLower(strings.TrimSpace(a.Priority))).Normalize(),
			Status:      domain.ActionPending,
		})
	}
	return out, nil
}
