// Package tokens counts prompt tokens for the models the pipeline talks to.
package tokens

import (
	"strings"

	"github.com/stewardlabs/meeting-steward/internal/core/domain"
)

// Counter counts the tokens a chat prompt will consume for a model.
type Counter interface {
	Count(model string, messages []domain.ChatMessage) (int, error)
	SupportsModel(model string) bool
}

// Registry picks the right counter for a model: an exact tokenizer where one
// exists, a character estimator for everything else.
type Registry struct {
	counters []Counter
	fallback Counter
}

// NewRegistry creates a registry with the tiktoken counter registered and
// the estimator as fallback.
func NewRegistry() *Registry {
	r := &Registry{fallback: NewEstimator()}
	r.Register(NewTiktokenCounter())
	return r
}

// Register adds a counter to the registry.
func (r *Registry) Register(c Counter) {
	r.counters = append(r.counters, c)
}

// CounterFor returns the first counter supporting the model, or the fallback.
func (r *Registry) CounterFor(model string) Counter {
	for _, c := range r.counters {
		if c.SupportsModel(model) {
			return c
		}
	}
	return r.fallback
}

// Count counts prompt tokens with the appropriate counter.
func (r *Registry) Count(model string, messages []domain.ChatMessage) (int, error) {
	return r.CounterFor(model).Count(model, messages)
}

// Estimator approximates token counts from character length. Local models
// ship their own tokenizers, so an estimate is the honest answer for them.
type Estimator struct {
	// CharsPerToken is the average characters per token (default: 4)
	CharsPerToken float64
}

// NewEstimator creates a new token estimator.
func NewEstimator() *Estimator {
	return &Estimator{CharsPerToken: 4.0}
}

// Count estimates the token count.
func (e *Estimator) Count(model string, messages []domain.ChatMessage) (int, error) {
	totalChars := 0
	for _, msg := range messages {
		totalChars += len(msg.Role)
		totalChars += len(msg.Content)
		// Message framing overhead (role markers and separators).
		totalChars += 4
	}
	return int(float64(totalChars) / e.CharsPerToken), nil
}

// SupportsModel returns true; the estimator is the universal fallback.
func (e *Estimator) SupportsModel(model string) bool {
	return true
}

// ModelMatcher matches model names against prefixes and exact names.
type ModelMatcher struct {
	prefixes []string
	exact    []string
}

// NewModelMatcher creates a new model matcher.
func NewModelMatcher(prefixes, exact []string) *ModelMatcher {
	return &ModelMatcher{prefixes: prefixes, exact: exact}
}

// Matches returns true if the model matches any pattern.
func (m *ModelMatcher) Matches(model string) bool {
	for _, e := range m.exact {
		if model == e {
			return true
		}
	}
	for _, p := range m.prefixes {
		if strings.HasPrefix(model, p) {
			return true
		}
	}
	return false
}
