package ollama

import "fmt"

// Wire types for the /api/chat and /api/tags endpoints.

type chatRequest struct {
	Model    string       `json:"model"`
	Messages []wireMsg    `json:"messages"`
	Stream   bool         `json:"stream"`
	Options  *chatOptions `json:"options,omitempty"`
}

type wireMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatOptions struct {
	Temperature float32 `json:"temperature"`
}

type chatResponse struct {
	Model           string  `json:"model"`
	Message         wireMsg `json:"message"`
	Done            bool    `json:"done"`
	PromptEvalCount int     `json:"prompt_eval_count"`
	EvalCount       int     `json:"eval_count"`
}

type tagsResponse struct {
	Models []ModelInfo `json:"models"`
}

// ModelInfo is one entry of the endpoint's model listing.
type ModelInfo struct {
	Name       string `json:"name"`
	Size       int64  `json:"size,omitempty"`
	Digest     string `json:"digest,omitempty"`
	ModifiedAt string `json:"modified_at,omitempty"`
}

// Error is the error body the endpoint returns on non-200 answers.
type Error struct {
	StatusCode int    `json:"-"`
	Message    string `json:"error"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("ollama: %s (status %d)", e.Message, e.StatusCode)
}
