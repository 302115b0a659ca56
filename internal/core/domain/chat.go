package domain

// ChatMessage is one turn of an LLM conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the canonical request the agents send to the LLM endpoint.
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float32       `json:"temperature,omitempty"`
}

// ChatResponse is the canonical LLM answer.
type ChatResponse struct {
	Model   string `json:"model"`
	Content string `json:"content"`

	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`

	// Cached is set when the answer was served from the client's response
	// cache rather than the endpoint.
	Cached bool `json:"-"`
}
