package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stewardlabs/meeting-steward/internal/core/domain"
	"github.com/stewardlabs/meeting-steward/internal/tokens"
)

func textInput(transcript string) domain.MeetingState {
	state := domain.NewState(domain.SourceText, "standup.txt")
	state.RawTranscript = transcript
	return state
}

func TestSummarizer(t *testing.T) {
	chat := &fakeChat{resp: &domain.ChatResponse{
		Model:        "llama3.2",
		Content:      "```json\n{\"bullets\": [\"Pricing agreed.\", \"Beta ships in March.\", \"Sam owns the launch page.\"]}\n```",
		PromptTokens: 42,
	}}
	stage := NewSummarizer(chat, tokens.NewRegistry(), LLMConfig{Model: "llama3.2", Temperature: 0.1}, discardLogger())

	state, err := stage.Run(context.Background(), textInput("DANA: Tier A at $49. SAM: I'll draft the page."))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if state.Summary == nil {
		t.Fatal("Summary not set")
	}
	if len(state.Summary.Bullets) != 3 {
		t.Errorf("got %d bullets, want 3", len(state.Summary.Bullets))
	}
	if state.Summary.ModelUsed != "llama3.2" {
		t.Errorf("model used = %q", state.Summary.ModelUsed)
	}

	if chat.last.Model != "llama3.2" {
		t.Errorf("requested model = %q", chat.last.Model)
	}
	if len(chat.last.Messages) != 2 || chat.last.Messages[0].Role != "system" {
		t.Errorf("prompt shape = %+v", chat.last.Messages)
	}

	if len(state.Messages) != 1 {
		t.Fatalf("got %d messages, want 1", len(state.Messages))
	}
	msg := state.Messages[0]
	if msg.Sender != domain.RoleSummarizer || msg.Recipient != domain.RoleDecisionAgent {
		t.Errorf("route = %s -> %s, want summarizer -> decision_extractor", msg.Sender, msg.Recipient)
	}
	if msg.Payload["prompt_tokens"] != 42 {
		t.Errorf("payload prompt_tokens = %v, want 42", msg.Payload["prompt_tokens"])
	}
	requireRoutes(t, state)
}

func TestSummarizer_UsesRunModel(t *testing.T) {
	chat := &fakeChat{resp: &domain.ChatResponse{Content: `{"bullets": ["a"]}`}}
	stage := NewSummarizer(chat, tokens.NewRegistry(), LLMConfig{Model: "llama3.2"}, discardLogger())

	state := textInput("short meeting")
	state.Run.Model = "qwen2.5:7b"

	if _, err := stage.Run(context.Background(), state); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if chat.last.Model != "qwen2.5:7b" {
		t.Errorf("requested model = %q, want the per-run override", chat.last.Model)
	}
}

func TestSummarizer_MalformedReply(t *testing.T) {
	chat := &fakeChat{resp: &domain.ChatResponse{Content: "The meeting went well overall."}}
	stage := NewSummarizer(chat, tokens.NewRegistry(), LLMConfig{Model: "llama3.2"}, discardLogger())

	state, err := stage.Run(context.Background(), textInput("hello"))
	if err == nil {
		t.Fatal("Run() expected an error")
	}

	var se *domain.StageError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StageError, got %T", err)
	}
	if se.Stage != domain.StageSummarize {
		t.Errorf("stage = %q, want summarize", se.Stage)
	}
	if state.Summary != nil {
		t.Error("failed stage must not write its field")
	}
	if len(state.Messages) != 0 {
		t.Errorf("failed stage should append nothing, got %d messages", len(state.Messages))
	}
}

func TestSummarizer_EngineDown(t *testing.T) {
	chat := &fakeChat{err: errors.New("connection refused")}
	stage := NewSummarizer(chat, tokens.NewRegistry(), LLMConfig{Model: "llama3.2"}, discardLogger())

	_, err := stage.Run(context.Background(), textInput("hello"))
	if !domain.IsCollaboratorUnavailable(err) {
		t.Fatalf("expected a collaborator error, got %v", err)
	}
	if stage, ok := domain.FailedStage(err); !ok || stage != domain.StageSummarize {
		t.Errorf("FailedStage() = %q, %v", stage, ok)
	}
}

func TestSummarizer_PromptBudget(t *testing.T) {
	chat := &fakeChat{resp: &domain.ChatResponse{Content: `{"bullets": ["a"]}`}}
	stage := NewSummarizer(chat, tokens.NewRegistry(),
		LLMConfig{Model: "llama3.2", MaxPromptTokens: 10}, discardLogger())

	_, err := stage.Run(context.Background(), textInput(strings.Repeat("a very long meeting ", 200)))
	if err == nil {
		t.Fatal("Run() expected a budget error")
	}
	if chat.calls != 0 {
		t.Errorf("budget breach must not reach the model, saw %d calls", chat.calls)
	}
}
