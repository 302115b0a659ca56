package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stewardlabs/meeting-steward/internal/core/domain"
	"github.com/stewardlabs/meeting-steward/internal/storage"
	"github.com/stewardlabs/meeting-steward/internal/storage/memory"
)

const (
	summaryReply = "```json\n{\"bullets\": [\"Pricing tiers were settled.\", \"Launch moved to March.\", \"Dana owns the beta list.\"]}\n```"

	decisionsReply = `{"decisions": [{"description": "Adopt two pricing tiers, Tier A at $49 and Tier B at $99", "owner": "Priya", "rationale": "covers hobbyists and teams"}]}`

	actionsReply = `{"action_items": [{"description": "Email the beta list", "owner": "Dana", "due_date": "Friday", "priority": "high"}]}`
)

const pricingTranscript = "Priya: Let's lock pricing. Tier A at $49 and Tier B at $99. Dana: Agreed, I'll email the beta list by Friday."

// scriptedChat returns canned replies in order, one per call.
type scriptedChat struct {
	replies []string
	err     error
	calls   []*domain.ChatRequest
}

func (c *scriptedChat) Chat(ctx context.Context, req *domain.ChatRequest) (*domain.ChatResponse, error) {
	c.calls = append(c.calls, req)
	if c.err != nil {
		return nil, c.err
	}
	if len(c.replies) == 0 {
		return nil, errors.New("scripted chat: out of replies")
	}
	reply := c.replies[0]
	c.replies = c.replies[1:]
	return &domain.ChatResponse{Model: req.Model, Content: reply, PromptTokens: 42}, nil
}

func (c *scriptedChat) HasModel(ctx context.Context, model string) (bool, error) {
	return true, nil
}

func extractionScript() []string {
	return []string{summaryReply, decisionsReply, actionsReply}
}

type fakeSpeech struct {
	transcription *domain.Transcription
	diarization   *domain.Diarization
	transcribeErr error
	diarizeErr    error

	transcribes []*domain.TranscribeRequest
	diarizes    []*domain.DiarizeRequest
}

func (s *fakeSpeech) Transcribe(ctx context.Context, req *domain.TranscribeRequest) (*domain.Transcription, error) {
	s.transcribes = append(s.transcribes, req)
	if s.transcribeErr != nil {
		return nil, s.transcribeErr
	}
	return s.transcription, nil
}

func (s *fakeSpeech) Diarize(ctx context.Context, req *domain.DiarizeRequest) (*domain.Diarization, error) {
	s.diarizes = append(s.diarizes, req)
	if s.diarizeErr != nil {
		return nil, s.diarizeErr
	}
	return s.diarization, nil
}

func audioFixture() (*domain.Transcription, *domain.Diarization) {
	transcription := &domain.Transcription{
		Text: "Welcome back. Pricing is settled. Dana emails the beta list.",
		Segments: []domain.Utterance{
			{Start: 0, End: 2, Text: "Welcome back."},
			{Start: 2, End: 4.5, Text: "Pricing is settled."},
			{Start: 4.5, End: 7, Text: "Dana emails the beta list."},
		},
		Language: "en",
	}
	diarization := &domain.Diarization{
		Segments: []domain.Utterance{
			{Start: 0, End: 2.2, Speaker: "SPEAKER_00"},
			{Start: 2.2, End: 7, Speaker: "SPEAKER_01"},
		},
		Speakers: 2,
	}
	return transcription, diarization
}

// failStore refuses every save.
type failStore struct {
	saveErr error
}

func (s *failStore) SaveMeeting(ctx context.Context, state domain.MeetingState) (string, error) {
	return "", s.saveErr
}

func (s *failStore) GetMeeting(ctx context.Context, id string) (*domain.MeetingRecord, error) {
	return nil, storage.ErrNotFound
}

func (s *failStore) ListMeetings(ctx context.Context, limit int) ([]domain.MeetingPreview, error) {
	return nil, nil
}

func (s *failStore) Stats(ctx context.Context) (domain.StoreStats, error) {
	return domain.StoreStats{}, nil
}

func (s *failStore) Close() error { return nil }

func testConfig() Config {
	return Config{
		Model:       "llama3.2",
		Temperature: 0.1,
		SpeechModel: "base",
		Diarization: true,
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type route struct {
	sender    domain.Role
	recipient domain.Role
	kind      domain.MessageKind
}

func checkMessages(t *testing.T, msgs []domain.AgentMessage, want []route) {
	t.Helper()
	if len(msgs) != len(want) {
		t.Fatalf("got %d messages, want %d", len(msgs), len(want))
	}
	for i, w := range want {
		m := msgs[i]
		if m.Sender != w.sender || m.Recipient != w.recipient || m.Kind != w.kind {
			t.Errorf("message %d: got %s -> %s (%s), want %s -> %s (%s)",
				i, m.Sender, m.Recipient, m.Kind, w.sender, w.recipient, w.kind)
		}
		if m.ID == "" {
			t.Errorf("message %d has no id", i)
		}
		if m.Content == "" {
			t.Errorf("message %d has no content", i)
		}
	}
}

func TestRunner_RunText(t *testing.T) {
	chat := &scriptedChat{replies: extractionScript()}
	store := memory.New()
	r := New(testConfig(), chat, &fakeSpeech{}, store, WithLogger(quietLogger()))

	state, err := r.RunText(context.Background(), pricingTranscript, "pricing sync")
	if err != nil {
		t.Fatalf("RunText: %v", err)
	}

	checkMessages(t, state.Messages, []route{
		{domain.RoleSummarizer, domain.RoleDecisionAgent, domain.KindCompletion},
		{domain.RoleDecisionAgent, domain.RoleActionItemAgent, domain.KindCompletion},
		{domain.RoleActionItemAgent, domain.RoleSteward, domain.KindCompletion},
	})

	if state.Summary == nil || len(state.Summary.Bullets) != 3 {
		t.Fatalf("summary = %+v, want 3 bullets", state.Summary)
	}
	if len(state.Decisions) != 1 {
		t.Fatalf("got %d decisions, want 1", len(state.Decisions))
	}
	desc := state.Decisions[0].Description
	if !strings.Contains(desc, "Tier A at $49") || !strings.Contains(desc, "Tier B at $99") {
		t.Errorf("decision lost the pricing details: %q", desc)
	}
	if state.Decisions[0].ID == "" {
		t.Error("decision has no id")
	}
	if len(state.ActionItems) != 1 {
		t.Fatalf("got %d action items, want 1", len(state.ActionItems))
	}
	if state.ActionItems[0].Priority != domain.PriorityHigh {
		t.Errorf("priority = %q, want high", state.ActionItems[0].Priority)
	}
	if state.ActionItems[0].Status != domain.ActionPending {
		t.Errorf("status = %q, want pending", state.ActionItems[0].Status)
	}

	wantStages := []domain.StageName{domain.StageSummarize, domain.StageExtractDecisions, domain.StageExtractActions}
	if len(state.Run.Stages) != len(wantStages) {
		t.Fatalf("got %d stage timings, want %d", len(state.Run.Stages), len(wantStages))
	}
	for i, want := range wantStages {
		if state.Run.Stages[i].Stage != want {
			t.Errorf("timing %d = %s, want %s", i, state.Run.Stages[i].Stage, want)
		}
	}
	if state.Run.Stages[0].PromptTokens != 42 {
		t.Errorf("summarize prompt tokens = %d, want 42", state.Run.Stages[0].PromptTokens)
	}
	if state.Run.Model != "llama3.2" {
		t.Errorf("run model = %q, want llama3.2", state.Run.Model)
	}

	rec, err := store.GetMeeting(context.Background(), state.MeetingID)
	if err != nil {
		t.Fatalf("GetMeeting after run: %v", err)
	}
	if rec.RawTranscript != pricingTranscript {
		t.Errorf("stored transcript = %q, want the input", rec.RawTranscript)
	}
	if len(rec.Decisions) != 1 || len(rec.ActionItems) != 1 {
		t.Errorf("stored %d decisions / %d action items, want 1 / 1", len(rec.Decisions), len(rec.ActionItems))
	}
}

func TestRunner_RunText_ModelOverride(t *testing.T) {
	chat := &scriptedChat{replies: extractionScript()}
	r := New(testConfig(), chat, &fakeSpeech{}, memory.New(), WithLogger(quietLogger()))

	state, err := r.RunText(context.Background(), pricingTranscript, "", WithModel("qwen2.5:7b"))
	if err != nil {
		t.Fatalf("RunText: %v", err)
	}

	if state.Run.Model != "qwen2.5:7b" {
		t.Errorf("run model = %q, want the override", state.Run.Model)
	}
	if len(chat.calls) != 3 {
		t.Fatalf("got %d chat calls, want 3", len(chat.calls))
	}
	for i, call := range chat.calls {
		if call.Model != "qwen2.5:7b" {
			t.Errorf("call %d used model %q, want the override", i, call.Model)
		}
	}
}

func TestRunner_SetModel(t *testing.T) {
	chat := &scriptedChat{replies: append(extractionScript(), extractionScript()...)}
	r := New(testConfig(), chat, &fakeSpeech{}, memory.New(), WithLogger(quietLogger()))

	if got := r.DefaultModel(); got != "llama3.2" {
		t.Fatalf("default model = %q, want the configured one", got)
	}

	r.SetModel("mistral:7b")

	state, err := r.RunText(context.Background(), pricingTranscript, "")
	if err != nil {
		t.Fatalf("RunText: %v", err)
	}
	if state.Run.Model != "mistral:7b" {
		t.Errorf("run model = %q, want the swapped default", state.Run.Model)
	}
	for i, call := range chat.calls {
		if call.Model != "mistral:7b" {
			t.Errorf("call %d used model %q, want the swapped default", i, call.Model)
		}
	}

	// A per-run override still beats the swapped default.
	state, err = r.RunText(context.Background(), pricingTranscript, "", WithModel("qwen2.5:7b"))
	if err != nil {
		t.Fatalf("RunText with override: %v", err)
	}
	if state.Run.Model != "qwen2.5:7b" {
		t.Errorf("run model = %q, want the override", state.Run.Model)
	}

	// An empty swap is ignored.
	r.SetModel("")
	if got := r.DefaultModel(); got != "mistral:7b" {
		t.Errorf("default model = %q after empty swap, want mistral:7b", got)
	}
}

func TestRunner_RunText_EmptyTranscript(t *testing.T) {
	store := memory.New()
	r := New(testConfig(), &scriptedChat{}, &fakeSpeech{}, store, WithLogger(quietLogger()))

	for _, transcript := range []string{"", "   \n\t"} {
		_, err := r.RunText(context.Background(), transcript, "")
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("transcript %q: got %v, want ErrInvalidInput", transcript, err)
		}
	}

	stats, err := store.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Meetings != 0 {
		t.Errorf("stored %d meetings, want 0", stats.Meetings)
	}
}

func TestRunner_RunAudio(t *testing.T) {
	transcription, diarization := audioFixture()
	chat := &scriptedChat{replies: extractionScript()}
	speech := &fakeSpeech{transcription: transcription, diarization: diarization}
	store := memory.New()
	r := New(testConfig(), chat, speech, store, WithLogger(quietLogger()))

	audio := []byte("ID3\x04fake mp3 payload")
	state, err := r.RunAudio(context.Background(), audio, "standup.mp3")
	if err != nil {
		t.Fatalf("RunAudio: %v", err)
	}

	checkMessages(t, state.Messages, []route{
		{domain.RoleSteward, domain.RoleTranscriber, domain.KindCompletion},
		{domain.RoleTranscriber, domain.RoleSummarizer, domain.KindCompletion},
		{domain.RoleTranscriber, domain.RoleSummarizer, domain.KindCompletion},
		{domain.RoleSummarizer, domain.RoleDecisionAgent, domain.KindCompletion},
		{domain.RoleDecisionAgent, domain.RoleActionItemAgent, domain.KindCompletion},
		{domain.RoleActionItemAgent, domain.RoleSteward, domain.KindCompletion},
	})

	wantStages := []domain.StageName{
		domain.StageIngestAudio, domain.StageTranscribe, domain.StageDiarize,
		domain.StageSummarize, domain.StageExtractDecisions, domain.StageExtractActions,
	}
	if len(state.Run.Stages) != len(wantStages) {
		t.Fatalf("got %d stage timings, want %d", len(state.Run.Stages), len(wantStages))
	}
	for i, want := range wantStages {
		if state.Run.Stages[i].Stage != want {
			t.Errorf("timing %d = %s, want %s", i, state.Run.Stages[i].Stage, want)
		}
	}

	if state.Audio == nil || state.Audio.Format != "mp3" {
		t.Fatalf("audio info = %+v, want mp3", state.Audio)
	}
	if state.RawTranscript != transcription.Text {
		t.Errorf("transcript = %q, want the engine's text", state.RawTranscript)
	}

	wantSpeakers := []string{"SPEAKER_00", "SPEAKER_01", "SPEAKER_01"}
	if len(state.Segments) != len(wantSpeakers) {
		t.Fatalf("got %d segments, want %d", len(state.Segments), len(wantSpeakers))
	}
	for i, want := range wantSpeakers {
		if state.Segments[i].Speaker != want {
			t.Errorf("segment %d speaker = %q, want %q", i, state.Segments[i].Speaker, want)
		}
	}

	if len(speech.transcribes) != 1 || speech.transcribes[0].Model != "base" {
		t.Errorf("transcribe calls = %+v, want one with model base", speech.transcribes)
	}

	if _, err := store.GetMeeting(context.Background(), state.MeetingID); err != nil {
		t.Errorf("GetMeeting after run: %v", err)
	}
}

func TestRunner_RunAudio_DegradedDiarization(t *testing.T) {
	transcription, _ := audioFixture()
	chat := &scriptedChat{replies: extractionScript()}
	speech := &fakeSpeech{transcription: transcription, diarizeErr: errors.New("pyannote not installed")}
	store := memory.New()
	r := New(testConfig(), chat, speech, store, WithLogger(quietLogger()))

	state, err := r.RunAudio(context.Background(), []byte("ID3\x04x"), "standup.mp3")
	if err != nil {
		t.Fatalf("RunAudio: %v", err)
	}

	if len(state.Messages) != 6 {
		t.Fatalf("got %d messages, want 6", len(state.Messages))
	}
	if state.Messages[2].Kind != domain.KindDegraded {
		t.Errorf("diarize message kind = %s, want degraded", state.Messages[2].Kind)
	}
	for i, seg := range state.Segments {
		if seg.Speaker != "SPEAKER_00" {
			t.Errorf("segment %d speaker = %q, want the fallback", i, seg.Speaker)
		}
	}

	var diarizeTiming *domain.StageTiming
	for i := range state.Run.Stages {
		if state.Run.Stages[i].Stage == domain.StageDiarize {
			diarizeTiming = &state.Run.Stages[i]
		}
	}
	if diarizeTiming == nil || !diarizeTiming.Degraded {
		t.Errorf("diarize timing = %+v, want degraded", diarizeTiming)
	}

	if _, err := store.GetMeeting(context.Background(), state.MeetingID); err != nil {
		t.Errorf("degraded run was not persisted: %v", err)
	}
}

func TestRunner_RunAudio_DiarizationDisabled(t *testing.T) {
	transcription, _ := audioFixture()
	cfg := testConfig()
	cfg.Diarization = false
	speech := &fakeSpeech{transcription: transcription}
	r := New(cfg, &scriptedChat{replies: extractionScript()}, speech, memory.New(), WithLogger(quietLogger()))

	state, err := r.RunAudio(context.Background(), []byte("ID3\x04x"), "standup.mp3")
	if err != nil {
		t.Fatalf("RunAudio: %v", err)
	}

	if len(state.Messages) != 5 {
		t.Fatalf("got %d messages, want 5 with diarization off", len(state.Messages))
	}
	if len(speech.diarizes) != 0 {
		t.Errorf("diarize was called %d times, want 0", len(speech.diarizes))
	}
	for i := range state.Run.Stages {
		if state.Run.Stages[i].Stage == domain.StageDiarize {
			t.Error("diarize timing recorded with diarization off")
		}
	}
}

func TestRunner_RunAudio_EmptyRecording(t *testing.T) {
	r := New(testConfig(), &scriptedChat{}, &fakeSpeech{}, memory.New(), WithLogger(quietLogger()))

	_, err := r.RunAudio(context.Background(), nil, "empty.wav")
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("got %v, want ErrInvalidInput", err)
	}
}

func TestRunner_RunText_MalformedReply(t *testing.T) {
	chat := &scriptedChat{replies: []string{"I cannot help with that."}}
	store := memory.New()
	r := New(testConfig(), chat, &fakeSpeech{}, store, WithLogger(quietLogger()))

	state, err := r.RunText(context.Background(), pricingTranscript, "")
	if err == nil {
		t.Fatal("expected an error for a reply with no JSON")
	}
	stage, ok := domain.FailedStage(err)
	if !ok || stage != domain.StageSummarize {
		t.Errorf("failed stage = %q (%v), want summarize", stage, ok)
	}
	if domain.IsCollaboratorUnavailable(err) {
		t.Error("malformed output reported as a collaborator outage")
	}

	checkMessages(t, state.Messages, []route{
		{domain.RoleSystem, domain.RoleSteward, domain.KindFailure},
	})
	if got, _ := state.Messages[0].Payload["stage"].(string); got != "summarize" {
		t.Errorf("failure payload stage = %q, want summarize", got)
	}

	stats, _ := store.Stats(context.Background())
	if stats.Meetings != 0 {
		t.Errorf("stored %d meetings after a failed run, want 0", stats.Meetings)
	}
}

func TestRunner_RunText_ChatDown(t *testing.T) {
	chat := &scriptedChat{err: errors.New("connection refused")}
	r := New(testConfig(), chat, &fakeSpeech{}, memory.New(), WithLogger(quietLogger()))

	state, err := r.RunText(context.Background(), pricingTranscript, "")
	if !domain.IsCollaboratorUnavailable(err) {
		t.Fatalf("got %v, want a collaborator error", err)
	}
	if stage, _ := domain.FailedStage(err); stage != domain.StageSummarize {
		t.Errorf("failed stage = %q, want summarize", stage)
	}
	if len(state.Messages) != 1 || state.Messages[0].Kind != domain.KindFailure {
		t.Errorf("messages = %+v, want a single failure record", state.Messages)
	}
}

func TestRunner_PersistFailure(t *testing.T) {
	chat := &scriptedChat{replies: extractionScript()}
	store := &failStore{saveErr: errors.New("disk full")}
	r := New(testConfig(), chat, &fakeSpeech{}, store, WithLogger(quietLogger()))

	state, err := r.RunText(context.Background(), pricingTranscript, "")
	if !domain.IsCollaboratorUnavailable(err) {
		t.Fatalf("got %v, want a collaborator error", err)
	}
	if stage, _ := domain.FailedStage(err); stage != domain.StagePersist {
		t.Errorf("failed stage = %q, want persist", stage)
	}

	if len(state.Messages) != 4 {
		t.Fatalf("got %d messages, want 3 completions plus the failure", len(state.Messages))
	}
	last := state.Messages[3]
	if last.Kind != domain.KindFailure || last.Sender != domain.RoleSystem {
		t.Errorf("last message = %+v, want a system failure record", last)
	}
	if got, _ := last.Payload["stage"].(string); got != "persist" {
		t.Errorf("failure payload stage = %q, want persist", got)
	}
}

func TestRunner_DistinctMeetingIDs(t *testing.T) {
	store := memory.New()
	r := New(testConfig(), &scriptedChat{replies: append(extractionScript(), extractionScript()...)}, &fakeSpeech{}, store, WithLogger(quietLogger()))

	first, err := r.RunText(context.Background(), pricingTranscript, "monday")
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := r.RunText(context.Background(), pricingTranscript, "monday")
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if first.MeetingID == second.MeetingID {
		t.Fatalf("both runs share meeting id %s", first.MeetingID)
	}
	for _, id := range []string{first.MeetingID, second.MeetingID} {
		if _, err := store.GetMeeting(context.Background(), id); err != nil {
			t.Errorf("GetMeeting(%s): %v", id, err)
		}
	}
	previews, err := store.ListMeetings(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListMeetings: %v", err)
	}
	if len(previews) != 2 {
		t.Errorf("listed %d meetings, want 2", len(previews))
	}
}

// mockStage lets route validation be tested without a real agent.
type mockStage struct {
	name domain.StageName
	run  func(ctx context.Context, state domain.MeetingState) (domain.MeetingState, error)
}

func (s *mockStage) Name() domain.StageName { return s.name }

func (s *mockStage) Run(ctx context.Context, state domain.MeetingState) (domain.MeetingState, error) {
	return s.run(ctx, state)
}

func TestRunner_RejectsUndeclaredRoute(t *testing.T) {
	r := New(testConfig(), &scriptedChat{}, &fakeSpeech{}, memory.New(), WithLogger(quietLogger()))

	rogue := &mockStage{
		name: domain.StageSummarize,
		run: func(ctx context.Context, state domain.MeetingState) (domain.MeetingState, error) {
			state.AppendMessage(domain.NewMessage(domain.RoleSummarizer, domain.RoleTranscriber, domain.KindCompletion, "going backwards"))
			return state, nil
		},
	}

	state := domain.NewState(domain.SourceText, "")
	_, err := r.runStage(context.Background(), rogue, state)
	if err == nil {
		t.Fatal("expected a route error")
	}
	var routeErr *domain.RouteError
	if !errors.As(err, &routeErr) {
		t.Fatalf("got %v, want a RouteError", err)
	}
	if stage, _ := domain.FailedStage(err); stage != domain.StageSummarize {
		t.Errorf("failed stage = %q, want summarize", stage)
	}
}

func TestRunner_StageSnapshotsAreIsolated(t *testing.T) {
	r := New(testConfig(), &scriptedChat{}, &fakeSpeech{}, memory.New(), WithLogger(quietLogger()))

	state := domain.NewState(domain.SourceText, "")
	state.Segments = []domain.Utterance{{Text: "original"}}

	vandal := &mockStage{
		name: domain.StageSummarize,
		run: func(ctx context.Context, state domain.MeetingState) (domain.MeetingState, error) {
			state.Segments[0].Text = "scribbled"
			return state, errors.New("boom")
		},
	}

	_, err := r.runStage(context.Background(), vandal, state)
	if err == nil {
		t.Fatal("expected the stage error")
	}
	if state.Segments[0].Text != "original" {
		t.Errorf("failed stage reached back into the runner's snapshot: %q", state.Segments[0].Text)
	}
}
