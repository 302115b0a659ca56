package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/stewardlabs/meeting-steward/internal/agent"
	"github.com/stewardlabs/meeting-steward/internal/core/domain"
	"github.com/stewardlabs/meeting-steward/internal/core/ports"
	"github.com/stewardlabs/meeting-steward/internal/storage"
	"github.com/stewardlabs/meeting-steward/internal/tokens"
)

const tracerName = "github.com/stewardlabs/meeting-steward/internal/pipeline"

// Config carries the pipeline settings the runner injects into its stages.
type Config struct {
	// Model is the default chat model; a per-run override wins.
	Model       string
	Temperature float32
	// MaxPromptTokens fails an LLM stage before the call when the prompt
	// exceeds it. 0 disables the check.
	MaxPromptTokens int
	// SpeechModel selects the transcription model size.
	SpeechModel string
	// Diarization controls whether the audio path attributes speakers.
	// When false the diarize stage is left out entirely.
	Diarization bool
}

// Runner drives meetings through the stage sequence.
type Runner struct {
	cfg    Config
	chat   ports.ChatClient
	speech ports.SpeechClient
	store  storage.MeetingStore
	tokens *tokens.Registry
	logger *slog.Logger
	tracer trace.Tracer

	// mu guards model, the only setting that can change while serving.
	mu    sync.RWMutex
	model string
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the runner's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithTokenCounter enables prompt token accounting and budget checks.
func WithTokenCounter(reg *tokens.Registry) Option {
	return func(r *Runner) { r.tokens = reg }
}

// New builds a runner around its collaborators. All dependencies are
// injected; the runner reads no globals after construction.
func New(cfg Config, chat ports.ChatClient, speech ports.SpeechClient, store storage.MeetingStore, opts ...Option) *Runner {
	r := &Runner{
		cfg:    cfg,
		chat:   chat,
		speech: speech,
		store:  store,
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
		model:  cfg.Model,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunOption adjusts a single run.
type RunOption func(*runOptions)

type runOptions struct {
	model string
}

// WithModel overrides the chat model for this run only.
func WithModel(model string) RunOption {
	return func(o *runOptions) { o.model = model }
}

// RunText analyzes a transcript that arrived as text. label names the
// meeting in listings and may be empty.
func (r *Runner) RunText(ctx context.Context, transcript, label string, opts ...RunOption) (domain.MeetingState, error) {
	if strings.TrimSpace(transcript) == "" {
		return domain.MeetingState{}, fmt.Errorf("%w: empty transcript", domain.ErrInvalidInput)
	}

	state := domain.NewState(domain.SourceText, label)
	state.RawTranscript = transcript
	state.Run.Model = r.effectiveModel(opts)

	return r.run(ctx, "run.text", state, r.llmStages())
}

// RunAudio analyzes an uploaded recording.
func (r *Runner) RunAudio(ctx context.Context, audio []byte, name string, opts ...RunOption) (domain.MeetingState, error) {
	if len(audio) == 0 {
		return domain.MeetingState{}, fmt.Errorf("%w: empty recording", domain.ErrInvalidInput)
	}

	state := domain.NewState(domain.SourceAudio, name)
	state.Run.Model = r.effectiveModel(opts)

	stages := []ports.Stage{
		agent.NewIngestAudio(audio, name, r.logger),
		agent.NewTranscribe(r.speech, audio, name, r.cfg.SpeechModel, r.logger),
	}
	if r.cfg.Diarization {
		stages = append(stages, agent.NewDiarize(r.speech, audio, name, r.logger))
	}
	stages = append(stages, r.llmStages()...)

	return r.run(ctx, "run.audio", state, stages)
}

// SetModel swaps the default chat model for later runs. Runs already in
// flight keep the model they started with, and per-run overrides still win.
func (r *Runner) SetModel(model string) {
	if model == "" {
		return
	}
	r.mu.Lock()
	r.model = model
	r.mu.Unlock()
}

// DefaultModel returns the model runs fall back to without an override.
func (r *Runner) DefaultModel() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.model
}

func (r *Runner) effectiveModel(opts []RunOption) string {
	var o runOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.model != "" {
		return o.model
	}
	return r.DefaultModel()
}

func (r *Runner) llmStages() []ports.Stage {
	llm := agent.LLMConfig{
		Model:           r.DefaultModel(),
		Temperature:     r.cfg.Temperature,
		MaxPromptTokens: r.cfg.MaxPromptTokens,
	}
	return []ports.Stage{
		agent.NewSummarizer(r.chat, r.tokens, llm, r.logger),
		agent.NewDecisionExtractor(r.chat, r.tokens, llm, r.logger),
		agent.NewActionItemExtractor(r.chat, r.tokens, llm, r.logger),
	}
}

// run executes the stages in order, then persists. The returned state is
// the last good snapshot: on failure it carries everything completed
// stages produced plus the failure message.
func (r *Runner) run(ctx context.Context, spanName string, state domain.MeetingState, stages []ports.Stage) (domain.MeetingState, error) {
	ctx, span := r.tracer.Start(ctx, spanName, trace.WithAttributes(
		attribute.String("meeting.id", state.MeetingID),
		attribute.String("meeting.source", string(state.SourceType)),
	))
	defer span.End()

	r.logger.Info("run started",
		slog.String("meeting_id", state.MeetingID),
		slog.String("source", string(state.SourceType)),
		slog.String("model", state.Run.Model))

	for _, stage := range stages {
		next, err := r.runStage(ctx, stage, state)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return r.fail(state, stage.Name(), err)
		}
		state = next
	}

	id, err := r.persist(ctx, state)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return r.fail(state, domain.StagePersist, err)
	}
	state.MeetingID = id

	r.logger.Info("run completed",
		slog.String("meeting_id", id),
		slog.Int("messages", len(state.Messages)),
		slog.Duration("total", state.Run.Total()))
	return state, nil
}

// runStage calls one stage against a private copy of the state and checks
// what came back: every appended message must carry an allowed route, a
// degraded message marks the timing, and a prompt_tokens payload entry is
// lifted into the timing.
func (r *Runner) runStage(ctx context.Context, stage ports.Stage, state domain.MeetingState) (domain.MeetingState, error) {
	name := stage.Name()
	ctx, span := r.tracer.Start(ctx, "stage."+string(name))
	defer span.End()

	started := time.Now()
	before := len(state.Messages)

	next, err := stage.Run(ctx, state.Clone())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return state, err
	}

	timing := domain.StageTiming{
		Stage:     name,
		StartedAt: started.UTC(),
		Duration:  time.Since(started),
	}
	for _, msg := range next.Messages[before:] {
		if rerr := domain.ValidateRoute(msg.Sender, msg.Recipient); rerr != nil {
			err := &domain.StageError{Stage: name, Err: rerr}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return state, err
		}
		if msg.Kind == domain.KindDegraded {
			timing.Degraded = true
		}
		if n, ok := msg.Payload["prompt_tokens"].(int); ok {
			timing.PromptTokens = n
		}
	}
	next.Run.Record(timing)

	r.logger.Debug("stage finished",
		slog.String("meeting_id", next.MeetingID),
		slog.String("stage", string(name)),
		slog.Duration("duration", timing.Duration),
		slog.Bool("degraded", timing.Degraded))
	return next, nil
}

// persist stores the completed meeting. It is a terminal step, not an
// agent: it appends no message. Storage trouble is a collaborator outage.
func (r *Runner) persist(ctx context.Context, state domain.MeetingState) (string, error) {
	ctx, span := r.tracer.Start(ctx, "stage."+string(domain.StagePersist))
	defer span.End()

	id, err := r.store.SaveMeeting(ctx, state)
	if err != nil {
		perr := &domain.CollaboratorError{Stage: domain.StagePersist, Collaborator: "storage", Err: err}
		span.RecordError(perr)
		span.SetStatus(codes.Error, perr.Error())
		return "", perr
	}
	return id, nil
}

// fail records the aborting stage in the message log and wraps the error.
// The log is the run's durable account, so even aborted runs say which
// stage went down and why.
func (r *Runner) fail(state domain.MeetingState, stage domain.StageName, err error) (domain.MeetingState, error) {
	if s, ok := domain.FailedStage(err); ok {
		stage = s
	}

	msg := domain.NewMessage(domain.RoleSystem, domain.RoleSteward, domain.KindFailure,
		fmt.Sprintf("stage %s failed: %v", stage, err)).
		WithPayload(map[string]any{"stage": string(stage)})
	state.AppendMessage(msg)

	r.logger.Error("run aborted",
		slog.String("meeting_id", state.MeetingID),
		slog.String("stage", string(stage)),
		slog.Any("error", err))
	return state, fmt.Errorf("meeting %s: %w", state.MeetingID, err)
}
