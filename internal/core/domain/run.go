package domain

import "time"

// StageTiming records one stage's execution inside a run.
type StageTiming struct {
	Stage        StageName     `json:"stage"`
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration"`
	PromptTokens int           `json:"prompt_tokens,omitempty"`
	Degraded     bool          `json:"degraded,omitempty"`
}

// RunInfo carries run-level observability: the model that served the LLM
// stages and per-stage timings in execution order.
type RunInfo struct {
	Model  string        `json:"model,omitempty"`
	Stages []StageTiming `json:"stages,omitempty"`
}

// Record appends a stage timing.
func (r *RunInfo) Record(t StageTiming) {
	r.Stages = append(r.Stages, t)
}

// Total sums the recorded stage durations.
func (r RunInfo) Total() time.Duration {
	var total time.Duration
	for _, s := range r.Stages {
		total += s.Duration
	}
	return total
}

func (r RunInfo) clone() RunInfo {
	out := r
	if r.Stages != nil {
		out.Stages = make([]StageTiming, len(r.Stages))
		copy(out.Stages, r.Stages)
	}
	return out
}
