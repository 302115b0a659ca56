package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stewardlabs/meeting-steward/internal/core/domain"
	"github.com/stewardlabs/meeting-steward/internal/pipeline"
	"github.com/stewardlabs/meeting-steward/internal/storage"
)

// maxUploadBytes bounds an audio upload. An hour of 16 kHz mono WAV is
// around 115 MB, so this leaves headroom without letting a stray upload
// eat the disk.
const maxUploadBytes = 256 << 20

// Analyzer runs meetings through the pipeline.
type Analyzer interface {
	RunText(ctx context.Context, transcript, label string, opts ...pipeline.RunOption) (domain.MeetingState, error)
	RunAudio(ctx context.Context, audio []byte, name string, opts ...pipeline.RunOption) (domain.MeetingState, error)
}

type api struct {
	runner  Analyzer
	store   storage.MeetingStore
	logger  *slog.Logger
	version string
	started time.Time
}

type analyzeTextRequest struct {
	Transcript string `json:"transcript"`
	Label      string `json:"label,omitempty"`
	Model      string `json:"model,omitempty"`
}

func (a *api) handleAnalyzeText(w http.ResponseWriter, r *http.Request) {
	var req analyzeTextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err))
		return
	}

	var opts []pipeline.RunOption
	if req.Model != "" {
		opts = append(opts, pipeline.WithModel(req.Model))
	}

	state, err := a.runner.RunText(r.Context(), req.Transcript, req.Label, opts...)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	AddLogField(r.Context(), "meeting_id", state.MeetingID)
	writeJSON(w, http.StatusCreated, state)
}

func (a *api) handleAnalyzeAudio(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		a.writeError(w, r, fmt.Errorf("%w: multipart field \"file\" is required", domain.ErrInvalidInput))
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(file)
	if err != nil {
		a.writeError(w, r, fmt.Errorf("read upload: %w", err))
		return
	}

	var opts []pipeline.RunOption
	if model := r.FormValue("model"); model != "" {
		opts = append(opts, pipeline.WithModel(model))
	}

	state, err := a.runner.RunAudio(r.Context(), audio, header.Filename, opts...)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	AddLogField(r.Context(), "meeting_id", state.MeetingID)
	writeJSON(w, http.StatusCreated, state)
}

func (a *api) handleListMeetings(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 {
			a.writeError(w, r, fmt.Errorf("%w: limit must be a positive integer", domain.ErrInvalidInput))
			return
		}
		limit = n
	}

	meetings, err := a.store.ListMeetings(r.Context(), limit)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"meetings": meetings})
}

func (a *api) handleGetMeeting(w http.ResponseWriter, r *http.Request) {
	rec, err := a.store.GetMeeting(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type statusResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version,omitempty"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Store         domain.StoreStats `json:"store"`
}

func (a *api) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := a.store.Stats(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{
		Status:        "ok",
		Version:       a.version,
		UptimeSeconds: int64(time.Since(a.started).Seconds()),
		Store:         stats,
	})
}

func (a *api) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Stage   string `json:"stage,omitempty"`
}

// writeError maps pipeline and storage errors onto the wire: bad input is
// the caller's fault, a collaborator outage is a bad gateway, anything
// else is ours.
func (a *api) writeError(w http.ResponseWriter, r *http.Request, err error) {
	AddError(r.Context(), err)

	status := http.StatusInternalServerError
	kind := "internal"
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		status, kind = http.StatusBadRequest, "invalid_input"
	case errors.Is(err, storage.ErrNotFound):
		status, kind = http.StatusNotFound, "not_found"
	case domain.IsCollaboratorUnavailable(err):
		status, kind = http.StatusBadGateway, "collaborator_unavailable"
	default:
		if _, ok := domain.FailedStage(err); ok {
			kind = "stage_failed"
		}
	}

	body := errorBody{Type: kind, Message: err.Error()}
	if stage, ok := domain.FailedStage(err); ok {
		body.Stage = string(stage)
	}

	writeJSON(w, status, errorEnvelope{Error: body})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
