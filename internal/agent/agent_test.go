package agent

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stewardlabs/meeting-steward/internal/core/domain"
	"github.com/stewardlabs/meeting-steward/internal/tokens"
)

type fakeChat struct {
	resp  *domain.ChatResponse
	err   error
	calls int
	last  *domain.ChatRequest
}

func (f *fakeChat) Chat(ctx context.Context, req *domain.ChatRequest) (*domain.ChatResponse, error) {
	f.calls++
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func (f *fakeChat) HasModel(ctx context.Context, model string) (bool, error) {
	return true, nil
}

type fakeSpeech struct {
	transcription *domain.Transcription
	diarization   *domain.Diarization
	transcribeErr error
	diarizeErr    error

	lastTranscribe *domain.TranscribeRequest
	lastDiarize    *domain.DiarizeRequest
}

func (f *fakeSpeech) Transcribe(ctx context.Context, req *domain.TranscribeRequest) (*domain.Transcription, error) {
	f.lastTranscribe = req
	if f.transcribeErr != nil {
		return nil, f.transcribeErr
	}
	return f.transcription, nil
}

func (f *fakeSpeech) Diarize(ctx context.Context, req *domain.DiarizeRequest) (*domain.Diarization, error) {
	f.lastDiarize = req
	if f.diarizeErr != nil {
		return nil, f.diarizeErr
	}
	return f.diarization, nil
}

// makeWAV builds a minimal PCM WAV file with the given shape.
func makeWAV(sampleRate, channels, dataBytes int) []byte {
	byteRate := sampleRate * channels * 2
	buf := &bytes.Buffer{}
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+dataBytes))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1))
	binary.Write(buf, binary.LittleEndian, uint16(channels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(buf, binary.LittleEndian, uint16(channels*2))
	binary.Write(buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(dataBytes))
	buf.Write(make([]byte, dataBytes))
	return buf.Bytes()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

// requireRoutes asserts every appended message uses a declared route.
func requireRoutes(t *testing.T, state domain.MeetingState) {
	t.Helper()
	for i, m := range state.Messages {
		if err := domain.ValidateRoute(m.Sender, m.Recipient); err != nil {
			t.Errorf("message[%d] route invalid: %v", i, err)
		}
	}
}

func TestCheckBudget(t *testing.T) {
	reg := tokens.NewRegistry()
	msgs := []domain.ChatMessage{{Role: "user", Content: strings.Repeat("meeting ", 100)}}

	count, err := checkBudget(reg, domain.StageSummarize, "llama3.2", msgs, 0, discardLogger())
	if err != nil {
		t.Fatalf("unlimited budget errored: %v", err)
	}
	if count == 0 {
		t.Error("expected a token estimate")
	}

	_, err = checkBudget(reg, domain.StageSummarize, "llama3.2", msgs, 5, discardLogger())
	if err == nil {
		t.Fatal("expected the budget to reject a long prompt")
	}
	var se *domain.StageError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StageError, got %T", err)
	}
	if se.Stage != domain.StageSummarize {
		t.Errorf("stage = %q, want summarize", se.Stage)
	}

	if _, err := checkBudget(nil, domain.StageSummarize, "llama3.2", msgs, 5, discardLogger()); err != nil {
		t.Errorf("nil registry should skip the check, got %v", err)
	}
}
