package agent

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/stewardlabs/meeting-steward/internal/core/domain"
	"github.com/stewardlabs/meeting-steward/internal/core/ports"
)

// IngestAudio validates an uploaded recording, probes its container and
// dispatches it to the transcriber. WAV headers are parsed for sample
// rate, channels and duration; other containers pass through with their
// size and a best-effort format label.
type IngestAudio struct {
	audio    []byte
	fileName string
	logger   *slog.Logger
}

var _ ports.Stage = (*IngestAudio)(nil)

// NewIngestAudio builds the ingest stage bound to one recording.
func NewIngestAudio(audio []byte, fileName string, logger *slog.Logger) *IngestAudio {
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestAudio{audio: audio, fileName: fileName, logger: logger}
}

func (s *IngestAudio) Name() domain.StageName { return domain.StageIngestAudio }

func (s *IngestAudio) Run(ctx context.Context, state domain.MeetingState) (domain.MeetingState, error) {
	if len(s.audio) == 0 {
		return state, &domain.StageError{
			Stage: domain.StageIngestAudio,
			Err:   fmt.Errorf("empty recording: %w", domain.ErrInvalidInput),
		}
	}

	info, ok := probeWAV(s.audio)
	if !ok {
		info = domain.AudioInfo{
			Format:    detectFormat(s.audio, s.fileName),
			SizeBytes: int64(len(s.audio)),
		}
	}
	state.Audio = &info

	payload := map[string]any{
		"format":     info.Format,
		"size_bytes": info.SizeBytes,
	}
	if info.DurationSeconds > 0 {
		payload["duration_seconds"] = info.DurationSeconds
	}
	state.AppendMessage(domain.NewMessage(domain.RoleSteward, domain.RoleTranscriber, domain.KindCompletion,
		fmt.Sprintf("dispatching %s (%s, %d bytes) for transcription", s.fileName, info.Format, info.SizeBytes)).
		WithPayload(payload))

	return state, nil
}

// probeWAV walks the RIFF chunks of a WAV file. The fmt chunk carries
// the sample layout, the data chunk size over the byte rate gives the
// duration.
func probeWAV(data []byte) (domain.AudioInfo, bool) {
	if len(data) < 12 || !bytes.Equal(data[0:4], []byte("RIFF")) || !bytes.Equal(data[8:12], []byte("WAVE")) {
		return domain.AudioInfo{}, false
	}

	info := domain.AudioInfo{Format: "wav", SizeBytes: int64(len(data))}
	var byteRate uint32

	offset := 12
	for offset+8 <= len(data) {
		id := string(data[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8

		switch id {
		case "fmt ":
			if body+16 <= len(data) {
				info.Channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
				info.SampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
				byteRate = binary.LittleEndian.Uint32(data[body+8 : body+12])
			}
		case "data":
			if byteRate > 0 {
				info.DurationSeconds = float64(size) / float64(byteRate)
			}
		}

		// Chunks are word aligned.
		if size%2 == 1 {
			size++
		}
		offset = body + size
	}

	return info, true
}

func detectFormat(data []byte, fileName string) string {
	switch {
	case len(data) >= 3 && bytes.Equal(data[0:3], []byte("ID3")):
		return "mp3"
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return "mp3"
	case len(data) >= 4 && bytes.Equal(data[0:4], []byte("OggS")):
		return "ogg"
	case len(data) >= 4 && bytes.Equal(data[0:4], []byte("fLaC")):
		return "flac"
	case len(data) >= 12 && bytes.Equal(data[4:8], []byte("ftyp")):
		return "m4a"
	}

	if ext := strings.TrimPrefix(filepath.Ext(fileName), "."); ext != "" {
		return strings.ToLower(ext)
	}
	return "unknown"
}
