package domain

// TranscribeRequest asks the speech engine for a transcript.
type TranscribeRequest struct {
	Audio    []byte
	FileName string
	// Model selects the transcription model size (tiny, base, small,
	// medium, large).
	Model string
}

// Transcription is the speech engine's answer: full text plus timed
// segments without speaker labels.
type Transcription struct {
	Text     string      `json:"text"`
	Segments []Utterance `json:"segments"`
	Language string      `json:"language,omitempty"`
}

// DiarizeRequest asks the speech engine for speaker-attributed segments.
type DiarizeRequest struct {
	Audio    []byte
	FileName string
	Model    string
}

// Diarization carries speaker-attributed segments.
type Diarization struct {
	Segments []Utterance `json:"segments"`
	Speakers int         `json:"speakers,omitempty"`
}
