// Package prompt builds the instructions sent to the language model and
// decodes its replies. Each extraction stage pins the model to a JSON
// contract; replies that do not honor the contract are parse errors the
// caller surfaces as stage failures.
package prompt

import (
	"fmt"
	"strings"

	"github.com/stewardlabs/meeting-steward/internal/core/domain"
)

// SummarizerSystem instructs the model to produce the executive summary.
const SummarizerSystem = `You are a meeting summarizer. Read the transcript and produce a concise executive summary.

Respond with ONLY a JSON object in this exact format:
{"bullets": ["first key point", "second key point", "third key point"]}

Rules:
- 3 to 5 bullets, each a single sentence.
- Cover outcomes and topics, not small talk.
- Do not include any text outside the JSON object.`

// DecisionSystem instructs the model to extract the decisions made.
const DecisionSystem = `You are a decision extractor. Read the meeting transcript and list every concrete decision the participants made.

Respond with ONLY a JSON object in this exact format:
{"decisions": [{"description": "what was decided", "owner": "who is accountable", "rationale": "why", "timestamp": "when in the meeting, if stated"}]}

Rules:
- Include only decisions actually made, not proposals or open questions.
- Preserve names, amounts, and prices exactly as spoken.
- Use an empty list if the transcript contains no decisions.
- Do not include any text outside the JSON object.`

// ActionItemSystem instructs the model to extract committed tasks.
const ActionItemSystem = `You are an action item extractor. Read the meeting transcript and list every task someone committed to do.

Respond with ONLY a JSON object in this exact format:
{"action_items": [{"description": "the task", "owner": "who will do it", "due_date": "when it is due, if stated", "priority": "high, medium, or low"}]}

Rules:
- Include only concrete commitments, not vague intentions.
- Use "medium" when no priority is stated.
- Use an empty list if the transcript contains no action items.
- Do not include any text outside the JSON object.`

// FormatTranscript renders the meeting for a model prompt. Diarized
// segments become "[SPEAKER] text" lines so the model can attribute
// statements; a plain transcript passes through untouched.
func FormatTranscript(state domain.MeetingState) string {
	if len(state.Segments) == 0 {
		return state.RawTranscript
	}

	var b strings.Builder
	for _, seg := range state.Segments {
		if seg.Speaker != "" {
			fmt.Fprintf(&b, "[%s] %s\n", seg.Speaker, seg.Text)
		} else {
			b.WriteString(seg.Text)
			b.WriteByte('\n')
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// ExtractJSON pulls the outermost JSON object out of a model reply,
// tolerating markdown fences and prose around the object.
func ExtractJSON(s string) (string, error) {
	s = strings.TrimSpace(s)

	if i := strings.Index(s, "```"); i >= 0 {
		s = s[i+3:]
		s = strings.TrimPrefix(s, "json")
		if j := strings.Index(s, "```"); j >= 0 {
			s = s[:j]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return "", fmt.Errorf("no JSON object in reply")
	}
	return s[start : end+1], nil
}
