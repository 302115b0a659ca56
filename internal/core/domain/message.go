package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Role identifies a participant in the agent exchange.
type Role string

const (
	// RoleSteward is the coordinator that dispatches work and receives
	// the final report.
	RoleSteward Role = "steward"

	RoleTranscriber     Role = "transcriber"
	RoleSummarizer      Role = "summarizer"
	RoleDecisionAgent   Role = "decision_extractor"
	RoleActionItemAgent Role = "action_item_agent"

	// RoleSystem is reserved for the runner itself, e.g. failure records.
	RoleSystem Role = "system"
)

// MessageKind classifies what a message reports.
type MessageKind string

const (
	// KindCompletion reports a stage that finished normally.
	KindCompletion MessageKind = "completion"
	// KindDegraded reports a stage that finished on its fallback path.
	KindDegraded MessageKind = "degraded"
	// KindFailure records a stage that aborted the run.
	KindFailure MessageKind = "failure"
)

// AgentMessage is one entry in the meeting's append-only message log.
// An empty Recipient means the message is broadcast.
type AgentMessage struct {
	ID        string         `json:"id"`
	Sender    Role           `json:"sender"`
	Recipient Role           `json:"recipient,omitempty"`
	Kind      MessageKind    `json:"kind"`
	Content   string         `json:"content"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewMessage stamps a message with an id and the current time.
func NewMessage(sender, recipient Role, kind MessageKind, content string) AgentMessage {
	return AgentMessage{
		ID:        uuid.NewString(),
		Sender:    sender,
		Recipient: recipient,
		Kind:      kind,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}

// WithPayload attaches structured details to the message.
func (m AgentMessage) WithPayload(payload map[string]any) AgentMessage {
	m.Payload = payload
	return m
}

// IsBroadcast reports whether the message has no direct recipient.
func (m AgentMessage) IsBroadcast() bool {
	return m.Recipient == ""
}

func (m AgentMessage) clone() AgentMessage {
	out := m
	if m.Payload != nil {
		out.Payload = make(map[string]any, len(m.Payload))
		for k, v := range m.Payload {
			out.Payload[k] = v
		}
	}
	return out
}

// allowedRoutes declares which sender may address which recipient directly.
// The steward fans work out, each worker hands off to the next in the chain
// and may always report back to the steward.
var allowedRoutes = map[Role][]Role{
	RoleSteward:         {RoleTranscriber, RoleSummarizer, RoleDecisionAgent, RoleActionItemAgent},
	RoleTranscriber:     {RoleSummarizer, RoleSteward},
	RoleSummarizer:      {RoleDecisionAgent, RoleSteward},
	RoleDecisionAgent:   {RoleActionItemAgent, RoleSteward},
	RoleActionItemAgent: {RoleSteward},
}

// RouteError reports a sender/recipient pair the routing table does not allow.
type RouteError struct {
	Sender    Role
	Recipient Role
}

func (e *RouteError) Error() string {
	return fmt.Sprintf("route %s -> %s not allowed", e.Sender, e.Recipient)
}

// ValidateRoute checks a message route against the routing table. Broadcast
// messages and messages from the system role are always allowed.
func ValidateRoute(sender, recipient Role) error {
	if recipient == "" || sender == RoleSystem {
		return nil
	}
	for _, r := range allowedRoutes[sender] {
		if r == recipient {
			return nil
		}
	}
	return &RouteError{Sender: sender, Recipient: recipient}
}
