// Package record defines the telemetry record variants persisted by the
// history subsystem. Every interaction inside a session (chat messages,
// tool invocations, raw LLM requests and responses, token usage, and
// computed cost) is captured as one immutable record.
package record

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Type discriminates the record variants on the wire.
type Type string

const (
	TypeMessage     Type = "message"
	TypeToolCall    Type = "tool_call"
	TypeLLMRequest  Type = "llm_request"
	TypeLLMResponse Type = "llm_response"
	TypeTokenUsage  Type = "token_usage"
	TypeCost        Type = "cost"
)

// MessageRole identifies the author of a conversation message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

func (r MessageRole) valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// UsageSource states how a token count was obtained.
type UsageSource string

const (
	SourceLocal  UsageSource = "local"  // estimated by the local counter
	SourceAPI    UsageSource = "api"    // reported by the provider
	SourceHybrid UsageSource = "hybrid" // mixed local and provider counts
)

var (
	// ErrEmptySession rejects records built without an owning session.
	ErrEmptySession = errors.New("record: empty session id")

	// ErrUnknownType is returned when decoding a record whose discriminator
	// is not a known variant. Readers skip such records rather than fail.
	ErrUnknownType = errors.New("record: unknown record type")
)

// Record is the common surface of every variant.
type Record interface {
	ID() string
	Session() string
	Time() time.Time
	Type() Type
}

// Base carries the fields shared by all record variants.
type Base struct {
	RecordID   string    `json:"record_id"`
	SessionID  string    `json:"session_id"`
	Timestamp  time.Time `json:"timestamp"`
	RecordType Type      `json:"record_type"`
}

func (b Base) ID() string      { return b.RecordID }
func (b Base) Session() string { return b.SessionID }
func (b Base) Time() time.Time { return b.Timestamp }
func (b Base) Type() Type      { return b.RecordType }

// newBase stamps a fresh record identity. Timestamps are UTC so the
// canonical form round-trips exactly through RFC 3339.
func newBase(sessionID string, t Type) Base {
	return Base{
		RecordID:   uuid.NewString(),
		SessionID:  sessionID,
		Timestamp:  time.Now().UTC(),
		RecordType: t,
	}
}

// ChatMessage is one role-tagged entry of an LLM conversation as captured
// at call time.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage is the prompt/completion/total token triple reported for a response.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
