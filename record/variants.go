package record

import "fmt"

// Message is a user, assistant, or system message within a session.
type Message struct {
	Base
	MessageType MessageRole    `json:"message_type"`
	Content     string         `json:"content"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// NewMessage builds a message record. The role must be one of the known
// message roles and the session id must be set.
func NewMessage(sessionID string, role MessageRole, content string) (*Message, error) {
	if sessionID == "" {
		return nil, ErrEmptySession
	}
	if !role.valid() {
		return nil, fmt.Errorf("record: invalid message role %q", role)
	}
	return &Message{
		Base:        newBase(sessionID, TypeMessage),
		MessageType: role,
		Content:     content,
	}, nil
}

// ToolCall records a single tool invocation and, once available, its output.
type ToolCall struct {
	Base
	ToolName   string         `json:"tool_name"`
	ToolInput  map[string]any `json:"tool_input"`
	ToolOutput map[string]any `json:"tool_output,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// NewToolCall builds a tool call record.
func NewToolCall(sessionID, toolName string, input map[string]any) (*ToolCall, error) {
	if sessionID == "" {
		return nil, ErrEmptySession
	}
	if toolName == "" {
		return nil, fmt.Errorf("record: empty tool name")
	}
	return &ToolCall{
		Base:      newBase(sessionID, TypeToolCall),
		ToolName:  toolName,
		ToolInput: input,
	}, nil
}

// LLMRequest captures an outbound LLM call: the message list as sent, the
// call parameters, and the local token estimate made before the call.
type LLMRequest struct {
	Base
	Model           string         `json:"model"`
	Provider        string         `json:"provider"`
	Messages        []ChatMessage  `json:"messages"`
	Parameters      map[string]any `json:"parameters,omitempty"`
	EstimatedTokens int            `json:"estimated_tokens,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// NewLLMRequest builds an LLM request record.
func NewLLMRequest(sessionID, model, provider string, messages []ChatMessage) (*LLMRequest, error) {
	if sessionID == "" {
		return nil, ErrEmptySession
	}
	return &LLMRequest{
		Base:     newBase(sessionID, TypeLLMRequest),
		Model:    model,
		Provider: provider,
		Messages: messages,
	}, nil
}

// LLMResponse captures the outcome of an LLM call. RequestID references the
// LLMRequest record of the same call; orphaned responses (e.g. after a
// process restart) are tolerated on read.
type LLMResponse struct {
	Base
	RequestID    string         `json:"request_id"`
	Content      string         `json:"content"`
	FinishReason string         `json:"finish_reason"`
	TokenUsage   Usage          `json:"token_usage"`
	ResponseTime float64        `json:"response_time"` // seconds
	Model        string         `json:"model"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// NewLLMResponse builds an LLM response record correlated to requestID.
func NewLLMResponse(sessionID, requestID string) (*LLMResponse, error) {
	if sessionID == "" {
		return nil, ErrEmptySession
	}
	return &LLMResponse{
		Base:      newBase(sessionID, TypeLLMResponse),
		RequestID: requestID,
	}, nil
}

// TokenUsage records token consumption for one call, either locally
// estimated or confirmed by the provider.
type TokenUsage struct {
	Base
	Model            string         `json:"model"`
	Provider         string         `json:"provider"`
	PromptTokens     int            `json:"prompt_tokens"`
	CompletionTokens int            `json:"completion_tokens"`
	TotalTokens      int            `json:"total_tokens"`
	Source           UsageSource    `json:"source"`
	Confidence       float64        `json:"confidence"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// NewTokenUsage builds a token usage record.
func NewTokenUsage(sessionID, model, provider string) (*TokenUsage, error) {
	if sessionID == "" {
		return nil, ErrEmptySession
	}
	return &TokenUsage{
		Base:     newBase(sessionID, TypeTokenUsage),
		Model:    model,
		Provider: provider,
	}, nil
}

// Cost records the monetary cost derived from a token usage record.
type Cost struct {
	Base
	Model            string         `json:"model"`
	Provider         string         `json:"provider"`
	PromptTokens     int            `json:"prompt_tokens"`
	CompletionTokens int            `json:"completion_tokens"`
	TotalTokens      int            `json:"total_tokens"`
	PromptCost       float64        `json:"prompt_cost"`
	CompletionCost   float64        `json:"completion_cost"`
	TotalCost        float64        `json:"total_cost"`
	Currency         string         `json:"currency"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// NewCost builds a cost record. Currency defaults to USD.
func NewCost(sessionID, model, provider string) (*Cost, error) {
	if sessionID == "" {
		return nil, ErrEmptySession
	}
	return &Cost{
		Base:     newBase(sessionID, TypeCost),
		Model:    model,
		Provider: provider,
		Currency: "USD",
	}, nil
}
