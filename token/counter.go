// Package token estimates token consumption before an LLM call and
// reconciles it against provider-reported usage afterwards.
package token

import "github.com/kkkqkx123/open-agent-sub019/record"

// Counter estimates the token count for a set of chat messages.
type Counter interface {
	CountMessages(messages []record.ChatMessage) int
	CountString(s string) int
}

// EstimatingCounter uses a character-ratio heuristic (1 token ~ 4 chars)
// to estimate token counts without external tokenizer dependencies.
type EstimatingCounter struct {
	CharsPerToken float64
}

// NewEstimatingCounter returns a counter using the default 4-chars-per-token ratio.
func NewEstimatingCounter() *EstimatingCounter {
	return &EstimatingCounter{CharsPerToken: 4.0}
}

func (c *EstimatingCounter) CountMessages(messages []record.ChatMessage) int {
	total := 0
	for _, m := range messages {
		// Per-message overhead (role, separators) ~4 tokens
		total += 4
		total += c.CountString(m.Content)
	}
	// Conversation framing overhead
	total += 3
	return total
}

func (c *EstimatingCounter) CountString(s string) int {
	if len(s) == 0 {
		return 0
	}
	cpt := c.CharsPerToken
	if cpt <= 0 {
		cpt = 4.0
	}
	return int(float64(len(s))/cpt) + 1
}
