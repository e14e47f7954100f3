package token

import (
	"context"
	"log/slog"

	"github.com/kkkqkx123/open-agent-sub019/record"
	"github.com/kkkqkx123/open-agent-sub019/storage"
)

// Estimate confidence levels. A locally estimated count is a guess;
// a provider-reported count is authoritative.
const (
	LocalConfidence = 0.7
	APIConfidence   = 1.0
)

// Tracker records token usage in two phases: a local estimate when the
// request goes out and a reconciled record once the provider reports
// real usage. Both phases append a line under the same record id; the
// later line is the authoritative one.
type Tracker struct {
	counter Counter
	store   storage.Store
	log     *slog.Logger
}

// NewTracker builds a tracker around a counting heuristic and the
// history store records are appended to.
func NewTracker(counter Counter, store storage.Store, log *slog.Logger) *Tracker {
	if log == nil {
		log = slog.Default()
	}
	return &Tracker{counter: counter, store: store, log: log}
}

// TrackRequest persists a local-estimate usage record for an outbound
// call and returns it for later reconciliation. Completion tokens stay
// zero until the provider responds.
func (t *Tracker) TrackRequest(ctx context.Context, sessionID, model, provider string, messages []record.ChatMessage) (*record.TokenUsage, error) {
	usage, err := record.NewTokenUsage(sessionID, model, provider)
	if err != nil {
		return nil, err
	}
	prompt := t.EstimateTokens(messages)
	usage.PromptTokens = prompt
	usage.CompletionTokens = 0
	usage.TotalTokens = prompt
	usage.Source = record.SourceLocal
	usage.Confidence = LocalConfidence

	if t.store != nil {
		t.store.Append(ctx, usage)
	}
	return usage, nil
}

// UpdateFromResponse reconciles rec against the raw provider payload.
// On a recognized shape it overwrites the token fields, marks the
// record provider-confirmed, and appends it again under the same
// record id. An unrecognized payload leaves rec untouched.
func (t *Tracker) UpdateFromResponse(ctx context.Context, rec *record.TokenUsage, payload map[string]any) *record.TokenUsage {
	if rec == nil {
		return nil
	}
	usage, ok := ExtractUsage(payload)
	if !ok {
		t.log.Debug("token reconciliation: unrecognized usage payload",
			"record_id", rec.RecordID, "provider", rec.Provider)
		return rec
	}
	rec.PromptTokens = usage.PromptTokens
	rec.CompletionTokens = usage.CompletionTokens
	rec.TotalTokens = usage.TotalTokens
	rec.Source = record.SourceAPI
	rec.Confidence = APIConfidence

	if t.store != nil {
		t.store.Append(ctx, rec)
	}
	return rec
}

// EstimateTokens is a stateless estimate over messages. A missing
// counter or a negative count reads as zero.
func (t *Tracker) EstimateTokens(messages []record.ChatMessage) int {
	if t.counter == nil {
		return 0
	}
	n := t.counter.CountMessages(messages)
	if n < 0 {
		return 0
	}
	return n
}
