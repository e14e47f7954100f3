package token

import (
	"context"
	"testing"

	"github.com/kkkqkx123/open-agent-sub019/record"
	"github.com/kkkqkx123/open-agent-sub019/storage/adapters/file"
)

func TestEstimatingCounter(t *testing.T) {
	c := NewEstimatingCounter()

	if got := c.CountString(""); got != 0 {
		t.Fatalf("CountString(empty) = %d, want 0", got)
	}
	// 11 chars at 4 chars/token: 11/4 + 1 = 3.
	if got := c.CountString("hello world"); got != 3 {
		t.Fatalf("CountString = %d, want 3", got)
	}
	// One message: 4 role overhead + 3 content + 3 framing.
	msgs := []record.ChatMessage{{Role: "user", Content: "hello world"}}
	if got := c.CountMessages(msgs); got != 10 {
		t.Fatalf("CountMessages = %d, want 10", got)
	}
}

func TestExtractUsage(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
		want    record.Usage
		wantOK  bool
	}{
		{
			name: "openai",
			payload: map[string]any{
				"usage": map[string]any{
					"prompt_tokens":     float64(15),
					"completion_tokens": float64(25),
					"total_tokens":      float64(40),
				},
			},
			want:   record.Usage{PromptTokens: 15, CompletionTokens: 25, TotalTokens: 40},
			wantOK: true,
		},
		{
			name: "gemini",
			payload: map[string]any{
				"usageMetadata": map[string]any{
					"promptTokenCount":     12,
					"candidatesTokenCount": 8,
					"totalTokenCount":      20,
				},
			},
			want:   record.Usage{PromptTokens: 12, CompletionTokens: 8, TotalTokens: 20},
			wantOK: true,
		},
		{
			name: "anthropic derives total",
			payload: map[string]any{
				"usage": map[string]any{
					"input_tokens":  30,
					"output_tokens": 12,
				},
			},
			want:   record.Usage{PromptTokens: 30, CompletionTokens: 12, TotalTokens: 42},
			wantOK: true,
		},
		{
			name: "openai wins over anthropic fields",
			payload: map[string]any{
				"usage": map[string]any{
					"prompt_tokens":     10,
					"completion_tokens": 5,
					"total_tokens":      15,
					"input_tokens":      99,
					"output_tokens":     99,
				},
			},
			want:   record.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
			wantOK: true,
		},
		{
			name:    "unrecognized shape",
			payload: map[string]any{"choices": []any{}},
		},
		{
			name: "usage without counts",
			payload: map[string]any{
				"usage": map[string]any{"cached": true},
			},
		},
		{name: "nil payload"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractUsage(tt.payload)
			if ok != tt.wantOK {
				t.Fatalf("ExtractUsage ok = %v, want %v", ok, tt.wantOK)
			}
			if got != tt.want {
				t.Fatalf("ExtractUsage = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestTrackRequestPersistsEstimate(t *testing.T) {
	store := file.New(t.TempDir(), nil)
	tracker := NewTracker(NewEstimatingCounter(), store, nil)
	ctx := context.Background()

	msgs := []record.ChatMessage{{Role: "user", Content: "hello world"}}
	rec, err := tracker.TrackRequest(ctx, "s1", "gpt-4", "openai", msgs)
	if err != nil {
		t.Fatalf("TrackRequest: %v", err)
	}
	if rec.Source != record.SourceLocal || rec.Confidence != LocalConfidence {
		t.Fatalf("estimate phase: source=%q confidence=%v", rec.Source, rec.Confidence)
	}
	if rec.CompletionTokens != 0 {
		t.Fatalf("completion tokens before response = %d, want 0", rec.CompletionTokens)
	}
	if rec.PromptTokens != 10 || rec.TotalTokens != 10 {
		t.Fatalf("estimate = %d/%d, want 10/10", rec.PromptTokens, rec.TotalTokens)
	}

	rows, err := store.ReadAll(ctx, "s1")
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 persisted line, got %d", len(rows))
	}
	if rows[0]["source"] != "local" {
		t.Fatalf("persisted source = %v, want local", rows[0]["source"])
	}
}

func TestUpdateFromResponseReconciles(t *testing.T) {
	store := file.New(t.TempDir(), nil)
	tracker := NewTracker(NewEstimatingCounter(), store, nil)
	ctx := context.Background()

	rec, err := record.NewTokenUsage("s1", "gpt-4", "openai")
	if err != nil {
		t.Fatalf("NewTokenUsage: %v", err)
	}
	rec.PromptTokens = 10
	rec.TotalTokens = 10
	rec.Source = record.SourceLocal
	rec.Confidence = LocalConfidence
	if !store.Append(ctx, rec) {
		t.Fatalf("Append returned false")
	}

	payload := map[string]any{
		"usage": map[string]any{
			"prompt_tokens":     15,
			"completion_tokens": 25,
			"total_tokens":      40,
		},
	}
	got := tracker.UpdateFromResponse(ctx, rec, payload)
	if got.PromptTokens != 15 || got.CompletionTokens != 25 || got.TotalTokens != 40 {
		t.Fatalf("reconciled tokens = %d/%d/%d, want 15/25/40",
			got.PromptTokens, got.CompletionTokens, got.TotalTokens)
	}
	if got.Source != record.SourceAPI || got.Confidence != APIConfidence {
		t.Fatalf("reconciled source=%q confidence=%v, want api/1.0", got.Source, got.Confidence)
	}

	rows, err := store.ReadAll(ctx, "s1")
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected both phases on disk, got %d lines", len(rows))
	}
	if rows[0]["record_id"] != rows[1]["record_id"] {
		t.Fatalf("phases must share a record id: %v vs %v",
			rows[0]["record_id"], rows[1]["record_id"])
	}
	if rows[1]["source"] != "api" {
		t.Fatalf("later line source = %v, want api", rows[1]["source"])
	}
}

func TestUpdateFromResponseUnrecognizedShape(t *testing.T) {
	store := file.New(t.TempDir(), nil)
	tracker := NewTracker(NewEstimatingCounter(), store, nil)
	ctx := context.Background()

	rec, err := record.NewTokenUsage("s1", "gpt-4", "openai")
	if err != nil {
		t.Fatalf("NewTokenUsage: %v", err)
	}
	rec.PromptTokens = 10
	rec.TotalTokens = 10
	rec.Source = record.SourceLocal
	rec.Confidence = LocalConfidence

	got := tracker.UpdateFromResponse(ctx, rec, map[string]any{"model": "gpt-4"})
	if got.PromptTokens != 10 || got.Source != record.SourceLocal || got.Confidence != LocalConfidence {
		t.Fatalf("unrecognized payload must leave the estimate untouched: %+v", got)
	}

	rows, err := store.ReadAll(ctx, "s1")
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("no line should be appended, got %d", len(rows))
	}
}

func TestEstimateTokens(t *testing.T) {
	tracker := NewTracker(nil, nil, nil)
	if got := tracker.EstimateTokens([]record.ChatMessage{{Role: "user", Content: "hi"}}); got != 0 {
		t.Fatalf("nil counter should estimate 0, got %d", got)
	}

	tracker = NewTracker(negativeCounter{}, nil, nil)
	if got := tracker.EstimateTokens(nil); got != 0 {
		t.Fatalf("negative estimate should clamp to 0, got %d", got)
	}
}

type negativeCounter struct{}

func (negativeCounter) CountMessages([]record.ChatMessage) int { return -5 }
func (negativeCounter) CountString(string) int                 { return -1 }
