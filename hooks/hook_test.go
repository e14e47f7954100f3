package hooks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kkkqkx123/open-agent-sub019/cost"
	"github.com/kkkqkx123/open-agent-sub019/record"
	"github.com/kkkqkx123/open-agent-sub019/session"
	"github.com/kkkqkx123/open-agent-sub019/storage"
	"github.com/kkkqkx123/open-agent-sub019/storage/adapters/file"
	"github.com/kkkqkx123/open-agent-sub019/stream"
)

func newTestHook(t *testing.T, opts Options) (*CallHook, storage.Store) {
	t.Helper()
	store := file.New(t.TempDir(), nil)
	h := New(store, opts)
	t.Cleanup(func() { h.Close() })
	return h, store
}

func typeCounts(t *testing.T, store storage.Store, sessionID string) map[string]int {
	t.Helper()
	rows, err := store.ReadAll(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	counts := make(map[string]int)
	for _, row := range rows {
		rt, _ := row["record_type"].(string)
		counts[rt]++
	}
	return counts
}

func openAIPayload(prompt, completion, total int) map[string]any {
	return map[string]any{
		"usage": map[string]any{
			"prompt_tokens":     prompt,
			"completion_tokens": completion,
			"total_tokens":      total,
		},
	}
}

func TestBeforeAfterPersistsExactlyFourRecords(t *testing.T) {
	h, store := newTestHook(t, Options{
		Calculator: cost.NewCalculator(cost.Table{
			"openai:gpt-4": {PromptPer1K: 0.01, CompletionPer1K: 0.03},
		}),
	})
	ctx := context.Background()
	msgs := []record.ChatMessage{{Role: "user", Content: "what is the weather"}}

	reqID := h.BeforeCall(ctx, "s1", "gpt-4", "openai", msgs, map[string]any{"temperature": 0.1}, "")
	if reqID == "" {
		t.Fatalf("BeforeCall should hand back a request id")
	}
	h.AfterCall(ctx, reqID, &CallResponse{
		Content:      "sunny",
		FinishReason: "stop",
		Raw:          openAIPayload(15, 25, 40),
	})
	h.Flush()

	counts := typeCounts(t, store, "s1")
	for _, rt := range []string{"llm_request", "llm_response", "token_usage", "cost"} {
		if counts[rt] != 1 {
			t.Fatalf("%s count = %d, want 1 (all: %v)", rt, counts[rt], counts)
		}
	}

	rows, err := store.ReadAll(ctx, "s1")
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	for _, row := range rows {
		switch row["record_type"] {
		case "llm_request":
			if row["record_id"] != reqID {
				t.Fatalf("request record id = %v, want %v", row["record_id"], reqID)
			}
			if est, _ := row["estimated_tokens"].(float64); est <= 0 {
				t.Fatalf("request should carry a token estimate, got %v", row["estimated_tokens"])
			}
		case "llm_response":
			if row["request_id"] != reqID {
				t.Fatalf("response request_id = %v, want %v", row["request_id"], reqID)
			}
		case "token_usage":
			if row["source"] != "api" || row["confidence"] != 1.0 {
				t.Fatalf("usage not finalized: source=%v confidence=%v", row["source"], row["confidence"])
			}
			if row["prompt_tokens"] != 15.0 || row["completion_tokens"] != 25.0 || row["total_tokens"] != 40.0 {
				t.Fatalf("usage tokens = %v/%v/%v, want 15/25/40",
					row["prompt_tokens"], row["completion_tokens"], row["total_tokens"])
			}
		case "cost":
			got, _ := row["total_cost"].(float64)
			want := 15.0/1000*0.01 + 25.0/1000*0.03
			if got < want-1e-9 || got > want+1e-9 {
				t.Fatalf("total cost = %v, want %v", got, want)
			}
		}
	}

	if h.PendingCount() != 0 {
		t.Fatalf("pending count = %d after resolution, want 0", h.PendingCount())
	}
}

func TestAfterCallUnknownRequestIsNoop(t *testing.T) {
	h, store := newTestHook(t, Options{})
	ctx := context.Background()

	h.AfterCall(ctx, "never-seen", &CallResponse{Content: "?", FinishReason: "stop"})
	h.Flush()

	rows, err := store.ReadAll(ctx, "s1")
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("unknown request id must write nothing, got %d rows", len(rows))
	}
}

func TestOnErrorPersistsErrorResponse(t *testing.T) {
	h, store := newTestHook(t, Options{})
	ctx := context.Background()
	msgs := []record.ChatMessage{{Role: "user", Content: "hi"}}

	reqID := h.BeforeCall(ctx, "s1", "gpt-4o", "openai", msgs, nil, "")
	h.OnError(ctx, reqID, errors.New("rate limited"))
	h.Flush()

	counts := typeCounts(t, store, "s1")
	if counts["llm_request"] != 1 || counts["llm_response"] != 1 {
		t.Fatalf("expected request + error response, got %v", counts)
	}
	if counts["token_usage"] != 0 || counts["cost"] != 0 {
		t.Fatalf("failed calls must not produce usage or cost records: %v", counts)
	}

	rows, _ := store.ReadAll(ctx, "s1")
	for _, row := range rows {
		if row["record_type"] != "llm_response" {
			continue
		}
		if row["finish_reason"] != "error" {
			t.Fatalf("finish_reason = %v, want error", row["finish_reason"])
		}
		if row["content"] != "rate limited" {
			t.Fatalf("content = %v, want the error message", row["content"])
		}
		usage, _ := row["token_usage"].(map[string]any)
		if usage["total_tokens"] != 0.0 {
			t.Fatalf("error response usage should be zeroed: %v", usage)
		}
		meta, _ := row["metadata"].(map[string]any)
		if meta["error"] != "rate limited" {
			t.Fatalf("metadata should carry the error: %v", meta)
		}
	}

	if h.PendingCount() != 0 {
		t.Fatalf("pending count = %d after error, want 0", h.PendingCount())
	}
}

func TestOnErrorUnknownRequestIsNoop(t *testing.T) {
	h, store := newTestHook(t, Options{})
	h.OnError(context.Background(), "ghost", errors.New("boom"))
	h.Flush()

	if n := h.PendingCount(); n != 0 {
		t.Fatalf("pending count = %d, want 0", n)
	}
	rows, _ := store.ReadAll(context.Background(), "s1")
	if len(rows) != 0 {
		t.Fatalf("expected no rows, got %d", len(rows))
	}
}

func TestBeforeCallUsesAmbientSession(t *testing.T) {
	h, store := newTestHook(t, Options{})
	ctx := session.Push(context.Background(), "ambient")
	msgs := []record.ChatMessage{{Role: "user", Content: "hi"}}

	h.BeforeCall(ctx, "", "gpt-4o", "openai", msgs, nil, "")
	h.Flush()

	rows, err := store.ReadAll(context.Background(), "ambient")
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("request should land under the ambient session, got %d rows", len(rows))
	}
}

func TestBeforeCallWithoutSessionRecordsNothing(t *testing.T) {
	h, store := newTestHook(t, Options{})
	ctx := context.Background()

	reqID := h.BeforeCall(ctx, "", "gpt-4o", "openai", nil, nil, "")
	if reqID == "" {
		t.Fatalf("request id should still be handed back")
	}
	h.AfterCall(ctx, reqID, &CallResponse{FinishReason: "stop"})
	h.Flush()

	ids, err := store.Sessions(ctx)
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("no session may be invented for orphan calls, found %v", ids)
	}
}

func TestCallerRequestIDIsKept(t *testing.T) {
	h, store := newTestHook(t, Options{})
	ctx := context.Background()

	got := h.BeforeCall(ctx, "s1", "gpt-4o", "openai",
		[]record.ChatMessage{{Role: "user", Content: "hi"}}, nil, "req-42")
	if got != "req-42" {
		t.Fatalf("BeforeCall = %q, want req-42", got)
	}
	h.Flush()

	rows, _ := store.ReadAll(ctx, "s1")
	if len(rows) != 1 || rows[0]["record_id"] != "req-42" {
		t.Fatalf("request must persist under the caller's id: %v", rows)
	}
}

func TestReconciliationFallsBackToResponseUsage(t *testing.T) {
	h, store := newTestHook(t, Options{})
	ctx := context.Background()

	reqID := h.BeforeCall(ctx, "s1", "gpt-4o", "openai",
		[]record.ChatMessage{{Role: "user", Content: "hi"}}, nil, "")
	h.AfterCall(ctx, reqID, &CallResponse{
		FinishReason: "stop",
		Usage:        record.Usage{PromptTokens: 7, CompletionTokens: 3, TotalTokens: 10},
		Raw:          map[string]any{"id": "resp_1"}, // no usable usage shape
	})
	h.Flush()

	rows, _ := store.ReadAll(ctx, "s1")
	for _, row := range rows {
		if row["record_type"] != "token_usage" {
			continue
		}
		if row["prompt_tokens"] != 7.0 || row["completion_tokens"] != 3.0 {
			t.Fatalf("fallback usage = %v/%v, want 7/3",
				row["prompt_tokens"], row["completion_tokens"])
		}
	}
}

func TestConcurrentCalls(t *testing.T) {
	h, store := newTestHook(t, Options{})
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sess := fmt.Sprintf("s%d", i)
			msgs := []record.ChatMessage{{Role: "user", Content: "go"}}
			reqID := h.BeforeCall(ctx, sess, "gpt-4o", "openai", msgs, nil, "")
			h.AfterCall(ctx, reqID, &CallResponse{
				FinishReason: "stop",
				Raw:          openAIPayload(10, 5, 15),
			})
		}(i)
	}
	wg.Wait()
	h.Flush()

	for i := 0; i < n; i++ {
		counts := typeCounts(t, store, fmt.Sprintf("s%d", i))
		for _, rt := range []string{"llm_request", "llm_response", "token_usage", "cost"} {
			if counts[rt] != 1 {
				t.Fatalf("session s%d: %s count = %d, want 1", i, rt, counts[rt])
			}
		}
	}
	if h.PendingCount() != 0 {
		t.Fatalf("pending count = %d, want 0", h.PendingCount())
	}
}

// gatedStore blocks its first append until released, letting tests
// fill the writer queue deterministically.
type gatedStore struct {
	mu      sync.Mutex
	rows    []record.Record
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedStore() *gatedStore {
	return &gatedStore{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (g *gatedStore) Append(ctx context.Context, rec record.Record) bool {
	g.once.Do(func() {
		close(g.started)
		<-g.release
	})
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rows = append(g.rows, rec)
	return true
}

func (g *gatedStore) ReadAll(ctx context.Context, sessionID string) ([]map[string]any, error) {
	return nil, nil
}

func (g *gatedStore) Sessions(ctx context.Context) ([]string, error) { return nil, nil }

func (g *gatedStore) Cleanup(ctx context.Context, cutoff time.Time) (int, error) { return 0, nil }

func (g *gatedStore) Close() error { return nil }

func (g *gatedStore) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rows)
}

func TestFullQueueDropsInsteadOfBlocking(t *testing.T) {
	store := newGatedStore()
	h := New(store, Options{QueueSize: 1})
	defer h.Close()
	ctx := context.Background()
	msgs := []record.ChatMessage{{Role: "user", Content: "hi"}}

	// Worker picks this up and parks inside the store.
	h.BeforeCall(ctx, "s0", "gpt-4o", "openai", msgs, nil, "")
	<-store.started

	// Fills the single queue slot.
	h.BeforeCall(ctx, "s1", "gpt-4o", "openai", msgs, nil, "")

	// Queue full: must return immediately, dropping the record.
	done := make(chan struct{})
	go func() {
		h.BeforeCall(ctx, "s2", "gpt-4o", "openai", msgs, nil, "")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("BeforeCall blocked on a full queue")
	}

	close(store.release)
	h.Flush()

	if got := store.count(); got != 2 {
		t.Fatalf("store received %d records, want 2 (third dropped)", got)
	}
}

func TestCloseIsIdempotentAndFinal(t *testing.T) {
	h, store := newTestHook(t, Options{})
	ctx := context.Background()

	reqID := h.BeforeCall(ctx, "s1", "gpt-4o", "openai",
		[]record.ChatMessage{{Role: "user", Content: "hi"}}, nil, "")
	h.AfterCall(ctx, reqID, &CallResponse{FinishReason: "stop"})

	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	// Records accepted before Close are on disk; later calls drop.
	counts := typeCounts(t, store, "s1")
	if counts["llm_request"] != 1 || counts["llm_response"] != 1 {
		t.Fatalf("pre-close records missing: %v", counts)
	}
	h.BeforeCall(ctx, "s1", "gpt-4o", "openai",
		[]record.ChatMessage{{Role: "user", Content: "late"}}, nil, "")
}

func TestPendingTTLEviction(t *testing.T) {
	h, _ := newTestHook(t, Options{PendingTTL: 30 * time.Millisecond})
	ctx := context.Background()

	h.BeforeCall(ctx, "s1", "gpt-4o", "openai",
		[]record.ChatMessage{{Role: "user", Content: "hi"}}, nil, "")
	if h.PendingCount() != 1 {
		t.Fatalf("pending count = %d, want 1", h.PendingCount())
	}

	deadline := time.Now().Add(2 * time.Second)
	for h.PendingCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("janitor never evicted the stale entry")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRecordStreamPublishes(t *testing.T) {
	broker := stream.NewBroker()
	feed := broker.Subscribe("test")
	store := file.New(t.TempDir(), nil)
	h := New(store, Options{Broker: broker})
	defer h.Close()
	ctx := context.Background()

	reqID := h.BeforeCall(ctx, "s1", "gpt-4o", "openai",
		[]record.ChatMessage{{Role: "user", Content: "hi"}}, nil, "")
	h.AfterCall(ctx, reqID, &CallResponse{FinishReason: "stop", Raw: openAIPayload(5, 5, 10)})
	h.Flush()

	got := 0
	for done := false; !done; {
		select {
		case evt := <-feed:
			if evt.SessionID != "s1" {
				t.Fatalf("event session = %q, want s1", evt.SessionID)
			}
			got++
		default:
			done = true
		}
	}
	if got != 4 {
		t.Fatalf("expected 4 streamed records, got %d", got)
	}
}
