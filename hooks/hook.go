// Package hooks instruments the LLM call lifecycle, turning each call
// into request, response, token-usage, and cost history records
// without ever blocking or failing the call itself.
package hooks

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kkkqkx123/open-agent-sub019/cost"
	"github.com/kkkqkx123/open-agent-sub019/observability"
	"github.com/kkkqkx123/open-agent-sub019/record"
	"github.com/kkkqkx123/open-agent-sub019/session"
	"github.com/kkkqkx123/open-agent-sub019/storage"
	"github.com/kkkqkx123/open-agent-sub019/stream"
	"github.com/kkkqkx123/open-agent-sub019/token"
)

// CallResponse is the call-site view of a completed LLM exchange
// handed to AfterCall.
type CallResponse struct {
	Content      string
	FinishReason string
	Usage        record.Usage
	Model        string
	ResponseTime float64 // seconds; zero lets the hook measure
	Metadata     map[string]any

	// Raw is the undecoded provider response payload, used to
	// reconcile token usage across provider-specific shapes.
	Raw map[string]any
}

// Options tunes a CallHook. The zero value is usable.
type Options struct {
	Counter    token.Counter    // defaults to the estimating counter
	Calculator *cost.Calculator // defaults to the built-in price table
	Logger     *slog.Logger
	Metrics    *observability.Metrics
	Broker     *stream.Broker

	// QueueSize bounds the background writer queue.
	QueueSize int

	// PendingTTL evicts correlation entries whose call never resolved,
	// e.g. a caller that crashed between before and after. Zero keeps
	// entries for the process lifetime.
	PendingTTL time.Duration
}

type pendingCall struct {
	request *record.LLMRequest
	started time.Time
}

// CallHook is a three-point lifecycle hook attached to outbound LLM
// calls. BeforeCall records the request and registers it for
// correlation; AfterCall and OnError resolve it and emit the
// response-side records. All persistence is handed to a background
// writer, and every entry point swallows its own failures: telemetry
// must stay invisible to the call path.
type CallHook struct {
	counter token.Counter
	calc    *cost.Calculator
	log     *slog.Logger
	metrics *observability.Metrics
	writer  *writer

	mu      sync.Mutex
	pending map[string]pendingCall

	ttl       time.Duration
	stop      chan struct{}
	closeOnce sync.Once
}

// New builds a hook writing through store.
func New(store storage.Store, opts Options) *CallHook {
	if opts.Counter == nil {
		opts.Counter = token.NewEstimatingCounter()
	}
	if opts.Calculator == nil {
		opts.Calculator = cost.NewCalculator(nil)
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	h := &CallHook{
		counter: opts.Counter,
		calc:    opts.Calculator,
		log:     log,
		metrics: opts.Metrics,
		writer:  newWriter(store, opts.QueueSize, log, opts.Metrics, opts.Broker),
		pending: make(map[string]pendingCall),
		ttl:     opts.PendingTTL,
	}
	if h.ttl > 0 {
		h.stop = make(chan struct{})
		go h.janitor()
	}
	return h
}

// BeforeCall records the outbound request and registers it under its
// request id, generating one when the caller has none. An empty
// sessionID falls back to the ambient session on ctx; with neither,
// nothing is recorded and the call proceeds untracked.
func (h *CallHook) BeforeCall(ctx context.Context, sessionID, model, provider string, messages []record.ChatMessage, parameters map[string]any, requestID string) string {
	defer h.recovered("before_call")

	if requestID == "" {
		requestID = uuid.NewString()
	}
	if sessionID == "" {
		sessionID, _ = session.Current(ctx)
	}
	req, err := record.NewLLMRequest(sessionID, model, provider, messages)
	if err != nil {
		h.log.Warn("before_call: dropping request record",
			"request_id", requestID, "error", err)
		return requestID
	}
	req.RecordID = requestID
	req.Parameters = parameters
	req.EstimatedTokens = h.estimate(messages)

	h.mu.Lock()
	h.pending[requestID] = pendingCall{request: req, started: time.Now()}
	h.metrics.SetPending(len(h.pending))
	h.mu.Unlock()

	h.writer.enqueue(req)
	return requestID
}

// AfterCall resolves the pending request and emits the response,
// finalized token-usage, and cost records. An unknown request id is a
// no-op.
func (h *CallHook) AfterCall(ctx context.Context, requestID string, resp *CallResponse) {
	defer h.recovered("after_call")

	pc, ok := h.takePending(requestID)
	if !ok {
		return
	}
	if resp == nil {
		resp = &CallResponse{}
	}
	req := pc.request

	model := resp.Model
	if model == "" {
		model = req.Model
	}
	elapsed := resp.ResponseTime
	if elapsed <= 0 {
		elapsed = time.Since(pc.started).Seconds()
	}

	response, err := record.NewLLMResponse(req.SessionID, requestID)
	if err != nil {
		h.log.Warn("after_call: dropping response record",
			"request_id", requestID, "error", err)
		return
	}
	response.Content = resp.Content
	response.FinishReason = resp.FinishReason
	response.ResponseTime = elapsed
	response.Model = model
	response.Metadata = resp.Metadata

	// The raw provider payload is authoritative; the response object's
	// own triple is the fallback.
	counts, reconciled := token.ExtractUsage(resp.Raw)
	if !reconciled {
		counts = resp.Usage
	}
	response.TokenUsage = counts

	usage, err := record.NewTokenUsage(req.SessionID, model, req.Provider)
	if err != nil {
		h.log.Warn("after_call: dropping usage record",
			"request_id", requestID, "error", err)
		h.writer.enqueue(response)
		return
	}
	usage.PromptTokens = counts.PromptTokens
	usage.CompletionTokens = counts.CompletionTokens
	usage.TotalTokens = counts.TotalTokens
	usage.Source = record.SourceAPI
	usage.Confidence = token.APIConfidence

	h.writer.enqueue(response)
	h.writer.enqueue(usage)

	if costRec, err := h.calc.Calculate(usage); err != nil {
		h.log.Warn("after_call: cost calculation failed",
			"request_id", requestID, "error", err)
	} else {
		h.writer.enqueue(costRec)
		h.metrics.AddCost(req.Provider, model, costRec.TotalCost)
	}

	h.metrics.ObserveCall(req.Provider, false, elapsed)
	h.metrics.AddTokens(req.Provider, counts.PromptTokens, counts.CompletionTokens)
}

// OnError resolves the pending request after a failed call and records
// an error response with zeroed usage. The error itself stays with the
// caller untouched; this is telemetry only.
func (h *CallHook) OnError(ctx context.Context, requestID string, callErr error) {
	defer h.recovered("on_error")

	pc, ok := h.takePending(requestID)
	if !ok {
		return
	}
	req := pc.request

	response, err := record.NewLLMResponse(req.SessionID, requestID)
	if err != nil {
		h.log.Warn("on_error: dropping response record",
			"request_id", requestID, "error", err)
		return
	}
	msg := ""
	if callErr != nil {
		msg = callErr.Error()
	}
	response.Content = msg
	response.FinishReason = "error"
	response.TokenUsage = record.Usage{}
	response.ResponseTime = time.Since(pc.started).Seconds()
	response.Model = req.Model
	response.Metadata = map[string]any{"error": msg}

	h.writer.enqueue(response)
	h.metrics.ObserveCall(req.Provider, true, response.ResponseTime)
}

// PendingCount reports how many calls await resolution.
func (h *CallHook) PendingCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pending)
}

// Flush blocks until every accepted record has reached the store.
// Intended for tests and shutdown paths, after callers have settled.
func (h *CallHook) Flush() {
	h.writer.flush()
}

// Close drains the writer and stops the eviction janitor, if any.
func (h *CallHook) Close() error {
	h.closeOnce.Do(func() {
		if h.stop != nil {
			close(h.stop)
		}
		h.writer.close()
	})
	return nil
}

func (h *CallHook) takePending(requestID string) (pendingCall, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	pc, ok := h.pending[requestID]
	if ok {
		delete(h.pending, requestID)
		h.metrics.SetPending(len(h.pending))
	}
	return pc, ok
}

func (h *CallHook) estimate(messages []record.ChatMessage) int {
	if h.counter == nil {
		return 0
	}
	n := h.counter.CountMessages(messages)
	if n < 0 {
		return 0
	}
	return n
}

// recovered seals the hook boundary: any panic inside an entry point
// is logged and swallowed so the LLM call's own outcome is never
// disturbed.
func (h *CallHook) recovered(entry string) {
	if r := recover(); r != nil {
		h.log.Error("call hook: recovered panic", "entry", entry, "panic", r)
	}
}

// janitor evicts pending entries older than the TTL. Entries normally
// leave the map through AfterCall or OnError; eviction only covers
// calls that died without reaching either.
func (h *CallHook) janitor() {
	ticker := time.NewTicker(h.ttl)
	defer ticker.Stop()
	for {
		select {
		case <-h.stop:
			return
		case <-ticker.C:
			h.evictStale()
		}
	}
}

func (h *CallHook) evictStale() {
	cutoff := time.Now().Add(-h.ttl)
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, pc := range h.pending {
		if pc.started.Before(cutoff) {
			delete(h.pending, id)
			h.log.Warn("pending request evicted unresolved", "request_id", id)
		}
	}
	h.metrics.SetPending(len(h.pending))
}
