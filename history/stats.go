package history

import (
	"context"
	"sort"

	"github.com/kkkqkx123/open-agent-sub019/record"
)

// TokenStatistics aggregates every token-usage line of a session.
// Both phases of a reconciled call are summed rather than deduplicated
// by record id, preserving the two-line write behavior.
type TokenStatistics struct {
	TotalPromptTokens     int      `json:"total_prompt_tokens"`
	TotalCompletionTokens int      `json:"total_completion_tokens"`
	TotalTokens           int      `json:"total_tokens"`
	RecordCount           int      `json:"record_count"`
	AverageConfidence     float64  `json:"average_confidence"`
	Models                []string `json:"models"`
}

// CostStatistics aggregates a session's cost records.
type CostStatistics struct {
	TotalPromptCost     float64  `json:"total_prompt_cost"`
	TotalCompletionCost float64  `json:"total_completion_cost"`
	TotalCost           float64  `json:"total_cost"`
	Currency            string   `json:"currency"`
	RecordCount         int      `json:"record_count"`
	Models              []string `json:"models"`
}

// LLMStatistics aggregates a session's request and response records.
// With no responses the success rate reads 1.0.
type LLMStatistics struct {
	RequestCount        int      `json:"request_count"`
	ResponseCount       int      `json:"response_count"`
	ErrorCount          int      `json:"error_count"`
	SuccessRate         float64  `json:"success_rate"`
	AverageResponseTime float64  `json:"average_response_time"`
	Models              []string `json:"models"`
}

// TokenStatistics reduces the session's token-usage records.
func (m *Manager) TokenStatistics(ctx context.Context, sessionID string) (*TokenStatistics, error) {
	recs, _, err := m.Query(ctx, sessionID, Filter{Types: []record.Type{record.TypeTokenUsage}})
	if err != nil {
		return nil, err
	}

	stats := &TokenStatistics{}
	models := modelSet{}
	confidenceSum := 0.0
	for _, rec := range recs {
		usage, ok := rec.(*record.TokenUsage)
		if !ok {
			continue
		}
		stats.TotalPromptTokens += usage.PromptTokens
		stats.TotalCompletionTokens += usage.CompletionTokens
		stats.TotalTokens += usage.TotalTokens
		stats.RecordCount++
		confidenceSum += usage.Confidence
		models.add(usage.Model)
	}
	if stats.RecordCount > 0 {
		stats.AverageConfidence = confidenceSum / float64(stats.RecordCount)
	}
	stats.Models = models.sorted()
	return stats, nil
}

// CostStatistics reduces the session's cost records.
func (m *Manager) CostStatistics(ctx context.Context, sessionID string) (*CostStatistics, error) {
	recs, _, err := m.Query(ctx, sessionID, Filter{Types: []record.Type{record.TypeCost}})
	if err != nil {
		return nil, err
	}

	stats := &CostStatistics{Currency: "USD"}
	models := modelSet{}
	for _, rec := range recs {
		cost, ok := rec.(*record.Cost)
		if !ok {
			continue
		}
		stats.TotalPromptCost += cost.PromptCost
		stats.TotalCompletionCost += cost.CompletionCost
		stats.TotalCost += cost.TotalCost
		stats.RecordCount++
		if cost.Currency != "" {
			stats.Currency = cost.Currency
		}
		models.add(cost.Model)
	}
	stats.Models = models.sorted()
	return stats, nil
}

// LLMStatistics reduces the session's request and response records.
func (m *Manager) LLMStatistics(ctx context.Context, sessionID string) (*LLMStatistics, error) {
	recs, _, err := m.Query(ctx, sessionID, Filter{
		Types: []record.Type{record.TypeLLMRequest, record.TypeLLMResponse},
	})
	if err != nil {
		return nil, err
	}

	stats := &LLMStatistics{}
	models := modelSet{}
	responseTimeSum := 0.0
	for _, rec := range recs {
		switch r := rec.(type) {
		case *record.LLMRequest:
			stats.RequestCount++
			models.add(r.Model)
		case *record.LLMResponse:
			stats.ResponseCount++
			if r.FinishReason == "error" {
				stats.ErrorCount++
			}
			responseTimeSum += r.ResponseTime
			models.add(r.Model)
		}
	}
	if stats.ResponseCount > 0 {
		stats.SuccessRate = float64(stats.ResponseCount-stats.ErrorCount) / float64(stats.ResponseCount)
		stats.AverageResponseTime = responseTimeSum / float64(stats.ResponseCount)
	} else {
		stats.SuccessRate = 1.0
	}
	stats.Models = models.sorted()
	return stats, nil
}

type modelSet map[string]struct{}

func (s modelSet) add(model string) {
	if model != "" {
		s[model] = struct{}{}
	}
}

func (s modelSet) sorted() []string {
	out := make([]string, 0, len(s))
	for m := range s {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}
