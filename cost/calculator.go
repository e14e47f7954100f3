package cost

import (
	"fmt"

	"github.com/kkkqkx123/open-agent-sub019/record"
)

// Calculator turns token-usage records into cost records.
type Calculator struct {
	table Table

	// Currency overrides the default "USD" on produced records.
	Currency string
}

// NewCalculator builds a calculator over table. A nil table uses the
// defaults.
func NewCalculator(table Table) *Calculator {
	if table == nil {
		table = DefaultTable()
	}
	return &Calculator{table: table}
}

// Calculate derives a cost record from usage. The result inherits the
// usage record's session and timestamp: cost is attributed to the
// moment usage was recorded, not the moment it was priced.
func (c *Calculator) Calculate(usage *record.TokenUsage) (*record.Cost, error) {
	if usage == nil {
		return nil, fmt.Errorf("cost: nil usage record")
	}
	out, err := record.NewCost(usage.SessionID, usage.Model, usage.Provider)
	if err != nil {
		return nil, fmt.Errorf("cost: %w", err)
	}
	price := c.table.Lookup(usage.Provider, usage.Model)

	out.Timestamp = usage.Timestamp
	out.PromptTokens = usage.PromptTokens
	out.CompletionTokens = usage.CompletionTokens
	out.TotalTokens = usage.TotalTokens
	out.PromptCost = float64(usage.PromptTokens) / 1000 * price.PromptPer1K
	out.CompletionCost = float64(usage.CompletionTokens) / 1000 * price.CompletionPer1K
	out.TotalCost = out.PromptCost + out.CompletionCost
	if c.Currency != "" {
		out.Currency = c.Currency
	}
	return out, nil
}
