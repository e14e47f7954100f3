// Package cost derives monetary cost records from token usage via a
// pricing table.
package cost

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Pricing holds the per-1000-token prices for one model.
type Pricing struct {
	PromptPer1K     float64 `json:"prompt_price_per_1k" yaml:"prompt_price_per_1k"`
	CompletionPer1K float64 `json:"completion_price_per_1k" yaml:"completion_price_per_1k"`
}

// Fallback prices applied when a model has no table entry.
const (
	DefaultPromptPer1K     = 0.01
	DefaultCompletionPer1K = 0.03
)

// Table maps "provider:model" keys to prices.
type Table map[string]Pricing

// Key builds the canonical "provider:model" pricing key.
func Key(provider, model string) string {
	return provider + ":" + model
}

// Lookup returns the price entry for provider/model, falling back to
// the fixed defaults when the table has none.
func (t Table) Lookup(provider, model string) Pricing {
	if p, ok := t[Key(provider, model)]; ok {
		return p
	}
	return Pricing{PromptPer1K: DefaultPromptPer1K, CompletionPer1K: DefaultCompletionPer1K}
}

// LoadTable reads a YAML pricing file keyed "provider:model". Loaded
// entries merge over the defaults, so a partial file only overrides
// the models it names.
func LoadTable(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pricing %s: %w", path, err)
	}
	var loaded map[string]Pricing
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("parse pricing %s: %w", path, err)
	}
	table := DefaultTable()
	for k, v := range loaded {
		table[k] = v
	}
	return table, nil
}

// DefaultTable prices the commonly used hosted models.
func DefaultTable() Table {
	return Table{
		"openai:gpt-4o":        {PromptPer1K: 0.0025, CompletionPer1K: 0.01},
		"openai:gpt-4o-mini":   {PromptPer1K: 0.00015, CompletionPer1K: 0.0006},
		"openai:gpt-4-turbo":   {PromptPer1K: 0.01, CompletionPer1K: 0.03},
		"openai:gpt-4":         {PromptPer1K: 0.03, CompletionPer1K: 0.06},
		"openai:gpt-3.5-turbo": {PromptPer1K: 0.0005, CompletionPer1K: 0.0015},
		"openai:o1":            {PromptPer1K: 0.015, CompletionPer1K: 0.06},
		"openai:o1-mini":       {PromptPer1K: 0.003, CompletionPer1K: 0.012},
		"openai:o3":            {PromptPer1K: 0.01, CompletionPer1K: 0.04},
		"openai:o3-mini":       {PromptPer1K: 0.0011, CompletionPer1K: 0.0044},

		"anthropic:claude-sonnet-4-6": {PromptPer1K: 0.003, CompletionPer1K: 0.015},
		"anthropic:claude-3-5-sonnet": {PromptPer1K: 0.003, CompletionPer1K: 0.015},
		"anthropic:claude-3-opus":     {PromptPer1K: 0.015, CompletionPer1K: 0.075},
		"anthropic:claude-3-haiku":    {PromptPer1K: 0.00025, CompletionPer1K: 0.00125},
		"anthropic:claude-3-5-haiku":  {PromptPer1K: 0.0008, CompletionPer1K: 0.004},

		"gemini:gemini-2.0-flash": {PromptPer1K: 0.00015, CompletionPer1K: 0.0006},
		"gemini:gemini-1.5-pro":   {PromptPer1K: 0.00125, CompletionPer1K: 0.005},

		"mistral:mistral-large-latest": {PromptPer1K: 0.002, CompletionPer1K: 0.006},
	}
}
