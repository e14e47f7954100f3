package token

import (
	"encoding/json"

	"github.com/kkkqkx123/open-agent-sub019/record"
)

// ExtractUsage pulls a token-usage triple out of a raw provider
// response payload. Recognized shapes, tried in order:
//
//  1. OpenAI:    usage.prompt_tokens / completion_tokens / total_tokens
//  2. Gemini:    usageMetadata.promptTokenCount / candidatesTokenCount / totalTokenCount
//  3. Anthropic: usage.input_tokens / output_tokens, with the total
//     derived as their sum since the payload carries none.
//
// The second result is false when no shape matches.
func ExtractUsage(payload map[string]any) (record.Usage, bool) {
	if payload == nil {
		return record.Usage{}, false
	}

	if usage, ok := mapField(payload, "usage"); ok {
		if prompt, ok := intField(usage, "prompt_tokens"); ok {
			completion, _ := intField(usage, "completion_tokens")
			total, ok := intField(usage, "total_tokens")
			if !ok {
				total = prompt + completion
			}
			return record.Usage{
				PromptTokens:     prompt,
				CompletionTokens: completion,
				TotalTokens:      total,
			}, true
		}
	}

	if meta, ok := mapField(payload, "usageMetadata"); ok {
		if prompt, ok := intField(meta, "promptTokenCount"); ok {
			completion, _ := intField(meta, "candidatesTokenCount")
			total, ok := intField(meta, "totalTokenCount")
			if !ok {
				total = prompt + completion
			}
			return record.Usage{
				PromptTokens:     prompt,
				CompletionTokens: completion,
				TotalTokens:      total,
			}, true
		}
	}

	if usage, ok := mapField(payload, "usage"); ok {
		if input, ok := intField(usage, "input_tokens"); ok {
			output, _ := intField(usage, "output_tokens")
			return record.Usage{
				PromptTokens:     input,
				CompletionTokens: output,
				TotalTokens:      input + output,
			}, true
		}
	}

	return record.Usage{}, false
}

func mapField(m map[string]any, key string) (map[string]any, bool) {
	v, ok := m[key].(map[string]any)
	return v, ok
}

// intField reads a numeric field regardless of whether the map came
// from a JSON decode (float64/json.Number) or was built in process.
func intField(m map[string]any, key string) (int, bool) {
	switch v := m[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}
