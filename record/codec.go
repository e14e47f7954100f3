package record

import (
	"encoding/json"
	"fmt"
)

// Decode parses one canonical JSON line into its concrete variant. The
// record_type discriminator drives the switch; a missing or unrecognized
// discriminator yields ErrUnknownType so readers can skip the line.
func Decode(data []byte) (Record, error) {
	var head struct {
		RecordType Type `json:"record_type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("record: decode header: %w", err)
	}

	switch head.RecordType {
	case TypeMessage:
		var r Message
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("record: decode %s: %w", head.RecordType, err)
		}
		return &r, nil
	case TypeToolCall:
		var r ToolCall
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("record: decode %s: %w", head.RecordType, err)
		}
		return &r, nil
	case TypeLLMRequest:
		var r LLMRequest
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("record: decode %s: %w", head.RecordType, err)
		}
		return &r, nil
	case TypeLLMResponse:
		var r LLMResponse
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("record: decode %s: %w", head.RecordType, err)
		}
		return &r, nil
	case TypeTokenUsage:
		var r TokenUsage
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("record: decode %s: %w", head.RecordType, err)
		}
		return &r, nil
	case TypeCost:
		var r Cost
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("record: decode %s: %w", head.RecordType, err)
		}
		return &r, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, head.RecordType)
	}
}

// FromMap reconstructs a variant from its canonical map form, as returned
// by the storage read path. Missing optional fields default rather than fail.
func FromMap(m map[string]any) (Record, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("record: from map: %w", err)
	}
	return Decode(data)
}

// ToMap converts a record to its canonical map form: enum fields as their
// string value, timestamps as ISO-8601 strings.
func ToMap(r Record) (map[string]any, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("record: to map: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("record: to map: %w", err)
	}
	return m, nil
}
