package history

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Export formats.
const (
	FormatJSONL = "jsonl"
	FormatJSON  = "json"
)

// Export writes a session's decodable records to w and reports how
// many were written. "jsonl" (the default) emits one canonical line
// per record; "json" emits a single indented array.
func (m *Manager) Export(ctx context.Context, w io.Writer, sessionID, format string) (int, error) {
	recs, _, err := m.Query(ctx, sessionID, Filter{})
	if err != nil {
		return 0, err
	}

	switch strings.ToLower(format) {
	case "", FormatJSONL:
		enc := json.NewEncoder(w)
		for i, rec := range recs {
			if err := enc.Encode(rec); err != nil {
				return i, fmt.Errorf("export session %s: %w", sessionID, err)
			}
		}
		return len(recs), nil
	case FormatJSON:
		data, err := json.MarshalIndent(recs, "", "  ")
		if err != nil {
			return 0, fmt.Errorf("export session %s: %w", sessionID, err)
		}
		if _, err := w.Write(append(data, '\n')); err != nil {
			return 0, fmt.Errorf("export session %s: %w", sessionID, err)
		}
		return len(recs), nil
	default:
		return 0, fmt.Errorf("unknown export format %q (supported: jsonl, json)", format)
	}
}
