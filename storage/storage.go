// Package storage defines the persistence contract for history
// records and selects a backend adapter at runtime.
package storage

import (
	"context"
	"time"

	"github.com/kkkqkx123/open-agent-sub019/record"
)

// Store is the history persistence interface. All adapters implement it.
//
// Append is infallible from the caller's point of view: telemetry must
// never take an agent down, so adapters report write failures through
// their logger and return false instead of an error.
type Store interface {
	// Append persists one record and reports whether it was written.
	Append(ctx context.Context, rec record.Record) bool

	// ReadAll returns every record of a session in append order, as
	// decoded JSON objects. A session with no data yields an empty
	// result and no error. Lines that fail to decode are skipped.
	ReadAll(ctx context.Context, sessionID string) ([]map[string]any, error)

	// Sessions lists the session ids that have stored records.
	Sessions(ctx context.Context) ([]string, error)

	// Cleanup removes records timestamped before cutoff and reports
	// how many were removed.
	Cleanup(ctx context.Context, cutoff time.Time) (int, error)

	Close() error
}
