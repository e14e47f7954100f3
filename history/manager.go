// Package history is the read and aggregate side of the telemetry
// store: typed queries, statistics, retention cleanup, and export.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kkkqkx123/open-agent-sub019/record"
	"github.com/kkkqkx123/open-agent-sub019/storage"
)

// Manager reads raw stored records back as typed variants and reduces
// them to aggregates. It never writes except through Cleanup.
type Manager struct {
	store storage.Store
	log   *slog.Logger
}

// NewManager builds a manager over an opened store.
func NewManager(store storage.Store, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{store: store, log: log}
}

// Filter narrows a session query. Zero values leave a dimension
// unconstrained; Limit <= 0 disables pagination. Time bounds are
// inclusive on both ends.
type Filter struct {
	Start  time.Time
	End    time.Time
	Types  []record.Type
	Limit  int
	Offset int
}

// Query returns the session's records matching f, in stored order,
// plus the total match count before pagination. Records that no
// longer decode are dropped, never fatal.
func (m *Manager) Query(ctx context.Context, sessionID string, f Filter) ([]record.Record, int, error) {
	raws, err := m.store.ReadAll(ctx, sessionID)
	if err != nil {
		return nil, 0, fmt.Errorf("query session %s: %w", sessionID, err)
	}

	var typeSet map[record.Type]struct{}
	if len(f.Types) > 0 {
		typeSet = make(map[record.Type]struct{}, len(f.Types))
		for _, t := range f.Types {
			typeSet[t] = struct{}{}
		}
	}

	var matched []record.Record
	for _, raw := range raws {
		rec, err := record.FromMap(raw)
		if err != nil {
			m.log.Debug("query: dropping undecodable record",
				"session_id", sessionID, "error", err)
			continue
		}
		ts := rec.Time()
		if !f.Start.IsZero() && ts.Before(f.Start) {
			continue
		}
		if !f.End.IsZero() && ts.After(f.End) {
			continue
		}
		if typeSet != nil {
			if _, ok := typeSet[rec.Type()]; !ok {
				continue
			}
		}
		matched = append(matched, rec)
	}

	total := len(matched)
	start := f.Offset
	if start < 0 {
		start = 0
	}
	if start > total {
		start = total
	}
	end := total
	if f.Limit > 0 && start+f.Limit < end {
		end = start + f.Limit
	}
	return matched[start:end], total, nil
}

// Sessions lists the session ids with stored records.
func (m *Manager) Sessions(ctx context.Context) ([]string, error) {
	return m.store.Sessions(ctx)
}

// CleanupResult reports what a retention pass removed.
type CleanupResult struct {
	CleanedRecords int       `json:"cleaned_records"`
	CutoffDate     time.Time `json:"cutoff_date"`
}

// Cleanup removes records older than cutoff across all sessions.
func (m *Manager) Cleanup(ctx context.Context, cutoff time.Time) (*CleanupResult, error) {
	n, err := m.store.Cleanup(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("cleanup: %w", err)
	}
	return &CleanupResult{CleanedRecords: n, CutoffDate: cutoff}, nil
}
