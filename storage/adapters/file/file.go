// Package file implements history storage as append-only JSONL files
// partitioned by month under a base directory.
package file

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kkkqkx123/open-agent-sub019/record"
)

const lineSuffix = ".jsonl"

// Store appends one JSON object per line to
// <base>/sessions/<YYYYMM>/<session_id>.jsonl, where the partition
// month comes from the record's own timestamp. A session that keeps
// writing across a month boundary therefore spans several partition
// files; reads concatenate them in chronological order.
type Store struct {
	base string
	log  *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New opens a file-backed store rooted at base. The directory tree is
// created lazily on first append.
func New(base string, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		base:  base,
		log:   log,
		locks: make(map[string]*sync.Mutex),
	}
}

// Append serializes rec to one line of its partition file. It reports
// failures through the logger and returns false rather than erroring:
// a telemetry write must never fail its caller.
func (s *Store) Append(ctx context.Context, rec record.Record) bool {
	sessionID := rec.Session()
	if !safeSessionID(sessionID) {
		s.log.Error("history append: unusable session id", "session_id", sessionID)
		return false
	}
	data, err := json.Marshal(rec)
	if err != nil {
		s.log.Error("history append: encode record",
			"record_id", rec.ID(), "record_type", rec.Type(), "error", err)
		return false
	}

	path := s.sessionPath(sessionID, rec.Time())

	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		s.log.Error("history append: create partition dir", "path", path, "error", err)
		return false
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		s.log.Error("history append: open log", "path", path, "error", err)
		return false
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		s.log.Error("history append: write line", "path", path, "error", err)
		return false
	}
	return true
}

// ReadAll returns every parseable line of the session across all its
// partition files, oldest partition first. Lines that fail to decode
// are skipped so a corrupt tail never hides earlier records.
func (s *Store) ReadAll(ctx context.Context, sessionID string) ([]map[string]any, error) {
	if !safeSessionID(sessionID) {
		return nil, nil
	}
	months, err := s.partitions()
	if err != nil {
		return nil, err
	}

	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	var out []map[string]any
	for _, month := range months {
		path := filepath.Join(s.sessionsDir(), month, sessionID+lineSuffix)
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read history %s: %w", path, err)
		}
		for i, line := range splitLines(data) {
			var m map[string]any
			if err := json.Unmarshal(line, &m); err != nil {
				s.log.Warn("history read: skipping corrupt line",
					"path", path, "line", i+1, "error", err)
				continue
			}
			out = append(out, m)
		}
	}
	return out, nil
}

// Sessions lists every session id with at least one partition file.
func (s *Store) Sessions(ctx context.Context) ([]string, error) {
	months, err := s.partitions()
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var ids []string
	for _, month := range months {
		entries, err := os.ReadDir(filepath.Join(s.sessionsDir(), month))
		if err != nil {
			return nil, fmt.Errorf("list partition %s: %w", month, err)
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), lineSuffix) {
				continue
			}
			id := strings.TrimSuffix(e.Name(), lineSuffix)
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Cleanup rewrites every session file keeping only lines timestamped
// at or after cutoff. Lines without a readable timestamp are kept.
// Files left empty are deleted, as are partition directories left
// empty. Returns the number of removed lines.
func (s *Store) Cleanup(ctx context.Context, cutoff time.Time) (int, error) {
	months, err := s.partitions()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, month := range months {
		dir := filepath.Join(s.sessionsDir(), month)
		entries, err := os.ReadDir(dir)
		if err != nil {
			return removed, fmt.Errorf("list partition %s: %w", month, err)
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), lineSuffix) {
				continue
			}
			if err := ctx.Err(); err != nil {
				return removed, err
			}
			id := strings.TrimSuffix(e.Name(), lineSuffix)
			n, err := s.cleanupFile(filepath.Join(dir, e.Name()), id, cutoff)
			if err != nil {
				return removed, err
			}
			removed += n
		}
		if rest, err := os.ReadDir(dir); err == nil && len(rest) == 0 {
			os.Remove(dir)
		}
	}
	return removed, nil
}

func (s *Store) cleanupFile(path, sessionID string, cutoff time.Time) (int, error) {
	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read history %s: %w", path, err)
	}

	var kept [][]byte
	removed := 0
	for _, line := range splitLines(data) {
		var head struct {
			Timestamp time.Time `json:"timestamp"`
		}
		if err := json.Unmarshal(line, &head); err != nil || head.Timestamp.IsZero() {
			// Undatable lines are kept rather than destroyed.
			kept = append(kept, line)
			continue
		}
		if head.Timestamp.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, line)
	}
	if removed == 0 {
		return 0, nil
	}
	if len(kept) == 0 {
		if err := os.Remove(path); err != nil {
			return 0, fmt.Errorf("remove history %s: %w", path, err)
		}
		return removed, nil
	}

	buf := append(bytes.Join(kept, []byte("\n")), '\n')
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf, 0o644); err != nil {
		return 0, fmt.Errorf("rewrite history %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("replace history %s: %w", path, err)
	}
	return removed, nil
}

func (s *Store) Close() error { return nil }

// sessionLock serializes writers and the cleanup rewrite per session.
func (s *Store) sessionLock(sessionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[sessionID] = lock
	}
	return lock
}

func (s *Store) sessionsDir() string {
	return filepath.Join(s.base, "sessions")
}

func (s *Store) sessionPath(sessionID string, ts time.Time) string {
	return filepath.Join(s.sessionsDir(), ts.UTC().Format("200601"), sessionID+lineSuffix)
}

// partitions lists month directories in ascending name order, which
// for YYYYMM names is chronological order.
func (s *Store) partitions() ([]string, error) {
	entries, err := os.ReadDir(s.sessionsDir())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}
	var months []string
	for _, e := range entries {
		if e.IsDir() {
			months = append(months, e.Name())
		}
	}
	return months, nil
}

func splitLines(data []byte) [][]byte {
	var lines [][]byte
	for _, line := range bytes.Split(data, []byte("\n")) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// safeSessionID rejects ids that would escape the base directory when
// used as a file name.
func safeSessionID(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	return !strings.ContainsAny(id, "/\\")
}
