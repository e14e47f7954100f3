package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kkkqkx123/open-agent-sub019/storage/adapters/file"
	"github.com/kkkqkx123/open-agent-sub019/storage/adapters/sqlite"
)

// DefaultBaseDir is where the file backend writes when the config
// does not name a directory.
const DefaultBaseDir = "history"

// Open builds the configured backend. The zero config yields a file
// store under DefaultBaseDir.
func Open(ctx context.Context, cfg *Config, log *slog.Logger) (Store, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	backend := strings.ToLower(cfg.Backend)
	if backend == "" {
		backend = "file"
	}
	switch backend {
	case "file", "jsonl":
		base := cfg.BaseDir
		if base == "" {
			base = DefaultBaseDir
		}
		return file.New(base, log), nil
	case "sqlite", "sqlite3":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = "history.db"
		}
		st, err := sqlite.New(dsn, log)
		if err != nil {
			return nil, fmt.Errorf("open storage: %w", err)
		}
		if err := st.Migrate(ctx); err != nil {
			st.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown history backend %q (supported: file, sqlite)", backend)
	}
}
