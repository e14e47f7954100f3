package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/kkkqkx123/open-agent-sub019/record"
	"github.com/kkkqkx123/open-agent-sub019/storage/adapters/file"
)

func TestOpenDefaultsToFileBackend(t *testing.T) {
	st, err := Open(context.Background(), &Config{BaseDir: t.TempDir()}, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	if _, ok := st.(*file.Store); !ok {
		t.Fatalf("zero backend should open the file store, got %T", st)
	}
}

func TestOpenSqliteBackend(t *testing.T) {
	ctx := context.Background()
	st, err := Open(ctx, &Config{Backend: "sqlite", DSN: ":memory:"}, nil)
	if err != nil {
		t.Fatalf("Open sqlite: %v", err)
	}
	defer st.Close()

	msg, err := record.NewMessage("s1", record.RoleUser, "hello")
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	if !st.Append(ctx, msg) {
		t.Fatalf("Append returned false")
	}
	rows, err := st.ReadAll(ctx, "s1")
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	if _, err := Open(context.Background(), &Config{Backend: "cassandra"}, nil); err == nil {
		t.Fatalf("unknown backend should fail")
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.yaml")
	content := "backend: sqlite\ndsn: telemetry.db\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Backend != "sqlite" || cfg.DSN != "telemetry.db" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig on missing file: %v", err)
	}
	if cfg.Backend != "" {
		t.Fatalf("missing file should yield the zero config, got %+v", cfg)
	}
}

func TestLoadConfigRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("backend: [unclosed"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("malformed yaml should fail")
	}
}
