// Package cmd provides the historyctl CLI command tree.
package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kkkqkx123/open-agent-sub019/cli/repl"
	"github.com/kkkqkx123/open-agent-sub019/history"
	"github.com/kkkqkx123/open-agent-sub019/record"
	"github.com/kkkqkx123/open-agent-sub019/storage"
)

// Execute runs the root CLI command.
func Execute() error {
	if len(os.Args) < 2 {
		return printUsage()
	}
	switch os.Args[1] {
	case "repl", "interactive":
		return runREPL()
	case "sessions":
		return runSessions()
	case "query":
		return runQuery()
	case "stats":
		return runStats()
	case "export":
		return runExport()
	case "cleanup":
		return runCleanup()
	case "storage":
		return runStorage()
	case "config":
		return runConfig()
	case "version":
		fmt.Println("historyctl v0.1.0")
		return nil
	case "help", "--help", "-h":
		return printUsage()
	default:
		return fmt.Errorf("unknown command: %s\nRun 'historyctl help' for usage.", os.Args[1])
	}
}

func printUsage() error {
	fmt.Println(`historyctl: agent history inspection

Usage:
  historyctl <command> [subcommand] [options]

Commands:
  repl                      Start the interactive history browser
  sessions                  List recorded sessions
  query <session> [opts]    Show a session's records
                            (--type t1,t2 --since TIME --until TIME
                             --limit N --offset N)
  stats <session> [aspect]  Session statistics (tokens|costs|llm|all)
  export <session> [fmt]    Write a session to stdout (jsonl|json)
  cleanup <days>            Delete records older than <days> days
  storage [init|status]     Storage backend operations
  config show               Show resolved configuration
  version                   Print version
  help                      Show this help

Times are RFC3339 or YYYY-MM-DD.

Environment:
  HISTORY_CONFIG    Path to a YAML storage config file
  HISTORY_BACKEND   Storage backend: file (default) or sqlite
  HISTORY_DIR       Base directory for the file backend
  HISTORY_DSN       DSN for the sqlite backend`)
	return nil
}

// loadStorageConfig resolves the storage configuration from the config
// file when HISTORY_CONFIG is set, else from individual env vars.
func loadStorageConfig() (*storage.Config, error) {
	if path := os.Getenv("HISTORY_CONFIG"); path != "" {
		return storage.LoadConfig(path)
	}
	return &storage.Config{
		Backend: os.Getenv("HISTORY_BACKEND"),
		BaseDir: os.Getenv("HISTORY_DIR"),
		DSN:     os.Getenv("HISTORY_DSN"),
	}, nil
}

func openStore() (storage.Store, *storage.Config, error) {
	cfg, err := loadStorageConfig()
	if err != nil {
		return nil, nil, err
	}
	store, err := storage.Open(context.Background(), cfg, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("open storage: %w", err)
	}
	return store, cfg, nil
}

func runREPL() error {
	store, _, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	r := repl.New(history.NewManager(store, nil))
	return r.Start()
}

// --- sessions ---

func runSessions() error {
	store, _, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()
	ctx := context.Background()

	mgr := history.NewManager(store, nil)
	sessions, err := mgr.Sessions(ctx)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions recorded.")
		return nil
	}
	fmt.Printf("%-40s %s\n", "SESSION", "RECORDS")
	fmt.Println(strings.Repeat("-", 50))
	for _, id := range sessions {
		_, total, err := mgr.Query(ctx, id, history.Filter{Limit: 1})
		if err != nil {
			return fmt.Errorf("count %s: %w", id, err)
		}
		fmt.Printf("%-40s %d\n", id, total)
	}
	return nil
}

// --- query ---

func runQuery() error {
	if len(os.Args) < 3 {
		return fmt.Errorf("usage: historyctl query <session_id> [options]")
	}
	sessionID := os.Args[2]

	fs := flag.NewFlagSet("query", flag.ContinueOnError)
	types := fs.String("type", "", "comma-separated record types")
	since := fs.String("since", "", "inclusive lower time bound")
	until := fs.String("until", "", "inclusive upper time bound")
	limit := fs.Int("limit", 0, "page size (0 = everything)")
	offset := fs.Int("offset", 0, "records to skip")
	if err := fs.Parse(os.Args[3:]); err != nil {
		return err
	}

	f := history.Filter{Limit: *limit, Offset: *offset}
	var err error
	if f.Start, err = parseTime(*since); err != nil {
		return err
	}
	if f.End, err = parseTime(*until); err != nil {
		return err
	}
	for _, t := range strings.Split(*types, ",") {
		if t = strings.TrimSpace(t); t != "" {
			f.Types = append(f.Types, record.Type(t))
		}
	}

	store, _, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()
	ctx := context.Background()

	mgr := history.NewManager(store, nil)
	records, total, err := mgr.Query(ctx, sessionID, f)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}
	if total == 0 {
		fmt.Printf("No records for session %s.\n", sessionID)
		return nil
	}
	fmt.Printf("%-25s %-13s %s\n", "TIMESTAMP", "TYPE", "SUMMARY")
	fmt.Println(strings.Repeat("-", 80))
	for _, rec := range records {
		fmt.Printf("%-25s %-13s %s\n",
			rec.Time().Format(time.RFC3339), rec.Type(), recordSummary(rec))
	}
	fmt.Printf("\n%d of %d records\n", len(records), total)
	return nil
}

// recordSummary renders the variant-specific payload as one short column.
func recordSummary(rec record.Record) string {
	switch r := rec.(type) {
	case *record.Message:
		return fmt.Sprintf("[%s] %s", r.MessageType, truncate(r.Content, 50))
	case *record.ToolCall:
		return fmt.Sprintf("%s(...)", r.ToolName)
	case *record.LLMRequest:
		return fmt.Sprintf("%s/%s est=%d", r.Provider, r.Model, r.EstimatedTokens)
	case *record.LLMResponse:
		return fmt.Sprintf("%s in %.2fs: %s", r.FinishReason, r.ResponseTime, truncate(r.Content, 40))
	case *record.TokenUsage:
		return fmt.Sprintf("%d+%d=%d (%s)", r.PromptTokens, r.CompletionTokens, r.TotalTokens, r.Source)
	case *record.Cost:
		return fmt.Sprintf("%.6f %s", r.TotalCost, r.Currency)
	default:
		return string(rec.Type())
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q (want RFC3339 or YYYY-MM-DD)", s)
}

// --- stats ---

func runStats() error {
	if len(os.Args) < 3 {
		return fmt.Errorf("usage: historyctl stats <session_id> [tokens|costs|llm|all]")
	}
	sessionID := os.Args[2]
	aspect := "all"
	if len(os.Args) > 3 {
		aspect = os.Args[3]
	}

	store, _, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()
	ctx := context.Background()
	mgr := history.NewManager(store, nil)

	switch aspect {
	case "tokens":
		return printTokenStats(ctx, mgr, sessionID)
	case "costs":
		return printCostStats(ctx, mgr, sessionID)
	case "llm":
		return printLLMStats(ctx, mgr, sessionID)
	case "all":
		if err := printTokenStats(ctx, mgr, sessionID); err != nil {
			return err
		}
		if err := printCostStats(ctx, mgr, sessionID); err != nil {
			return err
		}
		return printLLMStats(ctx, mgr, sessionID)
	default:
		return fmt.Errorf("unknown stats aspect: %s\nUsage: historyctl stats <session_id> [tokens|costs|llm|all]", aspect)
	}
}

func printTokenStats(ctx context.Context, mgr *history.Manager, sessionID string) error {
	s, err := mgr.TokenStatistics(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("token statistics: %w", err)
	}
	fmt.Println("Tokens:")
	fmt.Printf("  prompt:      %d\n", s.TotalPromptTokens)
	fmt.Printf("  completion:  %d\n", s.TotalCompletionTokens)
	fmt.Printf("  total:       %d\n", s.TotalTokens)
	fmt.Printf("  records:     %d\n", s.RecordCount)
	fmt.Printf("  confidence:  %.2f\n", s.AverageConfidence)
	fmt.Printf("  models:      %s\n", joinOrNone(s.Models))
	return nil
}

func printCostStats(ctx context.Context, mgr *history.Manager, sessionID string) error {
	s, err := mgr.CostStatistics(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("cost statistics: %w", err)
	}
	fmt.Println("Costs:")
	fmt.Printf("  prompt:      %.6f %s\n", s.TotalPromptCost, s.Currency)
	fmt.Printf("  completion:  %.6f %s\n", s.TotalCompletionCost, s.Currency)
	fmt.Printf("  total:       %.6f %s\n", s.TotalCost, s.Currency)
	fmt.Printf("  records:     %d\n", s.RecordCount)
	fmt.Printf("  models:      %s\n", joinOrNone(s.Models))
	return nil
}

func printLLMStats(ctx context.Context, mgr *history.Manager, sessionID string) error {
	s, err := mgr.LLMStatistics(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("llm statistics: %w", err)
	}
	fmt.Println("LLM calls:")
	fmt.Printf("  requests:    %d\n", s.RequestCount)
	fmt.Printf("  responses:   %d\n", s.ResponseCount)
	fmt.Printf("  errors:      %d\n", s.ErrorCount)
	fmt.Printf("  success:     %.1f%%\n", s.SuccessRate*100)
	fmt.Printf("  avg latency: %.2fs\n", s.AverageResponseTime)
	fmt.Printf("  models:      %s\n", joinOrNone(s.Models))
	return nil
}

func joinOrNone(models []string) string {
	if len(models) == 0 {
		return "(none)"
	}
	return strings.Join(models, ", ")
}

// --- export ---

func runExport() error {
	if len(os.Args) < 3 {
		return fmt.Errorf("usage: historyctl export <session_id> [jsonl|json]")
	}
	sessionID := os.Args[2]
	format := history.FormatJSONL
	if len(os.Args) > 3 {
		format = os.Args[3]
	}

	store, _, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	mgr := history.NewManager(store, nil)
	if _, err := mgr.Export(context.Background(), os.Stdout, sessionID, format); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	return nil
}

// --- cleanup ---

func runCleanup() error {
	if len(os.Args) < 3 {
		return fmt.Errorf("usage: historyctl cleanup <days>")
	}
	days, err := strconv.Atoi(os.Args[2])
	if err != nil || days < 0 {
		return fmt.Errorf("invalid day count: %s", os.Args[2])
	}

	store, _, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	mgr := history.NewManager(store, nil)
	result, err := mgr.Cleanup(context.Background(), time.Now().UTC().AddDate(0, 0, -days))
	if err != nil {
		return fmt.Errorf("cleanup: %w", err)
	}
	fmt.Printf("Removed %d records older than %s.\n",
		result.CleanedRecords, result.CutoffDate.Format(time.RFC3339))
	return nil
}

// --- storage subcommands ---

func runStorage() error {
	sub := "status"
	if len(os.Args) > 2 {
		sub = os.Args[2]
	}
	switch sub {
	case "init":
		store, _, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()
		fmt.Println("Storage initialized.")
		return nil
	case "status":
		store, cfg, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		backend := cfg.Backend
		if backend == "" {
			backend = "file"
		}
		fmt.Printf("Backend: %s\n", backend)
		switch backend {
		case "file", "jsonl":
			dir := cfg.BaseDir
			if dir == "" {
				dir = storage.DefaultBaseDir
			}
			fmt.Printf("Base dir: %s\n", dir)
			if size, err := dirSize(dir); err == nil {
				fmt.Printf("Size: %s\n", humanizeBytes(size))
			}
		default:
			dsn := cfg.DSN
			fmt.Printf("DSN: %s\n", dsn)
			if info, err := os.Stat(dsn); err == nil {
				fmt.Printf("Size: %s\n", humanizeBytes(info.Size()))
				fmt.Printf("Modified: %s\n", info.ModTime().Format(time.RFC3339))
			}
		}

		sessions, err := store.Sessions(context.Background())
		if err != nil {
			return fmt.Errorf("list sessions: %w", err)
		}
		fmt.Printf("Sessions: %d\n", len(sessions))
		return nil
	default:
		return fmt.Errorf("unknown storage subcommand: %s\nUsage: historyctl storage [init|status]", sub)
	}
}

func dirSize(root string) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(_ string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	return total, err
}

func humanizeBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}

// --- config subcommands ---

func runConfig() error {
	sub := "show"
	if len(os.Args) > 2 {
		sub = os.Args[2]
	}
	switch sub {
	case "show":
		fmt.Println("historyctl configuration:")
		fmt.Printf("  HISTORY_CONFIG:   %s\n", envOrDefault("HISTORY_CONFIG", "(not set)"))
		fmt.Printf("  HISTORY_BACKEND:  %s\n", envOrDefault("HISTORY_BACKEND", "file"))
		fmt.Printf("  HISTORY_DIR:      %s\n", envOrDefault("HISTORY_DIR", storage.DefaultBaseDir))
		fmt.Printf("  HISTORY_DSN:      %s\n", maskEnv("HISTORY_DSN"))
		return nil
	default:
		return fmt.Errorf("unknown config subcommand: %s\nUsage: historyctl config show", sub)
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func maskEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		return "(not set)"
	}
	if len(v) <= 8 {
		return "****"
	}
	return v[:4] + "..." + v[len(v)-4:]
}
