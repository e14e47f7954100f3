// Package repl provides an interactive browser over recorded history.
package repl

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/kkkqkx123/open-agent-sub019/history"
	"github.com/kkkqkx123/open-agent-sub019/record"
)

// REPL is the interactive command loop.
type REPL struct {
	mgr      *history.Manager
	session  string
	commands map[string]Command
	ctx      context.Context
	cancel   context.CancelFunc
}

// Command represents a slash command.
type Command struct {
	Name        string
	Description string
	Handler     func(args string) error
}

// New creates a new REPL with built-in commands.
func New(mgr *history.Manager) *REPL {
	ctx, cancel := context.WithCancel(context.Background())
	r := &REPL{
		mgr:      mgr,
		commands: make(map[string]Command),
		ctx:      ctx,
		cancel:   cancel,
	}
	r.registerBuiltins()
	return r
}

func (r *REPL) registerBuiltins() {
	r.Register(Command{
		Name: "/help", Description: "Show available commands",
		Handler: func(_ string) error {
			fmt.Println("Available commands:")
			for _, c := range r.commands {
				fmt.Printf("  %-20s %s\n", c.Name, c.Description)
			}
			return nil
		},
	})
	r.Register(Command{
		Name: "/sessions", Description: "List recorded sessions",
		Handler: func(_ string) error {
			sessions, err := r.mgr.Sessions(r.ctx)
			if err != nil {
				return err
			}
			if len(sessions) == 0 {
				fmt.Println("No sessions recorded.")
				return nil
			}
			for _, id := range sessions {
				marker := " "
				if id == r.session {
					marker = "*"
				}
				fmt.Printf("  %s %s\n", marker, id)
			}
			return nil
		},
	})
	r.Register(Command{
		Name: "/use", Description: "Select the session to browse",
		Handler: func(args string) error {
			id := strings.TrimSpace(args)
			if id == "" {
				return fmt.Errorf("usage: /use <session_id>")
			}
			r.session = id
			fmt.Printf("Browsing session %s\n", id)
			return nil
		},
	})
	r.Register(Command{
		Name: "/records", Description: "Show records of the selected session (optional count)",
		Handler: func(args string) error {
			if r.session == "" {
				return fmt.Errorf("no session selected; try /use <session_id>")
			}
			limit := 20
			if s := strings.TrimSpace(args); s != "" {
				n, err := strconv.Atoi(s)
				if err != nil || n <= 0 {
					return fmt.Errorf("invalid count: %s", s)
				}
				limit = n
			}
			records, total, err := r.mgr.Query(r.ctx, r.session, history.Filter{Limit: limit})
			if err != nil {
				return err
			}
			for _, rec := range records {
				fmt.Printf("  [%s] %-13s %s\n",
					rec.Time().Format("2006-01-02 15:04:05"), rec.Type(), summarize(rec))
			}
			fmt.Printf("  (%d of %d records)\n", len(records), total)
			return nil
		},
	})
	r.Register(Command{
		Name: "/stats", Description: "Token, cost, and call statistics for the selected session",
		Handler: func(_ string) error {
			if r.session == "" {
				return fmt.Errorf("no session selected; try /use <session_id>")
			}
			tokens, err := r.mgr.TokenStatistics(r.ctx, r.session)
			if err != nil {
				return err
			}
			costs, err := r.mgr.CostStatistics(r.ctx, r.session)
			if err != nil {
				return err
			}
			calls, err := r.mgr.LLMStatistics(r.ctx, r.session)
			if err != nil {
				return err
			}
			fmt.Printf("  tokens: %d prompt / %d completion / %d total\n",
				tokens.TotalPromptTokens, tokens.TotalCompletionTokens, tokens.TotalTokens)
			fmt.Printf("  cost:   %.6f %s\n", costs.TotalCost, costs.Currency)
			fmt.Printf("  calls:  %d requests, %d responses, %.1f%% success\n",
				calls.RequestCount, calls.ResponseCount, calls.SuccessRate*100)
			return nil
		},
	})
	r.Register(Command{
		Name: "/export", Description: "Export the selected session (jsonl or json)",
		Handler: func(args string) error {
			if r.session == "" {
				return fmt.Errorf("no session selected; try /use <session_id>")
			}
			format := strings.TrimSpace(args)
			if format == "" {
				format = history.FormatJSONL
			}
			_, err := r.mgr.Export(r.ctx, os.Stdout, r.session, format)
			return err
		},
	})
	r.Register(Command{
		Name: "/quit", Description: "Exit the REPL",
		Handler: func(_ string) error {
			r.cancel()
			return nil
		},
	})
}

func summarize(rec record.Record) string {
	switch v := rec.(type) {
	case *record.Message:
		return fmt.Sprintf("[%s] %s", v.MessageType, clip(v.Content))
	case *record.ToolCall:
		return v.ToolName
	case *record.LLMRequest:
		return v.Provider + "/" + v.Model
	case *record.LLMResponse:
		return fmt.Sprintf("%s: %s", v.FinishReason, clip(v.Content))
	case *record.TokenUsage:
		return fmt.Sprintf("%d tokens (%s)", v.TotalTokens, v.Source)
	case *record.Cost:
		return fmt.Sprintf("%.6f %s", v.TotalCost, v.Currency)
	default:
		return string(rec.Type())
	}
}

func clip(s string) string {
	if len(s) <= 48 {
		return s
	}
	return s[:45] + "..."
}

// Register adds a slash command.
func (r *REPL) Register(c Command) {
	r.commands[c.Name] = c
}

// Start begins the interactive loop.
func (r *REPL) Start() error {
	fmt.Println("historyctl REPL: type /help for commands, /quit to exit")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("history> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		select {
		case <-r.ctx.Done():
			fmt.Println("Goodbye.")
			return nil
		default:
		}

		if strings.HasPrefix(line, "/") {
			parts := strings.SplitN(line, " ", 2)
			cmdName := parts[0]
			args := ""
			if len(parts) > 1 {
				args = parts[1]
			}
			if cmd, ok := r.commands[cmdName]; ok {
				if err := cmd.Handler(args); err != nil {
					fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				}
			} else {
				fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmdName)
			}
			select {
			case <-r.ctx.Done():
				fmt.Println("Goodbye.")
				return nil
			default:
			}
		} else {
			fmt.Println("Commands start with '/'; try /help.")
		}
	}
	return scanner.Err()
}
