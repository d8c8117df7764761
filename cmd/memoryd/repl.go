package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fyrsmithlabs/memoryd/internal/config"
	"github.com/fyrsmithlabs/memoryd/internal/ltm"
	"github.com/fyrsmithlabs/memoryd/internal/memory"
	"github.com/fyrsmithlabs/memoryd/internal/orchestrator"
)

const replHelp = `commands:
  /context <query>              retrieve a context bundle
  /remember <category> <text>   ingest a long-term fact
  /save                         write the tier snapshot
  /load                         restore the tier snapshot
  /stats                        show tier sizes
  /help                         this message
  /quit                         exit
anything else is added as a user turn`

// repl runs the line-oriented development shell.
func repl(ctx context.Context, e *engine, cfg *config.Config, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, "memoryd dev shell, /help for commands")
	scanner := bufio.NewScanner(in)

	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case line == "/quit" || line == "/exit":
			return nil
		case line == "/help":
			fmt.Fprintln(out, replHelp)
		case line == "/stats":
			stmLen, mtmLen, since := e.orch.Stats()
			fmt.Fprintf(out, "stm=%d mtm=%d turns_since_summary=%d\n", stmLen, mtmLen, since)
		case line == "/save":
			if cfg.Snapshot.Path == "" {
				fmt.Fprintln(out, "no snapshot.path configured")
				continue
			}
			if err := e.orch.SaveSnapshot(cfg.Snapshot.Path); err != nil {
				fmt.Fprintf(out, "save failed: %v\n", err)
				continue
			}
			fmt.Fprintf(out, "saved %s\n", cfg.Snapshot.Path)
		case line == "/load":
			if cfg.Snapshot.Path == "" {
				fmt.Fprintln(out, "no snapshot.path configured")
				continue
			}
			ok, err := e.orch.LoadSnapshot(cfg.Snapshot.Path)
			if !ok {
				fmt.Fprintf(out, "load failed, state unchanged: %v\n", err)
				continue
			}
			fmt.Fprintf(out, "loaded %s\n", cfg.Snapshot.Path)
		case strings.HasPrefix(line, "/context "):
			query := strings.TrimSpace(strings.TrimPrefix(line, "/context "))
			bundle, err := e.orch.GetContext(ctx, query, orchestrator.ContextOptions{})
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				continue
			}
			printBundle(out, bundle)
		case strings.HasPrefix(line, "/remember "):
			rest := strings.TrimSpace(strings.TrimPrefix(line, "/remember "))
			category, text, found := strings.Cut(rest, " ")
			if !found {
				fmt.Fprintln(out, "usage: /remember <category> <text>")
				continue
			}
			result, err := e.hybrid.Add(ctx, text, ltm.Metadata{Category: category})
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				continue
			}
			fmt.Fprintf(out, "stored vector=%s entity=%s\n", result.VectorID, result.GraphEntityID)
		case strings.HasPrefix(line, "/"):
			fmt.Fprintf(out, "unknown command %q, try /help\n", line)
		default:
			turn, err := e.orch.AddMessage(ctx, memory.RoleUser, line)
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				continue
			}
			fmt.Fprintf(out, "added turn %s (intent=%s)\n", turn.ID, turn.Intent)
		}
	}
}

func printBundle(out io.Writer, bundle orchestrator.Bundle) {
	fmt.Fprintf(out, "intent=%s keywords=%v embedding=%v fallback=%v\n",
		bundle.Query.Intent, bundle.Query.Keywords, bundle.Query.EmbeddingPresent,
		bundle.Query.EmbeddingFallback)
	fmt.Fprintf(out, "counts stm=%d mtm=%d ltm=%d | tokens %d/%d (%.0f%%) via %s\n",
		bundle.Counts.STM, bundle.Counts.MTM, bundle.Counts.LTM,
		bundle.Compression.TotalTokens, bundle.Compression.OriginalTokens,
		bundle.Compression.CompressionRatio*100, bundle.Compression.Strategy)
	if len(bundle.Timeouts) > 0 {
		fmt.Fprintf(out, "timeouts: %v\n", bundle.Timeouts)
	}
	if len(bundle.Errors) > 0 {
		fmt.Fprintf(out, "errors: %v\n", bundle.Errors)
	}
	for i, item := range bundle.Items {
		marker := ""
		if item.Truncated {
			marker = " [truncated]"
		}
		fmt.Fprintf(out, "%2d. [%s %.3f]%s %s\n", i+1, item.Source, item.FinalScore, marker, item.Content)
	}
}
