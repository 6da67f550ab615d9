package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"mission-control/backend/internal/adapter"
	"mission-control/backend/internal/graph"
	"mission-control/backend/internal/memgraph"
	"mission-control/backend/internal/session"
	"mission-control/backend/pkg/config"
	"mission-control/backend/pkg/logger"
)

const usage = `usage: graphctl [-url URL] [-token TOKEN] <command> [args]

commands:
  status                 load the graph and print the session status
  view [-filter QUERY]   print the rendered view, QUERY like "layer=forensics&q=vim"
  diagnostics            print conflicts, duplicates and merge candidates
  inspect <id>           print one node with its insight and incident edges
  history [-limit N]     list saved graph versions
`

func main() {
	if err := logger.Init("production"); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		logger.Get().Error("graphctl failed", zap.Error(err))
		os.Exit(1)
	}
}

// run executes one graphctl command and writes its JSON result to out
func run(ctx context.Context, args []string, out io.Writer) error {
	defaultURL, defaultToken, defaultTimeout := "http://localhost:8080/api", "", 15*time.Second
	if cfg, err := config.Load(); err == nil {
		defaultURL, defaultToken, defaultTimeout = cfg.GatewayURL, cfg.GatewayToken, cfg.GatewayTimeout
	}

	fs := flag.NewFlagSet("graphctl", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	baseURL := fs.String("url", defaultURL, "graph API base URL")
	token := fs.String("token", defaultToken, "bearer token")
	timeout := fs.Duration("timeout", defaultTimeout, "per-request timeout")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w\n%s", err, usage)
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("missing command\n%s", usage)
	}

	client := adapter.NewGraphClient(adapter.ClientConfig{
		BaseURL: *baseURL,
		Token:   *token,
		Timeout: *timeout,
	}, nil)

	command, rest := fs.Arg(0), fs.Args()[1:]
	switch command {
	case "history":
		return history(ctx, client, rest, out)
	case "status", "view", "diagnostics", "inspect":
	default:
		return fmt.Errorf("unknown command %q\n%s", command, usage)
	}

	editor := session.NewEditor(client, memgraph.NewPipeline(memgraph.AutogLayouter{}, nil))
	if err := editor.Load(ctx); err != nil {
		return err
	}

	switch command {
	case "status":
		return printJSON(out, editor.Status())

	case "view":
		sub := flag.NewFlagSet("view", flag.ContinueOnError)
		sub.SetOutput(io.Discard)
		filter := sub.String("filter", "", "filter as a URL query string")
		if err := sub.Parse(rest); err != nil {
			return err
		}
		values, err := url.ParseQuery(*filter)
		if err != nil {
			return fmt.Errorf("invalid filter: %w", err)
		}
		cfg, err := memgraph.FilterFromQuery(values)
		if err != nil {
			return err
		}
		view, err := editor.View(cfg)
		if err != nil {
			return err
		}
		return printJSON(out, view)

	case "diagnostics":
		diag, err := editor.Diagnostics()
		if err != nil {
			return err
		}
		return printJSON(out, diag)

	case "inspect":
		if len(rest) != 1 {
			return fmt.Errorf("inspect takes exactly one node id\n%s", usage)
		}
		node, err := editor.Inspect(rest[0])
		if err != nil {
			return err
		}
		return printJSON(out, node)
	}
	return nil
}

func history(ctx context.Context, client *adapter.GraphClient, args []string, out io.Writer) error {
	sub := flag.NewFlagSet("history", flag.ContinueOnError)
	sub.SetOutput(io.Discard)
	limit := sub.Int("limit", 20, "number of versions")
	if err := sub.Parse(args); err != nil {
		return err
	}

	var resp struct {
		History []graph.HistoryEntry `json:"history"`
	}
	if err := client.Get(ctx, "history", "/graph/history?limit="+strconv.Itoa(*limit), &resp); err != nil {
		return err
	}
	return printJSON(out, resp.History)
}

func printJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
