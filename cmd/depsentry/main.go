package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"depsentry/pkg/audit"
	"depsentry/pkg/config"
	"depsentry/pkg/diag"
	"depsentry/pkg/graph"
	"depsentry/pkg/logging"
	"depsentry/pkg/output"
	"depsentry/pkg/watcher"
	"depsentry/pkg/web"
)

func main() {
	flags := pflag.NewFlagSet("depsentry", pflag.ExitOnError)
	flags.String("metadata", "metadata.json", "Path to the resolved-metadata JSON document")
	flags.String("policy", "", "Path to the policy TOML file")
	flags.String("why", "", "Print the provenance tree of a crate (name or name@constraint) instead of auditing")
	flags.Bool("watch", false, "Re-run the audit when the input files change")
	flags.Bool("web", false, "Serve audit results over HTTP")
	flags.Int("port", 8080, "Port for the web server (only used with --web)")
	flags.String("verbosity", "", "Log level: debug, info, warn, error")
	flags.Bool("json-logs", false, "Emit logs as JSON")
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Load(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	if cfg.JSONLogs {
		logging.SetJSONOutput(cfg.LogLevel())
	} else {
		logging.SetLevel(cfg.LogLevel())
	}

	if cfg.Why != "" {
		os.Exit(runWhy(cfg))
	}

	if cfg.WebMode || cfg.Watch {
		runServe(cfg)
		return
	}

	os.Exit(runOnce(cfg))
}

// runOnce audits a single time and reports through the exit code.
func runOnce(cfg *config.Config) int {
	res, err := audit.Run(cfg.Metadata, cfg.Policy)
	if err != nil {
		logging.Error("audit failed to run", "error", err)
		return 2
	}

	printResult(res)
	if res.Failed() {
		return 1
	}
	return 0
}

func printResult(res *audit.Result) {
	if len(res.ConfigDiags) > 0 {
		wrapped := make([]diag.Diag, len(res.ConfigDiags))
		for i, d := range res.ConfigDiags {
			wrapped[i] = diag.NewDiag(d)
		}
		output.PrintDiagnostics(os.Stdout, res.Files, wrapped)
		output.PrintSummary(os.Stdout, wrapped)
		return
	}

	output.PrintDiagnostics(os.Stdout, res.Files, res.Findings)
	for id, tree := range res.Trees {
		output.PrintTree(os.Stdout, id, tree)
		fmt.Println()
	}
	output.PrintSummary(os.Stdout, res.Findings)
}

// runWhy prints a single provenance tree.
func runWhy(cfg *config.Config) int {
	g, err := graph.LoadFile(cfg.Metadata)
	if err != nil {
		logging.Error("failed to load metadata", "error", err)
		return 2
	}

	tree, err := audit.Why(g, cfg.Why)
	if err != nil {
		if errors.Is(err, graph.ErrCrateNotFound) {
			logging.Error("crate not found in graph", "crate", cfg.Why)
			return 1
		}
		logging.Error("failed to render tree", "error", err)
		return 2
	}

	output.PrintTree(os.Stdout, cfg.Why, tree)
	return 0
}

// runServe runs the audit continuously: optionally serving results over
// HTTP, optionally re-running on input file changes.
func runServe(cfg *config.Config) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var server *web.Server
	if cfg.WebMode {
		server = web.NewServer()
		go func() {
			if err := server.Start(cfg.Port); err != nil {
				logging.Fatal("web server failed", "error", err)
			}
		}()
	}

	rerun := func() {
		if server != nil {
			server.PublishStatus("loading", "re-running audit")
		}

		res, err := audit.Run(cfg.Metadata, cfg.Policy)
		if err != nil {
			logging.Error("audit failed to run", "error", err)
			if server != nil {
				server.PublishStatus("failed", err.Error())
			}
			return
		}

		printResult(res)
		if server != nil {
			server.SetResult(res)
		}
	}

	rerun()

	if cfg.Watch {
		fw, err := watcher.NewFileWatcher(cfg.Metadata, cfg.Policy)
		if err != nil {
			logging.Fatal("failed to start watcher", "error", err)
		}
		fw.Start(ctx)

		deb := watcher.NewDebouncer(fw.Events(), 300*time.Millisecond, 2*time.Second)
		deb.Start(ctx)

		go func() {
			for ev := range deb.Output() {
				logging.Info("input changed, re-auditing", "paths", len(ev.Paths))
				rerun()
			}
		}()
	}

	<-ctx.Done()
	logging.Info("shutting down")
}
