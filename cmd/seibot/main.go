// Seibot is a Telegram assistant for the SEI blockchain.
//
// It answers questions with the Anthropic Messages API, pulls live
// on-chain data through MCP tool servers, renders tabular answers as
// PNG images, and keeps bounded per-chat memory with automatic
// summarization. Configuration is loaded from a single YAML file
// discovered automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	seibot serve             Start the Telegram webhook server
//	seibot init [dir]        Scaffold a workspace with example config files
//	seibot ask <question>    Ask a single question (for testing)
//	seibot version           Print version and build information
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/tranminh/seibot/internal/bridge"
	"github.com/tranminh/seibot/internal/buildinfo"
	"github.com/tranminh/seibot/internal/chat"
	"github.com/tranminh/seibot/internal/config"
	"github.com/tranminh/seibot/internal/llm"
	"github.com/tranminh/seibot/internal/normalize"
	"github.com/tranminh/seibot/internal/render"
	"github.com/tranminh/seibot/internal/session"
	"github.com/tranminh/seibot/internal/telegram"
	"github.com/tranminh/seibot/internal/tools"
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run] so the full
// lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run parses arguments by hand — the flag package relies on global
// state that interferes with calling run concurrently from tests, and
// the argument surface here is small.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: seibot ask <question>")
		}
		return runAsk(ctx, stdout, configPath, cmdArgs)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runServe starts the webhook server and runs until the context is
// cancelled or a termination signal arrives.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if cfg.LogLevel != "" {
		level, err = config.ParseLogLevel(cfg.LogLevel)
		if err != nil {
			return err
		}
	}
	logger := newLogger(stdout, level)
	logger.Info("starting seibot", "version", buildinfo.String(), "config", cfgPath)

	if cfg.Anthropic.APIKey == "" {
		return errors.New("anthropic.api_key is not configured")
	}
	if cfg.Telegram.BotToken == "" {
		return errors.New("telegram.bot_token is not configured")
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	assistant, br, store, err := buildAssistant(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer br.Close()
	if closer, ok := store.(io.Closer); ok {
		defer closer.Close()
	}

	tg := telegram.NewClient(cfg.Telegram.BotToken, logger)
	bot := telegram.NewBot(tg, assistant, cfg.Telegram.ParseMode, logger)

	mux := http.NewServeMux()
	mux.Handle(cfg.Telegram.WebhookPath, bot.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, "ok uptime=%s\n", buildinfo.Uptime().Round(time.Second))
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Listen.Address, cfg.Listen.Port),
		Handler: mux,
	}

	if cfg.Telegram.WebhookURL != "" {
		public := strings.TrimRight(cfg.Telegram.WebhookURL, "/") + cfg.Telegram.WebhookPath
		if err := tg.SetWebhook(ctx, public); err != nil {
			return fmt.Errorf("register webhook: %w", err)
		}
		logger.Info("webhook registered", "url", public)
		defer func() {
			cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tg.DeleteWebhook(cleanupCtx); err != nil {
				logger.Warn("deleting webhook failed", "error", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("webhook server listening", "addr", srv.Addr, "path", cfg.Telegram.WebhookPath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("webhook server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// runAsk boots a minimal assistant (in-memory sessions) and answers a
// single question on stdout. Useful for smoke tests without Telegram.
func runAsk(ctx context.Context, stdout io.Writer, configPath string, args []string) error {
	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(stdout, slog.LevelWarn)
	logger.Debug("config loaded", "path", cfgPath)

	if cfg.Anthropic.APIKey == "" {
		return errors.New("anthropic.api_key is not configured")
	}
	cfg.DataDir = "" // one-shot questions never need persistence

	assistant, br, _, err := buildAssistant(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer br.Close()

	reply, err := assistant.Respond(ctx, "cli", strings.Join(args, " "))
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}
	for _, img := range reply.Images {
		fmt.Fprintf(stdout, "[image] %s\n", img)
	}
	fmt.Fprintln(stdout, reply.Text)
	return nil
}

// buildAssistant wires the full pipeline: bridge, renderer, local
// tools, normalizer, session store, and the orchestrator.
func buildAssistant(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*chat.Assistant, *bridge.Bridge, session.Store, error) {
	servers, err := config.LoadMCPServers(cfg.MCP.ServersFile)
	if err != nil {
		logger.Warn("reading MCP server document failed, continuing without external tools",
			"path", cfg.MCP.ServersFile, "error", err)
		servers = nil
	}

	br := bridge.New(servers, logger)
	br.Start(ctx)

	renderer := render.New(cfg.Images.OutDir, logger)
	runner := tools.NewRunner(renderer)
	normalizer := normalize.New(renderer, br, logger)

	var store session.Store = session.NewMemStore()
	if cfg.DataDir != "" {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			br.Close()
			return nil, nil, nil, fmt.Errorf("create data dir: %w", err)
		}
		sqlStore, err := session.NewSQLiteStore(filepath.Join(cfg.DataDir, "sessions.db"))
		if err != nil {
			br.Close()
			return nil, nil, nil, err
		}
		store = sqlStore
	}

	client := llm.NewAnthropicClient(cfg.Anthropic.APIKey, logger)
	assistant := chat.New(client, br, store, runner, normalizer,
		chat.Options{Model: cfg.Anthropic.Model}, logger)
	return assistant, br, store, nil
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Seibot - SEI blockchain Telegram assistant")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: seibot [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve        Start the Telegram webhook server")
	fmt.Fprintln(w, "  init [dir]   Scaffold a workspace with example config files")
	fmt.Fprintln(w, "  ask          Ask a single question (for testing)")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  "+strings.Join(config.DefaultSearchPaths(), ", "))
	return nil
}

// newLogger builds the process logger writing structured text to w.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
}

// loadConfig resolves and loads the YAML config file.
func loadConfig(explicit string) (*config.Config, string, error) {
	path, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, path, nil
}
