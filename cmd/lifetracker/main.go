// Lifetracker is a conversational life tracker.
//
// It serves an HTTP API where a signed-in user chats with a model that
// keeps their log, background and tasks up to date through tool calls,
// and sends each subscriber a periodic newsletter written in one of
// several personas. Configuration is loaded from a single YAML file
// discovered automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	lifetracker init [dir]              Write an example config into dir
//	lifetracker serve                   Start the API server and newsletter runner
//	lifetracker mcp                     Serve the tracker tools over MCP on stdio
//	lifetracker newsletter <email>      Send one newsletter now
//	lifetracker newsletter -all         Send to every subscriber
//	lifetracker purge <email>           Delete an account and all of its data
//	lifetracker version                 Print version and build information
//	lifetracker -o json version         Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nugget/lifetracker/internal/agent"
	"github.com/nugget/lifetracker/internal/api"
	"github.com/nugget/lifetracker/internal/auth"
	"github.com/nugget/lifetracker/internal/buildinfo"
	"github.com/nugget/lifetracker/internal/config"
	"github.com/nugget/lifetracker/internal/dispatch"
	"github.com/nugget/lifetracker/internal/email"
	"github.com/nugget/lifetracker/internal/llm"
	"github.com/nugget/lifetracker/internal/mcpserve"
	"github.com/nugget/lifetracker/internal/newsletter"
	"github.com/nugget/lifetracker/internal/prompts"
	"github.com/nugget/lifetracker/internal/session"
	"github.com/nugget/lifetracker/internal/store"
	"github.com/nugget/lifetracker/internal/store/postgres"
	"github.com/nugget/lifetracker/internal/store/sqlite"
	"github.com/nugget/lifetracker/internal/tools"
)

func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point. Arguments are parsed by hand so that run
// can be driven concurrently from tests without flag package globals.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "-config" || arg == "--config":
			if i+1 >= len(args) {
				return fmt.Errorf("-config requires a path argument")
			}
			i++
			configPath = args[i]
		case strings.HasPrefix(arg, "-config=") || strings.HasPrefix(arg, "--config="):
			configPath = arg[strings.Index(arg, "=")+1:]
		case arg == "-o" || arg == "--output":
			if i+1 >= len(args) {
				return fmt.Errorf("%s requires a format argument (text or json)", arg)
			}
			i++
			outputFmt = args[i]
		case arg == "-h" || arg == "--help" || arg == "help":
			return printUsage(stdout)
		case strings.HasPrefix(arg, "-") && command == "":
			return fmt.Errorf("unknown flag: %s", arg)
		default:
			if command == "" {
				command = arg
			} else {
				cmdArgs = append(cmdArgs, arg)
			}
		}
	}

	switch outputFmt {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown output format %q (valid: text, json)", outputFmt)
	}

	switch command {
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "mcp":
		// stdout carries the protocol; logs go to stderr.
		return runMCP(ctx, stderr, configPath)
	case "newsletter":
		return runNewsletter(ctx, stdout, configPath, cmdArgs)
	case "purge":
		if len(cmdArgs) != 1 {
			return fmt.Errorf("usage: lifetracker purge <email>")
		}
		return runPurge(ctx, stdout, configPath, cmdArgs[0])
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
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
	for _, k := range []string{"version", "git_commit", "build_time", "go_version"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Lifetracker - conversational life tracker")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: lifetracker [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  init [dir]               Write an example config (default: .)")
	fmt.Fprintln(w, "  serve                    Start the API server and newsletter runner")
	fmt.Fprintln(w, "  mcp                      Serve the tracker tools over MCP on stdio")
	fmt.Fprintln(w, "  newsletter [opts] <email> Send a newsletter to one user")
	fmt.Fprintln(w, "      -all                 Send to every subscriber instead")
	fmt.Fprintln(w, "      -persona <name>      mentor, cheerleader or analyst")
	fmt.Fprintln(w, "      -dry-run             Print the issue without sending or recording it")
	fmt.Fprintln(w, "  purge <email>            Delete an account and all of its data")
	fmt.Fprintln(w, "  version                  Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/lifetracker/config.yaml, /etc/lifetracker/config.yaml")
	fmt.Fprintln(w, "  .env.local and .env in the working directory are loaded first.")
	return nil
}

// app holds the components shared by every subcommand.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    store.Store
	registry *tools.Registry
	disp     *dispatch.Dispatcher
	llm      llm.Client
}

// bootstrap loads the environment and configuration, then opens the
// store. The caller must Close the returned app.
func bootstrap(ctx context.Context, logw io.Writer, configPath string) (*app, error) {
	logger := newLogger(logw, slog.LevelInfo)

	loaded, err := config.LoadDotEnv(".")
	if err != nil {
		return nil, err
	}
	for _, f := range loaded {
		logger.Debug("environment file loaded", "path", f)
	}

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}

	// Validate has already accepted the level.
	level, _ := config.ParseLogLevel(cfg.LogLevel)
	logger = newLogger(logw, level)
	if cfgPath != "" {
		logger.Info("config loaded", "path", cfgPath)
	} else {
		logger.Info("no config file found, using defaults")
	}

	s, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("store opened", "driver", cfg.Storage.Driver)

	registry := tools.NewRegistry()
	return &app{
		cfg:      cfg,
		logger:   logger,
		store:    s,
		registry: registry,
		disp:     dispatch.New(s, registry, logger),
		llm:      newLLMClient(cfg, logger),
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// composer builds the newsletter composer. A nil transport is passed
// when SMTP is not configured; sends then fail with email.ErrTransport.
func (a *app) composer() *newsletter.Composer {
	var transport email.Transport
	if a.cfg.SMTP.Configured() {
		transport = email.NewSMTPTransport(a.cfg.SMTP, a.logger)
	}
	persona, _ := prompts.ParsePersona(a.cfg.Newsletter.DefaultPersona)
	return newsletter.NewComposer(a.store, a.llm, transport, newsletter.Config{
		Model:             a.cfg.LLM.Model,
		Sender:            a.cfg.SMTP.Sender,
		DefaultPersona:    persona,
		HistoryLimit:      a.cfg.Newsletter.HistoryLimit,
		PublicURL:         a.cfg.Newsletter.PublicURL,
		UnsubscribeSecret: a.cfg.Newsletter.UnsubscribeSecret,
	}, a.logger)
}

// runServe starts the API server and the newsletter runner and blocks
// until SIGINT or SIGTERM, then drains in-flight requests.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	a, err := bootstrap(ctx, stdout, configPath)
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.logger
	logger.Info("starting lifetracker", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "built", buildinfo.BuildTime)

	authMgr, err := auth.NewManager(a.cfg.Auth.TokenSecret, a.cfg.Auth.TokenTTL)
	if err != nil {
		return fmt.Errorf("auth.token_secret: %w", err)
	}

	loop := agent.NewLoop(a.llm, a.registry, a.disp, a.store, agent.Config{
		Model:         a.cfg.LLM.Model,
		MaxIterations: a.cfg.LLM.MaxIterations,
	}, logger)

	composer := a.composer()
	if !a.cfg.SMTP.Configured() {
		logger.Warn("smtp not configured, newsletters cannot be sent")
	}

	server := api.NewServer(a.cfg.Listen.Addr(), api.Deps{
		Store:      a.store,
		Loop:       loop,
		Sessions:   session.NewManager(),
		Auth:       authMgr,
		Newsletter: composer,
	}, logger)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.Start(gctx); err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return newsletter.NewRunner(composer, a.cfg.Newsletter.Interval, logger).Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("lifetracker stopped")
	return nil
}

// runMCP serves the tracker tools for the configured MCP user.
func runMCP(ctx context.Context, logw io.Writer, configPath string) error {
	a, err := bootstrap(ctx, logw, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	addr := strings.ToLower(strings.TrimSpace(a.cfg.MCP.UserEmail))
	if addr == "" {
		return fmt.Errorf("mcp.user_email is required for the mcp command")
	}
	u, err := a.store.UpsertUser(ctx, store.User{Email: addr})
	if err != nil {
		return fmt.Errorf("resolve mcp user: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a.logger.Info("serving mcp on stdio", "user_id", u.ID)
	return mcpserve.Serve(ctx, mcpserve.New(a.disp, a.registry, u.ID, a.logger))
}

// runNewsletter sends (or with -dry-run, prints) a newsletter for one
// user or, with -all, for every subscriber.
func runNewsletter(ctx context.Context, stdout io.Writer, configPath string, args []string) error {
	var all, dryRun bool
	var personaName, addr string
	for i := 0; i < len(args); i++ {
		switch arg := args[i]; {
		case arg == "-all" || arg == "--all":
			all = true
		case arg == "-dry-run" || arg == "--dry-run":
			dryRun = true
		case arg == "-persona" || arg == "--persona":
			if i+1 >= len(args) {
				return fmt.Errorf("%s requires a persona name", arg)
			}
			i++
			personaName = args[i]
		case strings.HasPrefix(arg, "-"):
			return fmt.Errorf("unknown newsletter flag: %s", arg)
		case addr == "":
			addr = arg
		default:
			return fmt.Errorf("usage: lifetracker newsletter [-persona name] [-dry-run] <email> | -all")
		}
	}
	if all == (addr != "") {
		return fmt.Errorf("usage: lifetracker newsletter [-persona name] [-dry-run] <email> | -all")
	}
	if all && dryRun {
		return fmt.Errorf("-dry-run needs a single recipient")
	}

	a, err := bootstrap(ctx, stdout, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	c := a.composer()
	persona := c.DefaultPersona()
	if personaName != "" {
		if persona, err = prompts.ParsePersona(personaName); err != nil {
			return err
		}
	}

	if all {
		sent, err := c.SendAll(ctx, persona)
		fmt.Fprintf(stdout, "Sent %d newsletters\n", sent)
		return err
	}

	u, err := a.store.GetUserByEmail(ctx, addr)
	if err != nil {
		return fmt.Errorf("lookup %s: %w", addr, err)
	}
	if dryRun {
		issue, err := c.Render(ctx, u.ID, persona)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "To: %s\nSubject: %s\n\n%s\n", issue.To, issue.Subject, issue.Content)
		return nil
	}

	entry, err := c.Send(ctx, u.ID, persona)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Sent %q to %s\n", entry.Subject, addr)
	return nil
}

// runPurge deletes an account and everything stored for it.
func runPurge(ctx context.Context, stdout io.Writer, configPath, addr string) error {
	a, err := bootstrap(ctx, stdout, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	u, err := a.store.GetUserByEmail(ctx, addr)
	if err != nil {
		return fmt.Errorf("lookup %s: %w", addr, err)
	}
	if err := a.store.PurgeUser(ctx, u.ID); err != nil {
		return fmt.Errorf("purge %s: %w", addr, err)
	}
	fmt.Fprintf(stdout, "Purged %s\n", u.Email)
	return nil
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
}

// loadConfig locates and parses the YAML configuration file. An explicit
// path must exist; without one, a missing file falls back to defaults
// and the returned path is empty.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		if explicit != "" {
			return nil, "", err
		}
		return config.Default(), "", nil
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	return cfg, cfgPath, nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		s, err := postgres.Open(ctx, cfg.Storage.Postgres, logger)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return s, nil
	default:
		s, err := sqlite.Open(cfg.Storage.SQLitePath, logger)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store %s: %w", cfg.Storage.SQLitePath, err)
		}
		return s, nil
	}
}

func newLLMClient(cfg *config.Config, logger *slog.Logger) llm.Client {
	if cfg.LLM.Provider == config.ProviderOllama {
		logger.Info("LLM client initialized", "provider", "ollama", "model", cfg.LLM.Model)
		return llm.NewOllamaClient(cfg.LLM.BaseURL, logger)
	}
	logger.Info("LLM client initialized", "provider", "anthropic", "model", cfg.LLM.Model)
	return llm.NewAnthropicClient(cfg.LLM.APIKey, cfg.LLM.BaseURL, logger)
}
