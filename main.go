package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/xiaot623/gogo/agents/internal/adapter/email"
	"github.com/xiaot623/gogo/agents/internal/adapter/knowledge"
	"github.com/xiaot623/gogo/agents/internal/adapter/llm"
	"github.com/xiaot623/gogo/agents/internal/agent"
	"github.com/xiaot623/gogo/agents/internal/agent/iris"
	"github.com/xiaot623/gogo/agents/internal/agent/nova"
	"github.com/xiaot623/gogo/agents/internal/config"
	"github.com/xiaot623/gogo/agents/internal/conversation"
	"github.com/xiaot623/gogo/agents/internal/execlog"
	"github.com/xiaot623/gogo/agents/internal/metrics"
	"github.com/xiaot623/gogo/agents/internal/policy"
	"github.com/xiaot623/gogo/agents/internal/repository"
	handler "github.com/xiaot623/gogo/agents/internal/transport/http"
)

// CLI defines the command-line interface.
type CLI struct {
	Serve   ServeCmd   `cmd:"" default:"1" help:"Start the agents HTTP server."`
	Migrate MigrateCmd `cmd:"" help:"Create the execution log schema and exit."`
	Version VersionCmd `cmd:"" help:"Show version information."`

	Config    string `short:"c" help:"Path to YAML config file (defaults to CONFIG_FILE)." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error). Overrides LOG_LEVEL."`
	LogFormat string `help:"Log format (text, json). Overrides LOG_FORMAT."`
}

func (cli *CLI) load() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return nil, nil, err
	}
	if cli.LogLevel != "" {
		cfg.LogLevel = cli.LogLevel
	}
	if cli.LogFormat != "" {
		cfg.LogFormat = cli.LogFormat
	}
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func openStore(cfg *config.Config) (repository.Store, error) {
	return repository.Open(repository.Options{
		Backend: cfg.Store.Backend,
		Driver:  cfg.Store.Driver,
		DSN:     cfg.Store.DSN,
		Path:    cfg.Store.BoltPath,
		RESTURL: cfg.Store.RESTURL,
		RESTKey: cfg.Store.RESTKey,
		Timeout: config.Millis(cfg.Store.TimeoutMS),
	})
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("agents version %s\n", handler.Version)
	return nil
}

// MigrateCmd creates the schema of the configured store.
type MigrateCmd struct{}

func (c *MigrateCmd) Run(cli *CLI) error {
	cfg, logger, err := cli.load()
	if err != nil {
		return err
	}
	if cfg.Store.Backend == repository.BackendREST {
		return errors.New("rest store schema is managed by the remote database")
	}
	// Opening a local store runs its migrations.
	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to migrate store: %w", err)
	}
	defer store.Close()
	logger.Info("store migrated", "backend", cfg.Store.Backend, "driver", cfg.Store.Driver)
	return nil
}

// ServeCmd starts the HTTP server.
type ServeCmd struct {
	Port int `help:"Port to listen on. Overrides HTTP_PORT."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	cfg, logger, err := cli.load()
	if err != nil {
		return err
	}
	if c.Port > 0 {
		cfg.HTTPPort = c.Port
	}

	logger.Info("starting agents service",
		"port", cfg.HTTPPort, "store", cfg.Store.Backend, "llm_provider", cfg.LLM.Provider)

	// Initialize store
	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer store.Close()

	// Initialize collaborators
	completer, err := llm.New(llm.Config{
		Provider:  cfg.LLM.Provider,
		APIKey:    cfg.LLM.APIKey,
		Model:     cfg.LLM.Model,
		BaseURL:   cfg.LLM.BaseURL,
		MaxTokens: int64(cfg.LLM.MaxTokens),
		Timeout:   config.Millis(cfg.LLM.TimeoutMS),
	})
	if err != nil {
		return err
	}
	knowledgeClient := knowledge.NewClient(cfg.Knowledge.BaseURL, cfg.Knowledge.APIKey, config.Millis(cfg.Knowledge.TimeoutMS))
	emailClient := email.NewClient(cfg.Email.BaseURL, cfg.Email.APIKey, config.Millis(cfg.Email.TimeoutMS))

	// Initialize policy engine
	ctx := context.Background()
	scorer, err := policy.LoadEngine(ctx, cfg.PolicyFile)
	if err != nil {
		return fmt.Errorf("failed to initialize policy engine: %w", err)
	}

	// Initialize agents
	conversations := conversation.New(store)
	registry := agent.NewRegistry(cfg.Present)
	agents := []agent.Agent{
		nova.New(completer, knowledgeClient, conversations, nova.Options{
			RequiredEnv: cfg.NovaEnv(),
			ResultLimit: cfg.Knowledge.ResultLimit,
			Temperature: cfg.LLM.Temperature,
			Logger:      logger,
		}),
		iris.New(scorer, emailClient, iris.Options{
			RequiredEnv: cfg.IrisEnv(),
			From:        cfg.Email.From,
			NotifyTo:    cfg.Email.NotifyTo,
		}),
	}
	for _, a := range agents {
		if err := registry.Register(a); err != nil {
			return err
		}
		if !registry.Configured(a) {
			logger.Warn("agent is missing required environment", "agent_id", a.ID(), "required", a.RequiredEnv())
		}
	}

	recorder := metrics.NewRecorder()
	runner := agent.NewRunner(execlog.New(store), recorder, logger, cfg.AgentTimeout())

	h := handler.NewHandler(registry, runner, store, conversations, recorder.Handler())
	server := handler.NewServer(h, logger, cfg.CORSAllowOrigins)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("agents API started", "port", cfg.HTTPPort, "agents", registry.IDs())

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down agents service")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("failed to shutdown server gracefully", "error", err)
	}

	logger.Info("agents service stopped")
	return nil
}

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("agents"),
		kong.Description("HTTP-triggered agent functions with execution logging."),
		kong.UsageOnError(),
	)
	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
