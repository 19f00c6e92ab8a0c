// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/commonplace/internal/api"
	"github.com/starford/commonplace/internal/coordinator"
	"github.com/starford/commonplace/internal/index"
	"github.com/starford/commonplace/internal/mcpserver"
	"github.com/starford/commonplace/internal/noteservice"
	"github.com/starford/commonplace/internal/parser"
	"github.com/starford/commonplace/internal/query"
	"github.com/starford/commonplace/internal/schema"
	"github.com/starford/commonplace/internal/sse"
	"github.com/starford/commonplace/internal/storage"
	"github.com/starford/commonplace/internal/watcher"
)

// core bundles the engine components shared by every run mode.
type core struct {
	cfg    *Config
	logger *slog.Logger
	files  storage.Provider
	reg    *schema.Registry
	parse  *parser.Parser
	db     *index.DB
	eng    *query.Engine
}

// buildCore initializes storage, schemas, and the index from the
// application config. Module definitions that fail to load are logged and
// skipped; the remaining modules keep working.
func buildCore(app *application, logOut io.Writer) (*core, error) {
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := app.config

	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}

	files, err := storage.NewFS(cfg.Vault.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	reg := schema.NewRegistry()
	if _, statErr := os.Stat(cfg.Modules.Path); statErr == nil {
		if loadErr := reg.LoadDir(cfg.Modules.Path); loadErr != nil {
			logger.Warn("some module definitions failed to load",
				slog.String("dir", cfg.Modules.Path),
				slog.String("error", loadErr.Error()))
		}
	} else {
		logger.Info("no modules directory, using default module only",
			slog.String("dir", cfg.Modules.Path))
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	return &core{
		cfg:    cfg,
		logger: logger,
		files:  files,
		reg:    reg,
		parse:  parser.New(reg),
		db:     db,
		eng:    query.New(reg, db),
	}, nil
}

func (c *core) close() {
	if err := c.db.Close(); err != nil {
		c.logger.Warn("close index", slog.String("error", err.Error()))
	}
}

func (c *core) newCoordinator(hook coordinator.Hook) *coordinator.Coordinator {
	return coordinator.New(c.db, c.files, c.parse, c.logger, coordinator.Options{
		Debounce:      c.cfg.Index.Debounce(),
		SweepInterval: c.cfg.Index.SweepInterval(),
		MaxRetries:    c.cfg.Index.MaxRetries,
		Hook:          hook,
	})
}

// Run starts the HTTP server, the vault watcher, and the reindex
// coordinator, and blocks until ctx is cancelled or a component fails.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}

	c, err := buildCore(app, os.Stdout)
	if err != nil {
		return err
	}
	defer c.close()
	cfg, logger := c.cfg, c.logger

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("modules_path", cfg.Modules.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	coord := c.newCoordinator(broker.PublishNoteEvent)

	// Bring the index up to date before trusting live watch events.
	if err := coord.Reconcile(ctx); err != nil {
		logger.Warn("initial reconcile failed", slog.String("error", err.Error()))
	}

	// Build API service and router.
	svc := noteservice.NewService(c.files, c.db, c.parse, c.reg, c.eng)
	apiRouter := api.NewRouter(svc, http.HandlerFunc(broker.ServeHTTP))

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints.
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	w := watcher.New(cfg.Vault.Path, cfg.Index.QueueSize, logger)

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Watch the vault tree.
	g.Go(func() error {
		return w.Run(gCtx)
	})

	// Drive reindexing from watch events.
	g.Go(func() error {
		return coord.Run(gCtx, w.Events())
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP serves the MCP tools over stdio. Logs go to stderr; stdout is the
// transport.
func RunMCP(ctx context.Context, opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}

	c, err := buildCore(app, os.Stderr)
	if err != nil {
		return err
	}
	defer c.close()

	coord := c.newCoordinator(nil)
	if err := coord.Reconcile(ctx); err != nil {
		c.logger.Warn("initial reconcile failed", slog.String("error", err.Error()))
	}

	svc := noteservice.NewService(c.files, c.db, c.parse, c.reg, c.eng)
	c.logger.Info("MCP server starting on stdio")
	return mcpserver.New(svc).ServeStdio()
}

// RunReindex performs a single reconciliation pass and exits.
func RunReindex(ctx context.Context, opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}

	var indexed, removed, failed int
	count := func(kind, _ string) {
		switch kind {
		case "indexed":
			indexed++
		case "removed":
			removed++
		case "failed":
			failed++
		}
	}

	c, err := buildCore(app, os.Stdout)
	if err != nil {
		return err
	}
	defer c.close()

	coord := c.newCoordinator(count)
	if err := coord.Reconcile(ctx); err != nil {
		return fmt.Errorf("reindex: %w", err)
	}
	c.logger.Info("reindex complete",
		slog.Int("indexed", indexed),
		slog.Int("removed", removed),
		slog.Int("failed", failed))
	return nil
}

// RunModules prints the registered module schemas.
func RunModules(_ context.Context, opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}

	c, err := buildCore(app, os.Stderr)
	if err != nil {
		return err
	}
	defer c.close()

	for _, mod := range c.reg.Modules() {
		fmt.Printf("%s (type %s): %d properties, %d views\n",
			mod.Name, mod.Type, len(mod.Properties), len(mod.Views))
		for _, p := range mod.Properties {
			req := ""
			if p.Required {
				req = " required"
			}
			fmt.Printf("  %-16s %s%s\n", p.Name, p.Type, req)
		}
		for _, v := range mod.Views {
			fmt.Printf("  view %s: %d filters", v.Name, len(v.Filter))
			if len(v.Sort) > 0 {
				fmt.Printf(", %d sort keys", len(v.Sort))
			}
			if v.GroupBy != "" {
				fmt.Printf(", grouped by %s", v.GroupBy)
			}
			fmt.Println()
		}
	}
	return nil
}
