// Command growfluent serves the spaced repetition API and imports markdown
// decks into the card collection.
//
// Usage:
//
//	growfluent [flags] [serve]
//	growfluent [flags] import [--add-source PATH --language LANG]
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/pflag"

	"github.com/conorfennell/growfluent/internal/config"
	"github.com/conorfennell/growfluent/internal/deck"
	"github.com/conorfennell/growfluent/internal/domain"
	"github.com/conorfennell/growfluent/internal/oracle"
	"github.com/conorfennell/growfluent/internal/session"
	"github.com/conorfennell/growfluent/internal/storage"
	"github.com/conorfennell/growfluent/internal/web"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		slog.Error("growfluent failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	flags := pflag.NewFlagSet("growfluent", pflag.ContinueOnError)
	config.RegisterFlags(flags)
	addSource := flags.String("add-source", "", "import: register a local directory or git URL as a deck source")
	language := flags.String("language", "", "import: language of the source added with --add-source")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(flags)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	app, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	mode := "serve"
	if flags.NArg() > 0 {
		mode = flags.Arg(0)
	}
	switch mode {
	case "serve":
		return app.serve(ctx, cfg.HTTP)
	case "import":
		return app.runImport(ctx, *addSource, *language)
	default:
		return fmt.Errorf("unknown command %q, expected serve or import", mode)
	}
}

// newLogger picks the tint console handler for text output and the JSON
// handler otherwise.
func newLogger(cfg config.Log) *slog.Logger {
	level := new(slog.LevelVar)
	switch cfg.Level {
	case "debug":
		level.Set(slog.LevelDebug)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	default:
		level.Set(slog.LevelInfo)
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level, AddSource: true})
	} else {
		handler = tint.NewHandler(os.Stderr, &tint.Options{Level: level, TimeFormat: time.RFC3339})
	}
	return slog.New(handler)
}

type app struct {
	logger   *slog.Logger
	db       *storage.DB
	remote   *storage.Postgres
	store    *storage.Fallback
	oracle   oracle.Oracle
	orch     *session.Orchestrator
	importer *deck.Importer
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	db, err := storage.Open(cfg.DB.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	logger.Info("Database opened", "path", cfg.DB.Path)
	a := &app{logger: logger, db: db}

	var remote storage.Store
	if cfg.Remote.Enabled {
		pg, err := storage.OpenPostgres(ctx, cfg.Remote.DSN)
		if err != nil {
			// The local store is authoritative; run without the mirror.
			logger.Warn("Remote store unavailable, continuing with local store only", "error", err)
		} else {
			a.remote = pg
			remote = pg
		}
	}
	a.store = storage.NewFallback(db, remote, logger.With("component", "storage"))

	if cfg.Oracle.APIKey == "" {
		logger.Warn("No oracle API key configured, grading and enrichment are disabled")
		a.oracle = oracle.Disabled{}
	} else {
		a.oracle = oracle.NewClient(oracle.Config{
			APIKey:             cfg.Oracle.APIKey,
			BaseURL:            cfg.Oracle.BaseURL,
			Model:              cfg.Oracle.Model,
			TTSModel:           cfg.Oracle.TTSModel,
			TranscriptionModel: cfg.Oracle.TranscriptionModel,
			NativeLanguage:     cfg.Oracle.NativeLanguage,
			RequestsPerSecond:  cfg.Oracle.RequestsPerSecond,
			Retry: oracle.Retry{
				MaxRetries: cfg.Oracle.MaxRetries,
				Delay:      cfg.Oracle.RetryDelay,
			},
		}, logger)
	}

	opts := []session.Option{session.WithLogger(logger)}
	if cfg.Session.Seed != 0 {
		opts = append(opts, session.WithRand(rand.New(rand.NewPCG(cfg.Session.Seed, cfg.Session.Seed>>32))))
	}
	a.orch = session.New(a.store, a.oracle, opts...)
	a.importer = deck.NewImporter(db, a.store, cfg.Import.ReposDir, logger)
	return a, nil
}

func (a *app) Close() {
	if a.remote != nil {
		if err := a.remote.Close(); err != nil {
			a.logger.Error("Error closing remote store", "error", err)
		}
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("Error closing database", "error", err)
		return
	}
	a.logger.Info("Database closed")
}

func (a *app) serve(ctx context.Context, cfg config.HTTP) error {
	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: web.NewServer(web.Deps{
			Store:          a.store,
			Orchestrator:   a.orch,
			Oracle:         a.oracle,
			Sources:        a.db,
			Importer:       a.importer,
			Logger:         a.logger,
			AllowedOrigins: cfg.AllowedOrigins,
			RequestTimeout: 2 * time.Minute,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("Server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	a.logger.Info("Server stopped")
	return nil
}

// runImport optionally registers a source, then reconciles every source.
func (a *app) runImport(ctx context.Context, addSource, language string) error {
	if addSource != "" {
		lang, err := domain.ParseLanguage(language)
		if err != nil {
			return fmt.Errorf("--add-source needs --language: %w", err)
		}
		if _, err := a.importer.AddSource(ctx, addSource, lang); err != nil {
			return err
		}
	}

	results, err := a.importer.SyncAll(ctx)
	if err != nil {
		return err
	}
	for _, res := range results {
		fmt.Printf("%s: %d entries, %d new, %d removed, %d errors\n",
			res.Path, res.Parsed, res.Inserted, res.Orphaned, len(res.Errors))
		for _, e := range res.Errors {
			fmt.Printf("  - %s\n", e)
		}
	}
	return nil
}
