// Package app assembles configuration, adapters, and use cases into a
// runnable application.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"LitMonitor/internal/config"
	"LitMonitor/internal/digest"
	"LitMonitor/internal/infrastructure/links"
	"LitMonitor/internal/infrastructure/llm"
	"LitMonitor/internal/infrastructure/lookup"
	"LitMonitor/internal/infrastructure/mail"
	"LitMonitor/internal/infrastructure/parser"
	"LitMonitor/internal/infrastructure/scheduler"
	"LitMonitor/internal/infrastructure/storage"
	"LitMonitor/internal/infrastructure/web"
	"LitMonitor/internal/infrastructure/worker"
	"LitMonitor/internal/infrastructure/zotero"
	"LitMonitor/internal/logging"
	"LitMonitor/internal/ranking"
	"LitMonitor/internal/scanner"
	"LitMonitor/internal/suggest"
	"LitMonitor/internal/usecase"
)

// Options adjust wiring for a single invocation. Zero values mean "follow
// the configuration".
type Options struct {
	// ConfigPath is the YAML file the web editor rewrites.
	ConfigPath string
	// PubMedOnly restricts fetching to sources using the pubmed scanner.
	PubMedOnly bool
	// SendEmail permits SMTP delivery. Manual digest runs leave it off so
	// a CLI invocation never surprises the inbox; the daemon turns it on.
	SendEmail bool
	// DryRun renders digests without emailing or recording membership.
	DryRun bool
	// OutputDir overrides the configured digest output directory.
	OutputDir string
}

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg      config.Config
	store    *storage.SQLiteStore
	pipeline *usecase.Pipeline
	web      *web.Server
	sched    *usecase.Scheduler
}

// New builds a fully wired application instance. The caller owns Close.
func New(cfg config.Config, opts Options, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	store, err := storage.NewSQLiteStore(cfg.Database.Path, baseLogger.With("component", "storage"))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	registry := scanner.NewRegistry()
	pubmed := parser.NewPubMedScanner(nil, cfg.Search.NCBIAPIKey, cfg.Search.NCBIEmail)
	registry.Register(pubmed)
	registry.Register(parser.NewBiorxivScanner(nil))

	search := cfg.Search
	if opts.PubMedOnly {
		search.Sources = pubmedSources(search.Sources)
	}
	source := parser.NewStrategySource(registry, search, baseLogger.With("component", "source"))

	var oracle *llm.Client
	if cfg.Oracle.APIKey != "" {
		oracle = llm.New(
			cfg.Oracle.Endpoint,
			cfg.Oracle.APIKey,
			cfg.Oracle.Model,
			cfg.Oracle.MaxTokens,
			nil,
			baseLogger.With("component", "oracle"),
		)
	}

	var scorer usecase.BatchScorer
	var suggester usecase.SuggestionEngine
	if oracle != nil {
		scorer = ranking.NewScorer(oracle, store, scorerOptions(cfg), baseLogger.With("component", "ranking"))
		suggester = suggest.New(cfg, store, oracle, baseLogger.With("component", "suggest"))
	}

	signer := links.NewSigner(cfg.Worker.SigningSecret)
	builder := links.NewBuilder(cfg.Worker.URL, signer)

	emailCfg := cfg.Email
	if opts.OutputDir != "" {
		emailCfg.OutputDir = opts.OutputDir
	}
	renderer := mail.NewRenderer(builder, cfg.WatchedAuthors)
	sender := mail.NewSender(emailCfg, renderer, baseLogger.With("component", "mail"))
	sender.SetDryRun(opts.DryRun || !opts.SendEmail)

	var puller *worker.Client
	if cfg.Worker.URL != "" {
		puller = worker.NewClient(cfg.Worker, nil, baseLogger.With("component", "worker"))
	}

	var library *zotero.Client
	if cfg.Zotero.APIKey != "" && cfg.Zotero.UserID != "" {
		library = zotero.NewClient(cfg.Zotero, nil, baseLogger.With("component", "zotero"))
	}

	deps := usecase.PipelineDeps{
		Config:    cfg,
		Source:    source,
		Store:     store,
		Scorer:    scorer,
		Dedup:     digest.NewDeduplicator(store, baseLogger.With("component", "digest")),
		Deliverer: sender,
		Resolver:  lookup.NewResolver(nil, pubmed, baseLogger.With("component", "lookup")),
		Suggester: suggester,
		Logger:    baseLogger.With("component", "pipeline"),
	}
	if puller != nil {
		deps.Puller = puller
	}
	if library != nil {
		deps.Library = library
	}
	pipeline := usecase.NewPipeline(deps)

	webServer := web.NewServer(cfg.Web, opts.ConfigPath, store, signer, baseLogger.With("component", "web"))

	cronDriver := scheduler.NewCronScheduler(
		cfg.Scheduler.CronExpression,
		cfg.Scheduler.Location(),
		baseLogger.With("component", "scheduler"),
	)
	sched := usecase.NewScheduler(cronDriver, pipeline, baseLogger.With("component", "scheduler"))

	return &Application{
		cfg:      cfg,
		store:    store,
		pipeline: pipeline,
		web:      webServer,
		sched:    sched,
	}, nil
}

// pubmedSources keeps only sources handled by the pubmed scanner.
func pubmedSources(sources []config.SourceConfig) []config.SourceConfig {
	kept := make([]config.SourceConfig, 0, len(sources))
	for _, src := range sources {
		if src.Scanner == "pubmed" {
			kept = append(kept, src)
		}
	}
	return kept
}

func scorerOptions(cfg config.Config) ranking.Options {
	opts := ranking.DefaultOptions()
	if cfg.Ranking.HighThreshold > 0 {
		opts.HighThreshold = cfg.Ranking.HighThreshold
	}
	if cfg.Ranking.ModerateThreshold > 0 {
		opts.ModerateThreshold = cfg.Ranking.ModerateThreshold
	}
	if cfg.Ranking.AuthorBoost > 0 {
		opts.AuthorBoost = cfg.Ranking.AuthorBoost
	}
	if interval := cfg.Oracle.RequestInterval(); interval > 0 {
		opts.RequestInterval = interval
	}
	if cfg.Oracle.MaxAttempts > 0 {
		opts.MaxAttempts = cfg.Oracle.MaxAttempts
	}
	return opts
}

// Pipeline exposes the orchestration use case for CLI commands.
func (a *Application) Pipeline() *usecase.Pipeline {
	return a.pipeline
}

// Store exposes the persistence layer for read-only commands.
func (a *Application) Store() *storage.SQLiteStore {
	return a.store
}

// RunOnce executes a single full pipeline cycle at the current time.
func (a *Application) RunOnce(ctx context.Context) error {
	now := time.Now().In(a.cfg.Scheduler.Location())
	return a.pipeline.ProcessRun(ctx, now)
}

// Serve runs the web server until ctx is cancelled, then shuts it down.
func (a *Application) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := a.web.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("web server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return a.web.Shutdown(shutdownCtx)
}

// Daemon runs the cron schedule and the web server together until ctx is
// cancelled.
func (a *Application) Daemon(ctx context.Context) error {
	if err := a.sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	err := a.Serve(ctx)

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if stopErr := a.sched.Stop(stopCtx); stopErr != nil && err == nil {
		err = fmt.Errorf("stop scheduler: %w", stopErr)
	}
	return err
}

// Close releases the database handle.
func (a *Application) Close() error {
	return a.store.Close()
}
