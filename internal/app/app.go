package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"NewsDesk/internal/api"
	"NewsDesk/internal/bot"
	"NewsDesk/internal/config"
	"NewsDesk/internal/infrastructure/llm"
	"NewsDesk/internal/infrastructure/parser"
	"NewsDesk/internal/infrastructure/scheduler"
	"NewsDesk/internal/infrastructure/storage"
	"NewsDesk/internal/infrastructure/telegram"
	"NewsDesk/internal/logging"
	"NewsDesk/internal/ports"
	"NewsDesk/internal/scanner"
	"NewsDesk/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	store     ports.ArticleStore
	parser    *usecase.Parser
	publisher *usecase.Publisher
	scheduler *usecase.Scheduler
	bot       *bot.Bot
}

// New opens the store and constructs every service once.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}

	store, err := storage.Open(ctx, cfg.Storage, baseLogger.With("component", "storage"))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	scrapeClient := &http.Client{Timeout: 20 * time.Second}
	registry := scanner.NewRegistry()
	registry.Register(parser.NewTelegramScanner(scrapeClient, cfg.Scraper.ChannelEndpoint, cfg.Scraper.UserAgent, baseLogger.With("component", "scanner.telegram")))
	registry.Register(parser.NewRSSScanner(scrapeClient, cfg.Scraper.UserAgent, baseLogger.With("component", "scanner.rss")))

	source := parser.NewStrategySource(registry, cfg.Sources, baseLogger.With("component", "source"))

	generator, err := llm.NewGenerator(cfg.Rewrite, nil)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	rewriter, err := llm.NewRewriter(generator, cfg.Rewrite.PromptTemplate, cfg.Rewrite.MaxContentLength)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	botAPI := telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.APIEndpoint, nil)

	sources := make([]string, 0, len(cfg.Sources))
	for _, src := range cfg.Sources {
		sources = append(sources, src.Name)
	}

	parsing := usecase.NewParser(usecase.ParserDeps{
		Source:             source,
		Store:              store,
		Rewriter:           rewriter,
		Logger:             baseLogger,
		Sources:            sources,
		Lookback:           cfg.Scraper.Lookback,
		PageSize:           cfg.Scraper.PageSize,
		MinLength:          cfg.Scraper.MinLength,
		SourcePause:        cfg.Parser.SourcePause,
		MaxRewriteAttempts: cfg.Parser.MaxRewriteAttempts,
		RetryBatch:         cfg.Parser.RetryBatch,
	})

	publisher := usecase.NewPublisher(usecase.PublisherDeps{
		Store:     store,
		Deliverer: telegram.NewDeliverer(botAPI, cfg.Telegram.TargetChatID),
		Logger:    baseLogger,
		BatchSize: cfg.Publisher.BatchSize,
		SendPause: cfg.Publisher.SendPause,
	})

	approval := usecase.NewApproval(usecase.ApprovalDeps{
		Store:     store,
		Publisher: publisher,
		IsAdmin:   cfg.Telegram.IsAdmin,
		Logger:    baseLogger,
	})

	loops := usecase.NewScheduler(
		scheduler.NewPeriodic("parsing", cfg.Parser.Interval, cfg.Parser.Backoff, baseLogger),
		parsing,
		scheduler.NewPeriodic("publication", cfg.Publisher.Interval, cfg.Publisher.Backoff, baseLogger),
		publisher,
	)

	router := bot.New(bot.Deps{
		API:         botAPI,
		Approval:    approval,
		Parser:      parsing,
		Logger:      baseLogger,
		PollTimeout: cfg.Telegram.PollTimeout,
	})

	return &Application{
		cfg:       cfg,
		logger:    baseLogger,
		store:     store,
		parser:    parsing,
		publisher: publisher,
		scheduler: loops,
		bot:       router,
	}, nil
}

// Run starts the loops, the bot and the optional ops server, and closes the
// store once all of them have stopped.
func (a *Application) Run(ctx context.Context) error {
	defer a.close()

	a.logger.Info("newsdesk started",
		"sources", len(a.cfg.Sources),
		"storage", a.cfg.Storage.Driver,
		"provider", a.cfg.Rewrite.Provider,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.scheduler.Run(ctx) })
	g.Go(func() error { return a.bot.Run(ctx) })

	if a.cfg.HTTP.Addr != "" {
		router := api.NewRouter(a.store, a.logger.With("component", "http"))
		g.Go(func() error { return api.Serve(ctx, a.cfg.HTTP.Addr, router, a.logger.With("component", "http")) })
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	a.logger.Info("newsdesk stopped")
	return err
}

// RunOnce performs one parsing pass and one publication cycle, then closes the store.
func (a *Application) RunOnce(ctx context.Context) error {
	defer a.close()

	report, err := a.parser.RunOnce(ctx)
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	a.logger.Info("single run parsed", "run_id", report.RunID, "created", report.Created, "rewritten", report.Rewritten)

	posted, err := a.publisher.Cycle(ctx)
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	a.logger.Info("single run published", "posted", posted)
	return nil
}

func (a *Application) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Error("close store", "error", err)
	}
}

// Migrate prepares the configured store schema and exits.
func Migrate(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) error {
	store, err := storage.Open(ctx, cfg, logger.With("component", "storage"))
	if err != nil {
		return err
	}
	return store.Close()
}
