package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"FundingScanner/internal/config"
	"FundingScanner/internal/infrastructure/llm"
	"FundingScanner/internal/infrastructure/parser"
	"FundingScanner/internal/infrastructure/scheduler"
	"FundingScanner/internal/infrastructure/storage"
	"FundingScanner/internal/logging"
	"FundingScanner/internal/scraper"
	"FundingScanner/internal/usecase"
)

// Application wires configuration to collaborators and owns their lifecycle.
type Application struct {
	cfg      config.Config
	logger   *slog.Logger
	db       *sqlx.DB
	pipeline *usecase.Pipeline
}

// New connects the database and assembles the pipeline. A store that is
// unreachable at startup is fatal for the whole run.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	db, err := sqlx.Connect("postgres", cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	rawStore := storage.NewRawRepository(db, baseLogger.With("component", "storage.raw"))
	processedStore := storage.NewProcessedRepository(db, baseLogger.With("component", "storage.processed"))
	classifier := llm.NewGeminiClient(cfg.Gemini, cfg.Analysis.FocusAreas, baseLogger.With("component", "classifier"))

	opts := scraper.Options{
		CutoffMonths: cfg.Scraper.CutoffMonths,
		TestLimit:    cfg.Scraper.TestLimit,
	}
	registry := scraper.NewRegistry()
	registry.Register(parser.NewGSOScraper(nil, opts, baseLogger.With("component", "scraper.gso")))
	registry.Register(parser.NewOFYScraper(nil, opts, baseLogger.With("component", "scraper.ofy")))
	registry.Register(parser.NewODScraper(nil, opts, baseLogger.With("component", "scraper.od")))

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Sources:    registry.All(),
		RawStore:   rawStore,
		Processed:  processedStore,
		Classifier: classifier,
		Settings: usecase.Settings{
			MaxConcurrentAICalls: cfg.Analysis.MaxConcurrentAICalls,
			TargetCountry:        cfg.Analysis.TargetCountry,
			GeneralScopes:        cfg.Analysis.GeneralScopes,
			StaleMonths:          cfg.Maintenance.StaleMonths,
		},
		Logger: baseLogger.With("component", "pipeline"),
	})

	return &Application{cfg: cfg, logger: baseLogger, db: db, pipeline: pipeline}, nil
}

// Run executes a single pipeline pass, or keeps running on a cron schedule
// when one is configured.
func (a *Application) Run(ctx context.Context) error {
	defer a.db.Close()

	spec := a.cfg.Scheduler.CronExpression
	if spec == "" {
		return a.pipeline.Run(ctx)
	}

	driver := scheduler.NewCronScheduler(spec, a.cfg.Scheduler.Location())
	err := driver.Start(ctx, func(trigger time.Time) {
		a.logger.Info("scheduled run triggered", "at", trigger.Format(time.RFC3339))
		if runErr := a.pipeline.Run(ctx); runErr != nil {
			a.logger.Error("scheduled run failed", "error", runErr)
		}
	})
	if err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	return driver.Stop(stopCtx)
}
