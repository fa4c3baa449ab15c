// Command server runs the curation backend: the HTTP API, the mention
// poller, and the processing pipeline, all over one SQLite database.
//
// Configuration comes from environment variables (a local .env file is
// honored in development); see internal/config for the full list.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/curationhub/curation-backend/internal/config"
	"github.com/curationhub/curation-backend/internal/domain"
	"github.com/curationhub/curation-backend/internal/feeds"
	httpapi "github.com/curationhub/curation-backend/internal/http"
	"github.com/curationhub/curation-backend/internal/ingest"
	"github.com/curationhub/curation-backend/internal/moderation"
	"github.com/curationhub/curation-backend/internal/observability"
	"github.com/curationhub/curation-backend/internal/plugins"
	"github.com/curationhub/curation-backend/internal/processing"
	"github.com/curationhub/curation-backend/internal/repo"
	"github.com/curationhub/curation-backend/internal/sysutil"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

// orchTrigger adapts the orchestrator to the moderation.Trigger interface.
type orchTrigger struct{ orch *processing.Orchestrator }

func (t orchTrigger) StartJob(ctx context.Context, submissionID, feedID string) error {
	_, err := t.orch.StartJob(ctx, submissionID, feedID)
	return err
}

func main() {
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		ct, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(ct); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database failed")
	}

	provider, err := feeds.NewFileProvider(cfg.FeedsPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.FeedsPath).Msg("load feed configuration failed")
	}
	approvers := feeds.NewApproverCache(provider)

	reg := plugins.NewRegistry()
	reg.Register(plugins.TemplatePlugin{}, domain.StageTransform)
	reg.Register(plugins.UppercasePlugin{}, domain.StageTransform)
	reg.Register(&plugins.WebhookPlugin{}, domain.StageDistribute)
	reg.Register(&plugins.ConsolePlugin{Log: log.Logger}, domain.StageDistribute)
	invoker := plugins.NewInvoker(reg, cfg.Processing.PluginTimeout)

	orch := processing.NewOrchestrator(db, provider, invoker)
	engine := moderation.NewEngine(db, provider, approvers, cfg.Ingest.Platform, orchTrigger{orch})

	// Replay moderation decisions that committed before a crash interrupted
	// their pipeline trigger, then surface anything left mid-flight.
	if n, err := engine.Reconcile(ctx); err != nil {
		log.Error().Err(err).Msg("startup reconcile failed")
	} else if n > 0 {
		log.Info().Int("recovered", n).Msg("reconciled unapplied moderation decisions")
	}
	if stale, err := engine.SurfaceStaleJobs(ctx, cfg.Processing.StaleJobAge); err != nil {
		log.Error().Err(err).Msg("stale job scan failed")
	} else {
		for _, j := range stale {
			log.Warn().
				Str("job_id", j.ID).
				Str("submission_id", j.SubmissionID).
				Str("feed_id", j.FeedID).
				Msg("processing job stuck mid-flight; retry it via the API")
		}
	}

	if cfg.Ingest.Enabled {
		log.Warn().
			Str("platform", cfg.Ingest.Platform).
			Msg("ingest enabled with the in-memory social client; mentions are not fetched from a live platform")
		poller := ingest.NewPoller(
			db,
			ingest.NewMemoryClient(),
			provider,
			approvers,
			engine,
			cfg.Ingest.Platform,
			cfg.Ingest.BotHandle,
			cfg.Ingest.Blacklist,
			cfg.Ingest.DailyLimit,
			cfg.Ingest.PollInterval,
		)
		go poller.Run(ctx)
		log.Info().
			Str("platform", cfg.Ingest.Platform).
			Dur("interval", cfg.Ingest.PollInterval).
			Msg("mention poller started")
	}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, db, provider, engine, orch, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	ct, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ct); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
