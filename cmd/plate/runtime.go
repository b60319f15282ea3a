package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/phuslu/log"
	"go.opentelemetry.io/otel"

	"github.com/hpungsan/plate/internal/config"
	"github.com/hpungsan/plate/internal/events"
	"github.com/hpungsan/plate/internal/llm"
	"github.com/hpungsan/plate/internal/ops"
	"github.com/hpungsan/plate/internal/reconcile"
	"github.com/hpungsan/plate/internal/storage"
	"github.com/hpungsan/plate/internal/telemetry"
	"github.com/hpungsan/plate/internal/worker"
)

// runtime is the wired process: store, model, workers and event hub.
type runtime struct {
	cfg        *config.Config
	db         *sql.DB
	logger     *log.Logger
	hub        *events.Hub
	deps       ops.Deps
	dispatcher *worker.Dispatcher
	reaper     *worker.Reaper
}

// newRuntime wires every collaborator. A model provider that cannot be built
// is logged and replaced by one that fails each call, so read-only commands
// keep working without credentials.
func newRuntime(ctx context.Context, database *sql.DB, cfg *config.Config, logger *log.Logger, model llm.Client) (*runtime, error) {
	logger = telemetry.OrNop(logger)

	if model == nil {
		m, err := llm.New(ctx, cfg.LLM, cfg.LLMTimeout())
		if err != nil {
			logger.Warn().Err(err).Str("provider", cfg.LLM.Provider).Msg("model provider unavailable; analysis jobs will fail")
			m = llm.Unavailable(cfg.LLM.Provider, err)
		}
		model = m
	}

	var store storage.ObjectStore
	if cfg.Storage.Bucket != "" {
		s3Store, err := storage.NewS3Store(ctx, cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("object store: %w", err)
		}
		store = s3Store
	}
	images := storage.NewResolver(store, cfg.PresignTTL())

	metrics := telemetry.NewMetrics(otel.GetMeterProvider())
	tracer := telemetry.NewTracer(otel.GetTracerProvider())
	hub := events.NewHub(logger)
	rec := reconcile.New(database, hub, metrics, logger)

	analyzer := worker.NewAnalyzer(worker.AnalyzerOptions{
		DB:         database,
		Model:      model,
		Images:     images,
		Reconciler: rec,
		Metrics:    metrics,
		Tracer:     tracer,
		Logger:     logger,
	})
	dispatcher := worker.NewDispatcher(analyzer, logger)

	return &runtime{
		cfg:    cfg,
		db:     database,
		logger: logger,
		hub:    hub,
		deps: ops.Deps{
			DB:        database,
			Images:    images,
			Scheduler: dispatcher,
			Events:    hub,
			Metrics:   metrics,
		},
		dispatcher: dispatcher,
		reaper:     worker.NewReaper(database, rec, cfg.StuckAfter(), metrics, logger),
	}, nil
}

// startReaper schedules the stale-job sweep for long-running modes.
func (rt *runtime) startReaper() error {
	return rt.reaper.Start(rt.cfg.Jobs.ReaperSchedule)
}

// close stops the reaper and waits for in-flight jobs, bounded by ctx.
func (rt *runtime) close(ctx context.Context) {
	rt.reaper.Stop()
	if err := rt.dispatcher.Drain(ctx); err != nil {
		rt.logger.Warn().Err(err).Msg("shutdown interrupted in-flight jobs; they stay pending until reaped")
	}
}
