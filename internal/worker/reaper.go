package worker

import (
	"context"
	"database/sql"
	"time"

	"github.com/phuslu/log"
	"github.com/robfig/cron/v3"

	"github.com/hpungsan/plate/internal/db"
	"github.com/hpungsan/plate/internal/nutrition"
	"github.com/hpungsan/plate/internal/reconcile"
	"github.com/hpungsan/plate/internal/telemetry"
)

// DefaultReaperSchedule runs the reaper once a minute.
const DefaultReaperSchedule = "@every 1m"

// ReapStats counts jobs failed by one reaper run.
type ReapStats struct {
	Analysis int `json:"analysis"`
	Fix      int `json:"fix"`
}

// Reaper fails pending jobs that have not been touched for stuckAfter. A job
// is stuck when its worker died (process restart, lost goroutine).
type Reaper struct {
	db         *sql.DB
	rec        *reconcile.Reconciler
	stuckAfter time.Duration
	metrics    *telemetry.Metrics
	logger     *log.Logger
	cron       *cron.Cron
	now        func() time.Time
}

// NewReaper creates a Reaper. metrics and logger may be nil.
func NewReaper(database *sql.DB, rec *reconcile.Reconciler, stuckAfter time.Duration, metrics *telemetry.Metrics, logger *log.Logger) *Reaper {
	if metrics == nil {
		metrics = telemetry.NewMetrics(nil)
	}
	return &Reaper{
		db:         database,
		rec:        rec,
		stuckAfter: stuckAfter,
		metrics:    metrics,
		logger:     telemetry.OrNop(logger),
		cron:       cron.New(),
		now:        time.Now,
	}
}

// Start schedules periodic runs. Standard cron expressions and "@every"
// descriptors are accepted.
func (r *Reaper) Start(schedule string) error {
	if schedule == "" {
		schedule = DefaultReaperSchedule
	}

	_, err := r.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		if _, err := r.RunOnce(ctx); err != nil {
			r.logger.Error().Err(err).Msg("reaper run failed")
		}
	})
	if err != nil {
		return err
	}

	r.cron.Start()
	r.logger.Info().
		Str("schedule", schedule).
		Dur("stuck_after", r.stuckAfter).
		Msg("stale job reaper started")
	return nil
}

// Stop halts the schedule and waits for a running pass to finish.
func (r *Reaper) Stop() {
	<-r.cron.Stop().Done()
	r.logger.Info().Msg("stale job reaper stopped")
}

// RunOnce fails every pending job whose updated_at is older than stuckAfter.
func (r *Reaper) RunOnce(ctx context.Context) (*ReapStats, error) {
	before := r.now().Add(-r.stuckAfter).Unix()
	stats := &ReapStats{}

	ids, err := db.ListStaleAnalysisJobIDs(ctx, r.db, before)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		job, err := db.GetAnalysisJob(ctx, r.db, id)
		if err != nil {
			return stats, err
		}
		rep, err := r.rec.Analysis(ctx, job, reconcile.FailedWith(nutrition.FailureStale))
		if err != nil {
			return stats, err
		}
		if rep.Applied {
			stats.Analysis++
		}
	}

	ids, err = db.ListStaleFixJobIDs(ctx, r.db, before)
	if err != nil {
		return stats, err
	}
	for _, id := range ids {
		fix, err := db.GetFixJob(ctx, r.db, id)
		if err != nil {
			return stats, err
		}
		rep, err := r.rec.Fix(ctx, fix, reconcile.FailedWith(nutrition.FailureStale))
		if err != nil {
			return stats, err
		}
		if rep.Applied {
			stats.Fix++
		}
	}

	if stats.Analysis > 0 {
		r.metrics.RecordReaped(ctx, "analysis", stats.Analysis)
	}
	if stats.Fix > 0 {
		r.metrics.RecordReaped(ctx, "fix", stats.Fix)
	}
	if stats.Analysis+stats.Fix > 0 {
		r.logger.Warn().Int("analysis", stats.Analysis).Int("fix", stats.Fix).Msg("failed stale pending jobs")
	}
	return stats, nil
}
