package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/phuslu/log"

	"github.com/hpungsan/plate/internal/db"
	"github.com/hpungsan/plate/internal/errors"
	"github.com/hpungsan/plate/internal/reconcile"
	"github.com/hpungsan/plate/internal/telemetry"
)

// Dispatcher starts one detached goroutine per accepted job. There is no cap
// on concurrency; Drain waits for in-flight work on shutdown.
type Dispatcher struct {
	analyzer *Analyzer
	logger   *log.Logger

	// base outlives the submitting request
	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDispatcher creates a Dispatcher around analyzer.
func NewDispatcher(analyzer *Analyzer, logger *log.Logger) *Dispatcher {
	base, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		analyzer: analyzer,
		logger:   telemetry.OrNop(logger),
		base:     base,
		cancel:   cancel,
	}
}

// ScheduleAnalysis runs an image or text job in the background.
func (d *Dispatcher) ScheduleAnalysis(jobID string) {
	d.spawn("analysis", jobID, func(ctx context.Context) error {
		_, err := d.analyzer.RunAnalysis(ctx, jobID)
		return err
	}, func(ctx context.Context, cause error) {
		job, err := db.GetAnalysisJob(ctx, d.analyzer.db, jobID)
		if err == nil {
			_, err = d.analyzer.rec.Analysis(ctx, job, reconcile.Failed(cause))
		}
		if err != nil {
			d.logger.Error().Err(err).Str("job_id", jobID).Msg("failed to record panic outcome")
		}
	})
}

// ScheduleFix runs a fix job in the background.
func (d *Dispatcher) ScheduleFix(fixID string) {
	d.spawn("fix", fixID, func(ctx context.Context) error {
		_, err := d.analyzer.RunFix(ctx, fixID)
		return err
	}, func(ctx context.Context, cause error) {
		fix, err := db.GetFixJob(ctx, d.analyzer.db, fixID)
		if err == nil {
			_, err = d.analyzer.rec.Fix(ctx, fix, reconcile.Failed(cause))
		}
		if err != nil {
			d.logger.Error().Err(err).Str("fix_job_id", fixID).Msg("failed to record panic outcome")
		}
	})
}

// spawn runs fn in a goroutine. A panic in fn is turned into a failed outcome
// via onPanic so nothing escapes the worker.
func (d *Dispatcher) spawn(kind, id string, fn func(context.Context) error, onPanic func(context.Context, error)) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error().Str("kind", kind).Str("id", id).Interface("panic", r).Msg("worker panicked")
				onPanic(d.base, errors.NewInternal(fmt.Errorf("worker panic: %v", r)))
			}
		}()

		if err := fn(d.base); err != nil {
			d.logger.Error().Err(err).Str("kind", kind).Str("id", id).Msg("job left pending")
		}
	}()
}

// Wait blocks until no job is in flight or ctx ends. Unlike Drain it leaves
// the dispatcher usable.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Drain waits for in-flight jobs. If ctx ends first, outstanding model calls
// are cancelled and Drain returns ctx.Err(); those jobs stay pending for the
// reaper.
func (d *Dispatcher) Drain(ctx context.Context) error {
	err := d.Wait(ctx)
	d.cancel()
	if err != nil {
		d.wg.Wait()
	}
	return err
}
