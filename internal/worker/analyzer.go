// Package worker runs accepted jobs in the background: one model call per job,
// then hand-off to the reconciler.
package worker

import (
	"context"
	"database/sql"
	"time"

	"github.com/phuslu/log"

	"github.com/hpungsan/plate/internal/db"
	"github.com/hpungsan/plate/internal/errors"
	"github.com/hpungsan/plate/internal/llm"
	"github.com/hpungsan/plate/internal/nutrition"
	"github.com/hpungsan/plate/internal/reconcile"
	"github.com/hpungsan/plate/internal/storage"
	"github.com/hpungsan/plate/internal/telemetry"
)

// Analyzer executes a single job end to end.
type Analyzer struct {
	db      *sql.DB
	model   llm.Client
	images  *storage.Resolver
	rec     *reconcile.Reconciler
	metrics *telemetry.Metrics
	tracer  *telemetry.Tracer
	logger  *log.Logger
}

// AnalyzerOptions wires an Analyzer. Metrics, Tracer and Logger are optional.
type AnalyzerOptions struct {
	DB         *sql.DB
	Model      llm.Client
	Images     *storage.Resolver
	Reconciler *reconcile.Reconciler
	Metrics    *telemetry.Metrics
	Tracer     *telemetry.Tracer
	Logger     *log.Logger
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(opts AnalyzerOptions) *Analyzer {
	a := &Analyzer{
		db:      opts.DB,
		model:   opts.Model,
		images:  opts.Images,
		rec:     opts.Reconciler,
		metrics: opts.Metrics,
		tracer:  opts.Tracer,
		logger:  telemetry.OrNop(opts.Logger),
	}
	if a.images == nil {
		a.images = storage.NewResolver(nil, 0)
	}
	if a.metrics == nil {
		a.metrics = telemetry.NewMetrics(nil)
	}
	if a.tracer == nil {
		a.tracer = telemetry.NewTracer(nil)
	}
	return a
}

// RunAnalysis processes an image or text job. A job that is no longer pending
// is reported without calling the model. The returned error is non-nil only
// when the outcome could not be persisted; the job then stays pending.
func (a *Analyzer) RunAnalysis(ctx context.Context, jobID string) (rep *reconcile.Report, err error) {
	job, err := db.GetAnalysisJob(ctx, a.db, jobID)
	if err != nil {
		return nil, err
	}

	ctx, span := a.tracer.StartJob(ctx, string(job.Kind), job.ID)
	defer func() { telemetry.EndSpan(span, err) }()

	if job.Status.Terminal() {
		return reportOf(job.Status, job.Failure), nil
	}

	var out reconcile.Outcome
	req, err := a.analysisRequest(ctx, job)
	if err != nil {
		out = reconcile.Failed(err)
	} else {
		out = a.call(ctx, req)
	}

	rep, err = a.rec.Analysis(ctx, job, out)
	if err != nil {
		a.logger.Error().Err(err).Str("job_id", job.ID).Msg("failed to reconcile analysis job")
		return nil, err
	}
	return rep, nil
}

// RunFix processes a fix job against its frozen snapshot.
func (a *Analyzer) RunFix(ctx context.Context, fixID string) (rep *reconcile.Report, err error) {
	fix, err := db.GetFixJob(ctx, a.db, fixID)
	if err != nil {
		return nil, err
	}

	ctx, span := a.tracer.StartJob(ctx, "fix", fix.ID)
	defer func() { telemetry.EndSpan(span, err) }()

	if fix.Status.Terminal() {
		rep := reportOf(fix.Status, fix.Failure)
		rep.EntryID = fix.EntryID
		return rep, nil
	}

	out := a.call(ctx, llm.FixPrompt(fix.OriginalEntrySnapshot, fix.Instruction))

	rep, err = a.rec.Fix(ctx, fix, out)
	if err != nil {
		a.logger.Error().Err(err).Str("fix_job_id", fix.ID).Msg("failed to reconcile fix job")
		return nil, err
	}
	return rep, nil
}

func (a *Analyzer) analysisRequest(ctx context.Context, job *nutrition.AnalysisJob) (llm.Request, error) {
	if job.Kind == nutrition.KindText {
		return llm.TextPrompt(job.SourceRef), nil
	}
	url, err := a.images.URL(ctx, job.SourceRef)
	if err != nil {
		return llm.Request{}, err
	}
	return llm.ImagePrompt(url), nil
}

// call makes exactly one model call and validates the reply.
func (a *Analyzer) call(ctx context.Context, req llm.Request) reconcile.Outcome {
	provider := a.model.Name()
	callCtx, span := a.tracer.StartModelCall(ctx, provider)
	start := time.Now()

	raw, err := a.model.Complete(callCtx, req)
	a.metrics.RecordModelCall(ctx, provider, time.Since(start), err == nil)
	telemetry.EndSpan(span, err)

	if err != nil {
		a.logger.Warn().Err(err).Str("provider", provider).Msg("model call failed")
		return reconcile.Failed(errors.NewUpstreamUnavailable(err))
	}

	payload, err := nutrition.ParsePayload(raw)
	if err != nil {
		a.logger.Warn().Err(err).Str("provider", provider).Int("reply_bytes", len(raw)).Msg("model reply rejected")
		return reconcile.Failed(err)
	}
	return reconcile.Success(payload)
}

func reportOf(status nutrition.Status, failure *string) *reconcile.Report {
	rep := &reconcile.Report{Applied: false, Status: status}
	if failure != nil {
		rep.Failure = *failure
	}
	return rep
}
