// Package reconcile turns a worker's outcome into the job's single terminal
// transition and the matching entry write.
package reconcile

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	"github.com/phuslu/log"

	"github.com/hpungsan/plate/internal/db"
	"github.com/hpungsan/plate/internal/errors"
	"github.com/hpungsan/plate/internal/events"
	"github.com/hpungsan/plate/internal/nutrition"
	"github.com/hpungsan/plate/internal/telemetry"
)

// errNotApplied aborts a transaction whose guarded job update found the job
// already terminal.
var errNotApplied = stderrors.New("job already terminal")

// Outcome is what the worker hands over: a validated payload on success, or a
// failure cause.
type Outcome struct {
	Payload *nutrition.Payload
	Err     error

	// Failure overrides the code derived from Err (used by the reaper)
	Failure string
}

// Success wraps a validated payload.
func Success(p *nutrition.Payload) Outcome {
	return Outcome{Payload: p}
}

// Failed wraps a failure cause.
func Failed(err error) Outcome {
	return Outcome{Err: err}
}

// FailedWith fails with an explicit failure code.
func FailedWith(code string) Outcome {
	return Outcome{Failure: code}
}

func (o Outcome) failed() bool {
	return o.Payload == nil
}

func (o Outcome) failureCode() string {
	if o.Failure != "" {
		return o.Failure
	}
	return FailureCode(o.Err)
}

// FailureCode maps a worker error to the short code stored on the job.
func FailureCode(err error) string {
	switch errors.CodeOf(err) {
	case errors.ErrNoFoodDetected:
		return nutrition.FailureNoFood
	case errors.ErrUpstreamParse:
		return nutrition.FailureUpstreamParse
	case errors.ErrUpstreamUnavailable:
		return nutrition.FailureUpstreamUnavailable
	case errors.ErrNotFound:
		return nutrition.FailureSourceMissing
	default:
		return nutrition.FailureInternal
	}
}

// Report describes what a reconcile call did.
type Report struct {
	// Applied is false when the job was already terminal and nothing changed
	Applied bool             `json:"applied"`
	Status  nutrition.Status `json:"status"`
	Failure string           `json:"failure,omitempty"`
	EntryID string           `json:"entryId,omitempty"`
}

// Reconciler is the only writer of job terminal states.
type Reconciler struct {
	db      *sql.DB
	events  events.Publisher
	metrics *telemetry.Metrics
	logger  *log.Logger
	now     func() time.Time
}

// New creates a Reconciler. pub and metrics may be nil.
func New(database *sql.DB, pub events.Publisher, metrics *telemetry.Metrics, logger *log.Logger) *Reconciler {
	if pub == nil {
		pub = events.Discard{}
	}
	if metrics == nil {
		metrics = telemetry.NewMetrics(nil)
	}
	return &Reconciler{
		db:      database,
		events:  pub,
		metrics: metrics,
		logger:  telemetry.OrNop(logger),
		now:     time.Now,
	}
}

// Analysis finalizes an image or text job. On success the entry is inserted in
// the same transaction as the job's transition. Store errors are returned as
// INTERNAL and leave the job pending.
func (r *Reconciler) Analysis(ctx context.Context, job *nutrition.AnalysisJob, out Outcome) (*Report, error) {
	now := r.now().Unix()

	if out.failed() {
		code := out.failureCode()
		ok, err := db.FinishAnalysisJob(ctx, r.db, job.ID, nutrition.StatusFailed, nutrition.ZeroResult(), &code, nil, now)
		if err != nil {
			return nil, err
		}
		if !ok {
			return r.currentAnalysis(ctx, job.ID)
		}
		r.afterAnalysis(ctx, job, nutrition.StatusFailed, code, "")
		return &Report{Applied: true, Status: nutrition.StatusFailed, Failure: code}, nil
	}

	result := nutrition.Normalize(out.Payload)
	entry := &nutrition.Entry{
		ID:                   nutrition.NewID(),
		UserID:               job.UserID,
		Date:                 job.Date,
		Name:                 result.Name,
		Ingredients:          result.Ingredients,
		TotalProteinEstimate: result.TotalProteinEstimate,
		TotalCalories:        result.TotalCalories,
		AminoRecommendation:  result.AminoRecommendation,
		EntryMethod:          nutrition.MethodText,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if job.Kind == nutrition.KindImage {
		ref := job.SourceRef
		entry.ImageURL = &ref
		entry.EntryMethod = nutrition.MethodImage
	}

	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		ok, err := db.FinishAnalysisJob(ctx, tx, job.ID, nutrition.StatusCompleted, result, nil, &entry.ID, now)
		if err != nil {
			return err
		}
		if !ok {
			return errNotApplied
		}
		return db.InsertEntry(ctx, tx, entry)
	})
	if err == errNotApplied {
		return r.currentAnalysis(ctx, job.ID)
	}
	if err != nil {
		return nil, err
	}

	r.afterAnalysis(ctx, job, nutrition.StatusCompleted, "", entry.ID)
	return &Report{Applied: true, Status: nutrition.StatusCompleted, EntryID: entry.ID}, nil
}

func (r *Reconciler) afterAnalysis(ctx context.Context, job *nutrition.AnalysisJob, status nutrition.Status, failure, entryID string) {
	r.metrics.RecordFinished(ctx, string(job.Kind), string(status), failure)
	r.logger.Info().
		Str("job_id", job.ID).
		Str("kind", string(job.Kind)).
		Str("status", string(status)).
		Str("failure", failure).
		Str("entry_id", entryID).
		Msg("analysis job finished")

	r.events.Publish(events.Event{Type: events.JobUpdated, UserID: job.UserID, ID: job.ID, Status: string(status)})
	if entryID != "" {
		r.events.Publish(events.Event{Type: events.EntryUpdated, UserID: job.UserID, ID: entryID})
	}
}

func (r *Reconciler) currentAnalysis(ctx context.Context, id string) (*Report, error) {
	cur, err := db.GetAnalysisJob(ctx, r.db, id)
	if err != nil {
		return nil, err
	}
	rep := &Report{Applied: false, Status: cur.Status}
	if cur.Failure != nil {
		rep.Failure = *cur.Failure
	}
	if cur.EntryID != nil {
		rep.EntryID = *cur.EntryID
	}
	return rep, nil
}

// Fix finalizes a fix job. On success the target entry's content is replaced
// only if its version still matches the snapshot; otherwise the fix fails with
// "conflict" (entry changed) or "entry_missing" (entry deleted). On model
// failure only the fix job changes.
func (r *Reconciler) Fix(ctx context.Context, fix *nutrition.FixJob, out Outcome) (*Report, error) {
	now := r.now().Unix()
	userID := fix.OriginalEntrySnapshot.UserID

	if out.failed() {
		code := out.failureCode()
		ok, err := db.FinishFixJob(ctx, r.db, fix.ID, nutrition.StatusFailed, nutrition.ZeroResult(), &code, now)
		if err != nil {
			return nil, err
		}
		if !ok {
			return r.currentFix(ctx, fix.ID)
		}
		r.afterFix(ctx, fix, userID, nutrition.StatusFailed, code, false)
		return &Report{Applied: true, Status: nutrition.StatusFailed, Failure: code, EntryID: fix.EntryID}, nil
	}

	result := nutrition.Normalize(out.Payload)
	status := nutrition.StatusCompleted
	failure := ""

	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		updated := &nutrition.Entry{
			ID:                   fix.EntryID,
			Name:                 result.Name,
			Ingredients:          result.Ingredients,
			TotalProteinEstimate: result.TotalProteinEstimate,
			TotalCalories:        result.TotalCalories,
			AminoRecommendation:  result.AminoRecommendation,
		}
		replaced, err := db.ReplaceEntryContent(ctx, tx, updated, fix.OriginalEntrySnapshot.Version)
		if err != nil {
			return err
		}

		stored := result
		var failurePtr *string
		if !replaced {
			failure = nutrition.FailureConflict
			if _, err := db.GetEntry(ctx, tx, fix.EntryID); errors.Is(err, errors.ErrNotFound) {
				failure = nutrition.FailureEntryMissing
			} else if err != nil {
				return err
			}
			status = nutrition.StatusFailed
			stored = nutrition.ZeroResult()
			failurePtr = &failure
		}

		ok, err := db.FinishFixJob(ctx, tx, fix.ID, status, stored, failurePtr, now)
		if err != nil {
			return err
		}
		if !ok {
			return errNotApplied
		}
		return nil
	})
	if err == errNotApplied {
		return r.currentFix(ctx, fix.ID)
	}
	if err != nil {
		return nil, err
	}

	r.afterFix(ctx, fix, userID, status, failure, status == nutrition.StatusCompleted)
	return &Report{Applied: true, Status: status, Failure: failure, EntryID: fix.EntryID}, nil
}

func (r *Reconciler) afterFix(ctx context.Context, fix *nutrition.FixJob, userID string, status nutrition.Status, failure string, entryChanged bool) {
	r.metrics.RecordFinished(ctx, "fix", string(status), failure)
	r.logger.Info().
		Str("fix_job_id", fix.ID).
		Str("entry_id", fix.EntryID).
		Str("status", string(status)).
		Str("failure", failure).
		Msg("fix job finished")

	r.events.Publish(events.Event{Type: events.FixJobUpdated, UserID: userID, ID: fix.ID, Status: string(status)})
	if entryChanged {
		r.events.Publish(events.Event{Type: events.EntryUpdated, UserID: userID, ID: fix.EntryID})
	}
}

func (r *Reconciler) currentFix(ctx context.Context, id string) (*Report, error) {
	cur, err := db.GetFixJob(ctx, r.db, id)
	if err != nil {
		return nil, err
	}
	rep := &Report{Applied: false, Status: cur.Status, EntryID: cur.EntryID}
	if cur.Failure != nil {
		rep.Failure = *cur.Failure
	}
	return rep, nil
}
