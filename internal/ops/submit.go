package ops

import (
	"context"

	"github.com/hpungsan/plate/internal/db"
	"github.com/hpungsan/plate/internal/errors"
	"github.com/hpungsan/plate/internal/events"
	"github.com/hpungsan/plate/internal/nutrition"
)

// submitAnalysis inserts a pending analysis job and schedules it. When the job
// carries a request key that already exists, the earlier job is returned and
// nothing is scheduled.
func submitAnalysis(ctx context.Context, d Deps, job *nutrition.AnalysisJob) (*SubmitOutput, error) {
	if job.RequestKey != nil {
		if existing, err := db.GetAnalysisJobByRequestKey(ctx, d.DB, *job.RequestKey); err == nil {
			return &SubmitOutput{JobID: existing.ID, Status: existing.Status, Deduplicated: true}, nil
		} else if !errors.Is(err, errors.ErrNotFound) {
			return nil, err
		}
	}

	if err := db.InsertAnalysisJob(ctx, d.DB, job); err != nil {
		if err == db.ErrUniqueConstraint && job.RequestKey != nil {
			// Lost a race with a concurrent submission of the same request
			existing, lookupErr := db.GetAnalysisJobByRequestKey(ctx, d.DB, *job.RequestKey)
			if lookupErr != nil {
				return nil, lookupErr
			}
			return &SubmitOutput{JobID: existing.ID, Status: existing.Status, Deduplicated: true}, nil
		}
		return nil, err
	}

	d.metrics().RecordSubmitted(ctx, string(job.Kind))
	d.publish(events.Event{Type: events.JobUpdated, UserID: job.UserID, ID: job.ID, Status: string(job.Status)})
	if d.Scheduler != nil {
		d.Scheduler.ScheduleAnalysis(job.ID)
	}

	return &SubmitOutput{JobID: job.ID, Status: job.Status}, nil
}

func newAnalysisJob(d Deps, kind nutrition.JobKind, ref, userID, date string, createdAt int64, requestID string) *nutrition.AnalysisJob {
	now := d.now().Unix()
	if createdAt <= 0 {
		createdAt = now
	}
	return &nutrition.AnalysisJob{
		ID:         nutrition.NewID(),
		Kind:       kind,
		SourceRef:  ref,
		UserID:     userID,
		Date:       date,
		CreatedAt:  createdAt,
		UpdatedAt:  now,
		Status:     nutrition.StatusPending,
		RequestKey: nutrition.RequestKey(string(kind), userID, requestID),
	}
}
