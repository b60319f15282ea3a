package ops

import (
	"context"

	"github.com/hpungsan/plate/internal/db"
	"github.com/hpungsan/plate/internal/errors"
	"github.com/hpungsan/plate/internal/events"
	"github.com/hpungsan/plate/internal/nutrition"
)

// SubmitFixInput contains parameters for the SubmitFixJob operation.
type SubmitFixInput struct {
	EntryID     string // required
	Instruction string // required, max 2000 chars
	CreatedAt   int64  // 0 means now
	RequestID   string
}

// SubmitFixJob accepts a correction for an existing entry. The entry is
// snapshotted now; the worker analyses the snapshot and the reconciler only
// applies the result if the entry has not changed since.
func SubmitFixJob(ctx context.Context, d Deps, input SubmitFixInput) (*SubmitOutput, error) {
	entryID, err := requireText("entry_id", input.EntryID, 0)
	if err != nil {
		return nil, err
	}
	instruction, err := requireText("instruction", input.Instruction, MaxInstructionChars)
	if err != nil {
		return nil, err
	}
	requestID, err := cleanRequestID(input.RequestID)
	if err != nil {
		return nil, err
	}

	key := nutrition.RequestKey("fix", entryID, requestID)
	if key != nil {
		if existing, err := db.GetFixJobByRequestKey(ctx, d.DB, *key); err == nil {
			return &SubmitOutput{JobID: existing.ID, Status: existing.Status, Deduplicated: true}, nil
		} else if !errors.Is(err, errors.ErrNotFound) {
			return nil, err
		}
	}

	snapshot, err := db.GetEntry(ctx, d.DB, entryID)
	if err != nil {
		return nil, err
	}

	now := d.now().Unix()
	createdAt := input.CreatedAt
	if createdAt <= 0 {
		createdAt = now
	}

	fix := &nutrition.FixJob{
		ID:                    nutrition.NewID(),
		EntryID:               entryID,
		Instruction:           instruction,
		Status:                nutrition.StatusPending,
		OriginalEntrySnapshot: *snapshot,
		CreatedAt:             createdAt,
		UpdatedAt:             now,
		RequestKey:            key,
	}

	if err := db.InsertFixJob(ctx, d.DB, fix); err != nil {
		if err == db.ErrUniqueConstraint && key != nil {
			existing, lookupErr := db.GetFixJobByRequestKey(ctx, d.DB, *key)
			if lookupErr != nil {
				return nil, lookupErr
			}
			return &SubmitOutput{JobID: existing.ID, Status: existing.Status, Deduplicated: true}, nil
		}
		return nil, err
	}

	d.metrics().RecordSubmitted(ctx, "fix")
	d.publish(events.Event{Type: events.FixJobUpdated, UserID: snapshot.UserID, ID: fix.ID, Status: string(fix.Status)})
	if d.Scheduler != nil {
		d.Scheduler.ScheduleFix(fix.ID)
	}

	return &SubmitOutput{JobID: fix.ID, Status: fix.Status}, nil
}
