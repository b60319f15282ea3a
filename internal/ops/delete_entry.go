package ops

import (
	"context"

	"github.com/hpungsan/plate/internal/db"
	"github.com/hpungsan/plate/internal/events"
)

// DeleteEntryOutput contains the result of the DeleteEntry operation.
type DeleteEntryOutput struct {
	Deleted bool   `json:"deleted"`
	ID      string `json:"id"`
}

// DeleteEntry permanently removes an entry. Pending fix jobs that target it
// will fail with entry_missing when they finish.
func DeleteEntry(ctx context.Context, d Deps, id string) (*DeleteEntryOutput, error) {
	id, err := requireText("id", id, 0)
	if err != nil {
		return nil, err
	}

	entry, err := db.GetEntry(ctx, d.DB, id)
	if err != nil {
		return nil, err
	}
	if err := db.DeleteEntry(ctx, d.DB, id); err != nil {
		return nil, err
	}

	d.publish(events.Event{Type: events.EntryDeleted, UserID: entry.UserID, ID: id})
	return &DeleteEntryOutput{Deleted: true, ID: id}, nil
}
