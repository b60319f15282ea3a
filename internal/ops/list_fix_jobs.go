package ops

import (
	"context"
	"database/sql"
	"time"

	"github.com/hpungsan/plate/internal/db"
	"github.com/hpungsan/plate/internal/nutrition"
)

// ListFixJobsInput contains parameters for the ListFixJobs operation.
type ListFixJobsInput struct {
	// Now anchors the retention window; zero means time.Now()
	Now time.Time

	// Retention defaults to one hour
	Retention time.Duration
}

// ListFixJobsOutput contains the result of the ListFixJobs operation.
type ListFixJobsOutput struct {
	Items []nutrition.FixJob `json:"items"`

	// Since is the unix cutoff for terminal jobs
	Since int64 `json:"since"`
}

// ListFixJobs returns every pending fix job plus terminal ones created within
// the retention window before Now. Older terminal jobs are hidden, not deleted.
func ListFixJobs(ctx context.Context, database *sql.DB, input ListFixJobsInput) (*ListFixJobsOutput, error) {
	now := input.Now
	if now.IsZero() {
		now = time.Now()
	}
	retention := input.Retention
	if retention <= 0 {
		retention = DefaultFixRetention
	}
	since := now.Add(-retention).Unix()

	jobs, err := db.ListFixJobs(ctx, database, since)
	if err != nil {
		return nil, err
	}
	if jobs == nil {
		jobs = []nutrition.FixJob{}
	}

	return &ListFixJobsOutput{Items: jobs, Since: since}, nil
}
