package ops

import (
	"context"
	"database/sql"
	"strings"

	"github.com/hpungsan/plate/internal/db"
	"github.com/hpungsan/plate/internal/nutrition"
)

// ListPendingInput contains parameters for the ListRecentPendingJobs operation.
type ListPendingInput struct {
	UserID string // optional filter
	Limit  int    // default: 3, max: 50
}

// ListPendingOutput contains the result of the ListRecentPendingJobs operation.
type ListPendingOutput struct {
	Items []nutrition.AnalysisJob `json:"items"`
	Limit int                     `json:"limit"`
	Sort  string                  `json:"sort"`
}

// ListRecentPendingJobs returns the most recent pending analysis jobs.
// Completed and failed jobs are never included.
func ListRecentPendingJobs(ctx context.Context, database *sql.DB, input ListPendingInput) (*ListPendingOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = DefaultPendingLimit
	}
	if limit > MaxPendingLimit {
		limit = MaxPendingLimit
	}

	jobs, err := db.ListPendingAnalysisJobs(ctx, database, strings.TrimSpace(input.UserID), limit)
	if err != nil {
		return nil, err
	}
	if jobs == nil {
		jobs = []nutrition.AnalysisJob{}
	}

	return &ListPendingOutput{
		Items: jobs,
		Limit: limit,
		Sort:  "created_at_desc",
	}, nil
}
