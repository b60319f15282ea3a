package ops

import (
	"context"
	"database/sql"
	"strings"

	"github.com/hpungsan/plate/internal/db"
	"github.com/hpungsan/plate/internal/errors"
	"github.com/hpungsan/plate/internal/nutrition"
)

// GetJob retrieves an analysis job by id. A job that is still pending has a
// nil Result.
func GetJob(ctx context.Context, database *sql.DB, id string) (*nutrition.AnalysisJob, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.NewInvalidRequest("id is required")
	}
	return db.GetAnalysisJob(ctx, database, id)
}

// GetFixJob retrieves a fix job, including its frozen entry snapshot.
func GetFixJob(ctx context.Context, database *sql.DB, id string) (*nutrition.FixJob, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.NewInvalidRequest("id is required")
	}
	return db.GetFixJob(ctx, database, id)
}

// GetEntry retrieves an entry by id.
func GetEntry(ctx context.Context, database *sql.DB, id string) (*nutrition.Entry, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.NewInvalidRequest("id is required")
	}
	return db.GetEntry(ctx, database, id)
}
