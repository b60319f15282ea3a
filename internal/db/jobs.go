package db

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/hpungsan/plate/internal/errors"
	"github.com/hpungsan/plate/internal/nutrition"
)

const analysisJobColumns = `
	id, kind, source_ref, user_id, date, status, result_json, failure,
	entry_id, request_key, created_at, updated_at
`

// InsertAnalysisJob stores a new pending analysis job.
// Returns ErrUniqueConstraint when the request key is already taken.
func InsertAnalysisJob(ctx context.Context, q DBTX, j *nutrition.AnalysisJob) error {
	query := `
		INSERT INTO analysis_jobs (` + analysisJobColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, NULL, NULL, NULL, ?, ?, ?)
	`
	_, err := q.ExecContext(ctx, query,
		j.ID, string(j.Kind), j.SourceRef, j.UserID, j.Date, string(nutrition.StatusPending),
		toNullString(j.RequestKey), j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrUniqueConstraint
		}
		return errors.NewInternal(err)
	}
	j.Status = nutrition.StatusPending
	return nil
}

// GetAnalysisJob retrieves an analysis job by id.
func GetAnalysisJob(ctx context.Context, q DBTX, id string) (*nutrition.AnalysisJob, error) {
	row := q.QueryRowContext(ctx, `SELECT `+analysisJobColumns+` FROM analysis_jobs WHERE id = ?`, id)
	j, err := scanAnalysisJob(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("job", id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return j, nil
}

// GetAnalysisJobByRequestKey finds the job created for an idempotency key.
func GetAnalysisJobByRequestKey(ctx context.Context, q DBTX, key string) (*nutrition.AnalysisJob, error) {
	row := q.QueryRowContext(ctx, `SELECT `+analysisJobColumns+` FROM analysis_jobs WHERE request_key = ?`, key)
	j, err := scanAnalysisJob(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("job", key)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return j, nil
}

// FinishAnalysisJob applies the single terminal transition of a job.
// The update is guarded by status = 'pending'; it returns false when the job
// was already terminal (or does not exist) and nothing was written.
func FinishAnalysisJob(ctx context.Context, q DBTX, id string, status nutrition.Status, result *nutrition.Result, failure, entryID *string, now int64) (bool, error) {
	resultJSON, err := toJSON(result)
	if err != nil {
		return false, errors.NewInternal(err)
	}

	query := `
		UPDATE analysis_jobs
		SET status = ?, result_json = ?, failure = ?, entry_id = ?, updated_at = ?
		WHERE id = ? AND status = 'pending'
	`
	res, err := q.ExecContext(ctx, query,
		string(status), resultJSON, toNullString(failure), toNullString(entryID), now, id,
	)
	if err != nil {
		return false, errors.NewInternal(err)
	}
	return affectedOne(res)
}

// ListPendingAnalysisJobs returns pending jobs most-recent-first, bounded by limit.
// An empty userID lists across all users.
func ListPendingAnalysisJobs(ctx context.Context, q DBTX, userID string, limit int) ([]nutrition.AnalysisJob, error) {
	query := `SELECT ` + analysisJobColumns + ` FROM analysis_jobs WHERE status = 'pending'`
	args := []any{}
	if userID != "" {
		query += " AND user_id = ?"
		args = append(args, userID)
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	jobs := []nutrition.AnalysisJob{}
	for rows.Next() {
		j, err := scanAnalysisJob(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		jobs = append(jobs, *j)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return jobs, nil
}

// ListStaleAnalysisJobIDs returns ids of pending jobs not touched since before.
func ListStaleAnalysisJobIDs(ctx context.Context, q DBTX, before int64) ([]string, error) {
	return listIDs(ctx, q, `
		SELECT id FROM analysis_jobs
		WHERE status = 'pending' AND updated_at < ?
		ORDER BY updated_at ASC
	`, before)
}

func listIDs(ctx context.Context, q DBTX, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.NewInternal(err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return ids, nil
}

// scanAnalysisJob scans a single row into an AnalysisJob struct.
func scanAnalysisJob(row rowScanner) (*nutrition.AnalysisJob, error) {
	var (
		j          nutrition.AnalysisJob
		kind       string
		status     string
		resultJSON sql.NullString
		failure    sql.NullString
		entryID    sql.NullString
		requestKey sql.NullString
	)

	err := row.Scan(
		&j.ID, &kind, &j.SourceRef, &j.UserID, &j.Date, &status, &resultJSON, &failure,
		&entryID, &requestKey, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	j.Kind = nutrition.JobKind(kind)
	j.Status = nutrition.Status(status)
	j.Failure = fromNullString(failure)
	j.EntryID = fromNullString(entryID)
	j.RequestKey = fromNullString(requestKey)

	if resultJSON.Valid && resultJSON.String != "" {
		j.Result = &nutrition.Result{}
		if err := json.Unmarshal([]byte(resultJSON.String), j.Result); err != nil {
			return nil, err
		}
	}
	return &j, nil
}
