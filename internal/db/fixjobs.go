package db

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/hpungsan/plate/internal/errors"
	"github.com/hpungsan/plate/internal/nutrition"
)

const fixJobColumns = `
	id, entry_id, instruction, status, snapshot_json, result_json, failure,
	request_key, created_at, updated_at
`

// InsertFixJob stores a new pending fix job together with its entry snapshot.
func InsertFixJob(ctx context.Context, q DBTX, f *nutrition.FixJob) error {
	snapshot, err := json.Marshal(f.OriginalEntrySnapshot)
	if err != nil {
		return errors.NewInternal(err)
	}

	query := `
		INSERT INTO fix_jobs (` + fixJobColumns + `)
		VALUES (?, ?, ?, ?, ?, NULL, NULL, ?, ?, ?)
	`
	_, err = q.ExecContext(ctx, query,
		f.ID, f.EntryID, f.Instruction, string(nutrition.StatusPending), string(snapshot),
		toNullString(f.RequestKey), f.CreatedAt, f.UpdatedAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrUniqueConstraint
		}
		return errors.NewInternal(err)
	}
	f.Status = nutrition.StatusPending
	return nil
}

// GetFixJob retrieves a fix job by id.
func GetFixJob(ctx context.Context, q DBTX, id string) (*nutrition.FixJob, error) {
	row := q.QueryRowContext(ctx, `SELECT `+fixJobColumns+` FROM fix_jobs WHERE id = ?`, id)
	f, err := scanFixJob(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("fix job", id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return f, nil
}

// GetFixJobByRequestKey finds the fix job created for an idempotency key.
func GetFixJobByRequestKey(ctx context.Context, q DBTX, key string) (*nutrition.FixJob, error) {
	row := q.QueryRowContext(ctx, `SELECT `+fixJobColumns+` FROM fix_jobs WHERE request_key = ?`, key)
	f, err := scanFixJob(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("fix job", key)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return f, nil
}

// FinishFixJob applies the single terminal transition of a fix job, guarded by
// status = 'pending'. Returns false when nothing was written.
func FinishFixJob(ctx context.Context, q DBTX, id string, status nutrition.Status, result *nutrition.Result, failure *string, now int64) (bool, error) {
	resultJSON, err := toJSON(result)
	if err != nil {
		return false, errors.NewInternal(err)
	}

	query := `
		UPDATE fix_jobs
		SET status = ?, result_json = ?, failure = ?, updated_at = ?
		WHERE id = ? AND status = 'pending'
	`
	res, err := q.ExecContext(ctx, query, string(status), resultJSON, toNullString(failure), now, id)
	if err != nil {
		return false, errors.NewInternal(err)
	}
	return affectedOne(res)
}

// ListFixJobs returns every pending fix job plus terminal ones created at or
// after since, most-recent-first.
func ListFixJobs(ctx context.Context, q DBTX, since int64) ([]nutrition.FixJob, error) {
	query := `
		SELECT ` + fixJobColumns + ` FROM fix_jobs
		WHERE status = 'pending' OR created_at >= ?
		ORDER BY created_at DESC, id DESC
	`
	rows, err := q.QueryContext(ctx, query, since)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	jobs := []nutrition.FixJob{}
	for rows.Next() {
		f, err := scanFixJob(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		jobs = append(jobs, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return jobs, nil
}

// ListStaleFixJobIDs returns ids of pending fix jobs not touched since before.
func ListStaleFixJobIDs(ctx context.Context, q DBTX, before int64) ([]string, error) {
	return listIDs(ctx, q, `
		SELECT id FROM fix_jobs
		WHERE status = 'pending' AND updated_at < ?
		ORDER BY updated_at ASC
	`, before)
}

// scanFixJob scans a single row into a FixJob struct.
func scanFixJob(row rowScanner) (*nutrition.FixJob, error) {
	var (
		f            nutrition.FixJob
		status       string
		snapshotJSON string
		resultJSON   sql.NullString
		failure      sql.NullString
		requestKey   sql.NullString
	)

	err := row.Scan(
		&f.ID, &f.EntryID, &f.Instruction, &status, &snapshotJSON, &resultJSON, &failure,
		&requestKey, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	f.Status = nutrition.Status(status)
	f.Failure = fromNullString(failure)
	f.RequestKey = fromNullString(requestKey)

	if err := json.Unmarshal([]byte(snapshotJSON), &f.OriginalEntrySnapshot); err != nil {
		return nil, err
	}
	if resultJSON.Valid && resultJSON.String != "" {
		f.Result = &nutrition.Result{}
		if err := json.Unmarshal([]byte(resultJSON.String), f.Result); err != nil {
			return nil, err
		}
	}
	return &f, nil
}
