package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/hpungsan/plate/internal/errors"
	"github.com/hpungsan/plate/internal/nutrition"
)

const entryColumns = `
	id, user_id, date, name, ingredients_json, total_protein, total_calories,
	amino_recommendation, image_url, entry_method, version, created_at, updated_at
`

// InsertEntry stores a new entry. Version is forced to 1.
func InsertEntry(ctx context.Context, q DBTX, e *nutrition.Entry) error {
	ingredients := e.Ingredients
	if ingredients == nil {
		ingredients = []nutrition.Ingredient{}
	}
	data, err := json.Marshal(ingredients)
	if err != nil {
		return errors.NewInternal(err)
	}

	e.Version = 1
	query := `
		INSERT INTO entries (` + entryColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = q.ExecContext(ctx, query,
		e.ID, e.UserID, e.Date, e.Name, string(data), e.TotalProteinEstimate,
		toNullFloat(e.TotalCalories), toNullString(e.AminoRecommendation),
		toNullString(e.ImageURL), string(e.EntryMethod), e.Version,
		e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrUniqueConstraint
		}
		return errors.NewInternal(err)
	}
	return nil
}

// GetEntry retrieves an entry by id.
func GetEntry(ctx context.Context, q DBTX, id string) (*nutrition.Entry, error) {
	row := q.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM entries WHERE id = ?`, id)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("entry", id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return e, nil
}

// ListEntries returns a user's entries, optionally restricted to one date,
// oldest first.
func ListEntries(ctx context.Context, q DBTX, userID, date string) ([]nutrition.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM entries WHERE user_id = ?`
	args := []any{userID}
	if date != "" {
		query += " AND date = ?"
		args = append(args, date)
	}
	query += " ORDER BY date ASC, created_at ASC, id ASC"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	entries := []nutrition.Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return entries, nil
}

// ReplaceEntryContent overwrites an entry's analysed content if its version
// still equals expectedVersion. Returns false when the entry is gone or has moved on.
// On success e.Version and e.UpdatedAt reflect the new row.
func ReplaceEntryContent(ctx context.Context, q DBTX, e *nutrition.Entry, expectedVersion int64) (bool, error) {
	ingredients := e.Ingredients
	if ingredients == nil {
		ingredients = []nutrition.Ingredient{}
	}
	data, err := json.Marshal(ingredients)
	if err != nil {
		return false, errors.NewInternal(err)
	}

	now := time.Now().Unix()
	query := `
		UPDATE entries
		SET name = ?, ingredients_json = ?, total_protein = ?, total_calories = ?,
			amino_recommendation = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`
	result, err := q.ExecContext(ctx, query,
		e.Name, string(data), e.TotalProteinEstimate, toNullFloat(e.TotalCalories),
		toNullString(e.AminoRecommendation), now,
		e.ID, expectedVersion,
	)
	if err != nil {
		return false, errors.NewInternal(err)
	}
	ok, err := affectedOne(result)
	if err != nil || !ok {
		return false, err
	}

	e.Version = expectedVersion + 1
	e.UpdatedAt = now
	return true, nil
}

// DeleteEntry hard-deletes an entry. Fix jobs referencing it are left in place.
func DeleteEntry(ctx context.Context, q DBTX, id string) error {
	result, err := q.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, id)
	if err != nil {
		return errors.NewInternal(err)
	}
	ok, err := affectedOne(result)
	if err != nil {
		return err
	}
	if !ok {
		return errors.NewNotFound("entry", id)
	}
	return nil
}

// scanEntry scans a single row into an Entry struct.
func scanEntry(row rowScanner) (*nutrition.Entry, error) {
	var (
		e               nutrition.Entry
		ingredientsJSON string
		calories        sql.NullFloat64
		amino           sql.NullString
		imageURL        sql.NullString
		method          string
	)

	err := row.Scan(
		&e.ID, &e.UserID, &e.Date, &e.Name, &ingredientsJSON, &e.TotalProteinEstimate,
		&calories, &amino, &imageURL, &method, &e.Version, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.TotalCalories = fromNullFloat(calories)
	e.AminoRecommendation = fromNullString(amino)
	e.ImageURL = fromNullString(imageURL)
	e.EntryMethod = nutrition.EntryMethod(method)

	if err := json.Unmarshal([]byte(ingredientsJSON), &e.Ingredients); err != nil {
		return nil, err
	}
	return &e, nil
}
