package ops

import (
	"context"
	"database/sql"
	"strings"

	"github.com/hpungsan/plate/internal/db"
	"github.com/hpungsan/plate/internal/errors"
	"github.com/hpungsan/plate/internal/nutrition"
)

// ListEntriesInput contains parameters for the ListEntries operation.
type ListEntriesInput struct {
	UserID string // required
	Date   string // optional YYYY-MM-DD
}

// ListEntriesOutput contains the result of the ListEntries operation.
type ListEntriesOutput struct {
	Items []nutrition.Entry `json:"items"`

	// TotalProtein sums the listed entries, e.g. a day's intake
	TotalProtein float64 `json:"totalProtein"`
}

// ListEntries returns a user's entries, optionally for a single day.
func ListEntries(ctx context.Context, database *sql.DB, input ListEntriesInput) (*ListEntriesOutput, error) {
	userID, err := requireText("user_id", input.UserID, 0)
	if err != nil {
		return nil, err
	}
	date := strings.TrimSpace(input.Date)
	if date != "" && !nutrition.ValidDate(date) {
		return nil, errors.NewInvalidRequest("date must be YYYY-MM-DD")
	}

	entries, err := db.ListEntries(ctx, database, userID, date)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []nutrition.Entry{}
	}

	return &ListEntriesOutput{
		Items:        entries,
		TotalProtein: nutrition.SumProtein(entries),
	}, nil
}
