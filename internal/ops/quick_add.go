package ops

import (
	"context"

	"github.com/hpungsan/plate/internal/db"
	"github.com/hpungsan/plate/internal/errors"
	"github.com/hpungsan/plate/internal/events"
	"github.com/hpungsan/plate/internal/nutrition"
)

// QuickAddInput contains parameters for the QuickAddEntry operation.
type QuickAddInput struct {
	UserID              string
	Date                string
	Name                string
	Ingredients         []nutrition.Ingredient
	AminoRecommendation *string
	ImageURL            *string

	// Method is quick_add (default) or saved_food
	Method nutrition.EntryMethod
}

// QuickAddOutput contains the result of the QuickAddEntry operation.
type QuickAddOutput struct {
	Entry nutrition.Entry `json:"entry"`
}

// QuickAddEntry records an entry directly from caller-supplied ingredients,
// without a model call. Any total the caller might have computed is ignored;
// the protein total is always derived from the ingredients.
func QuickAddEntry(ctx context.Context, d Deps, input QuickAddInput) (*QuickAddOutput, error) {
	userID, date, err := validateOwner(input.UserID, input.Date)
	if err != nil {
		return nil, err
	}

	method := input.Method
	if method == "" {
		method = nutrition.MethodQuickAdd
	}
	if method != nutrition.MethodQuickAdd && method != nutrition.MethodSavedFood {
		return nil, errors.NewInvalidRequest("entry_method must be one of: quick_add, saved_food")
	}

	result, err := nutrition.NormalizeIngredients(input.Name, input.Ingredients)
	if err != nil {
		return nil, err
	}

	now := d.now().Unix()
	entry := &nutrition.Entry{
		ID:                   nutrition.NewID(),
		UserID:               userID,
		Date:                 date,
		Name:                 result.Name,
		Ingredients:          result.Ingredients,
		TotalProteinEstimate: result.TotalProteinEstimate,
		TotalCalories:        result.TotalCalories,
		AminoRecommendation:  cleanOptionalString(input.AminoRecommendation),
		ImageURL:             cleanOptionalString(input.ImageURL),
		EntryMethod:          method,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if err := db.InsertEntry(ctx, d.DB, entry); err != nil {
		return nil, err
	}

	d.publish(events.Event{Type: events.EntryUpdated, UserID: entry.UserID, ID: entry.ID})
	return &QuickAddOutput{Entry: *entry}, nil
}
