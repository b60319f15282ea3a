package ops

import (
	"context"

	"github.com/hpungsan/plate/internal/nutrition"
)

// SubmitTextInput contains parameters for the SubmitTextJob operation.
type SubmitTextInput struct {
	Description string // required, max 4000 chars
	UserID      string // required
	Date        string // YYYY-MM-DD, required
	CreatedAt   int64  // 0 means now
	RequestID   string
}

// SubmitTextJob accepts a free-text meal description for analysis.
func SubmitTextJob(ctx context.Context, d Deps, input SubmitTextInput) (*SubmitOutput, error) {
	description, err := requireText("description", input.Description, MaxDescriptionChars)
	if err != nil {
		return nil, err
	}
	userID, date, err := validateOwner(input.UserID, input.Date)
	if err != nil {
		return nil, err
	}
	requestID, err := cleanRequestID(input.RequestID)
	if err != nil {
		return nil, err
	}

	job := newAnalysisJob(d, nutrition.KindText, description, userID, date, input.CreatedAt, requestID)
	return submitAnalysis(ctx, d, job)
}
