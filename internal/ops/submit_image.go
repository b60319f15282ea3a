package ops

import (
	"context"
	"strings"

	"github.com/hpungsan/plate/internal/nutrition"
)

// SubmitImageInput contains parameters for the SubmitImageJob operation.
type SubmitImageInput struct {
	ImageRef string // object key or http(s) URL, required
	UserID   string // required
	Date     string // YYYY-MM-DD, required

	// CreatedAt is the caller's logical timestamp (unix seconds); 0 means now
	CreatedAt int64

	// RequestID makes the submission idempotent per user when set
	RequestID string
}

// SubmitImageJob accepts a meal photo for analysis. The image must resolve
// through the image resolver or NOT_FOUND is returned. The job id is returned
// before any analysis starts.
func SubmitImageJob(ctx context.Context, d Deps, input SubmitImageInput) (*SubmitOutput, error) {
	ref := strings.TrimSpace(input.ImageRef)
	userID, date, err := validateOwner(input.UserID, input.Date)
	if err != nil {
		return nil, err
	}
	requestID, err := cleanRequestID(input.RequestID)
	if err != nil {
		return nil, err
	}

	if err := d.images().Check(ctx, ref); err != nil {
		return nil, err
	}

	job := newAnalysisJob(d, nutrition.KindImage, ref, userID, date, input.CreatedAt, requestID)
	return submitAnalysis(ctx, d, job)
}
