package ops

import (
	"database/sql"
	"strings"
	"time"

	"github.com/hpungsan/plate/internal/errors"
	"github.com/hpungsan/plate/internal/events"
	"github.com/hpungsan/plate/internal/nutrition"
	"github.com/hpungsan/plate/internal/storage"
	"github.com/hpungsan/plate/internal/telemetry"
)

// Listing limits
const (
	DefaultPendingLimit = 3
	MaxPendingLimit     = 50
	DefaultFixRetention = time.Hour
)

// Field limits
const (
	MaxDescriptionChars = 4000
	MaxInstructionChars = 2000
	MaxRequestIDChars   = 128
)

// Scheduler starts background work for an accepted job. Implementations must
// return immediately.
type Scheduler interface {
	ScheduleAnalysis(jobID string)
	ScheduleFix(fixID string)
}

// Deps carries the collaborators of write operations. Only DB is required.
type Deps struct {
	DB        *sql.DB
	Images    *storage.Resolver
	Scheduler Scheduler
	Events    events.Publisher
	Metrics   *telemetry.Metrics

	// Now defaults to time.Now
	Now func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d Deps) images() *storage.Resolver {
	if d.Images != nil {
		return d.Images
	}
	return storage.NewResolver(nil, 0)
}

func (d Deps) publish(ev events.Event) {
	if d.Events != nil {
		d.Events.Publish(ev)
	}
}

func (d Deps) metrics() *telemetry.Metrics {
	if d.Metrics != nil {
		return d.Metrics
	}
	return telemetry.NewMetrics(nil)
}

// SubmitOutput is returned by every submission.
type SubmitOutput struct {
	JobID  string           `json:"jobId"`
	Status nutrition.Status `json:"status"`

	// Deduplicated is true when RequestID matched an earlier submission and
	// no new job was created
	Deduplicated bool `json:"deduplicated,omitempty"`
}

// requireText trims s and rejects blank or oversized values.
func requireText(field, s string, maxChars int) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", errors.NewInvalidRequest(field + " is required")
	}
	if maxChars > 0 && len([]rune(s)) > maxChars {
		return "", errors.NewInvalidRequest(field + " is too long")
	}
	return s, nil
}

// validateOwner checks the user id and logical date shared by analysis submissions.
func validateOwner(userID, date string) (string, string, error) {
	userID, err := requireText("user_id", userID, 0)
	if err != nil {
		return "", "", err
	}
	date = strings.TrimSpace(date)
	if date == "" {
		return "", "", errors.NewInvalidRequest("date is required")
	}
	if !nutrition.ValidDate(date) {
		return "", "", errors.NewInvalidRequest("date must be YYYY-MM-DD")
	}
	return userID, date, nil
}

func cleanRequestID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if len(id) > MaxRequestIDChars {
		return "", errors.NewInvalidRequest("request_id is too long")
	}
	return id, nil
}

// cleanOptionalString trims s and maps blank to nil.
func cleanOptionalString(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
