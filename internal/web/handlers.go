package web

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/phuslu/log"

	"github.com/hpungsan/plate/internal/config"
	"github.com/hpungsan/plate/internal/errors"
	"github.com/hpungsan/plate/internal/events"
	"github.com/hpungsan/plate/internal/nutrition"
	"github.com/hpungsan/plate/internal/ops"
	"github.com/hpungsan/plate/internal/telemetry"
)

// Handlers contains HTTP route handlers for the JSON API.
type Handlers struct {
	deps    ops.Deps
	cfg     *config.Config
	hub     *events.Hub
	logger  *log.Logger
	version string
}

// Request bodies

// SubmitImageBody is the body of POST /jobs/image.
type SubmitImageBody struct {
	ImageRef  string `json:"imageRef"`
	UserID    string `json:"userId"`
	Date      string `json:"date"`
	CreatedAt int64  `json:"createdAt,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// SubmitTextBody is the body of POST /jobs/text.
type SubmitTextBody struct {
	Description string `json:"description"`
	UserID      string `json:"userId"`
	Date        string `json:"date"`
	CreatedAt   int64  `json:"createdAt,omitempty"`
	RequestID   string `json:"requestId,omitempty"`
}

// SubmitFixBody is the body of POST /entries/{id}/fix.
type SubmitFixBody struct {
	Instruction string `json:"instruction"`
	CreatedAt   int64  `json:"createdAt,omitempty"`
	RequestID   string `json:"requestId,omitempty"`
}

// QuickAddBody is the body of POST /entries.
type QuickAddBody struct {
	UserID              string                 `json:"userId"`
	Date                string                 `json:"date"`
	Name                string                 `json:"name"`
	Ingredients         []nutrition.Ingredient `json:"ingredients"`
	AminoRecommendation *string                `json:"aminoRecommendation,omitempty"`
	ImageURL            *string                `json:"imageUrl,omitempty"`
	EntryMethod         nutrition.EntryMethod  `json:"entryMethod,omitempty"`
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	m := telemetry.StartTiming(r.Context(), "db")
	err := h.deps.DB.PingContext(r.Context())
	m.Stop()
	if err != nil {
		h.logger.Error().Err(err).Msg("health check failed")
		renderError(w, errors.NewInternal(err))
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": h.version,
	})
}

// HandleSubmitImage handles POST /jobs/image.
func (h *Handlers) HandleSubmitImage(w http.ResponseWriter, r *http.Request) {
	var body SubmitImageBody
	if err := decodeBody(w, r, &body); err != nil {
		renderError(w, err)
		return
	}

	m := telemetry.StartTiming(r.Context(), "submit")
	result, err := ops.SubmitImageJob(r.Context(), h.deps, ops.SubmitImageInput{
		ImageRef:  body.ImageRef,
		UserID:    body.UserID,
		Date:      body.Date,
		CreatedAt: body.CreatedAt,
		RequestID: body.RequestID,
	})
	m.Stop()
	if err != nil {
		renderError(w, err)
		return
	}

	renderJSON(w, submitStatus(result), result)
}

// HandleSubmitText handles POST /jobs/text.
func (h *Handlers) HandleSubmitText(w http.ResponseWriter, r *http.Request) {
	var body SubmitTextBody
	if err := decodeBody(w, r, &body); err != nil {
		renderError(w, err)
		return
	}

	m := telemetry.StartTiming(r.Context(), "submit")
	result, err := ops.SubmitTextJob(r.Context(), h.deps, ops.SubmitTextInput{
		Description: body.Description,
		UserID:      body.UserID,
		Date:        body.Date,
		CreatedAt:   body.CreatedAt,
		RequestID:   body.RequestID,
	})
	m.Stop()
	if err != nil {
		renderError(w, err)
		return
	}

	renderJSON(w, submitStatus(result), result)
}

// HandleSubmitFix handles POST /entries/{id}/fix.
func (h *Handlers) HandleSubmitFix(w http.ResponseWriter, r *http.Request) {
	var body SubmitFixBody
	if err := decodeBody(w, r, &body); err != nil {
		renderError(w, err)
		return
	}

	m := telemetry.StartTiming(r.Context(), "submit")
	result, err := ops.SubmitFixJob(r.Context(), h.deps, ops.SubmitFixInput{
		EntryID:     r.PathValue("id"),
		Instruction: body.Instruction,
		CreatedAt:   body.CreatedAt,
		RequestID:   body.RequestID,
	})
	m.Stop()
	if err != nil {
		renderError(w, err)
		return
	}

	renderJSON(w, submitStatus(result), result)
}

// HandleGetJob handles GET /jobs/{id}.
func (h *Handlers) HandleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := ops.GetJob(r.Context(), h.deps.DB, r.PathValue("id"))
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, job)
}

// HandleListPending handles GET /jobs?limit=&user_id=.
func (h *Handlers) HandleListPending(w http.ResponseWriter, r *http.Request) {
	limit, err := parseIntParam(r, "limit", h.cfg.Jobs.RecentPendingLimit)
	if err != nil {
		renderError(w, err)
		return
	}

	result, err := ops.ListRecentPendingJobs(r.Context(), h.deps.DB, ops.ListPendingInput{
		UserID: r.URL.Query().Get("user_id"),
		Limit:  limit,
	})
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// HandleListFixJobs handles GET /fix-jobs.
func (h *Handlers) HandleListFixJobs(w http.ResponseWriter, r *http.Request) {
	result, err := ops.ListFixJobs(r.Context(), h.deps.DB, ops.ListFixJobsInput{
		Now:       h.now(),
		Retention: h.cfg.FixRetention(),
	})
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// HandleGetFixJob handles GET /fix-jobs/{id}.
func (h *Handlers) HandleGetFixJob(w http.ResponseWriter, r *http.Request) {
	fix, err := ops.GetFixJob(r.Context(), h.deps.DB, r.PathValue("id"))
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, fix)
}

// HandleGetEntry handles GET /entries/{id}.
func (h *Handlers) HandleGetEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := ops.GetEntry(r.Context(), h.deps.DB, r.PathValue("id"))
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, newEntryView(entry))
}

// HandleListEntries handles GET /entries?user_id=&date=.
func (h *Handlers) HandleListEntries(w http.ResponseWriter, r *http.Request) {
	result, err := ops.ListEntries(r.Context(), h.deps.DB, ops.ListEntriesInput{
		UserID: r.URL.Query().Get("user_id"),
		Date:   r.URL.Query().Get("date"),
	})
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// HandleQuickAdd handles POST /entries.
func (h *Handlers) HandleQuickAdd(w http.ResponseWriter, r *http.Request) {
	var body QuickAddBody
	if err := decodeBody(w, r, &body); err != nil {
		renderError(w, err)
		return
	}

	result, err := ops.QuickAddEntry(r.Context(), h.deps, ops.QuickAddInput{
		UserID:              body.UserID,
		Date:                body.Date,
		Name:                body.Name,
		Ingredients:         body.Ingredients,
		AminoRecommendation: body.AminoRecommendation,
		ImageURL:            body.ImageURL,
		Method:              body.EntryMethod,
	})
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusCreated, result.Entry)
}

// HandleDeleteEntry handles DELETE /entries/{id}.
func (h *Handlers) HandleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	result, err := ops.DeleteEntry(r.Context(), h.deps, r.PathValue("id"))
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

func (h *Handlers) now() time.Time {
	if h.deps.Now != nil {
		return h.deps.Now()
	}
	return time.Now()
}

// submitStatus is 202 for a fresh job and 200 for a deduplicated resubmission.
func submitStatus(out *ops.SubmitOutput) int {
	if out.Deduplicated {
		return http.StatusOK
	}
	return http.StatusAccepted
}

// decodeBody reads a single JSON object into dst. Unknown fields are rejected.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case stderrors.As(err, &maxErr):
			return errors.NewInvalidRequest(fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit))
		case stderrors.Is(err, io.EOF):
			return errors.NewInvalidRequest("request body is required")
		default:
			return errors.NewInvalidRequest(fmt.Sprintf("invalid JSON body: %v", err))
		}
	}
	if dec.More() {
		return errors.NewInvalidRequest("request body must be a single JSON object")
	}
	return nil
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) (int, error) {
	s := strings.TrimSpace(r.URL.Query().Get(name))
	if s == "" {
		return defaultVal, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.NewInvalidRequest(name + " must be an integer")
	}
	return v, nil
}
