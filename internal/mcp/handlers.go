package mcp

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/plate/internal/config"
	"github.com/hpungsan/plate/internal/errors"
	"github.com/hpungsan/plate/internal/ops"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	deps ops.Deps
	cfg  *config.Config
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(deps ops.Deps, cfg *config.Config) *Handlers {
	return &Handlers{deps: deps, cfg: cfg}
}

func (h *Handlers) now() time.Time {
	if h.deps.Now != nil {
		return h.deps.Now()
	}
	return time.Now()
}

// Request types for each tool

// SubmitImageRequest represents the arguments for job_submit_image.
type SubmitImageRequest struct {
	ImageRef  string `json:"image_ref"`
	UserID    string `json:"user_id"`
	Date      string `json:"date"`
	CreatedAt int64  `json:"created_at,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// SubmitTextRequest represents the arguments for job_submit_text.
type SubmitTextRequest struct {
	Description string `json:"description"`
	UserID      string `json:"user_id"`
	Date        string `json:"date"`
	CreatedAt   int64  `json:"created_at,omitempty"`
	RequestID   string `json:"request_id,omitempty"`
}

// SubmitFixRequest represents the arguments for job_submit_fix.
type SubmitFixRequest struct {
	EntryID     string `json:"entry_id"`
	Instruction string `json:"instruction"`
	CreatedAt   int64  `json:"created_at,omitempty"`
	RequestID   string `json:"request_id,omitempty"`
}

// IDRequest represents the arguments of the *_get tools.
type IDRequest struct {
	ID string `json:"id"`
}

// ListPendingRequest represents the arguments for job_list_pending.
type ListPendingRequest struct {
	Limit  int    `json:"limit,omitempty"`
	UserID string `json:"user_id,omitempty"`
}

// ListEntriesRequest represents the arguments for entry_list.
type ListEntriesRequest struct {
	UserID string `json:"user_id"`
	Date   string `json:"date,omitempty"`
}

// Handler implementations

// HandleSubmitImage handles the job_submit_image tool call.
func (h *Handlers) HandleSubmitImage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SubmitImageRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.SubmitImageJob(ctx, h.deps, ops.SubmitImageInput{
		ImageRef:  input.ImageRef,
		UserID:    input.UserID,
		Date:      input.Date,
		CreatedAt: input.CreatedAt,
		RequestID: input.RequestID,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleSubmitText handles the job_submit_text tool call.
func (h *Handlers) HandleSubmitText(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SubmitTextRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.SubmitTextJob(ctx, h.deps, ops.SubmitTextInput{
		Description: input.Description,
		UserID:      input.UserID,
		Date:        input.Date,
		CreatedAt:   input.CreatedAt,
		RequestID:   input.RequestID,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleSubmitFix handles the job_submit_fix tool call.
func (h *Handlers) HandleSubmitFix(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SubmitFixRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.SubmitFixJob(ctx, h.deps, ops.SubmitFixInput{
		EntryID:     input.EntryID,
		Instruction: input.Instruction,
		CreatedAt:   input.CreatedAt,
		RequestID:   input.RequestID,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleGetJob handles the job_get tool call.
func (h *Handlers) HandleGetJob(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.GetJob(ctx, h.deps.DB, input.ID)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleListPending handles the job_list_pending tool call.
func (h *Handlers) HandleListPending(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ListPendingRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	limit := input.Limit
	if limit <= 0 {
		limit = h.cfg.Jobs.RecentPendingLimit
	}

	result, err := ops.ListRecentPendingJobs(ctx, h.deps.DB, ops.ListPendingInput{
		UserID: input.UserID,
		Limit:  limit,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleListFixJobs handles the fix_job_list tool call.
func (h *Handlers) HandleListFixJobs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := ops.ListFixJobs(ctx, h.deps.DB, ops.ListFixJobsInput{
		Now:       h.now(),
		Retention: h.cfg.FixRetention(),
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleGetFixJob handles the fix_job_get tool call.
func (h *Handlers) HandleGetFixJob(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.GetFixJob(ctx, h.deps.DB, input.ID)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleGetEntry handles the entry_get tool call.
func (h *Handlers) HandleGetEntry(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.GetEntry(ctx, h.deps.DB, input.ID)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleListEntries handles the entry_list tool call.
func (h *Handlers) HandleListEntries(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ListEntriesRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.ListEntries(ctx, h.deps.DB, ops.ListEntriesInput{
		UserID: input.UserID,
		Date:   input.Date,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Internal error details are never exposed.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	var plateErr *errors.PlateError
	if stderrors.As(err, &plateErr) {
		message := plateErr.Message
		if plateErr.Code != errors.ErrInternal && err != error(plateErr) {
			// Keep wrapper context such as "items[2]: ..."
			message = err.Error()
		}
		errorObj := map[string]any{
			"code":    plateErr.Code,
			"message": message,
			"status":  plateErr.Status,
		}
		if plateErr.Code != errors.ErrInternal && plateErr.Details != nil {
			errorObj["details"] = plateErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    errors.ErrInternal,
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
