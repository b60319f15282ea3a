package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/plate/internal/config"
	"github.com/hpungsan/plate/internal/db"
	"github.com/hpungsan/plate/internal/errors"
	"github.com/hpungsan/plate/internal/nutrition"
	"github.com/hpungsan/plate/internal/ops"
)

type fakeScheduler struct {
	mu  sync.Mutex
	ids []string
}

func (f *fakeScheduler) ScheduleAnalysis(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, id)
}

func (f *fakeScheduler) ScheduleFix(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, id)
}

// testSetup creates a temporary database and config for testing.
func testSetup(t *testing.T) (ops.Deps, *config.Config, *fakeScheduler) {
	t.Helper()

	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("failed to init db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	sched := &fakeScheduler{}
	deps := ops.Deps{
		DB:        database,
		Scheduler: sched,
		Now:       func() time.Time { return time.Unix(50_000, 0) },
	}
	return deps, config.DefaultConfig(), sched
}

// makeRequest creates a CallToolRequest with the given arguments.
func makeRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

func seedEntry(t *testing.T, deps ops.Deps) string {
	t.Helper()
	out, err := ops.QuickAddEntry(context.Background(), deps, ops.QuickAddInput{
		UserID: "u1",
		Date:   "2026-03-14",
		Name:   "Chicken rice",
		Ingredients: []nutrition.Ingredient{
			{Name: "chicken", WeightGrams: 100, ProteinPercentage: 30},
			{Name: "rice", WeightGrams: 50, ProteinPercentage: 12},
		},
	})
	if err != nil {
		t.Fatalf("QuickAddEntry failed: %v", err)
	}
	return out.Entry.ID
}

func TestHandleSubmitText(t *testing.T) {
	deps, cfg, sched := testSetup(t)
	h := NewHandlers(deps, cfg)
	ctx := context.Background()

	t.Run("happy path", func(t *testing.T) {
		result, err := h.HandleSubmitText(ctx, makeRequest(map[string]any{
			"description": "two eggs",
			"user_id":     "u1",
			"date":        "2026-03-14",
		}))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		output := parseOutput(t, result)
		if output["jobId"] == "" || output["jobId"] == nil {
			t.Error("expected jobId in output")
		}
		if output["status"] != "pending" {
			t.Errorf("status = %v, want pending", output["status"])
		}
		if len(sched.ids) != 1 {
			t.Errorf("scheduled %d jobs, want 1", len(sched.ids))
		}
	})

	t.Run("missing description", func(t *testing.T) {
		result, err := h.HandleSubmitText(ctx, makeRequest(map[string]any{
			"user_id": "u1",
			"date":    "2026-03-14",
		}))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.IsError {
			t.Error("expected error result")
		}
		assertErrorCode(t, result, "INVALID_REQUEST")
	})

	t.Run("wrong argument type", func(t *testing.T) {
		result, err := h.HandleSubmitText(ctx, makeRequest(map[string]any{
			"description": 42,
		}))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertErrorCode(t, result, "INVALID_REQUEST")
	})
}

func TestHandleSubmitImage_NotFound(t *testing.T) {
	deps, cfg, sched := testSetup(t)
	h := NewHandlers(deps, cfg)

	// No object store configured: bare keys cannot resolve
	result, err := h.HandleSubmitImage(context.Background(), makeRequest(map[string]any{
		"image_ref": "uploads/lunch.jpg",
		"user_id":   "u1",
		"date":      "2026-03-14",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertErrorCode(t, result, "NOT_FOUND")
	if len(sched.ids) != 0 {
		t.Errorf("scheduled %d jobs, want 0", len(sched.ids))
	}
}

func TestHandleGetJob(t *testing.T) {
	deps, cfg, _ := testSetup(t)
	h := NewHandlers(deps, cfg)
	ctx := context.Background()

	sub, err := ops.SubmitTextJob(ctx, deps, ops.SubmitTextInput{Description: "eggs", UserID: "u1", Date: "2026-03-14"})
	if err != nil {
		t.Fatalf("SubmitTextJob failed: %v", err)
	}

	result, err := h.HandleGetJob(ctx, makeRequest(map[string]any{"id": sub.JobID}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	output := parseOutput(t, result)
	if output["id"] != sub.JobID {
		t.Errorf("id = %v, want %s", output["id"], sub.JobID)
	}
	if output["result"] != nil {
		t.Errorf("result = %v, want null while pending", output["result"])
	}

	result, err = h.HandleGetJob(ctx, makeRequest(map[string]any{"id": "01NOPE"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertErrorCode(t, result, "NOT_FOUND")
}

func TestHandleListPending(t *testing.T) {
	deps, cfg, _ := testSetup(t)
	h := NewHandlers(deps, cfg)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := ops.SubmitTextJob(ctx, deps, ops.SubmitTextInput{Description: "eggs", UserID: "u1", Date: "2026-03-14"}); err != nil {
			t.Fatalf("SubmitTextJob failed: %v", err)
		}
	}

	result, err := h.HandleListPending(ctx, makeRequest(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	output := parseOutput(t, result)
	items := output["items"].([]any)
	if len(items) != 3 {
		t.Errorf("len(items) = %d, want default 3", len(items))
	}

	result, err = h.HandleListPending(ctx, makeRequest(map[string]any{"limit": 4}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	output = parseOutput(t, result)
	if got := len(output["items"].([]any)); got != 4 {
		t.Errorf("len(items) = %d, want 4", got)
	}
}

func TestHandleFixFlow(t *testing.T) {
	deps, cfg, _ := testSetup(t)
	h := NewHandlers(deps, cfg)
	ctx := context.Background()
	entryID := seedEntry(t, deps)

	result, err := h.HandleSubmitFix(ctx, makeRequest(map[string]any{
		"entry_id":    entryID,
		"instruction": "rice was 100g",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fixID := parseOutput(t, result)["jobId"].(string)

	result, err = h.HandleGetFixJob(ctx, makeRequest(map[string]any{"id": fixID}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	output := parseOutput(t, result)
	snapshot := output["originalEntrySnapshot"].(map[string]any)
	if snapshot["totalProteinEstimate"] != 36.0 {
		t.Errorf("snapshot total = %v, want 36", snapshot["totalProteinEstimate"])
	}

	result, err = h.HandleListFixJobs(ctx, makeRequest(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := len(parseOutput(t, result)["items"].([]any)); got != 1 {
		t.Errorf("len(items) = %d, want 1", got)
	}

	result, err = h.HandleSubmitFix(ctx, makeRequest(map[string]any{
		"entry_id":    "01MISSING",
		"instruction": "rice was 100g",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertErrorCode(t, result, "NOT_FOUND")
}

func TestHandleEntries(t *testing.T) {
	deps, cfg, _ := testSetup(t)
	h := NewHandlers(deps, cfg)
	ctx := context.Background()
	entryID := seedEntry(t, deps)

	result, err := h.HandleGetEntry(ctx, makeRequest(map[string]any{"id": entryID}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	output := parseOutput(t, result)
	if output["entryMethod"] != "quick_add" {
		t.Errorf("entryMethod = %v, want quick_add", output["entryMethod"])
	}

	result, err = h.HandleListEntries(ctx, makeRequest(map[string]any{"user_id": "u1", "date": "2026-03-14"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	output = parseOutput(t, result)
	if output["totalProtein"] != 36.0 {
		t.Errorf("totalProtein = %v, want 36", output["totalProtein"])
	}

	result, err = h.HandleListEntries(ctx, makeRequest(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertErrorCode(t, result, "INVALID_REQUEST")
}

func TestServerRegistration(t *testing.T) {
	deps, cfg, _ := testSetup(t)

	s := NewServer(deps, cfg, "test")
	tools := s.ListTools()
	if tools == nil {
		t.Fatal("expected tools to be registered, got nil")
	}

	expectedTools := []string{
		"job_submit_image",
		"job_submit_text",
		"job_submit_fix",
		"job_get",
		"job_list_pending",
		"fix_job_list",
		"fix_job_get",
		"entry_get",
		"entry_list",
	}

	if len(tools) != len(expectedTools) {
		t.Errorf("registered tool count = %d, want %d", len(tools), len(expectedTools))
	}

	for _, name := range expectedTools {
		if _, ok := tools[name]; !ok {
			t.Errorf("missing registered tool: %s", name)
		}
	}
}

func TestServerRegistration_WithDisabledTools(t *testing.T) {
	deps, cfg, _ := testSetup(t)

	cfg.DisabledTools = []string{"job_submit_image", "job_submit_fix", "job_submit_fix"}
	s := NewServer(deps, cfg, "test")
	tools := s.ListTools()

	if len(tools) != 7 {
		t.Errorf("registered tool count = %d, want 7", len(tools))
	}
	for _, name := range []string{"job_submit_image", "job_submit_fix"} {
		if _, ok := tools[name]; ok {
			t.Errorf("disabled tool %q should not be registered", name)
		}
	}
	if _, ok := tools["job_get"]; !ok {
		t.Error("query tool job_get should be registered")
	}
}

func TestServerRegistration_AllToolsDisabled(t *testing.T) {
	deps, cfg, _ := testSetup(t)

	cfg.DisabledTools = AllToolNames()
	s := NewServer(deps, cfg, "test")

	if tools := s.ListTools(); len(tools) != 0 {
		t.Errorf("registered tool count = %d, want 0 (all disabled)", len(tools))
	}
}

func TestValidateDisabledTools(t *testing.T) {
	tests := []struct {
		name    string
		input   []string
		wantLen int
	}{
		{"all valid", []string{"job_submit_fix", "entry_list"}, 0},
		{"one unknown", []string{"job_get", "meal_store"}, 1},
		{"all unknown", []string{"foo", "bar", "baz"}, 3},
		{"empty list", []string{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unknown := ValidateDisabledTools(tt.input)
			if len(unknown) != tt.wantLen {
				t.Errorf("ValidateDisabledTools() returned %d unknown, want %d", len(unknown), tt.wantLen)
			}
		})
	}
}

func TestAllToolNames(t *testing.T) {
	names := AllToolNames()
	if len(names) != 9 {
		t.Errorf("AllToolNames() returned %d names, want 9", len(names))
	}
	if unknown := ValidateDisabledTools(names); len(unknown) != 0 {
		t.Errorf("AllToolNames() returned invalid names: %v", unknown)
	}
}

func TestErrorResult_InternalDoesNotExposeDetails(t *testing.T) {
	r := errorResult(errors.NewInternal(fmt.Errorf("sql error: open /tmp/secret.db: permission denied")))
	if !r.IsError {
		t.Fatal("expected IsError=true")
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(r.Content[0].(mcp.TextContent).Text), &payload); err != nil {
		t.Fatalf("failed to unmarshal error payload: %v", err)
	}
	errObj := payload["error"].(map[string]any)

	if errObj["code"] != string(errors.ErrInternal) {
		t.Fatalf("code=%v, want %v", errObj["code"], errors.ErrInternal)
	}
	if _, ok := errObj["details"]; ok {
		t.Fatal("expected INTERNAL errors to omit details")
	}
	if strings.Contains(r.Content[0].(mcp.TextContent).Text, "secret.db") {
		t.Fatal("internal cause leaked into the result")
	}
}

func TestErrorResult_WrappedErrorPreservesContext(t *testing.T) {
	wrappedErr := fmt.Errorf("entry 01ABC: %w", errors.NewConflict("entry changed"))

	r := errorResult(wrappedErr)
	var payload map[string]any
	if err := json.Unmarshal([]byte(r.Content[0].(mcp.TextContent).Text), &payload); err != nil {
		t.Fatalf("failed to unmarshal error payload: %v", err)
	}
	errObj := payload["error"].(map[string]any)

	if errObj["code"] != string(errors.ErrConflict) {
		t.Errorf("code=%v, want %v", errObj["code"], errors.ErrConflict)
	}
	if msg := errObj["message"].(string); !strings.Contains(msg, "entry 01ABC") {
		t.Errorf("message should contain wrapper context, got: %s", msg)
	}
}

func TestErrorResult_NonInternalIncludesDetails(t *testing.T) {
	r := errorResult(errors.NewNotFound("job", "abc"))

	var payload map[string]any
	if err := json.Unmarshal([]byte(r.Content[0].(mcp.TextContent).Text), &payload); err != nil {
		t.Fatalf("failed to unmarshal error payload: %v", err)
	}
	errObj := payload["error"].(map[string]any)

	if errObj["code"] != string(errors.ErrNotFound) {
		t.Fatalf("code=%v, want %v", errObj["code"], errors.ErrNotFound)
	}
	if _, ok := errObj["details"]; !ok {
		t.Fatal("expected non-INTERNAL errors to include details when present")
	}
}

// Helper functions

// parseOutput extracts and unmarshals the JSON output from an MCP result.
func parseOutput(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	if result.IsError {
		t.Fatalf("expected success, got error: %v", extractErrorMessage(result))
	}
	var output map[string]any
	if err := json.Unmarshal([]byte(result.Content[0].(mcp.TextContent).Text), &output); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	return output
}

func assertErrorCode(t *testing.T, result *mcp.CallToolResult, expectedCode string) {
	t.Helper()

	if len(result.Content) == 0 {
		t.Errorf("no content in error result")
		return
	}

	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Errorf("content is not TextContent")
		return
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(text.Text), &payload); err != nil {
		t.Errorf("failed to unmarshal error payload: %v", err)
		return
	}

	errorObj, ok := payload["error"].(map[string]any)
	if !ok {
		t.Errorf("no error object in payload")
		return
	}

	if code, _ := errorObj["code"].(string); code != expectedCode {
		t.Errorf("got error code %q, want %q", code, expectedCode)
	}
}

func extractErrorMessage(result *mcp.CallToolResult) string {
	if len(result.Content) == 0 {
		return "<no content>"
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		return "<not text content>"
	}
	return text.Text
}
