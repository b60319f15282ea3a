package ops

import (
	"context"
	"testing"
	"time"

	"github.com/hpungsan/plate/internal/db"
	"github.com/hpungsan/plate/internal/errors"
	"github.com/hpungsan/plate/internal/events"
	"github.com/hpungsan/plate/internal/nutrition"
)

func TestListRecentPendingJobs_Limits(t *testing.T) {
	d, _, _ := setupDeps(t)
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		_, err := SubmitTextJob(ctx, d, SubmitTextInput{
			Description: "snack",
			UserID:      "u1",
			Date:        "2026-03-14",
			CreatedAt:   int64(1000 + i),
		})
		if err != nil {
			t.Fatalf("SubmitTextJob failed: %v", err)
		}
	}

	out, err := ListRecentPendingJobs(ctx, d.DB, ListPendingInput{})
	if err != nil {
		t.Fatalf("ListRecentPendingJobs failed: %v", err)
	}
	if len(out.Items) != DefaultPendingLimit {
		t.Errorf("len(Items) = %d, want %d", len(out.Items), DefaultPendingLimit)
	}
	if out.Items[0].CreatedAt != 1059 {
		t.Errorf("first CreatedAt = %d, want most recent 1059", out.Items[0].CreatedAt)
	}

	out, err = ListRecentPendingJobs(ctx, d.DB, ListPendingInput{Limit: 500})
	if err != nil {
		t.Fatalf("ListRecentPendingJobs failed: %v", err)
	}
	if out.Limit != MaxPendingLimit || len(out.Items) != MaxPendingLimit {
		t.Errorf("Limit = %d, len = %d, want %d", out.Limit, len(out.Items), MaxPendingLimit)
	}

	out, err = ListRecentPendingJobs(ctx, d.DB, ListPendingInput{UserID: "nobody", Limit: 10})
	if err != nil {
		t.Fatalf("ListRecentPendingJobs failed: %v", err)
	}
	if out.Items == nil || len(out.Items) != 0 {
		t.Errorf("Items = %v, want empty non-nil slice", out.Items)
	}
}

func TestListRecentPendingJobs_ExcludesTerminal(t *testing.T) {
	d, _, _ := setupDeps(t)
	ctx := context.Background()

	done, err := SubmitTextJob(ctx, d, SubmitTextInput{Description: "a", UserID: "u1", Date: "2026-03-14", CreatedAt: 2000})
	if err != nil {
		t.Fatalf("SubmitTextJob failed: %v", err)
	}
	pending, err := SubmitTextJob(ctx, d, SubmitTextInput{Description: "b", UserID: "u1", Date: "2026-03-14", CreatedAt: 1000})
	if err != nil {
		t.Fatalf("SubmitTextJob failed: %v", err)
	}

	failure := nutrition.FailureNoFood
	if _, err := db.FinishAnalysisJob(ctx, d.DB, done.JobID, nutrition.StatusFailed, nutrition.ZeroResult(), &failure, nil, 3000); err != nil {
		t.Fatalf("FinishAnalysisJob failed: %v", err)
	}

	out, err := ListRecentPendingJobs(ctx, d.DB, ListPendingInput{Limit: 10})
	if err != nil {
		t.Fatalf("ListRecentPendingJobs failed: %v", err)
	}
	if len(out.Items) != 1 || out.Items[0].ID != pending.JobID {
		t.Errorf("Items = %v, want only %s", out.Items, pending.JobID)
	}
}

func TestListFixJobs_RetentionWindow(t *testing.T) {
	d, _, _ := setupDeps(t)
	ctx := context.Background()
	entry := seedEntry(t, d.DB)
	now := time.Unix(100_000, 0)

	submit := func(createdAt int64) string {
		out, err := SubmitFixJob(ctx, d, SubmitFixInput{EntryID: entry.ID, Instruction: "tweak", CreatedAt: createdAt})
		if err != nil {
			t.Fatalf("SubmitFixJob failed: %v", err)
		}
		return out.JobID
	}

	oldPending := submit(now.Add(-3 * time.Hour).Unix())
	oldDone := submit(now.Add(-61 * time.Minute).Unix())
	recentDone := submit(now.Add(-59 * time.Minute).Unix())

	for _, id := range []string{oldDone, recentDone} {
		code := nutrition.FailureConflict
		if _, err := db.FinishFixJob(ctx, d.DB, id, nutrition.StatusFailed, nutrition.ZeroResult(), &code, now.Unix()); err != nil {
			t.Fatalf("FinishFixJob failed: %v", err)
		}
	}

	out, err := ListFixJobs(ctx, d.DB, ListFixJobsInput{Now: now})
	if err != nil {
		t.Fatalf("ListFixJobs failed: %v", err)
	}
	got := map[string]bool{}
	for _, f := range out.Items {
		got[f.ID] = true
	}
	if !got[oldPending] {
		t.Error("pending fix jobs must always be listed")
	}
	if !got[recentDone] {
		t.Error("terminal fix job inside the window must be listed")
	}
	if got[oldDone] {
		t.Error("terminal fix job outside the window must be hidden")
	}

	// Hidden, not deleted
	if _, err := GetFixJob(ctx, d.DB, oldDone); err != nil {
		t.Errorf("GetFixJob(oldDone) error = %v, want nil", err)
	}

	out, err = ListFixJobs(ctx, d.DB, ListFixJobsInput{Now: now, Retention: 2 * time.Hour})
	if err != nil {
		t.Fatalf("ListFixJobs failed: %v", err)
	}
	if len(out.Items) != 3 {
		t.Errorf("len(Items) = %d with 2h retention, want 3", len(out.Items))
	}
}

func TestGet_Validation(t *testing.T) {
	d, _, _ := setupDeps(t)
	ctx := context.Background()

	if _, err := GetJob(ctx, d.DB, " "); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("GetJob(blank) = %v, want INVALID_REQUEST", err)
	}
	if _, err := GetJob(ctx, d.DB, "01NOPE"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("GetJob(missing) = %v, want NOT_FOUND", err)
	}
	if _, err := GetFixJob(ctx, d.DB, "01NOPE"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("GetFixJob(missing) = %v, want NOT_FOUND", err)
	}
	if _, err := GetEntry(ctx, d.DB, "01NOPE"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("GetEntry(missing) = %v, want NOT_FOUND", err)
	}
}

func TestQuickAddEntry(t *testing.T) {
	d, _, rec := setupDeps(t)
	ctx := context.Background()

	out, err := QuickAddEntry(ctx, d, QuickAddInput{
		UserID: "u1",
		Date:   "2026-03-14",
		Name:   "Greek yogurt",
		Ingredients: []nutrition.Ingredient{
			{Name: "yogurt", WeightGrams: 170, ProteinPercentage: 10},
		},
	})
	if err != nil {
		t.Fatalf("QuickAddEntry failed: %v", err)
	}
	if out.Entry.TotalProteinEstimate != 17 {
		t.Errorf("TotalProteinEstimate = %v, want 17", out.Entry.TotalProteinEstimate)
	}
	if out.Entry.EntryMethod != nutrition.MethodQuickAdd {
		t.Errorf("EntryMethod = %q, want quick_add", out.Entry.EntryMethod)
	}
	if len(rec.events) != 1 || rec.events[0].Type != events.EntryUpdated {
		t.Errorf("events = %v, want one entry.updated", rec.events)
	}

	_, err = QuickAddEntry(ctx, d, QuickAddInput{
		UserID: "u1", Date: "2026-03-14", Name: "x",
		Ingredients: []nutrition.Ingredient{{Name: "a", WeightGrams: 10, ProteinPercentage: 120}},
	})
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("err = %v, want INVALID_REQUEST for protein > 100", err)
	}

	_, err = QuickAddEntry(ctx, d, QuickAddInput{
		UserID: "u1", Date: "2026-03-14", Name: "x", Method: nutrition.MethodImage,
		Ingredients: []nutrition.Ingredient{{Name: "a", WeightGrams: 10, ProteinPercentage: 10}},
	})
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("err = %v, want INVALID_REQUEST for image method", err)
	}
}

func TestListEntries(t *testing.T) {
	d, _, _ := setupDeps(t)
	ctx := context.Background()

	add := func(date string, grams float64) {
		_, err := QuickAddEntry(ctx, d, QuickAddInput{
			UserID: "u1", Date: date, Name: "tofu",
			Ingredients: []nutrition.Ingredient{{Name: "tofu", WeightGrams: grams, ProteinPercentage: 8}},
		})
		if err != nil {
			t.Fatalf("QuickAddEntry failed: %v", err)
		}
	}
	add("2026-03-14", 100)
	add("2026-03-14", 50)
	add("2026-03-15", 200)

	out, err := ListEntries(ctx, d.DB, ListEntriesInput{UserID: "u1", Date: "2026-03-14"})
	if err != nil {
		t.Fatalf("ListEntries failed: %v", err)
	}
	if len(out.Items) != 2 {
		t.Errorf("len(Items) = %d, want 2", len(out.Items))
	}
	if out.TotalProtein != 12 {
		t.Errorf("TotalProtein = %v, want 12", out.TotalProtein)
	}

	out, err = ListEntries(ctx, d.DB, ListEntriesInput{UserID: "u1"})
	if err != nil {
		t.Fatalf("ListEntries failed: %v", err)
	}
	if len(out.Items) != 3 {
		t.Errorf("len(Items) = %d, want 3", len(out.Items))
	}

	if _, err := ListEntries(ctx, d.DB, ListEntriesInput{}); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("err = %v, want INVALID_REQUEST without user_id", err)
	}
	if _, err := ListEntries(ctx, d.DB, ListEntriesInput{UserID: "u1", Date: "March"}); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("err = %v, want INVALID_REQUEST for bad date", err)
	}
}

func TestDeleteEntry(t *testing.T) {
	d, _, rec := setupDeps(t)
	ctx := context.Background()
	entry := seedEntry(t, d.DB)

	out, err := DeleteEntry(ctx, d, entry.ID)
	if err != nil {
		t.Fatalf("DeleteEntry failed: %v", err)
	}
	if !out.Deleted {
		t.Error("Deleted = false, want true")
	}
	if len(rec.events) != 1 || rec.events[0].Type != events.EntryDeleted {
		t.Errorf("events = %v, want one entry.deleted", rec.events)
	}

	if _, err := DeleteEntry(ctx, d, entry.ID); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("second DeleteEntry = %v, want NOT_FOUND", err)
	}
}
