package worker

import (
	"context"
	"database/sql"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/plate/internal/db"
	"github.com/hpungsan/plate/internal/llm"
	"github.com/hpungsan/plate/internal/nutrition"
	"github.com/hpungsan/plate/internal/reconcile"
	"github.com/hpungsan/plate/internal/storage"
)

const chickenRiceReply = `{
  "name": "Chicken rice",
  "totalProteinEstimate": 80,
  "ingredients": [
    {"name": "chicken", "weight": 100, "proteinPercentage": 30, "aminoAcidMissing": []},
    {"name": "rice", "weight": 50, "proteinPercentage": 12, "aminoAcidMissing": ["lysine"]}
  ],
  "aminoRecommendation": "Add beans."
}`

type fakeModel struct {
	mu    sync.Mutex
	reply string
	err   error
	panic bool
	calls []llm.Request
}

func (f *fakeModel) Name() string { return "fake" }

func (f *fakeModel) Complete(_ context.Context, req llm.Request) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.panic {
		panic("boom")
	}
	return f.reply, f.err
}

func (f *fakeModel) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func setup(t *testing.T, model *fakeModel) (*Analyzer, *sql.DB) {
	t.Helper()
	database, err := db.Init(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	a := NewAnalyzer(AnalyzerOptions{
		DB:         database,
		Model:      model,
		Images:     storage.NewResolver(nil, time.Minute),
		Reconciler: reconcile.New(database, nil, nil, nil),
	})
	return a, database
}

func insertJob(t *testing.T, database *sql.DB, kind nutrition.JobKind, ref string) string {
	t.Helper()
	job := &nutrition.AnalysisJob{
		ID:        nutrition.NewID(),
		Kind:      kind,
		SourceRef: ref,
		UserID:    "u1",
		Date:      "2026-03-14",
		CreatedAt: time.Now().Unix(),
		UpdatedAt: time.Now().Unix(),
	}
	require.NoError(t, db.InsertAnalysisJob(context.Background(), database, job))
	return job.ID
}

func TestRunAnalysis_Text(t *testing.T) {
	model := &fakeModel{reply: chickenRiceReply}
	a, database := setup(t, model)
	ctx := context.Background()
	id := insertJob(t, database, nutrition.KindText, "chicken and rice")

	rep, err := a.RunAnalysis(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, nutrition.StatusCompleted, rep.Status)
	require.Equal(t, 1, model.callCount())
	assert.Contains(t, model.calls[0].Text, "chicken and rice")
	assert.Empty(t, model.calls[0].ImageURL)

	job, err := db.GetAnalysisJob(ctx, database, id)
	require.NoError(t, err)
	assert.Equal(t, 36.0, job.Result.TotalProteinEstimate)
	assert.Equal(t, []string{"lysine"}, job.Result.Ingredients[1].MissingAminoAcids)
}

func TestRunAnalysis_ImagePassesURL(t *testing.T) {
	model := &fakeModel{reply: chickenRiceReply}
	a, database := setup(t, model)
	id := insertJob(t, database, nutrition.KindImage, "https://cdn.example.com/lunch.jpg")

	_, err := a.RunAnalysis(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, 1, model.callCount())
	assert.Equal(t, "https://cdn.example.com/lunch.jpg", model.calls[0].ImageURL)
}

func TestRunAnalysis_Failures(t *testing.T) {
	tests := []struct {
		name    string
		model   *fakeModel
		failure string
	}{
		{"transport", &fakeModel{err: stderrors.New("connection reset")}, nutrition.FailureUpstreamUnavailable},
		{"not json", &fakeModel{reply: "I think this is pasta"}, nutrition.FailureUpstreamParse},
		{"schema", &fakeModel{reply: `{"name":"x","ingredients":[{"name":"a","weight":-1,"proteinPercentage":5}]}`}, nutrition.FailureUpstreamParse},
		{"no food", &fakeModel{reply: `{"error":"No food detected"}`}, nutrition.FailureNoFood},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, database := setup(t, tt.model)
			ctx := context.Background()
			id := insertJob(t, database, nutrition.KindText, "something")

			rep, err := a.RunAnalysis(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, nutrition.StatusFailed, rep.Status)
			assert.Equal(t, tt.failure, rep.Failure)
			assert.Equal(t, 1, tt.model.callCount(), "exactly one model call, no retry")

			job, err := db.GetAnalysisJob(ctx, database, id)
			require.NoError(t, err)
			assert.Equal(t, 0.0, job.Result.TotalProteinEstimate)
			assert.Empty(t, job.Result.Ingredients)
			assert.Nil(t, job.EntryID)
		})
	}
}

func TestRunAnalysis_UnresolvableImage(t *testing.T) {
	model := &fakeModel{reply: chickenRiceReply}
	a, database := setup(t, model)
	id := insertJob(t, database, nutrition.KindImage, "uploads/gone.jpg")

	rep, err := a.RunAnalysis(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, nutrition.StatusFailed, rep.Status)
	assert.Equal(t, nutrition.FailureSourceMissing, rep.Failure)
	assert.Equal(t, 0, model.callCount())
}

func TestRunAnalysis_TerminalSkipsModel(t *testing.T) {
	model := &fakeModel{reply: chickenRiceReply}
	a, database := setup(t, model)
	ctx := context.Background()
	id := insertJob(t, database, nutrition.KindText, "eggs")

	_, err := a.RunAnalysis(ctx, id)
	require.NoError(t, err)

	rep, err := a.RunAnalysis(ctx, id)
	require.NoError(t, err)
	assert.False(t, rep.Applied)
	assert.Equal(t, nutrition.StatusCompleted, rep.Status)
	assert.Equal(t, 1, model.callCount())
}

func TestRunFix_UsesSnapshot(t *testing.T) {
	model := &fakeModel{reply: chickenRiceReply}
	a, database := setup(t, model)
	ctx := context.Background()

	ings := []nutrition.Ingredient{{Name: "tofu", WeightGrams: 100, ProteinPercentage: 8}}
	entry := &nutrition.Entry{
		ID: nutrition.NewID(), UserID: "u1", Date: "2026-03-14", Name: "Tofu",
		Ingredients: ings, TotalProteinEstimate: nutrition.ProteinTotal(ings),
		EntryMethod: nutrition.MethodText, CreatedAt: 1, UpdatedAt: 1,
	}
	require.NoError(t, db.InsertEntry(ctx, database, entry))
	snap, err := db.GetEntry(ctx, database, entry.ID)
	require.NoError(t, err)

	fix := &nutrition.FixJob{
		ID: nutrition.NewID(), EntryID: entry.ID, Instruction: "it was chicken and rice",
		Status: nutrition.StatusPending, OriginalEntrySnapshot: *snap,
		CreatedAt: time.Now().Unix(), UpdatedAt: time.Now().Unix(),
	}
	require.NoError(t, db.InsertFixJob(ctx, database, fix))

	rep, err := a.RunFix(ctx, fix.ID)
	require.NoError(t, err)
	assert.Equal(t, nutrition.StatusCompleted, rep.Status)
	require.Equal(t, 1, model.callCount())
	assert.Contains(t, model.calls[0].Text, "Tofu")
	assert.Contains(t, model.calls[0].Text, "it was chicken and rice")

	got, err := db.GetEntry(ctx, database, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, "Chicken rice", got.Name)
	assert.Equal(t, 36.0, got.TotalProteinEstimate)
}

func TestDispatcher_RunsAndDrains(t *testing.T) {
	model := &fakeModel{reply: chickenRiceReply}
	a, database := setup(t, model)
	d := NewDispatcher(a, nil)

	ids := make([]string, 5)
	for i := range ids {
		ids[i] = insertJob(t, database, nutrition.KindText, "meal")
		d.ScheduleAnalysis(ids[i])
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, d.Drain(ctx))

	for _, id := range ids {
		job, err := db.GetAnalysisJob(context.Background(), database, id)
		require.NoError(t, err)
		assert.Equal(t, nutrition.StatusCompleted, job.Status)
	}
	assert.Equal(t, 5, model.callCount())
}

func TestDispatcher_PanicBecomesFailure(t *testing.T) {
	model := &fakeModel{panic: true}
	a, database := setup(t, model)
	d := NewDispatcher(a, nil)

	id := insertJob(t, database, nutrition.KindText, "meal")
	d.ScheduleAnalysis(id)
	require.NoError(t, d.Drain(context.Background()))

	job, err := db.GetAnalysisJob(context.Background(), database, id)
	require.NoError(t, err)
	assert.Equal(t, nutrition.StatusFailed, job.Status)
	require.NotNil(t, job.Failure)
	assert.Equal(t, nutrition.FailureInternal, *job.Failure)
}

func TestReaper_FailsStaleJobs(t *testing.T) {
	a, database := setup(t, &fakeModel{})
	ctx := context.Background()

	stale := &nutrition.AnalysisJob{
		ID: nutrition.NewID(), Kind: nutrition.KindText, SourceRef: "x", UserID: "u1",
		Date: "2026-03-14", CreatedAt: 100, UpdatedAt: 100,
	}
	require.NoError(t, db.InsertAnalysisJob(ctx, database, stale))
	fresh := insertJob(t, database, nutrition.KindText, "y")

	r := NewReaper(database, a.rec, 15*time.Minute, nil, nil)
	stats, err := r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Analysis)
	assert.Equal(t, 0, stats.Fix)

	got, err := db.GetAnalysisJob(ctx, database, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, nutrition.StatusFailed, got.Status)
	assert.Equal(t, nutrition.FailureStale, *got.Failure)

	got, err = db.GetAnalysisJob(ctx, database, fresh)
	require.NoError(t, err)
	assert.Equal(t, nutrition.StatusPending, got.Status)

	// Second pass finds nothing
	stats, err = r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Analysis)
}

func TestReaper_StartRejectsBadSchedule(t *testing.T) {
	a, database := setup(t, &fakeModel{})
	r := NewReaper(database, a.rec, time.Minute, nil, nil)
	require.Error(t, r.Start("not a schedule"))
}
