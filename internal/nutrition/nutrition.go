package nutrition

// JobKind distinguishes analysis jobs by their source.
type JobKind string

const (
	KindImage JobKind = "image"
	KindText  JobKind = "text"
)

// Status is a job's position in the pending -> completed|failed state machine.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// EntryMethod records how an entry came to exist.
type EntryMethod string

const (
	MethodImage     EntryMethod = "image"
	MethodText      EntryMethod = "text"
	MethodQuickAdd  EntryMethod = "quick_add"
	MethodSavedFood EntryMethod = "saved_food"
)

// Failure codes stored on a failed job.
const (
	FailureNoFood              = "no_food_detected"
	FailureUpstreamParse       = "upstream_parse"
	FailureUpstreamUnavailable = "upstream_unavailable"
	FailureConflict            = "conflict"
	FailureEntryMissing        = "entry_missing"
	FailureStale               = "stale"
	FailureSourceMissing       = "source_missing"
	FailureInternal            = "internal"
)

// Ingredient is one line of an entry's ingredient list.
type Ingredient struct {
	Name string `json:"name"`

	// WeightGrams is the estimated portion weight
	WeightGrams float64 `json:"weightGrams"`

	// ProteinPercentage is grams of protein per 100g, in [0, 100]
	ProteinPercentage float64 `json:"proteinPercentage"`

	Calories *float64 `json:"calories,omitempty"`

	MissingAminoAcids []string `json:"missingAminoAcids,omitempty"`
}

// Result is a normalized analysis payload. TotalProteinEstimate is always derived
// from Ingredients; see ProteinTotal.
type Result struct {
	Name                 string       `json:"name"`
	Ingredients          []Ingredient `json:"ingredients"`
	TotalProteinEstimate float64      `json:"totalProteinEstimate"`
	TotalCalories        *float64     `json:"totalCalories,omitempty"`
	AminoRecommendation  *string      `json:"aminoRecommendation,omitempty"`
}

// ZeroResult is the payload attached to a failed job.
func ZeroResult() *Result {
	return &Result{Ingredients: []Ingredient{}}
}

// AnalysisJob is a submitted image or text analysis.
type AnalysisJob struct {
	// ID is a ULID
	ID string `json:"id"`

	Kind JobKind `json:"kind"`

	// SourceRef is the stored-image reference for image jobs or the raw description for text jobs
	SourceRef string `json:"sourceRef"`

	UserID string `json:"userId"`

	// Date is the logical day (YYYY-MM-DD) the resulting entry is filed under
	Date string `json:"date"`

	// CreatedAt is the caller-supplied logical timestamp (Unix seconds)
	CreatedAt int64 `json:"createdAt"`

	Status Status `json:"status"`

	Result *Result `json:"result,omitempty"`

	// RequestKey is the idempotency key derived from a client request id (nullable)
	RequestKey *string `json:"-"`

	// Failure is a short failure code when Status is failed (nullable)
	Failure *string `json:"failure,omitempty"`

	// EntryID is the entry created on success (nullable)
	EntryID *string `json:"entryId,omitempty"`

	UpdatedAt int64 `json:"updatedAt"`
}

// Entry is a persisted nutrition record.
type Entry struct {
	ID                   string       `json:"id"`
	UserID               string       `json:"userId"`
	Date                 string       `json:"date"`
	Name                 string       `json:"name"`
	Ingredients          []Ingredient `json:"ingredients"`
	TotalProteinEstimate float64      `json:"totalProteinEstimate"`
	TotalCalories        *float64     `json:"totalCalories,omitempty"`
	AminoRecommendation  *string      `json:"aminoRecommendation,omitempty"`
	ImageURL             *string      `json:"imageUrl,omitempty"`
	EntryMethod          EntryMethod  `json:"entryMethod"`

	// Version starts at 1 and is bumped on every update
	Version int64 `json:"version"`

	CreatedAt int64 `json:"createdAt"`
	UpdatedAt int64 `json:"updatedAt"`
}

// FixJob is a correction instruction applied to an existing entry.
type FixJob struct {
	ID          string `json:"id"`
	EntryID     string `json:"entryId"`
	Instruction string `json:"instruction"`
	Status      Status `json:"status"`

	// OriginalEntrySnapshot is the entry as it was at submission, including its version
	OriginalEntrySnapshot Entry `json:"originalEntrySnapshot"`

	Result     *Result `json:"result,omitempty"`
	CreatedAt  int64   `json:"createdAt"`
	RequestKey *string `json:"-"`
	Failure    *string `json:"failure,omitempty"`
	UpdatedAt  int64   `json:"updatedAt"`
}

// DateLayout is the format of Entry.Date and AnalysisJob.Date.
const DateLayout = "2006-01-02"
