package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

var submitImageToolDef = mcp.NewTool("job_submit_image",
	mcp.WithDescription("Submit a meal photo for nutrition analysis. Returns a job id immediately; poll job_get for the result."),
	mcp.WithString("image_ref",
		mcp.Required(),
		mcp.Description("Uploaded object key or http(s) image URL"),
	),
	mcp.WithString("user_id", mcp.Required(), mcp.Description("Owner of the resulting entry")),
	mcp.WithString("date", mcp.Required(), mcp.Description("Logical day of the meal (YYYY-MM-DD)")),
	mcp.WithNumber("created_at", mcp.Description("Logical submission time, unix seconds (default: now)")),
	mcp.WithString("request_id", mcp.Description("Idempotency key; resubmitting the same id returns the original job")),
)

var submitTextToolDef = mcp.NewTool("job_submit_text",
	mcp.WithDescription("Submit a free-text meal description for nutrition analysis. Returns a job id immediately."),
	mcp.WithString("description",
		mcp.Required(),
		mcp.Description("What was eaten, e.g. '2 eggs and a slice of toast' (max 4000 chars)"),
	),
	mcp.WithString("user_id", mcp.Required(), mcp.Description("Owner of the resulting entry")),
	mcp.WithString("date", mcp.Required(), mcp.Description("Logical day of the meal (YYYY-MM-DD)")),
	mcp.WithNumber("created_at", mcp.Description("Logical submission time, unix seconds (default: now)")),
	mcp.WithString("request_id", mcp.Description("Idempotency key")),
)

var submitFixToolDef = mcp.NewTool("job_submit_fix",
	mcp.WithDescription("Submit a correction for an existing entry. The entry is replaced only if nobody else changed it first."),
	mcp.WithString("entry_id", mcp.Required(), mcp.Description("Entry to correct")),
	mcp.WithString("instruction",
		mcp.Required(),
		mcp.Description("Correction in plain language, e.g. 'the rice was 200g' (max 2000 chars)"),
	),
	mcp.WithNumber("created_at", mcp.Description("Logical submission time, unix seconds (default: now)")),
	mcp.WithString("request_id", mcp.Description("Idempotency key")),
)

var getJobToolDef = mcp.NewTool("job_get",
	mcp.WithDescription("Get an analysis job. result is null while status is pending."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Job id")),
)

var listPendingToolDef = mcp.NewTool("job_list_pending",
	mcp.WithDescription("List the most recent pending analysis jobs"),
	mcp.WithNumber("limit", mcp.Description("Max results (default: 3, max: 50)")),
	mcp.WithString("user_id", mcp.Description("Only this user's jobs")),
)

var listFixJobsToolDef = mcp.NewTool("fix_job_list",
	mcp.WithDescription("List pending fix jobs plus fix jobs finished within the retention window (default 1h)"),
)

var getFixJobToolDef = mcp.NewTool("fix_job_get",
	mcp.WithDescription("Get a fix job, including the entry snapshot it was based on"),
	mcp.WithString("id", mcp.Required(), mcp.Description("Fix job id")),
)

var getEntryToolDef = mcp.NewTool("entry_get",
	mcp.WithDescription("Get a food log entry"),
	mcp.WithString("id", mcp.Required(), mcp.Description("Entry id")),
)

var listEntriesToolDef = mcp.NewTool("entry_list",
	mcp.WithDescription("List a user's entries with the summed protein total"),
	mcp.WithString("user_id", mcp.Required(), mcp.Description("Owner")),
	mcp.WithString("date", mcp.Description("Only this day (YYYY-MM-DD)")),
)
