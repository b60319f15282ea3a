package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/plate/internal/errors"
	"github.com/hpungsan/plate/internal/mcp"
	"github.com/hpungsan/plate/internal/nutrition"
	"github.com/hpungsan/plate/internal/ops"
	"github.com/hpungsan/plate/internal/web"
)

// newCLIApp creates the CLI application with all commands. rt is nil when
// only --help or --version is requested.
func newCLIApp(rt *runtime) *cli.App {
	app := &cli.App{
		Name:    "plate",
		Usage:   "Asynchronous meal nutrition analysis",
		Version: Version,
		Commands: []*cli.Command{
			submitImageCmd(rt),
			submitTextCmd(rt),
			fixCmd(rt),
			jobCmd(rt),
			jobsCmd(rt),
			fixJobCmd(rt),
			fixJobsCmd(rt),
			entryCmd(rt),
			entriesCmd(rt),
			addEntryCmd(rt),
			deleteEntryCmd(rt),
			reapCmd(rt),
			serveCmd(rt),
			mcpCmd(rt),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// ownerFlags are shared by the submission and entry commands.
func ownerFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "user", Aliases: []string{"u"}, Required: true, Usage: "User id"},
		&cli.StringFlag{Name: "date", Aliases: []string{"d"}, Usage: "Meal day, YYYY-MM-DD (default: today)"},
	}
}

// submitFlags are shared by every submission command.
func submitFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "request-id", Aliases: []string{"r"}, Usage: "Idempotency key"},
		&cli.Int64Flag{Name: "created-at", Usage: "Logical submission time, unix seconds (default: now)"},
		&cli.BoolFlag{Name: "wait", Aliases: []string{"w"}, Usage: "Wait for the job to finish and print it"},
	}
}

// submitImageCmd creates the submit-image command.
func submitImageCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:      "submit-image",
		Usage:     "Submit a meal photo (object key or URL) for analysis",
		ArgsUsage: "<image-ref>",
		Flags:     append(ownerFlags(), submitFlags()...),
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return outputError(errors.NewInvalidRequest("exactly one image ref is required"))
			}

			output, err := ops.SubmitImageJob(c.Context, rt.deps, ops.SubmitImageInput{
				ImageRef:  c.Args().First(),
				UserID:    c.String("user"),
				Date:      dateOrToday(c.String("date")),
				CreatedAt: c.Int64("created-at"),
				RequestID: c.String("request-id"),
			})
			if err != nil {
				return outputError(err)
			}
			return rt.finishSubmit(c, output, false)
		},
	}
}

// submitTextCmd creates the submit-text command.
func submitTextCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:      "submit-text",
		Usage:     "Submit a meal description for analysis (args or stdin)",
		ArgsUsage: "[description...]",
		Flags:     append(ownerFlags(), submitFlags()...),
		Action: func(c *cli.Context) error {
			description, err := argsOrStdin(c)
			if err != nil {
				return outputError(err)
			}

			output, err := ops.SubmitTextJob(c.Context, rt.deps, ops.SubmitTextInput{
				Description: description,
				UserID:      c.String("user"),
				Date:        dateOrToday(c.String("date")),
				CreatedAt:   c.Int64("created-at"),
				RequestID:   c.String("request-id"),
			})
			if err != nil {
				return outputError(err)
			}
			return rt.finishSubmit(c, output, false)
		},
	}
}

// fixCmd creates the fix command.
func fixCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:      "fix",
		Usage:     "Submit a correction for an entry (instruction from flag or stdin)",
		ArgsUsage: "<entry-id>",
		Flags: append([]cli.Flag{
			&cli.StringFlag{Name: "instruction", Aliases: []string{"i"}, Usage: "Correction in plain language"},
		}, submitFlags()...),
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return outputError(errors.NewInvalidRequest("exactly one entry id is required"))
			}

			instruction := c.String("instruction")
			if instruction == "" && stdinHasData() {
				text, err := readStdin()
				if err != nil {
					return outputError(errors.NewInternal(err))
				}
				instruction = text
			}

			output, err := ops.SubmitFixJob(c.Context, rt.deps, ops.SubmitFixInput{
				EntryID:     c.Args().First(),
				Instruction: instruction,
				CreatedAt:   c.Int64("created-at"),
				RequestID:   c.String("request-id"),
			})
			if err != nil {
				return outputError(err)
			}
			return rt.finishSubmit(c, output, true)
		},
	}
}

// jobCmd creates the job command.
func jobCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:      "job",
		Usage:     "Get an analysis job",
		ArgsUsage: "<job-id>",
		Action: func(c *cli.Context) error {
			output, err := ops.GetJob(c.Context, rt.db, c.Args().First())
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// jobsCmd creates the jobs command.
func jobsCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "jobs",
		Usage: "List the most recent pending analysis jobs",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Usage: "Maximum items to return (default 3, max 50)"},
			&cli.StringFlag{Name: "user", Aliases: []string{"u"}, Usage: "Only this user's jobs"},
		},
		Action: func(c *cli.Context) error {
			limit := c.Int("limit")
			if limit <= 0 {
				limit = rt.cfg.Jobs.RecentPendingLimit
			}
			output, err := ops.ListRecentPendingJobs(c.Context, rt.db, ops.ListPendingInput{
				UserID: c.String("user"),
				Limit:  limit,
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// fixJobCmd creates the fix-job command.
func fixJobCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:      "fix-job",
		Usage:     "Get a fix job",
		ArgsUsage: "<fix-job-id>",
		Action: func(c *cli.Context) error {
			output, err := ops.GetFixJob(c.Context, rt.db, c.Args().First())
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// fixJobsCmd creates the fix-jobs command.
func fixJobsCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "fix-jobs",
		Usage: "List pending fix jobs and recently finished ones",
		Flags: []cli.Flag{
			&cli.DurationFlag{Name: "retention", Usage: "How long finished fix jobs stay listed (default from config)"},
		},
		Action: func(c *cli.Context) error {
			retention := c.Duration("retention")
			if retention <= 0 {
				retention = rt.cfg.FixRetention()
			}
			output, err := ops.ListFixJobs(c.Context, rt.db, ops.ListFixJobsInput{
				Now:       time.Now(),
				Retention: retention,
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// entryCmd creates the entry command.
func entryCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:      "entry",
		Usage:     "Get a food log entry",
		ArgsUsage: "<entry-id>",
		Action: func(c *cli.Context) error {
			output, err := ops.GetEntry(c.Context, rt.db, c.Args().First())
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// entriesCmd creates the entries command.
func entriesCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "entries",
		Usage: "List a user's entries with the summed protein total",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "user", Aliases: []string{"u"}, Required: true, Usage: "User id"},
			&cli.StringFlag{Name: "date", Aliases: []string{"d"}, Usage: "Only this day, YYYY-MM-DD"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.ListEntries(c.Context, rt.db, ops.ListEntriesInput{
				UserID: c.String("user"),
				Date:   c.String("date"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// addEntryCmd creates the add-entry command.
func addEntryCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "add-entry",
		Usage: "Record an entry directly (reads the ingredients JSON array from stdin)",
		Flags: append(ownerFlags(),
			&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Required: true, Usage: "Meal name"},
			&cli.StringFlag{Name: "method", Aliases: []string{"m"}, Value: string(nutrition.MethodQuickAdd), Usage: "Entry method: quick_add|saved_food"},
			&cli.StringFlag{Name: "amino", Usage: "Amino acid recommendation (markdown)"},
		),
		Action: func(c *cli.Context) error {
			if !stdinHasData() {
				return outputError(errors.NewInvalidRequest("ingredients must be piped via stdin as a JSON array"))
			}
			data, err := readStdin()
			if err != nil {
				return outputError(errors.NewInternal(err))
			}
			var ingredients []nutrition.Ingredient
			if err := json.Unmarshal([]byte(data), &ingredients); err != nil {
				return outputError(errors.NewInvalidRequest(fmt.Sprintf("invalid ingredients JSON: %v", err)))
			}

			input := ops.QuickAddInput{
				UserID:      c.String("user"),
				Date:        dateOrToday(c.String("date")),
				Name:        c.String("name"),
				Ingredients: ingredients,
				Method:      nutrition.EntryMethod(c.String("method")),
			}
			if amino := c.String("amino"); amino != "" {
				input.AminoRecommendation = &amino
			}

			output, err := ops.QuickAddEntry(c.Context, rt.deps, input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// deleteEntryCmd creates the delete-entry command.
func deleteEntryCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:      "delete-entry",
		Usage:     "Delete a food log entry",
		ArgsUsage: "<entry-id>",
		Action: func(c *cli.Context) error {
			output, err := ops.DeleteEntry(c.Context, rt.deps, c.Args().First())
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// reapCmd creates the reap command.
func reapCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "reap",
		Usage: "Fail pending jobs that have not progressed within the stuck threshold",
		Action: func(c *cli.Context) error {
			output, err := rt.reaper.RunOnce(c.Context)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// serveCmd creates the serve command.
func serveCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the JSON API with the background reaper",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "host", Usage: "Bind host (default from config)"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "Bind port (default from config)"},
		},
		Action: func(c *cli.Context) error {
			if host := c.String("host"); host != "" {
				rt.cfg.HTTP.Host = host
			}
			if port := c.Int("port"); port > 0 {
				rt.cfg.HTTP.Port = port
			}
			if err := rt.startReaper(); err != nil {
				return outputError(errors.NewInvalidRequest(fmt.Sprintf("invalid reaper schedule: %v", err)))
			}

			srv := web.NewServer(rt.deps, rt.hub, rt.cfg, rt.logger, Version)
			return web.Run(c.Context, srv, rt.logger)
		},
	}
}

// mcpCmd creates the mcp command.
func mcpCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Run the MCP server over stdio",
		Action: func(c *cli.Context) error {
			return rt.serveMCP()
		},
	}
}

// serveMCP runs the stdio MCP server with the reaper until stdin closes.
func (rt *runtime) serveMCP() error {
	if unknown := mcp.ValidateDisabledTools(rt.cfg.DisabledTools); len(unknown) > 0 {
		rt.logger.Warn().Strs("tools", unknown).Msg("ignoring unknown disabled_tools entries")
	}
	if err := rt.startReaper(); err != nil {
		return fmt.Errorf("invalid reaper schedule: %w", err)
	}
	return mcp.Run(rt.deps, rt.cfg, Version)
}

// finishSubmit prints the submission result, or with --wait the finished job.
func (rt *runtime) finishSubmit(c *cli.Context, output *ops.SubmitOutput, fix bool) error {
	if !c.Bool("wait") {
		return outputJSON(output)
	}

	ctx, cancel := context.WithTimeout(c.Context, rt.cfg.LLMTimeout()+30*time.Second)
	defer cancel()
	if err := rt.dispatcher.Wait(ctx); err != nil {
		return outputError(errors.NewInternal(err))
	}

	if fix {
		job, err := ops.GetFixJob(c.Context, rt.db, output.JobID)
		if err != nil {
			return outputError(err)
		}
		return outputJSON(job)
	}
	job, err := ops.GetJob(c.Context, rt.db, output.JobID)
	if err != nil {
		return outputError(err)
	}
	return outputJSON(job)
}

// Helper functions

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	var plateErr *errors.PlateError
	if stderrors.As(err, &plateErr) {
		return cli.Exit(fmt.Sprintf("[%s] %s", plateErr.Code, plateErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// argsOrStdin joins positional args, falling back to piped stdin.
func argsOrStdin(c *cli.Context) (string, error) {
	if c.NArg() > 0 {
		return strings.Join(c.Args().Slice(), " "), nil
	}
	if stdinHasData() {
		text, err := readStdin()
		if err != nil {
			return "", errors.NewInternal(err)
		}
		return text, nil
	}
	return "", nil
}

// dateOrToday returns date, or today's local date when empty.
func dateOrToday(date string) string {
	if strings.TrimSpace(date) != "" {
		return date
	}
	return time.Now().Format("2006-01-02")
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads all content from stdin.
func readStdin() (string, error) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
