package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/hpungsan/plate/internal/config"
	"github.com/hpungsan/plate/internal/db"
	"github.com/hpungsan/plate/internal/telemetry"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// shutdownGrace bounds how long in-flight jobs may finish on exit.
const shutdownGrace = 90 * time.Second

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"submit-image": true, "submit-text": true, "fix": true,
	"job": true, "jobs": true, "fix-job": true, "fix-jobs": true,
	"entry": true, "entries": true, "add-entry": true, "delete-entry": true,
	"reap": true, "serve": true, "mcp": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode() bool {
	if len(os.Args) < 2 {
		return false // No args → MCP server
	}
	arg := os.Args[1]
	// Known subcommand → CLI
	if cliCommands[arg] {
		return true
	}
	// --help or --version → CLI
	if arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" {
		return true
	}
	return false // Default → MCP server
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
         _       _
   _ __ | | __ _| |_ ___
  | '_ \| |/ _' | __/ _ \
  | |_) | | (_| | ||  __/
  | .__/|_|\__,_|\__\___|
  |_|

  Asynchronous meal nutrition analysis

  Usage: plate <command> [options]
         plate --help

  MCP server mode requires piped input.`)
}

// baseDir returns PLATE_HOME or ~/.plate.
func baseDir() (string, error) {
	if dir := os.Getenv("PLATE_HOME"); dir != "" {
		return dir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".plate"), nil
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Handle --help/--version before DB init (no DB needed)
	if isHelpOrVersion() {
		app := newCLIApp(nil)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if !isCLIMode() && len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'plate --help' for usage.\n")
		os.Exit(1)
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	dir, err := baseDir()
	if err != nil {
		return err
	}

	cfg, err := config.Load(dir)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// stdout carries command output or the MCP stream, so logs go to stderr
	logger := telemetry.NewLogger(cfg.LogLevel, os.Stderr)

	database, err := db.Init(dir)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()
	db.ConfigurePool(database, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, database, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		rt.close(drainCtx)
	}()

	// CLI mode: known subcommand
	if isCLIMode() {
		return newCLIApp(rt).RunContext(ctx, os.Args)
	}

	// MCP server mode (default)
	return rt.serveMCP()
}
