package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/plate/internal/config"
	"github.com/hpungsan/plate/internal/ops"
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"job_submit_image": {
		def:     submitImageToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSubmitImage },
	},
	"job_submit_text": {
		def:     submitTextToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSubmitText },
	},
	"job_submit_fix": {
		def:     submitFixToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSubmitFix },
	},
	"job_get": {
		def:     getJobToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleGetJob },
	},
	"job_list_pending": {
		def:     listPendingToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleListPending },
	},
	"fix_job_list": {
		def:     listFixJobsToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleListFixJobs },
	},
	"fix_job_get": {
		def:     getFixJobToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleGetFixJob },
	},
	"entry_get": {
		def:     getEntryToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleGetEntry },
	},
	"entry_list": {
		def:     listEntriesToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleListEntries },
	},
}

// AllToolNames returns a list of all valid tool names.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// NewServer creates an MCP server with the plate tools registered. Tools
// listed in cfg.DisabledTools are skipped.
func NewServer(deps ops.Deps, cfg *config.Config, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"plate",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(deps, cfg)

	disabled := make(map[string]bool, len(cfg.DisabledTools))
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport.
func Run(deps ops.Deps, cfg *config.Config, version string) error {
	s := NewServer(deps, cfg, version)
	return server.ServeStdio(s)
}

// ToolHandlerFunc is the signature for tool handlers.
type ToolHandlerFunc func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
