package mcp

import (
	"context"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/Viktorfalkner/roots-product-helper/internal/config"
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"context_status": {
		def:     contextStatusToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleContextStatus },
	},
	"context_refresh": {
		def:     contextRefreshToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleContextRefresh },
	},
	"reference_list": {
		def:     referenceListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleReferenceList },
	},
	"reference_add": {
		def:     referenceAddToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleReferenceAdd },
	},
	"reference_remove": {
		def:     referenceRemoveToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleReferenceRemove },
	},
	"prompt_preview": {
		def:     promptPreviewToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePromptPreview },
	},
	"reply_scan": {
		def:     replyScanToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleReplyScan },
	},
	"milestone_splice": {
		def:     milestoneSpliceToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleMilestoneSplice },
	},
}

// AllToolNames returns every tool name, sorted.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
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

// NewServer creates a new MCP server with the planning tools registered.
// Tools listed in cfg.DisabledTools are excluded from registration.
func NewServer(h *Handlers, cfg *config.Config, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"roots",
		version,
		server.WithToolCapabilities(true),
	)

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
func Run(h *Handlers, cfg *config.Config, version string) error {
	return server.ServeStdio(NewServer(h, cfg, version))
}

// ToolHandlerFunc is the signature for tool handlers.
type ToolHandlerFunc func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
