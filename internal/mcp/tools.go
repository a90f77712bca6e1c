package mcp

import "github.com/mark3labs/mcp-go/mcp"

var contextStatusToolDef = mcp.NewTool("context_status",
	mcp.WithDescription("Report whether the team context cache exists, when it was refreshed, and whether it is stale (older than 7 days)."),
)

var contextRefreshToolDef = mcp.NewTool("context_refresh",
	mcp.WithDescription("Rebuild the context cache from Shortcut: SOP and templates, reference objectives with sampled epics and stories, and the default workflow state."),
)

var referenceListToolDef = mcp.NewTool("reference_list",
	mcp.WithDescription("List the reference objective library with cached titles."),
)

var referenceAddToolDef = mcp.NewTool("reference_add",
	mcp.WithDescription("Add an objective to the reference library and refresh the cache. Duplicates are ignored."),
	mcp.WithString("objective",
		mcp.Required(),
		mcp.Description("Objective id or Shortcut objective URL"),
	),
)

var referenceRemoveToolDef = mcp.NewTool("reference_remove",
	mcp.WithDescription("Remove an objective from the reference library and refresh the cache."),
	mcp.WithString("objective",
		mcp.Required(),
		mcp.Description("Objective id or Shortcut objective URL"),
	),
)

var promptPreviewToolDef = mcp.NewTool("prompt_preview",
	mcp.WithDescription("Render the system prompt blocks. The static block needs the context cache; the dynamic block is built from the supplied working context."),
	mcp.WithString("part",
		mcp.Description("static, dynamic or both (default both)"),
		mcp.Enum("static", "dynamic", "both"),
	),
	mcp.WithObject("active_objective",
		mcp.Description("Active objective: {id, name, description, state, key_results, epics}"),
	),
	mcp.WithObject("active_epic",
		mcp.Description("Active epic: {id, name, state}"),
	),
	mcp.WithString("transcript_summary",
		mcp.Description("Combined meeting summaries"),
	),
	mcp.WithArray("active_repos",
		mcp.Description("Repositories: [{owner, repo, full_name, description, readme, open_prs, open_issues}]"),
	),
)

var replyScanToolDef = mcp.NewTool("reply_scan",
	mcp.WithDescription("Split a model reply into prose and draft segments, with draft titles, bodies and the context-epic signal."),
	mcp.WithString("text",
		mcp.Required(),
		mcp.Description("Complete model reply"),
	),
)

var milestoneSpliceToolDef = mcp.NewTool("milestone_splice",
	mcp.WithDescription("Append a milestone to an objective description under COMMITTED MILESTONES, creating the section when missing. Nothing is saved."),
	mcp.WithString("description",
		mcp.Description("Current objective description (markdown)"),
	),
	mcp.WithString("milestone",
		mcp.Required(),
		mcp.Description("Drafted milestone; the first line names it"),
	),
)
