package mcp

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Viktorfalkner/roots-product-helper/internal/cache"
	"github.com/Viktorfalkner/roots-product-helper/internal/config"
	"github.com/Viktorfalkner/roots-product-helper/internal/errors"
	"github.com/Viktorfalkner/roots-product-helper/internal/marker"
	"github.com/Viktorfalkner/roots-product-helper/internal/outline"
	"github.com/Viktorfalkner/roots-product-helper/internal/plan"
	"github.com/Viktorfalkner/roots-product-helper/internal/prompt"
	"github.com/Viktorfalkner/roots-product-helper/internal/shortcut"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	store     *config.Store
	refresher *cache.Refresher
	library   *cache.Library
	now       func() time.Time
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(store *config.Store, refresher *cache.Refresher, library *cache.Library) *Handlers {
	return &Handlers{store: store, refresher: refresher, library: library, now: time.Now}
}

// Request types for each tool

// ReferenceRequest represents the arguments for reference_add and reference_remove.
type ReferenceRequest struct {
	Objective json.RawMessage `json:"objective"`
}

// PromptPreviewRequest represents the arguments for prompt_preview.
type PromptPreviewRequest struct {
	Part              string          `json:"part,omitempty"`
	Objective         *plan.Objective `json:"active_objective,omitempty"`
	Epic              *plan.Epic      `json:"active_epic,omitempty"`
	TranscriptSummary string          `json:"transcript_summary,omitempty"`
	Repos             []plan.Repo     `json:"active_repos,omitempty"`
}

// ReplyScanRequest represents the arguments for reply_scan.
type ReplyScanRequest struct {
	Text string `json:"text"`
}

// MilestoneSpliceRequest represents the arguments for milestone_splice.
type MilestoneSpliceRequest struct {
	Description string `json:"description"`
	Milestone   string `json:"milestone"`
}

// Output types

// PromptPreviewOutput holds the rendered blocks. Omitted parts are empty.
type PromptPreviewOutput struct {
	Static  string `json:"static,omitempty"`
	Dynamic string `json:"dynamic,omitempty"`
}

// ScannedSegment is a reply segment with its draft card fields.
type ScannedSegment struct {
	Kind   marker.SegmentKind `json:"kind"`
	Text   string             `json:"text"`
	Draft  marker.Kind        `json:"draft,omitempty"`
	Title  string             `json:"title,omitempty"`
	Body   string             `json:"body,omitempty"`
	EpicID *int64             `json:"epic_id,omitempty"`
}

// ReplyScanOutput is the scanned reply.
type ReplyScanOutput struct {
	Display  string                `json:"display"`
	Segments []ScannedSegment      `json:"segments"`
	Context  *marker.ContextSignal `json:"context,omitempty"`
}

// MilestoneSpliceOutput is the spliced description.
type MilestoneSpliceOutput struct {
	Name        string `json:"name"`
	Entry       string `json:"entry"`
	Description string `json:"description"`
}

// Handler implementations

// HandleContextStatus handles the context_status tool call.
func (h *Handlers) HandleContextStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := cache.StatusAt(h.store.CachePath(), h.now())
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(status)
}

// HandleContextRefresh handles the context_refresh tool call.
func (h *Handlers) HandleContextRefresh(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	c, err := h.refresher.Refresh(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{
		"status":               c.StatusAt(h.now()),
		"reference_objectives": len(c.ReferenceObjectives),
	})
}

// HandleReferenceList handles the reference_list tool call.
func (h *Handlers) HandleReferenceList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	v, err := h.library.List()
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(v)
}

// HandleReferenceAdd handles the reference_add tool call.
func (h *Handlers) HandleReferenceAdd(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.editReference(ctx, req, h.library.Add)
}

// HandleReferenceRemove handles the reference_remove tool call.
func (h *Handlers) HandleReferenceRemove(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.editReference(ctx, req, h.library.Remove)
}

func (h *Handlers) editReference(ctx context.Context, req mcp.CallToolRequest, edit func(context.Context, int64) (*cache.LibraryView, error)) (*mcp.CallToolResult, error) {
	input, err := decode[ReferenceRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	// Accept a JSON number as well as a string.
	var s string
	if err := json.Unmarshal(input.Objective, &s); err != nil {
		s = string(input.Objective)
	}
	id, err := shortcut.ParseObjectiveID(s)
	if err != nil {
		return errorResult(err), nil
	}

	v, err := edit(ctx, id)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(v)
}

// HandlePromptPreview handles the prompt_preview tool call.
func (h *Handlers) HandlePromptPreview(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PromptPreviewRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	part := input.Part
	if part == "" {
		part = "both"
	}
	if part != "static" && part != "dynamic" && part != "both" {
		return errorResult(errors.NewInvalidField("part", "must be static, dynamic or both")), nil
	}

	var out PromptPreviewOutput
	if part != "dynamic" {
		c, err := cache.Load(h.store.CachePath())
		if err != nil {
			return errorResult(err), nil
		}
		out.Static = prompt.BuildStatic(c)
	}
	if part != "static" {
		out.Dynamic = prompt.BuildDynamic(prompt.DynamicInput{
			Objective:         input.Objective,
			Epic:              input.Epic,
			TranscriptSummary: input.TranscriptSummary,
			Repos:             input.Repos,
		})
	}
	return successResult(out)
}

// HandleReplyScan handles the reply_scan tool call.
func (h *Handlers) HandleReplyScan(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ReplyScanRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	reply := marker.Parse(input.Text)
	out := ReplyScanOutput{Display: reply.Display, Context: reply.Context, Segments: make([]ScannedSegment, len(reply.Segments))}
	for i, s := range reply.Segments {
		seg := ScannedSegment{Kind: s.Kind, Text: s.Text}
		if d := s.Draft; d != nil {
			seg.Draft = d.Kind
			seg.Title = marker.Title(d)
			seg.Body = marker.Body(d)
			seg.EpicID = d.EpicID
		}
		out.Segments[i] = seg
	}
	return successResult(out)
}

// HandleMilestoneSplice handles the milestone_splice tool call.
func (h *Handlers) HandleMilestoneSplice(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[MilestoneSpliceRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	name, entry := outline.MilestoneEntry(input.Milestone)
	if name == "" {
		return errorResult(errors.NewInvalidField("milestone", "is required")), nil
	}
	return successResult(MilestoneSpliceOutput{
		Name:        name,
		Entry:       entry,
		Description: outline.AppendMilestone(input.Description, entry),
	})
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Internal error details are not exposed.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	var aErr *errors.AppError
	if stderrors.As(err, &aErr) {
		errorObj := map[string]any{
			"code":    aErr.Code,
			"message": aErr.Message,
			"status":  aErr.Status,
		}
		if aErr.Code != errors.ErrInternal && aErr.Details != nil {
			errorObj["details"] = aErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
