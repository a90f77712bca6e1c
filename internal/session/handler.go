package session

import (
	"context"
	"fmt"
	"strings"

	apperrors "github.com/Viktorfalkner/roots-product-helper/internal/errors"
	"github.com/Viktorfalkner/roots-product-helper/internal/marker"
	"github.com/Viktorfalkner/roots-product-helper/internal/outline"
	"github.com/Viktorfalkner/roots-product-helper/internal/plan"
	"github.com/Viktorfalkner/roots-product-helper/internal/shortcut"
)

// Tracker is the slice of the project tracker the handler needs.
// *shortcut.Client satisfies it.
type Tracker interface {
	GetObjective(ctx context.Context, id int64) (*plan.Objective, error)
	GetEpic(ctx context.Context, id int64) (*plan.Epic, error)
	CreateObjective(ctx context.Context, in shortcut.ObjectiveInput) (*plan.Objective, error)
	UpdateObjective(ctx context.Context, id int64, in shortcut.ObjectiveUpdate) (*plan.Objective, error)
	CreateEpic(ctx context.Context, in shortcut.EpicInput) (*plan.Epic, error)
	CreateStory(ctx context.Context, in shortcut.StoryInput) (*plan.Story, error)
}

// StoryRequest creates a story. EpicID and Estimate are optional.
type StoryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	EpicID      *int64 `json:"epic_id,omitempty"`
	Estimate    *int   `json:"estimate,omitempty"`
	StoryType   string `json:"story_type,omitempty"`
}

// EpicRequest creates an epic, optionally under an objective.
type EpicRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ObjectiveID *int64 `json:"objective_id,omitempty"`
}

// ObjectiveRequest creates an objective.
type ObjectiveRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// MilestoneRequest appends a milestone to an objective's description. Body is
// the drafted milestone markdown; its first line names the milestone.
type MilestoneRequest struct {
	ObjectiveID int64  `json:"objective_id"`
	Body        string `json:"body"`
}

// Result reports a created artifact. Exactly one of Story, Epic or Objective
// is set; for milestones Objective is the updated parent.
type Result struct {
	Kind      marker.Kind     `json:"kind"`
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Story     *plan.Story     `json:"story,omitempty"`
	Epic      *plan.Epic      `json:"epic,omitempty"`
	Objective *plan.Objective `json:"objective,omitempty"`
	Milestone string          `json:"milestone,omitempty"`
}

// Handler turns drafts and context signals into tracker calls and state
// transitions.
type Handler struct {
	tracker       Tracker
	state         *State
	workflowState *int64
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithDefaultWorkflowState sets the workflow state for new stories.
func WithDefaultWorkflowState(id *int64) HandlerOption {
	return func(h *Handler) { h.workflowState = id }
}

// NewHandler creates a Handler over tracker and state.
func NewHandler(tracker Tracker, state *State, opts ...HandlerOption) *Handler {
	h := &Handler{tracker: tracker, state: state}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// State returns the state the handler drives.
func (h *Handler) State() *State { return h.state }

// ApplyContext activates the epic named by sig. Fetch errors leave the state
// unchanged.
func (h *Handler) ApplyContext(ctx context.Context, sig *marker.ContextSignal) (*plan.Epic, error) {
	if sig == nil {
		return nil, nil
	}
	e, err := h.tracker.GetEpic(ctx, sig.ID)
	if err != nil {
		return nil, err
	}
	active := &plan.Epic{ID: e.ID, Name: e.Name, State: e.State}
	h.state.SetEpic(active)
	return active, nil
}

// Create persists a draft using the active focus for routing:
//   - story: marker epic_id, else the active epic, else the first open epic
//     of the active objective
//   - epic: parented to the active objective
//   - milestone: spliced into the active objective's description
//
// PRD drafts are exported, never created.
func (h *Handler) Create(ctx context.Context, d *marker.Draft) (*Result, error) {
	if d == nil {
		return nil, apperrors.NewInvalidRequest("draft is required")
	}
	body := marker.Body(d)
	if body == "" {
		return nil, apperrors.NewInvalidRequest(fmt.Sprintf("%s draft is empty", d.Kind.Label()))
	}
	title := marker.Title(d)
	snap := h.state.Snapshot()

	switch d.Kind {
	case marker.KindStory:
		req := StoryRequest{Name: title, Description: body, EpicID: storyEpic(d, snap)}
		res, err := h.CreateStory(ctx, req)
		if err != nil {
			return nil, err
		}
		h.state.SetStory(res.Story)
		return res, nil

	case marker.KindEpic:
		req := EpicRequest{Name: title, Description: body}
		if snap.Objective != nil {
			req.ObjectiveID = &snap.Objective.ID
		}
		res, err := h.CreateEpic(ctx, req)
		if err != nil {
			return nil, err
		}
		h.state.SetEpic(res.Epic)
		return res, nil

	case marker.KindObjective:
		return h.CreateObjective(ctx, ObjectiveRequest{Name: title, Description: body})

	case marker.KindMilestone:
		if snap.Objective == nil {
			return nil, apperrors.NewInvalidRequest("Load an objective first to create milestones")
		}
		res, err := h.AddMilestone(ctx, MilestoneRequest{ObjectiveID: snap.Objective.ID, Body: body})
		if err != nil {
			return nil, err
		}
		h.state.SetObjectiveDescription(snap.Objective.ID, res.Objective.Description)
		return res, nil

	case marker.KindPRD:
		return nil, apperrors.NewInvalidRequest("PRD drafts cannot be created in the tracker; export them as markdown")
	}
	return nil, apperrors.NewInvalidRequest(fmt.Sprintf("unknown draft kind %q", d.Kind))
}

func storyEpic(d *marker.Draft, snap Snapshot) *int64 {
	if d.EpicID != nil {
		id := *d.EpicID
		return &id
	}
	if snap.Epic != nil {
		id := snap.Epic.ID
		return &id
	}
	if e := snap.Objective.FirstOpenEpic(); e != nil {
		id := e.ID
		return &id
	}
	return nil
}

// CreateStory creates a story. The type defaults to "feature".
func (h *Handler) CreateStory(ctx context.Context, req StoryRequest) (*Result, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, apperrors.NewInvalidField("name", "is required")
	}
	st, err := h.tracker.CreateStory(ctx, shortcut.StoryInput{
		Name:            req.Name,
		Description:     req.Description,
		StoryType:       req.StoryType,
		EpicID:          positive(req.EpicID),
		Estimate:        req.Estimate,
		WorkflowStateID: h.workflowState,
	})
	if err != nil {
		return nil, err
	}
	return &Result{Kind: marker.KindStory, ID: st.ID, Name: st.Name, Story: st}, nil
}

// CreateEpic creates an epic.
func (h *Handler) CreateEpic(ctx context.Context, req EpicRequest) (*Result, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, apperrors.NewInvalidField("name", "is required")
	}
	in := shortcut.EpicInput{Name: req.Name, Description: req.Description}
	if id := positive(req.ObjectiveID); id != nil {
		in.ObjectiveIDs = []int64{*id}
	}
	e, err := h.tracker.CreateEpic(ctx, in)
	if err != nil {
		return nil, err
	}
	return &Result{Kind: marker.KindEpic, ID: e.ID, Name: e.Name, Epic: e}, nil
}

// CreateObjective creates an objective.
func (h *Handler) CreateObjective(ctx context.Context, req ObjectiveRequest) (*Result, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, apperrors.NewInvalidField("name", "is required")
	}
	o, err := h.tracker.CreateObjective(ctx, shortcut.ObjectiveInput{Name: req.Name, Description: req.Description})
	if err != nil {
		return nil, err
	}
	return &Result{Kind: marker.KindObjective, ID: o.ID, Name: o.Name, Objective: o}, nil
}

// AddMilestone reads the objective's current description from the tracker,
// splices the milestone entry into it and saves it back.
func (h *Handler) AddMilestone(ctx context.Context, req MilestoneRequest) (*Result, error) {
	if req.ObjectiveID <= 0 {
		return nil, apperrors.NewInvalidField("objective_id", "is required; a milestone must belong to an objective")
	}
	name, entry := outline.MilestoneEntry(req.Body)
	if name == "" {
		return nil, apperrors.NewInvalidField("name", "is required")
	}

	o, err := h.tracker.GetObjective(ctx, req.ObjectiveID)
	if err != nil {
		return nil, err
	}
	description := outline.AppendMilestone(o.Description, entry)

	updated, err := h.tracker.UpdateObjective(ctx, req.ObjectiveID, shortcut.ObjectiveUpdate{Description: &description})
	if err != nil {
		return nil, err
	}
	if updated.Description == "" {
		updated.Description = description
	}
	return &Result{Kind: marker.KindMilestone, ID: updated.ID, Name: name, Objective: updated, Milestone: entry}, nil
}

func positive(id *int64) *int64 {
	if id == nil || *id <= 0 {
		return nil
	}
	return id
}
