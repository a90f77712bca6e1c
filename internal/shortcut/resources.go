package shortcut

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/Viktorfalkner/roots-product-helper/internal/plan"
)

// ContextStoriesPerEpic caps the stories embedded per epic by ObjectiveWithContext.
const ContextStoriesPerEpic = 10

// Document is a Shortcut doc. The body lives in one of three fields
// depending on how the doc was authored.
type Document struct {
	ID              string `json:"id"`
	Title           string `json:"title,omitempty"`
	ContentMarkdown string `json:"content_markdown,omitempty"`
	Content         string `json:"content,omitempty"`
	Text            string `json:"text,omitempty"`
}

// Body returns the first non-empty content field.
func (d *Document) Body() string {
	switch {
	case d.ContentMarkdown != "":
		return d.ContentMarkdown
	case d.Content != "":
		return d.Content
	default:
		return d.Text
	}
}

// WorkflowState is one column of a workflow.
type WorkflowState struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// Workflow is a Shortcut workflow with its ordered states.
type Workflow struct {
	ID     int64           `json:"id"`
	Name   string          `json:"name"`
	States []WorkflowState `json:"states"`
}

// DefaultState returns the first "unstarted" state, else the first state.
func (w *Workflow) DefaultState() *WorkflowState {
	for i := range w.States {
		if w.States[i].Type == "unstarted" {
			return &w.States[i]
		}
	}
	if len(w.States) > 0 {
		return &w.States[0]
	}
	return nil
}

// ObjectiveInput is the payload for creating an objective.
type ObjectiveInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ObjectiveUpdate is the payload for updating an objective. Nil fields are omitted.
type ObjectiveUpdate struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// EpicInput is the payload for creating an epic.
type EpicInput struct {
	Name         string  `json:"name"`
	Description  string  `json:"description"`
	ObjectiveIDs []int64 `json:"objective_ids,omitempty"`
}

// EpicUpdate is the payload for updating an epic. Nil fields are omitted.
type EpicUpdate struct {
	Name         *string `json:"name,omitempty"`
	Description  *string `json:"description,omitempty"`
	ObjectiveIDs []int64 `json:"objective_ids,omitempty"`
}

// StoryInput is the payload for creating a story.
type StoryInput struct {
	Name            string `json:"name"`
	Description     string `json:"description"`
	StoryType       string `json:"story_type"`
	EpicID          *int64 `json:"epic_id,omitempty"`
	Estimate        *int   `json:"estimate,omitempty"`
	WorkflowStateID *int64 `json:"workflow_state_id,omitempty"`
}

// GetDocument fetches a doc by id.
func (c *Client) GetDocument(ctx context.Context, id string) (*Document, error) {
	var doc Document
	if err := c.do(ctx, "GET", "/documents/"+id, nil, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// GetObjective fetches an objective by id.
func (c *Client) GetObjective(ctx context.Context, id int64) (*plan.Objective, error) {
	var obj plan.Objective
	if err := c.do(ctx, "GET", fmt.Sprintf("/objectives/%d", id), nil, &obj); err != nil {
		return nil, err
	}
	return &obj, nil
}

// ListObjectiveEpics lists every epic linked to an objective, archived included.
func (c *Client) ListObjectiveEpics(ctx context.Context, objectiveID int64) ([]plan.Epic, error) {
	var epics []plan.Epic
	if err := c.do(ctx, "GET", fmt.Sprintf("/objectives/%d/epics", objectiveID), nil, &epics); err != nil {
		return nil, err
	}
	return epics, nil
}

// GetEpic fetches an epic by id.
func (c *Client) GetEpic(ctx context.Context, id int64) (*plan.Epic, error) {
	var epic plan.Epic
	if err := c.do(ctx, "GET", fmt.Sprintf("/epics/%d", id), nil, &epic); err != nil {
		return nil, err
	}
	return &epic, nil
}

// ListEpicStories lists the stories of an epic, descriptions included.
func (c *Client) ListEpicStories(ctx context.Context, epicID int64) ([]plan.Story, error) {
	var stories []plan.Story
	if err := c.do(ctx, "GET", fmt.Sprintf("/epics/%d/stories?includes_description=true", epicID), nil, &stories); err != nil {
		return nil, err
	}
	return stories, nil
}

// CreateObjective creates an objective.
func (c *Client) CreateObjective(ctx context.Context, in ObjectiveInput) (*plan.Objective, error) {
	var obj plan.Objective
	if err := c.do(ctx, "POST", "/objectives", in, &obj); err != nil {
		return nil, err
	}
	return &obj, nil
}

// UpdateObjective updates an objective.
func (c *Client) UpdateObjective(ctx context.Context, id int64, in ObjectiveUpdate) (*plan.Objective, error) {
	var obj plan.Objective
	if err := c.do(ctx, "PUT", fmt.Sprintf("/objectives/%d", id), in, &obj); err != nil {
		return nil, err
	}
	return &obj, nil
}

// CreateEpic creates an epic.
func (c *Client) CreateEpic(ctx context.Context, in EpicInput) (*plan.Epic, error) {
	var epic plan.Epic
	if err := c.do(ctx, "POST", "/epics", in, &epic); err != nil {
		return nil, err
	}
	return &epic, nil
}

// UpdateEpic updates an epic.
func (c *Client) UpdateEpic(ctx context.Context, id int64, in EpicUpdate) (*plan.Epic, error) {
	var epic plan.Epic
	if err := c.do(ctx, "PUT", fmt.Sprintf("/epics/%d", id), in, &epic); err != nil {
		return nil, err
	}
	return &epic, nil
}

// CreateStory creates a story.
func (c *Client) CreateStory(ctx context.Context, in StoryInput) (*plan.Story, error) {
	if in.StoryType == "" {
		in.StoryType = "feature"
	}
	var story plan.Story
	if err := c.do(ctx, "POST", "/stories", in, &story); err != nil {
		return nil, err
	}
	return &story, nil
}

// ListWorkflows lists the workspace workflows.
func (c *Client) ListWorkflows(ctx context.Context) ([]Workflow, error) {
	var workflows []Workflow
	if err := c.do(ctx, "GET", "/workflows", nil, &workflows); err != nil {
		return nil, err
	}
	return workflows, nil
}

// ObjectiveWithContext loads an objective with its non-archived epics and up
// to ContextStoriesPerEpic stories each. Only the objective fetch is fatal;
// epic and story listing failures are logged and leave empty lists.
func (c *Client) ObjectiveWithContext(ctx context.Context, id int64) (*plan.Objective, error) {
	obj, err := c.GetObjective(ctx, id)
	if err != nil {
		return nil, err
	}
	if obj.KeyResults == nil {
		obj.KeyResults = []plan.KeyResult{}
	}

	all, err := c.ListObjectiveEpics(ctx, id)
	if err != nil {
		c.logger.Printf("warning: could not fetch epics for objective %d: %v", id, err)
	}

	epics := make([]plan.Epic, 0, len(all))
	for _, e := range all {
		if !e.Archived {
			epics = append(epics, e)
		}
	}

	var g errgroup.Group
	g.SetLimit(4)
	for i := range epics {
		epic := &epics[i]
		g.Go(func() error {
			stories, err := c.ListEpicStories(ctx, epic.ID)
			if err != nil {
				c.logger.Printf("warning: could not fetch stories for epic %d: %v", epic.ID, err)
				epic.Stories = []plan.StorySummary{}
				return nil
			}
			epic.Stories = summarize(stories, ContextStoriesPerEpic)
			return nil
		})
	}
	// The goroutines log and swallow their own errors.
	g.Wait()

	obj.Epics = epics
	return obj, nil
}

func summarize(stories []plan.Story, limit int) []plan.StorySummary {
	if len(stories) > limit {
		stories = stories[:limit]
	}
	out := make([]plan.StorySummary, 0, len(stories))
	for _, s := range stories {
		out = append(out, plan.StorySummary{
			ID:              s.ID,
			Name:            s.Name,
			StoryType:       s.StoryType,
			Estimate:        s.Estimate,
			WorkflowStateID: s.WorkflowStateID,
			Completed:       s.Completed,
		})
	}
	return out
}
