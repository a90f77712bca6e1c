// Package plan holds the planning hierarchy shared by the tracker client,
// the prompt assembler and the session state: Objective ⊇ Epic ⊇ Story,
// plus repository descriptors used as per-turn context.
package plan

import "strings"

// KeyResult is a milestone attached to an objective.
type KeyResult struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// StorySummary is the projection of a story embedded in an epic.
type StorySummary struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	StoryType       string `json:"story_type,omitempty"`
	Estimate        *int   `json:"estimate,omitempty"`
	WorkflowStateID int64  `json:"workflow_state_id,omitempty"`
	Completed       bool   `json:"completed"`
}

// Epic is a scoped body of work under an objective.
type Epic struct {
	ID          int64          `json:"id"`
	Name        string         `json:"name"`
	State       string         `json:"state,omitempty"`
	Description string         `json:"description,omitempty"`
	Completed   bool           `json:"completed"`
	Archived    bool           `json:"archived,omitempty"`
	ObjectiveID int64          `json:"objective_id,omitempty"`
	Stories     []StorySummary `json:"stories,omitempty"`
}

// StoriesDone counts completed stories in the embedded sample.
func (e Epic) StoriesDone() int {
	n := 0
	for _, s := range e.Stories {
		if s.Completed {
			n++
		}
	}
	return n
}

// Objective is the top-level planning artifact.
type Objective struct {
	ID          int64       `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	State       string      `json:"state,omitempty"`
	KeyResults  []KeyResult `json:"key_results"`
	Epics       []Epic      `json:"epics"`
}

// FirstOpenEpic returns the first epic that is not completed, or nil.
func (o *Objective) FirstOpenEpic() *Epic {
	if o == nil {
		return nil
	}
	for i := range o.Epics {
		if !o.Epics[i].Completed {
			return &o.Epics[i]
		}
	}
	return nil
}

// Story is a single schedulable unit of work.
type Story struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	Description     string `json:"description,omitempty"`
	StoryType       string `json:"story_type,omitempty"`
	Estimate        *int   `json:"estimate,omitempty"`
	EpicID          int64  `json:"epic_id,omitempty"`
	WorkflowStateID int64  `json:"workflow_state_id,omitempty"`
	Completed       bool   `json:"completed"`
}

// PullRequest is an open pull request on a repository.
type PullRequest struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	User   string `json:"user,omitempty"`
}

// Issue is an open issue on a repository (pull requests excluded).
type Issue struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
}

// Repo is a source repository attached to the conversation as context.
type Repo struct {
	Owner       string        `json:"owner"`
	Name        string        `json:"repo"`
	FullName    string        `json:"full_name"`
	Description string        `json:"description,omitempty"`
	Readme      string        `json:"readme,omitempty"`
	OpenPRs     []PullRequest `json:"open_prs"`
	OpenIssues  []Issue       `json:"open_issues"`
}

// Key identifies a repo case-insensitively for duplicate detection.
func (r Repo) Key() string {
	if r.FullName != "" {
		return strings.ToLower(r.FullName)
	}
	return strings.ToLower(r.Owner + "/" + r.Name)
}
