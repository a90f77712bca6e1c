// Package session holds the client side of a planning conversation: the
// objective, epic and story focus, the draft handler that turns model drafts
// into tracker artifacts, and the conversation loop that drives the model.
package session

import (
	"sync"

	"github.com/Viktorfalkner/roots-product-helper/internal/plan"
)

// Snapshot is a copy of the active focus. Nil fields are inactive.
type Snapshot struct {
	Objective *plan.Objective `json:"active_objective"`
	Epic      *plan.Epic      `json:"active_epic"`
	Story     *plan.Story     `json:"active_story"`
}

// State is the Objective ⊇ Epic ⊇ Story focus. Replacing or clearing a level
// clears every level below it. Safe for concurrent use.
type State struct {
	mu        sync.Mutex
	objective *plan.Objective
	epic      *plan.Epic
	story     *plan.Story
}

// NewState returns an empty state.
func NewState() *State {
	return &State{}
}

// SetObjective replaces the objective and clears the epic and story.
func (s *State) SetObjective(o *plan.Objective) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objective = clone(o)
	s.epic = nil
	s.story = nil
}

// SetEpic replaces the epic and clears the story.
func (s *State) SetEpic(e *plan.Epic) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epic = clone(e)
	s.story = nil
}

// SetStory replaces the story only.
func (s *State) SetStory(st *plan.Story) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.story = clone(st)
}

func (s *State) ClearObjective() { s.SetObjective(nil) }
func (s *State) ClearEpic()      { s.SetEpic(nil) }
func (s *State) ClearStory()     { s.SetStory(nil) }

// SetObjectiveDescription updates the description of the active objective
// when its id matches. The epic and story are kept.
func (s *State) SetObjectiveDescription(id int64, description string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.objective == nil || s.objective.ID != id {
		return false
	}
	o := *s.objective
	o.Description = description
	s.objective = &o
	return true
}

// Snapshot returns copies of the active values.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{Objective: clone(s.objective), Epic: clone(s.epic), Story: clone(s.story)}
}

// clone copies the top-level struct so callers cannot mutate held state.
// Nested slices are shared and treated as read-only.
func clone[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
