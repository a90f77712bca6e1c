// Package cache owns the context cache: the session-invariant team context
// (SOP, templates, reference objectives) fetched from Shortcut and stored as a
// single JSON document. It is immutable once loaded and replaced wholesale by
// Refresh.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	apperrors "github.com/Viktorfalkner/roots-product-helper/internal/errors"
)

// StaleAfter is the age beyond which a cache is reported stale.
const StaleAfter = 7 * 24 * time.Hour

// ContextCache is the on-disk context snapshot.
type ContextCache struct {
	RefreshedAt            time.Time            `json:"refreshed_at"`
	DefaultWorkflowStateID *int64               `json:"default_workflow_state_id"`
	SDLCSOP                string               `json:"sdlc_sop"`
	StoryTemplate          string               `json:"story_template"`
	EpicTemplate           string               `json:"epic_template"`
	ObjectiveTemplate      string               `json:"objective_template"`
	ReferenceObjectives    []ReferenceObjective `json:"reference_objectives"`
}

// ReferenceObjective is a completed objective used as a quality example.
type ReferenceObjective struct {
	ID          int64           `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Epics       []ReferenceEpic `json:"epics"`
}

// ReferenceEpic is a sampled epic of a reference objective.
type ReferenceEpic struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Stories     []ReferenceStory `json:"stories"`
}

// ReferenceStory is a sampled story of a reference epic.
type ReferenceStory struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	StoryType   string `json:"story_type,omitempty"`
	Estimate    *int   `json:"estimate"`
}

// Status reports presence and staleness independently.
type Status struct {
	Exists      bool       `json:"exists"`
	RefreshedAt *time.Time `json:"refreshed_at"`
	IsStale     bool       `json:"is_stale"`
}

// Load reads the cache at path. A missing file is a CONFIG_ERROR telling the
// user to refresh.
func Load(path string) (*ContextCache, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperrors.NewConfig("No context cache found. Run refresh first.")
		}
		return nil, fmt.Errorf("failed to read context cache: %w", err)
	}

	var c ContextCache
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse context cache: %w", err)
	}
	return &c, nil
}

// StatusAt reports the status of the cache at path as of now.
// An absent cache is reported as not existing and stale.
func StatusAt(path string, now time.Time) (Status, error) {
	c, err := Load(path)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrConfig) {
			return Status{Exists: false, IsStale: true}, nil
		}
		return Status{}, err
	}
	return c.StatusAt(now), nil
}

// StatusAt reports the status of a loaded cache as of now.
func (c *ContextCache) StatusAt(now time.Time) Status {
	refreshed := c.RefreshedAt
	return Status{
		Exists:      true,
		RefreshedAt: &refreshed,
		IsStale:     now.Sub(refreshed) > StaleAfter,
	}
}

// TitleOf returns the cached title of a reference objective.
func (c *ContextCache) TitleOf(id int64) (string, bool) {
	if c == nil {
		return "", false
	}
	for _, ref := range c.ReferenceObjectives {
		if ref.ID == id {
			return ref.Title, true
		}
	}
	return "", false
}
