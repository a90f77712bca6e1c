package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// Config holds application configuration and the reference library.
type Config struct {
	// ReferenceObjectiveIDs is the ordered reference library: Shortcut objective
	// IDs whose epics and stories are cached as writing-style examples.
	// Duplicates are suppressed on add.
	ReferenceObjectiveIDs []int64 `json:"reference_objective_ids"`

	// Documents holds the Shortcut document IDs for the SOP and templates.
	Documents Documents `json:"documents,omitempty"`

	// SampleEpicKeywords prefers reference epics whose name contains one of these
	// words (case-insensitive). When fewer than SampleEpics match, the first
	// epics of the objective are used instead.
	SampleEpicKeywords []string `json:"sample_epic_keywords,omitempty"`

	// SampleEpics is the number of epics cached per reference objective.
	SampleEpics int `json:"sample_epics,omitempty"`

	// SampleStories is the number of stories cached per sampled epic.
	SampleStories int `json:"sample_stories,omitempty"`

	// DefaultModel is used when a chat request names no model or an unknown one.
	DefaultModel string `json:"default_model,omitempty"`

	// Bind and Port configure the HTTP API listener.
	Bind string `json:"bind,omitempty"`
	Port int    `json:"port,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty"`
}

// Documents identifies the four reference documents fetched on refresh.
type Documents struct {
	SDLCSOP           string `json:"sdlc_sop,omitempty"`
	StoryTemplate     string `json:"story_template,omitempty"`
	EpicTemplate      string `json:"epic_template,omitempty"`
	ObjectiveTemplate string `json:"objective_template,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		ReferenceObjectiveIDs: []int64{15014},
		Documents: Documents{
			SDLCSOP:           "685c2655-b99d-428b-be72-cfab2e2d44a2",
			StoryTemplate:     "68408807-787a-463e-80cd-da0e87e1d725",
			EpicTemplate:      "685c577e-c55c-4831-8b79-d93d0d2e9a8d",
			ObjectiveTemplate: "685c648d-4009-489f-9a58-7e8a0965c2e4",
		},
		SampleEpicKeywords: []string{"onboarding", "distribution"},
		SampleEpics:        2,
		SampleStories:      2,
		DefaultModel:       "claude-opus-4-6",
		Bind:               "127.0.0.1",
		Port:               3001,
	}
}

// BaseDir returns the data directory: $ROOTS_HOME if set, else ~/.roots.
func BaseDir() (string, error) {
	if dir := strings.TrimSpace(os.Getenv("ROOTS_HOME")); dir != "" {
		return dir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".roots"), nil
}

// Path returns the config file location inside baseDir.
func Path(baseDir string) string {
	return filepath.Join(baseDir, "config.json")
}

// CachePath returns the context cache location inside baseDir.
func CachePath(baseDir string) string {
	return filepath.Join(baseDir, "context", "cache.json")
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.roots.
func Load(baseDir string) (*Config, error) {
	cfg, err := loadFileRaw(Path(baseDir))
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars. The reference library is taken
// from the overlay whenever the overlay defines one (even an empty one);
// other arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	result.ReferenceObjectiveIDs = base.ReferenceObjectiveIDs
	if overlay.ReferenceObjectiveIDs != nil {
		result.ReferenceObjectiveIDs = overlay.ReferenceObjectiveIDs
	}
	result.ReferenceObjectiveIDs = dedupeIDs(result.ReferenceObjectiveIDs)

	result.Documents = Documents{
		SDLCSOP:           firstNonEmpty(overlay.Documents.SDLCSOP, base.Documents.SDLCSOP),
		StoryTemplate:     firstNonEmpty(overlay.Documents.StoryTemplate, base.Documents.StoryTemplate),
		EpicTemplate:      firstNonEmpty(overlay.Documents.EpicTemplate, base.Documents.EpicTemplate),
		ObjectiveTemplate: firstNonEmpty(overlay.Documents.ObjectiveTemplate, base.Documents.ObjectiveTemplate),
	}

	result.SampleEpicKeywords = base.SampleEpicKeywords
	if overlay.SampleEpicKeywords != nil {
		result.SampleEpicKeywords = mergeStringSlice(nil, overlay.SampleEpicKeywords)
	}

	result.SampleEpics = overlay.SampleEpics
	if result.SampleEpics == 0 {
		result.SampleEpics = base.SampleEpics
	}

	result.SampleStories = overlay.SampleStories
	if result.SampleStories == 0 {
		result.SampleStories = base.SampleStories
	}

	result.DefaultModel = firstNonEmpty(overlay.DefaultModel, base.DefaultModel)
	result.Bind = firstNonEmpty(overlay.Bind, base.Bind)

	result.Port = overlay.Port
	if result.Port == 0 {
		result.Port = base.Port
	}

	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	return result
}

// HasReference reports whether id is in the reference library.
func (c *Config) HasReference(id int64) bool {
	for _, x := range c.ReferenceObjectiveIDs {
		if x == id {
			return true
		}
	}
	return false
}

// AddReference appends id to the reference library unless already present.
// Returns true if the library changed.
func (c *Config) AddReference(id int64) bool {
	if c.HasReference(id) {
		return false
	}
	c.ReferenceObjectiveIDs = append(c.ReferenceObjectiveIDs, id)
	return true
}

// RemoveReference drops id from the reference library, keeping order.
// Returns true if the library changed.
func (c *Config) RemoveReference(id int64) bool {
	kept := make([]int64, 0, len(c.ReferenceObjectiveIDs))
	for _, x := range c.ReferenceObjectiveIDs {
		if x != id {
			kept = append(kept, x)
		}
	}
	changed := len(kept) != len(c.ReferenceObjectiveIDs)
	c.ReferenceObjectiveIDs = kept
	return changed
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// dedupeIDs removes duplicates, keeping first occurrence order.
func dedupeIDs(ids []int64) []int64 {
	if ids == nil {
		return nil
	}
	seen := make(map[int64]bool, len(ids))
	result := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			result = append(result, id)
		}
	}
	return result
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range a {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	for _, s := range b {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
