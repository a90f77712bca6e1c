package cache

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Viktorfalkner/roots-product-helper/internal/config"
	apperrors "github.com/Viktorfalkner/roots-product-helper/internal/errors"
	"github.com/Viktorfalkner/roots-product-helper/internal/plan"
	"github.com/Viktorfalkner/roots-product-helper/internal/shortcut"
)

func TestStatus_Staleness(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	eightDays := &ContextCache{RefreshedAt: now.Add(-8 * 24 * time.Hour)}
	require.True(t, eightDays.StatusAt(now).IsStale)
	require.True(t, eightDays.StatusAt(now).Exists)

	sixDays := &ContextCache{RefreshedAt: now.Add(-6 * 24 * time.Hour)}
	require.False(t, sixDays.StatusAt(now).IsStale)
}

func TestStatus_Absent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "context", "cache.json")

	status, err := StatusAt(path, time.Now())
	require.NoError(t, err)
	require.False(t, status.Exists)
	require.True(t, status.IsStale)
	require.Nil(t, status.RefreshedAt)
}

func TestStatus_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	require.NoError(t, config.WriteJSONAtomic(path, &ContextCache{RefreshedAt: now.Add(-time.Hour)}))

	status, err := StatusAt(path, now)
	require.NoError(t, err)
	require.True(t, status.Exists)
	require.False(t, status.IsStale)
	require.True(t, status.RefreshedAt.Equal(now.Add(-time.Hour)))
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	require.True(t, apperrors.Is(err, apperrors.ErrConfig))
}

func TestLoad_AcceptsOriginalTimestampFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	data := `{"refreshed_at":"2026-03-01T09:30:00.123Z","default_workflow_state_id":null,"sdlc_sop":"sop","reference_objectives":[]}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0600))

	c, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "sop", c.SDLCSOP)
	require.Nil(t, c.DefaultWorkflowStateID)
	require.Equal(t, 2026, c.RefreshedAt.Year())
}

func TestSampleEpics(t *testing.T) {
	epics := []plan.Epic{
		{ID: 1, Name: "Account setup"},
		{ID: 2, Name: "Heritage Onboarding Flow"},
		{ID: 3, Name: "Reporting"},
		{ID: 4, Name: "Heritage Fund Distribution"},
	}

	got := SampleEpics(epics, []string{"onboarding", "distribution"}, 2)
	require.Equal(t, []int64{2, 4}, ids(got))

	got = SampleEpics(epics, []string{"onboarding"}, 2)
	require.Equal(t, []int64{1, 2}, ids(got), "too few matches falls back to the first epics")

	require.Empty(t, SampleEpics(nil, []string{"x"}, 2))
}

func ids(epics []plan.Epic) []int64 {
	out := make([]int64, 0, len(epics))
	for _, e := range epics {
		out = append(out, e.ID)
	}
	return out
}

// fakeSource is an in-memory Shortcut.
type fakeSource struct {
	mu           sync.Mutex
	docs         map[string]string
	docErr       error
	objectives   map[int64]*plan.Objective
	epics        map[int64][]plan.Epic
	epicsErr     map[int64]error
	stories      map[int64][]plan.Story
	storiesErr   map[int64]error
	workflows    []shortcut.Workflow
	workflowsErr error
	calls        int
}

func (f *fakeSource) GetDocument(_ context.Context, id string) (*shortcut.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.docErr != nil {
		return nil, f.docErr
	}
	return &shortcut.Document{ContentMarkdown: f.docs[id]}, nil
}

func (f *fakeSource) GetObjective(_ context.Context, id int64) (*plan.Objective, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objectives[id]
	if !ok {
		return nil, apperrors.NewUpstream("Shortcut", "GET", fmt.Sprintf("/objectives/%d", id), 404, "not found")
	}
	return obj, nil
}

func (f *fakeSource) ListObjectiveEpics(_ context.Context, id int64) ([]plan.Epic, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.epicsErr[id]; err != nil {
		return nil, err
	}
	return f.epics[id], nil
}

func (f *fakeSource) ListEpicStories(_ context.Context, id int64) ([]plan.Story, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.storiesErr[id]; err != nil {
		return nil, err
	}
	return f.stories[id], nil
}

func (f *fakeSource) ListWorkflows(context.Context) ([]shortcut.Workflow, error) {
	if f.workflowsErr != nil {
		return nil, f.workflowsErr
	}
	return f.workflows, nil
}

func newFakeSource() *fakeSource {
	cfg := config.DefaultConfig()
	est := 3
	return &fakeSource{
		docs: map[string]string{
			cfg.Documents.SDLCSOP:           "SOP body",
			cfg.Documents.StoryTemplate:     "story tmpl",
			cfg.Documents.EpicTemplate:      "epic tmpl",
			cfg.Documents.ObjectiveTemplate: "objective tmpl",
		},
		objectives: map[int64]*plan.Objective{
			15014: {ID: 15014, Name: "Heritage IRA", Description: "desc"},
		},
		epics: map[int64][]plan.Epic{
			15014: {
				{ID: 10, Name: "Heritage Onboarding Flow"},
				{ID: 11, Name: "Heritage Fund Distribution"},
				{ID: 12, Name: "Misc"},
			},
		},
		stories: map[int64][]plan.Story{
			10: {{Name: "a", Estimate: &est}, {Name: "b"}, {Name: "c"}},
		},
		storiesErr: map[int64]error{11: fmt.Errorf("boom")},
		workflows: []shortcut.Workflow{{
			Name:   "Engineering",
			States: []shortcut.WorkflowState{{ID: 500, Type: "backlog"}, {ID: 501, Type: "unstarted", Name: "Ready"}},
		}},
	}
}

func newTestRefresher(t *testing.T, src Source) (*Refresher, *config.Store) {
	t.Helper()
	store := config.NewStore(t.TempDir())
	r := NewRefresher(store, src, log.New(io.Discard, "", 0))
	r.now = func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) }
	return r, store
}

func TestRefresh_BuildsCache(t *testing.T) {
	r, store := newTestRefresher(t, newFakeSource())

	c, err := r.Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, "SOP body", c.SDLCSOP)
	require.Equal(t, "objective tmpl", c.ObjectiveTemplate)
	require.NotNil(t, c.DefaultWorkflowStateID)
	require.Equal(t, int64(501), *c.DefaultWorkflowStateID)

	require.Len(t, c.ReferenceObjectives, 1)
	ref := c.ReferenceObjectives[0]
	require.Equal(t, "Heritage IRA", ref.Title)
	require.Len(t, ref.Epics, 2)
	require.Equal(t, "Heritage Onboarding Flow", ref.Epics[0].Name)
	require.Len(t, ref.Epics[0].Stories, 2)
	require.Equal(t, 3, *ref.Epics[0].Stories[0].Estimate)
	// story fetch failure for epic 11 is swallowed
	require.Empty(t, ref.Epics[1].Stories)

	loaded, err := Load(store.CachePath())
	require.NoError(t, err)
	require.Equal(t, c.SDLCSOP, loaded.SDLCSOP)
	require.True(t, loaded.RefreshedAt.Equal(c.RefreshedAt))
}

func TestRefresh_PartialFailuresSwallowed(t *testing.T) {
	src := newFakeSource()
	src.epicsErr = map[int64]error{15014: fmt.Errorf("epics down")}
	src.workflowsErr = fmt.Errorf("workflows down")
	r, store := newTestRefresher(t, src)

	cfg := config.DefaultConfig()
	cfg.ReferenceObjectiveIDs = []int64{999, 15014}
	require.NoError(t, store.Save(cfg))

	c, err := r.Refresh(context.Background())
	require.NoError(t, err)
	require.Nil(t, c.DefaultWorkflowStateID)
	require.Len(t, c.ReferenceObjectives, 1, "missing objective 999 is skipped")
	require.Empty(t, c.ReferenceObjectives[0].Epics)
}

func TestRefresh_DocumentFailureAborts(t *testing.T) {
	src := newFakeSource()
	src.docErr = apperrors.NewUpstream("Shortcut", "GET", "/documents/x", 500, "down")
	r, store := newTestRefresher(t, src)

	_, err := r.Refresh(context.Background())
	require.Error(t, err)
	require.True(t, apperrors.Is(err, apperrors.ErrUpstream))

	_, err = os.Stat(store.CachePath())
	require.True(t, os.IsNotExist(err), "no cache written on failure")
}

func TestLibrary_AddRemove(t *testing.T) {
	src := newFakeSource()
	src.objectives[777] = &plan.Objective{ID: 777, Name: "Referral program"}
	r, store := newTestRefresher(t, src)
	lib := NewLibrary(store, r)

	view, err := lib.List()
	require.NoError(t, err)
	require.Equal(t, []int64{15014}, view.ReferenceObjectiveIDs)
	require.Nil(t, view.References[0].Name, "no cache yet")

	view, err = lib.Add(context.Background(), 777)
	require.NoError(t, err)
	require.True(t, view.Changed)
	require.Equal(t, []int64{15014, 777}, view.ReferenceObjectiveIDs)
	require.NotNil(t, view.References[1].Name)
	require.Equal(t, "Referral program", *view.References[1].Name)

	view, err = lib.Add(context.Background(), 777)
	require.NoError(t, err)
	require.False(t, view.Changed)
	require.Len(t, view.ReferenceObjectiveIDs, 2)

	view, err = lib.Remove(context.Background(), 15014)
	require.NoError(t, err)
	require.Equal(t, []int64{777}, view.ReferenceObjectiveIDs)

	c, err := Load(store.CachePath())
	require.NoError(t, err)
	require.Len(t, c.ReferenceObjectives, 1)
	require.Equal(t, int64(777), c.ReferenceObjectives[0].ID)

	cfg, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, []int64{777}, cfg.ReferenceObjectiveIDs)
}

func TestLibrary_InvalidID(t *testing.T) {
	r, store := newTestRefresher(t, newFakeSource())
	lib := NewLibrary(store, r)

	_, err := lib.Add(context.Background(), 0)
	require.True(t, apperrors.Is(err, apperrors.ErrInvalidRequest))
}
