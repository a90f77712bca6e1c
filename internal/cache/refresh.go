package cache

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Viktorfalkner/roots-product-helper/internal/config"
	"github.com/Viktorfalkner/roots-product-helper/internal/plan"
	"github.com/Viktorfalkner/roots-product-helper/internal/shortcut"
)

// Source is the subset of the Shortcut client a refresh needs.
type Source interface {
	GetDocument(ctx context.Context, id string) (*shortcut.Document, error)
	GetObjective(ctx context.Context, id int64) (*plan.Objective, error)
	ListObjectiveEpics(ctx context.Context, objectiveID int64) ([]plan.Epic, error)
	ListEpicStories(ctx context.Context, epicID int64) ([]plan.Story, error)
	ListWorkflows(ctx context.Context) ([]shortcut.Workflow, error)
}

// Refresher rebuilds the context cache from Shortcut.
type Refresher struct {
	store  *config.Store
	source Source
	logger *log.Logger
	now    func() time.Time
}

// NewRefresher creates a Refresher. A nil logger uses log.Default().
func NewRefresher(store *config.Store, source Source, logger *log.Logger) *Refresher {
	if logger == nil {
		logger = log.Default()
	}
	return &Refresher{store: store, source: source, logger: logger, now: time.Now}
}

// Refresh rebuilds and writes the cache under the base-dir lock.
func (r *Refresher) Refresh(ctx context.Context) (*ContextCache, error) {
	var out *ContextCache
	err := r.store.WithLock(ctx, func() error {
		c, err := r.refreshLocked(ctx)
		out = c
		return err
	})
	return out, err
}

// refreshLocked does the work of Refresh. The caller holds the lock.
func (r *Refresher) refreshLocked(ctx context.Context) (*ContextCache, error) {
	cfg, err := r.store.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	r.logger.Printf("refreshing context cache in %s", r.store.BaseDir())

	c := &ContextCache{ReferenceObjectives: []ReferenceObjective{}}

	docs := []struct {
		id    string
		label string
		dst   *string
	}{
		{cfg.Documents.SDLCSOP, "SDLC SOP", &c.SDLCSOP},
		{cfg.Documents.StoryTemplate, "Story Template", &c.StoryTemplate},
		{cfg.Documents.EpicTemplate, "Epic Template", &c.EpicTemplate},
		{cfg.Documents.ObjectiveTemplate, "Objective Template", &c.ObjectiveTemplate},
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, d := range docs {
		g.Go(func() error {
			r.logger.Printf("  fetching %s", d.label)
			doc, err := r.source.GetDocument(gctx, d.id)
			if err != nil {
				return fmt.Errorf("fetching %s: %w", d.label, err)
			}
			*d.dst = doc.Body()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, id := range cfg.ReferenceObjectiveIDs {
		ref, err := r.fetchReference(ctx, cfg, id)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			r.logger.Printf("  warning: could not fetch reference objective %d: %v", id, err)
			continue
		}
		c.ReferenceObjectives = append(c.ReferenceObjectives, *ref)
	}

	c.DefaultWorkflowStateID = r.defaultWorkflowState(ctx)
	c.RefreshedAt = r.now().UTC()

	if err := config.WriteJSONAtomic(r.store.CachePath(), c); err != nil {
		return nil, err
	}

	titles := make([]string, 0, len(c.ReferenceObjectives))
	for _, ref := range c.ReferenceObjectives {
		titles = append(titles, ref.Title)
	}
	r.logger.Printf("context cache written (%d reference objectives: %s)", len(titles), strings.Join(titles, ", "))

	return c, nil
}

func (r *Refresher) fetchReference(ctx context.Context, cfg *config.Config, id int64) (*ReferenceObjective, error) {
	r.logger.Printf("  fetching reference objective %d", id)
	obj, err := r.source.GetObjective(ctx, id)
	if err != nil {
		return nil, err
	}

	epics, err := r.source.ListObjectiveEpics(ctx, id)
	if err != nil {
		r.logger.Printf("  warning: could not fetch epics for objective %d: %v", id, err)
		epics = nil
	}

	sample := SampleEpics(epics, cfg.SampleEpicKeywords, cfg.SampleEpics)
	refEpics := make([]ReferenceEpic, len(sample))

	var g errgroup.Group
	for i, epic := range sample {
		g.Go(func() error {
			refEpics[i] = ReferenceEpic{
				Name:        epic.Name,
				Description: epic.Description,
				Stories:     []ReferenceStory{},
			}
			stories, err := r.source.ListEpicStories(ctx, epic.ID)
			if err != nil {
				r.logger.Printf("    warning: could not fetch stories for epic %d: %v", epic.ID, err)
				return nil
			}
			if len(stories) > cfg.SampleStories {
				stories = stories[:cfg.SampleStories]
			}
			for _, s := range stories {
				refEpics[i].Stories = append(refEpics[i].Stories, ReferenceStory{
					Name:        s.Name,
					Description: s.Description,
					StoryType:   s.StoryType,
					Estimate:    s.Estimate,
				})
			}
			return nil
		})
	}
	// The goroutines log and swallow their own errors.
	g.Wait()

	return &ReferenceObjective{
		ID:          obj.ID,
		Title:       obj.Name,
		Description: obj.Description,
		Epics:       refEpics,
	}, nil
}

func (r *Refresher) defaultWorkflowState(ctx context.Context) *int64 {
	workflows, err := r.source.ListWorkflows(ctx)
	if err != nil {
		r.logger.Printf("  warning: could not fetch workflows: %v", err)
		return nil
	}
	if len(workflows) == 0 {
		return nil
	}
	state := workflows[0].DefaultState()
	if state == nil {
		return nil
	}
	r.logger.Printf("  default workflow %q -> state %q (ID: %d)", workflows[0].Name, state.Name, state.ID)
	id := state.ID
	return &id
}

// SampleEpics picks up to n epics, preferring those whose name contains one
// of keywords (case-insensitive). When fewer than n match, the first n epics
// are used instead.
func SampleEpics(epics []plan.Epic, keywords []string, n int) []plan.Epic {
	var matched []plan.Epic
	for _, e := range epics {
		name := strings.ToLower(e.Name)
		for _, kw := range keywords {
			if kw != "" && strings.Contains(name, strings.ToLower(kw)) {
				matched = append(matched, e)
				break
			}
		}
	}

	pool := epics
	if len(matched) >= n {
		pool = matched
	}
	if len(pool) > n {
		pool = pool[:n]
	}
	return pool
}
