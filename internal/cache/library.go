package cache

import (
	"context"

	"github.com/Viktorfalkner/roots-product-helper/internal/config"
	apperrors "github.com/Viktorfalkner/roots-product-helper/internal/errors"
)

// Reference is a library entry enriched with its cached title (nil when the
// cache has not picked it up yet).
type Reference struct {
	ID   int64   `json:"id"`
	Name *string `json:"name"`
}

// LibraryView is the reference library as reported to callers.
type LibraryView struct {
	ReferenceObjectiveIDs []int64     `json:"reference_objective_ids"`
	References            []Reference `json:"references"`
	Changed               bool        `json:"changed"`
}

// Library edits the reference library. Add and Remove persist config.json and
// rebuild the cache while holding the same lock, so success means both files
// reflect the change.
type Library struct {
	store     *config.Store
	refresher *Refresher
}

// NewLibrary creates a Library.
func NewLibrary(store *config.Store, refresher *Refresher) *Library {
	return &Library{store: store, refresher: refresher}
}

// List returns the library enriched with titles from the cache.
func (l *Library) List() (*LibraryView, error) {
	cfg, err := l.store.Load()
	if err != nil {
		return nil, err
	}
	c, err := Load(l.store.CachePath())
	if err != nil && !apperrors.Is(err, apperrors.ErrConfig) {
		return nil, err
	}
	return view(cfg, c, false), nil
}

// Add appends id (duplicates suppressed) and rebuilds the cache.
func (l *Library) Add(ctx context.Context, id int64) (*LibraryView, error) {
	return l.edit(ctx, id, (*config.Config).AddReference)
}

// Remove drops id and rebuilds the cache.
func (l *Library) Remove(ctx context.Context, id int64) (*LibraryView, error) {
	return l.edit(ctx, id, (*config.Config).RemoveReference)
}

func (l *Library) edit(ctx context.Context, id int64, apply func(*config.Config, int64) bool) (*LibraryView, error) {
	if id <= 0 {
		return nil, apperrors.NewInvalidRequest("Invalid objective ID")
	}

	var out *LibraryView
	err := l.store.WithLock(ctx, func() error {
		cfg, err := l.store.Load()
		if err != nil {
			return err
		}
		changed := apply(cfg, id)
		if changed {
			if err := l.store.Save(cfg); err != nil {
				return err
			}
		}
		c, err := l.refresher.refreshLocked(ctx)
		if err != nil {
			return err
		}
		out = view(cfg, c, changed)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func view(cfg *config.Config, c *ContextCache, changed bool) *LibraryView {
	ids := cfg.ReferenceObjectiveIDs
	if ids == nil {
		ids = []int64{}
	}
	refs := make([]Reference, 0, len(ids))
	for _, id := range ids {
		ref := Reference{ID: id}
		if title, ok := c.TitleOf(id); ok {
			ref.Name = &title
		}
		refs = append(refs, ref)
	}
	return &LibraryView{ReferenceObjectiveIDs: ids, References: refs, Changed: changed}
}
