package planner

import (
	"context"
	"fmt"
	"time"

	"github.com/MikeSquared-Agency/Larder/internal/hermes"
	"github.com/MikeSquared-Agency/Larder/internal/mealplan"
	"github.com/MikeSquared-Agency/Larder/internal/metrics"
)

func (s *Service) UpsertRecipe(ctx context.Context, r *mealplan.Recipe) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if err := s.store.UpsertRecipe(ctx, r); err != nil {
		return fmt.Errorf("upsert recipe: %w", err)
	}
	if s.hermes != nil {
		_ = s.hermes.Publish(hermes.SubjectRecipeUpserted(r.ID), hermes.RecipeEvent{RecipeID: r.ID})
	}
	return nil
}

func (s *Service) DeleteRecipe(ctx context.Context, id string) error {
	if err := s.store.DeleteRecipe(ctx, id); err != nil {
		return err
	}
	if s.hermes != nil {
		_ = s.hermes.Publish(hermes.SubjectRecipeDeleted(id), hermes.RecipeEvent{RecipeID: id})
	}
	return nil
}

// SyncCatalog pulls every recipe from the catalogue service into the store.
// Invalid recipes are skipped and counted; a store failure aborts the sync.
func (s *Service) SyncCatalog(ctx context.Context) (*SyncResult, error) {
	if s.catalog == nil {
		return nil, ErrCatalogDisabled
	}
	if timeout := s.cfg.CatalogTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	recipes, err := s.catalog.ListRecipes(ctx)
	if err != nil {
		metrics.RecordCatalogSync(0, 0, err)
		return nil, fmt.Errorf("fetch catalog: %w", err)
	}

	res := &SyncResult{Fetched: len(recipes)}
	for i := range recipes {
		r := &recipes[i]
		if err := r.Validate(); err != nil {
			res.Rejected++
			s.logger.Warn("catalog recipe rejected", "recipe_id", r.ID, "error", err)
			continue
		}
		if err := s.store.UpsertRecipe(ctx, r); err != nil {
			metrics.RecordCatalogSync(res.Upserted, res.Rejected, err)
			return nil, fmt.Errorf("store catalog recipe %q: %w", r.ID, err)
		}
		res.Upserted++
	}
	metrics.RecordCatalogSync(res.Upserted, res.Rejected, nil)

	s.logger.Info("catalog synced",
		"fetched", res.Fetched,
		"upserted", res.Upserted,
		"rejected", res.Rejected,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	if s.hermes != nil {
		_ = s.hermes.Publish(hermes.SubjectCatalogSynced, hermes.CatalogSyncedEvent{
			Fetched:   res.Fetched,
			Upserted:  res.Upserted,
			Rejected:  res.Rejected,
			Timestamp: time.Now().UTC(),
		})
	}
	return res, nil
}
