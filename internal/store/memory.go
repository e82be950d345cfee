package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/Larder/internal/mealplan"
)

// MemoryStore keeps everything in process. It is used when no database is
// configured and in tests.
type MemoryStore struct {
	mu      sync.RWMutex
	recipes map[string]mealplan.Recipe
	plans   map[uuid.UUID]*Plan
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		recipes: make(map[string]mealplan.Recipe),
		plans:   make(map[uuid.UUID]*Plan),
		now:     time.Now,
	}
}

func (s *MemoryStore) UpsertRecipe(_ context.Context, r *mealplan.Recipe) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recipes[r.ID] = cloneRecipe(*r)
	return nil
}

func (s *MemoryStore) GetRecipe(_ context.Context, id string) (*mealplan.Recipe, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.recipes[id]
	if !ok {
		return nil, fmt.Errorf("recipe %q: %w", id, ErrNotFound)
	}
	out := cloneRecipe(r)
	return &out, nil
}

func (s *MemoryStore) GetRecipes(_ context.Context, ids []string) ([]mealplan.Recipe, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]mealplan.Recipe, 0, len(ids))
	for _, id := range ids {
		r, ok := s.recipes[id]
		if !ok {
			return nil, fmt.Errorf("recipe %q: %w", id, ErrNotFound)
		}
		out = append(out, cloneRecipe(r))
	}
	return out, nil
}

func (s *MemoryStore) ListRecipes(_ context.Context, filter RecipeFilter) ([]mealplan.Recipe, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.recipes))
	for id := range s.recipes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []mealplan.Recipe
	skipped := 0
	for _, id := range ids {
		r := s.recipes[id]
		if filter.Cuisine != "" && r.Cuisine != filter.Cuisine {
			continue
		}
		if filter.MaxCookingTime > 0 && r.CookingTime > filter.MaxCookingTime {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		out = append(out, cloneRecipe(r))
		if len(out) == limitOrDefault(filter.Limit) {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) DeleteRecipe(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.recipes[id]; !ok {
		return fmt.Errorf("recipe %q: %w", id, ErrNotFound)
	}
	delete(s.recipes, id)
	return nil
}

func (s *MemoryStore) CreatePlan(_ context.Context, p *Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = uuid.New()
	p.CreatedAt = s.now()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	s.plans[p.ID] = &cp
	return nil
}

func (s *MemoryStore) GetPlan(_ context.Context, id uuid.UUID) (*Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.plans[id]
	if !ok {
		return nil, fmt.Errorf("plan %s: %w", id, ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) UpdatePlan(_ context.Context, p *Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.plans[p.ID]
	if !ok {
		return fmt.Errorf("plan %s: %w", p.ID, ErrNotFound)
	}
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = s.now()
	cp := *p
	s.plans[p.ID] = &cp
	return nil
}

func (s *MemoryStore) ListPlans(_ context.Context, filter PlanFilter) ([]*Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*Plan, 0, len(s.plans))
	for _, p := range s.plans {
		if filter.Status != nil && p.Status != *filter.Status {
			continue
		}
		if filter.Source != "" && p.Source != filter.Source {
			continue
		}
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID.String() < all[j].ID.String()
	})

	if filter.Offset >= len(all) {
		return nil, nil
	}
	all = all[filter.Offset:]
	if n := limitOrDefault(filter.Limit); len(all) > n {
		all = all[:n]
	}
	out := make([]*Plan, len(all))
	for i, p := range all {
		cp := *p
		out[i] = &cp
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }

func cloneRecipe(r mealplan.Recipe) mealplan.Recipe {
	r.Ingredients = cloneQuantities(r.Ingredients)
	r.ShelfLife = cloneQuantities(r.ShelfLife)
	return r
}

func cloneQuantities(m map[string]int) map[string]int {
	if m == nil {
		return nil
	}
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
