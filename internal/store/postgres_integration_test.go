//go:build integration

package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/Larder/internal/mealplan"
)

func setupTestDB(t *testing.T) *PostgresStore {
	t.Helper()
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	s, err := NewPostgresStore(ctx, dbURL)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	t.Cleanup(func() {
		_, _ = s.pool.Exec(ctx, "TRUNCATE larder_plans")
		_, _ = s.pool.Exec(ctx, "TRUNCATE larder_recipes")
		s.Close()
	})

	return s
}

func TestRecipeRoundTrip(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	r := &mealplan.Recipe{
		ID:           "omelette",
		Name:         "Omelette",
		Cuisine:      "french",
		CookingTime:  10,
		Calories:     250,
		Servings:     1,
		Rating:       4.5,
		Ingredients:  map[string]int{"egg": 3},
		ShelfLife:    map[string]int{"egg": 7},
		Instructions: "Whisk and fry.",
	}
	if err := s.UpsertRecipe(ctx, r); err != nil {
		t.Fatalf("UpsertRecipe failed: %v", err)
	}

	got, err := s.GetRecipe(ctx, "omelette")
	if err != nil {
		t.Fatalf("GetRecipe failed: %v", err)
	}
	if got.Calories != 250 || got.Rating != 4.5 {
		t.Errorf("unexpected recipe %+v", got)
	}
	if got.Ingredients["egg"] != 3 {
		t.Errorf("expected 3 eggs, got %v", got.Ingredients)
	}
	if got.ShelfLife["egg"] != 7 {
		t.Errorf("expected egg shelf life 7, got %v", got.ShelfLife)
	}

	r.Calories = 300
	if err := s.UpsertRecipe(ctx, r); err != nil {
		t.Fatalf("UpsertRecipe (update) failed: %v", err)
	}
	got, _ = s.GetRecipe(ctx, "omelette")
	if got.Calories != 300 {
		t.Errorf("expected updated calories 300, got %d", got.Calories)
	}

	if err := s.DeleteRecipe(ctx, "omelette"); err != nil {
		t.Fatalf("DeleteRecipe failed: %v", err)
	}
	if _, err := s.GetRecipe(ctx, "omelette"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.DeleteRecipe(ctx, "omelette"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound deleting twice, got %v", err)
	}
}

func TestListAndGetRecipes(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	for _, r := range []mealplan.Recipe{
		{ID: "a", Cuisine: "thai", CookingTime: 20},
		{ID: "b", Cuisine: "thai", CookingTime: 50},
		{ID: "c", Cuisine: "greek", CookingTime: 5},
	} {
		r := r
		if err := s.UpsertRecipe(ctx, &r); err != nil {
			t.Fatalf("UpsertRecipe failed: %v", err)
		}
	}

	thai, err := s.ListRecipes(ctx, RecipeFilter{Cuisine: "thai", MaxCookingTime: 30})
	if err != nil {
		t.Fatalf("ListRecipes failed: %v", err)
	}
	if len(thai) != 1 || thai[0].ID != "a" {
		t.Errorf("expected only recipe a, got %+v", thai)
	}

	ordered, err := s.GetRecipes(ctx, []string{"c", "a"})
	if err != nil {
		t.Fatalf("GetRecipes failed: %v", err)
	}
	if ordered[0].ID != "c" || ordered[1].ID != "a" {
		t.Errorf("expected request order, got %s,%s", ordered[0].ID, ordered[1].ID)
	}
	if _, err := s.GetRecipes(ctx, []string{"a", "missing"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPlanLifecycle(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	p := &Plan{
		Status: PlanStatusBuilt,
		Source: "integration-test",
		Profile: mealplan.Profile{
			MaxTotalCalories: 700,
			Slots:            []mealplan.Slot{{Name: "lunch", MaxCookingTime: 30}},
		},
		RecipeIDs: []string{"a", "b"},
	}
	if err := s.CreatePlan(ctx, p); err != nil {
		t.Fatalf("CreatePlan failed: %v", err)
	}
	if p.ID == uuid.Nil {
		t.Fatal("expected plan ID after create")
	}

	w := 3.0
	now := time.Now().UTC()
	p.Status = PlanStatusSolved
	p.Weight = &w
	p.Meals = []mealplan.PlannedMeal{{Slot: "lunch", RecipeID: "a"}}
	p.SolvedAt = &now
	if err := s.UpdatePlan(ctx, p); err != nil {
		t.Fatalf("UpdatePlan failed: %v", err)
	}

	got, err := s.GetPlan(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetPlan failed: %v", err)
	}
	if got.Status != PlanStatusSolved {
		t.Errorf("expected solved, got %s", got.Status)
	}
	if got.Weight == nil || *got.Weight != 3.0 {
		t.Errorf("expected weight 3, got %v", got.Weight)
	}
	if len(got.Meals) != 1 || got.Meals[0].RecipeID != "a" {
		t.Errorf("unexpected meals %+v", got.Meals)
	}
	if len(got.Profile.Slots) != 1 {
		t.Errorf("expected profile to round-trip, got %+v", got.Profile)
	}

	solved := PlanStatusSolved
	list, err := s.ListPlans(ctx, PlanFilter{Status: &solved})
	if err != nil {
		t.Fatalf("ListPlans failed: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("expected 1 solved plan, got %d", len(list))
	}

	if _, err := s.GetPlan(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
