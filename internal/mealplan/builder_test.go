package mealplan

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/Larder/internal/csp"
	"github.com/MikeSquared-Agency/Larder/internal/solver"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func sampleRecipes() []Recipe {
	return []Recipe{
		{ID: "rA", Name: "Oat porridge", CookingTime: 20, Calories: 300},
		{ID: "rB", Name: "Lasagne", CookingTime: 15, Calories: 500},
		{ID: "rC", Name: "Green salad", CookingTime: 10, Calories: 200},
		{ID: "rD", Name: "Slow stew", CookingTime: 40, Calories: 100},
	}
}

func sampleProfile() Profile {
	return Profile{
		MaxTotalCalories: 700,
		Slots: []Slot{
			{Name: "breakfast", MaxCookingTime: 20},
			{Name: "lunch", MaxCookingTime: 30},
		},
	}
}

func build(t *testing.T, recipes []Recipe, profile Profile, opts Options) *Model {
	t.Helper()
	m, err := NewBuilder(opts, discardLogger()).Build(recipes, profile, HeatLexicon{})
	require.NoError(t, err)
	return m
}

// pin fixes every assignment variable: true for the listed slot->recipes,
// false elsewhere.
func pin(m *Model, chosen map[string][]string) map[csp.Var]csp.Value {
	pinned := make(map[csp.Var]csp.Value)
	for _, r := range m.Recipes {
		for _, s := range m.Profile.Slots {
			pinned[AssignVar(r.ID, s.Name)] = false
		}
	}
	for slot, ids := range chosen {
		for _, id := range ids {
			pinned[AssignVar(id, slot)] = true
		}
	}
	return pinned
}

func solve(t *testing.T, m *Model, pinned map[csp.Var]csp.Value) (*solver.Result, error) {
	t.Helper()
	return solver.New(discardLogger()).Solve(context.Background(), m.Problem, solver.Options{Pinned: pinned})
}

func TestBuildAdmitsAndRejectsPlans(t *testing.T) {
	m := build(t, sampleRecipes(), sampleProfile(), Options{})

	tests := []struct {
		name   string
		chosen map[string][]string
		ok     bool
	}{
		{"within budget", map[string][]string{"breakfast": {"rA"}, "lunch": {"rC"}}, true},
		{"exactly on budget", map[string][]string{"breakfast": {"rC"}, "lunch": {"rB"}}, true},
		{"recipe repeated", map[string][]string{"breakfast": {"rC"}, "lunch": {"rC"}}, false},
		{"over calorie budget", map[string][]string{"breakfast": {"rA"}, "lunch": {"rB"}}, false},
		{"too slow for breakfast", map[string][]string{"breakfast": {"rD"}, "lunch": {"rC"}}, false},
		{"empty slot", map[string][]string{"breakfast": {"rA"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := solve(t, m, pin(m, tt.chosen))
			if !tt.ok {
				assert.ErrorIs(t, err, solver.ErrNoSolution)
				return
			}
			require.NoError(t, err)
			plan := m.Extract(res.Assignment)
			assert.NoError(t, m.Verify(plan))
			assert.Len(t, plan, 2)
		})
	}
}

func TestBuildCalorieTotalMatchesPlan(t *testing.T) {
	m := build(t, sampleRecipes(), sampleProfile(), Options{})

	res, err := solve(t, m, pin(m, map[string][]string{"breakfast": {"rA"}, "lunch": {"rC"}}))
	require.NoError(t, err)
	assert.Equal(t, 500, res.Assignment[CaloriesTotalVar()])
	assert.Equal(t, 300, res.Assignment[CaloriesVar("rA", "breakfast")])
	assert.Equal(t, 0, res.Assignment[CaloriesVar("rA", "lunch")])
}

func TestBuildBestPlanFollowsRatings(t *testing.T) {
	recipes := sampleRecipes()
	recipes[0].Rating = 5
	recipes[1].Rating = 1
	recipes[2].Rating = 4
	m := build(t, recipes, sampleProfile(), Options{})

	res, err := solver.New(discardLogger()).Solve(context.Background(), m.Problem, solver.Options{Mode: solver.ModeBest})
	require.NoError(t, err)
	assert.True(t, res.Exhausted)
	assert.Equal(t, 20.0, res.Weight)

	plan := m.Extract(res.Assignment)
	require.NoError(t, m.Verify(plan))
	var ids []string
	for _, meal := range plan {
		ids = append(ids, meal.RecipeID)
	}
	assert.ElementsMatch(t, []string{"rA", "rC"}, ids)
}

func TestBuildInfeasibleBudget(t *testing.T) {
	profile := sampleProfile()
	profile.MaxTotalCalories = 250
	m := build(t, sampleRecipes(), profile, Options{})

	_, err := solver.New(discardLogger()).Solve(context.Background(), m.Problem, solver.Options{})
	assert.ErrorIs(t, err, solver.ErrNoSolution)
}

func TestBuildVariables(t *testing.T) {
	recipes := sampleRecipes()
	m := build(t, recipes, sampleProfile(), Options{})

	for _, r := range recipes {
		for _, s := range sampleProfile().Slots {
			assert.Equal(t, []csp.Value{true, false}, m.Problem.Domain(AssignVar(r.ID, s.Name)))
			assert.Equal(t, []csp.Value{0, r.Calories}, m.Problem.Domain(CaloriesVar(r.ID, s.Name)))
		}
	}
	assert.True(t, m.Problem.Has(CaloriesTotalVar()))
	assert.True(t, m.Problem.Has(csp.OrVar("breakfast")))
	assert.True(t, m.Problem.Has(csp.OrVar("lunch")))

	w, ok := m.Problem.UnaryWeight(csp.OrVar("lunch"), false)
	require.True(t, ok)
	assert.Equal(t, 0.0, w)
}

func TestBuildCookingTime(t *testing.T) {
	m := build(t, sampleRecipes(), sampleProfile(), Options{})

	tests := []struct {
		recipe, slot string
		want         float64
	}{
		{"rA", "breakfast", 1},
		{"rD", "breakfast", 0},
		{"rD", "lunch", 0},
		{"rB", "lunch", 1},
	}
	for _, tt := range tests {
		w, ok := m.Problem.UnaryWeight(AssignVar(tt.recipe, tt.slot), true)
		require.True(t, ok)
		assert.Equal(t, tt.want, w, "%s in %s", tt.recipe, tt.slot)

		w, _ = m.Problem.UnaryWeight(AssignVar(tt.recipe, tt.slot), false)
		assert.Equal(t, 1.0, w)
	}
}

func TestBuildNoRepeatFactor(t *testing.T) {
	m := build(t, sampleRecipes(), sampleProfile(), Options{})

	w, ok := m.Problem.BinaryWeight(AssignVar("rA", "breakfast"), AssignVar("rA", "lunch"), true, true)
	require.True(t, ok)
	assert.Equal(t, 0.0, w)
	w, _ = m.Problem.BinaryWeight(AssignVar("rA", "breakfast"), AssignVar("rA", "lunch"), true, false)
	assert.Equal(t, 1.0, w)

	// Without ExclusiveSlots two recipes may share a slot.
	w, _ = m.Problem.BinaryWeight(AssignVar("rA", "lunch"), AssignVar("rB", "lunch"), true, true)
	assert.Equal(t, 1.0, w)
}

func TestBuildExclusiveSlots(t *testing.T) {
	profile := sampleProfile()
	profile.MaxTotalCalories = 1500
	twoBreakfasts := map[string][]string{"breakfast": {"rA", "rC"}, "lunch": {"rB"}}

	shared := build(t, sampleRecipes(), profile, Options{})
	res, err := solve(t, shared, pin(shared, twoBreakfasts))
	require.NoError(t, err)
	assert.Len(t, shared.Extract(res.Assignment), 3)

	exclusive := build(t, sampleRecipes(), profile, Options{ExclusiveSlots: true})
	w, ok := exclusive.Problem.BinaryWeight(AssignVar("rA", "lunch"), AssignVar("rB", "lunch"), true, true)
	require.True(t, ok)
	assert.Equal(t, 0.0, w)

	_, err = solve(t, exclusive, pin(exclusive, twoBreakfasts))
	assert.ErrorIs(t, err, solver.ErrNoSolution)
}

func TestBuildHotSlots(t *testing.T) {
	recipes := []Recipe{
		{ID: "soup", CookingTime: 10, Calories: 100, Instructions: "Simmer the stock for ten minutes."},
		{ID: "salad", CookingTime: 5, Calories: 100, Instructions: "Toss the leaves."},
	}
	profile := Profile{
		MaxTotalCalories: 500,
		Slots:            []Slot{{Name: "dinner", MaxCookingTime: 30, Hot: true}, {Name: "lunch", MaxCookingTime: 30}},
	}
	m := build(t, recipes, profile, Options{})

	w, _ := m.Problem.UnaryWeight(AssignVar("soup", "dinner"), true)
	assert.Equal(t, 1.0, w)
	w, _ = m.Problem.UnaryWeight(AssignVar("salad", "dinner"), true)
	assert.Equal(t, 0.0, w)
	w, _ = m.Problem.UnaryWeight(AssignVar("salad", "lunch"), true)
	assert.Equal(t, 1.0, w)

	custom, err := NewBuilder(Options{}, discardLogger()).Build(recipes, profile, NewHeatLexicon([]string{"toss"}))
	require.NoError(t, err)
	w, _ = custom.Problem.UnaryWeight(AssignVar("salad", "dinner"), true)
	assert.Equal(t, 1.0, w)
	w, _ = custom.Problem.UnaryWeight(AssignVar("soup", "dinner"), true)
	assert.Equal(t, 0.0, w)
}

func TestBuildPreferenceWeights(t *testing.T) {
	recipes := sampleRecipes()
	recipes[1].Rating = 4.5
	m := build(t, recipes, sampleProfile(), Options{})

	w, _ := m.Problem.UnaryWeight(AssignVar("rB", "lunch"), true)
	assert.Equal(t, 4.5, w)
	w, _ = m.Problem.UnaryWeight(AssignVar("rC", "lunch"), true)
	assert.Equal(t, 1.0, w, "unrated recipes are neutral")
}

func TestBuildShelfLife(t *testing.T) {
	recipes := sampleRecipes()
	recipes[2].ShelfLife = map[string]int{"lettuce": 1, "tomato": 4}
	m := build(t, recipes, sampleProfile(), Options{})

	w, _ := m.Problem.UnaryWeight(AssignVar("rC", "breakfast"), true)
	assert.Equal(t, 1.0, w)
	w, _ = m.Problem.UnaryWeight(AssignVar("rC", "lunch"), true)
	assert.Equal(t, 0.0, w)
}

func TestBuildIngredientBudgets(t *testing.T) {
	recipes := []Recipe{
		{ID: "omelette", CookingTime: 10, Calories: 200, Ingredients: map[string]int{"egg": 3}},
		{ID: "frittata", CookingTime: 20, Calories: 300, Ingredients: map[string]int{"egg": 2, "potato": 1}},
		{ID: "toast", CookingTime: 5, Calories: 150, Ingredients: map[string]int{"bread": 2}},
		{ID: "curry", CookingTime: 25, Calories: 400, Ingredients: map[string]int{"saffron": 1}},
	}
	profile := Profile{
		MaxTotalCalories: 1000,
		Slots:            []Slot{{Name: "breakfast", MaxCookingTime: 30}, {Name: "dinner", MaxCookingTime: 30}},
		Available:        map[string]int{"egg": 4, "potato": 2, "bread": 4},
	}
	m := build(t, recipes, profile, Options{})

	assert.True(t, m.Problem.Has(IngredientTotalVar("egg")))
	assert.True(t, m.Problem.Has(IngredientVar("frittata", "dinner", "potato")))
	assert.False(t, m.Problem.Has(IngredientVar("toast", "dinner", "egg")))

	w, _ := m.Problem.UnaryWeight(AssignVar("curry", "dinner"), true)
	assert.Equal(t, 0.0, w, "saffron is not stocked")

	_, err := solve(t, m, pin(m, map[string][]string{"breakfast": {"omelette"}, "dinner": {"frittata"}}))
	assert.ErrorIs(t, err, solver.ErrNoSolution, "five eggs needed, four available")

	res, err := solve(t, m, pin(m, map[string][]string{"breakfast": {"toast"}, "dinner": {"frittata"}}))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Assignment[IngredientTotalVar("egg")])
	assert.NoError(t, m.Verify(m.Extract(res.Assignment)))
}

func TestBuildRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name    string
		recipes []Recipe
		profile Profile
		wantErr error
	}{
		{
			name:    "no slots",
			recipes: sampleRecipes(),
			profile: Profile{MaxTotalCalories: 100},
			wantErr: ErrInvalidProfile,
		},
		{
			name:    "duplicate slot",
			recipes: sampleRecipes(),
			profile: Profile{Slots: []Slot{{Name: "lunch"}, {Name: "lunch"}}},
			wantErr: ErrInvalidProfile,
		},
		{
			name:    "negative budget",
			recipes: sampleRecipes(),
			profile: Profile{MaxTotalCalories: -1, Slots: []Slot{{Name: "lunch"}}},
			wantErr: ErrInvalidProfile,
		},
		{
			name:    "recipe without id",
			recipes: []Recipe{{Name: "nameless"}},
			profile: sampleProfile(),
			wantErr: ErrInvalidRecipe,
		},
		{
			name:    "negative calories",
			recipes: []Recipe{{ID: "x", Calories: -5}},
			profile: sampleProfile(),
			wantErr: ErrInvalidRecipe,
		},
		{
			name:    "duplicate recipe",
			recipes: []Recipe{{ID: "x"}, {ID: "x"}},
			profile: sampleProfile(),
			wantErr: ErrInvalidRecipe,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewBuilder(Options{}, discardLogger()).Build(tt.recipes, tt.profile, HeatLexicon{})
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, m)
		})
	}
}

func TestBuildNoRecipes(t *testing.T) {
	m := build(t, nil, sampleProfile(), Options{})

	_, err := solver.New(discardLogger()).Solve(context.Background(), m.Problem, solver.Options{})
	assert.ErrorIs(t, err, solver.ErrNoSolution)
}

func TestBuildUnboundedBudgets(t *testing.T) {
	recipes := []Recipe{{ID: "a", Name: "Omelette", CookingTime: 10, Calories: 300, Ingredients: map[string]int{"egg": 2}}}
	profile := Profile{
		MaxTotalCalories: math.MaxInt,
		Slots:            []Slot{{Name: "dinner", MaxCookingTime: 30}},
		Available:        map[string]int{"egg": math.MaxInt},
	}
	require.NoError(t, profile.Validate())

	var m *Model
	var err error
	require.NotPanics(t, func() {
		m, err = NewBuilder(Options{}, discardLogger()).Build(recipes, profile, HeatLexicon{})
	})
	require.NoError(t, err)
	assert.Equal(t, []csp.Value{0, 300}, m.Problem.Domain(CaloriesTotalVar()))

	res, err := solve(t, m, nil)
	require.NoError(t, err)
	assert.Equal(t, 300, res.Assignment[CaloriesTotalVar()])
	assert.Equal(t, 2, res.Assignment[IngredientTotalVar("egg")])
}

func TestBuildTableCellLimit(t *testing.T) {
	var recipes []Recipe
	for i := 0; i < 40; i++ {
		recipes = append(recipes, Recipe{ID: fmt.Sprintf("r%02d", i), Name: "dish", CookingTime: 10, Calories: 100 + 7*i})
	}
	profile := Profile{
		MaxTotalCalories: 2000,
		Slots: []Slot{
			{Name: "breakfast", MaxCookingTime: 30},
			{Name: "lunch", MaxCookingTime: 30},
			{Name: "dinner", MaxCookingTime: 30},
		},
	}

	m, err := NewBuilder(Options{MaxTableCells: 1_000_000}, discardLogger()).Build(recipes, profile, HeatLexicon{})
	assert.ErrorIs(t, err, csp.ErrTooLarge)
	assert.Nil(t, m)

	small := build(t, sampleRecipes(), sampleProfile(), Options{MaxTableCells: 1_000_000})
	assert.LessOrEqual(t, small.Problem.Stats().TableCells, 1_000_000)
}
