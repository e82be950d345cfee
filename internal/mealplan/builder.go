package mealplan

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/MikeSquared-Agency/Larder/internal/csp"
)

// Variable kinds created by the builder. The gadget kinds are reserved by
// package csp.
const (
	KindRecipe     = "recipe"
	KindCalories   = "calories"
	KindIngredient = "ingredient"

	caloriesSum      = "calories"
	ingredientPrefix = "ingredient:"
)

// AssignVar is the boolean "cook recipe for slot" variable.
func AssignVar(recipeID, slot string) csp.Var {
	return csp.Var{Kind: KindRecipe, Name: recipeID, Slot: slot}
}

// CaloriesVar carries the calories a recipe contributes in a slot.
func CaloriesVar(recipeID, slot string) csp.Var {
	return csp.Var{Kind: KindCalories, Name: recipeID, Slot: slot}
}

// IngredientVar carries the quantity of ingredient a recipe consumes in a slot.
func IngredientVar(recipeID, slot, ingredient string) csp.Var {
	return csp.Var{Kind: KindIngredient, Name: recipeID, Slot: slot, Item: ingredient}
}

// CaloriesTotalVar is the sum variable for total calories.
func CaloriesTotalVar() csp.Var { return csp.SumVar(caloriesSum) }

// IngredientTotalVar is the sum variable for one ingredient.
func IngredientTotalVar(ingredient string) csp.Var {
	return csp.SumVar(ingredientPrefix + ingredient)
}

// Options toggles constraints beyond the standard set.
type Options struct {
	// ExclusiveSlots allows at most one recipe per slot.
	ExclusiveSlots bool
	// MaxTableCells caps the factor table cells of a model; 0 means no cap.
	// Builds that would exceed it fail with csp.ErrTooLarge.
	MaxTableCells int
}

// Model is a built meal-plan CSP together with the inputs it encodes.
type Model struct {
	Problem *csp.Problem
	Recipes []Recipe
	Profile Profile
	Lexicon HeatLexicon
	Options Options
}

type buildStep struct {
	name string
	fn   func(*Model) error
}

// Builder turns recipes and a preference profile into a weighted CSP.
type Builder struct {
	opts   Options
	logger *slog.Logger
}

func NewBuilder(opts Options, logger *slog.Logger) *Builder {
	return &Builder{opts: opts, logger: logger}
}

// Build validates all inputs and then encodes them. It never returns a
// partially built model. An empty lexicon falls back to DefaultHeatVerbs.
func (b *Builder) Build(recipes []Recipe, profile Profile, lexicon HeatLexicon) (*Model, error) {
	start := time.Now()
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(recipes))
	for _, r := range recipes {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		if seen[r.ID] {
			return nil, fmt.Errorf("%w: %q listed twice", ErrInvalidRecipe, r.ID)
		}
		seen[r.ID] = true
	}

	if lexicon.Len() == 0 {
		lexicon = NewHeatLexicon(DefaultHeatVerbs)
	}

	m := &Model{
		Problem: csp.New(),
		Recipes: append([]Recipe(nil), recipes...),
		Profile: profile,
		Lexicon: lexicon,
		Options: b.opts,
	}
	m.Problem.LimitCells(b.opts.MaxTableCells)

	steps := []buildStep{
		{"variables", addVariables},
		{"no repeat", addNoRepeat},
		{"cooking time", addCookingTime},
		{"calories", addCalorieBudget},
		{"every slot filled", addEverySlotFilled},
		{"ingredients", addIngredientBudgets},
		{"hot dishes", func(m *Model) error { return addHeat(m, lexicon) }},
		{"preferences", addPreferenceWeights},
		{"shelf life", addShelfLife},
	}
	if b.opts.ExclusiveSlots {
		steps = append(steps, buildStep{"exclusive slots", addExclusiveSlots})
	}

	for _, step := range steps {
		if err := step.fn(m); err != nil {
			return nil, fmt.Errorf("%s constraint: %w", step.name, err)
		}
	}

	stats := m.Problem.Stats()
	if b.logger != nil {
		b.logger.Debug("meal plan model built",
			"recipes", len(recipes),
			"slots", len(profile.Slots),
			"variables", stats.Variables,
			"binary_factors", stats.BinaryFactors,
			"table_cells", stats.TableCells,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	return m, nil
}

// whenTaken weighs w when the assignment variable is true and 1 otherwise.
// w is evaluated by the caller before the factor is built.
func whenTaken(w float64) csp.UnaryFunc {
	return func(taken csp.Value) float64 {
		if taken == true {
			return w
		}
		return 1
	}
}

// bindQuantity ties a numeric variable to an assignment variable: q when
// chosen, 0 otherwise.
func bindQuantity(q int) csp.BinaryFunc {
	return func(taken, amount csp.Value) float64 {
		if taken == true {
			return csp.Indicator(amount == q)
		}
		return csp.Indicator(amount == 0)
	}
}

func quantityDomain(q int) []csp.Value {
	if q == 0 {
		return []csp.Value{0}
	}
	return []csp.Value{0, q}
}

func addVariables(m *Model) error {
	for _, r := range m.Recipes {
		for _, s := range m.Profile.Slots {
			if err := m.Problem.AddVariable(AssignVar(r.ID, s.Name), []csp.Value{true, false}); err != nil {
				return err
			}
		}
	}
	return nil
}

func addNoRepeat(m *Model) error {
	notBoth := func(a, b csp.Value) float64 { return csp.Indicator(!(a == true && b == true)) }
	slots := m.Profile.Slots
	for _, r := range m.Recipes {
		for i := range slots {
			for j := i + 1; j < len(slots); j++ {
				if err := m.Problem.AddBinaryFactor(AssignVar(r.ID, slots[i].Name), AssignVar(r.ID, slots[j].Name), notBoth); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func addCookingTime(m *Model) error {
	for _, r := range m.Recipes {
		for _, s := range m.Profile.Slots {
			fits := r.CookingTime <= s.MaxCookingTime
			if err := m.Problem.AddUnaryFactor(AssignVar(r.ID, s.Name), whenTaken(csp.Indicator(fits))); err != nil {
				return err
			}
		}
	}
	return nil
}

func addCalorieBudget(m *Model) error {
	var vars []csp.Var
	for _, r := range m.Recipes {
		for _, s := range m.Profile.Slots {
			v := CaloriesVar(r.ID, s.Name)
			if err := m.Problem.AddVariable(v, quantityDomain(r.Calories)); err != nil {
				return err
			}
			if err := m.Problem.AddBinaryFactor(AssignVar(r.ID, s.Name), v, bindQuantity(r.Calories)); err != nil {
				return err
			}
			vars = append(vars, v)
		}
	}
	_, err := csp.CompileSum(m.Problem, caloriesSum, vars, m.Profile.MaxTotalCalories)
	return err
}

func addEverySlotFilled(m *Model) error {
	for _, s := range m.Profile.Slots {
		vars := make([]csp.Var, 0, len(m.Recipes))
		for _, r := range m.Recipes {
			vars = append(vars, AssignVar(r.ID, s.Name))
		}
		result, err := csp.CompileOr(m.Problem, s.Name, vars, true)
		if err != nil {
			return err
		}
		if err := m.Problem.AddUnaryFactor(result, func(v csp.Value) float64 { return csp.Indicator(v == true) }); err != nil {
			return err
		}
	}
	return nil
}

func addIngredientBudgets(m *Model) error {
	available := m.Profile.Available
	if len(available) == 0 {
		return nil
	}

	// A recipe that needs an ingredient the household does not stock can
	// never be cooked.
	for _, r := range m.Recipes {
		missing := ""
		for _, ing := range sortedKeys(r.Ingredients) {
			if _, ok := available[ing]; !ok && r.Ingredients[ing] > 0 {
				missing = ing
				break
			}
		}
		if missing == "" {
			continue
		}
		for _, s := range m.Profile.Slots {
			if err := m.Problem.AddUnaryFactor(AssignVar(r.ID, s.Name), whenTaken(0)); err != nil {
				return err
			}
		}
	}

	for _, ing := range sortedKeys(available) {
		var vars []csp.Var
		for _, r := range m.Recipes {
			q := r.Ingredients[ing]
			if q <= 0 {
				continue
			}
			for _, s := range m.Profile.Slots {
				v := IngredientVar(r.ID, s.Name, ing)
				if err := m.Problem.AddVariable(v, quantityDomain(q)); err != nil {
					return err
				}
				if err := m.Problem.AddBinaryFactor(AssignVar(r.ID, s.Name), v, bindQuantity(q)); err != nil {
					return err
				}
				vars = append(vars, v)
			}
		}
		if _, err := csp.CompileSum(m.Problem, ingredientPrefix+ing, vars, available[ing]); err != nil {
			return err
		}
	}
	return nil
}

func addHeat(m *Model, lexicon HeatLexicon) error {
	for _, s := range m.Profile.Slots {
		if !s.Hot {
			continue
		}
		for _, r := range m.Recipes {
			hot := lexicon.IsHot(r.Instructions)
			if err := m.Problem.AddUnaryFactor(AssignVar(r.ID, s.Name), whenTaken(csp.Indicator(hot))); err != nil {
				return err
			}
		}
	}
	return nil
}

func addPreferenceWeights(m *Model) error {
	for _, r := range m.Recipes {
		w := r.PreferenceWeight()
		for _, s := range m.Profile.Slots {
			if err := m.Problem.AddUnaryFactor(AssignVar(r.ID, s.Name), whenTaken(w)); err != nil {
				return err
			}
		}
	}
	return nil
}

func addShelfLife(m *Model) error {
	for _, r := range m.Recipes {
		life, ok := r.MinShelfLife()
		if !ok {
			continue
		}
		for k, s := range m.Profile.Slots {
			keeps := life >= k+1
			if err := m.Problem.AddUnaryFactor(AssignVar(r.ID, s.Name), whenTaken(csp.Indicator(keeps))); err != nil {
				return err
			}
		}
	}
	return nil
}

func addExclusiveSlots(m *Model) error {
	notBoth := func(a, b csp.Value) float64 { return csp.Indicator(!(a == true && b == true)) }
	for _, s := range m.Profile.Slots {
		for i := range m.Recipes {
			for j := i + 1; j < len(m.Recipes); j++ {
				if err := m.Problem.AddBinaryFactor(AssignVar(m.Recipes[i].ID, s.Name), AssignVar(m.Recipes[j].ID, s.Name), notBoth); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
