package mealplan

import (
	"errors"
	"fmt"

	"github.com/MikeSquared-Agency/Larder/internal/csp"
)

var ErrInvalidPlan = errors.New("invalid plan")

// PlannedMeal is one chosen (slot, recipe) pair.
type PlannedMeal struct {
	Slot       string `json:"slot"`
	RecipeID   string `json:"recipe_id"`
	RecipeName string `json:"recipe_name,omitempty"`
}

// Extract lists the assignment variables that are true, in slot order and
// then recipe order. Non-assignment variables are ignored.
func (m *Model) Extract(assignment map[csp.Var]csp.Value) []PlannedMeal {
	return ExtractPlan(m.Profile, m.Recipes, assignment)
}

func ExtractPlan(profile Profile, recipes []Recipe, assignment map[csp.Var]csp.Value) []PlannedMeal {
	plan := []PlannedMeal{}
	if len(assignment) == 0 {
		return plan
	}
	for _, s := range profile.Slots {
		for _, r := range recipes {
			if assignment[AssignVar(r.ID, s.Name)] == true {
				plan = append(plan, PlannedMeal{Slot: s.Name, RecipeID: r.ID, RecipeName: r.Name})
			}
		}
	}
	return plan
}

// Verify checks plan against the inputs and options the model was built
// from.
func (m *Model) Verify(plan []PlannedMeal) error {
	if err := Verify(m.Recipes, m.Profile, m.Lexicon, plan); err != nil {
		return err
	}
	if m.Options.ExclusiveSlots {
		taken := make(map[string]string, len(plan))
		for _, meal := range plan {
			if prev, dup := taken[meal.Slot]; dup {
				return fmt.Errorf("%w: slot %q holds %q and %q", ErrInvalidPlan, meal.Slot, prev, meal.RecipeID)
			}
			taken[meal.Slot] = meal.RecipeID
		}
	}
	return nil
}

// Verify checks a plan directly against the recipes and profile, without
// the CSP: every slot filled, no recipe repeated, cooking time and calorie
// bounds, hot slots, shelf life and ingredient availability. An empty
// lexicon means DefaultHeatVerbs.
func Verify(recipes []Recipe, profile Profile, lexicon HeatLexicon, plan []PlannedMeal) error {
	if lexicon.Len() == 0 {
		lexicon = NewHeatLexicon(DefaultHeatVerbs)
	}
	byID := make(map[string]Recipe, len(recipes))
	for _, r := range recipes {
		byID[r.ID] = r
	}

	used := make(map[string]string, len(plan))
	filled := make(map[string]bool, len(profile.Slots))
	consumed := make(map[string]int)
	calories := 0
	for _, meal := range plan {
		r, ok := byID[meal.RecipeID]
		if !ok {
			return fmt.Errorf("%w: unknown recipe %q", ErrInvalidPlan, meal.RecipeID)
		}
		idx := profile.SlotIndex(meal.Slot)
		if idx < 0 {
			return fmt.Errorf("%w: unknown slot %q", ErrInvalidPlan, meal.Slot)
		}
		if prev, dup := used[r.ID]; dup {
			return fmt.Errorf("%w: recipe %q repeated in %q and %q", ErrInvalidPlan, r.ID, prev, meal.Slot)
		}
		used[r.ID] = meal.Slot
		filled[meal.Slot] = true

		slot := profile.Slots[idx]
		if r.CookingTime > slot.MaxCookingTime {
			return fmt.Errorf("%w: recipe %q takes %d minutes, %q allows %d", ErrInvalidPlan, r.ID, r.CookingTime, slot.Name, slot.MaxCookingTime)
		}
		if slot.Hot && !lexicon.IsHot(r.Instructions) {
			return fmt.Errorf("%w: recipe %q is not cooked hot, %q must be", ErrInvalidPlan, r.ID, slot.Name)
		}
		if life, ok := r.MinShelfLife(); ok && life < idx+1 {
			return fmt.Errorf("%w: recipe %q keeps %d slots, %q is slot %d", ErrInvalidPlan, r.ID, life, slot.Name, idx+1)
		}
		calories += r.Calories
		for ing, q := range r.Ingredients {
			consumed[ing] += q
		}
	}

	for _, s := range profile.Slots {
		if !filled[s.Name] {
			return fmt.Errorf("%w: slot %q is empty", ErrInvalidPlan, s.Name)
		}
	}
	if calories > profile.MaxTotalCalories {
		return fmt.Errorf("%w: %d calories exceeds budget %d", ErrInvalidPlan, calories, profile.MaxTotalCalories)
	}
	if len(profile.Available) > 0 {
		for ing, q := range consumed {
			if q == 0 {
				continue
			}
			have, ok := profile.Available[ing]
			if !ok {
				return fmt.Errorf("%w: ingredient %q is not available", ErrInvalidPlan, ing)
			}
			if q > have {
				return fmt.Errorf("%w: needs %d of %q, %d available", ErrInvalidPlan, q, ing, have)
			}
		}
	}
	return nil
}
