package mealplan

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"
)

var (
	ErrInvalidRecipe  = errors.New("invalid recipe")
	ErrInvalidProfile = errors.New("invalid profile")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Recipe is one candidate dish.
type Recipe struct {
	ID          string `json:"id" yaml:"id" validate:"required"`
	Name        string `json:"name" yaml:"name"`
	Cuisine     string `json:"cuisine,omitempty" yaml:"cuisine,omitempty"`
	CookingTime int    `json:"cooking_time" yaml:"cooking_time" validate:"gte=0"` // minutes
	Calories    int    `json:"calories" yaml:"calories" validate:"gte=0"`
	Servings    int    `json:"servings,omitempty" yaml:"servings,omitempty" validate:"gte=0"`

	// Ingredients maps ingredient name to required quantity.
	Ingredients map[string]int `json:"ingredients,omitempty" yaml:"ingredients,omitempty" validate:"omitempty,dive,keys,required,endkeys,gte=0"`
	// ShelfLife maps ingredient name to how many meal slots it keeps for.
	ShelfLife map[string]int `json:"shelf_life,omitempty" yaml:"shelf_life,omitempty" validate:"omitempty,dive,keys,required,endkeys,gte=0"`

	// Rating is the household's preference for the recipe. Zero means
	// unrated.
	Rating       float64 `json:"rating" yaml:"rating" validate:"gte=0"`
	Instructions string  `json:"instructions,omitempty" yaml:"instructions,omitempty"`
}

func (r Recipe) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidRecipe, r.ID, err)
	}
	if math.IsNaN(r.Rating) || math.IsInf(r.Rating, 0) {
		return fmt.Errorf("%w: %q: rating %v", ErrInvalidRecipe, r.ID, r.Rating)
	}
	return nil
}

// PreferenceWeight is the soft weight applied when the recipe is chosen.
func (r Recipe) PreferenceWeight() float64 {
	if r.Rating <= 0 {
		return 1
	}
	return r.Rating
}

// MinShelfLife returns the shortest shelf life among the recipe's
// ingredients, or false when none is recorded.
func (r Recipe) MinShelfLife() (int, bool) {
	if len(r.ShelfLife) == 0 {
		return 0, false
	}
	shortest := math.MaxInt
	for _, slots := range r.ShelfLife {
		if slots < shortest {
			shortest = slots
		}
	}
	return shortest, true
}

// Slot is one meal to plan for, in plan order.
type Slot struct {
	Name           string `json:"name" yaml:"name" validate:"required"`
	MaxCookingTime int    `json:"max_cooking_time" yaml:"max_cooking_time" validate:"gte=0"`
	// Hot requires a dish whose instructions involve heat.
	Hot bool `json:"hot,omitempty" yaml:"hot,omitempty"`
}

// Profile is a household's planning request.
type Profile struct {
	MaxTotalCalories int    `json:"max_total_calories" yaml:"max_total_calories" validate:"gte=0"`
	Slots            []Slot `json:"slots" yaml:"slots" validate:"required,min=1,dive"`
	// Available maps ingredient name to the quantity on hand. An empty map
	// leaves ingredient use unconstrained.
	Available map[string]int `json:"available,omitempty" yaml:"available,omitempty" validate:"omitempty,dive,keys,required,endkeys,gte=0"`
}

func (p Profile) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProfile, err)
	}
	seen := make(map[string]bool, len(p.Slots))
	for _, s := range p.Slots {
		if seen[s.Name] {
			return fmt.Errorf("%w: slot %q declared twice", ErrInvalidProfile, s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}

// SlotIndex returns the position of the named slot, or -1.
func (p Profile) SlotIndex(name string) int {
	for i, s := range p.Slots {
		if s.Name == name {
			return i
		}
	}
	return -1
}
