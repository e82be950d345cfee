package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/Larder/internal/csp"
	"github.com/MikeSquared-Agency/Larder/internal/mealplan"
)

var ErrNotFound = errors.New("not found")

type PlanStatus string

const (
	PlanStatusPending    PlanStatus = "pending"
	PlanStatusBuilt      PlanStatus = "built"
	PlanStatusSolved     PlanStatus = "solved"
	PlanStatusInfeasible PlanStatus = "infeasible"
	PlanStatusFailed     PlanStatus = "failed"
)

// Terminal reports whether no further work will happen on a plan.
func (s PlanStatus) Terminal() bool {
	switch s {
	case PlanStatusSolved, PlanStatusInfeasible, PlanStatusFailed:
		return true
	}
	return false
}

type Plan struct {
	ID        uuid.UUID        `json:"plan_id"`
	Status    PlanStatus       `json:"status"`
	Source    string           `json:"source"`
	Profile   mealplan.Profile `json:"profile"`
	RecipeIDs []string         `json:"recipe_ids,omitempty"`

	// Model size as built.
	Model csp.Stats `json:"model"`

	// Search outcome
	Meals     []mealplan.PlannedMeal `json:"meals,omitempty"`
	Weight    *float64               `json:"weight,omitempty"`
	Nodes     int                    `json:"nodes"`
	Exhausted bool                   `json:"exhausted"`
	Error     string                 `json:"error,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	SolvedAt  *time.Time `json:"solved_at,omitempty"`
}

type PlanFilter struct {
	Status *PlanStatus
	Source string
	Limit  int
	Offset int
}

type RecipeFilter struct {
	Cuisine        string
	MaxCookingTime int
	Limit          int
	Offset         int
}

type Store interface {
	UpsertRecipe(ctx context.Context, r *mealplan.Recipe) error
	GetRecipe(ctx context.Context, id string) (*mealplan.Recipe, error)
	// GetRecipes returns the named recipes in the order given. A missing
	// ID yields ErrNotFound.
	GetRecipes(ctx context.Context, ids []string) ([]mealplan.Recipe, error)
	ListRecipes(ctx context.Context, filter RecipeFilter) ([]mealplan.Recipe, error)
	DeleteRecipe(ctx context.Context, id string) error

	CreatePlan(ctx context.Context, p *Plan) error
	GetPlan(ctx context.Context, id uuid.UUID) (*Plan, error)
	UpdatePlan(ctx context.Context, p *Plan) error
	ListPlans(ctx context.Context, filter PlanFilter) ([]*Plan, error)

	Close() error
}

const defaultLimit = 100

func limitOrDefault(n int) int {
	if n <= 0 {
		return defaultLimit
	}
	return n
}
