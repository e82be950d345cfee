package hermes

import (
	"time"

	"github.com/MikeSquared-Agency/Larder/internal/csp"
	"github.com/MikeSquared-Agency/Larder/internal/mealplan"
)

// PlanRequestEvent asks the planner to build and solve a plan. Empty
// RecipeIDs means every stored recipe.
type PlanRequestEvent struct {
	Profile   mealplan.Profile `json:"profile"`
	RecipeIDs []string         `json:"recipe_ids,omitempty"`
	Source    string           `json:"source,omitempty"`
}

type PlanBuiltEvent struct {
	PlanID string    `json:"plan_id"`
	Model  csp.Stats `json:"model"`
}

type PlanSolvedEvent struct {
	PlanID    string                 `json:"plan_id"`
	Meals     []mealplan.PlannedMeal `json:"meals"`
	Weight    float64                `json:"weight"`
	Nodes     int                    `json:"nodes"`
	Exhausted bool                   `json:"exhausted"`
}

type PlanInfeasibleEvent struct {
	PlanID    string `json:"plan_id"`
	Nodes     int    `json:"nodes"`
	Exhausted bool   `json:"exhausted"`
}

type PlanFailedEvent struct {
	PlanID string `json:"plan_id"`
	Error  string `json:"error"`
}

type RecipeEvent struct {
	RecipeID string `json:"recipe_id"`
}

type CatalogSyncedEvent struct {
	Fetched   int       `json:"fetched"`
	Upserted  int       `json:"upserted"`
	Rejected  int       `json:"rejected"`
	Timestamp time.Time `json:"timestamp"`
}

type StatsEvent struct {
	Built      int       `json:"built"`
	Solved     int       `json:"solved"`
	Infeasible int       `json:"infeasible"`
	Failed     int       `json:"failed"`
	Timestamp  time.Time `json:"timestamp"`
}
