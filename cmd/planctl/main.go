// planctl builds a meal plan from local files and prints it as JSON.
//
// Usage:
//
//	planctl -recipes recipes.csv -profile week.txt [-heat verbs.txt] [-mode first]
//
// Exit status is 0 when a plan is found, 2 when the constraints admit none
// and 1 on any other error.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/MikeSquared-Agency/Larder/internal/csp"
	"github.com/MikeSquared-Agency/Larder/internal/mealplan"
	"github.com/MikeSquared-Agency/Larder/internal/recipebook"
	"github.com/MikeSquared-Agency/Larder/internal/solver"
)

type output struct {
	Status    string                 `json:"status"`
	Meals     []mealplan.PlannedMeal `json:"meals"`
	Weight    float64                `json:"weight,omitempty"`
	Nodes     int                    `json:"nodes"`
	Exhausted bool                   `json:"exhausted"`
	Model     csp.Stats              `json:"model"`
	ElapsedMs int64                  `json:"elapsed_ms"`
}

func main() {
	recipesPath := flag.String("recipes", "", "recipe book CSV")
	profilePath := flag.String("profile", "", "preference profile (text, or .yaml)")
	heatPath := flag.String("heat", "", "heat verb list, one per line (default built in)")
	modeName := flag.String("mode", "best", "search mode: best or first")
	maxNodes := flag.Int("max-nodes", 0, "stop after this many assignments (0 = no limit)")
	timeout := flag.Duration("timeout", time.Minute, "search time limit")
	exclusive := flag.Bool("exclusive", false, "at most one recipe per slot")
	maxCells := flag.Int("max-cells", 50000000, "refuse models with more factor table cells (0 = no limit)")
	verbose := flag.Bool("v", false, "debug logging to stderr")
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if *recipesPath == "" || *profilePath == "" {
		flag.Usage()
		os.Exit(1)
	}
	mode, err := solver.ParseMode(*modeName)
	if err != nil {
		fail(err)
	}

	recipes, err := recipebook.LoadRecipes(*recipesPath)
	if err != nil {
		fail(err)
	}
	profile, err := recipebook.LoadProfile(*profilePath)
	if err != nil {
		fail(err)
	}
	lexicon, err := recipebook.LoadLexicon(*heatPath)
	if err != nil {
		fail(err)
	}

	model, err := mealplan.NewBuilder(mealplan.Options{ExclusiveSlots: *exclusive, MaxTableCells: *maxCells}, logger).Build(recipes, profile, lexicon)
	if err != nil {
		fail(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	res, err := solver.New(logger).Solve(ctx, model.Problem, solver.Options{Mode: mode, MaxNodes: *maxNodes})
	out := output{Meals: []mealplan.PlannedMeal{}, Model: model.Problem.Stats()}
	if res != nil {
		out.Nodes = res.Nodes
		out.Exhausted = res.Exhausted
		out.ElapsedMs = res.Duration.Milliseconds()
	}

	code := 0
	switch {
	case err == nil:
		out.Status = "solved"
		out.Weight = res.Weight
		out.Meals = model.Extract(res.Assignment)
		if err := model.Verify(out.Meals); err != nil {
			fail(err)
		}
	case errors.Is(err, solver.ErrNoSolution):
		out.Status = "infeasible"
		code = 2
	default:
		fail(err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fail(err)
	}
	os.Exit(code)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "planctl:", err)
	os.Exit(1)
}
