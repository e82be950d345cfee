package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MikeSquared-Agency/Larder/internal/config"
	"github.com/MikeSquared-Agency/Larder/internal/mealplan"
	"github.com/MikeSquared-Agency/Larder/internal/planner"
	"github.com/MikeSquared-Agency/Larder/internal/recipebook"
	"github.com/MikeSquared-Agency/Larder/internal/store"
)

// Planner is the write side of the service.
type Planner interface {
	CreatePlan(ctx context.Context, req planner.Request) (*store.Plan, error)
	SolvePlan(ctx context.Context, id uuid.UUID) (*store.Plan, error)
	UpsertRecipe(ctx context.Context, r *mealplan.Recipe) error
	DeleteRecipe(ctx context.Context, id string) error
	SyncCatalog(ctx context.Context) (*planner.SyncResult, error)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func NewRouter(s store.Store, p Planner, cfg *config.Config, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.RequestID)
	r.Use(RequestLogger(logger))
	r.Use(RateLimitMiddleware(cfg.Server.RateLimit, cfg.Server.RateBurst))

	recipes := NewRecipesHandler(s, p, logger)
	plans := NewPlansHandler(s, p, cfg.Planner.SolveOnCreate, logger)
	catalog := NewCatalogHandler(p, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(ClientIDMiddleware)

		r.Get("/recipes", recipes.List)
		r.Get("/recipes/{id}", recipes.Get)

		r.Post("/plans", plans.Create)
		r.Get("/plans", plans.List)
		r.Get("/plans/{id}", plans.Get)
		r.Post("/plans/{id}/solve", plans.Solve)

		r.Group(func(r chi.Router) {
			r.Use(AdminAuthMiddleware(cfg.Server.AdminToken))
			r.Post("/recipes", recipes.Upsert)
			r.Delete("/recipes/{id}", recipes.Delete)
			r.Post("/catalog/sync", catalog.Sync)
		})
	})

	return r
}

func NewMetricsRouter() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to a status code. Unknown errors are logged
// and reported without detail.
// decodeJSON reads at most limit bytes of r's body into v and writes the
// error response itself when that fails.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "request body too large"})
		return false
	}
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	return false
}

func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, mealplan.ErrInvalidRecipe),
		errors.Is(err, mealplan.ErrInvalidProfile),
		errors.Is(err, recipebook.ErrMalformedRecipe),
		errors.Is(err, recipebook.ErrMalformedProfile):
		status = http.StatusBadRequest
	case errors.Is(err, planner.ErrPlanSettled):
		status = http.StatusConflict
	case errors.Is(err, planner.ErrNoRecipes),
		errors.Is(err, planner.ErrModelTooLarge):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, planner.ErrCatalogDisabled):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		logger.Error("request failed", "error", err)
		writeJSON(w, status, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
