package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/Larder/internal/mealplan"
	"github.com/MikeSquared-Agency/Larder/internal/planner"
	"github.com/MikeSquared-Agency/Larder/internal/recipebook"
	"github.com/MikeSquared-Agency/Larder/internal/store"
)

const maxPlanRequestBytes = 1 << 20

type PlansHandler struct {
	store         store.Store
	planner       Planner
	solveOnCreate bool
	logger        *slog.Logger
}

func NewPlansHandler(s store.Store, p Planner, solveOnCreate bool, logger *slog.Logger) *PlansHandler {
	return &PlansHandler{store: s, planner: p, solveOnCreate: solveOnCreate, logger: logger}
}

// CreatePlanRequest carries the profile either as JSON or in the text
// profile format.
type CreatePlanRequest struct {
	Profile     *mealplan.Profile `json:"profile,omitempty" validate:"required_without=ProfileText"`
	ProfileText string            `json:"profile_text,omitempty" validate:"required_without=Profile"`
	RecipeIDs   []string          `json:"recipe_ids,omitempty" validate:"omitempty,dive,required"`
	Solve       *bool             `json:"solve,omitempty"`
}

func (h *PlansHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreatePlanRequest
	if !decodeJSON(w, r, maxPlanRequestBytes, &req) {
		return
	}
	if err := validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	var profile mealplan.Profile
	if req.Profile != nil {
		profile = *req.Profile
	} else {
		p, err := recipebook.ParseProfile(strings.NewReader(req.ProfileText))
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		profile = p
	}

	solve := h.solveOnCreate
	if req.Solve != nil {
		solve = *req.Solve
	}

	plan, err := h.planner.CreatePlan(r.Context(), planner.Request{
		Profile:   profile,
		RecipeIDs: req.RecipeIDs,
		Source:    r.Header.Get(ClientHeader),
		Solve:     solve,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, plan)
}

func (h *PlansHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid plan id"})
		return
	}
	plan, err := h.store.GetPlan(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (h *PlansHandler) Solve(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid plan id"})
		return
	}
	plan, err := h.planner.SolvePlan(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (h *PlansHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.PlanFilter{Source: q.Get("source")}
	if s := q.Get("status"); s != "" {
		status := store.PlanStatus(s)
		filter.Status = &status
	}
	var err error
	if filter.Limit, filter.Offset, err = pageParams(q.Get("limit"), q.Get("offset")); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	plans, err := h.store.ListPlans(r.Context(), filter)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if plans == nil {
		plans = []*store.Plan{}
	}
	writeJSON(w, http.StatusOK, plans)
}
