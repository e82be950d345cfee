package api

import (
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/MikeSquared-Agency/Larder/internal/mealplan"
	"github.com/MikeSquared-Agency/Larder/internal/recipebook"
	"github.com/MikeSquared-Agency/Larder/internal/store"
)

const maxUploadBytes = 8 << 20

type RecipesHandler struct {
	store   store.Store
	planner Planner
	logger  *slog.Logger
}

func NewRecipesHandler(s store.Store, p Planner, logger *slog.Logger) *RecipesHandler {
	return &RecipesHandler{store: s, planner: p, logger: logger}
}

// Upsert stores one recipe from a JSON body, or a whole recipe book when
// the body is text/csv.
func (h *RecipesHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "text/csv" {
		recipes, err := recipebook.ReadRecipes(r.Body)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		for i := range recipes {
			if err := h.planner.UpsertRecipe(r.Context(), &recipes[i]); err != nil {
				writeError(w, h.logger, err)
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]int{"upserted": len(recipes)})
		return
	}

	var recipe mealplan.Recipe
	if !decodeJSON(w, r, maxUploadBytes, &recipe) {
		return
	}
	if err := h.planner.UpsertRecipe(r.Context(), &recipe); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, recipe)
}

func (h *RecipesHandler) Get(w http.ResponseWriter, r *http.Request) {
	recipe, err := h.store.GetRecipe(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, recipe)
}

func (h *RecipesHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.RecipeFilter{Cuisine: q.Get("cuisine")}
	var err error
	if filter.MaxCookingTime, err = intParam(q.Get("max_cooking_time")); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid max_cooking_time"})
		return
	}
	if filter.Limit, filter.Offset, err = pageParams(q.Get("limit"), q.Get("offset")); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	recipes, err := h.store.ListRecipes(r.Context(), filter)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if recipes == nil {
		recipes = []mealplan.Recipe{}
	}
	writeJSON(w, http.StatusOK, recipes)
}

func (h *RecipesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.planner.DeleteRecipe(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, strconv.ErrSyntax
	}
	return n, nil
}

func pageParams(limit, offset string) (int, int, error) {
	l, err := intParam(limit)
	if err != nil {
		return 0, 0, errors.New("invalid limit")
	}
	o, err := intParam(offset)
	if err != nil {
		return 0, 0, errors.New("invalid offset")
	}
	return l, o, nil
}
