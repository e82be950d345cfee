package api

import (
	"log/slog"
	"net/http"
)

type CatalogHandler struct {
	planner Planner
	logger  *slog.Logger
}

func NewCatalogHandler(p Planner, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{planner: p, logger: logger}
}

func (h *CatalogHandler) Sync(w http.ResponseWriter, r *http.Request) {
	res, err := h.planner.SyncCatalog(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
