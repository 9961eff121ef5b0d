package handler

import (
	"net/http"

	"github.com/bcnelson/opnsense-access-control/internal/service"
	"github.com/bcnelson/opnsense-access-control/internal/storage"
)

// HistoryHandler serves the toggle audit log.
type HistoryHandler struct {
	service *service.AccessService
}

// NewHistoryHandler creates a new HistoryHandler.
func NewHistoryHandler(svc *service.AccessService) *HistoryHandler {
	return &HistoryHandler{service: svc}
}

// List lists toggle records, newest first.
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", storage.DefaultHistoryLimit)
	if err != nil {
		respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}

	records, err := h.service.History(r.Context(), storage.ToggleFilter{
		Device: r.URL.Query().Get("device"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, records)
}
