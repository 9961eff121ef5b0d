package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bcnelson/opnsense-access-control/internal/domain"
	"github.com/bcnelson/opnsense-access-control/internal/service"
)

// SwitchHandler handles device switch endpoints.
type SwitchHandler struct {
	service *service.AccessService
}

// NewSwitchHandler creates a new SwitchHandler.
func NewSwitchHandler(svc *service.AccessService) *SwitchHandler {
	return &SwitchHandler{service: svc}
}

// List lists all switches.
func (h *SwitchHandler) List(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.service.List())
}

// Get gets a switch by name.
func (h *SwitchHandler) Get(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Get(chi.URLParam(r, "name"))
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// On allows internet access for the device.
func (h *SwitchHandler) On(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, domain.Allow)
}

// Off blocks internet access for the device.
func (h *SwitchHandler) Off(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, domain.Block)
}

func (h *SwitchHandler) toggle(w http.ResponseWriter, r *http.Request, intent domain.MembershipIntent) {
	resp, err := h.service.Toggle(r.Context(), chi.URLParam(r, "name"), intent)
	if err != nil {
		handleError(w, err)
		return
	}
	if resp.Warning != "" {
		// Membership written but not yet active.
		respondJSON(w, http.StatusAccepted, resp)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// Refresh reads the switch state from the appliance.
func (h *SwitchHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Refresh(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// Reload re-issues the filter reload for the switch.
func (h *SwitchHandler) Reload(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Reload(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}
