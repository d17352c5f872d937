package rules

import (
	"encoding/json"
	"errors"
	"net/http"

	"islebook/models"
	"islebook/utils"

	"github.com/julienschmidt/httprouter"
)

type Handler struct {
	Svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// POST /api/rules
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var rule models.AvailabilityRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	vendorID := utils.GetUserIDFromRequest(r)
	if vendorID == "" {
		utils.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	rule.VendorID = vendorID

	if err := h.Svc.Create(r.Context(), &rule); err != nil {
		respondRuleError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusCreated, map[string]any{"rule": rule})
}

// GET /api/rules/:id
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	rule, err := h.Svc.Get(r.Context(), ps.ByName("id"))
	if err != nil {
		respondRuleError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]any{"rule": rule})
}

// GET /api/listings/:listingId/rules
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	list, err := h.Svc.ListByListing(r.Context(), ps.ByName("listingId"))
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "db error")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]any{"rules": list})
}

// PATCH /api/rules/:id
func (h *Handler) UpdateRule(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var patch Update
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	vendorID := utils.GetUserIDFromRequest(r)
	rule, err := h.Svc.Update(r.Context(), ps.ByName("id"), vendorID, patch)
	if err != nil {
		respondRuleError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]any{"rule": rule})
}

// DELETE /api/rules/:id
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	vendorID := utils.GetUserIDFromRequest(r)
	removed, err := h.Svc.Delete(r.Context(), ps.ByName("id"), vendorID)
	if err != nil {
		respondRuleError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]any{"ok": true, "slotsRemoved": removed})
}

func respondRuleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrRuleNotFound):
		utils.RespondWithError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidRule):
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotOwner):
		utils.RespondWithError(w, http.StatusForbidden, err.Error())
	default:
		utils.RespondWithError(w, http.StatusInternalServerError, "db error")
	}
}
