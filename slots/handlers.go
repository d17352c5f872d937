package slots

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"islebook/globals"
	"islebook/models"
	"islebook/rdx"
	"islebook/utils"

	"github.com/julienschmidt/httprouter"
)

type Handler struct {
	Store     Store
	Generator *Generator
	Ledger    *Ledger
	Rules     RuleSource
	Clock     utils.Clock
}

func NewHandler(store Store, gen *Generator, ledger *Ledger, rules RuleSource, clock utils.Clock) *Handler {
	return &Handler{Store: store, Generator: gen, Ledger: ledger, Rules: rules, Clock: clock}
}

// POST /api/slots creates a manual one-off slot with no generating rule.
func (h *Handler) CreateSlot(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body struct {
		ListingID            string `json:"listingId"`
		Date                 string `json:"date"`
		StartTime            string `json:"startTime"`
		Duration             int    `json:"duration"`
		Capacity             int    `json:"capacity"`
		BookingDeadlineHours int    `json:"bookingDeadlineHours"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if body.ListingID == "" || body.Date == "" || body.StartTime == "" || body.Duration <= 0 || body.Capacity <= 0 {
		utils.RespondWithError(w, http.StatusBadRequest, "missing required fields")
		return
	}

	vendorID := utils.GetUserIDFromRequest(r)
	if vendorID == "" {
		utils.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	endTime, err := AddMinutes(body.StartTime, body.Duration)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	deadline, err := BookingDeadline(body.Date, body.StartTime, body.BookingDeadlineHours)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := h.Clock.Now()
	slot := &models.Slot{
		ID:              genID(),
		ListingID:       body.ListingID,
		VendorID:        vendorID,
		Date:            body.Date,
		StartTime:       body.StartTime,
		EndTime:         endTime,
		Capacity:        body.Capacity,
		Available:       body.Capacity,
		BookingDeadline: deadline,
		Status:          models.SlotActive,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := h.Store.Insert(r.Context(), slot); err != nil {
		respondSlotError(w, err)
		return
	}
	BroadcastAvailability(slot)
	utils.RespondWithJSON(w, http.StatusCreated, map[string]any{"slot": slot})
}

// GET /api/slots/:id
func (h *Handler) GetSlot(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	slot, err := h.Store.GetByID(r.Context(), ps.ByName("id"))
	if err != nil {
		respondSlotError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]any{"slot": slot})
}

// GET /api/slots/:id/availability is served from the Redis snapshot when
// warm; the transactional write path never reads this.
func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	slotID := ps.ByName("id")

	if snap := rdx.GetCachedAvailability(r.Context(), slotID); snap != nil {
		utils.RespondWithJSON(w, http.StatusOK, snap)
		return
	}

	slot, err := h.Store.GetByID(r.Context(), slotID)
	if err != nil {
		respondSlotError(w, err)
		return
	}
	rdx.CacheSlotAvailability(r.Context(), slot)
	utils.RespondWithJSON(w, http.StatusOK, map[string]any{
		"available": slot.Available,
		"capacity":  slot.Capacity,
		"status":    slot.Status,
	})
}

// GET /api/listings/:listingId/slots
func (h *Handler) ListSlots(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	opts := utils.ParseQueryOptions(r)
	list, err := h.Store.ListByListing(r.Context(), ps.ByName("listingId"), ListFilter{
		Status:   opts.Status,
		FromDate: opts.From,
		ToDate:   opts.To,
	})
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "db error")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]any{"slots": list})
}

// POST /api/rules/:id/generate is the vendor-triggered materialization.
// Body carries either an explicit window or a days-ahead override.
func (h *Handler) GenerateSlots(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ruleID := ps.ByName("id")

	rule, err := h.Rules.GetByID(r.Context(), ruleID)
	if err != nil {
		utils.RespondWithError(w, http.StatusNotFound, "rule not found")
		return
	}
	if !h.callerOwns(r, rule.VendorID) {
		utils.RespondWithError(w, http.StatusForbidden, "not your rule")
		return
	}

	var body struct {
		StartDate string `json:"startDate"`
		EndDate   string `json:"endDate"`
		Days      int    `json:"days"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	var created []string
	if body.StartDate != "" && body.EndDate != "" {
		created, err = h.Generator.Generate(r.Context(), ruleID, body.StartDate, body.EndDate)
	} else {
		created, err = h.Generator.GenerateAhead(r.Context(), ruleID, body.Days)
	}
	if err != nil {
		respondSlotError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]any{"ok": true, "created": created, "count": len(created)})
}

// PATCH /api/slots/:id/block
func (h *Handler) BlockSlot(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	h.vendorTransition(w, r, ps, h.Ledger.Block)
}

// PATCH /api/slots/:id/unblock
func (h *Handler) UnblockSlot(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	h.vendorTransition(w, r, ps, h.Ledger.Unblock)
}

// PATCH /api/slots/:id/cancel
func (h *Handler) CancelSlot(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	slotID := ps.ByName("id")
	if !h.ownsSlot(w, r, slotID) {
		return
	}

	var body struct {
		Reason string `json:"reason"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	if body.Reason == "" {
		body.Reason = "vendor cancelled"
	}

	slot, err := h.Ledger.CancelSlot(r.Context(), slotID, body.Reason)
	if err != nil {
		respondSlotError(w, err)
		return
	}
	rdx.DropSlotAvailability(r.Context(), slotID)
	BroadcastAvailability(slot)
	utils.RespondWithJSON(w, http.StatusOK, map[string]any{"slot": slot})
}

func (h *Handler) vendorTransition(w http.ResponseWriter, r *http.Request, ps httprouter.Params, op func(ctx context.Context, slotID string) (*models.Slot, error)) {
	slotID := ps.ByName("id")
	if !h.ownsSlot(w, r, slotID) {
		return
	}
	slot, err := op(r.Context(), slotID)
	if err != nil {
		respondSlotError(w, err)
		return
	}
	rdx.DropSlotAvailability(r.Context(), slotID)
	BroadcastAvailability(slot)
	utils.RespondWithJSON(w, http.StatusOK, map[string]any{"slot": slot})
}

// ownsSlot writes the error response itself when the check fails.
func (h *Handler) ownsSlot(w http.ResponseWriter, r *http.Request, slotID string) bool {
	slot, err := h.Store.GetByID(r.Context(), slotID)
	if err != nil {
		respondSlotError(w, err)
		return false
	}
	if !h.callerOwns(r, slot.VendorID) {
		utils.RespondWithError(w, http.StatusForbidden, "not your slot")
		return false
	}
	return true
}

func (h *Handler) callerOwns(r *http.Request, vendorID string) bool {
	caller := utils.GetUserIDFromRequest(r)
	if caller == "" {
		return false
	}
	if caller == vendorID {
		return true
	}
	roles, _ := r.Context().Value(globals.RoleKey).([]string)
	return utils.Contains(roles, "admin")
}

func respondSlotError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrSlotNotFound):
		utils.RespondWithError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrDuplicateSlot):
		utils.RespondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrCapacityExceeded),
		errors.Is(err, ErrDeadlinePassed),
		errors.Is(err, ErrSlotNotBookable),
		errors.Is(err, ErrNotBlockable),
		errors.Is(err, ErrBadTransition):
		utils.RespondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidGuests), errors.Is(err, ErrRuleInactive):
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrConflict):
		utils.RespondWithError(w, http.StatusServiceUnavailable, err.Error())
	default:
		utils.RespondWithError(w, http.StatusInternalServerError, "db error")
	}
}
