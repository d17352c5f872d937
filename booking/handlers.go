package booking

import (
	"encoding/json"
	"errors"
	"net/http"

	"islebook/rdx"
	"islebook/slots"
	"islebook/utils"

	"github.com/julienschmidt/httprouter"
)

type Handler struct {
	Flow      *Flow
	SlotStore slots.Store
}

func NewHandler(flow *Flow, slotStore slots.Store) *Handler {
	return &Handler{Flow: flow, SlotStore: slotStore}
}

// POST /api/bookings
func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body struct {
		SlotID string `json:"slotId"`
		Guests int    `json:"guests"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if body.SlotID == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "missing slotId")
		return
	}

	userID := utils.GetUserIDFromRequest(r)
	if userID == "" {
		utils.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	b, slot, err := h.Flow.Create(r.Context(), userID, body.SlotID, body.Guests)
	if err != nil {
		respondBookingError(w, err)
		return
	}

	rdx.DropSlotAvailability(r.Context(), slot.ID)
	slots.BroadcastAvailability(slot)
	utils.RespondWithJSON(w, http.StatusCreated, map[string]any{"ok": true, "booking": b, "available": slot.Available})
}

// DELETE /api/bookings/:id
func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	userID := utils.GetUserIDFromRequest(r)
	if userID == "" {
		utils.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	b, slot, err := h.Flow.Cancel(r.Context(), userID, ps.ByName("id"))
	if err != nil {
		respondBookingError(w, err)
		return
	}

	if slot != nil {
		rdx.DropSlotAvailability(r.Context(), slot.ID)
		slots.BroadcastAvailability(slot)
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]any{"ok": true, "booking": b})
}

// GET /api/bookings
func (h *Handler) ListMyBookings(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	userID := utils.GetUserIDFromRequest(r)
	if userID == "" {
		utils.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	list, err := h.Flow.ListByUser(r.Context(), userID)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "db error")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]any{"bookings": list})
}

// GET /api/slots/:id/bookings, the vendor view of a slot's live bookings.
func (h *Handler) ListSlotBookings(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	slotID := ps.ByName("id")
	slot, err := h.SlotStore.GetByID(r.Context(), slotID)
	if err != nil {
		respondBookingError(w, err)
		return
	}
	if slot.VendorID != utils.GetUserIDFromRequest(r) {
		utils.RespondWithError(w, http.StatusForbidden, "not your slot")
		return
	}

	list, err := h.Flow.ListLiveBySlot(r.Context(), slotID)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "db error")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]any{"bookings": list})
}

func respondBookingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrBookingNotFound), errors.Is(err, slots.ErrSlotNotFound):
		utils.RespondWithError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrDuplicateBooking),
		errors.Is(err, slots.ErrCapacityExceeded),
		errors.Is(err, slots.ErrDeadlinePassed),
		errors.Is(err, slots.ErrSlotNotBookable):
		utils.RespondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, slots.ErrInvalidGuests):
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotOwner):
		utils.RespondWithError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, slots.ErrConflict):
		utils.RespondWithError(w, http.StatusServiceUnavailable, err.Error())
	default:
		utils.RespondWithError(w, http.StatusInternalServerError, "db error")
	}
}
