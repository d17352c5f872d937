package waitlist

import (
	"errors"
	"net/http"

	"islebook/slots"
	"islebook/utils"

	"github.com/julienschmidt/httprouter"
)

type Handler struct {
	Queue *Queue
}

func NewHandler(queue *Queue) *Handler {
	return &Handler{Queue: queue}
}

// POST /api/slots/:id/waitlist
func (h *Handler) Join(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	userID := utils.GetUserIDFromRequest(r)
	if userID == "" {
		utils.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	entry, err := h.Queue.Join(r.Context(), ps.ByName("id"), userID)
	if err != nil {
		respondWaitlistError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusCreated, map[string]any{"entry": entry})
}

// DELETE /api/waitlist/:id
func (h *Handler) Leave(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	userID := utils.GetUserIDFromRequest(r)
	if err := h.Queue.Leave(r.Context(), ps.ByName("id"), userID); err != nil {
		respondWaitlistError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// GET /api/waitlist/:id/position
func (h *Handler) Position(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	userID := utils.GetUserIDFromRequest(r)
	pos, total, err := h.Queue.Position(r.Context(), ps.ByName("id"), userID)
	if err != nil {
		respondWaitlistError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]any{"position": pos, "waiting": total})
}

// POST /api/waitlist/expire-stale is an admin entry point mirroring the
// scheduler's sweep, handy for ops.
func (h *Handler) ExpireStale(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	slotIDs, err := h.Queue.ExpireStale(r.Context())
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "db error")
		return
	}
	h.Queue.RepromoteAfterExpiry(r.Context(), slotIDs)
	utils.RespondWithJSON(w, http.StatusOK, map[string]any{"ok": true, "slotsTouched": slotIDs})
}

func respondWaitlistError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrEntryNotFound), errors.Is(err, slots.ErrSlotNotFound):
		utils.RespondWithError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrSlotNotFull), errors.Is(err, ErrAlreadyWaiting),
		errors.Is(err, ErrNotWaiting), errors.Is(err, ErrSlotNotOpen):
		utils.RespondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrNotOwner):
		utils.RespondWithError(w, http.StatusForbidden, err.Error())
	default:
		utils.RespondWithError(w, http.StatusInternalServerError, "db error")
	}
}
