package handlers

import (
	"net/http"

	"github.com/garagebook/garagebook/libs/auth"
	"github.com/garagebook/garagebook/libs/httpx"
)

func (h *Handler) MyBookings(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFromContext(r.Context())
	items, err := h.svc.ListForClient(r.Context(), p.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": toBookingItems(items, false)})
}

func (h *Handler) CancelMyBooking(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFromContext(r.Context())
	d, err := h.svc.Cancel(r.Context(), p.UserID, r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.logger.Info("booking cancelled by client", "booking_id", d.ID, "user_id", p.UserID)
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"booking": toBookingItem(d, false)})
}
