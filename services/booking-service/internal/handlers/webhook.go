package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/garagebook/garagebook/libs/httpx"
	"github.com/garagebook/garagebook/services/booking-service/internal/booking"
	"github.com/garagebook/garagebook/services/booking-service/internal/payments"
)

// StripeWebhook handles payment intent webhooks. Outcomes only move the payment
// status; replays are ignored by event id.
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	if strings.TrimSpace(h.opts.StripeWebhookSecret) == "" {
		httpx.WriteError(w, http.StatusServiceUnavailable, "unavailable", "stripe webhook not configured")
		return
	}
	sigHeader := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(sigHeader) == "" {
		httpx.WriteError(w, http.StatusBadRequest, "bad_request", "missing Stripe-Signature header")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "bad_request", "failed to read request body")
		return
	}

	settlement, ok, err := payments.ParseWebhook(body, sigHeader, h.opts.StripeWebhookSecret, h.opts.StripeWebhookTolerance)
	if err != nil {
		h.logger.Warn("stripe webhook rejected", "err", err)
		httpx.WriteError(w, http.StatusBadRequest, "bad_request", "invalid webhook")
		return
	}
	if !ok {
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"status": "ignored"})
		return
	}

	b, changed, err := h.svc.ApplySettlement(r.Context(), settlement)
	switch {
	case errors.Is(err, booking.ErrNotFound), errors.Is(err, booking.ErrInvalidTransition):
		// Stripe retries non-2xx responses; these will never succeed.
		h.logger.Warn("stripe settlement not applicable", "event_id", settlement.EventID, "payment_intent_id", settlement.PaymentIntentID, "err", err)
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"status": "ignored"})
		return
	case err != nil:
		h.writeError(w, r, err)
		return
	}

	h.logger.Info("stripe settlement applied",
		"event_id", settlement.EventID,
		"event_type", settlement.EventType,
		"booking_id", b.ID,
		"payment_status", b.PaymentStatus,
		"changed", changed,
	)
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"status": "ok", "paymentStatus": b.PaymentStatus})
}
