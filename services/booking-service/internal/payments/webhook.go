package payments

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/garagebook/garagebook/services/booking-service/internal/booking"
	"github.com/garagebook/garagebook/services/booking-service/internal/lifecycle"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

const (
	MetadataBookingID  = "booking_id"
	MetadataBusinessID = "business_id"

	EventIntentSucceeded = "payment_intent.succeeded"
	EventIntentFailed    = "payment_intent.payment_failed"
)

var (
	ErrInvalidSignature = errors.New("invalid stripe signature")
	ErrInvalidPayload   = errors.New("invalid stripe payload")
)

// ParseWebhook verifies a Stripe webhook and converts payment intent outcomes
// into settlements. ok is false for event types that carry no settlement.
func ParseWebhook(payload []byte, sigHeader, secret string, tolerance time.Duration) (booking.Settlement, bool, error) {
	evt, err := webhook.ConstructEventWithOptions(payload, sigHeader, secret, webhook.ConstructEventOptions{
		Tolerance:                tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return booking.Settlement{}, false, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	var outcome lifecycle.Outcome
	switch string(evt.Type) {
	case EventIntentSucceeded:
		outcome = lifecycle.OutcomePaid
	case EventIntentFailed:
		outcome = lifecycle.OutcomeFailed
	default:
		return booking.Settlement{EventID: evt.ID, EventType: string(evt.Type)}, false, nil
	}

	var pi stripe.PaymentIntent
	if evt.Data == nil || json.Unmarshal(evt.Data.Raw, &pi) != nil {
		return booking.Settlement{}, false, fmt.Errorf("%w: payment intent", ErrInvalidPayload)
	}
	s := booking.Settlement{
		EventID:         evt.ID,
		EventType:       string(evt.Type),
		BookingID:       strings.TrimSpace(pi.Metadata[MetadataBookingID]),
		PaymentIntentID: pi.ID,
		Outcome:         outcome,
	}
	if s.BookingID == "" && s.PaymentIntentID == "" {
		return booking.Settlement{}, false, fmt.Errorf("%w: no booking reference", ErrInvalidPayload)
	}
	return s, true, nil
}
