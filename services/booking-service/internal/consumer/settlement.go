package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/garagebook/garagebook/libs/kafkax"
	"github.com/garagebook/garagebook/services/booking-service/internal/booking"
	"github.com/garagebook/garagebook/services/booking-service/internal/lifecycle"
	"github.com/garagebook/garagebook/services/booking-service/internal/model"
	"github.com/segmentio/kafka-go"
)

// SettlementMessage is the payload of the payment settlement topic.
type SettlementMessage struct {
	BookingID       string `json:"booking_id"`
	PaymentIntentID string `json:"payment_intent_id"`
	Outcome         string `json:"outcome"`
}

// Settler applies settlements; *booking.Service implements it.
type Settler interface {
	ApplySettlement(ctx context.Context, in booking.Settlement) (model.Booking, bool, error)
}

// SettlementHandler feeds settlement messages into s. Rejections that retrying
// cannot fix are logged and dropped.
func SettlementHandler(s Settler, logger *slog.Logger) Handler {
	return func(ctx context.Context, meta kafkax.EventMeta, msg kafka.Message) error {
		var m SettlementMessage
		if err := json.Unmarshal(msg.Value, &m); err != nil {
			logger.Warn("undecodable settlement dropped", "event_id", meta.EventID, "offset", msg.Offset, "err", err)
			return nil
		}
		b, changed, err := s.ApplySettlement(ctx, booking.Settlement{
			EventID:         meta.EventID,
			EventType:       meta.EventType,
			BookingID:       m.BookingID,
			PaymentIntentID: m.PaymentIntentID,
			Outcome:         lifecycle.Outcome(m.Outcome),
		})
		switch {
		case errors.Is(err, booking.ErrNotFound),
			errors.Is(err, booking.ErrInvalidTransition),
			errors.Is(err, booking.ErrValidation):
			logger.Warn("settlement rejected", "event_id", meta.EventID, "booking_id", m.BookingID, "err", err)
			return nil
		case err != nil:
			return err
		}
		logger.Info("settlement applied",
			"event_id", meta.EventID,
			"booking_id", b.ID,
			"payment_status", b.PaymentStatus,
			"changed", changed,
		)
		return nil
	}
}
