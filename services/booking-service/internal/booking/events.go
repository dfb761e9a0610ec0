package booking

import (
	"context"
	"encoding/json"
	"time"

	"github.com/garagebook/garagebook/services/booking-service/internal/model"
	"github.com/garagebook/garagebook/services/booking-service/internal/outbox"
	"github.com/garagebook/garagebook/services/booking-service/internal/storage"
	"github.com/garagebook/garagebook/services/booking-service/internal/temporal"
)

const (
	EventCreated        = "booking.created.v1"
	EventCancelled      = "booking.cancelled.v1"
	EventStatusChanged  = "booking.status_changed.v1"
	EventPaymentUpdated = "booking.payment_updated.v1"
)

// eventPayload is the booking snapshot carried by every booking event.
type eventPayload struct {
	BookingID      string `json:"booking_id"`
	BusinessID     string `json:"business_id"`
	BusinessName   string `json:"business_name"`
	BusinessEmail  string `json:"business_email,omitempty"`
	Timezone       string `json:"timezone"`
	ServiceID      string `json:"service_id"`
	ServiceName    string `json:"service_name"`
	DurationMin    int    `json:"duration_min"`
	ClientName     string `json:"client_name"`
	ClientEmail    string `json:"client_email"`
	ClientPhone    string `json:"client_phone,omitempty"`
	LicensePlate   string `json:"license_plate"`
	StartTime      string `json:"start_time"`
	EndTime        string `json:"end_time"`
	LocalDate      string `json:"local_date"`
	LocalTime      string `json:"local_time"`
	Status         string `json:"status"`
	PreviousStatus string `json:"previous_status,omitempty"`
	PaymentStatus  string `json:"payment_status"`
	PriceCents     int64  `json:"price_cents"`
	DepositCents   *int64 `json:"deposit_cents,omitempty"`
	CancelledBy    string `json:"cancelled_by,omitempty"`
}

func newEventPayload(d model.BookingDetail) eventPayload {
	loc, err := temporal.LoadZone(d.Business.Timezone)
	if err != nil {
		loc = time.UTC
	}
	return eventPayload{
		BookingID:     d.ID,
		BusinessID:    d.BusinessID,
		BusinessName:  d.Business.Name,
		BusinessEmail: d.Business.Email,
		Timezone:      loc.String(),
		ServiceID:     d.ServiceID,
		ServiceName:   d.Service.Name,
		DurationMin:   d.Service.DurationMin,
		ClientName:    d.Client.Name,
		ClientEmail:   d.Client.Email,
		ClientPhone:   d.Client.Phone,
		LicensePlate:  d.Client.LicensePlate,
		StartTime:     d.Start.UTC().Format(time.RFC3339),
		EndTime:       d.End.UTC().Format(time.RFC3339),
		LocalDate:     temporal.FormatDate(d.Start, loc),
		LocalTime:     temporal.FormatTime(d.Start, loc),
		Status:        string(d.Status),
		PaymentStatus: string(d.PaymentStatus),
		PriceCents:    d.PriceCents,
		DepositCents:  d.DepositCents,
	}
}

func appendEvent(ctx context.Context, tx storage.Tx, eventType string, p eventPayload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return tx.AppendEvent(ctx, outbox.Event{
		AggregateType: "booking",
		AggregateID:   p.BookingID,
		EventType:     eventType,
		Payload:       body,
	})
}
