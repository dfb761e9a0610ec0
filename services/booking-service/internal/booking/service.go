package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/garagebook/garagebook/services/booking-service/internal/availability"
	"github.com/garagebook/garagebook/services/booking-service/internal/lifecycle"
	"github.com/garagebook/garagebook/services/booking-service/internal/metrics"
	"github.com/garagebook/garagebook/services/booking-service/internal/model"
	"github.com/garagebook/garagebook/services/booking-service/internal/schedule"
	"github.com/garagebook/garagebook/services/booking-service/internal/storage"
	"github.com/garagebook/garagebook/services/booking-service/internal/temporal"
)

// PaymentGateway creates the online payment for a booking that requires one.
type PaymentGateway interface {
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
}

type IntentRequest struct {
	BookingID          string
	BusinessID         string
	AmountCents        int64
	Description        string
	CustomerEmail      string
	DestinationAccount string
}

type Intent struct {
	ID           string
	ClientSecret string
}

type Config struct {
	// MaxDays bounds multi-day slot queries.
	MaxDays int
	Now     func() time.Time
}

type Service struct {
	store    storage.Store
	arbiter  *Arbiter
	payments PaymentGateway
	logger   *slog.Logger
	cfg      Config
}

// NewService wires the booking operations. payments may be nil, in which case
// bookings that require payment are created without an intent.
func NewService(store storage.Store, arbiter *Arbiter, payments PaymentGateway, logger *slog.Logger, cfg Config) *Service {
	if cfg.MaxDays <= 0 {
		cfg.MaxDays = 14
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, arbiter: arbiter, payments: payments, logger: logger, cfg: cfg}
}

type SlotQuery struct {
	BusinessID string
	ServiceID  string
	Date       temporal.Date
	Days       int
}

// Slots returns the bookable slots of a single day.
func (s *Service) Slots(ctx context.Context, q SlotQuery) (availability.DaySlots, error) {
	q.Days = 1
	days, err := s.SlotsRange(ctx, q)
	if err != nil {
		return availability.DaySlots{}, err
	}
	return days[0], nil
}

// SlotsRange returns one entry per day starting at q.Date. Each day is computed
// independently from a snapshot of blocking bookings.
func (s *Service) SlotsRange(ctx context.Context, q SlotQuery) ([]availability.DaySlots, error) {
	started := time.Now()
	defer func() { metrics.ObserveSlotQuery(time.Since(started)) }()

	if q.Date.IsZero() {
		return nil, fmt.Errorf("%w: date is required", ErrValidation)
	}
	if q.Days == 0 {
		q.Days = 1
	}
	if q.Days < 1 || q.Days > s.cfg.MaxDays {
		return nil, fmt.Errorf("%w: days must be between 1 and %d", ErrValidation, s.cfg.MaxDays)
	}

	biz, svc, err := loadBookable(ctx, s.store, q.BusinessID, q.ServiceID)
	if err != nil {
		return nil, err
	}
	loc, err := temporal.LoadZone(biz.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	from, _ := temporal.DayBounds(q.Date, loc)
	_, to := temporal.DayBounds(q.Date.AddDays(q.Days-1), loc)
	busy, err := s.store.FindBlockingIntervals(ctx, biz.ID, from, to)
	if err != nil {
		return nil, fmt.Errorf("%w: load bookings: %v", ErrUnavailable, err)
	}

	now := s.cfg.Now()
	out := make([]availability.DaySlots, 0, q.Days)
	for i := 0; i < q.Days; i++ {
		date := q.Date.AddDays(i)
		dayStart, dayEnd := temporal.DayBounds(date, loc)
		slots := availability.ForDay(availability.Day{
			Date:     date,
			Hours:    schedule.Resolve(biz.Schedule, date),
			Location: loc,
			Duration: svc.Duration(),
			Busy:     availability.Clip(busy, dayStart, dayEnd),
			Now:      now,
		})
		if slots == nil {
			slots = []availability.Slot{}
		}
		out = append(out, availability.DaySlots{Date: date, Label: temporal.DayLabel(date), Slots: slots})
	}
	return out, nil
}

// PaymentInfo is what the client needs to complete an online payment.
type PaymentInfo struct {
	ClientSecret string
	AmountCents  int64
}

type CreateResult struct {
	Booking model.BookingDetail
	// Payment is nil when nothing is due online or the intent could not be created.
	Payment *PaymentInfo
}

// Create commits a booking through the arbiter, then opens a payment intent when
// one is required. Payment failures are logged and never undo the booking.
func (s *Service) Create(ctx context.Context, req CreateRequest) (CreateResult, error) {
	created, err := s.arbiter.Create(ctx, req)
	if err != nil {
		return CreateResult{}, err
	}
	res := CreateResult{Booking: created.Booking}
	if !created.Decision.Required() || created.Decision.DepositCents == nil || s.payments == nil {
		return res, nil
	}

	b := created.Booking
	intent, err := s.payments.CreateIntent(ctx, IntentRequest{
		BookingID:          b.ID,
		BusinessID:         b.BusinessID,
		AmountCents:        *created.Decision.DepositCents,
		Description:        fmt.Sprintf("%s - %s", b.Business.Name, b.Service.Name),
		CustomerEmail:      b.Client.Email,
		DestinationAccount: b.Business.StripeAccountID,
	})
	if err != nil {
		s.logger.Error("payment intent creation failed", "booking_id", b.ID, "err", err)
		return res, nil
	}
	if err := s.store.SetPaymentIntent(ctx, b.ID, intent.ID); err != nil {
		s.logger.Error("payment intent not recorded", "booking_id", b.ID, "payment_intent_id", intent.ID, "err", err)
	} else {
		res.Booking.PaymentIntentID = intent.ID
	}
	res.Payment = &PaymentInfo{ClientSecret: intent.ClientSecret, AmountCents: *created.Decision.DepositCents}
	return res, nil
}

// UpdateStatus applies an owner status change to a booking of businessID. When
// the status is unchanged only the internal note, if given, is written.
func (s *Service) UpdateStatus(ctx context.Context, businessID, bookingID string, to model.Status, internalNote *string) (model.BookingDetail, error) {
	snap, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return model.BookingDetail{}, notFound("booking", err)
	}
	if snap.BusinessID != businessID {
		return model.BookingDetail{}, fmt.Errorf("%w: booking", ErrNotFound)
	}

	var updated model.Booking
	err = s.store.InTx(ctx, func(tx storage.Tx) error {
		cur, err := tx.GetBookingForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		changed, err := lifecycle.OwnerTransition(cur.Status, to)
		if err != nil {
			return err
		}
		if !changed {
			updated = cur
			if internalNote == nil {
				return nil
			}
		}
		updated, err = tx.UpdateBookingStatus(ctx, bookingID, to, internalNote)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}

		p := newEventPayload(model.BookingDetail{Booking: updated, Business: snap.Business, Service: snap.Service})
		p.PreviousStatus = string(cur.Status)
		if err := appendEvent(ctx, tx, EventStatusChanged, p); err != nil {
			return err
		}
		if to == model.StatusCancelled {
			p.CancelledBy = "owner"
			return appendEvent(ctx, tx, EventCancelled, p)
		}
		return nil
	})
	if err != nil {
		return model.BookingDetail{}, s.mapLifecycleErr(err)
	}
	if updated.Status != snap.Status {
		metrics.IncStatusChange(string(updated.Status))
	}
	return model.BookingDetail{Booking: updated, Business: snap.Business, Service: snap.Service}, nil
}

// Cancel lets the client who made a booking cancel it while it still holds its slot.
// Bookings of other clients are reported as not found.
func (s *Service) Cancel(ctx context.Context, clientUserID, bookingID string) (model.BookingDetail, error) {
	if strings.TrimSpace(clientUserID) == "" {
		return model.BookingDetail{}, fmt.Errorf("%w: booking", ErrNotFound)
	}
	snap, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return model.BookingDetail{}, notFound("booking", err)
	}
	if snap.Client.UserID != clientUserID {
		return model.BookingDetail{}, fmt.Errorf("%w: booking", ErrNotFound)
	}

	var updated model.Booking
	err = s.store.InTx(ctx, func(tx storage.Tx) error {
		cur, err := tx.GetBookingForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if err := lifecycle.ClientCancel(cur.Status); err != nil {
			return err
		}
		updated, err = tx.UpdateBookingStatus(ctx, bookingID, model.StatusCancelled, nil)
		if err != nil {
			return err
		}
		p := newEventPayload(model.BookingDetail{Booking: updated, Business: snap.Business, Service: snap.Service})
		p.PreviousStatus = string(cur.Status)
		p.CancelledBy = "client"
		return appendEvent(ctx, tx, EventCancelled, p)
	})
	if err != nil {
		return model.BookingDetail{}, s.mapLifecycleErr(err)
	}
	metrics.IncStatusChange(string(model.StatusCancelled))
	return model.BookingDetail{Booking: updated, Business: snap.Business, Service: snap.Service}, nil
}

// Settlement is a payment outcome reported by the payment provider. Either
// BookingID or PaymentIntentID identifies the booking.
type Settlement struct {
	EventID         string
	EventType       string
	BookingID       string
	PaymentIntentID string
	Outcome         lifecycle.Outcome
}

// ApplySettlement updates the payment status of a booking and never its booking
// status. Replayed events, identified by EventID, are ignored. The returned bool
// reports whether the payment status changed.
func (s *Service) ApplySettlement(ctx context.Context, in Settlement) (model.Booking, bool, error) {
	bookingID := strings.TrimSpace(in.BookingID)
	if bookingID == "" && in.PaymentIntentID != "" {
		b, err := s.store.FindBookingByPaymentIntent(ctx, in.PaymentIntentID)
		if err != nil {
			return model.Booking{}, false, notFound("booking", err)
		}
		bookingID = b.ID
	}
	if bookingID == "" {
		return model.Booking{}, false, fmt.Errorf("%w: settlement without booking reference", ErrValidation)
	}
	snap, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return model.Booking{}, false, notFound("booking", err)
	}

	var (
		result  model.Booking
		changed bool
	)
	err = s.store.InTx(ctx, func(tx storage.Tx) error {
		if in.EventID != "" {
			fresh, err := tx.RecordEvent(ctx, in.EventID, in.EventType)
			if err != nil {
				return err
			}
			if !fresh {
				result = snap.Booking
				return nil
			}
		}
		cur, err := tx.GetBookingForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		next, ok, err := lifecycle.ApplySettlement(cur.PaymentStatus, in.Outcome)
		if err != nil {
			return err
		}
		result = cur
		if !ok {
			return nil
		}
		result, err = tx.UpdatePaymentStatus(ctx, bookingID, next)
		if err != nil {
			return err
		}
		changed = true
		p := newEventPayload(model.BookingDetail{Booking: result, Business: snap.Business, Service: snap.Service})
		return appendEvent(ctx, tx, EventPaymentUpdated, p)
	})
	if errors.Is(err, storage.ErrDuplicate) {
		return snap.Booking, false, nil
	}
	if err != nil {
		return model.Booking{}, false, s.mapLifecycleErr(err)
	}
	if changed {
		metrics.IncSettlement(string(result.PaymentStatus))
	}
	return result, changed, nil
}

type Page struct {
	Items []model.BookingDetail
	Total int
	Page  int
	Limit int
}

func (p Page) Pages() int {
	if p.Limit <= 0 {
		return 0
	}
	return (p.Total + p.Limit - 1) / p.Limit
}

func (s *Service) ListForOwner(ctx context.Context, businessID string, f storage.BookingFilter) (Page, error) {
	if f.Status != nil && !f.Status.Valid() {
		return Page{}, fmt.Errorf("%w: unknown status %q", ErrValidation, *f.Status)
	}
	f = f.Normalize()
	items, total, err := s.store.ListBookings(ctx, businessID, f)
	if err != nil {
		return Page{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return Page{Items: items, Total: total, Page: f.Page, Limit: f.Limit}, nil
}

func (s *Service) ListForClient(ctx context.Context, userID string) ([]model.BookingDetail, error) {
	items, err := s.store.ListBookingsByClient(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return items, nil
}

type Planning struct {
	WeekStart temporal.Date
	WeekEnd   temporal.Date
	Bookings  []model.BookingDetail
}

var planningStatuses = append(append([]model.Status(nil), model.BlockingStatuses...), model.StatusCompleted)

// WeekPlanning lists the week's active and completed bookings. A zero weekStart
// means the Monday of the current local week.
func (s *Service) WeekPlanning(ctx context.Context, businessID string, weekStart temporal.Date) (Planning, error) {
	biz, err := s.store.GetBusiness(ctx, businessID)
	if err != nil {
		return Planning{}, notFound("business", err)
	}
	loc, err := temporal.LoadZone(biz.Timezone)
	if err != nil {
		return Planning{}, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if weekStart.IsZero() {
		today := temporal.Today(s.cfg.Now(), loc)
		weekStart = today.AddDays(-((int(today.Weekday()) + 6) % 7))
	}
	weekEnd := weekStart.AddDays(6)
	from, _ := temporal.DayBounds(weekStart, loc)
	_, to := temporal.DayBounds(weekEnd, loc)

	items, err := s.store.ListPlanning(ctx, businessID, planningStatuses, from, to)
	if err != nil {
		return Planning{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return Planning{WeekStart: weekStart, WeekEnd: weekEnd, Bookings: items}, nil
}

func (s *Service) SetWeeklyHours(ctx context.Context, businessID string, hours []schedule.WeeklyHours) error {
	if err := schedule.ValidateWeekly(hours); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := s.store.ReplaceWeeklyHours(ctx, businessID, hours); err != nil {
		return notFound("business", err)
	}
	return nil
}

type ExceptionInput struct {
	Date   temporal.Date
	Closed bool
	Open   *temporal.WallTime
	Close  *temporal.WallTime
	Reason string
}

// UpsertException stores an exception, replacing any other one on the same date.
func (s *Service) UpsertException(ctx context.Context, businessID string, in ExceptionInput) (schedule.Exception, error) {
	ex, err := schedule.NewException(in.Date, in.Closed, in.Open, in.Close, in.Reason)
	if err != nil {
		return schedule.Exception{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	saved, err := s.store.UpsertException(ctx, businessID, ex)
	if err != nil {
		return schedule.Exception{}, notFound("business", err)
	}
	return saved, nil
}

func (s *Service) DeleteException(ctx context.Context, businessID, exceptionID string) error {
	if err := s.store.DeleteException(ctx, businessID, exceptionID); err != nil {
		return notFound("exception", err)
	}
	return nil
}

func (s *Service) mapLifecycleErr(err error) error {
	switch {
	case errors.Is(err, lifecycle.ErrTerminal),
		errors.Is(err, lifecycle.ErrBackward),
		errors.Is(err, lifecycle.ErrPaymentNotOwed):
		return fmt.Errorf("%w: %v", ErrInvalidTransition, err)
	case errors.Is(err, lifecycle.ErrUnknownStatus), errors.Is(err, lifecycle.ErrUnknownOutcome):
		return fmt.Errorf("%w: %v", ErrValidation, err)
	case errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("%w: booking", ErrNotFound)
	case errors.Is(err, storage.ErrLockTimeout), errors.Is(err, storage.ErrSerialization):
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	s.logger.Error("booking update failed", "err", err)
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
