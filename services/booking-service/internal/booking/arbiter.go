package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	otelx "github.com/garagebook/garagebook/libs/otel"
	"github.com/garagebook/garagebook/services/booking-service/internal/availability"
	"github.com/garagebook/garagebook/services/booking-service/internal/metrics"
	"github.com/garagebook/garagebook/services/booking-service/internal/model"
	"github.com/garagebook/garagebook/services/booking-service/internal/payment"
	"github.com/garagebook/garagebook/services/booking-service/internal/schedule"
	"github.com/garagebook/garagebook/services/booking-service/internal/storage"
	"github.com/garagebook/garagebook/services/booking-service/internal/temporal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type CreateRequest struct {
	BusinessID string
	ServiceID  string
	Start      time.Time
	Client     model.Client
}

// Created is a committed booking plus the payment decision taken for it.
type Created struct {
	Booking  model.BookingDetail
	Decision payment.Decision
}

type ArbiterConfig struct {
	// LockWait bounds the wait for the business scope.
	LockWait time.Duration
	// MaxAttempts bounds retries of serialization failures. Conflicts are never retried.
	MaxAttempts int
	Now         func() time.Time
}

// Arbiter commits new bookings so that no two blocking bookings of a business
// overlap, whatever the interleaving of concurrent requests.
type Arbiter struct {
	store  storage.Store
	logger *slog.Logger
	cfg    ArbiterConfig
}

func NewArbiter(store storage.Store, logger *slog.Logger, cfg ArbiterConfig) *Arbiter {
	if cfg.LockWait <= 0 {
		cfg.LockWait = 3 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Arbiter{store: store, logger: logger, cfg: cfg}
}

var errSlotTaken = errors.New("overlapping booking found")

// Create validates req, decides the payment and commits a PENDING booking.
// A lost race returns ErrConflict; a scope that cannot be acquired in time
// returns ErrUnavailable. Calls are not idempotent.
func (a *Arbiter) Create(ctx context.Context, req CreateRequest) (Created, error) {
	ctx, span := otelx.Tracer("booking-service").Start(ctx, "booking.create")
	defer span.End()
	span.SetAttributes(
		attribute.String("booking.business_id", req.BusinessID),
		attribute.String("booking.service_id", req.ServiceID),
	)

	created, err := a.create(ctx, req)
	metrics.IncCreateAttempt(outcomeLabel(err))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcomeLabel(err))
	}
	return created, err
}

func (a *Arbiter) create(ctx context.Context, req CreateRequest) (Created, error) {
	req.BusinessID = strings.TrimSpace(req.BusinessID)
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	if req.BusinessID == "" || req.ServiceID == "" {
		return Created{}, fmt.Errorf("%w: business and service are required", ErrValidation)
	}
	if req.Start.IsZero() {
		return Created{}, fmt.Errorf("%w: start time is required", ErrValidation)
	}

	biz, svc, err := loadBookable(ctx, a.store, req.BusinessID, req.ServiceID)
	if err != nil {
		return Created{}, err
	}
	loc, err := temporal.LoadZone(biz.Timezone)
	if err != nil {
		return Created{}, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	start := req.Start.UTC()
	end := start.Add(svc.Duration())
	if start.Before(a.cfg.Now()) {
		return Created{}, fmt.Errorf("%w: start time is in the past", ErrValidation)
	}

	date := temporal.DateOf(start.In(loc))
	day := availability.Day{
		Date:     date,
		Hours:    schedule.Resolve(biz.Schedule, date),
		Location: loc,
		Duration: svc.Duration(),
	}
	if !day.Fits(start, end) {
		return Created{}, fmt.Errorf("%w: %s is outside opening hours (%s)", ErrValidation, temporal.FormatTime(start, loc), day.Hours)
	}

	decision, err := payment.Decide(biz, svc.PriceCents)
	if err != nil {
		return Created{}, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	draft := model.Booking{
		BusinessID:    biz.ID,
		ServiceID:     svc.ID,
		Client:        req.Client,
		Start:         start,
		End:           end,
		Status:        model.StatusPending,
		PaymentStatus: decision.Status,
		PriceCents:    svc.PriceCents,
		DepositCents:  decision.DepositCents,
	}

	commit := func() (model.Booking, error) {
		b := draft
		err := a.commit(ctx, biz, svc, &b)
		if errors.Is(err, storage.ErrSerialization) {
			a.logger.Warn("booking commit serialization failure; retrying", "business_id", biz.ID, "err", err)
			return model.Booking{}, err
		}
		if err != nil {
			return model.Booking{}, backoff.Permanent(err)
		}
		return b, nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 20 * time.Millisecond
	policy.MaxInterval = 250 * time.Millisecond
	b, err := backoff.Retry(ctx, commit,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(a.cfg.MaxAttempts)),
	)
	if err != nil {
		return Created{}, a.classify(biz.ID, err)
	}

	return Created{
		Booking:  model.BookingDetail{Booking: b, Business: biz, Service: svc},
		Decision: decision,
	}, nil
}

// commit runs the read-check-write sequence inside the business scope.
func (a *Arbiter) commit(ctx context.Context, biz model.Business, svc model.Service, b *model.Booking) error {
	var held time.Time
	defer func() {
		if !held.IsZero() {
			metrics.ObserveLockHeld(time.Since(held))
		}
	}()
	return a.store.WithBusinessLock(ctx, biz.ID, a.cfg.LockWait, func(tx storage.Tx) error {
		held = time.Now()
		overlap, err := tx.HasBlockingOverlap(ctx, biz.ID, b.Start, b.End)
		if err != nil {
			return err
		}
		if overlap {
			return errSlotTaken
		}
		if err := tx.InsertBooking(ctx, b); err != nil {
			return err
		}
		return appendEvent(ctx, tx, EventCreated, newEventPayload(model.BookingDetail{Booking: *b, Business: biz, Service: svc}))
	})
}

func (a *Arbiter) classify(businessID string, err error) error {
	switch {
	case errors.Is(err, errSlotTaken), errors.Is(err, storage.ErrOverlap):
		return ErrConflict
	case errors.Is(err, storage.ErrLockTimeout):
		a.logger.Warn("business lock wait expired", "business_id", businessID, "err", err)
		return fmt.Errorf("%w: business is busy, retry", ErrUnavailable)
	case errors.Is(err, storage.ErrSerialization):
		a.logger.Error("booking commit kept failing serialization", "business_id", businessID, "err", err)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	case errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("%w: business", ErrNotFound)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}
	a.logger.Error("booking commit failed", "business_id", businessID, "err", err)
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// loadBookable returns an active business and one of its active services whose
// duration is a positive multiple of the slot step.
func loadBookable(ctx context.Context, store storage.Store, businessID, serviceID string) (model.Business, model.Service, error) {
	biz, err := store.GetBusiness(ctx, businessID)
	if err != nil {
		return model.Business{}, model.Service{}, notFound("business", err)
	}
	if !biz.Active {
		return model.Business{}, model.Service{}, fmt.Errorf("%w: business", ErrNotFound)
	}
	svc, err := store.GetService(ctx, serviceID)
	if err != nil {
		return model.Business{}, model.Service{}, notFound("service", err)
	}
	if !svc.Active || svc.BusinessID != biz.ID {
		return model.Business{}, model.Service{}, fmt.Errorf("%w: service", ErrNotFound)
	}
	step := int(availability.Step / time.Minute)
	if svc.DurationMin <= 0 || svc.DurationMin%step != 0 {
		return model.Business{}, model.Service{}, fmt.Errorf("%w: service duration %d is not a multiple of %d minutes", ErrValidation, svc.DurationMin, step)
	}
	return biz, svc, nil
}

func notFound(what string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	}
	return fmt.Errorf("%w: load %s: %v", ErrUnavailable, what, err)
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "created"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrValidation), errors.Is(err, ErrNotFound):
		return "invalid"
	case errors.Is(err, ErrConfiguration):
		return "misconfigured"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	}
	return "error"
}
