// Package storage persists businesses, services and bookings and provides the
// per-business exclusive scope used when committing a booking.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/garagebook/garagebook/services/booking-service/internal/availability"
	"github.com/garagebook/garagebook/services/booking-service/internal/model"
	"github.com/garagebook/garagebook/services/booking-service/internal/outbox"
	"github.com/garagebook/garagebook/services/booking-service/internal/schedule"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrLockTimeout means the business scope could not be acquired in time.
	ErrLockTimeout = errors.New("timed out waiting for business lock")
	// ErrOverlap is raised by the storage-level overlap guard.
	ErrOverlap = errors.New("overlapping blocking booking")
	// ErrSerialization is a transient conflict; the whole transaction may be retried.
	ErrSerialization = errors.New("serialization failure")
	ErrDuplicate     = errors.New("duplicate")
)

type BookingFilter struct {
	Status *model.Status
	From   *time.Time
	To     *time.Time
	Page   int
	Limit  int
}

// Normalize applies paging defaults: page 1, 50 items, at most 200.
func (f BookingFilter) Normalize() BookingFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = 50
	}
	if f.Limit > 200 {
		f.Limit = 200
	}
	return f
}

func (f BookingFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

// Store is the persistence boundary. Reads outside a transaction are snapshots.
type Store interface {
	// GetBusiness returns the business with its weekly hours and exceptions.
	GetBusiness(ctx context.Context, id string) (model.Business, error)
	GetService(ctx context.Context, id string) (model.Service, error)
	// FindBlockingIntervals lists blocking bookings of a business overlapping [from, to).
	FindBlockingIntervals(ctx context.Context, businessID string, from, to time.Time) ([]availability.Interval, error)
	GetBooking(ctx context.Context, id string) (model.BookingDetail, error)
	ListBookings(ctx context.Context, businessID string, f BookingFilter) ([]model.BookingDetail, int, error)
	ListBookingsByClient(ctx context.Context, userID string) ([]model.BookingDetail, error)
	// ListPlanning returns bookings with the given statuses fully inside [from, to).
	ListPlanning(ctx context.Context, businessID string, statuses []model.Status, from, to time.Time) ([]model.BookingDetail, error)
	FindBookingByPaymentIntent(ctx context.Context, intentID string) (model.Booking, error)
	SetPaymentIntent(ctx context.Context, bookingID, intentID string) error

	ReplaceWeeklyHours(ctx context.Context, businessID string, hours []schedule.WeeklyHours) error
	// UpsertException stores ex, replacing any exception on the same date.
	UpsertException(ctx context.Context, businessID string, ex schedule.Exception) (schedule.Exception, error)
	DeleteException(ctx context.Context, businessID, exceptionID string) error

	// WithBusinessLock runs fn while holding the exclusive scope of businessID.
	// fn's writes commit atomically after it returns nil and are discarded otherwise.
	// It fails with ErrLockTimeout when the scope is not acquired within wait.
	WithBusinessLock(ctx context.Context, businessID string, wait time.Duration, fn func(Tx) error) error
	// InTx runs fn in a transaction without the business scope.
	InTx(ctx context.Context, fn func(Tx) error) error
}

// Tx is the unit of work handed to WithBusinessLock and InTx.
type Tx interface {
	HasBlockingOverlap(ctx context.Context, businessID string, start, end time.Time) (bool, error)
	// InsertBooking assigns ID and timestamps on b.
	InsertBooking(ctx context.Context, b *model.Booking) error
	GetBookingForUpdate(ctx context.Context, id string) (model.Booking, error)
	UpdateBookingStatus(ctx context.Context, id string, status model.Status, internalNote *string) (model.Booking, error)
	UpdatePaymentStatus(ctx context.Context, id string, status model.PaymentStatus) (model.Booking, error)
	AppendEvent(ctx context.Context, evt outbox.Event) error
	// RecordEvent stores an externally sourced event id; false means it was seen before.
	RecordEvent(ctx context.Context, eventID, eventType string) (bool, error)
}
