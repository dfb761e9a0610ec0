package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/garagebook/garagebook/services/booking-service/internal/model"
	"github.com/garagebook/garagebook/services/booking-service/internal/outbox"
	"github.com/garagebook/garagebook/services/booking-service/internal/schedule"
	"github.com/garagebook/garagebook/services/booking-service/internal/temporal"
	"github.com/stretchr/testify/require"
)

func newTestStore() *MemoryStore {
	s := NewMemoryStore()
	s.PutBusiness(model.Business{ID: "biz-1", Name: "Garage du Centre", Timezone: "Europe/Paris", Active: true})
	s.PutService(model.Service{ID: "svc-1", BusinessID: "biz-1", Name: "Vidange", DurationMin: 60, PriceCents: 7900, Active: true})
	return s
}

func pendingBooking(start time.Time) *model.Booking {
	return &model.Booking{
		BusinessID:    "biz-1",
		ServiceID:     "svc-1",
		Client:        model.Client{Name: "Jean", Email: "jean@example.com", LicensePlate: "AB-123-CD"},
		Start:         start,
		End:           start.Add(time.Hour),
		Status:        model.StatusPending,
		PaymentStatus: model.PaymentNotRequired,
		PriceCents:    7900,
	}
}

func TestMemoryStore_CommitAppliesInsertAndEvent(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	start := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	var id string
	err := s.WithBusinessLock(ctx, "biz-1", time.Second, func(tx Tx) error {
		b := pendingBooking(start)
		if err := tx.InsertBooking(ctx, b); err != nil {
			return err
		}
		id = b.ID
		return tx.AppendEvent(ctx, outbox.Event{AggregateType: "booking", AggregateID: b.ID, EventType: "booking.created.v1"})
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := s.GetBooking(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "Garage du Centre", got.Business.Name)
	require.Equal(t, "Vidange", got.Service.Name)

	events := s.Events()
	require.Len(t, events, 1)
	require.NotEmpty(t, events[0].EventID)

	busy, err := s.FindBlockingIntervals(ctx, "biz-1", start.Add(-time.Hour), start.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, busy, 1)
}

func TestMemoryStore_FailedScopeLeavesNoTrace(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithBusinessLock(ctx, "biz-1", time.Second, func(tx Tx) error {
		if err := tx.InsertBooking(ctx, pendingBooking(time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC))); err != nil {
			return err
		}
		if err := tx.AppendEvent(ctx, outbox.Event{EventType: "booking.created.v1"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	items, total, err := s.ListBookings(ctx, "biz-1", BookingFilter{})
	require.NoError(t, err)
	require.Zero(t, total)
	require.Empty(t, items)
	require.Empty(t, s.Events())
}

func TestMemoryStore_LockTimeout(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.WithBusinessLock(ctx, "biz-1", time.Second, func(Tx) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	err := s.WithBusinessLock(ctx, "biz-1", 20*time.Millisecond, func(Tx) error {
		t.Fatal("scope must not be entered while held")
		return nil
	})
	require.ErrorIs(t, err, ErrLockTimeout)

	// Other businesses are not serialized behind biz-1.
	s.PutBusiness(model.Business{ID: "biz-2", Active: true})
	require.NoError(t, s.WithBusinessLock(ctx, "biz-2", 20*time.Millisecond, func(Tx) error { return nil }))

	close(release)
	require.NoError(t, <-done)
	require.NoError(t, s.WithBusinessLock(ctx, "biz-1", 20*time.Millisecond, func(Tx) error { return nil }))
}

func TestMemoryStore_UnknownBusiness(t *testing.T) {
	s := newTestStore()
	err := s.WithBusinessLock(context.Background(), "nope", time.Second, func(Tx) error { return nil })
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_OverlapGuardOnCommit(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	start := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	existing := pendingBooking(start.Add(30 * time.Minute))
	existing.ID = "existing"
	s.PutBooking(*existing)

	// The guard applies even when the caller skips its own overlap check.
	err := s.InTx(ctx, func(tx Tx) error {
		return tx.InsertBooking(ctx, pendingBooking(start))
	})
	require.ErrorIs(t, err, ErrOverlap)

	// Touching intervals are fine.
	err = s.InTx(ctx, func(tx Tx) error {
		return tx.InsertBooking(ctx, pendingBooking(start.Add(90*time.Minute)))
	})
	require.NoError(t, err)

	// Cancelled bookings do not block.
	cancelled := pendingBooking(start.Add(4 * time.Hour))
	cancelled.ID = "cancelled"
	cancelled.Status = model.StatusCancelled
	s.PutBooking(*cancelled)
	err = s.InTx(ctx, func(tx Tx) error {
		overlap, err := tx.HasBlockingOverlap(ctx, "biz-1", cancelled.Start, cancelled.End)
		require.False(t, overlap)
		return err
	})
	require.NoError(t, err)
}

func TestMemoryStore_RecordEventDedupes(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	record := func() bool {
		var fresh bool
		require.NoError(t, s.InTx(ctx, func(tx Tx) error {
			var err error
			fresh, err = tx.RecordEvent(ctx, "evt_1", "payment_intent.succeeded")
			return err
		}))
		return fresh
	}
	require.True(t, record())
	require.False(t, record())
}

func TestMemoryStore_UpdatesStatusAndNote(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	b := pendingBooking(time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC))
	b.ID = "b1"
	s.PutBooking(*b)

	note := "client called"
	require.NoError(t, s.InTx(ctx, func(tx Tx) error {
		_, err := tx.UpdateBookingStatus(ctx, "b1", model.StatusConfirmed, &note)
		if err != nil {
			return err
		}
		_, err = tx.UpdatePaymentStatus(ctx, "b1", model.PaymentPaid)
		return err
	}))

	got, err := s.GetBooking(ctx, "b1")
	require.NoError(t, err)
	require.Equal(t, model.StatusConfirmed, got.Status)
	require.Equal(t, model.PaymentPaid, got.PaymentStatus)
	require.Equal(t, note, got.InternalNote)

	_, err = s.GetBooking(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ListBookingsPaging(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	for i, id := range []string{"b1", "b2", "b3"} {
		b := pendingBooking(base.Add(time.Duration(i) * 2 * time.Hour))
		b.ID = id
		s.PutBooking(*b)
	}

	items, total, err := s.ListBookings(ctx, "biz-1", BookingFilter{Page: 2, Limit: 2})
	require.NoError(t, err)
	require.Equal(t, 3, total)
	require.Len(t, items, 1)
	require.Equal(t, "b3", items[0].ID)

	confirmed := model.StatusConfirmed
	_, total, err = s.ListBookings(ctx, "biz-1", BookingFilter{Status: &confirmed})
	require.NoError(t, err)
	require.Zero(t, total)
}

func TestMemoryStore_ExceptionUpsertReplacesSameDate(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	date := temporal.NewDate(2026, 3, 9)

	first, err := s.UpsertException(ctx, "biz-1", schedule.ExceptionFromFields("", date, true, nil, nil, "Inventaire"))
	require.NoError(t, err)
	openAt, closeAt := temporal.MustWallTime("10:00"), temporal.MustWallTime("12:00")
	second, err := s.UpsertException(ctx, "biz-1", schedule.ExceptionFromFields("", date, false, &openAt, &closeAt, ""))
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	biz, err := s.GetBusiness(ctx, "biz-1")
	require.NoError(t, err)
	require.Len(t, biz.Schedule.Exceptions, 1)
	require.False(t, biz.Schedule.Exceptions[0].Hours.IsClosed())

	require.NoError(t, s.DeleteException(ctx, "biz-1", second.ID))
	require.ErrorIs(t, s.DeleteException(ctx, "biz-1", second.ID), ErrNotFound)
}

func TestBookingFilterNormalize(t *testing.T) {
	f := BookingFilter{}.Normalize()
	if f.Page != 1 || f.Limit != 50 || f.Offset() != 0 {
		t.Fatalf("unexpected defaults: %+v", f)
	}
	f = BookingFilter{Page: 3, Limit: 500}.Normalize()
	if f.Limit != 200 || f.Offset() != 400 {
		t.Fatalf("unexpected clamp: %+v offset=%d", f, f.Offset())
	}
}

func TestMemoryStore_PendingEventsAreBoundedAndAcked(t *testing.T) {
	s := newTestStore()
	s.maxEvents = 2
	ctx := context.Background()

	for _, id := range []string{"evt-1", "evt-2", "evt-3"} {
		err := s.InTx(ctx, func(tx Tx) error {
			return tx.AppendEvent(ctx, outbox.Event{EventID: id, EventType: "booking.created.v1"})
		})
		require.NoError(t, err)
	}

	pending := s.PendingEvents(0)
	require.Len(t, pending, 2)
	require.Equal(t, "evt-2", pending[0].EventID)
	require.Equal(t, "evt-3", pending[1].EventID)

	batch := s.PendingEvents(1)
	require.Len(t, batch, 1)
	s.AckEvents([]string{batch[0].EventID})

	rest := s.Events()
	require.Len(t, rest, 1)
	require.Equal(t, "evt-3", rest[0].EventID)
}
