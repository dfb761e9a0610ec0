package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/garagebook/garagebook/services/booking-service/internal/availability"
	"github.com/garagebook/garagebook/services/booking-service/internal/model"
	"github.com/garagebook/garagebook/services/booking-service/internal/outbox"
	"github.com/garagebook/garagebook/services/booking-service/internal/schedule"
	"github.com/google/uuid"
)

// MemoryStore is an in-process Store used for local runs and tests.
// Each business has a one-slot semaphore acting as its exclusive scope.
type MemoryStore struct {
	mu         sync.RWMutex
	businesses map[string]model.Business
	services   map[string]model.Service
	bookings   map[string]model.Booking
	events     []outbox.Event
	maxEvents  int
	inbox      map[string]struct{}

	locksMu sync.Mutex
	locks   map[string]chan struct{}

	txMu sync.Mutex
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		businesses: map[string]model.Business{},
		services:   map[string]model.Service{},
		bookings:   map[string]model.Booking{},
		maxEvents:  DefaultMaxPendingEvents,
		inbox:      map[string]struct{}{},
		locks:      map[string]chan struct{}{},
		now:        time.Now,
	}
}

// DefaultMaxPendingEvents bounds the unpublished events a MemoryStore keeps.
// Past it the oldest events are dropped.
const DefaultMaxPendingEvents = 1000

func (s *MemoryStore) PutBusiness(b model.Business) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.businesses[b.ID] = b
}

func (s *MemoryStore) PutService(svc model.Service) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services[svc.ID] = svc
}

// PutBooking stores b as is, bypassing the overlap guard.
func (s *MemoryStore) PutBooking(b model.Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookings[b.ID] = b
}

// Events returns the committed, unpublished outbox events in append order.
func (s *MemoryStore) Events() []outbox.Event {
	return s.PendingEvents(0)
}

// PendingEvents returns up to limit unpublished events, oldest first. A limit
// of zero returns them all.
func (s *MemoryStore) PendingEvents(limit int) []outbox.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.events)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]outbox.Event, n)
	copy(out, s.events[:n])
	return out
}

// AckEvents removes published events from the pending queue.
func (s *MemoryStore) AckEvents(eventIDs []string) {
	acked := make(map[string]struct{}, len(eventIDs))
	for _, id := range eventIDs {
		acked[id] = struct{}{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.events[:0:0]
	for _, evt := range s.events {
		if _, ok := acked[evt.EventID]; !ok {
			kept = append(kept, evt)
		}
	}
	s.events = kept
}

func (s *MemoryStore) GetBusiness(_ context.Context, id string) (model.Business, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.businesses[id]
	if !ok {
		return model.Business{}, ErrNotFound
	}
	b.Schedule.Weekly = append([]schedule.WeeklyHours(nil), b.Schedule.Weekly...)
	b.Schedule.Exceptions = append([]schedule.Exception(nil), b.Schedule.Exceptions...)
	return b, nil
}

func (s *MemoryStore) GetService(_ context.Context, id string) (model.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	svc, ok := s.services[id]
	if !ok {
		return model.Service{}, ErrNotFound
	}
	return svc, nil
}

func (s *MemoryStore) FindBlockingIntervals(_ context.Context, businessID string, from, to time.Time) ([]availability.Interval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []availability.Interval
	for _, b := range s.bookings {
		if b.BusinessID != businessID || !b.Status.IsBlocking() {
			continue
		}
		iv := availability.Interval{Start: b.Start, End: b.End}
		if iv.Overlaps(from, to) {
			out = append(out, iv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (s *MemoryStore) detail(b model.Booking) model.BookingDetail {
	return model.BookingDetail{Booking: b, Business: s.businesses[b.BusinessID], Service: s.services[b.ServiceID]}
}

func (s *MemoryStore) GetBooking(_ context.Context, id string) (model.BookingDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookings[id]
	if !ok {
		return model.BookingDetail{}, ErrNotFound
	}
	return s.detail(b), nil
}

func (s *MemoryStore) collect(match func(model.Booking) bool, desc bool) []model.BookingDetail {
	var out []model.BookingDetail
	for _, b := range s.bookings {
		if match(b) {
			out = append(out, s.detail(b))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if desc {
			return out[i].Start.After(out[j].Start)
		}
		return out[i].Start.Before(out[j].Start)
	})
	return out
}

func (s *MemoryStore) ListBookings(_ context.Context, businessID string, f BookingFilter) ([]model.BookingDetail, int, error) {
	f = f.Normalize()
	s.mu.RLock()
	all := s.collect(func(b model.Booking) bool {
		if b.BusinessID != businessID {
			return false
		}
		if f.Status != nil && b.Status != *f.Status {
			return false
		}
		if f.From != nil && b.Start.Before(*f.From) {
			return false
		}
		if f.To != nil && b.Start.After(*f.To) {
			return false
		}
		return true
	}, false)
	s.mu.RUnlock()

	total := len(all)
	lo := f.Offset()
	if lo > total {
		lo = total
	}
	hi := lo + f.Limit
	if hi > total {
		hi = total
	}
	return all[lo:hi], total, nil
}

func (s *MemoryStore) ListBookingsByClient(_ context.Context, userID string) ([]model.BookingDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(func(b model.Booking) bool { return b.Client.UserID == userID }, true), nil
}

func (s *MemoryStore) ListPlanning(_ context.Context, businessID string, statuses []model.Status, from, to time.Time) ([]model.BookingDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(func(b model.Booking) bool {
		if b.BusinessID != businessID || b.Start.Before(from) || b.End.After(to) {
			return false
		}
		for _, st := range statuses {
			if b.Status == st {
				return true
			}
		}
		return false
	}, false), nil
}

func (s *MemoryStore) FindBookingByPaymentIntent(_ context.Context, intentID string) (model.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, b := range s.bookings {
		if intentID != "" && b.PaymentIntentID == intentID {
			return b, nil
		}
	}
	return model.Booking{}, ErrNotFound
}

func (s *MemoryStore) SetPaymentIntent(_ context.Context, bookingID, intentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[bookingID]
	if !ok {
		return ErrNotFound
	}
	b.PaymentIntentID = intentID
	b.UpdatedAt = s.now()
	s.bookings[bookingID] = b
	return nil
}

func (s *MemoryStore) ReplaceWeeklyHours(_ context.Context, businessID string, hours []schedule.WeeklyHours) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.businesses[businessID]
	if !ok {
		return ErrNotFound
	}
	b.Schedule.Weekly = append([]schedule.WeeklyHours(nil), hours...)
	s.businesses[businessID] = b
	return nil
}

func (s *MemoryStore) UpsertException(_ context.Context, businessID string, ex schedule.Exception) (schedule.Exception, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.businesses[businessID]
	if !ok {
		return schedule.Exception{}, ErrNotFound
	}
	kept := b.Schedule.Exceptions[:0:0]
	ex.ID = uuid.NewString()
	for _, cur := range b.Schedule.Exceptions {
		if cur.Date == ex.Date {
			ex.ID = cur.ID
			continue
		}
		kept = append(kept, cur)
	}
	b.Schedule.Exceptions = append(kept, ex)
	s.businesses[businessID] = b
	return ex, nil
}

func (s *MemoryStore) DeleteException(_ context.Context, businessID, exceptionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.businesses[businessID]
	if !ok {
		return ErrNotFound
	}
	for i, cur := range b.Schedule.Exceptions {
		if cur.ID == exceptionID {
			b.Schedule.Exceptions = append(b.Schedule.Exceptions[:i:i], b.Schedule.Exceptions[i+1:]...)
			s.businesses[businessID] = b
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) lockFor(businessID string) chan struct{} {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[businessID]
	if !ok {
		l = make(chan struct{}, 1)
		s.locks[businessID] = l
	}
	return l
}

func (s *MemoryStore) WithBusinessLock(ctx context.Context, businessID string, wait time.Duration, fn func(Tx) error) error {
	if _, err := s.GetBusiness(ctx, businessID); err != nil {
		return err
	}

	l := s.lockFor(businessID)
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case l <- struct{}{}:
	case <-timer.C:
		return ErrLockTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-l }()

	return s.run(ctx, fn)
}

func (s *MemoryStore) InTx(ctx context.Context, fn func(Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return s.run(ctx, fn)
}

func (s *MemoryStore) run(ctx context.Context, fn func(Tx) error) error {
	tx := &memTx{store: s, updates: map[string]model.Booking{}, seen: map[string]struct{}{}}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return tx.commit()
}

// memTx stages writes and applies them under the store mutex on commit.
type memTx struct {
	store   *MemoryStore
	inserts []model.Booking
	updates map[string]model.Booking
	events  []outbox.Event
	seen    map[string]struct{}
}

func (t *memTx) HasBlockingOverlap(_ context.Context, businessID string, start, end time.Time) (bool, error) {
	for _, b := range t.inserts {
		if b.BusinessID == businessID && b.Status.IsBlocking() && (availability.Interval{Start: b.Start, End: b.End}).Overlaps(start, end) {
			return true, nil
		}
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	return t.store.overlapsLocked(businessID, start, end, ""), nil
}

func (s *MemoryStore) overlapsLocked(businessID string, start, end time.Time, exceptID string) bool {
	for id, b := range s.bookings {
		if id == exceptID || b.BusinessID != businessID || !b.Status.IsBlocking() {
			continue
		}
		if (availability.Interval{Start: b.Start, End: b.End}).Overlaps(start, end) {
			return true
		}
	}
	return false
}

func (t *memTx) InsertBooking(_ context.Context, b *model.Booking) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	now := t.store.now()
	b.CreatedAt, b.UpdatedAt = now, now
	t.inserts = append(t.inserts, *b)
	return nil
}

func (t *memTx) GetBookingForUpdate(_ context.Context, id string) (model.Booking, error) {
	if b, ok := t.updates[id]; ok {
		return b, nil
	}
	for _, b := range t.inserts {
		if b.ID == id {
			return b, nil
		}
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	b, ok := t.store.bookings[id]
	if !ok {
		return model.Booking{}, ErrNotFound
	}
	return b, nil
}

func (t *memTx) UpdateBookingStatus(ctx context.Context, id string, status model.Status, internalNote *string) (model.Booking, error) {
	b, err := t.GetBookingForUpdate(ctx, id)
	if err != nil {
		return model.Booking{}, err
	}
	b.Status = status
	if internalNote != nil {
		b.InternalNote = *internalNote
	}
	b.UpdatedAt = t.store.now()
	t.updates[id] = b
	return b, nil
}

func (t *memTx) UpdatePaymentStatus(ctx context.Context, id string, status model.PaymentStatus) (model.Booking, error) {
	b, err := t.GetBookingForUpdate(ctx, id)
	if err != nil {
		return model.Booking{}, err
	}
	b.PaymentStatus = status
	b.UpdatedAt = t.store.now()
	t.updates[id] = b
	return b, nil
}

func (t *memTx) AppendEvent(_ context.Context, evt outbox.Event) error {
	if evt.EventID == "" {
		evt.EventID = uuid.NewString()
	}
	t.events = append(t.events, evt)
	return nil
}

func (t *memTx) RecordEvent(_ context.Context, eventID, _ string) (bool, error) {
	if _, ok := t.seen[eventID]; ok {
		return false, nil
	}
	t.store.mu.RLock()
	_, ok := t.store.inbox[eventID]
	t.store.mu.RUnlock()
	if ok {
		return false, nil
	}
	t.seen[eventID] = struct{}{}
	return true, nil
}

func (t *memTx) commit() error {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range t.seen {
		if _, ok := s.inbox[id]; ok {
			return ErrDuplicate
		}
	}
	for _, b := range t.inserts {
		if b.Status.IsBlocking() && s.overlapsLocked(b.BusinessID, b.Start, b.End, b.ID) {
			return ErrOverlap
		}
	}

	for _, b := range t.inserts {
		s.bookings[b.ID] = b
	}
	for id, b := range t.updates {
		s.bookings[id] = b
	}
	s.events = append(s.events, t.events...)
	if over := len(s.events) - s.maxEvents; s.maxEvents > 0 && over > 0 {
		s.events = append(s.events[:0:0], s.events[over:]...)
	}
	for id := range t.seen {
		s.inbox[id] = struct{}{}
	}
	return nil
}

var _ Store = (*MemoryStore)(nil)
