package consumer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/garagebook/garagebook/libs/kafkax"
	"github.com/garagebook/garagebook/services/booking-service/internal/booking"
	"github.com/garagebook/garagebook/services/booking-service/internal/lifecycle"
	"github.com/garagebook/garagebook/services/booking-service/internal/model"
	"github.com/segmentio/kafka-go"
)

type fakeReader struct {
	msgs      []kafka.Message
	committed []kafka.Message
	closed    bool
	cancel    context.CancelFunc
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		r.cancel()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	m := r.msgs[0]
	r.msgs = r.msgs[1:]
	return m, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

type fakeSettler struct {
	mu  sync.Mutex
	got []booking.Settlement
	err error
}

func (s *fakeSettler) ApplySettlement(_ context.Context, in booking.Settlement) (model.Booking, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, in)
	if s.err != nil {
		return model.Booking{}, false, s.err
	}
	return model.Booking{ID: in.BookingID, PaymentStatus: model.PaymentPaid}, true, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestConsumerFeedsSettlements(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	settler := &fakeSettler{}
	reader := &fakeReader{
		cancel: cancel,
		msgs: []kafka.Message{
			{
				Topic:   "payments.settlement.v1",
				Headers: kafkax.EventMeta{EventID: "evt-1", EventType: "payment.settled.v1"}.Headers(),
				Value:   []byte(`{"booking_id":"bk-1","outcome":"paid"}`),
			},
			{Topic: "payments.settlement.v1", Value: []byte(`not json`)},
		},
	}

	NewWithReader(discardLogger(), reader, SettlementHandler(settler, discardLogger())).Run(ctx)

	if !reader.closed {
		t.Fatal("expected reader to be closed")
	}
	if len(settler.got) != 1 {
		t.Fatalf("expected 1 settlement, got %d", len(settler.got))
	}
	if len(reader.committed) != 2 {
		t.Fatalf("expected both messages committed, got %d", len(reader.committed))
	}
	got := settler.got[0]
	if got.EventID != "evt-1" || got.BookingID != "bk-1" || got.Outcome != lifecycle.OutcomePaid {
		t.Fatalf("unexpected settlement %+v", got)
	}
}

func TestSettlementHandlerDropsRejected(t *testing.T) {
	settler := &fakeSettler{err: booking.ErrInvalidTransition}
	h := SettlementHandler(settler, discardLogger())
	err := h(context.Background(), kafkax.EventMeta{EventID: "evt-2"}, kafka.Message{Value: []byte(`{"booking_id":"bk-2","outcome":"failed"}`)})
	if err != nil {
		t.Fatalf("expected rejection to be dropped, got %v", err)
	}

	settler.err = errors.New("db down")
	err = h(context.Background(), kafkax.EventMeta{EventID: "evt-3"}, kafka.Message{Value: []byte(`{"booking_id":"bk-3","outcome":"paid"}`)})
	if err == nil {
		t.Fatal("expected infrastructure error to surface")
	}
}

func TestConsumerRedeliversAfterHandlerError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &fakeReader{
		cancel: cancel,
		msgs: []kafka.Message{
			{Key: []byte("a"), Offset: 1},
			{Key: []byte("b"), Offset: 2},
		},
	}
	deliveries := map[string]int{}
	handler := func(_ context.Context, _ kafkax.EventMeta, msg kafka.Message) error {
		key := string(msg.Key)
		deliveries[key]++
		if key == "a" && deliveries[key] == 1 {
			return errors.New("storage unavailable")
		}
		return nil
	}

	NewWithReader(discardLogger(), reader, handler).
		WithRetryInterval(time.Millisecond, 5*time.Millisecond).
		Run(ctx)

	if deliveries["a"] != 2 || deliveries["b"] != 1 {
		t.Fatalf("unexpected deliveries %v", deliveries)
	}
	if len(reader.committed) != 2 || string(reader.committed[0].Key) != "a" || string(reader.committed[1].Key) != "b" {
		t.Fatalf("unexpected commits %+v", reader.committed)
	}
}

func TestConsumerDoesNotCommitUnhandledMessageOnShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &fakeReader{cancel: cancel, msgs: []kafka.Message{{Key: []byte("a"), Offset: 1}}}
	calls := 0
	handler := func(context.Context, kafkax.EventMeta, kafka.Message) error {
		calls++
		cancel()
		return errors.New("storage unavailable")
	}

	NewWithReader(discardLogger(), reader, handler).Run(ctx)

	if calls != 1 {
		t.Fatalf("expected a single attempt before shutdown, got %d", calls)
	}
	if len(reader.committed) != 0 {
		t.Fatalf("expected no commits, got %d", len(reader.committed))
	}
	if !reader.closed {
		t.Fatal("expected reader to be closed")
	}
}
