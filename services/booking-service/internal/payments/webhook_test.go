package payments

import (
	"errors"
	"testing"
	"time"

	"github.com/garagebook/garagebook/services/booking-service/internal/lifecycle"
	"github.com/stripe/stripe-go/v79/webhook"
)

const testSecret = "whsec_test"

func sign(t *testing.T, payload string) (string, []byte) {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testSecret,
		Timestamp: time.Now(),
	})
	return signed.Header, signed.Payload
}

func TestParseWebhookSucceeded(t *testing.T) {
	header, body := sign(t, `{
		"id": "evt_1",
		"object": "event",
		"type": "payment_intent.succeeded",
		"data": {"object": {"id": "pi_1", "object": "payment_intent", "metadata": {"booking_id": "bk-1"}}}
	}`)

	s, ok, err := ParseWebhook(body, header, testSecret, 5*time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected settlement, got ok=%v err=%v", ok, err)
	}
	if s.EventID != "evt_1" || s.BookingID != "bk-1" || s.PaymentIntentID != "pi_1" || s.Outcome != lifecycle.OutcomePaid {
		t.Fatalf("unexpected settlement %+v", s)
	}
}

func TestParseWebhookFailed(t *testing.T) {
	header, body := sign(t, `{
		"id": "evt_2",
		"object": "event",
		"type": "payment_intent.payment_failed",
		"data": {"object": {"id": "pi_2", "object": "payment_intent"}}
	}`)

	s, ok, err := ParseWebhook(body, header, testSecret, 5*time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected settlement, got ok=%v err=%v", ok, err)
	}
	if s.Outcome != lifecycle.OutcomeFailed || s.PaymentIntentID != "pi_2" || s.BookingID != "" {
		t.Fatalf("unexpected settlement %+v", s)
	}
}

func TestParseWebhookIgnoresOtherEvents(t *testing.T) {
	header, body := sign(t, `{"id": "evt_3", "object": "event", "type": "charge.refunded", "data": {"object": {}}}`)
	_, ok, err := ParseWebhook(body, header, testSecret, 5*time.Minute)
	if err != nil || ok {
		t.Fatalf("expected ignored event, got ok=%v err=%v", ok, err)
	}
}

func TestParseWebhookRejectsBadSignature(t *testing.T) {
	header, body := sign(t, `{"id": "evt_4", "object": "event", "type": "payment_intent.succeeded", "data": {"object": {}}}`)
	_, _, err := ParseWebhook(body, header, "whsec_other", 5*time.Minute)
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}
