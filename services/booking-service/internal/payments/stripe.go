// Package payments connects bookings to Stripe: payment intents on the way out,
// signed webhooks on the way back.
package payments

import (
	"context"
	"strings"

	"github.com/garagebook/garagebook/services/booking-service/internal/booking"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
)

type StripeGateway struct {
	api      *client.API
	currency string
}

func NewStripeGateway(secretKey, currency string) *StripeGateway {
	if strings.TrimSpace(currency) == "" {
		currency = string(stripe.CurrencyEUR)
	}
	return &StripeGateway{
		api:      client.New(secretKey, nil),
		currency: strings.ToLower(currency),
	}
}

// CreateIntent opens a PaymentIntent for the booking amount. The booking id is
// used as idempotency key so a retried call returns the same intent.
func (g *StripeGateway) CreateIntent(ctx context.Context, req booking.IntentRequest) (booking.Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(req.AmountCents),
		Currency:    stripe.String(g.currency),
		Description: stripe.String(req.Description),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Metadata: map[string]string{
			MetadataBookingID:  req.BookingID,
			MetadataBusinessID: req.BusinessID,
		},
	}
	if req.CustomerEmail != "" {
		params.ReceiptEmail = stripe.String(req.CustomerEmail)
	}
	if req.DestinationAccount != "" {
		params.TransferData = &stripe.PaymentIntentTransferDataParams{
			Destination: stripe.String(req.DestinationAccount),
		}
	}
	params.Context = ctx
	params.IdempotencyKey = stripe.String("booking-" + req.BookingID)

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return booking.Intent{}, err
	}
	return booking.Intent{ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

var _ booking.PaymentGateway = (*StripeGateway)(nil)
