// Package payment decides, at booking time, whether online payment is required
// and how much is due upfront.
package payment

import (
	"errors"
	"fmt"

	"github.com/garagebook/garagebook/services/booking-service/internal/model"
)

// ErrMisconfigured means the business payment settings cannot produce an amount.
var ErrMisconfigured = errors.New("payment configuration error")

type Decision struct {
	Status model.PaymentStatus
	// DepositCents is the amount to capture online, nil when nothing is due.
	DepositCents *int64
}

func (d Decision) Required() bool {
	return d.Status == model.PaymentPending
}

// Decide applies the business payment mode to a service price. A fixed deposit
// wins over a percentage; percentages round half up to the minor unit.
func Decide(b model.Business, priceCents int64) (Decision, error) {
	if !b.OnlinePaymentEnabled || b.PaymentMode == "" || b.PaymentMode == model.PaymentModeNone {
		return Decision{Status: model.PaymentNotRequired}, nil
	}

	switch b.PaymentMode {
	case model.PaymentModeFull:
		amount := priceCents
		return Decision{Status: model.PaymentPending, DepositCents: &amount}, nil

	case model.PaymentModeDeposit:
		if b.DepositAmountCents != nil && *b.DepositAmountCents > 0 {
			amount := *b.DepositAmountCents
			return Decision{Status: model.PaymentPending, DepositCents: &amount}, nil
		}
		if b.DepositPercent != nil && *b.DepositPercent > 0 {
			pct := int64(*b.DepositPercent)
			if pct > 100 {
				return Decision{}, fmt.Errorf("%w: deposit percent %d exceeds 100 for business %s", ErrMisconfigured, pct, b.ID)
			}
			amount := (priceCents*pct + 50) / 100
			return Decision{Status: model.PaymentPending, DepositCents: &amount}, nil
		}
		return Decision{}, fmt.Errorf("%w: business %s requires a deposit but has no amount or percent", ErrMisconfigured, b.ID)

	default:
		return Decision{}, fmt.Errorf("%w: unknown payment mode %q for business %s", ErrMisconfigured, b.PaymentMode, b.ID)
	}
}
