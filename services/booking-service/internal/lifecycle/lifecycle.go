// Package lifecycle holds the booking status and payment status rules.
package lifecycle

import (
	"errors"
	"fmt"

	"github.com/garagebook/garagebook/services/booking-service/internal/model"
)

var (
	ErrTerminal       = errors.New("booking is already closed")
	ErrBackward       = errors.New("booking status cannot move backwards")
	ErrUnknownStatus  = errors.New("unknown booking status")
	ErrPaymentNotOwed = errors.New("booking does not expect a payment")
	ErrUnknownOutcome = errors.New("unknown settlement outcome")
)

// rank orders the happy path. Terminal states share the last rank.
func rank(s model.Status) int {
	switch s {
	case model.StatusPending:
		return 0
	case model.StatusConfirmed:
		return 1
	case model.StatusInProgress:
		return 2
	default:
		return 3
	}
}

// OwnerTransition validates an owner status change. Owners may skip ahead on the
// happy path and may close a booking from any open state; closed bookings stay
// closed. Setting the current status again is allowed and reports no change.
func OwnerTransition(from, to model.Status) (bool, error) {
	if !to.Valid() {
		return false, fmt.Errorf("%w: %q", ErrUnknownStatus, to)
	}
	if from == to {
		return false, nil
	}
	if from.IsTerminal() {
		return false, fmt.Errorf("%w: %s", ErrTerminal, from)
	}
	if rank(to) < rank(from) {
		return false, fmt.Errorf("%w: %s to %s", ErrBackward, from, to)
	}
	return true, nil
}

// ClientCancel allows the originating client to cancel while the booking still
// holds its slot.
func ClientCancel(from model.Status) error {
	if !from.IsBlocking() {
		return fmt.Errorf("%w: %s", ErrTerminal, from)
	}
	return nil
}

// Outcome is a settlement result reported by the payment provider.
type Outcome string

const (
	OutcomePaid   Outcome = "paid"
	OutcomeFailed Outcome = "failed"
)

// ApplySettlement returns the payment status after outcome. PAID and REFUNDED are
// not downgraded by a late failure. It never touches the booking status.
func ApplySettlement(current model.PaymentStatus, outcome Outcome) (model.PaymentStatus, bool, error) {
	if current == model.PaymentNotRequired || current == "" {
		return current, false, ErrPaymentNotOwed
	}
	var next model.PaymentStatus
	switch outcome {
	case OutcomePaid:
		next = model.PaymentPaid
	case OutcomeFailed:
		next = model.PaymentFailed
	default:
		return current, false, fmt.Errorf("%w: %q", ErrUnknownOutcome, outcome)
	}
	if current == model.PaymentRefunded {
		return current, false, nil
	}
	if current == model.PaymentPaid && next == model.PaymentFailed {
		return current, false, nil
	}
	if current == next {
		return current, false, nil
	}
	return next, true, nil
}
