package model

import (
	"time"

	"github.com/garagebook/garagebook/services/booking-service/internal/schedule"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusConfirmed  Status = "CONFIRMED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
	StatusNoShow     Status = "NO_SHOW"
)

// BlockingStatuses occupy the calendar for overlap checks.
var BlockingStatuses = []Status{StatusPending, StatusConfirmed, StatusInProgress}

func (s Status) IsBlocking() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusInProgress:
		return true
	}
	return false
}

func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

func (s Status) Valid() bool {
	return s.IsBlocking() || s.IsTerminal()
}

type PaymentStatus string

const (
	PaymentNotRequired PaymentStatus = "NOT_REQUIRED"
	PaymentPending     PaymentStatus = "PENDING"
	PaymentPaid        PaymentStatus = "PAID"
	PaymentRefunded    PaymentStatus = "REFUNDED"
	PaymentFailed      PaymentStatus = "FAILED"
)

type PaymentMode string

const (
	PaymentModeNone    PaymentMode = "NONE"
	PaymentModeDeposit PaymentMode = "DEPOSIT"
	PaymentModeFull    PaymentMode = "FULL"
)

type Business struct {
	ID                   string
	OwnerUserID          string
	Name                 string
	Slug                 string
	Email                string
	Timezone             string
	Active               bool
	OnlinePaymentEnabled bool
	PaymentMode          PaymentMode
	DepositAmountCents   *int64
	DepositPercent       *int
	StripeAccountID      string
	Schedule             schedule.Config
}

type Service struct {
	ID          string
	BusinessID  string
	Name        string
	DurationMin int
	PriceCents  int64
	Active      bool
}

func (s Service) Duration() time.Duration {
	return time.Duration(s.DurationMin) * time.Minute
}

// Client is the customer and vehicle captured with a booking.
type Client struct {
	UserID       string
	Name         string
	Email        string
	Phone        string
	LicensePlate string
	VehicleBrand string
	VehicleModel string
	VehicleYear  *int
	Mileage      *int
	Note         string
}

type Booking struct {
	ID              string
	BusinessID      string
	ServiceID       string
	Client          Client
	Start           time.Time
	End             time.Time
	Status          Status
	PaymentStatus   PaymentStatus
	PriceCents      int64
	DepositCents    *int64
	PaymentIntentID string
	InternalNote    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// BookingDetail is a booking with the business and service it references.
type BookingDetail struct {
	Booking
	Business Business
	Service  Service
}
