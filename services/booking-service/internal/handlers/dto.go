package handlers

import (
	"time"

	"github.com/garagebook/garagebook/services/booking-service/internal/availability"
	"github.com/garagebook/garagebook/services/booking-service/internal/model"
	"github.com/garagebook/garagebook/services/booking-service/internal/schedule"
	"github.com/garagebook/garagebook/services/booking-service/internal/temporal"
)

type slotItem struct {
	Start      string `json:"start"`
	End        string `json:"end"`
	StartLocal string `json:"startLocal"`
}

type daySlotsItem struct {
	Date  string     `json:"date"`
	Label string     `json:"label"`
	Slots []slotItem `json:"slots"`
}

func toDaySlots(days []availability.DaySlots) []daySlotsItem {
	out := make([]daySlotsItem, 0, len(days))
	for _, d := range days {
		item := daySlotsItem{Date: d.Date.String(), Label: d.Label, Slots: make([]slotItem, 0, len(d.Slots))}
		for _, s := range d.Slots {
			item.Slots = append(item.Slots, slotItem{
				Start:      s.Start.UTC().Format(time.RFC3339),
				End:        s.End.UTC().Format(time.RFC3339),
				StartLocal: s.StartLocal,
			})
		}
		out = append(out, item)
	}
	return out
}

type businessRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug,omitempty"`
}

type serviceRef struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DurationMin int    `json:"durationMin"`
}

type bookingItem struct {
	ID              string       `json:"id"`
	Status          string       `json:"status"`
	PaymentStatus   string       `json:"paymentStatus"`
	StartTime       string       `json:"startTime"`
	EndTime         string       `json:"endTime"`
	LocalDate       string       `json:"localDate"`
	LocalTime       string       `json:"localTime"`
	PriceCents      int64        `json:"priceCents"`
	DepositCents    *int64       `json:"depositCents"`
	ClientName      string       `json:"clientName"`
	ClientEmail     string       `json:"clientEmail"`
	ClientPhone     string       `json:"clientPhone,omitempty"`
	LicensePlate    string       `json:"licensePlate"`
	VehicleBrand    string       `json:"vehicleBrand,omitempty"`
	VehicleModel    string       `json:"vehicleModel,omitempty"`
	VehicleYear     *int         `json:"vehicleYear,omitempty"`
	Mileage         *int         `json:"mileage,omitempty"`
	ClientNote      string       `json:"clientNote,omitempty"`
	InternalNote    string       `json:"internalNote,omitempty"`
	PaymentIntentID string       `json:"paymentIntentId,omitempty"`
	Business        *businessRef `json:"business,omitempty"`
	Service         *serviceRef  `json:"service,omitempty"`
	CreatedAt       string       `json:"createdAt,omitempty"`
}

// toBookingItem renders d. The internal note is only included for owners.
func toBookingItem(d model.BookingDetail, withInternal bool) bookingItem {
	loc, err := temporal.LoadZone(d.Business.Timezone)
	if err != nil {
		loc = time.UTC
	}
	item := bookingItem{
		ID:              d.ID,
		Status:          string(d.Status),
		PaymentStatus:   string(d.PaymentStatus),
		StartTime:       d.Start.UTC().Format(time.RFC3339),
		EndTime:         d.End.UTC().Format(time.RFC3339),
		LocalDate:       temporal.FormatDate(d.Start, loc),
		LocalTime:       temporal.FormatTime(d.Start, loc),
		PriceCents:      d.PriceCents,
		DepositCents:    d.DepositCents,
		ClientName:      d.Client.Name,
		ClientEmail:     d.Client.Email,
		ClientPhone:     d.Client.Phone,
		LicensePlate:    d.Client.LicensePlate,
		VehicleBrand:    d.Client.VehicleBrand,
		VehicleModel:    d.Client.VehicleModel,
		VehicleYear:     d.Client.VehicleYear,
		Mileage:         d.Client.Mileage,
		ClientNote:      d.Client.Note,
		PaymentIntentID: d.PaymentIntentID,
	}
	if withInternal {
		item.InternalNote = d.InternalNote
	}
	if d.Business.ID != "" {
		item.Business = &businessRef{ID: d.Business.ID, Name: d.Business.Name, Slug: d.Business.Slug}
	}
	if d.Service.ID != "" {
		item.Service = &serviceRef{ID: d.Service.ID, Name: d.Service.Name, DurationMin: d.Service.DurationMin}
	}
	if !d.CreatedAt.IsZero() {
		item.CreatedAt = d.CreatedAt.UTC().Format(time.RFC3339)
	}
	return item
}

func toBookingItems(in []model.BookingDetail, withInternal bool) []bookingItem {
	out := make([]bookingItem, 0, len(in))
	for _, d := range in {
		out = append(out, toBookingItem(d, withInternal))
	}
	return out
}

type exceptionItem struct {
	ID        string  `json:"id"`
	Date      string  `json:"date"`
	IsClosed  bool    `json:"isClosed"`
	OpenTime  *string `json:"openTime"`
	CloseTime *string `json:"closeTime"`
	Reason    string  `json:"reason,omitempty"`
}

func toExceptionItem(ex schedule.Exception) exceptionItem {
	item := exceptionItem{ID: ex.ID, Date: ex.Date.String(), IsClosed: ex.Hours.IsClosed(), Reason: ex.Reason}
	if o, c, ok := ex.Hours.Window(); ok {
		openStr, closeStr := o.String(), c.String()
		item.OpenTime, item.CloseTime = &openStr, &closeStr
	}
	return item
}
