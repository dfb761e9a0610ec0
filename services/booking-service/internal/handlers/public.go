package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/garagebook/garagebook/libs/auth"
	"github.com/garagebook/garagebook/libs/httpx"
	"github.com/garagebook/garagebook/services/booking-service/internal/booking"
	"github.com/garagebook/garagebook/services/booking-service/internal/model"
	"github.com/garagebook/garagebook/services/booking-service/internal/temporal"
)

// Slots serves GET /api/v1/slots?businessId=&serviceId=&date=YYYY-MM-DD[&days=N].
func (h *Handler) Slots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	date, err := temporal.ParseDate(q.Get("date"))
	if err != nil {
		httpx.WriteError(w, http.StatusUnprocessableEntity, "validation_error", "date must be YYYY-MM-DD")
		return
	}
	days := 1
	if raw := strings.TrimSpace(q.Get("days")); raw != "" {
		days, err = strconv.Atoi(raw)
		if err != nil {
			httpx.WriteError(w, http.StatusUnprocessableEntity, "validation_error", "days must be an integer")
			return
		}
	}

	result, err := h.svc.SlotsRange(r.Context(), booking.SlotQuery{
		BusinessID: strings.TrimSpace(q.Get("businessId")),
		ServiceID:  strings.TrimSpace(q.Get("serviceId")),
		Date:       date,
		Days:       days,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toDaySlots(result))
}

type createBookingRequest struct {
	BusinessID   string `json:"businessId" validate:"required"`
	ServiceID    string `json:"serviceId" validate:"required"`
	StartTime    string `json:"startTime" validate:"required"`
	ClientName   string `json:"clientName" validate:"required,min=2,max=200"`
	ClientEmail  string `json:"clientEmail" validate:"required,email"`
	ClientPhone  string `json:"clientPhone" validate:"omitempty,max=30"`
	LicensePlate string `json:"licensePlate" validate:"required,plate"`
	VehicleBrand string `json:"vehicleBrand" validate:"omitempty,max=100"`
	VehicleModel string `json:"vehicleModel" validate:"omitempty,max=100"`
	VehicleYear  *int   `json:"vehicleYear" validate:"omitempty,min=1900,max=2030"`
	Mileage      *int   `json:"mileage" validate:"omitempty,gt=0"`
	ClientNote   string `json:"clientNote" validate:"omitempty,max=1000"`
}

type paymentItem struct {
	ClientSecret string `json:"clientSecret"`
	AmountCents  int64  `json:"amountCents"`
}

type createBookingResponse struct {
	Booking bookingItem  `json:"booking"`
	Payment *paymentItem `json:"payment"`
}

// CreateBooking serves POST /api/v1/bookings. A signed-in client is recorded
// on the booking; anonymous bookings are allowed.
func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "bad_request", "invalid json body")
		return
	}
	req.BusinessID = strings.TrimSpace(req.BusinessID)
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	req.ClientName = strings.TrimSpace(req.ClientName)
	req.ClientEmail = strings.TrimSpace(req.ClientEmail)
	req.LicensePlate = strings.ToUpper(strings.TrimSpace(req.LicensePlate))
	if err := h.validate.Struct(req); err != nil {
		httpx.WriteError(w, http.StatusUnprocessableEntity, "validation_error", validationMessage(err))
		return
	}
	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		httpx.WriteError(w, http.StatusUnprocessableEntity, "validation_error", "startTime must be an RFC 3339 timestamp")
		return
	}

	client := model.Client{
		Name:         req.ClientName,
		Email:        req.ClientEmail,
		Phone:        strings.TrimSpace(req.ClientPhone),
		LicensePlate: req.LicensePlate,
		VehicleBrand: strings.TrimSpace(req.VehicleBrand),
		VehicleModel: strings.TrimSpace(req.VehicleModel),
		VehicleYear:  req.VehicleYear,
		Mileage:      req.Mileage,
		Note:         strings.TrimSpace(req.ClientNote),
	}
	if p, ok := auth.PrincipalFromContext(r.Context()); ok {
		client.UserID = p.UserID
	}

	res, err := h.svc.Create(r.Context(), booking.CreateRequest{
		BusinessID: req.BusinessID,
		ServiceID:  req.ServiceID,
		Start:      start,
		Client:     client,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.logger.Info("booking created",
		"booking_id", res.Booking.ID,
		"business_id", res.Booking.BusinessID,
		"start_time", res.Booking.Start.Format(time.RFC3339),
		"payment_status", res.Booking.PaymentStatus,
		"request_id", httpx.RequestIDFromContext(r.Context()),
	)
	resp := createBookingResponse{Booking: toBookingItem(res.Booking, false)}
	if res.Payment != nil {
		resp.Payment = &paymentItem{ClientSecret: res.Payment.ClientSecret, AmountCents: res.Payment.AmountCents}
	}
	httpx.WriteJSON(w, http.StatusCreated, resp)
}

func parseOptionalInt(raw, name string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", booking.ErrValidation, name)
	}
	return n, nil
}
