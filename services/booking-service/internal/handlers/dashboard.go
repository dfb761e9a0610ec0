package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/garagebook/garagebook/libs/httpx"
	"github.com/garagebook/garagebook/services/booking-service/internal/booking"
	"github.com/garagebook/garagebook/services/booking-service/internal/model"
	"github.com/garagebook/garagebook/services/booking-service/internal/schedule"
	"github.com/garagebook/garagebook/services/booking-service/internal/storage"
	"github.com/garagebook/garagebook/services/booking-service/internal/temporal"
)

// ListBookings serves GET /api/v1/dashboard/bookings?status=&from=&to=&page=&limit=.
func (h *Handler) ListBookings(w http.ResponseWriter, r *http.Request) {
	businessID, err := ownerBusiness(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	f, err := parseBookingFilter(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	page, err := h.svc.ListForOwner(r.Context(), businessID, f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"items": toBookingItems(page.Items, true),
		"total": page.Total,
		"page":  page.Page,
		"limit": page.Limit,
		"pages": page.Pages(),
	})
}

func parseBookingFilter(r *http.Request) (storage.BookingFilter, error) {
	q := r.URL.Query()
	var f storage.BookingFilter
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		st := model.Status(strings.ToUpper(raw))
		f.Status = &st
	}
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"from", &f.From}, {"to", &f.To}} {
		raw := strings.TrimSpace(q.Get(p.name))
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return f, fmt.Errorf("%w: %s must be an RFC 3339 timestamp", booking.ErrValidation, p.name)
		}
		*p.dst = &t
	}
	var err error
	if f.Page, err = parseOptionalInt(q.Get("page"), "page"); err != nil {
		return f, err
	}
	if f.Limit, err = parseOptionalInt(q.Get("limit"), "limit"); err != nil {
		return f, err
	}
	return f, nil
}

type statusUpdateRequest struct {
	Status       string  `json:"status" validate:"required,oneof=PENDING CONFIRMED IN_PROGRESS COMPLETED CANCELLED NO_SHOW"`
	InternalNote *string `json:"internalNote" validate:"omitempty,max=2000"`
}

// UpdateBookingStatus serves PATCH /api/v1/dashboard/bookings/{id}.
func (h *Handler) UpdateBookingStatus(w http.ResponseWriter, r *http.Request) {
	businessID, err := ownerBusiness(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req statusUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "bad_request", "invalid json body")
		return
	}
	req.Status = strings.ToUpper(strings.TrimSpace(req.Status))
	if err := h.validate.Struct(req); err != nil {
		httpx.WriteError(w, http.StatusUnprocessableEntity, "validation_error", validationMessage(err))
		return
	}

	d, err := h.svc.UpdateStatus(r.Context(), businessID, r.PathValue("id"), model.Status(req.Status), req.InternalNote)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.logger.Info("booking status updated", "booking_id", d.ID, "business_id", businessID, "status", d.Status)
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"booking": toBookingItem(d, true)})
}

// Planning serves GET /api/v1/dashboard/planning?weekStart=YYYY-MM-DD.
func (h *Handler) Planning(w http.ResponseWriter, r *http.Request) {
	businessID, err := ownerBusiness(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var weekStart temporal.Date
	if raw := strings.TrimSpace(r.URL.Query().Get("weekStart")); raw != "" {
		if weekStart, err = temporal.ParseDate(raw); err != nil {
			httpx.WriteError(w, http.StatusUnprocessableEntity, "validation_error", "weekStart must be YYYY-MM-DD")
			return
		}
	}

	plan, err := h.svc.WeekPlanning(r.Context(), businessID, weekStart)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"weekStart": plan.WeekStart.String(),
		"weekEnd":   plan.WeekEnd.String(),
		"bookings":  toBookingItems(plan.Bookings, true),
	})
}

type hoursEntry struct {
	DayOfWeek string `json:"dayOfWeek" validate:"required"`
	OpenTime  string `json:"openTime" validate:"required"`
	CloseTime string `json:"closeTime" validate:"required"`
	IsClosed  bool   `json:"isClosed"`
}

// ReplaceHours serves PUT /api/v1/dashboard/hours with the full weekly schedule.
func (h *Handler) ReplaceHours(w http.ResponseWriter, r *http.Request) {
	businessID, err := ownerBusiness(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req []hoursEntry
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "bad_request", "invalid json body")
		return
	}
	hours := make([]schedule.WeeklyHours, 0, len(req))
	for _, e := range req {
		if err := h.validate.Struct(e); err != nil {
			httpx.WriteError(w, http.StatusUnprocessableEntity, "validation_error", validationMessage(err))
			return
		}
		wd, err := schedule.ParseWeekday(e.DayOfWeek)
		if err != nil {
			httpx.WriteError(w, http.StatusUnprocessableEntity, "validation_error", err.Error())
			return
		}
		open, errOpen := temporal.ParseWallTime(e.OpenTime)
		cl, errClose := temporal.ParseWallTime(e.CloseTime)
		if errOpen != nil || errClose != nil {
			httpx.WriteError(w, http.StatusUnprocessableEntity, "validation_error", "times must be HH:MM")
			return
		}
		hours = append(hours, schedule.WeeklyHours{Weekday: wd, Open: open, Close: cl, Closed: e.IsClosed})
	}

	if err := h.svc.SetWeeklyHours(r.Context(), businessID, hours); err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"hours": req})
}

type exceptionRequest struct {
	Date      string  `json:"date" validate:"required"`
	OpenTime  *string `json:"openTime"`
	CloseTime *string `json:"closeTime"`
	IsClosed  *bool   `json:"isClosed"`
	Reason    string  `json:"reason" validate:"omitempty,max=500"`
}

// UpsertException serves POST /api/v1/dashboard/exceptions. isClosed defaults to true.
func (h *Handler) UpsertException(w http.ResponseWriter, r *http.Request) {
	businessID, err := ownerBusiness(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req exceptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "bad_request", "invalid json body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.WriteError(w, http.StatusUnprocessableEntity, "validation_error", validationMessage(err))
		return
	}

	in := booking.ExceptionInput{Closed: true, Reason: req.Reason}
	if req.IsClosed != nil {
		in.Closed = *req.IsClosed
	}
	if in.Date, err = temporal.ParseDate(req.Date); err != nil {
		httpx.WriteError(w, http.StatusUnprocessableEntity, "validation_error", "date must be YYYY-MM-DD")
		return
	}
	for _, p := range []struct {
		raw *string
		dst **temporal.WallTime
	}{{req.OpenTime, &in.Open}, {req.CloseTime, &in.Close}} {
		if p.raw == nil {
			continue
		}
		wt, err := temporal.ParseWallTime(*p.raw)
		if err != nil {
			httpx.WriteError(w, http.StatusUnprocessableEntity, "validation_error", "times must be HH:MM")
			return
		}
		*p.dst = &wt
	}

	ex, err := h.svc.UpsertException(r.Context(), businessID, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"exception": toExceptionItem(ex)})
}

// DeleteException serves DELETE /api/v1/dashboard/exceptions/{id}.
func (h *Handler) DeleteException(w http.ResponseWriter, r *http.Request) {
	businessID, err := ownerBusiness(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.svc.DeleteException(r.Context(), businessID, r.PathValue("id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
