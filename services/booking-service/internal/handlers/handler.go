package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/garagebook/garagebook/libs/auth"
	"github.com/garagebook/garagebook/libs/httpx"
	"github.com/garagebook/garagebook/services/booking-service/internal/booking"
	"github.com/go-playground/validator/v10"
)

var licensePlatePattern = regexp.MustCompile(`^[A-Z]{2}-\d{3}-[A-Z]{2}$`)

type Options struct {
	StripeWebhookSecret    string
	StripeWebhookTolerance time.Duration
	// PublicLimit wraps the public booking endpoints, typically a rate limiter.
	PublicLimit httpx.Middleware
}

type Handler struct {
	svc      *booking.Service
	logger   *slog.Logger
	validate *validator.Validate
	opts     Options
}

func New(svc *booking.Service, logger *slog.Logger, opts Options) *Handler {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("plate", func(fl validator.FieldLevel) bool {
		return licensePlatePattern.MatchString(fl.Field().String())
	})
	if opts.StripeWebhookTolerance <= 0 {
		opts.StripeWebhookTolerance = 5 * time.Minute
	}
	return &Handler{svc: svc, logger: logger, validate: v, opts: opts}
}

// Register mounts every route on mux. Authentication must already have run;
// route guards only check the principal.
func (h *Handler) Register(mux *http.ServeMux) {
	limit := h.opts.PublicLimit
	if limit == nil {
		limit = func(next http.Handler) http.Handler { return next }
	}
	owner := auth.Require(auth.RoleOwner)
	signedIn := auth.Require()

	mux.Handle("GET /api/v1/slots", limit(http.HandlerFunc(h.Slots)))
	mux.Handle("POST /api/v1/bookings", limit(http.HandlerFunc(h.CreateBooking)))

	mux.Handle("GET /api/v1/dashboard/bookings", owner(http.HandlerFunc(h.ListBookings)))
	mux.Handle("PATCH /api/v1/dashboard/bookings/{id}", owner(http.HandlerFunc(h.UpdateBookingStatus)))
	mux.Handle("GET /api/v1/dashboard/planning", owner(http.HandlerFunc(h.Planning)))
	mux.Handle("PUT /api/v1/dashboard/hours", owner(http.HandlerFunc(h.ReplaceHours)))
	mux.Handle("POST /api/v1/dashboard/exceptions", owner(http.HandlerFunc(h.UpsertException)))
	mux.Handle("DELETE /api/v1/dashboard/exceptions/{id}", owner(http.HandlerFunc(h.DeleteException)))

	mux.Handle("GET /api/v1/my/bookings", signedIn(http.HandlerFunc(h.MyBookings)))
	mux.Handle("POST /api/v1/my/bookings/{id}/cancel", signedIn(http.HandlerFunc(h.CancelMyBooking)))

	// No JWT here: the Stripe signature is the authentication.
	mux.HandleFunc("POST /api/v1/webhooks/stripe", h.StripeWebhook)
}

// ownerBusiness returns the business the authenticated owner manages.
func ownerBusiness(r *http.Request) (string, error) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok || p.Role != auth.RoleOwner || strings.TrimSpace(p.BusinessID) == "" {
		return "", booking.ErrForbidden
	}
	return p.BusinessID, nil
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	reqID := httpx.RequestIDFromContext(r.Context())
	switch {
	case errors.Is(err, booking.ErrValidation):
		httpx.WriteError(w, http.StatusUnprocessableEntity, "validation_error", err.Error())
	case errors.Is(err, booking.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, booking.ErrForbidden):
		httpx.WriteError(w, http.StatusForbidden, "forbidden", "no business managed by this account")
	case errors.Is(err, booking.ErrConflict):
		httpx.WriteError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, booking.ErrInvalidTransition):
		httpx.WriteError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, booking.ErrConfiguration):
		h.logger.Error("business configuration error", "err", err, "request_id", reqID)
		httpx.WriteError(w, http.StatusInternalServerError, "configuration_error", err.Error())
	case errors.Is(err, booking.ErrUnavailable):
		w.Header().Set("Retry-After", "1")
		httpx.WriteError(w, http.StatusServiceUnavailable, "unavailable", "temporarily unavailable, retry")
	default:
		h.logger.Error("request failed", "err", err, "request_id", reqID)
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fe.Field()+": "+fe.Tag())
	}
	return strings.Join(parts, ", ")
}
