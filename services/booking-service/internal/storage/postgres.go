package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/garagebook/garagebook/libs/db"
	"github.com/garagebook/garagebook/services/booking-service/internal/availability"
	"github.com/garagebook/garagebook/services/booking-service/internal/model"
	"github.com/garagebook/garagebook/services/booking-service/internal/outbox"
	"github.com/garagebook/garagebook/services/booking-service/internal/schedule"
	"github.com/garagebook/garagebook/services/booking-service/internal/temporal"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// PostgresStore implements Store on pgx. The business scope is a row lock on the
// business taken inside a read committed transaction, bounded by lock_timeout.
type PostgresStore struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewPostgresStore(pool *db.Pool, outboxRepo *outbox.Repository) *PostgresStore {
	return &PostgresStore{pool: pool, outbox: outboxRepo}
}

const businessColumns = `
	id, owner_user_id, name, slug, COALESCE(email, ''), timezone, is_active,
	online_payment_enabled, payment_mode, deposit_amount_cents, deposit_percent,
	COALESCE(stripe_account_id, '')`

func (s *PostgresStore) GetBusiness(ctx context.Context, id string) (model.Business, error) {
	var b model.Business
	var mode string
	err := s.pool.QueryRow(ctx, `SELECT `+businessColumns+` FROM businesses WHERE id = $1`, id).Scan(
		&b.ID, &b.OwnerUserID, &b.Name, &b.Slug, &b.Email, &b.Timezone, &b.Active,
		&b.OnlinePaymentEnabled, &mode, &b.DepositAmountCents, &b.DepositPercent,
		&b.StripeAccountID,
	)
	if err != nil {
		return model.Business{}, mapErr(err)
	}
	b.PaymentMode = model.PaymentMode(mode)

	cfg, err := s.loadSchedule(ctx, id)
	if err != nil {
		return model.Business{}, err
	}
	b.Schedule = cfg
	return b, nil
}

func (s *PostgresStore) loadSchedule(ctx context.Context, businessID string) (schedule.Config, error) {
	var cfg schedule.Config

	rows, err := s.pool.Query(ctx, `
		SELECT day_of_week, open_time, close_time, is_closed
		FROM business_hours
		WHERE business_id = $1
		ORDER BY day_of_week
	`, businessID)
	if err != nil {
		return cfg, err
	}
	for rows.Next() {
		var (
			day             int16
			openRaw, closeRaw string
			closed          bool
		)
		if err := rows.Scan(&day, &openRaw, &closeRaw, &closed); err != nil {
			rows.Close()
			return cfg, err
		}
		w := schedule.WeeklyHours{Weekday: time.Weekday(day), Closed: closed}
		// Unparseable stored times resolve as closed.
		open, errOpen := temporal.ParseWallTime(openRaw)
		cl, errClose := temporal.ParseWallTime(closeRaw)
		if errOpen != nil || errClose != nil {
			w.Closed = true
		} else {
			w.Open, w.Close = open, cl
		}
		cfg.Weekly = append(cfg.Weekly, w)
	}
	rows.Close()
	if rows.Err() != nil {
		return cfg, rows.Err()
	}

	rows, err = s.pool.Query(ctx, `
		SELECT id, date, is_closed, open_time, close_time, COALESCE(reason, '')
		FROM hours_exceptions
		WHERE business_id = $1
		ORDER BY date
	`, businessID)
	if err != nil {
		return cfg, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id, reason       string
			date             time.Time
			closed           bool
			openPtr, closePtr *string
		)
		if err := rows.Scan(&id, &date, &closed, &openPtr, &closePtr, &reason); err != nil {
			return cfg, err
		}
		cfg.Exceptions = append(cfg.Exceptions, schedule.ExceptionFromFields(
			id, temporal.DateOf(date), closed, parseOptionalWallTime(openPtr), parseOptionalWallTime(closePtr), reason,
		))
	}
	return cfg, rows.Err()
}

func parseOptionalWallTime(raw *string) *temporal.WallTime {
	if raw == nil {
		return nil
	}
	w, err := temporal.ParseWallTime(*raw)
	if err != nil {
		return nil
	}
	return &w
}

func (s *PostgresStore) GetService(ctx context.Context, id string) (model.Service, error) {
	var svc model.Service
	err := s.pool.QueryRow(ctx, `
		SELECT id, business_id, name, duration_min, price_cents, is_active
		FROM services
		WHERE id = $1
	`, id).Scan(&svc.ID, &svc.BusinessID, &svc.Name, &svc.DurationMin, &svc.PriceCents, &svc.Active)
	if err != nil {
		return model.Service{}, mapErr(err)
	}
	return svc, nil
}

func (s *PostgresStore) FindBlockingIntervals(ctx context.Context, businessID string, from, to time.Time) ([]availability.Interval, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT start_time, end_time
		FROM bookings
		WHERE business_id = $1
			AND status = ANY($2)
			AND start_time < $4
			AND end_time > $3
		ORDER BY start_time ASC
	`, businessID, statusStrings(model.BlockingStatuses), from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []availability.Interval
	for rows.Next() {
		var iv availability.Interval
		if err := rows.Scan(&iv.Start, &iv.End); err != nil {
			return nil, err
		}
		out = append(out, iv)
	}
	return out, rows.Err()
}

const bookingDetailSelect = `
	SELECT b.id, b.business_id, b.service_id, COALESCE(b.client_user_id, ''), b.client_name, b.client_email,
		COALESCE(b.client_phone, ''), b.license_plate, COALESCE(b.vehicle_brand, ''), COALESCE(b.vehicle_model, ''),
		b.vehicle_year, b.mileage, COALESCE(b.client_note, ''), b.start_time, b.end_time, b.status, b.payment_status,
		b.price_cents, b.deposit_cents, COALESCE(b.payment_intent_id, ''), COALESCE(b.internal_note, ''),
		b.created_at, b.updated_at,
		biz.name, biz.slug, COALESCE(biz.email, ''), biz.timezone,
		s.name, s.duration_min, s.price_cents
	FROM bookings b
	JOIN businesses biz ON biz.id = b.business_id
	JOIN services s ON s.id = b.service_id`

func scanBookingDetail(row pgx.Row) (model.BookingDetail, error) {
	var d model.BookingDetail
	var status, paymentStatus string
	err := row.Scan(
		&d.ID, &d.BusinessID, &d.ServiceID, &d.Client.UserID, &d.Client.Name, &d.Client.Email,
		&d.Client.Phone, &d.Client.LicensePlate, &d.Client.VehicleBrand, &d.Client.VehicleModel,
		&d.Client.VehicleYear, &d.Client.Mileage, &d.Client.Note, &d.Start, &d.End, &status, &paymentStatus,
		&d.PriceCents, &d.DepositCents, &d.PaymentIntentID, &d.InternalNote,
		&d.CreatedAt, &d.UpdatedAt,
		&d.Business.Name, &d.Business.Slug, &d.Business.Email, &d.Business.Timezone,
		&d.Service.Name, &d.Service.DurationMin, &d.Service.PriceCents,
	)
	if err != nil {
		return model.BookingDetail{}, err
	}
	d.Status = model.Status(status)
	d.PaymentStatus = model.PaymentStatus(paymentStatus)
	d.Business.ID = d.BusinessID
	d.Service.ID = d.ServiceID
	d.Service.BusinessID = d.BusinessID
	return d, nil
}

func collectDetails(rows pgx.Rows) ([]model.BookingDetail, error) {
	defer rows.Close()
	var out []model.BookingDetail
	for rows.Next() {
		d, err := scanBookingDetail(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetBooking(ctx context.Context, id string) (model.BookingDetail, error) {
	d, err := scanBookingDetail(s.pool.QueryRow(ctx, bookingDetailSelect+` WHERE b.id = $1`, id))
	if err != nil {
		return model.BookingDetail{}, mapErr(err)
	}
	return d, nil
}

func (s *PostgresStore) ListBookings(ctx context.Context, businessID string, f BookingFilter) ([]model.BookingDetail, int, error) {
	f = f.Normalize()
	where := ` WHERE b.business_id = $1`
	args := []any{businessID}
	if f.Status != nil {
		args = append(args, string(*f.Status))
		where += ` AND b.status = $` + strconv.Itoa(len(args))
	}
	if f.From != nil {
		args = append(args, *f.From)
		where += ` AND b.start_time >= $` + strconv.Itoa(len(args))
	}
	if f.To != nil {
		args = append(args, *f.To)
		where += ` AND b.start_time <= $` + strconv.Itoa(len(args))
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM bookings b`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, f.Limit, f.Offset())
	rows, err := s.pool.Query(ctx, bookingDetailSelect+where+
		fmt.Sprintf(` ORDER BY b.start_time ASC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	items, err := collectDetails(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (s *PostgresStore) ListBookingsByClient(ctx context.Context, userID string) ([]model.BookingDetail, error) {
	rows, err := s.pool.Query(ctx, bookingDetailSelect+`
		WHERE b.client_user_id = $1
		ORDER BY b.start_time DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	return collectDetails(rows)
}

func (s *PostgresStore) ListPlanning(ctx context.Context, businessID string, statuses []model.Status, from, to time.Time) ([]model.BookingDetail, error) {
	rows, err := s.pool.Query(ctx, bookingDetailSelect+`
		WHERE b.business_id = $1
			AND b.status = ANY($2)
			AND b.start_time >= $3
			AND b.end_time <= $4
		ORDER BY b.start_time ASC
	`, businessID, statusStrings(statuses), from, to)
	if err != nil {
		return nil, err
	}
	return collectDetails(rows)
}

func (s *PostgresStore) FindBookingByPaymentIntent(ctx context.Context, intentID string) (model.Booking, error) {
	d, err := scanBookingDetail(s.pool.QueryRow(ctx, bookingDetailSelect+` WHERE b.payment_intent_id = $1`, intentID))
	if err != nil {
		return model.Booking{}, mapErr(err)
	}
	return d.Booking, nil
}

func (s *PostgresStore) SetPaymentIntent(ctx context.Context, bookingID, intentID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE bookings SET payment_intent_id = $2, updated_at = now() WHERE id = $1
	`, bookingID, intentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ReplaceWeeklyHours(ctx context.Context, businessID string, hours []schedule.WeeklyHours) error {
	return s.InTx(ctx, func(tx Tx) error {
		pg := tx.(*pgTx).tx
		if _, err := pg.Exec(ctx, `DELETE FROM business_hours WHERE business_id = $1`, businessID); err != nil {
			return err
		}
		for _, h := range hours {
			if _, err := pg.Exec(ctx, `
				INSERT INTO business_hours (business_id, day_of_week, open_time, close_time, is_closed)
				VALUES ($1, $2, $3, $4, $5)
			`, businessID, int16(h.Weekday), h.Open.String(), h.Close.String(), h.Closed); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *PostgresStore) UpsertException(ctx context.Context, businessID string, ex schedule.Exception) (schedule.Exception, error) {
	var openArg, closeArg *string
	if o, c, ok := ex.Hours.Window(); ok {
		openStr, closeStr := o.String(), c.String()
		openArg, closeArg = &openStr, &closeStr
	}
	var date time.Time
	err := s.pool.QueryRow(ctx, `
		INSERT INTO hours_exceptions (id, business_id, date, is_closed, open_time, close_time, reason)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''))
		ON CONFLICT (business_id, date) DO UPDATE
		SET is_closed = EXCLUDED.is_closed,
			open_time = EXCLUDED.open_time,
			close_time = EXCLUDED.close_time,
			reason = EXCLUDED.reason
		RETURNING id, date
	`, uuid.NewString(), businessID, ex.Date.String(), ex.Hours.IsClosed(), openArg, closeArg, ex.Reason).Scan(&ex.ID, &date)
	if err != nil {
		return schedule.Exception{}, mapErr(err)
	}
	ex.Date = temporal.DateOf(date)
	return ex, nil
}

func (s *PostgresStore) DeleteException(ctx context.Context, businessID, exceptionID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM hours_exceptions WHERE id = $1 AND business_id = $2`, exceptionID, businessID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// WithBusinessLock runs fn under READ COMMITTED so that every statement after the
// FOR UPDATE reads a snapshot taken once the lock is held. The overlap re-check
// inside fn is authoritative; the bookings exclusion constraint is the backstop
// and surfaces as ErrOverlap.
func (s *PostgresStore) WithBusinessLock(ctx context.Context, businessID string, wait time.Duration, fn func(Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if stmt := lockTimeoutStmt(wait); stmt != "" {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return mapErr(err)
		}
	}

	var locked string
	if err := tx.QueryRow(ctx, `SELECT id FROM businesses WHERE id = $1 FOR UPDATE`, businessID).Scan(&locked); err != nil {
		return mapErr(err)
	}

	if err := fn(&pgTx{tx: tx, outbox: s.outbox}); err != nil {
		return mapErr(err)
	}
	return mapErr(tx.Commit(ctx))
}

// lockTimeoutStmt bounds the wait for the business row. SET takes no bind
// parameters, so the value is formatted from an integer.
func lockTimeoutStmt(wait time.Duration) string {
	if wait <= 0 {
		return ""
	}
	ms := wait.Milliseconds()
	if ms == 0 {
		ms = 1
	}
	return "SET LOCAL lock_timeout = '" + strconv.FormatInt(ms, 10) + "ms'"
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&pgTx{tx: tx, outbox: s.outbox}); err != nil {
		return mapErr(err)
	}
	return mapErr(tx.Commit(ctx))
}

type pgTx struct {
	tx     pgx.Tx
	outbox *outbox.Repository
}

func (t *pgTx) HasBlockingOverlap(ctx context.Context, businessID string, start, end time.Time) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM bookings
			WHERE business_id = $1
				AND status = ANY($2)
				AND start_time < $4
				AND end_time > $3
		)
	`, businessID, statusStrings(model.BlockingStatuses), start, end).Scan(&exists)
	return exists, err
}

func (t *pgTx) InsertBooking(ctx context.Context, b *model.Booking) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	c := b.Client
	return t.tx.QueryRow(ctx, `
		INSERT INTO bookings
			(id, business_id, service_id, client_user_id, client_name, client_email, client_phone,
			 license_plate, vehicle_brand, vehicle_model, vehicle_year, mileage, client_note,
			 start_time, end_time, status, payment_status, price_cents, deposit_cents)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, NULLIF($7, ''), $8, NULLIF($9, ''), NULLIF($10, ''),
			$11, $12, NULLIF($13, ''), $14, $15, $16, $17, $18, $19)
		RETURNING created_at, updated_at
	`, b.ID, b.BusinessID, b.ServiceID, c.UserID, c.Name, c.Email, c.Phone,
		c.LicensePlate, c.VehicleBrand, c.VehicleModel, c.VehicleYear, c.Mileage, c.Note,
		b.Start, b.End, string(b.Status), string(b.PaymentStatus), b.PriceCents, b.DepositCents,
	).Scan(&b.CreatedAt, &b.UpdatedAt)
}

func (t *pgTx) GetBookingForUpdate(ctx context.Context, id string) (model.Booking, error) {
	d, err := scanBookingDetail(t.tx.QueryRow(ctx, bookingDetailSelect+` WHERE b.id = $1 FOR UPDATE OF b`, id))
	if err != nil {
		return model.Booking{}, mapErr(err)
	}
	return d.Booking, nil
}

func (t *pgTx) UpdateBookingStatus(ctx context.Context, id string, status model.Status, internalNote *string) (model.Booking, error) {
	tag, err := t.tx.Exec(ctx, `
		UPDATE bookings
		SET status = $2,
			internal_note = CASE WHEN $3::boolean THEN $4 ELSE internal_note END,
			updated_at = now()
		WHERE id = $1
	`, id, string(status), internalNote != nil, derefString(internalNote))
	if err != nil {
		return model.Booking{}, err
	}
	if tag.RowsAffected() == 0 {
		return model.Booking{}, ErrNotFound
	}
	return t.GetBookingForUpdate(ctx, id)
}

func (t *pgTx) UpdatePaymentStatus(ctx context.Context, id string, status model.PaymentStatus) (model.Booking, error) {
	tag, err := t.tx.Exec(ctx, `
		UPDATE bookings SET payment_status = $2, updated_at = now() WHERE id = $1
	`, id, string(status))
	if err != nil {
		return model.Booking{}, err
	}
	if tag.RowsAffected() == 0 {
		return model.Booking{}, ErrNotFound
	}
	return t.GetBookingForUpdate(ctx, id)
}

func (t *pgTx) AppendEvent(ctx context.Context, evt outbox.Event) error {
	return t.outbox.Insert(ctx, t.tx, evt)
}

func (t *pgTx) RecordEvent(ctx context.Context, eventID, eventType string) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO inbox_events (event_id, event_type)
		VALUES ($1, $2)
		ON CONFLICT (event_id) DO NOTHING
	`, eventID, eventType)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// mapErr translates driver errors into the package sentinels.
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return ErrNotFound
	case db.IsForeignKeyViolation(err):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case db.IsLockTimeout(err):
		return fmt.Errorf("%w: %v", ErrLockTimeout, err)
	case db.IsExclusionViolation(err):
		return fmt.Errorf("%w: %v", ErrOverlap, err)
	case db.IsRetryable(err):
		return fmt.Errorf("%w: %v", ErrSerialization, err)
	case db.IsUniqueViolation(err):
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}

func statusStrings(in []model.Status) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var _ Store = (*PostgresStore)(nil)
