// Package seed loads development fixtures for the in-memory store.
package seed

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/garagebook/garagebook/services/booking-service/internal/model"
	"github.com/garagebook/garagebook/services/booking-service/internal/schedule"
	"github.com/garagebook/garagebook/services/booking-service/internal/temporal"
	"gopkg.in/yaml.v3"
)

type File struct {
	Businesses []BusinessFixture `yaml:"businesses"`
}

type BusinessFixture struct {
	ID                   string             `yaml:"id"`
	OwnerUserID          string             `yaml:"owner_user_id"`
	Name                 string             `yaml:"name"`
	Slug                 string             `yaml:"slug"`
	Email                string             `yaml:"email"`
	Timezone             string             `yaml:"timezone"`
	Inactive             bool               `yaml:"inactive"`
	OnlinePaymentEnabled bool               `yaml:"online_payment_enabled"`
	PaymentMode          string             `yaml:"payment_mode"`
	DepositAmountCents   *int64             `yaml:"deposit_amount_cents,omitempty"`
	DepositPercent       *int               `yaml:"deposit_percent,omitempty"`
	StripeAccountID      string             `yaml:"stripe_account_id"`
	Hours                []HoursFixture     `yaml:"hours"`
	Exceptions           []ExceptionFixture `yaml:"exceptions"`
	Services             []ServiceFixture   `yaml:"services"`
}

type HoursFixture struct {
	Day    string `yaml:"day"`   // MONDAY
	Open   string `yaml:"open"`  // "08:00"
	Close  string `yaml:"close"` // "18:00"
	Closed bool   `yaml:"closed"`
}

type ExceptionFixture struct {
	Date   string `yaml:"date"` // "2026-05-01"
	Closed bool   `yaml:"closed"`
	Open   string `yaml:"open,omitempty"`
	Close  string `yaml:"close,omitempty"`
	Reason string `yaml:"reason"`
}

type ServiceFixture struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	DurationMin int    `yaml:"duration_min"`
	PriceCents  int64  `yaml:"price_cents"`
	Inactive    bool   `yaml:"inactive"`
}

// Target receives the loaded fixtures; *storage.MemoryStore satisfies it.
type Target interface {
	PutBusiness(model.Business)
	PutService(model.Service)
}

// Load reads, validates and converts the fixture file at path.
func Load(path string) ([]model.Business, []model.Service, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read seed file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) ([]model.Business, []model.Service, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, nil, fmt.Errorf("parse seed file: %w", err)
	}
	if len(f.Businesses) == 0 {
		return nil, nil, errors.New("seed file has no businesses")
	}

	var (
		businesses []model.Business
		services   []model.Service
		seen       = map[string]bool{}
	)
	for i, bf := range f.Businesses {
		biz, err := bf.toModel()
		if err != nil {
			return nil, nil, fmt.Errorf("business %d (%s): %w", i, bf.ID, err)
		}
		if seen[biz.ID] {
			return nil, nil, fmt.Errorf("business %s: duplicate id", biz.ID)
		}
		seen[biz.ID] = true
		businesses = append(businesses, biz)

		for j, sf := range bf.Services {
			if strings.TrimSpace(sf.ID) == "" || strings.TrimSpace(sf.Name) == "" {
				return nil, nil, fmt.Errorf("business %s service %d: id and name are required", biz.ID, j)
			}
			if sf.DurationMin <= 0 || sf.PriceCents < 0 {
				return nil, nil, fmt.Errorf("business %s service %s: duration must be positive and price non-negative", biz.ID, sf.ID)
			}
			services = append(services, model.Service{
				ID:          sf.ID,
				BusinessID:  biz.ID,
				Name:        sf.Name,
				DurationMin: sf.DurationMin,
				PriceCents:  sf.PriceCents,
				Active:      !sf.Inactive,
			})
		}
	}
	return businesses, services, nil
}

// Apply loads the fixture file into t and returns how many businesses and
// services were written.
func Apply(path string, t Target) (int, int, error) {
	businesses, services, err := Load(path)
	if err != nil {
		return 0, 0, err
	}
	for _, b := range businesses {
		t.PutBusiness(b)
	}
	for _, s := range services {
		t.PutService(s)
	}
	return len(businesses), len(services), nil
}

func (bf BusinessFixture) toModel() (model.Business, error) {
	if strings.TrimSpace(bf.ID) == "" || strings.TrimSpace(bf.Name) == "" {
		return model.Business{}, errors.New("id and name are required")
	}
	tz := bf.Timezone
	if tz == "" {
		tz = temporal.DefaultZone
	}
	if _, err := temporal.LoadZone(tz); err != nil {
		return model.Business{}, err
	}
	mode := model.PaymentMode(strings.ToUpper(strings.TrimSpace(bf.PaymentMode)))
	switch mode {
	case "":
		mode = model.PaymentModeNone
	case model.PaymentModeNone, model.PaymentModeDeposit, model.PaymentModeFull:
	default:
		return model.Business{}, fmt.Errorf("unknown payment mode %q", bf.PaymentMode)
	}

	var cfg schedule.Config
	for _, h := range bf.Hours {
		wd, err := schedule.ParseWeekday(h.Day)
		if err != nil {
			return model.Business{}, err
		}
		entry := schedule.WeeklyHours{Weekday: wd, Closed: h.Closed}
		if !h.Closed {
			if entry.Open, err = temporal.ParseWallTime(h.Open); err != nil {
				return model.Business{}, fmt.Errorf("%s open: %w", h.Day, err)
			}
			if entry.Close, err = temporal.ParseWallTime(h.Close); err != nil {
				return model.Business{}, fmt.Errorf("%s close: %w", h.Day, err)
			}
		}
		cfg.Weekly = append(cfg.Weekly, entry)
	}
	if err := schedule.ValidateWeekly(cfg.Weekly); err != nil {
		return model.Business{}, err
	}

	for i, ef := range bf.Exceptions {
		ex, err := ef.toException()
		if err != nil {
			return model.Business{}, fmt.Errorf("exception %d: %w", i, err)
		}
		ex.ID = fmt.Sprintf("%s-ex-%s", bf.ID, ex.Date)
		cfg.Exceptions = append(cfg.Exceptions, ex)
	}

	return model.Business{
		ID:                   bf.ID,
		OwnerUserID:          bf.OwnerUserID,
		Name:                 bf.Name,
		Slug:                 bf.Slug,
		Email:                bf.Email,
		Timezone:             tz,
		Active:               !bf.Inactive,
		OnlinePaymentEnabled: bf.OnlinePaymentEnabled,
		PaymentMode:          mode,
		DepositAmountCents:   bf.DepositAmountCents,
		DepositPercent:       bf.DepositPercent,
		StripeAccountID:      bf.StripeAccountID,
		Schedule:             cfg,
	}, nil
}

func (ef ExceptionFixture) toException() (schedule.Exception, error) {
	date, err := temporal.ParseDate(ef.Date)
	if err != nil {
		return schedule.Exception{}, err
	}
	var openAt, closeAt *temporal.WallTime
	for _, p := range []struct {
		raw string
		dst **temporal.WallTime
	}{{ef.Open, &openAt}, {ef.Close, &closeAt}} {
		if p.raw == "" {
			continue
		}
		wt, err := temporal.ParseWallTime(p.raw)
		if err != nil {
			return schedule.Exception{}, err
		}
		*p.dst = &wt
	}
	return schedule.NewException(date, ef.Closed, openAt, closeAt, ef.Reason)
}
