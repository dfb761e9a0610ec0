package seed

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/garagebook/garagebook/services/booking-service/internal/model"
	"github.com/garagebook/garagebook/services/booking-service/internal/schedule"
	"github.com/garagebook/garagebook/services/booking-service/internal/storage"
	"github.com/garagebook/garagebook/services/booking-service/internal/temporal"
	"github.com/stretchr/testify/require"
)

const fixture = `
businesses:
  - id: biz-1
    owner_user_id: owner-1
    name: Garage du Centre
    slug: garage-du-centre
    payment_mode: deposit
    deposit_percent: 30
    hours:
      - { day: MONDAY, open: "08:00", close: "18:00" }
      - { day: SUNDAY, closed: true }
    exceptions:
      - { date: "2026-03-02", open: "10:00", close: "12:00", reason: inventaire }
    services:
      - { id: svc-1, name: Vidange, duration_min: 60, price_cents: 7900 }
      - { id: svc-2, name: Ancien forfait, duration_min: 30, price_cents: 1000, inactive: true }
`

func TestParseFixture(t *testing.T) {
	businesses, services, err := Parse([]byte(fixture))
	require.NoError(t, err)
	require.Len(t, businesses, 1)
	require.Len(t, services, 2)

	biz := businesses[0]
	require.Equal(t, temporal.DefaultZone, biz.Timezone)
	require.Equal(t, model.PaymentModeDeposit, biz.PaymentMode)
	require.True(t, biz.Active)
	require.Equal(t, 30, *biz.DepositPercent)

	monday := temporal.NewDate(2026, time.March, 2)
	require.Equal(t, "10:00-12:00", schedule.Resolve(biz.Schedule, monday).String())
	require.Equal(t, "08:00-18:00", schedule.Resolve(biz.Schedule, monday.AddDays(7)).String())
	require.True(t, schedule.Resolve(biz.Schedule, monday.AddDays(6)).IsClosed())

	require.Equal(t, "biz-1", services[1].BusinessID)
	require.False(t, services[1].Active)
}

func TestParseRejectsBadFixtures(t *testing.T) {
	cases := map[string]string{
		"empty":          `businesses: []`,
		"bad zone":       "businesses:\n  - { id: b, name: B, timezone: Mars/Olympus }",
		"bad mode":       "businesses:\n  - { id: b, name: B, payment_mode: later }",
		"inverted hours": "businesses:\n  - id: b\n    name: B\n    hours:\n      - { day: MONDAY, open: \"18:00\", close: \"08:00\" }",
		"open exception": "businesses:\n  - id: b\n    name: B\n    exceptions:\n      - { date: \"2026-03-02\" }",
		"duplicate":      "businesses:\n  - { id: b, name: B }\n  - { id: b, name: C }",
		"bad service":    "businesses:\n  - id: b\n    name: B\n    services:\n      - { id: s, name: S, duration_min: 0 }",
	}
	for name, raw := range cases {
		if _, _, err := Parse([]byte(raw)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestApplyIntoMemoryStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fixture), 0o600))

	store := storage.NewMemoryStore()
	nb, ns, err := Apply(path, store)
	require.NoError(t, err)
	require.Equal(t, 1, nb)
	require.Equal(t, 2, ns)

	biz, err := store.GetBusiness(t.Context(), "biz-1")
	require.NoError(t, err)
	require.Equal(t, "Garage du Centre", biz.Name)
	svc, err := store.GetService(t.Context(), "svc-1")
	require.NoError(t, err)
	require.Equal(t, 60, svc.DurationMin)
}

func TestDevSeedFileLoads(t *testing.T) {
	businesses, services, err := Load(filepath.Join("..", "..", "seed.dev.yaml"))
	require.NoError(t, err)
	require.Len(t, businesses, 2)
	require.NotEmpty(t, services)
}
