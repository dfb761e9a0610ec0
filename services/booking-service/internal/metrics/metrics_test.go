package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	Register()
	Register()

	before := testutil.ToFloat64(bookingAttempts.WithLabelValues("conflict"))
	IncCreateAttempt("conflict")
	if got := testutil.ToFloat64(bookingAttempts.WithLabelValues("conflict")); got != before+1 {
		t.Fatalf("expected %v, got %v", before+1, got)
	}

	IncSettlement("PAID")
	if got := testutil.ToFloat64(settlements.WithLabelValues("PAID")); got < 1 {
		t.Fatalf("expected settlement counted, got %v", got)
	}
}
