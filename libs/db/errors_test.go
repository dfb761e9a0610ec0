package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestErrorClassification(t *testing.T) {
	wrapped := fmt.Errorf("insert booking: %w", &pgconn.PgError{Code: CodeExclusionViolation})
	if !IsExclusionViolation(wrapped) {
		t.Fatal("expected exclusion violation through wrapping")
	}
	if !IsRetryable(&pgconn.PgError{Code: CodeDeadlockDetected}) {
		t.Fatal("expected deadlock to be retryable")
	}
	if !IsLockTimeout(&pgconn.PgError{Code: CodeLockNotAvailable}) {
		t.Fatal("expected lock timeout")
	}
	if !IsForeignKeyViolation(fmt.Errorf("insert hours: %w", &pgconn.PgError{Code: CodeForeignKeyViolation})) {
		t.Fatal("expected foreign key violation through wrapping")
	}
	if IsUniqueViolation(errors.New("plain")) || Code(nil) != "" {
		t.Fatal("plain errors carry no sqlstate")
	}
}
