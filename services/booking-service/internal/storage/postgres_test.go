package storage

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/garagebook/garagebook/libs/db"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestMapErr_SQLStates(t *testing.T) {
	cases := []struct {
		name string
		in   error
		want error
	}{
		{"no rows", pgx.ErrNoRows, ErrNotFound},
		{"missing business on hours insert", fmt.Errorf("insert hours: %w", &pgconn.PgError{Code: db.CodeForeignKeyViolation}), ErrNotFound},
		{"lock timeout", &pgconn.PgError{Code: db.CodeLockNotAvailable}, ErrLockTimeout},
		{"exclusion", &pgconn.PgError{Code: db.CodeExclusionViolation}, ErrOverlap},
		{"serialization", &pgconn.PgError{Code: db.CodeSerializationFailure}, ErrSerialization},
		{"unique", &pgconn.PgError{Code: db.CodeUniqueViolation}, ErrDuplicate},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.ErrorIs(t, mapErr(tc.in), tc.want)
		})
	}

	plain := errors.New("connection reset")
	require.Equal(t, plain, mapErr(plain))
	require.NoError(t, mapErr(nil))
}

func TestLockTimeoutStmt(t *testing.T) {
	require.Equal(t, "", lockTimeoutStmt(0))
	require.Equal(t, "", lockTimeoutStmt(-time.Second))
	require.Equal(t, "SET LOCAL lock_timeout = '2500ms'", lockTimeoutStmt(2500*time.Millisecond))
	require.Equal(t, "SET LOCAL lock_timeout = '1ms'", lockTimeoutStmt(time.Microsecond))
}
