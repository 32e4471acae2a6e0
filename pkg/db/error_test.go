package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestIsDuplicateKeyErr(t *testing.T) {
	assert.True(t, IsDuplicateKeyErr(gorm.ErrDuplicatedKey))
	assert.True(t, IsDuplicateKeyErr(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	assert.True(t, IsDuplicateKeyErr(errors.New("constraint failed: UNIQUE constraint failed: payments.receipt_number (2067)")))
	assert.False(t, IsDuplicateKeyErr(errors.New("connection reset")))
	assert.False(t, IsDuplicateKeyErr(nil))
}

func TestIsRetryableErr(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{&pgconn.PgError{Code: "40001"}, true},
		{fmt.Errorf("apply: %w", &pgconn.PgError{Code: "40P01"}), true},
		{&pgconn.PgError{Code: "55P03"}, true},
		{&pgconn.PgError{Code: "23505"}, false},
		{errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		{errors.New("record not found"), false},
		{nil, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, IsRetryableErr(tc.err), "%v", tc.err)
	}
}
