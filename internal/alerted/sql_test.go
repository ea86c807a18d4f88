package alerted

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLSet(t *testing.T) (*SQLSet, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS alerted_tokens").
		WillReturnResult(sqlmock.NewResult(0, 0))

	set, err := NewSQLSet(sqlx.NewDb(db, "sqlmock"))
	require.NoError(t, err)
	return set, mock
}

func TestSQLSetContains(t *testing.T) {
	set, mock := newSQLSet(t)
	ctx := context.Background()

	mock.ExpectQuery("SELECT expires_at FROM alerted_tokens").
		WithArgs("tok").
		WillReturnRows(sqlmock.NewRows([]string{"expires_at"}).AddRow(time.Now().Add(time.Hour)))
	assert.True(t, set.Contains(ctx, "tok"))

	// Expired row no longer suppresses.
	mock.ExpectQuery("SELECT expires_at FROM alerted_tokens").
		WithArgs("tok").
		WillReturnRows(sqlmock.NewRows([]string{"expires_at"}).AddRow(time.Now().Add(-time.Hour)))
	assert.False(t, set.Contains(ctx, "tok"))

	// Missing row.
	mock.ExpectQuery("SELECT expires_at FROM alerted_tokens").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"expires_at"}))
	assert.False(t, set.Contains(ctx, "ghost"))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLSetContainsDegradesOnError(t *testing.T) {
	set, mock := newSQLSet(t)

	mock.ExpectQuery("SELECT expires_at FROM alerted_tokens").
		WithArgs("tok").
		WillReturnError(assert.AnError)

	assert.False(t, set.Contains(context.Background(), "tok"),
		"database errors degrade to not-suppressed")
}

func TestSQLSetAdd(t *testing.T) {
	set, mock := newSQLSet(t)

	mock.ExpectExec("INSERT INTO alerted_tokens").
		WithArgs("tok", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, set.Add(context.Background(), "tok", time.Hour))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLSetPrune(t *testing.T) {
	set, mock := newSQLSet(t)

	mock.ExpectExec("DELETE FROM alerted_tokens").
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := set.Prune(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
