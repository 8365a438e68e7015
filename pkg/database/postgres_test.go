package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/admission-sync/pkg/config"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{Host: "db", Port: 5433, User: "u", Password: "p", Name: "admissions", SSLMode: "disable"})
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=admissions sslmode=disable", dsn)
}

func TestWaitReadyRetriesUntilPingSucceeds(t *testing.T) {
	calls := 0
	ping := func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	}

	err := WaitReady(context.Background(), ping, ReadyConfig{InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWaitReadyGivesUpAfterTimeout(t *testing.T) {
	ping := func(context.Context) error { return errors.New("connection refused") }

	err := WaitReady(context.Background(), ping, ReadyConfig{InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Timeout: 20 * time.Millisecond})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMigrateRejectsUnsafeChannel(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	err = Migrate(context.Background(), sqlx.NewDb(db, "sqlmock"), "changes; DROP TABLE admission_records")
	require.Error(t, err)
}

func TestMigrateInstallsTriggers(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS admission_records").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS idx_admission_records_college").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS sync_states").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS admin_users").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE OR REPLACE FUNCTION notify_admission_change").WillReturnResult(sqlmock.NewResult(0, 0))
	for _, table := range []string{"admission_records", "admin_users"} {
		mock.ExpectExec("DROP TRIGGER IF EXISTS " + table + "_notify").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("CREATE TRIGGER " + table + "_notify .*notify_admission_change\\('admission_changes'\\)").WillReturnResult(sqlmock.NewResult(0, 0))
	}

	require.NoError(t, Migrate(context.Background(), sqlx.NewDb(db, "sqlmock"), "admission_changes"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
