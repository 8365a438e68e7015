package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/admission-sync/internal/models"
)

func TestSyncStateUpsert(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSyncStateRepository(db)

	ts := time.Date(2025, 6, 3, 10, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO sync_states .* ON CONFLICT \\(dataset\\)").
		WithArgs("students", ts, models.ProvenanceFileImport, "file-watcher", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Upsert(context.Background(), &models.SyncState{
		Dataset:      "students",
		LastSyncedAt: ts,
		Provenance:   models.ProvenanceFileImport,
		UpdatedBy:    "file-watcher",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncStateGet(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSyncStateRepository(db)

	ts := time.Date(2025, 6, 3, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT dataset, last_synced_at, provenance, updated_by, updated_at FROM sync_states WHERE dataset = $1")).
		WithArgs("Admin Users").
		WillReturnRows(sqlmock.NewRows([]string{"dataset", "last_synced_at", "provenance", "updated_by", "updated_at"}).
			AddRow("Admin Users", ts, "direct-store-mutation", "database", ts))

	state, err := repo.Get(context.Background(), "Admin Users")
	require.NoError(t, err)
	assert.Equal(t, models.ProvenanceDirectStoreMutation, state.Provenance)
	assert.Equal(t, "database", state.UpdatedBy)
	assert.True(t, ts.Equal(state.LastSyncedAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncStateGetMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSyncStateRepository(db)

	mock.ExpectQuery("FROM sync_states").WithArgs("students").WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "students")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}
