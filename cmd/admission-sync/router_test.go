package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/admission-sync/pkg/config"
)

const lastUpdateQuery = `SELECT dataset, last_synced_at, provenance, updated_by, updated_at FROM sync_states WHERE dataset = \$1`

func newTestRouter(t *testing.T) (*gin.Engine, sqlmock.Sqlmock) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = raw.Close() })
	db := sqlx.NewDb(raw, "sqlmock")

	cfg := &config.Config{
		Env:       "test",
		APIPrefix: "/api",
		JWT:       config.JWTConfig{Secret: "test-secret", Expiry: time.Hour},
		Sync: config.SyncConfig{
			FilePath: filepath.Join(t.TempDir(), "admissions.csv"),
			Dataset:  "students",
		},
		AdminImport: config.AdminImportConfig{Dataset: "Admin Users"},
	}
	logr := zap.NewNop()
	app := buildApp(cfg, db, nil, logr)
	return newRouter(cfg, app, logr), mock
}

func syncStateRows(dataset string, ts time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"dataset", "last_synced_at", "provenance", "updated_by", "updated_at"}).
		AddRow(dataset, ts, "file-import", "file-watcher", ts)
}

func TestLastUpdateDefaultsToAdminDataset(t *testing.T) {
	r, mock := newTestRouter(t)
	ts := time.Date(2025, 6, 3, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(lastUpdateQuery).
		WithArgs("Admin Users").
		WillReturnRows(syncStateRows("Admin Users", ts))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/last-update", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data struct {
			UpdateType string `json:"updateType"`
			UpdatedBy  string `json:"updatedBy"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "file-import", body.Data.UpdateType)
	assert.Equal(t, "file-watcher", body.Data.UpdatedBy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLastUpdateHonoursDatasetQuery(t *testing.T) {
	r, mock := newTestRouter(t)
	ts := time.Date(2025, 6, 4, 8, 30, 0, 0, time.UTC)
	mock.ExpectQuery(lastUpdateQuery).
		WithArgs("students").
		WillReturnRows(syncStateRows("students", ts))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/last-update?dataset=students", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
