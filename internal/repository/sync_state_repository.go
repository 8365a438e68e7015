package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/admission-sync/internal/models"
)

// SyncStateRepository persists the last-change record per dataset.
type SyncStateRepository struct {
	db *sqlx.DB
}

// NewSyncStateRepository creates a new SyncStateRepository.
func NewSyncStateRepository(db *sqlx.DB) *SyncStateRepository {
	return &SyncStateRepository{db: db}
}

// Upsert overwrites the state for state.Dataset.
func (r *SyncStateRepository) Upsert(ctx context.Context, state *models.SyncState) error {
	state.UpdatedAt = time.Now().UTC()
	const query = `INSERT INTO sync_states (dataset, last_synced_at, provenance, updated_by, updated_at)
VALUES (:dataset, :last_synced_at, :provenance, :updated_by, :updated_at)
ON CONFLICT (dataset)
DO UPDATE SET last_synced_at = EXCLUDED.last_synced_at, provenance = EXCLUDED.provenance,
              updated_by = EXCLUDED.updated_by, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, state); err != nil {
		return fmt.Errorf("upsert sync state: %w", err)
	}
	return nil
}

// Get returns the state for dataset, or sql.ErrNoRows when none was recorded.
func (r *SyncStateRepository) Get(ctx context.Context, dataset string) (*models.SyncState, error) {
	const query = `SELECT dataset, last_synced_at, provenance, updated_by, updated_at FROM sync_states WHERE dataset = $1`
	var state models.SyncState
	if err := r.db.GetContext(ctx, &state, query, dataset); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get sync state: %w", err)
	}
	return &state, nil
}
