package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/admission-sync/internal/models"
	appErrors "github.com/noah-isme/admission-sync/pkg/errors"
)

// Who performed an update, by provenance.
const (
	UpdatedByFileWatcher = "file-watcher"
	UpdatedByDatabase    = "database"
	UpdatedBySystem      = "system"
)

// ModifiedSource says which fallback tier produced a last-modified time.
type ModifiedSource string

const (
	ModifiedFromFile    ModifiedSource = "file"
	ModifiedFromTracker ModifiedSource = "tracker"
	ModifiedFromClock   ModifiedSource = "clock"
)

type syncStateRepository interface {
	Upsert(ctx context.Context, state *models.SyncState) error
	Get(ctx context.Context, dataset string) (*models.SyncState, error)
}

// TrackerConfig configures the TrackerService.
type TrackerConfig struct {
	// SourcePath is the admissions file whose mtime is the first fallback tier.
	SourcePath string
	// Dataset is the dataset consulted by LastModifiedTime.
	Dataset string
}

// TrackerService records when each dataset last changed and where the change came from.
type TrackerService struct {
	repo       syncStateRepository
	sourcePath string
	dataset    string
	logger     *zap.Logger

	now  func() time.Time
	stat func(string) (os.FileInfo, error)

	mu    sync.RWMutex
	known map[string]models.SyncState
}

// NewTrackerService constructs a TrackerService.
func NewTrackerService(repo syncStateRepository, cfg TrackerConfig, logger *zap.Logger) *TrackerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TrackerService{
		repo:       repo,
		sourcePath: cfg.SourcePath,
		dataset:    cfg.Dataset,
		logger:     logger.Named("tracker"),
		now:        func() time.Time { return time.Now().UTC() },
		stat:       os.Stat,
		known:      make(map[string]models.SyncState),
	}
}

// UpdatedByFor maps a provenance to the actor stored alongside it.
func UpdatedByFor(p models.Provenance) string {
	switch p {
	case models.ProvenanceFileImport:
		return UpdatedByFileWatcher
	case models.ProvenanceDirectStoreMutation:
		return UpdatedByDatabase
	default:
		return UpdatedBySystem
	}
}

// RecordUpdate overwrites the state of dataset with the current time and provenance.
func (s *TrackerService) RecordUpdate(ctx context.Context, dataset string, provenance models.Provenance) error {
	if dataset == "" {
		return appErrors.Clone(appErrors.ErrValidation, "dataset is required")
	}
	if !provenance.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown provenance %q", provenance))
	}

	state := models.SyncState{
		Dataset:      dataset,
		LastSyncedAt: s.now(),
		Provenance:   provenance,
		UpdatedBy:    UpdatedByFor(provenance),
	}
	s.remember(state)

	if err := s.repo.Upsert(ctx, &state); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record update")
	}
	s.logger.Info("dataset update recorded",
		zap.String("dataset", dataset),
		zap.String("provenance", string(provenance)),
		zap.Time("at", state.LastSyncedAt))
	return nil
}

// LastUpdate returns the recorded state of dataset, or nil when nothing was recorded.
// When the store cannot be reached the last state seen by this process is returned.
func (s *TrackerService) LastUpdate(ctx context.Context, dataset string) (*models.SyncState, error) {
	state, err := s.repo.Get(ctx, dataset)
	if err == nil {
		s.remember(*state)
		return state, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if cached, ok := s.recalled(dataset); ok {
		s.logger.Warn("serving remembered sync state", zap.String("dataset", dataset), zap.Error(err))
		return &cached, nil
	}
	return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load last update")
}

// LastModifiedTime returns the source file mtime, falling back to the tracker
// timestamp of the configured dataset, falling back to the current time.
func (s *TrackerService) LastModifiedTime(ctx context.Context) (time.Time, ModifiedSource) {
	if s.sourcePath != "" {
		if info, err := s.stat(s.sourcePath); err == nil {
			return info.ModTime().UTC(), ModifiedFromFile
		}
	}
	state, err := s.LastUpdate(ctx, s.dataset)
	if err != nil {
		s.logger.Warn("tracker unavailable for last-modified time", zap.Error(err))
	}
	if state != nil && !state.LastSyncedAt.IsZero() {
		return state.LastSyncedAt.UTC(), ModifiedFromTracker
	}
	return s.now(), ModifiedFromClock
}

func (s *TrackerService) remember(state models.SyncState) {
	s.mu.Lock()
	s.known[state.Dataset] = state
	s.mu.Unlock()
}

func (s *TrackerService) recalled(dataset string) (models.SyncState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.known[dataset]
	return state, ok
}
