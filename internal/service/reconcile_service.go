package service

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/admission-sync/internal/ingest"
	"github.com/noah-isme/admission-sync/internal/models"
	"github.com/noah-isme/admission-sync/internal/repository"
	"github.com/noah-isme/admission-sync/pkg/database"
	appErrors "github.com/noah-isme/admission-sync/pkg/errors"
	"github.com/noah-isme/admission-sync/pkg/jobs"
)

type admissionStore interface {
	repository.AdmissionWriter
	Ping(ctx context.Context) error
	WithinTransaction(ctx context.Context, fn func(repository.AdmissionWriter) error) error
}

type updateRecorder interface {
	RecordUpdate(ctx context.Context, dataset string, provenance models.Provenance) error
}

// ReconcileConfig configures the ReconcileService.
type ReconcileConfig struct {
	SourcePath    string
	Dataset       string
	ChunkSize     int
	InsertTimeout time.Duration
	Transactional bool
	// QuietPeriod keeps Writing true for a while after a pass so the pass's own
	// change notifications, which arrive asynchronously, are not taken for direct edits.
	QuietPeriod time.Duration
	Ready       database.ReadyConfig
}

// ReconcileService replaces the stored admissions with the current contents of the source file.
type ReconcileService struct {
	store   admissionStore
	reader  *ingest.Reader
	mapper  *ingest.RowMapper
	tracker updateRecorder
	cache   *CacheService
	metrics *MetricsService
	logger  *zap.Logger
	cfg     ReconcileConfig
	now     func() time.Time

	mu         sync.Mutex
	running    bool
	pending    bool
	pendingBy  string
	quietUntil time.Time
	last       *models.SyncResult
}

// NewReconcileService constructs a ReconcileService.
func NewReconcileService(store admissionStore, reader *ingest.Reader, mapper *ingest.RowMapper, tracker updateRecorder, cache *CacheService, metrics *MetricsService, logger *zap.Logger, cfg ReconcileConfig) *ReconcileService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 50
	}
	if cfg.InsertTimeout <= 0 {
		cfg.InsertTimeout = 30 * time.Second
	}
	if cfg.QuietPeriod <= 0 {
		cfg.QuietPeriod = 2 * time.Second
	}
	if cfg.Ready.Logger == nil {
		cfg.Ready.Logger = logger
	}
	return &ReconcileService{
		store:   store,
		reader:  reader,
		mapper:  mapper,
		tracker: tracker,
		cache:   cache,
		metrics: metrics,
		logger:  logger.Named("reconciler"),
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Dataset returns the dataset this service reconciles.
func (s *ReconcileService) Dataset() string {
	return s.cfg.Dataset
}

// WaitForStore blocks until the store answers a ping. Each time Ready.Timeout elapses
// without an answer a warning is logged and the wait starts over; only ctx ends it early.
func (s *ReconcileService) WaitForStore(ctx context.Context) error {
	for {
		err := database.WaitReady(ctx, s.store.Ping, s.cfg.Ready)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "store did not become ready")
		}
		s.logger.Warn("store still unavailable, waiting again",
			zap.Duration("waited", s.cfg.Ready.Timeout),
			zap.Error(err))
	}
}

// Reconcile runs one full-refresh pass. A call made while a pass is active marks one
// follow-up pass, which the active caller runs before returning, and returns
// ErrSyncInProgress. Further calls fold into that follow-up.
func (s *ReconcileService) Reconcile(ctx context.Context, trigger string) (models.SyncResult, error) {
	s.mu.Lock()
	if s.running {
		s.pending = true
		s.pendingBy = trigger
		s.mu.Unlock()
		s.logger.Debug("pass already running, follow-up queued", zap.String("trigger", trigger))
		return models.SyncResult{Dataset: s.cfg.Dataset, Trigger: trigger}, appErrors.ErrSyncInProgress
	}
	s.running = true
	s.mu.Unlock()

	for {
		result, err := s.runPass(ctx, trigger)

		s.mu.Lock()
		s.last = &result
		if !s.pending || ctx.Err() != nil {
			s.running = false
			s.pending = false
			s.mu.Unlock()
			return result, err
		}
		trigger = s.pendingBy
		s.pending = false
		s.mu.Unlock()

		if err != nil {
			s.logger.Warn("pass failed, running queued follow-up", zap.Error(err))
		}
	}
}

// HandleJob adapts Reconcile to the job queue.
func (s *ReconcileService) HandleJob(ctx context.Context, job jobs.Job) error {
	_, err := s.Reconcile(ctx, job.Reason)
	if errors.Is(err, appErrors.ErrSyncInProgress) {
		return nil
	}
	return err
}

// Writing reports whether a pass is replacing records or has just finished doing so.
func (s *ReconcileService) Writing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running || s.now().Before(s.quietUntil)
}

// Status returns the running flags and the last pass result.
func (s *ReconcileService) Status() models.SyncStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	status := models.SyncStatus{
		Dataset: s.cfg.Dataset,
		Running: s.running,
		Pending: s.pending,
		Metrics: s.metrics.Snapshot(),
	}
	if s.last != nil {
		last := *s.last
		status.Last = &last
	}
	return status
}

func (s *ReconcileService) runPass(ctx context.Context, trigger string) (result models.SyncResult, err error) {
	result = models.SyncResult{Dataset: s.cfg.Dataset, Trigger: trigger, StartedAt: s.now()}
	logger := s.logger.With(zap.String("dataset", s.cfg.Dataset), zap.String("trigger", trigger))
	defer func() {
		result.FinishedAt = s.now()
		if err != nil {
			result.Error = err.Error()
		}
		s.metrics.ObservePass(result)
		s.logSummary(logger, result)
	}()

	if _, statErr := os.Stat(s.cfg.SourcePath); errors.Is(statErr, fs.ErrNotExist) {
		result.Skipped = models.SkipSourceMissing
		return result, nil
	}

	batch, err := s.collect(ctx, &result)
	switch {
	case ingest.IsReadKind(err, ingest.ReadNotFound):
		result.Skipped = models.SkipSourceMissing
		return result, nil
	case ingest.IsReadKind(err, ingest.ReadLocked):
		result.Skipped = models.SkipSourceLocked
		return result, nil
	case err != nil:
		return result, err
	}

	if len(batch) == 0 {
		result.Skipped = models.SkipEmptyBatch
		return result, nil
	}

	defer func() {
		s.mu.Lock()
		s.quietUntil = s.now().Add(s.cfg.QuietPeriod)
		s.mu.Unlock()
	}()

	if s.cfg.Transactional {
		err = s.store.WithinTransaction(ctx, func(w repository.AdmissionWriter) error {
			return s.replace(ctx, w, batch, &result, logger)
		})
	} else {
		err = s.replace(ctx, s.store, batch, &result, logger)
	}
	if err != nil {
		return result, err
	}
	result.Changed = true

	if err := s.tracker.RecordUpdate(ctx, s.cfg.Dataset, models.ProvenanceFileImport); err != nil {
		logger.Warn("failed to record file import", zap.Error(err))
	}
	if err := s.cache.InvalidateAdmissions(ctx); err != nil {
		logger.Warn("failed to invalidate admissions cache", zap.Error(err))
	}
	return result, nil
}

// collect streams the source file into valid records. Unparseable lines and rows that
// fail validation are counted as invalid and left out.
func (s *ReconcileService) collect(ctx context.Context, result *models.SyncResult) ([]models.AdmissionRecord, error) {
	var batch []models.AdmissionRecord
	err := s.reader.Stream(ctx, s.cfg.SourcePath, func(row ingest.Row) error {
		result.RowsSeen++
		if row.Err != nil {
			result.Invalid++
			s.logger.Debug("unparseable row skipped", zap.Int("line", row.Line), zap.Error(row.Err))
			return nil
		}
		rec := s.mapper.Map(row.Values)
		if err := s.mapper.Validate(row.Values, rec); err != nil {
			result.Invalid++
			s.logger.Debug("invalid row skipped", zap.Int("line", row.Line), zap.Error(err))
			return nil
		}
		result.Valid++
		batch = append(batch, rec)
		return nil
	})
	return batch, err
}

// replace deletes every record then inserts batch chunk by chunk. A failed chunk is
// retried one row at a time so only the offending rows are lost; a timed-out chunk
// is dropped whole.
func (s *ReconcileService) replace(ctx context.Context, w repository.AdmissionWriter, batch []models.AdmissionRecord, result *models.SyncResult, logger *zap.Logger) error {
	deleted, err := w.DeleteAll(ctx)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to clear admissions")
	}
	result.Deleted = deleted

	for start := 0; start < len(batch); start += s.cfg.ChunkSize {
		end := start + s.cfg.ChunkSize
		if end > len(batch) {
			end = len(batch)
		}
		chunk := batch[start:end]

		inserted, timedOut, err := s.insertWithTimeout(ctx, w, chunk)
		if err == nil {
			result.Inserted += inserted
			continue
		}

		result.FailedChunks++
		logger.Warn("insert chunk failed",
			zap.Int("chunk", start/s.cfg.ChunkSize+1),
			zap.Int("first_row", start),
			zap.Int("rows", len(chunk)),
			zap.Bool("timed_out", timedOut),
			zap.Error(err))
		if timedOut || ctx.Err() != nil {
			result.Rejected += len(chunk)
			continue
		}

		for i := range chunk {
			n, _, rowErr := s.insertWithTimeout(ctx, w, chunk[i:i+1])
			if rowErr != nil {
				result.Rejected++
				logger.Warn("row rejected",
					zap.String("transaction_id", chunk[i].TransactionID),
					zap.Error(rowErr))
				continue
			}
			result.Inserted += n
		}
	}
	return nil
}

func (s *ReconcileService) insertWithTimeout(ctx context.Context, w repository.AdmissionWriter, records []models.AdmissionRecord) (int, bool, error) {
	chunkCtx, cancel := context.WithTimeout(ctx, s.cfg.InsertTimeout)
	defer cancel()
	n, err := w.InsertChunk(chunkCtx, records)
	timedOut := err != nil && errors.Is(chunkCtx.Err(), context.DeadlineExceeded)
	return n, timedOut, err
}

func (s *ReconcileService) logSummary(logger *zap.Logger, result models.SyncResult) {
	fields := []zap.Field{
		zap.String("outcome", PassOutcome(result)),
		zap.Int("rows", result.RowsSeen),
		zap.Int("valid", result.Valid),
		zap.Int("invalid", result.Invalid),
		zap.Int64("deleted", result.Deleted),
		zap.Int("inserted", result.Inserted),
		zap.Int("rejected", result.Rejected),
		zap.Int("failed_chunks", result.FailedChunks),
		zap.Duration("duration", result.FinishedAt.Sub(result.StartedAt)),
	}
	switch {
	case result.Error != "":
		logger.Error("reconciliation failed", append(fields, zap.String("error", result.Error))...)
	case result.Skipped == models.SkipSourceLocked:
		logger.Warn("source file locked, waiting for next change", fields...)
	case result.Skipped != "":
		logger.Info("reconciliation skipped", append(fields, zap.String("reason", string(result.Skipped)))...)
	default:
		logger.Info("reconciliation completed", fields...)
	}
}
