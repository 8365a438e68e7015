package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/admission-sync/internal/ingest"
	"github.com/noah-isme/admission-sync/internal/models"
	"github.com/noah-isme/admission-sync/pkg/jobs"
)

type adminUserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.AdminUser, error)
	CreateIfMissing(ctx context.Context, user *models.AdminUser) (bool, error)
}

// AdminImportConfig configures the admin users import.
type AdminImportConfig struct {
	SourcePath  string
	Dataset     string
	DefaultRole string
	BcryptCost  int
	QuietPeriod time.Duration
}

// AdminImportService provisions admin users from their spreadsheet. It only adds
// users; existing accounts and accounts missing from the file are left alone.
type AdminImportService struct {
	repo      adminUserRepository
	reader    *ingest.Reader
	validator *validator.Validate
	tracker   updateRecorder
	logger    *zap.Logger
	cfg       AdminImportConfig
	now       func() time.Time

	mu         sync.Mutex
	running    bool
	quietUntil time.Time
}

// NewAdminImportService constructs an AdminImportService.
func NewAdminImportService(repo adminUserRepository, reader *ingest.Reader, validate *validator.Validate, tracker updateRecorder, logger *zap.Logger, cfg AdminImportConfig) *AdminImportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cfg.DefaultRole == "" {
		cfg.DefaultRole = "admin"
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.QuietPeriod <= 0 {
		cfg.QuietPeriod = 2 * time.Second
	}
	return &AdminImportService{
		repo:      repo,
		reader:    reader,
		validator: validate,
		tracker:   tracker,
		logger:    logger.Named("admin-import"),
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Import adds every valid admin row whose email is not stored yet.
func (s *AdminImportService) Import(ctx context.Context, trigger string) (models.SyncResult, error) {
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.quietUntil = s.now().Add(s.cfg.QuietPeriod)
		s.mu.Unlock()
	}()

	result := models.SyncResult{Dataset: s.cfg.Dataset, Trigger: trigger, StartedAt: s.now()}
	logger := s.logger.With(zap.String("dataset", s.cfg.Dataset), zap.String("trigger", trigger))

	if _, err := os.Stat(s.cfg.SourcePath); errors.Is(err, fs.ErrNotExist) {
		result.Skipped = models.SkipSourceMissing
		result.FinishedAt = s.now()
		logger.Info("admin users file missing, nothing imported")
		return result, nil
	}

	err := s.reader.Stream(ctx, s.cfg.SourcePath, func(row ingest.Row) error {
		result.RowsSeen++
		user, password, ok := s.userFromRow(row, logger)
		if !ok {
			result.Invalid++
			return nil
		}
		result.Valid++
		created, err := s.createIfMissing(ctx, user, password)
		if err != nil {
			result.Rejected++
			logger.Warn("failed to create admin user", zap.Int("line", row.Line), zap.Error(err))
			return nil
		}
		if created {
			result.Inserted++
			logger.Debug("admin user created", zap.Int("line", row.Line))
		}
		return nil
	})
	result.FinishedAt = s.now()

	switch {
	case ingest.IsReadKind(err, ingest.ReadNotFound):
		result.Skipped = models.SkipSourceMissing
		return result, nil
	case ingest.IsReadKind(err, ingest.ReadLocked):
		result.Skipped = models.SkipSourceLocked
		logger.Warn("admin users file locked, waiting for next change")
		return result, nil
	case err != nil:
		result.Error = err.Error()
		logger.Error("admin import failed", zap.Error(err))
		return result, err
	}

	result.Changed = result.Inserted > 0
	if err := s.tracker.RecordUpdate(ctx, s.cfg.Dataset, models.ProvenanceFileImport); err != nil {
		logger.Warn("failed to record admin import", zap.Error(err))
	}
	logger.Info("admin import completed",
		zap.Int("rows", result.RowsSeen),
		zap.Int("invalid", result.Invalid),
		zap.Int("created", result.Inserted),
		zap.Duration("duration", result.FinishedAt.Sub(result.StartedAt)))
	return result, nil
}

// HandleJob adapts Import to the job queue.
func (s *AdminImportService) HandleJob(ctx context.Context, job jobs.Job) error {
	_, err := s.Import(ctx, job.Reason)
	return err
}

// Writing reports whether an import is running or has just finished.
func (s *AdminImportService) Writing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running || s.now().Before(s.quietUntil)
}

// createIfMissing hashes the password only for emails the store does not hold yet.
func (s *AdminImportService) createIfMissing(ctx context.Context, user *models.AdminUser, password string) (bool, error) {
	_, err := s.repo.FindByEmail(ctx, user.Email)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return false, fmt.Errorf("hash admin password: %w", err)
	}
	user.PasswordHash = string(hash)
	return s.repo.CreateIfMissing(ctx, user)
}

func (s *AdminImportService) userFromRow(row ingest.Row, logger *zap.Logger) (*models.AdminUser, string, bool) {
	if row.Err != nil {
		logger.Debug("unparseable admin row skipped", zap.Int("line", row.Line), zap.Error(row.Err))
		return nil, "", false
	}
	email := strings.TrimSpace(ingest.Cell(row.Values, ingest.ColumnAdminEmail))
	password := ingest.Cell(row.Values, ingest.ColumnAdminPassword)
	if err := s.validator.Var(email, "required,email"); err != nil {
		logger.Debug("admin row without a valid email skipped", zap.Int("line", row.Line))
		return nil, "", false
	}
	if strings.TrimSpace(password) == "" {
		logger.Debug("admin row without a password skipped", zap.Int("line", row.Line))
		return nil, "", false
	}

	role := strings.TrimSpace(ingest.Cell(row.Values, ingest.ColumnAdminRole))
	if role == "" {
		role = s.cfg.DefaultRole
	}
	return &models.AdminUser{
		Email: strings.ToLower(email),
		Role:  role,
	}, password, true
}
