package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/noah-isme/admission-sync/internal/models"
)

// Tables published on the change feed.
const (
	TableAdmissionRecords = "admission_records"
	TableAdminUsers       = "admin_users"
)

type notificationSource interface {
	Notifications() <-chan *pq.Notification
	Ping() error
}

// WriteGuard reports whether this process is currently writing a table itself.
type WriteGuard interface {
	Writing() bool
}

// FeedTable binds a notifying table to the dataset it belongs to.
type FeedTable struct {
	Dataset string
	// Guard suppresses notifications caused by this process's own imports.
	Guard WriteGuard
	// InvalidatesCache drops the admissions cache on every recorded change.
	InvalidatesCache bool
}

// ChangeFeedService records changes made to the store outside the file pipeline.
type ChangeFeedService struct {
	source       notificationSource
	tracker      updateRecorder
	tables       map[string]FeedTable
	cache        *CacheService
	metrics      *MetricsService
	logger       *zap.Logger
	pingInterval time.Duration
}

type feedPayload struct {
	Table string `json:"table"`
	Op    string `json:"op"`
}

// NewChangeFeedService constructs a ChangeFeedService.
func NewChangeFeedService(source notificationSource, tracker updateRecorder, tables map[string]FeedTable, cache *CacheService, metrics *MetricsService, logger *zap.Logger) *ChangeFeedService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChangeFeedService{
		source:       source,
		tracker:      tracker,
		tables:       tables,
		cache:        cache,
		metrics:      metrics,
		logger:       logger.Named("change-feed"),
		pingInterval: 90 * time.Second,
	}
}

// Run consumes notifications until ctx is cancelled or the source closes.
func (s *ChangeFeedService) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	notifications := s.source.Notifications()
	for {
		select {
		case <-ctx.Done():
			return nil
		case n, ok := <-notifications:
			if !ok {
				s.logger.Warn("change feed closed")
				return nil
			}
			if n == nil {
				s.logger.Info("change feed re-established, notifications may have been missed")
				continue
			}
			s.handle(ctx, n)
		case <-ticker.C:
			go func() {
				if err := s.source.Ping(); err != nil {
					s.logger.Warn("change feed ping failed", zap.Error(err))
				}
			}()
		}
	}
}

func (s *ChangeFeedService) handle(ctx context.Context, n *pq.Notification) {
	var payload feedPayload
	if err := json.Unmarshal([]byte(n.Extra), &payload); err != nil {
		s.logger.Warn("malformed change notification", zap.String("payload", n.Extra), zap.Error(err))
		return
	}
	table, ok := s.tables[payload.Table]
	if !ok {
		s.logger.Debug("notification for untracked table", zap.String("table", payload.Table))
		return
	}
	if table.Guard != nil && table.Guard.Writing() {
		s.metrics.ObserveFeedNotification(payload.Table, false)
		s.logger.Debug("ignoring notification from own import", zap.String("table", payload.Table), zap.String("op", payload.Op))
		return
	}

	s.metrics.ObserveFeedNotification(payload.Table, true)
	if err := s.tracker.RecordUpdate(ctx, table.Dataset, models.ProvenanceDirectStoreMutation); err != nil {
		s.logger.Warn("failed to record direct store mutation", zap.String("dataset", table.Dataset), zap.Error(err))
	}
	if table.InvalidatesCache {
		if err := s.cache.InvalidateAdmissions(ctx); err != nil {
			s.logger.Warn("failed to invalidate admissions cache", zap.Error(err))
		}
	}
}
