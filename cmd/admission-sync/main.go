package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/admission-sync/internal/handler"
	"github.com/noah-isme/admission-sync/internal/ingest"
	"github.com/noah-isme/admission-sync/internal/repository"
	"github.com/noah-isme/admission-sync/internal/service"
	"github.com/noah-isme/admission-sync/pkg/cache"
	"github.com/noah-isme/admission-sync/pkg/config"
	"github.com/noah-isme/admission-sync/pkg/database"
	"github.com/noah-isme/admission-sync/pkg/jobs"
	"github.com/noah-isme/admission-sync/pkg/logger"
)

const (
	jobTypeReconcile   = "reconcile"
	jobTypeAdminImport = "admin-import"
	shutdownTimeout    = 15 * time.Second
)

// @title Admission Sync API
// @version 1.0.0
// @description Keeps the admissions store in step with the exported spreadsheet and serves the dashboard.
// @BasePath /
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to configure postgres", zap.Error(err))
	}
	defer db.Close()

	redisClient := connectRedis(ctx, cfg, logr)
	if redisClient != nil {
		defer redisClient.Close()
	}

	app := buildApp(cfg, db, redisClient, logr)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           newRouter(cfg, app, logr),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Error("server failed", zap.Error(err))
			stop()
		}
	}()

	var background sync.WaitGroup
	background.Add(1)
	go func() {
		defer background.Done()
		if err := app.runPipeline(ctx, cfg, db); err != nil {
			logr.Error("sync pipeline stopped", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("http shutdown incomplete", zap.Error(err))
	}
	background.Wait()
}

// application holds the wired services shared by the router and the pipeline.
type application struct {
	logger      *zap.Logger
	metrics     *service.MetricsService
	cache       *service.CacheService
	tracker     *service.TrackerService
	reconciler  *service.ReconcileService
	adminImport *service.AdminImportService
	auth        *service.AuthService
	admissions  *service.AdmissionService
	exporter    *service.ExportService
	admissionsQ *jobs.Queue
	adminQ      *jobs.Queue
	ready       map[string]handler.ReadinessCheck
}

func connectRedis(ctx context.Context, cfg *config.Config, logr *zap.Logger) *redis.Client {
	if !cfg.Cache.Enabled {
		return nil
	}
	client, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, aggregate cache disabled", zap.Error(err))
		return nil
	}
	return client
}

func buildApp(cfg *config.Config, db *sqlx.DB, redisClient *redis.Client, logr *zap.Logger) *application {
	metrics := service.NewMetricsService()
	validate := validator.New()

	admissionRepo := repository.NewAdmissionRepository(db)
	syncStateRepo := repository.NewSyncStateRepository(db)
	userRepo := repository.NewUserRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.TTL, logr, redisClient != nil)
	reader := ingest.NewReader(ingest.ReaderConfig{
		LockRetryDelay:  cfg.Sync.LockRetryDelay,
		LockMaxAttempts: cfg.Sync.LockMaxAttempts,
		Logger:          logr,
	})
	tracker := service.NewTrackerService(syncStateRepo, service.TrackerConfig{
		SourcePath: cfg.Sync.FilePath,
		Dataset:    cfg.Sync.Dataset,
	}, logr)

	app := &application{
		logger:  logr,
		metrics: metrics,
		cache:   cacheSvc,
		tracker: tracker,
		reconciler: service.NewReconcileService(admissionRepo, reader, ingest.NewRowMapper(validate), tracker, cacheSvc, metrics, logr, service.ReconcileConfig{
			SourcePath:    cfg.Sync.FilePath,
			Dataset:       cfg.Sync.Dataset,
			ChunkSize:     cfg.Sync.ChunkSize,
			InsertTimeout: cfg.Sync.InsertTimeout,
			Transactional: cfg.Sync.Transactional,
			Ready:         database.ReadyConfig{Timeout: cfg.Database.ConnectTimeout, Logger: logr},
		}),
		auth: service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
			Secret: cfg.JWT.Secret,
			Expiry: cfg.JWT.Expiry,
			Issuer: cfg.JWT.Issuer,
		}),
		admissions: service.NewAdmissionService(admissionRepo, cacheSvc, logr, service.AdmissionServiceConfig{
			CacheTTL:          cfg.Cache.TTL,
			FastFillingWindow: cfg.Admissions.FastFillingWindow,
		}),
		exporter: service.NewExportService(admissionRepo, logr, nil, nil),
		ready: map[string]handler.ReadinessCheck{
			"postgres": admissionRepo.Ping,
		},
	}
	if redisClient != nil {
		app.ready["redis"] = cacheRepo.Ping
	}

	app.admissionsQ = jobs.NewQueue(jobTypeReconcile, app.reconciler.HandleJob, jobs.QueueConfig{Logger: logr})
	if cfg.AdminImport.FilePath != "" {
		app.adminImport = service.NewAdminImportService(userRepo, reader, validate, tracker, logr, service.AdminImportConfig{
			SourcePath:  cfg.AdminImport.FilePath,
			Dataset:     cfg.AdminImport.Dataset,
			DefaultRole: cfg.AdminImport.DefaultRole,
		})
		app.adminQ = jobs.NewQueue(jobTypeAdminImport, app.adminImport.HandleJob, jobs.QueueConfig{Logger: logr})
	}
	return app
}

// runPipeline waits for the store, applies the schema, then starts the watchers,
// queues and change feed. It returns once ctx is cancelled and everything has stopped.
func (a *application) runPipeline(ctx context.Context, cfg *config.Config, db *sqlx.DB) error {
	if err := a.reconciler.WaitForStore(ctx); err != nil {
		return err
	}
	if err := database.Migrate(ctx, db, cfg.ChangeFeed.Channel); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	var wg sync.WaitGroup
	runWatcher := func(path string, queue *jobs.Queue, jobType string) {
		watcher := ingest.NewWatcher(ingest.WatcherConfig{
			Path:         path,
			Debounce:     cfg.Sync.Debounce,
			PollInterval: cfg.Sync.PollInterval,
			Logger:       a.logger,
		}, func(reason string) {
			if _, err := queue.Enqueue(jobs.Job{Type: jobType, Reason: reason}); err != nil {
				a.logger.Warn("failed to queue sync", zap.String("job", jobType), zap.Error(err))
			}
		})
		queue.Start(ctx)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer queue.Stop()
			if err := watcher.Run(ctx); err != nil {
				a.logger.Error("watcher stopped", zap.String("path", watcher.Path()), zap.Error(err))
			}
		}()
	}

	runWatcher(cfg.Sync.FilePath, a.admissionsQ, jobTypeReconcile)
	if a.adminImport != nil {
		runWatcher(cfg.AdminImport.FilePath, a.adminQ, jobTypeAdminImport)
	}

	if cfg.ChangeFeed.Enabled {
		listener, err := database.NewListener(cfg.Database, cfg.ChangeFeed.Channel, a.logger)
		if err != nil {
			a.logger.Error("change feed disabled", zap.Error(err))
		} else {
			feed := service.NewChangeFeedService(listener, a.tracker, a.feedTables(cfg), a.cache, a.metrics, a.logger)
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer listener.Close()
				if err := feed.Run(ctx); err != nil {
					a.logger.Error("change feed stopped", zap.Error(err))
				}
			}()
		}
	}

	wg.Wait()
	return nil
}

func (a *application) feedTables(cfg *config.Config) map[string]service.FeedTable {
	tables := map[string]service.FeedTable{
		service.TableAdmissionRecords: {Dataset: cfg.Sync.Dataset, Guard: a.reconciler, InvalidatesCache: true},
		service.TableAdminUsers:       {Dataset: cfg.AdminImport.Dataset},
	}
	if a.adminImport != nil {
		admins := tables[service.TableAdminUsers]
		admins.Guard = a.adminImport
		tables[service.TableAdminUsers] = admins
	}
	return tables
}
