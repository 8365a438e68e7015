package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/admission-sync/api/swagger"
	"github.com/noah-isme/admission-sync/internal/handler"
	"github.com/noah-isme/admission-sync/internal/middleware"
	"github.com/noah-isme/admission-sync/pkg/config"
	"github.com/noah-isme/admission-sync/pkg/logger"
	corsmiddleware "github.com/noah-isme/admission-sync/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/admission-sync/pkg/middleware/requestid"
)

func newRouter(cfg *config.Config, app *application, logr *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(app.metrics, "/metrics"))
	r.Use(middleware.WithResponseMeta())

	metricsHandler := handler.NewMetricsHandler(app.metrics, app.ready)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	admissionHandler := handler.NewAdmissionHandler(app.admissions, app.exporter, app.tracker)
	targets := []handler.SyncTarget{{Dataset: cfg.Sync.Dataset, JobType: jobTypeReconcile, Queue: app.admissionsQ}}
	if app.adminQ != nil {
		targets = append(targets, handler.SyncTarget{Dataset: cfg.AdminImport.Dataset, JobType: jobTypeAdminImport, Queue: app.adminQ})
	}
	syncHandler := handler.NewSyncHandler(app.reconciler, app.tracker, cfg.AdminImport.Dataset, targets...)
	authHandler := handler.NewAuthHandler(app.auth)

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", authHandler.Login)
	api.GET("/last-update", syncHandler.LastUpdate)

	students := api.Group("/students")
	students.GET("", admissionHandler.List)
	students.GET("/all", admissionHandler.List)
	students.GET("/count", admissionHandler.Count)
	students.GET("/search", admissionHandler.Search)
	students.POST("/suggestions", admissionHandler.Suggestions)
	students.GET("/college/:college", admissionHandler.ByCollege)
	students.GET("/colleges", admissionHandler.Colleges)
	students.GET("/admissions", admissionHandler.Admissions)
	students.GET("/tenk-paid", admissionHandler.TenKPaid)
	students.GET("/sem-fee-paid", admissionHandler.SemFeePaid)
	students.GET("/girls", admissionHandler.Girls)
	students.GET("/withdrawals", admissionHandler.Withdrawals)
	students.GET("/fast-slow-filling-colleges", admissionHandler.FillingColleges)
	students.GET("/last-updated", admissionHandler.LastUpdated)
	students.GET("/export", admissionHandler.Export)

	syncGroup := api.Group("/sync")
	syncGroup.GET("/status", syncHandler.Status)
	syncGroup.POST("/trigger",
		middleware.JWT(app.auth),
		middleware.RequireAdmin(),
		middleware.Audit(logr, "sync.trigger"),
		syncHandler.Trigger)

	return r
}
