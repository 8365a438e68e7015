package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/admission-sync/internal/middleware"
	"github.com/noah-isme/admission-sync/internal/models"
	"github.com/noah-isme/admission-sync/internal/service"
	appErrors "github.com/noah-isme/admission-sync/pkg/errors"
	"github.com/noah-isme/admission-sync/pkg/response"
)

// lastUpdatedLayout renders dates as dd/mm/yyyy.
const lastUpdatedLayout = "02/01/2006"

type admissionQueries interface {
	List(ctx context.Context, filter models.AdmissionFilter) ([]models.AdmissionRecord, *models.Pagination, error)
	Search(ctx context.Context, query string) ([]models.AdmissionRecord, error)
	ByCollege(ctx context.Context, college string) ([]models.AdmissionRecord, error)
	Suggestions(ctx context.Context, query string) ([]string, error)
	Count(ctx context.Context) (int, error)
	Colleges(ctx context.Context) ([]string, bool, error)
	Admissions(ctx context.Context) ([]models.CollegeCount, bool, error)
	TenKPaid(ctx context.Context) ([]models.CollegeCount, bool, error)
	SemFeePaid(ctx context.Context) ([]models.CollegeFees, bool, error)
	Girls(ctx context.Context) (map[string]int, bool, error)
	Withdrawals(ctx context.Context) ([]models.CollegeCount, bool, error)
	FillingColleges(ctx context.Context) (*models.FillingColleges, bool, error)
}

type admissionExporter interface {
	Export(ctx context.Context, format service.ExportFormat, college string) (*service.ExportResult, error)
}

type lastModifiedSource interface {
	LastModifiedTime(ctx context.Context) (time.Time, service.ModifiedSource)
}

// AdmissionHandler serves the dashboard's student endpoints.
type AdmissionHandler struct {
	service  admissionQueries
	exporter admissionExporter
	tracker  lastModifiedSource
}

// NewAdmissionHandler constructs an AdmissionHandler.
func NewAdmissionHandler(svc admissionQueries, exporter admissionExporter, tracker lastModifiedSource) *AdmissionHandler {
	return &AdmissionHandler{service: svc, exporter: exporter, tracker: tracker}
}

// List godoc
// @Summary List students
// @Tags Students
// @Produce json
// @Param page query int false "Page number"
// @Param page_size query int false "Page size, 0 for all"
// @Success 200 {object} response.Envelope
// @Router /students [get]
func (h *AdmissionHandler) List(c *gin.Context) {
	filter := models.AdmissionFilter{}
	var err error
	if filter.Page, err = intQuery(c, "page"); err != nil {
		response.Error(c, err)
		return
	}
	if filter.PageSize, err = intQuery(c, "page_size"); err != nil {
		response.Error(c, err)
		return
	}
	records, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, pagination)
}

// Count godoc
// @Summary Count students
// @Tags Students
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /students/count [get]
func (h *AdmissionHandler) Count(c *gin.Context) {
	count, err := h.service.Count(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"count": count}, nil)
}

// Search godoc
// @Summary Search students
// @Description Case-insensitive match on first name, last name, transaction id or college
// @Tags Students
// @Produce json
// @Param query query string false "Search text"
// @Success 200 {object} response.Envelope
// @Router /students/search [get]
func (h *AdmissionHandler) Search(c *gin.Context) {
	records, err := h.service.Search(c.Request.Context(), c.Query("query"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// Suggestions godoc
// @Summary Search suggestions
// @Tags Students
// @Accept json
// @Produce json
// @Param payload body object true "{\"query\": \"text\"}"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /students/suggestions [post]
func (h *AdmissionHandler) Suggestions(c *gin.Context) {
	var req struct {
		Query string `json:"query"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid suggestions payload"))
		return
	}
	suggestions, err := h.service.Suggestions(c.Request.Context(), req.Query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, suggestions, nil)
}

// ByCollege godoc
// @Summary Students of one college
// @Tags Students
// @Produce json
// @Param college path string true "College name"
// @Success 200 {object} response.Envelope
// @Router /students/college/{college} [get]
func (h *AdmissionHandler) ByCollege(c *gin.Context) {
	records, err := h.service.ByCollege(c.Request.Context(), c.Param("college"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// Colleges godoc
// @Summary Distinct colleges
// @Tags Students
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /students/colleges [get]
func (h *AdmissionHandler) Colleges(c *gin.Context) {
	colleges, hit, err := h.service.Colleges(c.Request.Context())
	respondCached(c, colleges, hit, err)
}

// Admissions godoc
// @Summary Admissions per college
// @Tags Students
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /students/admissions [get]
func (h *AdmissionHandler) Admissions(c *gin.Context) {
	counts, hit, err := h.service.Admissions(c.Request.Context())
	respondCached(c, counts, hit, err)
}

// TenKPaid godoc
// @Summary 10K fee paid per college
// @Tags Students
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /students/tenk-paid [get]
func (h *AdmissionHandler) TenKPaid(c *gin.Context) {
	counts, hit, err := h.service.TenKPaid(c.Request.Context())
	respondCached(c, counts, hit, err)
}

// SemFeePaid godoc
// @Summary Semester fee paid per college
// @Tags Students
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /students/sem-fee-paid [get]
func (h *AdmissionHandler) SemFeePaid(c *gin.Context) {
	totals, hit, err := h.service.SemFeePaid(c.Request.Context())
	respondCached(c, totals, hit, err)
}

// Girls godoc
// @Summary Female students per college
// @Tags Students
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /students/girls [get]
func (h *AdmissionHandler) Girls(c *gin.Context) {
	counts, hit, err := h.service.Girls(c.Request.Context())
	respondCached(c, counts, hit, err)
}

// Withdrawals godoc
// @Summary Withdrawals per college
// @Tags Students
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /students/withdrawals [get]
func (h *AdmissionHandler) Withdrawals(c *gin.Context) {
	counts, hit, err := h.service.Withdrawals(c.Request.Context())
	respondCached(c, counts, hit, err)
}

// FillingColleges godoc
// @Summary Fast and slow filling colleges
// @Tags Students
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /students/fast-slow-filling-colleges [get]
func (h *AdmissionHandler) FillingColleges(c *gin.Context) {
	filling, hit, err := h.service.FillingColleges(c.Request.Context())
	respondCached(c, filling, hit, err)
}

// LastUpdated godoc
// @Summary Last modification date of the admissions data
// @Tags Students
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/last-updated [get]
func (h *AdmissionHandler) LastUpdated(c *gin.Context) {
	modified, source := h.tracker.LastModifiedTime(c.Request.Context())
	if modified.IsZero() {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "CSV not updated yet."))
		return
	}
	c.Header("Last-Modified", modified.UTC().Format(http.TimeFormat))
	response.JSON(c, http.StatusOK, gin.H{
		"lastModified": modified.In(time.Local).Format(lastUpdatedLayout),
		"source":       source,
	}, nil)
}

// Export godoc
// @Summary Export students
// @Tags Students
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf"
// @Param college query string false "Limit to one college"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /students/export [get]
func (h *AdmissionHandler) Export(c *gin.Context) {
	format := service.ExportFormat(strings.ToLower(strings.TrimSpace(c.DefaultQuery("format", string(service.ExportFormatCSV)))))
	result, err := h.exporter.Export(c.Request.Context(), format, c.Query("college"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, result.ContentType, result.Payload)
}

func respondCached(c *gin.Context, data interface{}, hit bool, err error) {
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, data, nil, middleware.ResponseMeta(c))
}

func intQuery(c *gin.Context, key string) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s must be an integer", key))
	}
	return value, nil
}
