package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/admission-sync/internal/models"
	appErrors "github.com/noah-isme/admission-sync/pkg/errors"
	"github.com/noah-isme/admission-sync/pkg/export"
)

// ExportFormat names a rendered export type.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

type admissionLister interface {
	List(ctx context.Context, filter models.AdmissionFilter) ([]models.AdmissionRecord, int, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportResult is a rendered export ready to be sent.
type ExportResult struct {
	Filename    string
	ContentType string
	Payload     []byte
	Rows        int
}

// exportHeaders follow the column names of the admissions spreadsheet.
var exportHeaders = []string{
	"Upload Date", "Date of Payment", "Transaction ID", "First Name", "Last Name", "College",
	"10K Paid", "Sem Fee", "Gender", "Fees", "Year", "Withdrawal",
}

// ExportService renders the stored admissions as CSV or PDF.
type ExportService struct {
	repo   admissionLister
	csv    csvRenderer
	pdf    pdfRenderer
	logger *zap.Logger
	now    func() time.Time
}

// NewExportService constructs an ExportService.
func NewExportService(repo admissionLister, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter(true)
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		repo:   repo,
		csv:    csv,
		pdf:    pdf,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Export renders every record, or the records of one college, in the given format.
func (s *ExportService) Export(ctx context.Context, format ExportFormat, college string) (*ExportResult, error) {
	if format == "" {
		format = ExportFormatCSV
	}
	if format != ExportFormatCSV && format != ExportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}

	records, _, err := s.repo.List(ctx, models.AdmissionFilter{College: college})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load students for export")
	}
	dataset := buildAdmissionDataset(records)

	result := &ExportResult{Filename: s.buildFilename(format, college), Rows: len(records)}
	switch format {
	case ExportFormatPDF:
		title := "Student Admissions"
		if college = strings.TrimSpace(college); college != "" {
			title += " - " + college
		}
		result.ContentType = "application/pdf"
		result.Payload, err = s.pdf.Render(dataset, title)
	default:
		result.ContentType = "text/csv; charset=utf-8"
		result.Payload, err = s.csv.Render(dataset)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	s.logger.Info("students exported",
		zap.String("format", string(format)),
		zap.String("college", college),
		zap.Int("rows", result.Rows),
		zap.Int("bytes", len(result.Payload)))
	return result, nil
}

func buildAdmissionDataset(records []models.AdmissionRecord) export.Dataset {
	rows := make([]map[string]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, map[string]string{
			"Upload Date":     rec.UploadDate,
			"Date of Payment": rec.DateOfPayment,
			"Transaction ID":  rec.TransactionID,
			"First Name":      rec.FirstName,
			"Last Name":       rec.LastName,
			"College":         rec.College,
			"10K Paid":        rec.FeePaid,
			"Sem Fee":         rec.SemFee,
			"Gender":          rec.Gender,
			"Fees":            strconv.FormatInt(rec.Fees, 10),
			"Year":            strconv.Itoa(rec.Year),
			"Withdrawal":      rec.Withdrawal,
		})
	}
	return export.Dataset{Headers: exportHeaders, Rows: rows}
}

func (s *ExportService) buildFilename(format ExportFormat, college string) string {
	name := "students"
	if part := sanitizeFilename(college); part != "" {
		name += "_" + part
	}
	return fmt.Sprintf("%s_%s.%s", name, s.now().Format("20060102_150405"), format)
}

func sanitizeFilename(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "\"", "")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
