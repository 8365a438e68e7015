package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/admission-sync/internal/models"
	appErrors "github.com/noah-isme/admission-sync/pkg/errors"
)

type admissionReader interface {
	List(ctx context.Context, filter models.AdmissionFilter) ([]models.AdmissionRecord, int, error)
	Count(ctx context.Context) (int, error)
	Colleges(ctx context.Context) ([]string, error)
	CountByCollege(ctx context.Context) ([]models.CollegeCount, error)
	FeePaidByCollege(ctx context.Context) ([]models.CollegeCount, error)
	FemaleByCollege(ctx context.Context) ([]models.CollegeCount, error)
	WithdrawalsByCollege(ctx context.Context) ([]models.CollegeCount, error)
	SemFeePaidByCollege(ctx context.Context) ([]models.CollegeFees, error)
	CollegeUploads(ctx context.Context) ([]models.CollegeUpload, error)
}

// uploadDateLayout matches the dd-mm-yyyy cells, with or without leading zeros.
const uploadDateLayout = "2-1-2006"

const (
	maxSuggestionMatches = 10
	maxSuggestions       = 5
)

// AdmissionServiceConfig tunes the read side.
type AdmissionServiceConfig struct {
	CacheTTL          time.Duration
	FastFillingWindow time.Duration
}

// AdmissionService answers dashboard queries over the reconciled records.
type AdmissionService struct {
	repo   admissionReader
	cache  *CacheService
	logger *zap.Logger
	cfg    AdmissionServiceConfig
	now    func() time.Time
}

// NewAdmissionService constructs an AdmissionService.
func NewAdmissionService(repo admissionReader, cache *CacheService, logger *zap.Logger, cfg AdmissionServiceConfig) *AdmissionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.FastFillingWindow <= 0 {
		cfg.FastFillingWindow = 7 * 24 * time.Hour
	}
	return &AdmissionService{
		repo:   repo,
		cache:  cache,
		logger: logger,
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// List returns records page by page. A zero page size returns everything.
func (s *AdmissionService) List(ctx context.Context, filter models.AdmissionFilter) ([]models.AdmissionRecord, *models.Pagination, error) {
	if filter.PageSize < 0 || filter.Page < 0 {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "page and page_size must not be negative")
	}
	records, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	return records, &models.Pagination{Page: page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Search matches the query against names, transaction id and college.
func (s *AdmissionService) Search(ctx context.Context, query string) ([]models.AdmissionRecord, error) {
	records, _, err := s.repo.List(ctx, models.AdmissionFilter{Search: query})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to search students")
	}
	return records, nil
}

// ByCollege returns the records of one college.
func (s *AdmissionService) ByCollege(ctx context.Context, college string) ([]models.AdmissionRecord, error) {
	if strings.TrimSpace(college) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "college is required")
	}
	records, _, err := s.repo.List(ctx, models.AdmissionFilter{College: college})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch students by college")
	}
	return records, nil
}

// Suggestions returns up to five distinct field values matching the query.
func (s *AdmissionService) Suggestions(ctx context.Context, query string) ([]string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "query is required")
	}
	records, _, err := s.repo.List(ctx, models.AdmissionFilter{Search: query, PageSize: maxSuggestionMatches})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate suggestions")
	}

	needle := strings.ToLower(query)
	seen := make(map[string]struct{})
	suggestions := []string{}
	for _, rec := range records {
		for _, value := range []string{rec.FirstName, rec.LastName, strings.TrimSpace(rec.College), rec.TransactionID} {
			if len(suggestions) == maxSuggestions {
				return suggestions, nil
			}
			if !strings.Contains(strings.ToLower(value), needle) {
				continue
			}
			if _, ok := seen[value]; ok {
				continue
			}
			seen[value] = struct{}{}
			suggestions = append(suggestions, value)
		}
	}
	return suggestions, nil
}

// Count returns the number of stored records.
func (s *AdmissionService) Count(ctx context.Context) (int, error) {
	count, err := s.repo.Count(ctx)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count students")
	}
	return count, nil
}

// Colleges returns the distinct trimmed colleges.
func (s *AdmissionService) Colleges(ctx context.Context) ([]string, bool, error) {
	return cachedAggregate(ctx, s, "colleges", "failed to fetch colleges", s.repo.Colleges)
}

// Admissions counts records per college.
func (s *AdmissionService) Admissions(ctx context.Context) ([]models.CollegeCount, bool, error) {
	return cachedAggregate(ctx, s, "by-college", "failed to fetch admission data", s.repo.CountByCollege)
}

// TenKPaid counts records per college whose 10K fee is paid.
func (s *AdmissionService) TenKPaid(ctx context.Context) ([]models.CollegeCount, bool, error) {
	return cachedAggregate(ctx, s, "tenk-paid", "failed to fetch 10K fee data", s.repo.FeePaidByCollege)
}

// SemFeePaid counts records per college whose semester fee is paid.
func (s *AdmissionService) SemFeePaid(ctx context.Context) ([]models.CollegeFees, bool, error) {
	return cachedAggregate(ctx, s, "sem-fee-paid", "failed to fetch sem fee paid data", s.repo.SemFeePaidByCollege)
}

// Girls returns the female count keyed by college.
func (s *AdmissionService) Girls(ctx context.Context) (map[string]int, bool, error) {
	return cachedAggregate(ctx, s, "girls", "failed to fetch girls count", func(ctx context.Context) (map[string]int, error) {
		counts, err := s.repo.FemaleByCollege(ctx)
		if err != nil {
			return nil, err
		}
		byCollege := make(map[string]int, len(counts))
		for _, c := range counts {
			byCollege[c.College] = c.Count
		}
		return byCollege, nil
	})
}

// Withdrawals lists every college with its withdrawal count, zero included.
func (s *AdmissionService) Withdrawals(ctx context.Context) ([]models.CollegeCount, bool, error) {
	return cachedAggregate(ctx, s, "withdrawals", "failed to fetch withdrawal data", s.repo.WithdrawalsByCollege)
}

// FillingColleges marks a college fast filling when any of its records has an upload
// date inside the configured window; every other college is slow filling.
func (s *AdmissionService) FillingColleges(ctx context.Context) (*models.FillingColleges, bool, error) {
	return cachedAggregate(ctx, s, "filling", "failed to classify colleges", func(ctx context.Context) (*models.FillingColleges, error) {
		colleges, err := s.repo.Colleges(ctx)
		if err != nil {
			return nil, err
		}
		uploads, err := s.repo.CollegeUploads(ctx)
		if err != nil {
			return nil, err
		}
		return classifyFilling(colleges, uploads, s.now(), s.cfg.FastFillingWindow), nil
	})
}

func classifyFilling(colleges []string, uploads []models.CollegeUpload, now time.Time, window time.Duration) *models.FillingColleges {
	start := now.Add(-window)
	recent := make(map[string]int)
	for _, u := range uploads {
		uploaded, err := time.Parse(uploadDateLayout, strings.TrimSpace(u.UploadDate))
		if err != nil {
			continue
		}
		if uploaded.Before(start) || uploaded.After(now) {
			continue
		}
		recent[u.College]++
	}

	result := &models.FillingColleges{FastFillingColleges: []string{}, SlowFillingColleges: []string{}}
	for college := range recent {
		result.FastFillingColleges = append(result.FastFillingColleges, college)
	}
	sort.Slice(result.FastFillingColleges, func(i, j int) bool {
		a, b := result.FastFillingColleges[i], result.FastFillingColleges[j]
		if recent[a] != recent[b] {
			return recent[a] > recent[b]
		}
		return a < b
	})
	for _, college := range colleges {
		if _, ok := recent[college]; !ok {
			result.SlowFillingColleges = append(result.SlowFillingColleges, college)
		}
	}
	return result
}

// cachedAggregate serves key from the admissions cache or loads and caches it.
func cachedAggregate[T any](ctx context.Context, s *AdmissionService, key, failure string, load func(context.Context) (T, error)) (T, bool, error) {
	cacheKey := AdmissionsKey(key)
	var value T
	if s.cache.Get(ctx, cacheKey, &value) {
		return value, true, nil
	}
	value, err := load(ctx)
	if err != nil {
		var zero T
		return zero, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, failure)
	}
	s.cache.Set(ctx, cacheKey, value, s.cfg.CacheTTL)
	return value, false, nil
}
