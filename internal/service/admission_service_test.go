package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/admission-sync/internal/models"
	appErrors "github.com/noah-isme/admission-sync/pkg/errors"
)

type fakeAdmissionReader struct {
	records     []models.AdmissionRecord
	colleges    []string
	female      []models.CollegeCount
	withdrawals []models.CollegeCount
	uploads     []models.CollegeUpload
	calls       map[string]int
	err         error
	lastFilter  models.AdmissionFilter
}

func (f *fakeAdmissionReader) hit(op string) error {
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[op]++
	return f.err
}

func (f *fakeAdmissionReader) List(ctx context.Context, filter models.AdmissionFilter) ([]models.AdmissionRecord, int, error) {
	f.lastFilter = filter
	if err := f.hit("list"); err != nil {
		return nil, 0, err
	}
	return f.records, len(f.records), nil
}

func (f *fakeAdmissionReader) Count(ctx context.Context) (int, error) {
	return len(f.records), f.hit("count")
}

func (f *fakeAdmissionReader) Colleges(ctx context.Context) ([]string, error) {
	return f.colleges, f.hit("colleges")
}

func (f *fakeAdmissionReader) CountByCollege(ctx context.Context) ([]models.CollegeCount, error) {
	return []models.CollegeCount{{College: "MIT", Count: 2}}, f.hit("by-college")
}

func (f *fakeAdmissionReader) FeePaidByCollege(ctx context.Context) ([]models.CollegeCount, error) {
	return nil, f.hit("tenk")
}

func (f *fakeAdmissionReader) FemaleByCollege(ctx context.Context) ([]models.CollegeCount, error) {
	return f.female, f.hit("female")
}

func (f *fakeAdmissionReader) WithdrawalsByCollege(ctx context.Context) ([]models.CollegeCount, error) {
	return f.withdrawals, f.hit("withdrawals")
}

func (f *fakeAdmissionReader) SemFeePaidByCollege(ctx context.Context) ([]models.CollegeFees, error) {
	return nil, f.hit("sem-fee")
}

func (f *fakeAdmissionReader) CollegeUploads(ctx context.Context) ([]models.CollegeUpload, error) {
	return f.uploads, f.hit("uploads")
}

type memoryCacheRepo struct {
	mu    sync.Mutex
	items map[string][]byte
}

func newMemoryCacheRepo() *memoryCacheRepo {
	return &memoryCacheRepo{items: map[string][]byte{}}
}

func (m *memoryCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.items[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = raw
	return nil
}

func (m *memoryCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range m.items {
		if strings.HasPrefix(key, prefix) {
			delete(m.items, key)
		}
	}
	return nil
}

func TestAdmissionServiceAggregatesAreCached(t *testing.T) {
	repo := &fakeAdmissionReader{}
	cache := NewCacheService(newMemoryCacheRepo(), NewMetricsService(), time.Minute, nil, true)
	svc := NewAdmissionService(repo, cache, nil, AdmissionServiceConfig{})

	first, hit, err := svc.Admissions(context.Background())
	require.NoError(t, err)
	assert.False(t, hit)

	second, hit, err := svc.Admissions(context.Background())
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, repo.calls["by-college"])

	require.NoError(t, cache.InvalidateAdmissions(context.Background()))
	_, hit, err = svc.Admissions(context.Background())
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2, repo.calls["by-college"])
}

func TestAdmissionServiceWithoutCache(t *testing.T) {
	repo := &fakeAdmissionReader{female: []models.CollegeCount{{College: "MIT", Count: 3}, {College: "IIT", Count: 1}}}
	svc := NewAdmissionService(repo, nil, nil, AdmissionServiceConfig{})

	girls, hit, err := svc.Girls(context.Background())
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, map[string]int{"MIT": 3, "IIT": 1}, girls)
}

func TestAdmissionServiceStoreErrors(t *testing.T) {
	repo := &fakeAdmissionReader{err: errors.New("connection refused")}
	svc := NewAdmissionService(repo, nil, nil, AdmissionServiceConfig{})

	_, _, err := svc.Withdrawals(context.Background())
	assert.ErrorIs(t, err, appErrors.ErrInternal)

	_, err = svc.Count(context.Background())
	assert.ErrorIs(t, err, appErrors.ErrInternal)
}

func TestAdmissionServiceListPagination(t *testing.T) {
	repo := &fakeAdmissionReader{records: []models.AdmissionRecord{{TransactionID: "TX-1"}}}
	svc := NewAdmissionService(repo, nil, nil, AdmissionServiceConfig{})

	records, pagination, err := svc.List(context.Background(), models.AdmissionFilter{PageSize: 20})
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, &models.Pagination{Page: 1, PageSize: 20, TotalCount: 1}, pagination)

	_, _, err = svc.List(context.Background(), models.AdmissionFilter{PageSize: -1})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestAdmissionServiceByCollegeRequiresName(t *testing.T) {
	svc := NewAdmissionService(&fakeAdmissionReader{}, nil, nil, AdmissionServiceConfig{})

	_, err := svc.ByCollege(context.Background(), "  ")
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestAdmissionServiceSuggestions(t *testing.T) {
	repo := &fakeAdmissionReader{records: []models.AdmissionRecord{
		{FirstName: "Ravi", LastName: "Kumar", College: " Ravindra College ", TransactionID: "TX-1"},
		{FirstName: "Ravi", LastName: "Shankar", College: "MIT", TransactionID: "TX-RAV"},
	}}
	svc := NewAdmissionService(repo, nil, nil, AdmissionServiceConfig{})

	suggestions, err := svc.Suggestions(context.Background(), "rav")
	require.NoError(t, err)
	assert.Equal(t, []string{"Ravi", "Ravindra College", "TX-RAV"}, suggestions)
	assert.Equal(t, maxSuggestionMatches, repo.lastFilter.PageSize)

	_, err = svc.Suggestions(context.Background(), " ")
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestAdmissionServiceFillingColleges(t *testing.T) {
	repo := &fakeAdmissionReader{
		colleges: []string{"IIT", "MIT", "NIT", "VIT"},
		uploads: []models.CollegeUpload{
			{College: "MIT", UploadDate: "10-06-2025"},
			{College: "MIT", UploadDate: "12-06-2025"},
			{College: "VIT", UploadDate: "9-6-2025"},
			{College: "IIT", UploadDate: "01-05-2025"},
			{College: "NIT", UploadDate: models.NotAvailable},
			{College: "NIT", UploadDate: "20-06-2025"},
		},
	}
	svc := NewAdmissionService(repo, nil, nil, AdmissionServiceConfig{})
	svc.now = func() time.Time { return time.Date(2025, 6, 13, 10, 0, 0, 0, time.UTC) }

	filling, _, err := svc.FillingColleges(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"MIT", "VIT"}, filling.FastFillingColleges)
	assert.Equal(t, []string{"IIT", "NIT"}, filling.SlowFillingColleges)
}

func TestAdmissionServiceFillingWithoutUploads(t *testing.T) {
	repo := &fakeAdmissionReader{colleges: []string{"IIT"}}
	svc := NewAdmissionService(repo, nil, nil, AdmissionServiceConfig{})

	filling, _, err := svc.FillingColleges(context.Background())
	require.NoError(t, err)
	assert.Empty(t, filling.FastFillingColleges)
	assert.Equal(t, []string{"IIT"}, filling.SlowFillingColleges)
}
