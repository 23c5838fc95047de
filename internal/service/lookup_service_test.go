package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fhsh/makeup-exam-api/internal/models"
	appErrors "github.com/fhsh/makeup-exam-api/pkg/errors"
)

type examFinderStub struct {
	mu     sync.Mutex
	exams  []models.MakeupExam
	err    error
	calls  int
	last   string
	onRead func()
}

func (s *examFinderStub) ListByStudentID(ctx context.Context, studentID string) ([]models.MakeupExam, error) {
	s.mu.Lock()
	s.calls++
	s.last = studentID
	err := s.err
	out := make([]models.MakeupExam, 0)
	for _, e := range s.exams {
		if e.StudentID == studentID {
			out = append(out, e)
		}
	}
	onRead := s.onRead
	s.onRead = nil
	s.mu.Unlock()

	if onRead != nil {
		onRead()
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *examFinderStub) replace(exams []models.MakeupExam) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exams = exams
}

// memoryCacheStore round-trips values through JSON like the Redis repository.
type memoryCacheStore struct {
	mu       sync.Mutex
	entries  map[string][]byte
	counters map[string]int64
	deleted  []string
	getErr   error
	incrErr  error
}

func newMemoryCacheStore() *memoryCacheStore {
	return &memoryCacheStore{entries: map[string][]byte{}, counters: map[string]int64{}}
}

func (m *memoryCacheStore) Get(ctx context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return m.getErr
	}
	raw, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCacheStore) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = raw
	return nil
}

func (m *memoryCacheStore) Counter(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return 0, m.getErr
	}
	return m.counters[key], nil
}

func (m *memoryCacheStore) Incr(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.incrErr != nil {
		return 0, m.incrErr
	}
	m.counters[key]++
	return m.counters[key], nil
}

func (m *memoryCacheStore) DeleteByPattern(ctx context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, pattern)
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range m.entries {
		if strings.HasPrefix(key, prefix) {
			delete(m.entries, key)
		}
	}
	return nil
}

func (m *memoryCacheStore) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[key]
	return ok
}

func lookupFixtureExams() []models.MakeupExam {
	return []models.MakeupExam{
		{ID: 1, StudentID: "A123", StudentName: strPtr("王小明"), ClassName: strPtr("301"), Subject: "數學", ExamDate: "2月6日", ExamTime: "08:00-08:50", Location: "篤行樓209教室"},
		{ID: 2, StudentID: "A123", StudentName: strPtr("王小明"), ClassName: strPtr("301"), Subject: "英文", ExamDate: "2月7日", ExamTime: "09:00-09:50", Location: "篤行樓210教室"},
		{ID: 3, StudentID: "a123", Subject: "物理", ExamDate: "2月8日", ExamTime: "10:00", Location: "B1"},
	}
}

func TestLookupServiceMasksAndProjects(t *testing.T) {
	repo := &examFinderStub{exams: lookupFixtureExams()}
	svc := NewLookupService(repo, nil, nil, nil)

	views, err := svc.Lookup(context.Background(), "A123")
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "數學", views[0].Subject)
	assert.Equal(t, "英文", views[1].Subject)
	require.NotNil(t, views[0].StudentName)
	assert.Equal(t, "王○明", *views[0].StudentName)

	raw, err := json.Marshal(views[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"subject":"數學","exam_date":"2月6日","exam_time":"08:00-08:50","location":"篤行樓209教室","student_name":"王○明"}`, string(raw))
}

func TestLookupServiceMatchesExactly(t *testing.T) {
	repo := &examFinderStub{exams: lookupFixtureExams()}
	svc := NewLookupService(repo, nil, nil, nil)

	views, err := svc.Lookup(context.Background(), " A123")
	require.NoError(t, err)
	assert.Empty(t, views)
	assert.Equal(t, " A123", repo.last)

	views, err = svc.Lookup(context.Background(), "a123")
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Nil(t, views[0].StudentName)
}

func TestLookupServiceEmptyResultEncodesAsArray(t *testing.T) {
	svc := NewLookupService(&examFinderStub{}, nil, nil, nil)

	views, err := svc.Lookup(context.Background(), "B999")
	require.NoError(t, err)
	raw, err := json.Marshal(views)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(raw))
}

func TestLookupServiceStoreFailure(t *testing.T) {
	svc := NewLookupService(&examFinderStub{err: errors.New("connection refused")}, nil, nil, nil)

	_, err := svc.Lookup(context.Background(), "A123")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, http.StatusInternalServerError, appErr.Status)
}

func TestLookupServiceUsesCache(t *testing.T) {
	repo := &examFinderStub{exams: lookupFixtureExams()}
	store := newMemoryCacheStore()
	metrics := NewMetricsService()
	svc := NewLookupService(repo, NewLookupCache(store, metrics, time.Minute, nil), metrics, nil)
	ctx := context.Background()

	first, err := svc.Lookup(ctx, "A123")
	require.NoError(t, err)
	second, err := svc.Lookup(ctx, "A123")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, repo.calls)
	assert.True(t, store.has(lookupKey(0, "A123")))

	empty, err := svc.Lookup(ctx, "B999")
	require.NoError(t, err)
	cachedEmpty, err := svc.Lookup(ctx, "B999")
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.NotNil(t, cachedEmpty)
	assert.Equal(t, 2, repo.calls)

	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.cacheResults.WithLabelValues(LookupCacheHit)))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.cacheResults.WithLabelValues(LookupCacheMiss)))
}

func TestLookupServiceInvalidateAdvancesGeneration(t *testing.T) {
	repo := &examFinderStub{exams: lookupFixtureExams()}
	store := newMemoryCacheStore()
	metrics := NewMetricsService()
	svc := NewLookupService(repo, NewLookupCache(store, metrics, time.Minute, nil), metrics, nil)
	ctx := context.Background()

	_, err := svc.Lookup(ctx, "A123")
	require.NoError(t, err)
	require.NoError(t, svc.InvalidateCache(ctx))

	assert.Equal(t, int64(1), store.counters[lookupGenerationKey])
	assert.Equal(t, []string{"makeup:exams:0:*"}, store.deleted)
	assert.False(t, store.has(lookupKey(0, "A123")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.cacheGeneration))

	_, err = svc.Lookup(ctx, "A123")
	require.NoError(t, err)
	assert.Equal(t, 2, repo.calls)
	assert.True(t, store.has(lookupKey(1, "A123")))
}

func TestLookupServiceNeverServesRosterReplacedDuringLookup(t *testing.T) {
	oldRoster := []models.MakeupExam{{StudentID: "A123", Subject: "OLD", ExamDate: "2月6日", ExamTime: "08:00", Location: "A101"}}
	newRoster := []models.MakeupExam{{StudentID: "A123", Subject: "NEW", ExamDate: "2月9日", ExamTime: "13:00", Location: "B202"}}

	repo := &examFinderStub{exams: oldRoster}
	store := newMemoryCacheStore()
	svc := NewLookupService(repo, NewLookupCache(store, nil, time.Minute, nil), nil, nil)
	ctx := context.Background()

	// An upload commits and invalidates after this lookup read the store but
	// before it wrote the cache.
	repo.onRead = func() {
		repo.replace(newRoster)
		require.NoError(t, svc.InvalidateCache(ctx))
	}
	stale, err := svc.Lookup(ctx, "A123")
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "OLD", stale[0].Subject)

	fresh, err := svc.Lookup(ctx, "A123")
	require.NoError(t, err)
	require.Len(t, fresh, 1)
	assert.Equal(t, "NEW", fresh[0].Subject)

	again, err := svc.Lookup(ctx, "A123")
	require.NoError(t, err)
	assert.Equal(t, "NEW", again[0].Subject)
	assert.Equal(t, 2, repo.calls)
}

func TestLookupServiceFallsBackWhenCacheFails(t *testing.T) {
	repo := &examFinderStub{exams: lookupFixtureExams()}
	store := newMemoryCacheStore()
	store.getErr = errors.New("redis timeout")
	metrics := NewMetricsService()
	svc := NewLookupService(repo, NewLookupCache(store, metrics, time.Minute, nil), metrics, nil)

	views, err := svc.Lookup(context.Background(), "A123")
	require.NoError(t, err)
	assert.Len(t, views, 2)
	assert.Equal(t, 1, repo.calls)
	assert.False(t, store.has(lookupKey(0, "A123")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.cacheResults.WithLabelValues(LookupCacheError)))
}

func TestLookupServiceInvalidateReportsAdvanceFailure(t *testing.T) {
	store := newMemoryCacheStore()
	store.incrErr = errors.New("redis timeout")
	svc := NewLookupService(&examFinderStub{}, NewLookupCache(store, nil, time.Minute, nil), nil, nil)

	err := svc.InvalidateCache(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "advance lookup cache generation")
	assert.Empty(t, store.deleted)
}

func TestLookupServiceWithoutCache(t *testing.T) {
	svc := NewLookupService(&examFinderStub{}, nil, nil, nil)
	assert.NoError(t, svc.InvalidateCache(context.Background()))

	var disabled *LookupCache
	svc = NewLookupService(&examFinderStub{}, disabled, nil, nil)
	assert.NoError(t, svc.InvalidateCache(context.Background()))
	_, err := svc.Lookup(context.Background(), "A123")
	assert.NoError(t, err)
}
