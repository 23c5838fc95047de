package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/fhsh/makeup-exam-api/internal/models"
	appErrors "github.com/fhsh/makeup-exam-api/pkg/errors"
)

type examFinder interface {
	ListByStudentID(ctx context.Context, studentID string) ([]models.MakeupExam, error)
}

type examCache interface {
	Enabled() bool
	Generation(ctx context.Context) (int64, error)
	Load(ctx context.Context, generation int64, studentID string) ([]models.ExamView, bool)
	Store(ctx context.Context, generation int64, studentID string, views []models.ExamView)
	Advance(ctx context.Context) error
}

// LookupService answers unauthenticated per-student exam queries with masked
// names. Class names and internal identifiers are never exposed.
type LookupService struct {
	repo    examFinder
	cache   examCache
	metrics *MetricsService
	logger  *zap.Logger
}

// NewLookupService constructs the service. cache may be nil.
func NewLookupService(repo examFinder, cache examCache, metrics *MetricsService, logger *zap.Logger) *LookupService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LookupService{repo: repo, cache: cache, metrics: metrics, logger: logger}
}

// Lookup returns the exams stored for studentID. The ID is matched exactly;
// unknown IDs yield an empty list.
func (s *LookupService) Lookup(ctx context.Context, studentID string) ([]models.ExamView, error) {
	// The generation is read before the store so a roster committed in
	// between is never cached under the new generation with old rows.
	generation, cached := s.cacheGeneration(ctx)
	if cached {
		if views, hit := s.cache.Load(ctx, generation, studentID); hit {
			s.metrics.ObserveLookup("cache")
			return views, nil
		}
	}

	exams, err := s.repo.ListByStudentID(ctx, studentID)
	if err != nil {
		s.logger.Error("exam lookup failed", zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exams")
	}
	s.metrics.ObserveLookup("store")

	views := make([]models.ExamView, 0, len(exams))
	for _, exam := range exams {
		views = append(views, ToExamView(exam))
	}

	if cached {
		s.cache.Store(ctx, generation, studentID, views)
	}
	return views, nil
}

// InvalidateCache retires every cached lookup by advancing the roster
// generation.
func (s *LookupService) InvalidateCache(ctx context.Context) error {
	if !s.cacheEnabled() {
		return nil
	}
	return s.cache.Advance(ctx)
}

func (s *LookupService) cacheEnabled() bool {
	return s.cache != nil && s.cache.Enabled()
}

func (s *LookupService) cacheGeneration(ctx context.Context) (int64, bool) {
	if !s.cacheEnabled() {
		return 0, false
	}
	generation, err := s.cache.Generation(ctx)
	if err != nil {
		return 0, false
	}
	return generation, true
}

// ToExamView projects a stored exam to its public form.
func ToExamView(exam models.MakeupExam) models.ExamView {
	return models.ExamView{
		Subject:     exam.Subject,
		ExamDate:    exam.ExamDate,
		ExamTime:    exam.ExamTime,
		Location:    exam.Location,
		StudentName: MaskName(exam.StudentName),
	}
}
