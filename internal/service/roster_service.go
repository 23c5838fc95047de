package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/fhsh/makeup-exam-api/internal/models"
	appErrors "github.com/fhsh/makeup-exam-api/pkg/errors"
)

type rosterSummarizer interface {
	Summary(ctx context.Context) (*models.RosterSummary, error)
}

// RosterService reports the state of the stored roster.
type RosterService struct {
	repo    rosterSummarizer
	metrics *MetricsService
	logger  *zap.Logger
}

// NewRosterService constructs a RosterService.
func NewRosterService(repo rosterSummarizer, metrics *MetricsService, logger *zap.Logger) *RosterService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RosterService{repo: repo, metrics: metrics, logger: logger}
}

// Summary counts stored records and students.
func (s *RosterService) Summary(ctx context.Context) (*models.RosterSummary, error) {
	summary, err := s.repo.Summary(ctx)
	if err != nil {
		s.logger.Error("roster summary failed", zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster summary")
	}
	s.metrics.SetRosterRecords(summary.Records)
	return summary, nil
}
