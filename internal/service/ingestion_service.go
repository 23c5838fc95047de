package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fhsh/makeup-exam-api/internal/models"
	"github.com/fhsh/makeup-exam-api/internal/repository"
	appErrors "github.com/fhsh/makeup-exam-api/pkg/errors"
	"github.com/fhsh/makeup-exam-api/pkg/jobs"
	"github.com/fhsh/makeup-exam-api/pkg/roster"
)

const (
	jobTypeParseRoster     = "parse_roster"
	jobTypeInvalidateCache = "invalidate_lookup_cache"
)

type rosterStore interface {
	ReplaceAll(ctx context.Context, exams []models.MakeupExam) error
}

type rosterParser interface {
	Parse(content []byte) ([]models.MakeupExam, error)
}

type adminAuthenticator interface {
	Authenticate(presented string) error
}

type lookupCacheInvalidator interface {
	InvalidateCache(ctx context.Context) error
}

// RosterUpload carries one uploaded workbook.
type RosterUpload struct {
	Filename string
	Size     int64
	Content  []byte
}

// IngestionServiceConfig holds upload validation and worker settings.
type IngestionServiceConfig struct {
	AllowedExtensions []string
	MaxFileSize       int64
	ParseWorkers      int
	ParseTimeout      time.Duration
	InvalidateRetries int
	InvalidateDelay   time.Duration
}

// IngestionService authenticates, parses and commits roster uploads. Each
// upload fully replaces the stored roster.
type IngestionService struct {
	auth    adminAuthenticator
	parser  rosterParser
	store   rosterStore
	lookups lookupCacheInvalidator
	metrics *MetricsService
	logger  *zap.Logger
	cfg     IngestionServiceConfig
	extSet  map[string]struct{}

	parseQueue      *jobs.Queue
	invalidateQueue *jobs.Queue

	// replaceMu queues concurrent commits within this process.
	replaceMu sync.Mutex
}

type parseTask struct {
	content []byte
	exams   []models.MakeupExam
}

// NewIngestionService constructs the service with defaults. Start must be
// called before Ingest.
func NewIngestionService(auth adminAuthenticator, parser rosterParser, store rosterStore, lookups lookupCacheInvalidator, metrics *MetricsService, logger *zap.Logger, cfg IngestionServiceConfig) *IngestionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(cfg.AllowedExtensions) == 0 {
		cfg.AllowedExtensions = []string{".xlsx", ".xls"}
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 10 * 1024 * 1024
	}
	if cfg.ParseWorkers <= 0 {
		cfg.ParseWorkers = 1
	}
	if cfg.ParseTimeout <= 0 {
		cfg.ParseTimeout = 30 * time.Second
	}
	if cfg.InvalidateRetries <= 0 {
		cfg.InvalidateRetries = 5
	}
	if cfg.InvalidateDelay <= 0 {
		cfg.InvalidateDelay = 2 * time.Second
	}
	extSet := make(map[string]struct{}, len(cfg.AllowedExtensions))
	for _, ext := range cfg.AllowedExtensions {
		extSet[strings.ToLower(ext)] = struct{}{}
	}

	s := &IngestionService{
		auth:    auth,
		parser:  parser,
		store:   store,
		lookups: lookups,
		metrics: metrics,
		logger:  logger,
		cfg:     cfg,
		extSet:  extSet,
	}
	s.parseQueue = jobs.NewQueue("roster-parse", s.handleParse, jobs.QueueConfig{
		Workers: cfg.ParseWorkers,
		Logger:  logger,
	})
	s.invalidateQueue = jobs.NewQueue("lookup-cache-invalidation", s.handleInvalidate, jobs.QueueConfig{
		Workers:    1,
		MaxRetries: cfg.InvalidateRetries,
		RetryDelay: cfg.InvalidateDelay,
		Logger:     logger,
	})
	return s
}

// Start launches the parse and cache maintenance workers.
func (s *IngestionService) Start(ctx context.Context) {
	s.parseQueue.Start(ctx)
	s.invalidateQueue.Start(ctx)
}

// Stop drains the worker pools.
func (s *IngestionService) Stop() {
	s.parseQueue.Stop()
	s.invalidateQueue.Stop()
}

// Ingest replaces the stored roster with the records parsed from upload.
// Every step gates the next: a rejected token or file never reaches storage.
func (s *IngestionService) Ingest(ctx context.Context, upload RosterUpload, token string) (*models.IngestResult, error) {
	if err := s.auth.Authenticate(token); err != nil {
		s.metrics.ObserveIngestion(IngestResultUnauthorized)
		return nil, err
	}

	if err := s.validateUpload(upload); err != nil {
		s.metrics.ObserveIngestion(IngestResultInvalid)
		return nil, err
	}

	batchID := uuid.NewString()
	logger := s.logger.With(zap.String("batch_id", batchID), zap.String("filename", upload.Filename))

	exams, err := s.parse(ctx, upload.Content)
	if err != nil {
		if pe, ok := roster.AsParseError(err); ok {
			s.metrics.ObserveIngestion(IngestResultInvalid)
			logger.Info("roster rejected", zap.String("reason", pe.Reason), zap.Error(err))
			return nil, parseErrorToAppError(pe)
		}
		s.metrics.ObserveIngestion(IngestResultFailed)
		logger.Error("roster parse failed", zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to parse roster")
	}
	if len(exams) == 0 {
		s.metrics.ObserveIngestion(IngestResultInvalid)
		return nil, appErrors.WithDetails(appErrors.ErrInvalidInput, "no valid rows in roster", map[string]interface{}{
			"reason": "no valid rows",
		})
	}

	if err := s.replace(ctx, exams); err != nil {
		s.metrics.ObserveIngestion(IngestResultFailed)
		logger.Error("roster replace failed",
			zap.Int("records", len(exams)),
			zap.Bool("rollback_failed", errors.Is(err, repository.ErrRollbackFailed)),
			zap.Error(err),
		)
		return nil, appErrors.Wrap(err, appErrors.ErrStorageFailure.Code, appErrors.ErrStorageFailure.Status, "failed to store roster")
	}

	s.metrics.ObserveIngestion(IngestResultSuccess)
	s.metrics.SetRosterRecords(len(exams))
	logger.Info("roster replaced", zap.Int("records", len(exams)))
	s.invalidateLookups(ctx, batchID)

	return &models.IngestResult{
		Success: true,
		Count:   len(exams),
		Message: fmt.Sprintf("成功上傳 %d 筆補考資料", len(exams)),
		BatchID: batchID,
	}, nil
}

func (s *IngestionService) validateUpload(upload RosterUpload) error {
	if upload.Filename == "" {
		return appErrors.WithDetails(appErrors.ErrInvalidInput, "file is required", map[string]interface{}{
			"reason": "missing file",
		})
	}
	ext := strings.ToLower(filepath.Ext(upload.Filename))
	if _, ok := s.extSet[ext]; !ok {
		return appErrors.WithDetails(appErrors.ErrInvalidInput, "please upload an Excel file ("+strings.Join(s.cfg.AllowedExtensions, " or ")+")", map[string]interface{}{
			"reason":    "unsupported file type",
			"extension": ext,
			"allowed":   s.cfg.AllowedExtensions,
		})
	}
	if upload.Size > s.cfg.MaxFileSize || int64(len(upload.Content)) > s.cfg.MaxFileSize {
		return appErrors.WithDetails(appErrors.ErrInvalidInput, fmt.Sprintf("file exceeds %d bytes limit", s.cfg.MaxFileSize), map[string]interface{}{
			"reason": "file too large",
		})
	}
	if len(upload.Content) == 0 {
		return appErrors.WithDetails(appErrors.ErrInvalidInput, "file is empty", map[string]interface{}{
			"reason": "empty file",
		})
	}
	return nil
}

// parse runs the decoder on the worker pool so request goroutines only wait.
func (s *IngestionService) parse(ctx context.Context, content []byte) ([]models.MakeupExam, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ParseTimeout)
	defer cancel()

	task := &parseTask{content: content}
	start := time.Now()
	err := s.parseQueue.Submit(ctx, jobs.Job{ID: uuid.NewString(), Type: jobTypeParseRoster, Payload: task})
	s.metrics.ObserveParse(time.Since(start))
	if err != nil {
		return nil, err
	}
	return task.exams, nil
}

func (s *IngestionService) handleParse(_ context.Context, job jobs.Job) error {
	task, ok := job.Payload.(*parseTask)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", job.Payload, job.Type)
	}
	exams, err := s.parser.Parse(task.content)
	if err != nil {
		return err
	}
	task.exams = exams
	return nil
}

func (s *IngestionService) replace(ctx context.Context, exams []models.MakeupExam) error {
	s.replaceMu.Lock()
	defer s.replaceMu.Unlock()
	return s.store.ReplaceAll(ctx, exams)
}

// invalidateLookups drops cached lookups after a commit. Failures are retried
// in the background; the upload itself has already succeeded.
func (s *IngestionService) invalidateLookups(ctx context.Context, batchID string) {
	if s.lookups == nil {
		return
	}
	if err := s.lookups.InvalidateCache(ctx); err == nil {
		return
	}
	if err := s.invalidateQueue.Enqueue(jobs.Job{ID: batchID, Type: jobTypeInvalidateCache}); err != nil {
		s.logger.Error("failed to schedule lookup cache invalidation", zap.String("batch_id", batchID), zap.Error(err))
	}
}

func (s *IngestionService) handleInvalidate(ctx context.Context, _ jobs.Job) error {
	return s.lookups.InvalidateCache(ctx)
}

func parseErrorToAppError(pe *roster.ParseError) *appErrors.Error {
	details := map[string]interface{}{"reason": pe.Reason}
	if pe.Sheet != "" {
		details["sheet"] = pe.Sheet
	}
	if len(pe.Missing) > 0 {
		details["missing"] = pe.Missing
	}
	if len(pe.Rows) > 0 {
		details["rows"] = pe.Rows
	}
	return appErrors.WithDetails(appErrors.ErrInvalidInput, "parse failed: "+pe.Error(), details)
}
