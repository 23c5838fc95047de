package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fhsh/makeup-exam-api/internal/models"
	appErrors "github.com/fhsh/makeup-exam-api/pkg/errors"
)

const (
	lookupCachePrefix   = "makeup:exams:"
	lookupGenerationKey = lookupCachePrefix + "generation"
)

// lookupCacheStore is the slice of Redis the lookup cache needs.
type lookupCacheStore interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Counter(ctx context.Context, key string) (int64, error)
	Incr(ctx context.Context, key string) (int64, error)
	DeleteByPattern(ctx context.Context, pattern string) error
}

// LookupCache keeps masked per-student results keyed by roster generation.
// Each committed roster advances the generation, so entries written by a
// lookup that read the store before the commit are never served again.
type LookupCache struct {
	store   lookupCacheStore
	metrics *MetricsService
	ttl     time.Duration
	logger  *zap.Logger
}

// NewLookupCache constructs a LookupCache. Entries expire after ttl.
func NewLookupCache(store lookupCacheStore, metrics *MetricsService, ttl time.Duration, logger *zap.Logger) *LookupCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LookupCache{store: store, metrics: metrics, ttl: ttl, logger: logger}
}

// Enabled reports whether the cache has a backing store.
func (c *LookupCache) Enabled() bool {
	return c != nil && c.store != nil
}

// Generation returns the roster generation new entries are keyed under.
func (c *LookupCache) Generation(ctx context.Context) (int64, error) {
	start := time.Now()
	generation, err := c.store.Counter(ctx, lookupGenerationKey)
	c.metrics.ObserveLookupCache("generation", time.Since(start))
	if err != nil {
		c.metrics.RecordLookupCacheResult(LookupCacheError)
		c.logger.Warn("lookup cache generation unavailable", zap.Error(err))
		return 0, err
	}
	return generation, nil
}

// Load returns the cached views for studentID within generation.
func (c *LookupCache) Load(ctx context.Context, generation int64, studentID string) ([]models.ExamView, bool) {
	var views []models.ExamView
	start := time.Now()
	err := c.store.Get(ctx, lookupKey(generation, studentID), &views)
	c.metrics.ObserveLookupCache("get", time.Since(start))
	switch {
	case err == nil:
		c.metrics.RecordLookupCacheResult(LookupCacheHit)
	case errors.Is(err, appErrors.ErrCacheMiss):
		c.metrics.RecordLookupCacheResult(LookupCacheMiss)
		return nil, false
	default:
		c.metrics.RecordLookupCacheResult(LookupCacheError)
		c.logger.Warn("lookup cache read failed", zap.Int64("generation", generation), zap.Error(err))
		return nil, false
	}
	if views == nil {
		views = []models.ExamView{}
	}
	return views, true
}

// Store caches views for studentID under generation. Failures are logged
// only; the caller already has the answer.
func (c *LookupCache) Store(ctx context.Context, generation int64, studentID string, views []models.ExamView) {
	start := time.Now()
	err := c.store.Set(ctx, lookupKey(generation, studentID), views, c.ttl)
	c.metrics.ObserveLookupCache("set", time.Since(start))
	if err != nil {
		c.logger.Warn("lookup cache write failed", zap.Int64("generation", generation), zap.Error(err))
	}
}

// Advance moves lookups to a new roster generation and drops the entries of
// the previous one. Older leftovers expire with their TTL.
func (c *LookupCache) Advance(ctx context.Context) error {
	start := time.Now()
	generation, err := c.store.Incr(ctx, lookupGenerationKey)
	c.metrics.ObserveLookupCache("advance", time.Since(start))
	if err != nil {
		return fmt.Errorf("advance lookup cache generation: %w", err)
	}
	c.metrics.SetLookupCacheGeneration(generation)

	if err := c.store.DeleteByPattern(ctx, fmt.Sprintf("%s%d:*", lookupCachePrefix, generation-1)); err != nil {
		c.logger.Warn("failed to drop previous lookup cache generation", zap.Int64("generation", generation-1), zap.Error(err))
	}
	return nil
}

func lookupKey(generation int64, studentID string) string {
	return fmt.Sprintf("%s%d:%s", lookupCachePrefix, generation, studentID)
}
