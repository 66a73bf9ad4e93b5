package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-evaluator-api/internal/models"
	"github.com/noah-isme/gema-evaluator-api/internal/observability"
)

const evaluationCachePrefix = "evaluations:"

// NewCachedEvaluationRepository wraps an evaluation store with a Redis
// read-through cache for single-record lookups. Records are immutable, so
// cached entries never need invalidation; only the TTL bounds memory.
func NewCachedEvaluationRepository(next EvaluationRepository, client *redis.Client, ttl time.Duration, logger zerolog.Logger) EvaluationRepository {
	if client == nil {
		return next
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &cachedEvaluationRepository{
		next:   next,
		redis:  client,
		ttl:    ttl,
		logger: logger.With().Str("component", "evaluation_cache").Logger(),
	}
}

type cachedEvaluationRepository struct {
	next   EvaluationRepository
	redis  *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

func (r *cachedEvaluationRepository) Create(ctx context.Context, input NewEvaluation) (models.Evaluation, error) {
	evaluation, err := r.next.Create(ctx, input)
	if err != nil {
		return models.Evaluation{}, err
	}
	r.store(ctx, evaluation)
	return evaluation, nil
}

func (r *cachedEvaluationRepository) List(ctx context.Context) ([]models.Evaluation, error) {
	return r.next.List(ctx)
}

func (r *cachedEvaluationRepository) GetByID(ctx context.Context, id string) (models.Evaluation, bool, error) {
	key := evaluationCachePrefix + id

	payload, err := r.redis.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached models.Evaluation
		if jsonErr := json.Unmarshal(payload, &cached); jsonErr == nil {
			observability.CacheLookups().WithLabelValues("hit").Inc()
			return cached, true, nil
		}
		r.logger.Warn().Str("key", key).Msg("discarding corrupt cache entry")
	case !errors.Is(err, redis.Nil):
		r.logger.Warn().Err(err).Str("key", key).Msg("evaluation cache read failed")
	}
	observability.CacheLookups().WithLabelValues("miss").Inc()

	evaluation, found, err := r.next.GetByID(ctx, id)
	if err != nil || !found {
		return evaluation, found, err
	}
	r.store(ctx, evaluation)
	return evaluation, true, nil
}

func (r *cachedEvaluationRepository) store(ctx context.Context, evaluation models.Evaluation) {
	payload, err := json.Marshal(evaluation)
	if err != nil {
		r.logger.Warn().Err(err).Str("id", evaluation.ID).Msg("failed to encode evaluation for cache")
		return
	}
	if err := r.redis.Set(ctx, evaluationCachePrefix+evaluation.ID, payload, r.ttl).Err(); err != nil {
		r.logger.Warn().Err(err).Str("id", evaluation.ID).Msg("evaluation cache write failed")
	}
}
