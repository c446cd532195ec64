package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/campus-guidance-api/internal/observability"
	"github.com/noah-isme/campus-guidance-api/pkg/ai"
)

const moderationCachePrefix = "guidance:moderation:v1:"

// ModerationGate classifies candidate text before anything is stored.
type ModerationGate interface {
	Classify(ctx context.Context, text string) (ai.Verdict, error)
}

// ModerationGateConfig tunes the gate.
type ModerationGateConfig struct {
	Timeout  time.Duration
	CacheTTL time.Duration
}

type moderationGate struct {
	classifier ai.Classifier
	cache      *redis.Client
	cfg        ModerationGateConfig
	logger     zerolog.Logger
	tracer     trace.Tracer
}

// NewModerationGate wraps a classifier with a hard timeout and an optional Redis verdict cache.
func NewModerationGate(classifier ai.Classifier, cache *redis.Client, cfg ModerationGateConfig, logger zerolog.Logger) ModerationGate {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 24 * time.Hour
	}

	return &moderationGate{
		classifier: classifier,
		cache:      cache,
		cfg:        cfg,
		logger:     logger.With().Str("component", "moderation_gate").Logger(),
		tracer:     otel.Tracer("github.com/noah-isme/campus-guidance-api/internal/service/moderation"),
	}
}

// Classify returns VerdictSafe or VerdictUnsafe. Any failure to reach a verdict is ErrModerationUnavailable.
func (g *moderationGate) Classify(ctx context.Context, text string) (ai.Verdict, error) {
	start := time.Now()
	defer func() {
		observability.ModerationLatency().Observe(time.Since(start).Seconds())
	}()

	spanCtx, span := g.tracer.Start(ctx, "guidance.moderate", trace.WithAttributes(attribute.Int("text.length", len(text))))
	defer span.End()

	key := moderationCacheKey(text)
	if verdict, ok := g.cached(spanCtx, key); ok {
		span.SetAttributes(attribute.String("verdict", string(verdict)), attribute.Bool("cache.hit", true))
		observability.ModerationOutcomes().WithLabelValues(string(verdict), "cache").Inc()
		return verdict, nil
	}

	callCtx, cancel := context.WithTimeout(spanCtx, g.cfg.Timeout)
	defer cancel()

	verdict, err := g.classifier.Classify(callCtx, text)
	if err != nil {
		outcome := "unavailable"
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			outcome = "timeout"
		}
		observability.ModerationOutcomes().WithLabelValues(outcome, "oracle").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		g.logger.Warn().Err(err).Str("outcome", outcome).Msg("moderation verdict unavailable")
		return ai.VerdictUnsafe, fmt.Errorf("%w: %v", ErrModerationUnavailable, err)
	}

	if verdict != ai.VerdictSafe {
		verdict = ai.VerdictUnsafe
	}

	span.SetAttributes(attribute.String("verdict", string(verdict)), attribute.Bool("cache.hit", false))
	observability.ModerationOutcomes().WithLabelValues(string(verdict), "oracle").Inc()
	g.store(spanCtx, key, verdict)

	return verdict, nil
}

func (g *moderationGate) cached(ctx context.Context, key string) (ai.Verdict, bool) {
	if g.cache == nil {
		return "", false
	}

	value, err := g.cache.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			g.logger.Warn().Err(err).Msg("failed to read moderation cache")
		}
		return "", false
	}

	switch ai.Verdict(value) {
	case ai.VerdictSafe:
		return ai.VerdictSafe, true
	case ai.VerdictUnsafe:
		return ai.VerdictUnsafe, true
	default:
		return "", false
	}
}

func (g *moderationGate) store(ctx context.Context, key string, verdict ai.Verdict) {
	if g.cache == nil {
		return
	}
	if err := g.cache.Set(ctx, key, string(verdict), g.cfg.CacheTTL).Err(); err != nil {
		g.logger.Warn().Err(err).Msg("failed to store moderation verdict")
	}
}

func moderationCacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return moderationCachePrefix + hex.EncodeToString(sum[:])
}
