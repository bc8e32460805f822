package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/amrivadeneyra/lunari-sub001/internal/config"
	redis "github.com/redis/go-redis/v9"
)

const (
	keyRatingSubmitCompany = "lunari:rate:rating:submit:company:%s"
	lockRatingSubmit       = "rating:submit:%s"
)

// RatingLimiter throttles rating submissions per company and serializes
// concurrent submissions for the same conversation. Disabled deployments
// get a nil limiter; all methods degrade to allow.
type RatingLimiter struct {
	enabled bool

	bucket *TokenBucket
	locker *Locker

	rate    float64
	burst   int
	lockTTL time.Duration
}

func NewRatingLimiter(cfg config.Config) (*RatingLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}
	if limitCfg.RatingRate <= 0 || limitCfg.RatingBurst <= 0 {
		return nil, errors.New("rating rate limit must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})

	return &RatingLimiter{
		enabled: true,
		bucket:  NewTokenBucket(client),
		locker:  NewLocker(client),
		rate:    limitCfg.RatingRate,
		burst:   limitCfg.RatingBurst,
		lockTTL: limitCfg.LockTTL,
	}, nil
}

func (l *RatingLimiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *RatingLimiter) AllowCompany(ctx context.Context, companyID string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyRatingSubmitCompany, strings.TrimSpace(companyID)), l.rate, l.burst)
}

func (l *RatingLimiter) TryLockConversation(ctx context.Context, conversationID string) (string, bool, error) {
	if !l.Enabled() {
		return "", true, nil
	}
	name := fmt.Sprintf(lockRatingSubmit, strings.TrimSpace(conversationID))
	return l.locker.TryLock(ctx, name, l.lockTTL)
}

func (l *RatingLimiter) ReleaseConversation(ctx context.Context, conversationID, token string) error {
	if !l.Enabled() {
		return nil
	}
	name := fmt.Sprintf(lockRatingSubmit, strings.TrimSpace(conversationID))
	return l.locker.Release(ctx, name, token)
}
