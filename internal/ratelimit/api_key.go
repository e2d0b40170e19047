package ratelimit

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallbiznis/payoutd/internal/config"
)

const keyAPIKeyBucket = "payoutd:ratelimit:api_key:%s"

// APIKeyLimiter throttles admin and internal API calls per api key.
// A nil limiter allows everything.
type APIKeyLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

func NewAPIKeyLimiter(cfg config.Config, bucket *TokenBucket) *APIKeyLimiter {
	if bucket == nil || cfg.Redis.APIKeyRate <= 0 || cfg.Redis.APIKeyBurst <= 0 {
		return nil
	}
	return &APIKeyLimiter{
		bucket: bucket,
		rate:   cfg.Redis.APIKeyRate,
		burst:  cfg.Redis.APIKeyBurst,
	}
}

func (l *APIKeyLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *APIKeyLimiter) Allow(ctx context.Context, keyID string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyAPIKeyBucket, strings.TrimSpace(keyID)), l.rate, l.burst)
}
