package server

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	apikeydomain "github.com/smallbiznis/payoutd/internal/apikey/domain"
	obscontext "github.com/smallbiznis/payoutd/internal/observability/context"
	"go.uber.org/zap"
)

type contextKey string

const (
	contextAuthTypeKey     contextKey = "auth_type"
	contextAPIKeyIDKey     contextKey = "api_key_id"
	contextAPIKeyScopesKey contextKey = "api_key_scopes"
)

// APIKeyRequired authenticates requests with a bearer api key and applies the
// per-key token bucket when redis is configured.
func (s *Server) APIKeyRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if header == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		parts := strings.Fields(header)
		if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := c.Request.Context()
		key, err := s.apiKeySvc.Authenticate(ctx, parts[1])
		if err != nil {
			if !errors.Is(err, apikeydomain.ErrUnauthorized) {
				s.log.Warn("api key lookup failed", zap.Error(err))
			}
			AbortWithError(c, ErrUnauthorized)
			return
		}

		if !s.allowAPIKey(c, key.KeyID) {
			AbortWithError(c, ErrRateLimited)
			return
		}

		scopes := make([]string, 0, len(key.Scopes))
		scopes = append(scopes, key.Scopes...)
		ctx = context.WithValue(ctx, contextAuthTypeKey, string(ActorAPIKey))
		ctx = context.WithValue(ctx, contextAPIKeyIDKey, key.KeyID)
		ctx = context.WithValue(ctx, contextAPIKeyScopesKey, scopes)
		ctx = obscontext.WithActor(ctx, string(ActorAPIKey), key.KeyID)
		ctx = obscontext.WithClient(ctx, c.ClientIP(), c.Request.UserAgent())

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// allowAPIKey fails open when the limiter itself errors so a redis outage
// does not stop settlements.
func (s *Server) allowAPIKey(c *gin.Context, keyID string) bool {
	if s.apiKeyLimiter == nil || !s.apiKeyLimiter.Enabled() {
		return true
	}
	ctx := c.Request.Context()
	result, err := s.apiKeyLimiter.Allow(ctx, keyID)
	if err != nil {
		s.log.Warn("api key rate limit check failed", zap.String("key_id", keyID), zap.Error(err))
		return true
	}
	if result == nil {
		return true
	}

	c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	if result.Allowed {
		return true
	}

	retryAfter := int(math.Ceil(result.RetryAfter.Seconds()))
	if retryAfter < 1 {
		retryAfter = 1
	}
	c.Header("Retry-After", strconv.Itoa(retryAfter))
	s.obsMetrics.RecordRateLimitDenied(ctx, c.FullPath(), "api_key")
	return false
}

func apiKeyIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	value, ok := ctx.Value(contextAPIKeyIDKey).(string)
	if !ok || strings.TrimSpace(value) == "" {
		return "", false
	}
	return value, true
}

func apiKeyScopesFromContext(ctx context.Context) []string {
	if ctx == nil {
		return nil
	}
	scopes, ok := ctx.Value(contextAPIKeyScopesKey).([]string)
	if !ok {
		return nil
	}
	return scopes
}
