package http

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/tollgate/core"
	"github.com/layer-3/tollgate/ports"
	"github.com/layer-3/tollgate/service"
	"go.uber.org/zap"
)

const principalKey = "principal"

// AuthMiddleware creates middleware that validates bearer tokens
func AuthMiddleware(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")

		// Check if the Authorization header is present and in correct format
		if len(auth) < 8 || !strings.EqualFold(auth[:7], "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token"})
			return
		}

		principal, err := authService.RequireAuth(c.Request.Context(), strings.TrimSpace(auth[7:]))
		if err != nil {
			abortWithError(c, err)
			return
		}

		c.Set(principalKey, principal)
		c.Next()
	}
}

// PrincipalFrom returns the principal stored by AuthMiddleware
func PrincipalFrom(c *gin.Context) (*core.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil, false
	}
	p, ok := v.(*core.Principal)
	return p, ok
}

// MustPrincipal is PrincipalFrom for handlers mounted behind AuthMiddleware
func MustPrincipal(c *gin.Context) *core.Principal {
	p, ok := PrincipalFrom(c)
	if !ok {
		panic("principal missing: handler mounted without AuthMiddleware")
	}
	return p
}

// RateLimit is a request budget per caller IP
type RateLimit struct {
	Requests int
	Window   time.Duration
}

// RateLimitMiddleware applies limit per client IP under name. Limiter
// failures let the request through.
func RateLimitMiddleware(limiter ports.RateLimiter, name string, limit RateLimit, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit.Requests <= 0 {
			c.Next()
			return
		}

		key := name + ":" + c.ClientIP()
		ok, retryAfter, err := limiter.Allow(c.Request.Context(), key, limit.Requests, limit.Window)
		if err != nil {
			logger.Warn("rate limiter unavailable", zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}
		if !ok {
			secs := int(math.Ceil(retryAfter.Seconds()))
			if secs < 1 {
				secs = 1
			}
			c.Header("Retry-After", strconv.Itoa(secs))
			abortWithError(c, core.ErrRateLimited)
			return
		}

		c.Next()
	}
}

// RequestLogger writes one structured line per request
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			logger.Error("request", fields...)
		default:
			logger.Info("request", fields...)
		}
	}
}

// Recovery turns panics into 500 responses
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered",
					zap.Any("panic", r),
					zap.String("path", c.Request.URL.Path),
					zap.Stack("stack"),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
			}
		}()
		c.Next()
	}
}
