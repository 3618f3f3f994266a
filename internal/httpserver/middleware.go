package httpserver

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"storefront-core/internal/domain"
)

const (
	guestTokenHeader = "X-Guest-Token"
	requestIDHeader  = "X-Request-ID"

	guestIDKey  = "guestID"
	identityKey = "identity"
)

// requestLogger writes one structured line per request.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(requestIDHeader, requestID)

		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.Int("bytes", c.Writer.Size()),
		}
		if id, ok := c.Get(identityKey); ok {
			fields = append(fields, zap.String("user_id", id.(domain.Identity).UserID))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		switch {
		case status >= 500:
			logger.Error("request completed", fields...)
		case status >= 400:
			logger.Warn("request completed", fields...)
		default:
			logger.Info("request completed", fields...)
		}
	}
}

// requestTimeout bounds the backend work a single request can trigger.
func requestTimeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// identityMiddleware resolves the guest token and the bearer token. Either may
// be absent; a present but invalid token is rejected.
func identityMiddleware(guests GuestTokens, users UserTokens) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if token := strings.TrimSpace(c.GetHeader(guestTokenHeader)); token != "" {
			guestID, err := guests.LookupByToken(ctx, token)
			if err != nil {
				respondError(c, err)
				c.Abort()
				return
			}
			c.Set(guestIDKey, guestID)
		}

		if header := c.GetHeader("Authorization"); header != "" {
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				respondError(c, domain.ErrAuthRequired)
				c.Abort()
				return
			}
			identity, err := users.LookupByToken(ctx, token)
			if err != nil {
				respondError(c, err)
				c.Abort()
				return
			}
			c.Set(identityKey, identity)
		}
		c.Next()
	}
}

func guestIDFrom(c *gin.Context) string {
	return c.GetString(guestIDKey)
}

func identityFrom(c *gin.Context) domain.Identity {
	if v, ok := c.Get(identityKey); ok {
		return v.(domain.Identity)
	}
	return domain.Identity{}
}
