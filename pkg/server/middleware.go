package server

import (
	"time"

	"github.com/Nephrolytics-ai/vibe-relayer/pkg/logging"
	"github.com/Nephrolytics-ai/vibe-relayer/pkg/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	HeaderRequestID  = "X-Request-ID"
	requestIDCtxKey  = "request_id"
	maxRequestIDSize = 128
)

// RequestID reuses an incoming X-Request-ID or mints one, echoes it back and
// tags the request context so every logger created downstream carries it.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.Request.Header.Get(HeaderRequestID)
		if rid == "" || len(rid) > maxRequestIDSize {
			rid = uuid.New().String()
		}
		c.Set(requestIDCtxKey, rid)
		c.Writer.Header().Set(HeaderRequestID, rid)
		c.Request = c.Request.WithContext(logging.WithRequestID(c.Request.Context(), rid))
		c.Next()
	}
}

func AccessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log := logging.NewLogger(c.Request.Context())
		status := c.Writer.Status()
		duration := time.Since(start).Milliseconds()
		switch {
		case status >= 500:
			log.Errorf("request_completed method=%s path=%q status=%d duration_ms=%d client_ip=%s", c.Request.Method, c.Request.URL.Path, status, duration, c.ClientIP())
		case status >= 400:
			log.Warnf("request_completed method=%s path=%q status=%d duration_ms=%d client_ip=%s", c.Request.Method, c.Request.URL.Path, status, duration, c.ClientIP())
		default:
			log.Infof("request_completed method=%s path=%q status=%d duration_ms=%d client_ip=%s", c.Request.Method, c.Request.URL.Path, status, duration, c.ClientIP())
		}
	}
}

// Recovery turns a panic into a 500 response and logs the stack.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log := logging.NewLogger(c.Request.Context())
				log.Errorf("panic recovered method=%s path=%q panic=%v", c.Request.Method, c.Request.URL.Path, r)
				utils.PrintStack("panic", log)
				c.AbortWithStatusJSON(500, gin.H{
					"error":      "internal server error",
					"request_id": c.GetString(requestIDCtxKey),
				})
			}
		}()
		c.Next()
	}
}
