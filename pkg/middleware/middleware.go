package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"frameworks/lookout/pkg/logging"
)

const requestIDKey = "request_id"

// quietPaths are polled constantly and only logged at debug level.
var quietPaths = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

// SetupCommonMiddleware installs recovery, request IDs, request logging and
// CORS, outermost first.
func SetupCommonMiddleware(r *gin.Engine, logger logging.Logger) {
	r.Use(RecoveryMiddleware(logger), RequestIDMiddleware(), LoggingMiddleware(logger), CORSMiddleware())
}

// GetRequestID returns the ID RequestIDMiddleware stored, or "".
func GetRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// GetContextLogger returns an entry tagged with the request ID, method and
// path. Parameterised routes also carry the route template.
func GetContextLogger(c *gin.Context, logger logging.Logger) *logrus.Entry {
	fields := logging.Fields{
		"request_id": GetRequestID(c),
		"method":     c.Request.Method,
		"path":       c.Request.URL.Path,
	}
	if route := c.FullPath(); route != "" && route != c.Request.URL.Path {
		fields["route"] = route
	}
	return logger.WithFields(fields)
}

// LoggingMiddleware provides structured request logging
func LoggingMiddleware(logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := GetContextLogger(c, logger).WithFields(logging.Fields{
			"status":    c.Writer.Status(),
			"latency":   time.Since(start),
			"client_ip": c.ClientIP(),
		})
		if len(c.Errors) > 0 {
			entry = entry.WithField("errors", c.Errors.String())
		}

		level := logrus.InfoLevel
		switch {
		case c.Writer.Status() >= 500:
			level = logrus.ErrorLevel
		case quietPaths[c.Request.URL.Path]:
			level = logrus.DebugLevel
		}
		entry.Log(level, "HTTP request")
	}
}

// CORSMiddleware handles CORS headers
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// RecoveryMiddleware provides panic recovery with logging
func RecoveryMiddleware(logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				GetContextLogger(c, logger).WithField("error", err).Error("Request handler panic")

				c.AbortWithStatus(500)
			}
		}()

		c.Next()
	}
}

// RequestIDMiddleware adds a unique request ID to each request
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = GenerateRequestID()
		}

		c.Set(requestIDKey, requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

// GenerateRequestID generates a unique request ID
func GenerateRequestID() string {
	return uuid.New().String()
}
