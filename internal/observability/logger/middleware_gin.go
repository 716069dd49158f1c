package logger

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	obscontext "github.com/smallbiznis/invoicely/internal/observability/context"
	"go.uber.org/zap"
)

const requestIDHeader = "X-Request-Id"

// MiddlewareConfig controls the access log.
type MiddlewareConfig struct {
	// Debug attaches the raw error to failed requests.
	Debug bool
	// ErrorClassifier maps a handler error to a stable type and code.
	ErrorClassifier func(err error) (string, string)
}

// GinMiddleware assigns a request id and writes one access log line per
// request once the handler chain has finished.
func GinMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := requestIDFor(c)
		c.Request = c.Request.WithContext(obscontext.WithRequestID(c.Request.Context(), requestID))

		c.Next()

		entry := accessEntry{
			route:    c.FullPath(),
			status:   c.Writer.Status(),
			duration: time.Since(start),
		}
		fields := entry.fields(c)
		if lastErr := c.Errors.Last(); lastErr != nil {
			fields = append(fields, errorFields(cfg, lastErr.Err)...)
		}
		entry.write(FromContext(c.Request.Context()), fields)
	}
}

// requestIDFor reuses a caller supplied id or mints one, echoing it back.
func requestIDFor(c *gin.Context) string {
	requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set("request_id", requestID)
	c.Header(requestIDHeader, requestID)
	return requestID
}

type accessEntry struct {
	route    string
	status   int
	duration time.Duration
}

func (e accessEntry) fields(c *gin.Context) []zap.Field {
	route := e.route
	if strings.TrimSpace(route) == "" {
		route = "unknown"
	}
	return []zap.Field{
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.String("route", route),
		zap.Int("status", e.status),
		zap.Int64("duration_ms", e.duration.Milliseconds()),
		zap.Int64("bytes_in", max(c.Request.ContentLength, 0)),
		zap.Int("bytes_out", max(c.Writer.Size(), 0)),
	}
}

// write picks the level: probes stay at debug, 5xx at error, quota and burst
// denials at warn, everything else at info.
func (e accessEntry) write(log *zap.Logger, fields []zap.Field) {
	if log == nil {
		return
	}
	switch {
	case e.route == "/health" || e.route == "/metrics":
		log.Debug("http_request", fields...)
	case e.status >= http.StatusInternalServerError:
		log.Error("http_request", fields...)
	case e.status == http.StatusTooManyRequests:
		log.Warn("http_request", fields...)
	default:
		log.Info("http_request", fields...)
	}
}

func errorFields(cfg MiddlewareConfig, err error) []zap.Field {
	errorType, errorCode := "error", ""
	if cfg.ErrorClassifier != nil {
		errorType, errorCode = cfg.ErrorClassifier(err)
	}
	fields := []zap.Field{
		zap.String("error_type", errorType),
		zap.String("error_code", errorCode),
	}
	if cfg.Debug {
		fields = append(fields, zap.Error(err))
	}
	return fields
}
