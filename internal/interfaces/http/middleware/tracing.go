// Package middleware provides HTTP middleware for the inventory sync API.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// MaxRequestIDLength is the maximum length for request IDs taken from headers.
	MaxRequestIDLength = 128
	// MaxOperatorLength is the maximum length for operator names taken from headers.
	MaxOperatorLength = 64

	// OperatorHeader names the operator acting through the API
	OperatorHeader = "X-Operator"
)

// TracingConfig holds configuration for the tracing middleware.
type TracingConfig struct {
	// ServiceName is the name of the service for trace identification.
	ServiceName string
	// Enabled controls whether tracing is active.
	Enabled bool
}

// DefaultTracingConfig returns default tracing configuration.
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		ServiceName: "invsync",
		Enabled:     true,
	}
}

// Tracing returns OpenTelemetry tracing middleware with default configuration.
func Tracing() gin.HandlerFunc {
	return TracingWithConfig(DefaultTracingConfig())
}

// TracingWithConfig returns the otelgin middleware. Span names follow
// "HTTP METHOD route_pattern"; TracingAttributeInjector adds request attributes.
func TracingWithConfig(cfg TracingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return passThrough
	}

	return otelgin.Middleware(cfg.ServiceName)
}

func enrichSpanWithAttributes(c *gin.Context, span trace.Span) {
	if requestID := getRequestID(c); requestID != "" {
		span.SetAttributes(attribute.String("request_id", requestID))
	}
	if operator := GetOperator(c); operator != "" {
		span.SetAttributes(attribute.String("operator", operator))
	}
}

// getRequestID retrieves the request ID from the gin context or header.
func getRequestID(c *gin.Context) string {
	if requestID, exists := c.Get(RequestIDContextKey); exists {
		if id, ok := requestID.(string); ok && id != "" {
			return id
		}
	}
	return truncate(c.GetHeader(RequestIDKey), MaxRequestIDLength)
}

// GetOperator returns the operator named by the X-Operator header
func GetOperator(c *gin.Context) string {
	return truncate(c.GetHeader(OperatorHeader), MaxOperatorLength)
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// SpanErrorMarker marks spans of 4xx responses with error status and records
// the response code on every failed request. otelgin already marks 5xx spans
// after this handler returns and would overwrite any description set here.
// Place it after Tracing.
func SpanErrorMarker() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			return
		}

		statusCode := c.Writer.Status()
		if statusCode < http.StatusBadRequest {
			return
		}
		span.SetAttributes(attribute.Int("http.status_code", statusCode))
		if statusCode >= http.StatusInternalServerError {
			return
		}
		message := "Client Error"
		switch statusCode {
		case http.StatusNotFound:
			message = "Not Found"
		case http.StatusConflict:
			message = "Conflict"
		}
		span.SetStatus(codes.Error, message)
	}
}

// TracingAttributeInjector copies request attributes onto the active span.
// Place it after Tracing so the span already exists.
func TracingAttributeInjector() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		if span.IsRecording() {
			enrichSpanWithAttributes(c, span)
		}
		c.Next()
	}
}
