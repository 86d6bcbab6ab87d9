package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/yeisme/hsrelay/pkg/tracing"
)

// TracingMiddleware 创建Gin的分布式追踪中间件，延续请求头中的 W3C trace context.
func TracingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := otel.GetTextMapPropagator().Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}

		ctx, span := tracing.StartSpan(ctx, c.Request.Method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", c.Request.Method),
				attribute.String("http.route", route),
				attribute.String("http.target", c.Request.URL.Path),
				attribute.String("http.user_agent", c.Request.UserAgent()),
				attribute.String("http.client_ip", c.ClientIP()),
				attribute.Int64("http.request_content_length", c.Request.ContentLength),
			),
		)
		defer span.End()

		if id, ok := c.Get(ContextKeyRequestID); ok {
			span.SetAttributes(attribute.String("http.request_id", id.(string)))
		}

		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.status_code", status))

		switch {
		case status >= http.StatusInternalServerError:
			span.SetStatus(codes.Error, http.StatusText(status))
		case len(c.Errors) > 0:
			span.SetStatus(codes.Error, c.Errors.String())
		default:
			span.SetStatus(codes.Ok, "")
		}
	}
}
