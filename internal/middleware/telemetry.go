package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// routeSubjects names the :id path parameter per API area so spans read
// "messaging.peer_id" rather than a bare "id"
var routeSubjects = []struct {
	prefix string
	attr   string
}{
	{"/api/v1/message/", "messaging.peer_id"},
	{"/api/v1/post/", "post.id"},
	{"/api/v1/user/follow/", "follow.target_id"},
}

// TracingMiddleware starts the server span for each request. Health checks
// and metric scrapes are not traced.
func TracingMiddleware(serviceName string, opts ...otelgin.Option) gin.HandlerFunc {
	opts = append(opts, otelgin.WithFilter(func(r *http.Request) bool {
		return r.URL.Path != "/metrics" && r.URL.Path != "/health"
	}))
	return otelgin.Middleware(serviceName, opts...)
}

// SpanAttributesMiddleware tags the active request span with the caller and
// the subject of the route. It must run after TracingMiddleware so the span
// is still open when the handler chain returns.
func SpanAttributesMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			return
		}

		if userID := c.GetString("user_id"); userID != "" {
			span.SetAttributes(attribute.String("user.id", userID))
		}
		if id := c.Param("id"); id != "" {
			span.SetAttributes(attribute.String(subjectAttr(c.FullPath()), id))
		}
		if requestID := c.GetString("request_id"); requestID != "" {
			span.SetAttributes(attribute.String("request.id", requestID))
		}

		for _, ginErr := range c.Errors {
			if ginErr.Err != nil {
				span.RecordError(ginErr.Err)
			}
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(c.Writer.Status()))
		}
	}
}

func subjectAttr(route string) string {
	for _, s := range routeSubjects {
		if strings.HasPrefix(route, s.prefix) {
			return s.attr
		}
	}
	return "route.id"
}
