package tracing

import (
	"github.com/gin-gonic/gin"
)

// HTTPMiddleware creates Gin middleware for HTTP tracing. A valid
// X-Request-ID from the client is kept; otherwise one is generated. The id
// is echoed in the response.
func HTTPMiddleware(tracer *Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if id := c.GetHeader(RequestIDHeader); validRequestID(id) {
			ctx = WithRequestID(ctx, id)
		}

		name := c.FullPath()
		if name == "" {
			name = "unmatched"
		}
		span, ctx := tracer.StartSpan(ctx, c.Request.Method+" "+name)
		span.SetTag("http.host", c.Request.Host)
		if id := c.Param("id"); id != "" {
			span.SetTag("terminal_id", id)
		}

		c.Request = c.Request.WithContext(ctx)
		c.Header(RequestIDHeader, span.RequestID)

		c.Next()

		span.Status = c.Writer.Status()
		if len(c.Errors) > 0 {
			span.Err = c.Errors.Last()
		}
		tracer.Finish(span)
	}
}
