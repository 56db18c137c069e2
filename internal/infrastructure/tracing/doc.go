/*
Package tracing correlates HTTP requests with the log lines they produce.

Every request gets a request id, taken from a well-formed X-Request-ID
header or generated, stored in the request context and echoed back. When
the request completes a span line is logged with the route, status and
duration.

# Usage

	tracer := tracing.New(logger)
	router.Use(tracing.HTTPMiddleware(tracer))

	// inside a handler
	id := tracing.RequestID(c.Request.Context())
*/
package tracing
