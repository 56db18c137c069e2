package tracing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/termhost/internal/logging"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// maxRequestIDLen bounds ids accepted from clients.
const maxRequestIDLen = 128

// Span is one traced operation.
type Span struct {
	RequestID string
	Name      string
	Start     time.Time
	Duration  time.Duration
	Status    int
	Tags      map[string]string
	Err       error
}

// SetTag records a key/value on the span.
func (s *Span) SetTag(key, value string) {
	s.Tags[key] = value
}

// Tracer logs completed spans.
type Tracer struct {
	logger *zap.Logger
	now    func() time.Time
}

// New creates a tracer logging under the "trace" component.
func New(logger *zap.Logger) *Tracer {
	return &Tracer{logger: logging.Component(logger, "trace"), now: time.Now}
}

// StartSpan begins a span. The request id is taken from ctx, or generated.
func (t *Tracer) StartSpan(ctx context.Context, name string) (*Span, context.Context) {
	reqID := RequestID(ctx)
	if reqID == "" {
		reqID = uuid.NewString()
		ctx = WithRequestID(ctx, reqID)
	}
	return &Span{
		RequestID: reqID,
		Name:      name,
		Start:     t.now(),
		Tags:      make(map[string]string),
	}, ctx
}

// Finish records the duration and logs the span. Server errors log at
// warn, everything else at debug.
func (t *Tracer) Finish(s *Span) {
	s.Duration = t.now().Sub(s.Start)

	fields := make([]zap.Field, 0, len(s.Tags)+5)
	fields = append(fields,
		zap.String("request_id", s.RequestID),
		zap.String("operation", s.Name),
		zap.Duration("duration", s.Duration),
	)
	if s.Status != 0 {
		fields = append(fields, zap.Int("status", s.Status))
	}
	for k, v := range s.Tags {
		fields = append(fields, zap.String(k, v))
	}
	if s.Err != nil {
		fields = append(fields, zap.Error(s.Err))
	}

	if s.Err != nil || s.Status >= 500 {
		t.logger.Warn("request failed", fields...)
		return
	}
	t.logger.Debug("request completed", fields...)
}

type contextKey struct{}

// WithRequestID returns ctx carrying id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// RequestID returns the request id carried by ctx, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}

// validRequestID accepts printable ASCII ids of bounded length.
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return false
		}
	}
	return true
}
