package logging

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Span times one outbound operation, such as a call to the course API.
type Span struct {
	logger *slog.Logger
	start  time.Time
}

// StartSpan derives a child logger carrying a fresh span id and the supplied
// attributes. It returns the derived context and the span handle.
func StartSpan(ctx context.Context, name string, args ...any) (context.Context, *Span) {
	if ctx == nil {
		ctx = context.Background()
	}

	spanID := uuid.NewString()
	logger := FromContext(ctx).With(
		slog.String("span_id", spanID),
		slog.String("span_name", name),
	)
	if parent, ok := ctx.Value(spanIDKey).(string); ok && parent != "" {
		logger = logger.With(slog.String("parent_span_id", parent))
	}
	if len(args) > 0 {
		logger = logger.With(args...)
	}

	ctx = WithLogger(ctx, logger)
	ctx = context.WithValue(ctx, spanIDKey, spanID)

	return ctx, &Span{logger: logger, start: time.Now()}
}

// End emits a completion entry; failures are logged at warn level.
func (s *Span) End(err error) {
	if s == nil {
		return
	}
	elapsed := slog.Duration("duration", time.Since(s.start))
	if err != nil {
		s.logger.Warn("span failed", elapsed, slog.Any("error", err))
		return
	}
	s.logger.Debug("span completed", elapsed)
}
