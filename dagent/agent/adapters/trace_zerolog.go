// Package adapters provides concrete implementations of the agent ports.
package adapters

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	agentports "github.com/ZanzyTHEbar/dialagent/dagent/agent/ports"
)

type spanLoggerKey struct{}

// ZerologTracer records spans and events as structured log lines. Spans
// log span_start on creation and span_end with their duration when the
// finish callback runs.
type ZerologTracer struct {
	logger zerolog.Logger
}

// NewZerologTracer creates a tracer writing through the given logger.
func NewZerologTracer(logger zerolog.Logger) *ZerologTracer {
	return &ZerologTracer{logger: logger}
}

// StartSpan opens a span and stores its logger in the returned context so
// nested events inherit the span fields.
func (t *ZerologTracer) StartSpan(ctx context.Context, name string, attrs map[string]any) (context.Context, func(err error)) {
	spanLogger := t.logger.With().Str("span", name).Fields(attrs).Logger()
	spanLogger.Debug().Msg("span_start")
	start := time.Now()
	ctx = context.WithValue(ctx, spanLoggerKey{}, spanLogger)
	return ctx, func(err error) {
		if err != nil {
			spanLogger.Error().Err(err).Dur("duration", time.Since(start)).Msg("span_end")
			return
		}
		spanLogger.Debug().Dur("duration", time.Since(start)).Msg("span_end")
	}
}

// Event records a point event against the nearest enclosing span, or the
// base logger when no span is open.
func (t *ZerologTracer) Event(ctx context.Context, name string, attrs map[string]any) {
	logger := t.logger
	if spanLogger, ok := ctx.Value(spanLoggerKey{}).(zerolog.Logger); ok {
		logger = spanLogger
	}
	logger.Debug().Fields(attrs).Str("event", name).Msg("span_event")
}

var _ agentports.Tracer = (*ZerologTracer)(nil)
