package agentports

import "context"

// Tracer records spans and point events around rounds and tool calls.
// StartSpan returns a context carrying the span and a finish callback
// that records the span outcome.
type Tracer interface {
	StartSpan(ctx context.Context, name string, attrs map[string]any) (context.Context, func(err error))
	Event(ctx context.Context, name string, attrs map[string]any)
}
