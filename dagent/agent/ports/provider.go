// Package agentports defines the interfaces the agent core depends on.
// Adapters implement them around the DIAL client, the MCP bridge and the
// response stream; tests implement them with stubs.
package agentports

import (
	"context"

	"github.com/ZanzyTHEbar/dialagent/dagent/dial"
)

// StreamHandler receives one round of streamed completion output in
// arrival order. OnToolCallDelta may reject a fragment; the provider
// must then abort the stream and surface that error.
type StreamHandler interface {
	OnContent(delta string)
	OnToolCallDelta(delta dial.ToolCallDelta) error
}

// Provider streams chat completions from the underlying model. The
// credential is per call because it belongs to the end user, not to the
// process.
type Provider interface {
	StreamChat(ctx context.Context, apiKey string, messages []dial.Message, tools []dial.Tool, handler StreamHandler) error
}
