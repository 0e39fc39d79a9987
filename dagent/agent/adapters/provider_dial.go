package adapters

import (
	"context"

	agentports "github.com/ZanzyTHEbar/dialagent/dagent/agent/ports"
	"github.com/ZanzyTHEbar/dialagent/dagent/dial"
)

// DialProvider streams chat completions from a fixed DIAL deployment.
type DialProvider struct {
	client      *dial.Client
	deployment  string
	temperature *float64
}

// NewDialProvider binds a provider to a deployment. A nil temperature
// leaves the deployment default in place.
func NewDialProvider(client *dial.Client, deployment string, temperature *float64) *DialProvider {
	return &DialProvider{client: client, deployment: deployment, temperature: temperature}
}

// StreamChat forwards the conversation to the deployment and relays each
// delta to the handler in arrival order.
func (p *DialProvider) StreamChat(ctx context.Context, apiKey string, messages []dial.Message, tools []dial.Tool, handler agentports.StreamHandler) error {
	req := dial.ChatRequest{
		Messages:    messages,
		Tools:       tools,
		Temperature: p.temperature,
	}
	return p.client.ChatStream(ctx, p.deployment, apiKey, req, func(chunk dial.Chunk) error {
		for _, choice := range chunk.Choices {
			if choice.Index != 0 {
				continue
			}
			if choice.Delta.Content != "" {
				handler.OnContent(choice.Delta.Content)
			}
			for _, delta := range choice.Delta.ToolCalls {
				if err := handler.OnToolCallDelta(delta); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

var _ agentports.Provider = (*DialProvider)(nil)
