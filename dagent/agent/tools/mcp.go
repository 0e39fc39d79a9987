package tools

import (
	"context"
	"encoding/json"
	"fmt"

	agentports "github.com/ZanzyTHEbar/dialagent/dagent/agent/ports"
	"github.com/ZanzyTHEbar/dialagent/dagent/dial"
	"github.com/ZanzyTHEbar/dialagent/dagent/mcp"
)

// MCPTool exposes a single remote MCP tool to the model, advertising the
// schema the server published and relaying calls verbatim.
type MCPTool struct {
	client     *mcp.Client
	descriptor mcp.ToolDescriptor
}

var _ agentports.Tool = (*MCPTool)(nil)

func NewMCPTool(client *mcp.Client, descriptor mcp.ToolDescriptor) *MCPTool {
	return &MCPTool{client: client, descriptor: descriptor}
}

// NewMCPTools wraps every tool an MCP server advertises.
func NewMCPTools(ctx context.Context, client *mcp.Client) ([]agentports.Tool, error) {
	descriptors, err := client.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tools on %s: %w", client.Endpoint(), err)
	}
	wrapped := make([]agentports.Tool, 0, len(descriptors))
	for _, descriptor := range descriptors {
		wrapped = append(wrapped, NewMCPTool(client, descriptor))
	}
	return wrapped, nil
}

func (t *MCPTool) Name() string { return t.descriptor.Name }

func (t *MCPTool) ShowArgsInStage() bool { return true }

func (t *MCPTool) Definition() dial.Tool {
	return dial.NewFunctionTool(t.descriptor.Name, t.descriptor.Description, t.descriptor.Schema)
}

func (t *MCPTool) Execute(ctx context.Context, call agentports.CallContext, args json.RawMessage) (agentports.ToolOutput, error) {
	var params map[string]any
	if err := json.Unmarshal(args, &params); err != nil {
		return agentports.ToolOutput{}, fmt.Errorf("parse arguments: %w", err)
	}
	content, err := t.client.CallTool(ctx, t.descriptor.Name, params)
	if err != nil {
		return agentports.ToolOutput{}, err
	}
	call.Stage.AppendContent(content)
	return agentports.ToolOutput{Text: content}, nil
}
