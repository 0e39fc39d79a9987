package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"path"

	agentports "github.com/ZanzyTHEbar/dialagent/dagent/agent/ports"
	"github.com/ZanzyTHEbar/dialagent/dagent/dial"
	"github.com/ZanzyTHEbar/dialagent/dagent/mcp"
)

const interpreterOutputLimit = 200

// executionResult mirrors the interpreter server's response model. The
// instructions field is filled in after generated files are uploaded so the
// model knows the user already received them.
type executionResult struct {
	Success      bool            `json:"success"`
	Output       []string        `json:"output,omitempty"`
	Error        string          `json:"error,omitempty"`
	Files        []executionFile `json:"files,omitempty"`
	SessionID    string          `json:"session_id,omitempty"`
	Instructions string          `json:"instructions,omitempty"`
}

type executionFile struct {
	Name     string `json:"name"`
	URI      string `json:"uri"`
	MIMEType string `json:"mime_type"`
	Size     int64  `json:"size,omitempty"`
}

// PythonCodeInterpreterTool runs model-written code on a remote interpreter
// MCP server. Files the code produces are pulled from the interpreter and
// uploaded to the caller's DIAL bucket so the chat can reference them.
type PythonCodeInterpreterTool struct {
	dialClient *dial.Client
	mcpClient  *mcp.Client
	descriptor mcp.ToolDescriptor
}

var _ agentports.Tool = (*PythonCodeInterpreterTool)(nil)

// NewPythonCodeInterpreterTool connects to the interpreter server and
// resolves the execution tool descriptor. toolName must match the name the
// server advertises for code execution.
func NewPythonCodeInterpreterTool(ctx context.Context, dialClient *dial.Client, mcpClient *mcp.Client, toolName string) (*PythonCodeInterpreterTool, error) {
	descriptors, err := mcpClient.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("list interpreter tools: %w", err)
	}
	for _, d := range descriptors {
		if d.Name == toolName {
			return &PythonCodeInterpreterTool{
				dialClient: dialClient,
				mcpClient:  mcpClient,
				descriptor: d,
			}, nil
		}
	}
	return nil, fmt.Errorf("interpreter server %s does not expose tool %q", mcpClient.Endpoint(), toolName)
}

func (t *PythonCodeInterpreterTool) Name() string { return t.descriptor.Name }

func (t *PythonCodeInterpreterTool) ShowArgsInStage() bool { return false }

func (t *PythonCodeInterpreterTool) Definition() dial.Tool {
	return dial.NewFunctionTool(t.descriptor.Name, t.descriptor.Description, t.descriptor.Schema)
}

func (t *PythonCodeInterpreterTool) Execute(ctx context.Context, call agentports.CallContext, args json.RawMessage) (agentports.ToolOutput, error) {
	var params map[string]any
	if err := json.Unmarshal(args, &params); err != nil {
		return agentports.ToolOutput{}, fmt.Errorf("parse arguments: %w", err)
	}
	code, ok := params["code"].(string)
	if !ok || code == "" {
		return agentports.ToolOutput{}, fmt.Errorf("code is required")
	}

	call.Stage.AppendContent("## Request arguments: \n")
	call.Stage.AppendContent(fmt.Sprintf("```python\n%s\n```\n", code))
	if sessionID := params["session_id"]; truthy(sessionID) {
		call.Stage.AppendContent(fmt.Sprintf("**session_id**: %v\n\r", sessionID))
	} else {
		call.Stage.AppendContent("New session will be created\n")
	}
	call.Stage.AppendContent("## Response: \n")

	content, err := t.mcpClient.CallTool(ctx, t.descriptor.Name, params)
	if err != nil {
		return agentports.ToolOutput{}, err
	}

	var result executionResult
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return agentports.ToolOutput{}, fmt.Errorf("parse interpreter response: %w", err)
	}

	if len(result.Files) > 0 {
		home, err := t.dialClient.AppDataHome(ctx, call.APIKey)
		if err != nil {
			return agentports.ToolOutput{}, err
		}
		for _, file := range result.Files {
			resource, err := t.mcpClient.ReadResource(ctx, file.URI)
			if err != nil {
				return agentports.ToolOutput{}, fmt.Errorf("read interpreter file %s: %w", file.Name, err)
			}
			url := "files/" + path.Join(home, file.Name)
			if _, err := t.dialClient.UploadFile(ctx, call.APIKey, url, file.MIMEType, resource.Bytes()); err != nil {
				return agentports.ToolOutput{}, fmt.Errorf("upload %s: %w", file.Name, err)
			}
			attachment := dial.Attachment{URL: url, Type: file.MIMEType, Title: file.Name}
			call.Stage.AddAttachment(attachment)
			call.Choice.AddAttachment(attachment)
		}
		result.Instructions = "Generates files have been provided to user, DON'T include links to them in response!"
	}

	// Long prints get clipped before feeding the result back to the model.
	for i, output := range result.Output {
		result.Output[i] = truncateRunes(output, interpreterOutputLimit)
	}

	pretty, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return agentports.ToolOutput{}, err
	}
	call.Stage.AppendContent(fmt.Sprintf("```json\n\r%s\n\r```\n\r", pretty))

	compact, err := json.Marshal(result)
	if err != nil {
		return agentports.ToolOutput{}, err
	}
	return agentports.ToolOutput{Text: string(compact)}, nil
}

// truthy reports whether a decoded JSON value counts as present, matching
// loose client conventions where 0, "" and null all mean "not set".
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case float64:
		return x != 0
	default:
		return true
	}
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
