package dial

import "encoding/json"

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one chat-completion message in the DIAL/OpenAI wire format.
// All optional fields carry omitempty so serialized state never contains
// null or absent members.
type Message struct {
	Role          Role           `json:"role"`
	Content       string         `json:"content,omitempty"`
	Name          string         `json:"name,omitempty"`
	ToolCalls     []ToolCall     `json:"tool_calls,omitempty"`
	ToolCallID    string         `json:"tool_call_id,omitempty"`
	CustomContent *CustomContent `json:"custom_content,omitempty"`
}

// FunctionCall carries a tool name and its JSON-encoded argument text.
type FunctionCall struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments"`
}

// ToolCall is a complete model-issued tool invocation.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// ToolCallDelta is one streamed fragment of a tool invocation. Index is
// round-local; ID is set only in the fragment that opens the invocation,
// later fragments append Function.Arguments text.
type ToolCallDelta struct {
	Index    int          `json:"index"`
	ID       string       `json:"id,omitempty"`
	Type     string       `json:"type,omitempty"`
	Function FunctionCall `json:"function"`
}

// Tool declares a function-calling tool to the model.
type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

// ToolFunction is the declarative part of a tool: name, model-facing
// description and a JSON-Schema object for the arguments.
type ToolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// NewFunctionTool builds a function tool declaration.
func NewFunctionTool(name, description string, parameters json.RawMessage) Tool {
	return Tool{
		Type: "function",
		Function: ToolFunction{
			Name:        name,
			Description: description,
			Parameters:  parameters,
		},
	}
}

// Attachment references or embeds an artifact attached to a message,
// a stage or a choice.
type Attachment struct {
	Type          string `json:"type,omitempty"`
	Title         string `json:"title,omitempty"`
	Data          string `json:"data,omitempty"`
	URL           string `json:"url,omitempty"`
	ReferenceType string `json:"reference_type,omitempty"`
	ReferenceURL  string `json:"reference_url,omitempty"`
}

// StageStatus is the terminal status of a progress stage.
type StageStatus string

const (
	StageCompleted StageStatus = "completed"
	StageFailed    StageStatus = "failed"
)

// StageEvent is one incremental stage update inside a streamed delta.
// Events referring to the same Index belong to one stage.
type StageEvent struct {
	Index       int          `json:"index"`
	Name        string       `json:"name,omitempty"`
	Content     string       `json:"content,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Status      StageStatus  `json:"status,omitempty"`
}

// CustomContent is the DIAL envelope for attachments, progress stages and
// client-carried state.
type CustomContent struct {
	Attachments []Attachment    `json:"attachments,omitempty"`
	Stages      []StageEvent    `json:"stages,omitempty"`
	State       json.RawMessage `json:"state,omitempty"`
}

// CustomFields carries deployment-specific request configuration.
type CustomFields struct {
	Configuration map[string]any `json:"configuration,omitempty"`
}

// ChatRequest is the body of a chat-completions call.
type ChatRequest struct {
	Messages     []Message     `json:"messages"`
	Tools        []Tool        `json:"tools,omitempty"`
	Stream       bool          `json:"stream,omitempty"`
	Temperature  *float64      `json:"temperature,omitempty"`
	MaxTokens    int           `json:"max_tokens,omitempty"`
	CustomFields *CustomFields `json:"custom_fields,omitempty"`
}

// Usage reports token accounting for a completed call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Delta is the incremental message part of one streamed chunk.
type Delta struct {
	Role          Role            `json:"role,omitempty"`
	Content       string          `json:"content,omitempty"`
	ToolCalls     []ToolCallDelta `json:"tool_calls,omitempty"`
	CustomContent *CustomContent  `json:"custom_content,omitempty"`
}

// ChunkChoice is one choice of a streamed chunk.
type ChunkChoice struct {
	Index        int    `json:"index"`
	Delta        Delta  `json:"delta"`
	FinishReason string `json:"finish_reason,omitempty"`
}

// Chunk is one streamed chat-completion event.
type Chunk struct {
	ID      string        `json:"id,omitempty"`
	Object  string        `json:"object,omitempty"`
	Created int64         `json:"created,omitempty"`
	Model   string        `json:"model,omitempty"`
	Choices []ChunkChoice `json:"choices,omitempty"`
	Usage   *Usage        `json:"usage,omitempty"`
}

// ResponseChoice is one choice of a non-streaming response.
type ResponseChoice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason,omitempty"`
}

// ChatResponse is the body of a non-streaming chat-completions response.
type ChatResponse struct {
	ID      string           `json:"id,omitempty"`
	Object  string           `json:"object,omitempty"`
	Created int64            `json:"created,omitempty"`
	Model   string           `json:"model,omitempty"`
	Choices []ResponseChoice `json:"choices"`
	Usage   *Usage           `json:"usage,omitempty"`
}

// ErrorResponse is the error body DIAL services return outside a stream.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes one API error.
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
}
