package agentports

import (
	"context"
	"encoding/json"

	"github.com/ZanzyTHEbar/dialagent/dagent/dial"
)

// Tool is one callable capability exposed to the model.
type Tool interface {
	// Name is the function name the model calls the tool by.
	Name() string
	// Definition is the declaration advertised to the model.
	Definition() dial.Tool
	// ShowArgsInStage reports whether the runner should render the
	// generic request/response blocks into the tool's stage. Tools that
	// format their own stage output return false.
	ShowArgsInStage() bool
	// Execute runs the tool. Failures are returned as errors; the runner
	// owns converting them into result messages.
	Execute(ctx context.Context, call CallContext, args json.RawMessage) (ToolOutput, error)
}

// CallContext carries the per-invocation environment a tool runs in.
type CallContext struct {
	// APIKey is the end user credential forwarded to downstream calls.
	APIKey string
	// ConversationID scopes caches and logs to one conversation.
	ConversationID string
	// Choice is the user-visible output sink.
	Choice ChoiceSink
	// Stage is the progress stage opened for this invocation.
	Stage Stage
}

// ToolOutput is a successful tool result. Message, when set, replaces the
// default text result entirely and may carry attachments or other custom
// content alongside the text.
type ToolOutput struct {
	Text    string
	Message *dial.Message
}
