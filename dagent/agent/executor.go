package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	agentports "github.com/ZanzyTHEbar/dialagent/dagent/agent/ports"
	"github.com/ZanzyTHEbar/dialagent/dagent/dial"
)

// toolErrorPrefix is the marker the model learns to recognize as a
// recoverable tool failure.
const toolErrorPrefix = "Error during tool execution: "

// CallScope carries the per-request constants shared by every tool
// invocation of one round.
type CallScope struct {
	APIKey         string
	ConversationID string
	Choice         agentports.Choice
}

// executor runs one invocation under the uniform result contract: it
// always produces exactly one tool message addressed to the invocation
// id, whatever happens inside. Lookup misses, rejected arguments,
// returned errors, panics and timeouts all collapse into an error
// result; nothing escapes to the caller.
type executor struct {
	registry  *Registry
	validator *ArgumentValidator
	tracer    agentports.Tracer
	timeout   time.Duration
}

func (e *executor) run(ctx context.Context, scope CallScope, call dial.ToolCall) dial.Message {
	stage := scope.Choice.OpenStage(call.Function.Name)

	spanCtx, finish := e.tracer.StartSpan(ctx, "tool", map[string]any{
		"tool":            call.Function.Name,
		"tool_call_id":    call.ID,
		"conversation_id": scope.ConversationID,
	})
	output, err := e.invoke(spanCtx, scope, stage, call)
	finish(err)

	if err != nil {
		stage.Close(false)
		return dial.Message{
			Role:       dial.RoleTool,
			Name:       call.Function.Name,
			Content:    toolErrorPrefix + err.Error(),
			ToolCallID: call.ID,
		}
	}

	stage.Close(true)
	if output.Message != nil {
		msg := *output.Message
		msg.Role = dial.RoleTool
		msg.ToolCallID = call.ID
		if msg.Name == "" {
			msg.Name = call.Function.Name
		}
		return msg
	}
	return dial.Message{
		Role:       dial.RoleTool,
		Name:       call.Function.Name,
		Content:    output.Text,
		ToolCallID: call.ID,
	}
}

func (e *executor) invoke(ctx context.Context, scope CallScope, stage agentports.Stage, call dial.ToolCall) (agentports.ToolOutput, error) {
	tool, ok := e.registry.Lookup(call.Function.Name)
	if !ok {
		return agentports.ToolOutput{}, fmt.Errorf("unknown tool %q", call.Function.Name)
	}

	args := []byte(call.Function.Arguments)
	if len(bytes.TrimSpace(args)) == 0 {
		args = []byte("{}")
	}

	if tool.ShowArgsInStage() {
		if err := renderRequestArgs(stage, args); err != nil {
			return agentports.ToolOutput{}, err
		}
	}
	if err := e.validator.Validate(args, tool.Definition().Function.Parameters); err != nil {
		return agentports.ToolOutput{}, err
	}

	callCtx := agentports.CallContext{
		APIKey:         scope.APIKey,
		ConversationID: scope.ConversationID,
		Choice:         scope.Choice,
		Stage:          stage,
	}

	toolCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	type outcome struct {
		output agentports.ToolOutput
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		output, err := tool.Execute(toolCtx, callCtx, json.RawMessage(args))
		done <- outcome{output: output, err: err}
	}()

	select {
	case result := <-done:
		return result.output, result.err
	case <-toolCtx.Done():
		// A sibling invocation may still be running; only this result
		// turns into an error.
		if ctx.Err() != nil {
			return agentports.ToolOutput{}, fmt.Errorf("canceled: %w", ctx.Err())
		}
		return agentports.ToolOutput{}, fmt.Errorf("tool %q timed out after %s", call.Function.Name, e.timeout)
	}
}

// renderRequestArgs writes the generic request block into the stage so
// users can inspect what the model asked for.
func renderRequestArgs(stage agentports.Stage, args []byte) error {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, args, "", "  "); err != nil {
		return fmt.Errorf("invalid tool arguments: %w", err)
	}
	stage.AppendContent("## Request arguments: \n")
	stage.AppendContent("```json\n\r" + pretty.String() + "\n\r```\n\r")
	stage.AppendContent("## Response: \n")
	return nil
}
