package agent

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	agentports "github.com/ZanzyTHEbar/dialagent/dagent/agent/ports"
	"github.com/ZanzyTHEbar/dialagent/dagent/dial"
)

func newTestCoordinator(timeout time.Duration, tools ...agentports.Tool) *Coordinator {
	return NewCoordinator(NewRegistry(tools...), noOpTracer{}, 4, timeout)
}

func newTestScope(choice *recordingChoice) CallScope {
	return CallScope{APIKey: "test-key", ConversationID: "conv-1", Choice: choice}
}

func TestExecuteRoundSuccess(t *testing.T) {
	tool := &fakeTool{name: "get_weather", execute: func(context.Context, agentports.CallContext, json.RawMessage) (agentports.ToolOutput, error) {
		return agentports.ToolOutput{Text: "+18C, clear"}, nil
	}}
	choice := &recordingChoice{}
	results := newTestCoordinator(time.Second, tool).ExecuteRound(context.Background(),
		[]dial.ToolCall{functionCall("c1", "get_weather", `{"city":"Kyiv"}`)},
		newTestScope(choice))

	require.Len(t, results, 1)
	assert.Equal(t, dial.Message{
		Role:       dial.RoleTool,
		Name:       "get_weather",
		Content:    "+18C, clear",
		ToolCallID: "c1",
	}, results[0])

	stage := choice.stageByName("get_weather")
	require.NotNil(t, stage)
	assert.True(t, stage.closed)
	assert.True(t, stage.ok)
}

func TestExecuteRoundKeepsInvocationOrder(t *testing.T) {
	slow := &fakeTool{name: "slow_ok", execute: func(context.Context, agentports.CallContext, json.RawMessage) (agentports.ToolOutput, error) {
		time.Sleep(50 * time.Millisecond)
		return agentports.ToolOutput{Text: "slow result"}, nil
	}}
	failing := &fakeTool{name: "failing", execute: func(context.Context, agentports.CallContext, json.RawMessage) (agentports.ToolOutput, error) {
		return agentports.ToolOutput{}, assert.AnError
	}}

	results := newTestCoordinator(time.Second, slow, failing).ExecuteRound(context.Background(),
		[]dial.ToolCall{
			functionCall("c1", "slow_ok", `{}`),
			functionCall("c2", "failing", `{}`),
		},
		newTestScope(&recordingChoice{}))

	require.Len(t, results, 2)
	// The fast failure settles first but stays in second position.
	assert.Equal(t, "slow result", results[0].Content)
	assert.Equal(t, "c1", results[0].ToolCallID)
	assert.Equal(t, toolErrorPrefix+assert.AnError.Error(), results[1].Content)
	assert.Equal(t, "c2", results[1].ToolCallID)
}

func TestExecuteRoundUnknownTool(t *testing.T) {
	choice := &recordingChoice{}
	results := newTestCoordinator(time.Second).ExecuteRound(context.Background(),
		[]dial.ToolCall{functionCall("c1", "nope", `{}`)},
		newTestScope(choice))

	require.Len(t, results, 1)
	assert.Equal(t, `Error during tool execution: unknown tool "nope"`, results[0].Content)
	assert.Equal(t, dial.RoleTool, results[0].Role)
	assert.Equal(t, "c1", results[0].ToolCallID)

	stage := choice.stageByName("nope")
	require.NotNil(t, stage)
	assert.True(t, stage.closed)
	assert.False(t, stage.ok)
}

func TestExecuteRoundInvalidArgumentsJSON(t *testing.T) {
	tool := &fakeTool{name: "echo"}
	results := newTestCoordinator(time.Second, tool).ExecuteRound(context.Background(),
		[]dial.ToolCall{functionCall("c1", "echo", `{"city":`)},
		newTestScope(&recordingChoice{}))

	require.Len(t, results, 1)
	assert.Contains(t, results[0].Content, toolErrorPrefix)
	assert.Contains(t, results[0].Content, "arguments are not valid JSON")
}

func TestExecuteRoundSchemaRejection(t *testing.T) {
	schema := json.RawMessage(`{"type":"object","properties":{"city":{"type":"string"}},"required":["city"]}`)
	executed := atomic.Bool{}
	tool := &fakeTool{name: "get_weather", schema: schema, execute: func(context.Context, agentports.CallContext, json.RawMessage) (agentports.ToolOutput, error) {
		executed.Store(true)
		return agentports.ToolOutput{Text: "never"}, nil
	}}

	results := newTestCoordinator(time.Second, tool).ExecuteRound(context.Background(),
		[]dial.ToolCall{functionCall("c1", "get_weather", `{"city":5}`)},
		newTestScope(&recordingChoice{}))

	require.Len(t, results, 1)
	assert.Contains(t, results[0].Content, "arguments rejected by schema")
	assert.False(t, executed.Load(), "rejected arguments must never reach the tool")
}

func TestExecuteRoundPanicContained(t *testing.T) {
	panicking := &fakeTool{name: "boomer", execute: func(context.Context, agentports.CallContext, json.RawMessage) (agentports.ToolOutput, error) {
		panic("kaboom")
	}}
	steady := &fakeTool{name: "steady", execute: func(context.Context, agentports.CallContext, json.RawMessage) (agentports.ToolOutput, error) {
		return agentports.ToolOutput{Text: "fine"}, nil
	}}

	results := newTestCoordinator(time.Second, panicking, steady).ExecuteRound(context.Background(),
		[]dial.ToolCall{
			functionCall("c1", "boomer", `{}`),
			functionCall("c2", "steady", `{}`),
		},
		newTestScope(&recordingChoice{}))

	require.Len(t, results, 2)
	assert.Equal(t, toolErrorPrefix+"panic: kaboom", results[0].Content)
	assert.Equal(t, "fine", results[1].Content)
}

func TestExecuteRoundTimeout(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	stuck := &fakeTool{name: "stuck", execute: func(context.Context, agentports.CallContext, json.RawMessage) (agentports.ToolOutput, error) {
		<-release
		return agentports.ToolOutput{Text: "late"}, nil
	}}

	results := newTestCoordinator(30*time.Millisecond, stuck).ExecuteRound(context.Background(),
		[]dial.ToolCall{functionCall("c1", "stuck", `{}`)},
		newTestScope(&recordingChoice{}))

	require.Len(t, results, 1)
	assert.Equal(t, toolErrorPrefix+`tool "stuck" timed out after 30ms`, results[0].Content)
}

func TestExecuteRoundCanceledRequest(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	stuck := &fakeTool{name: "stuck", execute: func(context.Context, agentports.CallContext, json.RawMessage) (agentports.ToolOutput, error) {
		<-release
		return agentports.ToolOutput{}, nil
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results := newTestCoordinator(time.Second, stuck).ExecuteRound(ctx,
		[]dial.ToolCall{functionCall("c1", "stuck", `{}`)},
		newTestScope(&recordingChoice{}))

	require.Len(t, results, 1)
	assert.Contains(t, results[0].Content, toolErrorPrefix+"canceled:")
}

func TestExecuteRoundEmptyArgumentsNormalized(t *testing.T) {
	var received string
	tool := &fakeTool{name: "echo", execute: func(_ context.Context, _ agentports.CallContext, args json.RawMessage) (agentports.ToolOutput, error) {
		received = string(args)
		return agentports.ToolOutput{Text: "ok"}, nil
	}}

	newTestCoordinator(time.Second, tool).ExecuteRound(context.Background(),
		[]dial.ToolCall{functionCall("c1", "echo", "")},
		newTestScope(&recordingChoice{}))

	assert.Equal(t, "{}", received)
}

func TestExecuteRoundGenericArgsBlock(t *testing.T) {
	tool := &fakeTool{name: "shown", showArgs: true, execute: func(_ context.Context, call agentports.CallContext, _ json.RawMessage) (agentports.ToolOutput, error) {
		call.Stage.AppendContent("result body")
		return agentports.ToolOutput{Text: "done"}, nil
	}}

	choice := &recordingChoice{}
	newTestCoordinator(time.Second, tool).ExecuteRound(context.Background(),
		[]dial.ToolCall{functionCall("c1", "shown", `{"a":1}`)},
		newTestScope(choice))

	stage := choice.stageByName("shown")
	require.NotNil(t, stage)
	staged := stage.String()
	assert.Contains(t, staged, "## Request arguments: \n")
	assert.Contains(t, staged, "\"a\": 1")
	assert.Contains(t, staged, "## Response: \nresult body")
}

func TestExecuteRoundMessageOutputNormalized(t *testing.T) {
	custom := &dial.CustomContent{Attachments: []dial.Attachment{{URL: "files/b/img.png", Type: "image/png"}}}
	tool := &fakeTool{name: "imager", execute: func(context.Context, agentports.CallContext, json.RawMessage) (agentports.ToolOutput, error) {
		return agentports.ToolOutput{Message: &dial.Message{
			Role:          dial.RoleUser,
			Content:       "made an image",
			CustomContent: custom,
		}}, nil
	}}

	results := newTestCoordinator(time.Second, tool).ExecuteRound(context.Background(),
		[]dial.ToolCall{functionCall("c7", "imager", `{}`)},
		newTestScope(&recordingChoice{}))

	require.Len(t, results, 1)
	assert.Equal(t, dial.RoleTool, results[0].Role)
	assert.Equal(t, "c7", results[0].ToolCallID)
	assert.Equal(t, "imager", results[0].Name)
	assert.Equal(t, "made an image", results[0].Content)
	assert.Same(t, custom, results[0].CustomContent)
}

func TestExecuteRoundConcurrencyBounded(t *testing.T) {
	var running, peak atomic.Int32
	tool := &fakeTool{name: "counter", execute: func(context.Context, agentports.CallContext, json.RawMessage) (agentports.ToolOutput, error) {
		now := running.Add(1)
		for {
			seen := peak.Load()
			if now <= seen || peak.CompareAndSwap(seen, now) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		running.Add(-1)
		return agentports.ToolOutput{Text: "ok"}, nil
	}}

	coordinator := NewCoordinator(NewRegistry(tool), noOpTracer{}, 2, time.Second)
	calls := make([]dial.ToolCall, 6)
	for i := range calls {
		calls[i] = functionCall("c", "counter", `{}`)
	}
	results := coordinator.ExecuteRound(context.Background(), calls, newTestScope(&recordingChoice{}))

	assert.Len(t, results, 6)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestExecuteRoundEmpty(t *testing.T) {
	results := newTestCoordinator(time.Second).ExecuteRound(context.Background(), nil, newTestScope(&recordingChoice{}))
	assert.Nil(t, results)
}
