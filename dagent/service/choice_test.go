package service

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/dialagent/dagent/dial"
)

// parseSSE decodes every data event of an SSE body and checks the
// [DONE] terminator closes the stream.
func parseSSE(t *testing.T, body string) []map[string]any {
	t.Helper()
	var events []map[string]any
	sawDone := false
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			sawDone = true
			continue
		}
		require.False(t, sawDone, "events after [DONE]")
		var event map[string]any
		require.NoError(t, json.Unmarshal([]byte(payload), &event))
		events = append(events, event)
	}
	require.True(t, sawDone, "stream must end with [DONE]")
	return events
}

func chunkDelta(t *testing.T, event map[string]any) map[string]any {
	t.Helper()
	choices, ok := event["choices"].([]any)
	require.True(t, ok, "event has no choices: %v", event)
	require.Len(t, choices, 1)
	choice, ok := choices[0].(map[string]any)
	require.True(t, ok)
	delta, ok := choice["delta"].(map[string]any)
	require.True(t, ok)
	return delta
}

func stageEvent(t *testing.T, event map[string]any) map[string]any {
	t.Helper()
	custom, ok := chunkDelta(t, event)["custom_content"].(map[string]any)
	require.True(t, ok, "event has no custom content: %v", event)
	stages, ok := custom["stages"].([]any)
	require.True(t, ok)
	require.Len(t, stages, 1)
	stage, ok := stages[0].(map[string]any)
	require.True(t, ok)
	return stage
}

func finishReason(event map[string]any) any {
	choices, _ := event["choices"].([]any)
	if len(choices) != 1 {
		return nil
	}
	choice, _ := choices[0].(map[string]any)
	return choice["finish_reason"]
}

func TestSSEEmitterFraming(t *testing.T) {
	rec := httptest.NewRecorder()
	emitter, err := newSSEEmitter(rec)
	require.NoError(t, err)

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))

	require.NoError(t, emitter.Send(map[string]string{"k": "v"}))
	emitter.Done()

	assert.Equal(t, "data: {\"k\":\"v\"}\n\ndata: [DONE]\n\n", rec.Body.String())
}

func TestStreamingChoiceEventSequence(t *testing.T) {
	rec := httptest.NewRecorder()
	emitter, err := newSSEEmitter(rec)
	require.NoError(t, err)

	choice := NewStreamingChoice(emitter, "general-purpose-agent")
	choice.AppendContent("Hello")

	stage := choice.OpenStage("file_content_extraction_tool")
	stage.AppendContent("**Page**: 1\n")
	stage.AddAttachment(dial.Attachment{Title: "report.txt", URL: "files/bucket/report.txt"})
	stage.Close(true)
	stage.Close(false)

	choice.AddAttachment(dial.Attachment{Title: "img.png", Type: "image/png"})
	choice.SetState(map[string]any{"tool_round_history": []any{}})
	choice.Finish()
	choice.Finish()

	assert.Equal(t, "Hello", choice.Content())

	events := parseSSE(t, rec.Body.String())
	require.Len(t, events, 9)

	assert.Equal(t, "assistant", chunkDelta(t, events[0])["role"])
	assert.Equal(t, "Hello", chunkDelta(t, events[1])["content"])

	open := stageEvent(t, events[2])
	assert.Equal(t, float64(0), open["index"])
	assert.Equal(t, "file_content_extraction_tool", open["name"])

	assert.Equal(t, "**Page**: 1\n", stageEvent(t, events[3])["content"])

	stageAttachment := stageEvent(t, events[4])
	require.Len(t, stageAttachment["attachments"], 1)
	assert.Equal(t, float64(0), stageAttachment["index"])

	closed := stageEvent(t, events[5])
	assert.Equal(t, "completed", closed["status"], "second Close must not demote the stage")

	custom, ok := chunkDelta(t, events[6])["custom_content"].(map[string]any)
	require.True(t, ok)
	attachments, ok := custom["attachments"].([]any)
	require.True(t, ok)
	require.Len(t, attachments, 1)
	assert.Equal(t, "img.png", attachments[0].(map[string]any)["title"])

	stateCustom, ok := chunkDelta(t, events[7])["custom_content"].(map[string]any)
	require.True(t, ok)
	state, ok := stateCustom["state"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []any{}, state["tool_round_history"])

	assert.Empty(t, chunkDelta(t, events[8]))
	assert.Equal(t, "stop", finishReason(events[8]))

	// Every chunk shares one id and carries the deployment.
	for _, event := range events {
		assert.Equal(t, events[0]["id"], event["id"])
		assert.Equal(t, "chat.completion.chunk", event["object"])
		assert.Equal(t, "general-purpose-agent", event["model"])
	}
}

func TestStreamingChoiceStageIndexesIncrement(t *testing.T) {
	rec := httptest.NewRecorder()
	emitter, err := newSSEEmitter(rec)
	require.NoError(t, err)

	choice := NewStreamingChoice(emitter, "agent")
	choice.OpenStage("first")
	choice.OpenStage("second")
	choice.Finish()

	events := parseSSE(t, rec.Body.String())
	require.Len(t, events, 4)
	assert.Equal(t, float64(0), stageEvent(t, events[1])["index"])
	assert.Equal(t, "first", stageEvent(t, events[1])["name"])
	assert.Equal(t, float64(1), stageEvent(t, events[2])["index"])
	assert.Equal(t, "second", stageEvent(t, events[2])["name"])
}

func TestStreamingChoiceStageAppendName(t *testing.T) {
	rec := httptest.NewRecorder()
	emitter, err := newSSEEmitter(rec)
	require.NoError(t, err)

	choice := NewStreamingChoice(emitter, "agent")
	stage := choice.OpenStage("search")
	stage.AppendName(": golang")
	stage.Close(true)
	choice.Finish()

	events := parseSSE(t, rec.Body.String())
	require.Len(t, events, 5)
	assert.Equal(t, "search", stageEvent(t, events[1])["name"])
	rename := stageEvent(t, events[2])
	assert.Equal(t, float64(0), rename["index"])
	assert.Equal(t, ": golang", rename["name"])
}

func TestStreamingChoiceFailEmitsErrorEvent(t *testing.T) {
	rec := httptest.NewRecorder()
	emitter, err := newSSEEmitter(rec)
	require.NoError(t, err)

	choice := NewStreamingChoice(emitter, "agent")
	choice.AppendContent("partial")
	choice.Fail(errors.New("model round 1: upstream 502"))
	choice.Finish()

	events := parseSSE(t, rec.Body.String())
	require.Len(t, events, 3)
	errObj, ok := events[2]["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "model round 1: upstream 502", errObj["message"])
	assert.Equal(t, "runtime_error", errObj["type"])
}

func TestBufferedChoiceAssemblesMessage(t *testing.T) {
	choice := NewBufferedChoice()
	choice.AppendContent("Hello ")
	choice.AppendContent("world")

	stage := choice.OpenStage("rag_tool")
	stage.AppendName(": report.pdf")
	stage.AppendContent("## Request: \n")
	stage.AppendContent("query text")
	stage.Close(false)

	choice.AddAttachment(dial.Attachment{Title: "chart.png", Type: "image/png"})
	choice.SetState(map[string]any{"tool_round_history": []any{}})

	msg := choice.Message()
	assert.Equal(t, dial.RoleAssistant, msg.Role)
	assert.Equal(t, "Hello world", msg.Content)
	require.NotNil(t, msg.CustomContent)

	require.Len(t, msg.CustomContent.Stages, 1)
	recorded := msg.CustomContent.Stages[0]
	assert.Equal(t, 0, recorded.Index)
	assert.Equal(t, "rag_tool: report.pdf", recorded.Name)
	assert.Equal(t, "## Request: \nquery text", recorded.Content)
	assert.Equal(t, dial.StageFailed, recorded.Status)

	require.Len(t, msg.CustomContent.Attachments, 1)
	assert.Equal(t, "chart.png", msg.CustomContent.Attachments[0].Title)
	assert.JSONEq(t, `{"tool_round_history":[]}`, string(msg.CustomContent.State))

	resp := choice.Response("general-purpose-agent")
	assert.True(t, strings.HasPrefix(resp.ID, "chatcmpl-"))
	assert.Equal(t, "chat.completion", resp.Object)
	assert.Equal(t, "general-purpose-agent", resp.Model)
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "stop", resp.Choices[0].FinishReason)
	assert.Equal(t, "Hello world", resp.Choices[0].Message.Content)
}

func TestBufferedChoicePlainAnswerHasNoCustomContent(t *testing.T) {
	choice := NewBufferedChoice()
	choice.AppendContent("just text")

	msg := choice.Message()
	assert.Equal(t, "just text", msg.Content)
	assert.Nil(t, msg.CustomContent)
}
