// Package service exposes the agent as a DIAL-compatible chat-completions
// endpoint: an OpenAI streaming surface extended with the DIAL custom
// content envelope for stages, attachments and client-carried state.
package service

import (
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	agentports "github.com/ZanzyTHEbar/dialagent/dagent/agent/ports"
	"github.com/ZanzyTHEbar/dialagent/dagent/dial"
)

// StreamingChoice is the single response choice of a streamed completion.
// Every append turns into one SSE chunk immediately, the user watches the
// answer and the tool stages grow live. Safe for concurrent use.
type StreamingChoice struct {
	emitter    *sseEmitter
	id         string
	created    int64
	deployment string

	mu        sync.Mutex
	content   strings.Builder
	nextStage int

	closed atomic.Bool
}

// NewStreamingChoice opens the choice on the stream. The opening chunk
// announces the assistant role before any content arrives.
func NewStreamingChoice(emitter *sseEmitter, deployment string) *StreamingChoice {
	c := &StreamingChoice{
		emitter:    emitter,
		id:         "chatcmpl-" + uuid.NewString(),
		created:    time.Now().Unix(),
		deployment: deployment,
	}
	c.sendDelta(dial.Delta{Role: dial.RoleAssistant})
	return c
}

func (c *StreamingChoice) chunk(delta dial.Delta, finishReason string) dial.Chunk {
	return dial.Chunk{
		ID:      c.id,
		Object:  "chat.completion.chunk",
		Created: c.created,
		Model:   c.deployment,
		Choices: []dial.ChunkChoice{{Index: 0, Delta: delta, FinishReason: finishReason}},
	}
}

func (c *StreamingChoice) sendDelta(delta dial.Delta) {
	_ = c.emitter.Send(c.chunk(delta, ""))
}

func (c *StreamingChoice) AppendContent(text string) {
	if text == "" {
		return
	}
	c.mu.Lock()
	c.content.WriteString(text)
	c.mu.Unlock()
	c.sendDelta(dial.Delta{Content: text})
}

func (c *StreamingChoice) AddAttachment(attachment dial.Attachment) {
	c.sendDelta(dial.Delta{CustomContent: &dial.CustomContent{
		Attachments: []dial.Attachment{attachment},
	}})
}

// OpenStage allocates the next stage index and announces the stage.
func (c *StreamingChoice) OpenStage(name string) agentports.Stage {
	c.mu.Lock()
	index := c.nextStage
	c.nextStage++
	c.mu.Unlock()

	c.sendDelta(dial.Delta{CustomContent: &dial.CustomContent{
		Stages: []dial.StageEvent{{Index: index, Name: name}},
	}})
	return &streamingStage{choice: c, index: index}
}

// SetState persists the client-carried state on the stream.
func (c *StreamingChoice) SetState(state any) {
	raw, err := json.Marshal(state)
	if err != nil {
		return
	}
	c.sendDelta(dial.Delta{CustomContent: &dial.CustomContent{State: raw}})
}

// Content returns the visible answer accumulated so far.
func (c *StreamingChoice) Content() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.content.String()
}

// Finish closes the choice: terminal chunk with a finish reason, then the
// stream terminator. Idempotent.
func (c *StreamingChoice) Finish() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	_ = c.emitter.Send(c.chunk(dial.Delta{}, "stop"))
	c.emitter.Done()
}

// Fail closes the choice with a terminal error event. Used when the
// request dies after streaming has started and a status code can no
// longer be sent.
func (c *StreamingChoice) Fail(err error) {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	_ = c.emitter.Send(dial.ErrorResponse{Error: dial.ErrorDetail{
		Message: err.Error(),
		Type:    "runtime_error",
	}})
	c.emitter.Done()
}

var _ agentports.Choice = (*StreamingChoice)(nil)

// streamingStage relays stage updates as custom content events carrying
// the stage's wire index.
type streamingStage struct {
	choice *StreamingChoice
	index  int
	closed atomic.Bool
}

func (s *streamingStage) send(event dial.StageEvent) {
	event.Index = s.index
	s.choice.sendDelta(dial.Delta{CustomContent: &dial.CustomContent{
		Stages: []dial.StageEvent{event},
	}})
}

func (s *streamingStage) AppendName(name string) {
	if name == "" {
		return
	}
	s.send(dial.StageEvent{Name: name})
}

func (s *streamingStage) AppendContent(text string) {
	if text == "" {
		return
	}
	s.send(dial.StageEvent{Content: text})
}

func (s *streamingStage) AddAttachment(attachment dial.Attachment) {
	s.send(dial.StageEvent{Attachments: []dial.Attachment{attachment}})
}

func (s *streamingStage) Close(ok bool) {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	status := dial.StageCompleted
	if !ok {
		status = dial.StageFailed
	}
	s.send(dial.StageEvent{Status: status})
}

var _ agentports.Stage = (*streamingStage)(nil)

// BufferedChoice collects the whole response in memory for stream=false
// requests. Safe for concurrent use.
type BufferedChoice struct {
	mu          sync.Mutex
	content     strings.Builder
	attachments []dial.Attachment
	stages      []*bufferedStage
	state       json.RawMessage
}

func NewBufferedChoice() *BufferedChoice {
	return &BufferedChoice{}
}

func (c *BufferedChoice) AppendContent(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.content.WriteString(text)
}

func (c *BufferedChoice) AddAttachment(attachment dial.Attachment) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attachments = append(c.attachments, attachment)
}

func (c *BufferedChoice) OpenStage(name string) agentports.Stage {
	c.mu.Lock()
	defer c.mu.Unlock()
	stage := &bufferedStage{event: dial.StageEvent{Index: len(c.stages), Name: name}}
	c.stages = append(c.stages, stage)
	return stage
}

func (c *BufferedChoice) SetState(state any) {
	raw, err := json.Marshal(state)
	if err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = raw
}

var _ agentports.Choice = (*BufferedChoice)(nil)

// Message assembles the final assistant message.
func (c *BufferedChoice) Message() dial.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg := dial.Message{Role: dial.RoleAssistant, Content: c.content.String()}
	custom := &dial.CustomContent{
		Attachments: append([]dial.Attachment(nil), c.attachments...),
		State:       c.state,
	}
	for _, stage := range c.stages {
		custom.Stages = append(custom.Stages, stage.snapshot())
	}
	if len(custom.Attachments) > 0 || len(custom.Stages) > 0 || len(custom.State) > 0 {
		msg.CustomContent = custom
	}
	return msg
}

// Response wraps the message into a non-streaming completion body.
func (c *BufferedChoice) Response(deployment string) dial.ChatResponse {
	return dial.ChatResponse{
		ID:      "chatcmpl-" + uuid.NewString(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   deployment,
		Choices: []dial.ResponseChoice{{
			Index:        0,
			Message:      c.Message(),
			FinishReason: "stop",
		}},
	}
}

type bufferedStage struct {
	mu     sync.Mutex
	event  dial.StageEvent
	closed bool
}

func (s *bufferedStage) AppendName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.event.Name += name
}

func (s *bufferedStage) AppendContent(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.event.Content += text
}

func (s *bufferedStage) AddAttachment(attachment dial.Attachment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.event.Attachments = append(s.event.Attachments, attachment)
}

func (s *bufferedStage) Close(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if ok {
		s.event.Status = dial.StageCompleted
	} else {
		s.event.Status = dial.StageFailed
	}
}

func (s *bufferedStage) snapshot() dial.StageEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.event
}

var _ agentports.Stage = (*bufferedStage)(nil)
