package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	agentports "github.com/ZanzyTHEbar/dialagent/dagent/agent/ports"
	"github.com/ZanzyTHEbar/dialagent/dagent/dial"
)

// DefaultMaxRounds bounds how many tool rounds one request may run.
const DefaultMaxRounds = 8

type roundPhase string

const (
	phaseStreaming   roundPhase = "streaming"
	phaseDispatching roundPhase = "dispatching"
	phaseDone        roundPhase = "done"
)

// Orchestrator drives one request through the conversation loop: stream
// a model round, reassemble its tool invocations, dispatch them, record
// the round, repeat until the model answers without tools. The loop is
// iterative and bounded; a conversation that never stops requesting
// tools fails with ErrMaxRoundsExceeded instead of growing the stack.
type Orchestrator struct {
	provider    agentports.Provider
	coordinator *Coordinator
	prompt      *PromptSource
	tracer      agentports.Tracer
	maxRounds   int
	logger      zerolog.Logger
}

// NewOrchestrator assembles an orchestrator. A non-positive maxRounds
// falls back to DefaultMaxRounds.
func NewOrchestrator(provider agentports.Provider, coordinator *Coordinator, prompt *PromptSource, tracer agentports.Tracer, maxRounds int, logger zerolog.Logger) *Orchestrator {
	if maxRounds < 1 {
		maxRounds = DefaultMaxRounds
	}
	return &Orchestrator{
		provider:    provider,
		coordinator: coordinator,
		prompt:      prompt,
		tracer:      tracer,
		maxRounds:   maxRounds,
		logger:      logger,
	}
}

// RunRequest is one end-user request handed to the orchestrator.
type RunRequest struct {
	APIKey         string
	ConversationID string
	// Messages is the visible conversation as the client sent it,
	// including any persisted state on earlier assistant messages.
	Messages []dial.Message
	// Choice receives streamed output, stages and the terminal state.
	Choice agentports.Choice
}

// RunResult summarizes a finished request.
type RunResult struct {
	// Content is the final assistant answer, already streamed to the
	// choice delta by delta.
	Content string
	// Rounds counts model calls, the terminal one included.
	Rounds int
	// ToolCalls counts tool invocations across all rounds.
	ToolCalls int
}

// roundCollector gathers one round's streamed output: answer text into
// the builder and the visible sink, invocation fragments into the
// accumulator.
type roundCollector struct {
	accumulator *Accumulator
	content     *strings.Builder
	choice      agentports.ChoiceSink
}

func (c *roundCollector) OnContent(delta string) {
	if delta == "" {
		return
	}
	c.content.WriteString(delta)
	c.choice.AppendContent(delta)
}

func (c *roundCollector) OnToolCallDelta(delta dial.ToolCallDelta) error {
	return c.accumulator.Ingest(delta)
}

var _ agentports.StreamHandler = (*roundCollector)(nil)

// Run executes the request to completion. Tool failures are absorbed
// into tool results; a model call failure or a malformed stream aborts
// the whole request. On success the accumulated round history has been
// persisted through the choice state.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	history := NewRoundHistory()
	toolCalls := 0

	for round := 1; ; round++ {
		if round > o.maxRounds {
			return nil, fmt.Errorf("%w: limit %d", ErrMaxRoundsExceeded, o.maxRounds)
		}

		roundCtx, finish := o.tracer.StartSpan(ctx, "round", map[string]any{
			"round":           round,
			"conversation_id": req.ConversationID,
		})
		o.logPhase(round, phaseStreaming)

		accumulator := NewAccumulator()
		var content strings.Builder
		collector := &roundCollector{accumulator: accumulator, content: &content, choice: req.Choice}

		messages := o.assembleMessages(req.Messages, history)
		err := o.provider.StreamChat(roundCtx, req.APIKey, messages, o.coordinator.Registry().Definitions(), collector)
		if err != nil {
			finish(err)
			return nil, fmt.Errorf("model round %d: %w", round, err)
		}

		calls := accumulator.Finalize()
		if len(calls) == 0 {
			o.logPhase(round, phaseDone)
			finish(nil)
			req.Choice.SetState(history.State())
			return &RunResult{Content: content.String(), Rounds: round, ToolCalls: toolCalls}, nil
		}

		o.logPhase(round, phaseDispatching)
		o.tracer.Event(roundCtx, "dispatch", map[string]any{"tool_calls": len(calls)})

		assistant := dial.Message{
			Role:      dial.RoleAssistant,
			Content:   content.String(),
			ToolCalls: calls,
		}
		results := o.coordinator.ExecuteRound(roundCtx, calls, CallScope{
			APIKey:         req.APIKey,
			ConversationID: req.ConversationID,
			Choice:         req.Choice,
		})
		history.Append(assistant, results)
		toolCalls += len(calls)
		finish(nil)
	}
}

// assembleMessages builds the model-facing transcript for one round: the
// hidden instruction first, then the unpacked conversation with all
// recorded tool rounds in place.
func (o *Orchestrator) assembleMessages(visible []dial.Message, history *RoundHistory) []dial.Message {
	out := make([]dial.Message, 0, len(visible)+history.Len()+1)
	out = append(out, dial.Message{Role: dial.RoleSystem, Content: o.prompt.Text()})
	out = append(out, UnpackMessages(visible, history)...)
	return out
}

func (o *Orchestrator) logPhase(round int, phase roundPhase) {
	o.logger.Debug().Int("round", round).Str("phase", string(phase)).Msg("round phase")
}
