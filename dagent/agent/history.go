package agent

import (
	"encoding/json"

	"github.com/ZanzyTHEbar/dialagent/dagent/dial"
)

// State is the client-carried request state persisted on the terminal
// chunk of a response. The history lives with the client, the service
// keeps nothing between requests.
type State struct {
	ToolRoundHistory []dial.Message `json:"tool_round_history"`
}

// RoundHistory accumulates the hidden messages of one request: for every
// tool round the assistant message that requested the tools followed by
// one tool result per invocation. Append-only, never reordered.
type RoundHistory struct {
	hidden []dial.Message
}

// NewRoundHistory creates an empty history. Its state serializes as an
// empty list, a request without tool rounds still persists state.
func NewRoundHistory() *RoundHistory {
	return &RoundHistory{hidden: make([]dial.Message, 0)}
}

// Append records one finished round.
func (h *RoundHistory) Append(assistant dial.Message, results []dial.Message) {
	h.hidden = append(h.hidden, assistant)
	h.hidden = append(h.hidden, results...)
}

// Messages returns the recorded hidden messages in order. The returned
// slice is shared; callers must not mutate it.
func (h *RoundHistory) Messages() []dial.Message {
	if h == nil {
		return nil
	}
	return h.hidden
}

// Len reports the number of recorded hidden messages.
func (h *RoundHistory) Len() int {
	if h == nil {
		return 0
	}
	return len(h.hidden)
}

// State packages the history for persistence.
func (h *RoundHistory) State() State {
	if h == nil {
		return State{ToolRoundHistory: []dial.Message{}}
	}
	return State{ToolRoundHistory: h.hidden}
}

// UnpackMessages rebuilds the full model-facing transcript from the
// visible client conversation. Every assistant message carrying
// persisted state is preceded by the hidden tool rounds recorded in that
// state, then emitted with its custom content stripped so the expansion
// stays idempotent. Other roles keep their custom content untouched: the
// model must still see which files the user attached. The live history
// of the request in flight, if any, follows the last visible message.
// State that does not parse is treated as absent.
func UnpackMessages(visible []dial.Message, live *RoundHistory) []dial.Message {
	out := make([]dial.Message, 0, len(visible)+live.Len())
	for _, msg := range visible {
		if msg.Role == dial.RoleAssistant && msg.CustomContent != nil {
			if len(msg.CustomContent.State) > 0 {
				var state State
				if err := json.Unmarshal(msg.CustomContent.State, &state); err == nil {
					out = append(out, state.ToolRoundHistory...)
				}
			}
			msg.CustomContent = nil
		}
		out = append(out, msg)
	}
	out = append(out, live.Messages()...)
	return out
}
