package agent

import (
	"fmt"

	"github.com/ZanzyTHEbar/dialagent/dagent/dial"
)

// Accumulator reassembles complete tool invocations from the fragment
// stream of one round. A fragment carrying an id opens the invocation at
// its index; fragments without an id append argument text to the already
// open invocation at that index. One accumulator serves exactly one
// round; the next round starts from a fresh one.
type Accumulator struct {
	order   []int
	byIndex map[int]*dial.ToolCall
}

// NewAccumulator creates an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{byIndex: make(map[int]*dial.ToolCall)}
}

// Ingest folds one fragment into the accumulator. An appending fragment
// for an index that was never opened returns ErrUnknownToolCallIndex;
// the round cannot be trusted after that.
func (a *Accumulator) Ingest(delta dial.ToolCallDelta) error {
	if delta.ID != "" {
		if _, seen := a.byIndex[delta.Index]; !seen {
			a.order = append(a.order, delta.Index)
		}
		callType := delta.Type
		if callType == "" {
			callType = "function"
		}
		// A repeated opening fragment replaces the invocation at this
		// index but keeps its original position in the round.
		a.byIndex[delta.Index] = &dial.ToolCall{
			ID:   delta.ID,
			Type: callType,
			Function: dial.FunctionCall{
				Name:      delta.Function.Name,
				Arguments: delta.Function.Arguments,
			},
		}
		return nil
	}

	call, ok := a.byIndex[delta.Index]
	if !ok {
		return fmt.Errorf("%w: index %d", ErrUnknownToolCallIndex, delta.Index)
	}
	call.Function.Arguments += delta.Function.Arguments
	return nil
}

// Finalize returns the reassembled invocations in the order their
// opening fragments arrived. The result is independent of the
// accumulator's internal state.
func (a *Accumulator) Finalize() []dial.ToolCall {
	if len(a.order) == 0 {
		return nil
	}
	calls := make([]dial.ToolCall, 0, len(a.order))
	for _, index := range a.order {
		calls = append(calls, *a.byIndex[index])
	}
	return calls
}

// Len reports how many invocations have been opened so far.
func (a *Accumulator) Len() int {
	return len(a.order)
}
