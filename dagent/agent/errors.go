package agent

import "errors"

var (
	// ErrUnknownToolCallIndex reports a streamed tool-call fragment that
	// appends to an index no opening fragment ever announced. The stream
	// is unusable from that point, so the round fails.
	ErrUnknownToolCallIndex = errors.New("tool call fragment references unknown index")

	// ErrMaxRoundsExceeded reports a conversation that kept requesting
	// tools past the configured round limit.
	ErrMaxRoundsExceeded = errors.New("maximum tool rounds exceeded")
)
