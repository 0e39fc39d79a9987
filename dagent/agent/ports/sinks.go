package agentports

import "github.com/ZanzyTHEbar/dialagent/dagent/dial"

// ChoiceSink is the user-visible part of the response: answer text and
// attachments shown directly to the user. Implementations must be safe
// for concurrent use, tools append to the choice in parallel.
type ChoiceSink interface {
	AppendContent(text string)
	AddAttachment(attachment dial.Attachment)
}

// Stage is one collapsible progress block of the response. AppendName
// extends the displayed title after the stage opened, for names only
// known mid-execution. Close is idempotent; ok selects the completed or
// failed terminal status.
type Stage interface {
	AppendName(name string)
	AppendContent(text string)
	AddAttachment(attachment dial.Attachment)
	Close(ok bool)
}

// Choice is the full response surface handed to the agent: the visible
// sink, stage creation and terminal state persistence.
type Choice interface {
	ChoiceSink
	OpenStage(name string) Stage
	SetState(state any)
}
