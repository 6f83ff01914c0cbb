package channel

// Event is the interface for all inbound channel events.
type Event interface {
	// EventType returns the event type string for serialization.
	EventType() string
}

// Source identifies which side of the conversation a transcript
// fragment belongs to.
type Source string

const (
	// SourceUser is transcription of the user's speech.
	SourceUser Source = "user"
	// SourceAgent is transcription of the agent's speech.
	SourceAgent Source = "agent"
)

// OpenEvent is emitted once the remote session is established.
type OpenEvent struct{}

func (e *OpenEvent) EventType() string { return "open" }

// AudioChunkEvent carries one chunk of synthesized agent speech as
// raw PCM at the downstream rate.
type AudioChunkEvent struct {
	PCM []byte `json:"pcm"`
}

func (e *AudioChunkEvent) EventType() string { return "audio.chunk" }

// TranscriptEvent carries one incremental transcription fragment.
// Fragments accumulate; they do not replace earlier text.
type TranscriptEvent struct {
	Source Source `json:"source"`
	Text   string `json:"text"`
}

func (e *TranscriptEvent) EventType() string { return "transcript.delta" }

// TurnCompleteEvent signals that the remote conversational turn
// finished.
type TurnCompleteEvent struct{}

func (e *TurnCompleteEvent) EventType() string { return "turn.complete" }

// InterruptedEvent signals that the user cut the agent off and all
// pending agent audio should be flushed.
type InterruptedEvent struct{}

func (e *InterruptedEvent) EventType() string { return "interrupted" }

// ToolCallEvent is a function call requested by the agent. The
// consumer answers it with SendToolResult.
type ToolCallEvent struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

func (e *ToolCallEvent) EventType() string { return "tool.call" }

// ClosedEvent is the final event on a cleanly closed channel.
type ClosedEvent struct {
	Reason string `json:"reason,omitempty"`
}

func (e *ClosedEvent) EventType() string { return "closed" }

// ErrorEvent is the final event on a channel that failed.
type ErrorEvent struct {
	Reason string `json:"reason"`
}

func (e *ErrorEvent) EventType() string { return "error" }
