// Package channel abstracts the remote conversational agent link: a
// full-duplex stream of outbound audio frames and inbound tagged
// events.
package channel

import "context"

// Channel is one live connection to the remote agent. Send and Events
// may be used from different goroutines; Close may be called from any
// goroutine and is idempotent.
type Channel interface {
	// SendFrame transmits one encoded audio frame upstream.
	SendFrame(samples []float32) error

	// SendToolResult answers a ToolCallEvent.
	SendToolResult(id, name string, result map[string]any) error

	// Events delivers inbound events in arrival order. The channel is
	// closed after a ClosedEvent or ErrorEvent.
	Events() <-chan Event

	// Close tears the connection down.
	Close() error
}

// ConnectOptions carries everything a dialer needs to open a session.
type ConnectOptions struct {
	// Persona is the system instruction describing the interlocutor.
	Persona string
	// Voice selects the agent's synthesized voice.
	Voice string
	// InputSampleRate is the upstream PCM rate.
	InputSampleRate int
	// OutputSampleRate is the downstream PCM rate.
	OutputSampleRate int
}

// Dialer opens channels. Implementations: Gemini Live, websocket, and
// test fakes.
type Dialer interface {
	Dial(ctx context.Context, opts ConnectOptions) (Channel, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, opts ConnectOptions) (Channel, error)

// Dial implements Dialer.
func (f DialerFunc) Dial(ctx context.Context, opts ConnectOptions) (Channel, error) {
	return f(ctx, opts)
}
