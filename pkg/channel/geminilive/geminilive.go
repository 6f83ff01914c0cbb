// Package geminilive implements the remote channel over the Gemini
// Live API: realtime PCM upstream, synthesized speech, transcription
// and tool calls downstream.
package geminilive

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"google.golang.org/genai"

	"github.com/sparring-ai/sparring/pkg/channel"
	"github.com/sparring-ai/sparring/pkg/core/audio"
)

// DefaultModel is the native-audio live model.
const DefaultModel = "gemini-2.5-flash-native-audio-preview-12-2025"

// InsightToolName is the function the agent calls to log an internal
// thought about the user's performance mid-conversation.
const InsightToolName = "log_insight"

const eventBuffer = 256

// Dialer opens Gemini Live sessions.
type Dialer struct {
	APIKey string
	Model  string
	Logger *slog.Logger
}

// NewDialer creates a dialer using the given API key.
func NewDialer(apiKey string, logger *slog.Logger) *Dialer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dialer{APIKey: apiKey, Model: DefaultModel, Logger: logger}
}

func insightTool() *genai.Tool {
	return &genai.Tool{
		FunctionDeclarations: []*genai.FunctionDeclaration{{
			Name:        InsightToolName,
			Description: "Log an internal thought or tactical feedback about the user during the conversation.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"text": {
						Type:        genai.TypeString,
						Description: "The observation, e.g. \"They seem nervous\".",
					},
					"type": {
						Type: genai.TypeString,
						Enum: []string{"positive", "negative", "neutral"},
					},
					"mood": {
						Type: genai.TypeString,
						Enum: []string{"Analytical", "Impatient", "Impressed", "Neutral"},
					},
				},
				Required: []string{"text", "type"},
			},
		}},
	}
}

// Dial connects to the live model with the persona as system
// instruction and the requested prebuilt voice.
func (d *Dialer) Dial(ctx context.Context, opts channel.ConnectOptions) (channel.Channel, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  d.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	model := d.Model
	if model == "" {
		model = DefaultModel
	}
	voice := opts.Voice
	if voice == "" {
		voice = "Kore"
	}

	instruction := opts.Persona +
		"\nUse '" + InsightToolName + "' frequently. Update your mood based on user performance."

	cfg := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: instruction}},
		},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
			},
		},
		InputAudioTranscription:  &genai.AudioTranscriptionConfig{},
		OutputAudioTranscription: &genai.AudioTranscriptionConfig{},
		Tools:                    []*genai.Tool{insightTool()},
	}

	session, err := client.Live.Connect(ctx, model, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect live session: %w", err)
	}

	c := &Conn{
		session:  session,
		logger:   d.Logger,
		mimeType: fmt.Sprintf("audio/pcm;rate=%d", opts.InputSampleRate),
		events:   make(chan channel.Event, eventBuffer),
		done:     make(chan struct{}),
	}
	c.events <- &channel.OpenEvent{}
	go c.receiveLoop()
	return c, nil
}

// Conn is one live Gemini session.
type Conn struct {
	session  *genai.Session
	logger   *slog.Logger
	mimeType string

	events    chan channel.Event
	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

// SendFrame streams one mic frame as realtime PCM input.
func (c *Conn) SendFrame(samples []float32) error {
	if c.closed.Load() {
		return fmt.Errorf("channel is closed")
	}
	err := c.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Media: &genai.Blob{
			MIMEType: c.mimeType,
			Data:     audio.FrameBytes(samples),
		},
	})
	if err != nil {
		return fmt.Errorf("send realtime input: %w", err)
	}
	return nil
}

// SendToolResult answers a function call from the agent.
func (c *Conn) SendToolResult(id, name string, result map[string]any) error {
	if c.closed.Load() {
		return fmt.Errorf("channel is closed")
	}
	err := c.session.SendToolResponse(genai.LiveToolResponseInput{
		FunctionResponses: []*genai.FunctionResponse{{
			ID:       id,
			Name:     name,
			Response: result,
		}},
	})
	if err != nil {
		return fmt.Errorf("send tool response: %w", err)
	}
	return nil
}

// Events implements channel.Channel.
func (c *Conn) Events() <-chan channel.Event { return c.events }

func (c *Conn) receiveLoop() {
	defer close(c.events)
	for {
		msg, err := c.session.Receive()
		if err != nil {
			if c.closed.Load() {
				c.emit(&channel.ClosedEvent{})
			} else {
				c.emit(&channel.ErrorEvent{Reason: err.Error()})
			}
			return
		}
		c.handleMessage(msg)
	}
}

func (c *Conn) handleMessage(msg *genai.LiveServerMessage) {
	if msg == nil {
		return
	}

	if msg.ToolCall != nil {
		for _, fc := range msg.ToolCall.FunctionCalls {
			if fc == nil {
				continue
			}
			c.emit(&channel.ToolCallEvent{ID: fc.ID, Name: fc.Name, Args: fc.Args})
		}
	}

	sc := msg.ServerContent
	if sc == nil {
		return
	}

	if sc.ModelTurn != nil {
		for _, part := range sc.ModelTurn.Parts {
			if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			c.emit(&channel.AudioChunkEvent{PCM: part.InlineData.Data})
		}
	}
	if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
		c.emit(&channel.TranscriptEvent{Source: channel.SourceAgent, Text: sc.OutputTranscription.Text})
	}
	if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
		c.emit(&channel.TranscriptEvent{Source: channel.SourceUser, Text: sc.InputTranscription.Text})
	}
	if sc.Interrupted {
		c.emit(&channel.InterruptedEvent{})
	}
	if sc.TurnComplete {
		c.emit(&channel.TurnCompleteEvent{})
	}
}

func (c *Conn) emit(ev channel.Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// Close ends the live session. Idempotent.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
		_ = c.session.Close()
	})
	return nil
}
