package ws

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sparring-ai/sparring/pkg/channel"
	"github.com/sparring-ai/sparring/pkg/core/audio"
)

const (
	helloTimeout = 10 * time.Second
	pingInterval = 20 * time.Second
	pongWait     = 60 * time.Second
	writeWait    = 10 * time.Second
	eventBuffer  = 256
)

// Dialer opens websocket channels against a relay URL.
type Dialer struct {
	URL    string
	Logger *slog.Logger
}

// NewDialer creates a dialer for the given ws:// or wss:// URL.
func NewDialer(url string, logger *slog.Logger) *Dialer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dialer{URL: url, Logger: logger}
}

// Dial connects, performs the hello handshake, and returns a live
// channel once the server acknowledges the session.
func (d *Dialer) Dial(ctx context.Context, opts channel.ConnectOptions) (channel.Channel, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, d.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", d.URL, err)
	}

	hello := ClientHello{
		Type:            "hello",
		ProtocolVersion: ProtocolVersion1,
		Persona:         opts.Persona,
		Voice:           opts.Voice,
		AudioIn: AudioFormat{
			Encoding:     "pcm_s16le",
			SampleRateHz: opts.InputSampleRate,
			Channels:     1,
		},
		AudioOut: AudioFormat{
			Encoding:     "pcm_s16le",
			SampleRateHz: opts.OutputSampleRate,
			Channels:     1,
		},
	}
	if err := conn.WriteJSON(hello); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send hello: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(helloTimeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("read hello_ack: %w", err)
	}
	msg, err := DecodeServerMessage(data)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("decode hello_ack: %w", err)
	}
	ack, ok := msg.(ServerHelloAck)
	if !ok {
		_ = conn.Close()
		return nil, fmt.Errorf("expected hello_ack, got %T", msg)
	}

	c := &Conn{
		conn:      conn,
		sessionID: ack.SessionID,
		logger:    d.Logger.With("session_id", ack.SessionID),
		events:    make(chan channel.Event, eventBuffer),
		done:      make(chan struct{}),
	}
	c.events <- &channel.OpenEvent{}

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.readLoop()
	go c.pingLoop()
	return c, nil
}

// Conn is one live websocket session.
type Conn struct {
	conn      *websocket.Conn
	sessionID string
	logger    *slog.Logger

	writeMu sync.Mutex
	seq     atomic.Int64

	events    chan channel.Event
	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

// SessionID returns the server-assigned session identifier.
func (c *Conn) SessionID() string { return c.sessionID }

// SendFrame transmits one mic frame as base64 PCM.
func (c *Conn) SendFrame(samples []float32) error {
	if c.closed.Load() {
		return fmt.Errorf("channel is closed")
	}
	msg := ClientAudioFrame{
		Type:    "audio_frame",
		Seq:     c.seq.Add(1),
		DataB64: audio.EncodeFrame(samples),
	}
	return c.writeJSON(msg)
}

// SendToolResult answers a tool call.
func (c *Conn) SendToolResult(id, name string, result map[string]any) error {
	if c.closed.Load() {
		return fmt.Errorf("channel is closed")
	}
	return c.writeJSON(ClientToolResult{Type: "tool_result", ID: id, Name: name, Result: result})
}

func (c *Conn) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(v); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Events implements channel.Channel.
func (c *Conn) Events() <-chan channel.Event { return c.events }

func (c *Conn) readLoop() {
	defer close(c.events)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.closed.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.emit(&channel.ClosedEvent{})
			} else {
				c.emit(&channel.ErrorEvent{Reason: err.Error()})
			}
			return
		}

		msg, err := DecodeServerMessage(data)
		if err != nil {
			c.logger.Warn("dropping malformed frame", "error", err)
			continue
		}

		switch m := msg.(type) {
		case ServerAudioChunk:
			pcm, err := base64.StdEncoding.DecodeString(m.DataB64)
			if err != nil {
				c.logger.Warn("dropping undecodable audio chunk", "error", err)
				continue
			}
			c.emit(&channel.AudioChunkEvent{PCM: pcm})
		case ServerTranscriptDelta:
			c.emit(&channel.TranscriptEvent{Source: channel.Source(m.Source), Text: m.Text})
		case ServerTurnComplete:
			c.emit(&channel.TurnCompleteEvent{})
		case ServerInterrupted:
			c.emit(&channel.InterruptedEvent{})
		case ServerToolCall:
			c.emit(&channel.ToolCallEvent{ID: m.ID, Name: m.Name, Args: m.Args})
		case ServerErrorMessage:
			c.emit(&channel.ErrorEvent{Reason: m.Message})
			return
		case ServerHelloAck:
			c.logger.Warn("unexpected duplicate hello_ack")
		}
	}
}

func (c *Conn) emit(ev channel.Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *Conn) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// Close tears the connection down. Idempotent.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
		c.writeMu.Lock()
		_ = c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait),
		)
		c.writeMu.Unlock()
		_ = c.conn.Close()
	})
	return nil
}
