// Package ws implements the websocket channel: JSON text envelopes
// with a type discriminator, audio as base64 PCM.
package ws

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ProtocolVersion1 is the only wire version this client speaks.
const ProtocolVersion1 = "1"

// DecodeError describes a malformed or unsupported frame.
type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badFrame(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_frame", Message: message, Param: param}
}

// AudioFormat describes one direction of the negotiated audio link.
type AudioFormat struct {
	Encoding     string `json:"encoding"`
	SampleRateHz int    `json:"sample_rate_hz"`
	Channels     int    `json:"channels"`
}

// ClientHello opens a session.
type ClientHello struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	Persona         string      `json:"persona"`
	Voice           string      `json:"voice,omitempty"`
	AudioIn         AudioFormat `json:"audio_in"`
	AudioOut        AudioFormat `json:"audio_out"`
}

// ClientAudioFrame carries one gated mic frame upstream.
type ClientAudioFrame struct {
	Type    string `json:"type"`
	Seq     int64  `json:"seq,omitempty"`
	DataB64 string `json:"data_b64"`
}

// ClientToolResult answers a server tool call.
type ClientToolResult struct {
	Type   string         `json:"type"`
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Result map[string]any `json:"result,omitempty"`
}

// ServerHelloAck confirms the session.
type ServerHelloAck struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	SessionID       string      `json:"session_id"`
	AudioOut        AudioFormat `json:"audio_out"`
}

// ServerAudioChunk carries one chunk of synthesized agent speech.
type ServerAudioChunk struct {
	Type    string `json:"type"`
	Seq     int64  `json:"seq,omitempty"`
	DataB64 string `json:"data_b64"`
}

// ServerTranscriptDelta carries one transcription fragment.
type ServerTranscriptDelta struct {
	Type   string `json:"type"`
	Source string `json:"source"`
	Text   string `json:"text"`
}

// ServerTurnComplete marks the end of the remote turn.
type ServerTurnComplete struct {
	Type string `json:"type"`
}

// ServerInterrupted signals a barge-in: flush pending playback.
type ServerInterrupted struct {
	Type string `json:"type"`
}

// ServerToolCall asks the client to run a tool.
type ServerToolCall struct {
	Type string         `json:"type"`
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// ServerErrorMessage reports a fatal session error.
type ServerErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// DecodeServerMessage parses and validates one inbound text frame.
func DecodeServerMessage(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badFrame("invalid json frame", "")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, badFrame("missing type", "type")
	}

	switch typ {
	case "hello_ack":
		var msg ServerHelloAck
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid hello_ack", "")
		}
		if strings.TrimSpace(msg.SessionID) == "" {
			return nil, badFrame("hello_ack.session_id is required", "session_id")
		}
		return msg, nil
	case "audio_chunk":
		var msg ServerAudioChunk
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid audio_chunk", "")
		}
		if strings.TrimSpace(msg.DataB64) == "" {
			return nil, badFrame("audio_chunk.data_b64 is required", "data_b64")
		}
		return msg, nil
	case "transcript_delta":
		var msg ServerTranscriptDelta
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid transcript_delta", "")
		}
		switch strings.TrimSpace(msg.Source) {
		case "user", "agent":
		default:
			return nil, badFrame("transcript_delta.source must be user or agent", "source")
		}
		return msg, nil
	case "turn_complete":
		var msg ServerTurnComplete
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid turn_complete", "")
		}
		return msg, nil
	case "interrupted":
		var msg ServerInterrupted
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid interrupted", "")
		}
		return msg, nil
	case "tool_call":
		var msg ServerToolCall
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid tool_call", "")
		}
		if strings.TrimSpace(msg.ID) == "" {
			return nil, badFrame("tool_call.id is required", "id")
		}
		if strings.TrimSpace(msg.Name) == "" {
			return nil, badFrame("tool_call.name is required", "name")
		}
		return msg, nil
	case "error":
		var msg ServerErrorMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid error frame", "")
		}
		if strings.TrimSpace(msg.Message) == "" {
			return nil, badFrame("error.message is required", "message")
		}
		return msg, nil
	default:
		return nil, badFrame("unsupported message type", "type")
	}
}
