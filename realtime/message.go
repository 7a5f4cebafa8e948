package realtime

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message is the envelope for every WebSocket message in both directions.
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage wraps payload in an envelope stamped with the current time.
func NewMessage(msgType string, payload any) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Message{
		Type:      msgType,
		Payload:   data,
		Timestamp: time.Now().UTC(),
	}, nil
}

// Server to client.
const (
	TypeSnapshot        = "snapshot"
	TypeChatEvent       = "chat.event"
	TypeTerminalCreated = "terminal.created"
	TypeTerminalOutput  = "terminal.output"
	TypeTerminalExit    = "terminal.exit"
	TypeTerminalError   = "terminal.error"
	TypeError           = "error"
)

// Client to server.
const (
	TypeChatSend       = "chat.send"
	TypeChatAbort      = "chat.abort"
	TypeChatClear      = "chat.clear"
	TypeTerminalCreate = "terminal.create"
	TypeTerminalInput  = "terminal.input"
	TypeTerminalResize = "terminal.resize"
	TypeTerminalKill   = "terminal.kill"
)

// Error codes.
const (
	ErrInvalidMessage  = "INVALID_MESSAGE"
	ErrSpawnFailed     = "SPAWN_FAILED"
	ErrSessionNotFound = "SESSION_NOT_FOUND"
)

type SnapshotPayload struct {
	ChatRunning []string       `json:"chat_running"`
	Terminals   []TerminalInfo `json:"terminals"`
}

type TerminalInfo struct {
	SessionID   string `json:"session_id"`
	BackendType string `json:"backend_type"`
	ProfileID   string `json:"profile_id"`
}

type ChatSendPayload struct {
	SessionID       string `json:"session_id"`
	Prompt          string `json:"prompt"`
	RemoteSessionID string `json:"remote_session_id,omitempty"`
	Model           string `json:"model,omitempty"`
}

type SessionIDPayload struct {
	SessionID string `json:"session_id"`
}

type TerminalCreatePayload struct {
	SessionID string `json:"session_id,omitempty"`
	ProfileID string `json:"profile_id,omitempty"`
}

type TerminalInputPayload struct {
	SessionID string `json:"session_id"`
	Data      string `json:"data"`
}

type TerminalResizePayload struct {
	SessionID string `json:"session_id"`
	Cols      uint16 `json:"cols"`
	Rows      uint16 `json:"rows"`
}

type TerminalOutputPayload struct {
	SessionID string `json:"session_id"`
	Data      string `json:"data"`
}

type TerminalExitPayload struct {
	SessionID string `json:"session_id"`
	ExitCode  int    `json:"exit_code"`
}

type TerminalErrorPayload struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// decodeClientMessage parses and validates an inbound message.
func decodeClientMessage(raw []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	switch msg.Type {
	case TypeChatSend, TypeChatAbort, TypeChatClear,
		TypeTerminalCreate, TypeTerminalInput, TypeTerminalResize, TypeTerminalKill:
	case "":
		return nil, fmt.Errorf("missing message type")
	default:
		return nil, fmt.Errorf("unknown message type %q", msg.Type)
	}
	return &msg, nil
}
