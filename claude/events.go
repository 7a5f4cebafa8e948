package claude

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of an Event.
type EventType int

const (
	EventInit             EventType = iota // CLI reported its remote session id
	EventStreamingText                     // Text holds the full assistant text so far
	EventAssistantTurn                     // Raw holds one assistant record
	EventToolUse                           // Tool is set
	EventToolResult                        // ToolResult is set
	EventResult                            // Raw holds the result record; IsError mirrors is_error and is not fatal after EventRateLimitError
	EventContextUpdate                     // Usage is set
	EventCompactionNotice                  // Compaction is set
	EventRateLimitError                    // Message, ResetHint and possibly ResetAt are set
	EventAuthError                         // Message is set
	EventGenericError                      // Message is set
	EventComplete                          // ExitCode is nil when the run was aborted or killed
)

func (t EventType) String() string {
	switch t {
	case EventInit:
		return "init"
	case EventStreamingText:
		return "streaming_text"
	case EventAssistantTurn:
		return "assistant_turn"
	case EventToolUse:
		return "tool_use"
	case EventToolResult:
		return "tool_result"
	case EventResult:
		return "result"
	case EventContextUpdate:
		return "context_update"
	case EventCompactionNotice:
		return "compaction_notice"
	case EventRateLimitError:
		return "rate_limit_error"
	case EventAuthError:
		return "auth_error"
	case EventGenericError:
		return "generic_error"
	case EventComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// MarshalText lets EventType appear as its name in JSON.
func (t EventType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// ToolInvocation is one tool_use content block.
type ToolInvocation struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input,omitempty"`
}

// ToolResult is one tool_result content block.
type ToolResult struct {
	ToolUseID string `json:"tool_use_id"`
	Content   string `json:"content"`
	IsError   bool   `json:"is_error,omitempty"`
}

// Usage holds token counters from a result record. Absent counters are zero.
type Usage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
}

// ContextTokens is the number of tokens occupying the context window.
func (u Usage) ContextTokens() int {
	return u.InputTokens + u.CacheReadInputTokens + u.CacheCreationInputTokens
}

// Compaction describes a compact_boundary record.
type Compaction struct {
	Trigger   string `json:"trigger"`
	PreTokens int    `json:"pre_tokens"`
}

// Event is one decoded occurrence for a session. Which fields are set
// depends on Type.
type Event struct {
	SessionID string    `json:"session_id"`
	Type      EventType `json:"type"`

	RemoteSessionID string          `json:"remote_session_id,omitempty"`
	Text            string          `json:"text,omitempty"`
	Raw             json.RawMessage `json:"raw,omitempty"`
	Tool            *ToolInvocation `json:"tool,omitempty"`
	ToolResult      *ToolResult     `json:"tool_result,omitempty"`
	IsError         bool            `json:"is_error,omitempty"`
	Usage           *Usage          `json:"usage,omitempty"`
	Compaction      *Compaction     `json:"compaction,omitempty"`
	Message         string          `json:"message,omitempty"`
	ResetHint       string          `json:"reset_hint,omitempty"`
	ResetAt         *time.Time      `json:"reset_at,omitempty"`
	ExitCode        *int            `json:"exit_code,omitempty"`
}

// PendingMessage accumulates the text and tool calls of one in-flight run.
type PendingMessage struct {
	Text  string           `json:"text"`
	Tools []ToolInvocation `json:"tools"`
}

func (p *PendingMessage) clone() *PendingMessage {
	if p == nil {
		return nil
	}
	cp := &PendingMessage{Text: p.Text}
	if len(p.Tools) > 0 {
		cp.Tools = append([]ToolInvocation(nil), p.Tools...)
	}
	return cp
}
