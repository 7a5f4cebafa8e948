package claude

import (
	"encoding/json"
	"log/slog"
	"strings"
)

// streamRecord holds the fields of a stream-json record that drive
// orchestration. Everything else is ignored.
type streamRecord struct {
	Type      string `json:"type"`    // "system", "assistant", "user", "result", "error"
	Subtype   string `json:"subtype"` // "init", "compact_boundary", "success", ...
	SessionID string `json:"session_id,omitempty"`

	CompactMetadata *struct {
		Trigger   string `json:"trigger"`
		PreTokens int    `json:"pre_tokens"`
	} `json:"compact_metadata,omitempty"`

	Message *struct {
		Role    string         `json:"role"`
		Content []contentBlock `json:"content"`
	} `json:"message,omitempty"`

	IsError bool   `json:"is_error"`
	Result  string `json:"result,omitempty"`
	Usage   *Usage `json:"usage,omitempty"`

	// An object on "error" records; other record types may carry a plain
	// string here, so it is decoded lazily.
	Error json.RawMessage `json:"error,omitempty"`
}

type contentBlock struct {
	Type      string          `json:"type"` // "text", "tool_use", "tool_result"
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"` // string or array of blocks
	IsError   bool            `json:"is_error,omitempty"`
}

type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// decoder turns complete records from one run into events. It carries the
// run's accumulated assistant text and tool calls; create one per run.
type decoder struct {
	log   *slog.Logger
	text  string
	tools []ToolInvocation
}

func newDecoder(log *slog.Logger) *decoder {
	return &decoder{log: log}
}

// decode parses one record. Malformed and unrecognized records yield no
// events.
func (d *decoder) decode(line string) []Event {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	// --verbose can print non-JSON informational lines
	if !strings.HasPrefix(line, "{") {
		d.log.Debug("skipping non-JSON line", "line", truncateForLog(line))
		return nil
	}

	var rec streamRecord
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		d.log.Debug("failed to parse stream record", "error", err, "line", truncateForLog(line))
		return nil
	}

	switch rec.Type {
	case "error":
		return d.decodeError(rec)
	case "system":
		return d.decodeSystem(rec)
	case "assistant":
		return d.decodeAssistant(rec, line)
	case "user":
		return d.decodeUser(rec)
	case "result":
		return d.decodeResult(rec, line)
	}
	return nil
}

func (d *decoder) decodeError(rec streamRecord) []Event {
	if len(rec.Error) == 0 {
		return nil
	}
	var e apiError
	if err := json.Unmarshal(rec.Error, &e); err != nil {
		d.log.Debug("error record without object payload", "error", err)
		return nil
	}

	if IsRateLimit(e.Type) || IsRateLimit(e.Message) {
		return []Event{rateLimitEvent(e.Message)}
	}
	return []Event{{Type: EventGenericError, Message: e.Message}}
}

func (d *decoder) decodeSystem(rec streamRecord) []Event {
	switch rec.Subtype {
	case "init":
		d.log.Debug("session initialized", "remoteSessionID", rec.SessionID)
		return []Event{{Type: EventInit, RemoteSessionID: rec.SessionID}}
	case "compact_boundary":
		c := &Compaction{}
		if rec.CompactMetadata != nil {
			c.Trigger = rec.CompactMetadata.Trigger
			c.PreTokens = rec.CompactMetadata.PreTokens
		}
		return []Event{{Type: EventCompactionNotice, Compaction: c}}
	}
	return nil
}

func (d *decoder) decodeAssistant(rec streamRecord, line string) []Event {
	if rec.Message == nil {
		return nil
	}

	var events []Event
	var text strings.Builder
	for _, block := range rec.Message.Content {
		switch block.Type {
		case "tool_use":
			tool := ToolInvocation{ID: block.ID, Name: block.Name, Input: block.Input}
			d.tools = append(d.tools, tool)
			d.log.Debug("tool use", "tool", block.Name, "id", block.ID)
			events = append(events, Event{Type: EventToolUse, Tool: &tool})
		case "text":
			text.WriteString(block.Text)
		}
	}

	if text.Len() == 0 {
		return events
	}
	if d.text == "" {
		d.text = text.String()
	} else {
		d.text += "\n\n" + text.String()
	}
	return append(events,
		Event{Type: EventAssistantTurn, Raw: json.RawMessage(line)},
		Event{Type: EventStreamingText, Text: d.text},
	)
}

func (d *decoder) decodeUser(rec streamRecord) []Event {
	if rec.Message == nil {
		return nil
	}
	var events []Event
	for _, block := range rec.Message.Content {
		if block.Type != "tool_result" {
			continue
		}
		events = append(events, Event{Type: EventToolResult, ToolResult: &ToolResult{
			ToolUseID: block.ToolUseID,
			Content:   toolResultText(block.Content),
			IsError:   block.IsError,
		}})
	}
	return events
}

// decodeResult turns a result record into events. A rate-limited result
// yields EventRateLimitError first and then an EventResult with IsError
// set; that IsError is not fatal on its own, so consumers should key off
// the EventRateLimitError and treat the trailing result as informational.
func (d *decoder) decodeResult(rec streamRecord, line string) []Event {
	d.log.Debug("result received", "subtype", rec.Subtype, "isError", rec.IsError)

	var events []Event
	switch {
	case rec.IsError && IsRateLimit(rec.Result):
		events = append(events, rateLimitEvent(rec.Result))
	case rec.IsError:
		events = append(events, Event{Type: EventGenericError, Message: rec.Result})
	}

	usage := Usage{}
	if rec.Usage != nil {
		usage = *rec.Usage
	}
	return append(events,
		Event{Type: EventResult, Raw: json.RawMessage(line), IsError: rec.IsError, Text: rec.Result},
		Event{Type: EventContextUpdate, Usage: &usage},
	)
}

func rateLimitEvent(message string) Event {
	ev := Event{
		Type:      EventRateLimitError,
		Message:   stripResetStamp(message),
		ResetHint: ExtractResetHint(message),
	}
	if at, ok := ExtractResetTime(message); ok {
		ev.ResetAt = &at
	}
	return ev
}

// toolResultText flattens tool_result content, which is either a string or
// a list of text blocks.
func toolResultText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var blocks []contentBlock
	if err := json.Unmarshal(raw, &blocks); err == nil {
		var parts []string
		for _, b := range blocks {
			if b.Type == "text" {
				parts = append(parts, b.Text)
			}
		}
		return strings.Join(parts, "\n")
	}
	return string(raw)
}

// pending returns a snapshot of the accumulated message.
func (d *decoder) pending() *PendingMessage {
	return (&PendingMessage{Text: d.text, Tools: d.tools}).clone()
}

func truncateForLog(s string) string {
	const maxLen = 200
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}
