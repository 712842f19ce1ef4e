package parser

import (
	"encoding/json"
	"time"
	"unicode/utf8"
)

// decodeLine turns one raw transcript line into a Message. ok is false
// when the line should be skipped (zero-byte, non-UTF-8, malformed JSON)
// rather than producing a record — callers log a warning and continue,
// per spec §4.2 edge cases.
func decodeLine(line []byte) (Message, bool) {
	if len(line) == 0 {
		return Message{}, false
	}
	if !utf8.Valid(line) {
		return Message{}, false
	}

	var raw rawLine
	if err := json.Unmarshal(line, &raw); err != nil {
		return Message{}, false
	}

	switch LineType(raw.Type) {
	case LineUser:
		return dispatchChatLine(raw, RoleUser), true
	case LineAssistant:
		return dispatchChatLine(raw, RoleAssistant), true
	case LineSystem, LineProgress, LineSummary, LineFileHistorySnapshot:
		return dispatchSystemLine(raw), true
	default:
		// Unknown type: preserved as a minimal message with empty
		// content so downstream counting stays consistent (spec §4.2).
		return Message{
			SessionID:   raw.SessionID,
			Role:        RoleSystem,
			RawContent:  line,
			MessageType: MessageText,
			WallClockNS: parseTimestamp(raw.Timestamp),
		}, true
	}
}

func dispatchChatLine(raw rawLine, role Role) Message {
	m := Message{
		SessionID:   raw.SessionID,
		Role:        role,
		RawContent:  raw.Message,
		WallClockNS: parseTimestamp(raw.Timestamp),
	}

	var inner innerMessage
	if len(raw.Message) > 0 && json.Unmarshal(raw.Message, &inner) == nil {
		if inner.Usage != nil {
			m.InputTokens = inner.Usage.InputTokens
			m.OutputTokens = inner.Usage.OutputTokens
		}
		blocks, text := decodeContent(inner.Content)
		m.Text = text
		m.MessageType = classify(blocks)
		m.StopReason = inner.StopReason
	} else {
		m.MessageType = MessageText
	}
	return m
}

func dispatchSystemLine(raw rawLine) Message {
	mt := MessageSystemReminder
	if raw.Subtype == "error" {
		mt = MessageError
	}
	return Message{
		SessionID:   raw.SessionID,
		Role:        RoleSystem,
		RawContent:  append(json.RawMessage(nil), raw.Message...),
		MessageType: mt,
		WallClockNS: parseTimestamp(raw.Timestamp),
	}
}

// decodeContent accepts either a bare string (some CLIs emit plain-text
// user turns) or a list of content blocks, returning the block list (nil
// for the plain-string case) and a flattened text projection.
func decodeContent(raw json.RawMessage) ([]ContentBlock, string) {
	if len(raw) == 0 {
		return nil, ""
	}

	var asString string
	if json.Unmarshal(raw, &asString) == nil {
		return nil, asString
	}

	var blocks []ContentBlock
	if json.Unmarshal(raw, &blocks) != nil {
		return nil, ""
	}

	var text string
	for _, b := range blocks {
		if b.Type == "text" && b.Text != "" {
			if text != "" {
				text += "\n"
			}
			text += b.Text
		}
	}
	return blocks, text
}

// classify derives message_type from the first non-text content block
// present, preference order Thinking > ToolUse > ToolResult > Text
// (spec §4.2).
func classify(blocks []ContentBlock) MessageType {
	var sawToolUse, sawToolResult, sawThinking bool
	for _, b := range blocks {
		switch b.Type {
		case "thinking":
			sawThinking = true
		case "tool_use":
			sawToolUse = true
		case "tool_result":
			sawToolResult = true
		}
	}
	switch {
	case sawThinking:
		return MessageThinking
	case sawToolUse:
		return MessageToolUse
	case sawToolResult:
		return MessageToolResult
	default:
		return MessageText
	}
}

func parseTimestamp(s string) int64 {
	if s == "" {
		return 0
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return 0
	}
	return t.UnixNano()
}
