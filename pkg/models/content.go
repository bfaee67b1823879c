package models

import (
	"encoding/json"
	"strings"
)

// Message part kinds as they appear in partsOrder. Tool parts use the
// "tool-<name>" form and reference toolCalls/toolResults by toolCallID.
const (
	PartText       = "text"
	PartFile       = "file"
	partToolPrefix = "tool-"
)

// FilePart is an inline attachment carried on a user message as a data URL.
type FilePart struct {
	URL       string `json:"url"`
	MediaType string `json:"mediaType,omitempty"`
	Filename  string `json:"filename,omitempty"`
}

// MessagePart is one ordered element of a chat message: text, a file, or a
// tool interaction.
type MessagePart struct {
	Type       string    `json:"type"`
	Text       string    `json:"text,omitempty"`
	File       *FilePart `json:"file,omitempty"`
	ToolCallID string    `json:"toolCallId,omitempty"`
}

// ToolPart builds a tool message part for the given tool name.
func ToolPart(toolName, toolCallID string) MessagePart {
	return MessagePart{Type: partToolPrefix + toolName, ToolCallID: toolCallID}
}

// IsToolPart reports whether the part type is a tool reference and returns
// the tool name.
func IsToolPart(partType string) (string, bool) {
	if strings.HasPrefix(partType, partToolPrefix) {
		return strings.TrimPrefix(partType, partToolPrefix), true
	}
	return "", false
}

// PartRef is one entry of partsOrder: the ordinal position plus the part
// kind. partsOrder is the single source of truth for reconstruction.
type PartRef struct {
	Index      int    `json:"index"`
	Type       string `json:"type"`
	ToolCallID string `json:"toolCallId,omitempty"`
}

// ContentEnvelope is the persisted JSON shape of a structured chat message.
// Text and file payloads are stored in their own arrays and consumed in
// partsOrder sequence. A missing fileParts array is a valid legacy shape.
type ContentEnvelope struct {
	TextParts       []string   `json:"textParts"`
	FileParts       []FilePart `json:"fileParts,omitempty"`
	PartsOrder      []PartRef  `json:"partsOrder"`
	OriginalContent string     `json:"originalContent"`
}

// EncodeContent serializes an ordered part sequence into the persisted
// content string. A message that is a single text part stays plain text;
// anything richer becomes the JSON envelope.
func EncodeContent(parts []MessagePart) (string, error) {
	if len(parts) == 1 && parts[0].Type == PartText {
		return parts[0].Text, nil
	}

	env := ContentEnvelope{
		TextParts:  []string{},
		PartsOrder: make([]PartRef, 0, len(parts)),
	}
	var textAccum []string
	for i, p := range parts {
		ref := PartRef{Index: i, Type: p.Type}
		switch {
		case p.Type == PartText:
			env.TextParts = append(env.TextParts, p.Text)
			textAccum = append(textAccum, p.Text)
		case p.Type == PartFile:
			if p.File != nil {
				env.FileParts = append(env.FileParts, *p.File)
			} else {
				env.FileParts = append(env.FileParts, FilePart{})
			}
		default:
			ref.ToolCallID = p.ToolCallID
		}
		env.PartsOrder = append(env.PartsOrder, ref)
	}
	env.OriginalContent = strings.Join(textAccum, "\n")

	raw, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// DecodeContent reverses EncodeContent. Plain strings (including legacy
// rows that predate the envelope) decode to a single text part. Envelope
// strings are reconstructed by walking partsOrder and consuming textParts
// and fileParts sequentially.
func DecodeContent(content string) []MessagePart {
	env, ok := parseEnvelope(content)
	if !ok {
		return []MessagePart{{Type: PartText, Text: content}}
	}

	parts := make([]MessagePart, 0, len(env.PartsOrder))
	ti, fi := 0, 0
	for _, ref := range env.PartsOrder {
		switch {
		case ref.Type == PartText:
			if ti < len(env.TextParts) {
				parts = append(parts, MessagePart{Type: PartText, Text: env.TextParts[ti]})
				ti++
			}
		case ref.Type == PartFile:
			if fi < len(env.FileParts) {
				fp := env.FileParts[fi]
				parts = append(parts, MessagePart{Type: PartFile, File: &fp})
				fi++
			}
		default:
			parts = append(parts, MessagePart{Type: ref.Type, ToolCallID: ref.ToolCallID})
		}
	}
	return parts
}

// parseEnvelope attempts to interpret content as a structured envelope.
// Only objects carrying a partsOrder array qualify; everything else is
// treated as plain text.
func parseEnvelope(content string) (*ContentEnvelope, bool) {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "{") {
		return nil, false
	}
	var env ContentEnvelope
	if err := json.Unmarshal([]byte(trimmed), &env); err != nil {
		return nil, false
	}
	if env.PartsOrder == nil {
		return nil, false
	}
	return &env, true
}
