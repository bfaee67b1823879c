package orchestrator

import (
	"github.com/pagespace/pagespace/gateway/pkg/models"
)

// accumulator collects streamed output into the ordered parts that become
// the persisted assistant message. Consecutive text chunks coalesce into a
// single text part; tool interactions break the run.
type accumulator struct {
	parts       []models.MessagePart
	toolCalls   []models.ToolCall
	toolResults []models.ToolResult
	textOpen    bool
}

func (a *accumulator) addText(chunk string) {
	if chunk == "" {
		return
	}
	if a.textOpen {
		a.parts[len(a.parts)-1].Text += chunk
		return
	}
	a.parts = append(a.parts, models.MessagePart{Type: models.PartText, Text: chunk})
	a.textOpen = true
}

func (a *accumulator) addToolInteraction(call models.ToolCall, result models.ToolResult) {
	a.parts = append(a.parts, models.ToolPart(call.ToolName, call.ToolCallID))
	a.toolCalls = append(a.toolCalls, call)
	a.toolResults = append(a.toolResults, result)
	a.textOpen = false
}

func (a *accumulator) empty() bool {
	return len(a.parts) == 0
}

// message materializes the accumulated output as a persistable assistant
// turn on pageID.
func (a *accumulator) message(id, pageID string) (*models.ChatMessage, error) {
	content, err := models.EncodeContent(a.parts)
	if err != nil {
		return nil, err
	}
	return &models.ChatMessage{
		ID:          id,
		PageID:      pageID,
		Role:        models.MessageRoleAssistant,
		Content:     content,
		ToolCalls:   a.toolCalls,
		ToolResults: a.toolResults,
		IsActive:    true,
	}, nil
}
