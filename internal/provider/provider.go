// Package provider selects and drives the AI backend for a chat request.
//
// The factory resolves (user, requested provider, requested model) to a
// concrete streaming driver; the capability oracle answers vision/tool
// support questions from (provider, model) alone.
package provider

import (
	"context"

	"github.com/pagespace/pagespace/gateway/pkg/models"
)

// Name enumerates the supported providers. The set is closed; anything else
// is a caller error.
type Name string

const (
	PageSpace      Name = "pagespace"
	OpenRouter     Name = "openrouter"
	OpenRouterFree Name = "openrouter_free"
	Google         Name = "google"
	OpenAI         Name = "openai"
	Anthropic      Name = "anthropic"
	XAI            Name = "xai"
	Ollama         Name = "ollama"
	LMStudio       Name = "lmstudio"
	GLM            Name = "glm"
	Minimax        Name = "minimax"
)

var knownProviders = map[Name]bool{
	PageSpace: true, OpenRouter: true, OpenRouterFree: true,
	Google: true, OpenAI: true, Anthropic: true, XAI: true,
	Ollama: true, LMStudio: true, GLM: true, Minimax: true,
}

// Known reports whether name is in the provider enumeration.
func Known(name Name) bool { return knownProviders[name] }

// defaultModels is consulted when neither the request nor the user settings
// name a model.
var defaultModels = map[Name]string{
	OpenRouter:     "openrouter/auto",
	OpenRouterFree: "meta-llama/llama-3.3-70b-instruct:free",
	Google:         "gemini-2.0-flash",
	OpenAI:         "gpt-4o",
	Anthropic:      "claude-sonnet-4-20250514",
	XAI:            "grok-3",
	Ollama:         "llama3.1",
	LMStudio:       "local-model",
	GLM:            "glm-4.6",
	Minimax:        "MiniMax-M1",
}

// Error carries the HTTP status for a resolution failure. Messages are part
// of the API contract.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string { return e.Message }

// ── Streaming contract ──────────────────────────────────────

// EventType classifies one streamed event.
type EventType string

const (
	EventText     EventType = "text"
	EventToolCall EventType = "tool-call"
	EventDone     EventType = "done"
	EventError    EventType = "error"
)

// Event is one unit of provider output relayed to the orchestrator.
type Event struct {
	Type     EventType
	Text     string
	ToolCall *models.ToolCall
	Err      error
}

// Message is a provider-facing conversation turn.
type Message struct {
	Role       string `json:"role"`
	Content    string `json:"content"`
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// ToolSpec is a tool declaration in wire-ready JSON Schema form. Names must
// already be sanitized for the target provider.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Request is a single streaming completion call.
type Request struct {
	Model     string
	System    string
	Messages  []Message
	Tools     []ToolSpec
	MaxTokens int
}

// Driver streams one model turn. The returned channel is closed after an
// EventDone or EventError; cancellation of ctx stops the stream.
type Driver interface {
	Name() Name
	Model() string
	Stream(ctx context.Context, req Request) (<-chan Event, error)
}
