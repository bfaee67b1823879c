// Package orchestrator drives one AI chat turn end to end: attachment
// validation, message persistence, prompt assembly, tool-map construction,
// stream registration, and the provider event loop with tool dispatch.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/pagespace/pagespace/gateway/internal/attachments"
	"github.com/pagespace/pagespace/gateway/internal/prompt"
	"github.com/pagespace/pagespace/gateway/internal/provider"
	"github.com/pagespace/pagespace/gateway/internal/store"
	"github.com/pagespace/pagespace/gateway/internal/streams"
	"github.com/pagespace/pagespace/gateway/internal/tools"
	"github.com/pagespace/pagespace/gateway/pkg/models"
)

// maxToolTurns bounds the dispatch loop so a model that keeps calling
// tools cannot spin forever.
const maxToolTurns = 10

// historyLimit is how many prior messages are replayed to the provider.
const historyLimit = 50

// Error is a pre-stream failure with its HTTP status. Once streaming has
// begun, failures are in-band events instead.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string { return e.Message }

// Event is one unit of orchestrator output relayed to the client.
type Event struct {
	Type       string             `json:"type"`
	Text       string             `json:"text,omitempty"`
	ToolCall   *models.ToolCall   `json:"toolCall,omitempty"`
	ToolResult *models.ToolResult `json:"toolResult,omitempty"`
	Error      string             `json:"error,omitempty"`
}

// Event types emitted to the client.
const (
	EventText       = "text"
	EventToolCall   = "tool-call"
	EventToolResult = "tool-result"
	EventDone       = "done"
	EventError      = "error"
)

// Emit relays one event to the client. Emit failures (a closed connection)
// are the caller's concern; the orchestrator keeps streaming regardless.
type Emit func(Event)

// MCPDispatcher executes one external MCP tool call.
type MCPDispatcher func(ctx context.Context, server, tool string, args map[string]any) (any, error)

// ChatRequest is one parsed chat turn.
type ChatRequest struct {
	User   *models.User
	PageID string
	Parts  []models.MessagePart

	Prompt prompt.Context

	Provider string
	Model    string
	APIKey   string

	ReadOnly         bool
	WebSearchEnabled bool

	// MCPTools maps server name to its declared tools.
	MCPTools map[string][]tools.MCPToolDecl

	// StreamID lets the client pre-assign an id; empty means generate.
	StreamID string
}

// Orchestrator wires the chat pipeline's collaborators.
type Orchestrator struct {
	store       store.Store
	assembler   *prompt.Assembler
	catalog     *tools.Catalog
	factory     *provider.Factory
	oracle      *provider.Oracle
	registry    *streams.Registry
	mcpDispatch MCPDispatcher
	now         func() time.Time
}

func New(st store.Store, assembler *prompt.Assembler, catalog *tools.Catalog, factory *provider.Factory, oracle *provider.Oracle, registry *streams.Registry, mcpDispatch MCPDispatcher) *Orchestrator {
	return &Orchestrator{
		store:       st,
		assembler:   assembler,
		catalog:     catalog,
		factory:     factory,
		oracle:      oracle,
		registry:    registry,
		mcpDispatch: mcpDispatch,
		now:         time.Now,
	}
}

// Stream is a prepared chat turn ready to run. The id is surfaced to the
// client as X-Stream-Id before the first byte of the body.
type Stream struct {
	ID  string
	run func(Emit)
}

// Run drives the stream to completion, persisting the assistant message
// and releasing the registry entry on every path.
func (s *Stream) Run(emit Emit) { s.run(emit) }

// Prepare validates and persists the user turn and resolves everything the
// stream needs. All client-attributable failures happen here, while a
// status code can still be sent.
func (o *Orchestrator) Prepare(ctx context.Context, req ChatRequest) (*Stream, error) {
	check := attachments.ValidateMessage(req.Parts)
	if !check.Valid {
		return nil, &Error{Status: http.StatusBadRequest, Message: check.Reason}
	}

	driver, err := o.factory.Resolve(ctx, req.User, req.Provider, req.Model, req.APIKey)
	if err != nil {
		var pe *provider.Error
		if errors.As(err, &pe) {
			return nil, &Error{Status: pe.Status, Message: pe.Message}
		}
		return nil, err
	}

	if check.FilePartCount > 0 && !provider.HasVisionCapability(driver.Model()) {
		return nil, &Error{
			Status:  http.StatusBadRequest,
			Message: fmt.Sprintf("Model %s does not support image input", driver.Model()),
		}
	}

	userContent, err := models.EncodeContent(req.Parts)
	if err != nil {
		return nil, fmt.Errorf("encode user message: %w", err)
	}
	userMsg := &models.ChatMessage{
		ID:        uuid.NewString(),
		PageID:    req.PageID,
		Role:      models.MessageRoleUser,
		Content:   userContent,
		CreatedAt: o.now(),
		IsActive:  true,
	}
	if err := o.store.AppendMessage(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}

	assembled, err := o.assembler.Assemble(ctx, req.User.ID, req.Prompt)
	if err != nil {
		return nil, fmt.Errorf("assemble prompt: %w", err)
	}

	dispatch, specs := o.buildToolMap(ctx, req, driver)

	conversation, err := o.conversation(ctx, req.PageID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	// The stream must outlive the request: client disconnect is not abort.
	streamID, streamCtx, _ := o.registry.Create(context.WithoutCancel(ctx), req.User.ID, req.StreamID)

	return &Stream{
		ID: streamID,
		run: func(emit Emit) {
			o.runStream(streamCtx, streamID, req.PageID, driver, provider.Request{
				Model:    driver.Model(),
				System:   assembled.System,
				Messages: conversation,
				Tools:    specs,
			}, dispatch, emit)
		},
	}, nil
}

// buildToolMap merges the internal catalog with converted MCP tools, keyed
// by provider-sanitized name, and renders the wire specs. Models without
// tool capability get no tools at all.
func (o *Orchestrator) buildToolMap(ctx context.Context, req ChatRequest, driver provider.Driver) (map[string]tools.Tool, []provider.ToolSpec) {
	if !o.oracle.HasToolCapability(ctx, driver.Name(), driver.Model()) {
		return nil, nil
	}

	filter := tools.Filter{ReadOnly: req.ReadOnly, WebSearchEnabled: req.WebSearchEnabled}
	dispatch := make(map[string]tools.Tool)
	for name, t := range o.catalog.Tools(filter) {
		dispatch[name] = t
	}

	// External tools can mutate; read-only mode drops them all.
	if req.ReadOnly {
		req.MCPTools = nil
	}
	for server, decls := range req.MCPTools {
		for _, decl := range decls {
			t, err := tools.ConvertMCPTool(server, decl)
			if err != nil {
				log.Warn().Err(err).Str("server", server).Str("tool", decl.Name).
					Msg("dropping invalid mcp tool")
				continue
			}
			srv, toolName := server, decl.Name
			t.Handler = func(ctx context.Context, args map[string]any) (any, error) {
				if o.mcpDispatch == nil {
					return nil, fmt.Errorf("no MCP dispatcher configured")
				}
				return o.mcpDispatch(ctx, srv, toolName, args)
			}
			dispatch[tools.ProviderName(t.Name)] = t
		}
	}

	specs := make([]provider.ToolSpec, 0, len(dispatch))
	for sanitized, t := range dispatch {
		specs = append(specs, provider.ToolSpec{
			Name:        sanitized,
			Description: t.Description,
			Parameters:  tools.Schema(t.Params),
		})
	}
	return dispatch, specs
}

// conversation replays prior page messages as provider turns.
func (o *Orchestrator) conversation(ctx context.Context, pageID string) ([]provider.Message, error) {
	history, err := o.store.ListMessages(ctx, pageID, historyLimit)
	if err != nil {
		return nil, err
	}
	msgs := make([]provider.Message, 0, len(history))
	for _, m := range history {
		if !m.IsActive {
			continue
		}
		msgs = append(msgs, provider.Message{
			Role:    string(m.Role),
			Content: plainText(m.Content),
		})
	}
	return msgs, nil
}

// plainText flattens a persisted content envelope to its text for provider
// replay; plain rows pass through unchanged.
func plainText(content string) string {
	parts := models.DecodeContent(content)
	var texts []string
	for _, p := range parts {
		if p.Type == models.PartText {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// runStream is the provider event loop. It always persists whatever has
// accumulated and always removes the registry entry, whether the stream
// finishes, errors, or is aborted.
func (o *Orchestrator) runStream(ctx context.Context, streamID, pageID string, driver provider.Driver, req provider.Request, dispatch map[string]tools.Tool, emit Emit) {
	acc := &accumulator{}
	defer func() {
		o.registry.Remove(streamID)
		o.persist(acc, pageID)
	}()

	for turn := 0; turn < maxToolTurns; turn++ {
		events, err := driver.Stream(ctx, req)
		if err != nil {
			log.Error().Err(err).Str("streamId", streamID).Msg("provider stream failed")
			emit(Event{Type: EventError, Error: "AI provider request failed"})
			return
		}

		var turnCalls []models.ToolCall
		var turnText strings.Builder
	drain:
		for ev := range events {
			// An event already taken off the channel is accumulated even
			// when the abort has just landed; only emission stops. The
			// deferred persist then writes the full prefix.
			switch ev.Type {
			case provider.EventText:
				acc.addText(ev.Text)
				turnText.WriteString(ev.Text)
				if ctx.Err() == nil {
					emit(Event{Type: EventText, Text: ev.Text})
				}
			case provider.EventToolCall:
				turnCalls = append(turnCalls, *ev.ToolCall)
			case provider.EventError:
				log.Warn().Err(ev.Err).Str("streamId", streamID).Msg("provider emitted error")
				emit(Event{Type: EventError, Error: "AI provider stream error"})
				return
			case provider.EventDone:
				break drain
			}
			if ctx.Err() != nil {
				return
			}
		}

		if ctx.Err() != nil {
			// Aborted while draining: persist the prefix, emit nothing more.
			return
		}

		if len(turnCalls) == 0 {
			emit(Event{Type: EventDone})
			return
		}

		// Fold this turn's output and every tool result back into the
		// conversation for the next model turn.
		if turnText.Len() > 0 {
			req.Messages = append(req.Messages, provider.Message{
				Role: "assistant", Content: turnText.String(),
			})
		}
		for _, call := range turnCalls {
			emit(Event{Type: EventToolCall, ToolCall: &call})
			result := o.dispatchTool(ctx, dispatch, call)
			acc.addToolInteraction(call, result)
			emit(Event{Type: EventToolResult, ToolResult: &result})
			req.Messages = append(req.Messages, provider.Message{
				Role:       "tool",
				Content:    encodeResult(result),
				ToolCallID: call.ToolCallID,
			})
		}
	}

	log.Warn().Str("streamId", streamID).Int("turns", maxToolTurns).Msg("tool turn limit reached")
	emit(Event{Type: EventDone})
}

// dispatchTool executes one provider-issued call. Unknown names and handler
// failures become in-band tool errors; the stream keeps going.
func (o *Orchestrator) dispatchTool(ctx context.Context, dispatch map[string]tools.Tool, call models.ToolCall) models.ToolResult {
	result := models.ToolResult{ToolCallID: call.ToolCallID, ToolName: call.ToolName}

	t, ok := dispatch[call.ToolName]
	if !ok || t.Handler == nil {
		result.IsError = true
		result.Result = fmt.Sprintf("Unknown tool: %s", call.ToolName)
		return result
	}

	out, err := t.Handler(ctx, call.Args)
	if err != nil {
		result.IsError = true
		result.Result = err.Error()
		return result
	}
	result.Result = out
	return result
}

func (o *Orchestrator) persist(acc *accumulator, pageID string) {
	if acc.empty() {
		return
	}
	msg, err := acc.message(uuid.NewString(), pageID)
	if err != nil {
		log.Error().Err(err).Str("pageId", pageID).Msg("encode assistant message failed")
		return
	}
	msg.CreatedAt = o.now()

	// The request context may already be gone; persistence must not be
	// tied to it.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := o.store.AppendMessage(ctx, msg); err != nil {
		log.Error().Err(err).Str("pageId", pageID).Msg("persist assistant message failed")
	}
}

func encodeResult(r models.ToolResult) string {
	raw, err := json.Marshal(r.Result)
	if err != nil {
		return fmt.Sprintf("%v", r.Result)
	}
	return string(raw)
}
