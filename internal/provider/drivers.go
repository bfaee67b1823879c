package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/pagespace/pagespace/gateway/pkg/models"
)

// scannerBufferSize accommodates large SSE data lines (tool arguments,
// long text deltas).
const scannerBufferSize = 1 << 20

// send delivers one event unless the stream context is cancelled. A false
// return tells the reader to bail out so its deferred channel close and
// body close still run even when nobody is receiving anymore.
func send(ctx context.Context, events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// ── OpenAI-compatible driver ────────────────────────────────
//
// Serves openai, xai, glm, openrouter, openrouter_free, ollama, lmstudio,
// and the GLM-backed pagespace default. All speak the chat-completions SSE
// dialect.

type openAICompatDriver struct {
	name    Name
	model   string
	baseURL string
	apiKey  string
	client  *http.Client
}

func newOpenAICompatDriver(name Name, model, baseURL, apiKey string, client *http.Client) *openAICompatDriver {
	return &openAICompatDriver{name: name, model: model, baseURL: baseURL, apiKey: apiKey, client: client}
}

func (d *openAICompatDriver) Name() Name    { return d.name }
func (d *openAICompatDriver) Model() string { return d.model }

type oaiToolDecl struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description,omitempty"`
		Parameters  map[string]any `json:"parameters"`
	} `json:"function"`
}

type oaiStreamRequest struct {
	Model     string        `json:"model"`
	Messages  []oaiMessage  `json:"messages"`
	Tools     []oaiToolDecl `json:"tools,omitempty"`
	Stream    bool          `json:"stream"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type oaiMessage struct {
	Role       string `json:"role"`
	Content    string `json:"content"`
	ToolCallID string `json:"tool_call_id,omitempty"`
}

type oaiStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

func (d *openAICompatDriver) Stream(ctx context.Context, req Request) (<-chan Event, error) {
	payload := oaiStreamRequest{
		Model:     d.model,
		Stream:    true,
		MaxTokens: req.MaxTokens,
	}
	if req.System != "" {
		payload.Messages = append(payload.Messages, oaiMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		payload.Messages = append(payload.Messages, oaiMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		})
	}
	for _, t := range req.Tools {
		var decl oaiToolDecl
		decl.Type = "function"
		decl.Function.Name = t.Name
		decl.Function.Description = t.Description
		decl.Function.Parameters = t.Parameters
		payload.Tools = append(payload.Tools, decl)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%s: encode request: %w", d.name, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", d.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", d.name, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if d.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+d.apiKey)
	}

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s: request failed: %w", d.name, err)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("%s: status %d: %s", d.name, resp.StatusCode, string(respBody))
	}

	events := make(chan Event)
	go d.readStream(ctx, resp.Body, events)
	return events, nil
}

// toolCallAccum stitches incremental tool-call deltas back together.
type toolCallAccum struct {
	id   string
	name string
	args strings.Builder
}

func (d *openAICompatDriver) readStream(ctx context.Context, body io.ReadCloser, events chan<- Event) {
	defer close(events)
	defer body.Close()

	calls := map[int]*toolCallAccum{}
	flushCalls := func() bool {
		indexes := make([]int, 0, len(calls))
		for i := range calls {
			indexes = append(indexes, i)
		}
		sort.Ints(indexes)
		for _, i := range indexes {
			acc := calls[i]
			ev := Event{Type: EventToolCall, ToolCall: &models.ToolCall{
				ToolCallID: acc.id,
				ToolName:   acc.name,
				Args:       decodeArgs(acc.args.String()),
			}}
			if !send(ctx, events, ev) {
				return false
			}
		}
		calls = map[int]*toolCallAccum{}
		return true
	}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), scannerBufferSize)
	for scanner.Scan() {
		data, ok := ssePayload(scanner.Text())
		if !ok {
			continue
		}
		if data == "[DONE]" {
			break
		}

		var chunk oaiStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			log.Warn().Err(err).Str("provider", string(d.name)).Msg("skipping undecodable stream chunk")
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]

		if choice.Delta.Content != "" {
			if !send(ctx, events, Event{Type: EventText, Text: choice.Delta.Content}) {
				return
			}
		}
		for _, tc := range choice.Delta.ToolCalls {
			acc, ok := calls[tc.Index]
			if !ok {
				acc = &toolCallAccum{}
				calls[tc.Index] = acc
			}
			if tc.ID != "" {
				acc.id = tc.ID
			}
			if tc.Function.Name != "" {
				acc.name = tc.Function.Name
			}
			acc.args.WriteString(tc.Function.Arguments)
		}
		if choice.FinishReason == "tool_calls" {
			if !flushCalls() {
				return
			}
		}
	}
	if err := scanner.Err(); err != nil {
		send(ctx, events, Event{Type: EventError, Err: fmt.Errorf("%s: stream read: %w", d.name, err)})
		return
	}
	if !flushCalls() {
		return
	}
	send(ctx, events, Event{Type: EventDone})
}

// ── Anthropic-compatible driver ─────────────────────────────
//
// Serves anthropic and minimax (same messages dialect, different base URL).

type anthropicDriver struct {
	name    Name
	model   string
	baseURL string
	apiKey  string
	client  *http.Client
}

func newAnthropicDriver(name Name, model, baseURL, apiKey string, client *http.Client) *anthropicDriver {
	return &anthropicDriver{name: name, model: model, baseURL: baseURL, apiKey: apiKey, client: client}
}

func (d *anthropicDriver) Name() Name    { return d.name }
func (d *anthropicDriver) Model() string { return d.model }

type anthropicStreamRequest struct {
	Model     string          `json:"model"`
	System    string          `json:"system,omitempty"`
	Messages  []oaiMessage    `json:"messages"`
	Tools     []anthropicTool `json:"tools,omitempty"`
	MaxTokens int             `json:"max_tokens"`
	Stream    bool            `json:"stream"`
}

type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
	Delta struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		PartialJSON string `json:"partial_json"`
	} `json:"delta"`
	ContentBlock struct {
		Type string `json:"type"`
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"content_block"`
}

func (d *anthropicDriver) Stream(ctx context.Context, req Request) (<-chan Event, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}
	payload := anthropicStreamRequest{
		Model:     d.model,
		System:    req.System,
		MaxTokens: maxTokens,
		Stream:    true,
	}
	for _, m := range req.Messages {
		payload.Messages = append(payload.Messages, oaiMessage{Role: m.Role, Content: m.Content})
	}
	for _, t := range req.Tools {
		payload.Tools = append(payload.Tools, anthropicTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.Parameters,
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%s: encode request: %w", d.name, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", d.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", d.name, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", d.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s: request failed: %w", d.name, err)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("%s: status %d: %s", d.name, resp.StatusCode, string(respBody))
	}

	events := make(chan Event)
	go d.readStream(ctx, resp.Body, events)
	return events, nil
}

func (d *anthropicDriver) readStream(ctx context.Context, body io.ReadCloser, events chan<- Event) {
	defer close(events)
	defer body.Close()

	// Tool-use blocks arrive as a start event naming the tool, then
	// input_json_delta fragments, then a stop event.
	blocks := map[int]*toolCallAccum{}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), scannerBufferSize)
	for scanner.Scan() {
		data, ok := ssePayload(scanner.Text())
		if !ok {
			continue
		}

		var ev anthropicStreamEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			log.Warn().Err(err).Str("provider", string(d.name)).Msg("skipping undecodable stream event")
			continue
		}

		switch ev.Type {
		case "content_block_start":
			if ev.ContentBlock.Type == "tool_use" {
				blocks[ev.Index] = &toolCallAccum{id: ev.ContentBlock.ID, name: ev.ContentBlock.Name}
			}
		case "content_block_delta":
			switch ev.Delta.Type {
			case "text_delta":
				if ev.Delta.Text != "" {
					if !send(ctx, events, Event{Type: EventText, Text: ev.Delta.Text}) {
						return
					}
				}
			case "input_json_delta":
				if acc, ok := blocks[ev.Index]; ok {
					acc.args.WriteString(ev.Delta.PartialJSON)
				}
			}
		case "content_block_stop":
			if acc, ok := blocks[ev.Index]; ok {
				call := Event{Type: EventToolCall, ToolCall: &models.ToolCall{
					ToolCallID: acc.id,
					ToolName:   acc.name,
					Args:       decodeArgs(acc.args.String()),
				}}
				if !send(ctx, events, call) {
					return
				}
				delete(blocks, ev.Index)
			}
		case "message_stop":
			send(ctx, events, Event{Type: EventDone})
			return
		}
	}
	if err := scanner.Err(); err != nil {
		send(ctx, events, Event{Type: EventError, Err: fmt.Errorf("%s: stream read: %w", d.name, err)})
		return
	}
	send(ctx, events, Event{Type: EventDone})
}

// ── Google driver ───────────────────────────────────────────

type googleDriver struct {
	model   string
	apiKey  string
	baseURL string
	client  *http.Client
}

func newGoogleDriver(model, apiKey string, client *http.Client) *googleDriver {
	return &googleDriver{
		model:   model,
		apiKey:  apiKey,
		baseURL: "https://generativelanguage.googleapis.com/v1beta",
		client:  client,
	}
}

func (d *googleDriver) Name() Name    { return Google }
func (d *googleDriver) Model() string { return d.model }

type googleContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []googlePart `json:"parts"`
}

type googlePart struct {
	Text         string `json:"text,omitempty"`
	FunctionCall *struct {
		Name string         `json:"name"`
		Args map[string]any `json:"args"`
	} `json:"functionCall,omitempty"`
}

type googleFunctionDecl struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type googleToolDecl struct {
	FunctionDeclarations []googleFunctionDecl `json:"functionDeclarations"`
}

type googleStreamRequest struct {
	SystemInstruction *googleContent   `json:"systemInstruction,omitempty"`
	Contents          []googleContent  `json:"contents"`
	Tools             []googleToolDecl `json:"tools,omitempty"`
}

type googleStreamChunk struct {
	Candidates []struct {
		Content googleContent `json:"content"`
	} `json:"candidates"`
}

func (d *googleDriver) Stream(ctx context.Context, req Request) (<-chan Event, error) {
	var payload googleStreamRequest
	if req.System != "" {
		payload.SystemInstruction = &googleContent{Parts: []googlePart{{Text: req.System}}}
	}
	for _, m := range req.Messages {
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		payload.Contents = append(payload.Contents, googleContent{
			Role:  role,
			Parts: []googlePart{{Text: m.Content}},
		})
	}
	if len(req.Tools) > 0 {
		var decls []googleFunctionDecl
		for _, t := range req.Tools {
			decls = append(decls, googleFunctionDecl{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			})
		}
		payload.Tools = []googleToolDecl{{FunctionDeclarations: decls}}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("google: encode request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", d.baseURL, d.model)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("google: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", d.apiKey)

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("google: request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("google: status %d: %s", resp.StatusCode, string(respBody))
	}

	events := make(chan Event)
	go d.readStream(ctx, resp.Body, events)
	return events, nil
}

func (d *googleDriver) readStream(ctx context.Context, body io.ReadCloser, events chan<- Event) {
	defer close(events)
	defer body.Close()

	callSeq := 0
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), scannerBufferSize)
	for scanner.Scan() {
		data, ok := ssePayload(scanner.Text())
		if !ok {
			continue
		}

		var chunk googleStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			log.Warn().Err(err).Str("provider", "google").Msg("skipping undecodable stream chunk")
			continue
		}
		for _, cand := range chunk.Candidates {
			for _, part := range cand.Content.Parts {
				if part.Text != "" {
					if !send(ctx, events, Event{Type: EventText, Text: part.Text}) {
						return
					}
				}
				if part.FunctionCall != nil {
					callSeq++
					call := Event{Type: EventToolCall, ToolCall: &models.ToolCall{
						ToolCallID: fmt.Sprintf("call_%d", callSeq),
						ToolName:   part.FunctionCall.Name,
						Args:       part.FunctionCall.Args,
					}}
					if !send(ctx, events, call) {
						return
					}
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		send(ctx, events, Event{Type: EventError, Err: fmt.Errorf("google: stream read: %w", err)})
		return
	}
	send(ctx, events, Event{Type: EventDone})
}

// decodeArgs parses accumulated tool-call argument JSON. Providers
// occasionally emit malformed fragments; those degrade to empty args rather
// than killing the stream.
func decodeArgs(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		log.Warn().Err(err).Msg("undecodable tool-call arguments")
		return map[string]any{}
	}
	return args
}

// ssePayload extracts the payload of an SSE "data:" line.
func ssePayload(line string) (string, bool) {
	if !strings.HasPrefix(line, "data:") {
		return "", false
	}
	return strings.TrimSpace(line[len("data:"):]), true
}
