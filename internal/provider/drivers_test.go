package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func sseHandler(write func(w http.ResponseWriter, f http.Flusher, r *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		f, ok := w.(http.Flusher)
		if !ok {
			panic("test server writer must flush")
		}
		write(w, f, r)
	}
}

func TestOpenAICompatStreamDeliversTextAndDone(t *testing.T) {
	srv := httptest.NewServer(sseHandler(func(w http.ResponseWriter, f http.Flusher, _ *http.Request) {
		for _, chunk := range []string{"Hel", "lo"} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", chunk)
			f.Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
		f.Flush()
	}))
	defer srv.Close()

	d := newOpenAICompatDriver(Ollama, "test-model", srv.URL, "", srv.Client())
	events, err := d.Stream(context.Background(), Request{Model: "test-model"})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	var text strings.Builder
	var done bool
	for ev := range events {
		switch ev.Type {
		case EventText:
			text.WriteString(ev.Text)
		case EventDone:
			done = true
		case EventError:
			t.Fatalf("unexpected stream error: %v", ev.Err)
		}
	}
	if text.String() != "Hello" || !done {
		t.Errorf("text = %q, done = %v", text.String(), done)
	}
}

// A cancelled stream whose consumer has walked away must not strand the
// reader goroutine on a channel send; the reader exits and closes both the
// channel and the response body.
func TestOpenAICompatStreamStopsOnCancel(t *testing.T) {
	srv := httptest.NewServer(sseHandler(func(w http.ResponseWriter, f http.Flusher, r *http.Request) {
		for {
			select {
			case <-r.Context().Done():
				return
			default:
			}
			fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"chunk\"}}]}\n\n")
			f.Flush()
		}
	}))
	defer srv.Close()

	d := newOpenAICompatDriver(Ollama, "test-model", srv.URL, "", srv.Client())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := d.Stream(ctx, Request{Model: "test-model"})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	<-events
	cancel()

	// Stop consuming entirely, then verify the channel still gets closed.
	time.Sleep(50 * time.Millisecond)
	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("reader goroutine still running after cancel")
		}
	}
}

func TestAnthropicStreamStopsOnCancel(t *testing.T) {
	srv := httptest.NewServer(sseHandler(func(w http.ResponseWriter, f http.Flusher, r *http.Request) {
		for {
			select {
			case <-r.Context().Done():
				return
			default:
			}
			fmt.Fprint(w, "data: {\"type\":\"content_block_delta\",\"index\":0,\"delta\":{\"type\":\"text_delta\",\"text\":\"chunk\"}}\n\n")
			f.Flush()
		}
	}))
	defer srv.Close()

	d := newAnthropicDriver(Anthropic, "test-model", srv.URL, "key", srv.Client())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := d.Stream(ctx, Request{Model: "test-model"})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	<-events
	cancel()

	time.Sleep(50 * time.Millisecond)
	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("reader goroutine still running after cancel")
		}
	}
}

func TestOpenAICompatStreamAssemblesToolCalls(t *testing.T) {
	lines := []string{
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call-1","function":{"name":"read_page","arguments":"{\"pageId\":"}}]}}]}`,
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"p1\"}"}}]},"finish_reason":"tool_calls"}]}`,
		`data: [DONE]`,
	}
	srv := httptest.NewServer(sseHandler(func(w http.ResponseWriter, f http.Flusher, _ *http.Request) {
		for _, line := range lines {
			fmt.Fprintf(w, "%s\n\n", line)
		}
		f.Flush()
	}))
	defer srv.Close()

	d := newOpenAICompatDriver(Ollama, "test-model", srv.URL, "", srv.Client())
	events, err := d.Stream(context.Background(), Request{Model: "test-model"})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	var calls int
	for ev := range events {
		if ev.Type != EventToolCall {
			continue
		}
		calls++
		if ev.ToolCall.ToolCallID != "call-1" || ev.ToolCall.ToolName != "read_page" {
			t.Errorf("call = %+v", ev.ToolCall)
		}
		if ev.ToolCall.Args["pageId"] != "p1" {
			t.Errorf("args = %v, want stitched pageId", ev.ToolCall.Args)
		}
	}
	if calls != 1 {
		t.Errorf("tool calls = %d, want 1", calls)
	}
}
