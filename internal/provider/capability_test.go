package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestHasVisionCapability(t *testing.T) {
	tests := []struct {
		model string
		want  bool
	}{
		// Table hits.
		{"gpt-4o", true},
		{"gemini-2.0-flash", true},

		// Pattern fallback.
		{"qwen2-vl-72b-vision", true},
		{"foo-v-bar", true},
		{"gpt-5-nano", true},
		{"claude-3-haiku", true},
		{"claude-4-opus", true},
		{"gemini-3.0-ultra", true},

		// Explicit non-vision family, even though o4-mini could pattern-match.
		{"o1", false},
		{"o1-preview", false},
		{"o3-mini", false},
		{"o4-mini", false},

		// Plain text models.
		{"llama3.1", false},
		{"glm-4.6", false},
		{"mistral-large", false},
	}
	for _, tt := range tests {
		if got := HasVisionCapability(tt.model); got != tt.want {
			t.Errorf("HasVisionCapability(%q) = %v, want %v", tt.model, got, tt.want)
		}
	}
}

func TestToolCapabilityDenyList(t *testing.T) {
	o := NewOracle(time.Hour)

	if o.HasToolCapability(context.Background(), Google, "gemma-2-27b") {
		t.Error("gemma family should be denied tool capability")
	}
	if !o.HasToolCapability(context.Background(), OpenAI, "gpt-4o") {
		t.Error("unknown models should default to tool-capable")
	}
}

func TestToolCapabilityOpenRouterMap(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[
			{"id":"vendor/tooly","supported_parameters":["tools","temperature"]},
			{"id":"vendor/plain","supported_parameters":["temperature"]}
		]}`))
	}))
	defer srv.Close()

	o := NewOracle(time.Hour)
	o.endpoint = srv.URL

	if !o.HasToolCapability(context.Background(), OpenRouter, "vendor/tooly") {
		t.Error("vendor/tooly supports tools per the capability map")
	}
	if o.HasToolCapability(context.Background(), OpenRouter, "vendor/plain") {
		t.Error("vendor/plain does not support tools per the capability map")
	}
	// Unlisted models default to supported.
	if !o.HasToolCapability(context.Background(), OpenRouter, "vendor/unlisted") {
		t.Error("unlisted models should default to tool-capable")
	}

	// Three lookups, one refresh: within the hour the map is reused.
	if got := hits.Load(); got != 1 {
		t.Errorf("endpoint hit %d times, want 1", got)
	}
}

// Memoized answers survive even when a later refresh would fail.
func TestToolCapabilityMemoization(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`{"data":[{"id":"vendor/tooly","supported_parameters":["tools"]}]}`))
	}))

	o := NewOracle(time.Nanosecond) // force refresh on every uncached lookup
	o.endpoint = srv.URL

	if !o.HasToolCapability(context.Background(), OpenRouter, "vendor/tooly") {
		t.Fatal("first lookup should succeed")
	}
	srv.Close()

	// Same (provider, model): memo hit, no second refresh attempt needed.
	if !o.HasToolCapability(context.Background(), OpenRouter, "vendor/tooly") {
		t.Error("memoized answer should be stable")
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("endpoint hit %d times, want 1", got)
	}
}
