package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNormalizeOrigin(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"https://app.pagespace.dev", "https://app.pagespace.dev", true},
		{"https://app.pagespace.dev/", "https://app.pagespace.dev", true},
		{"https://app.pagespace.dev:443", "https://app.pagespace.dev", true},
		{"http://localhost:80", "http://localhost", true},
		{"http://localhost:3000", "http://localhost:3000", true},
		{"HTTPS://App.PageSpace.dev", "https://app.pagespace.dev", true},
		{"https://app.pagespace.dev/some/path?q=1", "https://app.pagespace.dev", true},
		{"https://app.pagespace.dev:8443", "https://app.pagespace.dev:8443", true},
		{"not a url", "", false},
		{"", "", false},
		{"/relative/path", "", false},
	}
	for _, tt := range tests {
		got, ok := NormalizeOrigin(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("NormalizeOrigin(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func originRequest(origin string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/api/ai/chat", nil)
	if origin != "" {
		r.Header.Set("Origin", origin)
	}
	return r
}

func TestOriginGuardBlockMode(t *testing.T) {
	g := NewOriginGuard("https://app.pagespace.dev", []string{"http://localhost:3000"}, OriginModeBlock)

	tests := []struct {
		origin string
		want   bool
	}{
		{"", true}, // non-browser clients carry no Origin
		{"https://app.pagespace.dev", true},
		{"https://app.pagespace.dev:443", true},
		{"http://localhost:3000", true},
		{"https://evil.example", false},
		{"https://app.pagespace.dev.evil.example", false},
		{"garbage", false},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		if got := g.Check(w, originRequest(tt.origin)); got != tt.want {
			t.Errorf("Check(origin=%q) = %v, want %v", tt.origin, got, tt.want)
		}
		if !tt.want && w.Code != http.StatusForbidden {
			t.Errorf("Check(origin=%q) wrote status %d, want 403", tt.origin, w.Code)
		}
	}
}

func TestOriginGuardWarnMode(t *testing.T) {
	g := NewOriginGuard("https://app.pagespace.dev", nil, OriginModeWarn)

	w := httptest.NewRecorder()
	if !g.Check(w, originRequest("https://evil.example")) {
		t.Error("warn mode should log and proceed")
	}
}

func TestOriginGuardUnconfiguredAllows(t *testing.T) {
	g := NewOriginGuard("", nil, OriginModeBlock)

	w := httptest.NewRecorder()
	if !g.Check(w, originRequest("https://anything.example")) {
		t.Error("missing configuration should warn and allow")
	}
}
