package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// visionModels is the authoritative table; the pattern fallback covers
// models released after the table was written.
var visionModels = map[string]bool{
	"gpt-4o":                   true,
	"gpt-4o-mini":              true,
	"gpt-4-turbo":              true,
	"gpt-5":                    true,
	"claude-sonnet-4-20250514": true,
	"claude-opus-4-20250514":   true,
	"gemini-2.0-flash":         true,
	"gemini-2.5-pro":           true,
	"grok-2-vision":            true,
	"glm-4v":                   true,
	"pixtral-large":            true,
	"llama-3.2-90b-vision":     true,
}

// nonVisionFamilies lists model families that must never be treated as
// vision-capable even when a name pattern matches.
var nonVisionFamilies = []string{"o1", "o3", "o4-mini"}

// HasVisionCapability reports whether the model accepts image input: table
// lookup first, then a name-pattern fallback.
func HasVisionCapability(model string) bool {
	m := strings.ToLower(model)

	for _, family := range nonVisionFamilies {
		if m == family || strings.HasPrefix(m, family+"-") || strings.HasPrefix(m, family+":") {
			return false
		}
	}

	if visionModels[m] {
		return true
	}

	switch {
	case strings.Contains(m, "vision"):
		return true
	case strings.Contains(m, "-v-"):
		return true
	case strings.Contains(m, "gpt-5"), strings.Contains(m, "gpt-4o"):
		return true
	case strings.Contains(m, "claude-3"), strings.Contains(m, "claude-4"):
		return true
	case strings.Contains(m, "gemini"):
		return true
	case strings.Contains(m, "grok") && strings.Contains(m, "vision"):
		return true
	}
	return false
}

// toolDenyFamilies lists model families known not to support tool calling.
var toolDenyFamilies = []string{"gemma"}

// Oracle memoizes tool-capability answers per (provider, model) and, for
// OpenRouter, refreshes an authoritative capability map from the public
// model endpoint at most once per hour.
type Oracle struct {
	client       *http.Client
	endpoint     string
	refreshEvery time.Duration

	mu          sync.Mutex
	memo        map[string]bool
	openRouter  map[string]bool
	lastRefresh time.Time
}

func NewOracle(refreshEvery time.Duration) *Oracle {
	return &Oracle{
		client:       &http.Client{Timeout: 15 * time.Second},
		endpoint:     openRouterBaseURL + "/models",
		refreshEvery: refreshEvery,
		memo:         make(map[string]bool),
	}
}

// HasToolCapability reports whether (provider, model) supports tool calling.
// Unknown models default to "supported"; only the static deny-list and the
// OpenRouter capability map say no.
func (o *Oracle) HasToolCapability(ctx context.Context, name Name, model string) bool {
	key := string(name) + "/" + strings.ToLower(model)

	o.mu.Lock()
	if v, ok := o.memo[key]; ok {
		o.mu.Unlock()
		return v
	}
	o.mu.Unlock()

	v := o.lookupToolCapability(ctx, name, model)

	o.mu.Lock()
	o.memo[key] = v
	o.mu.Unlock()
	return v
}

func (o *Oracle) lookupToolCapability(ctx context.Context, name Name, model string) bool {
	m := strings.ToLower(model)
	for _, family := range toolDenyFamilies {
		if strings.Contains(m, family) {
			return false
		}
	}

	if name == OpenRouter || name == OpenRouterFree {
		if supported, ok := o.openRouterSupport(ctx, m); ok {
			return supported
		}
	}

	return true
}

// openRouterSupport consults the refreshed capability map. The second
// return is false when the model is not listed, which defaults upward to
// "supported".
func (o *Oracle) openRouterSupport(ctx context.Context, model string) (bool, bool) {
	o.mu.Lock()
	needRefresh := time.Since(o.lastRefresh) >= o.refreshEvery || o.openRouter == nil
	o.mu.Unlock()

	if needRefresh {
		if err := o.refreshOpenRouter(ctx); err != nil {
			log.Warn().Err(err).Msg("openrouter capability refresh failed; using cached map")
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.openRouter == nil {
		return false, false
	}
	supported, ok := o.openRouter[model]
	return supported, ok
}

type openRouterModelList struct {
	Data []struct {
		ID                  string   `json:"id"`
		SupportedParameters []string `json:"supported_parameters"`
	} `json:"data"`
}

func (o *Oracle) refreshOpenRouter(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", o.endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}

	var list openRouterModelList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	capability := make(map[string]bool, len(list.Data))
	for _, m := range list.Data {
		supported := false
		for _, p := range m.SupportedParameters {
			if p == "tools" {
				supported = true
				break
			}
		}
		capability[strings.ToLower(m.ID)] = supported
	}

	o.mu.Lock()
	o.openRouter = capability
	o.lastRefresh = time.Now()
	o.mu.Unlock()

	log.Info().Int("models", len(capability)).Msg("refreshed openrouter capability map")
	return nil
}
