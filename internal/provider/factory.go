package provider

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pagespace/pagespace/gateway/internal/config"
	"github.com/pagespace/pagespace/gateway/internal/store"
	"github.com/pagespace/pagespace/gateway/pkg/models"
)

// Resolution error messages pinned by the API contract.
var (
	ErrNoDefaultKey    = &Error{http.StatusBadRequest, "No default API key configured"}
	ErrNoOpenRouterKey = &Error{http.StatusBadRequest, "OpenRouter API key not configured"}
	ErrInitFailed      = &Error{http.StatusInternalServerError, "Failed to initialize AI provider"}
)

const (
	defaultOllamaBaseURL   = "http://localhost:11434"
	defaultLMStudioBaseURL = "http://localhost:1234"
	openRouterBaseURL      = "https://openrouter.ai/api/v1"
	glmBaseURL             = "https://open.bigmodel.cn/api/paas/v4"
	xaiBaseURL             = "https://api.x.ai/v1"
	minimaxBaseURL         = "https://api.minimax.io/anthropic"
)

// Factory resolves a user's effective provider and returns a configured
// streaming driver.
type Factory struct {
	store  store.Store
	cfg    config.ProviderConfig
	client *http.Client
}

func NewFactory(st store.Store, cfg config.ProviderConfig) *Factory {
	return &Factory{
		store: st,
		cfg:   cfg,
		client: &http.Client{
			Timeout: 300 * time.Second,
		},
	}
}

// Resolve picks the effective provider and model for a request:
// requested value first, then the user's saved preference, then the
// platform default. A key supplied in the request body is persisted before
// use. Unexpected failures surface as the generic 500.
func (f *Factory) Resolve(ctx context.Context, user *models.User, requestedProvider, requestedModel, bodyKey string) (Driver, error) {
	driver, err := f.resolve(ctx, user, requestedProvider, requestedModel, bodyKey)
	if err != nil {
		if _, ok := err.(*Error); ok {
			return nil, err
		}
		log.Error().Err(err).Str("user_id", user.ID).Msg("provider resolution failed")
		return nil, ErrInitFailed
	}
	return driver, nil
}

func (f *Factory) resolve(ctx context.Context, user *models.User, requestedProvider, requestedModel, bodyKey string) (Driver, error) {
	name := Name(requestedProvider)
	if name == "" {
		name = Name(user.CurrentAIProvider)
	}
	if name == "" {
		name = PageSpace
	}
	if !Known(name) {
		return nil, &Error{http.StatusBadRequest, fmt.Sprintf("Unknown AI provider %q", name)}
	}

	model := requestedModel
	if model == "" {
		model = user.CurrentAIModel
	}
	if model == "" {
		model = defaultModels[name]
	}

	if bodyKey != "" {
		if err := f.persistKey(ctx, user.ID, name, bodyKey); err != nil {
			return nil, fmt.Errorf("persisting provider key: %w", err)
		}
	}

	switch name {
	case PageSpace:
		return f.resolvePageSpace(ctx, user, model)

	case OpenRouter, OpenRouterFree:
		// Same backend, same key store. The two names differ only in which
		// models the caller may pick.
		key, err := f.userKey(ctx, user.ID, OpenRouter)
		if err != nil {
			return nil, err
		}
		if key == "" {
			return nil, ErrNoOpenRouterKey
		}
		return newOpenAICompatDriver(name, model, openRouterBaseURL, key, f.client), nil

	case OpenAI:
		return f.keyedOpenAICompat(ctx, user.ID, name, model, "https://api.openai.com/v1")

	case XAI:
		return f.keyedOpenAICompat(ctx, user.ID, name, model, xaiBaseURL)

	case GLM:
		return f.keyedOpenAICompat(ctx, user.ID, name, model, glmBaseURL)

	case Google:
		key, err := f.userKey(ctx, user.ID, Google)
		if err != nil {
			return nil, err
		}
		if key == "" {
			return nil, missingKey(Google)
		}
		return newGoogleDriver(model, key, f.client), nil

	case Anthropic:
		key, err := f.userKey(ctx, user.ID, Anthropic)
		if err != nil {
			return nil, err
		}
		if key == "" {
			return nil, missingKey(Anthropic)
		}
		return newAnthropicDriver(Anthropic, model, "https://api.anthropic.com", key, f.client), nil

	case Minimax:
		// Anthropic-compatible endpoint with a custom base URL.
		key, err := f.userKey(ctx, user.ID, Minimax)
		if err != nil {
			return nil, err
		}
		if key == "" {
			return nil, missingKey(Minimax)
		}
		return newAnthropicDriver(Minimax, model, minimaxBaseURL, key, f.client), nil

	case Ollama, LMStudio:
		// Local servers: base URL, no API key.
		baseURL, err := f.userBaseURL(ctx, user.ID, name)
		if err != nil {
			return nil, err
		}
		if baseURL == "" {
			if name == Ollama {
				baseURL = defaultOllamaBaseURL
			} else {
				baseURL = defaultLMStudioBaseURL
			}
		}
		return newOpenAICompatDriver(name, model, baseURL+"/v1", "", f.client), nil
	}

	return nil, ErrInitFailed
}

// resolvePageSpace resolves the platform-managed provider: the configured
// default key on its configured backend, falling back to the user's own
// Google key.
func (f *Factory) resolvePageSpace(ctx context.Context, user *models.User, model string) (Driver, error) {
	if f.cfg.DefaultKey != "" {
		switch f.cfg.DefaultBackend {
		case "google":
			if model == "" || model == defaultModels[PageSpace] {
				model = defaultModels[Google]
			}
			return newGoogleDriver(model, f.cfg.DefaultKey, f.client), nil
		default: // glm
			if model == "" {
				model = defaultModels[GLM]
			}
			return newOpenAICompatDriver(PageSpace, model, glmBaseURL, f.cfg.DefaultKey, f.client), nil
		}
	}

	key, err := f.userKey(ctx, user.ID, Google)
	if err != nil {
		return nil, err
	}
	if key == "" {
		return nil, ErrNoDefaultKey
	}
	if model == "" {
		model = defaultModels[Google]
	}
	return newGoogleDriver(model, key, f.client), nil
}

func (f *Factory) keyedOpenAICompat(ctx context.Context, userID string, name Name, model, baseURL string) (Driver, error) {
	key, err := f.userKey(ctx, userID, name)
	if err != nil {
		return nil, err
	}
	if key == "" {
		return nil, missingKey(name)
	}
	return newOpenAICompatDriver(name, model, baseURL, key, f.client), nil
}

func (f *Factory) userKey(ctx context.Context, userID string, name Name) (string, error) {
	setting, err := f.store.GetProviderSetting(ctx, userID, string(name))
	if err != nil {
		if store.IsNotFound(err) {
			return "", nil
		}
		return "", err
	}
	return setting.APIKey, nil
}

func (f *Factory) userBaseURL(ctx context.Context, userID string, name Name) (string, error) {
	setting, err := f.store.GetProviderSetting(ctx, userID, string(name))
	if err != nil {
		if store.IsNotFound(err) {
			return "", nil
		}
		return "", err
	}
	return setting.BaseURL, nil
}

func (f *Factory) persistKey(ctx context.Context, userID string, name Name, key string) error {
	// openrouter_free shares the openrouter key record.
	if name == OpenRouterFree {
		name = OpenRouter
	}
	return f.store.UpsertProviderSetting(ctx, &models.ProviderSetting{
		UserID:    userID,
		Provider:  string(name),
		APIKey:    key,
		UpdatedAt: time.Now(),
	})
}

func missingKey(name Name) *Error {
	return &Error{http.StatusBadRequest, fmt.Sprintf("%s API key not configured", displayName(name))}
}

func displayName(name Name) string {
	switch name {
	case OpenAI:
		return "OpenAI"
	case Anthropic:
		return "Anthropic"
	case Google:
		return "Google"
	case XAI:
		return "xAI"
	case GLM:
		return "GLM"
	case Minimax:
		return "MiniMax"
	default:
		return string(name)
	}
}
