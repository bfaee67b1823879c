package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the PageSpace gateway. Everything is
// resolved once at startup; no package reads the environment directly.
type Config struct {
	Port    int
	Version string

	Web       WebConfig
	Auth      AuthConfig
	Provider  ProviderConfig
	Processor ProcessorConfig
	Uploads   UploadConfig
	Caches    CacheConfig
	Telemetry TelemetryConfig
}

// WebConfig covers the browser-facing surface: origins and cookies.
type WebConfig struct {
	// WebAppURL is the canonical web client origin.
	WebAppURL string
	// AdditionalAllowedOrigins extends the origin allow-list.
	AdditionalAllowedOrigins []string
	// OriginValidationMode is "block" (default) or "warn".
	OriginValidationMode string
	// CookieDomain optionally pins the session cookie to a domain.
	CookieDomain string
	// SecureCookies marks cookies Secure (production).
	SecureCookies bool
}

// AuthConfig holds the keyed-hash and CSRF secrets plus session lifetimes.
type AuthConfig struct {
	// TokenSecret keys the hash under which session and MCP tokens are
	// stored and looked up.
	TokenSecret string
	// CSRFSecret keys the HMAC binding CSRF tokens to sessions.
	CSRFSecret string
	// CSRFTokenTTL bounds how long an issued CSRF token validates.
	CSRFTokenTTL time.Duration
	// SessionTTL is the session cookie Max-Age (7 days).
	SessionTTL time.Duration
	// CronSecret guards the maintenance endpoints.
	CronSecret string
}

// ProviderConfig holds the platform-default LLM key.
type ProviderConfig struct {
	// DefaultKey is the platform key used by the "pagespace" provider.
	DefaultKey string
	// DefaultBackend selects which backend the platform key belongs to:
	// "glm" or "google".
	DefaultBackend string
	// OpenRouterRefreshInterval bounds capability-map refreshes.
	OpenRouterRefreshInterval time.Duration
}

// ProcessorConfig points at the external file processor.
type ProcessorConfig struct {
	URL             string
	FileStoragePath string
	Timeout         time.Duration
}

// UploadConfig tunes admission control.
type UploadConfig struct {
	// MemoryHighWatermarkPct refuses uploads above this system memory
	// utilization.
	MemoryHighWatermarkPct float64
	// TierSlots maps tier name to concurrent upload slots.
	TierSlots map[string]int64
	// DefaultTier is used when a user has no tier set.
	DefaultTier string
}

// CacheConfig tunes the drive-scoped caches.
type CacheConfig struct {
	TreeTTL    time.Duration
	AgentTTL   time.Duration
	MaxEntries int
}

// TelemetryConfig mirrors the OTLP exporter settings.
type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Port:    envInt("PAGESPACE_PORT", 8080),
		Version: envStr("PAGESPACE_VERSION", "0.4.0"),
		Web: WebConfig{
			WebAppURL:                envStr("WEB_APP_URL", ""),
			AdditionalAllowedOrigins: envList("ADDITIONAL_ALLOWED_ORIGINS"),
			OriginValidationMode:     envStr("ORIGIN_VALIDATION_MODE", "block"),
			CookieDomain:             envStr("COOKIE_DOMAIN", ""),
			SecureCookies:            envBool("PAGESPACE_SECURE_COOKIES", false),
		},
		Auth: AuthConfig{
			TokenSecret:  envStr("PAGESPACE_TOKEN_SECRET", ""),
			CSRFSecret:   envStr("PAGESPACE_CSRF_SECRET", ""),
			CSRFTokenTTL: envDur("PAGESPACE_CSRF_TTL", 24*time.Hour),
			SessionTTL:   envDur("PAGESPACE_SESSION_TTL", 7*24*time.Hour),
			CronSecret:   envStr("CRON_SECRET", ""),
		},
		Provider: ProviderConfig{
			DefaultKey:                envStr("PAGESPACE_DEFAULT_PROVIDER_KEY", ""),
			DefaultBackend:            envStr("PAGESPACE_DEFAULT_PROVIDER_BACKEND", "glm"),
			OpenRouterRefreshInterval: envDur("PAGESPACE_OPENROUTER_REFRESH", time.Hour),
		},
		Processor: ProcessorConfig{
			URL:             envStr("PROCESSOR_URL", "http://localhost:3001"),
			FileStoragePath: envStr("FILE_STORAGE_PATH", ""),
			Timeout:         envDur("PAGESPACE_PROCESSOR_TIMEOUT", 120*time.Second),
		},
		Uploads: UploadConfig{
			MemoryHighWatermarkPct: envFloat("PAGESPACE_MEMORY_HIGH_WATERMARK", 90),
			TierSlots: map[string]int64{
				"free": int64(envInt("PAGESPACE_UPLOAD_SLOTS_FREE", 2)),
				"pro":  int64(envInt("PAGESPACE_UPLOAD_SLOTS_PRO", 5)),
			},
			DefaultTier: envStr("PAGESPACE_DEFAULT_TIER", "free"),
		},
		Caches: CacheConfig{
			TreeTTL:    envDur("PAGESPACE_TREE_CACHE_TTL", 5*time.Minute),
			AgentTTL:   envDur("PAGESPACE_AGENT_CACHE_TTL", 5*time.Minute),
			MaxEntries: envInt("PAGESPACE_CACHE_MAX_ENTRIES", 1024),
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", false),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "pagespace-gateway"),
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDur(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
