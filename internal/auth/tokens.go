// Package auth implements request authentication for the PageSpace gateway:
// prefix-classified bearer tokens (ps_sess_*, mcp_*), the session cookie,
// keyed token hashing, CSRF token issuance/validation, and the session
// cookie helpers.
package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
	"time"

	"github.com/pagespace/pagespace/gateway/pkg/models"
)

// TokenKind classifies a presented bearer token by prefix.
type TokenKind string

const (
	TokenKindSession TokenKind = "session"
	TokenKindMCP     TokenKind = "mcp"
	TokenKindUnknown TokenKind = "unknown"
)

// ClassifyToken inspects the token prefix. It never touches the store.
func ClassifyToken(token string) TokenKind {
	switch {
	case strings.HasPrefix(token, models.MCPTokenPrefix):
		return TokenKindMCP
	case strings.HasPrefix(token, models.SessionTokenPrefix):
		return TokenKindSession
	default:
		return TokenKindUnknown
	}
}

// HashToken computes the keyed hash under which opaque tokens are stored.
// The same hash is applied at issuance and at validation; raw token values
// never reach the database.
func HashToken(secret, token string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}

// NewSessionToken mints a fresh opaque session token value.
func NewSessionToken() string {
	return models.SessionTokenPrefix + randomOpaque(32)
}

// NewMCPToken mints a fresh opaque MCP token value.
func NewMCPToken() string {
	return models.MCPTokenPrefix + randomOpaque(32)
}

func randomOpaque(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms.
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}

// ── Service tokens ──────────────────────────────────────────
//
// Short-lived HMAC-signed credentials for internal calls (the upload
// pipeline presents one to the file processor with a files:write scope).
// Format: base64(JSON payload) + "." + base64(HMAC-SHA256 signature).

type servicePayload struct {
	Subject string   `json:"sub"`
	Scopes  []string `json:"scopes"`
	Exp     int64    `json:"exp"`
}

// NewServiceToken creates a signed service token for internal calls.
func NewServiceToken(secret []byte, subject string, scopes []string, ttl time.Duration) (string, error) {
	payload := servicePayload{
		Subject: subject,
		Scopes:  scopes,
		Exp:     time.Now().Add(ttl).Unix(),
	}
	return signPayload(secret, payload)
}

// VerifyServiceToken validates a service token and returns its scopes.
func VerifyServiceToken(secret []byte, token string) ([]string, error) {
	var payload servicePayload
	if err := verifyPayload(secret, token, &payload); err != nil {
		return nil, err
	}
	if payload.Exp > 0 && time.Now().Unix() > payload.Exp {
		return nil, errTokenExpired
	}
	return payload.Scopes, nil
}
