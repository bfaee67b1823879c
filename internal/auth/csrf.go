package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"
)

// CSRF tokens are double-submit values bound to a session: the token embeds
// a timestamp and nonce, and its signature is an HMAC over
// (sessionId, timestamp, nonce). Validation re-derives the signature with
// the presenting caller's sessionId, so a token minted for one session is
// useless with any other session's cookie.
//
// Wire format: base64(timestamp) + "." + base64(nonce) + "." + base64(sig).

var (
	// ErrCSRFInvalid covers malformed tokens, signature mismatches, and
	// expiry. Callers must not distinguish these cases.
	ErrCSRFInvalid = errors.New("csrf token invalid")
)

// IssueCSRFToken mints a token bound to sessionID, valid for the configured
// TTL from now.
func IssueCSRFToken(secret []byte, sessionID string) string {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		panic(err)
	}
	nonceB64 := base64.RawURLEncoding.EncodeToString(nonce)
	sig := csrfSign(secret, sessionID, ts, nonceB64)
	return base64.RawURLEncoding.EncodeToString([]byte(ts)) + "." + nonceB64 + "." +
		base64.RawURLEncoding.EncodeToString(sig)
}

// ValidateCSRFToken re-derives the signature for sessionID and compares in
// constant time, then enforces the TTL. Every failure returns
// ErrCSRFInvalid.
func ValidateCSRFToken(secret []byte, sessionID, token string, ttl time.Duration) error {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return ErrCSRFInvalid
	}
	tsRaw, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return ErrCSRFInvalid
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return ErrCSRFInvalid
	}

	expected := csrfSign(secret, sessionID, string(tsRaw), parts[1])
	if !hmac.Equal(sig, expected) {
		return ErrCSRFInvalid
	}

	issued, err := strconv.ParseInt(string(tsRaw), 10, 64)
	if err != nil {
		return ErrCSRFInvalid
	}
	if time.Since(time.Unix(issued, 0)) > ttl {
		return ErrCSRFInvalid
	}
	return nil
}

func csrfSign(secret []byte, sessionID, ts, nonce string) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(sessionID))
	mac.Write([]byte{0})
	mac.Write([]byte(ts))
	mac.Write([]byte{0})
	mac.Write([]byte(nonce))
	return mac.Sum(nil)
}
