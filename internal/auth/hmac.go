package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	errTokenMalformed = errors.New("malformed token: expected payload.signature")
	errTokenExpired   = errors.New("token expired")
)

// signPayload serializes payload as JSON and appends an HMAC-SHA256
// signature: base64(payload) + "." + base64(signature).
func signPayload(secret []byte, payload any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	payloadB64 := base64.RawURLEncoding.EncodeToString(raw)

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(payloadB64))
	sigB64 := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))

	return payloadB64 + "." + sigB64, nil
}

// verifyPayload checks the signature in constant time and decodes the
// payload into out.
func verifyPayload(secret []byte, token string, out any) error {
	payloadB64, sigB64, ok := splitToken(token)
	if !ok {
		return errTokenMalformed
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(payloadB64))
	expected := mac.Sum(nil)

	sig, err := base64.RawURLEncoding.DecodeString(sigB64)
	if err != nil {
		return fmt.Errorf("invalid signature encoding: %w", err)
	}
	if !hmac.Equal(sig, expected) {
		return errors.New("signature mismatch")
	}

	raw, err := base64.RawURLEncoding.DecodeString(payloadB64)
	if err != nil {
		return fmt.Errorf("invalid payload encoding: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("invalid payload JSON: %w", err)
	}
	return nil
}

// splitToken splits on the last '.' so payloads may contain dots.
func splitToken(token string) (payload, sig string, ok bool) {
	for i := len(token) - 1; i >= 0; i-- {
		if token[i] == '.' {
			return token[:i], token[i+1:], true
		}
	}
	return "", "", false
}
