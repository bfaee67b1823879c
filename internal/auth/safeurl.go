package auth

import (
	"net/url"
	"regexp"
	"strings"
)

var schemePattern = regexp.MustCompile(`(?i)^[a-z][a-z0-9+.-]*:`)

// IsSafeReturnURL is the open-redirect gate for post-login return paths.
// It accepts only same-site relative paths: empty input (caller falls back
// to the default landing page) or a path starting with a single "/".
//
// Rejected shapes, before and after URL-decoding:
//   - protocol-relative: "//evil.com", "/\evil.com"
//   - encoded protocol-relative: "/%2f...", "/%5c..."
//   - absolute URLs and bare schemes: "https://...", "javascript:..."
func IsSafeReturnURL(raw string) bool {
	if raw == "" {
		return true
	}
	return safePath(raw) && safeDecoded(raw)
}

func safePath(s string) bool {
	if !strings.HasPrefix(s, "/") {
		return false
	}
	if len(s) >= 2 && (s[1] == '/' || s[1] == '\\') {
		return false
	}
	if schemePattern.MatchString(s) {
		return false
	}
	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, "/%2f") || strings.HasPrefix(lower, "/%5c") {
		return false
	}
	return true
}

// safeDecoded re-checks after percent-decoding so "%2F%2Fevil" and friends
// cannot smuggle a protocol-relative URL past the raw check.
func safeDecoded(s string) bool {
	decoded, err := url.QueryUnescape(s)
	if err != nil {
		// Undecodable input stays as-is in redirects, and the raw form
		// already passed.
		return true
	}
	if decoded == s {
		return true
	}
	return safePath(decoded)
}
