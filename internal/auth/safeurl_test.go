package auth

import "testing"

func TestIsSafeReturnURL(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		// Accepted: empty and plain same-site paths.
		{"", true},
		{"/", true},
		{"/dashboard", true},
		{"/drive/abc/page/def?tab=files", true},
		{"/a/b%20c", true},

		// Protocol-relative.
		{"//evil.com", false},
		{"//evil.com/path", false},
		{`/\evil.com`, false},

		// URL-encoded protocol-relative.
		{"/%2fevil.com", false},
		{"/%2Fevil.com", false},
		{"/%5cevil.com", false},
		{"/%5Cevil.com", false},

		// Absolute URLs and schemes.
		{"https://evil.com", false},
		{"http://evil.com", false},
		{"javascript:alert(1)", false},
		{"data:text/html,x", false},

		// Not a path at all.
		{"evil.com", false},
		{"dashboard", false},

		// Decodes into something dangerous.
		{"/%252fevil.com", false},
	}
	for _, tt := range tests {
		if got := IsSafeReturnURL(tt.in); got != tt.want {
			t.Errorf("IsSafeReturnURL(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
