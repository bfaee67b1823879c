// Package attachments validates the file parts of incoming user messages
// before anything reaches a provider: count and size caps, a strict image
// MIME allow-list, and a magic-byte cross-check against the declared type.
package attachments

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/pagespace/pagespace/gateway/pkg/models"
)

const (
	// MaxFileParts caps file parts per message.
	MaxFileParts = 5
	// MaxDataURLBytes caps the length of each part's data URL.
	MaxDataURLBytes = 4 << 20
)

// allowedMIMEs is the image allow-list. SVG is deliberately absent: it can
// carry scripts.
var allowedMIMEs = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/webp": true,
	"image/gif":  true,
}

// Result reports the outcome of validating one message's attachments.
type Result struct {
	Valid         bool
	FilePartCount int
	Reason        string
}

func invalid(reason string) Result {
	return Result{Valid: false, Reason: reason}
}

// ValidateMessage checks every file part of a user message. The first
// violation stops validation and its reason is user-facing.
func ValidateMessage(parts []models.MessagePart) Result {
	var files []models.FilePart
	for _, p := range parts {
		if p.Type == models.PartFile && p.File != nil {
			files = append(files, *p.File)
		}
	}

	if len(files) > MaxFileParts {
		return invalid(fmt.Sprintf("Too many attachments: %d (maximum %d)", len(files), MaxFileParts))
	}

	for _, f := range files {
		if err := validateFilePart(f); err != nil {
			return invalid(err.Error())
		}
	}

	return Result{Valid: true, FilePartCount: len(files)}
}

func validateFilePart(f models.FilePart) error {
	if len(f.URL) > MaxDataURLBytes {
		return fmt.Errorf("Attachment %q exceeds the 4 MiB limit", displayName(f))
	}
	if !strings.HasPrefix(f.URL, "data:") {
		return fmt.Errorf("Attachment %q must be a data URL", displayName(f))
	}

	declared, payload, err := parseDataURL(f.URL)
	if err != nil {
		return fmt.Errorf("Attachment %q has a malformed data URL", displayName(f))
	}
	if !allowedMIMEs[declared] {
		return fmt.Errorf("Attachment %q has unsupported type %q (allowed: PNG, JPEG, WEBP, GIF)", displayName(f), declared)
	}
	if !magicBytesMatch(declared, payload) {
		return fmt.Errorf("Attachment %q content does not match its declared type (magic bytes)", displayName(f))
	}
	return nil
}

func displayName(f models.FilePart) string {
	if f.Filename != "" {
		return f.Filename
	}
	return "attachment"
}

// parseDataURL extracts the declared MIME and decodes enough payload for the
// magic-byte check.
func parseDataURL(u string) (mime string, head []byte, err error) {
	rest := strings.TrimPrefix(u, "data:")
	comma := strings.IndexByte(rest, ',')
	if comma < 0 {
		return "", nil, fmt.Errorf("no comma separator")
	}
	meta, data := rest[:comma], rest[comma+1:]

	base64Encoded := false
	for i, field := range strings.Split(meta, ";") {
		if i == 0 {
			mime = strings.ToLower(strings.TrimSpace(field))
			continue
		}
		if strings.EqualFold(field, "base64") {
			base64Encoded = true
		}
	}
	if mime == "" {
		return "", nil, fmt.Errorf("no media type")
	}

	// Only the first handful of bytes matter; 32 source characters cover
	// every signature on the allow-list.
	if !base64Encoded {
		return mime, []byte(data), nil
	}
	if len(data) > 32 {
		data = data[:32]
	}
	decoded, err := base64.StdEncoding.WithPadding(base64.NoPadding).DecodeString(strings.TrimRight(data, "="))
	if err != nil {
		return "", nil, err
	}
	return mime, decoded, nil
}

// magicBytesMatch cross-checks the payload's signature against the declared
// MIME.
func magicBytesMatch(mime string, head []byte) bool {
	switch mime {
	case "image/png":
		return bytes.HasPrefix(head, []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A})
	case "image/jpeg":
		return bytes.HasPrefix(head, []byte{0xFF, 0xD8, 0xFF})
	case "image/gif":
		return bytes.HasPrefix(head, []byte("GIF87a")) || bytes.HasPrefix(head, []byte("GIF89a"))
	case "image/webp":
		return len(head) >= 12 && bytes.HasPrefix(head, []byte("RIFF")) && bytes.Equal(head[8:12], []byte("WEBP"))
	}
	return false
}
