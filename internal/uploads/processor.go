package uploads

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/pagespace/pagespace/gateway/internal/auth"
)

// ProcessResult is the processor's verdict on an ingested file.
type ProcessResult struct {
	ContentHash  string   `json:"contentHash"`
	Deduplicated bool     `json:"deduplicated"`
	Size         int64    `json:"size"`
	Jobs         []string `json:"jobs,omitempty"`
}

// ProcessorClient streams uploads to the external file processor,
// authenticated with a short-lived files:write service token.
type ProcessorClient struct {
	baseURL     string
	tokenSecret []byte
	client      *http.Client
}

func NewProcessorClient(baseURL string, tokenSecret []byte, timeout time.Duration) *ProcessorClient {
	return &ProcessorClient{
		baseURL:     baseURL,
		tokenSecret: tokenSecret,
		client:      &http.Client{Timeout: timeout},
	}
}

// Process POSTs the file body to the processor. The body is streamed
// through an io.Pipe so large files never buffer in gateway memory.
func (c *ProcessorClient) Process(ctx context.Context, filename, mimeType string, body io.Reader) (*ProcessResult, error) {
	token, err := auth.NewServiceToken(c.tokenSecret, "gateway", []string{"files:write"}, 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("mint service token: %w", err)
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", filename)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, body); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/process", pr)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	if mimeType != "" {
		req.Header.Set("X-File-Mime-Type", mimeType)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("processor request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("processor returned %d: %s", resp.StatusCode, snippet)
	}

	var result ProcessResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode processor response: %w", err)
	}
	return &result, nil
}
