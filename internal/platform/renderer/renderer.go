// Package renderer is the client of the document rendering service that turns
// invoice markup into a downloadable PDF.
package renderer

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var ErrEmptyURL = errors.New("renderer returned no url")

// Request is the payload sent to the rendering service.
type Request struct {
	FileName string `json:"file_name"`
	Markup   string `json:"markup"`
}

// Renderer converts markup to a document and returns its public URL.
type Renderer interface {
	Render(ctx context.Context, req Request) (string, error)
}

type response struct {
	URL   string `json:"url"`
	Error string `json:"error,omitempty"`
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// Client posts JSON to the rendering service. Each call is bounded by the
// configured timeout.
type Client struct {
	endpoint string
	apiKey   string
	timeout  time.Duration
	http     *http.Client
}

func NewClient(endpoint, apiKey string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	c := &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		timeout:  timeout,
		http:     &http.Client{Timeout: timeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SignPayload returns the hex HMAC-SHA256 of payload keyed by secret.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) Render(ctx context.Context, req Request) (string, error) {
	if c.endpoint == "" {
		return "", errors.New("renderer url is not configured")
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal render request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/render", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build render request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("X-Renderer-Signature", "sha256="+SignPayload(payload, c.apiKey))
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("call renderer: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read renderer response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("renderer returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out response
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode renderer response: %w", err)
	}
	if out.URL == "" {
		return "", ErrEmptyURL
	}
	return out.URL, nil
}
