// Package libretranslate translates text through a LibreTranslate server's
// POST /translate endpoint.
package libretranslate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"captioner/internal/language"
	"captioner/internal/services"
)

const (
	defaultBaseURL = "https://libretranslate.com"
	defaultTimeout = 60 * time.Second
	stageName      = "libretranslate"
)

// Config describes the LibreTranslate server.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client is a subtitle translator backed by LibreTranslate.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for requests.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// New builds a client for cfg.
func New(cfg Config, opts ...Option) *Client {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	c := &Client{cfg: cfg, httpClient: &http.Client{Timeout: cfg.Timeout}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name identifies the backend in logs and health reports.
func (c *Client) Name() string { return "libretranslate" }

type translateRequest struct {
	Q      string `json:"q"`
	Source string `json:"source"`
	Target string `json:"target"`
	Format string `json:"format"`
	APIKey string `json:"api_key,omitempty"`
}

type translateResponse struct {
	TranslatedText string `json:"translatedText"`
	Error          string `json:"error"`
}

// Translate renders text in target, letting the server detect the source language.
func (c *Client) Translate(ctx context.Context, text, target string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return text, nil
	}
	code := language.Base(target)
	if code == "" {
		return "", services.Wrap(services.ErrValidation, stageName, "translate", fmt.Sprintf("unsupported target language %q", target), nil)
	}
	body, err := json.Marshal(translateRequest{Q: text, Source: "auto", Target: code, Format: "text", APIKey: c.cfg.APIKey})
	if err != nil {
		return "", services.Wrap(services.ErrTranslation, stageName, "encode request", "", err)
	}

	var decoded translateResponse
	if err := c.post(ctx, "/translate", body, &decoded); err != nil {
		return "", err
	}
	translated := strings.TrimSpace(decoded.TranslatedText)
	if translated == "" {
		return "", services.Wrap(services.ErrTranslation, stageName, "translate", "server returned empty text", nil)
	}
	return translated, nil
}

// HealthCheck verifies the server answers its language listing.
func (c *Client) HealthCheck(ctx context.Context) error {
	endpoint, err := url.JoinPath(c.cfg.BaseURL, "languages")
	if err != nil {
		return services.Wrap(services.ErrConfiguration, stageName, "health", c.cfg.BaseURL, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, stageName, "health", endpoint, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTranslation, stageName, "health", "", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return services.Wrap(services.ErrTranslation, stageName, "health", fmt.Sprintf("http %d", resp.StatusCode), nil)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body []byte, out *translateResponse) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return services.Wrap(services.ErrConfiguration, stageName, "build request", c.cfg.BaseURL, err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTranslation, stageName, "request", "", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return services.Wrap(services.ErrTranslation, stageName, "read response", "", err)
	}
	if err := json.Unmarshal(raw, out); err != nil && resp.StatusCode < http.StatusMultipleChoices {
		return services.Wrap(services.ErrTranslation, stageName, "decode response", "", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		detail := strings.TrimSpace(out.Error)
		if detail == "" {
			detail = strings.TrimSpace(string(raw))
		}
		return services.Wrap(services.ErrTranslation, stageName, "request", fmt.Sprintf("http %d: %s", resp.StatusCode, detail), nil)
	}
	return nil
}
