// Package remotewhisper transcribes audio through an OpenAI-compatible
// /v1/audio/transcriptions endpoint (OpenAI, Groq, faster-whisper-server,
// whisper.cpp server) using the verbose_json response format.
package remotewhisper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"captioner/internal/language"
	"captioner/internal/services"
	"captioner/internal/subtitles"
	"captioner/internal/transcription"
)

const (
	EngineName   = "remote"
	DefaultModel = "whisper-1"
	stageName    = "remote-whisper"
)

// Config describes the remote endpoint.
type Config struct {
	URL     string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client is a transcription.Engine backed by an HTTP endpoint.
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
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = DefaultModel
	}
	c := &Client{cfg: cfg, httpClient: &http.Client{Timeout: cfg.Timeout}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name identifies the engine in transcript records.
func (c *Client) Name() string { return EngineName }

// Model returns the configured remote model.
func (c *Client) Model() string { return c.cfg.Model }

// Load satisfies transcription.Loader. The model lives on the server, so
// loading only checks that an endpoint is configured.
func (c *Client) Load(context.Context) (transcription.Engine, error) {
	if strings.TrimSpace(c.cfg.URL) == "" {
		return nil, services.Wrap(services.ErrConfiguration, stageName, "load", "transcription.remote_url is not set", nil)
	}
	return c, nil
}

type verboseResponse struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

// Transcribe uploads audioPath and converts the verbose_json response.
func (c *Client) Transcribe(ctx context.Context, audioPath, lang string) (transcription.Output, error) {
	var out transcription.Output
	body, contentType, err := c.buildBody(audioPath, lang)
	if err != nil {
		return out, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, body)
	if err != nil {
		return out, services.Wrap(services.ErrConfiguration, stageName, "build request", c.cfg.URL, err)
	}
	req.Header.Set("Content-Type", contentType)
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return out, services.Wrap(services.ErrTranscription, stageName, "request", "", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return out, services.Wrap(services.ErrTranscription, stageName, "read response", "", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return out, services.Wrap(services.ErrTranscription, stageName, "request",
			fmt.Sprintf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))), nil)
	}

	var decoded verboseResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return out, services.Wrap(services.ErrTranscription, stageName, "decode response", "invalid verbose_json", err)
	}

	out.Engine = EngineName
	out.Model = c.cfg.Model
	out.Text = strings.TrimSpace(decoded.Text)
	out.Raw = raw
	// verbose_json reports the language as a name ("english").
	if code, err := language.Canonical(decoded.Language); err == nil {
		out.Language = code
	} else {
		out.Language = strings.TrimSpace(decoded.Language)
	}
	out.Segments = make([]subtitles.Segment, 0, len(decoded.Segments))
	for _, seg := range decoded.Segments {
		out.Segments = append(out.Segments, subtitles.Segment{
			Start: seg.Start,
			End:   seg.End,
			Text:  strings.TrimSpace(seg.Text),
		})
	}
	if len(out.Segments) == 0 && out.Text != "" {
		out.Segments = append(out.Segments, subtitles.Segment{Text: out.Text})
	}
	return out, nil
}

func (c *Client) buildBody(audioPath, lang string) (io.Reader, string, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, "", services.Wrap(services.ErrTranscription, stageName, "open audio", filepath.Base(audioPath), err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fields := map[string]string{
		"model":           c.cfg.Model,
		"response_format": "verbose_json",
	}
	if code := language.Base(lang); code != "" {
		fields["language"] = code
	}
	for key, value := range fields {
		if err := mw.WriteField(key, value); err != nil {
			return nil, "", services.Wrap(services.ErrTranscription, stageName, "encode request", key, err)
		}
	}
	fw, err := mw.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, "", services.Wrap(services.ErrTranscription, stageName, "encode request", "file", err)
	}
	if _, err := io.Copy(fw, f); err != nil {
		return nil, "", services.Wrap(services.ErrTranscription, stageName, "encode request", "file", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", services.Wrap(services.ErrTranscription, stageName, "encode request", "", err)
	}
	return &body, mw.FormDataContentType(), nil
}
