// Package apiclient is a typed client for the captioner HTTP API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/gorilla/websocket"

	"captioner/internal/api"
	"captioner/internal/jobs"
)

// ErrAPIUnavailable reports that no daemon answered at the configured address.
var ErrAPIUnavailable = errors.New("captioner API unavailable")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api returned status %d", e.Code)
	}
	return fmt.Sprintf("api returned status %d: %s", e.Code, e.Message)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound
}

// Client talks to a running daemon.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

// New builds a client for bind ("host:port" or a URL). An empty bind yields
// a nil client whose calls fail with ErrAPIUnavailable.
func New(bind, token string) (*Client, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, nil
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, err
	}
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""

	return &Client{
		base:  base,
		token: strings.TrimSpace(token),
		// No timeout: uploads of large media may take a while.
		http: &http.Client{},
	}, nil
}

// BaseURL returns the daemon root URL.
func (c *Client) BaseURL() string {
	if c == nil {
		return ""
	}
	return c.base.String()
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := c.base.ResolveReference(&url.URL{Path: path})
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// do sends req and decodes a JSON body into out. A 404 carrying a job view is
// decoded as well so callers can show the not-found status.
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return readStatusError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func readStatusError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var payload api.ErrorResponse
	if err := json.Unmarshal(data, &payload); err == nil && payload.Error != "" {
		return &StatusError{Code: resp.StatusCode, Message: payload.Error}
	}
	var view jobs.View
	if err := json.Unmarshal(data, &view); err == nil && view.Status != "" {
		return &StatusError{Code: resp.StatusCode, Message: view.Status}
	}
	return &StatusError{Code: resp.StatusCode, Message: strings.TrimSpace(string(data))}
}

// Submit uploads path for transcription. language may be empty.
func (c *Client) Submit(ctx context.Context, path, language string) (api.SubmitResponse, error) {
	if c == nil {
		return api.SubmitResponse{}, ErrAPIUnavailable
	}
	file, err := os.Open(path)
	if err != nil {
		return api.SubmitResponse{}, err
	}
	defer file.Close()

	// Stream the multipart body instead of buffering the whole file.
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		err := func() error {
			if strings.TrimSpace(language) != "" {
				if err := mw.WriteField("language", language); err != nil {
					return err
				}
			}
			part, err := mw.CreateFormFile("file", filepath.Base(path))
			if err != nil {
				return err
			}
			if _, err := io.Copy(part, file); err != nil {
				return err
			}
			return mw.Close()
		}()
		_ = pw.CloseWithError(err)
	}()

	req, err := c.newRequest(ctx, http.MethodPost, "/api/transcriptions", nil, pr)
	if err != nil {
		_ = pr.Close()
		return api.SubmitResponse{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out api.SubmitResponse
	err = c.do(req, &out)
	_ = pr.Close()
	return out, err
}

// Translate requests a translation of a finished transcript.
func (c *Client) Translate(ctx context.Context, fileID, target string) (api.TranslationResponse, error) {
	if c == nil {
		return api.TranslationResponse{}, ErrAPIUnavailable
	}
	body, err := json.Marshal(api.TranslationRequest{FileID: fileID, TargetLanguage: target})
	if err != nil {
		return api.TranslationResponse{}, err
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/api/translations", nil, bytes.NewReader(body))
	if err != nil {
		return api.TranslationResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	var out api.TranslationResponse
	return out, c.do(req, &out)
}

// Status fetches the current view of a job.
func (c *Client) Status(ctx context.Context, id string) (jobs.View, error) {
	if c == nil {
		return jobs.View{}, ErrAPIUnavailable
	}
	req, err := c.newRequest(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(id), nil, nil)
	if err != nil {
		return jobs.View{}, err
	}
	var out jobs.View
	return out, c.do(req, &out)
}

// Jobs lists every tracked job.
func (c *Client) Jobs(ctx context.Context) ([]jobs.View, error) {
	if c == nil {
		return nil, ErrAPIUnavailable
	}
	req, err := c.newRequest(ctx, http.MethodGet, "/api/jobs", nil, nil)
	if err != nil {
		return nil, err
	}
	var out api.JobListResponse
	return out.Jobs, c.do(req, &out)
}

// Artifacts lists catalogued artifacts; sourceID optionally filters.
func (c *Client) Artifacts(ctx context.Context, sourceID string) (api.ArtifactListResponse, error) {
	if c == nil {
		return api.ArtifactListResponse{}, ErrAPIUnavailable
	}
	query := url.Values{}
	if strings.TrimSpace(sourceID) != "" {
		query.Set("source", sourceID)
	}
	req, err := c.newRequest(ctx, http.MethodGet, "/api/artifacts", query, nil)
	if err != nil {
		return api.ArtifactListResponse{}, err
	}
	var out api.ArtifactListResponse
	return out, c.do(req, &out)
}

// Health fetches daemon readiness.
func (c *Client) Health(ctx context.Context) (api.Health, error) {
	if c == nil {
		return api.Health{}, ErrAPIUnavailable
	}
	req, err := c.newRequest(ctx, http.MethodGet, "/api/health", nil, nil)
	if err != nil {
		return api.Health{}, err
	}
	var out api.Health
	return out, c.do(req, &out)
}

// Download copies the subtitle for id to w. format is "srt" (default) or "vtt".
func (c *Client) Download(ctx context.Context, id, format string, w io.Writer) error {
	if c == nil {
		return ErrAPIUnavailable
	}
	query := url.Values{}
	if format = strings.TrimSpace(format); format != "" {
		query.Set("format", format)
	}
	req, err := c.newRequest(ctx, http.MethodGet, "/api/download/"+url.PathEscape(id), query, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return readStatusError(resp)
	}
	_, err = io.Copy(w, resp.Body)
	return err
}

// Watch follows a job over the websocket endpoint, calling fn for every view
// until the job is terminal or unknown. It returns the last view received.
func (c *Client) Watch(ctx context.Context, id string, fn func(jobs.View)) (jobs.View, error) {
	if c == nil {
		return jobs.View{}, ErrAPIUnavailable
	}
	u := *c.base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/api/jobs/" + url.PathEscape(id) + "/watch"

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil && resp.StatusCode >= 400 {
			defer resp.Body.Close()
			return jobs.View{}, readStatusError(resp)
		}
		return jobs.View{}, err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	var last jobs.View
	for {
		var view jobs.View
		if err := conn.ReadJSON(&view); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return last, nil
			}
			if ctx.Err() != nil {
				return last, ctx.Err()
			}
			return last, err
		}
		last = view
		if fn != nil {
			fn(view)
		}
		if !view.Found() || view.State.Terminal() {
			return last, nil
		}
	}
}

// IsAPIUnavailable reports whether err means no daemon is listening.
func IsAPIUnavailable(err error) bool {
	if err == nil {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	var opErr *net.OpError
	return errors.Is(err, ErrAPIUnavailable) || errors.As(err, &opErr)
}
