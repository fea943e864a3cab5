// Package client provides an HTTP and WebSocket client for the Pluisje server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/raphaelgruber/pluisje-go/internal/api"
)

// ErrUnauthorized is returned when the session is missing or expired.
var ErrUnauthorized = errors.New("not logged in")

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.Status, e.Message)
}

// Client talks to one Pluisje server and keeps its session cookie.
// It is safe for concurrent use.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// New creates a new client.
// If baseURL is empty, uses PLUISJE_SERVER_URL env var or defaults to localhost:5000.
// Timeout can be configured via PLUISJE_CLIENT_TIMEOUT env var (default 2m for completion calls).
func New(baseURL string) (*Client, error) {
	if baseURL == "" {
		baseURL = os.Getenv("PLUISJE_SERVER_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:5000"
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}

	timeout := 2 * time.Minute
	if t := os.Getenv("PLUISJE_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	return &Client{
		baseURL: u,
		httpClient: &http.Client{
			Jar:     jar,
			Timeout: timeout,
			// Redirects carry the login outcome; inspect them instead of following.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}, nil
}

func (c *Client) url(path string) string {
	return c.baseURL.String() + path
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.url(path), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set(api.HeaderRequestedWith, api.XMLHttpRequest)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	return resp, nil
}

// doJSON posts in (or GETs when in is nil) and decodes the JSON answer into out.
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	resp, err := c.do(ctx, method, path, contentType, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := checkStatus(resp.StatusCode, data); err != nil {
		return err
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

func checkStatus(status int, body []byte) error {
	if status == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if status >= 200 && status < 300 {
		return nil
	}
	var e api.ErrorResponse
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return &APIError{Status: status, Message: e.Error}
	}
	return &APIError{Status: status, Message: strings.TrimSpace(string(body))}
}

var flashPattern = regexp.MustCompile(`<div class="flash flash-\w+">([^<]*)</div>`)

// Login starts a session. A rejected login returns an APIError carrying
// the message the login page shows.
func (c *Client) Login(ctx context.Context, email, password string) error {
	form := url.Values{"email": {email}, "password": {password}}
	resp, err := c.do(ctx, http.MethodPost, api.PathLogin, "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusSeeOther {
		return &APIError{Status: resp.StatusCode, Message: "unexpected login response"}
	}
	if resp.Header.Get("Location") == "/" {
		return nil
	}

	msg := "login rejected"
	if page, err := c.page(ctx, api.PathLogin); err == nil {
		if m := flashPattern.FindStringSubmatch(page); m != nil {
			msg = html.UnescapeString(m[1])
		}
	}
	return &APIError{Status: http.StatusUnauthorized, Message: msg}
}

func (c *Client) page(ctx context.Context, path string) (string, error) {
	resp, err := c.do(ctx, http.MethodGet, path, "", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	return string(data), nil
}

// Logout ends the session.
func (c *Client) Logout(ctx context.Context) error {
	return c.redirectCall(ctx, api.PathLogout)
}

// Reset clears the server-side conversation window. Stored history is kept.
func (c *Client) Reset(ctx context.Context) error {
	return c.redirectCall(ctx, api.PathReset)
}

func (c *Client) redirectCall(ctx context.Context, path string) error {
	resp, err := c.do(ctx, http.MethodGet, path, "", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusSeeOther {
		return nil
	}
	return checkStatus(resp.StatusCode, data)
}

// Generate sends one prompt and returns the reply.
func (c *Client) Generate(ctx context.Context, prompt string) (*api.GenerateResponse, error) {
	var out api.GenerateResponse
	if err := c.doJSON(ctx, http.MethodPost, api.PathGenerate, api.GenerateRequest{Prompt: prompt}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GenerateImage sends one image prompt and returns the image URL.
func (c *Client) GenerateImage(ctx context.Context, prompt string) (string, error) {
	var out api.ImageResponse
	if err := c.doJSON(ctx, http.MethodPost, api.PathGenerateImage, api.GenerateRequest{Prompt: prompt}, &out); err != nil {
		return "", err
	}
	return out.ImageURL, nil
}

// Stats returns the server's runtime statistics.
func (c *Client) Stats(ctx context.Context) (*api.StatsResponse, error) {
	var out api.StatsResponse
	if err := c.doJSON(ctx, http.MethodGet, api.PathStats, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health checks that the server is up.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, api.PathHealth, "", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return checkStatus(resp.StatusCode, data)
}

// Stream sends one prompt over the stream socket and calls onChunk for each
// piece of the reply as it arrives. Return an error from onChunk to abort.
// The final done event carries the full reply.
func (c *Client) Stream(ctx context.Context, prompt string, onChunk func(chunk string) error) (*api.StreamEvent, error) {
	u := *c.baseURL
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path += api.PathStream

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		Jar:              c.httpClient.Jar,
	}
	header := http.Header{api.HeaderRequestedWith: {api.XMLHttpRequest}}
	conn, resp, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("websocket connect: %w", err)
	}
	defer resp.Body.Close()

	// Track connection state for proper cleanup
	var mu sync.Mutex
	closed := false
	closeConn := func() {
		mu.Lock()
		defer mu.Unlock()
		if !closed {
			closed = true
			conn.Close()
		}
	}
	defer closeConn()

	if err := conn.WriteJSON(api.GenerateRequest{Prompt: prompt}); err != nil {
		return nil, fmt.Errorf("send prompt: %w", err)
	}

	// Handle context cancellation in a separate goroutine
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			closeConn()
		case <-done:
		}
	}()

	for {
		var ev api.StreamEvent
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("read message: %w", err)
		}

		switch ev.Type {
		case api.EventChunk:
			if ev.Content != "" {
				if err := onChunk(ev.Content); err != nil {
					return nil, err
				}
			}
		case api.EventDone:
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return &ev, nil
		case api.EventError:
			return nil, &APIError{Status: http.StatusInternalServerError, Message: ev.Error}
		default:
			// Ignore unknown message types
			continue
		}
	}
}
