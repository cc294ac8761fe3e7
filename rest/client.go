// Package rest wraps the relay's HTTP endpoints for programs that need
// history, search, or account management outside the websocket session.
package rest

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"

	"community-hub/domain"
	"community-hub/observability"
)

var validate = validator.New()

// Client provides REST API access to a community relay.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a new REST API client.
// baseURL should be the base URL of the API, e.g., "http://localhost:8080/api".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SetHTTPClient allows setting a custom HTTP client.
func (c *Client) SetHTTPClient(client *http.Client) {
	if client != nil {
		c.httpClient = client
	}
}

// SetToken sets the JWT token for authenticated requests.
func (c *Client) SetToken(token string) {
	c.token = token
}

// Token returns the JWT token currently in use, handy for handing the same
// identity to a websocket client.
func (c *Client) Token() string {
	return c.token
}

// Authentication endpoints

// Register creates a new account and returns a JWT token. The request is
// validated locally first to save a round trip on obviously broken input.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*TokenResponse, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid register request: %w", err)
	}
	var resp TokenResponse
	if err := c.post(ctx, "/register", req, &resp, false); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Login authenticates with existing credentials and returns a JWT token.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*TokenResponse, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid login request: %w", err)
	}
	var resp TokenResponse
	if err := c.post(ctx, "/login", req, &resp, false); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Message endpoints

// History retrieves stored messages for a community, newest first.
// limit: maximum number of messages, 0 lets the relay apply its own cap.
// before: if non-nil, only messages strictly older are returned.
func (c *Client) History(ctx context.Context, community domain.CommunityID, limit int, before *time.Time) ([]domain.Message, error) {
	values := url.Values{}
	values.Set("community", string(community))
	if limit > 0 {
		values.Set("limit", strconv.Itoa(limit))
	}
	if before != nil {
		values.Set("before", before.Format(time.RFC3339Nano))
	}

	var messages []domain.Message
	if err := c.get(ctx, "/history?"+values.Encode(), &messages, true); err != nil {
		return nil, err
	}
	return messages, nil
}

// Search runs a free-text query against the message index. The query uses
// the /find syntax, e.g. `midterm deadline --community cs-101 --limit 20`.
func (c *Client) Search(ctx context.Context, query string) ([]domain.Message, error) {
	values := url.Values{}
	values.Set("q", query)

	var messages []domain.Message
	if err := c.get(ctx, "/search?"+values.Encode(), &messages, true); err != nil {
		return nil, err
	}
	return messages, nil
}

// Stats returns the relay's current telemetry snapshot.
func (c *Client) Stats(ctx context.Context) (*observability.MonitoringStats, error) {
	var stats observability.MonitoringStats
	if err := c.get(ctx, "/stats", &stats, false); err != nil {
		return nil, err
	}
	return &stats, nil
}

// AttachImage reads a local file, checks by magic bytes sniffing that it
// really is an image, and returns a data URI suitable for
// domain.SendRequest.Images. The extension is not trusted.
func AttachImage(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}

	mime := mimetype.Detect(data)
	if !strings.HasPrefix(mime.String(), "image/") {
		return "", fmt.Errorf("%s is %s, only images can be attached", path, mime)
	}

	return fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(data)), nil
}

// Helper methods

func (c *Client) post(ctx context.Context, path string, body, dest any, requireAuth bool) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if requireAuth && c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	return c.do(req, dest)
}

func (c *Client) get(ctx context.Context, path string, dest any, requireAuth bool) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	if requireAuth && c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	return c.do(req, dest)
}

func (c *Client) do(req *http.Request, dest any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp ErrorResponse
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
			return fmt.Errorf("api error (status %d): %s", resp.StatusCode, errResp.Error)
		}
		return fmt.Errorf("http error: %s (status %d)", string(body), resp.StatusCode)
	}

	if dest != nil {
		if err := json.Unmarshal(body, dest); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}
