// ABOUTME: Go client for the mesh HTTP API
// ABOUTME: Wraps every hub operation with typed requests and apperr errors

package client

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

	"github.com/2389/agent-mesh/internal/apperr"
	"github.com/2389/agent-mesh/internal/auth"
)

// Client talks to a mesh hub over HTTP.
type Client struct {
	baseURL string
	secret  string
	http    *http.Client
}

// New creates a client for the hub at baseURL authenticating with secret.
func New(baseURL, secret string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		secret:  secret,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// errorBody mirrors the hub's failure response shape.
type errorBody struct {
	Error string      `json:"error"`
	Code  apperr.Code `json:"code"`
}

// do issues one request and decodes the JSON response into out (when non-nil).
// Failure responses become *apperr.Error values carrying the hub's code.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(auth.HeaderAPIKey, c.secret)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var e errorBody
		if json.Unmarshal(raw, &e) == nil && e.Code != "" {
			return apperr.New(e.Code, "%s", e.Error)
		}
		// Middleware failures carry no code field; classify by status.
		return apperr.New(codeForStatus(resp.StatusCode), "%s %s: status %d", method, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

func codeForStatus(status int) apperr.Code {
	switch status {
	case http.StatusBadRequest:
		return apperr.CodeValidation
	case http.StatusUnauthorized:
		return apperr.CodeUnauthorized
	case http.StatusForbidden:
		return apperr.CodeForbidden
	case http.StatusNotFound:
		return apperr.CodeNotFound
	case http.StatusConflict:
		return apperr.CodeConflict
	default:
		return apperr.CodeInternal
	}
}

// Health reports whether the hub is up. No credential is required.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil, nil)
}
