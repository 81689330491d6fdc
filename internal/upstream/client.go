// Package upstream provides a resilient JSON client for the upstream
// REST service: server-class failures are retried with linear backoff,
// client-class failures propagate immediately with the upstream message.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/beacon-site/apiserver/config"
)

const (
	defaultMaxRetries = 3
	defaultBaseDelay  = time.Second
	requestTimeout    = 30 * time.Second
)

// APIError carries the upstream status and message for a failed call.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("upstream: %s (status %d)", e.Message, e.StatusCode)
}

// Client issues JSON requests against the upstream base URL.
// Safe for concurrent use; backoff suspends only the calling goroutine.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
}

// ClientOption mutates client construction.
type ClientOption func(*Client)

// WithHTTPClient overrides the HTTP client used for requests.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient constructs a Client from config. Zero retry/delay values
// fall back to the defaults.
func NewClient(cfg config.UpstreamConfig, optFns ...ClientOption) *Client {
	client := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		maxRetries: cfg.MaxRetries,
		baseDelay:  cfg.BaseDelay,
	}
	if client.maxRetries <= 0 {
		client.maxRetries = defaultMaxRetries
	}
	if client.baseDelay <= 0 {
		client.baseDelay = defaultBaseDelay
	}
	for _, fn := range optFns {
		fn(client)
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: requestTimeout}
	}
	return client
}

// Get issues a GET request, decoding the response into out when non-nil.
func (c *Client) Get(ctx context.Context, path, bearer string, out any) error {
	return c.request(ctx, http.MethodGet, path, nil, bearer, out)
}

// Post issues a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body any, bearer string, out any) error {
	return c.request(ctx, http.MethodPost, path, body, bearer, out)
}

// Put issues a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body any, bearer string, out any) error {
	return c.request(ctx, http.MethodPut, path, body, bearer, out)
}

// Delete issues a DELETE request.
func (c *Client) Delete(ctx context.Context, path, bearer string, out any) error {
	return c.request(ctx, http.MethodDelete, path, nil, bearer, out)
}

func (c *Client) request(ctx context.Context, method, path string, body any, bearer string, out any) error {
	var payload []byte
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = encoded
	}

	for attempt := 0; ; attempt++ {
		status, respBody, err := c.doAttempt(ctx, method, path, payload, bearer)
		if err != nil {
			// Transport failures count as transient, same as 5xx.
			if attempt < c.maxRetries {
				if err := c.backoff(ctx, attempt); err != nil {
					return err
				}
				continue
			}
			return err
		}

		switch {
		case status >= http.StatusInternalServerError:
			if attempt < c.maxRetries {
				if err := c.backoff(ctx, attempt); err != nil {
					return err
				}
				continue
			}
			return &APIError{StatusCode: status, Message: "server error"}
		case status >= http.StatusBadRequest:
			return &APIError{StatusCode: status, Message: errorMessage(respBody, status)}
		}

		if out != nil && len(respBody) > 0 {
			if err := json.Unmarshal(respBody, out); err != nil {
				return fmt.Errorf("upstream: decode response: %w", err)
			}
		}
		return nil
	}
}

func (c *Client) doAttempt(ctx context.Context, method, path string, payload []byte, bearer string) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, respBody, nil
}

// backoff sleeps baseDelay*(attempt+1), honoring context cancellation.
func (c *Client) backoff(ctx context.Context, attempt int) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.baseDelay * time.Duration(attempt+1)):
		return nil
	}
}

func errorMessage(body []byte, status int) string {
	var parsed struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error != "" {
		return parsed.Error
	}
	return http.StatusText(status)
}
