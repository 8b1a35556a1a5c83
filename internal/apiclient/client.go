package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"sitekit/internal/kvstore"
)

var (
	ErrRequestTimeout = errors.New("request timeout")
	ErrTransport      = errors.New("transport error")
	ErrDecode         = errors.New("decode response")
)

// HTTPError es una respuesta con status >= 400.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("api http error: status=%d", e.StatusCode)
}

// IsUnavailable reporta si el error significa que el backend no respondio
// (timeout, red o 5xx) y corresponde usar el store local.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRequestTimeout) || errors.Is(err, ErrTransport) {
		return true
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= http.StatusInternalServerError
	}
	return false
}

// StatusCode devuelve el status HTTP del error, o 0 si no es un HTTPError.
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}

// Client es un wrapper de fetch con timeout por request y fallback al key-value store.
// Sin reintentos ni backoff.
type Client struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
	logger  *zap.Logger
	store   *kvstore.Store
	token   string
}

// NewClient construye un cliente apuntando al backend REST del sitio.
func NewClient(baseURL string, timeout time.Duration, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		client:  httpClient,
		logger:  logger,
	}
}

// WithStore devuelve una copia que usa store como fallback.
func (c *Client) WithStore(store *kvstore.Store) *Client {
	cp := *c
	cp.store = store
	return &cp
}

// WithToken devuelve una copia que envia el bearer token.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		bodyBytes, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return c.classify(ctx, method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return c.classify(ctx, method, path, err)
	}

	if resp.StatusCode >= 400 {
		c.logger.Warn("api error status",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
		)
		return &HTTPError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return nil
}

func (c *Client) classify(ctx context.Context, method, path string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		c.logger.Warn("api request timeout",
			zap.String("method", method),
			zap.String("path", path),
			zap.Duration("timeout", c.timeout),
		)
		return fmt.Errorf("%w: %s %s after %s", ErrRequestTimeout, method, path, c.timeout)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	c.logger.Warn("api transport error", zap.String("path", path), zap.Error(err))
	return fmt.Errorf("%w: %v", ErrTransport, err)
}
