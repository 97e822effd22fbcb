package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rendis/lendflow/pkg/schema"
)

// HTTPConfig configures the outbound HTTP calls made by email and webhook actions.
type HTTPConfig struct {
	MaxResponseBody int64
	DefaultTimeout  time.Duration
	Client          *http.Client
}

const (
	defaultMaxResponseBody = 1024 * 1024 // 1MB
	defaultHTTPTimeout     = 30 * time.Second
)

func (c HTTPConfig) withDefaults() HTTPConfig {
	if c.MaxResponseBody <= 0 {
		c.MaxResponseBody = defaultMaxResponseBody
	}
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = defaultHTTPTimeout
	}
	if c.Client == nil {
		c.Client = &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()}
	}
	return c
}

// postResponse is the part of a response the actions inspect.
type postResponse struct {
	StatusCode int
	Body       []byte
}

func (r postResponse) ok() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// postJSON sends body as JSON to url under the configured per-call timeout.
// Transport failures and timeouts are returned as errors; any HTTP status is
// returned to the caller to judge.
func postJSON(ctx context.Context, cfg HTTPConfig, url string, headers map[string]string, body any) (postResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return postResponse{}, schema.NewError(schema.ErrCodeExecution, "failed to marshal request body").WithCause(err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, cfg.DefaultTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return postResponse{}, schema.NewErrorf(schema.ErrCodeExecution, "invalid request: %v", err).WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := cfg.Client.Do(req)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return postResponse{}, schema.NewErrorf(schema.ErrCodeTimeout,
				"request timed out after %s", cfg.DefaultTimeout).WithCause(err)
		}
		return postResponse{}, schema.NewErrorf(schema.ErrCodeExecution, "request failed: %v", err).WithCause(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, cfg.MaxResponseBody))
	if err != nil {
		return postResponse{}, schema.NewError(schema.ErrCodeExecution, "failed to read response body").WithCause(err)
	}
	return postResponse{StatusCode: resp.StatusCode, Body: respBody}, nil
}
