// Package client talks to a running SimpleML server.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"simpleml/internal/api"

	"github.com/go-resty/resty/v2"
)

// ErrServer is returned for any non-2xx response.
var ErrServer = errors.New("server error")

type Client struct {
	base string
	rest *resty.Client
}

func New(base string, timeout time.Duration) *Client {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(30 * time.Second) // default fallback
	}
	return &Client{base: strings.TrimRight(base, "/"), rest: r}
}

// Predict uploads a roster and returns the screening result.
func (c *Client) Predict(ctx context.Context, filename string, roster io.Reader) (*api.PredictResponse, error) {
	resp := &api.PredictResponse{}
	apiErr := &api.ErrorResponse{}

	r, err := c.rest.R().
		SetContext(ctx).
		SetFileReader("file", filename, roster).
		SetResult(resp).
		SetError(apiErr).
		Post(c.base + "/api/predict")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if r.IsError() {
		return nil, statusError(r, apiErr)
	}
	return resp, nil
}

// Download fetches the labelled CSV of a session.
func (c *Client) Download(ctx context.Context, sessionID string) ([]byte, error) {
	r, err := c.rest.R().
		SetContext(ctx).
		SetPathParam("id", sessionID).
		Get(c.base + "/sessions/{id}/download")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if r.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d, body: %s", ErrServer, r.StatusCode(), strings.TrimSpace(r.String()))
	}
	return r.Body(), nil
}

// Health reports the model the server has loaded.
func (c *Client) Health(ctx context.Context) (*api.HealthResponse, error) {
	resp := &api.HealthResponse{}
	r, err := c.rest.R().
		SetContext(ctx).
		SetResult(resp).
		Get(c.base + "/health")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if r.IsError() {
		return nil, statusError(r, nil)
	}
	return resp, nil
}

func statusError(r *resty.Response, apiErr *api.ErrorResponse) error {
	if apiErr != nil && apiErr.Error != "" {
		return fmt.Errorf("%w: status %d: %s", ErrServer, r.StatusCode(), apiErr.Error)
	}
	return fmt.Errorf("%w: status %d", ErrServer, r.StatusCode())
}
