// Package api is the JSON client of the storefront REST backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/dtroode/storefront-client/internal/model"
)

const defaultResponseBodyLimit int64 = 10 << 20 // 10 MiB

// HTTPDoer executes HTTP requests; *http.Client satisfies it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Paths that never carry a bearer credential and never trigger a refresh.
const (
	PathLogin          = "/auth/login/"
	PathRegister       = "/auth/register/"
	PathForgotPassword = "/auth/forgot-password/"
	PathResetPassword  = "/auth/reset-password/"
	PathRefresh        = "/auth/refresh/"
)

var publicPaths = []string{PathLogin, PathRegister, PathForgotPassword, PathResetPassword, PathRefresh}

// IsPublicPath reports whether a request path targets an unauthenticated endpoint.
func IsPublicPath(path string) bool {
	for _, p := range publicPaths {
		if strings.HasSuffix(path, p) {
			return true
		}
	}
	return false
}

type Client struct {
	baseURL              string
	http                 HTTPDoer
	MaxResponseBodyBytes int64
}

func NewClient(baseURL string, doer HTTPDoer) *Client {
	if doer == nil {
		doer = http.DefaultClient
	}
	return &Client{
		baseURL:              strings.TrimRight(baseURL, "/"),
		http:                 doer,
		MaxResponseBodyBytes: defaultResponseBodyLimit,
	}
}

// BaseURL returns the API root every path is resolved against.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// do sends in as JSON (when non-nil) and decodes a 2xx body into out (when non-nil).
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return transportError(method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.MaxResponseBodyBytes+1))
	if err != nil {
		return &model.NetworkError{Op: method + " " + path, Err: fmt.Errorf("failed to read response body: %w", err)}
	}
	if int64(len(data)) > c.MaxResponseBodyBytes {
		return fmt.Errorf("response body exceeds limit of %d bytes", c.MaxResponseBodyBytes)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp.StatusCode, path, data)
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// transportError keeps session and context failures distinguishable from
// plain network loss.
func transportError(method, path string, err error) error {
	switch {
	case errors.Is(err, model.ErrRefreshFailed),
		errors.Is(err, model.ErrWaiterQueueFull),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("failed to %s %s: %w", method, path, unwrapURLError(err))
	}
	return &model.NetworkError{Op: method + " " + path, Err: unwrapURLError(err)}
}

func unwrapURLError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		return urlErr.Err
	}
	return err
}
