// Package upstream holds the JSON-over-HTTP request helper shared by the
// engine client and the narrative providers.
package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"
)

// Result holds the response from a single upstream attempt.
type Result struct {
	StatusCode int
	Body       []byte
	Header     http.Header
}

// OK reports a 2xx status.
func (r *Result) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Do POSTs body to baseURL+path and reads the whole response. Transport
// errors are returned as-is; non-2xx statuses are not errors here.
func Do(ctx context.Context, client *http.Client, baseURL, path string, headers map[string]string, body []byte) (*Result, error) {
	target, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream URL: %w", err)
	}
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(target.String(), "/")+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return &Result{
		StatusCode: resp.StatusCode,
		Body:       respBody,
		Header:     resp.Header,
	}, nil
}

// IsRetryable returns true if the error or status code warrants trying the
// next route. Context cancellation is never retryable.
func IsRetryable(err error, statusCode int) bool {
	if err != nil {
		return !errors.Is(err, context.Canceled)
	}
	return statusCode >= 500 || statusCode == http.StatusTooManyRequests
}

// Snippet trims an error body for logs and error messages.
func Snippet(body []byte) string {
	const max = 256
	s := strings.TrimSpace(string(body))
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
