// Package engine is the client for the external tax-benefit computation
// engine. The engine is treated as a pure but expensive function from a
// household situation and optional reform overlay to variable arrays.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/acacalc/acacalc/pkg/household"
	"github.com/acacalc/acacalc/pkg/reform"
	"github.com/acacalc/acacalc/pkg/upstream"
)

// Variable names a requested output and the entity it is aggregated to.
type Variable struct {
	Name  string `json:"name"`
	MapTo string `json:"map_to,omitempty"`
}

// Request is one engine evaluation. A nil Reform means current law.
type Request struct {
	// Scenario labels the request for logs and metrics; it is not sent.
	Scenario  string               `json:"-"`
	Situation *household.Situation `json:"situation"`
	Reform    reform.Overlay       `json:"reform"`
	Period    int                  `json:"period"`
	Variables []Variable           `json:"variables"`
}

// Result maps variable names to their values across the income sweep.
type Result map[string][]float64

// Engine evaluates requests.
type Engine interface {
	Calculate(ctx context.Context, req *Request) (Result, error)
}

// ErrEngine marks failures reported by (or talking to) the engine.
var ErrEngine = errors.New("engine error")

// Error is an engine failure with the HTTP status when one was received.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("engine error (status %d): %s", e.StatusCode, e.Message)
	}
	return "engine error: " + e.Message
}

func (e *Error) Is(target error) bool { return target == ErrEngine }

// Config configures the HTTP client.
type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// Client calls the engine over HTTP.
type Client struct {
	url    string
	apiKey string
	http   *http.Client
}

// NewClient returns a Client. A zero Timeout means no client-side limit.
func NewClient(cfg Config) *Client {
	return &Client{
		url:    cfg.URL,
		apiKey: cfg.APIKey,
		http:   &http.Client{Timeout: cfg.Timeout},
	}
}

type response struct {
	Result Result `json:"result"`
	Error  string `json:"error"`
}

// Calculate POSTs req to {url}/calculate.
func (c *Client) Calculate(ctx context.Context, req *Request) (Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode engine request: %w", err)
	}

	var headers map[string]string
	if c.apiKey != "" {
		headers = map[string]string{"Authorization": "Bearer " + c.apiKey}
	}

	res, err := upstream.Do(ctx, c.http, c.url, "/calculate", headers, body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &Error{Message: err.Error()}
	}
	if !res.OK() {
		return nil, &Error{StatusCode: res.StatusCode, Message: upstream.Snippet(res.Body)}
	}

	var out response
	if err := json.Unmarshal(res.Body, &out); err != nil {
		return nil, &Error{StatusCode: res.StatusCode, Message: "decode response: " + err.Error()}
	}
	if out.Error != "" {
		return nil, &Error{StatusCode: res.StatusCode, Message: out.Error}
	}
	for _, v := range req.Variables {
		if _, ok := out.Result[v.Name]; !ok {
			return nil, &Error{StatusCode: res.StatusCode, Message: "missing variable " + v.Name}
		}
	}
	return out.Result, nil
}

var _ Engine = (*Client)(nil)
