package narrative

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/acacalc/acacalc/pkg/config"
	"github.com/acacalc/acacalc/pkg/models"
	"github.com/acacalc/acacalc/pkg/upstream"
)

// Provider generates text from a prompt.
type Provider interface {
	Name() string
	Generate(ctx context.Context, model, prompt string, maxTokens int) (string, error)
}

// ProviderError is a failed generation. Retryable errors let the chain
// move on to the next provider.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
	Retryable  bool
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return e.Provider + ": " + e.Message
}

// NewProvider builds the provider described by cfg.
func NewProvider(cfg config.ProviderConfig, client *http.Client) (Provider, error) {
	switch cfg.Type {
	case "", "anthropic":
		url := cfg.URL
		if url == "" {
			url = "https://api.anthropic.com"
		}
		return &anthropicProvider{name: cfg.Name, url: url, apiKey: cfg.APIKey, client: client}, nil
	case "openai":
		oc := openai.DefaultConfig(cfg.APIKey)
		if cfg.URL != "" {
			oc.BaseURL = strings.TrimRight(cfg.URL, "/")
		}
		if client != nil {
			oc.HTTPClient = client
		}
		return &openAIProvider{name: cfg.Name, client: openai.NewClientWithConfig(oc)}, nil
	}
	return nil, fmt.Errorf("provider %s: unknown type %q", cfg.Name, cfg.Type)
}

const anthropicVersion = "2023-06-01"

type anthropicProvider struct {
	name   string
	url    string
	apiKey string
	client *http.Client
}

func (p *anthropicProvider) Name() string { return p.name }

func (p *anthropicProvider) Generate(ctx context.Context, model, prompt string, maxTokens int) (string, error) {
	body, err := json.Marshal(models.AnthropicRequest{
		Model:     model,
		Messages:  []models.ChatMessage{{Role: "user", Content: prompt}},
		MaxTokens: maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	headers := map[string]string{
		"x-api-key":         p.apiKey,
		"anthropic-version": anthropicVersion,
	}
	res, err := upstream.Do(ctx, p.client, p.url, "/v1/messages", headers, body)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &ProviderError{Provider: p.name, Message: err.Error(), Retryable: upstream.IsRetryable(err, 0)}
	}
	if !res.OK() {
		return "", &ProviderError{
			Provider:   p.name,
			StatusCode: res.StatusCode,
			Message:    upstream.Snippet(res.Body),
			Retryable:  upstream.IsRetryable(nil, res.StatusCode),
		}
	}

	var resp models.AnthropicResponse
	if err := json.Unmarshal(res.Body, &resp); err != nil {
		return "", fmt.Errorf("%w: decode %s response: %v", ErrMalformed, p.name, err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("%w: %s returned no text", ErrMalformed, p.name)
	}
	return text, nil
}

type openAIProvider struct {
	name   string
	client *openai.Client
}

func (p *openAIProvider) Name() string { return p.name }

func (p *openAIProvider) Generate(ctx context.Context, model, prompt string, maxTokens int) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxCompletionTokens: maxTokens,
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", p.wrapError(err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("%w: %s returned no choices", ErrMalformed, p.name)
	}
	return resp.Choices[0].Message.Content, nil
}

func (p *openAIProvider) wrapError(err error) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	retryable := status == 0 || upstream.IsRetryable(nil, status)
	return &ProviderError{Provider: p.name, StatusCode: status, Message: err.Error(), Retryable: retryable}
}
