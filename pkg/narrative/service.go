// Package narrative generates and caches plain-language explanations of a
// household's calculation results using an external LLM.
package narrative

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/acacalc/acacalc/pkg/cache"
	"github.com/acacalc/acacalc/pkg/cachekey"
	"github.com/acacalc/acacalc/pkg/config"
	"github.com/acacalc/acacalc/pkg/metrics"
	"github.com/acacalc/acacalc/pkg/models"
	"github.com/acacalc/acacalc/pkg/router"
)

var (
	// ErrNotConfigured is returned when no provider is configured.
	ErrNotConfigured = errors.New("narrative generator not configured")
	// ErrUnavailable wraps provider failures once the chain is exhausted.
	ErrUnavailable = errors.New("narrative generator unavailable")
)

// Link is one provider/model pair in the fallback chain.
type Link struct {
	Provider Provider
	Model    string
}

// Options tunes a Service.
type Options struct {
	MaxTokens int
	// Timeout bounds each provider attempt.
	Timeout time.Duration
	// RateLimit is generations per second across all callers; zero
	// disables limiting.
	RateLimit   float64
	Burst       int
	KeyRounding float64
	Logger      *zap.Logger
	Metrics     *metrics.Collector
}

// Response is a served narrative.
type Response struct {
	Key     string
	Payload []byte
	Cached  bool
}

// Service answers /explain requests.
type Service struct {
	chain       []Link
	store       *cache.Store
	limiter     *rate.Limiter
	maxTokens   int
	timeout     time.Duration
	granularity float64
	logger      *zap.Logger
	metrics     *metrics.Collector
}

// New creates a Service over an explicit chain. An empty chain is allowed;
// Explain then fails with ErrNotConfigured on a cache miss.
func New(chain []Link, store *cache.Store, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 2000
	}
	if opts.KeyRounding <= 0 {
		opts.KeyRounding = 1
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return &Service{
		chain:       chain,
		store:       store,
		limiter:     limiter,
		maxTokens:   opts.MaxTokens,
		timeout:     opts.Timeout,
		granularity: opts.KeyRounding,
		logger:      opts.Logger.With(zap.String("component", "narrative")),
		metrics:     opts.Metrics,
	}
}

// NewFromConfig resolves the provider chain from cfg.
func NewFromConfig(cfg config.NarrativeConfig, store *cache.Store, logger *zap.Logger, m *metrics.Collector) (*Service, error) {
	opts := Options{
		MaxTokens:   cfg.MaxTokens,
		Timeout:     cfg.Timeout,
		RateLimit:   cfg.RateLimit,
		Burst:       cfg.Burst,
		KeyRounding: cfg.KeyRounding,
		Logger:      logger,
		Metrics:     m,
	}
	if len(cfg.Providers) == 0 {
		return New(nil, store, opts), nil
	}

	routes, err := router.New(cfg).Resolve()
	if err != nil {
		return nil, err
	}
	client := &http.Client{}
	chain := make([]Link, 0, len(routes))
	for _, r := range routes {
		p, err := NewProvider(r.Provider, client)
		if err != nil {
			return nil, err
		}
		chain = append(chain, Link{Provider: p, Model: r.Model})
	}
	return New(chain, store, opts), nil
}

// Configured reports whether any provider is available.
func (s *Service) Configured() bool { return len(s.chain) > 0 }

// Key returns the cache key for req.
func (s *Service) Key(req models.NarrativeRequest) string {
	return cachekey.Narrative(req, s.granularity)
}

// Explain returns the serialized narrative for req. Failures are never
// cached.
func (s *Service) Explain(ctx context.Context, req models.NarrativeRequest) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	key := s.Key(req)
	if entry, ok := s.store.Get(ctx, key, models.KindNarrative); ok {
		return &Response{Key: key, Payload: entry.Data, Cached: true}, nil
	}
	if !s.Configured() {
		return nil, ErrNotConfigured
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	text, err := s.generate(ctx, Prompt(req))
	if err != nil {
		return nil, err
	}
	result, err := Parse(text)
	if err != nil {
		s.logger.Warn("unparseable narrative", zap.String("key", key), zap.Error(err))
		return nil, err
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode narrative: %w", err)
	}
	s.store.Set(ctx, key, models.KindNarrative, payload)
	return &Response{Key: key, Payload: payload}, nil
}

// generate walks the chain until a provider answers or a non-retryable
// error occurs.
func (s *Service) generate(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for _, link := range s.chain {
		text, err := s.attempt(ctx, link, prompt)
		s.metrics.NarrativeCall(link.Provider.Name(), err)
		if err == nil {
			return text, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		lastErr = err

		var pe *ProviderError
		timedOut := errors.Is(err, context.DeadlineExceeded)
		if timedOut || (errors.As(err, &pe) && pe.Retryable) {
			s.logger.Warn("narrative provider failed, trying next",
				zap.String("provider", link.Provider.Name()), zap.Error(err))
			continue
		}
		break
	}
	if errors.Is(lastErr, ErrMalformed) {
		return "", lastErr
	}
	return "", fmt.Errorf("%w: %w", ErrUnavailable, lastErr)
}

func (s *Service) attempt(ctx context.Context, link Link, prompt string) (string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return link.Provider.Generate(ctx, link.Model, prompt, s.maxTokens)
}

// ErrorMessage renders err for clients.
func ErrorMessage(err error) string {
	switch {
	case models.IsValidationError(err):
		return err.Error()
	case errors.Is(err, ErrNotConfigured):
		return err.Error()
	case errors.Is(err, ErrMalformed):
		return "Failed to parse AI response: " + err.Error()
	}
	return "Error generating explanation: " + err.Error()
}
