// Package calculator serves calculation requests through the result cache,
// either as a single response or as a stream of progress events. Both paths
// share one lookup, compute and store pipeline so a cached payload is
// byte-identical to a freshly computed one.
package calculator

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/acacalc/acacalc/pkg/cache"
	"github.com/acacalc/acacalc/pkg/cachekey"
	"github.com/acacalc/acacalc/pkg/models"
)

// Computer produces a fresh result for a request.
type Computer interface {
	Compute(ctx context.Context, req models.CalculationRequest, progress func(step string)) (*models.CalculationResult, error)
}

// Response is a served calculation.
type Response struct {
	Key     string
	Payload []byte
	Cached  bool
	// FailedReforms is set for fresh results that had degraded reforms.
	FailedReforms []string
}

// Service answers calculation requests.
type Service struct {
	computer  Computer
	store     *cache.Store
	reformIDs []string
	logger    *zap.Logger
}

// New creates a Service. reformIDs fixes the reform order used in cache keys.
func New(computer Computer, store *cache.Store, reformIDs []string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		computer:  computer,
		store:     store,
		reformIDs: append([]string(nil), reformIDs...),
		logger:    logger.With(zap.String("component", "calculator")),
	}
}

// Key returns the cache key for req.
func (s *Service) Key(req models.CalculationRequest) string {
	return cachekey.Calculation(req, s.reformIDs)
}

// Calculate returns the serialized result for req, from cache when possible.
// Invalid requests return a *models.ValidationError.
func (s *Service) Calculate(ctx context.Context, req models.CalculationRequest) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	key := s.Key(req)
	if payload, ok := s.lookup(ctx, key); ok {
		return &Response{Key: key, Payload: payload, Cached: true}, nil
	}
	return s.compute(ctx, key, req, nil)
}

// Progress values and messages for each streamed step.
var stepInfo = map[string]struct {
	progress int
	message  string
}{
	models.StepCached:     {100, "Using cached results"},
	models.StepSetup:      {10, "Setting up household..."},
	models.StepBaseline:   {25, "Calculating baseline (2026)..."},
	models.StepReforms:    {50, "Calculating policy reforms..."},
	models.StepFinalizing: {90, "Finalizing results..."},
	models.StepComplete:   {100, ""},
}

func stepEvent(step string) models.ProgressEvent {
	info := stepInfo[step]
	return models.ProgressEvent{Step: step, Progress: info.progress, Message: info.message}
}

// Stream serves req as a sequence of progress events passed to emit. The
// last event is either complete, carrying the same payload Calculate would
// return, or error; never both. If emit fails (the client went away) the
// computation is cancelled and the emit error returned.
func (s *Service) Stream(ctx context.Context, req models.CalculationRequest, emit func(models.ProgressEvent) error) (*Response, error) {
	if err := req.Validate(); err != nil {
		_ = emit(models.ProgressEvent{Step: models.StepError, Error: err.Error()})
		return nil, err
	}

	key := s.Key(req)
	if payload, ok := s.lookup(ctx, key); ok {
		if err := emit(stepEvent(models.StepCached)); err != nil {
			return nil, err
		}
		done := stepEvent(models.StepComplete)
		done.Result = payload
		if err := emit(done); err != nil {
			return nil, err
		}
		return &Response{Key: key, Payload: payload, Cached: true}, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var emitErr error
	progress := func(step string) {
		if emitErr != nil {
			return
		}
		if err := emit(stepEvent(step)); err != nil {
			emitErr = err
			cancel()
		}
	}

	resp, err := s.compute(ctx, key, req, progress)
	if emitErr != nil {
		return nil, emitErr
	}
	if err != nil {
		_ = emit(models.ProgressEvent{Step: models.StepError, Error: ErrorMessage(err)})
		return nil, err
	}

	done := stepEvent(models.StepComplete)
	done.Result = resp.Payload
	if err := emit(done); err != nil {
		return nil, err
	}
	return resp, nil
}

// ErrorMessage renders err for clients.
func ErrorMessage(err error) string {
	if models.IsValidationError(err) {
		return err.Error()
	}
	return "Calculation error: " + err.Error()
}

func (s *Service) lookup(ctx context.Context, key string) ([]byte, bool) {
	entry, ok := s.store.Get(ctx, key, models.KindCalculation)
	if !ok {
		return nil, false
	}
	return entry.Data, true
}

func (s *Service) compute(ctx context.Context, key string, req models.CalculationRequest, progress func(string)) (*Response, error) {
	result, err := s.computer.Compute(ctx, req, progress)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}

	// A degraded result reflects a transient engine failure; leave the key
	// empty so the next request retries.
	if result.Degraded() {
		s.logger.Warn("not caching degraded result",
			zap.String("key", key), zap.Strings("failed_reforms", result.FailedReforms))
	} else {
		s.store.Set(ctx, key, models.KindCalculation, payload)
	}
	return &Response{Key: key, Payload: payload, FailedReforms: result.FailedReforms}, nil
}
