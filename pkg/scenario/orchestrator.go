package scenario

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/acacalc/acacalc/pkg/household"
	"github.com/acacalc/acacalc/pkg/metrics"
	"github.com/acacalc/acacalc/pkg/models"
)

// ErrBaseline wraps any failure of the current-law computation. Without a
// baseline the request cannot be answered.
var ErrBaseline = errors.New("baseline calculation failed")

// DefaultConcurrency bounds in-flight reform computations per request.
const DefaultConcurrency = 3

// Config configures an Orchestrator.
type Config struct {
	Concurrency int
	Household   household.Options
}

// Orchestrator runs the baseline, fans the reforms out to a bounded pool
// and assembles the result.
type Orchestrator struct {
	runner      *Runner
	concurrency int
	household   household.Options
	logger      *zap.Logger
	metrics     *metrics.Collector
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(runner *Runner, cfg Config, logger *zap.Logger, m *metrics.Collector) *Orchestrator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		runner:      runner,
		concurrency: cfg.Concurrency,
		household:   cfg.Household,
		logger:      logger.With(zap.String("component", "orchestrator")),
		metrics:     m,
	}
}

// Compute produces the result for req. progress, if non-nil, is called
// with models.StepSetup, StepBaseline, StepReforms and StepFinalizing as each
// stage starts. A failed reform is replaced by zeros and listed in
// FailedReforms; a failed baseline or a cancelled ctx fails the call.
func (o *Orchestrator) Compute(ctx context.Context, req models.CalculationRequest, progress func(step string)) (*models.CalculationResult, error) {
	if progress == nil {
		progress = func(string) {}
	}

	progress(models.StepSetup)
	sit := household.Build(req, o.household)

	progress(models.StepBaseline)
	base, err := o.runner.Baseline(ctx, sit)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", ErrBaseline, err)
	}

	progress(models.StepReforms)
	ids := o.runner.Catalogue().IDs()
	outcomes := make([]Outcome, len(ids))
	length := len(base.Income)

	var g errgroup.Group
	g.SetLimit(o.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				outcomes[i] = Outcome{ReformID: id, Err: err}
				return nil
			}
			outcomes[i] = o.runner.Run(ctx, sit, id, req.Selected(id), length)
			return nil
		})
	}
	// Tasks record failures in outcomes and always return nil; the group
	// only bounds concurrency.
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	progress(models.StepFinalizing)
	result := &models.CalculationResult{
		Income:   base.Income,
		Baseline: base.PTC,
		Reforms:  make(map[string][]float64, len(ids)),
		Medicaid: base.Medicaid,
		CHIP:     base.CHIP,
		FPL:      base.FPL,
		SLCSP:    base.SLCSP,
	}
	for _, out := range outcomes {
		if out.Failed() {
			o.logger.Warn("reform calculation failed, returning zeros",
				zap.String("reform", out.ReformID), zap.Error(out.Err))
			o.metrics.DegradedReform(out.ReformID)
			result.Reforms[out.ReformID] = make([]float64, length)
			result.FailedReforms = append(result.FailedReforms, out.ReformID)
			continue
		}
		result.Reforms[out.ReformID] = out.Values
	}
	return result, nil
}
