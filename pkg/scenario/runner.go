// Package scenario runs the baseline and reform computations for one
// household and joins them into a single result.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/acacalc/acacalc/pkg/engine"
	"github.com/acacalc/acacalc/pkg/household"
	"github.com/acacalc/acacalc/pkg/metrics"
	"github.com/acacalc/acacalc/pkg/reform"
)

// BaselineID labels the current-law scenario in logs and metrics.
const BaselineID = "baseline"

// Engine variable names.
const (
	VarIncome   = "employment_income"
	VarPTC      = "aca_ptc"
	VarMedicaid = "medicaid"
	VarCHIP     = "chip"
	VarSLCSP    = "slcsp"
	VarFPG      = "tax_unit_fpg"
)

var baselineVariables = []engine.Variable{
	{Name: VarIncome, MapTo: "household"},
	{Name: VarPTC, MapTo: "household"},
	{Name: VarMedicaid, MapTo: "household"},
	{Name: VarCHIP, MapTo: "household"},
	{Name: VarSLCSP, MapTo: "household"},
	{Name: VarFPG},
}

var reformVariables = []engine.Variable{{Name: VarPTC, MapTo: "household"}}

// Baseline is the current-law evaluation of a household.
type Baseline struct {
	Income   []float64
	PTC      []float64
	Medicaid []float64
	CHIP     []float64
	// FPL is the poverty guideline for the household, SLCSP the benchmark
	// premium. Both are constant across the income sweep.
	FPL   float64
	SLCSP float64
}

// Outcome is the result of one reform scenario. Exactly one of Values and
// Err is set.
type Outcome struct {
	ReformID string
	Values   []float64
	Err      error
}

// Failed reports whether the scenario errored.
func (o Outcome) Failed() bool { return o.Err != nil }

// Runner evaluates single scenarios against the engine. It holds no
// per-request state and is safe for concurrent use.
type Runner struct {
	engine    engine.Engine
	catalogue *reform.Catalogue
	period    int
	metrics   *metrics.Collector
}

// NewRunner creates a Runner.
func NewRunner(e engine.Engine, catalogue *reform.Catalogue, period int, m *metrics.Collector) *Runner {
	return &Runner{engine: e, catalogue: catalogue, period: period, metrics: m}
}

// Catalogue returns the reforms this runner knows.
func (r *Runner) Catalogue() *reform.Catalogue { return r.catalogue }

// Baseline evaluates current law.
func (r *Runner) Baseline(ctx context.Context, sit *household.Situation) (*Baseline, error) {
	res, err := r.call(ctx, BaselineID, &engine.Request{
		Situation: sit,
		Period:    r.period,
		Variables: baselineVariables,
	})
	if err != nil {
		return nil, err
	}

	income := res[VarIncome]
	if len(income) == 0 {
		return nil, errors.New("engine returned an empty income sweep")
	}
	for _, name := range []string{VarPTC, VarMedicaid, VarCHIP} {
		if len(res[name]) != len(income) {
			return nil, fmt.Errorf("%s has %d points, want %d", name, len(res[name]), len(income))
		}
	}
	if len(res[VarSLCSP]) == 0 || len(res[VarFPG]) == 0 {
		return nil, errors.New("engine returned no benchmark premium or poverty guideline")
	}

	fpg := res[VarFPG]
	return &Baseline{
		Income:   income,
		PTC:      res[VarPTC],
		Medicaid: res[VarMedicaid],
		CHIP:     res[VarCHIP],
		FPL:      fpg[len(fpg)/2],
		SLCSP:    slices.Max(res[VarSLCSP]),
	}, nil
}

// Run evaluates one reform. An unselected reform yields length zeros
// without calling the engine. A result whose length differs from length is
// reported as a failure.
func (r *Runner) Run(ctx context.Context, sit *household.Situation, reformID string, selected bool, length int) Outcome {
	out := Outcome{ReformID: reformID}
	if !selected {
		out.Values = make([]float64, length)
		return out
	}

	ref, ok := r.catalogue.Get(reformID)
	if !ok {
		out.Err = fmt.Errorf("unknown reform %q", reformID)
		return out
	}

	res, err := r.call(ctx, reformID, &engine.Request{
		Situation: sit,
		Reform:    ref.Overlay,
		Period:    r.period,
		Variables: reformVariables,
	})
	if err != nil {
		out.Err = err
		return out
	}

	values := res[VarPTC]
	if len(values) != length {
		out.Err = fmt.Errorf("reform %s returned %d points, want %d", reformID, len(values), length)
		return out
	}
	out.Values = values
	return out
}

func (r *Runner) call(ctx context.Context, scenario string, req *engine.Request) (engine.Result, error) {
	req.Scenario = scenario
	start := time.Now()
	res, err := r.engine.Calculate(ctx, req)
	r.metrics.EngineCall(scenario, time.Since(start), err)
	return res, err
}
