// Package enginetest provides an in-memory engine for tests.
package enginetest

import (
	"context"
	"sync"
	"time"

	"github.com/acacalc/acacalc/pkg/engine"
)

// Baseline constants returned by Fake.
const (
	FPL   = 15650
	SLCSP = 6000
)

// Fake is a deterministic engine.Engine. Baseline requests get an income
// sweep of Points values; reform requests get the baseline PTC curve
// shifted by a per-scenario offset.
type Fake struct {
	// Points is the sweep length. Zero means 5.
	Points int
	// Errors makes calls for the named scenario fail.
	Errors map[string]error
	// Delay is how long each call takes; it honors ctx cancellation.
	Delay time.Duration
	// Lengths overrides the returned PTC length per scenario.
	Lengths map[string]int

	mu          sync.Mutex
	calls       map[string]int
	inFlight    int
	maxInFlight int
}

// Calculate implements engine.Engine.
func (f *Fake) Calculate(ctx context.Context, req *engine.Request) (engine.Result, error) {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[req.Scenario]++
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := f.Errors[req.Scenario]; err != nil {
		return nil, err
	}

	n := f.Points
	if n == 0 {
		n = 5
	}
	ptcLen := n
	if l, ok := f.Lengths[req.Scenario]; ok {
		ptcLen = l
	}

	if req.Reform == nil {
		income := make([]float64, n)
		ptc := make([]float64, ptcLen)
		medicaid := make([]float64, n)
		chip := make([]float64, n)
		slcsp := make([]float64, n)
		fpg := make([]float64, n)
		for i := range income {
			income[i] = float64(i) * 1000
			medicaid[i] = float64(max(0, 2-i)) * 500
			slcsp[i] = SLCSP
			fpg[i] = FPL
		}
		for i := range ptc {
			ptc[i] = float64(max(0, 4-i)) * 100
		}
		return engine.Result{
			"employment_income": income,
			"aca_ptc":           ptc,
			"medicaid":          medicaid,
			"chip":              chip,
			"slcsp":             slcsp,
			"tax_unit_fpg":      fpg,
		}, nil
	}

	offset := float64(len(req.Reform)) * 10
	ptc := make([]float64, ptcLen)
	for i := range ptc {
		ptc[i] = float64(max(0, 4-i))*100 + offset
	}
	return engine.Result{"aca_ptc": ptc}, nil
}

// Calls returns how many times scenario was requested.
func (f *Fake) Calls(scenario string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[scenario]
}

// TotalCalls returns the number of engine calls made.
func (f *Fake) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

// MaxInFlight returns the peak number of concurrent calls observed.
func (f *Fake) MaxInFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInFlight
}

var _ engine.Engine = (*Fake)(nil)
