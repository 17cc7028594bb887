package scenario

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acacalc/acacalc/pkg/engine/enginetest"
	"github.com/acacalc/acacalc/pkg/household"
	"github.com/acacalc/acacalc/pkg/metrics"
	"github.com/acacalc/acacalc/pkg/models"
	"github.com/acacalc/acacalc/pkg/reform"
)

func newOrchestrator(fake *enginetest.Fake, concurrency int, m *metrics.Collector) *Orchestrator {
	runner := NewRunner(fake, reform.Default(), 2026, m)
	return NewOrchestrator(runner, Config{Concurrency: concurrency, Household: household.DefaultOptions()}, nil, m)
}

func texasRequest() models.CalculationRequest {
	req := models.NewCalculationRequest()
	req.AgeHead = 35
	req.State = "TX"
	req.County = "Harris County"
	return req
}

func TestRunner_UnselectedSkipsEngine(t *testing.T) {
	fake := &enginetest.Fake{}
	r := NewRunner(fake, reform.Default(), 2026, nil)
	sit := household.Build(texasRequest(), household.DefaultOptions())

	out := r.Run(context.Background(), sit, models.Reform700FPL, false, 7)

	assert.False(t, out.Failed())
	assert.Equal(t, make([]float64, 7), out.Values)
	assert.Equal(t, 0, fake.TotalCalls())
}

func TestRunner_SelectedCallsEngineOnce(t *testing.T) {
	fake := &enginetest.Fake{}
	r := NewRunner(fake, reform.Default(), 2026, nil)
	sit := household.Build(texasRequest(), household.DefaultOptions())

	out := r.Run(context.Background(), sit, models.ReformIRA, true, 5)

	require.False(t, out.Failed())
	assert.Len(t, out.Values, 5)
	assert.Equal(t, 1, fake.Calls(models.ReformIRA))
}

func TestRunner_LengthMismatchIsFailure(t *testing.T) {
	fake := &enginetest.Fake{Lengths: map[string]int{models.ReformIRA: 3}}
	r := NewRunner(fake, reform.Default(), 2026, nil)
	sit := household.Build(texasRequest(), household.DefaultOptions())

	out := r.Run(context.Background(), sit, models.ReformIRA, true, 5)
	assert.True(t, out.Failed())
	assert.Nil(t, out.Values)
}

func TestRunner_UnknownReform(t *testing.T) {
	r := NewRunner(&enginetest.Fake{}, reform.Default(), 2026, nil)
	out := r.Run(context.Background(), nil, "nope", true, 5)
	assert.True(t, out.Failed())
}

func TestRunner_BaselineScalars(t *testing.T) {
	r := NewRunner(&enginetest.Fake{Points: 9}, reform.Default(), 2026, nil)
	base, err := r.Baseline(context.Background(), household.Build(texasRequest(), household.DefaultOptions()))
	require.NoError(t, err)

	assert.Len(t, base.Income, 9)
	assert.Equal(t, float64(enginetest.FPL), base.FPL)
	assert.Equal(t, float64(enginetest.SLCSP), base.SLCSP)
}

func TestRunner_BaselineLengthMismatch(t *testing.T) {
	fake := &enginetest.Fake{Lengths: map[string]int{BaselineID: 2}}
	r := NewRunner(fake, reform.Default(), 2026, nil)
	_, err := r.Baseline(context.Background(), household.Build(texasRequest(), household.DefaultOptions()))
	assert.Error(t, err)
}

func TestCompute_ShortCircuitsUnselected(t *testing.T) {
	fake := &enginetest.Fake{}
	o := newOrchestrator(fake, 3, nil)

	res, err := o.Compute(context.Background(), texasRequest(), nil)
	require.NoError(t, err)

	assert.Equal(t, 1, fake.Calls(BaselineID))
	assert.Equal(t, 1, fake.Calls(models.ReformIRA))
	assert.Equal(t, 0, fake.Calls(models.Reform700FPL))
	assert.Equal(t, 0, fake.Calls(models.ReformAdditionalBracket))
	assert.Equal(t, 0, fake.Calls(models.ReformSimplifiedBracket))

	assert.Len(t, res.Reforms, 4)
	for _, id := range []string{models.Reform700FPL, models.ReformAdditionalBracket, models.ReformSimplifiedBracket} {
		assert.Equal(t, make([]float64, len(res.Income)), res.Reforms[id], id)
	}
	assert.NotEqual(t, make([]float64, len(res.Income)), res.Reforms[models.ReformIRA])
	assert.False(t, res.Degraded())
}

func TestCompute_PartialFailureIsolation(t *testing.T) {
	fake := &enginetest.Fake{Errors: map[string]error{models.Reform700FPL: errors.New("engine exploded")}}
	m := metrics.New()
	o := newOrchestrator(fake, 3, m)

	req := texasRequest()
	req.Show700FPL = true
	req.ShowAdditionalBracket = true

	res, err := o.Compute(context.Background(), req, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{models.Reform700FPL}, res.FailedReforms)
	assert.Equal(t, make([]float64, len(res.Income)), res.Reforms[models.Reform700FPL])
	assert.NotEqual(t, make([]float64, len(res.Income)), res.Reforms[models.ReformIRA])
	assert.NotEqual(t, make([]float64, len(res.Income)), res.Reforms[models.ReformAdditionalBracket])
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DegradedReforms.WithLabelValues(models.Reform700FPL)))
}

func TestCompute_BaselineFailureFailsRequest(t *testing.T) {
	fake := &enginetest.Fake{Errors: map[string]error{BaselineID: errors.New("bad county")}}
	o := newOrchestrator(fake, 3, nil)

	res, err := o.Compute(context.Background(), texasRequest(), nil)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrBaseline)
	assert.Contains(t, err.Error(), "bad county")
	assert.Equal(t, 0, fake.Calls(models.ReformIRA))
}

func TestCompute_BoundedConcurrency(t *testing.T) {
	fake := &enginetest.Fake{Delay: 20 * time.Millisecond}
	o := newOrchestrator(fake, 2, nil)

	req := texasRequest()
	for _, id := range reform.Default().IDs() {
		req.Select(id, true)
	}
	_, err := o.Compute(context.Background(), req, nil)
	require.NoError(t, err)

	assert.Equal(t, 5, fake.TotalCalls())
	assert.LessOrEqual(t, fake.MaxInFlight(), 2)
}

func TestCompute_ProgressOrder(t *testing.T) {
	o := newOrchestrator(&enginetest.Fake{}, 3, nil)

	var steps []string
	_, err := o.Compute(context.Background(), texasRequest(), func(step string) {
		steps = append(steps, step)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{models.StepSetup, models.StepBaseline, models.StepReforms, models.StepFinalizing}, steps)
}

func TestCompute_Cancelled(t *testing.T) {
	fake := &enginetest.Fake{Delay: time.Second}
	o := newOrchestrator(fake, 3, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	res, err := o.Compute(ctx, texasRequest(), nil)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrBaseline)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}
