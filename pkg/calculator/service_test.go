package calculator

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acacalc/acacalc/pkg/cache"
	"github.com/acacalc/acacalc/pkg/engine/enginetest"
	"github.com/acacalc/acacalc/pkg/household"
	"github.com/acacalc/acacalc/pkg/models"
	"github.com/acacalc/acacalc/pkg/reform"
	"github.com/acacalc/acacalc/pkg/scenario"
)

type fixture struct {
	svc   *Service
	fake  *enginetest.Fake
	now   time.Time
	store *cache.Store
}

func newFixture(t *testing.T, fake *enginetest.Fake) *fixture {
	t.Helper()
	f := &fixture{fake: fake, now: time.Unix(1_700_000_000, 0)}
	cat := reform.Default()
	runner := scenario.NewRunner(fake, cat, 2026, nil)
	orch := scenario.NewOrchestrator(runner, scenario.Config{Concurrency: 3, Household: household.DefaultOptions()}, nil, nil)
	f.store = cache.New(cache.Options{
		LocalMaxEntries: 100,
		TTL:             map[models.CacheKind]time.Duration{models.KindCalculation: time.Hour},
		Now:             func() time.Time { return f.now },
	})
	f.svc = New(orch, f.store, cat.IDs(), nil)
	return f
}

func texasRequest() models.CalculationRequest {
	req := models.NewCalculationRequest()
	req.AgeHead = 35
	req.State = "TX"
	req.County = "Harris County"
	return req
}

func collect(events *[]models.ProgressEvent) func(models.ProgressEvent) error {
	return func(e models.ProgressEvent) error {
		*events = append(*events, e)
		return nil
	}
}

func steps(events []models.ProgressEvent) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Step
	}
	return out
}

func TestCalculate_CacheIdempotence(t *testing.T) {
	f := newFixture(t, &enginetest.Fake{})
	ctx := context.Background()

	first, err := f.svc.Calculate(ctx, texasRequest())
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, 2, f.fake.TotalCalls(), "baseline plus the one selected reform")

	second, err := f.svc.Calculate(ctx, texasRequest())
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Payload, second.Payload)
	assert.Equal(t, 2, f.fake.TotalCalls(), "cached call must not reach the engine")
}

func TestCalculate_ConcreteTexasScenario(t *testing.T) {
	f := newFixture(t, &enginetest.Fake{})
	req := texasRequest()
	req.ShowIRA = true
	req.Show700FPL = false

	resp, err := f.svc.Calculate(context.Background(), req)
	require.NoError(t, err)

	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(resp.Payload, &body))
	var income, ira, fpl700 []float64
	require.NoError(t, json.Unmarshal(body["income"], &income))
	require.NoError(t, json.Unmarshal(body["ptc_ira"], &ira))
	require.NoError(t, json.Unmarshal(body["ptc_700fpl"], &fpl700))

	assert.Equal(t, make([]float64, len(income)), fpl700)
	assert.Len(t, ira, len(income))
	assert.NotEqual(t, make([]float64, len(income)), ira)
}

func TestCalculate_ValidationError(t *testing.T) {
	f := newFixture(t, &enginetest.Fake{})
	req := texasRequest()
	req.State = "XX"

	_, err := f.svc.Calculate(context.Background(), req)
	assert.True(t, models.IsValidationError(err))
	assert.Equal(t, 0, f.fake.TotalCalls())
}

func TestCalculate_ExpiredEntryRecomputes(t *testing.T) {
	f := newFixture(t, &enginetest.Fake{})
	ctx := context.Background()

	_, err := f.svc.Calculate(ctx, texasRequest())
	require.NoError(t, err)

	f.now = f.now.Add(2 * time.Hour)
	resp, err := f.svc.Calculate(ctx, texasRequest())
	require.NoError(t, err)
	assert.False(t, resp.Cached)
	assert.Equal(t, 4, f.fake.TotalCalls())
}

func TestCalculate_DegradedResultNotCached(t *testing.T) {
	fake := &enginetest.Fake{Errors: map[string]error{models.ReformIRA: errors.New("timeout")}}
	f := newFixture(t, fake)
	ctx := context.Background()

	resp, err := f.svc.Calculate(ctx, texasRequest())
	require.NoError(t, err)
	assert.Equal(t, []string{models.ReformIRA}, resp.FailedReforms)
	assert.Contains(t, string(resp.Payload), `"failed_reforms":["ira"]`)

	_, ok := f.store.Get(ctx, resp.Key, models.KindCalculation)
	assert.False(t, ok)

	delete(fake.Errors, models.ReformIRA)
	resp, err = f.svc.Calculate(ctx, texasRequest())
	require.NoError(t, err)
	assert.False(t, resp.Cached)
	assert.Empty(t, resp.FailedReforms)
}

func TestCalculate_BaselineFailure(t *testing.T) {
	fake := &enginetest.Fake{Errors: map[string]error{scenario.BaselineID: errors.New("no such county")}}
	f := newFixture(t, fake)

	_, err := f.svc.Calculate(context.Background(), texasRequest())
	require.ErrorIs(t, err, scenario.ErrBaseline)
	assert.Equal(t, "Calculation error: baseline calculation failed: no such county", ErrorMessage(err))
}

func TestStream_MissEventOrder(t *testing.T) {
	f := newFixture(t, &enginetest.Fake{})

	var events []models.ProgressEvent
	resp, err := f.svc.Stream(context.Background(), texasRequest(), collect(&events))
	require.NoError(t, err)

	assert.Equal(t, []string{"setup", "baseline", "reforms", "finalizing", "complete"}, steps(events))
	assert.Equal(t, []int{10, 25, 50, 90, 100}, []int{
		events[0].Progress, events[1].Progress, events[2].Progress, events[3].Progress, events[4].Progress,
	})
	assert.Equal(t, "Setting up household...", events[0].Message)
	assert.Equal(t, string(resp.Payload), string(events[4].Result))
}

func TestStream_HitEmitsCachedThenComplete(t *testing.T) {
	f := newFixture(t, &enginetest.Fake{})
	ctx := context.Background()

	sync, err := f.svc.Calculate(ctx, texasRequest())
	require.NoError(t, err)
	calls := f.fake.TotalCalls()

	var events []models.ProgressEvent
	_, err = f.svc.Stream(ctx, texasRequest(), collect(&events))
	require.NoError(t, err)

	assert.Equal(t, []string{"cached", "complete"}, steps(events))
	assert.Equal(t, 100, events[0].Progress)
	assert.Equal(t, "Using cached results", events[0].Message)
	assert.Equal(t, string(sync.Payload), string(events[1].Result))
	assert.Equal(t, calls, f.fake.TotalCalls())
}

func TestStream_SyncAndStreamShareCache(t *testing.T) {
	f := newFixture(t, &enginetest.Fake{})
	ctx := context.Background()

	var events []models.ProgressEvent
	streamed, err := f.svc.Stream(ctx, texasRequest(), collect(&events))
	require.NoError(t, err)

	sync, err := f.svc.Calculate(ctx, texasRequest())
	require.NoError(t, err)
	assert.True(t, sync.Cached)
	assert.Equal(t, streamed.Payload, sync.Payload)
}

func TestStream_ErrorIsTerminalAndExclusive(t *testing.T) {
	fake := &enginetest.Fake{Errors: map[string]error{scenario.BaselineID: errors.New("boom")}}
	f := newFixture(t, fake)

	var events []models.ProgressEvent
	_, err := f.svc.Stream(context.Background(), texasRequest(), collect(&events))
	require.Error(t, err)

	assert.Equal(t, []string{"setup", "baseline", "error"}, steps(events))
	last := events[len(events)-1]
	assert.Contains(t, last.Error, "Calculation error:")
	assert.Nil(t, last.Result)
}

func TestStream_InvalidRequest(t *testing.T) {
	f := newFixture(t, &enginetest.Fake{})
	req := texasRequest()
	req.AgeHead = 10

	var events []models.ProgressEvent
	_, err := f.svc.Stream(context.Background(), req, collect(&events))
	require.Error(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.StepError, events[0].Step)
	assert.Contains(t, events[0].Error, "age_head must be at least 18")
}

func TestStream_ClientGoneCancelsAndSkipsCache(t *testing.T) {
	f := newFixture(t, &enginetest.Fake{Delay: 50 * time.Millisecond})
	gone := errors.New("client disconnected")

	emit := func(e models.ProgressEvent) error {
		if e.Step == models.StepReforms {
			return gone
		}
		return nil
	}
	resp, err := f.svc.Stream(context.Background(), texasRequest(), emit)
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, gone)

	_, ok := f.store.Get(context.Background(), f.svc.Key(texasRequest()), models.KindCalculation)
	assert.False(t, ok)
}
