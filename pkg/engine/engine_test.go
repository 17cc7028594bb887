package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acacalc/acacalc/pkg/household"
	"github.com/acacalc/acacalc/pkg/models"
	"github.com/acacalc/acacalc/pkg/reform"
)

func testRequest() *Request {
	sit := household.Build(models.CalculationRequest{AgeHead: 35, State: "TX", County: "Harris County"}, household.DefaultOptions())
	return &Request{
		Situation: sit,
		Period:    2026,
		Variables: []Variable{{Name: "aca_ptc", MapTo: "household"}},
	}
}

func TestClient_Calculate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/calculate", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var body map[string]json.RawMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "null", string(body["reform"]))
		assert.Equal(t, "2026", string(body["period"]))
		assert.JSONEq(t, `[{"name":"aca_ptc","map_to":"household"}]`, string(body["variables"]))
		assert.Contains(t, string(body["situation"]), `"HARRIS_COUNTY_TX"`)

		_, _ = w.Write([]byte(`{"result":{"aca_ptc":[1,2,3]}}`))
	}))
	defer srv.Close()

	c := NewClient(Config{URL: srv.URL, APIKey: "secret", Timeout: time.Second})
	res, err := c.Calculate(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, res["aca_ptc"])
}

func TestClient_SendsOverlay(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Reform map[string]map[string]any `json:"reform"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, 0.085, body.Reform["gov.aca.ptc_phase_out_rate[6].amount"]["2026-01-01.2100-12-31"])
		_, _ = w.Write([]byte(`{"result":{"aca_ptc":[0]}}`))
	}))
	defer srv.Close()

	ira, _ := reform.Default().Get(models.ReformIRA)
	req := testRequest()
	req.Reform = ira.Overlay

	_, err := NewClient(Config{URL: srv.URL}).Calculate(context.Background(), req)
	require.NoError(t, err)
}

func TestClient_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `boom`},
		{"error field", http.StatusOK, `{"error":"unknown county"}`},
		{"bad json", http.StatusOK, `{"result":`},
		{"missing variable", http.StatusOK, `{"result":{"other":[1]}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient(Config{URL: srv.URL}).Calculate(context.Background(), testRequest())
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrEngine)
		})
	}
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(Config{URL: url}).Calculate(context.Background(), testRequest())
	assert.ErrorIs(t, err, ErrEngine)
}

func TestClient_Cancelled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := NewClient(Config{URL: srv.URL}).Calculate(ctx, testRequest())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrEngine)
}
