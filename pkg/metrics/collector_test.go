package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	c.CacheLookup("calc", "local", "hit")
	c.CacheBackendError("get")
	c.EngineCall("baseline", time.Second, nil)
	c.DegradedReform("ira")
	c.NarrativeCall("anthropic", nil)
	c.HTTPRequest("/calculate", http.StatusOK, time.Millisecond)

	w := httptest.NewRecorder()
	c.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCounters(t *testing.T) {
	c := New()
	c.EngineCall("ira", time.Second, nil)
	c.EngineCall("ira", time.Second, errors.New("boom"))
	c.EngineCall("ira", time.Second, nil)
	c.DegradedReform("700fpl")

	assert.Equal(t, 2.0, testutil.ToFloat64(c.EngineCalls.WithLabelValues("ira", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.EngineCalls.WithLabelValues("ira", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.DegradedReforms.WithLabelValues("700fpl")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := New()
	c.CacheLookup("calc", "local", "hit")

	w := httptest.NewRecorder()
	c.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `acacalc_cache_lookups_total{kind="calc",result="hit",tier="local"} 1`)
}
